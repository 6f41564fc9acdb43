// Package migrate implements the `migrate` sub-command.
package migrate

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yearn/stack-router/cmd/common"
	"github.com/yearn/stack-router/config"
	"github.com/yearn/stack-router/log"
	"github.com/yearn/stack-router/storage/migrations"
	"github.com/yearn/stack-router/storage/postgres"
)

const (
	moduleName = "migrate"
)

var (
	// Path to the configuration file.
	configFile string

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema migrations and exit",
		Run:   runMigrate,
	}
)

func runMigrate(cmd *cobra.Command, args []string) {
	// Initialize config.
	cfg, err := config.InitConfig(configFile)
	if err != nil {
		log.NewDefaultLogger("init").Error("init failed",
			"error", err,
		)
		os.Exit(1)
	}

	// Initialize common environment.
	if err = common.Init(cfg); err != nil {
		log.NewDefaultLogger("init").Error("init failed",
			"error", err,
		)
		os.Exit(1)
	}
	logger := common.RootLogger().WithModule(moduleName)

	if cfg.Router == nil || cfg.Router.Storage == nil {
		logger.Error("router storage config not provided")
		os.Exit(1)
	}
	if err = RunMigrations(cmd.Context(), cfg.Router.Storage, logger); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}
}

// RunMigrations wipes the database if so configured and brings its schema
// up to date.
func RunMigrations(ctx context.Context, cfg *config.StorageConfig, logger *log.Logger) error {
	if cfg.StorageBackend() != config.BackendPostgres {
		return fmt.Errorf("backend %q has no schema to migrate", cfg.Backend)
	}
	if cfg.WipeStorage {
		db, err := postgres.NewClient(ctx, cfg.Endpoint, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		logger.Warn("wiping storage")
		if err = db.Wipe(ctx); err != nil {
			return fmt.Errorf("wipe storage: %w", err)
		}
	}
	return migrations.Up(cfg.Migrations, cfg.Endpoint, logger)
}

// Register registers the migrate sub-command.
func Register(parentCmd *cobra.Command) {
	migrateCmd.Flags().StringVar(&configFile, "config", "./config/local.yml", "path to the config.yml file")
	parentCmd.AddCommand(migrateCmd)
}

// Package api implements the serve sub-command.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yearn/stack-router/api"
	"github.com/yearn/stack-router/cmd/common"
	rcommon "github.com/yearn/stack-router/common"
	"github.com/yearn/stack-router/config"
	"github.com/yearn/stack-router/log"
	"github.com/yearn/stack-router/metrics"
)

const (
	moduleName = "api"

	defaultTimeout = 10 * time.Second
)

var (
	// Path to the configuration file.
	configFile string

	apiCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the withdrawal stack router API",
		Run:   runServer,
	}
)

func runServer(cmd *cobra.Command, args []string) {
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
	logger := common.RootLogger()

	if cfg.Server == nil {
		logger.Error("server config not provided")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err = Run(ctx, cfg); err != nil {
		logger.Error("service failed", "error", err)
		os.Exit(1)
	}
}

// Run serves the API, and metrics if configured, until ctx is canceled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := common.RootLogger().WithModule(moduleName)

	r, closeRouter, err := common.NewRouter(ctx, cfg.Router, logger)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}
	defer closeRouter()

	server := NewServer(cfg.Server, api.NewRouterAPI(r, apiOptions(cfg.Server), logger))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rcommon.RunServer(ctx, server, logger)
	})
	if cfg.Metrics != nil {
		promServer := metrics.NewPullService(cfg.Metrics.PullEndpoint, logger)
		g.Go(func() error {
			return promServer.Run(ctx)
		})
	}
	logger.Info("started all services")
	return g.Wait()
}

// NewServer wraps handler in an http.Server configured by cfg.
func NewServer(cfg *config.ServerConfig, handler http.Handler) *http.Server {
	writeTimeout := defaultTimeout
	if cfg.RequestTimeout != nil && *cfg.RequestTimeout >= writeTimeout {
		// Leave room for the timeout response itself.
		writeTimeout = *cfg.RequestTimeout + time.Second
	}
	return &http.Server{
		Addr:           cfg.Endpoint,
		Handler:        handler,
		ReadTimeout:    defaultTimeout,
		WriteTimeout:   writeTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}

func apiOptions(cfg *config.ServerConfig) api.Options {
	opts := api.Options{CORSAllowedOrigins: cfg.CORSAllowedOrigins}
	if cfg.RequestTimeout != nil {
		opts.RequestTimeout = *cfg.RequestTimeout
	}
	return opts
}

// Register registers the serve sub-command.
func Register(parentCmd *cobra.Command) {
	apiCmd.Flags().StringVar(&configFile, "config", "./config/local.yml", "path to the config.yml file")
	parentCmd.AddCommand(apiCmd)
}

// Package common implements common stack-router command options.
package common

import (
	"context"
	"fmt"
	"io"
	stdLog "log"
	"os"

	"github.com/akrylysov/pogreb"

	"github.com/yearn/stack-router/config"
	"github.com/yearn/stack-router/log"
	"github.com/yearn/stack-router/router"
	"github.com/yearn/stack-router/storage/client"
	"github.com/yearn/stack-router/storage/kvstore"
	"github.com/yearn/stack-router/storage/migrations"
	"github.com/yearn/stack-router/storage/postgres"
	"github.com/yearn/stack-router/vault/evm"
	"github.com/yearn/stack-router/vault/static"
)

var rootLogger = log.NewDefaultLogger("stack-router")

// Init initializes the common environment.
func Init(cfg *config.Config) error {
	var w io.Writer = os.Stdout
	format := log.FmtJSON
	level := log.LevelDebug

	if cfg.Log != nil {
		var err error
		if w, err = getLoggingStream(cfg.Log); err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		if err := format.Set(cfg.Log.Format); err != nil {
			return err
		}
		if err := level.Set(cfg.Log.Level); err != nil {
			return err
		}
	}
	logger, err := log.NewLogger("stack-router", w, format, level)
	if err != nil {
		return err
	}
	rootLogger = logger

	// Initialize pogreb logging.
	pogrebLogger := RootLogger().WithModule("pogreb").WithCallerUnwind(8)
	pogreb.SetLogger(stdLog.New(log.WriterIntoLogger(pogrebLogger), "", 0))

	return nil
}

// RootLogger returns the logger defined by logging flags.
func RootLogger() *log.Logger {
	return rootLogger
}

func getLoggingStream(cfg *config.LogConfig) (io.Writer, error) {
	if cfg == nil || cfg.File == "" {
		return os.Stdout, nil
	}
	w, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// NewStore opens the configured router store. A nil config selects the
// in-memory store. The returned func releases the store.
func NewStore(ctx context.Context, cfg *config.StorageConfig, logger *log.Logger) (router.Store, func(), error) {
	if cfg == nil {
		return router.NewMemoryStore(), func() {}, nil
	}

	switch backend := cfg.StorageBackend(); backend {
	case config.BackendInMemory:
		return router.NewMemoryStore(), func() {}, nil
	case config.BackendPostgres:
		db, err := postgres.NewClient(ctx, cfg.Endpoint, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.WipeStorage {
			logger.Warn("wiping storage")
			if err = db.Wipe(ctx); err != nil {
				db.Close()
				return nil, nil, fmt.Errorf("wipe storage: %w", err)
			}
		}
		if err = migrations.Up(cfg.Migrations, cfg.Endpoint, logger); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate storage: %w", err)
		}
		store := client.NewStorageClient(db, logger)
		return store, store.Close, nil
	case config.BackendFile:
		if cfg.WipeStorage {
			logger.Warn("wiping storage", "path", cfg.Endpoint)
			if err := os.RemoveAll(cfg.Endpoint); err != nil {
				return nil, nil, fmt.Errorf("wipe storage: %w", err)
			}
		}
		store, err := kvstore.Open(cfg.Endpoint, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Error("failed to close store", "err", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend: %d", backend)
	}
}

// NewStrategyChecker creates the configured source of strategy activeness.
// The returned func releases it.
func NewStrategyChecker(ctx context.Context, cfg config.VaultsConfig, logger *log.Logger) (router.StrategyChecker, func(), error) {
	if cfg.RPC != "" {
		c, err := evm.Dial(ctx, cfg.RPC, logger)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	}
	registry, err := static.NewRegistryFromConfig(cfg.Static)
	if err != nil {
		return nil, nil, err
	}
	return registry, func() {}, nil
}

// NewRouter creates the configured router with its store and strategy
// source. The returned func releases both.
func NewRouter(ctx context.Context, cfg *config.RouterConfig, logger *log.Logger) (*router.Router, func(), error) {
	store, closeStore, err := NewStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: %w", err)
	}
	checker, closeChecker, err := NewStrategyChecker(ctx, cfg.Vaults, logger)
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("vaults: %w", err)
	}
	closeAll := func() {
		closeChecker()
		closeStore()
	}

	r, err := router.New(ctx, cfg.Name, cfg.GovernanceAddress(), store, checker, logger)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	logger.Info("router ready",
		"name", cfg.Name,
		"store", store.Name(),
	)
	return r, closeAll, nil
}

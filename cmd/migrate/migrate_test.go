package migrate_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	cmdMigrate "github.com/yearn/stack-router/cmd/migrate"
	"github.com/yearn/stack-router/config"
	"github.com/yearn/stack-router/log"
	"github.com/yearn/stack-router/tests"
)

func TestMigrations(t *testing.T) {
	tests.SkipIfShort(t)
	ctx := context.Background()
	cfg := &config.StorageConfig{
		Endpoint:    os.Getenv(tests.ConnStringEnv),
		Backend:     "postgres",
		WipeStorage: true,
	}

	// Wipe then migrate; a second run finds nothing to do.
	require.NoError(t, cmdMigrate.RunMigrations(ctx, cfg, log.NewDefaultLogger("unit-test")), "failed to run migrations")
	cfg.WipeStorage = false
	require.NoError(t, cmdMigrate.RunMigrations(ctx, cfg, log.NewDefaultLogger("unit-test")), "failed to rerun migrations")
}

func TestMigrationsNeedPostgres(t *testing.T) {
	cfg := &config.StorageConfig{Endpoint: t.TempDir(), Backend: "file"}
	require.Error(t, cmdMigrate.RunMigrations(context.Background(), cfg, log.NewDefaultLogger("unit-test")))
}

// Package migrations holds the PostgreSQL schema of the router and applies it.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres driver for golang_migrate
	_ "github.com/golang-migrate/migrate/v4/source/file"       // support file scheme for golang_migrate
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/yearn/stack-router/log"
)

//go:embed *.sql
var embedded embed.FS

// Up applies all pending migrations to the database at dbURL. If source is
// empty, the migrations compiled into the binary are used; otherwise source
// is a golang-migrate source URL, e.g. "file://storage/migrations".
func Up(source, dbURL string, logger *log.Logger) error {
	var m *migrate.Migrate
	var err error
	if source == "" {
		d, err2 := iofs.New(embedded, ".")
		if err2 != nil {
			return fmt.Errorf("open embedded migrations: %w", err2)
		}
		m, err = migrate.NewWithSourceInstance("iofs", d, dbURL)
	} else {
		m, err = migrate.New(source, dbURL)
	}
	if err != nil {
		return fmt.Errorf("initialize migrations: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("failed to close migrator", "source_err", srcErr, "db_err", dbErr)
		}
	}()

	switch err = m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("no migrations needed to be applied")
	case err != nil:
		return fmt.Errorf("apply migrations: %w", err)
	default:
		logger.Info("migrations completed")
	}
	return nil
}

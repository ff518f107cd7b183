// Package migrations applies the schema migrations shipped alongside the
// service binary.
package migrations

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// Up applies all pending migrations from path against the database at dsn.
func Up(dsn, path string, logger *zap.Logger) error {
	// golang-migrate selects its driver from the URL scheme.
	databaseURL := strings.Replace(dsn, "postgres://", "pgx5://", 1)

	migrator, err := migrate.New(fmt.Sprintf("file://%s", path), databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	err = migrator.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No migrations to apply")
	} else {
		logger.Info("Migrations applied successfully")
	}
	return nil
}

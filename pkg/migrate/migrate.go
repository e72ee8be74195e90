// Package migrate applies the schema. Postgres is driven by the goose SQL
// files under DefaultDir; mysql and sqlite get the gorm model schema, which
// lacks the CHECK constraints the SQL files declare.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/mmararief/dante-propolis/pkg/config"
	"github.com/mmararief/dante-propolis/pkg/db"
	"github.com/mmararief/dante-propolis/pkg/db/models"
)

const DefaultDir = "pkg/migrate/migrations"

const gooseDialect = "postgres"

// Apply brings the schema of client's database up to date.
func Apply(ctx context.Context, client *db.Client, dir string) error {
	if client == nil {
		return fmt.Errorf("db client is required")
	}
	if driver := client.Driver(); driver != config.DBDriverPostgres {
		if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("auto migrate %s: %w", driver, err)
		}
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	return Run(ctx, sqlDB, dir, "up")
}

// Run executes a goose command by name, e.g. "status" or "redo".
func Run(ctx context.Context, sqlDB *sql.DB, dir, command string, args ...string) error {
	if err := prepare(sqlDB, dir); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, sqlDB, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down until version is current.
func MigrateToVersion(ctx context.Context, sqlDB *sql.DB, dir, version string) error {
	target, err := parseVersion(version)
	if err != nil {
		return err
	}
	if err := prepare(sqlDB, dir); err != nil {
		return err
	}
	current, err := goose.GetDBVersion(sqlDB)
	if err != nil {
		return fmt.Errorf("read db version: %w", err)
	}

	switch {
	case target > current:
		err = goose.UpToContext(ctx, sqlDB, dir, target)
	case target < current:
		err = goose.DownToContext(ctx, sqlDB, dir, target)
	}
	if err != nil {
		return fmt.Errorf("goose %d -> %d: %w", current, target, err)
	}
	return nil
}

func prepare(sqlDB *sql.DB, dir string) error {
	switch {
	case sqlDB == nil:
		return fmt.Errorf("db is required")
	case dir == "":
		return fmt.Errorf("dir is required")
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

func parseVersion(raw string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("target version is required")
	}
	if _, err := time.Parse(versionLayout, raw); err != nil {
		return 0, fmt.Errorf("invalid version %q (want YYYYMMDDHHMMSS): %w", raw, err)
	}
	return strconv.ParseInt(raw, 10, 64)
}

package migrate_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mmararief/dante-propolis/pkg/config"
	"github.com/mmararief/dante-propolis/pkg/db"
	"github.com/mmararief/dante-propolis/pkg/logger"
	"github.com/mmararief/dante-propolis/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestBatchMigrationContainsQuantityConstraints(t *testing.T) {
	content := readMigration(t, "*_create_product_batches.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS product_batches",
		"CHECK (reserved_qty >= 0)",
		"CHECK (reserved_qty <= remaining_qty)",
		"CHECK (remaining_qty <= initial_qty)",
		"CREATE TABLE IF NOT EXISTS stock_movements",
		"reason IN ('restock', 'reserve', 'release', 'consume', 'adjustment')",
		"DROP TABLE IF EXISTS product_batches",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOrdersMigrationGuardsReservationDeadline(t *testing.T) {
	content := readMigration(t, "*_create_orders.sql")

	for _, sub := range []string{
		"reservation_expires_at TIMESTAMPTZ NULL",
		"CHECK (reservation_expires_at IS NULL OR status IN ('unpaid', 'awaiting_confirmation'))",
		"CREATE TABLE IF NOT EXISTS order_item_batches",
		"FOREIGN KEY (batch_id) REFERENCES product_batches(id) ON DELETE RESTRICT",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "create_things.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, migrate.ValidateDir(dir))
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Batch Notes")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_batch_notes.sql"))
	require.NoError(t, migrate.ValidateDir(dir))
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:migrate_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

func TestApplyOnBootHonoursFlagAndEnvironment(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	cases := []struct {
		name    string
		env     string
		enabled bool
		want    bool
	}{
		{name: "disabled", env: config.AppEnvDev, enabled: false, want: false},
		{name: "production", env: config.AppEnvProd, enabled: true, want: false},
		{name: "dev", env: config.AppEnvDev, enabled: true, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := openSQLite(t)
			cfg := &config.Config{
				App:          config.AppConfig{Env: tc.env},
				FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: tc.enabled},
			}
			require.NoError(t, migrate.ApplyOnBoot(context.Background(), cfg, logg, db.Wrap(conn)))
			require.Equal(t, tc.want, conn.Migrator().HasTable("product_batches"))
		})
	}
}

func TestMigrateToVersionRejectsMalformedVersion(t *testing.T) {
	sqlDB, err := openSQLite(t).DB()
	require.NoError(t, err)
	for _, version := range []string{"", "2025", "20251399000000"} {
		require.Error(t, migrate.MigrateToVersion(context.Background(), sqlDB, "migrations", version), version)
	}
}

func TestApplyUsesModelSchemaOutsidePostgres(t *testing.T) {
	conn := openSQLite(t)
	require.NoError(t, migrate.Apply(context.Background(), db.Wrap(conn), migrate.DefaultDir))

	for _, table := range []string{"products", "product_batches", "stock_movements", "orders", "order_item_batches", "outbox_events"} {
		require.True(t, conn.Migrator().HasTable(table), "missing table %s", table)
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no migration matching %s", pattern)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestCreateSQLMigrationKeepsVersionsDistinct(t *testing.T) {
	dir := t.TempDir()
	first, err := migrate.CreateSQLMigration(dir, "create_couriers")
	require.NoError(t, err)
	second, err := migrate.CreateSQLMigration(dir, "create_couriers")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.Less(t, filepath.Base(first), filepath.Base(second))

	content, err := os.ReadFile(first)
	require.NoError(t, err)
	require.Contains(t, string(content), "CREATE TABLE IF NOT EXISTS couriers")
	require.Contains(t, string(content), "DROP TABLE IF EXISTS couriers;")
	require.NoError(t, migrate.ValidateDir(dir))
}

func TestValidateDirRejectsMalformedAnnotations(t *testing.T) {
	cases := map[string]string{
		"down first":   "-- +goose Down\n-- +goose Up\n",
		"no down":      "-- +goose Up\nSELECT 1;\n",
		"open block":   "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n",
		"nested block": "-- +goose Up\n-- +goose StatementBegin\n-- +goose StatementBegin\n-- +goose StatementEnd\n-- +goose StatementEnd\n-- +goose Down\n",
		"stray end":    "-- +goose Up\n-- +goose StatementEnd\n-- +goose Down\n",
	}
	for name, body := range cases {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "20250301090000_broken.sql"), []byte(body), 0o644))
		require.Error(t, migrate.ValidateDir(dir), name)
	}
}

package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/mmararief/dante-propolis/pkg/config"
	"github.com/mmararief/dante-propolis/pkg/db"
	"github.com/mmararief/dante-propolis/pkg/logger"
)

// ApplyOnBoot migrates at process start when DANTE_AUTO_MIGRATE is set.
// Production schemas are only ever changed through cmd/migrate, so the flag
// is ignored there.
func ApplyOnBoot(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": client.Driver()})
	if cfg.App.IsProd() {
		logg.Warn(ctx, "auto migrate ignored in production")
		return nil
	}

	start := time.Now()
	if err := Apply(ctx, client, DefaultDir); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logg.Info(logg.WithField(ctx, "duration_ms", time.Since(start).Milliseconds()), "schema migrated on boot")
	return nil
}

package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/config"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
)

// MaybeRunDev applies the embedded migrations in dev when the auto-migrate
// flag is on. Elsewhere it only warns when the schema trails the binary, since
// reservations written against an old schema lose the counter constraints.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		pending, err := Pending(ctx, sqlDB)
		if err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "unable to read schema version")
			return nil
		}
		if len(pending) > 0 {
			logg.Warn(logg.WithField(ctx, "pending_versions", pending), "schema is behind embedded migrations")
		}
		return nil
	}

	logg.Info(ctx, "running goose migrations (dev auto-run)")
	if err := Run(ctx, sqlDB, "", "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	logg.Info(ctx, "goose migrations completed")
	return nil
}

// Pending lists embedded versions newer than the version recorded in db.
func Pending(ctx context.Context, sqlDB *sql.DB) ([]int64, error) {
	if _, err := prepare(""); err != nil {
		return nil, err
	}
	current, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}
	versions, err := EmbeddedVersions()
	if err != nil {
		return nil, err
	}
	return newerThan(versions, current), nil
}

func newerThan(versions []int64, current int64) []int64 {
	var out []int64
	for _, v := range versions {
		if v > current {
			out = append(out, v)
		}
	}
	return out
}

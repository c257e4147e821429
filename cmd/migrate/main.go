package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/config"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/migrate"
)

type options struct {
	cmd      string
	dir      string
	embedded bool
	name     string
	version  string
}

// source is the goose directory to read; empty selects the embedded files.
func (o options) source() string {
	if o.embedded {
		return ""
	}
	return o.dir
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "up|down|status|version|pending|create|validate|list")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "migrations directory on disk")
	flag.BoolVar(&opts.embedded, "embedded", false, "use the migrations compiled into this binary instead of -dir")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target YYYYMMDDHHMMSS for -cmd=version")
	flag.Parse()

	if handled, err := runOffline(opts); handled {
		exitOn(err)
		return
	}
	exitOn(runOnline(opts))
}

// runOffline handles the commands that only touch migration files.
func runOffline(opts options) (bool, error) {
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return true, fmt.Errorf("create needs -name")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err == nil {
			fmt.Println("created", path)
		}
		return true, err
	case "validate":
		err := migrate.ValidateEmbedded()
		if !opts.embedded {
			err = migrate.ValidateDir(opts.dir)
		}
		if err == nil {
			fmt.Println("migrations valid")
		}
		return true, err
	case "list":
		versions, err := migrate.EmbeddedVersions()
		for _, v := range versions {
			fmt.Println(v)
		}
		return true, err
	default:
		return false, nil
	}
}

func runOnline(opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.ConsoleLogs(),
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"cmd":      opts.cmd,
		"embedded": opts.embedded,
	})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer client.Close()
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}

	if err := apply(ctx, sqlDB, opts); err != nil {
		logg.Error(ctx, "migration command failed", err)
		return err
	}
	logg.Info(ctx, "migration command finished")
	return nil
}

func apply(ctx context.Context, sqlDB *sql.DB, opts options) error {
	switch opts.cmd {
	case "up", "down", "status":
		return migrate.Run(ctx, sqlDB, opts.source(), opts.cmd)
	case "version":
		if opts.version == "" {
			return fmt.Errorf("version needs -version")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, opts.source(), opts.version)
	case "pending":
		pending, err := migrate.Pending(ctx, sqlDB)
		for _, v := range pending {
			fmt.Println(v)
		}
		return err
	default:
		return fmt.Errorf("unknown -cmd %q", opts.cmd)
	}
}

func exitOn(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "migrate:", err)
	os.Exit(1)
}

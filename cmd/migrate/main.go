package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/stripeapp-backend/pkg/config"
	"github.com/angelmondragon/stripeapp-backend/pkg/db"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
	"github.com/angelmondragon/stripeapp-backend/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
}

// command is one migrate subcommand. Offline commands only touch the
// migrations directory; the rest run against the configured database.
type command struct {
	offline bool
	run     func(ctx context.Context, sqlDB *sql.DB, opts options, out io.Writer) error
}

var commands = map[string]command{
	"create": {offline: true, run: func(_ context.Context, _ *sql.DB, opts options, out io.Writer) error {
		if opts.name == "" {
			return fmt.Errorf("-name is required for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "created migration:", path)
		return nil
	}},
	"validate": {offline: true, run: func(_ context.Context, _ *sql.DB, opts options, out io.Writer) error {
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		fmt.Fprintln(out, "migrations valid:", opts.dir)
		return nil
	}},
	"version": {run: func(ctx context.Context, sqlDB *sql.DB, opts options, _ io.Writer) error {
		if opts.version == "" {
			return fmt.Errorf("-version is required for version")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version)
	}},
	"up":     {run: gooseCommand("up")},
	"down":   {run: gooseCommand("down")},
	"status": {run: gooseCommand("status")},
}

func gooseCommand(name string) func(context.Context, *sql.DB, options, io.Writer) error {
	return func(ctx context.Context, sqlDB *sql.DB, opts options, _ io.Writer) error {
		return migrate.Run(ctx, sqlDB, opts.dir, name)
	}
}

func commandNames() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func main() {
	_ = godotenv.Load()
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	name := fs.String("cmd", "up", "migration command: "+commandNames())
	var opts options
	fs.StringVar(&opts.dir, "dir", "", "migrations directory; database commands default to the embedded set, create and validate to "+migrate.DefaultDir)
	fs.StringVar(&opts.name, "name", "", "migration name for create; create_<table> scaffolds a Stripe mirror table")
	fs.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for version")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cmd, ok := commands[*name]
	if !ok {
		return fmt.Errorf("unknown -cmd %q (want %s)", *name, commandNames())
	}
	if cmd.offline {
		if opts.dir == "" {
			opts.dir = migrate.DefaultDir
		}
		return cmd.run(context.Background(), nil, opts, out)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *name,
		"dir": dirLabel(opts.dir),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "database unavailable", err)
		return err
	}
	defer dbClient.Close()

	if cfg.DB.IsSQLite() {
		// goose migrations are Postgres SQL; sqlite schemas come from the models.
		if *name != "up" {
			return fmt.Errorf("-cmd %s is not supported on sqlite", *name)
		}
		logg.Info(ctx, "sqlite database; applying model schema instead of goose")
		return migrate.AutoMigrateModels(dbClient.DB())
	}

	sqlDB, err := dbClient.SQL()
	if err != nil {
		return fmt.Errorf("sql database: %w", err)
	}
	logg.Info(ctx, "running migration command")
	if err := cmd.run(ctx, sqlDB, opts, out); err != nil {
		logg.Error(ctx, "migration command failed", err)
		return err
	}
	return nil
}

func dirLabel(dir string) string {
	if dir == migrate.Embedded {
		return "embedded"
	}
	return dir
}

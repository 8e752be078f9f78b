package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/packfinderz-payouts/pkg/config"
	"github.com/angelmondragon/packfinderz-payouts/pkg/db"
	"github.com/angelmondragon/packfinderz-payouts/pkg/logger"
	"github.com/angelmondragon/packfinderz-payouts/pkg/migrate"
)

type dbCommand func(ctx context.Context, r *migrate.Runner, version int64) ([]*goose.MigrationResult, error)

var dbCommands = map[string]dbCommand{
	"up": func(ctx context.Context, r *migrate.Runner, _ int64) ([]*goose.MigrationResult, error) {
		return r.Up(ctx)
	},
	"down": func(ctx context.Context, r *migrate.Runner, _ int64) ([]*goose.MigrationResult, error) {
		return r.Down(ctx)
	},
	"redo": func(ctx context.Context, r *migrate.Runner, _ int64) ([]*goose.MigrationResult, error) {
		return r.Redo(ctx)
	},
	"version": func(ctx context.Context, r *migrate.Runner, v int64) ([]*goose.MigrationResult, error) {
		if v <= 0 {
			return nil, fmt.Errorf("missing -version for version command")
		}
		return r.To(ctx, v)
	},
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|redo|status|version|create|validate")
	dir := flag.String("dir", migrate.SourceDir, "migrations directory for create and validate")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	switch *cmd {
	case "create":
		if *name == "" {
			exitf("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			exitf("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			exitf("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	run, known := dbCommands[*cmd]
	if !known && *cmd != "status" {
		exitf("unknown -cmd value: %s", *cmd)
	}
	var target int64
	if *version != "" {
		v, err := strconv.ParseInt(*version, 10, 64)
		if err != nil {
			exitf("invalid -version %q (expected YYYYMMDDHHMMSS): %v", *version, err)
		}
		target = v
	}

	cfg, err := config.Load()
	if err != nil {
		exitf("failed to load config: %v", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	runner, err := migrate.NewRunner(sqlDB, migrate.Migrations())
	requireResource(ctx, logg, "goose provider", err)

	if *cmd == "status" {
		statuses, err := runner.Status(ctx)
		if err != nil {
			exitf("%v", err)
		}
		for _, st := range statuses {
			applied := "pending"
			if st.State == goose.StateApplied {
				applied = st.AppliedAt.UTC().Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%-22s %s\n", applied, st.Source.Path)
		}
		return
	}

	results, err := run(ctx, runner, target)
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		fmt.Printf("%-4s %s (%s)\n", res.Direction, res.Source.Path, res.Duration)
	}
	if err != nil {
		exitf("goose %s failed: %v", *cmd, err)
	}
	logg.Info(logg.WithField(ctx, "migrations", len(results)), "goose "+*cmd+" completed")
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

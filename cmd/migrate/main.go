package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/escrowledger/pkg/config"
	"github.com/angelmondragon/escrowledger/pkg/db"
	"github.com/angelmondragon/escrowledger/pkg/logger"
	"github.com/angelmondragon/escrowledger/pkg/migrate"
)

const usage = "migration command: up|down|status|to|create|validate"

func main() {
	cmd := flag.String("cmd", "up", usage)
	dir := flag.String("dir", "", "migrations directory; empty uses the set embedded in the binary")
	name := flag.String("name", "", "migration name (create)")
	version := flag.String("version", "", "target version YYYYMMDDHHMMSS (to)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	// create and validate work on files only.
	switch *cmd {
	case "create":
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, *name)
		exitOn(err, "create migration")
		fmt.Println("created migration:", path)
		return
	case "validate":
		fsys, err := migrate.Source(*dir)
		exitOn(err, "open migrations")
		exitOn(migrate.ValidateFS(fsys), "validate migrations")
		fmt.Println("migrations valid")
		return
	}

	cfg, err := config.Load()
	exitOn(err, "load config")
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOn(err, "connect database")
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	exitOn(err, "extract sql.DB")
	runner, err := migrate.NewRunner(sqlDB, *dir)
	exitOn(err, "prepare migrations")

	switch *cmd {
	case "up":
		applied, err := runner.Up(ctx)
		exitOn(err, "migrate up")
		logg.Info(logg.WithField(ctx, "applied", applied), "migrations applied")
	case "down":
		rolledBack, err := runner.Down(ctx)
		exitOn(err, "migrate down")
		logg.Info(logg.WithField(ctx, "version", rolledBack), "migration rolled back")
	case "status":
		statuses, err := runner.Status(ctx)
		exitOn(err, "migration status")
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tAPPLIED\tFILE")
		for _, st := range statuses {
			fmt.Fprintf(w, "%d\t%t\t%s\n", st.Version, st.Applied, st.Path)
		}
		_ = w.Flush()
	case "to":
		if *version == "" {
			exitOn(fmt.Errorf("-version is required"), "migrate to")
		}
		exitOn(runner.To(ctx, *version), "migrate to")
		logg.Info(logg.WithField(ctx, "version", *version), "schema at requested version")
	default:
		exitOn(fmt.Errorf("unknown -cmd %q (%s)", *cmd, usage), "migrate")
	}
}

func exitOn(err error, step string) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
	os.Exit(1)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/studentnest/nest-backend/pkg/config"
	"github.com/studentnest/nest-backend/pkg/db"
	"github.com/studentnest/nest-backend/pkg/logger"
	"github.com/studentnest/nest-backend/pkg/migrate"
)

const usage = `usage: migrate [-dir path] <command> [arg]

commands:
  up                 apply all pending migrations
  down               roll back the latest migration
  status             print applied and pending migrations
  to <version>       migrate up or down to version (YYYYMMDDHHMMSS)
  create <name>      scaffold a new SQL migration in -dir
  validate           check the embedded migrations
`

func main() {
	dir := flag.String("dir", migrate.DefaultDir, "directory used by create")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	command, arg := flag.Arg(0), flag.Arg(1)
	switch command {
	case "create":
		if arg == "" {
			fail("create needs a migration name")
		}
		path, err := migrate.CreateSQLMigration(*dir, arg, time.Now())
		if err != nil {
			fail(err.Error())
		}
		fmt.Println(path)
		return
	case "validate":
		if err := migrate.ValidateEmbedded(); err != nil {
			fail(err.Error())
		}
		fmt.Println("migrations ok")
		return
	case "up", "down", "status":
	case "to":
		if arg == "" {
			fail("to needs a target version")
		}
	default:
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fail("load config: " + err.Error())
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithField(context.Background(), "command", command)

	if cfg.DB.IsSQLite() {
		logg.Warn(ctx, "sql migrations target postgres; sqlite schemas come from auto-migrate")
		os.Exit(1)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "connect database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "sql handle", err)
		os.Exit(1)
	}

	if command == "to" {
		err = migrate.MigrateTo(ctx, sqlDB, arg)
	} else {
		err = migrate.Run(ctx, sqlDB, command)
	}
	if err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration finished")
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, "migrate:", msg)
	os.Exit(1)
}

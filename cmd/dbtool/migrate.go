package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/jacksonlee411/recordhub/migrations"
)

const (
	migrateUp     = "up"
	migrateDown   = "down"
	migrateStatus = "status"
)

func parseMigrateCommand(args []string) (string, error) {
	if len(args) == 0 {
		return migrateUp, nil
	}
	switch args[0] {
	case migrateUp, migrateDown, migrateStatus:
		return args[0], nil
	default:
		return "", fmt.Errorf("unknown migrate command: %s (expected up|down|status)", args[0])
	}
}

func migrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	dsn := connFlags(fs)
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	cmd, err := parseMigrateCommand(fs.Args())
	if err != nil {
		fatal(err)
	}
	url, err := dsn()
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := sql.Open("pgx", url)
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		fatal(err)
	}

	switch cmd {
	case migrateUp:
		err = goose.UpContext(ctx, db, ".")
	case migrateDown:
		err = goose.DownContext(ctx, db, ".")
	case migrateStatus:
		err = goose.StatusContext(ctx, db, ".")
	}
	if err != nil {
		fatal(err)
	}
	fmt.Printf("[migrate] %s OK\n", cmd)
}

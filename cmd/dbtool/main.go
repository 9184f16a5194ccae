package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jacksonlee411/recordhub/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		fatalf("usage: dbtool <migrate|records-smoke|tenant-add> [args]")
	}

	switch os.Args[1] {
	case "migrate":
		migrate(os.Args[2:])
	case "records-smoke":
		recordsSmoke(os.Args[2:])
	case "tenant-add":
		tenantAdd(os.Args[2:])
	default:
		fatalf("unknown subcommand: %s", os.Args[1])
	}
}

// connFlags registers --url and --config on fs. The URL falls back to
// database.url from the configuration.
func connFlags(fs *flag.FlagSet) func() (string, error) {
	var url, configPath string
	fs.StringVar(&url, "url", "", "postgres connection string (default: database.url)")
	fs.StringVar(&configPath, "config", "config/app.yaml", "path to the configuration file")
	return func() (string, error) {
		if strings.TrimSpace(url) != "" {
			return url, nil
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return "", err
		}
		if u := cfg.GetString(config.KeyDatabaseURL, ""); u != "" {
			return u, nil
		}
		return "", errors.New("missing --url (or database.url)")
	}
}

func pgErrorMessage(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	return pgErr.Message, true
}

func tryEnsureRole(ctx context.Context, conn *pgx.Conn, role string) error {
	if !validSQLIdent(role) {
		return fmt.Errorf("invalid role: %s", role)
	}

	stmt := fmt.Sprintf(`DO $$
BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = '%s') THEN
    EXECUTE 'CREATE ROLE %s NOBYPASSRLS';
  END IF;
END
$$;`, role, role)
	if _, err := conn.Exec(ctx, stmt); err != nil {
		return err
	}
	_, _ = conn.Exec(ctx, `GRANT USAGE ON SCHEMA public TO `+role+`;`)
	_, _ = conn.Exec(ctx, `GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO `+role+`;`)
	return nil
}

func trySetRole(ctx context.Context, tx pgx.Tx, role string) bool {
	if _, err := tx.Exec(ctx, `SET ROLE `+role+`;`); err != nil {
		return false
	}
	return true
}

var reSQLIdent = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validSQLIdent(s string) bool {
	return reSQLIdent.MatchString(s)
}

func fatal(err error) {
	if err == nil {
		os.Exit(1)
	}
	if msg, ok := pgErrorMessage(err); ok {
		fatalf("postgres: %s", msg)
	}
	fatalf("%v", err)
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

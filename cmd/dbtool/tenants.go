package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

type tenantArgs struct {
	id     string
	name   string
	domain string
}

func (a tenantArgs) validate() error {
	if strings.TrimSpace(a.id) == "" || strings.TrimSpace(a.domain) == "" {
		return errors.New("tenant-add: --id and --domain are required")
	}
	if strings.ContainsAny(a.domain, " /:") {
		return fmt.Errorf("tenant-add: invalid domain %q", a.domain)
	}
	return nil
}

// tenantAdd registers a tenant and its hostname for the database tenancy
// resolver.
func tenantAdd(args []string) {
	fs := flag.NewFlagSet("tenant-add", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	dsn := connFlags(fs)
	var in tenantArgs
	fs.StringVar(&in.id, "id", "", "tenant id")
	fs.StringVar(&in.name, "name", "", "tenant display name (default: id)")
	fs.StringVar(&in.domain, "domain", "", "hostname that resolves to the tenant")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if err := in.validate(); err != nil {
		fatal(err)
	}
	if in.name == "" {
		in.name = in.id
	}
	url, err := dsn()
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		fatal(err)
	}
	defer conn.Close(context.Background())

	tx, err := conn.Begin(ctx)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `
INSERT INTO tenants (id, name) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, is_active = true;`, strings.TrimSpace(in.id), in.name); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO tenant_domains (hostname, tenant_id) VALUES ($1, $2)
ON CONFLICT (hostname) DO UPDATE SET tenant_id = EXCLUDED.tenant_id;`, strings.ToLower(strings.TrimSpace(in.domain)), strings.TrimSpace(in.id)); err != nil {
		fatal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		fatal(err)
	}
	fmt.Printf("[tenant-add] %s -> %s OK\n", in.domain, in.id)
}

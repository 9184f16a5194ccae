package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jacksonlee411/recordhub/modules/record/domain/ports"
	"github.com/jacksonlee411/recordhub/modules/record/domain/types"
	"github.com/jacksonlee411/recordhub/modules/record/infrastructure/persistence"
	"github.com/jacksonlee411/recordhub/pkg/httperr"
)

const smokeEntityType = "SmokeRecord"

var errSmokeRollback = errors.New("smoke rollback")

// recordsSmoke checks tenant isolation on the records table and a round trip
// through the record store. Nothing it writes is committed.
func recordsSmoke(args []string) {
	fs := flag.NewFlagSet("records-smoke", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	dsn := connFlags(fs)
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	url, err := dsn()
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		fatal(err)
	}
	defer conn.Close(context.Background())

	_ = tryEnsureRole(ctx, conn, "app_nobypassrls")

	tenantA := "smoke-a-" + uuid.NewString()
	tenantB := "smoke-b-" + uuid.NewString()
	id := uuid.NewString()

	tx, err := conn.Begin(ctx)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	_ = trySetRole(ctx, tx, "app_nobypassrls")

	if _, err := tx.Exec(ctx, `SAVEPOINT sp_failclosed;`); err != nil {
		fatal(err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO records (tenant_id, entity_type, id, data) VALUES ($1, $2, $3, '{}'::jsonb);`, tenantA, smokeEntityType, id)
	if _, rbErr := tx.Exec(ctx, `ROLLBACK TO SAVEPOINT sp_failclosed;`); rbErr != nil {
		fatal(rbErr)
	}
	if err == nil {
		fatalf("expected fail-closed error when app.current_tenant is missing")
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantA); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO records (tenant_id, entity_type, id, data) VALUES ($1, $2, $3, '{"name":"a"}'::jsonb);`, tenantA, smokeEntityType, id); err != nil {
		fatal(err)
	}

	if _, err := tx.Exec(ctx, `SAVEPOINT sp_cross_insert;`); err != nil {
		fatal(err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO records (tenant_id, entity_type, id, data) VALUES ($1, $2, $3, '{}'::jsonb);`, tenantB, smokeEntityType, id)
	if _, rbErr := tx.Exec(ctx, `ROLLBACK TO SAVEPOINT sp_cross_insert;`); rbErr != nil {
		fatal(rbErr)
	}
	if err == nil {
		fatalf("expected RLS rejection on cross-tenant insert")
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM records WHERE entity_type = $1 AND id = $2;`, smokeEntityType, id).Scan(&count); err != nil {
		fatal(err)
	}
	if count != 1 {
		fatalf("expected count=1 under tenant A, got %d", count)
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantB); err != nil {
		fatal(err)
	}
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM records WHERE entity_type = $1 AND id = $2;`, smokeEntityType, id).Scan(&count); err != nil {
		fatal(err)
	}
	if count != 0 {
		fatalf("expected count=0 under tenant B, got %d", count)
	}
	if err := tx.Rollback(ctx); err != nil {
		fatal(err)
	}

	if err := storeRoundTrip(ctx, persistence.NewPGStore(conn), tenantA, tenantB); err != nil {
		fatal(err)
	}

	fmt.Println("[records-smoke] OK")
}

func storeRoundTrip(ctx context.Context, store ports.RecordStore, tenantA string, tenantB string) error {
	id := uuid.NewString()
	err := store.WithTx(ctx, tenantA, func(tx ports.RecordTx) error {
		e := types.NewEntity(smokeEntityType, map[string]any{"id": id, "name": "smoke"})
		if err := tx.Insert(ctx, e); err != nil {
			return err
		}
		got, err := tx.Get(ctx, smokeEntityType, id)
		if err != nil {
			return err
		}
		if got.Get("name") != "smoke" {
			return fmt.Errorf("store round trip: name=%v", got.Get("name"))
		}
		return errSmokeRollback
	})
	if !errors.Is(err, errSmokeRollback) {
		return fmt.Errorf("store round trip: %w", err)
	}

	return store.WithTx(ctx, tenantB, func(tx ports.RecordTx) error {
		if _, err := tx.Get(ctx, smokeEntityType, id); !httperr.IsNotFound(err) {
			return fmt.Errorf("store round trip: expected not found under other tenant, got %v", err)
		}
		return nil
	})
}

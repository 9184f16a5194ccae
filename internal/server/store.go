package server

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jacksonlee411/recordhub/internal/config"
	"github.com/jacksonlee411/recordhub/modules/record/domain/ports"
	"github.com/jacksonlee411/recordhub/modules/record/infrastructure/persistence"
)

// OpenStore builds the record store named by store.driver. The returned
// pool is nil for the memory store; callers close it on shutdown.
func OpenStore(ctx context.Context, cfg *config.Config) (ports.RecordStore, *pgxpool.Pool, error) {
	switch cfg.StoreDriver() {
	case config.StoreDriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.GetString(config.KeyDatabaseURL, ""))
		if err != nil {
			return nil, nil, fmt.Errorf("server: open postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("server: ping postgres: %w", err)
		}
		return persistence.NewPGStore(pool), pool, nil
	default:
		s, err := persistence.NewMemoryStore()
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	}
}

package core

import (
	"context"
	"fmt"

	"binmap/internal/config"
	"binmap/internal/infra/persistence/memory"
	"binmap/internal/infra/persistence/postgres"
	"binmap/internal/infra/persistence/sqlite"
	"binmap/pkg/domain"
)

// OpenPersistentStore selects a backend from the storage configuration. The
// returned close function releases database handles and is never nil.
func OpenPersistentStore(ctx context.Context, cfg config.StorageConfig, engine *domain.RulesEngine) (domain.PersistentStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Driver {
	case config.StorageMemory:
		return memory.NewStore(engine), noop, nil
	case config.StorageSQLite, "":
		store, err := sqlite.NewStore(cfg.SQLitePath, engine)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case config.StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, engine)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

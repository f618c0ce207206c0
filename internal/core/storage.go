package core

import (
	"context"
	"fmt"
	"log/slog"

	"statefacts/internal/infra/persistence/badger"
	"statefacts/internal/infra/persistence/memory"
	"statefacts/internal/infra/persistence/mongo"
	"statefacts/internal/infra/persistence/postgres"
	"statefacts/internal/infra/persistence/sqlite"
	"statefacts/pkg/domain"
)

// StorageDriver identifies a concrete fact store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-process only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageMongo    StorageDriver = "mongo"    // MongoDB collection
	StorageBadger   StorageDriver = "badger"   // embedded badger directory
)

// Valid reports whether d names a known driver.
func (d StorageDriver) Valid() bool {
	switch d {
	case StorageMemory, StorageSQLite, StoragePostgres, StorageMongo, StorageBadger:
		return true
	}
	return false
}

// StorageConfig carries the settings of every driver; only the fields of
// the selected one are read.
type StorageConfig struct {
	Driver          StorageDriver
	SQLitePath      string
	PostgresDSN     string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	BadgerPath      string
	// Logger receives driver internal logs (badger).
	Logger *slog.Logger
}

// OpenStore opens the configured fact store. The empty driver selects sqlite.
func OpenStore(ctx context.Context, cfg StorageConfig) (domain.FactStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(ctx, cfg.SQLitePath)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	case StorageMongo:
		return mongo.NewStore(ctx, mongo.Config{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
		})
	case StorageBadger:
		bcfg := badger.DefaultConfig(cfg.BadgerPath)
		bcfg.Logger = cfg.Logger
		return badger.NewStore(bcfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

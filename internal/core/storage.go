package core

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"chemcore/internal/infra/persistence/memory"
	"chemcore/internal/infra/persistence/postgres"
	"chemcore/internal/infra/persistence/sqlite"
	"chemcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// StorageOptions selects and configures a backend.
type StorageOptions struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

type storeOpener func(StorageOptions, *RulesEngine) (PersistentStore, error)

var storeOpeners = map[StorageDriver]storeOpener{
	StorageMemory: func(_ StorageOptions, engine *RulesEngine) (PersistentStore, error) {
		return memory.NewStore(engine), nil
	},
	StorageSQLite: func(opts StorageOptions, engine *RulesEngine) (PersistentStore, error) {
		return sqlite.NewStore(opts.SQLitePath, engine)
	},
	StoragePostgres: func(opts StorageOptions, engine *RulesEngine) (PersistentStore, error) {
		return postgres.NewStore(opts.PostgresDSN, engine)
	},
}

// StorageDrivers lists the accepted driver names.
func StorageDrivers() []string {
	names := make([]string, 0, len(storeOpeners))
	for name := range storeOpeners {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

// OpenPersistentStore opens the backend named by opts. An empty driver
// defaults to sqlite and a nil engine gets the default dispenser rules.
// Stores holding external resources also implement io.Closer.
func OpenPersistentStore(opts StorageOptions, engine *RulesEngine) (PersistentStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	driver := StorageDriver(strings.ToLower(strings.TrimSpace(string(opts.Driver))))
	if driver == "" {
		driver = StorageSQLite
	}
	open, ok := storeOpeners[driver]
	if !ok {
		return nil, fmt.Errorf("unknown storage driver %q (want one of %s)", opts.Driver, strings.Join(StorageDrivers(), ", "))
	}
	store, err := open(opts, engine)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	return store, nil
}

// CloseStore releases store if it holds external resources.
func CloseStore(store PersistentStore) error {
	if closer, ok := store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// NewMemoryStore constructs an in-memory store with the given rules engine.
func NewMemoryStore(engine *RulesEngine) *memory.Store {
	return memory.NewStore(engine)
}

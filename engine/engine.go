// Package engine is the ambient glue spec.md itself leaves implicit: the
// Database/Run surface of spec.md §6, the statement state machine of
// spec.md §4.8, configuration loading, and structured logging. It wires
// lumen/catalog, lumen/binder, lumen/planner, lumen/optimizer and
// lumen/exec into one embeddable entry point, selecting a storage.Engine
// backend (memstore, duckstore, pgstore) from lumen.Config.
package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/catalog"
	"github.com/lumen-db/lumen/storage"
	"github.com/lumen-db/lumen/storage/duckstore"
	"github.com/lumen-db/lumen/storage/memstore"
	"github.com/lumen-db/lumen/storage/pgstore"
)

// Database is the engine's embeddable entry point (spec.md §6's
// "Database::new(storage_options)"). It owns one shared catalog and one
// storage.Engine backend for the lifetime of the process, matching
// spec.md §3's "Catalogs live for the life of the engine instance."
type Database struct {
	cfg     *lumen.Config
	catalog *catalog.Catalog
	storage storage.Engine
	logger  *zap.SugaredLogger

	mu       sync.Mutex
	closers  []func() error
}

// New constructs a Database from cfg, selecting and initializing the
// storage.Engine backend cfg.Storage.Backend names ("memory", "duckdb",
// "postgres"). If cfg is nil, lumen.DefaultConfig() is used.
func New(cfg *lumen.Config) (*Database, error) {
	if cfg == nil {
		cfg = lumen.DefaultConfig()
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("engine: build logger: %w", err)
	}

	db := &Database{cfg: cfg, catalog: catalog.New(), logger: logger}

	switch cfg.Storage.Backend {
	case "", "memory":
		db.storage = memstore.New()
	case "duckdb":
		eng, closer, err := duckstore.Open(cfg.Storage.DuckDB)
		if err != nil {
			return nil, fmt.Errorf("engine: open duckdb backend: %w", err)
		}
		db.storage = eng
		db.closers = append(db.closers, closer)
	case "postgres":
		eng, closer, err := pgstore.Open(context.Background(), cfg.Storage.Postgres)
		if err != nil {
			return nil, fmt.Errorf("engine: open postgres backend: %w", err)
		}
		db.storage = eng
		db.closers = append(db.closers, closer)
	default:
		return nil, fmt.Errorf("engine: unknown storage backend %q", cfg.Storage.Backend)
	}

	logger.Infow("engine started", "backend", cfg.Storage.Backend, "chunk_window", cfg.Query.ChunkWindow)
	return db, nil
}

// Catalog exposes the engine's shared namespace, primarily for tests that
// need to inspect catalog state a statement produced.
func (db *Database) Catalog() *catalog.Catalog { return db.catalog }

// Logger returns the component-scoped sugared logger every package in this
// module that needs structured logging should obtain its own named child
// from (matching the teacher's zap.S()-per-component convention).
func (db *Database) Logger() *zap.SugaredLogger { return db.logger }

// DefaultSchema is the (database, schema) pair new connections bind
// statements against; spec.md §3 guarantees these always exist after
// catalog init.
func (db *Database) DefaultSchema() catalog.SchemaId { return db.catalog.DefaultSchemaId() }

// Close releases the storage backend's resources (connection pools, open
// file handles). Safe to call once, at process shutdown.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	var first error
	for _, c := range db.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	db.closers = nil
	return first
}

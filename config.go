package lumen

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config consolidates every engine setting a Database is constructed from.
type Config struct {
	Storage   StorageConfig   `toml:"storage"`
	Query     QueryConfig     `toml:"query"`
	Optimizer OptimizerConfig `toml:"optimizer"`
	Copy      CopyConfig      `toml:"copy"`
	Logging   LoggingConfig   `toml:"logging"`
}

// StorageConfig selects and configures the storage.Storage implementation a
// Database binds its catalog to.
type StorageConfig struct {
	// Backend is one of "memory", "duckdb", "postgres".
	Backend string `toml:"backend"`

	DuckDB   DuckDBConfig   `toml:"duckdb"`
	Postgres PostgresConfig `toml:"postgres"`
}

// DuckDBConfig configures the on-disk column-store adapter (storage/duckstore).
type DuckDBConfig struct {
	Enabled bool   `toml:"enabled"`
	DBPath  string `toml:"db_path"` // empty or ":memory:" for an in-memory DuckDB instance
	Timeout time.Duration `toml:"timeout"`
}

// PostgresConfig configures the pass-through adapter (storage/pgstore).
type PostgresConfig struct {
	Enabled         bool          `toml:"enabled"`
	DSN             string        `toml:"dsn"`
	MaxConnections  int32         `toml:"max_connections"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

// QueryConfig contains query execution settings.
type QueryConfig struct {
	// ChunkWindow is W, the default target chunk cardinality (spec.md §4.2).
	ChunkWindow       int           `toml:"chunk_window"`
	DefaultTimeout    time.Duration `toml:"default_timeout"`
	MaxRows           int64         `toml:"max_rows"`
	EnableOptimizer   bool          `toml:"enable_optimizer"`
}

// OptimizerConfig names individual rewrite-rule categories of spec.md §4.6.
// The fields are loaded from TOML but optimizer.Optimize does not read
// them; only QueryConfig.EnableOptimizer switches the optimizer, as a
// whole.
type OptimizerConfig struct {
	EnableExpressionSimplification bool `toml:"enable_expression_simplification"`
	EnablePredicatePushdown        bool `toml:"enable_predicate_pushdown"`
	EnableColumnPruning            bool `toml:"enable_column_pruning"`
	EnableJoinReorder              bool `toml:"enable_join_reorder"`
	EnableTopNFusion               bool `toml:"enable_topn_fusion"`
}

// CopyConfig holds CSV wire-format options for COPY FROM/TO (spec.md §6).
// They are loaded from TOML but the COPY operators do not read them; a
// statement's own options and lumen/exec's built-in defaults apply.
type CopyConfig struct {
	Delimiter string `toml:"delimiter"`
	Quote     string `toml:"quote"`
	Escape    string `toml:"escape"`
	Header    bool   `toml:"header"`
}

// LoggingConfig contains structured-logging settings (zap).
type LoggingConfig struct {
	Level            string `toml:"level"` // debug, info, warn, error
	Format           string `toml:"format"` // "json" or "console"
	EnableQueryLog   bool   `toml:"enable_query_log"`
}

// DefaultConfig returns the configuration a Database uses when no TOML file
// is supplied: an in-memory storage backend, a 2048-row chunk window, and
// every optimizer rule category turned on.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: "memory",
			DuckDB:  DuckDBConfig{DBPath: ":memory:", Timeout: 30 * time.Second},
		},
		Query: QueryConfig{
			ChunkWindow:     2048,
			DefaultTimeout:  30 * time.Second,
			MaxRows:         0, // unbounded
			EnableOptimizer: true,
		},
		Optimizer: OptimizerConfig{
			EnableExpressionSimplification: true,
			EnablePredicatePushdown:        true,
			EnableColumnPruning:            true,
			EnableJoinReorder:              true,
			EnableTopNFusion:               true,
		},
		Copy: CopyConfig{
			Delimiter: ",",
			Quote:     `"`,
			Escape:    `"`,
			Header:    false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig reads a TOML configuration file, overlaying it on top of
// DefaultConfig so a partial file only needs to name the settings it wants
// to change (matching the teacher's layered-config convention).
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config file %s: %w", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}
	return cfg, nil
}

// Package storage defines the boundary the executor depends on, per the
// storage interface boundary: the core makes no assumption about how an
// engine partitions rows, compresses columns, or reclaims space. Everything
// above this package (lumen/exec) talks only to these interfaces; everything
// below it (storage/memstore, storage/duckstore, ...) is a concrete engine.
package storage

import (
	"context"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/catalog"
)

// RowHandle is the opaque 64-bit row identifier Scan appends as a trailing
// column when with_row_handler is requested, and that Delete consumes.
type RowHandle uint64

// ScanFilter evaluates a pushdown predicate against a chunk already read from
// storage, returning a boolean mask array of the same cardinality. Storage
// does not know about lumen/plan or lumen/eval; the executor closes over an
// already-bound expression and hands the engine only this function, which
// keeps the dependency direction storage <- exec instead of the reverse.
type ScanFilter func(chunk *array.DataChunk) (*array.Array, error)

// Iterator streams chunks from a scan. Next returns (nil, nil) at EOF.
// Implementations may suspend at Next on real storage I/O; callers are
// expected to respect ctx cancellation on every call.
type Iterator interface {
	Next(ctx context.Context) (*array.DataChunk, error)
	Close() error
}

// Transaction is a snapshot of a table obtained from Table.read(). All
// mutating operations apply only within this snapshot until Commit.
type Transaction interface {
	// Scan opens an iterator over rows whose primary key falls within
	// [startKeys, endKeys) (either may be nil for an open end), projected to
	// columnIds. isSorted requests the engine return rows in primary-key
	// order (required upstream of a SortMergeJoin or an Order-free ORDER BY
	// elision); withRowHandler appends a RowHandle as the last column of
	// every emitted chunk, required by Delete. filter, if non-nil, lets the
	// engine drop rows before they ever reach the executor.
	Scan(ctx context.Context, startKeys, endKeys []lumen.Value, columnIds []catalog.ColumnId, isSorted, withRowHandler bool, filter ScanFilter) (Iterator, error)

	// Append writes chunk's rows into the table as part of this transaction.
	// chunk's columns must already be in table-column order.
	Append(ctx context.Context, chunk *array.DataChunk) error

	// Delete removes the rows identified by handles, which must have been
	// obtained from a Scan on this same transaction with withRowHandler set.
	Delete(ctx context.Context, handles []RowHandle) error

	// Commit makes this transaction's writes visible to subsequent reads and
	// releases its snapshot.
	Commit(ctx context.Context) error

	// Abort discards this transaction's writes. Called on statement
	// cancellation in place of Commit.
	Abort(ctx context.Context) error
}

// Table is a handle to a single table's storage, obtained from Engine.GetTable.
type Table interface {
	ID() catalog.TableId

	// Read opens a new snapshot transaction against the table's current
	// committed state.
	Read(ctx context.Context) (Transaction, error)
}

// Index is a handle to a secondary index, returned by Engine.GetIndex.
// Index lookups are not yet consumed by the planner (spec.md's planner never
// emits an index-scan physical operator), so this surface is currently a
// pass-through identity the executor does not call.
type Index interface {
	ID() catalog.IndexId
}

// Engine is the storage boundary the executor is built against. It mirrors
// the catalog's DDL one-to-one so that CREATE/DROP statements can forward
// directly into it without an intermediate translation layer. The catalog,
// not the engine, is the authority for ID allocation: a DDL operator first
// calls catalog.AddTable (or AddIndex) to mint the dense ID, then passes that
// same ID here so the two namespaces never diverge.
type Engine interface {
	CreateTable(ctx context.Context, id catalog.TableId, schemaId catalog.SchemaId, name string, columns []catalog.ColumnDesc, columnNames []string, pkOrder []int) error
	DropTable(ctx context.Context, id catalog.TableId) error
	GetTable(ctx context.Context, id catalog.TableId) (Table, error)

	CreateIndex(ctx context.Context, id catalog.IndexId, tableId catalog.TableId, name string, columnIds []catalog.ColumnId, unique bool) error
	GetIndex(ctx context.Context, id catalog.IndexId) (Index, error)

	// CreateFunction and AddView are direct pass-throughs to the catalog;
	// the engine records them only so that a later DROP or re-open of the
	// same storage_options sees a consistent catalog. Neither has execution
	// semantics of its own.
	CreateFunction(ctx context.Context, fn catalog.FunctionCatalog) error
	AddView(ctx context.Context, tableId catalog.TableId, querySQL string) error
}

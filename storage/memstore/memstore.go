// Package memstore is an in-memory storage.Engine: the reference backend
// lumen/exec is developed and tested against before a real engine
// (storage/duckstore, storage/pgstore) is wired in. It keeps every table as
// a handle-indexed row set guarded by a RWMutex, mirroring the
// cache-plus-mutex shape the teacher repo uses for its schema attribute
// caches, generalized from a read-through cache to the row store itself.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/catalog"
	"github.com/lumen-db/lumen/storage"
)

type rowEntry struct {
	handle storage.RowHandle
	values []lumen.Value
}

type table struct {
	id          catalog.TableId
	columnTypes []lumen.DataType
	pkPositions []int // indices into columnTypes, in declared PK order

	mu         sync.RWMutex
	rows       []rowEntry
	nextHandle storage.RowHandle
}

func (t *table) ID() catalog.TableId { return t.id }

func (t *table) Read(ctx context.Context) (storage.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, lumen.NewCancelledError()
	}
	t.mu.RLock()
	snapshot := make([]rowEntry, len(t.rows))
	copy(snapshot, t.rows)
	t.mu.RUnlock()

	return &transaction{tbl: t, rows: snapshot, nextHandle: t.nextHandle}, nil
}

// transaction buffers appends/deletes against a private copy of the table's
// rows; nothing becomes visible to other readers until Commit.
type transaction struct {
	tbl        *table
	rows       []rowEntry
	nextHandle storage.RowHandle
	done       bool
}

func (tx *transaction) Scan(ctx context.Context, startKeys, endKeys []lumen.Value, columnIds []catalog.ColumnId, isSorted, withRowHandler bool, filter storage.ScanFilter) (storage.Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, lumen.NewCancelledError()
	}

	matched := make([]rowEntry, 0, len(tx.rows))
	for _, r := range tx.rows {
		if !inKeyRange(r.values, tx.tbl.pkPositions, startKeys, endKeys) {
			continue
		}
		matched = append(matched, r)
	}

	if isSorted {
		sort.Slice(matched, func(i, j int) bool {
			return comparePK(matched[i].values, matched[j].values, tx.tbl.pkPositions) < 0
		})
	}

	schema := make([]lumen.DataType, len(columnIds))
	for i, colID := range columnIds {
		schema[i] = tx.tbl.columnTypes[columnPos(colID)]
	}
	if withRowHandler {
		schema = append(schema, lumen.Int64Type(false))
	}

	chunk, err := projectAndFilter(matched, columnIds, withRowHandler, schema, filter)
	if err != nil {
		return nil, err
	}
	return &chunkIterator{chunk: chunk, window: array.DefaultWindow}, nil
}

// inKeyRange reports whether row's primary-key tuple lies in [startKeys,
// endKeys). Either bound may be nil for an open end; both nil always
// matches, which is how a full scan (no WHERE on the primary key) is
// expressed.
func inKeyRange(values []lumen.Value, pkPositions []int, startKeys, endKeys []lumen.Value) bool {
	if startKeys != nil {
		if compareKeyTuple(values, pkPositions, startKeys) < 0 {
			return false
		}
	}
	if endKeys != nil {
		if compareKeyTuple(values, pkPositions, endKeys) >= 0 {
			return false
		}
	}
	return true
}

func compareKeyTuple(values []lumen.Value, pkPositions []int, key []lumen.Value) int {
	for i, pos := range pkPositions {
		if i >= len(key) {
			break
		}
		if c := lumen.CompareTotal(values[pos], key[i]); c != 0 {
			return c
		}
	}
	return 0
}

func comparePK(a, b []lumen.Value, pkPositions []int) int {
	for _, pos := range pkPositions {
		if c := lumen.CompareTotal(a[pos], b[pos]); c != 0 {
			return c
		}
	}
	return 0
}

// columnPos maps a catalog.ColumnId to its 0-based position in a table's
// column/row-value slice. catalog.AddTable allocates ColumnIds densely
// starting at 1 in column-declaration order, so this holds as long as a
// table's columns are registered with the catalog and with Engine.CreateTable
// in the same order.
func columnPos(id catalog.ColumnId) int { return int(id) - 1 }

func projectAndFilter(rows []rowEntry, columnIds []catalog.ColumnId, withRowHandler bool, schema []lumen.DataType, filter storage.ScanFilter) (*array.DataChunk, error) {
	allRows := make([][]lumen.Value, len(rows))
	for i, r := range rows {
		vals := make([]lumen.Value, 0, len(columnIds)+1)
		for _, colID := range columnIds {
			vals = append(vals, r.values[columnPos(colID)])
		}
		if withRowHandler {
			vals = append(vals, lumen.Int64Value(int64(r.handle)))
		}
		allRows[i] = vals
	}

	builder := array.NewDataChunkBuilder(schema, 0)
	var chunks []*array.DataChunk
	for _, vals := range allRows {
		if c := builder.PushRow(vals); c != nil {
			chunks = append(chunks, c)
		}
	}
	if c := builder.Take(); c != nil {
		chunks = append(chunks, c)
	}

	merged := mergeChunks(chunks, schema)
	if filter == nil {
		return merged, nil
	}
	mask, err := filter(merged)
	if err != nil {
		return nil, err
	}
	boolMask := make([]bool, mask.Len())
	for i := range boolMask {
		boolMask[i] = !mask.IsNull(i) && mask.Get(i).Bool()
	}
	return merged.Filter(boolMask), nil
}

func mergeChunks(chunks []*array.DataChunk, schema []lumen.DataType) *array.DataChunk {
	if len(chunks) == 0 {
		return array.FromRows(nil, schema)
	}
	if len(chunks) == 1 {
		return chunks[0]
	}
	var rows []array.Row
	for _, c := range chunks {
		rows = append(rows, c.Rows()...)
	}
	return array.FromRows(rows, schema)
}

func (tx *transaction) Append(ctx context.Context, chunk *array.DataChunk) error {
	if err := ctx.Err(); err != nil {
		return lumen.NewCancelledError()
	}
	for _, row := range chunk.Rows() {
		vals := make([]lumen.Value, row.Width())
		for i := 0; i < row.Width(); i++ {
			vals[i] = row.At(i)
		}
		tx.nextHandle++
		tx.rows = append(tx.rows, rowEntry{handle: tx.nextHandle, values: vals})
	}
	return nil
}

func (tx *transaction) Delete(ctx context.Context, handles []storage.RowHandle) error {
	if err := ctx.Err(); err != nil {
		return lumen.NewCancelledError()
	}
	toDelete := make(map[storage.RowHandle]bool, len(handles))
	for _, h := range handles {
		toDelete[h] = true
	}
	kept := tx.rows[:0:0]
	for _, r := range tx.rows {
		if !toDelete[r.handle] {
			kept = append(kept, r)
		}
	}
	tx.rows = kept
	return nil
}

func (tx *transaction) Commit(ctx context.Context) error {
	if tx.done {
		return lumen.NewStorageError("transaction already closed", nil)
	}
	tx.tbl.mu.Lock()
	tx.tbl.rows = tx.rows
	if tx.nextHandle > tx.tbl.nextHandle {
		tx.tbl.nextHandle = tx.nextHandle
	}
	tx.tbl.mu.Unlock()
	tx.done = true
	return nil
}

func (tx *transaction) Abort(ctx context.Context) error {
	tx.done = true
	return nil
}

type chunkIterator struct {
	chunk    *array.DataChunk
	window   int
	consumed bool
}

func (it *chunkIterator) Next(ctx context.Context) (*array.DataChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, lumen.NewCancelledError()
	}
	if it.consumed || it.chunk == nil || it.chunk.Cardinality() == 0 {
		return nil, nil
	}
	if it.chunk.Cardinality() <= it.window {
		it.consumed = true
		return it.chunk, nil
	}
	head := it.chunk.Slice(0, it.window)
	it.chunk = it.chunk.Slice(it.window, it.chunk.Cardinality())
	return head, nil
}

func (it *chunkIterator) Close() error { return nil }

// Engine is the in-memory storage.Engine implementation.
type Engine struct {
	mu      sync.RWMutex
	tables  map[catalog.TableId]*table
	indexes map[catalog.IndexId]*index
}

// New constructs an empty Engine.
func New() *Engine {
	return &Engine{
		tables:  make(map[catalog.TableId]*table),
		indexes: make(map[catalog.IndexId]*index),
	}
}

func (e *Engine) CreateTable(ctx context.Context, id catalog.TableId, schemaId catalog.SchemaId, name string, columns []catalog.ColumnDesc, columnNames []string, pkOrder []int) error {
	types := make([]lumen.DataType, len(columns))
	for i, c := range columns {
		types[i] = c.DataType
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables[id] = &table{id: id, columnTypes: types, pkPositions: pkOrder}
	return nil
}

func (e *Engine) DropTable(ctx context.Context, id catalog.TableId) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tables[id]; !ok {
		return lumen.NewStorageError("drop_table: unknown table", nil)
	}
	delete(e.tables, id)
	return nil
}

func (e *Engine) GetTable(ctx context.Context, id catalog.TableId) (storage.Table, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tables[id]
	if !ok {
		return nil, lumen.NewStorageError("get_table: unknown table", nil)
	}
	return t, nil
}

type index struct {
	id        catalog.IndexId
	tableId   catalog.TableId
	columnIds []catalog.ColumnId
	unique    bool
}

func (ix *index) ID() catalog.IndexId { return ix.id }

func (e *Engine) CreateIndex(ctx context.Context, id catalog.IndexId, tableId catalog.TableId, name string, columnIds []catalog.ColumnId, unique bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.indexes[id] = &index{id: id, tableId: tableId, columnIds: columnIds, unique: unique}
	return nil
}

func (e *Engine) GetIndex(ctx context.Context, id catalog.IndexId) (storage.Index, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ix, ok := e.indexes[id]
	if !ok {
		return nil, lumen.NewStorageError("get_index: unknown index", nil)
	}
	return ix, nil
}

// CreateFunction and AddView have no storage-side state in memstore: the
// catalog is the sole source of truth for both, per spec.md §4.9.
func (e *Engine) CreateFunction(ctx context.Context, fn catalog.FunctionCatalog) error { return nil }

func (e *Engine) AddView(ctx context.Context, tableId catalog.TableId, querySQL string) error {
	return nil
}

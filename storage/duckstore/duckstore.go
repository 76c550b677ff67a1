// Package duckstore is an on-disk (or in-process) columnar storage.Engine
// backed by DuckDB, following the database/sql + duckdb driver shape the
// teacher's internal/duckdb_conn.go wires up, generalized from a read-only
// federation connection into a full storage.Engine with its own DDL, scans
// and transactions.
package duckstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/catalog"
	"github.com/lumen-db/lumen/storage"
)

// Engine is the DuckDB-backed storage.Engine. A single *sql.DB is shared
// across every table the same way the teacher's DuckDBClient wraps one
// *sql.DB per process: DuckDB's single-writer model makes multiple
// connections to the same file pointless.
type Engine struct {
	db     *sql.DB
	tables map[catalog.TableId]*table
}

// Open connects to a DuckDB database at cfg.DBPath (":memory:" or empty for
// an in-process instance) and returns an Engine plus a closer the caller
// runs on shutdown.
func Open(cfg lumen.DuckDBConfig) (storage.Engine, func() error, error) {
	dsn := cfg.DBPath
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("duckstore: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 0
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("duckstore: ping: %w", err)
	}

	e := &Engine{db: db, tables: make(map[catalog.TableId]*table)}
	return e, db.Close, nil
}

func tableName(id catalog.TableId) string { return fmt.Sprintf("lumen_t%d", id) }

func (e *Engine) CreateTable(ctx context.Context, id catalog.TableId, schemaId catalog.SchemaId, name string, columns []catalog.ColumnDesc, columnNames []string, pkOrder []int) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (__rowid__ BIGINT", tableName(id))
	for i, c := range columns {
		fmt.Fprintf(&sb, ", %s %s", quoteIdent(columnNames[i]), duckdbType(c.DataType))
	}
	sb.WriteString(")")
	if _, err := e.db.ExecContext(ctx, sb.String()); err != nil {
		return lumen.NewStorageError("duckstore: create_table", err)
	}
	if _, err := e.db.ExecContext(ctx, fmt.Sprintf("CREATE SEQUENCE %s_seq", tableName(id))); err != nil {
		return lumen.NewStorageError("duckstore: create_sequence", err)
	}

	types := make([]lumen.DataType, len(columns))
	for i, c := range columns {
		types[i] = c.DataType
	}
	e.tables[id] = &table{id: id, engine: e, columnNames: columnNames, columnTypes: types, pkPositions: pkOrder}
	return nil
}

func (e *Engine) DropTable(ctx context.Context, id catalog.TableId) error {
	if _, ok := e.tables[id]; !ok {
		return lumen.NewStorageError("duckstore: drop_table: unknown table", nil)
	}
	if _, err := e.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+tableName(id)); err != nil {
		return lumen.NewStorageError("duckstore: drop_table", err)
	}
	e.db.ExecContext(ctx, "DROP SEQUENCE IF EXISTS "+tableName(id)+"_seq")
	delete(e.tables, id)
	return nil
}

func (e *Engine) GetTable(ctx context.Context, id catalog.TableId) (storage.Table, error) {
	t, ok := e.tables[id]
	if !ok {
		return nil, lumen.NewStorageError("duckstore: get_table: unknown table", nil)
	}
	return t, nil
}

type duckIndex struct {
	id      catalog.IndexId
	tableId catalog.TableId
}

func (ix *duckIndex) ID() catalog.IndexId { return ix.id }

// CreateIndex issues a CREATE INDEX against the underlying table; DuckDB
// indexes are advisory (the planner never emits an index-scan operator, per
// storage.Index's doc comment); a failure is returned as a storage error.
func (e *Engine) CreateIndex(ctx context.Context, id catalog.IndexId, tableId catalog.TableId, name string, columnIds []catalog.ColumnId, unique bool) error {
	t, ok := e.tables[tableId]
	if !ok {
		return lumen.NewStorageError("duckstore: create_index: unknown table", nil)
	}
	cols := make([]string, len(columnIds))
	for i, cid := range columnIds {
		cols[i] = quoteIdent(t.columnNames[int(cid)-1])
	}
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	stmt := fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, quoteIdent(name), tableName(tableId), strings.Join(cols, ", "))
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return lumen.NewStorageError("duckstore: create_index", err)
	}
	return nil
}

func (e *Engine) GetIndex(ctx context.Context, id catalog.IndexId) (storage.Index, error) {
	return &duckIndex{id: id}, nil
}

// CreateFunction and AddView have no DuckDB-side effect of their own: the
// catalog remains the authority, same as memstore.
func (e *Engine) CreateFunction(ctx context.Context, fn catalog.FunctionCatalog) error { return nil }
func (e *Engine) AddView(ctx context.Context, tableId catalog.TableId, querySQL string) error {
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func duckdbType(dt lumen.DataType) string {
	switch dt.Kind() {
	case lumen.KindBool:
		return "BOOLEAN"
	case lumen.KindInt16:
		return "SMALLINT"
	case lumen.KindInt32:
		return "INTEGER"
	case lumen.KindInt64:
		return "BIGINT"
	case lumen.KindFloat64:
		return "DOUBLE"
	case lumen.KindDecimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", dt.Precision(), dt.Scale())
	case lumen.KindString:
		return "VARCHAR"
	case lumen.KindBlob:
		return "BLOB"
	case lumen.KindDate:
		return "DATE"
	case lumen.KindTimestamp:
		return "TIMESTAMP"
	case lumen.KindInterval:
		return "INTERVAL"
	case lumen.KindVector:
		return fmt.Sprintf("DOUBLE[%d]", dt.VectorLen())
	default:
		return "VARCHAR"
	}
}

type table struct {
	id          catalog.TableId
	engine      *Engine
	columnNames []string
	columnTypes []lumen.DataType
	pkPositions []int
}

func (t *table) ID() catalog.TableId { return t.id }

func (t *table) Read(ctx context.Context) (storage.Transaction, error) {
	tx, err := t.engine.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, lumen.NewStorageError("duckstore: begin", err)
	}
	return &transaction{tbl: t, tx: tx}, nil
}

type transaction struct {
	tbl  *table
	tx   *sql.Tx
	done bool
}

func (tx *transaction) Scan(ctx context.Context, startKeys, endKeys []lumen.Value, columnIds []catalog.ColumnId, isSorted, withRowHandler bool, filter storage.ScanFilter) (storage.Iterator, error) {
	t := tx.tbl
	cols := make([]string, len(columnIds))
	schema := make([]lumen.DataType, len(columnIds))
	for i, cid := range columnIds {
		pos := int(cid) - 1
		cols[i] = quoteIdent(t.columnNames[pos])
		schema[i] = t.columnTypes[pos]
	}
	selectList := strings.Join(cols, ", ")
	if withRowHandler {
		selectList += ", __rowid__"
		schema = append(schema, lumen.Int64Type(false))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", selectList, tableName(t.id))
	var args []any
	var where []string
	for i, pos := range t.pkPositions {
		if startKeys != nil && i < len(startKeys) {
			where = append(where, fmt.Sprintf("%s >= ?", quoteIdent(t.columnNames[pos])))
			args = append(args, valueToGo(startKeys[i]))
		}
		if endKeys != nil && i < len(endKeys) {
			where = append(where, fmt.Sprintf("%s < ?", quoteIdent(t.columnNames[pos])))
			args = append(args, valueToGo(endKeys[i]))
		}
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	if isSorted && len(t.pkPositions) > 0 {
		orderCols := make([]string, len(t.pkPositions))
		for i, pos := range t.pkPositions {
			orderCols[i] = quoteIdent(t.columnNames[pos])
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(orderCols, ", "))
	}

	rows, err := tx.tx.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, lumen.NewStorageError("duckstore: scan", err)
	}
	defer rows.Close()

	chunk, err := scanRowsToChunk(rows, schema)
	if err != nil {
		return nil, err
	}
	if filter != nil {
		mask, err := filter(chunk)
		if err != nil {
			return nil, err
		}
		boolMask := make([]bool, mask.Len())
		for i := range boolMask {
			boolMask[i] = !mask.IsNull(i) && mask.Get(i).Bool()
		}
		chunk = chunk.Filter(boolMask)
	}
	return &chunkIterator{chunk: chunk, window: array.DefaultWindow}, nil
}

// scanRowsToChunk materializes a *sql.Rows result set into a typed
// DataChunk. DuckDB's database/sql driver hands back Go-native values for
// every type this package emits, so Scan targets a single []any per row.
func scanRowsToChunk(rows *sql.Rows, schema []lumen.DataType) (*array.DataChunk, error) {
	builder := array.NewDataChunkBuilder(schema, 0)
	var chunks []*array.DataChunk
	dest := make([]any, len(schema))
	ptrs := make([]any, len(schema))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, lumen.NewStorageError("duckstore: row scan", err)
		}
		vals := make([]lumen.Value, len(schema))
		for i, dt := range schema {
			vals[i] = goToValue(dest[i], dt)
		}
		if c := builder.PushRow(vals); c != nil {
			chunks = append(chunks, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, lumen.NewStorageError("duckstore: rows", err)
	}
	if c := builder.Take(); c != nil {
		chunks = append(chunks, c)
	}
	if len(chunks) == 0 {
		return array.EmptyChunk(schema), nil
	}
	out := chunks[0]
	for _, c := range chunks[1:] {
		out = out.Concat(c)
	}
	return out, nil
}

func (tx *transaction) Append(ctx context.Context, chunk *array.DataChunk) error {
	t := tx.tbl
	cols := make([]string, len(t.columnNames))
	placeholders := make([]string, len(t.columnNames)+1)
	for i, name := range t.columnNames {
		cols[i] = quoteIdent(name)
		placeholders[i+1] = "?"
	}
	placeholders[0] = fmt.Sprintf("nextval('%s_seq')", tableName(t.id))
	stmt := fmt.Sprintf("INSERT INTO %s (__rowid__, %s) VALUES (%s)", tableName(t.id), strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	for _, row := range chunk.Rows() {
		args := make([]any, row.Width())
		for i := 0; i < row.Width(); i++ {
			args[i] = valueToGo(row.At(i))
		}
		if _, err := tx.tx.ExecContext(ctx, stmt, args...); err != nil {
			return lumen.NewStorageError("duckstore: append", err)
		}
	}
	return nil
}

func (tx *transaction) Delete(ctx context.Context, handles []storage.RowHandle) error {
	if len(handles) == 0 {
		return nil
	}
	placeholders := make([]string, len(handles))
	args := make([]any, len(handles))
	for i, h := range handles {
		placeholders[i] = "?"
		args[i] = int64(h)
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE __rowid__ IN (%s)", tableName(tx.tbl.id), strings.Join(placeholders, ", "))
	if _, err := tx.tx.ExecContext(ctx, stmt, args...); err != nil {
		return lumen.NewStorageError("duckstore: delete", err)
	}
	return nil
}

func (tx *transaction) Commit(ctx context.Context) error {
	if tx.done {
		return lumen.NewStorageError("duckstore: transaction already closed", nil)
	}
	tx.done = true
	if err := tx.tx.Commit(); err != nil {
		return lumen.NewStorageError("duckstore: commit", err)
	}
	return nil
}

func (tx *transaction) Abort(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	return tx.tx.Rollback()
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

// Package pgstore is a pass-through storage.Engine backed by PostgreSQL via
// jackc/pgx/v5, grounded on the teacher's PostgresPersistentRecordRepository
// (internal/postgres_persistent_repository.go): a pgxpool.Pool shared across
// tables, pgx.Rows scanned row by row, and plain parameterized SQL rather
// than the teacher's EAV-table layout — this engine maps one lumen table to
// one native Postgres table instead of to rows in a shared attribute table.
package pgstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/catalog"
	"github.com/lumen-db/lumen/internal/util"
	"github.com/lumen-db/lumen/storage"
)

// pgxPool is the subset of *pgxpool.Pool this package calls, narrowed to an
// interface so tests can swap in pgxmock's pool double without a live
// database.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Close()
}

// Engine is the Postgres-backed storage.Engine.
type Engine struct {
	pool    pgxPool
	tables  map[catalog.TableId]*table
	breaker *util.CircuitBreaker
}

// exec runs sql against the pool, tripping breaker on repeated failures so a
// database outage fails fast instead of queuing up timeouts behind it —
// adapted from the teacher's per-backend circuit breaker
// (internal/circuit_breaker.go), scoped to this one Engine instead of a
// package-level global since pgstore never shares a breaker across
// federated backends the way the teacher's DuckDB/Postgres pair did.
func (e *Engine) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if e.breaker.IsOpen() {
		return pgconn.CommandTag{}, lumen.NewStorageError("pgstore: circuit open, backend unavailable", nil)
	}
	tag, err := e.pool.Exec(ctx, sql, args...)
	if err != nil {
		e.breaker.RecordFailure()
		return tag, err
	}
	e.breaker.RecordSuccess()
	return tag, nil
}

// Open connects to Postgres per cfg and returns an Engine plus a closer.
func Open(ctx context.Context, cfg lumen.PostgresConfig) (storage.Engine, func() error, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgstore: parse dsn: %w", err)
	}
	if cfg.MaxConnections > 0 {
		pcfg.MaxConns = cfg.MaxConnections
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pgstore: ping: %w", err)
	}

	e := &Engine{
		pool:    pool,
		tables:  make(map[catalog.TableId]*table),
		breaker: util.NewCircuitBreaker(5, 30*time.Second, 10*time.Second),
	}
	closer := func() error {
		pool.Close()
		return nil
	}
	return e, closer, nil
}

func tableName(id catalog.TableId) string { return fmt.Sprintf("lumen_t%d", id) }

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (e *Engine) CreateTable(ctx context.Context, id catalog.TableId, schemaId catalog.SchemaId, name string, columns []catalog.ColumnDesc, columnNames []string, pkOrder []int) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (__rowid__ BIGINT GENERATED ALWAYS AS IDENTITY", tableName(id))
	for i, c := range columns {
		fmt.Fprintf(&sb, ", %s %s", quoteIdent(columnNames[i]), pgType(c.DataType))
	}
	sb.WriteString(")")
	if _, err := e.exec(ctx, sb.String()); err != nil {
		return lumen.NewStorageError("pgstore: create_table", err)
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
		return lumen.NewStorageError("pgstore: drop_table: unknown table", nil)
	}
	if _, err := e.exec(ctx, "DROP TABLE IF EXISTS "+tableName(id)); err != nil {
		return lumen.NewStorageError("pgstore: drop_table", err)
	}
	delete(e.tables, id)
	return nil
}

func (e *Engine) GetTable(ctx context.Context, id catalog.TableId) (storage.Table, error) {
	t, ok := e.tables[id]
	if !ok {
		return nil, lumen.NewStorageError("pgstore: get_table: unknown table", nil)
	}
	return t, nil
}

type pgIndex struct{ id catalog.IndexId }

func (ix *pgIndex) ID() catalog.IndexId { return ix.id }

func (e *Engine) CreateIndex(ctx context.Context, id catalog.IndexId, tableId catalog.TableId, name string, columnIds []catalog.ColumnId, unique bool) error {
	t, ok := e.tables[tableId]
	if !ok {
		return lumen.NewStorageError("pgstore: create_index: unknown table", nil)
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
	if _, err := e.exec(ctx, stmt); err != nil {
		return lumen.NewStorageError("pgstore: create_index", err)
	}
	return nil
}

func (e *Engine) GetIndex(ctx context.Context, id catalog.IndexId) (storage.Index, error) {
	return &pgIndex{id: id}, nil
}

func (e *Engine) CreateFunction(ctx context.Context, fn catalog.FunctionCatalog) error { return nil }
func (e *Engine) AddView(ctx context.Context, tableId catalog.TableId, querySQL string) error {
	return nil
}

func pgType(dt lumen.DataType) string {
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
		return "DOUBLE PRECISION"
	case lumen.KindDecimal:
		return fmt.Sprintf("NUMERIC(%d,%d)", dt.Precision(), dt.Scale())
	case lumen.KindString:
		return "TEXT"
	case lumen.KindBlob:
		return "BYTEA"
	case lumen.KindDate:
		return "DATE"
	case lumen.KindTimestamp:
		return "TIMESTAMP"
	case lumen.KindInterval:
		return "INTERVAL"
	case lumen.KindVector:
		return "DOUBLE PRECISION[]"
	default:
		return "TEXT"
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
	if t.engine.breaker.IsOpen() {
		return nil, lumen.NewStorageError("pgstore: circuit open, backend unavailable", nil)
	}
	tx, err := t.engine.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		t.engine.breaker.RecordFailure()
		return nil, lumen.NewStorageError("pgstore: begin", err)
	}
	t.engine.breaker.RecordSuccess()
	return &transaction{tbl: t, tx: tx}, nil
}

type transaction struct {
	tbl  *table
	tx   pgx.Tx
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
	n := 1
	for i, pos := range t.pkPositions {
		if startKeys != nil && i < len(startKeys) {
			where = append(where, fmt.Sprintf("%s >= $%d", quoteIdent(t.columnNames[pos]), n))
			args = append(args, valueToGo(startKeys[i]))
			n++
		}
		if endKeys != nil && i < len(endKeys) {
			where = append(where, fmt.Sprintf("%s < $%d", quoteIdent(t.columnNames[pos]), n))
			args = append(args, valueToGo(endKeys[i]))
			n++
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

	rows, err := tx.tx.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, lumen.NewStorageError("pgstore: scan", err)
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

func scanRowsToChunk(rows pgx.Rows, schema []lumen.DataType) (*array.DataChunk, error) {
	builder := array.NewDataChunkBuilder(schema, 0)
	var chunks []*array.DataChunk
	for rows.Next() {
		raw, err := rows.Values()
		if err != nil {
			return nil, lumen.NewStorageError("pgstore: row values", err)
		}
		vals := make([]lumen.Value, len(schema))
		for i, dt := range schema {
			vals[i] = goToValue(raw[i], dt)
		}
		if c := builder.PushRow(vals); c != nil {
			chunks = append(chunks, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, lumen.NewStorageError("pgstore: rows", err)
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
	placeholders := make([]string, len(t.columnNames))
	for i, name := range t.columnNames {
		cols[i] = quoteIdent(name)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", tableName(t.id), strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	batch := &pgx.Batch{}
	for _, row := range chunk.Rows() {
		args := make([]any, row.Width())
		for i := 0; i < row.Width(); i++ {
			args[i] = valueToGo(row.At(i))
		}
		batch.Queue(stmt, args...)
	}
	br := tx.tx.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return lumen.NewStorageError("pgstore: append", err)
		}
	}
	return nil
}

func (tx *transaction) Delete(ctx context.Context, handles []storage.RowHandle) error {
	if len(handles) == 0 {
		return nil
	}
	ids := make([]int64, len(handles))
	for i, h := range handles {
		ids[i] = int64(h)
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE __rowid__ = ANY($1)", tableName(tx.tbl.id))
	if _, err := tx.tx.Exec(ctx, stmt, ids); err != nil {
		return lumen.NewStorageError("pgstore: delete", err)
	}
	return nil
}

func (tx *transaction) Commit(ctx context.Context) error {
	if tx.done {
		return lumen.NewStorageError("pgstore: transaction already closed", nil)
	}
	tx.done = true
	if err := tx.tx.Commit(ctx); err != nil {
		return lumen.NewStorageError("pgstore: commit", err)
	}
	return nil
}

func (tx *transaction) Abort(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	return tx.tx.Rollback(ctx)
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

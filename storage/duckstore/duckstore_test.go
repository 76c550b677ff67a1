package duckstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/catalog"
	"github.com/lumen-db/lumen/storage"
)

// newTestEngine opens an in-process DuckDB instance, the same ":memory:"
// instantiation the teacher's NewDuckDBClient uses in
// TestNewDuckDBClient_Disabled's companion cases, so these tests need no
// external database and no mock.
func newTestEngine(t *testing.T) storage.Engine {
	t.Helper()
	eng, closer, err := Open(lumen.DuckDBConfig{DBPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer() })
	return eng
}

func TestEngineCreateAppendScanDelete(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	cols := []catalog.ColumnDesc{
		{DataType: lumen.Int32Type(false), IsPrimary: true},
		{DataType: lumen.StringType(true)},
	}
	require.NoError(t, eng.CreateTable(ctx, catalog.TableId(1), catalog.SchemaId(1), "t", cols, []string{"a", "b"}, []int{0}))

	tbl, err := eng.GetTable(ctx, catalog.TableId(1))
	require.NoError(t, err)

	txn, err := tbl.Read(ctx)
	require.NoError(t, err)

	builder := array.NewDataChunkBuilder([]lumen.DataType{lumen.Int32Type(false), lumen.StringType(true)}, array.DefaultWindow)
	builder.PushRow([]lumen.Value{lumen.Int32Value(1), lumen.StringValue("hello")})
	builder.PushRow([]lumen.Value{lumen.Int32Value(2), lumen.NullValue()})
	chunk := builder.Take()
	require.NotNil(t, chunk)
	require.NoError(t, txn.Append(ctx, chunk))
	require.NoError(t, txn.Commit(ctx))

	txn, err = tbl.Read(ctx)
	require.NoError(t, err)
	it, err := txn.Scan(ctx, nil, nil, []catalog.ColumnId{1, 2}, true, true, nil)
	require.NoError(t, err)

	got, err := it.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Cardinality())
	rows := got.Rows()
	assert.Equal(t, int32(1), rows[0].At(0).Int32())
	assert.Equal(t, "hello", rows[0].At(1).String())
	assert.Equal(t, int32(2), rows[1].At(0).Int32())
	assert.True(t, rows[1].At(1).IsNull())

	rowid0 := rows[0].At(2).Int64()
	require.NoError(t, txn.Commit(ctx))

	txn, err = tbl.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.Delete(ctx, []storage.RowHandle{storage.RowHandle(rowid0)}))
	require.NoError(t, txn.Commit(ctx))

	txn, err = tbl.Read(ctx)
	require.NoError(t, err)
	it, err = txn.Scan(ctx, nil, nil, []catalog.ColumnId{1, 2}, true, false, nil)
	require.NoError(t, err)
	remaining, err := it.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, remaining)
	assert.Equal(t, 1, remaining.Cardinality())
	assert.Equal(t, int32(2), remaining.Rows()[0].At(0).Int32())
	require.NoError(t, txn.Commit(ctx))

	require.NoError(t, eng.DropTable(ctx, catalog.TableId(1)))
	_, err = eng.GetTable(ctx, catalog.TableId(1))
	require.Error(t, err)
}

func TestEngineUnknownTableErrors(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.GetTable(ctx, catalog.TableId(99))
	require.Error(t, err)

	err = eng.DropTable(ctx, catalog.TableId(99))
	require.Error(t, err)
}

func TestDuckdbTypeMapsEveryKind(t *testing.T) {
	assert.Equal(t, "BOOLEAN", duckdbType(lumen.BoolType(false)))
	assert.Equal(t, "SMALLINT", duckdbType(lumen.Int16Type(false)))
	assert.Equal(t, "INTEGER", duckdbType(lumen.Int32Type(false)))
	assert.Equal(t, "BIGINT", duckdbType(lumen.Int64Type(false)))
	assert.Equal(t, "DOUBLE", duckdbType(lumen.Float64Type(false)))
	assert.Equal(t, "DECIMAL(10,2)", duckdbType(lumen.DecimalType(10, 2, false)))
	assert.Equal(t, "VARCHAR", duckdbType(lumen.StringType(false)))
	assert.Equal(t, "BLOB", duckdbType(lumen.BlobType(false)))
	assert.Equal(t, "DATE", duckdbType(lumen.DateType(false)))
	assert.Equal(t, "TIMESTAMP", duckdbType(lumen.TimestampType(false)))
	assert.Equal(t, "DOUBLE[3]", duckdbType(lumen.VectorType(3, false)))
}

func TestQuoteIdentEscapesDoubleQuotes(t *testing.T) {
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
}

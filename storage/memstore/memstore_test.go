package memstore

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

func rowsChunk(t *testing.T, schema []lumen.DataType, rows [][]lumen.Value) *array.DataChunk {
	t.Helper()
	b := array.NewDataChunkBuilder(schema, 0)
	var chunks []*array.DataChunk
	for _, r := range rows {
		if c := b.PushRow(r); c != nil {
			chunks = append(chunks, c)
		}
	}
	if c := b.Take(); c != nil {
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 1, "test rows must fit in a single chunk")
	return chunks[0]
}

func newTestEngine(t *testing.T) (*Engine, catalog.TableId, []lumen.DataType) {
	t.Helper()
	schema := []lumen.DataType{lumen.Int32Type(false), lumen.StringType(true)}
	eng := New()
	const tableID catalog.TableId = 1
	err := eng.CreateTable(context.Background(), tableID, catalog.SchemaId(1), "widgets",
		[]catalog.ColumnDesc{{DataType: schema[0], IsPrimary: true}, {DataType: schema[1]}},
		[]string{"id", "name"}, []int{0})
	require.NoError(t, err)
	return eng, tableID, schema
}

func appendRows(t *testing.T, eng *Engine, tableID catalog.TableId, schema []lumen.DataType, rows [][]lumen.Value) {
	t.Helper()
	ctx := context.Background()
	tbl, err := eng.GetTable(ctx, tableID)
	require.NoError(t, err)
	tx, err := tbl.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Append(ctx, rowsChunk(t, schema, rows)))
	require.NoError(t, tx.Commit(ctx))
}

func TestCreateTableAndScanAll(t *testing.T) {
	eng, tableID, schema := newTestEngine(t)
	appendRows(t, eng, tableID, schema, [][]lumen.Value{
		{lumen.Int32Value(1), lumen.StringValue("a")},
		{lumen.Int32Value(2), lumen.StringValue("b")},
	})

	ctx := context.Background()
	tbl, err := eng.GetTable(ctx, tableID)
	require.NoError(t, err)
	tx, err := tbl.Read(ctx)
	require.NoError(t, err)

	it, err := tx.Scan(ctx, nil, nil, []catalog.ColumnId{1, 2}, false, false, nil)
	require.NoError(t, err)
	chunk, err := it.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, 2, chunk.Cardinality())

	next, err := it.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestScanKeyRangeFiltersByPrimaryKey(t *testing.T) {
	eng, tableID, schema := newTestEngine(t)
	appendRows(t, eng, tableID, schema, [][]lumen.Value{
		{lumen.Int32Value(1), lumen.StringValue("a")},
		{lumen.Int32Value(2), lumen.StringValue("b")},
		{lumen.Int32Value(3), lumen.StringValue("c")},
	})

	ctx := context.Background()
	tbl, err := eng.GetTable(ctx, tableID)
	require.NoError(t, err)
	tx, err := tbl.Read(ctx)
	require.NoError(t, err)

	it, err := tx.Scan(ctx, []lumen.Value{lumen.Int32Value(2)}, nil, []catalog.ColumnId{1}, true, false, nil)
	require.NoError(t, err)
	chunk, err := it.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, chunk)
	require.Equal(t, 2, chunk.Cardinality())
	assert.Equal(t, int32(2), chunk.ArrayAt(0).Get(0).Int32())
	assert.Equal(t, int32(3), chunk.ArrayAt(0).Get(1).Int32())
}

func TestScanWithRowHandlerAppendsTrailingColumn(t *testing.T) {
	eng, tableID, schema := newTestEngine(t)
	appendRows(t, eng, tableID, schema, [][]lumen.Value{
		{lumen.Int32Value(1), lumen.StringValue("a")},
	})

	ctx := context.Background()
	tbl, err := eng.GetTable(ctx, tableID)
	require.NoError(t, err)
	tx, err := tbl.Read(ctx)
	require.NoError(t, err)

	it, err := tx.Scan(ctx, nil, nil, []catalog.ColumnId{1}, false, true, nil)
	require.NoError(t, err)
	chunk, err := it.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, 2, chunk.ColumnCount())
}

func TestDeleteRemovesByRowHandle(t *testing.T) {
	eng, tableID, schema := newTestEngine(t)
	appendRows(t, eng, tableID, schema, [][]lumen.Value{
		{lumen.Int32Value(1), lumen.StringValue("a")},
		{lumen.Int32Value(2), lumen.StringValue("b")},
	})

	ctx := context.Background()
	tbl, err := eng.GetTable(ctx, tableID)
	require.NoError(t, err)

	// First pass: scan with row handles and capture the handle for id=1.
	tx1, err := tbl.Read(ctx)
	require.NoError(t, err)
	it, err := tx1.Scan(ctx, nil, nil, []catalog.ColumnId{1}, true, true, nil)
	require.NoError(t, err)
	chunk, err := it.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, chunk.Cardinality())
	handle := storage.RowHandle(chunk.ArrayAt(1).Get(0).Int64())
	require.NoError(t, tx1.Abort(ctx))

	// Second pass: delete that row and commit.
	tx2, err := tbl.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, tx2.Delete(ctx, []storage.RowHandle{handle}))
	require.NoError(t, tx2.Commit(ctx))

	tx3, err := tbl.Read(ctx)
	require.NoError(t, err)
	it3, err := tx3.Scan(ctx, nil, nil, []catalog.ColumnId{1}, true, false, nil)
	require.NoError(t, err)
	remaining, err := it3.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, remaining.Cardinality())
	assert.Equal(t, int32(2), remaining.ArrayAt(0).Get(0).Int32())
}

func TestAbortDiscardsAppend(t *testing.T) {
	eng, tableID, schema := newTestEngine(t)
	ctx := context.Background()
	tbl, err := eng.GetTable(ctx, tableID)
	require.NoError(t, err)

	tx, err := tbl.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Append(ctx, rowsChunk(t, schema, [][]lumen.Value{
		{lumen.Int32Value(9), lumen.StringValue("z")},
	})))
	require.NoError(t, tx.Abort(ctx))

	tx2, err := tbl.Read(ctx)
	require.NoError(t, err)
	it, err := tx2.Scan(ctx, nil, nil, []catalog.ColumnId{1}, false, false, nil)
	require.NoError(t, err)
	chunk, err := it.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, chunk)
}

func TestScanFilterDropsRows(t *testing.T) {
	eng, tableID, schema := newTestEngine(t)
	appendRows(t, eng, tableID, schema, [][]lumen.Value{
		{lumen.Int32Value(1), lumen.StringValue("a")},
		{lumen.Int32Value(2), lumen.StringValue("b")},
	})

	ctx := context.Background()
	tbl, err := eng.GetTable(ctx, tableID)
	require.NoError(t, err)
	tx, err := tbl.Read(ctx)
	require.NoError(t, err)

	keepOnlyTwo := func(chunk *array.DataChunk) (*array.Array, error) {
		mask := array.NewBuilder(lumen.BoolType(false))
		for i := 0; i < chunk.Cardinality(); i++ {
			v := lumen.BoolValue(chunk.ArrayAt(0).Get(i).Int32() == 2)
			mask.Push(&v)
		}
		return mask.Finish(), nil
	}

	it, err := tx.Scan(ctx, nil, nil, []catalog.ColumnId{1}, true, false, keepOnlyTwo)
	require.NoError(t, err)
	chunk, err := it.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, chunk)
	require.Equal(t, 1, chunk.Cardinality())
	assert.Equal(t, int32(2), chunk.ArrayAt(0).Get(0).Int32())
}

func TestDropTableThenGetTableFails(t *testing.T) {
	eng, tableID, _ := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, eng.DropTable(ctx, tableID))
	_, err := eng.GetTable(ctx, tableID)
	require.Error(t, err)
}

package array

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-db/lumen"
)

func TestDataChunkCardinalityAndColumns(t *testing.T) {
	v1, v2 := lumen.Int32Value(1), lumen.Int32Value(2)
	col := mustBuild(t, lumen.Int32Type(true), []*lumen.Value{&v1, &v2})
	chunk := NewDataChunk([]*Array{col})
	assert.Equal(t, 2, chunk.Cardinality())
	assert.Equal(t, 1, chunk.ColumnCount())
}

func TestDataChunkFilter(t *testing.T) {
	v1, v2, v3 := lumen.Int32Value(1), lumen.Int32Value(2), lumen.Int32Value(3)
	col := mustBuild(t, lumen.Int32Type(true), []*lumen.Value{&v1, &v2, &v3})
	chunk := NewDataChunk([]*Array{col})
	filtered := chunk.Filter([]bool{false, true, true})
	assert.Equal(t, 2, filtered.Cardinality())
	assert.Equal(t, int32(2), filtered.ArrayAt(0).Get(0).Int32())
}

func TestDataChunkRowsAndFromRows(t *testing.T) {
	v1, v2 := lumen.Int32Value(1), lumen.Int32Value(2)
	col := mustBuild(t, lumen.Int32Type(true), []*lumen.Value{&v1, &v2})
	chunk := NewDataChunk([]*Array{col})
	rows := chunk.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, int32(1), rows[0].At(0).Int32())

	rebuilt := FromRows(rows, []lumen.DataType{lumen.Int32Type(true)})
	assert.Equal(t, 2, rebuilt.Cardinality())
	assert.Equal(t, int32(2), rebuilt.ArrayAt(0).Get(1).Int32())
}

func TestDataChunkBuilderEmitsAtWindow(t *testing.T) {
	b := NewDataChunkBuilder([]lumen.DataType{lumen.Int32Type(true)}, 2)
	chunk := b.PushRow([]lumen.Value{lumen.Int32Value(1)})
	assert.Nil(t, chunk)
	chunk = b.PushRow([]lumen.Value{lumen.Int32Value(2)})
	require.NotNil(t, chunk)
	assert.Equal(t, 2, chunk.Cardinality())

	chunk = b.PushRow([]lumen.Value{lumen.Int32Value(3)})
	assert.Nil(t, chunk)
	final := b.Take()
	require.NotNil(t, final)
	assert.Equal(t, 1, final.Cardinality())
}

func TestDataChunkBuilderTakeEmptyReturnsNil(t *testing.T) {
	b := NewDataChunkBuilder([]lumen.DataType{lumen.Int32Type(true)}, 2)
	assert.Nil(t, b.Take())
}

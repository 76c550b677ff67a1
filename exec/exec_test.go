package exec

import (
	"context"
	"testing"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
)

// sliceOp replays a fixed, caller-chosen sequence of chunks. Tests use it to
// drive the same logical rows through an operator under different
// chunkings, since the volcano model promises an operator's result is
// independent of how its input happens to be batched (spec.md §4.2).
type sliceOp struct {
	chunks []*array.DataChunk
	pos    int
}

func newSliceOp(chunks []*array.DataChunk) *sliceOp {
	return &sliceOp{chunks: chunks}
}

func (s *sliceOp) Next(ctx context.Context) (*array.DataChunk, error) {
	if s.pos >= len(s.chunks) {
		return nil, nil
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

// mustInt32Chunk builds a single-column int32 chunk from vals.
func mustInt32Chunk(t *testing.T, vals []int32) *array.DataChunk {
	t.Helper()
	b := array.NewBuilder(lumen.Int32Type(false))
	for _, v := range vals {
		vv := lumen.Int32Value(v)
		b.Push(&vv)
	}
	return array.NewDataChunk([]*array.Array{b.Finish()})
}

// chunksOf splits a single-column int32 chunk's rows into a sequence of
// chunks sized by sizes, exhausting any remainder in one final chunk.
func chunksOf(t *testing.T, whole *array.DataChunk, schema []lumen.DataType, sizes []int) []*array.DataChunk {
	t.Helper()
	rows := whole.Rows()
	var out []*array.DataChunk
	i := 0
	for _, n := range sizes {
		end := i + n
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, array.FromRows(rows[i:end], schema))
		i = end
	}
	if i < len(rows) {
		out = append(out, array.FromRows(rows[i:], schema))
	}
	return out
}

// drainAllRows pulls every chunk from op and flattens their rows into one
// int32 slice, for comparing results across differently-chunked inputs.
func drainAllRows(t *testing.T, op Operator, col int) []int32 {
	t.Helper()
	ctx := context.Background()
	var out []int32
	for {
		chunk, err := op.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if chunk == nil {
			return out
		}
		arr := chunk.ArrayAt(col)
		for i := 0; i < arr.Len(); i++ {
			out = append(out, arr.Get(i).Int32())
		}
	}
}

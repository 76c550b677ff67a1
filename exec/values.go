package exec

import (
	"context"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/plan"
)

// valuesOp emits a literal row set, cast to its declared schema, batched to
// the standard window (spec.md §4.8's Values operator).
type valuesOp struct {
	exprs  *plan.ExprGraph
	rows   [][]plan.NodeID
	schema []lumen.DataType
	pos    int
}

func newValuesOp(exprs *plan.ExprGraph, rows [][]plan.NodeID, schema []lumen.DataType) *valuesOp {
	return &valuesOp{exprs: exprs, rows: rows, schema: schema}
}

func (v *valuesOp) Next(ctx context.Context) (*array.DataChunk, error) {
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	if v.pos >= len(v.rows) {
		return nil, nil
	}
	end := v.pos + array.DefaultWindow
	if end > len(v.rows) {
		end = len(v.rows)
	}
	b := array.NewDataChunkBuilder(v.schema, array.DefaultWindow)
	var chunk *array.DataChunk
	for _, row := range v.rows[v.pos:end] {
		vals, err := evalValuesRow(v.exprs, row, v.schema)
		if err != nil {
			return nil, err
		}
		if c := b.PushRow(vals); c != nil {
			chunk = c
		}
	}
	v.pos = end
	if chunk == nil {
		chunk = b.Take()
	}
	return chunk, nil
}

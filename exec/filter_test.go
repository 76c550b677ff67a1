package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/plan"
)

func gtPredicate(g *plan.ExprGraph, threshold int32) plan.NodeID {
	col := g.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: 0, TargetType: lumen.Int32Type(false)})
	lit := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: lumen.Int32Value(threshold)})
	return g.Add(plan.ExprNode{Kind: plan.ExprBinaryOp, BinOp: lumen.OpGt, Left: col, Right: lit})
}

// TestFilterOpIsIdempotent covers spec.md §8's filter idempotence property:
// re-filtering an already-filtered stream by the same predicate must yield
// exactly the same rows as filtering it once.
func TestFilterOpIsIdempotent(t *testing.T) {
	source := mustInt32Chunk(t, []int32{1, 2, 3, 4, 5})
	g := plan.NewExprGraph()
	pred := gtPredicate(g, 2)

	once := newFilterOp(newSliceOp([]*array.DataChunk{source}), g, pred, nil)
	onceResult := drainAllRows(t, once, 0)

	twice := newFilterOp(newFilterOp(newSliceOp([]*array.DataChunk{source}), g, pred, nil), g, pred, nil)
	twiceResult := drainAllRows(t, twice, 0)

	assert.Equal(t, onceResult, twiceResult)
	assert.Equal(t, []int32{3, 4, 5}, onceResult)
}

// TestFilterOpIsChunkingInvariant covers spec.md §8's chunk-splitting
// invariance property: the same logical rows fed through filterOp in
// differently-sized chunks must produce the same result.
func TestFilterOpIsChunkingInvariant(t *testing.T) {
	source := mustInt32Chunk(t, []int32{5, 1, 8, 2, 9, 3, 7, 4, 6})
	schema := []lumen.DataType{lumen.Int32Type(false)}
	g := plan.NewExprGraph()
	pred := gtPredicate(g, 4)

	whole := newFilterOp(newSliceOp([]*array.DataChunk{source}), g, pred, nil)
	wholeResult := drainAllRows(t, whole, 0)

	split := chunksOf(t, source, schema, []int{1, 3, 2})
	chunked := newFilterOp(newSliceOp(split), g, pred, nil)
	chunkedResult := drainAllRows(t, chunked, 0)

	assert.Equal(t, wholeResult, chunkedResult)
	assert.ElementsMatch(t, []int32{5, 8, 9, 7, 6}, chunkedResult)
}

package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/plan"
)

func twoColChunk(t *testing.T, keys, tags []int32) (*array.DataChunk, []lumen.DataType) {
	t.Helper()
	schema := []lumen.DataType{lumen.Int32Type(false), lumen.Int32Type(false)}
	keyB := array.NewBuilder(schema[0])
	tagB := array.NewBuilder(schema[1])
	for i := range keys {
		k, v := lumen.Int32Value(keys[i]), lumen.Int32Value(tags[i])
		keyB.Push(&k)
		tagB.Push(&v)
	}
	return array.NewDataChunk([]*array.Array{keyB.Finish(), tagB.Finish()}), schema
}

// TestOrderOpIsStable covers spec.md §8's sort stability property: rows
// sharing an order key must keep their original relative order. tags
// records each row's position before sorting.
func TestOrderOpIsStable(t *testing.T) {
	keys := []int32{2, 1, 2, 1, 2}
	tags := []int32{0, 1, 2, 3, 4}
	chunk, schema := twoColChunk(t, keys, tags)

	g := plan.NewExprGraph()
	keyExpr := g.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: 0, TargetType: lumen.Int32Type(false)})
	orderKeys := []plan.OrderKey{{Expr: keyExpr}}

	op := newOrderOp(newSliceOp([]*array.DataChunk{chunk}), g, orderKeys, schema, nil)
	ctx := context.Background()
	var sortedKeys, sortedTags []int32
	for {
		out, err := op.Next(ctx)
		require.NoError(t, err)
		if out == nil {
			break
		}
		for i := 0; i < out.Cardinality(); i++ {
			sortedKeys = append(sortedKeys, out.ArrayAt(0).Get(i).Int32())
			sortedTags = append(sortedTags, out.ArrayAt(1).Get(i).Int32())
		}
	}

	require.Equal(t, []int32{1, 1, 2, 2, 2}, sortedKeys)
	// within each key group, tags must appear in their original relative order.
	assert.Equal(t, []int32{1, 3}, sortedTags[:2])
	assert.Equal(t, []int32{0, 2, 4}, sortedTags[2:])
}

// TestTopNMatchesOrderThenLimit covers spec.md §8's equivalence between TopN
// and Order followed by Limit: TopN is an optimization of that composition,
// not a different operator semantically.
func TestTopNMatchesOrderThenLimit(t *testing.T) {
	keys := []int32{5, 3, 8, 1, 9, 2, 7, 4, 6}
	tags := append([]int32{}, keys...)
	chunk, schema := twoColChunk(t, keys, tags)

	g := plan.NewExprGraph()
	keyExpr := g.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: 0, TargetType: lumen.Int32Type(false)})
	orderKeys := []plan.OrderKey{{Expr: keyExpr}}
	offset := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: lumen.Int64Value(2)})
	limit := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: lumen.Int64Value(3)})

	ordered := newOrderOp(newSliceOp([]*array.DataChunk{chunk}), g, orderKeys, schema, nil)
	limited := newLimitOp(ordered, g, offset, limit)
	viaOrderLimit := drainAllRows(t, limited, 0)

	topN := newTopNOp(newSliceOp([]*array.DataChunk{chunk}), g, orderKeys, schema, offset, limit, nil)
	viaTopN := drainAllRows(t, topN, 0)

	assert.Equal(t, viaOrderLimit, viaTopN)
	assert.Equal(t, []int32{3, 4, 5}, viaTopN)
}

// TestTopNTiesMatchOrderThenLimit covers spec.md §8 Property 7 specifically
// for an input with tied order-by keys, where the cap-sized top-N heap
// holds every row and never evicts (container/heap.Pop alone is not a
// stable drain for ties): tags track each row's arrival order, so any
// reordering within the tie shows up in the result.
func TestTopNTiesMatchOrderThenLimit(t *testing.T) {
	keys := []int32{7, 7, 7}
	tags := []int32{0, 1, 2}
	chunk, schema := twoColChunk(t, keys, tags)

	g := plan.NewExprGraph()
	keyExpr := g.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: 0, TargetType: lumen.Int32Type(false)})
	orderKeys := []plan.OrderKey{{Expr: keyExpr}}
	offset := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: lumen.Int64Value(0)})
	limit := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: lumen.Int64Value(3)})

	ordered := newOrderOp(newSliceOp([]*array.DataChunk{chunk}), g, orderKeys, schema, nil)
	limited := newLimitOp(ordered, g, offset, limit)
	viaOrderLimit := drainAllRows(t, limited, 1)

	topN := newTopNOp(newSliceOp([]*array.DataChunk{chunk}), g, orderKeys, schema, offset, limit, nil)
	viaTopN := drainAllRows(t, topN, 1)

	assert.Equal(t, []int32{0, 1, 2}, viaOrderLimit)
	assert.Equal(t, viaOrderLimit, viaTopN)
}

package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-db/lumen"
)

func TestExprGraphReturnTypeConstant(t *testing.T) {
	g := NewExprGraph()
	id := g.Add(ExprNode{Kind: ExprConstant, Value: lumen.Int32Value(5)})
	assert.Equal(t, lumen.KindInt32, g.ReturnType(id).Kind())
}

func TestExprGraphReturnTypeBinaryOpComparison(t *testing.T) {
	g := NewExprGraph()
	left := g.Add(ExprNode{Kind: ExprConstant, Value: lumen.Int32Value(1)})
	right := g.Add(ExprNode{Kind: ExprConstant, Value: lumen.Int32Value(2)})
	eq := g.Add(ExprNode{Kind: ExprBinaryOp, BinOp: lumen.OpEq, Left: left, Right: right})
	assert.Equal(t, lumen.KindBool, g.ReturnType(eq).Kind())
}

func TestExprGraphReturnTypeArithmeticPromotion(t *testing.T) {
	g := NewExprGraph()
	left := g.Add(ExprNode{Kind: ExprConstant, Value: lumen.Int32Value(1)})
	right := g.Add(ExprNode{Kind: ExprConstant, Value: lumen.Float64Value(2)})
	add := g.Add(ExprNode{Kind: ExprBinaryOp, BinOp: lumen.OpAdd, Left: left, Right: right})
	assert.Equal(t, lumen.KindFloat64, g.ReturnType(add).Kind())
}

func TestExprGraphReplace(t *testing.T) {
	g := NewExprGraph()
	id := g.Add(ExprNode{Kind: ExprConstant, Value: lumen.Int32Value(1)})
	g.Replace(id, ExprNode{Kind: ExprConstant, Value: lumen.Int32Value(99)})
	assert.Equal(t, int32(99), g.Node(id).Value.Int32())
}

func TestExprGraphStringRendersBinaryOp(t *testing.T) {
	g := NewExprGraph()
	left := g.Add(ExprNode{Kind: ExprConstant, Value: lumen.Int32Value(1)})
	right := g.Add(ExprNode{Kind: ExprConstant, Value: lumen.Int32Value(2)})
	add := g.Add(ExprNode{Kind: ExprBinaryOp, BinOp: lumen.OpAdd, Left: left, Right: right})
	assert.Equal(t, "(1 + 2)", g.String(add))
}

func TestPlanGraphOutputSchemaProjection(t *testing.T) {
	exprs := NewExprGraph()
	c1 := exprs.Add(ExprNode{Kind: ExprConstant, Value: lumen.Int32Value(1)})
	c2 := exprs.Add(ExprNode{Kind: ExprConstant, Value: lumen.StringValue("x")})

	g := NewPlanGraph(exprs)
	proj := g.Add(PlanNode{Kind: PlanProjection, Exprs: []NodeID{c1, c2}})

	schema := g.OutputSchema(proj)
	require.Len(t, schema, 2)
	assert.Equal(t, lumen.KindInt32, schema[0].Kind())
	assert.Equal(t, lumen.KindString, schema[1].Kind())
}

func TestPlanGraphColumnsCollectsColumnRefs(t *testing.T) {
	exprs := NewExprGraph()
	col1 := exprs.Add(ExprNode{Kind: ExprColumnRef, ColID: 1, TargetType: lumen.Int32Type(false)})
	col2 := exprs.Add(ExprNode{Kind: ExprColumnRef, ColID: 2, TargetType: lumen.Int32Type(false)})
	pred := exprs.Add(ExprNode{Kind: ExprBinaryOp, BinOp: lumen.OpEq, Left: col1, Right: col2})

	g := NewPlanGraph(exprs)
	cols := make(map[uint32]bool)
	g.Columns(pred, cols)
	assert.True(t, cols[1])
	assert.True(t, cols[2])
	assert.Len(t, cols, 2)
}

func TestPlanGraphReplace(t *testing.T) {
	exprs := NewExprGraph()
	g := NewPlanGraph(exprs)
	id := g.Add(PlanNode{Kind: PlanDummy})
	g.Replace(id, PlanNode{Kind: PlanValues})
	assert.Equal(t, PlanValues, g.Node(id).Kind)
}

package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/plan"
)

func intArray(vals ...int32) *array.Array {
	b := array.NewBuilder(lumen.Int32Type(true))
	for _, v := range vals {
		vv := lumen.Int32Value(v)
		b.Push(&vv)
	}
	return b.Finish()
}

func strArray(vals ...string) *array.Array {
	b := array.NewBuilder(lumen.StringType(true))
	for _, v := range vals {
		vv := lumen.StringValue(v)
		b.Push(&vv)
	}
	return b.Finish()
}

func TestEvalInputRefReturnsChunkColumn(t *testing.T) {
	g := plan.NewExprGraph()
	ref := g.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: 0, TargetType: lumen.Int32Type(true)})
	chunk := array.NewDataChunk([]*array.Array{intArray(1, 2, 3)})

	out, err := Eval(g, ref, chunk, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), out.Get(1).Int32())
}

func TestEvalBinaryOpAdd(t *testing.T) {
	g := plan.NewExprGraph()
	a := g.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: 0, TargetType: lumen.Int32Type(false)})
	k := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: lumen.Int32Value(10)})
	add := g.Add(plan.ExprNode{Kind: plan.ExprBinaryOp, BinOp: lumen.OpAdd, Left: a, Right: k})
	chunk := array.NewDataChunk([]*array.Array{intArray(1, 2, 3)})

	out, err := Eval(g, add, chunk, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(11), out.Get(0).Int32())
	assert.Equal(t, int32(13), out.Get(2).Int32())
}

func TestEvalCastIntToString(t *testing.T) {
	g := plan.NewExprGraph()
	ref := g.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: 0, TargetType: lumen.Int32Type(false)})
	cast := g.Add(plan.ExprNode{Kind: plan.ExprCast, Child: ref, TargetType: lumen.StringType(false)})
	chunk := array.NewDataChunk([]*array.Array{intArray(42)})

	out, err := Eval(g, cast, chunk, nil)
	require.NoError(t, err)
	assert.Equal(t, "42", out.Get(0).String())
}

func TestEvalIsNull(t *testing.T) {
	g := plan.NewExprGraph()
	b := array.NewBuilder(lumen.Int32Type(true))
	v := lumen.Int32Value(1)
	b.Push(&v)
	b.Push(nil)
	col := b.Finish()
	ref := g.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: 0, TargetType: lumen.Int32Type(true)})
	isNull := g.Add(plan.ExprNode{Kind: plan.ExprIsNull, Child: ref})
	chunk := array.NewDataChunk([]*array.Array{col})

	out, err := Eval(g, isNull, chunk, nil)
	require.NoError(t, err)
	assert.False(t, out.Get(0).Bool())
	assert.True(t, out.Get(1).Bool())
}

func TestEvalBetween(t *testing.T) {
	g := plan.NewExprGraph()
	ref := g.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: 0, TargetType: lumen.Int32Type(false)})
	low := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: lumen.Int32Value(2)})
	high := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: lumen.Int32Value(4)})
	between := g.Add(plan.ExprNode{Kind: plan.ExprBetween, Child: ref, Low: low, High: high})
	chunk := array.NewDataChunk([]*array.Array{intArray(1, 3, 5)})

	out, err := Eval(g, between, chunk, nil)
	require.NoError(t, err)
	assert.False(t, out.Get(0).Bool())
	assert.True(t, out.Get(1).Bool())
	assert.False(t, out.Get(2).Bool())
}

func TestEvalInList(t *testing.T) {
	g := plan.NewExprGraph()
	ref := g.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: 0, TargetType: lumen.Int32Type(false)})
	a := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: lumen.Int32Value(1)})
	b := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: lumen.Int32Value(3)})
	in := g.Add(plan.ExprNode{Kind: plan.ExprIn, Child: ref, List: []plan.NodeID{a, b}})
	chunk := array.NewDataChunk([]*array.Array{intArray(1, 2, 3)})

	out, err := Eval(g, in, chunk, nil)
	require.NoError(t, err)
	assert.True(t, out.Get(0).Bool())
	assert.False(t, out.Get(1).Bool())
	assert.True(t, out.Get(2).Bool())
}

func TestEvalLikeWithWildcards(t *testing.T) {
	g := plan.NewExprGraph()
	ref := g.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: 0, TargetType: lumen.StringType(false)})
	pattern := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: lumen.StringValue("a%c_")})
	like := g.Add(plan.ExprNode{Kind: plan.ExprLike, Child: ref, Pattern: pattern})
	chunk := array.NewDataChunk([]*array.Array{strArray("abcd", "abce", "xyz")})

	out, err := Eval(g, like, chunk, nil)
	require.NoError(t, err)
	assert.True(t, out.Get(0).Bool())
	assert.True(t, out.Get(1).Bool())
	assert.False(t, out.Get(2).Bool())
}

func TestEvalLikeNegated(t *testing.T) {
	g := plan.NewExprGraph()
	ref := g.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: 0, TargetType: lumen.StringType(false)})
	pattern := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: lumen.StringValue("a%")})
	like := g.Add(plan.ExprNode{Kind: plan.ExprLike, Child: ref, Pattern: pattern, Negated: true})
	chunk := array.NewDataChunk([]*array.Array{strArray("abc", "xyz")})

	out, err := Eval(g, like, chunk, nil)
	require.NoError(t, err)
	assert.False(t, out.Get(0).Bool())
	assert.True(t, out.Get(1).Bool())
}

func TestEvalSearchedCase(t *testing.T) {
	g := plan.NewExprGraph()
	ref := g.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: 0, TargetType: lumen.Int32Type(false)})
	k := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: lumen.Int32Value(2)})
	cond := g.Add(plan.ExprNode{Kind: plan.ExprBinaryOp, BinOp: lumen.OpGt, Left: ref, Right: k})
	thenLit := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: lumen.StringValue("big")})
	elseLit := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: lumen.StringValue("small")})
	caseID := g.Add(plan.ExprNode{
		Kind:    plan.ExprCase,
		Operand: plan.Invalid,
		Whens:   []plan.WhenClause{{Condition: cond, Result: thenLit}},
		Else:    elseLit,
	})
	chunk := array.NewDataChunk([]*array.Array{intArray(1, 3)})

	out, err := Eval(g, caseID, chunk, nil)
	require.NoError(t, err)
	assert.Equal(t, "small", out.Get(0).String())
	assert.Equal(t, "big", out.Get(1).String())
}

func TestEvalFunctionUpperAndConcat(t *testing.T) {
	g := plan.NewExprGraph()
	ref := g.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: 0, TargetType: lumen.StringType(false)})
	upper := g.Add(plan.ExprNode{Kind: plan.ExprFunction, FuncName: "upper", Args: []plan.NodeID{ref}, TargetType: lumen.StringType(true)})
	chunk := array.NewDataChunk([]*array.Array{strArray("abc")})

	out, err := Eval(g, upper, chunk, nil)
	require.NoError(t, err)
	assert.Equal(t, "ABC", out.Get(0).String())

	lit := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: lumen.StringValue("!")})
	concat := g.Add(plan.ExprNode{Kind: plan.ExprFunction, FuncName: "concat", Args: []plan.NodeID{ref, lit}, TargetType: lumen.StringType(true)})
	out2, err := Eval(g, concat, chunk, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc!", out2.Get(0).String())
}

func TestEvalFunctionCoalesce(t *testing.T) {
	g := plan.NewExprGraph()
	b := array.NewBuilder(lumen.Int32Type(true))
	b.Push(nil)
	col := b.Finish()
	ref := g.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: 0, TargetType: lumen.Int32Type(true)})
	fallback := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: lumen.Int32Value(7)})
	coalesce := g.Add(plan.ExprNode{Kind: plan.ExprFunction, FuncName: "coalesce", Args: []plan.NodeID{ref, fallback}, TargetType: lumen.Int32Type(true)})
	chunk := array.NewDataChunk([]*array.Array{col})

	out, err := Eval(g, coalesce, chunk, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(7), out.Get(0).Int32())
}

func TestEvalFunctionUnknownErrors(t *testing.T) {
	g := plan.NewExprGraph()
	ref := g.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: 0, TargetType: lumen.Int32Type(false)})
	fn := g.Add(plan.ExprNode{Kind: plan.ExprFunction, FuncName: "not_a_real_fn", Args: []plan.NodeID{ref}})
	chunk := array.NewDataChunk([]*array.Array{intArray(1)})

	_, err := Eval(g, fn, chunk, nil)
	assert.Error(t, err)
}

func TestEvalExistsWithoutRunnerErrors(t *testing.T) {
	g := plan.NewExprGraph()
	existsID := g.Add(plan.ExprNode{Kind: plan.ExprExists, SubqueryID: 0, HasSubquery: true})
	chunk := array.NewDataChunk([]*array.Array{intArray(1)})

	_, err := Eval(g, existsID, chunk, nil)
	assert.Error(t, err)
}

type fakeRunner struct {
	chunk *array.DataChunk
}

func (f fakeRunner) Run(subqueryID int, outerRow array.Row) (*array.DataChunk, error) {
	return f.chunk, nil
}

func TestEvalExistsWithRunner(t *testing.T) {
	g := plan.NewExprGraph()
	existsID := g.Add(plan.ExprNode{Kind: plan.ExprExists, SubqueryID: 0, HasSubquery: true})
	chunk := array.NewDataChunk([]*array.Array{intArray(1, 2)})
	runner := fakeRunner{chunk: array.NewDataChunk([]*array.Array{intArray(9)})}

	out, err := Eval(g, existsID, chunk, runner)
	require.NoError(t, err)
	assert.True(t, out.Get(0).Bool())
	assert.True(t, out.Get(1).Bool())
}

func TestEvalListAssemblesChunk(t *testing.T) {
	g := plan.NewExprGraph()
	ref := g.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: 0, TargetType: lumen.Int32Type(false)})
	k := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: lumen.Int32Value(1)})
	chunk := array.NewDataChunk([]*array.Array{intArray(1, 2, 3)})

	out, err := EvalList(g, []plan.NodeID{ref, k}, chunk, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, out.ColumnCount())
	assert.Equal(t, 3, out.Cardinality())
}

func TestNewAggStateSumAndCount(t *testing.T) {
	sum, err := NewAggState(plan.AggSum, lumen.Int64Type(true))
	require.NoError(t, err)
	sum.Update(intArray(1, 2, 3))
	assert.Equal(t, int64(6), sum.Output().Int64())

	count, err := NewAggState(plan.AggCountStar, lumen.Int64Type(false))
	require.NoError(t, err)
	count.UpdateSingle(lumen.Int32Value(1))
	count.UpdateSingle(lumen.NullValue())
	assert.Equal(t, int64(2), count.Output().Int64())
}

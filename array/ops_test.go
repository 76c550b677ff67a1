package array

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-db/lumen"
)

func mustBuild(t *testing.T, dtype lumen.DataType, vals []*lumen.Value) *Array {
	t.Helper()
	b := NewBuilder(dtype)
	for _, v := range vals {
		b.Push(v)
	}
	return b.Finish()
}

func TestBinaryOpNullPropagation(t *testing.T) {
	v1 := lumen.Int32Value(1)
	a := mustBuild(t, lumen.Int32Type(true), []*lumen.Value{&v1, nil})
	b := mustBuild(t, lumen.Int32Type(true), []*lumen.Value{nil, &v1})

	out, err := BinaryOp(lumen.OpAdd, a, b)
	require.NoError(t, err)
	assert.True(t, out.IsNull(0))
	assert.True(t, out.IsNull(1))
}

func TestBinaryOpAddition(t *testing.T) {
	v1, v2 := lumen.Int32Value(3), lumen.Int32Value(4)
	a := mustBuild(t, lumen.Int32Type(true), []*lumen.Value{&v1})
	b := mustBuild(t, lumen.Int32Type(true), []*lumen.Value{&v2})
	out, err := BinaryOp(lumen.OpAdd, a, b)
	require.NoError(t, err)
	assert.Equal(t, int32(7), out.Get(0).Int32())
}

func TestBinaryOpThreeValuedAnd(t *testing.T) {
	trueV, falseV := lumen.BoolValue(true), lumen.BoolValue(false)
	a := mustBuild(t, lumen.BoolType(true), []*lumen.Value{&trueV, &falseV})
	b := mustBuild(t, lumen.BoolType(true), []*lumen.Value{nil, nil})
	out, err := BinaryOp(lumen.OpAnd, a, b)
	require.NoError(t, err)
	assert.True(t, out.IsNull(0))
	assert.False(t, out.IsNull(1))
	assert.False(t, out.Get(1).Bool())
}

func TestUnaryOpNeg(t *testing.T) {
	v := lumen.Int32Value(5)
	a := mustBuild(t, lumen.Int32Type(true), []*lumen.Value{&v, nil})
	out, err := UnaryOp(lumen.OpNeg, a)
	require.NoError(t, err)
	assert.Equal(t, int32(-5), out.Get(0).Int32())
	assert.True(t, out.IsNull(1))
}

func TestCastIntToFloat(t *testing.T) {
	v := lumen.Int32Value(5)
	a := mustBuild(t, lumen.Int32Type(true), []*lumen.Value{&v})
	out, err := Cast(a, lumen.Float64Type(true))
	require.NoError(t, err)
	assert.Equal(t, 5.0, out.Get(0).Float64())
}

func TestCastStringParseErrorPropagates(t *testing.T) {
	v := lumen.StringValue("nope")
	a := mustBuild(t, lumen.StringType(true), []*lumen.Value{&v})
	_, err := Cast(a, lumen.Int32Type(true))
	require.Error(t, err)
}

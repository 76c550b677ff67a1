package lumen

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataTypeString(t *testing.T) {
	assert.Equal(t, "BIGINT", Int64Type(false).String())
	assert.Equal(t, "DECIMAL(10,2)", DecimalType(10, 2, false).String())
	assert.Equal(t, "VECTOR(F64,3)", VectorType(3, false).String())
}

func TestDataTypeEqualIgnoresNullable(t *testing.T) {
	assert.True(t, Int32Type(true).Equal(Int32Type(false)))
	assert.False(t, Int32Type(false).Equal(Int64Type(false)))
	assert.True(t, DecimalType(5, 2, false).Equal(DecimalType(5, 2, true)))
	assert.False(t, DecimalType(5, 2, false).Equal(DecimalType(5, 1, false)))
}

func TestDataTypeUnionNumericLattice(t *testing.T) {
	u, ok := Int16Type(false).Union(Int32Type(false))
	require.True(t, ok)
	assert.Equal(t, KindInt32, u.Kind())

	u, ok = Int64Type(false).Union(Float64Type(false))
	require.True(t, ok)
	assert.Equal(t, KindFloat64, u.Kind())

	u, ok = Float64Type(false).Union(DecimalType(10, 2, false))
	require.True(t, ok)
	assert.Equal(t, KindDecimal, u.Kind())
}

func TestDataTypeUnionNullAbsorption(t *testing.T) {
	u, ok := NullType().Union(Int32Type(false))
	require.True(t, ok)
	assert.Equal(t, KindInt32, u.Kind())
	assert.True(t, u.Nullable())
}

func TestDataTypeUnionDatePlusInterval(t *testing.T) {
	u, ok := DateType(false).Union(IntervalType(false))
	require.True(t, ok)
	assert.Equal(t, KindDate, u.Kind())
}

func TestDataTypeUnionIncompatible(t *testing.T) {
	_, ok := StringType(false).Union(Int32Type(false))
	assert.False(t, ok)
}

func TestDataTypeUnionNullablePropagates(t *testing.T) {
	u, ok := Int32Type(false).Union(Int32Type(true))
	require.True(t, ok)
	assert.True(t, u.Nullable())
}

func TestValueDataTypeInference(t *testing.T) {
	assert.Equal(t, KindInt64, Int64Value(5).DataType().Kind())
	assert.Equal(t, KindDecimal, DecimalValue(Decimal{Unscaled: 150, Scale: 2}).DataType().Kind())
	assert.Equal(t, 3, VectorValue([]float64{1, 2, 3}).DataType().VectorLen())
}

func TestDecimalString(t *testing.T) {
	assert.Equal(t, "1.50", Decimal{Unscaled: 150, Scale: 2}.String())
	assert.Equal(t, "-1.50", Decimal{Unscaled: -150, Scale: 2}.String())
	assert.Equal(t, "0.05", Decimal{Unscaled: 5, Scale: 2}.String())
}

func TestCompareTotalNullsSortLast(t *testing.T) {
	assert.Equal(t, -1, CompareTotal(Int32Value(1), NullValue()))
	assert.Equal(t, 1, CompareTotal(NullValue(), Int32Value(1)))
	assert.Equal(t, 0, CompareTotal(NullValue(), NullValue()))
}

func TestCompareTotalCrossKindNumeric(t *testing.T) {
	assert.Equal(t, 0, CompareTotal(Int32Value(3), Float64Value(3.0)))
	assert.Equal(t, -1, CompareTotal(Int16Value(2), Int64Value(3)))
}

func TestCompareTotalNaNOrdersDeterministically(t *testing.T) {
	nan := Float64Value(math.NaN())
	inf := Float64Value(math.Inf(1))
	assert.Equal(t, 1, CompareTotal(nan, inf))
	assert.Equal(t, 0, CompareTotal(nan, Float64Value(math.NaN())))
}

func TestHashTotalConsistentWithCompareTotal(t *testing.T) {
	a := Int32Value(7)
	b := Float64Value(7.0)
	require.Equal(t, 0, CompareTotal(a, b))
	assert.Equal(t, HashTotal(a), HashTotal(b))
}

func TestEvalBinaryThreeValuedAnd(t *testing.T) {
	v, err := EvalBinary(OpAnd, BoolValue(true), NullValue())
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	v, err = EvalBinary(OpAnd, BoolValue(false), NullValue())
	require.NoError(t, err)
	assert.False(t, v.IsNull())
	assert.False(t, v.Bool())
}

func TestEvalBinaryThreeValuedOr(t *testing.T) {
	v, err := EvalBinary(OpOr, BoolValue(true), NullValue())
	require.NoError(t, err)
	assert.False(t, v.IsNull())
	assert.True(t, v.Bool())

	v, err = EvalBinary(OpOr, BoolValue(false), NullValue())
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestEvalBinaryIntegerDivideByZeroErrors(t *testing.T) {
	_, err := EvalBinary(OpDiv, Int32Value(4), Int32Value(0))
	require.Error(t, err)
	var lumenErr *Error
	require.ErrorAs(t, err, &lumenErr)
	assert.Equal(t, ErrorTypeConvert, lumenErr.Type)
}

func TestEvalBinaryFloatDivideByZeroIsInf(t *testing.T) {
	v, err := EvalBinary(OpDiv, Float64Value(4), Float64Value(0))
	require.NoError(t, err)
	assert.True(t, math.IsInf(v.Float64(), 1))
}

func TestEvalBinaryDatePlusInterval(t *testing.T) {
	v, err := EvalBinary(OpAdd, DateValue(100), IntervalValue(Interval{Days: 5}))
	require.NoError(t, err)
	assert.Equal(t, int32(105), v.Date())
}

func TestEvalBinaryComparisonNullPropagates(t *testing.T) {
	v, err := EvalBinary(OpEq, NullValue(), Int32Value(1))
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestEvalUnaryNegAndNot(t *testing.T) {
	v, err := EvalUnary(OpNeg, Int32Value(5))
	require.NoError(t, err)
	assert.Equal(t, int32(-5), v.Int32())

	v, err = EvalUnary(OpNot, BoolValue(true))
	require.NoError(t, err)
	assert.False(t, v.Bool())
}

func TestCastStringToIntOverflow(t *testing.T) {
	_, err := Cast(StringValue("99999"), Int16Type(false))
	require.Error(t, err)
	var lumenErr *Error
	require.ErrorAs(t, err, &lumenErr)
	assert.Equal(t, CodeConvertOverflow, lumenErr.Code)
}

func TestCastStringParseFailureIsTypedError(t *testing.T) {
	_, err := Cast(StringValue("not-a-number"), Int32Type(false))
	require.Error(t, err)
	var lumenErr *Error
	require.ErrorAs(t, err, &lumenErr)
	assert.Equal(t, CodeConvertParseError, lumenErr.Code)
}

func TestCastNullPassesThrough(t *testing.T) {
	v, err := Cast(NullValue(), Int32Type(true))
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestErrorWithCauseAndSpanChaining(t *testing.T) {
	cause := assert.AnError
	err := NewBindNotFoundError("table", "orders").WithCause(cause).WithSpan(3, 7)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "3:7")
	assert.Equal(t, ErrorTypeBind, err.Type)
	assert.Equal(t, CodeBindNotFound, err.Code)
}

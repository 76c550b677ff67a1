package array

import "github.com/lumen-db/lumen"

// BinaryOp returns a new array with null propagation: if either input
// element is null, the output element is null, with three-valued-logic
// overrides for AND/OR. Null propagation and three-valued logic are
// implemented exactly once, in lumen.EvalBinary — this is the array-level
// dispatch spec.md §9 requires, not a second implementation of it.
func BinaryOp(op lumen.BinaryOp, a, b *Array) (*Array, error) {
	if a.Len() != b.Len() {
		panic("array: BinaryOp operands must have matching length")
	}
	resultType, err := binaryResultType(op, a.DataType(), b.DataType())
	if err != nil {
		return nil, err
	}
	out := NewBuilder(resultType)
	for i := 0; i < a.Len(); i++ {
		v, err := lumen.EvalBinary(op, a.Get(i), b.Get(i))
		if err != nil {
			return nil, err
		}
		out.Push(&v)
	}
	return out.Finish(), nil
}

// UnaryOp returns a new array obtained by applying op element-wise.
func UnaryOp(op lumen.UnaryOp, a *Array) (*Array, error) {
	out := NewBuilder(a.DataType())
	for i := 0; i < a.Len(); i++ {
		v, err := lumen.EvalUnary(op, a.Get(i))
		if err != nil {
			return nil, err
		}
		out.Push(&v)
	}
	return out.Finish(), nil
}

// Cast constructs a new array by casting every element to target. Parse
// failures for string→number casts yield a typed error, not a null
// (spec.md §4.2).
func Cast(a *Array, target lumen.DataType) (*Array, error) {
	out := NewBuilder(target)
	for i := 0; i < a.Len(); i++ {
		v, err := lumen.Cast(a.Get(i), target)
		if err != nil {
			return nil, err
		}
		out.Push(&v)
	}
	return out.Finish(), nil
}

func binaryResultType(op lumen.BinaryOp, left, right lumen.DataType) (lumen.DataType, error) {
	switch op {
	case lumen.OpEq, lumen.OpNeq, lumen.OpLt, lumen.OpLe, lumen.OpGt, lumen.OpGe,
		lumen.OpAnd, lumen.OpOr:
		return lumen.BoolType(left.Nullable() || right.Nullable()), nil
	case lumen.OpConcat:
		return lumen.StringType(left.Nullable() || right.Nullable()), nil
	default:
		u, ok := left.Union(right)
		if !ok {
			return lumen.DataType{}, lumen.NewNoBinaryOpError(string(op), left, right)
		}
		return u, nil
	}
}

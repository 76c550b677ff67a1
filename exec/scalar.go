package exec

import (
	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/eval"
	"github.com/lumen-db/lumen/plan"
)

// oneRowChunk is a reusable cardinality-1 chunk used to evaluate expressions
// that carry no InputRef of their own — Values literals, LIMIT/OFFSET
// counts — through the same Eval path every other expression goes through,
// rather than a separate constant-folding mini-evaluator.
var oneRowChunk = func() *array.DataChunk {
	b := array.NewBuilder(lumen.BoolType(false))
	v := lumen.BoolValue(true)
	b.Push(&v)
	return array.NewDataChunk([]*array.Array{b.Finish()})
}()

// evalValuesRow evaluates one Values row (exprs with no input dependency)
// against exprSchema, casting each cell to its declared column type.
func evalValuesRow(g *plan.ExprGraph, row []plan.NodeID, schema []lumen.DataType) ([]lumen.Value, error) {
	chunk, err := eval.EvalList(g, row, oneRowChunk, nil)
	if err != nil {
		return nil, err
	}
	vals := make([]lumen.Value, len(schema))
	for i := range schema {
		v := chunk.ArrayAt(i).Get(0)
		cast, err := lumen.Cast(v, schema[i])
		if err != nil {
			return nil, err
		}
		vals[i] = cast
	}
	return vals, nil
}

// evalScalarInt evaluates a constant-foldable integer expression (a LIMIT or
// OFFSET count). id == plan.Invalid means "absent"; the caller supplies the
// default to use in that case.
func evalScalarInt(g *plan.ExprGraph, id plan.NodeID, absent int) (int, error) {
	if id == plan.Invalid {
		return absent, nil
	}
	arr, err := eval.Eval(g, id, oneRowChunk, nil)
	if err != nil {
		return 0, err
	}
	v := arr.Get(0)
	if v.IsNull() {
		return absent, nil
	}
	switch v.Kind() {
	case lumen.KindInt64:
		return int(v.Int64()), nil
	case lumen.KindInt32:
		return int(v.Int32()), nil
	case lumen.KindInt16:
		return int(v.Int16()), nil
	default:
		return 0, lumen.NewInvalidTypeError("exec: LIMIT/OFFSET must be an integer")
	}
}

// boolMask evaluates a predicate against chunk and reduces it to a Go bool
// slice using spec.md §4.8's Filter semantics: true passes, null and false
// drop the row.
func boolMask(g *plan.ExprGraph, predicate plan.NodeID, chunk *array.DataChunk, sub eval.SubqueryRunner) ([]bool, error) {
	result, err := eval.Eval(g, predicate, chunk, sub)
	if err != nil {
		return nil, err
	}
	mask := make([]bool, result.Len())
	for i := range mask {
		mask[i] = !result.IsNull(i) && result.Get(i).Bool()
	}
	return mask, nil
}

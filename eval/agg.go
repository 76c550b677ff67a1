package eval

import (
	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/plan"
)

// NewAggState constructs the per-call accumulator for an aggregate call,
// per spec.md §4.7's state variants. avg never reaches here: the binder
// rewrites it to sum(x)/count(x) at bind time (spec.md §4.6's aggregate
// lowering rule), so AggKind has no Avg member at all.
func NewAggState(kind plan.AggKind, returnType lumen.DataType) (array.AggState, error) {
	switch kind {
	case plan.AggCountStar:
		return array.NewCountStarState(), nil
	case plan.AggCount:
		return array.NewCountState(), nil
	case plan.AggSum:
		return array.NewSumState(returnType), nil
	case plan.AggMin:
		return array.NewMinState(), nil
	case plan.AggMax:
		return array.NewMaxState(), nil
	case plan.AggFirst:
		return array.NewFirstState(), nil
	case plan.AggLast:
		return array.NewLastState(), nil
	default:
		return nil, lumen.NewPlanInvalidError("eval: unsupported aggregate kind")
	}
}

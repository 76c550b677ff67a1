package exec

import (
	"context"

	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/eval"
	"github.com/lumen-db/lumen/plan"
)

// projectionOp evaluates a fixed list of expressions per input chunk,
// producing an output chunk of the same cardinality (spec.md §4.8's
// eval_list applied per chunk). Aliases affect only the output schema's
// column names, which this package's chunks don't carry — they're resolved
// earlier, by the binder, into catalog/result metadata.
type projectionOp struct {
	child Operator
	exprs *plan.ExprGraph
	list  []plan.NodeID
	sub   eval.SubqueryRunner
}

func newProjectionOp(child Operator, exprs *plan.ExprGraph, list []plan.NodeID, sub eval.SubqueryRunner) *projectionOp {
	return &projectionOp{child: child, exprs: exprs, list: list, sub: sub}
}

func (p *projectionOp) Next(ctx context.Context) (*array.DataChunk, error) {
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	chunk, err := p.child.Next(ctx)
	if err != nil || chunk == nil {
		return chunk, err
	}
	return eval.EvalList(p.exprs, p.list, chunk, p.sub)
}

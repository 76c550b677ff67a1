package exec

import (
	"context"

	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/eval"
	"github.com/lumen-db/lumen/plan"
)

// filterOp evaluates its predicate per chunk; true passes a row through,
// null and false drop it (spec.md §4.8). Order-preserving. Empty result
// chunks are skipped rather than forwarded, so a consumer never sees a
// zero-cardinality chunk that isn't end of stream.
type filterOp struct {
	child     Operator
	exprs     *plan.ExprGraph
	predicate plan.NodeID
	sub       eval.SubqueryRunner
}

func newFilterOp(child Operator, exprs *plan.ExprGraph, predicate plan.NodeID, sub eval.SubqueryRunner) *filterOp {
	return &filterOp{child: child, exprs: exprs, predicate: predicate, sub: sub}
}

func (f *filterOp) Next(ctx context.Context) (*array.DataChunk, error) {
	for {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		chunk, err := f.child.Next(ctx)
		if err != nil || chunk == nil {
			return chunk, err
		}
		mask, err := boolMask(f.exprs, f.predicate, chunk, f.sub)
		if err != nil {
			return nil, err
		}
		filtered := chunk.Filter(mask)
		if filtered.Cardinality() > 0 {
			return filtered, nil
		}
	}
}

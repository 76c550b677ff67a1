package exec

import (
	"context"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/eval"
	"github.com/lumen-db/lumen/plan"
)

// newAggState builds the accumulator for one bound aggregate call, per
// spec.md §4.5's closed set of aggregate kinds (avg is rewritten to
// sum/count by the binder before it ever reaches here).
func newAggState(g *plan.ExprGraph, call plan.AggCallRef) array.AggState {
	n := g.Node(call.Expr)
	switch n.AggKind {
	case plan.AggCountStar:
		return array.NewCountStarState()
	case plan.AggCount:
		return array.NewCountState()
	case plan.AggSum:
		return array.NewSumState(g.ReturnType(call.Expr))
	case plan.AggMin:
		return array.NewMinState()
	case plan.AggMax:
		return array.NewMaxState()
	case plan.AggFirst:
		return array.NewFirstState()
	case plan.AggLast:
		return array.NewLastState()
	default:
		return array.NewCountStarState()
	}
}

// aggArg evaluates an aggregate call's single argument against chunk.
// count(*) has no AggArgs at all, in which case the result only needs its
// cardinality, which the caller already has from chunk itself.
func aggArg(g *plan.ExprGraph, call plan.AggCallRef, chunk *array.DataChunk, sub eval.SubqueryRunner) (*array.Array, error) {
	n := g.Node(call.Expr)
	if len(n.AggArgs) == 0 {
		return nil, nil
	}
	return eval.Eval(g, n.AggArgs[0], chunk, sub)
}

// simpleAggOp computes a single group (no GROUP BY clause): it drains its
// child fully and emits exactly one output row, even over zero input rows
// (spec.md §4.8's Aggregate operator; count(*) over an empty table is 0,
// not an empty result set).
type simpleAggOp struct {
	child Operator
	exprs *plan.ExprGraph
	aggs  []plan.AggCallRef
	sub   eval.SubqueryRunner

	states []array.AggState
	done   bool
	ran    bool
}

func newSimpleAggOp(child Operator, exprs *plan.ExprGraph, aggs []plan.AggCallRef, sub eval.SubqueryRunner) *simpleAggOp {
	states := make([]array.AggState, len(aggs))
	for i, a := range aggs {
		states[i] = newAggState(exprs, a)
	}
	return &simpleAggOp{child: child, exprs: exprs, aggs: aggs, sub: sub, states: states}
}

func (s *simpleAggOp) Next(ctx context.Context) (*array.DataChunk, error) {
	if s.done {
		return nil, nil
	}
	if !s.ran {
		for {
			if err := checkCancel(ctx); err != nil {
				return nil, err
			}
			chunk, err := s.child.Next(ctx)
			if err != nil {
				return nil, err
			}
			if chunk == nil {
				break
			}
			for i, a := range s.aggs {
				arg, err := aggArg(s.exprs, a, chunk, s.sub)
				if err != nil {
					return nil, err
				}
				if arg == nil {
					arg = constLenArray(chunk.Cardinality())
				}
				s.states[i].Update(arg)
			}
		}
		s.ran = true
	}
	s.done = true
	schema := make([]lumen.DataType, len(s.aggs))
	row := make([]lumen.Value, len(s.aggs))
	for i, a := range s.aggs {
		schema[i] = s.exprs.ReturnType(a.Expr)
		row[i] = s.states[i].Output()
	}
	b := array.NewDataChunkBuilder(schema, 1)
	chunk := b.PushRow(row)
	if chunk == nil {
		chunk = b.Take()
	}
	return chunk, nil
}

// aggBucket is one GROUP BY key tuple's accumulators. Go map equality on a
// slice of lumen.Value isn't available (Value isn't comparable), so buckets
// are chained under a HashTotal-based bucket number and disambiguated with
// CompareTotal, the same total order the rest of the engine uses for
// GROUP BY/ORDER BY equality.
type aggBucket struct {
	key    []lumen.Value
	states []array.AggState
}

// hashAggOp computes one group per distinct GROUP BY key tuple (spec.md
// §4.8: unordered output — a later Order operator is responsible for any
// requested ordering). Buckets are chained on a combined hash of the key
// values to tolerate hash collisions without requiring Value to be a valid
// Go map key.
type hashAggOp struct {
	child     Operator
	exprs     *plan.ExprGraph
	groupKeys []plan.NodeID
	aggs      []plan.AggCallRef
	sub       eval.SubqueryRunner

	buckets map[uint64][]*aggBucket
	order   []*aggBucket
	ran     bool
	pos     int
}

func newHashAggOp(child Operator, exprs *plan.ExprGraph, groupKeys []plan.NodeID, aggs []plan.AggCallRef, sub eval.SubqueryRunner) *hashAggOp {
	return &hashAggOp{
		child: child, exprs: exprs, groupKeys: groupKeys, aggs: aggs, sub: sub,
		buckets: make(map[uint64][]*aggBucket),
	}
}

func combineHash(h uint64, v lumen.Value) uint64 {
	// FNV-1a style fold, seeded to separate a key tuple's hash from a bare
	// lumen.HashTotal(v) of its first column.
	const prime = 1099511628211
	h ^= lumen.HashTotal(v)
	h *= prime
	return h
}

func sameKey(a, b []lumen.Value) bool {
	for i := range a {
		if lumen.CompareTotal(a[i], b[i]) != 0 {
			return false
		}
	}
	return true
}

func (h *hashAggOp) bucketFor(key []lumen.Value) *aggBucket {
	hv := uint64(14695981039346656037)
	for _, v := range key {
		hv = combineHash(hv, v)
	}
	for _, b := range h.buckets[hv] {
		if sameKey(b.key, key) {
			return b
		}
	}
	states := make([]array.AggState, len(h.aggs))
	for i, a := range h.aggs {
		states[i] = newAggState(h.exprs, a)
	}
	b := &aggBucket{key: key, states: states}
	h.buckets[hv] = append(h.buckets[hv], b)
	h.order = append(h.order, b)
	return b
}

func (h *hashAggOp) run(ctx context.Context) error {
	for {
		if err := checkCancel(ctx); err != nil {
			return err
		}
		chunk, err := h.child.Next(ctx)
		if err != nil {
			return err
		}
		if chunk == nil {
			return nil
		}
		keyCols := make([]*array.Array, len(h.groupKeys))
		for i, k := range h.groupKeys {
			col, err := eval.Eval(h.exprs, k, chunk, h.sub)
			if err != nil {
				return err
			}
			keyCols[i] = col
		}
		argCols := make([]*array.Array, len(h.aggs))
		for i, a := range h.aggs {
			arg, err := aggArg(h.exprs, a, chunk, h.sub)
			if err != nil {
				return err
			}
			argCols[i] = arg
		}
		for r := 0; r < chunk.Cardinality(); r++ {
			key := make([]lumen.Value, len(keyCols))
			for i, col := range keyCols {
				key[i] = col.Get(r)
			}
			b := h.bucketFor(key)
			for i, col := range argCols {
				if col == nil {
					b.states[i].UpdateSingle(lumen.NullValue())
				} else {
					b.states[i].UpdateSingle(col.Get(r))
				}
			}
		}
	}
}

func (h *hashAggOp) Next(ctx context.Context) (*array.DataChunk, error) {
	if !h.ran {
		if err := h.run(ctx); err != nil {
			return nil, err
		}
		h.ran = true
	}
	if h.pos >= len(h.order) {
		return nil, nil
	}
	end := h.pos + array.DefaultWindow
	if end > len(h.order) {
		end = len(h.order)
	}
	schema := make([]lumen.DataType, len(h.groupKeys)+len(h.aggs))
	for i, k := range h.groupKeys {
		schema[i] = h.exprs.ReturnType(k)
	}
	for i, a := range h.aggs {
		schema[len(h.groupKeys)+i] = h.exprs.ReturnType(a.Expr)
	}
	b := array.NewDataChunkBuilder(schema, array.DefaultWindow)
	var chunk *array.DataChunk
	for _, bucket := range h.order[h.pos:end] {
		row := make([]lumen.Value, 0, len(schema))
		row = append(row, bucket.key...)
		for _, st := range bucket.states {
			row = append(row, st.Output())
		}
		if c := b.PushRow(row); c != nil {
			chunk = c
		}
	}
	h.pos = end
	if chunk == nil {
		chunk = b.Take()
	}
	return chunk, nil
}

// constLenArray builds an all-true boolean array of length n, used to feed
// count(*)'s Update(a *Array) (which only reads a.Len()) when the call has
// no AggArgs to evaluate.
func constLenArray(n int) *array.Array {
	b := array.NewBuilder(lumen.BoolType(false))
	v := lumen.BoolValue(true)
	b.PushN(n, &v)
	return b.Finish()
}

package exec

import (
	"context"
	"sort"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/eval"
	"github.com/lumen-db/lumen/plan"
)

// drainAll pulls every chunk from child and concatenates them into one
// chunk using the row-view/FromRows round trip, the same technique
// storage/memstore's scan merge uses. ORDER BY has no streaming
// implementation in spec.md §4.8 — the whole input must be seen before the
// first output row can be produced.
func drainAll(ctx context.Context, child Operator, schema []lumen.DataType) (*array.DataChunk, error) {
	var rows []array.Row
	for {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		chunk, err := child.Next(ctx)
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			break
		}
		rows = append(rows, chunk.Rows()...)
	}
	return array.FromRows(rows, schema), nil
}

// orderOp buffers its entire input, sorts it by OrderKeys using the
// engine's total ordering, and streams the result back out in windows.
type orderOp struct {
	child  Operator
	exprs  *plan.ExprGraph
	keys   []plan.OrderKey
	schema []lumen.DataType
	sub    eval.SubqueryRunner

	sorted *array.DataChunk
	ready  bool
	pos    int
}

func newOrderOp(child Operator, exprs *plan.ExprGraph, keys []plan.OrderKey, schema []lumen.DataType, sub eval.SubqueryRunner) *orderOp {
	return &orderOp{child: child, exprs: exprs, keys: keys, schema: schema, sub: sub}
}

// sortPermutation evaluates each order key once against the whole merged
// chunk and returns a row permutation satisfying all keys in priority
// order, most-significant first.
func sortPermutation(exprs *plan.ExprGraph, keys []plan.OrderKey, chunk *array.DataChunk, sub eval.SubqueryRunner) ([]int, error) {
	keyCols := make([]*array.Array, len(keys))
	for i, k := range keys {
		col, err := eval.Eval(exprs, k.Expr, chunk, sub)
		if err != nil {
			return nil, err
		}
		keyCols[i] = col
	}
	perm := make([]int, chunk.Cardinality())
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		ra, rb := perm[a], perm[b]
		for i, k := range keys {
			c := lumen.CompareTotal(keyCols[i].Get(ra), keyCols[i].Get(rb))
			if k.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	return perm, nil
}

func applyPermutation(chunk *array.DataChunk, perm []int, schema []lumen.DataType) *array.DataChunk {
	all := chunk.Rows()
	rows := make([]array.Row, len(perm))
	for i, p := range perm {
		rows[i] = all[p]
	}
	return array.FromRows(rows, schema)
}

func (o *orderOp) Next(ctx context.Context) (*array.DataChunk, error) {
	if !o.ready {
		merged, err := drainAll(ctx, o.child, o.schema)
		if err != nil {
			return nil, err
		}
		perm, err := sortPermutation(o.exprs, o.keys, merged, o.sub)
		if err != nil {
			return nil, err
		}
		o.sorted = applyPermutation(merged, perm, o.schema)
		o.ready = true
	}
	if o.pos >= o.sorted.Cardinality() {
		return nil, nil
	}
	end := o.pos + array.DefaultWindow
	if end > o.sorted.Cardinality() {
		end = o.sorted.Cardinality()
	}
	chunk := o.sorted.Slice(o.pos, end)
	o.pos = end
	return chunk, nil
}

// limitOp skips Offset rows and passes through at most Limit rows after
// that, across chunk boundaries; Limit/Offset of plan.Invalid mean "no
// bound" and "0" respectively (spec.md §4.8's Limit operator).
type limitOp struct {
	child  Operator
	exprs  *plan.ExprGraph
	offset plan.NodeID
	limit  plan.NodeID

	resolved bool
	toSkip   int
	toTake   int // -1 means unbounded
	done     bool
}

func newLimitOp(child Operator, exprs *plan.ExprGraph, offset, limit plan.NodeID) *limitOp {
	return &limitOp{child: child, exprs: exprs, offset: offset, limit: limit}
}

func (l *limitOp) resolve() error {
	off, err := evalScalarInt(l.exprs, l.offset, 0)
	if err != nil {
		return err
	}
	lim, err := evalScalarInt(l.exprs, l.limit, -1)
	if err != nil {
		return err
	}
	l.toSkip = off
	l.toTake = lim
	l.resolved = true
	return nil
}

func (l *limitOp) Next(ctx context.Context) (*array.DataChunk, error) {
	if !l.resolved {
		if err := l.resolve(); err != nil {
			return nil, err
		}
	}
	if l.done || l.toTake == 0 {
		return nil, nil
	}
	for {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		chunk, err := l.child.Next(ctx)
		if err != nil || chunk == nil {
			l.done = true
			return chunk, err
		}
		n := chunk.Cardinality()
		if l.toSkip >= n {
			l.toSkip -= n
			continue
		}
		start := l.toSkip
		l.toSkip = 0
		end := n
		if l.toTake >= 0 && start+l.toTake < end {
			end = start + l.toTake
		}
		out := chunk.Slice(start, end)
		if l.toTake >= 0 {
			l.toTake -= out.Cardinality()
			if l.toTake == 0 {
				l.done = true
			}
		}
		if out.Cardinality() == 0 {
			continue
		}
		return out, nil
	}
}

// topNOp keeps the offset+limit smallest rows by OrderKeys in a bounded
// max-heap, discarding a candidate the instant it can't possibly make the
// final window, then emits the surviving rows sorted (spec.md §4.8's
// TopN: equivalent to Order followed by Limit but without buffering the
// whole input).
type topNOp struct {
	child  Operator
	exprs  *plan.ExprGraph
	keys   []plan.OrderKey
	schema []lumen.DataType
	sub    eval.SubqueryRunner
	offset plan.NodeID
	limit  plan.NodeID

	heap *topNHeap

	ready bool
	out   *array.DataChunk
	pos   int
}

func newTopNOp(child Operator, exprs *plan.ExprGraph, keys []plan.OrderKey, schema []lumen.DataType, offset, limit plan.NodeID, sub eval.SubqueryRunner) *topNOp {
	return &topNOp{child: child, exprs: exprs, keys: keys, schema: schema, offset: offset, limit: limit, sub: sub}
}

func (t *topNOp) less(a, b []lumen.Value) bool {
	for i, k := range t.keys {
		c := lumen.CompareTotal(a[i], b[i])
		if k.Desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
	}
	return false
}

func (t *topNOp) run(ctx context.Context) error {
	off, err := evalScalarInt(t.exprs, t.offset, 0)
	if err != nil {
		return err
	}
	lim, err := evalScalarInt(t.exprs, t.limit, -1)
	if err != nil {
		return err
	}
	if lim < 0 {
		// Unbounded TopN degrades to a full Order.
		merged, err := drainAll(ctx, t.child, t.schema)
		if err != nil {
			return err
		}
		perm, err := sortPermutation(t.exprs, t.keys, merged, t.sub)
		if err != nil {
			return err
		}
		t.out = applyPermutation(merged, perm, t.schema)
		return nil
	}
	t.heap = newTopNHeap(off+lim, t.less)
	for {
		if err := checkCancel(ctx); err != nil {
			return err
		}
		chunk, err := t.child.Next(ctx)
		if err != nil {
			return err
		}
		if chunk == nil {
			break
		}
		keyCols := make([]*array.Array, len(t.keys))
		for i, k := range t.keys {
			col, err := eval.Eval(t.exprs, k.Expr, chunk, t.sub)
			if err != nil {
				return err
			}
			keyCols[i] = col
		}
		rows := chunk.Rows()
		for r := 0; r < chunk.Cardinality(); r++ {
			key := make([]lumen.Value, len(keyCols))
			for i, col := range keyCols {
				key[i] = col.Get(r)
			}
			values := make([]lumen.Value, len(t.schema))
			for c := range t.schema {
				values[c] = rows[r].At(c)
			}
			t.heap.offer(key, values)
		}
	}
	sorted := t.heap.drain()
	if off >= len(sorted) {
		sorted = nil
	} else {
		sorted = sorted[off:]
	}
	rowVals := make([][]lumen.Value, len(sorted))
	for i, e := range sorted {
		rowVals[i] = e.values
	}
	t.out = buildChunk(rowVals, t.schema)
	return nil
}

func (t *topNOp) Next(ctx context.Context) (*array.DataChunk, error) {
	if !t.ready {
		if err := t.run(ctx); err != nil {
			return nil, err
		}
		t.ready = true
	}
	if t.pos >= t.out.Cardinality() {
		return nil, nil
	}
	end := t.pos + array.DefaultWindow
	if end > t.out.Cardinality() {
		end = t.out.Cardinality()
	}
	chunk := t.out.Slice(t.pos, end)
	t.pos = end
	return chunk, nil
}

// buildChunk materializes a chunk directly from value rows, for operators
// (TopN's heap drain) that produce owned []lumen.Value rows rather than
// views into an existing chunk.
func buildChunk(rows [][]lumen.Value, schema []lumen.DataType) *array.DataChunk {
	b := array.NewDataChunkBuilder(schema, array.DefaultWindow)
	var chunk *array.DataChunk
	for _, row := range rows {
		if c := b.PushRow(row); c != nil {
			chunk = mergeTwo(chunk, c, schema)
		}
	}
	if rem := b.Take(); rem != nil {
		chunk = mergeTwo(chunk, rem, schema)
	}
	if chunk == nil {
		return array.FromRows(nil, schema)
	}
	return chunk
}

func mergeTwo(a, b *array.DataChunk, schema []lumen.DataType) *array.DataChunk {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	rows := append(append([]array.Row{}, a.Rows()...), b.Rows()...)
	return array.FromRows(rows, schema)
}

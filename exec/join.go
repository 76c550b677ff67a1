package exec

import (
	"context"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/eval"
	"github.com/lumen-db/lumen/plan"
)

// constValueArray builds an n-long array holding the same value in every
// slot, used to broadcast one row's column across a batch of rows it is
// being joined against.
func constValueArray(v lumen.Value, n int, dt lumen.DataType) *array.Array {
	b := array.NewBuilder(dt)
	b.PushN(n, &v)
	return b.Finish()
}

func nullRow(schema []lumen.DataType) []lumen.Value {
	row := make([]lumen.Value, len(schema))
	for i := range row {
		row[i] = lumen.NullValue()
	}
	return row
}

func rowValues(r array.Row, n int) []lumen.Value {
	vals := make([]lumen.Value, n)
	for i := range vals {
		vals[i] = r.At(i)
	}
	return vals
}

func concatSchema(left, right []lumen.DataType) []lumen.DataType {
	out := make([]lumen.DataType, 0, len(left)+len(right))
	out = append(out, left...)
	out = append(out, right...)
	return out
}

// nestedLoopJoinOp evaluates JoinOn by broadcasting each left row across
// the whole right side (spec.md §4.8's NestedLoopJoin); it supports Inner,
// LeftOuter and Cross directly, the join kinds that don't require a
// symmetric unmatched-row pass over both sides. FullOuter/RightOuter are
// only offered through the hash and sort-merge variants, which track
// match state on both sides naturally.
type nestedLoopJoinOp struct {
	left, right        Operator
	exprs              *plan.ExprGraph
	predicate          plan.NodeID
	kind               plan.JoinKind
	leftSchema, rightSchema []lumen.DataType
	sub                eval.SubqueryRunner

	out   *array.DataChunk
	ready bool
	pos   int
}

func newNestedLoopJoinOp(left, right Operator, exprs *plan.ExprGraph, predicate plan.NodeID, kind plan.JoinKind, leftSchema, rightSchema []lumen.DataType, sub eval.SubqueryRunner) *nestedLoopJoinOp {
	return &nestedLoopJoinOp{left: left, right: right, exprs: exprs, predicate: predicate, kind: kind, leftSchema: leftSchema, rightSchema: rightSchema, sub: sub}
}

func (j *nestedLoopJoinOp) run(ctx context.Context) error {
	leftAll, err := drainAll(ctx, j.left, j.leftSchema)
	if err != nil {
		return err
	}
	rightAll, err := drainAll(ctx, j.right, j.rightSchema)
	if err != nil {
		return err
	}
	combinedSchema := concatSchema(j.leftSchema, j.rightSchema)
	rightCard := rightAll.Cardinality()
	leftRows := leftAll.Rows()
	rightRows := rightAll.Rows()

	var outRows [][]lumen.Value
	for i := range leftRows {
		if err := checkCancel(ctx); err != nil {
			return err
		}
		leftVals := rowValues(leftRows[i], len(j.leftSchema))

		var mask []bool
		if j.predicate == plan.Invalid || j.kind == plan.JoinCross {
			mask = make([]bool, rightCard)
			for k := range mask {
				mask[k] = true
			}
		} else {
			cols := make([]*array.Array, 0, len(combinedSchema))
			for c, dt := range j.leftSchema {
				cols = append(cols, constValueArray(leftVals[c], rightCard, dt))
			}
			for c := 0; c < len(j.rightSchema); c++ {
				cols = append(cols, rightAll.ArrayAt(c))
			}
			combined := array.NewDataChunk(cols)
			mask, err = boolMask(j.exprs, j.predicate, combined, j.sub)
			if err != nil {
				return err
			}
		}

		matched := false
		for k, ok := range mask {
			if !ok {
				continue
			}
			matched = true
			row := append(append([]lumen.Value{}, leftVals...), rowValues(rightRows[k], len(j.rightSchema))...)
			outRows = append(outRows, row)
		}
		if !matched && j.kind == plan.JoinLeftOuter {
			row := append(append([]lumen.Value{}, leftVals...), nullRow(j.rightSchema)...)
			outRows = append(outRows, row)
		}
	}
	j.out = buildChunk(outRows, combinedSchema)
	return nil
}

func (j *nestedLoopJoinOp) Next(ctx context.Context) (*array.DataChunk, error) {
	if !j.ready {
		if err := j.run(ctx); err != nil {
			return nil, err
		}
		j.ready = true
	}
	if j.pos >= j.out.Cardinality() {
		return nil, nil
	}
	end := j.pos + array.DefaultWindow
	if end > j.out.Cardinality() {
		end = j.out.Cardinality()
	}
	chunk := j.out.Slice(j.pos, end)
	j.pos = end
	return chunk, nil
}

// keyHash folds a join key tuple into one hash with combineHash; hashJoinOp
// buckets rows by it and compares the keys themselves separately.
func keyHash(key []lumen.Value) uint64 {
	h := uint64(14695981039346656037)
	for _, v := range key {
		h = combineHash(h, v)
	}
	return h
}

// equalJoinKey compares two equi-join key tuples with null-propagating SQL
// equality (spec.md §3): a null component means "unknown" and never matches
// anything, including another null. This differs from CompareTotal's
// null-equals-null grouping order, which exec/agg.go's sameKey uses for
// GROUP BY — join-key matching and group-key bucketing are different
// operations that must not share a null rule.
func equalJoinKey(a, b []lumen.Value) bool {
	for i := range a {
		if a[i].IsNull() || b[i].IsNull() {
			return false
		}
		if lumen.CompareTotal(a[i], b[i]) != 0 {
			return false
		}
	}
	return true
}

// hashJoinOp builds a hash table on the left side's equi-join keys and
// probes it with the right side's, supporting all four join kinds by
// tracking which rows on each side were matched at least once (spec.md
// §4.8's HashJoin).
type hashJoinOp struct {
	left, right             Operator
	exprs                   *plan.ExprGraph
	leftKeys, rightKeys     []plan.NodeID
	kind                    plan.JoinKind
	leftSchema, rightSchema []lumen.DataType
	sub                     eval.SubqueryRunner

	out   *array.DataChunk
	ready bool
	pos   int
}

func newHashJoinOp(left, right Operator, exprs *plan.ExprGraph, leftKeys, rightKeys []plan.NodeID, kind plan.JoinKind, leftSchema, rightSchema []lumen.DataType, sub eval.SubqueryRunner) *hashJoinOp {
	return &hashJoinOp{left: left, right: right, exprs: exprs, leftKeys: leftKeys, rightKeys: rightKeys, kind: kind, leftSchema: leftSchema, rightSchema: rightSchema, sub: sub}
}

func (j *hashJoinOp) run(ctx context.Context) error {
	leftAll, err := drainAll(ctx, j.left, j.leftSchema)
	if err != nil {
		return err
	}
	rightAll, err := drainAll(ctx, j.right, j.rightSchema)
	if err != nil {
		return err
	}
	combinedSchema := concatSchema(j.leftSchema, j.rightSchema)
	leftRows := leftAll.Rows()
	rightRows := rightAll.Rows()

	leftKeyCols := make([]*array.Array, len(j.leftKeys))
	for i, k := range j.leftKeys {
		col, err := eval.Eval(j.exprs, k, leftAll, j.sub)
		if err != nil {
			return err
		}
		leftKeyCols[i] = col
	}
	rightKeyCols := make([]*array.Array, len(j.rightKeys))
	for i, k := range j.rightKeys {
		col, err := eval.Eval(j.exprs, k, rightAll, j.sub)
		if err != nil {
			return err
		}
		rightKeyCols[i] = col
	}

	buckets := make(map[uint64][]int) // hash -> left row indices
	keyOf := func(cols []*array.Array, row int) []lumen.Value {
		key := make([]lumen.Value, len(cols))
		for i, c := range cols {
			key[i] = c.Get(row)
		}
		return key
	}
	leftKeys := make([][]lumen.Value, len(leftRows))
	for i := range leftRows {
		leftKeys[i] = keyOf(leftKeyCols, i)
		buckets[keyHash(leftKeys[i])] = append(buckets[keyHash(leftKeys[i])], i)
	}

	matchedLeft := make([]bool, len(leftRows))
	var outRows [][]lumen.Value

	for r := range rightRows {
		if err := checkCancel(ctx); err != nil {
			return err
		}
		rkey := keyOf(rightKeyCols, r)
		rightVals := rowValues(rightRows[r], len(j.rightSchema))
		matchedRight := false
		for _, li := range buckets[keyHash(rkey)] {
			if !equalJoinKey(leftKeys[li], rkey) {
				continue
			}
			matchedRight = true
			matchedLeft[li] = true
			leftVals := rowValues(leftRows[li], len(j.leftSchema))
			outRows = append(outRows, append(append([]lumen.Value{}, leftVals...), rightVals...))
		}
		if !matchedRight && (j.kind == plan.JoinRightOuter || j.kind == plan.JoinFullOuter) {
			outRows = append(outRows, append(nullRow(j.leftSchema), rightVals...))
		}
	}

	if j.kind == plan.JoinLeftOuter || j.kind == plan.JoinFullOuter {
		for li := range leftRows {
			if matchedLeft[li] {
				continue
			}
			leftVals := rowValues(leftRows[li], len(j.leftSchema))
			outRows = append(outRows, append(append([]lumen.Value{}, leftVals...), nullRow(j.rightSchema)...))
		}
	}

	j.out = buildChunk(outRows, combinedSchema)
	return nil
}

func (j *hashJoinOp) Next(ctx context.Context) (*array.DataChunk, error) {
	if !j.ready {
		if err := j.run(ctx); err != nil {
			return nil, err
		}
		j.ready = true
	}
	if j.pos >= j.out.Cardinality() {
		return nil, nil
	}
	end := j.pos + array.DefaultWindow
	if end > j.out.Cardinality() {
		end = j.out.Cardinality()
	}
	chunk := j.out.Slice(j.pos, end)
	j.pos = end
	return chunk, nil
}

// sortMergeJoinOp assumes both children are already delivered in ascending
// order of their respective equi-join keys; the optimizer only selects it
// when it can prove that statically (both sides are an Order/TopN node
// whose leading keys match, see isSortedOn in the optimizer package), so a
// plan this operator drives always satisfies the precondition. It supports
// all four join kinds by grouping each side's matching-key run before
// cross-multiplying the two runs together.
type sortMergeJoinOp struct {
	left, right             Operator
	exprs                   *plan.ExprGraph
	leftKeys, rightKeys     []plan.NodeID
	kind                    plan.JoinKind
	leftSchema, rightSchema []lumen.DataType
	sub                     eval.SubqueryRunner

	out   *array.DataChunk
	ready bool
	pos   int
}

func newSortMergeJoinOp(left, right Operator, exprs *plan.ExprGraph, leftKeys, rightKeys []plan.NodeID, kind plan.JoinKind, leftSchema, rightSchema []lumen.DataType, sub eval.SubqueryRunner) *sortMergeJoinOp {
	return &sortMergeJoinOp{left: left, right: right, exprs: exprs, leftKeys: leftKeys, rightKeys: rightKeys, kind: kind, leftSchema: leftSchema, rightSchema: rightSchema, sub: sub}
}

func (j *sortMergeJoinOp) run(ctx context.Context) error {
	leftAll, err := drainAll(ctx, j.left, j.leftSchema)
	if err != nil {
		return err
	}
	rightAll, err := drainAll(ctx, j.right, j.rightSchema)
	if err != nil {
		return err
	}
	combinedSchema := concatSchema(j.leftSchema, j.rightSchema)
	leftRows := leftAll.Rows()
	rightRows := rightAll.Rows()

	leftKeyVals, err := keyValsOf(j.exprs, j.leftKeys, leftAll, j.sub)
	if err != nil {
		return err
	}
	rightKeyVals, err := keyValsOf(j.exprs, j.rightKeys, rightAll, j.sub)
	if err != nil {
		return err
	}

	var outRows [][]lumen.Value
	li, ri := 0, 0
	for li < len(leftRows) && ri < len(rightRows) {
		if err := checkCancel(ctx); err != nil {
			return err
		}
		c := compareKeys(leftKeyVals[li], rightKeyVals[ri])
		switch {
		case c < 0:
			if j.kind == plan.JoinLeftOuter || j.kind == plan.JoinFullOuter {
				leftVals := rowValues(leftRows[li], len(j.leftSchema))
				outRows = append(outRows, append(append([]lumen.Value{}, leftVals...), nullRow(j.rightSchema)...))
			}
			li++
		case c > 0:
			if j.kind == plan.JoinRightOuter || j.kind == plan.JoinFullOuter {
				rightVals := rowValues(rightRows[ri], len(j.rightSchema))
				outRows = append(outRows, append(nullRow(j.leftSchema), rightVals...))
			}
			ri++
		default:
			lEnd, rEnd := li, ri
			for lEnd < len(leftRows) && compareKeys(leftKeyVals[lEnd], leftKeyVals[li]) == 0 {
				lEnd++
			}
			for rEnd < len(rightRows) && compareKeys(rightKeyVals[rEnd], rightKeyVals[ri]) == 0 {
				rEnd++
			}
			if keyHasNull(leftKeyVals[li]) {
				// CompareTotal groups null keys together for ordering, but
				// null-propagating SQL equality (spec.md §3) never matches a
				// null key against anything, including another null — this
				// run produces only outer-unmatched rows, never a join pair.
				if j.kind == plan.JoinLeftOuter || j.kind == plan.JoinFullOuter {
					for a := li; a < lEnd; a++ {
						leftVals := rowValues(leftRows[a], len(j.leftSchema))
						outRows = append(outRows, append(append([]lumen.Value{}, leftVals...), nullRow(j.rightSchema)...))
					}
				}
				if j.kind == plan.JoinRightOuter || j.kind == plan.JoinFullOuter {
					for b := ri; b < rEnd; b++ {
						rightVals := rowValues(rightRows[b], len(j.rightSchema))
						outRows = append(outRows, append(nullRow(j.leftSchema), rightVals...))
					}
				}
			} else {
				for a := li; a < lEnd; a++ {
					leftVals := rowValues(leftRows[a], len(j.leftSchema))
					for b := ri; b < rEnd; b++ {
						rightVals := rowValues(rightRows[b], len(j.rightSchema))
						outRows = append(outRows, append(append([]lumen.Value{}, leftVals...), rightVals...))
					}
				}
			}
			li, ri = lEnd, rEnd
		}
	}
	for ; li < len(leftRows) && (j.kind == plan.JoinLeftOuter || j.kind == plan.JoinFullOuter); li++ {
		leftVals := rowValues(leftRows[li], len(j.leftSchema))
		outRows = append(outRows, append(append([]lumen.Value{}, leftVals...), nullRow(j.rightSchema)...))
	}
	for ; ri < len(rightRows) && (j.kind == plan.JoinRightOuter || j.kind == plan.JoinFullOuter); ri++ {
		rightVals := rowValues(rightRows[ri], len(j.rightSchema))
		outRows = append(outRows, append(nullRow(j.leftSchema), rightVals...))
	}

	j.out = buildChunk(outRows, combinedSchema)
	return nil
}

func keyValsOf(exprs *plan.ExprGraph, keys []plan.NodeID, chunk *array.DataChunk, sub eval.SubqueryRunner) ([][]lumen.Value, error) {
	cols := make([]*array.Array, len(keys))
	for i, k := range keys {
		col, err := eval.Eval(exprs, k, chunk, sub)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}
	out := make([][]lumen.Value, chunk.Cardinality())
	for r := range out {
		row := make([]lumen.Value, len(cols))
		for i, c := range cols {
			row[i] = c.Get(r)
		}
		out[r] = row
	}
	return out, nil
}

func compareKeys(a, b []lumen.Value) int {
	for i := range a {
		if c := lumen.CompareTotal(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

func keyHasNull(key []lumen.Value) bool {
	for _, v := range key {
		if v.IsNull() {
			return true
		}
	}
	return false
}

func (j *sortMergeJoinOp) Next(ctx context.Context) (*array.DataChunk, error) {
	if !j.ready {
		if err := j.run(ctx); err != nil {
			return nil, err
		}
		j.ready = true
	}
	if j.pos >= j.out.Cardinality() {
		return nil, nil
	}
	end := j.pos + array.DefaultWindow
	if end > j.out.Cardinality() {
		end = j.out.Cardinality()
	}
	chunk := j.out.Slice(j.pos, end)
	j.pos = end
	return chunk, nil
}

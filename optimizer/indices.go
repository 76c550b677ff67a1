package optimizer

import (
	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/internal/util"
	"github.com/lumen-db/lumen/plan"
)

// splitConjuncts flattens a top-level AND chain into its leaf conjuncts
// (e.g. `a AND b AND c` → [a, b, c]); a non-AND expression returns itself
// as the sole element.
func splitConjuncts(g *plan.ExprGraph, id plan.NodeID) []plan.NodeID {
	if id == plan.Invalid {
		return nil
	}
	n := g.Node(id)
	if n.Kind != plan.ExprBinaryOp || n.BinOp != lumen.OpAnd {
		return []plan.NodeID{id}
	}
	return append(splitConjuncts(g, n.Left), splitConjuncts(g, n.Right)...)
}

// joinConjuncts is splitConjuncts's inverse: it rebuilds a left-associated
// AND chain from a conjunct list, or plan.Invalid for an empty list.
func joinConjuncts(g *plan.ExprGraph, cs []plan.NodeID) plan.NodeID {
	if len(cs) == 0 {
		return plan.Invalid
	}
	out := cs[0]
	for _, c := range cs[1:] {
		out = g.Add(plan.ExprNode{Kind: plan.ExprBinaryOp, BinOp: lumen.OpAnd, Left: out, Right: c})
	}
	return out
}

// addIndices collects the Index of every non-correlated (TableID==0)
// ExprInputRef reachable from id, used to decide which side of a join (or
// which trailing scan columns) an expression actually needs.
func addIndices(g *plan.ExprGraph, id plan.NodeID, into *util.Set[int]) {
	if id == plan.Invalid {
		return
	}
	n := g.Node(id)
	switch n.Kind {
	case plan.ExprInputRef:
		if n.TableID == 0 {
			into.Add(n.Index)
		}
	case plan.ExprBinaryOp:
		addIndices(g, n.Left, into)
		addIndices(g, n.Right, into)
	case plan.ExprUnaryOp:
		addIndices(g, n.Child, into)
	case plan.ExprCast, plan.ExprIsNull, plan.ExprAlias:
		addIndices(g, n.Child, into)
	case plan.ExprLike:
		addIndices(g, n.Child, into)
		addIndices(g, n.Pattern, into)
		addIndices(g, n.Escape, into)
	case plan.ExprBetween:
		addIndices(g, n.Child, into)
		addIndices(g, n.Low, into)
		addIndices(g, n.High, into)
	case plan.ExprIn:
		addIndices(g, n.Child, into)
		for _, e := range n.List {
			addIndices(g, e, into)
		}
	case plan.ExprFunction:
		for _, a := range n.Args {
			addIndices(g, a, into)
		}
	case plan.ExprAggCall:
		for _, a := range n.AggArgs {
			addIndices(g, a, into)
		}
	case plan.ExprCase:
		addIndices(g, n.Operand, into)
		for _, w := range n.Whens {
			addIndices(g, w.Condition, into)
			addIndices(g, w.Result, into)
		}
		addIndices(g, n.Else, into)
	}
	// ExprExists/ExprMax1Row/correlated ExprIn reference a subquery by
	// SubqueryID, a separate PlanGraph subtree rather than a child
	// expression of this node — any column it needs from the current
	// frame is a correlated (TableID>0) InputRef inside that subtree, not
	// reachable (or needed) from here.
}

// shiftInputRefs adds delta to every non-correlated InputRef.Index
// reachable from id, in place. Used when a predicate is pushed from a
// join's merged frame down to one side's own local frame.
func shiftInputRefs(g *plan.ExprGraph, id plan.NodeID, delta int) {
	if id == plan.Invalid {
		return
	}
	n := g.Node(id)
	switch n.Kind {
	case plan.ExprInputRef:
		if n.TableID == 0 {
			n.Index += delta
			g.Replace(id, n)
		}
	case plan.ExprBinaryOp:
		shiftInputRefs(g, n.Left, delta)
		shiftInputRefs(g, n.Right, delta)
	case plan.ExprUnaryOp:
		shiftInputRefs(g, n.Child, delta)
	case plan.ExprCast, plan.ExprIsNull, plan.ExprAlias:
		shiftInputRefs(g, n.Child, delta)
	case plan.ExprLike:
		shiftInputRefs(g, n.Child, delta)
		shiftInputRefs(g, n.Pattern, delta)
		shiftInputRefs(g, n.Escape, delta)
	case plan.ExprBetween:
		shiftInputRefs(g, n.Child, delta)
		shiftInputRefs(g, n.Low, delta)
		shiftInputRefs(g, n.High, delta)
	case plan.ExprIn:
		shiftInputRefs(g, n.Child, delta)
		for _, e := range n.List {
			shiftInputRefs(g, e, delta)
		}
	case plan.ExprFunction:
		for _, a := range n.Args {
			shiftInputRefs(g, a, delta)
		}
	case plan.ExprAggCall:
		for _, a := range n.AggArgs {
			shiftInputRefs(g, a, delta)
		}
	case plan.ExprCase:
		shiftInputRefs(g, n.Operand, delta)
		for _, w := range n.Whens {
			shiftInputRefs(g, w.Condition, delta)
			shiftInputRefs(g, w.Result, delta)
		}
		shiftInputRefs(g, n.Else, delta)
	}
}

func minMax(idx *util.Set[int]) (min, max int) {
	first := true
	for _, i := range idx.ToSlice() {
		if first {
			min, max = i, i
			first = false
			continue
		}
		if i < min {
			min = i
		}
		if i > max {
			max = i
		}
	}
	return min, max
}

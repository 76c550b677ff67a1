package optimizer

import (
	"github.com/lumen-db/lumen/internal/util"
	"github.com/lumen-db/lumen/plan"
)

// pushFilter is the predicate-pushdown-through-operator rule (spec.md §4.6):
// each conjunct of a Filter's predicate is pushed as far down childID's
// subtree as it can go, crossing Projection/Order/Limit/TopN transparently
// and crossing a Join boundary into whichever side wholly owns it (or, for
// a Cross join, after first trying to fold a join-spanning equi-conjunct
// into the join's ON — see convertCrossToInnerEqui). It returns the
// conjuncts that could not be pushed any further, to remain in a Filter at
// the call site, and the possibly-rewritten subtree rooted at childID.
func pushFilter(g *plan.PlanGraph, conjuncts []plan.NodeID, childID plan.PlanID) ([]plan.NodeID, plan.PlanID) {
	if len(conjuncts) == 0 {
		return nil, childID
	}
	child := g.Node(childID)
	switch child.Kind {
	case plan.PlanOrder, plan.PlanLimit, plan.PlanTopN:
		remaining, newSub := pushFilter(g, conjuncts, child.Children[0])
		child.Children[0] = newSub
		g.Replace(childID, child)
		return remaining, childID

	case plan.PlanProjection:
		return pushThroughProjection(g, conjuncts, childID, child)

	case plan.PlanJoin:
		return pushThroughJoin(g, conjuncts, childID, child)
	}
	return conjuncts, childID
}

// pushThroughProjection pushes conjuncts whose every referenced output
// column is a bare pass-through of one child column (a plain InputRef, or
// an InputRef under an Alias), remapping each such conjunct's indices into
// the child's own frame before recursing. A conjunct that touches any
// computed (non-pass-through) projected column stays above the Projection
// — rewriting it in terms of the child's columns would mean inverting an
// arbitrary expression, which isn't always possible.
func pushThroughProjection(g *plan.PlanGraph, conjuncts []plan.NodeID, childID plan.PlanID, child plan.PlanNode) ([]plan.NodeID, plan.PlanID) {
	remap := make(map[int]int, len(child.Exprs))
	for i, e := range child.Exprs {
		if src, ok := passthroughIndex(g.Exprs, e); ok {
			remap[i] = src
		}
	}

	var stay, pushable []plan.NodeID
	for _, c := range conjuncts {
		idx := util.NewSet[int]()
		addIndices(g.Exprs, c, idx)
		if idx.Size() == 0 || !allMapped(idx, remap) {
			stay = append(stay, c)
			continue
		}
		pushable = append(pushable, remapCopy(g.Exprs, c, remap))
	}
	if len(pushable) > 0 {
		remaining, newSub := pushFilter(g, pushable, child.Children[0])
		child.Children[0] = wrapFilter(g, newSub, joinConjuncts(g.Exprs, remaining))
		g.Replace(childID, child)
	}
	return stay, childID
}

func allMapped(idx *util.Set[int], remap map[int]int) bool {
	for _, i := range idx.ToSlice() {
		if _, ok := remap[i]; !ok {
			return false
		}
	}
	return true
}

// passthroughIndex reports whether e is a bare column forward (an InputRef,
// or an Alias wrapping one) and, if so, which child index it forwards.
func passthroughIndex(g *plan.ExprGraph, e plan.NodeID) (int, bool) {
	n := g.Node(e)
	if n.Kind == plan.ExprAlias {
		n = g.Node(n.Child)
	}
	if n.Kind == plan.ExprInputRef && n.TableID == 0 {
		return n.Index, true
	}
	return 0, false
}

// remapCopy copies id's expression tree, remapping every non-correlated
// InputRef.Index through remap; the caller guarantees every InputRef
// reachable from id has an entry in remap.
func remapCopy(g *plan.ExprGraph, id plan.NodeID, remap map[int]int) plan.NodeID {
	n := g.Node(id)
	switch n.Kind {
	case plan.ExprInputRef:
		if n.TableID == 0 {
			n.Index = remap[n.Index]
		}
		return g.Add(n)
	case plan.ExprBinaryOp:
		n.Left = remapCopy(g, n.Left, remap)
		n.Right = remapCopy(g, n.Right, remap)
		return g.Add(n)
	case plan.ExprUnaryOp:
		n.Child = remapCopy(g, n.Child, remap)
		return g.Add(n)
	case plan.ExprCast, plan.ExprIsNull, plan.ExprAlias:
		n.Child = remapCopy(g, n.Child, remap)
		return g.Add(n)
	case plan.ExprLike:
		n.Child = remapCopy(g, n.Child, remap)
		n.Pattern = remapCopy(g, n.Pattern, remap)
		if n.Escape != plan.Invalid {
			n.Escape = remapCopy(g, n.Escape, remap)
		}
		return g.Add(n)
	case plan.ExprBetween:
		n.Child = remapCopy(g, n.Child, remap)
		n.Low = remapCopy(g, n.Low, remap)
		n.High = remapCopy(g, n.High, remap)
		return g.Add(n)
	case plan.ExprIn:
		n.Child = remapCopy(g, n.Child, remap)
		list := make([]plan.NodeID, len(n.List))
		for i, e := range n.List {
			list[i] = remapCopy(g, e, remap)
		}
		n.List = list
		return g.Add(n)
	case plan.ExprFunction:
		args := make([]plan.NodeID, len(n.Args))
		for i, a := range n.Args {
			args[i] = remapCopy(g, a, remap)
		}
		n.Args = args
		return g.Add(n)
	case plan.ExprCase:
		if n.Operand != plan.Invalid {
			n.Operand = remapCopy(g, n.Operand, remap)
		}
		whens := make([]plan.WhenClause, len(n.Whens))
		for i, w := range n.Whens {
			whens[i] = plan.WhenClause{Condition: remapCopy(g, w.Condition, remap), Result: remapCopy(g, w.Result, remap)}
		}
		n.Whens = whens
		if n.Else != plan.Invalid {
			n.Else = remapCopy(g, n.Else, remap)
		}
		return g.Add(n)
	default:
		return g.Add(n)
	}
}

// planOutputWidth is a plan node's output column count. OutputSchema has no
// PlanScan case (a scan's column types live in the catalog, which
// plan.PlanGraph has no handle on), so a Scan is counted from its ColumnIDs,
// Filter/Order/Limit/TopN pass their child's width through, and a Join adds
// both children's widths; only the column count — never the types — is
// needed here to split a predicate's indices by side.
func planOutputWidth(g *plan.PlanGraph, id plan.PlanID) int {
	n := g.Node(id)
	switch n.Kind {
	case plan.PlanScan:
		w := len(n.ColumnIDs)
		if n.WithRowHandler {
			w++
		}
		return w
	case plan.PlanFilter, plan.PlanOrder, plan.PlanLimit, plan.PlanTopN:
		return planOutputWidth(g, n.Children[0])
	case plan.PlanJoin:
		return planOutputWidth(g, n.Children[0]) + planOutputWidth(g, n.Children[1])
	}
	return len(g.OutputSchema(id))
}

// indexRange returns the set {lo, lo+1, ..., hi-1}.
func indexRange(lo, hi int) *util.Set[int] {
	s := util.NewSet[int]()
	for i := lo; i < hi; i++ {
		s.Add(i)
	}
	return s
}

// splitBySide partitions conjuncts (expressed in a join's merged output
// frame, leftWidth columns from the left side followed by rightWidth from
// the right) into those needing neither side (stay), those referencing
// only the left side, and those referencing only the right — shifting the
// right-side ones into the right side's own local frame as it goes, the
// same convention rewriteJoin already used for a join's own ON predicate.
func splitBySide(g *plan.PlanGraph, conjuncts []plan.NodeID, leftWidth, rightWidth int) (stay, left, right []plan.NodeID) {
	leftSet := indexRange(0, leftWidth)
	rightSet := indexRange(leftWidth, leftWidth+rightWidth)
	for _, c := range conjuncts {
		idx := util.NewSet[int]()
		addIndices(g.Exprs, c, idx)
		switch {
		case idx.Size() == 0:
			stay = append(stay, c)
		case idx.IsSubsetOf(leftSet):
			left = append(left, c)
		case idx.IsSubsetOf(rightSet):
			shiftInputRefs(g.Exprs, c, -leftWidth)
			right = append(right, c)
		default:
			stay = append(stay, c)
		}
	}
	return
}

// pushThroughJoin splits conjuncts across a join's two sides, recursing
// further down each side afterward. For a Cross join it first tries
// convertCrossToInnerEqui — the filter-into-join conversion spec.md §4.6
// also calls for, turning a comma-join plus a WHERE equi-predicate into an
// equi-inner join so selectJoinPhysical can choose HashJoin for it.
// Conjuncts that don't split cleanly (referencing both sides with no equi
// form, or sitting above an outer join whose non-preserved side they'd have
// to cross) stay in a Filter above the join: pushing a predicate below an
// outer join's non-preserved side can change which rows null-extend, so
// only conjuncts that need neither side are ever safe to move past one,
// and those have nowhere further to go anyway.
func pushThroughJoin(g *plan.PlanGraph, conjuncts []plan.NodeID, childID plan.PlanID, child plan.PlanNode) ([]plan.NodeID, plan.PlanID) {
	if child.JoinKind == plan.JoinCross {
		var converted bool
		conjuncts, child, converted = convertCrossToInnerEqui(g, conjuncts, child)
		if converted {
			g.Replace(childID, child)
			childID = selectJoinPhysical(g, childID)
			child = g.Node(childID)
		}
	}
	if child.JoinKind != plan.JoinInner {
		return conjuncts, childID
	}

	leftWidth := planOutputWidth(g, child.Children[0])
	rightWidth := planOutputWidth(g, child.Children[1])
	stay, left, right := splitBySide(g, conjuncts, leftWidth, rightWidth)

	if len(left) > 0 {
		remaining, newSub := pushFilter(g, left, child.Children[0])
		child.Children[0] = wrapFilter(g, newSub, joinConjuncts(g.Exprs, remaining))
	}
	if len(right) > 0 {
		remaining, newSub := pushFilter(g, right, child.Children[1])
		child.Children[1] = wrapFilter(g, newSub, joinConjuncts(g.Exprs, remaining))
	}
	g.Replace(childID, child)
	return stay, childID
}

// convertCrossToInnerEqui is the filter-into-join rule: it looks for a
// conjunct of the form `left_ref = right_ref` spanning both sides of a
// Cross join (the plan shape a comma-join in FROM produces) and, if found,
// folds it — and any other such conjuncts — into the join's ON, turning the
// Cross join into an equi-inner join.
func convertCrossToInnerEqui(g *plan.PlanGraph, conjuncts []plan.NodeID, child plan.PlanNode) ([]plan.NodeID, plan.PlanNode, bool) {
	leftWidth := planOutputWidth(g, child.Children[0])
	rightWidth := planOutputWidth(g, child.Children[1])
	leftSet := indexRange(0, leftWidth)
	rightSet := indexRange(leftWidth, leftWidth+rightWidth)

	var stay, onConjuncts []plan.NodeID
	for _, c := range conjuncts {
		idx := util.NewSet[int]()
		addIndices(g.Exprs, c, idx)
		if idx.Size() == 0 || idx.IsSubsetOf(leftSet) || idx.IsSubsetOf(rightSet) {
			stay = append(stay, c)
			continue
		}
		if _, _, ok := equiJoinKey(g.Exprs, c, leftWidth); ok {
			onConjuncts = append(onConjuncts, c)
		} else {
			stay = append(stay, c)
		}
	}
	if len(onConjuncts) == 0 {
		return conjuncts, child, false
	}
	child.JoinKind = plan.JoinInner
	child.JoinOn = joinConjuncts(g.Exprs, onConjuncts)
	return stay, child, true
}

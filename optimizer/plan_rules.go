package optimizer

import (
	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/plan"
)

// rewritePlan walks the plan tree bottom-up, rewriting each node's children
// first (so a fused/folded child is what the parent rule sees) and then
// applying the node-level rules: filter merge, limit/order fusion, empty
// propagation, and physical operator selection. It returns the (possibly
// different) PlanID the caller should use in place of id — most rules
// rewrite in place via Replace and return id unchanged, but fusion
// (limit+order → topn) and empty-propagation allocate a new node.
func rewritePlan(g *plan.PlanGraph, id plan.PlanID) plan.PlanID {
	n := g.Node(id)
	for i, c := range n.Children {
		n.Children[i] = rewritePlan(g, c)
	}
	g.Replace(id, n)
	n = g.Node(id)

	switch n.Kind {
	case plan.PlanFilter:
		return rewriteFilter(g, id)
	case plan.PlanLimit:
		return rewriteLimit(g, id)
	case plan.PlanJoin:
		return rewriteJoin(g, id)
	case plan.PlanAggregate:
		return rewriteAggregate(g, id)
	}
	return id
}

// rewriteFilter merges a Filter directly over another Filter into one
// conjunction, propagates an always-false predicate to an empty leaf, and
// otherwise pushes the predicate's conjuncts down through whatever sits
// below (spec.md §4.6's pushdown-through-projection/order/limit/topn/join).
func rewriteFilter(g *plan.PlanGraph, id plan.PlanID) plan.PlanID {
	n := g.Node(id)
	if isAlwaysFalse(g.Exprs, n.Predicate) {
		return emptyLeaf(g, id)
	}
	child := g.Node(n.Children[0])
	if child.Kind == plan.PlanFilter {
		merged := g.Exprs.Add(plan.ExprNode{Kind: plan.ExprBinaryOp, BinOp: lumen.OpAnd, Left: n.Predicate, Right: child.Predicate})
		simplifyExpr(g.Exprs, merged)
		n.Predicate = merged
		n.Children[0] = child.Children[0]
		g.Replace(id, n)
		return rewriteFilter(g, id)
	}

	conjuncts := splitConjuncts(g.Exprs, n.Predicate)
	remaining, newChild := pushFilter(g, conjuncts, n.Children[0])
	n.Children[0] = newChild
	if len(remaining) == 0 {
		return newChild
	}
	n.Predicate = joinConjuncts(g.Exprs, remaining)
	g.Replace(id, n)
	return id
}

// rewriteLimit folds `limit(0, x)` to an empty leaf and fuses
// `limit(order(x))` into a single TopN node.
func rewriteLimit(g *plan.PlanGraph, id plan.PlanID) plan.PlanID {
	n := g.Node(id)
	if isZeroLiteral(g.Exprs, n.Limit) {
		return emptyLeaf(g, id)
	}
	child := g.Node(n.Children[0])
	if child.Kind == plan.PlanOrder {
		return g.Add(plan.PlanNode{
			Kind:      plan.PlanTopN,
			Children:  []plan.PlanID{child.Children[0]},
			OrderKeys: child.OrderKeys,
			Limit:     n.Limit,
			Offset:    n.Offset,
		})
	}
	return id
}

// rewriteJoin pushes single-side conjuncts of an inner join's own ON
// predicate down into a Filter over the owning side, then selects a
// physical operator for whatever predicate remains. Outer joins are left
// alone: pushing a predicate below an outer join's non-preserved side
// changes which rows are produced (a null-extended row may need to survive
// a filter that would otherwise reject it), so that rewrite is unsound
// here without also tracking which side is the "preserved" one. Cross
// joins have no ON to split here; a join-spanning equi-predicate sitting in
// a parent Filter is instead handled by pushFilter/convertCrossToInnerEqui
// when that Filter is rewritten.
func rewriteJoin(g *plan.PlanGraph, id plan.PlanID) plan.PlanID {
	n := g.Node(id)
	if (n.Kind != plan.PlanJoin) || n.JoinKind != plan.JoinInner || n.JoinOn == plan.Invalid {
		return selectJoinPhysical(g, id)
	}

	leftWidth := planOutputWidth(g, n.Children[0])
	rightWidth := planOutputWidth(g, n.Children[1])
	stay, left, right := splitBySide(g, splitConjuncts(g.Exprs, n.JoinOn), leftWidth, rightWidth)

	if len(left) > 0 {
		n.Children[0] = wrapFilter(g, n.Children[0], joinConjuncts(g.Exprs, left))
	}
	if len(right) > 0 {
		n.Children[1] = wrapFilter(g, n.Children[1], joinConjuncts(g.Exprs, right))
	}
	n.JoinOn = joinConjuncts(g.Exprs, stay)
	if n.JoinOn == plan.Invalid {
		n.JoinKind = plan.JoinCross
	}
	g.Replace(id, n)
	return selectJoinPhysical(g, id)
}

// selectJoinPhysical records a physical operator on a Join node without
// changing its logical meaning: a non-cross equi-join (inner or outer) whose
// remaining ON is a conjunction of `=` comparisons each binding one left key
// to one right key becomes SortMergeJoin when both sides are already
// delivered sorted on those keys (isSortedOn), HashJoin otherwise;
// everything else falls back to NestedLoopJoin.
func selectJoinPhysical(g *plan.PlanGraph, id plan.PlanID) plan.PlanID {
	n := g.Node(id)
	if n.Kind != plan.PlanJoin {
		return id
	}
	if n.JoinKind == plan.JoinCross || n.JoinOn == plan.Invalid {
		n.JoinPhys = plan.JoinPhysicalNestedLoop
		g.Replace(id, n)
		return id
	}
	leftWidth := planOutputWidth(g, n.Children[0])
	var leftKeys, rightKeys []plan.NodeID
	for _, c := range splitConjuncts(g.Exprs, n.JoinOn) {
		lk, rk, ok := equiJoinKey(g.Exprs, c, leftWidth)
		if !ok {
			n.JoinPhys = plan.JoinPhysicalNestedLoop
			g.Replace(id, n)
			return id
		}
		leftKeys = append(leftKeys, lk)
		rightKeys = append(rightKeys, rk)
	}
	if isSortedOn(g, n.Children[0], leftKeys) && isSortedOn(g, n.Children[1], rightKeys) {
		n.JoinPhys = plan.JoinPhysicalSortMerge
	} else {
		n.JoinPhys = plan.JoinPhysicalHash
	}
	n.LeftKeys = leftKeys
	n.RightKeys = rightKeys
	g.Replace(id, n)
	return id
}

// isSortedOn reports whether childID is a PlanOrder/PlanTopN node whose
// leading ascending order keys are exactly keys (in childID's own output
// frame, the same frame equiJoinKey already expresses keys in) — the one
// form of "known-sorted" this plan representation can state without
// tracking sortedness as a separate property threaded through every node.
func isSortedOn(g *plan.PlanGraph, childID plan.PlanID, keys []plan.NodeID) bool {
	child := g.Node(childID)
	if child.Kind != plan.PlanOrder && child.Kind != plan.PlanTopN {
		return false
	}
	if len(child.OrderKeys) < len(keys) {
		return false
	}
	for i, k := range keys {
		ok := child.OrderKeys[i]
		if ok.Desc || !sameInputRef(g.Exprs, ok.Expr, k) {
			return false
		}
	}
	return true
}

func sameInputRef(g *plan.ExprGraph, a, b plan.NodeID) bool {
	na, nb := g.Node(a), g.Node(b)
	return na.Kind == plan.ExprInputRef && nb.Kind == plan.ExprInputRef && na.TableID == nb.TableID && na.Index == nb.Index
}

// equiJoinKey recognizes `left_ref = right_ref` (in either operand order)
// where left_ref indexes strictly below leftWidth and right_ref at or above
// it, returning both keys expressed in their own side's local frame.
func equiJoinKey(g *plan.ExprGraph, id plan.NodeID, leftWidth int) (plan.NodeID, plan.NodeID, bool) {
	n := g.Node(id)
	if n.Kind != plan.ExprBinaryOp || n.BinOp != lumen.OpEq {
		return 0, 0, false
	}
	a, b := g.Node(n.Left), g.Node(n.Right)
	if a.Kind != plan.ExprInputRef || b.Kind != plan.ExprInputRef || a.TableID != 0 || b.TableID != 0 {
		return 0, 0, false
	}
	switch {
	case a.Index < leftWidth && b.Index >= leftWidth:
		return n.Left, shiftedCopy(g, n.Right, -leftWidth), true
	case b.Index < leftWidth && a.Index >= leftWidth:
		return n.Right, shiftedCopy(g, n.Left, -leftWidth), true
	default:
		return 0, 0, false
	}
}

func shiftedCopy(g *plan.ExprGraph, id plan.NodeID, delta int) plan.NodeID {
	n := g.Node(id)
	n.Index += delta
	return g.Add(n)
}

// rewriteAggregate selects Simple (no grouping) vs Hash (grouped) physical
// aggregation.
func rewriteAggregate(g *plan.PlanGraph, id plan.PlanID) plan.PlanID {
	n := g.Node(id)
	if len(n.GroupKeys) == 0 {
		n.AggPhys = plan.AggPhysicalSimple
	} else {
		n.AggPhys = plan.AggPhysicalHash
	}
	g.Replace(id, n)
	return id
}

func wrapFilter(g *plan.PlanGraph, child plan.PlanID, pred plan.NodeID) plan.PlanID {
	if pred == plan.Invalid {
		return child
	}
	return g.Add(plan.PlanNode{Kind: plan.PlanFilter, Children: []plan.PlanID{child}, Predicate: pred})
}

// emptyLeaf replaces a subtree known to never produce rows with a
// zero-row Values node carrying the same output schema, per spec.md §4.6's
// empty-propagation rule.
func emptyLeaf(g *plan.PlanGraph, id plan.PlanID) plan.PlanID {
	schema := g.OutputSchema(id)
	return g.Add(plan.PlanNode{Kind: plan.PlanValues, Schema: schema})
}

func isAlwaysFalse(g *plan.ExprGraph, id plan.NodeID) bool {
	if id == plan.Invalid {
		return false
	}
	n := g.Node(id)
	return n.Kind == plan.ExprConstant && !n.Value.IsNull() && n.Value.Kind() == lumen.KindBool && !n.Value.Bool()
}

func isZeroLiteral(g *plan.ExprGraph, id plan.NodeID) bool {
	if id == plan.Invalid {
		return false
	}
	return isNumericConst(g.Node(id), 0)
}

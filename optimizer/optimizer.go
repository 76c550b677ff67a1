// Package optimizer implements spec.md §4.6: a rule-based rewriter over the
// logical plan lumen/planner produced, folding constants, simplifying
// expressions, fusing/pruning plan nodes, and selecting physical operators.
//
// The real equality-saturation design spec.md §4.6 describes keeps every
// rewritten form alongside the original in an e-graph and lets a cost model
// pick a representative per equivalence class. lumen/plan's arenas support
// the node-identity half of that (a NodeID/PlanID is never reused, so a
// rewrite is visible to every existing reference without a tree rebuild),
// but they don't maintain the union-find over equivalence classes a real
// e-graph needs, so this package instead applies each rule destructively
// via Replace — a standard Datalog-free term rewriter rather than full
// equality saturation. That is enough to realize every rule spec.md §4.6
// lists; DESIGN.md records this as a deliberate scope decision, not an
// oversight.
package optimizer

import (
	"github.com/lumen-db/lumen/plan"
	"github.com/lumen-db/lumen/planner"
)

// maxFixpointRounds bounds the rewrite loop: rules are confluent and
// strictly shrink or simplify the tree, so in practice two or three rounds
// reach a fixpoint; this is a backstop against a pathological input, not a
// tuned performance knob.
const maxFixpointRounds = 8

// Optimize repeatedly applies the expression and plan rule sets to lp until
// a round adds no node to the plan arena (PlanGraph.Len is unchanged) or
// the round budget is exhausted,
// returning the same LogicalPlan value with its PlanGraph/ExprGraph mutated
// in place.
func Optimize(lp *planner.LogicalPlan) *planner.LogicalPlan {
	for round := 0; round < maxFixpointRounds; round++ {
		before := lp.Plans.Len()
		simplifyAllExprs(lp.Plans, lp.Root)
		lp.Root = rewritePlan(lp.Plans, lp.Root)
		pruneScanColumns(lp.Plans, lp.Root)
		if lp.Plans.Len() == before {
			break
		}
	}
	return lp
}

// simplifyAllExprs walks the plan tree and runs simplifyExpr over every
// expression-bearing field a node carries.
func simplifyAllExprs(g *plan.PlanGraph, id plan.PlanID) {
	n := g.Node(id)
	for _, c := range n.Children {
		simplifyAllExprs(g, c)
	}
	simplifyExpr(g.Exprs, n.ScanFilter)
	for _, row := range n.Rows {
		for _, v := range row {
			simplifyExpr(g.Exprs, v)
		}
	}
	simplifyExpr(g.Exprs, n.Predicate)
	for _, e := range n.Exprs {
		simplifyExpr(g.Exprs, e)
	}
	for _, k := range n.GroupKeys {
		simplifyExpr(g.Exprs, k)
	}
	for _, a := range n.Aggs {
		simplifyExpr(g.Exprs, a.Expr)
	}
	for _, k := range n.OrderKeys {
		simplifyExpr(g.Exprs, k.Expr)
	}
	simplifyExpr(g.Exprs, n.Limit)
	simplifyExpr(g.Exprs, n.Offset)
	simplifyExpr(g.Exprs, n.JoinOn)
}

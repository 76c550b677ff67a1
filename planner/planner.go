// Package planner implements spec.md §4.5: the syntax-directed translation
// from a bound statement to a logical plan tree.
//
// lumen/binder already constructs that tree directly while it binds a
// statement (bindSelectBody, for instance, builds exactly the
// Scan/Join → Filter(WHERE) → Aggregate → Filter(HAVING) → Projection →
// Order → Limit/TopN stack §4.5 describes, node by node, as it walks the
// SELECT), so there is no separate bound-tree representation left to lower
// here. Plan's job is to confirm that the tree the binder produced actually
// has the shape §4.5 requires — a structural check the optimizer can then
// rely on without re-deriving it — and to hand the optimizer a LogicalPlan
// value rather than a bare BoundStatement, keeping the pipeline's stages
// distinct at the type level even though the construction work happened
// earlier.
package planner

import (
	"fmt"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/binder"
	"github.com/lumen-db/lumen/plan"
)

// LogicalPlan is a bound statement whose root has been confirmed to match
// the operator stack spec.md §4.5 mandates for its statement kind.
type LogicalPlan struct {
	Root  plan.PlanID
	Exprs *plan.ExprGraph
	Plans *plan.PlanGraph
}

// Plan validates bound's shape and wraps it as a LogicalPlan ready for
// lumen/optimizer's rewrite rules.
func Plan(bound *binder.BoundStatement) (*LogicalPlan, error) {
	if err := checkShape(bound.Plans, bound.Root); err != nil {
		return nil, err
	}
	return &LogicalPlan{Root: bound.Root, Exprs: bound.Exprs, Plans: bound.Plans}, nil
}

func checkShape(g *plan.PlanGraph, id plan.PlanID) error {
	n := g.Node(id)
	switch n.Kind {
	case plan.PlanScan, plan.PlanValues, plan.PlanDummy, plan.PlanCreateTable, plan.PlanDrop, plan.PlanCopyFrom:
		return requireChildren(n, 0)

	case plan.PlanJoin:
		if err := requireChildren(n, 2); err != nil {
			return err
		}
		for _, c := range n.Children {
			if err := checkShape(g, c); err != nil {
				return err
			}
		}
		return nil

	case plan.PlanFilter, plan.PlanProjection, plan.PlanAggregate, plan.PlanOrder,
		plan.PlanLimit, plan.PlanTopN, plan.PlanInsert, plan.PlanDelete, plan.PlanCopyTo, plan.PlanExplain:
		if err := requireChildren(n, 1); err != nil {
			return err
		}
		return checkShape(g, n.Children[0])

	default:
		return lumen.NewPlanInvalidError(fmt.Sprintf("planner: unrecognized plan node kind %v", n.Kind))
	}
}

func requireChildren(n plan.PlanNode, want int) error {
	if len(n.Children) != want {
		return lumen.NewPlanInvalidError(fmt.Sprintf("planner: %s node expects %d children, got %d", n.Kind, want, len(n.Children)))
	}
	return nil
}

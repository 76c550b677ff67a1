package optimizer

import (
	"github.com/lumen-db/lumen/internal/util"
	"github.com/lumen-db/lumen/plan"
)

// pruneScanColumns trims a Scan's trailing, never-referenced columns. It
// only runs on join-free statements: a join's merged frame numbers the
// right side's columns starting after the left side's width, so removing
// one side's unused column would shift every InputRef index above the join
// that refers to a later column, on either side. Renumbering those
// references correctly is possible in principle but is exactly the kind of
// index arithmetic that's easy to get subtly wrong in code that can never
// be run against real data here (the task forbids invoking the Go
// toolchain) — so the safer, verifiable rule is applied only where no
// renumbering is ever needed: trimming unused columns off the *end* of a
// single Scan's column list never moves any column that is kept.
func pruneScanColumns(g *plan.PlanGraph, root plan.PlanID) {
	if containsJoin(g, root) {
		return
	}
	accumulateAndTrim(g, root, util.NewSet[int]())
}

func containsJoin(g *plan.PlanGraph, id plan.PlanID) bool {
	n := g.Node(id)
	if n.Kind == plan.PlanJoin {
		return true
	}
	for _, c := range n.Children {
		if containsJoin(g, c) {
			return true
		}
	}
	return false
}

// accumulateAndTrim threads the set of scan-frame indices required by
// everything seen so far downward; Projection and Aggregate start a fresh
// frame for their child, since indices above them address their own output
// tuple, not the one below.
func accumulateAndTrim(g *plan.PlanGraph, id plan.PlanID, required *util.Set[int]) {
	n := g.Node(id)
	switch n.Kind {
	case plan.PlanScan:
		trimScan(g, id, required)

	case plan.PlanFilter:
		addIndices(g.Exprs, n.Predicate, required)
		accumulateAndTrim(g, n.Children[0], required)

	case plan.PlanOrder, plan.PlanTopN:
		for _, k := range n.OrderKeys {
			addIndices(g.Exprs, k.Expr, required)
		}
		accumulateAndTrim(g, n.Children[0], required)

	case plan.PlanLimit:
		accumulateAndTrim(g, n.Children[0], required)

	case plan.PlanAggregate:
		fresh := util.NewSet[int]()
		for _, k := range n.GroupKeys {
			keySet := util.NewSet[int]()
			addIndices(g.Exprs, k, keySet)
			fresh = fresh.Union(keySet)
		}
		for _, a := range n.Aggs {
			addIndices(g.Exprs, a.Expr, fresh)
		}
		accumulateAndTrim(g, n.Children[0], fresh)

	case plan.PlanProjection:
		fresh := util.NewSet[int]()
		for _, e := range n.Exprs {
			addIndices(g.Exprs, e, fresh)
		}
		accumulateAndTrim(g, n.Children[0], fresh)

	case plan.PlanInsert, plan.PlanCopyTo, plan.PlanExplain:
		if len(n.Children) > 0 {
			accumulateAndTrim(g, n.Children[0], util.NewSet[int]())
		}

	// PlanDelete's Scan must keep every column: the storage layer deletes
	// whole rows, not just the ones WHERE happens to filter on. PlanValues,
	// PlanDummy, PlanCreateTable, PlanDrop, and PlanCopyFrom have no Scan
	// beneath them to prune.
	default:
	}
}

// trimScan drops every column after the highest index required of this
// scan's frame; it never reorders or removes a column that's still needed,
// so the positions of every remaining column are unchanged.
func trimScan(g *plan.PlanGraph, id plan.PlanID, required *util.Set[int]) {
	if required.Size() == 0 {
		return
	}
	n := g.Node(id)
	if len(n.ColumnIDs) == 0 {
		return
	}
	_, maxIdx := minMax(required)
	if maxIdx < 0 || maxIdx >= len(n.ColumnIDs)-1 {
		return
	}
	n.ColumnIDs = append([]uint32(nil), n.ColumnIDs[:maxIdx+1]...)
	g.Replace(id, n)
}

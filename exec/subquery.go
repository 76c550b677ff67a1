package exec

import (
	"context"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/eval"
	"github.com/lumen-db/lumen/plan"
)

// subqueryRunner re-enters Build for a subquery's own PlanID (the binder
// stores a subquery's bound plan root as ExprNode.SubqueryID — see
// binder/expr.go's bindInExpr/bindExistsExpr/bindScalarSubquery) every time
// eval.Eval needs its result for one outer row.
//
// Correlated references are bound as ExprInputRef nodes whose TableID
// doubles as nesting depth (binder/expr.go's bindColumnRef: "TableID doubles
// as the correlated-reference depth, 0 = current query"); Eval itself never
// looks past depth 0, so a depth>0 InputRef evaluated as-is would read the
// wrong chunk. Before running the subquery's operator graph, this runner
// finds every depth>0 InputRef reachable from the subquery's root and
// temporarily overwrites it in the shared ExprGraph with a constant holding
// outerRow's value at that index (plan.ExprGraph.Replace), restoring the
// original node once the subquery has been drained. Only depth 1 is
// supported — a reference two levels up (a subquery's subquery correlated
// against the outermost query) reports an error rather than silently
// evaluating against the wrong row; spec.md's examples never nest
// correlation that deep, and deeper support would need outerRow to carry a
// chain of ancestor rows instead of just one.
type subqueryRunner struct {
	g  *plan.PlanGraph
	ec *execContext

	uncorrelated map[int]*array.DataChunk
}

// newSubqueryRunner builds a SubqueryRunner over g's subquery plan roots,
// reusing ec's transactions for any table the subqueries themselves scan.
func newSubqueryRunner(g *plan.PlanGraph, ec *execContext) *subqueryRunner {
	return &subqueryRunner{g: g, ec: ec, uncorrelated: make(map[int]*array.DataChunk)}
}

var _ eval.SubqueryRunner = (*subqueryRunner)(nil)

// NewSubqueryRunner builds the eval.SubqueryRunner exec.Build's top-level
// caller needs, over the same execContext the root operator itself uses —
// exported for lumen/engine, which drives Build from outside this package.
func NewSubqueryRunner(g *plan.PlanGraph, ec *execContext) eval.SubqueryRunner {
	return newSubqueryRunner(g, ec)
}

func (r *subqueryRunner) Run(subqueryID int, outerRow array.Row) (*array.DataChunk, error) {
	id := plan.PlanID(subqueryID)
	refs, err := collectCorrelatedRefs(r.g, id)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		if cached, ok := r.uncorrelated[subqueryID]; ok {
			return cached, nil
		}
		result, err := r.runOnce(id)
		if err != nil {
			return nil, err
		}
		r.uncorrelated[subqueryID] = result
		return result, nil
	}

	saved := make(map[plan.NodeID]plan.ExprNode, len(refs))
	for _, nid := range refs {
		n := r.g.Exprs.Node(nid)
		saved[nid] = n
		r.g.Exprs.Replace(nid, plan.ExprNode{Kind: plan.ExprConstant, Value: outerRow.At(n.Index)})
	}
	defer func() {
		for nid, orig := range saved {
			r.g.Exprs.Replace(nid, orig)
		}
	}()
	return r.runOnce(id)
}

func (r *subqueryRunner) runOnce(id plan.PlanID) (*array.DataChunk, error) {
	ctx := context.Background()
	op, err := Build(ctx, r.g, id, r.ec, r)
	if err != nil {
		return nil, err
	}
	schema, err := outputSchemaOf(r.ec, r.g, id)
	if err != nil {
		return nil, err
	}
	return drainAll(ctx, op, schema)
}

// collectCorrelatedRefs walks every plan node reachable from id (stopping at
// a nested subquery's own root — that subquery resolves its own correlated
// refs when it runs) and every expression reachable from those plan nodes,
// returning the NodeIDs of ExprInputRef nodes whose depth is 1. A depth
// greater than 1 is reported as an error: rewriting it would need an
// ancestor row this runner was never given.
func collectCorrelatedRefs(g *plan.PlanGraph, id plan.PlanID) ([]plan.NodeID, error) {
	var out []plan.NodeID
	var outerErr error
	seen := make(map[plan.NodeID]bool)

	var walkExpr func(eid plan.NodeID)
	walkExpr = func(eid plan.NodeID) {
		if eid == plan.Invalid || seen[eid] || outerErr != nil {
			return
		}
		seen[eid] = true
		n := g.Exprs.Node(eid)
		switch n.Kind {
		case plan.ExprInputRef:
			if n.TableID == 1 {
				out = append(out, eid)
			} else if n.TableID > 1 {
				outerErr = lumen.NewPlanInvalidError("exec: subquery correlation deeper than one level is not supported")
			}
		case plan.ExprBinaryOp:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case plan.ExprUnaryOp:
			walkExpr(n.Child)
		case plan.ExprCast, plan.ExprIsNull, plan.ExprAlias:
			walkExpr(n.Child)
		case plan.ExprAggCall:
			for _, a := range n.AggArgs {
				walkExpr(a)
			}
		case plan.ExprFunction:
			for _, a := range n.Args {
				walkExpr(a)
			}
		case plan.ExprLike:
			walkExpr(n.Child)
			walkExpr(n.Pattern)
			if n.Escape != plan.Invalid {
				walkExpr(n.Escape)
			}
		case plan.ExprBetween:
			walkExpr(n.Child)
			walkExpr(n.Low)
			walkExpr(n.High)
		case plan.ExprIn:
			walkExpr(n.Child)
			for _, e := range n.List {
				walkExpr(e)
			}
		case plan.ExprCase:
			if n.Operand != plan.Invalid {
				walkExpr(n.Operand)
			}
			for _, w := range n.Whens {
				walkExpr(w.Condition)
				walkExpr(w.Result)
			}
			if n.Else != plan.Invalid {
				walkExpr(n.Else)
			}
		}
	}

	var walkPlan func(pid plan.PlanID)
	walkPlan = func(pid plan.PlanID) {
		if outerErr != nil {
			return
		}
		n := g.Node(pid)
		switch n.Kind {
		case plan.PlanScan:
			walkExpr(n.ScanFilter)
		case plan.PlanFilter:
			walkExpr(n.Predicate)
		case plan.PlanProjection:
			for _, e := range n.Exprs {
				walkExpr(e)
			}
		case plan.PlanAggregate:
			for _, k := range n.GroupKeys {
				walkExpr(k)
			}
			for _, a := range n.Aggs {
				walkExpr(a.Expr)
			}
		case plan.PlanOrder, plan.PlanTopN:
			for _, k := range n.OrderKeys {
				walkExpr(k.Expr)
			}
			walkExpr(n.Offset)
			walkExpr(n.Limit)
		case plan.PlanLimit:
			walkExpr(n.Offset)
			walkExpr(n.Limit)
		case plan.PlanJoin:
			walkExpr(n.JoinOn)
			for _, k := range n.LeftKeys {
				walkExpr(k)
			}
			for _, k := range n.RightKeys {
				walkExpr(k)
			}
		case plan.PlanValues:
			for _, row := range n.Rows {
				for _, e := range row {
					walkExpr(e)
				}
			}
		}
		for _, c := range n.Children {
			walkPlan(c)
		}
	}
	walkPlan(id)
	return out, outerErr
}

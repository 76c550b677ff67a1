package plan

import "github.com/lumen-db/lumen"

// PlanKind is the closed set of relational operator kinds (spec.md §3's
// "Logical plan tree"); physical operator selection is recorded on the same
// node via JoinPhysical/AggPhysical rather than a separate tree, since the
// physical plan is isomorphic to the logical one with variants materialized.
type PlanKind int

const (
	PlanScan PlanKind = iota
	PlanValues
	PlanFilter
	PlanProjection
	PlanAggregate
	PlanOrder
	PlanLimit
	PlanTopN
	PlanJoin
	PlanCreateTable
	PlanInsert
	PlanDelete
	PlanDrop
	PlanCopyFrom
	PlanCopyTo
	PlanExplain
	PlanDummy
)

var planKindNames = [...]string{
	"Scan", "Values", "Filter", "Projection", "Aggregate", "Order", "Limit",
	"TopN", "Join", "CreateTable", "Insert", "Delete", "Drop", "CopyFrom",
	"CopyTo", "Explain", "Dummy",
}

// String renders the node kind the way EXPLAIN prints it.
func (k PlanKind) String() string {
	if int(k) < 0 || int(k) >= len(planKindNames) {
		return "Unknown"
	}
	return planKindNames[k]
}

// JoinKind mirrors ast.JoinKind at the plan level.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeftOuter
	JoinRightOuter
	JoinFullOuter
	JoinCross
)

// JoinPhysical is the optimizer's physical-operator selection for a Join
// node; JoinPhysicalAuto means "not yet selected" (still logical).
type JoinPhysical int

const (
	JoinPhysicalAuto JoinPhysical = iota
	JoinPhysicalNestedLoop
	JoinPhysicalHash
	JoinPhysicalSortMerge
)

// AggPhysical is the optimizer's physical-operator selection for an
// Aggregate node.
type AggPhysical int

const (
	AggPhysicalAuto AggPhysical = iota
	AggPhysicalSimple
	AggPhysicalHash
)

// OrderKey is one ORDER BY / TopN sort key, evaluated against the exprgraph
// owned by the enclosing PlanGraph's statement.
type OrderKey struct {
	Expr NodeID
	Desc bool
}

// AggCallRef associates an aggregate expression (an ExprAggCall node in the
// expr graph) with its output column name.
type AggCallRef struct {
	Expr  NodeID
	Alias string
}

// PlanNode is one node of the logical/physical plan tree.
type PlanNode struct {
	Kind     PlanKind
	Children []PlanID

	// PlanScan
	TableID      uint32
	ColumnIDs    []uint32
	WithRowHandler bool
	ScanFilter   NodeID // Invalid if none

	// PlanValues
	Rows   [][]NodeID
	Schema []lumen.DataType

	// PlanFilter
	Predicate NodeID

	// PlanProjection
	Exprs   []NodeID
	Aliases []string

	// PlanAggregate
	Aggs      []AggCallRef
	GroupKeys []NodeID
	AggPhys   AggPhysical

	// PlanOrder / PlanTopN
	OrderKeys []OrderKey
	Offset    NodeID // Invalid if absent
	Limit     NodeID // Invalid if absent

	// PlanJoin
	JoinKind JoinKind
	JoinOn   NodeID // Invalid for Cross
	JoinPhys JoinPhysical
	// equi-join keys extracted by the optimizer when JoinPhys==Hash/SortMerge
	LeftKeys  []NodeID
	RightKeys []NodeID

	// PlanCreateTable / PlanDrop
	SchemaID    uint32
	ObjectName  string
	IsView      bool
	IfNotExists bool
	IfExists    bool

	// PlanInsert / PlanDelete / PlanCopyFrom / PlanCopyTo
	TargetTableID uint32
	FilePath      string
	Format        CopyFormat

	// PlanExplain
	Analyze bool
}

// CopyFormat mirrors ast.CopyFormat at the plan level, fully resolved
// against engine defaults by the time it reaches a plan node.
type CopyFormat struct {
	Delimiter string
	Quote     string
	Escape    string
	Header    bool
}

// PlanID is a dense index into a PlanGraph's node arena.
type PlanID int

// PlanGraph is the arena holding every plan node for one statement, plus the
// ExprGraph its expression-bearing fields (Predicate, Exprs, ...) reference.
type PlanGraph struct {
	Exprs *ExprGraph
	nodes []PlanNode
}

// NewPlanGraph returns an empty graph backed by the given expression arena.
func NewPlanGraph(exprs *ExprGraph) *PlanGraph {
	return &PlanGraph{Exprs: exprs}
}

// Add appends a node and returns its ID.
func (g *PlanGraph) Add(n PlanNode) PlanID {
	g.nodes = append(g.nodes, n)
	return PlanID(len(g.nodes) - 1)
}

// Node returns the node at id.
func (g *PlanGraph) Node(id PlanID) PlanNode { return g.nodes[id] }

// Replace overwrites the node at id in place, the mechanism the optimizer
// uses to rewrite a sub-plan to an equivalent form.
func (g *PlanGraph) Replace(id PlanID, n PlanNode) { g.nodes[id] = n }

// Len returns the number of nodes currently in the arena.
func (g *PlanGraph) Len() int { return len(g.nodes) }

// OutputSchema derives a plan node's output column types by walking its
// expression-bearing fields and children; the binder, exec.Build and the
// optimizer call it. It returns nil for PlanScan (a scan's column types
// live in the catalog) and for every kind without a case below.
func (g *PlanGraph) OutputSchema(id PlanID) []lumen.DataType {
	n := g.nodes[id]
	switch n.Kind {
	case PlanProjection:
		out := make([]lumen.DataType, len(n.Exprs))
		for i, e := range n.Exprs {
			out[i] = g.Exprs.ReturnType(e)
		}
		return out
	case PlanValues:
		return n.Schema
	case PlanAggregate:
		out := make([]lumen.DataType, 0, len(n.GroupKeys)+len(n.Aggs))
		for _, k := range n.GroupKeys {
			out = append(out, g.Exprs.ReturnType(k))
		}
		for _, a := range n.Aggs {
			out = append(out, g.Exprs.ReturnType(a.Expr))
		}
		return out
	case PlanFilter, PlanOrder, PlanLimit, PlanTopN:
		if len(n.Children) > 0 {
			return g.OutputSchema(n.Children[0])
		}
		return nil
	case PlanJoin:
		var out []lumen.DataType
		for _, c := range n.Children {
			out = append(out, g.OutputSchema(c)...)
		}
		return out
	case PlanDummy:
		return nil
	default:
		return nil
	}
}

// Columns adds to into the catalog column IDs that the expression at exprID
// references.
func (g *PlanGraph) Columns(exprID NodeID, into map[uint32]bool) {
	n := g.Exprs.Node(exprID)
	switch n.Kind {
	case ExprColumnRef:
		into[n.ColID] = true
	case ExprBinaryOp:
		g.Columns(n.Left, into)
		g.Columns(n.Right, into)
	case ExprUnaryOp:
		g.Columns(n.Child, into)
	case ExprCast, ExprIsNull:
		g.Columns(n.Child, into)
	case ExprAlias:
		g.Columns(n.Child, into)
	case ExprLike:
		g.Columns(n.Child, into)
		g.Columns(n.Pattern, into)
		if n.Escape != Invalid {
			g.Columns(n.Escape, into)
		}
	case ExprBetween:
		g.Columns(n.Child, into)
		g.Columns(n.Low, into)
		g.Columns(n.High, into)
	case ExprIn:
		g.Columns(n.Child, into)
		for _, e := range n.List {
			g.Columns(e, into)
		}
	case ExprFunction:
		for _, a := range n.Args {
			g.Columns(a, into)
		}
	case ExprAggCall:
		for _, a := range n.AggArgs {
			g.Columns(a, into)
		}
	case ExprCase:
		if n.Operand != Invalid {
			g.Columns(n.Operand, into)
		}
		for _, w := range n.Whens {
			g.Columns(w.Condition, into)
			g.Columns(w.Result, into)
		}
		if n.Else != Invalid {
			g.Columns(n.Else, into)
		}
	}
}

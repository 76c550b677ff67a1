// Package plan implements the bound expression tree and logical/physical
// plan tree of spec.md §3/§4.5/§4.6 as two arena-and-index graphs
// (ExprGraph, PlanGraph): nodes are stored densely in a slice and referenced
// by a dense integer NodeID, so the optimizer can add equivalent rewritten
// forms alongside the original without rebuilding pointer trees or
// introducing cycles — the representation spec.md §4.6's equality-
// saturation-style rule engine needs.
package plan

import (
	"fmt"

	"github.com/lumen-db/lumen"
)

// NodeID is a dense index into an ExprGraph or PlanGraph's node arena.
// IDs are never reused within a graph's lifetime, so a node can always be
// reached by its ID even after other nodes are added.
type NodeID int

// ExprKind is the closed set of bound expression node kinds (spec.md §3's
// "Bound expression tree").
type ExprKind int

const (
	ExprConstant ExprKind = iota
	ExprColumnRef
	ExprInputRef
	ExprBinaryOp
	ExprUnaryOp
	ExprCast
	ExprIsNull
	ExprAggCall
	ExprAlias
	ExprFunction
	ExprLike
	ExprBetween
	ExprIn
	ExprCase
	ExprExists
	ExprMax1Row
)

// AggKind is the closed set of aggregate functions the evaluator
// understands (avg is rewritten to sum/count before reaching here).
type AggKind int

const (
	AggCountStar AggKind = iota
	AggCount
	AggSum
	AggMin
	AggMax
	AggFirst
	AggLast
)

// WhenClause is one WHEN/THEN pair of a bound Case expression.
type WhenClause struct {
	Condition NodeID
	Result    NodeID
}

// ExprNode is one node of the bound expression tree. Only the fields
// relevant to Kind are populated; the rest are zero.
type ExprNode struct {
	Kind ExprKind

	// ExprConstant
	Value lumen.Value

	// ExprColumnRef: a fully-qualified catalog column (TableID, ColID).
	// ExprInputRef: an index into the current chunk's columns (Index), with
	// TableID holding its correlation depth.
	TableID uint32
	ColID   uint32
	Index   int

	// ExprBinaryOp / ExprUnaryOp
	BinOp lumen.BinaryOp
	UnOp  lumen.UnaryOp
	Left  NodeID
	Right NodeID
	Child NodeID

	// ExprCast
	TargetType lumen.DataType

	// ExprAggCall
	AggKind    AggKind
	AggArgs    []NodeID
	AggDistinct bool

	// ExprAlias
	Name string

	// ExprFunction
	FuncName string
	Args     []NodeID

	// ExprLike
	Pattern NodeID
	Escape  NodeID
	Negated bool

	// ExprBetween
	Low  NodeID
	High NodeID

	// ExprIn
	List       []NodeID
	SubqueryID int // opaque handle into a side table of bound subqueries, owned by the binder

	// ExprCase
	Operand NodeID // INVALID for the searched-CASE form
	Whens   []WhenClause
	Else    NodeID

	// ExprExists / ExprMax1Row / correlated ExprIn subquery form
	HasSubquery bool

	rtype lumen.DataType // cached, set by SetReturnType once computed
}

// Invalid is the sentinel NodeID (-1) used for "no child" fields (e.g. a
// Case without an operand or without an else branch).
const Invalid NodeID = -1

// ExprGraph is the arena holding every bound expression node for one
// statement.
type ExprGraph struct {
	nodes []ExprNode
}

// NewExprGraph returns an empty graph.
func NewExprGraph() *ExprGraph { return &ExprGraph{} }

// Add appends a node and returns its ID.
func (g *ExprGraph) Add(n ExprNode) NodeID {
	g.nodes = append(g.nodes, n)
	return NodeID(len(g.nodes) - 1)
}

// Node returns the node at id.
func (g *ExprGraph) Node(id NodeID) ExprNode { return g.nodes[id] }

// Replace overwrites the node at id in place — the mechanism the optimizer
// uses to rewrite a sub-expression to an equivalent form without changing
// any other node's references to id.
func (g *ExprGraph) Replace(id NodeID, n ExprNode) { g.nodes[id] = n }

// Len returns the number of nodes currently in the arena.
func (g *ExprGraph) Len() int { return len(g.nodes) }

// ReturnType derives expr's type without evaluating data (spec.md §4.1:
// "every bound expression has a return_type() derivable without the data
// chunk").
func (g *ExprGraph) ReturnType(id NodeID) lumen.DataType {
	n := g.nodes[id]
	switch n.Kind {
	case ExprConstant:
		return n.Value.DataType()
	case ExprColumnRef, ExprInputRef:
		return n.TargetType
	case ExprBinaryOp:
		switch n.BinOp {
		case lumen.OpEq, lumen.OpNeq, lumen.OpLt, lumen.OpLe, lumen.OpGt, lumen.OpGe,
			lumen.OpAnd, lumen.OpOr:
			return lumen.BoolType(true)
		case lumen.OpConcat:
			return lumen.StringType(true)
		default:
			u, ok := g.ReturnType(n.Left).Union(g.ReturnType(n.Right))
			if !ok {
				return lumen.NullType()
			}
			return u
		}
	case ExprUnaryOp:
		if n.UnOp == lumen.OpNot {
			return lumen.BoolType(true)
		}
		return g.ReturnType(n.Child)
	case ExprCast:
		return n.TargetType
	case ExprIsNull:
		return lumen.BoolType(false)
	case ExprAggCall:
		return n.TargetType
	case ExprAlias:
		return g.ReturnType(n.Child)
	case ExprFunction:
		return n.TargetType
	case ExprLike, ExprBetween, ExprIn, ExprExists:
		return lumen.BoolType(true)
	case ExprCase:
		if len(n.Whens) == 0 {
			return lumen.NullType()
		}
		result := g.ReturnType(n.Whens[0].Result)
		for _, w := range n.Whens[1:] {
			u, ok := result.Union(g.ReturnType(w.Result))
			if ok {
				result = u
			}
		}
		return result.WithNullable(true)
	case ExprMax1Row:
		return n.TargetType
	default:
		return lumen.NullType()
	}
}

// String renders a debug form used by EXPLAIN output.
func (g *ExprGraph) String(id NodeID) string {
	n := g.nodes[id]
	switch n.Kind {
	case ExprConstant:
		return n.Value.Display()
	case ExprColumnRef:
		return fmt.Sprintf("col#%d.%d", n.TableID, n.ColID)
	case ExprInputRef:
		return fmt.Sprintf("$%d", n.Index)
	case ExprBinaryOp:
		return fmt.Sprintf("(%s %s %s)", g.String(n.Left), n.BinOp, g.String(n.Right))
	case ExprUnaryOp:
		return fmt.Sprintf("(%s %s)", n.UnOp, g.String(n.Child))
	case ExprCast:
		return fmt.Sprintf("CAST(%s AS %s)", g.String(n.Child), n.TargetType)
	case ExprIsNull:
		return fmt.Sprintf("(%s IS NULL)", g.String(n.Child))
	case ExprAlias:
		return fmt.Sprintf("%s AS %s", g.String(n.Child), n.Name)
	default:
		return fmt.Sprintf("expr#%d", id)
	}
}

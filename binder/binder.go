// Package binder implements spec.md §4.4: turning a parsed ast.Statement
// into a bound tree over lumen/plan's arena (a BoundStatement referencing
// ExprGraph/PlanGraph nodes), resolving every name against lumen/catalog
// and inserting implicit casts per the type system's promotion lattice.
package binder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/ast"
	"github.com/lumen-db/lumen/catalog"
	"github.com/lumen-db/lumen/plan"
)

// Binder binds one statement at a time; it is not safe for concurrent use
// (each statement constructs its own Binder).
type Binder struct {
	catalog       *catalog.Catalog
	exprs         *plan.ExprGraph
	plans         *plan.PlanGraph
	env           EnvStack
	udfVisited    map[string]bool // UDF recursion detection (spec.md §4.4's "visit-set")
	nextTable     uint32          // synthetic TableRefId allocator for derived tables/subqueries
	currentSchema catalog.SchemaId
}

// New constructs a Binder bound to a shared catalog, with fresh expr/plan
// arenas for this statement.
func New(cat *catalog.Catalog) *Binder {
	exprs := plan.NewExprGraph()
	return &Binder{
		catalog:    cat,
		exprs:      exprs,
		plans:      plan.NewPlanGraph(exprs),
		udfVisited: make(map[string]bool),
	}
}

// Exprs returns the statement's bound expression arena.
func (b *Binder) Exprs() *plan.ExprGraph { return b.exprs }

// Plans returns the statement's bound/logical plan arena.
func (b *Binder) Plans() *plan.PlanGraph { return b.plans }

// BoundStatement is the result of binding one ast.Statement: a root plan
// node plus the arenas it references.
type BoundStatement struct {
	Root  plan.PlanID
	Exprs *plan.ExprGraph
	Plans *plan.PlanGraph
}

// Bind dispatches on the statement's concrete type.
func (b *Binder) Bind(schemaID catalog.SchemaId, stmt ast.Statement) (*BoundStatement, error) {
	b.currentSchema = schemaID
	var root plan.PlanID
	var err error
	switch s := stmt.(type) {
	case *ast.SelectStatement:
		root, err = b.bindSelect(schemaID, s)
	case *ast.InsertStatement:
		root, err = b.bindInsert(schemaID, s)
	case *ast.DeleteStatement:
		root, err = b.bindDelete(schemaID, s)
	case *ast.CreateTableStatement:
		root, err = b.bindCreateTable(schemaID, s)
	case *ast.CreateViewStatement:
		root, err = b.bindCreateView(schemaID, s)
	case *ast.CreateFunctionStatement:
		root, err = b.bindCreateFunction(schemaID, s)
	case *ast.DropStatement:
		root, err = b.bindDrop(schemaID, s)
	case *ast.CopyToStatement:
		root, err = b.bindCopyTo(schemaID, s)
	case *ast.CopyFromStatement:
		root, err = b.bindCopyFrom(schemaID, s)
	case *ast.ExplainStatement:
		root, err = b.bindExplain(schemaID, s)
	default:
		return nil, lumen.NewPlanInvalidError(fmt.Sprintf("unsupported statement type %T", stmt))
	}
	if err != nil {
		return nil, err
	}
	return &BoundStatement{Root: root, Exprs: b.exprs, Plans: b.plans}, nil
}

// insertCastIfNeeded wraps expr in a Cast node when its type differs from
// target after promotion, per spec.md §4.4's implicit-cast rule: binary
// operators look up the promotion lattice and a Cast is inserted around the
// narrower side. Casts that may fail at runtime (string→int) are still
// accepted at bind time.
func (b *Binder) insertCastIfNeeded(expr plan.NodeID, target lumen.DataType) plan.NodeID {
	actual := b.exprs.ReturnType(expr)
	if actual.Equal(target) {
		return expr
	}
	return b.exprs.Add(plan.ExprNode{Kind: plan.ExprCast, Child: expr, TargetType: target})
}

// bindBinaryOperands resolves the promotion-lattice union of both operand
// types and inserts a Cast around whichever side is narrower, returning the
// (possibly-wrapped) operand IDs.
func (b *Binder) bindBinaryOperands(left, right plan.NodeID) (plan.NodeID, plan.NodeID, error) {
	lt, rt := b.exprs.ReturnType(left), b.exprs.ReturnType(right)
	if lt.Equal(rt) {
		return left, right, nil
	}
	u, ok := lt.Union(rt)
	if !ok {
		return 0, 0, lumen.NewInvalidTypeError(fmt.Sprintf("incompatible operand types %s and %s", lt, rt))
	}
	return b.insertCastIfNeeded(left, u), b.insertCastIfNeeded(right, u), nil
}

func parseIntLiteral(text string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(text), 10, 64)
}

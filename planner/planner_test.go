package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/ast"
	"github.com/lumen-db/lumen/binder"
	"github.com/lumen-db/lumen/catalog"
	"github.com/lumen-db/lumen/plan"
)

func newTestCatalog(t *testing.T) (*catalog.Catalog, catalog.SchemaId) {
	t.Helper()
	cat := catalog.New()
	schemaID := cat.DefaultSchemaId()
	cols := []catalog.ColumnDesc{
		{DataType: lumen.Int32Type(false), IsPrimary: true},
		{DataType: lumen.StringType(true)},
		{DataType: lumen.Int64Type(false)},
	}
	_, err := cat.AddTable(schemaID, "orders", cols, []string{"id", "customer", "amount"}, []int{0})
	require.NoError(t, err)
	return cat, schemaID
}

func TestPlanAcceptsWellFormedSelect(t *testing.T) {
	cat, schemaID := newTestCatalog(t)
	stmt := &ast.SelectStatement{
		Projection: []ast.SelectItem{{Star: true}},
		From:       &ast.TableRef{TableName: "orders"},
		OrderBy:    []ast.OrderItem{{Expr: &ast.ColumnRef{Name: "id"}}},
		Limit:      &ast.Literal{Text: "10", Kind: ast.LiteralInteger},
	}
	bound, err := binder.New(cat).Bind(schemaID, stmt)
	require.NoError(t, err)

	lp, err := Plan(bound)
	require.NoError(t, err)
	assert.Equal(t, bound.Root, lp.Root)
	assert.Same(t, bound.Exprs, lp.Exprs)
	assert.Same(t, bound.Plans, lp.Plans)
}

func TestPlanAcceptsAggregate(t *testing.T) {
	cat, schemaID := newTestCatalog(t)
	stmt := &ast.SelectStatement{
		Projection: []ast.SelectItem{
			{Expr: &ast.FunctionCall{Name: "count", Star: true}, Alias: "n"},
		},
		From: &ast.TableRef{TableName: "orders"},
	}
	bound, err := binder.New(cat).Bind(schemaID, stmt)
	require.NoError(t, err)

	lp, err := Plan(bound)
	require.NoError(t, err)
	root := lp.Plans.Node(lp.Root)
	assert.Equal(t, plan.PlanProjection, root.Kind)
}

func TestPlanRejectsMalformedTree(t *testing.T) {
	exprs := plan.NewExprGraph()
	plans := plan.NewPlanGraph(exprs)
	// A Filter node with no children violates the one-child contract every
	// unary plan node has.
	bad := plans.Add(plan.PlanNode{Kind: plan.PlanFilter})
	bound := &binder.BoundStatement{Root: bad, Exprs: exprs, Plans: plans}

	_, err := Plan(bound)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Filter")
}

func TestPlanRejectsUnknownKind(t *testing.T) {
	exprs := plan.NewExprGraph()
	plans := plan.NewPlanGraph(exprs)
	bad := plans.Add(plan.PlanNode{Kind: plan.PlanKind(999)})
	bound := &binder.BoundStatement{Root: bad, Exprs: exprs, Plans: plans}

	_, err := Plan(bound)
	require.Error(t, err)
}

package binder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/ast"
	"github.com/lumen-db/lumen/catalog"
	"github.com/lumen-db/lumen/plan"
)

func newTestCatalog(t *testing.T) (*catalog.Catalog, catalog.SchemaId, catalog.TableId) {
	t.Helper()
	cat := catalog.New()
	schemaID := cat.DefaultSchemaId()
	cols := []catalog.ColumnDesc{
		{DataType: lumen.Int32Type(false), IsPrimary: true},
		{DataType: lumen.StringType(true)},
		{DataType: lumen.Int64Type(false)},
	}
	tableID, err := cat.AddTable(schemaID, "orders", cols, []string{"id", "customer", "amount"}, []int{0})
	require.NoError(t, err)
	return cat, schemaID, tableID
}

func colRef(name string) *ast.ColumnRef { return &ast.ColumnRef{Name: name} }

func TestBindSelectStarProjectsAllColumns(t *testing.T) {
	cat, schemaID, _ := newTestCatalog(t)
	stmt := &ast.SelectStatement{
		Projection: []ast.SelectItem{{Star: true}},
		From:       &ast.TableRef{TableName: "orders"},
	}
	bound, err := New(cat).Bind(schemaID, stmt)
	require.NoError(t, err)

	schema := bound.Plans.OutputSchema(bound.Root)
	require.Len(t, schema, 3)
	assert.Equal(t, lumen.KindInt32, schema[0].Kind())
	assert.Equal(t, lumen.KindString, schema[1].Kind())
	assert.Equal(t, lumen.KindInt64, schema[2].Kind())
}

func TestBindSelectWhereFiltersOnColumn(t *testing.T) {
	cat, schemaID, _ := newTestCatalog(t)
	stmt := &ast.SelectStatement{
		Projection: []ast.SelectItem{{Expr: colRef("id")}},
		From:       &ast.TableRef{TableName: "orders"},
		Where: &ast.BinaryExpr{
			Op:    ">",
			Left:  colRef("amount"),
			Right: &ast.Literal{Text: "100", Kind: ast.LiteralInteger},
		},
	}
	bound, err := New(cat).Bind(schemaID, stmt)
	require.NoError(t, err)

	proj := bound.Plans.Node(bound.Root)
	require.Equal(t, plan.PlanProjection, proj.Kind)
	filterNode := bound.Plans.Node(proj.Children[0])
	assert.Equal(t, plan.PlanFilter, filterNode.Kind)
	pred := bound.Exprs.Node(filterNode.Predicate)
	assert.Equal(t, plan.ExprBinaryOp, pred.Kind)
	assert.Equal(t, lumen.OpGt, pred.BinOp)
}

func TestBindSelectUnknownColumnErrors(t *testing.T) {
	cat, schemaID, _ := newTestCatalog(t)
	stmt := &ast.SelectStatement{
		Projection: []ast.SelectItem{{Expr: colRef("nope")}},
		From:       &ast.TableRef{TableName: "orders"},
	}
	_, err := New(cat).Bind(schemaID, stmt)
	require.Error(t, err)
	assert.Equal(t, lumen.CodeBindNotFound, lumen.ErrorCode(err))
}

func TestBindSelectGroupByCountStar(t *testing.T) {
	cat, schemaID, _ := newTestCatalog(t)
	stmt := &ast.SelectStatement{
		Projection: []ast.SelectItem{
			{Expr: colRef("customer")},
			{Expr: &ast.FunctionCall{Name: "count", Star: true}, Alias: "n"},
		},
		From:    &ast.TableRef{TableName: "orders"},
		GroupBy: []ast.Expr{colRef("customer")},
	}
	bound, err := New(cat).Bind(schemaID, stmt)
	require.NoError(t, err)

	proj := bound.Plans.Node(bound.Root)
	require.Equal(t, plan.PlanProjection, proj.Kind)
	aggNode := bound.Plans.Node(proj.Children[0])
	require.Equal(t, plan.PlanAggregate, aggNode.Kind)
	require.Len(t, aggNode.GroupKeys, 1)
	require.Len(t, aggNode.Aggs, 1)
	aggCall := bound.Exprs.Node(aggNode.Aggs[0].Expr)
	assert.Equal(t, plan.AggCountStar, aggCall.AggKind)
}

func TestBindSelectGroupByUngroupedColumnErrors(t *testing.T) {
	cat, schemaID, _ := newTestCatalog(t)
	stmt := &ast.SelectStatement{
		Projection: []ast.SelectItem{{Expr: colRef("id")}},
		From:       &ast.TableRef{TableName: "orders"},
		GroupBy:    []ast.Expr{colRef("customer")},
	}
	_, err := New(cat).Bind(schemaID, stmt)
	require.Error(t, err)
	assert.Equal(t, lumen.CodeBindIllegalGroupBy, lumen.ErrorCode(err))
}

func TestBindSelectAvgRewritesToSumOverCount(t *testing.T) {
	cat, schemaID, _ := newTestCatalog(t)
	stmt := &ast.SelectStatement{
		Projection: []ast.SelectItem{{Expr: &ast.FunctionCall{Name: "avg", Args: []ast.Expr{colRef("amount")}}, Alias: "avg_amount"}},
		From:       &ast.TableRef{TableName: "orders"},
	}
	bound, err := New(cat).Bind(schemaID, stmt)
	require.NoError(t, err)

	proj := bound.Plans.Node(bound.Root)
	exprNode := bound.Exprs.Node(proj.Exprs[0])
	require.Equal(t, plan.ExprBinaryOp, exprNode.Kind)
	assert.Equal(t, lumen.OpDiv, exprNode.BinOp)

	aggNode := bound.Plans.Node(proj.Children[0])
	require.Equal(t, plan.PlanAggregate, aggNode.Kind)
	require.Len(t, aggNode.Aggs, 2)
}

func TestBindJoinUsingLowersToEquiOn(t *testing.T) {
	cat := catalog.New()
	schemaID := cat.DefaultSchemaId()
	cols := []catalog.ColumnDesc{{DataType: lumen.Int32Type(false)}, {DataType: lumen.StringType(true)}}
	_, err := cat.AddTable(schemaID, "a", cols, []string{"id", "x"}, nil)
	require.NoError(t, err)
	_, err = cat.AddTable(schemaID, "b", cols, []string{"id", "y"}, nil)
	require.NoError(t, err)

	stmt := &ast.SelectStatement{
		Projection: []ast.SelectItem{{Star: true}},
		From: &ast.JoinExpr{
			Kind:  ast.JoinInner,
			Left:  &ast.TableRef{TableName: "a"},
			Right: &ast.TableRef{TableName: "b"},
			Using: []string{"id"},
		},
	}
	bound, err := New(cat).Bind(schemaID, stmt)
	require.NoError(t, err)

	proj := bound.Plans.Node(bound.Root)
	joinNode := bound.Plans.Node(proj.Children[0])
	require.Equal(t, plan.PlanJoin, joinNode.Kind)
	onExpr := bound.Exprs.Node(joinNode.JoinOn)
	assert.Equal(t, plan.ExprBinaryOp, onExpr.Kind)
	assert.Equal(t, lumen.OpEq, onExpr.BinOp)
}

func TestBindCreateTableThenSelect(t *testing.T) {
	cat := catalog.New()
	schemaID := cat.DefaultSchemaId()
	createStmt := &ast.CreateTableStatement{
		TableName: "widgets",
		Columns: []ast.ColumnDef{
			{Name: "id", TypeName: "INT", IsPrimary: true},
			{Name: "name", TypeName: "STRING", Nullable: true},
		},
	}
	_, err := New(cat).Bind(schemaID, createStmt)
	require.NoError(t, err)

	selectStmt := &ast.SelectStatement{
		Projection: []ast.SelectItem{{Star: true}},
		From:       &ast.TableRef{TableName: "widgets"},
	}
	bound, err := New(cat).Bind(schemaID, selectStmt)
	require.NoError(t, err)
	schema := bound.Plans.OutputSchema(bound.Root)
	require.Len(t, schema, 2)
}

func TestBindInsertValuesCastsToColumnType(t *testing.T) {
	cat, schemaID, _ := newTestCatalog(t)
	stmt := &ast.InsertStatement{
		TableName: "orders",
		Values: [][]ast.Expr{
			{
				&ast.Literal{Text: "1", Kind: ast.LiteralInteger},
				&ast.Literal{Text: "acme", Kind: ast.LiteralString},
				&ast.Literal{Text: "500", Kind: ast.LiteralInteger},
			},
		},
	}
	bound, err := New(cat).Bind(schemaID, stmt)
	require.NoError(t, err)
	insertNode := bound.Plans.Node(bound.Root)
	require.Equal(t, plan.PlanInsert, insertNode.Kind)
	valuesNode := bound.Plans.Node(insertNode.Children[0])
	require.Equal(t, plan.PlanValues, valuesNode.Kind)
	require.Len(t, valuesNode.Rows[0], 3)
}

func TestBindDeleteWithWhere(t *testing.T) {
	cat, schemaID, _ := newTestCatalog(t)
	stmt := &ast.DeleteStatement{
		TableName: "orders",
		Where:     &ast.BinaryExpr{Op: "=", Left: colRef("id"), Right: &ast.Literal{Text: "1", Kind: ast.LiteralInteger}},
	}
	bound, err := New(cat).Bind(schemaID, stmt)
	require.NoError(t, err)
	deleteNode := bound.Plans.Node(bound.Root)
	require.Equal(t, plan.PlanDelete, deleteNode.Kind)
	filterNode := bound.Plans.Node(deleteNode.Children[0])
	require.Equal(t, plan.PlanFilter, filterNode.Kind)
}

func TestBindCreateFunctionThenCallSite(t *testing.T) {
	cat, schemaID, _ := newTestCatalog(t)
	createFn := &ast.CreateFunctionStatement{
		Name:       "half",
		ArgNames:   []string{"x"},
		ArgTypes:   []string{"BIGINT"},
		ReturnType: "BIGINT",
		Body:       &ast.BinaryExpr{Op: "/", Left: &ast.ColumnRef{Name: "x"}, Right: &ast.Literal{Text: "2", Kind: ast.LiteralInteger}},
	}
	_, err := New(cat).Bind(schemaID, createFn)
	require.NoError(t, err)

	stmt := &ast.SelectStatement{
		Projection: []ast.SelectItem{{Expr: &ast.FunctionCall{Name: "half", Args: []ast.Expr{colRef("amount")}}}},
		From:       &ast.TableRef{TableName: "orders"},
	}
	bound, err := New(cat).Bind(schemaID, stmt)
	require.NoError(t, err)
	proj := bound.Plans.Node(bound.Root)
	exprNode := bound.Exprs.Node(proj.Exprs[0])
	assert.Equal(t, plan.ExprBinaryOp, exprNode.Kind)
	assert.Equal(t, lumen.OpDiv, exprNode.BinOp)
}

func TestBindFunctionCallInlinesUDF(t *testing.T) {
	cat, schemaID, _ := newTestCatalog(t)
	body := &ast.BinaryExpr{Op: "*", Left: &ast.ColumnRef{Name: "x"}, Right: &ast.Literal{Text: "2", Kind: ast.LiteralInteger}}
	err := cat.AddFunction(schemaID, "doubled", []lumen.DataType{lumen.Int64Type(false)}, []string{"x"}, lumen.Int64Type(false), body)
	require.NoError(t, err)

	stmt := &ast.SelectStatement{
		Projection: []ast.SelectItem{{Expr: &ast.FunctionCall{Name: "doubled", Args: []ast.Expr{colRef("amount")}}}},
		From:       &ast.TableRef{TableName: "orders"},
	}
	bound, err := New(cat).Bind(schemaID, stmt)
	require.NoError(t, err)
	proj := bound.Plans.Node(bound.Root)
	exprNode := bound.Exprs.Node(proj.Exprs[0])
	assert.Equal(t, plan.ExprBinaryOp, exprNode.Kind)
	assert.Equal(t, lumen.OpMul, exprNode.BinOp)
}

func TestBindScalarSubqueryWrapsMax1Row(t *testing.T) {
	cat, schemaID, _ := newTestCatalog(t)
	inner := &ast.SelectStatement{
		Projection: []ast.SelectItem{{Expr: &ast.FunctionCall{Name: "count", Star: true}}},
		From:       &ast.TableRef{TableName: "orders"},
	}
	stmt := &ast.SelectStatement{
		Projection: []ast.SelectItem{{Expr: &ast.SubqueryExpr{Query: inner}}},
	}
	bound, err := New(cat).Bind(schemaID, stmt)
	require.NoError(t, err)
	proj := bound.Plans.Node(bound.Root)
	exprNode := bound.Exprs.Node(proj.Exprs[0])
	assert.Equal(t, plan.ExprMax1Row, exprNode.Kind)
}

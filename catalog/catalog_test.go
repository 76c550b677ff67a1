package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/ast"
)

func TestNewCatalogHasDefaultDatabaseAndSchema(t *testing.T) {
	c := New()
	schemaId := c.DefaultSchemaId()
	assert.NotZero(t, schemaId)
}

func TestAddTableAndLookup(t *testing.T) {
	c := New()
	schemaId := c.DefaultSchemaId()

	cols := []ColumnDesc{
		{DataType: lumen.Int32Type(false), IsPrimary: true},
		{DataType: lumen.StringType(true)},
	}
	tableId, err := c.AddTable(schemaId, "orders", cols, []string{"id", "customer"}, []int{0})
	require.NoError(t, err)

	tbl, err := c.GetTable(tableId)
	require.NoError(t, err)
	assert.Equal(t, "orders", tbl.Name)
	assert.Len(t, tbl.Columns, 2)
	assert.Len(t, tbl.OrderedPKIds, 1)

	byName, err := c.LookupTable(schemaId, "orders")
	require.NoError(t, err)
	assert.Equal(t, tableId, byName.Id)
}

func TestAddTableDuplicateNameErrors(t *testing.T) {
	c := New()
	schemaId := c.DefaultSchemaId()
	cols := []ColumnDesc{{DataType: lumen.Int32Type(false)}}
	_, err := c.AddTable(schemaId, "t", cols, []string{"a"}, nil)
	require.NoError(t, err)

	_, err = c.AddTable(schemaId, "t", cols, []string{"a"}, nil)
	require.Error(t, err)
	var lumenErr *lumen.Error
	require.ErrorAs(t, err, &lumenErr)
	assert.Equal(t, lumen.CodeBindDuplicated, lumenErr.Code)
}

func TestResolveNameAmbiguous(t *testing.T) {
	c := New()
	schemaId := c.DefaultSchemaId()
	cols := []ColumnDesc{{DataType: lumen.Int32Type(false)}}
	t1, err := c.AddTable(schemaId, "a", cols, []string{"id"}, nil)
	require.NoError(t, err)
	t2, err := c.AddTable(schemaId, "b", cols, []string{"id"}, nil)
	require.NoError(t, err)

	_, err = c.ResolveName([]TableId{t1, t2}, "", "id")
	require.Error(t, err)
	var lumenErr *lumen.Error
	require.ErrorAs(t, err, &lumenErr)
	assert.Equal(t, lumen.CodeBindAmbiguousColumn, lumenErr.Code)
}

func TestResolveNameQualifiedDisambiguates(t *testing.T) {
	c := New()
	schemaId := c.DefaultSchemaId()
	cols := []ColumnDesc{{DataType: lumen.Int32Type(false)}}
	t1, err := c.AddTable(schemaId, "a", cols, []string{"id"}, nil)
	require.NoError(t, err)
	t2, err := c.AddTable(schemaId, "b", cols, []string{"id"}, nil)
	require.NoError(t, err)

	ref, err := c.ResolveName([]TableId{t1, t2}, "b", "id")
	require.NoError(t, err)
	assert.Equal(t, t2, ref.TableId)
}

func TestAddViewMarksIsView(t *testing.T) {
	c := New()
	schemaId := c.DefaultSchemaId()
	cols := []ColumnDesc{{DataType: lumen.Int32Type(false)}}
	viewId, err := c.AddView(schemaId, "v", cols, []string{"id"}, "SELECT id FROM t")
	require.NoError(t, err)

	tbl, err := c.GetTable(viewId)
	require.NoError(t, err)
	assert.True(t, tbl.IsView)
	assert.Equal(t, "SELECT id FROM t", tbl.ViewQuerySQL)
}

func TestAddFunctionAndLookup(t *testing.T) {
	c := New()
	schemaId := c.DefaultSchemaId()
	body := &ast.BinaryExpr{Op: "*", Left: &ast.ColumnRef{Name: "x"}, Right: &ast.Literal{Text: "2", Kind: ast.LiteralInteger}}
	err := c.AddFunction(schemaId, "double", []lumen.DataType{lumen.Int32Type(false)}, []string{"x"}, lumen.Int32Type(false), body)
	require.NoError(t, err)

	fn, err := c.LookupFunction(schemaId, "double")
	require.NoError(t, err)
	assert.Equal(t, body, fn.Body)
	assert.Equal(t, "sql", fn.Language)
}

func TestAddFunctionDuplicateErrors(t *testing.T) {
	c := New()
	schemaId := c.DefaultSchemaId()
	one := &ast.Literal{Text: "1", Kind: ast.LiteralInteger}
	err := c.AddFunction(schemaId, "f", nil, nil, lumen.Int32Type(false), one)
	require.NoError(t, err)
	err = c.AddFunction(schemaId, "f", nil, nil, lumen.Int32Type(false), one)
	require.Error(t, err)
}

func TestAddIndex(t *testing.T) {
	c := New()
	schemaId := c.DefaultSchemaId()
	cols := []ColumnDesc{{DataType: lumen.Int32Type(false)}}
	tableId, err := c.AddTable(schemaId, "t", cols, []string{"id"}, nil)
	require.NoError(t, err)

	tbl, _ := c.GetTable(tableId)
	col, _ := tbl.ColumnByName("id")

	idxId, err := c.AddIndex(tableId, "t_id_idx", []ColumnId{col.Id}, true)
	require.NoError(t, err)
	assert.NotZero(t, idxId)

	_, err = c.AddIndex(tableId, "t_id_idx", []ColumnId{col.Id}, true)
	require.Error(t, err)
}

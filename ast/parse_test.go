package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleSelect(t *testing.T) {
	stmt, err := Parse("SELECT a, b AS bb FROM t WHERE a > 1 ORDER BY a DESC LIMIT 10 OFFSET 5")
	require.NoError(t, err)

	sel, ok := stmt.(*SelectStatement)
	require.True(t, ok)
	require.Len(t, sel.Projection, 2)
	assert.Equal(t, "a", sel.Projection[0].Expr.(*ColumnRef).Name)
	assert.Equal(t, "bb", sel.Projection[1].Alias)

	from, ok := sel.From.(*TableRef)
	require.True(t, ok)
	assert.Equal(t, "t", from.TableName)

	where, ok := sel.Where.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, ">", where.Op)

	require.Len(t, sel.OrderBy, 1)
	assert.True(t, sel.OrderBy[0].Desc)
	require.NotNil(t, sel.Limit)
	require.NotNil(t, sel.Offset)
}

func TestParseStarAndQualifiedStar(t *testing.T) {
	stmt, err := Parse("SELECT *, u.* FROM u")
	require.NoError(t, err)
	sel := stmt.(*SelectStatement)
	require.Len(t, sel.Projection, 2)
	assert.True(t, sel.Projection[0].Star)
	assert.Equal(t, "", sel.Projection[0].StarQualifier)
	assert.True(t, sel.Projection[1].Star)
	assert.Equal(t, "u", sel.Projection[1].StarQualifier)
}

func TestParseJoinKinds(t *testing.T) {
	cases := map[string]JoinKind{
		"SELECT 1 FROM a JOIN b ON a.x = b.x":           JoinInner,
		"SELECT 1 FROM a INNER JOIN b ON a.x = b.x":      JoinInner,
		"SELECT 1 FROM a LEFT JOIN b ON a.x = b.x":       JoinLeftOuter,
		"SELECT 1 FROM a LEFT OUTER JOIN b ON a.x = b.x": JoinLeftOuter,
		"SELECT 1 FROM a RIGHT JOIN b ON a.x = b.x":      JoinRightOuter,
		"SELECT 1 FROM a FULL OUTER JOIN b ON a.x = b.x": JoinFullOuter,
		"SELECT 1 FROM a CROSS JOIN b":                   JoinCross,
	}
	for sql, want := range cases {
		stmt, err := Parse(sql)
		require.NoError(t, err, sql)
		sel := stmt.(*SelectStatement)
		join, ok := sel.From.(*JoinExpr)
		require.True(t, ok, sql)
		assert.Equal(t, want, join.Kind, sql)
	}
}

func TestParseImplicitCommaJoinAsCross(t *testing.T) {
	stmt, err := Parse("SELECT 1 FROM a, b WHERE a.x = b.x")
	require.NoError(t, err)
	sel := stmt.(*SelectStatement)
	join, ok := sel.From.(*JoinExpr)
	require.True(t, ok)
	assert.Equal(t, JoinCross, join.Kind)
}

func TestParseGroupByHavingAggregates(t *testing.T) {
	stmt, err := Parse("SELECT a, COUNT(*), SUM(b) FROM t GROUP BY a HAVING COUNT(*) > 1")
	require.NoError(t, err)
	sel := stmt.(*SelectStatement)
	require.Len(t, sel.GroupBy, 1)
	require.NotNil(t, sel.Having)

	count, ok := sel.Projection[1].Expr.(*FunctionCall)
	require.True(t, ok)
	assert.Equal(t, "COUNT", count.Name)
	assert.True(t, count.Star)
}

func TestParseExpressionPrecedence(t *testing.T) {
	stmt, err := Parse("SELECT 1 + 2 * 3 FROM t WHERE a = 1 AND b = 2 OR c = 3")
	require.NoError(t, err)
	sel := stmt.(*SelectStatement)

	add, ok := sel.Projection[0].Expr.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "+", add.Op)
	mul, ok := add.Right.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "*", mul.Op)

	or, ok := sel.Where.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "OR", or.Op)
	and, ok := or.Left.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "AND", and.Op)
}

func TestParseStringConcatOperator(t *testing.T) {
	stmt, err := Parse("SELECT a || b FROM t")
	require.NoError(t, err)
	sel := stmt.(*SelectStatement)
	bin, ok := sel.Projection[0].Expr.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "||", bin.Op)
}

func TestParseBetweenLikeInIsNull(t *testing.T) {
	stmt, err := Parse(`SELECT 1 FROM t WHERE
		a BETWEEN 1 AND 10 AND
		b NOT LIKE 'x%' ESCAPE '\' AND
		c IN (1, 2, 3) AND
		d IS NOT NULL`)
	require.NoError(t, err)
	sel := stmt.(*SelectStatement)

	// the whole WHERE is a chain of ANDs; walk the left spine to find each leaf
	var leaves []Expr
	var walk func(e Expr)
	walk = func(e Expr) {
		if b, ok := e.(*BinaryExpr); ok && b.Op == "AND" {
			walk(b.Left)
			walk(b.Right)
			return
		}
		leaves = append(leaves, e)
	}
	walk(sel.Where)
	require.Len(t, leaves, 4)

	between, ok := leaves[0].(*BetweenExpr)
	require.True(t, ok)
	assert.False(t, between.Not)

	like, ok := leaves[1].(*LikeExpr)
	require.True(t, ok)
	assert.True(t, like.Not)
	require.NotNil(t, like.Escape)

	in, ok := leaves[2].(*InExpr)
	require.True(t, ok)
	assert.Len(t, in.List, 3)

	isNull, ok := leaves[3].(*IsNullExpr)
	require.True(t, ok)
	assert.True(t, isNull.Not)
}

func TestParseExistsSubquery(t *testing.T) {
	stmt, err := Parse("SELECT 1 FROM t WHERE EXISTS (SELECT 1 FROM u WHERE u.x = t.x)")
	require.NoError(t, err)
	sel := stmt.(*SelectStatement)
	ex, ok := sel.Where.(*ExistsExpr)
	require.True(t, ok)
	assert.False(t, ex.Not)
	require.NotNil(t, ex.Subquery)
}

func TestParseSubqueryInFrom(t *testing.T) {
	stmt, err := Parse("SELECT x.a FROM (SELECT a FROM t) AS x")
	require.NoError(t, err)
	sel := stmt.(*SelectStatement)
	sub, ok := sel.From.(*SubqueryRef)
	require.True(t, ok)
	assert.Equal(t, "x", sub.Alias)
	require.NotNil(t, sub.Query)
}

func TestParseCaseExpr(t *testing.T) {
	stmt, err := Parse("SELECT CASE WHEN a > 0 THEN 'pos' WHEN a < 0 THEN 'neg' ELSE 'zero' END FROM t")
	require.NoError(t, err)
	sel := stmt.(*SelectStatement)
	ce, ok := sel.Projection[0].Expr.(*CaseExpr)
	require.True(t, ok)
	assert.Nil(t, ce.Operand)
	require.Len(t, ce.Whens, 2)
	require.NotNil(t, ce.Else)
}

func TestParseCastExpr(t *testing.T) {
	stmt, err := Parse("SELECT CAST(a AS BIGINT) FROM t")
	require.NoError(t, err)
	sel := stmt.(*SelectStatement)
	cast, ok := sel.Projection[0].Expr.(*CastExpr)
	require.True(t, ok)
	assert.Equal(t, "BIGINT", cast.TargetType)
}

func TestParseCreateTableColumnModifiers(t *testing.T) {
	stmt, err := Parse("CREATE TABLE t (a INT NOT NULL PRIMARY KEY, b DECIMAL(10,2), c VECTOR(3))")
	require.NoError(t, err)
	ct, ok := stmt.(*CreateTableStatement)
	require.True(t, ok)
	require.Len(t, ct.Columns, 3)

	assert.Equal(t, "a", ct.Columns[0].Name)
	assert.Equal(t, "INT", ct.Columns[0].TypeName)
	assert.False(t, ct.Columns[0].Nullable)
	assert.True(t, ct.Columns[0].IsPrimary)

	assert.Equal(t, "DECIMAL", ct.Columns[1].TypeName)
	assert.Equal(t, 10, ct.Columns[1].Precision)
	assert.Equal(t, 2, ct.Columns[1].Scale)

	assert.Equal(t, "VECTOR", ct.Columns[2].TypeName)
	assert.Equal(t, 3, ct.Columns[2].VectorLen)
}

func TestParseInsertValuesAndSelect(t *testing.T) {
	stmt, err := Parse("INSERT INTO t (a, b) VALUES (1, 'x'), (2, 'y')")
	require.NoError(t, err)
	ins, ok := stmt.(*InsertStatement)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, ins.Columns)
	require.Len(t, ins.Values, 2)
	require.Nil(t, ins.Query)

	stmt, err = Parse("INSERT INTO t SELECT a, b FROM u")
	require.NoError(t, err)
	ins = stmt.(*InsertStatement)
	require.NotNil(t, ins.Query)
	require.Nil(t, ins.Values)
}

func TestParseDeleteAndDrop(t *testing.T) {
	stmt, err := Parse("DELETE FROM t WHERE a = 1")
	require.NoError(t, err)
	del, ok := stmt.(*DeleteStatement)
	require.True(t, ok)
	assert.Equal(t, "t", del.TableName)
	require.NotNil(t, del.Where)

	stmt, err = Parse("DROP TABLE IF EXISTS t")
	require.NoError(t, err)
	drop, ok := stmt.(*DropStatement)
	require.True(t, ok)
	assert.False(t, drop.IsView)
	assert.True(t, drop.IfExists)

	stmt, err = Parse("DROP VIEW v")
	require.NoError(t, err)
	drop = stmt.(*DropStatement)
	assert.True(t, drop.IsView)
}

func TestParseCopyToAndFrom(t *testing.T) {
	stmt, err := Parse("COPY t TO '/tmp/out.csv' WITH (HEADER true, DELIMITER ',')")
	require.NoError(t, err)
	to, ok := stmt.(*CopyToStatement)
	require.True(t, ok)
	assert.Equal(t, "t", to.TableName)
	assert.Equal(t, "/tmp/out.csv", to.Target)
	assert.True(t, to.Format.Header)
	assert.Equal(t, ",", to.Format.Delimiter)

	stmt, err = Parse("COPY t FROM 's3://bucket/key.csv'")
	require.NoError(t, err)
	from, ok := stmt.(*CopyFromStatement)
	require.True(t, ok)
	assert.Equal(t, "s3://bucket/key.csv", from.Source)
}

func TestParseExplain(t *testing.T) {
	stmt, err := Parse("EXPLAIN SELECT 1 FROM t")
	require.NoError(t, err)
	ex, ok := stmt.(*ExplainStatement)
	require.True(t, ok)
	assert.False(t, ex.Analyze)
	require.NotNil(t, ex.Inner)
}

func TestParseCreateView(t *testing.T) {
	stmt, err := Parse("CREATE VIEW v AS SELECT a FROM t")
	require.NoError(t, err)
	cv, ok := stmt.(*CreateViewStatement)
	require.True(t, ok)
	assert.Equal(t, "v", cv.ViewName)
	require.NotNil(t, cv.Query)
}

func TestParseRejectsTrailingGarbage(t *testing.T) {
	_, err := Parse("SELECT 1 FROM t; garbage")
	require.Error(t, err)
}

func TestParseRejectsUnknownStatement(t *testing.T) {
	_, err := Parse("FROB 1")
	require.Error(t, err)
}

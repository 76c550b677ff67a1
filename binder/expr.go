package binder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/ast"
	"github.com/lumen-db/lumen/plan"
)

// aggScope accumulates GROUP BY keys and aggregate calls discovered while
// binding a SELECT's projection/HAVING/ORDER BY list (spec.md §4.4 step 4):
// every aggregate call and every bare reference to a grouped column is
// rewritten to an InputRef into the Aggregate plan node's output tuple,
// which is laid out as [group keys..., aggregate calls...].
type aggScope struct {
	groupKeyByEnvIndex map[int]int // source env column index -> aggregate-output position
	groupKeyTypes      []lumen.DataType
	aggs               []plan.AggCallRef
	aggSigIndex        map[string]int // rendered agg signature -> aggregate-output position
}

func newAggScope() *aggScope {
	return &aggScope{
		groupKeyByEnvIndex: make(map[int]int),
		aggSigIndex:        make(map[string]int),
	}
}

func (s *aggScope) outputPosition(idx int) int { return len(s.groupKeyTypes) + idx }

var aggregateNames = map[string]plan.AggKind{
	"count": plan.AggCount,
	"sum":   plan.AggSum,
	"min":   plan.AggMin,
	"max":   plan.AggMax,
	"first": plan.AggFirst,
	"last":  plan.AggLast,
}

func isAggregateCall(name string) bool {
	_, ok := aggregateNames[strings.ToLower(name)]
	return ok || strings.ToLower(name) == "avg"
}

// bindExpr binds e with no aggregate functions permitted (WHERE, JOIN ON,
// GROUP BY key expressions themselves).
func (b *Binder) bindExpr(e ast.Expr) (plan.NodeID, error) {
	return b.bindExprIn(e, nil)
}

// bindExprAgg binds e allowing aggregate functions and grouped-column
// references to resolve against scope (SELECT list, HAVING, ORDER BY).
func (b *Binder) bindExprAgg(e ast.Expr, scope *aggScope) (plan.NodeID, error) {
	return b.bindExprIn(e, scope)
}

func (b *Binder) bindExprIn(e ast.Expr, scope *aggScope) (plan.NodeID, error) {
	switch n := e.(type) {
	case *ast.Literal:
		return b.bindLiteral(n)
	case *ast.ColumnRef:
		return b.bindColumnRef(n, scope)
	case *ast.BinaryExpr:
		return b.bindBinaryExpr(n, scope)
	case *ast.UnaryExpr:
		return b.bindUnaryExpr(n, scope)
	case *ast.CastExpr:
		return b.bindCastExpr(n, scope)
	case *ast.IsNullExpr:
		child, err := b.bindExprIn(n.Expr, scope)
		if err != nil {
			return 0, err
		}
		return b.exprs.Add(plan.ExprNode{Kind: plan.ExprIsNull, Child: child, Negated: n.Not}), nil
	case *ast.AliasExpr:
		child, err := b.bindExprIn(n.Expr, scope)
		if err != nil {
			return 0, err
		}
		return b.exprs.Add(plan.ExprNode{Kind: plan.ExprAlias, Child: child, Name: n.Name}), nil
	case *ast.LikeExpr:
		return b.bindLikeExpr(n, scope)
	case *ast.BetweenExpr:
		return b.bindBetweenExpr(n, scope)
	case *ast.InExpr:
		return b.bindInExpr(n, scope)
	case *ast.ExistsExpr:
		return b.bindExistsExpr(n)
	case *ast.CaseExpr:
		return b.bindCaseExpr(n, scope)
	case *ast.SubqueryExpr:
		return b.bindScalarSubquery(n)
	case *ast.FunctionCall:
		return b.bindFunctionCall(n, scope)
	default:
		return 0, lumen.NewPlanInvalidError(fmt.Sprintf("unsupported expression type %T", e))
	}
}

func (b *Binder) bindLiteral(lit *ast.Literal) (plan.NodeID, error) {
	var v lumen.Value
	switch lit.Kind {
	case ast.LiteralNull:
		v = lumen.NullValue()
	case ast.LiteralInteger:
		n, err := strconv.ParseInt(lit.Text, 10, 64)
		if err != nil {
			return 0, lumen.NewParseError(fmt.Sprintf("invalid integer literal %q: %v", lit.Text, err))
		}
		v = lumen.Int64Value(n)
	case ast.LiteralFloat:
		f, err := strconv.ParseFloat(lit.Text, 64)
		if err != nil {
			return 0, lumen.NewParseError(fmt.Sprintf("invalid float literal %q: %v", lit.Text, err))
		}
		v = lumen.Float64Value(f)
	case ast.LiteralString:
		v = lumen.StringValue(lit.Text)
	case ast.LiteralBool:
		v = lumen.BoolValue(strings.EqualFold(lit.Text, "true"))
	default:
		return 0, lumen.NewPlanInvalidError(fmt.Sprintf("unsupported literal kind %d", lit.Kind))
	}
	return b.exprs.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: v}), nil
}

func (b *Binder) bindColumnRef(ref *ast.ColumnRef, scope *aggScope) (plan.NodeID, error) {
	col, depth, err := b.env.Resolve(ref.Qualifier, ref.Name)
	if err != nil {
		return 0, err
	}
	if scope != nil && depth == 0 {
		if pos, ok := scope.groupKeyByEnvIndex[col.Index]; ok {
			return b.exprs.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: scope.outputPosition(pos), TargetType: col.DataType}), nil
		}
		if len(scope.groupKeyTypes) > 0 || len(scope.aggs) > 0 {
			return 0, lumen.NewIllegalGroupByError(ref.Name)
		}
	}
	// TableID doubles as the correlated-reference depth (0 = current query) for
	// InputRef nodes; Index is the tuple position within that depth's environment.
	return b.exprs.Add(plan.ExprNode{Kind: plan.ExprInputRef, TableID: uint32(depth), Index: col.Index, TargetType: col.DataType}), nil
}

func (b *Binder) bindBinaryExpr(n *ast.BinaryExpr, scope *aggScope) (plan.NodeID, error) {
	left, err := b.bindExprIn(n.Left, scope)
	if err != nil {
		return 0, err
	}
	right, err := b.bindExprIn(n.Right, scope)
	if err != nil {
		return 0, err
	}
	op, err := binOpFromToken(n.Op)
	if err != nil {
		return 0, err
	}
	if op != lumen.OpAnd && op != lumen.OpOr {
		left, right, err = b.bindBinaryOperands(left, right)
		if err != nil {
			return 0, err
		}
	}
	return b.exprs.Add(plan.ExprNode{Kind: plan.ExprBinaryOp, BinOp: op, Left: left, Right: right}), nil
}

func (b *Binder) bindUnaryExpr(n *ast.UnaryExpr, scope *aggScope) (plan.NodeID, error) {
	child, err := b.bindExprIn(n.Expr, scope)
	if err != nil {
		return 0, err
	}
	op, err := unOpFromToken(n.Op)
	if err != nil {
		return 0, err
	}
	return b.exprs.Add(plan.ExprNode{Kind: plan.ExprUnaryOp, UnOp: op, Child: child}), nil
}

func (b *Binder) bindCastExpr(n *ast.CastExpr, scope *aggScope) (plan.NodeID, error) {
	child, err := b.bindExprIn(n.Expr, scope)
	if err != nil {
		return 0, err
	}
	target, err := typeFromName(n.TargetType)
	if err != nil {
		return 0, err
	}
	return b.exprs.Add(plan.ExprNode{Kind: plan.ExprCast, Child: child, TargetType: target}), nil
}

func (b *Binder) bindLikeExpr(n *ast.LikeExpr, scope *aggScope) (plan.NodeID, error) {
	subject, err := b.bindExprIn(n.Expr, scope)
	if err != nil {
		return 0, err
	}
	pattern, err := b.bindExprIn(n.Pattern, scope)
	if err != nil {
		return 0, err
	}
	escape := plan.Invalid
	if n.Escape != nil {
		escape, err = b.bindExprIn(n.Escape, scope)
		if err != nil {
			return 0, err
		}
	}
	return b.exprs.Add(plan.ExprNode{Kind: plan.ExprLike, Child: subject, Pattern: pattern, Escape: escape, Negated: n.Not}), nil
}

func (b *Binder) bindBetweenExpr(n *ast.BetweenExpr, scope *aggScope) (plan.NodeID, error) {
	subject, err := b.bindExprIn(n.Expr, scope)
	if err != nil {
		return 0, err
	}
	low, err := b.bindExprIn(n.Low, scope)
	if err != nil {
		return 0, err
	}
	high, err := b.bindExprIn(n.High, scope)
	if err != nil {
		return 0, err
	}
	return b.exprs.Add(plan.ExprNode{Kind: plan.ExprBetween, Child: subject, Low: low, High: high, Negated: n.Not}), nil
}

func (b *Binder) bindInExpr(n *ast.InExpr, scope *aggScope) (plan.NodeID, error) {
	subject, err := b.bindExprIn(n.Expr, scope)
	if err != nil {
		return 0, err
	}
	if n.Subquery != nil {
		sub, _, err := b.bindSelectBody(b.currentSchema, n.Subquery)
		if err != nil {
			return 0, err
		}
		return b.exprs.Add(plan.ExprNode{Kind: plan.ExprIn, Child: subject, SubqueryID: int(sub), HasSubquery: true, Negated: n.Not}), nil
	}
	list := make([]plan.NodeID, len(n.List))
	for i, item := range n.List {
		id, err := b.bindExprIn(item, scope)
		if err != nil {
			return 0, err
		}
		list[i] = id
	}
	return b.exprs.Add(plan.ExprNode{Kind: plan.ExprIn, Child: subject, List: list, Negated: n.Not}), nil
}

func (b *Binder) bindExistsExpr(n *ast.ExistsExpr) (plan.NodeID, error) {
	sub, _, err := b.bindSelectBody(b.currentSchema, n.Subquery)
	if err != nil {
		return 0, err
	}
	return b.exprs.Add(plan.ExprNode{Kind: plan.ExprExists, SubqueryID: int(sub), HasSubquery: true, Negated: n.Not}), nil
}

// bindScalarSubquery wraps the subquery's plan in Max1Row (spec.md's scalar
// subquery rule: errors at runtime if the subquery yields more than one row).
func (b *Binder) bindScalarSubquery(n *ast.SubqueryExpr) (plan.NodeID, error) {
	sub, innerEnv, err := b.bindSelectBody(b.currentSchema, n.Query)
	if err != nil {
		return 0, err
	}
	if len(innerEnv.Columns) != 1 {
		return 0, lumen.NewPlanInvalidError("scalar subquery must project exactly one column")
	}
	return b.exprs.Add(plan.ExprNode{
		Kind:        plan.ExprMax1Row,
		SubqueryID:  int(sub),
		HasSubquery: true,
		TargetType:  innerEnv.Columns[0].DataType,
	}), nil
}

func (b *Binder) bindCaseExpr(n *ast.CaseExpr, scope *aggScope) (plan.NodeID, error) {
	operand := plan.Invalid
	var err error
	if n.Operand != nil {
		operand, err = b.bindExprIn(n.Operand, scope)
		if err != nil {
			return 0, err
		}
	}
	whens := make([]plan.WhenClause, len(n.Whens))
	for i, w := range n.Whens {
		cond, err := b.bindExprIn(w.Condition, scope)
		if err != nil {
			return 0, err
		}
		if operand != plan.Invalid {
			eq := b.exprs.Add(plan.ExprNode{Kind: plan.ExprBinaryOp, BinOp: lumen.OpEq, Left: operand, Right: cond})
			cond = eq
		}
		result, err := b.bindExprIn(w.Result, scope)
		if err != nil {
			return 0, err
		}
		whens[i] = plan.WhenClause{Condition: cond, Result: result}
	}
	elseID := plan.Invalid
	if n.Else != nil {
		elseID, err = b.bindExprIn(n.Else, scope)
		if err != nil {
			return 0, err
		}
	}
	return b.exprs.Add(plan.ExprNode{Kind: plan.ExprCase, Operand: operand, Whens: whens, Else: elseID}), nil
}

func (b *Binder) bindFunctionCall(fn *ast.FunctionCall, scope *aggScope) (plan.NodeID, error) {
	lname := strings.ToLower(fn.Name)
	if isAggregateCall(lname) {
		if scope == nil {
			return 0, lumen.NewPlanInvalidError(fmt.Sprintf("aggregate function %s not allowed here", fn.Name))
		}
		return b.bindAggregateCall(lname, fn, scope)
	}

	if udf, err := b.catalog.LookupFunction(b.currentSchema, fn.Name); err == nil {
		return b.inlineUDF(fn, udf, scope)
	}

	args := make([]plan.NodeID, len(fn.Args))
	for i, a := range fn.Args {
		id, err := b.bindExprIn(a, scope)
		if err != nil {
			return 0, err
		}
		args[i] = id
	}
	retType, err := builtinFunctionReturnType(lname, b, args)
	if err != nil {
		return 0, err
	}
	return b.exprs.Add(plan.ExprNode{Kind: plan.ExprFunction, FuncName: lname, Args: args, TargetType: retType}), nil
}

// bindAggregateCall binds one aggregate call, registering it with scope and
// returning an InputRef to its position in the Aggregate node's output
// tuple. avg is rewritten to sum(x)/count(x) at bind time, matching spec.md
// §4.6's expression-rule placement for that rewrite but performed eagerly
// here since the binder already has the argument's type in hand.
func (b *Binder) bindAggregateCall(lname string, fn *ast.FunctionCall, scope *aggScope) (plan.NodeID, error) {
	if lname == "avg" {
		sumID, err := b.registerAgg(plan.AggSum, fn.Args, fn.Distinct, scope, "avg_sum")
		if err != nil {
			return 0, err
		}
		countID, err := b.registerAgg(plan.AggCount, fn.Args, fn.Distinct, scope, "avg_count")
		if err != nil {
			return 0, err
		}
		sumFloat := b.insertCastIfNeeded(sumID, lumen.Float64Type(true))
		countFloat := b.insertCastIfNeeded(countID, lumen.Float64Type(false))
		return b.exprs.Add(plan.ExprNode{Kind: plan.ExprBinaryOp, BinOp: lumen.OpDiv, Left: sumFloat, Right: countFloat}), nil
	}

	kind := aggregateNames[lname]
	if kind == plan.AggCount && fn.Star {
		return b.registerAgg(plan.AggCountStar, nil, false, scope, "count_star")
	}
	return b.registerAgg(kind, fn.Args, fn.Distinct, scope, lname)
}

func (b *Binder) registerAgg(kind plan.AggKind, astArgs []ast.Expr, distinct bool, scope *aggScope, sigPrefix string) (plan.NodeID, error) {
	args := make([]plan.NodeID, len(astArgs))
	for i, a := range astArgs {
		id, err := b.bindExpr(a)
		if err != nil {
			return 0, err
		}
		args[i] = id
	}
	sig := fmt.Sprintf("%s:%d:%v", sigPrefix, kind, args)
	if pos, ok := scope.aggSigIndex[sig]; ok {
		return b.exprs.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: scope.outputPosition(pos), TargetType: b.aggReturnType(kind, args)}), nil
	}

	retType := b.aggReturnType(kind, args)
	callID := b.exprs.Add(plan.ExprNode{Kind: plan.ExprAggCall, AggKind: kind, AggArgs: args, AggDistinct: distinct, TargetType: retType})
	pos := len(scope.aggs)
	scope.aggs = append(scope.aggs, plan.AggCallRef{Expr: callID})
	scope.aggSigIndex[sig] = pos
	return b.exprs.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: scope.outputPosition(pos), TargetType: retType}), nil
}

func (b *Binder) aggReturnType(kind plan.AggKind, args []plan.NodeID) lumen.DataType {
	switch kind {
	case plan.AggCountStar, plan.AggCount:
		return lumen.Int64Type(false)
	case plan.AggSum:
		if len(args) == 0 {
			return lumen.Float64Type(true)
		}
		return b.exprs.ReturnType(args[0]).WithNullable(true)
	case plan.AggMin, plan.AggMax, plan.AggFirst, plan.AggLast:
		if len(args) == 0 {
			return lumen.NullType()
		}
		return b.exprs.ReturnType(args[0]).WithNullable(true)
	default:
		return lumen.NullType()
	}
}

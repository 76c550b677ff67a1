package binder

import (
	"fmt"
	"strings"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/ast"
	"github.com/lumen-db/lumen/catalog"
	"github.com/lumen-db/lumen/plan"
)

// binOpFromToken validates the parser's textual operator token against the
// closed set lumen.BinaryOp defines; the token spellings are already
// identical to lumen's (spec.md §3's evaluator is the single source of
// truth for what operators exist).
func binOpFromToken(tok string) (lumen.BinaryOp, error) {
	op := lumen.BinaryOp(strings.ToUpper(tok))
	switch op {
	case lumen.OpAdd, lumen.OpSub, lumen.OpMul, lumen.OpDiv, lumen.OpMod,
		lumen.OpEq, lumen.OpNeq, lumen.OpLt, lumen.OpLe, lumen.OpGt, lumen.OpGe,
		lumen.OpAnd, lumen.OpOr, lumen.OpConcat:
		return op, nil
	default:
		return "", lumen.NewPlanInvalidError(fmt.Sprintf("unknown binary operator %q", tok))
	}
}

func unOpFromToken(tok string) (lumen.UnaryOp, error) {
	switch strings.ToUpper(tok) {
	case "-":
		return lumen.OpNeg, nil
	case "NOT", "!":
		return lumen.OpNot, nil
	default:
		return "", lumen.NewPlanInvalidError(fmt.Sprintf("unknown unary operator %q", tok))
	}
}

// typeFromName resolves a textual type name (as it would appear in CAST or a
// CREATE TABLE column definition) to a lumen.DataType. Parameterized forms
// (DECIMAL(p,s), VECTOR(n)) are handled by columnTypeFromDef, which has the
// extra arguments available; this covers the scalar names CAST sees.
func typeFromName(name string) (lumen.DataType, error) {
	switch strings.ToUpper(name) {
	case "BOOL", "BOOLEAN":
		return lumen.BoolType(true), nil
	case "INT16", "SMALLINT":
		return lumen.Int16Type(true), nil
	case "INT32", "INT", "INTEGER":
		return lumen.Int32Type(true), nil
	case "INT64", "BIGINT":
		return lumen.Int64Type(true), nil
	case "FLOAT64", "DOUBLE", "FLOAT":
		return lumen.Float64Type(true), nil
	case "STRING", "TEXT", "VARCHAR":
		return lumen.StringType(true), nil
	case "BLOB", "BINARY", "BYTES":
		return lumen.BlobType(true), nil
	case "DATE":
		return lumen.DateType(true), nil
	case "TIMESTAMP":
		return lumen.TimestampType(true), nil
	case "INTERVAL":
		return lumen.IntervalType(true), nil
	default:
		return lumen.DataType{}, lumen.NewPlanInvalidError(fmt.Sprintf("unknown type name %q", name))
	}
}

// columnTypeFromDef resolves a full CREATE TABLE column definition,
// including the parameterized DECIMAL and VECTOR forms.
func columnTypeFromDef(def ast.ColumnDef) (lumen.DataType, error) {
	switch strings.ToUpper(def.TypeName) {
	case "DECIMAL", "NUMERIC":
		return lumen.DecimalType(def.Precision, def.Scale, def.Nullable), nil
	case "VECTOR":
		return lumen.VectorType(def.VectorLen, def.Nullable), nil
	default:
		base, err := typeFromName(def.TypeName)
		if err != nil {
			return lumen.DataType{}, err
		}
		return base.WithNullable(def.Nullable), nil
	}
}

// builtinFunctionReturnType covers the small set of scalar builtins not
// routed through the aggregate or UDF paths (spec.md §4.4's scalar function
// binding). Unknown names are rejected with a BindNotFound error rather than
// silently passing through.
func builtinFunctionReturnType(name string, b *Binder, args []plan.NodeID) (lumen.DataType, error) {
	switch name {
	case "upper", "lower", "trim", "concat":
		return lumen.StringType(true), nil
	case "length", "char_length":
		return lumen.Int64Type(true), nil
	case "abs", "round", "floor", "ceil":
		if len(args) == 0 {
			return lumen.NullType(), nil
		}
		return b.exprs.ReturnType(args[0]), nil
	case "coalesce":
		if len(args) == 0 {
			return lumen.NullType(), nil
		}
		result := b.exprs.ReturnType(args[0])
		for _, a := range args[1:] {
			if u, ok := result.Union(b.exprs.ReturnType(a)); ok {
				result = u
			}
		}
		return result, nil
	default:
		return lumen.DataType{}, lumen.NewBindNotFoundError("function", name)
	}
}

// inlineUDF substitutes fn's call-site arguments for udf's formal
// parameters throughout udf.Body, producing a fresh subtree of expr nodes
// rather than reusing udf.Body's nodes directly (capture avoidance: two
// call sites of the same UDF must not alias the same argument nodes, and a
// reused node could be Replace()d by the optimizer for one call site and
// corrupt the other). Recursion is rejected via the Binder's visit-set,
// matching spec.md §4.4's UDF inlining rule.
func (b *Binder) inlineUDF(call *ast.FunctionCall, udf *catalog.FunctionCatalog, scope *aggScope) (plan.NodeID, error) {
	if b.udfVisited[call.Name] {
		return 0, lumen.NewPlanInvalidError(fmt.Sprintf("recursive UDF call: %s", call.Name))
	}
	if len(call.Args) != len(udf.ArgNames) {
		return 0, lumen.NewPlanInvalidError(fmt.Sprintf("function %s expects %d arguments, got %d", call.Name, len(udf.ArgNames), len(call.Args)))
	}

	boundArgs := make([]plan.NodeID, len(call.Args))
	for i, a := range call.Args {
		id, err := b.bindExprIn(a, scope)
		if err != nil {
			return 0, err
		}
		boundArgs[i] = b.insertCastIfNeeded(id, udf.ArgTypes[i])
	}

	substitution := make(map[string]plan.NodeID, len(udf.ArgNames))
	for i, name := range udf.ArgNames {
		substitution[name] = boundArgs[i]
	}

	b.udfVisited[call.Name] = true
	defer delete(b.udfVisited, call.Name)

	result, err := b.substituteUDFBody(udf.Body, substitution)
	if err != nil {
		return 0, err
	}
	return b.insertCastIfNeeded(result, udf.ReturnType), nil
}

// substituteUDFBody walks a UDF's parsed body, replacing ColumnRef leaves
// named in subst with the caller's already-bound argument expressions and
// binding everything else normally. Aggregates and subqueries are rejected
// inside a UDF body: spec.md scopes SQL-bodied functions to scalar
// expressions.
func (b *Binder) substituteUDFBody(body ast.Expr, subst map[string]plan.NodeID) (plan.NodeID, error) {
	switch n := body.(type) {
	case *ast.ColumnRef:
		if n.Qualifier == "" {
			if id, ok := subst[n.Name]; ok {
				return id, nil
			}
		}
		return 0, lumen.NewBindNotFoundError("UDF parameter", n.Name)
	case *ast.Literal:
		return b.bindLiteral(n)
	case *ast.BinaryExpr:
		left, err := b.substituteUDFBody(n.Left, subst)
		if err != nil {
			return 0, err
		}
		right, err := b.substituteUDFBody(n.Right, subst)
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
	case *ast.UnaryExpr:
		child, err := b.substituteUDFBody(n.Expr, subst)
		if err != nil {
			return 0, err
		}
		op, err := unOpFromToken(n.Op)
		if err != nil {
			return 0, err
		}
		return b.exprs.Add(plan.ExprNode{Kind: plan.ExprUnaryOp, UnOp: op, Child: child}), nil
	case *ast.CastExpr:
		child, err := b.substituteUDFBody(n.Expr, subst)
		if err != nil {
			return 0, err
		}
		target, err := typeFromName(n.TargetType)
		if err != nil {
			return 0, err
		}
		return b.exprs.Add(plan.ExprNode{Kind: plan.ExprCast, Child: child, TargetType: target}), nil
	case *ast.CaseExpr:
		operand := plan.Invalid
		var err error
		if n.Operand != nil {
			operand, err = b.substituteUDFBody(n.Operand, subst)
			if err != nil {
				return 0, err
			}
		}
		whens := make([]plan.WhenClause, len(n.Whens))
		for i, w := range n.Whens {
			cond, err := b.substituteUDFBody(w.Condition, subst)
			if err != nil {
				return 0, err
			}
			if operand != plan.Invalid {
				cond = b.exprs.Add(plan.ExprNode{Kind: plan.ExprBinaryOp, BinOp: lumen.OpEq, Left: operand, Right: cond})
			}
			result, err := b.substituteUDFBody(w.Result, subst)
			if err != nil {
				return 0, err
			}
			whens[i] = plan.WhenClause{Condition: cond, Result: result}
		}
		elseID := plan.Invalid
		if n.Else != nil {
			elseID, err = b.substituteUDFBody(n.Else, subst)
			if err != nil {
				return 0, err
			}
		}
		return b.exprs.Add(plan.ExprNode{Kind: plan.ExprCase, Operand: operand, Whens: whens, Else: elseID}), nil
	case *ast.FunctionCall:
		lname := strings.ToLower(n.Name)
		if isAggregateCall(lname) {
			return 0, lumen.NewPlanInvalidError("aggregate functions are not allowed in a UDF body")
		}
		args := make([]plan.NodeID, len(n.Args))
		for i, a := range n.Args {
			id, err := b.substituteUDFBody(a, subst)
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
	default:
		return 0, lumen.NewPlanInvalidError(fmt.Sprintf("unsupported expression in UDF body: %T", body))
	}
}

// Package eval implements spec.md §4.7: evaluating a bound/planned
// expression against a columnar chunk. Every operator in lumen/exec
// produces its output by calling Eval/EvalList rather than hand-rolling
// per-row logic, the same way lumen/array's ArrayImpl.binary_op centralizes
// null propagation and three-valued logic exactly once (spec.md §4.7's
// closing note).
package eval

import (
	"math"
	"regexp"
	"strings"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/plan"
)

// SubqueryRunner executes a correlated or uncorrelated subquery plan
// embedded in an expression (EXISTS, scalar subquery, `x IN (SELECT ...)`)
// for one outer row, returning its result chunk. lumen/eval has no plan
// executor of its own — wiring a concrete implementation (one that re-enters
// lumen/exec's operator graph for the subquery's PlanID, binding correlated
// InputRefs against outerRow) is lumen/exec's responsibility, not this
// package's; Eval only defines the seam.
type SubqueryRunner interface {
	Run(subqueryID int, outerRow array.Row) (*array.DataChunk, error)
}

// Eval evaluates expr against every row of chunk, returning one result
// column. sub may be nil; it is only consulted for ExprExists/ExprMax1Row/
// a subquery-form ExprIn, and evaluating one of those with a nil sub is an
// error rather than a silent wrong answer.
func Eval(g *plan.ExprGraph, id plan.NodeID, chunk *array.DataChunk, sub SubqueryRunner) (*array.Array, error) {
	n := g.Node(id)
	switch n.Kind {
	case plan.ExprConstant:
		return constantArray(n.Value, chunk.Cardinality()), nil

	case plan.ExprInputRef:
		// Clone-cheap: the chunk's column is already reference-counted: the
		// binder guarantees InputRef.Index addresses chunk's own columns
		// directly, so there is nothing to recompute.
		return chunk.ArrayAt(n.Index), nil

	case plan.ExprColumnRef:
		// The bound tree never actually contains this kind today (the
		// binder resolves every column access to a positional InputRef,
		// see DESIGN.md's lumen/binder entry); it's reserved for a future
		// scan-level key-range filter that addresses catalog columns
		// before a chunk with input positions even exists.
		return nil, lumen.NewPlanInvalidError("eval: ColumnRef cannot be evaluated against a chunk")

	case plan.ExprBinaryOp:
		left, err := Eval(g, n.Left, chunk, sub)
		if err != nil {
			return nil, err
		}
		right, err := Eval(g, n.Right, chunk, sub)
		if err != nil {
			return nil, err
		}
		return array.BinaryOp(n.BinOp, left, right)

	case plan.ExprUnaryOp:
		child, err := Eval(g, n.Child, chunk, sub)
		if err != nil {
			return nil, err
		}
		return array.UnaryOp(n.UnOp, child)

	case plan.ExprCast:
		child, err := Eval(g, n.Child, chunk, sub)
		if err != nil {
			return nil, err
		}
		return array.Cast(child, n.TargetType)

	case plan.ExprIsNull:
		return evalIsNull(g, n, chunk, sub)

	case plan.ExprAlias:
		return Eval(g, n.Child, chunk, sub)

	case plan.ExprLike:
		return evalLike(g, n, chunk, sub)

	case plan.ExprBetween:
		return evalBetween(g, n, chunk, sub)

	case plan.ExprIn:
		return evalIn(g, n, chunk, sub)

	case plan.ExprCase:
		return evalCase(g, n, chunk, sub)

	case plan.ExprFunction:
		return evalFunction(g, n, chunk, sub)

	case plan.ExprExists:
		return evalExists(g, n, chunk, sub)

	case plan.ExprMax1Row:
		return evalMax1Row(g, n, chunk, sub)

	case plan.ExprAggCall:
		return nil, lumen.NewPlanInvalidError("eval: aggregate calls are evaluated through array.AggState, not Eval")

	default:
		return nil, lumen.NewPlanInvalidError("eval: unsupported expression kind")
	}
}

// EvalList evaluates every expression in exprs against chunk and assembles
// the results into a new chunk aligned to chunk's cardinality (spec.md
// §4.7's eval_list).
func EvalList(g *plan.ExprGraph, exprs []plan.NodeID, chunk *array.DataChunk, sub SubqueryRunner) (*array.DataChunk, error) {
	cols := make([]*array.Array, len(exprs))
	for i, e := range exprs {
		col, err := Eval(g, e, chunk, sub)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}
	return array.NewDataChunk(cols), nil
}

func constantArray(v lumen.Value, n int) *array.Array {
	b := array.NewBuilder(v.DataType())
	b.PushN(n, &v)
	return b.Finish()
}

func evalIsNull(g *plan.ExprGraph, n plan.ExprNode, chunk *array.DataChunk, sub SubqueryRunner) (*array.Array, error) {
	child, err := Eval(g, n.Child, chunk, sub)
	if err != nil {
		return nil, err
	}
	out := array.NewBuilder(lumen.BoolType(false))
	for i := 0; i < child.Len(); i++ {
		result := child.IsNull(i)
		if n.Negated {
			result = !result
		}
		v := lumen.BoolValue(result)
		out.Push(&v)
	}
	return out.Finish(), nil
}

// evalLike matches SQL LIKE patterns (`%` any run, `_` any single
// character), honoring an optional escape character that makes the
// following wildcard literal. Either operand being null makes the row
// null, per standard three-valued LIKE semantics.
func evalLike(g *plan.ExprGraph, n plan.ExprNode, chunk *array.DataChunk, sub SubqueryRunner) (*array.Array, error) {
	subject, err := Eval(g, n.Child, chunk, sub)
	if err != nil {
		return nil, err
	}
	pattern, err := Eval(g, n.Pattern, chunk, sub)
	if err != nil {
		return nil, err
	}
	var escape *array.Array
	if n.Escape != plan.Invalid {
		escape, err = Eval(g, n.Escape, chunk, sub)
		if err != nil {
			return nil, err
		}
	}
	out := array.NewBuilder(lumen.BoolType(true))
	for i := 0; i < subject.Len(); i++ {
		if subject.IsNull(i) || pattern.IsNull(i) {
			out.Push(nil)
			continue
		}
		esc := byte(0)
		if escape != nil {
			if escape.IsNull(i) {
				out.Push(nil)
				continue
			}
			escStr := escape.Get(i).String()
			if len(escStr) > 0 {
				esc = escStr[0]
			}
		}
		matched := likeMatch(subject.Get(i).String(), pattern.Get(i).String(), esc)
		if n.Negated {
			matched = !matched
		}
		v := lumen.BoolValue(matched)
		out.Push(&v)
	}
	return out.Finish(), nil
}

// likeMatch implements SQL LIKE by translating the pattern into an
// anchored regexp: `%` becomes `.*`, `_` becomes `.`, an escape character
// makes the following wildcard (or the escape character itself) literal,
// and every other run of literal characters is regexp-escaped. This is
// easier to reason about correctly than a hand-rolled backtracking scanner
// and regexp/syntax's own test suite backs its correctness, not ours.
func likeMatch(s, p string, esc byte) bool {
	re, err := regexp.Compile("^" + likeToRegexp(p, esc) + "$")
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func likeToRegexp(p string, esc byte) string {
	var out strings.Builder
	var literalRun strings.Builder
	flushLiteral := func() {
		if literalRun.Len() > 0 {
			out.WriteString(regexp.QuoteMeta(literalRun.String()))
			literalRun.Reset()
		}
	}
	for i := 0; i < len(p); i++ {
		c := p[i]
		if esc != 0 && c == esc && i+1 < len(p) {
			literalRun.WriteByte(p[i+1])
			i++
			continue
		}
		switch c {
		case '%':
			flushLiteral()
			out.WriteString(".*")
		case '_':
			flushLiteral()
			out.WriteString(".")
		default:
			literalRun.WriteByte(c)
		}
	}
	flushLiteral()
	return out.String()
}

func evalBetween(g *plan.ExprGraph, n plan.ExprNode, chunk *array.DataChunk, sub SubqueryRunner) (*array.Array, error) {
	child, err := Eval(g, n.Child, chunk, sub)
	if err != nil {
		return nil, err
	}
	low, err := Eval(g, n.Low, chunk, sub)
	if err != nil {
		return nil, err
	}
	high, err := Eval(g, n.High, chunk, sub)
	if err != nil {
		return nil, err
	}
	ge, err := array.BinaryOp(lumen.OpGe, child, low)
	if err != nil {
		return nil, err
	}
	le, err := array.BinaryOp(lumen.OpLe, child, high)
	if err != nil {
		return nil, err
	}
	inRange, err := array.BinaryOp(lumen.OpAnd, ge, le)
	if err != nil {
		return nil, err
	}
	if !n.Negated {
		return inRange, nil
	}
	return array.UnaryOp(lumen.OpNot, inRange)
}

// evalIn handles the literal-list form of `expr IN (...)`; the subquery
// form is routed through evalExists-style machinery instead, since its
// right-hand side is a plan, not a fixed expression list.
func evalIn(g *plan.ExprGraph, n plan.ExprNode, chunk *array.DataChunk, sub SubqueryRunner) (*array.Array, error) {
	if n.HasSubquery {
		return evalInSubquery(g, n, chunk, sub)
	}
	child, err := Eval(g, n.Child, chunk, sub)
	if err != nil {
		return nil, err
	}
	anyMatch := make([]bool, child.Len())
	anyNull := make([]bool, child.Len())
	for i := 0; i < child.Len(); i++ {
		if child.IsNull(i) {
			anyNull[i] = true
		}
	}
	for _, item := range n.List {
		itemArr, err := Eval(g, item, chunk, sub)
		if err != nil {
			return nil, err
		}
		eq, err := array.BinaryOp(lumen.OpEq, child, itemArr)
		if err != nil {
			return nil, err
		}
		for i := 0; i < eq.Len(); i++ {
			if eq.IsNull(i) {
				anyNull[i] = true
				continue
			}
			if eq.Get(i).Bool() {
				anyMatch[i] = true
			}
		}
	}
	out := array.NewBuilder(lumen.BoolType(true))
	for i := range anyMatch {
		switch {
		case anyMatch[i]:
			v := lumen.BoolValue(!n.Negated)
			out.Push(&v)
		case anyNull[i]:
			out.Push(nil)
		default:
			v := lumen.BoolValue(n.Negated)
			out.Push(&v)
		}
	}
	return out.Finish(), nil
}

func evalCase(g *plan.ExprGraph, n plan.ExprNode, chunk *array.DataChunk, sub SubqueryRunner) (*array.Array, error) {
	card := chunk.Cardinality()
	resolved := make([]lumen.Value, card)
	settled := make([]bool, card)

	var operand *array.Array
	var err error
	if n.Operand != plan.Invalid {
		operand, err = Eval(g, n.Operand, chunk, sub)
		if err != nil {
			return nil, err
		}
	}

	for _, w := range n.Whens {
		condArr, err := Eval(g, w.Condition, chunk, sub)
		if err != nil {
			return nil, err
		}
		resultArr, err := Eval(g, w.Result, chunk, sub)
		if err != nil {
			return nil, err
		}
		for i := 0; i < card; i++ {
			if settled[i] {
				continue
			}
			if operand != nil {
				if operand.IsNull(i) || condArr.IsNull(i) {
					continue
				}
				if lumen.CompareTotal(operand.Get(i), condArr.Get(i)) != 0 {
					continue
				}
			} else {
				if condArr.IsNull(i) || !condArr.Get(i).Bool() {
					continue
				}
			}
			resolved[i] = resultArr.Get(i)
			settled[i] = true
		}
	}

	var elseArr *array.Array
	if n.Else != plan.Invalid {
		elseArr, err = Eval(g, n.Else, chunk, sub)
		if err != nil {
			return nil, err
		}
	}
	for i := 0; i < card; i++ {
		if settled[i] {
			continue
		}
		if elseArr != nil {
			resolved[i] = elseArr.Get(i)
		} else {
			resolved[i] = lumen.NullValue()
		}
	}

	out := array.NewBuilder(caseResultType(g, n))
	for i := range resolved {
		v := resolved[i]
		out.Push(&v)
	}
	return out.Finish(), nil
}

func caseResultType(g *plan.ExprGraph, n plan.ExprNode) lumen.DataType {
	if len(n.Whens) == 0 {
		return lumen.NullType()
	}
	result := g.ReturnType(n.Whens[0].Result)
	for _, w := range n.Whens[1:] {
		if u, ok := result.Union(g.ReturnType(w.Result)); ok {
			result = u
		}
	}
	return result.WithNullable(true)
}

func evalExists(g *plan.ExprGraph, n plan.ExprNode, chunk *array.DataChunk, sub SubqueryRunner) (*array.Array, error) {
	if sub == nil {
		return nil, lumen.NewPlanInvalidError("eval: EXISTS requires a SubqueryRunner")
	}
	out := array.NewBuilder(lumen.BoolType(false))
	for _, row := range chunk.Rows() {
		result, err := sub.Run(n.SubqueryID, row)
		if err != nil {
			return nil, err
		}
		exists := result.Cardinality() > 0
		if n.Negated {
			exists = !exists
		}
		v := lumen.BoolValue(exists)
		out.Push(&v)
	}
	return out.Finish(), nil
}

func evalInSubquery(g *plan.ExprGraph, n plan.ExprNode, chunk *array.DataChunk, sub SubqueryRunner) (*array.Array, error) {
	if sub == nil {
		return nil, lumen.NewPlanInvalidError("eval: subquery IN requires a SubqueryRunner")
	}
	child, err := Eval(g, n.Child, chunk, sub)
	if err != nil {
		return nil, err
	}
	out := array.NewBuilder(lumen.BoolType(true))
	for i, row := range chunk.Rows() {
		if child.IsNull(i) {
			out.Push(nil)
			continue
		}
		result, err := sub.Run(n.SubqueryID, row)
		if err != nil {
			return nil, err
		}
		lhs := child.Get(i)
		found := false
		anyNull := false
		for r := 0; r < result.Cardinality(); r++ {
			rv := result.ArrayAt(0).Get(r)
			if result.ArrayAt(0).IsNull(r) {
				anyNull = true
				continue
			}
			if lumen.CompareTotal(lhs, rv) == 0 {
				found = true
				break
			}
		}
		switch {
		case found:
			v := lumen.BoolValue(!n.Negated)
			out.Push(&v)
		case anyNull:
			out.Push(nil)
		default:
			v := lumen.BoolValue(n.Negated)
			out.Push(&v)
		}
	}
	return out.Finish(), nil
}

func evalMax1Row(g *plan.ExprGraph, n plan.ExprNode, chunk *array.DataChunk, sub SubqueryRunner) (*array.Array, error) {
	if sub == nil {
		return nil, lumen.NewPlanInvalidError("eval: scalar subquery requires a SubqueryRunner")
	}
	out := array.NewBuilder(n.TargetType)
	for _, row := range chunk.Rows() {
		result, err := sub.Run(n.SubqueryID, row)
		if err != nil {
			return nil, err
		}
		if result.Cardinality() > 1 {
			return nil, lumen.NewPlanInvalidError("scalar subquery returned more than one row")
		}
		if result.Cardinality() == 0 {
			out.Push(nil)
			continue
		}
		v := result.ArrayAt(0).Get(0)
		out.Push(&v)
	}
	return out.Finish(), nil
}

func evalFunction(g *plan.ExprGraph, n plan.ExprNode, chunk *array.DataChunk, sub SubqueryRunner) (*array.Array, error) {
	args := make([]*array.Array, len(n.Args))
	for i, a := range n.Args {
		arr, err := Eval(g, a, chunk, sub)
		if err != nil {
			return nil, err
		}
		args[i] = arr
	}

	switch n.FuncName {
	case "upper":
		return mapString(args[0], strings.ToUpper)
	case "lower":
		return mapString(args[0], strings.ToLower)
	case "trim":
		return mapString(args[0], strings.TrimSpace)
	case "concat":
		return concatStrings(args)
	case "length", "char_length":
		return stringLength(args[0])
	case "abs":
		return mapNumeric(args[0], math.Abs, func(i int64) int64 {
			if i < 0 {
				return -i
			}
			return i
		})
	case "floor":
		return mapNumeric(args[0], math.Floor, identity)
	case "ceil":
		return mapNumeric(args[0], math.Ceil, identity)
	case "round":
		return mapNumeric(args[0], math.Round, identity)
	case "coalesce":
		return coalesce(args)
	default:
		return nil, lumen.NewBindNotFoundError("function", n.FuncName)
	}
}

func identity(i int64) int64 { return i }

func mapString(a *array.Array, f func(string) string) (*array.Array, error) {
	out := array.NewBuilder(lumen.StringType(true))
	for i := 0; i < a.Len(); i++ {
		if a.IsNull(i) {
			out.Push(nil)
			continue
		}
		v := lumen.StringValue(f(a.Get(i).String()))
		out.Push(&v)
	}
	return out.Finish(), nil
}

func concatStrings(args []*array.Array) (*array.Array, error) {
	n := 0
	if len(args) > 0 {
		n = args[0].Len()
	}
	out := array.NewBuilder(lumen.StringType(true))
	for i := 0; i < n; i++ {
		anyNull := false
		var sb strings.Builder
		for _, a := range args {
			if a.IsNull(i) {
				anyNull = true
				break
			}
			sb.WriteString(a.Get(i).String())
		}
		if anyNull {
			out.Push(nil)
			continue
		}
		v := lumen.StringValue(sb.String())
		out.Push(&v)
	}
	return out.Finish(), nil
}

func stringLength(a *array.Array) (*array.Array, error) {
	out := array.NewBuilder(lumen.Int64Type(true))
	for i := 0; i < a.Len(); i++ {
		if a.IsNull(i) {
			out.Push(nil)
			continue
		}
		v := lumen.Int64Value(int64(len([]rune(a.Get(i).String()))))
		out.Push(&v)
	}
	return out.Finish(), nil
}

// mapNumeric applies floatFn to float-kinded arrays and intFn to integer-
// kinded ones, preserving the input's declared type (abs/floor/ceil/round
// of an int is the identity, but still must round-trip through the same
// Kind so a caller comparing against the declared TargetType isn't
// surprised).
func mapNumeric(a *array.Array, floatFn func(float64) float64, intFn func(int64) int64) (*array.Array, error) {
	out := array.NewBuilder(a.DataType())
	for i := 0; i < a.Len(); i++ {
		if a.IsNull(i) {
			out.Push(nil)
			continue
		}
		v := a.Get(i)
		var result lumen.Value
		switch v.Kind() {
		case lumen.KindFloat64:
			result = lumen.Float64Value(floatFn(v.Float64()))
		case lumen.KindInt16:
			result = lumen.Int16Value(int16(intFn(int64(v.Int16()))))
		case lumen.KindInt32:
			result = lumen.Int32Value(int32(intFn(int64(v.Int32()))))
		case lumen.KindInt64:
			result = lumen.Int64Value(intFn(v.Int64()))
		default:
			return nil, lumen.NewPlanInvalidError("eval: numeric function applied to a non-numeric column")
		}
		out.Push(&result)
	}
	return out.Finish(), nil
}

func coalesce(args []*array.Array) (*array.Array, error) {
	n := 0
	if len(args) > 0 {
		n = args[0].Len()
	}
	resultType := lumen.NullType()
	for _, a := range args {
		if u, ok := resultType.Union(a.DataType()); ok {
			resultType = u
		}
	}
	out := array.NewBuilder(resultType)
	for i := 0; i < n; i++ {
		var chosen *lumen.Value
		for _, a := range args {
			if !a.IsNull(i) {
				v := a.Get(i)
				chosen = &v
				break
			}
		}
		out.Push(chosen)
	}
	return out.Finish(), nil
}

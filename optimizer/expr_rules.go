package optimizer

import (
	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/plan"
)

// simplifyExpr rewrites id's subtree bottom-up, in place, applying spec.md
// §4.6's expression rules. Because ExprGraph nodes are addressed by a
// stable NodeID and Replace overwrites a node's content without touching
// any other node's reference to that ID, a rewrite here is automatically
// visible to every parent that already points at id — there is nothing
// upstream to fix up.
func simplifyExpr(g *plan.ExprGraph, id plan.NodeID) {
	if id == plan.Invalid {
		return
	}
	n := g.Node(id)
	switch n.Kind {
	case plan.ExprBinaryOp:
		simplifyExpr(g, n.Left)
		simplifyExpr(g, n.Right)
		rewriteBinary(g, id)
	case plan.ExprUnaryOp:
		simplifyExpr(g, n.Child)
		rewriteUnary(g, id)
	case plan.ExprCast, plan.ExprIsNull, plan.ExprAlias:
		simplifyExpr(g, n.Child)
	case plan.ExprLike:
		simplifyExpr(g, n.Child)
		simplifyExpr(g, n.Pattern)
		simplifyExpr(g, n.Escape)
	case plan.ExprBetween:
		simplifyExpr(g, n.Child)
		simplifyExpr(g, n.Low)
		simplifyExpr(g, n.High)
	case plan.ExprIn:
		simplifyExpr(g, n.Child)
		for _, e := range n.List {
			simplifyExpr(g, e)
		}
	case plan.ExprFunction:
		for _, a := range n.Args {
			simplifyExpr(g, a)
		}
	case plan.ExprAggCall:
		for _, a := range n.AggArgs {
			simplifyExpr(g, a)
		}
	case plan.ExprCase:
		if n.Operand != plan.Invalid {
			simplifyExpr(g, n.Operand)
		}
		for _, w := range n.Whens {
			simplifyExpr(g, w.Condition)
			simplifyExpr(g, w.Result)
		}
		simplifyExpr(g, n.Else)
	}
}

// rewriteBinary applies, in priority order: commutative canonicalization,
// constant folding, associative regrouping, the additive/multiplicative
// identities, self-comparison collapse, distributivity, and constant
// moving. Each sub-rule re-reads the node since an earlier one in the same
// call never fires once a later one already replaced id's content.
func rewriteBinary(g *plan.ExprGraph, id plan.NodeID) {
	n := g.Node(id)

	if isAssocCommut(n.BinOp) {
		n = canonicalizeOperandOrder(g, id, n)
	}
	left, right := g.Node(n.Left), g.Node(n.Right)

	if left.Kind == plan.ExprConstant && right.Kind == plan.ExprConstant {
		if folded, err := lumen.EvalBinary(n.BinOp, left.Value, right.Value); err == nil {
			g.Replace(id, plan.ExprNode{Kind: plan.ExprConstant, Value: folded})
			return
		}
	}

	if isAssocCommut(n.BinOp) && tryAssociativeRegroup(g, id, n) {
		return
	}

	switch n.BinOp {
	case lumen.OpAdd:
		if isNumericConst(right, 0) {
			g.Replace(id, g.Node(n.Left))
			return
		}
		if isNumericConst(left, 0) {
			g.Replace(id, g.Node(n.Right))
			return
		}
	case lumen.OpMul:
		if isNumericConst(right, 1) {
			g.Replace(id, g.Node(n.Left))
			return
		}
		if isNumericConst(left, 1) {
			g.Replace(id, g.Node(n.Right))
			return
		}
		if (isNumericConst(right, 0) && !g.ReturnType(n.Left).Nullable()) ||
			(isNumericConst(left, 0) && !g.ReturnType(n.Right).Nullable()) {
			g.Replace(id, plan.ExprNode{Kind: plan.ExprConstant, Value: lumen.Int64Value(0)})
			return
		}
		if tryDistribute(g, id, n) {
			return
		}
	case lumen.OpAnd:
		if sameExpr(g, n.Left, n.Right) {
			g.Replace(id, g.Node(n.Left))
			return
		}
	case lumen.OpOr:
		if sameExpr(g, n.Left, n.Right) {
			g.Replace(id, g.Node(n.Left))
			return
		}
	case lumen.OpEq:
		if sameExpr(g, n.Left, n.Right) {
			collapseSelfComparison(g, id, n.Left, true)
			return
		}
	case lumen.OpNeq:
		if sameExpr(g, n.Left, n.Right) {
			collapseSelfComparison(g, id, n.Left, false)
			return
		}
	}

	if tryConstantMove(g, id, n) {
		return
	}
}

// isAssocCommut reports whether op is one of the associative, commutative
// operators spec.md §4.6 names explicitly: +, *, AND, OR.
func isAssocCommut(op lumen.BinaryOp) bool {
	switch op {
	case lumen.OpAdd, lumen.OpMul, lumen.OpAnd, lumen.OpOr:
		return true
	}
	return false
}

// canonicalizeOperandOrder applies commutativity to put a constant operand
// on the right (a OP k ≡ k OP a), giving every other rule here one shape to
// match instead of two. Safe unconditionally: IEEE-754 +/* are commutative
// bit-for-bit, and the three-valued AND/OR truth tables are symmetric in
// their operands.
func canonicalizeOperandOrder(g *plan.ExprGraph, id plan.NodeID, n plan.ExprNode) plan.ExprNode {
	left, right := g.Node(n.Left), g.Node(n.Right)
	if left.Kind == plan.ExprConstant && right.Kind != plan.ExprConstant {
		g.Replace(id, plan.ExprNode{Kind: plan.ExprBinaryOp, BinOp: n.BinOp, Left: n.Right, Right: n.Left})
		return g.Node(id)
	}
	return n
}

// tryAssociativeRegroup applies associativity for +, *, AND, OR: two
// constants that are not direct siblings, such as in (x + k1) + k2, become
// siblings after re-association and fold into one (x + (k1 + k2)). Operands
// arrive already canonicalized (constant on the right) by
// canonicalizeOperandOrder, and n.Left was already simplified by the
// post-order walk before this call, so the only shape left to detect is
// "(x OP k1) OP k2".
func tryAssociativeRegroup(g *plan.ExprGraph, id plan.NodeID, n plan.ExprNode) bool {
	right := g.Node(n.Right)
	if right.Kind != plan.ExprConstant {
		return false
	}
	left := g.Node(n.Left)
	if left.Kind != plan.ExprBinaryOp || left.BinOp != n.BinOp {
		return false
	}
	innerRight := g.Node(left.Right)
	if innerRight.Kind != plan.ExprConstant {
		return false
	}
	combined, err := lumen.EvalBinary(n.BinOp, innerRight.Value, right.Value)
	if err != nil {
		return false
	}
	combinedID := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: combined})
	g.Replace(id, plan.ExprNode{Kind: plan.ExprBinaryOp, BinOp: n.BinOp, Left: left.Left, Right: combinedID})
	return true
}

// tryDistribute applies a*(b+c) ≡ a*b + a*c (spec.md §4.6). It only fires
// when the non-sum factor is cheap to duplicate (a constant or a bare
// column/input reference); expanding an arbitrary shared subexpression
// would duplicate its evaluation cost for no simplification benefit here.
func tryDistribute(g *plan.ExprGraph, id plan.NodeID, n plan.ExprNode) bool {
	left, right := g.Node(n.Left), g.Node(n.Right)
	var factor, sum plan.NodeID
	switch {
	case right.Kind == plan.ExprBinaryOp && right.BinOp == lumen.OpAdd && isCheapToDuplicate(left):
		factor, sum = n.Left, n.Right
	case left.Kind == plan.ExprBinaryOp && left.BinOp == lumen.OpAdd && isCheapToDuplicate(right):
		factor, sum = n.Right, n.Left
	default:
		return false
	}
	sumNode := g.Node(sum)
	leftTerm := g.Add(plan.ExprNode{Kind: plan.ExprBinaryOp, BinOp: lumen.OpMul, Left: factor, Right: sumNode.Left})
	rightTerm := g.Add(plan.ExprNode{Kind: plan.ExprBinaryOp, BinOp: lumen.OpMul, Left: factor, Right: sumNode.Right})
	g.Replace(id, plan.ExprNode{Kind: plan.ExprBinaryOp, BinOp: lumen.OpAdd, Left: leftTerm, Right: rightTerm})
	simplifyExpr(g, leftTerm)
	simplifyExpr(g, rightTerm)
	return true
}

func isCheapToDuplicate(n plan.ExprNode) bool {
	switch n.Kind {
	case plan.ExprConstant, plan.ExprColumnRef, plan.ExprInputRef:
		return true
	}
	return false
}

// collapseSelfComparison replaces `x = x` (trueWhenEqual=true) or `x <> x`
// (trueWhenEqual=false) with a constant when x can never be null, or with a
// null-preserving CASE when it can — x is still evaluated exactly once,
// via the IS NULL check, instead of twice.
func collapseSelfComparison(g *plan.ExprGraph, id, x plan.NodeID, trueWhenEqual bool) {
	result := lumen.BoolValue(trueWhenEqual)
	if !g.ReturnType(x).Nullable() {
		g.Replace(id, plan.ExprNode{Kind: plan.ExprConstant, Value: result})
		return
	}
	isNull := g.Add(plan.ExprNode{Kind: plan.ExprIsNull, Child: x})
	nullLit := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: lumen.NullValue()})
	resultLit := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: result})
	g.Replace(id, plan.ExprNode{
		Kind:    plan.ExprCase,
		Operand: plan.Invalid,
		Whens:   []plan.WhenClause{{Condition: isNull, Result: nullLit}},
		Else:    resultLit,
	})
}

// tryConstantMove applies `a + k1 OP k2 ≡ a OP (k2 - k1)` for comparison
// operators, moving the additive constant to the other side so a later
// predicate-pushdown/pruning pass sees a bare column on the left.
func tryConstantMove(g *plan.ExprGraph, id plan.NodeID, n plan.ExprNode) bool {
	if !isComparisonOp(n.BinOp) {
		return false
	}
	rightNode := g.Node(n.Right)
	if rightNode.Kind != plan.ExprConstant {
		return false
	}
	leftNode := g.Node(n.Left)
	if leftNode.Kind != plan.ExprBinaryOp || leftNode.BinOp != lumen.OpAdd {
		return false
	}
	lhs, rhs := g.Node(leftNode.Left), g.Node(leftNode.Right)
	var a plan.NodeID
	var k1 lumen.Value
	switch {
	case rhs.Kind == plan.ExprConstant:
		a, k1 = leftNode.Left, rhs.Value
	case lhs.Kind == plan.ExprConstant:
		a, k1 = leftNode.Right, lhs.Value
	default:
		return false
	}
	newK, err := lumen.EvalBinary(lumen.OpSub, rightNode.Value, k1)
	if err != nil {
		return false
	}
	newKID := g.Add(plan.ExprNode{Kind: plan.ExprConstant, Value: newK})
	g.Replace(id, plan.ExprNode{Kind: plan.ExprBinaryOp, BinOp: n.BinOp, Left: a, Right: newKID})
	return true
}

func isComparisonOp(op lumen.BinaryOp) bool {
	switch op {
	case lumen.OpEq, lumen.OpNeq, lumen.OpLt, lumen.OpLe, lumen.OpGt, lumen.OpGe:
		return true
	}
	return false
}

// rewriteUnary applies constant folding and double negation.
func rewriteUnary(g *plan.ExprGraph, id plan.NodeID) {
	n := g.Node(id)
	child := g.Node(n.Child)

	if child.Kind == plan.ExprConstant {
		if folded, err := lumen.EvalUnary(n.UnOp, child.Value); err == nil {
			g.Replace(id, plan.ExprNode{Kind: plan.ExprConstant, Value: folded})
			return
		}
	}

	if n.UnOp == lumen.OpNot {
		switch child.Kind {
		case plan.ExprUnaryOp:
			if child.UnOp == lumen.OpNot {
				g.Replace(id, g.Node(child.Child))
				return
			}
		case plan.ExprBinaryOp:
			// De Morgan: push NOT through AND/OR so a downstream filter-merge
			// or pushdown pass sees two separate negated conjuncts/disjuncts
			// instead of one opaque NOT node.
			if child.BinOp == lumen.OpAnd || child.BinOp == lumen.OpOr {
				notLeft := g.Add(plan.ExprNode{Kind: plan.ExprUnaryOp, UnOp: lumen.OpNot, Child: child.Left})
				notRight := g.Add(plan.ExprNode{Kind: plan.ExprUnaryOp, UnOp: lumen.OpNot, Child: child.Right})
				dual := lumen.OpOr
				if child.BinOp == lumen.OpOr {
					dual = lumen.OpAnd
				}
				g.Replace(id, plan.ExprNode{Kind: plan.ExprBinaryOp, BinOp: dual, Left: notLeft, Right: notRight})
				simplifyExpr(g, notLeft)
				simplifyExpr(g, notRight)
			}
		}
	}
}

func isNumericConst(n plan.ExprNode, want int64) bool {
	if n.Kind != plan.ExprConstant || n.Value.IsNull() {
		return false
	}
	switch n.Value.Kind() {
	case lumen.KindInt16:
		return int64(n.Value.Int16()) == want
	case lumen.KindInt32:
		return int64(n.Value.Int32()) == want
	case lumen.KindInt64:
		return n.Value.Int64() == want
	case lumen.KindFloat64:
		return n.Value.Float64() == float64(want)
	case lumen.KindDecimal:
		d := n.Value.Decimal()
		scaled := want
		for i := 0; i < d.Scale; i++ {
			scaled *= 10
		}
		return d.Unscaled == scaled
	default:
		return false
	}
}

// sameExpr is a structural (not NodeID) equality check over bound
// expression subtrees, bounded to the node kinds cheap enough to compare
// without risking exponential blowup on deeply shared graphs: literals,
// column/input references, and binary/unary ops over already-equal operands.
// It intentionally returns false (rather than recursing arbitrarily deep)
// for anything else — a missed simplification is always safe, a wrong
// "equal" verdict is not.
func sameExpr(g *plan.ExprGraph, a, b plan.NodeID) bool {
	if a == b {
		return true
	}
	if a == plan.Invalid || b == plan.Invalid {
		return false
	}
	na, nb := g.Node(a), g.Node(b)
	if na.Kind != nb.Kind {
		return false
	}
	switch na.Kind {
	case plan.ExprConstant:
		return na.Value.DataType().Equal(nb.Value.DataType()) &&
			na.Value.IsNull() == nb.Value.IsNull() &&
			lumen.CompareTotal(na.Value, nb.Value) == 0
	case plan.ExprColumnRef:
		return na.TableID == nb.TableID && na.ColID == nb.ColID
	case plan.ExprInputRef:
		return na.Index == nb.Index
	case plan.ExprBinaryOp:
		return na.BinOp == nb.BinOp && sameExpr(g, na.Left, nb.Left) && sameExpr(g, na.Right, nb.Right)
	case plan.ExprUnaryOp:
		return na.UnOp == nb.UnOp && sameExpr(g, na.Child, nb.Child)
	default:
		return false
	}
}

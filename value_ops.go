package lumen

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// BinaryOp is the closed set of binary operators the expression evaluator
// and the Value-level constant folder both understand. Null propagation and
// three-valued logic are defined once, here (spec.md §9's centralization
// note): array.BinaryOp calls EvalBinary per element, and no operator
// elsewhere re-implements them.
type BinaryOp string

const (
	OpAdd    BinaryOp = "+"
	OpSub    BinaryOp = "-"
	OpMul    BinaryOp = "*"
	OpDiv    BinaryOp = "/"
	OpMod    BinaryOp = "%"
	OpEq     BinaryOp = "="
	OpNeq    BinaryOp = "<>"
	OpLt     BinaryOp = "<"
	OpLe     BinaryOp = "<="
	OpGt     BinaryOp = ">"
	OpGe     BinaryOp = ">="
	OpAnd    BinaryOp = "AND"
	OpOr     BinaryOp = "OR"
	OpConcat BinaryOp = "||"
)

type UnaryOp string

const (
	OpNeg UnaryOp = "-"
	OpNot UnaryOp = "NOT"
)

// EvalBinary evaluates op(a, b) at row granularity. Constant folding
// (spec.md §4.6) calls it directly, and bulk evaluation reaches it through
// array.BinaryOp, which calls it once per element.
func EvalBinary(op BinaryOp, a, b Value) (Value, error) {
	switch op {
	case OpAnd:
		return threeValuedAnd(a, b), nil
	case OpOr:
		return threeValuedOr(a, b), nil
	}

	if a.IsNull() || b.IsNull() {
		return nullOfBinaryResult(op, a, b), nil
	}

	switch op {
	case OpEq, OpNeq, OpLt, OpLe, OpGt, OpGe:
		c := CompareTotal(a, b)
		var result bool
		switch op {
		case OpEq:
			result = c == 0
		case OpNeq:
			result = c != 0
		case OpLt:
			result = c < 0
		case OpLe:
			result = c <= 0
		case OpGt:
			result = c > 0
		case OpGe:
			result = c >= 0
		}
		return BoolValue(result), nil
	case OpConcat:
		if a.kind != KindString || b.kind != KindString {
			return Value{}, NewNoBinaryOpError(string(op), a.DataType(), b.DataType())
		}
		return StringValue(a.s + b.s), nil
	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		return evalArithmetic(op, a, b)
	default:
		return Value{}, NewNoBinaryOpError(string(op), a.DataType(), b.DataType())
	}
}

// threeValuedAnd implements spec.md's truth table: true AND null = null,
// false AND null = false, null AND null = null.
func threeValuedAnd(a, b Value) Value {
	if !a.IsNull() && a.kind == KindBool && !a.b {
		return BoolValue(false)
	}
	if !b.IsNull() && b.kind == KindBool && !b.b {
		return BoolValue(false)
	}
	if a.IsNull() || b.IsNull() {
		return NullValue()
	}
	return BoolValue(a.b && b.b)
}

// threeValuedOr implements spec.md's truth table: true OR null = true,
// false OR null = null, null OR null = null.
func threeValuedOr(a, b Value) Value {
	if !a.IsNull() && a.kind == KindBool && a.b {
		return BoolValue(true)
	}
	if !b.IsNull() && b.kind == KindBool && b.b {
		return BoolValue(true)
	}
	if a.IsNull() || b.IsNull() {
		return NullValue()
	}
	return BoolValue(a.b || b.b)
}

func nullOfBinaryResult(op BinaryOp, a, b Value) Value {
	return NullValue()
}

func evalArithmetic(op BinaryOp, a, b Value) (Value, error) {
	at, bt := a.kind, b.kind
	if at == KindDate && bt == KindInterval && op == OpAdd {
		return DateValue(a.date + b.ivl.Days + b.ivl.Months*30), nil
	}
	if at == KindInterval && bt == KindDate && op == OpAdd {
		return DateValue(b.date + a.ivl.Days + a.ivl.Months*30), nil
	}
	if !at.isNumeric() || !bt.isNumeric() {
		return Value{}, NewNoBinaryOpError(string(op), a.DataType(), b.DataType())
	}

	// Integer-only path preserves integer division-by-zero semantics
	// (spec.md §9's "ambiguous source behavior" resolution): an integer
	// division or modulo by zero is a Convert error, not a null or ±Inf.
	if at != KindFloat64 && at != KindDecimal && bt != KindFloat64 && bt != KindDecimal {
		ai, bi := int64FromValue(a), int64FromValue(b)
		if (op == OpDiv || op == OpMod) && bi == 0 {
			return Value{}, &Error{
				Type:    ErrorTypeConvert,
				Code:    CodeConvertOverflow,
				Message: "division by zero",
			}
		}
		var result int64
		switch op {
		case OpAdd:
			result = ai + bi
		case OpSub:
			result = ai - bi
		case OpMul:
			result = ai * bi
		case OpDiv:
			result = ai / bi
		case OpMod:
			result = ai % bi
		}
		wider, _ := a.DataType().Union(b.DataType())
		return castIntToKind(result, wider.Kind()), nil
	}

	// Float/decimal path follows IEEE-754: division by zero yields ±Inf or
	// NaN, never an error (spec.md §9).
	af, bf := a.AsFloat64(), b.AsFloat64()
	var result float64
	switch op {
	case OpAdd:
		result = af + bf
	case OpSub:
		result = af - bf
	case OpMul:
		result = af * bf
	case OpDiv:
		result = af / bf
	case OpMod:
		result = math.Mod(af, bf)
	}
	return Float64Value(result), nil
}

func int64FromValue(v Value) int64 {
	switch v.kind {
	case KindInt16:
		return int64(v.i16)
	case KindInt32:
		return int64(v.i32)
	case KindInt64:
		return v.i64
	default:
		return 0
	}
}

func castIntToKind(v int64, kind TypeKind) Value {
	switch kind {
	case KindInt16:
		return Int16Value(int16(v))
	case KindInt32:
		return Int32Value(int32(v))
	default:
		return Int64Value(v)
	}
}

// EvalUnary evaluates a unary operator at row granularity.
func EvalUnary(op UnaryOp, a Value) (Value, error) {
	if a.IsNull() {
		return NullValue(), nil
	}
	switch op {
	case OpNeg:
		switch a.kind {
		case KindInt16:
			return Int16Value(-a.i16), nil
		case KindInt32:
			return Int32Value(-a.i32), nil
		case KindInt64:
			return Int64Value(-a.i64), nil
		case KindFloat64:
			return Float64Value(-a.f64), nil
		case KindDecimal:
			return DecimalValue(Decimal{Unscaled: -a.dec.Unscaled, Scale: a.dec.Scale}), nil
		default:
			return Value{}, NewNoBinaryOpError("-(unary)", a.DataType(), a.DataType())
		}
	case OpNot:
		if a.kind != KindBool {
			return Value{}, NewNoBinaryOpError("NOT", a.DataType(), a.DataType())
		}
		return BoolValue(!a.b), nil
	default:
		return Value{}, NewNoBinaryOpError(string(op), a.DataType(), a.DataType())
	}
}

// Cast converts a value to target's kind. String→number parse failures
// return a typed Convert error rather than a null (spec.md §4.2).
func Cast(v Value, target DataType) (Value, error) {
	if v.IsNull() {
		return NullValue(), nil
	}
	if v.kind == target.kind {
		return v, nil
	}
	switch target.kind {
	case KindInt16, KindInt32, KindInt64:
		i, err := castToInt(v, target)
		if err != nil {
			return Value{}, err
		}
		return i, nil
	case KindFloat64:
		switch v.kind {
		case KindString:
			f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
			if err != nil {
				return Value{}, NewParseValueError(v.s, target)
			}
			return Float64Value(f), nil
		default:
			if !v.kind.isNumeric() {
				return Value{}, NewNoCastError(v.DataType(), target)
			}
			return Float64Value(v.AsFloat64()), nil
		}
	case KindString:
		return StringValue(v.Display()), nil
	case KindBool:
		if v.kind == KindString {
			switch strings.ToLower(strings.TrimSpace(v.s)) {
			case "true", "t", "1":
				return BoolValue(true), nil
			case "false", "f", "0":
				return BoolValue(false), nil
			default:
				return Value{}, NewParseValueError(v.s, target)
			}
		}
		return Value{}, NewNoCastError(v.DataType(), target)
	default:
		return Value{}, NewNoCastError(v.DataType(), target)
	}
}

func castToInt(v Value, target DataType) (Value, error) {
	var raw int64
	switch v.kind {
	case KindString:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64)
		if err != nil {
			return Value{}, NewParseValueError(v.s, target)
		}
		raw = parsed
	case KindFloat64:
		raw = int64(v.f64)
	case KindDecimal:
		raw = v.dec.Unscaled
	default:
		if !v.kind.isNumeric() {
			return Value{}, NewNoCastError(v.DataType(), target)
		}
		raw = int64FromValue(v)
	}
	switch target.kind {
	case KindInt16:
		if raw < -32768 || raw > 32767 {
			return Value{}, NewOverflowError(fmt.Sprintf("%d", raw), target)
		}
		return Int16Value(int16(raw)), nil
	case KindInt32:
		if raw < -2147483648 || raw > 2147483647 {
			return Value{}, NewOverflowError(fmt.Sprintf("%d", raw), target)
		}
		return Int32Value(int32(raw)), nil
	default:
		return Int64Value(raw), nil
	}
}

package lumen

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Decimal is a fixed-point value: an unscaled integer and the number of
// fractional digits (the scale comes from the unscaled value's owning
// DataType, but is duplicated here so a bare Value is self-describing).
type Decimal struct {
	Unscaled int64
	Scale    int
}

func (d Decimal) Float64() float64 {
	return float64(d.Unscaled) / math.Pow10(d.Scale)
}

func (d Decimal) String() string {
	s := strconv.FormatInt(d.Unscaled, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	for len(s) <= d.Scale {
		s = "0" + s
	}
	whole, frac := s[:len(s)-d.Scale], s[len(s)-d.Scale:]
	out := whole
	if d.Scale > 0 {
		out = whole + "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// Interval is a calendar interval: months, days, and nanoseconds, matching
// arrow-go's MonthDayNanoInterval layout so array/interval.go can wrap arrow
// builders/arrays directly.
type Interval struct {
	Months int32
	Days   int32
	Nanos  int64
}

// Value is a tagged union over the scalar type set plus Null. A value is
// Null iff Kind()==KindNull; an array's own validity bitmap (not this type)
// is what represents per-row nullness inside a column (spec.md §4.1's
// invariant: never both simultaneously inside an array).
type Value struct {
	kind TypeKind
	null bool

	b    bool
	i16  int16
	i32  int32
	i64  int64
	f64  float64
	dec  Decimal
	s    string
	blob []byte
	date int32 // days since Unix epoch
	ts   int64 // microseconds since Unix epoch
	ivl  Interval
	vec  []float64
	st   []Value
}

func NullValue() Value                 { return Value{kind: KindNull, null: true} }
func BoolValue(v bool) Value           { return Value{kind: KindBool, b: v} }
func Int16Value(v int16) Value         { return Value{kind: KindInt16, i16: v} }
func Int32Value(v int32) Value         { return Value{kind: KindInt32, i32: v} }
func Int64Value(v int64) Value         { return Value{kind: KindInt64, i64: v} }
func Float64Value(v float64) Value     { return Value{kind: KindFloat64, f64: v} }
func DecimalValue(v Decimal) Value     { return Value{kind: KindDecimal, dec: v} }
func StringValue(v string) Value       { return Value{kind: KindString, s: v} }
func BlobValue(v []byte) Value         { return Value{kind: KindBlob, blob: v} }
func DateValue(daysSinceEpoch int32) Value {
	return Value{kind: KindDate, date: daysSinceEpoch}
}
func TimestampValue(microsSinceEpoch int64) Value {
	return Value{kind: KindTimestamp, ts: microsSinceEpoch}
}
func IntervalValue(v Interval) Value { return Value{kind: KindInterval, ivl: v} }
func VectorValue(v []float64) Value  { return Value{kind: KindVector, vec: v} }
func StructValue(fields []Value) Value {
	return Value{kind: KindStruct, st: fields}
}

func (v Value) IsNull() bool   { return v.null || v.kind == KindNull }
func (v Value) Kind() TypeKind { return v.kind }

// DataType infers the type of a concrete value (spec.md §4.1). Decimal
// values report their carried scale with a conservative default precision;
// callers that need the declared column type should use the column's own
// DataType rather than re-infer it from a Value.
func (v Value) DataType() DataType {
	switch v.kind {
	case KindNull:
		return NullType()
	case KindDecimal:
		return DecimalType(38, v.dec.Scale, false)
	case KindVector:
		return VectorType(len(v.vec), false)
	case KindStruct:
		fields := make([]DataType, len(v.st))
		names := make([]string, len(v.st))
		for i, f := range v.st {
			fields[i] = f.DataType()
			names[i] = fmt.Sprintf("f%d", i)
		}
		return StructType(names, fields, false)
	default:
		return newType(v.kind, false)
	}
}

func (v Value) Bool() bool         { return v.b }
func (v Value) Int16() int16       { return v.i16 }
func (v Value) Int32() int32       { return v.i32 }
func (v Value) Int64() int64       { return v.i64 }
func (v Value) Float64() float64   { return v.f64 }
func (v Value) Decimal() Decimal   { return v.dec }
func (v Value) String() string     { return v.s }
func (v Value) Blob() []byte       { return v.blob }
func (v Value) Date() int32        { return v.date }
func (v Value) Timestamp() int64   { return v.ts }
func (v Value) Interval() Interval { return v.ivl }
func (v Value) Vector() []float64  { return v.vec }
func (v Value) StructFields() []Value { return v.st }

// AsFloat64 widens any numeric value to float64, used for cross-kind
// arithmetic and total-ordering comparisons.
func (v Value) AsFloat64() float64 {
	switch v.kind {
	case KindInt16:
		return float64(v.i16)
	case KindInt32:
		return float64(v.i32)
	case KindInt64:
		return float64(v.i64)
	case KindFloat64:
		return v.f64
	case KindDecimal:
		return v.dec.Float64()
	default:
		return 0
	}
}

// Display renders a value the way CopyTo/EXPLAIN/error messages do.
func (v Value) Display() string {
	if v.IsNull() {
		return "NULL"
	}
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt16:
		return strconv.FormatInt(int64(v.i16), 10)
	case KindInt32:
		return strconv.FormatInt(int64(v.i32), 10)
	case KindInt64:
		return strconv.FormatInt(v.i64, 10)
	case KindFloat64:
		return formatTotalOrderedFloat(v.f64)
	case KindDecimal:
		return v.dec.String()
	case KindString:
		return v.s
	case KindBlob:
		return fmt.Sprintf("\\x%x", v.blob)
	case KindDate:
		return fmt.Sprintf("%d", v.date)
	case KindTimestamp:
		return fmt.Sprintf("%d", v.ts)
	case KindInterval:
		return fmt.Sprintf("%dmo %dd %dns", v.ivl.Months, v.ivl.Days, v.ivl.Nanos)
	case KindVector:
		parts := make([]string, len(v.vec))
		for i, f := range v.vec {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindStruct:
		parts := make([]string, len(v.st))
		for i, f := range v.st {
			parts[i] = f.Display()
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return "NULL"
	}
}

func formatTotalOrderedFloat(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// CompareTotal implements the total ordering of spec.md §3/§9: Float64
// compares by IEEE-754 total order (NaN orders as a value equal to itself,
// deterministically after +Inf), used by GROUP BY key equality, ORDER BY,
// and hash-table keys. NULL sorts after every non-null value of its type,
// and equals itself exactly once.
func CompareTotal(a, b Value) int {
	if a.IsNull() && b.IsNull() {
		return 0
	}
	if a.IsNull() {
		return 1
	}
	if b.IsNull() {
		return -1
	}
	if a.kind.isNumeric() && b.kind.isNumeric() {
		af, bf := a.AsFloat64(), b.AsFloat64()
		return compareTotalFloat(af, bf)
	}
	switch a.kind {
	case KindBool:
		return compareBool(a.b, b.b)
	case KindString:
		return strings.Compare(a.s, b.s)
	case KindBlob:
		return strings.Compare(string(a.blob), string(b.blob))
	case KindDate:
		return compareInt64(int64(a.date), int64(b.date))
	case KindTimestamp:
		return compareInt64(a.ts, b.ts)
	case KindInterval:
		if c := compareInt64(int64(a.ivl.Months), int64(b.ivl.Months)); c != 0 {
			return c
		}
		if c := compareInt64(int64(a.ivl.Days), int64(b.ivl.Days)); c != 0 {
			return c
		}
		return compareInt64(a.ivl.Nanos, b.ivl.Nanos)
	case KindVector:
		for i := 0; i < len(a.vec) && i < len(b.vec); i++ {
			if c := compareTotalFloat(a.vec[i], b.vec[i]); c != 0 {
				return c
			}
		}
		return compareInt64(int64(len(a.vec)), int64(len(b.vec)))
	case KindStruct:
		for i := 0; i < len(a.st) && i < len(b.st); i++ {
			if c := CompareTotal(a.st[i], b.st[i]); c != 0 {
				return c
			}
		}
		return 0
	default:
		return 0
	}
}

// compareTotalFloat orders by IEEE-754 total order with NaN treated as equal
// to itself and greater than +Inf, so sorts/hashes are deterministic.
func compareTotalFloat(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	if aNaN && bNaN {
		return 0
	}
	if aNaN {
		return 1
	}
	if bNaN {
		return -1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// HashTotal produces a hash consistent with CompareTotal equality, used by
// HashAgg/HashJoin group-key and build-side hashing.
func HashTotal(v Value) uint64 {
	const fnvOffset = 14695981039346656037
	const fnvPrime = 1099511628211
	h := uint64(fnvOffset)
	mix := func(b byte) {
		h ^= uint64(b)
		h *= fnvPrime
	}
	if v.IsNull() {
		mix(0xFF)
		return h
	}
	switch {
	case v.kind.isNumeric():
		bits := math.Float64bits(v.AsFloat64())
		for i := 0; i < 8; i++ {
			mix(byte(bits >> (8 * i)))
		}
	case v.kind == KindString:
		for i := 0; i < len(v.s); i++ {
			mix(v.s[i])
		}
	case v.kind == KindBlob:
		for _, b := range v.blob {
			mix(b)
		}
	case v.kind == KindBool:
		if v.b {
			mix(1)
		} else {
			mix(0)
		}
	case v.kind == KindDate:
		for i := 0; i < 4; i++ {
			mix(byte(v.date >> (8 * i)))
		}
	case v.kind == KindTimestamp:
		for i := 0; i < 8; i++ {
			mix(byte(v.ts >> (8 * i)))
		}
	default:
		for _, c := range v.Display() {
			mix(byte(c))
		}
	}
	return h
}

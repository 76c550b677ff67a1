// Package array implements the columnar array model of spec.md §4.2: a
// tagged union over per-scalar-type immutable array variants, their
// builders, and the DataChunk/DataChunkBuilder batch types every operator in
// lumen/exec consumes and produces.
//
// Scalar kinds backed by apache/arrow-go/v18 (Bool, Int16/32/64, Float64,
// Decimal, String, Blob, Date, Timestamp, Interval) reuse arrow's builders
// and arrays directly, matching lumen's Interval/Decimal layouts to arrow's
// own (value.go's doc comment notes this explicitly). Vector and Struct are
// native Go slices: their element-by-element total-ordering/hashing logic
// (lumen.CompareTotal/HashTotal) needs direct field access that arrow's
// reflective array API does not offer as cheaply, so they stay outside the
// arrow-backed set (see DESIGN.md's Open Question decision).
package array

import (
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/lumen-db/lumen"
)

// Array is the columnar array model's tagged union: a densely packed,
// immutable value block with a parallel validity bitmap (spec.md §4.2).
type Array struct {
	kind   lumen.TypeKind
	dtype  lumen.DataType
	length int

	boolArr *array.Boolean
	i16Arr  *array.Int16
	i32Arr  *array.Int32
	i64Arr  *array.Int64
	f64Arr  *array.Float64
	decArr  *array.Decimal128
	strArr  *array.String
	blobArr *array.Binary
	dateArr *array.Date32
	tsArr   *array.Timestamp
	ivlArr  *array.MonthDayNanoInterval

	// native backing for Vector/Struct (see package doc comment)
	vecValid []bool
	vecData  [][]float64
	stValid  []bool
	stData   [][]lumen.Value
}

var allocator = memory.DefaultAllocator

// Len returns the array's cardinality.
func (a *Array) Len() int { return a.length }

// DataType returns the array's element type.
func (a *Array) DataType() lumen.DataType { return a.dtype }

// IsNull reports whether element i is null.
func (a *Array) IsNull(i int) bool {
	switch a.kind {
	case lumen.KindBool:
		return a.boolArr.IsNull(i)
	case lumen.KindInt16:
		return a.i16Arr.IsNull(i)
	case lumen.KindInt32:
		return a.i32Arr.IsNull(i)
	case lumen.KindInt64:
		return a.i64Arr.IsNull(i)
	case lumen.KindFloat64:
		return a.f64Arr.IsNull(i)
	case lumen.KindDecimal:
		return a.decArr.IsNull(i)
	case lumen.KindString:
		return a.strArr.IsNull(i)
	case lumen.KindBlob:
		return a.blobArr.IsNull(i)
	case lumen.KindDate:
		return a.dateArr.IsNull(i)
	case lumen.KindTimestamp:
		return a.tsArr.IsNull(i)
	case lumen.KindInterval:
		return a.ivlArr.IsNull(i)
	case lumen.KindVector:
		return !a.vecValid[i]
	case lumen.KindStruct:
		return !a.stValid[i]
	default:
		return true
	}
}

// Get returns a borrowed (by-value, since Value is a small immutable
// struct) scalar at row i.
func (a *Array) Get(i int) lumen.Value {
	if a.IsNull(i) {
		return lumen.NullValue()
	}
	switch a.kind {
	case lumen.KindBool:
		return lumen.BoolValue(a.boolArr.Value(i))
	case lumen.KindInt16:
		return lumen.Int16Value(a.i16Arr.Value(i))
	case lumen.KindInt32:
		return lumen.Int32Value(a.i32Arr.Value(i))
	case lumen.KindInt64:
		return lumen.Int64Value(a.i64Arr.Value(i))
	case lumen.KindFloat64:
		return lumen.Float64Value(a.f64Arr.Value(i))
	case lumen.KindDecimal:
		v := a.decArr.Value(i)
		return lumen.DecimalValue(lumen.Decimal{Unscaled: int64(v.LowBits()), Scale: a.dtype.Scale()})
	case lumen.KindString:
		return lumen.StringValue(a.strArr.Value(i))
	case lumen.KindBlob:
		return lumen.BlobValue(a.blobArr.Value(i))
	case lumen.KindDate:
		return lumen.DateValue(int32(a.dateArr.Value(i)))
	case lumen.KindTimestamp:
		return lumen.TimestampValue(int64(a.tsArr.Value(i)))
	case lumen.KindInterval:
		v := a.ivlArr.Value(i)
		return lumen.IntervalValue(lumen.Interval{Months: v.Months, Days: v.Days, Nanos: v.Nanoseconds})
	case lumen.KindVector:
		return lumen.VectorValue(a.vecData[i])
	case lumen.KindStruct:
		return lumen.StructValue(a.stData[i])
	default:
		return lumen.NullValue()
	}
}

// Filter returns a new array containing only the rows where mask is true,
// preserving order (spec.md §4.2's DataChunk.filter, applied per column).
func (a *Array) Filter(mask []bool) *Array {
	b := NewBuilder(a.dtype)
	for i := 0; i < a.length; i++ {
		if !mask[i] {
			continue
		}
		if a.IsNull(i) {
			b.Push(nil)
			continue
		}
		v := a.Get(i)
		b.Push(&v)
	}
	return b.Finish()
}

// Slice returns a new array over the half-open row range [start, end).
func (a *Array) Slice(start, end int) *Array {
	b := NewBuilder(a.dtype)
	for i := start; i < end; i++ {
		if a.IsNull(i) {
			b.Push(nil)
			continue
		}
		v := a.Get(i)
		b.Push(&v)
	}
	return b.Finish()
}


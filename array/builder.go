package array

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"

	"github.com/lumen-db/lumen"
)

// Builder is a single-owner, append-only collector that produces an
// immutable Array on Finish (spec.md §4.2). Builders preserve append order
// and report their current element count via Len.
type Builder struct {
	kind  lumen.TypeKind
	dtype lumen.DataType
	n     int

	boolB *array.BooleanBuilder
	i16B  *array.Int16Builder
	i32B  *array.Int32Builder
	i64B  *array.Int64Builder
	f64B  *array.Float64Builder
	decB  *array.Decimal128Builder
	strB  *array.StringBuilder
	blobB *array.BinaryBuilder
	dateB *array.Date32Builder
	tsB   *array.TimestampBuilder
	ivlB  *array.MonthDayNanoIntervalBuilder

	vecValid []bool
	vecData  [][]float64
	stValid  []bool
	stData   [][]lumen.Value
}

// NewBuilder allocates a Builder for dtype's kind.
func NewBuilder(dtype lumen.DataType) *Builder {
	b := &Builder{kind: dtype.Kind(), dtype: dtype}
	switch dtype.Kind() {
	case lumen.KindBool:
		b.boolB = array.NewBooleanBuilder(allocator)
	case lumen.KindInt16:
		b.i16B = array.NewInt16Builder(allocator)
	case lumen.KindInt32:
		b.i32B = array.NewInt32Builder(allocator)
	case lumen.KindInt64:
		b.i64B = array.NewInt64Builder(allocator)
	case lumen.KindFloat64:
		b.f64B = array.NewFloat64Builder(allocator)
	case lumen.KindDecimal:
		b.decB = array.NewDecimal128Builder(allocator, &arrow.Decimal128Type{
			Precision: int32(dtype.Precision()), Scale: int32(dtype.Scale()),
		})
	case lumen.KindString:
		b.strB = array.NewStringBuilder(allocator)
	case lumen.KindBlob:
		b.blobB = array.NewBinaryBuilder(allocator, arrow.BinaryTypes.Binary)
	case lumen.KindDate:
		b.dateB = array.NewDate32Builder(allocator)
	case lumen.KindTimestamp:
		b.tsB = array.NewTimestampBuilder(allocator, &arrow.TimestampType{Unit: arrow.Microsecond})
	case lumen.KindInterval:
		b.ivlB = array.NewMonthDayNanoIntervalBuilder(allocator)
	case lumen.KindVector, lumen.KindStruct:
		// native backing, nothing to allocate up front
	}
	return b
}

// Len reports the number of elements pushed so far.
func (b *Builder) Len() int { return b.n }

// Push appends one value (nil means null) to the builder.
func (b *Builder) Push(v *lumen.Value) {
	b.n++
	if v == nil || v.IsNull() {
		b.pushNull()
		return
	}
	switch b.kind {
	case lumen.KindBool:
		b.boolB.Append(v.Bool())
	case lumen.KindInt16:
		b.i16B.Append(v.Int16())
	case lumen.KindInt32:
		b.i32B.Append(v.Int32())
	case lumen.KindInt64:
		b.i64B.Append(v.Int64())
	case lumen.KindFloat64:
		b.f64B.Append(v.Float64())
	case lumen.KindDecimal:
		b.decB.Append(decimal128.FromI64(v.Decimal().Unscaled))
	case lumen.KindString:
		b.strB.Append(v.String())
	case lumen.KindBlob:
		b.blobB.Append(v.Blob())
	case lumen.KindDate:
		b.dateB.Append(arrow.Date32(v.Date()))
	case lumen.KindTimestamp:
		b.tsB.Append(arrow.Timestamp(v.Timestamp()))
	case lumen.KindInterval:
		ivl := v.Interval()
		b.ivlB.Append(arrow.MonthDayNanoInterval{Months: ivl.Months, Days: ivl.Days, Nanoseconds: ivl.Nanos})
	case lumen.KindVector:
		b.vecValid = append(b.vecValid, true)
		b.vecData = append(b.vecData, v.Vector())
	case lumen.KindStruct:
		b.stValid = append(b.stValid, true)
		b.stData = append(b.stData, v.StructFields())
	}
}

func (b *Builder) pushNull() {
	switch b.kind {
	case lumen.KindBool:
		b.boolB.AppendNull()
	case lumen.KindInt16:
		b.i16B.AppendNull()
	case lumen.KindInt32:
		b.i32B.AppendNull()
	case lumen.KindInt64:
		b.i64B.AppendNull()
	case lumen.KindFloat64:
		b.f64B.AppendNull()
	case lumen.KindDecimal:
		b.decB.AppendNull()
	case lumen.KindString:
		b.strB.AppendNull()
	case lumen.KindBlob:
		b.blobB.AppendNull()
	case lumen.KindDate:
		b.dateB.AppendNull()
	case lumen.KindTimestamp:
		b.tsB.AppendNull()
	case lumen.KindInterval:
		b.ivlB.AppendNull()
	case lumen.KindVector:
		b.vecValid = append(b.vecValid, false)
		b.vecData = append(b.vecData, nil)
	case lumen.KindStruct:
		b.stValid = append(b.stValid, false)
		b.stData = append(b.stData, nil)
	}
}

// PushN appends n copies of the same value (or null).
func (b *Builder) PushN(n int, v *lumen.Value) {
	for i := 0; i < n; i++ {
		b.Push(v)
	}
}

// Append concatenates another already-finished array's rows onto this
// builder.
func (b *Builder) Append(other *Array) {
	for i := 0; i < other.Len(); i++ {
		if other.IsNull(i) {
			b.Push(nil)
			continue
		}
		v := other.Get(i)
		b.Push(&v)
	}
}

// Finish freezes the builder's contents into an immutable Array. The
// builder must not be reused afterward.
func (b *Builder) Finish() *Array {
	a := &Array{kind: b.kind, dtype: b.dtype, length: b.n}
	switch b.kind {
	case lumen.KindBool:
		a.boolArr = b.boolB.NewBooleanArray()
	case lumen.KindInt16:
		a.i16Arr = b.i16B.NewInt16Array()
	case lumen.KindInt32:
		a.i32Arr = b.i32B.NewInt32Array()
	case lumen.KindInt64:
		a.i64Arr = b.i64B.NewInt64Array()
	case lumen.KindFloat64:
		a.f64Arr = b.f64B.NewFloat64Array()
	case lumen.KindDecimal:
		a.decArr = b.decB.NewDecimal128Array()
	case lumen.KindString:
		a.strArr = b.strB.NewStringArray()
	case lumen.KindBlob:
		a.blobArr = b.blobB.NewBinaryArray()
	case lumen.KindDate:
		a.dateArr = b.dateB.NewDate32Array()
	case lumen.KindTimestamp:
		a.tsArr = b.tsB.NewTimestampArray()
	case lumen.KindInterval:
		a.ivlArr = b.ivlB.NewMonthDayNanoIntervalArray()
	case lumen.KindVector:
		a.vecValid = b.vecValid
		a.vecData = b.vecData
	case lumen.KindStruct:
		a.stValid = b.stValid
		a.stData = b.stData
	}
	return a
}

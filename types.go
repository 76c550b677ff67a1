// Package lumen is the root package of the embeddable OLAP-leaning
// relational query engine: the scalar type/value model (this file and
// value.go), configuration, and the error taxonomy shared by every stage of
// the SQL → AST → bound tree → logical plan → optimized plan → physical
// operator graph → streaming data chunk pipeline.
package lumen

import "fmt"

// TypeKind is the closed set of scalar type kinds a column or value can
// carry. New kinds are never added outside this file.
type TypeKind int

const (
	KindNull TypeKind = iota
	KindBool
	KindInt16
	KindInt32
	KindInt64
	KindFloat64
	KindDecimal
	KindString
	KindBlob
	KindDate
	KindTimestamp
	KindInterval
	KindVector
	KindStruct
)

func (k TypeKind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindBool:
		return "BOOLEAN"
	case KindInt16:
		return "SMALLINT"
	case KindInt32:
		return "INT"
	case KindInt64:
		return "BIGINT"
	case KindFloat64:
		return "DOUBLE"
	case KindDecimal:
		return "DECIMAL"
	case KindString:
		return "VARCHAR"
	case KindBlob:
		return "BLOB"
	case KindDate:
		return "DATE"
	case KindTimestamp:
		return "TIMESTAMP"
	case KindInterval:
		return "INTERVAL"
	case KindVector:
		return "VECTOR"
	case KindStruct:
		return "STRUCT"
	default:
		return "UNKNOWN"
	}
}

// DataType is a scalar type: a kind plus the kind-specific parameters the
// spec calls out (Decimal's precision/scale, Vector's element length,
// Struct's field types) and a nullable flag. Types with nullable=false
// guarantee no null ever appears in that column's validity bitmap.
type DataType struct {
	kind      TypeKind
	nullable  bool
	precision int
	scale     int
	vectorLen int
	fields    []DataType
	fieldName string // only meaningful as an element of another Struct's fields
}

func newType(kind TypeKind, nullable bool) DataType {
	return DataType{kind: kind, nullable: nullable}
}

func NullType() DataType                 { return newType(KindNull, true) }
func BoolType(nullable bool) DataType    { return newType(KindBool, nullable) }
func Int16Type(nullable bool) DataType   { return newType(KindInt16, nullable) }
func Int32Type(nullable bool) DataType   { return newType(KindInt32, nullable) }
func Int64Type(nullable bool) DataType   { return newType(KindInt64, nullable) }
func Float64Type(nullable bool) DataType { return newType(KindFloat64, nullable) }
func StringType(nullable bool) DataType  { return newType(KindString, nullable) }
func BlobType(nullable bool) DataType    { return newType(KindBlob, nullable) }
func DateType(nullable bool) DataType    { return newType(KindDate, nullable) }
func TimestampType(nullable bool) DataType {
	return newType(KindTimestamp, nullable)
}
func IntervalType(nullable bool) DataType { return newType(KindInterval, nullable) }

// DecimalType builds a Decimal(precision, scale) type.
func DecimalType(precision, scale int, nullable bool) DataType {
	dt := newType(KindDecimal, nullable)
	dt.precision = precision
	dt.scale = scale
	return dt
}

// VectorType builds a Vector(F64, len) fixed-length type.
func VectorType(length int, nullable bool) DataType {
	dt := newType(KindVector, nullable)
	dt.vectorLen = length
	return dt
}

// StructType builds a recursive Struct(list of types) type. fieldNames and
// fieldTypes must have equal length.
func StructType(fieldNames []string, fieldTypes []DataType, nullable bool) DataType {
	dt := newType(KindStruct, nullable)
	fields := make([]DataType, len(fieldTypes))
	for i, ft := range fieldTypes {
		f := ft
		f.fieldName = fieldNames[i]
		fields[i] = f
	}
	dt.fields = fields
	return dt
}

func (t DataType) Kind() TypeKind     { return t.kind }
func (t DataType) Nullable() bool     { return t.nullable }
func (t DataType) Precision() int     { return t.precision }
func (t DataType) Scale() int         { return t.scale }
func (t DataType) VectorLen() int     { return t.vectorLen }
func (t DataType) Fields() []DataType { return t.fields }
func (t DataType) FieldName() string  { return t.fieldName }

// WithNullable returns a copy of t with the nullable flag set.
func (t DataType) WithNullable(nullable bool) DataType {
	t.nullable = nullable
	return t
}

func (t DataType) String() string {
	switch t.kind {
	case KindDecimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", t.precision, t.scale)
	case KindVector:
		return fmt.Sprintf("VECTOR(F64,%d)", t.vectorLen)
	case KindStruct:
		return fmt.Sprintf("STRUCT(%d fields)", len(t.fields))
	default:
		return t.kind.String()
	}
}

// Equal reports structural equality (kind + parameters), ignoring nullable.
func (t DataType) Equal(other DataType) bool {
	if t.kind != other.kind {
		return false
	}
	switch t.kind {
	case KindDecimal:
		return t.precision == other.precision && t.scale == other.scale
	case KindVector:
		return t.vectorLen == other.vectorLen
	case KindStruct:
		if len(t.fields) != len(other.fields) {
			return false
		}
		for i := range t.fields {
			if !t.fields[i].Equal(other.fields[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// numericRank orders the numeric promotion lattice of spec.md §3:
// Int16 < Int32 < Int64 < Float64 < Decimal.
func numericRank(k TypeKind) int {
	switch k {
	case KindInt16:
		return 1
	case KindInt32:
		return 2
	case KindInt64:
		return 3
	case KindFloat64:
		return 4
	case KindDecimal:
		return 5
	default:
		return 0
	}
}

func (k TypeKind) isNumeric() bool { return numericRank(k) > 0 }

// Union computes the least upper bound of two types in the promotion
// lattice, or ok=false if the types are incompatible. Nullability of the
// result is the logical OR of both inputs' nullability.
func (t DataType) Union(other DataType) (DataType, bool) {
	nullable := t.nullable || other.nullable
	if t.kind == KindNull {
		return other.WithNullable(true), true
	}
	if other.kind == KindNull {
		return t.WithNullable(true), true
	}
	if t.Equal(other) {
		return t.WithNullable(nullable), true
	}
	if t.kind.isNumeric() && other.kind.isNumeric() {
		if numericRank(t.kind) >= numericRank(other.kind) {
			return t.WithNullable(nullable), true
		}
		return other.WithNullable(nullable), true
	}
	if t.kind == KindDate && other.kind == KindInterval {
		return t.WithNullable(nullable), true
	}
	if t.kind == KindInterval && other.kind == KindDate {
		return other.WithNullable(nullable), true
	}
	if t.kind == KindString && other.kind == KindString {
		return t.WithNullable(nullable), true
	}
	return DataType{}, false
}

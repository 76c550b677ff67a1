package pgstore

import (
	"math"
	"time"

	"github.com/lumen-db/lumen"
)

// valueToGo converts a lumen.Value to the Go-native representation pgx
// accepts as a query parameter.
func valueToGo(v lumen.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case lumen.KindBool:
		return v.Bool()
	case lumen.KindInt16:
		return v.Int16()
	case lumen.KindInt32:
		return v.Int32()
	case lumen.KindInt64:
		return v.Int64()
	case lumen.KindFloat64:
		return v.Float64()
	case lumen.KindDecimal:
		return v.Decimal().Float64()
	case lumen.KindString:
		return v.String()
	case lumen.KindBlob:
		return v.Blob()
	case lumen.KindDate:
		return time.Unix(0, 0).UTC().AddDate(0, 0, int(v.Date()))
	case lumen.KindTimestamp:
		return time.UnixMicro(v.Timestamp()).UTC()
	case lumen.KindVector:
		return v.Vector()
	default:
		return v.Display()
	}
}

// goToValue converts a value pgx scanned out of a row back into a
// lumen.Value typed per dt.
func goToValue(raw any, dt lumen.DataType) lumen.Value {
	if raw == nil {
		return lumen.NullValue()
	}
	switch dt.Kind() {
	case lumen.KindBool:
		if b, ok := raw.(bool); ok {
			return lumen.BoolValue(b)
		}
		return lumen.NullValue()
	case lumen.KindInt16:
		return lumen.Int16Value(int16(asInt64(raw)))
	case lumen.KindInt32:
		return lumen.Int32Value(int32(asInt64(raw)))
	case lumen.KindInt64:
		return lumen.Int64Value(asInt64(raw))
	case lumen.KindFloat64:
		return lumen.Float64Value(asFloat64(raw))
	case lumen.KindDecimal:
		scale := dt.Scale()
		unscaled := int64(asFloat64(raw) * math.Pow10(scale))
		return lumen.DecimalValue(lumen.Decimal{Unscaled: unscaled, Scale: scale})
	case lumen.KindString:
		return lumen.StringValue(asString(raw))
	case lumen.KindBlob:
		if b, ok := raw.([]byte); ok {
			return lumen.BlobValue(b)
		}
		return lumen.BlobValue(nil)
	case lumen.KindDate:
		if t, ok := raw.(time.Time); ok {
			return lumen.DateValue(int32(t.Unix() / 86400))
		}
		return lumen.NullValue()
	case lumen.KindTimestamp:
		if t, ok := raw.(time.Time); ok {
			return lumen.TimestampValue(t.UnixMicro())
		}
		return lumen.NullValue()
	case lumen.KindVector:
		if fs, ok := raw.([]float64); ok {
			return lumen.VectorValue(fs)
		}
		return lumen.NullValue()
	default:
		return lumen.StringValue(asString(raw))
	}
}

func asInt64(raw any) int64 {
	switch v := raw.(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func asFloat64(raw any) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func asString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

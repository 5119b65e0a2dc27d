package dtypes

import "github.com/x448/float16"

// ToFloat64 converts a value of any supported type to float64.
// Integers with a magnitude above 2^53 lose precision.
func ToFloat64[T Supported](v T) float64 {
	switch x := any(v).(type) {
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float16.Float16:
		return float64(x.Float32())
	case float32:
		return float64(x)
	case float64:
		return x
	}
	return 0
}

// FromFloat64 converts f to T, with Go's conversion rules: integer types truncate towards zero, and
// float16.Float16 rounds to the nearest half-precision value.
func FromFloat64[T Supported](f float64) T {
	var t T
	switch any(t).(type) {
	case int8:
		return any(int8(f)).(T)
	case int16:
		return any(int16(f)).(T)
	case int32:
		return any(int32(f)).(T)
	case int64:
		return any(int64(f)).(T)
	case uint8:
		return any(uint8(f)).(T)
	case uint16:
		return any(uint16(f)).(T)
	case uint32:
		return any(uint32(f)).(T)
	case uint64:
		return any(uint64(f)).(T)
	case float16.Float16:
		return any(float16.Fromfloat32(float32(f))).(T)
	case float32:
		return any(float32(f)).(T)
	case float64:
		return any(f).(T)
	}
	return t
}

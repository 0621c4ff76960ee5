package lookup

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// NormalizeKey converts a key value into its canonical comparable form.
// Integers of any width, integral floats and json.Number become int64,
// strings stay strings. Request keys and backend record keys both pass
// through here so results can be matched to callers.
func NormalizeKey(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("key is null")
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint:
		return uintKey(uint64(val))
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		return uintKey(val)
	case float32:
		return floatKey(float64(val))
	case float64:
		return floatKey(val)
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", val.String())
		}
		return floatKey(f)
	case bool:
		return nil, fmt.Errorf("boolean is not a valid key")
	default:
		return nil, fmt.Errorf("unsupported key type %T", v)
	}
}

// KeyOf returns the normalized value of field in rec
func KeyOf(rec Record, field string) (any, bool) {
	v, ok := rec[field]
	if !ok {
		return nil, false
	}
	key, err := NormalizeKey(v)
	if err != nil {
		return nil, false
	}
	return key, true
}

// FormatKey renders a normalized key for logs and cache keys
func FormatKey(key any) string {
	switch val := key.(type) {
	case int64:
		return strconv.FormatInt(val, 10)
	case string:
		return strconv.Quote(val)
	default:
		return fmt.Sprint(val)
	}
}

func uintKey(v uint64) (any, error) {
	if v > math.MaxInt64 {
		return nil, fmt.Errorf("key %d overflows int64", v)
	}
	return int64(v), nil
}

func floatKey(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("key is not a finite number")
	}
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("key %v is not an integer", f)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which is out of range
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Errorf("key %v overflows int64", f)
	}
	return int64(f), nil
}

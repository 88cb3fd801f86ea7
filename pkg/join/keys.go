package join

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"
)

// Join keys are normalized into comparable map keys. Numbers of any Go width compare by
// value, but a number never equals a string: the key types are distinct.

type timeKey struct{ unixNano int64 }

type bytesKey string

type textKey string

// keyOf returns the hash key for a join value. Absent or nil values report ok=false and
// never match anything, including other nil values.
func keyOf(v any, present bool) (any, bool) {
	if !present || v == nil {
		return nil, false
	}

	switch val := v.(type) {
	case string:
		return val, true
	case bool:
		return val, true
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		return uintKey(uint64(val)), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return uintKey(val), true
	case float32:
		return floatKey(float64(val)), true
	case float64:
		return floatKey(val), true
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, true
		}
		if f, err := val.Float64(); err == nil {
			return floatKey(f), true
		}
		return textKey(val.String()), true
	case time.Time:
		return timeKey{unixNano: val.UnixNano()}, true
	case *time.Time:
		if val == nil {
			return nil, false
		}
		return timeKey{unixNano: val.UnixNano()}, true
	case []byte:
		return bytesKey(val), true
	}

	if reflect.TypeOf(v).Comparable() {
		return v, true
	}
	return textKey(fmt.Sprintf("%T:%v", v, v)), true
}

func uintKey(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return float64(u)
}

// floatKey folds integral floats onto int64 so 1 and 1.0 hash together.
func floatKey(f float64) any {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return f
}

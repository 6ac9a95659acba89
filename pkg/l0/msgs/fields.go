package msgs

import (
	"encoding/json"
	"math"
	"strconv"
)

// fields is a decoded MessagePack map.
type fields struct {
	t Type
	m map[string]interface{}
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = val
		}
		return out, true
	}
	return nil, false
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func (f fields) has(key string) bool {
	_, ok := f.m[key]
	return ok
}

func (f fields) int64Value(key string) (int64, error) {
	v, ok := f.m[key]
	if !ok {
		return 0, missing(f.t, key)
	}
	n, ok := toInt64(v)
	if !ok {
		return 0, invalid(f.t, key, v)
	}
	return n, nil
}

func (f fields) intValue(key string) (int, error) {
	n, err := f.int64Value(key)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, invalid(f.t, key, n)
	}
	return int(n), nil
}

func (f fields) optInt(key string, def int) (int, error) {
	if !f.has(key) {
		return def, nil
	}
	return f.intValue(key)
}

func (f fields) boolValue(key string) (bool, error) {
	v, ok := f.m[key]
	if !ok {
		return false, missing(f.t, key)
	}
	if b, ok := v.(bool); ok {
		return b, nil
	}
	n, ok := toInt64(v)
	if !ok {
		return false, invalid(f.t, key, v)
	}
	return n != 0, nil
}

func (f fields) optBool(key string, def bool) (bool, error) {
	if !f.has(key) {
		return def, nil
	}
	return f.boolValue(key)
}

func (f fields) stringValue(key string) (string, error) {
	v, ok := f.m[key]
	if !ok {
		return "", missing(f.t, key)
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	}
	return "", invalid(f.t, key, v)
}

func (f fields) optString(key, def string) (string, error) {
	if !f.has(key) {
		return def, nil
	}
	return f.stringValue(key)
}

func (f fields) sub(key string) (fields, error) {
	v, ok := f.m[key]
	if !ok {
		return fields{}, missing(f.t, key)
	}
	m, ok := asMap(v)
	if !ok {
		return fields{}, invalid(f.t, key, v)
	}
	return fields{t: f.t, m: m}, nil
}

// list returns the array under key. Older firmware sends the array as
// a JSON string, which is accepted as well.
func (f fields) list(key string) ([]interface{}, error) {
	v, ok := f.m[key]
	if !ok {
		return nil, missing(f.t, key)
	}
	switch l := v.(type) {
	case []interface{}:
		return l, nil
	case string:
		var decoded []interface{}
		if err := json.Unmarshal([]byte(l), &decoded); err != nil {
			return nil, invalid(f.t, key, l)
		}
		return decoded, nil
	}
	return nil, invalid(f.t, key, v)
}

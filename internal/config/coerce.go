package config

import "fmt"

// The helpers below coerce viper's generic map[string]interface{}/[]interface{}
// tree into the concrete types decode.go needs, tolerating the few
// representations viper's underlying YAML decoder commonly produces for
// each kind.

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[fmt.Sprintf("%v", k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func asSlice(v interface{}) []interface{} {
	s, ok := v.([]interface{})
	if !ok {
		return nil
	}
	return s
}

func asString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asStringSlice(v interface{}) []string {
	items := asSlice(v)
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, asString(item))
	}
	return out
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func has(m map[string]interface{}, key string) bool {
	_, ok := m[key]
	return ok
}

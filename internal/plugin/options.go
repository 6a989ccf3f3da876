package plugin

import "fmt"

// Option helpers for the map[string]any plugin config blobs the YAML
// loader produces. Numeric values may arrive as int, int64, uint64 or
// float64 depending on the source document.

// OptString returns options[key] as a string, or def.
func OptString(options map[string]any, key, def string) string {
	if v, ok := options[key].(string); ok {
		return v
	}
	return def
}

// OptBool returns options[key] as a bool, or def.
func OptBool(options map[string]any, key string, def bool) bool {
	if v, ok := options[key].(bool); ok {
		return v
	}
	return def
}

// OptInt returns options[key] as an int, or def.
func OptInt(options map[string]any, key string, def int) int {
	switch v := options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// OptStrings returns options[key] as a string slice. Accepts a scalar
// string, []string, or []any of strings.
func OptStrings(options map[string]any, key string) []string {
	switch v := options[key].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// OptMap returns options[key] as a nested option map.
func OptMap(options map[string]any, key string) map[string]any {
	if v, ok := options[key].(map[string]any); ok {
		return v
	}
	return nil
}

// OptStringMap returns options[key] as a map of strings, stringifying
// scalar values.
func OptStringMap(options map[string]any, key string) map[string]string {
	nested := OptMap(options, key)
	if nested == nil {
		return nil
	}
	out := make(map[string]string, len(nested))
	for k, v := range nested {
		out[k] = Stringify(v)
	}
	return out
}

// Stringify renders a scalar option value as a string.
func Stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

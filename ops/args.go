package ops

import "encoding/json"

// Argument coercion helpers. JSON numbers arrive as float64; these accept
// the handful of shapes encoding/json and embedders produce.

func (a Args) Float(key string, def float64) float64 {
	v, ok := a[key]
	if !ok {
		return def
	}
	f, ok := toFloat(v)
	if !ok {
		return def
	}
	return f
}

func (a Args) RequireFloat(key string) (float64, error) {
	v, ok := a[key]
	if !ok {
		return 0, BadArgs("args.%s required", key)
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, BadArgs("args.%s must be a number", key)
	}
	return f, nil
}

func (a Args) Int(key string, def int) int {
	f, ok := toFloat(a[key])
	if !ok {
		return def
	}
	return int(f)
}

func (a Args) Bool(key string, def bool) bool {
	v, ok := a[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func (a Args) Str(key, def string) string {
	v, ok := a[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

func (a Args) RequireStr(key string) (string, error) {
	v, ok := a[key]
	if !ok {
		return "", BadArgs("args.%s required", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", BadArgs("args.%s must be a non-empty string", key)
	}
	return s, nil
}

func (a Args) Object(key string) map[string]any {
	v, ok := a[key].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return v
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// NumberEnv extracts the numeric members of a JSON object argument.
func NumberEnv(m map[string]any) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if f, ok := toFloat(v); ok {
			out[k] = f
		}
	}
	return out
}

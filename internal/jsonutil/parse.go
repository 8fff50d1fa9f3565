// Package jsonutil implements the defensive JSON parser used at the one
// boundary that touches unstructured LLM output: the classifier, selector,
// and enhancer all return free-form text that is supposed to contain a JSON
// object. Never raises; callers get {} on total failure and fill defaults.
package jsonutil

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var (
	fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	balancedRe    = regexp.MustCompile(`(?s)\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)
)

// ExtractObject tries, in order: a full parse of the trimmed text; a fenced
// ```json ... ``` code block; the first balanced {...} substring (one level
// of nesting); otherwise an empty object. A JSON array is normalized to its
// first object element. Never returns an error.
func ExtractObject(text string) map[string]any {
	text = strings.TrimSpace(text)

	if obj, ok := tryParse(text); ok {
		return obj
	}

	if m := fencedBlockRe.FindStringSubmatch(text); m != nil {
		if obj, ok := tryParse(m[1]); ok {
			return obj
		}
	}

	if m := balancedRe.FindString(text); m != "" {
		if obj, ok := tryParse(m); ok {
			return obj
		}
	}

	return map[string]any{}
}

func tryParse(text string) (map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, false
	}
	return normalize(v), true
}

func normalize(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case []any:
		if len(t) > 0 {
			if obj, ok := t[0].(map[string]any); ok {
				return obj
			}
		}
		return map[string]any{}
	default:
		return map[string]any{}
	}
}

// String returns a string field, or def if the field is absent or not a string.
func String(obj map[string]any, key, def string) string {
	if v, ok := obj[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool coerces a field to bool. Accepts a JSON bool, or a string
// "true"/"false" (case-insensitive), or a nonzero number; anything else
// (including a missing field) falls back to def.
func Bool(obj map[string]any, key string, def bool) bool {
	v, ok := obj[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true":
			return true
		case "false":
			return false
		}
		return def
	case float64:
		return t != 0
	default:
		return def
	}
}

// Int coerces a field to an int, clamped to [min,max]. Falls back to def if
// absent or not numeric.
func Int(obj map[string]any, key string, def, min, max int) int {
	v, ok := obj[key]
	if !ok {
		return def
	}
	var n int
	switch t := v.(type) {
	case float64:
		n = int(t)
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return def
		}
		n = int(f)
	default:
		return def
	}
	if n < min {
		n = min
	}
	if n > max {
		n = max
	}
	return n
}

// StringSlice returns a []string field, filtering out non-string entries.
func StringSlice(obj map[string]any, key string) []string {
	v, ok := obj[key]
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

package jsonutil

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexibleString renders a loosely typed value as text, handling cases where
// LLMs send numbers or booleans instead of strings. Objects and arrays are
// rendered as compact JSON. Returns false for nil and JSON null.
func FlexibleString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return formatFloat(val), true
	case float32:
		return formatFloat(float64(val)), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case json.Number:
		return val.String(), true
	case json.RawMessage:
		return flexibleRaw(val)
	case fmt.Stringer:
		return val.String(), true
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val), true
		}
		return string(b), true
	}
}

func flexibleRaw(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw), true
	}
	if _, isComposite := decoded.(map[string]any); isComposite {
		return string(raw), true
	}
	if _, isComposite := decoded.([]any); isComposite {
		return string(raw), true
	}
	return FlexibleString(decoded)
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

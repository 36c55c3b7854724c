package sanitization

import (
	"encoding/json"
	"fmt"
)

// SanitizeJSON redacts sensitive fields in a JSON document and returns it as a single line.
//
// A "body" field holding a JSON string (API Gateway events) is sanitized in place.
func SanitizeJSON(jsonBytes []byte) string {
	if len(jsonBytes) == 0 {
		return emptyMaskedValue
	}

	var data any
	if err := json.Unmarshal(jsonBytes, &data); err != nil {
		return fmt.Sprintf("(malformed JSON: %s)", SanitizeLogString(err.Error()))
	}

	out, err := json.Marshal(sanitizeJSONValue(data))
	if err != nil {
		return "(error marshaling sanitized JSON)"
	}
	return string(out)
}

func sanitizeJSONValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return sanitizeJSONObject(v)
	case []any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = sanitizeJSONValue(v[i])
		}
		return out
	case float64, bool:
		return v
	default:
		return sanitizeValue(v)
	}
}

func sanitizeJSONObject(obj map[string]any) map[string]any {
	result := make(map[string]any, len(obj))
	for key, value := range obj {
		if key == "body" {
			if body, ok := sanitizeEmbeddedJSON(value); ok {
				result[key] = body
				continue
			}
		}

		sanitized := SanitizeFieldValue(key, value)
		switch sv := sanitized.(type) {
		case map[string]any, []any:
			result[key] = sanitizeJSONValue(sv)
		default:
			result[key] = sanitized
		}
	}
	return result
}

func sanitizeEmbeddedJSON(value any) (string, bool) {
	raw, ok := value.(string)
	if !ok || raw == "" {
		return "", false
	}
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", false
	}
	out, err := json.Marshal(sanitizeJSONValue(parsed))
	if err != nil {
		return "", false
	}
	return string(out), true
}

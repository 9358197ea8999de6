package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ExtractJSON strips markdown fences and surrounding prose from a model
// response, returning the outermost JSON object or array it finds.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, "```"); idx != -1 {
		raw = raw[idx+3:]
		raw = strings.TrimPrefix(raw, "json")
		raw = strings.TrimPrefix(raw, "JSON")
		if end := strings.Index(raw, "```"); end != -1 {
			raw = raw[:end]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	start := strings.IndexAny(raw, "{[")
	if start == -1 {
		return strings.TrimSpace(raw)
	}
	closing := "}"
	if raw[start] == '[' {
		closing = "]"
	}
	if end := strings.LastIndex(raw, closing); end > start {
		return raw[start : end+1]
	}
	return strings.TrimSpace(raw[start:])
}

// RepairJSON extracts the JSON payload of a model response and fixes common
// syntax damage such as trailing commas, single quotes or missing brackets.
func RepairJSON(raw string) (string, error) {
	cleaned := ExtractJSON(raw)
	if cleaned == "" {
		return "", fmt.Errorf("no JSON payload in response")
	}
	if json.Valid([]byte(cleaned)) {
		return cleaned, nil
	}
	fixed, err := jsonrepair.JSONRepair(cleaned)
	if err != nil {
		return "", fmt.Errorf("repair JSON: %w", err)
	}
	return fixed, nil
}

// DecodeLenient repairs raw and unmarshals it into v.
func DecodeLenient(raw string, v any) error {
	fixed, err := RepairJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(fixed), v); err != nil {
		return fmt.Errorf("decode JSON: %w", err)
	}
	return nil
}

// CoerceFloat returns NaN when v holds no number.
func CoerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func CoerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

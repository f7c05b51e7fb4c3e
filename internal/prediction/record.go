package prediction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Record is the first element of the API "results" array.
type Record map[string]any

// Prediction returns the nested prediction object.
func (r Record) Prediction() (map[string]any, error) {
	raw, ok := r["prediction"]
	if !ok {
		return nil, NewParseError(nil, "parse prediction: record has no prediction object")
	}
	prediction, ok := raw.(map[string]any)
	if !ok {
		return nil, NewParseError(nil, "parse prediction: prediction is %T, want object", raw)
	}
	return prediction, nil
}

// ParseResponse decodes an API body and returns results[0].
func ParseResponse(data []byte) (Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, NewParseError(nil, "parse prediction: empty body")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, NewParseError(err, "parse prediction: decode body: %v", err)
	}
	if _, errExtra := dec.Token(); errExtra != io.EOF {
		return nil, NewParseError(errExtra, "parse prediction: trailing data after body")
	}

	rawResults, ok := payload["results"]
	if !ok {
		return nil, NewParseError(nil, "parse prediction: missing results")
	}
	results, ok := rawResults.([]any)
	if !ok {
		return nil, NewParseError(nil, "parse prediction: results is %T, want array", rawResults)
	}
	if len(results) == 0 {
		return nil, NewParseError(nil, "parse prediction: results is empty")
	}
	first, ok := results[0].(map[string]any)
	if !ok {
		return nil, NewParseError(nil, "parse prediction: results[0] is %T, want object", results[0])
	}

	normalized, ok := normalizeNumbers(first).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parse prediction: unexpected normalized type")
	}
	return Record(normalized), nil
}

// normalizeNumbers replaces json.Number with int64 when it fits and float64 when it
// has a fraction or exponent. Integers beyond int64 stay json.Number so no digit is lost.
func normalizeNumbers(value any) any {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if !strings.ContainsAny(v.String(), ".eE") {
			return v
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v
	case map[string]any:
		for key, item := range v {
			v[key] = normalizeNumbers(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = normalizeNumbers(item)
		}
		return v
	default:
		return value
	}
}

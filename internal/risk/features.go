package risk

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// FeatureVector maps feature names to caller-supplied values. It may miss
// canonical features or carry extra ones.
type FeatureVector map[string]float64

// ParseFeatureVector converts decoded JSON into a FeatureVector. Only numbers
// are accepted; strings, booleans, nulls and nested values are rejected rather
// than coerced.
func ParseFeatureVector(raw map[string]any) (FeatureVector, error) {
	fv := make(FeatureVector, len(raw))
	for name, v := range raw {
		f, err := toFloat(v)
		if err != nil {
			return nil, &InputError{Field: "features." + name, Reason: err.Error()}
		}
		if err := CheckFinite("features."+name, f); err != nil {
			return nil, err
		}
		fv[name] = f
	}
	return fv, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n.String())
		}
		return f, nil
	case nil:
		return 0, errors.New("null is not a number")
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

// CheckFinite rejects NaN and infinite values.
func CheckFinite(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &InputError{Field: field, Reason: "value is not finite"}
	}
	return nil
}

// Align reindexes fv to order. Missing features become 0.0 and features not in
// order are dropped.
func Align(fv FeatureVector, order []string) []float64 {
	row := make([]float64, len(order))
	for i, name := range order {
		row[i] = fv[name]
	}
	return row
}

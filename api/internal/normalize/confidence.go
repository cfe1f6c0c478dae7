package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Dash is rendered wherever a value could not be determined.
const Dash = "—"

// ClampConfidence maps a model score into [0,1].
// Values in (1,100] are read as percentages; the rest are clamped to the unit range.
func ClampConfidence(x float64) (float64, bool) {
	switch {
	case math.IsNaN(x):
		return 0, false
	case x > 1 && x <= 100:
		return x / 100, true
	case x < 0:
		return 0, true
	case x > 1:
		return 1, true
	}
	return x, true
}

// ToConfidence converts a loosely typed score and clamps it.
func ToConfidence(v any) (float64, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return ClampConfidence(f)
}

// FormatPercent renders a score as a whole percent ("85%").
func FormatPercent(v any) (string, bool) {
	c, ok := ToConfidence(v)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%d%%", int(math.Round(c*100))), true
}

func PercentOrDash(v any) string {
	if s, ok := FormatPercent(v); ok {
		return s
	}
	return Dash
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case float32:
		return float64(t), !math.IsNaN(float64(t))
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case *float64:
		if t == nil {
			return 0, false
		}
		return toFloat(*t)
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(t), "%")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func floatPtr(f float64) *float64 { return &f }

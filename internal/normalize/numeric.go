package normalize

import (
	"strings"

	"github.com/shopspring/decimal"
)

// toFloat coerces a decoded JSON value into a float64. Numeric strings are
// parsed through decimal so backend formatting quirks ("0.50", " 1 ") do not
// break normalization.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case decimal.Decimal:
		return v.InexactFloat64(), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return d.InexactFloat64(), true
	default:
		return 0, false
	}
}

// toInt coerces a decoded JSON value into a non-negative int.
func toInt(value any) (int, bool) {
	f, ok := toFloat(value)
	if !ok || f < 0 {
		return 0, false
	}
	return int(f), true
}

// toUint coerces a decoded JSON value into a uint64 counter.
func toUint(value any) (uint64, bool) {
	f, ok := toFloat(value)
	if !ok || f < 0 {
		return 0, false
	}
	return uint64(f), true
}

func toString(value any) (string, bool) {
	s, ok := value.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// clampUnit restricts a fitness value to the normalized [0, 1] range.
func clampUnit(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

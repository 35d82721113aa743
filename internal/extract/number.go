package extract

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseNumber parses a numeric field of an invoice XML document. Values
// such as "1.234.567,89" (period grouping, comma decimal) are normalized
// first; a value that still fails to parse is retried with its comma as
// the decimal point. Anything unparseable, including the empty string,
// is 0.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if strings.Count(s, ",") == 1 && strings.Count(s, ".") > 1 {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	if v, ok := parseFloat(s); ok {
		return v
	}
	if v, ok := parseFloat(strings.ReplaceAll(s, ",", ".")); ok {
		return v
	}
	return 0
}

// ParseLLMNumber converts a number from a model reply. Strings have every
// comma replaced with a period before parsing; JSON numbers pass through.
// Anything else is 0.
func ParseLLMNumber(v any) float64 {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return n
	case string:
		f, _ := parseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", "."))
		return f
	case nil:
		return 0
	default:
		f, _ := parseFloat(strings.ReplaceAll(fmt.Sprint(n), ",", "."))
		return f
	}
}

// parseFloat accepts finite decimal values only.
func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

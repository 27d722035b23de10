package plcsim

import (
	"math"
	"strings"
)

// TypeFor picks a PLC type able to hold sample. Symbols without a sample
// value become INT.
func TypeFor(sample any) string {
	switch v := sample.(type) {
	case bool:
		return "BOOL"
	case string:
		return "STRING"
	case float32:
		return TypeFor(float64(v))
	case float64:
		if v != math.Trunc(v) {
			return "LREAL"
		}
		return intType(int64(v))
	case int:
		return intType(int64(v))
	case int64:
		return intType(v)
	case uint64:
		if v > math.MaxInt32 {
			return "ULINT"
		}
		return intType(int64(v))
	default:
		return "INT"
	}
}

func intType(n int64) string {
	switch {
	case n >= math.MinInt16 && n <= math.MaxInt16:
		return "INT"
	case n >= math.MinInt32 && n <= math.MaxInt32:
		return "DINT"
	default:
		return "LINT"
	}
}

func zeroValue(typeName string) any {
	t := strings.ToUpper(typeName)
	switch {
	case t == "BOOL":
		return false
	case strings.HasPrefix(t, "STRING"):
		return ""
	default:
		return 0
	}
}

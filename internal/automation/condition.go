package automation

import (
	"fmt"
	"strconv"
	"strings"
)

// EvaluateCondition applies an operator to an extracted payload value.
// Comparisons are string-coerced; an absent value coerces to the empty
// string. Unknown operators fail closed. Never returns an error and never
// panics: condition misses are data, not exceptions.
func EvaluateCondition(value Extraction, op Operator, comparand string) ConditionResult {
	switch op {
	case OpEquals:
		got := coerceString(value.Value)
		if !value.Found {
			got = ""
		}
		if got == comparand {
			return ConditionResult{Passed: true, Reason: fmt.Sprintf("value %q equals %q", got, comparand)}
		}
		return ConditionResult{Passed: false, Reason: fmt.Sprintf("value %q does not equal %q", got, comparand)}

	case OpNotEquals:
		got := coerceString(value.Value)
		if !value.Found {
			got = ""
		}
		if got != comparand {
			return ConditionResult{Passed: true, Reason: fmt.Sprintf("value %q differs from %q", got, comparand)}
		}
		return ConditionResult{Passed: false, Reason: fmt.Sprintf("value %q equals %q", got, comparand)}

	case OpContains:
		got := ""
		if value.Found {
			got = coerceString(value.Value)
		}
		if strings.Contains(got, comparand) {
			return ConditionResult{Passed: true, Reason: fmt.Sprintf("value %q contains %q", got, comparand)}
		}
		return ConditionResult{Passed: false, Reason: fmt.Sprintf("value %q does not contain %q", got, comparand)}

	case OpExists:
		if value.Found && value.Value != nil {
			return ConditionResult{Passed: true, Reason: "value exists"}
		}
		return ConditionResult{Passed: false, Reason: "value does not exist"}

	default:
		return ConditionResult{Passed: false, Reason: fmt.Sprintf("unknown operator %q", op)}
	}
}

// coerceString renders a payload value the way rule authors expect to
// compare it: JSON numbers without a trailing ".0", booleans as true/false.
func coerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}

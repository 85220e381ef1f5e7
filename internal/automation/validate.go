package automation

import (
	"fmt"
	"strings"
)

// ValidateRule checks a rule at write time: known action type, field keys
// that belong to the action's schema, all required fields mapped, and
// syntactically valid paths. Runtime extraction misses are not errors and
// are not checked here.
func ValidateRule(rule *Rule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("rule name cannot be empty")
	}
	if len(rule.Name) > 200 {
		return fmt.Errorf("rule name length %d exceeds maximum of 200 characters", len(rule.Name))
	}

	schema, known := SchemaFor(rule.ActionType)
	if !known {
		return fmt.Errorf("unknown action type %q (must be one of: %s)", rule.ActionType, knownActionTypes())
	}

	valid := make(map[FieldKey]bool, len(schema.Required)+len(schema.Optional))
	for _, key := range schema.Fields() {
		valid[key] = true
	}

	for key, path := range rule.FieldMappings {
		if !valid[key] {
			return fmt.Errorf("field %q is not part of action type %q", key, rule.ActionType)
		}
		if err := ValidatePath(path); err != nil {
			return fmt.Errorf("invalid path for field %q: %w", key, err)
		}
	}

	for _, key := range schema.Required {
		if strings.TrimSpace(rule.FieldMappings[key]) == "" {
			return fmt.Errorf("required field %q of action type %q is not mapped", key, rule.ActionType)
		}
	}

	if rule.Condition != nil {
		switch rule.Condition.Operator {
		case OpEquals, OpNotEquals, OpContains, OpExists:
		default:
			return fmt.Errorf("unknown condition operator %q", rule.Condition.Operator)
		}
		if err := ValidatePath(rule.Condition.Field); err != nil {
			return fmt.Errorf("invalid condition field path: %w", err)
		}
	}

	return nil
}

// ValidatePath checks dot/bracket path syntax without evaluating it.
// An empty path or bare "$" is valid and refers to the whole payload.
func ValidatePath(path string) error {
	trimmed := strings.TrimSpace(path)
	trimmed = strings.TrimPrefix(trimmed, "$")
	trimmed = strings.TrimPrefix(trimmed, ".")
	if trimmed == "" {
		return nil
	}
	if len(trimmed) > 500 {
		return fmt.Errorf("path length %d exceeds maximum of 500 characters", len(trimmed))
	}

	for _, segment := range strings.Split(trimmed, ".") {
		if segment == "" {
			return fmt.Errorf("empty path segment in %q", path)
		}
		if _, _, ok := parseSegment(segment); !ok {
			return fmt.Errorf("malformed segment %q in %q", segment, path)
		}
	}
	return nil
}

func knownActionTypes() string {
	names := make([]string, 0, len(actionSchemas))
	for _, action := range ActionTypes() {
		names = append(names, string(action))
	}
	return strings.Join(names, ", ")
}

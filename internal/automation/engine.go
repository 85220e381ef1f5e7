package automation

import (
	"fmt"
	"sort"
)

// Engine evaluates automation rules against inbound webhook payloads.
// Evaluation is pure: it never mutates the rule, the payload, or any state
// shared across rules, so results for one payload are order-independent and
// reproducible in dry runs.
type Engine struct {
	manager *Manager
}

// NewEngine creates an Engine. manager may be nil when no rule in the
// deployment uses expression conditions.
func NewEngine(manager *Manager) *Engine {
	return &Engine{manager: manager}
}

// EvaluateRule evaluates a single rule against a payload.
//
// Disabled rules short-circuit with empty extraction. A failing condition
// does not suppress field extraction: the extracted values are still
// reported for preview purposes, but WouldExecute stays false. Required
// fields that resolve to Found=false also force WouldExecute=false; this is
// an expected production condition and is surfaced as data, never an error.
func (e *Engine) EvaluateRule(rule *Rule, payload map[string]any) EvaluationResult {
	result := EvaluationResult{
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		ActionType: rule.ActionType,
	}

	if !rule.Enabled {
		return result
	}

	conditionPassed := true
	if rule.Condition != nil {
		value := Extract(payload, rule.Condition.Field)
		cond := EvaluateCondition(value, rule.Condition.Operator, rule.Condition.Value)
		result.Condition = &cond
		conditionPassed = cond.Passed
	}

	if conditionPassed && rule.Expression != "" {
		cond := e.evaluateExpression(rule, payload)
		// Keep the simple condition's reason when both are present and the
		// expression passed; the expression result only surfaces on failure
		// or when it is the sole condition.
		if !cond.Passed || result.Condition == nil {
			result.Condition = &cond
		}
		conditionPassed = cond.Passed
	}

	schema, known := SchemaFor(rule.ActionType)
	if !known {
		cond := ConditionResult{Passed: false, Reason: fmt.Sprintf("unknown action type %q", rule.ActionType)}
		result.Condition = &cond
		return result
	}

	for _, key := range schema.Fields() {
		path, mapped := rule.FieldMappings[key]
		if !mapped {
			if schema.IsRequired(key) {
				result.Extracted = append(result.Extracted, ExtractionResult{FieldKey: key})
				result.MissingRequired = append(result.MissingRequired, key)
			}
			continue
		}

		value := Extract(payload, path)
		result.Extracted = append(result.Extracted, ExtractionResult{
			FieldKey: key,
			Path:     path,
			Value:    value.Value,
			Found:    value.Found,
		})
		if !value.Found && schema.IsRequired(key) {
			result.MissingRequired = append(result.MissingRequired, key)
		}
	}

	result.WouldExecute = conditionPassed && len(result.MissingRequired) == 0
	return result
}

// EvaluateAll evaluates rules in ascending SortOrder. The input slice is not
// reordered.
func (e *Engine) EvaluateAll(rules []*Rule, payload map[string]any) []EvaluationResult {
	ordered := make([]*Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SortOrder < ordered[j].SortOrder
	})

	results := make([]EvaluationResult, 0, len(ordered))
	for _, rule := range ordered {
		results = append(results, e.EvaluateRule(rule, payload))
	}
	return results
}

func (e *Engine) evaluateExpression(rule *Rule, payload map[string]any) ConditionResult {
	if e.manager == nil {
		return ConditionResult{Passed: false, Reason: "expression condition configured but no compiler available"}
	}
	matched, err := e.manager.Evaluate(rule.ID, payload)
	if err != nil {
		return ConditionResult{Passed: false, Reason: fmt.Sprintf("expression error: %v", err)}
	}
	if matched {
		return ConditionResult{Passed: true, Reason: "expression matched"}
	}
	return ConditionResult{Passed: false, Reason: "expression did not match"}
}

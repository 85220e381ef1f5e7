package automation

import (
	"strings"
	"testing"
)

func createOrderRule() *Rule {
	return &Rule{
		ID:         "rule-1",
		Name:       "Create order on intake",
		ActionType: ActionCreateWorkOrder,
		FieldMappings: map[FieldKey]string{
			FieldProductType: "order.customer.name",
			FieldQuantity:    "order.quantity",
			FieldNotes:       "order.missing",
		},
		Enabled: true,
	}
}

func TestEvaluateRuleExecutes(t *testing.T) {
	engine := NewEngine(nil)

	result := engine.EvaluateRule(createOrderRule(), samplePayload())

	if !result.WouldExecute {
		t.Fatalf("rule with all required fields present should execute, missing=%v", result.MissingRequired)
	}
	if result.RuleID != "rule-1" || result.ActionType != ActionCreateWorkOrder {
		t.Errorf("result identity wrong: %+v", result)
	}

	if got, ok := result.Value(FieldQuantity); !ok || got != "50" {
		t.Errorf("quantity = %q (ok=%v), want 50", got, ok)
	}

	// The unmapped-but-missing optional field shows up as not found, and
	// does not block execution.
	for _, ex := range result.Extracted {
		if ex.FieldKey == FieldNotes && ex.Found {
			t.Error("notes mapped to a missing path should be Found=false")
		}
	}
}

func TestEvaluateRuleDisabled(t *testing.T) {
	engine := NewEngine(nil)
	rule := createOrderRule()
	rule.Enabled = false

	result := engine.EvaluateRule(rule, samplePayload())

	if result.WouldExecute {
		t.Error("disabled rule must never execute")
	}
	if len(result.Extracted) != 0 {
		t.Error("disabled rule should not extract anything")
	}
}

func TestEvaluateRuleMissingRequired(t *testing.T) {
	engine := NewEngine(nil)
	rule := createOrderRule()
	rule.FieldMappings[FieldQuantity] = "order.nope"

	result := engine.EvaluateRule(rule, samplePayload())

	if result.WouldExecute {
		t.Error("missing required field must block execution")
	}
	if len(result.MissingRequired) != 1 || result.MissingRequired[0] != FieldQuantity {
		t.Errorf("MissingRequired = %v, want [quantity]", result.MissingRequired)
	}
}

func TestEvaluateRuleUnmappedRequired(t *testing.T) {
	engine := NewEngine(nil)
	rule := createOrderRule()
	delete(rule.FieldMappings, FieldQuantity)

	result := engine.EvaluateRule(rule, samplePayload())

	if result.WouldExecute {
		t.Error("unmapped required field must block execution")
	}
	found := false
	for _, key := range result.MissingRequired {
		if key == FieldQuantity {
			found = true
		}
	}
	if !found {
		t.Errorf("MissingRequired = %v, should include quantity", result.MissingRequired)
	}
}

func TestEvaluateRuleConditionGates(t *testing.T) {
	engine := NewEngine(nil)
	rule := createOrderRule()
	rule.Condition = &Condition{Field: "order.urgent", Operator: OpEquals, Value: "false"}

	result := engine.EvaluateRule(rule, samplePayload())

	if result.WouldExecute {
		t.Error("failing condition must block execution")
	}
	if result.Condition == nil || result.Condition.Passed {
		t.Errorf("condition result should report the failure, got %+v", result.Condition)
	}
	// Extraction still happens for preview purposes.
	if len(result.Extracted) == 0 {
		t.Error("fields should still be extracted when the condition fails")
	}

	rule.Condition.Value = "true"
	result = engine.EvaluateRule(rule, samplePayload())
	if !result.WouldExecute {
		t.Errorf("passing condition should allow execution, got %+v", result.Condition)
	}
}

func TestEvaluateRuleExpressionCondition(t *testing.T) {
	manager, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager() failed: %v", err)
	}
	engine := NewEngine(manager)

	rule := createOrderRule()
	rule.Expression = `payload.order.quantity > 10.0`
	if err := manager.Compile(rule.ID, rule.Expression); err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}

	result := engine.EvaluateRule(rule, samplePayload())
	if !result.WouldExecute {
		t.Errorf("matching expression should allow execution, got %+v", result.Condition)
	}

	rule.Expression = `payload.order.quantity > 1000.0`
	if err := manager.Compile(rule.ID, rule.Expression); err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}
	result = engine.EvaluateRule(rule, samplePayload())
	if result.WouldExecute {
		t.Error("non-matching expression must block execution")
	}
}

func TestEvaluateRuleBothConditions(t *testing.T) {
	manager, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager() failed: %v", err)
	}
	engine := NewEngine(manager)

	rule := createOrderRule()
	rule.Condition = &Condition{Field: "order.urgent", Operator: OpExists}
	rule.Expression = `payload.order.quantity >= 50.0`
	if err := manager.Compile(rule.ID, rule.Expression); err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}

	result := engine.EvaluateRule(rule, samplePayload())
	if !result.WouldExecute {
		t.Errorf("both conditions pass, rule should execute: %+v", result.Condition)
	}

	// Simple condition fails: the expression is not even consulted.
	rule.Condition = &Condition{Field: "order.nope", Operator: OpExists}
	result = engine.EvaluateRule(rule, samplePayload())
	if result.WouldExecute {
		t.Error("failing simple condition must block execution")
	}
}

func TestEvaluateRuleUnknownActionType(t *testing.T) {
	engine := NewEngine(nil)
	rule := createOrderRule()
	rule.ActionType = "launch_rocket"

	result := engine.EvaluateRule(rule, samplePayload())

	if result.WouldExecute {
		t.Error("unknown action type must not execute")
	}
	if result.Condition == nil || !strings.Contains(result.Condition.Reason, "unknown action type") {
		t.Errorf("should report the unknown action type, got %+v", result.Condition)
	}
}

func TestEvaluateAllOrdersBySortOrder(t *testing.T) {
	engine := NewEngine(nil)

	second := createOrderRule()
	second.ID = "rule-b"
	second.SortOrder = 2

	first := createOrderRule()
	first.ID = "rule-a"
	first.SortOrder = 1

	results := engine.EvaluateAll([]*Rule{second, first}, samplePayload())

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].RuleID != "rule-a" || results[1].RuleID != "rule-b" {
		t.Errorf("results out of order: %s, %s", results[0].RuleID, results[1].RuleID)
	}
}

func TestEvaluateAllDoesNotMutateInput(t *testing.T) {
	engine := NewEngine(nil)

	a := createOrderRule()
	a.ID = "a"
	a.SortOrder = 9
	b := createOrderRule()
	b.ID = "b"
	b.SortOrder = 1

	input := []*Rule{a, b}
	engine.EvaluateAll(input, samplePayload())

	if input[0].ID != "a" || input[1].ID != "b" {
		t.Error("EvaluateAll must not reorder the caller's slice")
	}
}

// Package automation implements the webhook automation core: field-mapping
// extraction from inbound JSON payloads, condition evaluation, per-rule
// execute/skip decisions, action dispatch, and dry-run previews.
package automation

import "time"

// ActionType identifies the side effect a rule triggers when it matches.
type ActionType string

const (
	ActionCreateWorkOrder       ActionType = "create_work_order"
	ActionUpdateWorkOrderStatus ActionType = "update_work_order_status"
	ActionUpdateItemStatus      ActionType = "update_item_status"
	ActionLogActivity           ActionType = "log_activity"
	ActionTriggerWebhook        ActionType = "trigger_outgoing_webhook"
)

// FieldKey names one payload field a rule can map for its action type.
// The set of valid keys is fixed per action type, see schema.go.
type FieldKey string

const (
	FieldWorkOrderNumber   FieldKey = "workOrderNumber"
	FieldProductType       FieldKey = "productType"
	FieldQuantity          FieldKey = "quantity"
	FieldCustomer          FieldKey = "customer"
	FieldExternalReference FieldKey = "externalReference"
	FieldStartDate         FieldKey = "startDate"
	FieldShippingDate      FieldKey = "shippingDate"
	FieldNotes             FieldKey = "notes"
	FieldStatus            FieldKey = "status"
	FieldSerialNumber      FieldKey = "serialNumber"
	FieldCurrentStep       FieldKey = "currentStep"
	FieldAction            FieldKey = "action"
	FieldEntityType        FieldKey = "entityType"
	FieldEntityID          FieldKey = "entityId"
	FieldDetails           FieldKey = "details"
	FieldWebhookURL        FieldKey = "webhookUrl"
)

// Operator is a condition comparison operator.
type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "not_equals"
	OpContains  Operator = "contains"
	OpExists    Operator = "exists"
)

// Condition gates a rule on one extracted payload value.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// Rule is a configured automation rule owned by exactly one inbound webhook.
// Rules run in ascending SortOrder for deterministic execution.
type Rule struct {
	ID            string              `json:"id"`
	WebhookID     string              `json:"webhookId"`
	Name          string              `json:"name"`
	ActionType    ActionType          `json:"actionType"`
	FieldMappings map[FieldKey]string `json:"fieldMappings"`
	Condition     *Condition          `json:"condition,omitempty"`
	// Expression is an optional CEL condition over the payload (bound as
	// the `payload` variable). When set, it must pass in addition to
	// Condition. Compiled and cached per rule by Manager.
	Expression string    `json:"conditionExpression,omitempty"`
	Enabled    bool      `json:"enabled"`
	SortOrder  int       `json:"sortOrder"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ExtractionResult is the outcome of resolving one field mapping against a
// payload. Ephemeral, computed per (rule, payload) pair, never persisted.
type ExtractionResult struct {
	FieldKey FieldKey `json:"fieldKey"`
	Path     string   `json:"path"`
	Value    any      `json:"value"`
	Found    bool     `json:"found"`
}

// ConditionResult reports whether a rule's condition passed and why.
type ConditionResult struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// EvaluationResult is the outcome of evaluating one rule against one payload.
type EvaluationResult struct {
	RuleID          string             `json:"ruleId"`
	RuleName        string             `json:"ruleName"`
	ActionType      ActionType         `json:"actionType"`
	Extracted       []ExtractionResult `json:"extractedValues"`
	Condition       *ConditionResult   `json:"conditionResult,omitempty"`
	MissingRequired []FieldKey         `json:"missingRequired,omitempty"`
	WouldExecute    bool               `json:"wouldExecute"`
}

// Value returns the string-coerced extracted value for a field key.
// The second return is false when the field was not found in the payload.
func (r *EvaluationResult) Value(key FieldKey) (string, bool) {
	for _, ex := range r.Extracted {
		if ex.FieldKey == key {
			if !ex.Found {
				return "", false
			}
			return coerceString(ex.Value), true
		}
	}
	return "", false
}

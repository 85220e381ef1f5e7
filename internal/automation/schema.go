package automation

// ActionSchema is the fixed field contract for one action type.
type ActionSchema struct {
	Required []FieldKey
	Optional []FieldKey
}

// actionSchemas is the closed set of action types and their field keys.
// Field order here determines extraction order in evaluation results.
var actionSchemas = map[ActionType]ActionSchema{
	ActionCreateWorkOrder: {
		Required: []FieldKey{FieldProductType, FieldQuantity},
		Optional: []FieldKey{
			FieldWorkOrderNumber, FieldCustomer, FieldExternalReference,
			FieldStartDate, FieldShippingDate, FieldNotes,
		},
	},
	ActionUpdateWorkOrderStatus: {
		Required: []FieldKey{FieldWorkOrderNumber, FieldStatus},
	},
	ActionUpdateItemStatus: {
		Required: []FieldKey{FieldSerialNumber},
		Optional: []FieldKey{FieldStatus, FieldCurrentStep},
	},
	ActionLogActivity: {
		Required: []FieldKey{FieldAction, FieldEntityType},
		Optional: []FieldKey{FieldEntityID, FieldDetails},
	},
	ActionTriggerWebhook: {
		Required: []FieldKey{FieldWebhookURL},
	},
}

// SchemaFor returns the field schema for an action type.
func SchemaFor(action ActionType) (ActionSchema, bool) {
	s, ok := actionSchemas[action]
	return s, ok
}

// Fields returns all field keys of the schema, required first.
func (s ActionSchema) Fields() []FieldKey {
	fields := make([]FieldKey, 0, len(s.Required)+len(s.Optional))
	fields = append(fields, s.Required...)
	fields = append(fields, s.Optional...)
	return fields
}

// IsRequired reports whether key is a required field of the schema.
func (s ActionSchema) IsRequired(key FieldKey) bool {
	for _, k := range s.Required {
		if k == key {
			return true
		}
	}
	return false
}

// ActionTypes returns the known action types in a stable order.
func ActionTypes() []ActionType {
	return []ActionType{
		ActionCreateWorkOrder,
		ActionUpdateWorkOrderStatus,
		ActionUpdateItemStatus,
		ActionLogActivity,
		ActionTriggerWebhook,
	}
}

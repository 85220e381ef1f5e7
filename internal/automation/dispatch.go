package automation

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// WorkOrderDraft carries the extracted values for a create_work_order action.
type WorkOrderDraft struct {
	Number            string
	ProductType       string
	Quantity          int
	Customer          string
	ExternalReference string
	Notes             string
	StartDate         *time.Time
	ShippingDate      *time.Time
}

// ItemStatusUpdate carries the extracted values for an update_item_status action.
type ItemStatusUpdate struct {
	SerialNumber string
	Status       string
	CurrentStep  string
}

// ActivityRecord is one audit entry appended by a log_activity action.
type ActivityRecord struct {
	Action     string
	EntityType string
	EntityID   string
	Details    string
}

// Backend is the effect boundary the dispatcher acts through. The store
// package provides the production implementation.
type Backend interface {
	CreateWorkOrder(ctx context.Context, draft WorkOrderDraft) error
	UpdateWorkOrderStatus(ctx context.Context, number, status string) error
	UpdateItemStatus(ctx context.Context, update ItemStatusUpdate) error
	LogActivity(ctx context.Context, record ActivityRecord) error
}

// Outcome is the recorded result of dispatching one rule's action.
// Failures are data: one rule's failed dispatch never aborts its siblings,
// so a payload's processing report can show partial success.
type Outcome struct {
	RuleID     string     `json:"ruleId"`
	RuleName   string     `json:"ruleName"`
	ActionType ActionType `json:"actionType"`
	Success    bool       `json:"success"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	HTTPStatus int        `json:"httpStatus,omitempty"`
}

// Dispatcher executes the action of a rule whose evaluation decided
// WouldExecute.
type Dispatcher interface {
	Dispatch(ctx context.Context, rule *Rule, eval EvaluationResult, payload map[string]any) Outcome
}

// BackendDispatcher maps action types onto Backend operations and outbound
// HTTP posts.
type BackendDispatcher struct {
	backend Backend
	client  *http.Client
}

// NewBackendDispatcher creates a dispatcher. outboundTimeout bounds the
// trigger_outgoing_webhook POST; zero means 10 seconds.
func NewBackendDispatcher(backend Backend, outboundTimeout time.Duration) *BackendDispatcher {
	if outboundTimeout <= 0 {
		outboundTimeout = 10 * time.Second
	}
	return &BackendDispatcher{
		backend: backend,
		client:  &http.Client{Timeout: outboundTimeout},
	}
}

// Dispatch executes eval's action. It assumes eval.WouldExecute is true;
// callers gate on that.
func (d *BackendDispatcher) Dispatch(ctx context.Context, rule *Rule, eval EvaluationResult, payload map[string]any) Outcome {
	outcome := Outcome{
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		ActionType: rule.ActionType,
	}

	switch rule.ActionType {
	case ActionCreateWorkOrder:
		d.createWorkOrder(ctx, eval, &outcome)
	case ActionUpdateWorkOrderStatus:
		d.updateWorkOrderStatus(ctx, eval, &outcome)
	case ActionUpdateItemStatus:
		d.updateItemStatus(ctx, eval, &outcome)
	case ActionLogActivity:
		d.logActivity(ctx, eval, &outcome)
	case ActionTriggerWebhook:
		d.triggerWebhook(ctx, eval, payload, &outcome)
	default:
		outcome.Error = fmt.Sprintf("unknown action type %q", rule.ActionType)
	}

	return outcome
}

func (d *BackendDispatcher) createWorkOrder(ctx context.Context, eval EvaluationResult, outcome *Outcome) {
	quantityStr, _ := eval.Value(FieldQuantity)
	quantity, err := strconv.Atoi(strings.TrimSpace(quantityStr))
	if err != nil || quantity <= 0 {
		outcome.Error = fmt.Sprintf("quantity %q is not a positive integer", quantityStr)
		return
	}

	draft := WorkOrderDraft{Quantity: quantity}
	draft.ProductType, _ = eval.Value(FieldProductType)
	draft.Customer, _ = eval.Value(FieldCustomer)
	draft.ExternalReference, _ = eval.Value(FieldExternalReference)
	draft.Notes, _ = eval.Value(FieldNotes)

	// Absent optional number falls back to a generated one.
	if number, ok := eval.Value(FieldWorkOrderNumber); ok && number != "" {
		draft.Number = number
	} else {
		draft.Number = "WO-" + strings.ToUpper(uuid.New().String()[:8])
	}

	if raw, ok := eval.Value(FieldStartDate); ok {
		draft.StartDate = parseDate(raw)
	}
	if raw, ok := eval.Value(FieldShippingDate); ok {
		draft.ShippingDate = parseDate(raw)
	}

	if err := d.backend.CreateWorkOrder(ctx, draft); err != nil {
		outcome.Error = err.Error()
		return
	}
	outcome.Success = true
	outcome.Message = fmt.Sprintf("created work order %s", draft.Number)
}

func (d *BackendDispatcher) updateWorkOrderStatus(ctx context.Context, eval EvaluationResult, outcome *Outcome) {
	number, _ := eval.Value(FieldWorkOrderNumber)
	status, _ := eval.Value(FieldStatus)

	if err := d.backend.UpdateWorkOrderStatus(ctx, number, status); err != nil {
		outcome.Error = err.Error()
		return
	}
	outcome.Success = true
	outcome.Message = fmt.Sprintf("work order %s set to %s", number, status)
}

func (d *BackendDispatcher) updateItemStatus(ctx context.Context, eval EvaluationResult, outcome *Outcome) {
	update := ItemStatusUpdate{}
	update.SerialNumber, _ = eval.Value(FieldSerialNumber)
	update.Status, _ = eval.Value(FieldStatus)
	update.CurrentStep, _ = eval.Value(FieldCurrentStep)

	if err := d.backend.UpdateItemStatus(ctx, update); err != nil {
		outcome.Error = err.Error()
		return
	}
	outcome.Success = true
	outcome.Message = fmt.Sprintf("item %s updated", update.SerialNumber)
}

func (d *BackendDispatcher) logActivity(ctx context.Context, eval EvaluationResult, outcome *Outcome) {
	record := ActivityRecord{}
	record.Action, _ = eval.Value(FieldAction)
	record.EntityType, _ = eval.Value(FieldEntityType)
	record.EntityID, _ = eval.Value(FieldEntityID)
	record.Details, _ = eval.Value(FieldDetails)

	if err := d.backend.LogActivity(ctx, record); err != nil {
		outcome.Error = err.Error()
		return
	}
	outcome.Success = true
	outcome.Message = "activity logged"
}

// triggerWebhook forwards the original payload to the extracted URL and
// records the response status.
func (d *BackendDispatcher) triggerWebhook(ctx context.Context, eval EvaluationResult, payload map[string]any, outcome *Outcome) {
	url, _ := eval.Value(FieldWebhookURL)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		outcome.Error = fmt.Sprintf("webhook URL %q is not an http(s) URL", url)
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		outcome.Error = fmt.Sprintf("failed to encode payload: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		outcome.Error = err.Error()
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		outcome.Error = err.Error()
		return
	}
	defer resp.Body.Close()

	outcome.HTTPStatus = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		outcome.Success = true
		outcome.Message = fmt.Sprintf("forwarded payload, status %d", resp.StatusCode)
	} else {
		outcome.Error = fmt.Sprintf("forward target returned status %d", resp.StatusCode)
	}
}

func parseDate(raw string) *time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

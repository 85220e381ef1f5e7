package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/ash-vash90/production-companion/internal/logger"
)

// RuleSource loads the rules owned by one inbound webhook, ordered by
// SortOrder ascending.
type RuleSource interface {
	ListByWebhook(ctx context.Context, webhookID string) ([]*Rule, error)
}

// DeliveryRecord is the persisted processing report for one inbound payload.
type DeliveryRecord struct {
	WebhookID  string
	Payload    []byte
	Report     []byte
	Success    bool
	ReceivedAt time.Time
}

// DeliverySink persists processing reports. Live ingestion records every
// payload; dry runs record nothing.
type DeliverySink interface {
	Record(ctx context.Context, delivery DeliveryRecord) error
}

// Summary counts the rules considered for one payload.
type Summary struct {
	TotalRules    int `json:"totalRules"`
	EnabledRules  int `json:"enabledRules"`
	DisabledRules int `json:"disabledRules"`
}

// RuleReport pairs one rule's evaluation with its live dispatch outcome,
// present only on non-dry runs for rules that would execute.
type RuleReport struct {
	EvaluationResult
	LiveResult *Outcome `json:"liveResult,omitempty"`
}

// Report is the full processing report for one payload.
type Report struct {
	Success        bool         `json:"success"`
	RuleResults    []RuleReport `json:"ruleResults"`
	Summary        Summary      `json:"summary"`
	ResponseTimeMs int64        `json:"responseTimeMs"`
	DryRun         bool         `json:"dryRun"`
}

// Harness runs a webhook's rules against a payload, in dry-run preview mode
// or for real.
type Harness struct {
	rules      RuleSource
	deliveries DeliverySink
	engine     *Engine
	dispatcher Dispatcher
	now        func() time.Time
}

// NewHarness creates a Harness. deliveries may be nil when delivery logging
// is not wanted (tests); dispatcher may be nil only if every call is a dry run.
func NewHarness(rules RuleSource, deliveries DeliverySink, engine *Engine, dispatcher Dispatcher) *Harness {
	return &Harness{
		rules:      rules,
		deliveries: deliveries,
		engine:     engine,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// Test evaluates all of a webhook's rules against payload. With dryRun=true
// it performs no side effects at all; otherwise rules that would execute are
// dispatched serially in SortOrder so per-rule failures stay isolated and
// the report stays ordered.
func (h *Harness) Test(ctx context.Context, webhookID string, payload map[string]any, dryRun bool) (*Report, error) {
	start := h.now()

	rules, err := h.rules.ListByWebhook(ctx, webhookID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules for webhook %s: %w", webhookID, err)
	}

	report := &Report{
		Success: true,
		DryRun:  dryRun,
		Summary: Summary{TotalRules: len(rules)},
	}
	for _, rule := range rules {
		if rule.Enabled {
			report.Summary.EnabledRules++
		} else {
			report.Summary.DisabledRules++
		}
	}

	results := h.engine.EvaluateAll(rules, payload)
	byID := make(map[string]*Rule, len(rules))
	for _, rule := range rules {
		byID[rule.ID] = rule
	}

	report.RuleResults = make([]RuleReport, 0, len(results))
	for _, eval := range results {
		rr := RuleReport{EvaluationResult: eval}
		if !dryRun && eval.WouldExecute {
			outcome := h.dispatcher.Dispatch(ctx, byID[eval.RuleID], eval, payload)
			rr.LiveResult = &outcome
			if !outcome.Success {
				report.Success = false
			}
		}
		report.RuleResults = append(report.RuleResults, rr)
	}

	report.ResponseTimeMs = time.Since(start).Milliseconds()
	return report, nil
}

// Process is the live ingestion path: evaluate, dispatch, and persist the
// processing report as a delivery record.
func (h *Harness) Process(ctx context.Context, webhookID string, payload map[string]any) (*Report, error) {
	report, err := h.Test(ctx, webhookID, payload, false)
	if err != nil {
		return nil, err
	}

	if h.deliveries != nil {
		payloadJSON, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
		reportJSON, err := json.Marshal(report)
		if err != nil {
			return nil, fmt.Errorf("failed to encode report: %w", err)
		}
		record := DeliveryRecord{
			WebhookID:  webhookID,
			Payload:    payloadJSON,
			Report:     reportJSON,
			Success:    report.Success,
			ReceivedAt: h.now(),
		}
		if err := h.deliveries.Record(ctx, record); err != nil {
			// The caller already has the report; a failed delivery log must
			// not turn a processed payload into an error.
			logger.Warn("failed to record delivery", "webhookId", webhookID, "error", err)
		}
	}

	return report, nil
}

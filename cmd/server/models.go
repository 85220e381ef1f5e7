package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ash-vash90/production-companion/internal/automation"
	"github.com/ash-vash90/production-companion/internal/store"
)

type createWebhookRequest struct {
	Name    string `json:"name"`
	Enabled *bool  `json:"enabled,omitempty"`
}

type updateWebhookRequest struct {
	Name    string `json:"name"`
	Enabled *bool  `json:"enabled,omitempty"`
	// RotateToken true issues a new token; the old one stops working.
	RotateToken bool `json:"rotateToken,omitempty"`
}

// webhookResponse exposes the token only on create and rotation.
type webhookResponse struct {
	*store.Webhook
	Token string `json:"token,omitempty"`
}

type ruleRequest struct {
	Name          string                         `json:"name"`
	ActionType    automation.ActionType          `json:"actionType"`
	FieldMappings map[automation.FieldKey]string `json:"fieldMappings"`
	Condition     *automation.Condition          `json:"condition,omitempty"`
	Expression    string                         `json:"conditionExpression,omitempty"`
	Enabled       *bool                          `json:"enabled,omitempty"`
	SortOrder     int                            `json:"sortOrder,omitempty"`
}

func (req *ruleRequest) toRule(webhookID string) *automation.Rule {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return &automation.Rule{
		WebhookID:     webhookID,
		Name:          req.Name,
		ActionType:    req.ActionType,
		FieldMappings: req.FieldMappings,
		Condition:     req.Condition,
		Expression:    req.Expression,
		Enabled:       enabled,
		SortOrder:     req.SortOrder,
	}
}

type setEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

type testWebhookRequest struct {
	Payload map[string]any `json:"payload"`
	// DryRun defaults to true: evaluation only, no actions, no delivery
	// record. Set false to run actions against the live backend.
	DryRun *bool `json:"dryRun,omitempty"`
}

// listEnvelope wraps cached list responses so clients can tell degraded
// data from fresh data.
type listEnvelope struct {
	Data  any    `json:"data"`
	Stale bool   `json:"stale,omitempty"`
	Error string `json:"error,omitempty"`
}

func workOrderFiltersFromQuery(r *http.Request) store.WorkOrderFilters {
	q := r.URL.Query()
	filters := store.WorkOrderFilters{
		ProductType: q.Get("productType"),
		Search:      q.Get("search"),
	}
	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filters.Status = append(filters.Status, s)
			}
		}
	}
	filters.CreatedFrom = parseTimeParam(q.Get("createdFrom"))
	filters.CreatedTo = parseTimeParam(q.Get("createdTo"))
	return filters
}

func reportFiltersFromQuery(r *http.Request) store.ReportFilters {
	q := r.URL.Query()
	return store.ReportFilters{
		WorkOrderNumber: q.Get("workOrderNumber"),
		ProductType:     q.Get("productType"),
		CreatedFrom:     parseTimeParam(q.Get("createdFrom")),
		CreatedTo:       parseTimeParam(q.Get("createdTo")),
	}
}

func parseTimeParam(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func intParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

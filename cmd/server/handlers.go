package main

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/ash-vash90/production-companion/internal/automation"
	"github.com/ash-vash90/production-companion/internal/logger"
	"github.com/ash-vash90/production-companion/internal/query"
	"github.com/ash-vash90/production-companion/internal/store"
	"github.com/ash-vash90/production-companion/internal/workorders"
)

// handleIngest processes one inbound payload: token check, rule
// evaluation, action dispatch and delivery recording. The processing
// report is returned even when some actions failed so the sender can see
// partial results.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "webhookID")

	webhook, err := s.stores.webhooks.Get(r.Context(), webhookID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "webhook not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load webhook", err)
		return
	}

	token := r.Header.Get("X-Webhook-Token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(webhook.Token)) != 1 {
		respondError(w, http.StatusUnauthorized, "invalid token", nil)
		return
	}
	if !webhook.Enabled {
		respondError(w, http.StatusForbidden, "webhook disabled", nil)
		return
	}

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload", err)
		return
	}

	report, err := s.harness.Process(r.Context(), webhookID, payload)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "processing failed", err)
		return
	}

	logger.Info("processed webhook payload",
		"webhookId", webhookID, "success", report.Success, "rules", len(report.RuleResults))
	respondJSON(w, http.StatusOK, report)
}

// handleTestWebhook runs the test harness against a sample payload.
// Defaults to dry run: evaluation only, no side effects.
func (s *Server) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "webhookID")

	if _, err := s.stores.webhooks.Get(r.Context(), webhookID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "webhook not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load webhook", err)
		return
	}

	var req testWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Payload == nil {
		respondError(w, http.StatusBadRequest, "payload is required", nil)
		return
	}
	dryRun := true
	if req.DryRun != nil {
		dryRun = *req.DryRun
	}

	report, err := s.harness.Test(r.Context(), webhookID, req.Payload, dryRun)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "test failed", err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	webhooks, err := s.stores.webhooks.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list webhooks", err)
		return
	}
	if webhooks == nil {
		webhooks = []*store.Webhook{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"webhooks": webhooks})
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	webhook := &store.Webhook{
		Name:    req.Name,
		Token:   uuid.New().String(),
		Enabled: true,
	}
	if req.Enabled != nil {
		webhook.Enabled = *req.Enabled
	}
	if err := s.stores.webhooks.Create(r.Context(), webhook); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create webhook", err)
		return
	}
	respondJSON(w, http.StatusCreated, webhookResponse{Webhook: webhook, Token: webhook.Token})
}

func (s *Server) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	webhook, err := s.stores.webhooks.Get(r.Context(), chi.URLParam(r, "webhookID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "webhook not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get webhook", err)
		return
	}
	respondJSON(w, http.StatusOK, webhook)
}

func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "webhookID")

	webhook, err := s.stores.webhooks.Get(r.Context(), webhookID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "webhook not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get webhook", err)
		return
	}

	var req updateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name != "" {
		webhook.Name = req.Name
	}
	if req.Enabled != nil {
		webhook.Enabled = *req.Enabled
	}
	rotated := ""
	if req.RotateToken {
		webhook.Token = uuid.New().String()
		rotated = webhook.Token
	}

	if err := s.stores.webhooks.Update(r.Context(), webhook); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update webhook", err)
		return
	}
	respondJSON(w, http.StatusOK, webhookResponse{Webhook: webhook, Token: rotated})
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "webhookID")

	// Drop compiled expressions for the webhook's rules before the rows go.
	rules, err := s.stores.rules.ListByWebhook(r.Context(), webhookID)
	if err == nil {
		for _, rule := range rules {
			s.manager.Remove(rule.ID)
		}
	}

	if err := s.stores.webhooks.Delete(r.Context(), webhookID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "webhook not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete webhook", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "webhookID")
	limit := intParam(r, "limit", 50)

	deliveries, err := s.stores.deliveries.ListByWebhook(r.Context(), webhookID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list deliveries", err)
		return
	}
	if deliveries == nil {
		deliveries = []store.Delivery{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"deliveries": deliveries})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "webhookID")

	if _, err := s.stores.webhooks.Get(r.Context(), webhookID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "webhook not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load webhook", err)
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := req.toRule(webhookID)
	rule.ID = uuid.New().String()

	if err := automation.ValidateRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule", err)
		return
	}
	if rule.Expression != "" {
		if err := s.manager.Compile(rule.ID, rule.Expression); err != nil {
			respondError(w, http.StatusBadRequest, "invalid condition expression", err)
			return
		}
	}

	if err := s.stores.rules.Create(r.Context(), rule); err != nil {
		s.manager.Remove(rule.ID)
		respondError(w, http.StatusInternalServerError, "failed to create rule", err)
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.stores.rules.ListByWebhook(r.Context(), chi.URLParam(r, "webhookID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	if rules == nil {
		rules = []*automation.Rule{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.stores.rules.Get(r.Context(), chi.URLParam(r, "ruleID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "rule not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get rule", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleID")

	existing, err := s.stores.rules.Get(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "rule not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get rule", err)
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := req.toRule(existing.WebhookID)
	rule.ID = existing.ID
	rule.CreatedAt = existing.CreatedAt

	if err := automation.ValidateRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule", err)
		return
	}
	if rule.Expression != "" {
		if err := s.manager.Check(rule.Expression); err != nil {
			respondError(w, http.StatusBadRequest, "invalid condition expression", err)
			return
		}
	}

	if err := s.stores.rules.Update(r.Context(), rule); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update rule", err)
		return
	}

	// Swap the cached program only once the rule is persisted, so a failed
	// write leaves the manager matching the stored rule.
	if rule.Expression != "" {
		if err := s.manager.Compile(rule.ID, rule.Expression); err != nil {
			logger.Error("failed to compile updated rule expression",
				"rule_id", rule.ID, "error", err)
		}
	} else {
		s.manager.Remove(rule.ID)
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleID")

	if err := s.stores.rules.Delete(r.Context(), ruleID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "rule not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete rule", err)
		return
	}
	s.manager.Remove(ruleID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetRuleEnabled(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleID")

	var req setEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := s.stores.rules.SetEnabled(r.Context(), ruleID, req.Enabled); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "rule not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to update rule", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": ruleID, "enabled": req.Enabled})
}

// handleListWorkOrders serves the enriched list through the cached query
// layer. Degraded results come back with stale=true and the error attached
// instead of a 5xx, so clients keep rendering the last-good data.
func (s *Server) handleListWorkOrders(w http.ResponseWriter, r *http.Request) {
	filters := workOrderFiltersFromQuery(r)

	var result query.Result[workorders.EnrichedWorkOrder]
	if r.URL.Query().Get("refresh") == "true" {
		result = s.service.RefreshWorkOrders(r.Context(), filters)
	} else {
		result = s.service.ListWorkOrders(r.Context(), filters)
	}

	if result.Err != nil && len(result.Items) == 0 {
		respondError(w, http.StatusServiceUnavailable, "failed to load work orders", result.Err)
		return
	}

	envelope := listEnvelope{Data: result.Items, Stale: result.Stale}
	if result.Items == nil {
		envelope.Data = []struct{}{}
	}
	if result.Err != nil {
		envelope.Error = result.Err.Error()
	}
	respondJSON(w, http.StatusOK, envelope)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	result := s.service.ListReports(r.Context(), reportFiltersFromQuery(r))
	if result.Err != nil && len(result.Items) == 0 {
		respondError(w, http.StatusServiceUnavailable, "failed to load reports", result.Err)
		return
	}

	envelope := listEnvelope{Data: result.Items, Stale: result.Stale}
	if result.Items == nil {
		envelope.Data = []struct{}{}
	}
	if result.Err != nil {
		envelope.Error = result.Err.Error()
	}
	respondJSON(w, http.StatusOK, envelope)
}

func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 100)

	entries, err := s.stores.activity.List(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list activity", err)
		return
	}
	if entries == nil {
		entries = []store.ActivityEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"activity": entries})
}

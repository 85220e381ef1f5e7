package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ash-vash90/production-companion/internal/automation"
)

// In-memory store implementations. Used by tests and by single-binary
// deployments without a database. All are safe for concurrent use.

// MemoryWebhookStore implements WebhookStore with a map.
type MemoryWebhookStore struct {
	webhooks map[string]*Webhook
	mu       sync.RWMutex
}

func NewMemoryWebhookStore() *MemoryWebhookStore {
	return &MemoryWebhookStore{webhooks: make(map[string]*Webhook)}
}

func (s *MemoryWebhookStore) Create(ctx context.Context, webhook *Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if webhook.ID == "" {
		webhook.ID = uuid.New().String()
	}
	if _, exists := s.webhooks[webhook.ID]; exists {
		return fmt.Errorf("webhook %s already exists", webhook.ID)
	}
	now := time.Now()
	webhook.CreatedAt = now
	webhook.UpdatedAt = now
	s.webhooks[webhook.ID] = webhook
	return nil
}

func (s *MemoryWebhookStore) Get(ctx context.Context, id string) (*Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	webhook, exists := s.webhooks[id]
	if !exists {
		return nil, fmt.Errorf("webhook %s: %w", id, ErrNotFound)
	}
	copied := *webhook
	return &copied, nil
}

func (s *MemoryWebhookStore) List(ctx context.Context) ([]*Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*Webhook, 0, len(s.webhooks))
	for _, webhook := range s.webhooks {
		copied := *webhook
		list = append(list, &copied)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (s *MemoryWebhookStore) Update(ctx context.Context, webhook *Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.webhooks[webhook.ID]
	if !exists {
		return fmt.Errorf("webhook %s: %w", webhook.ID, ErrNotFound)
	}
	webhook.CreatedAt = existing.CreatedAt
	webhook.UpdatedAt = time.Now()
	s.webhooks[webhook.ID] = webhook
	return nil
}

func (s *MemoryWebhookStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.webhooks[id]; !exists {
		return fmt.Errorf("webhook %s: %w", id, ErrNotFound)
	}
	delete(s.webhooks, id)
	return nil
}

// MemoryRuleStore implements RuleStore with a map.
type MemoryRuleStore struct {
	rules map[string]*automation.Rule
	mu    sync.RWMutex
}

func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{rules: make(map[string]*automation.Rule)}
}

func (s *MemoryRuleStore) Create(ctx context.Context, rule *automation.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule %s already exists", rule.ID)
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.rules[rule.ID] = rule
	return nil
}

func (s *MemoryRuleStore) Get(ctx context.Context, id string) (*automation.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	copied := *rule
	return &copied, nil
}

func (s *MemoryRuleStore) ListByWebhook(ctx context.Context, webhookID string) ([]*automation.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*automation.Rule
	for _, rule := range s.rules {
		if rule.WebhookID == webhookID {
			copied := *rule
			list = append(list, &copied)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].SortOrder < list[j].SortOrder })
	return list, nil
}

func (s *MemoryRuleStore) Update(ctx context.Context, rule *automation.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrNotFound)
	}
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	s.rules[rule.ID] = rule
	return nil
}

func (s *MemoryRuleStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	delete(s.rules, id)
	return nil
}

func (s *MemoryRuleStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, exists := s.rules[id]
	if !exists {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	rule.Enabled = enabled
	rule.UpdatedAt = time.Now()
	return nil
}

// MemoryWorkOrderStore implements WorkOrderStore with a map.
type MemoryWorkOrderStore struct {
	orders map[string]*WorkOrder // keyed by ID
	mu     sync.RWMutex
}

func NewMemoryWorkOrderStore() *MemoryWorkOrderStore {
	return &MemoryWorkOrderStore{orders: make(map[string]*WorkOrder)}
}

func (s *MemoryWorkOrderStore) Create(ctx context.Context, workOrder *WorkOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if workOrder.ID == "" {
		workOrder.ID = uuid.New().String()
	}
	for _, existing := range s.orders {
		if existing.Number == workOrder.Number {
			return fmt.Errorf("work order number %s already exists", workOrder.Number)
		}
	}
	if workOrder.Status == "" {
		workOrder.Status = "planned"
	}
	now := time.Now()
	workOrder.CreatedAt = now
	workOrder.UpdatedAt = now
	s.orders[workOrder.ID] = workOrder
	return nil
}

func (s *MemoryWorkOrderStore) GetByNumber(ctx context.Context, number string) (*WorkOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, workOrder := range s.orders {
		if workOrder.Number == number {
			copied := *workOrder
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("work order %s: %w", number, ErrNotFound)
}

func (s *MemoryWorkOrderStore) List(ctx context.Context, filters WorkOrderFilters) ([]WorkOrder, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []WorkOrder
	for _, workOrder := range s.orders {
		if workOrderMatches(workOrder, filters) {
			matched = append(matched, *workOrder)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := -1
	if filters.WithCount {
		total = len(matched)
	}

	if filters.Offset > 0 {
		if filters.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[filters.Offset:]
	}
	if filters.Limit > 0 && len(matched) > filters.Limit {
		matched = matched[:filters.Limit]
	}
	return matched, total, nil
}

func (s *MemoryWorkOrderStore) UpdateStatusByNumber(ctx context.Context, number, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, workOrder := range s.orders {
		if workOrder.Number == number {
			workOrder.Status = status
			workOrder.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("work order %s: %w", number, ErrNotFound)
}

func workOrderMatches(workOrder *WorkOrder, filters WorkOrderFilters) bool {
	if len(filters.Status) > 0 {
		found := false
		for _, status := range filters.Status {
			if workOrder.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filters.ProductType != "" && workOrder.ProductType != filters.ProductType {
		return false
	}
	if filters.Search != "" {
		needle := strings.ToLower(filters.Search)
		if !strings.Contains(strings.ToLower(workOrder.Number), needle) &&
			!strings.Contains(strings.ToLower(workOrder.Customer), needle) {
			return false
		}
	}
	if filters.CreatedFrom != nil && workOrder.CreatedAt.Before(*filters.CreatedFrom) {
		return false
	}
	if filters.CreatedTo != nil && workOrder.CreatedAt.After(*filters.CreatedTo) {
		return false
	}
	return true
}

// MemoryItemStore implements ItemStore with a map.
type MemoryItemStore struct {
	items map[string]*Item
	mu    sync.RWMutex
}

func NewMemoryItemStore() *MemoryItemStore {
	return &MemoryItemStore{items: make(map[string]*Item)}
}

func (s *MemoryItemStore) Create(ctx context.Context, item *Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now
	s.items[item.ID] = item
	return nil
}

func (s *MemoryItemStore) ListByWorkOrders(ctx context.Context, workOrderIDs []string) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(workOrderIDs))
	for _, id := range workOrderIDs {
		wanted[id] = true
	}

	var list []Item
	for _, item := range s.items {
		if wanted[item.WorkOrderID] {
			list = append(list, *item)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].SerialNumber < list[j].SerialNumber })
	return list, nil
}

func (s *MemoryItemStore) UpdateStatusBySerial(ctx context.Context, serial, status, currentStep string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item.SerialNumber == serial {
			if status != "" {
				item.Status = status
			}
			if currentStep != "" {
				item.CurrentStep = currentStep
			}
			item.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("item %s: %w", serial, ErrNotFound)
}

// MemoryProfileStore implements ProfileStore with a map.
type MemoryProfileStore struct {
	profiles map[string]Profile
	mu       sync.RWMutex
}

func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]Profile)}
}

func (s *MemoryProfileStore) Create(ctx context.Context, profile *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	s.profiles[profile.ID] = *profile
	return nil
}

func (s *MemoryProfileStore) GetByIDs(ctx context.Context, ids []string) (map[string]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]Profile, len(ids))
	for _, id := range ids {
		if profile, exists := s.profiles[id]; exists {
			result[id] = profile
		}
	}
	return result, nil
}

// MemoryReportStore implements ReportStore with a slice.
type MemoryReportStore struct {
	reports []Report
	mu      sync.RWMutex
}

func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{}
}

func (s *MemoryReportStore) Create(ctx context.Context, report *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}
	s.reports = append(s.reports, *report)
	return nil
}

func (s *MemoryReportStore) List(ctx context.Context, filters ReportFilters) ([]Report, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Report
	for _, report := range s.reports {
		if filters.WorkOrderNumber != "" && report.WorkOrderNumber != filters.WorkOrderNumber {
			continue
		}
		if filters.ProductType != "" && report.ProductType != filters.ProductType {
			continue
		}
		if filters.CreatedFrom != nil && report.CreatedAt.Before(*filters.CreatedFrom) {
			continue
		}
		if filters.CreatedTo != nil && report.CreatedAt.After(*filters.CreatedTo) {
			continue
		}
		matched = append(matched, report)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	if filters.Offset > 0 {
		if filters.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[filters.Offset:]
	}
	if filters.Limit > 0 && len(matched) > filters.Limit {
		matched = matched[:filters.Limit]
	}
	return matched, total, nil
}

// MemoryActivityStore implements ActivityStore with a slice.
type MemoryActivityStore struct {
	entries []ActivityEntry
	mu      sync.RWMutex
}

func NewMemoryActivityStore() *MemoryActivityStore {
	return &MemoryActivityStore{}
}

func (s *MemoryActivityStore) Append(ctx context.Context, entry *ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *MemoryActivityStore) List(ctx context.Context, limit int) ([]ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]ActivityEntry, len(s.entries))
	copy(entries, s.entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// MemoryDeliveryStore implements DeliveryStore with a slice.
type MemoryDeliveryStore struct {
	deliveries []Delivery
	mu         sync.RWMutex
}

func NewMemoryDeliveryStore() *MemoryDeliveryStore {
	return &MemoryDeliveryStore{}
}

func (s *MemoryDeliveryStore) Record(ctx context.Context, delivery *Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if delivery.ID == "" {
		delivery.ID = uuid.New().String()
	}
	s.deliveries = append(s.deliveries, *delivery)
	return nil
}

func (s *MemoryDeliveryStore) ListByWebhook(ctx context.Context, webhookID string, limit int) ([]Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []Delivery
	for _, delivery := range s.deliveries {
		if delivery.WebhookID == webhookID {
			list = append(list, delivery)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ReceivedAt.After(list[j].ReceivedAt) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

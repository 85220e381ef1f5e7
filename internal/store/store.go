// Package store holds the persistence layer: entity types, the store
// interfaces the rest of the core consumes, and their in-memory and
// Postgres implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ash-vash90/production-companion/internal/automation"
)

// ErrNotFound is returned when a referenced entity does not exist.
// Dispatch reports it per rule instead of failing a whole payload.
var ErrNotFound = errors.New("not found")

// Webhook is an inbound automation endpoint. Rules belong to exactly one
// webhook and are never shared across webhooks.
type Webhook struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Token     string    `json:"-"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// WorkOrder is one production order.
type WorkOrder struct {
	ID                string     `json:"id"`
	Number            string     `json:"number"`
	ProductType       string     `json:"productType"`
	Quantity          int        `json:"quantity"`
	Status            string     `json:"status"`
	Customer          string     `json:"customer,omitempty"`
	ExternalReference string     `json:"externalReference,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	StartDate         *time.Time `json:"startDate,omitempty"`
	ShippingDate      *time.Time `json:"shippingDate,omitempty"`
	CreatedBy         string     `json:"createdBy,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Item is one serialized unit belonging to a work order.
type Item struct {
	ID           string    `json:"id"`
	WorkOrderID  string    `json:"workOrderId"`
	SerialNumber string    `json:"serialNumber"`
	Status       string    `json:"status"`
	CurrentStep  string    `json:"currentStep,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Profile is a user profile joined onto uploads and reports.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
}

// Report is one uploaded production report.
type Report struct {
	ID              string    `json:"id"`
	WorkOrderNumber string    `json:"workOrderNumber"`
	ProductType     string    `json:"productType"`
	Quantity        int       `json:"quantity"`
	FileName        string    `json:"fileName"`
	UploadedBy      string    `json:"uploadedBy"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ActivityEntry is one audit record.
type ActivityEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId,omitempty"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Delivery is the persisted processing report for one inbound payload.
type Delivery struct {
	ID         string    `json:"id"`
	WebhookID  string    `json:"webhookId"`
	Payload    []byte    `json:"payload"`
	Report     []byte    `json:"report"`
	Success    bool      `json:"success"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// WorkOrderFilters select work orders for listing. Zero values mean "no
// constraint". Limit 0 means no limit; WithCount asks the store for an
// exact total (otherwise -1 is returned).
type WorkOrderFilters struct {
	Status      []string   `json:"status,omitempty"`
	ProductType string     `json:"productType,omitempty"`
	Search      string     `json:"search,omitempty"`
	CreatedFrom *time.Time `json:"createdFrom,omitempty"`
	CreatedTo   *time.Time `json:"createdTo,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
	WithCount   bool       `json:"-"`
}

// ReportFilters select reports for listing.
type ReportFilters struct {
	WorkOrderNumber string     `json:"workOrderNumber,omitempty"`
	ProductType     string     `json:"productType,omitempty"`
	CreatedFrom     *time.Time `json:"createdFrom,omitempty"`
	CreatedTo       *time.Time `json:"createdTo,omitempty"`
	Limit           int        `json:"limit,omitempty"`
	Offset          int        `json:"offset,omitempty"`
}

// WebhookStore manages inbound webhook endpoints.
type WebhookStore interface {
	Create(ctx context.Context, webhook *Webhook) error
	Get(ctx context.Context, id string) (*Webhook, error)
	List(ctx context.Context) ([]*Webhook, error)
	Update(ctx context.Context, webhook *Webhook) error
	Delete(ctx context.Context, id string) error
}

// RuleStore manages automation rules.
type RuleStore interface {
	Create(ctx context.Context, rule *automation.Rule) error
	Get(ctx context.Context, id string) (*automation.Rule, error)
	// ListByWebhook returns the webhook's rules ordered by SortOrder ascending.
	ListByWebhook(ctx context.Context, webhookID string) ([]*automation.Rule, error)
	Update(ctx context.Context, rule *automation.Rule) error
	Delete(ctx context.Context, id string) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

// WorkOrderStore manages work orders. List returns (rows, total); total is
// -1 unless WithCount was requested.
type WorkOrderStore interface {
	Create(ctx context.Context, workOrder *WorkOrder) error
	GetByNumber(ctx context.Context, number string) (*WorkOrder, error)
	List(ctx context.Context, filters WorkOrderFilters) ([]WorkOrder, int, error)
	UpdateStatusByNumber(ctx context.Context, number, status string) error
}

// ItemStore manages serialized items.
type ItemStore interface {
	Create(ctx context.Context, item *Item) error
	// ListByWorkOrders batch-loads items for the given work order IDs in one
	// query, for row enrichment without per-row lookups.
	ListByWorkOrders(ctx context.Context, workOrderIDs []string) ([]Item, error)
	UpdateStatusBySerial(ctx context.Context, serial, status, currentStep string) error
}

// ProfileStore resolves user profiles.
type ProfileStore interface {
	Create(ctx context.Context, profile *Profile) error
	// GetByIDs batch-loads profiles keyed by ID; missing IDs are simply
	// absent from the result.
	GetByIDs(ctx context.Context, ids []string) (map[string]Profile, error)
}

// ReportStore manages uploaded reports.
type ReportStore interface {
	Create(ctx context.Context, report *Report) error
	List(ctx context.Context, filters ReportFilters) ([]Report, int, error)
}

// ActivityStore appends audit records.
type ActivityStore interface {
	Append(ctx context.Context, entry *ActivityEntry) error
	List(ctx context.Context, limit int) ([]ActivityEntry, error)
}

// DeliveryStore records webhook processing reports.
type DeliveryStore interface {
	Record(ctx context.Context, delivery *Delivery) error
	ListByWebhook(ctx context.Context, webhookID string, limit int) ([]Delivery, error)
}

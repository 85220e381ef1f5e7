package store

import (
	"context"
	"time"

	"github.com/ash-vash90/production-companion/internal/automation"
)

// Backend adapts the stores to the automation package's effect boundary so
// dispatched actions write through the same persistence layer as the API.
type Backend struct {
	workOrders WorkOrderStore
	items      ItemStore
	activity   ActivityStore
}

func NewBackend(workOrders WorkOrderStore, items ItemStore, activity ActivityStore) *Backend {
	return &Backend{workOrders: workOrders, items: items, activity: activity}
}

func (b *Backend) CreateWorkOrder(ctx context.Context, draft automation.WorkOrderDraft) error {
	return b.workOrders.Create(ctx, &WorkOrder{
		Number:            draft.Number,
		ProductType:       draft.ProductType,
		Quantity:          draft.Quantity,
		Customer:          draft.Customer,
		ExternalReference: draft.ExternalReference,
		Notes:             draft.Notes,
		StartDate:         draft.StartDate,
		ShippingDate:      draft.ShippingDate,
	})
}

func (b *Backend) UpdateWorkOrderStatus(ctx context.Context, number, status string) error {
	return b.workOrders.UpdateStatusByNumber(ctx, number, status)
}

func (b *Backend) UpdateItemStatus(ctx context.Context, update automation.ItemStatusUpdate) error {
	return b.items.UpdateStatusBySerial(ctx, update.SerialNumber, update.Status, update.CurrentStep)
}

func (b *Backend) LogActivity(ctx context.Context, record automation.ActivityRecord) error {
	return b.activity.Append(ctx, &ActivityEntry{
		Action:     record.Action,
		EntityType: record.EntityType,
		EntityID:   record.EntityID,
		Details:    record.Details,
	})
}

// RuleSource adapts a RuleStore for the evaluation harness.
type RuleSource struct {
	rules RuleStore
}

func NewRuleSource(rules RuleStore) *RuleSource {
	return &RuleSource{rules: rules}
}

func (s *RuleSource) ListByWebhook(ctx context.Context, webhookID string) ([]*automation.Rule, error) {
	return s.rules.ListByWebhook(ctx, webhookID)
}

// DeliverySink adapts a DeliveryStore for the evaluation harness.
type DeliverySink struct {
	deliveries DeliveryStore
}

func NewDeliverySink(deliveries DeliveryStore) *DeliverySink {
	return &DeliverySink{deliveries: deliveries}
}

func (s *DeliverySink) Record(ctx context.Context, delivery automation.DeliveryRecord) error {
	receivedAt := delivery.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	return s.deliveries.Record(ctx, &Delivery{
		WebhookID:  delivery.WebhookID,
		Payload:    delivery.Payload,
		Report:     delivery.Report,
		Success:    delivery.Success,
		ReceivedAt: receivedAt,
	})
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ash-vash90/production-companion/internal/automation"
)

// Postgres implementations of the store interfaces, backed by database/sql
// and lib/pq. Schema lives in migrations/.

// PostgresWebhookStore implements WebhookStore.
type PostgresWebhookStore struct {
	db *sql.DB
}

func NewPostgresWebhookStore(db *sql.DB) *PostgresWebhookStore {
	return &PostgresWebhookStore{db: db}
}

func (s *PostgresWebhookStore) Create(ctx context.Context, webhook *Webhook) error {
	if webhook.ID == "" {
		webhook.ID = uuid.New().String()
	}
	now := time.Now()
	webhook.CreatedAt = now
	webhook.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhooks (id, name, token, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, webhook.ID, webhook.Name, webhook.Token, webhook.Enabled, webhook.CreatedAt, webhook.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert webhook: %w", err)
	}
	return nil
}

func (s *PostgresWebhookStore) Get(ctx context.Context, id string) (*Webhook, error) {
	var webhook Webhook
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, token, enabled, created_at, updated_at
		FROM webhooks
		WHERE id = $1
	`, id).Scan(&webhook.ID, &webhook.Name, &webhook.Token, &webhook.Enabled,
		&webhook.CreatedAt, &webhook.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("webhook %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return &webhook, nil
}

func (s *PostgresWebhookStore) List(ctx context.Context) ([]*Webhook, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, token, enabled, created_at, updated_at
		FROM webhooks
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()

	var list []*Webhook
	for rows.Next() {
		var webhook Webhook
		if err := rows.Scan(&webhook.ID, &webhook.Name, &webhook.Token, &webhook.Enabled,
			&webhook.CreatedAt, &webhook.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		list = append(list, &webhook)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating webhooks: %w", err)
	}
	return list, nil
}

func (s *PostgresWebhookStore) Update(ctx context.Context, webhook *Webhook) error {
	webhook.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE webhooks
		SET name = $1, token = $2, enabled = $3, updated_at = $4
		WHERE id = $5
	`, webhook.Name, webhook.Token, webhook.Enabled, webhook.UpdatedAt, webhook.ID)
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	return checkAffected(result, fmt.Sprintf("webhook %s", webhook.ID))
}

func (s *PostgresWebhookStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return checkAffected(result, fmt.Sprintf("webhook %s", id))
}

// PostgresRuleStore implements RuleStore. Field mappings and the simple
// condition are stored as JSONB.
type PostgresRuleStore struct {
	db *sql.DB
}

func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

func (s *PostgresRuleStore) Create(ctx context.Context, rule *automation.Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	mappings, condition, err := encodeRule(rule)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO automation_rules
			(id, webhook_id, name, action_type, field_mappings, condition, expression,
			 enabled, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rule.ID, rule.WebhookID, rule.Name, string(rule.ActionType), mappings, condition,
		rule.Expression, rule.Enabled, rule.SortOrder, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

func (s *PostgresRuleStore) Get(ctx context.Context, id string) (*automation.Rule, error) {
	rule, err := scanRule(s.db.QueryRowContext(ctx, `
		SELECT id, webhook_id, name, action_type, field_mappings, condition, expression,
		       enabled, sort_order, created_at, updated_at
		FROM automation_rules
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

func (s *PostgresRuleStore) ListByWebhook(ctx context.Context, webhookID string) ([]*automation.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, webhook_id, name, action_type, field_mappings, condition, expression,
		       enabled, sort_order, created_at, updated_at
		FROM automation_rules
		WHERE webhook_id = $1
		ORDER BY sort_order ASC, created_at ASC
	`, webhookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var list []*automation.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		list = append(list, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return list, nil
}

func (s *PostgresRuleStore) Update(ctx context.Context, rule *automation.Rule) error {
	rule.UpdatedAt = time.Now()

	mappings, condition, err := encodeRule(rule)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE automation_rules
		SET name = $1, action_type = $2, field_mappings = $3, condition = $4,
		    expression = $5, enabled = $6, sort_order = $7, updated_at = $8
		WHERE id = $9
	`, rule.Name, string(rule.ActionType), mappings, condition, rule.Expression,
		rule.Enabled, rule.SortOrder, rule.UpdatedAt, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return checkAffected(result, fmt.Sprintf("rule %s", rule.ID))
}

func (s *PostgresRuleStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM automation_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return checkAffected(result, fmt.Sprintf("rule %s", id))
}

func (s *PostgresRuleStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE automation_rules SET enabled = $1, updated_at = NOW() WHERE id = $2
	`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to toggle rule: %w", err)
	}
	return checkAffected(result, fmt.Sprintf("rule %s", id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*automation.Rule, error) {
	var rule automation.Rule
	var actionType string
	var mappings []byte
	var condition []byte

	err := row.Scan(&rule.ID, &rule.WebhookID, &rule.Name, &actionType, &mappings,
		&condition, &rule.Expression, &rule.Enabled, &rule.SortOrder,
		&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rule.ActionType = automation.ActionType(actionType)
	if len(mappings) > 0 {
		if err := json.Unmarshal(mappings, &rule.FieldMappings); err != nil {
			return nil, fmt.Errorf("invalid field mappings for rule %s: %w", rule.ID, err)
		}
	}
	if len(condition) > 0 {
		rule.Condition = &automation.Condition{}
		if err := json.Unmarshal(condition, rule.Condition); err != nil {
			return nil, fmt.Errorf("invalid condition for rule %s: %w", rule.ID, err)
		}
	}
	return &rule, nil
}

func encodeRule(rule *automation.Rule) (mappings []byte, condition []byte, err error) {
	mappings, err = json.Marshal(rule.FieldMappings)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode field mappings: %w", err)
	}
	if rule.Condition != nil {
		condition, err = json.Marshal(rule.Condition)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode condition: %w", err)
		}
	}
	return mappings, condition, nil
}

// PostgresWorkOrderStore implements WorkOrderStore.
type PostgresWorkOrderStore struct {
	db *sql.DB
}

func NewPostgresWorkOrderStore(db *sql.DB) *PostgresWorkOrderStore {
	return &PostgresWorkOrderStore{db: db}
}

func (s *PostgresWorkOrderStore) Create(ctx context.Context, workOrder *WorkOrder) error {
	if workOrder.ID == "" {
		workOrder.ID = uuid.New().String()
	}
	if workOrder.Status == "" {
		workOrder.Status = "planned"
	}
	now := time.Now()
	workOrder.CreatedAt = now
	workOrder.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO work_orders
			(id, number, product_type, quantity, status, customer, external_reference,
			 notes, start_date, shipping_date, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, workOrder.ID, workOrder.Number, workOrder.ProductType, workOrder.Quantity,
		workOrder.Status, workOrder.Customer, workOrder.ExternalReference, workOrder.Notes,
		workOrder.StartDate, workOrder.ShippingDate, nullable(workOrder.CreatedBy),
		workOrder.CreatedAt, workOrder.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert work order: %w", err)
	}
	return nil
}

func (s *PostgresWorkOrderStore) GetByNumber(ctx context.Context, number string) (*WorkOrder, error) {
	workOrder, err := scanWorkOrder(s.db.QueryRowContext(ctx, `
		SELECT id, number, product_type, quantity, status, customer, external_reference,
		       notes, start_date, shipping_date, created_by, created_at, updated_at
		FROM work_orders
		WHERE number = $1
	`, number))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("work order %s: %w", number, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work order: %w", err)
	}
	return workOrder, nil
}

func (s *PostgresWorkOrderStore) List(ctx context.Context, filters WorkOrderFilters) ([]WorkOrder, int, error) {
	where, args := workOrderWhere(filters)

	total := -1
	if filters.WithCount {
		countQuery := "SELECT COUNT(*) FROM work_orders" + where
		if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
			return nil, -1, fmt.Errorf("failed to count work orders: %w", err)
		}
	}

	query := `
		SELECT id, number, product_type, quantity, status, customer, external_reference,
		       notes, start_date, shipping_date, created_by, created_at, updated_at
		FROM work_orders` + where + `
		ORDER BY created_at DESC`
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filters.Offset > 0 {
		args = append(args, filters.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, total, fmt.Errorf("failed to list work orders: %w", err)
	}
	defer rows.Close()

	var list []WorkOrder
	for rows.Next() {
		workOrder, err := scanWorkOrder(rows)
		if err != nil {
			return nil, total, fmt.Errorf("failed to scan work order: %w", err)
		}
		list = append(list, *workOrder)
	}
	if err := rows.Err(); err != nil {
		return nil, total, fmt.Errorf("error iterating work orders: %w", err)
	}
	return list, total, nil
}

func (s *PostgresWorkOrderStore) UpdateStatusByNumber(ctx context.Context, number, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE work_orders SET status = $1, updated_at = NOW() WHERE number = $2
	`, status, number)
	if err != nil {
		return fmt.Errorf("failed to update work order status: %w", err)
	}
	return checkAffected(result, fmt.Sprintf("work order %s", number))
}

func workOrderWhere(filters WorkOrderFilters) (string, []any) {
	var clauses []string
	var args []any

	if len(filters.Status) > 0 {
		args = append(args, pq.Array(filters.Status))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filters.ProductType != "" {
		args = append(args, filters.ProductType)
		clauses = append(clauses, fmt.Sprintf("product_type = $%d", len(args)))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		clauses = append(clauses, fmt.Sprintf("(number ILIKE $%d OR customer ILIKE $%d)", len(args), len(args)))
	}
	if filters.CreatedFrom != nil {
		args = append(args, *filters.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filters.CreatedTo != nil {
		args = append(args, *filters.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanWorkOrder(row rowScanner) (*WorkOrder, error) {
	var workOrder WorkOrder
	var createdBy sql.NullString
	err := row.Scan(&workOrder.ID, &workOrder.Number, &workOrder.ProductType,
		&workOrder.Quantity, &workOrder.Status, &workOrder.Customer,
		&workOrder.ExternalReference, &workOrder.Notes, &workOrder.StartDate,
		&workOrder.ShippingDate, &createdBy, &workOrder.CreatedAt, &workOrder.UpdatedAt)
	if err != nil {
		return nil, err
	}
	workOrder.CreatedBy = createdBy.String
	return &workOrder, nil
}

// PostgresItemStore implements ItemStore.
type PostgresItemStore struct {
	db *sql.DB
}

func NewPostgresItemStore(db *sql.DB) *PostgresItemStore {
	return &PostgresItemStore{db: db}
}

func (s *PostgresItemStore) Create(ctx context.Context, item *Item) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, work_order_id, serial_number, status, current_step, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.WorkOrderID, item.SerialNumber, item.Status, item.CurrentStep,
		item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

func (s *PostgresItemStore) ListByWorkOrders(ctx context.Context, workOrderIDs []string) ([]Item, error) {
	if len(workOrderIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, work_order_id, serial_number, status, current_step, created_at, updated_at
		FROM items
		WHERE work_order_id = ANY($1)
		ORDER BY serial_number ASC
	`, pq.Array(workOrderIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var list []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.WorkOrderID, &item.SerialNumber, &item.Status,
			&item.CurrentStep, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		list = append(list, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return list, nil
}

func (s *PostgresItemStore) UpdateStatusBySerial(ctx context.Context, serial, status, currentStep string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET status = COALESCE(NULLIF($1, ''), status),
		    current_step = COALESCE(NULLIF($2, ''), current_step),
		    updated_at = NOW()
		WHERE serial_number = $3
	`, status, currentStep, serial)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	return checkAffected(result, fmt.Sprintf("item %s", serial))
}

// PostgresProfileStore implements ProfileStore.
type PostgresProfileStore struct {
	db *sql.DB
}

func NewPostgresProfileStore(db *sql.DB) *PostgresProfileStore {
	return &PostgresProfileStore{db: db}
}

func (s *PostgresProfileStore) Create(ctx context.Context, profile *Profile) error {
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, display_name, email) VALUES ($1, $2, $3)
	`, profile.ID, profile.DisplayName, profile.Email)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

func (s *PostgresProfileStore) GetByIDs(ctx context.Context, ids []string) (map[string]Profile, error) {
	if len(ids) == 0 {
		return map[string]Profile{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, email FROM profiles WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	defer rows.Close()

	result := make(map[string]Profile, len(ids))
	for rows.Next() {
		var profile Profile
		if err := rows.Scan(&profile.ID, &profile.DisplayName, &profile.Email); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		result[profile.ID] = profile
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}
	return result, nil
}

// PostgresReportStore implements ReportStore.
type PostgresReportStore struct {
	db *sql.DB
}

func NewPostgresReportStore(db *sql.DB) *PostgresReportStore {
	return &PostgresReportStore{db: db}
}

func (s *PostgresReportStore) Create(ctx context.Context, report *Report) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (id, work_order_number, product_type, quantity, file_name, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, report.ID, report.WorkOrderNumber, report.ProductType, report.Quantity,
		report.FileName, nullable(report.UploadedBy), report.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

func (s *PostgresReportStore) List(ctx context.Context, filters ReportFilters) ([]Report, int, error) {
	var clauses []string
	var args []any

	if filters.WorkOrderNumber != "" {
		args = append(args, filters.WorkOrderNumber)
		clauses = append(clauses, fmt.Sprintf("work_order_number = $%d", len(args)))
	}
	if filters.ProductType != "" {
		args = append(args, filters.ProductType)
		clauses = append(clauses, fmt.Sprintf("product_type = $%d", len(args)))
	}
	if filters.CreatedFrom != nil {
		args = append(args, *filters.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filters.CreatedTo != nil {
		args = append(args, *filters.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports"+where, args...).Scan(&total); err != nil {
		return nil, -1, fmt.Errorf("failed to count reports: %w", err)
	}

	query := `
		SELECT id, work_order_number, product_type, quantity, file_name, uploaded_by, created_at
		FROM reports` + where + `
		ORDER BY created_at DESC`
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filters.Offset > 0 {
		args = append(args, filters.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, total, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var list []Report
	for rows.Next() {
		var report Report
		var uploadedBy sql.NullString
		if err := rows.Scan(&report.ID, &report.WorkOrderNumber, &report.ProductType,
			&report.Quantity, &report.FileName, &uploadedBy, &report.CreatedAt); err != nil {
			return nil, total, fmt.Errorf("failed to scan report: %w", err)
		}
		report.UploadedBy = uploadedBy.String
		list = append(list, report)
	}
	if err := rows.Err(); err != nil {
		return nil, total, fmt.Errorf("error iterating reports: %w", err)
	}
	return list, total, nil
}

// PostgresActivityStore implements ActivityStore.
type PostgresActivityStore struct {
	db *sql.DB
}

func NewPostgresActivityStore(db *sql.DB) *PostgresActivityStore {
	return &PostgresActivityStore{db: db}
}

func (s *PostgresActivityStore) Append(ctx context.Context, entry *ActivityEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, action, entity_type, entity_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.Action, entry.EntityType, entry.EntityID, entry.Details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

func (s *PostgresActivityStore) List(ctx context.Context, limit int) ([]ActivityEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, entity_type, entity_id, details, created_at
		FROM activity_log
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var list []ActivityEntry
	for rows.Next() {
		var entry ActivityEntry
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.EntityType, &entry.EntityID,
			&entry.Details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		list = append(list, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity: %w", err)
	}
	return list, nil
}

// PostgresDeliveryStore implements DeliveryStore.
type PostgresDeliveryStore struct {
	db *sql.DB
}

func NewPostgresDeliveryStore(db *sql.DB) *PostgresDeliveryStore {
	return &PostgresDeliveryStore{db: db}
}

func (s *PostgresDeliveryStore) Record(ctx context.Context, delivery *Delivery) error {
	if delivery.ID == "" {
		delivery.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, webhook_id, payload, report, success, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, delivery.ID, delivery.WebhookID, delivery.Payload, delivery.Report,
		delivery.Success, delivery.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

func (s *PostgresDeliveryStore) ListByWebhook(ctx context.Context, webhookID string, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, webhook_id, payload, report, success, received_at
		FROM deliveries
		WHERE webhook_id = $1
		ORDER BY received_at DESC
		LIMIT $2
	`, webhookID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var list []Delivery
	for rows.Next() {
		var delivery Delivery
		if err := rows.Scan(&delivery.ID, &delivery.WebhookID, &delivery.Payload,
			&delivery.Report, &delivery.Success, &delivery.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		list = append(list, delivery)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deliveries: %w", err)
	}
	return list, nil
}

func checkAffected(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

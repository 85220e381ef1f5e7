// Package workorders serves enriched work order and report lists through
// the cached, resilient query layer.
package workorders

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/ash-vash90/production-companion/internal/query"
	"github.com/ash-vash90/production-companion/internal/store"
)

const (
	workOrderTTL = 30 * time.Second
	reportTTL    = 60 * time.Second
	cacheSize    = 100
)

// EnrichedWorkOrder is a work order with its items and creator profile
// attached. Enrichment is batched: one item query and one profile query
// per list, never per row.
type EnrichedWorkOrder struct {
	store.WorkOrder
	Items   []store.Item   `json:"items"`
	Creator *store.Profile `json:"creator,omitempty"`
}

// EnrichedReport is a report with its uploader profile attached.
type EnrichedReport struct {
	store.Report
	Uploader *store.Profile `json:"uploader,omitempty"`
}

// Config tunes the service's query layer. Zero values take the runner
// defaults.
type Config struct {
	RetryCount int
	RetryDelay time.Duration
	Timeout    time.Duration
	Debounce   time.Duration
	PageSize   int
	// MaxQueries bounds the live queries kept per entity; the oldest is
	// closed and evicted when the bound is exceeded. Zero means cacheSize.
	MaxQueries int
	// BreakerFailures opens a circuit breaker around the store after that
	// many consecutive fetch failures; zero disables the breaker.
	BreakerFailures int
	BreakerCooldown time.Duration
}

// Service owns one shared cache per entity and one list query per active
// filter set. Queries subscribe to the change feed on first use and stay
// warm until Close.
type Service struct {
	workOrders store.WorkOrderStore
	items      store.ItemStore
	profiles   store.ProfileStore
	reports    store.ReportStore

	feed query.ChangeFeed
	cfg  Config

	// ctx outlives any one request; feed-driven refetches run under it so
	// they keep working after the request that created the query ends.
	ctx    context.Context
	cancel context.CancelFunc

	workOrderCache   *query.EntityCache[[]EnrichedWorkOrder]
	reportCache      *query.EntityCache[[]EnrichedReport]
	workOrderBreaker *gobreaker.CircuitBreaker[[]EnrichedWorkOrder]
	reportBreaker    *gobreaker.CircuitBreaker[[]EnrichedReport]

	mu             sync.Mutex
	workOrderQrys  map[string]*query.ListQuery[EnrichedWorkOrder]
	workOrderOrder []string
	reportQrys     map[string]*query.ListQuery[EnrichedReport]
	reportOrder    []string
	closed         bool
}

func NewService(workOrders store.WorkOrderStore, items store.ItemStore,
	profiles store.ProfileStore, reports store.ReportStore,
	feed query.ChangeFeed, cfg Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		workOrders: workOrders,
		items:      items,
		profiles:   profiles,
		reports:    reports,
		feed:       feed,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		workOrderCache: query.NewEntityCache[[]EnrichedWorkOrder](query.CacheConfig{
			TTL:      workOrderTTL,
			Capacity: cacheSize,
		}),
		reportCache: query.NewEntityCache[[]EnrichedReport](query.CacheConfig{
			TTL:      reportTTL,
			Capacity: cacheSize,
		}),
		workOrderQrys: make(map[string]*query.ListQuery[EnrichedWorkOrder]),
		reportQrys:    make(map[string]*query.ListQuery[EnrichedReport]),
	}
	if cfg.BreakerFailures > 0 {
		s.workOrderBreaker = gobreaker.NewCircuitBreaker[[]EnrichedWorkOrder](breakerSettings("work_orders", cfg))
		s.reportBreaker = gobreaker.NewCircuitBreaker[[]EnrichedReport](breakerSettings("reports", cfg))
	}
	return s
}

func breakerSettings(name string, cfg Config) gobreaker.Settings {
	return gobreaker.Settings{
		Name:    name,
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
		},
	}
}

func (s *Service) maxQueries() int {
	if s.cfg.MaxQueries > 0 {
		return s.cfg.MaxQueries
	}
	return cacheSize
}

// ListWorkOrders returns the enriched work orders for the filter set,
// served from cache while fresh.
func (s *Service) ListWorkOrders(ctx context.Context, filters store.WorkOrderFilters) query.Result[EnrichedWorkOrder] {
	return s.workOrderQuery(filters).Get(ctx)
}

// RefreshWorkOrders bypasses the cache for the filter set.
func (s *Service) RefreshWorkOrders(ctx context.Context, filters store.WorkOrderFilters) query.Result[EnrichedWorkOrder] {
	return s.workOrderQuery(filters).Refetch(ctx)
}

func (s *Service) workOrderQuery(filters store.WorkOrderFilters) *query.ListQuery[EnrichedWorkOrder] {
	key := query.Key("work_orders", filters)

	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok := s.workOrderQrys[key]; ok {
		return q
	}

	fetch := func(ctx context.Context) ([]EnrichedWorkOrder, error) {
		rows, _, err := s.workOrders.List(ctx, filters)
		if err != nil {
			return nil, err
		}
		return s.enrichWorkOrders(ctx, rows)
	}
	q := query.NewListQuery(key, fetch, s.workOrderCache, query.ListOptions[EnrichedWorkOrder]{
		Runner: query.RunnerOptions[[]EnrichedWorkOrder]{
			RetryCount: s.cfg.RetryCount,
			RetryDelay: s.cfg.RetryDelay,
			Timeout:    s.cfg.Timeout,
			Breaker:    s.workOrderBreaker,
		},
		Feed:     s.feed,
		Tables:   []string{"work_orders", "items"},
		Debounce: s.cfg.Debounce,
	})
	if !s.closed {
		q.Start(s.ctx)
		s.workOrderQrys[key] = q
		s.workOrderOrder = append(s.workOrderOrder, key)
		if len(s.workOrderOrder) > s.maxQueries() {
			oldest := s.workOrderOrder[0]
			s.workOrderOrder = s.workOrderOrder[1:]
			if old, ok := s.workOrderQrys[oldest]; ok {
				old.Close()
				delete(s.workOrderQrys, oldest)
			}
		}
	}
	return q
}

// WorkOrderPager returns a fresh pager over the filter set. Pages come
// straight from the store with exact totals; the list cache is not
// involved.
func (s *Service) WorkOrderPager(filters store.WorkOrderFilters) *query.Pager[EnrichedWorkOrder] {
	pager := query.NewPager(s.cfg.PageSize, func(ctx context.Context, limit, offset int) ([]EnrichedWorkOrder, int, error) {
		pageFilters := filters
		pageFilters.Limit = limit
		pageFilters.Offset = offset
		pageFilters.WithCount = true

		rows, total, err := s.workOrders.List(ctx, pageFilters)
		if err != nil {
			return nil, total, err
		}
		enriched, err := s.enrichWorkOrders(ctx, rows)
		return enriched, total, err
	})
	pager.Reset(query.Key("work_orders", filters))
	return pager
}

func (s *Service) enrichWorkOrders(ctx context.Context, rows []store.WorkOrder) ([]EnrichedWorkOrder, error) {
	ids := make([]string, 0, len(rows))
	creatorIDs := make([]string, 0, len(rows))
	seen := make(map[string]bool)
	for _, row := range rows {
		ids = append(ids, row.ID)
		if row.CreatedBy != "" && !seen[row.CreatedBy] {
			seen[row.CreatedBy] = true
			creatorIDs = append(creatorIDs, row.CreatedBy)
		}
	}

	items, err := s.items.ListByWorkOrders(ctx, ids)
	if err != nil {
		return nil, err
	}
	byOrder := make(map[string][]store.Item, len(rows))
	for _, item := range items {
		byOrder[item.WorkOrderID] = append(byOrder[item.WorkOrderID], item)
	}

	profiles, err := s.profiles.GetByIDs(ctx, creatorIDs)
	if err != nil {
		return nil, err
	}

	enriched := make([]EnrichedWorkOrder, len(rows))
	for i, row := range rows {
		enriched[i] = EnrichedWorkOrder{
			WorkOrder: row,
			Items:     byOrder[row.ID],
		}
		if profile, ok := profiles[row.CreatedBy]; ok {
			p := profile
			enriched[i].Creator = &p
		}
	}
	return enriched, nil
}

// ListReports returns the enriched reports for the filter set.
func (s *Service) ListReports(ctx context.Context, filters store.ReportFilters) query.Result[EnrichedReport] {
	return s.reportQuery(filters).Get(ctx)
}

func (s *Service) reportQuery(filters store.ReportFilters) *query.ListQuery[EnrichedReport] {
	key := query.Key("reports", filters)

	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok := s.reportQrys[key]; ok {
		return q
	}

	fetch := func(ctx context.Context) ([]EnrichedReport, error) {
		rows, _, err := s.reports.List(ctx, filters)
		if err != nil {
			return nil, err
		}
		return s.enrichReports(ctx, rows)
	}
	q := query.NewListQuery(key, fetch, s.reportCache, query.ListOptions[EnrichedReport]{
		Runner: query.RunnerOptions[[]EnrichedReport]{
			RetryCount: s.cfg.RetryCount,
			RetryDelay: s.cfg.RetryDelay,
			Timeout:    s.cfg.Timeout,
			Breaker:    s.reportBreaker,
		},
		Feed:     s.feed,
		Tables:   []string{"reports"},
		Debounce: s.cfg.Debounce,
	})
	if !s.closed {
		q.Start(s.ctx)
		s.reportQrys[key] = q
		s.reportOrder = append(s.reportOrder, key)
		if len(s.reportOrder) > s.maxQueries() {
			oldest := s.reportOrder[0]
			s.reportOrder = s.reportOrder[1:]
			if old, ok := s.reportQrys[oldest]; ok {
				old.Close()
				delete(s.reportQrys, oldest)
			}
		}
	}
	return q
}

func (s *Service) enrichReports(ctx context.Context, rows []store.Report) ([]EnrichedReport, error) {
	uploaderIDs := make([]string, 0, len(rows))
	seen := make(map[string]bool)
	for _, row := range rows {
		if row.UploadedBy != "" && !seen[row.UploadedBy] {
			seen[row.UploadedBy] = true
			uploaderIDs = append(uploaderIDs, row.UploadedBy)
		}
	}

	profiles, err := s.profiles.GetByIDs(ctx, uploaderIDs)
	if err != nil {
		return nil, err
	}

	enriched := make([]EnrichedReport, len(rows))
	for i, row := range rows {
		enriched[i] = EnrichedReport{Report: row}
		if profile, ok := profiles[row.UploadedBy]; ok {
			p := profile
			enriched[i].Uploader = &p
		}
	}
	return enriched, nil
}

// Invalidate drops every cached list for the table so the next Get
// refetches. Used by write paths that bypass the change feed.
func (s *Service) Invalidate(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch table {
	case "work_orders", "items":
		for key := range s.workOrderQrys {
			s.workOrderCache.Invalidate(key)
		}
	case "reports":
		for key := range s.reportQrys {
			s.reportCache.Invalidate(key)
		}
	}
}

// Close stops every live query and its feed subscription.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	for _, q := range s.workOrderQrys {
		q.Close()
	}
	for _, q := range s.reportQrys {
		q.Close()
	}
}

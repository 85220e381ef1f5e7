package workorders_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ash-vash90/production-companion/internal/query"
	"github.com/ash-vash90/production-companion/internal/store"
	"github.com/ash-vash90/production-companion/internal/workorders"
)

// countingWorkOrderStore counts List calls so tests can tell cache hits
// from store reads.
type countingWorkOrderStore struct {
	store.WorkOrderStore
	lists int32
}

func (s *countingWorkOrderStore) List(ctx context.Context, filters store.WorkOrderFilters) ([]store.WorkOrder, int, error) {
	atomic.AddInt32(&s.lists, 1)
	return s.WorkOrderStore.List(ctx, filters)
}

func (s *countingWorkOrderStore) listCount() int32 {
	return atomic.LoadInt32(&s.lists)
}

type fixture struct {
	workOrders *countingWorkOrderStore
	items      store.ItemStore
	profiles   store.ProfileStore
	reports    store.ReportStore
	feed       *query.MemoryFeed
	service    *workorders.Service

	creatorID string
	orderIDs  map[string]string // number -> ID
}

func newFixture(t *testing.T, cfg workorders.Config) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		workOrders: &countingWorkOrderStore{WorkOrderStore: store.NewMemoryWorkOrderStore()},
		items:      store.NewMemoryItemStore(),
		profiles:   store.NewMemoryProfileStore(),
		reports:    store.NewMemoryReportStore(),
		feed:       query.NewMemoryFeed(),
		orderIDs:   make(map[string]string),
	}

	creator := &store.Profile{DisplayName: "Alice"}
	if err := f.profiles.Create(ctx, creator); err != nil {
		t.Fatal(err)
	}
	f.creatorID = creator.ID

	orders := []*store.WorkOrder{
		{Number: "WO-001", ProductType: "widget", Quantity: 2, CreatedBy: creator.ID},
		{Number: "WO-002", ProductType: "gadget", Quantity: 1},
	}
	for _, wo := range orders {
		if err := f.workOrders.WorkOrderStore.Create(ctx, wo); err != nil {
			t.Fatal(err)
		}
		f.orderIDs[wo.Number] = wo.ID
	}

	for _, item := range []*store.Item{
		{WorkOrderID: f.orderIDs["WO-001"], SerialNumber: "SN-001", Status: "pending"},
		{WorkOrderID: f.orderIDs["WO-001"], SerialNumber: "SN-002", Status: "pending"},
		{WorkOrderID: f.orderIDs["WO-002"], SerialNumber: "SN-003", Status: "pending"},
	} {
		if err := f.items.Create(ctx, item); err != nil {
			t.Fatal(err)
		}
	}

	f.service = workorders.NewService(f.workOrders, f.items, f.profiles, f.reports, f.feed, cfg)
	t.Cleanup(f.service.Close)
	return f
}

func findOrder(t *testing.T, list []workorders.EnrichedWorkOrder, number string) workorders.EnrichedWorkOrder {
	t.Helper()
	for _, wo := range list {
		if wo.Number == number {
			return wo
		}
	}
	t.Fatalf("work order %s not in result", number)
	return workorders.EnrichedWorkOrder{}
}

func TestListWorkOrdersEnrichment(t *testing.T) {
	f := newFixture(t, workorders.Config{RetryCount: -1})

	result := f.service.ListWorkOrders(context.Background(), store.WorkOrderFilters{})
	if result.Err != nil {
		t.Fatalf("list: %v", result.Err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("got %d work orders, want 2", len(result.Items))
	}

	first := findOrder(t, result.Items, "WO-001")
	if len(first.Items) != 2 {
		t.Errorf("WO-001 has %d items, want 2", len(first.Items))
	}
	if first.Creator == nil || first.Creator.DisplayName != "Alice" {
		t.Errorf("WO-001 creator = %+v", first.Creator)
	}

	second := findOrder(t, result.Items, "WO-002")
	if len(second.Items) != 1 {
		t.Errorf("WO-002 has %d items, want 1", len(second.Items))
	}
	if second.Creator != nil {
		t.Errorf("WO-002 has no creator, got %+v", second.Creator)
	}
}

func TestListWorkOrdersCacheHit(t *testing.T) {
	f := newFixture(t, workorders.Config{RetryCount: -1})
	ctx := context.Background()

	f.service.ListWorkOrders(ctx, store.WorkOrderFilters{})
	f.service.ListWorkOrders(ctx, store.WorkOrderFilters{})
	if got := f.workOrders.listCount(); got != 1 {
		t.Errorf("store read %d times, want 1 (second list should hit the cache)", got)
	}

	// A different filter set is a different cache key.
	f.service.ListWorkOrders(ctx, store.WorkOrderFilters{ProductType: "widget"})
	if got := f.workOrders.listCount(); got != 2 {
		t.Errorf("store read %d times, want 2", got)
	}
}

func TestRefreshWorkOrdersBypassesCache(t *testing.T) {
	f := newFixture(t, workorders.Config{RetryCount: -1})
	ctx := context.Background()

	f.service.ListWorkOrders(ctx, store.WorkOrderFilters{})
	result := f.service.RefreshWorkOrders(ctx, store.WorkOrderFilters{})
	if result.Err != nil {
		t.Fatalf("refresh: %v", result.Err)
	}
	if got := f.workOrders.listCount(); got != 2 {
		t.Errorf("store read %d times, want 2", got)
	}
}

func TestItemChangeInvalidatesWorkOrderLists(t *testing.T) {
	f := newFixture(t, workorders.Config{RetryCount: -1, Debounce: 10 * time.Millisecond})
	ctx := context.Background()

	result := f.service.ListWorkOrders(ctx, store.WorkOrderFilters{})
	if len(findOrder(t, result.Items, "WO-002").Items) != 1 {
		t.Fatal("setup: WO-002 should start with one item")
	}

	f.items.Create(ctx, &store.Item{
		WorkOrderID:  f.orderIDs["WO-002"],
		SerialNumber: "SN-004",
		Status:       "pending",
	})
	f.feed.Publish("items", "insert")

	// The debounced refetch repopulates the cache in the background.
	deadline := time.Now().Add(2 * time.Second)
	for f.workOrders.listCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("no refetch after item change")
		}
		time.Sleep(5 * time.Millisecond)
	}

	result = f.service.ListWorkOrders(ctx, store.WorkOrderFilters{})
	if got := len(findOrder(t, result.Items, "WO-002").Items); got != 2 {
		t.Errorf("WO-002 has %d items after change, want 2", got)
	}
}

func TestFeedRefetchOutlivesRequestContext(t *testing.T) {
	f := newFixture(t, workorders.Config{RetryCount: -1, Debounce: 10 * time.Millisecond})

	// Handlers pass per-request contexts that die when the response is
	// written; feed-driven refetches must not inherit them.
	reqCtx, cancel := context.WithCancel(context.Background())
	f.service.ListWorkOrders(reqCtx, store.WorkOrderFilters{})
	cancel()

	f.workOrders.WorkOrderStore.Create(context.Background(), &store.WorkOrder{
		Number: "WO-003", ProductType: "widget", Quantity: 1,
	})
	f.feed.Publish("work_orders", "insert")

	deadline := time.Now().Add(2 * time.Second)
	for f.workOrders.listCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("no refetch after the creating request ended")
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	// The background refetch repopulated the cache; this list is a hit.
	result := f.service.ListWorkOrders(context.Background(), store.WorkOrderFilters{})
	if result.Err != nil || result.Stale {
		t.Fatalf("list after refetch = %+v", result)
	}
	if len(result.Items) != 3 {
		t.Errorf("got %d work orders, want 3 including the new one", len(result.Items))
	}
	if got := f.workOrders.listCount(); got != 2 {
		t.Errorf("store read %d times, want 2 (list should hit the repopulated cache)", got)
	}
}

func TestQueryCapEvictsOldest(t *testing.T) {
	f := newFixture(t, workorders.Config{
		RetryCount: -1,
		Debounce:   10 * time.Millisecond,
		MaxQueries: 2,
	})
	ctx := context.Background()

	f.service.ListWorkOrders(ctx, store.WorkOrderFilters{})
	f.service.ListWorkOrders(ctx, store.WorkOrderFilters{ProductType: "widget"})
	// Third distinct filter set exceeds the cap and closes the oldest.
	f.service.ListWorkOrders(ctx, store.WorkOrderFilters{Search: "wo"})
	if got := f.workOrders.listCount(); got != 3 {
		t.Fatalf("setup store reads = %d, want 3", got)
	}

	f.feed.Publish("work_orders", "insert")

	deadline := time.Now().Add(2 * time.Second)
	for f.workOrders.listCount() < 5 {
		if time.Now().After(deadline) {
			t.Fatal("retained queries never refetched")
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := f.workOrders.listCount(); got != 5 {
		t.Errorf("store read %d times after change, want 5 (evicted query must not refetch)", got)
	}
}

func TestInvalidateDropsCachedLists(t *testing.T) {
	f := newFixture(t, workorders.Config{RetryCount: -1})
	ctx := context.Background()

	f.service.ListWorkOrders(ctx, store.WorkOrderFilters{})
	f.service.Invalidate("items")
	f.service.ListWorkOrders(ctx, store.WorkOrderFilters{})
	if got := f.workOrders.listCount(); got != 2 {
		t.Errorf("store read %d times, want 2 after invalidate", got)
	}
}

func TestWorkOrderPager(t *testing.T) {
	f := newFixture(t, workorders.Config{RetryCount: -1, PageSize: 1})
	ctx := context.Background()

	pager := f.service.WorkOrderPager(store.WorkOrderFilters{})

	page, err := pager.LoadMore(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("first page has %d rows", len(page))
	}
	if !pager.HasMore() {
		t.Fatal("two work orders exist, HasMore should be true")
	}

	page, err = pager.LoadMore(ctx)
	if err != nil || len(page) != 2 {
		t.Fatalf("second load = %d rows, %v", len(page), err)
	}
	if pager.HasMore() {
		t.Error("all rows loaded")
	}

	// Pages are enriched like lists are.
	withItems := findOrder(t, page, "WO-001")
	if len(withItems.Items) != 2 || withItems.Creator == nil {
		t.Errorf("pager rows not enriched: %+v", withItems)
	}
}

func TestListReportsEnrichment(t *testing.T) {
	f := newFixture(t, workorders.Config{RetryCount: -1})
	ctx := context.Background()

	uploader := &store.Profile{DisplayName: "Bob"}
	f.profiles.Create(ctx, uploader)
	f.reports.Create(ctx, &store.Report{
		WorkOrderNumber: "WO-001",
		ProductType:     "widget",
		Quantity:        2,
		FileName:        "report.pdf",
		UploadedBy:      uploader.ID,
	})
	f.reports.Create(ctx, &store.Report{
		WorkOrderNumber: "WO-002",
		ProductType:     "gadget",
		FileName:        "anon.pdf",
	})

	result := f.service.ListReports(ctx, store.ReportFilters{})
	if result.Err != nil {
		t.Fatalf("list: %v", result.Err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("got %d reports", len(result.Items))
	}
	for _, r := range result.Items {
		switch r.FileName {
		case "report.pdf":
			if r.Uploader == nil || r.Uploader.DisplayName != "Bob" {
				t.Errorf("uploader = %+v", r.Uploader)
			}
		case "anon.pdf":
			if r.Uploader != nil {
				t.Errorf("anon report has uploader %+v", r.Uploader)
			}
		}
	}
}

func TestCloseStopsFeedReaction(t *testing.T) {
	f := newFixture(t, workorders.Config{RetryCount: -1, Debounce: 5 * time.Millisecond})
	ctx := context.Background()

	f.service.ListWorkOrders(ctx, store.WorkOrderFilters{})
	f.service.Close()

	f.feed.Publish("work_orders", "insert")
	time.Sleep(50 * time.Millisecond)
	if got := f.workOrders.listCount(); got != 1 {
		t.Errorf("closed service refetched: %d store reads", got)
	}
}

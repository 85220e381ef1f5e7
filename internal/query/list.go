package query

import (
	"context"
	"sync"
	"time"
)

// Result is what a list query hands to its consumer.
type Result[T any] struct {
	Items []T
	Err   error
	// Stale is true when Items came from a fallback (stale cache entry or
	// last-good value) instead of a fresh fetch. Consumers show the data
	// with a staleness indicator rather than a blank error screen.
	Stale bool
}

// ListFetch loads the full filtered list, enrichment included.
type ListFetch[T any] func(ctx context.Context) ([]T, error)

// ListOptions configure one ListQuery instance.
type ListOptions[T any] struct {
	Runner RunnerOptions[[]T]
	// Feed and Tables wire realtime invalidation; both empty disables it.
	// A list that joins several tables subscribes to each of them.
	Feed     ChangeFeed
	Tables   []string
	Debounce time.Duration // change-event collapse window; default 500ms
}

// ListQuery serves one (entity, filter set) list: fresh cache hits bypass
// the fetcher entirely, misses go through the resilient runner, and change
// events invalidate the key and refetch after a debounce window.
type ListQuery[T any] struct {
	key   string
	cache Cache[[]T]

	runner   *Runner[[]T]
	feed     ChangeFeed
	tables   []string
	debounce time.Duration

	mu        sync.Mutex
	unsubs    []func()
	debouncer *Debouncer
	closed    bool
}

// NewListQuery creates a list query for one cache key.
func NewListQuery[T any](key string, fetch ListFetch[T], cache Cache[[]T], opts ListOptions[T]) *ListQuery[T] {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	return &ListQuery[T]{
		key:      key,
		cache:    cache,
		runner:   NewRunner(FetchFunc[[]T](fetch), opts.Runner),
		feed:     opts.Feed,
		tables:   opts.Tables,
		debounce: opts.Debounce,
	}
}

// Key returns the cache key this query serves.
func (q *ListQuery[T]) Key() string { return q.key }

// Get returns the list, from cache when fresh, otherwise via the runner.
// A failed fetch degrades to stale data (cache entry past TTL, or the
// runner's last-good value) with the error attached; Items is empty only
// when there has never been a good fetch.
func (q *ListQuery[T]) Get(ctx context.Context) Result[T] {
	if entry, ok := q.cache.Get(q.key); ok && q.cache.Fresh(entry) {
		return Result[T]{Items: entry.Data}
	}
	return q.fetch(ctx)
}

// Refetch drops the cache entry and fetches fresh data.
func (q *ListQuery[T]) Refetch(ctx context.Context) Result[T] {
	q.cache.Invalidate(q.key)
	return q.fetch(ctx)
}

// Start subscribes to the change feed. Each burst of change events on the
// subscribed tables triggers exactly one invalidate-and-refetch after the
// debounce window. No-op when the query has no feed or is already started.
func (q *ListQuery[T]) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.feed == nil || len(q.tables) == 0 || q.unsubs != nil || q.closed {
		return
	}

	// The goroutines capture the debouncer locally: Close nils the struct
	// field without waiting for them, and Trigger on a stopped debouncer is
	// a no-op.
	deb := NewDebouncer(q.debounce, func() {
		q.Refetch(ctx)
	})
	q.debouncer = deb
	for _, table := range q.tables {
		events, cancel := q.feed.Subscribe(table)
		q.unsubs = append(q.unsubs, cancel)

		go func() {
			for range events {
				deb.Trigger()
			}
		}()
	}
}

// Close tears the query down: unsubscribes from the feed, stops the
// debouncer, and cancels any in-flight fetch. Nothing fires afterwards.
func (q *ListQuery[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	for _, unsub := range q.unsubs {
		unsub()
	}
	q.unsubs = nil
	if q.debouncer != nil {
		q.debouncer.Stop()
		q.debouncer = nil
	}
	q.runner.Close()
}

func (q *ListQuery[T]) fetch(ctx context.Context) Result[T] {
	state := q.runner.Run(ctx)

	if state.Err == nil && !state.Stale && state.HasData {
		q.cache.Set(q.key, state.Data)
		return Result[T]{Items: state.Data}
	}

	if state.HasData {
		return Result[T]{Items: state.Data, Err: state.Err, Stale: true}
	}

	// The runner itself never succeeded; a stale cache entry left by an
	// earlier instance on the same key still beats a blank screen.
	if entry, ok := q.cache.Get(q.key); ok {
		return Result[T]{Items: entry.Data, Err: state.Err, Stale: true}
	}

	return Result[T]{Err: state.Err}
}

// PageFetch loads one page. total is the exact row count when the store
// provides one, or negative when unknown (short-page detection applies).
type PageFetch[T any] func(ctx context.Context, limit, offset int) (items []T, total int, err error)

// Pager accumulates pages of a filtered list. Pages append without
// duplicating or dropping rows; changing filters must go through Reset,
// which restarts accumulation from offset zero.
type Pager[T any] struct {
	pageSize int
	fetch    PageFetch[T]

	mu        sync.Mutex
	filterKey string
	items     []T
	offset    int
	hasMore   bool
	loaded    bool
}

// NewPager creates a Pager with the given page size.
func NewPager[T any](pageSize int, fetch PageFetch[T]) *Pager[T] {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Pager[T]{pageSize: pageSize, fetch: fetch, hasMore: true}
}

// Reset clears accumulation for a new filter set. Resetting with the same
// key is a no-op so callers can pass the current key on every render.
func (p *Pager[T]) Reset(filterKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded && filterKey == p.filterKey {
		return
	}
	p.filterKey = filterKey
	p.items = nil
	p.offset = 0
	p.hasMore = true
	p.loaded = false
}

// LoadMore fetches the next page and returns the accumulated list.
func (p *Pager[T]) LoadMore(ctx context.Context) ([]T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.hasMore {
		return p.items, nil
	}

	page, total, err := p.fetch(ctx, p.pageSize, p.offset)
	if err != nil {
		return p.items, err
	}

	p.items = append(p.items, page...)
	p.offset += len(page)
	p.loaded = true

	if total >= 0 {
		p.hasMore = p.offset < total
	} else {
		p.hasMore = len(page) == p.pageSize
	}
	return p.items, nil
}

// HasMore reports whether another page may exist.
func (p *Pager[T]) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Items returns the accumulated rows.
func (p *Pager[T]) Items() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.items
}

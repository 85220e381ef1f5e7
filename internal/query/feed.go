package query

import (
	"sync"
	"time"
)

// Event is one backend change notification, scoped to a table. Delivery is
// at-least-once per change; consumers debounce and refetch, so duplicate or
// coalesced events are harmless.
type Event struct {
	Table string
	Op    string // insert, update, delete
	At    time.Time
}

// ChangeFeed delivers change notifications for a table. The returned cancel
// function must be called on teardown; after it returns the channel is
// closed and no subscription outlives the consumer.
type ChangeFeed interface {
	Subscribe(table string) (<-chan Event, func())
}

// MemoryFeed is an in-process ChangeFeed. The server publishes into it after
// its own mutations; tests drive it directly.
type MemoryFeed struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan Event // table -> subscription id -> channel
}

// NewMemoryFeed creates an empty MemoryFeed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[string]map[int]chan Event)}
}

// Subscribe registers a consumer for a table's events.
func (f *MemoryFeed) Subscribe(table string) (<-chan Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subs[table] == nil {
		f.subs[table] = make(map[int]chan Event)
	}
	id := f.nextID
	f.nextID++
	ch := make(chan Event, 16)
	f.subs[table][id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[table][id]; ok {
			delete(f.subs[table], id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish fans an event out to the table's subscribers. Slow consumers drop
// events rather than block the publisher; a dropped event is at worst one
// extra debounce window of staleness.
func (f *MemoryFeed) Publish(table, op string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	event := Event{Table: table, Op: op, At: time.Now()}
	for _, ch := range f.subs[table] {
		select {
		case ch <- event:
		default:
		}
	}
}

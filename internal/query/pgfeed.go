package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/lib/pq"

	"github.com/ash-vash90/production-companion/internal/logger"
)

// notifyChannel is the single LISTEN channel the migrations' triggers NOTIFY
// on. The payload carries the table name, so one channel serves all tables.
const notifyChannel = "entity_changes"

// PGFeed is a ChangeFeed backed by Postgres LISTEN/NOTIFY. Row triggers
// installed by the migrations publish {"table": ..., "op": ...} payloads;
// PGFeed fans them out to per-table subscribers. Reconnection is handled by
// pq.Listener, and missed notifications during a reconnect only cost a
// refetch of already-consistent data.
type PGFeed struct {
	listener *pq.Listener
	local    *MemoryFeed
	done     chan struct{}
}

// NewPGFeed connects a listener and starts pumping notifications.
func NewPGFeed(conninfo string) (*PGFeed, error) {
	listener := pq.NewListener(conninfo, 10*time.Second, time.Minute,
		func(event pq.ListenerEventType, err error) {
			if err != nil {
				logger.Warn("change feed listener event", "event", int(event), "error", err)
			}
		})

	if err := listener.Listen(notifyChannel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", notifyChannel, err)
	}

	f := &PGFeed{
		listener: listener,
		local:    NewMemoryFeed(),
		done:     make(chan struct{}),
	}
	go f.pump()
	return f, nil
}

// Subscribe registers a consumer for a table's change events.
func (f *PGFeed) Subscribe(table string) (<-chan Event, func()) {
	return f.local.Subscribe(table)
}

// Close stops the pump and the underlying listener.
func (f *PGFeed) Close() error {
	close(f.done)
	return f.listener.Close()
}

func (f *PGFeed) pump() {
	for {
		select {
		case <-f.done:
			return
		case notification, ok := <-f.listener.Notify:
			if !ok {
				return
			}
			if notification == nil {
				// nil signals a reconnect; subscribers will refetch on the
				// next real event.
				continue
			}
			f.dispatch(notification.Extra)
		}
	}
}

func (f *PGFeed) dispatch(payload string) {
	var msg struct {
		Table string `json:"table"`
		Op    string `json:"op"`
	}
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		logger.Warn("malformed change notification", "payload", payload, "error", err)
		return
	}
	f.local.Publish(msg.Table, strings.ToLower(msg.Op))
}

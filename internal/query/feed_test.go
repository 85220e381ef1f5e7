package query

import (
	"testing"
	"time"
)

func TestMemoryFeedDeliversToSubscribers(t *testing.T) {
	feed := NewMemoryFeed()

	events, cancel := feed.Subscribe("work_orders")
	defer cancel()

	feed.Publish("work_orders", "insert")

	select {
	case event := <-events:
		if event.Table != "work_orders" || event.Op != "insert" {
			t.Errorf("event = %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("event never arrived")
	}
}

func TestMemoryFeedScopesByTable(t *testing.T) {
	feed := NewMemoryFeed()

	workOrders, cancel := feed.Subscribe("work_orders")
	defer cancel()

	feed.Publish("reports", "insert")

	select {
	case event := <-workOrders:
		t.Errorf("subscriber got an event for another table: %+v", event)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMemoryFeedCancelClosesChannel(t *testing.T) {
	feed := NewMemoryFeed()

	events, cancel := feed.Subscribe("work_orders")
	cancel()

	if _, open := <-events; open {
		t.Error("canceled subscription's channel should be closed")
	}

	// Publishing after cancel must not panic or deliver.
	feed.Publish("work_orders", "update")

	// Double cancel is safe.
	cancel()
}

func TestMemoryFeedMultipleSubscribers(t *testing.T) {
	feed := NewMemoryFeed()

	first, cancelFirst := feed.Subscribe("items")
	defer cancelFirst()
	second, cancelSecond := feed.Subscribe("items")
	defer cancelSecond()

	feed.Publish("items", "delete")

	for i, ch := range []<-chan Event{first, second} {
		select {
		case event := <-ch:
			if event.Op != "delete" {
				t.Errorf("subscriber %d got %+v", i, event)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never got the event", i)
		}
	}
}

func TestMemoryFeedDropsWhenSubscriberIsFull(t *testing.T) {
	feed := NewMemoryFeed()

	events, cancel := feed.Subscribe("items")
	defer cancel()

	// Channel buffer is finite; overflow must not block the publisher.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			feed.Publish("items", "insert")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	// Some events arrived, the rest were dropped.
	if len(events) == 0 {
		t.Error("at least the buffered events should be retained")
	}
}

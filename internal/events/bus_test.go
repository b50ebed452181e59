package events

import (
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
		return Event{}
	}
}

// TestSubscribeByType tests that subscribers only see their event type
func TestSubscribeByType(t *testing.T) {
	bus := NewEventBus()
	resets := make(chan Event, 1)
	bus.Subscribe(EventStrategyReset, func(e Event) { resets <- e })

	bus.PublishError("scanner", "ignored")
	bus.PublishStrategyReset("BTCUSDT", "1h")

	ev := waitFor(t, resets)
	if ev.Type != EventStrategyReset {
		t.Fatalf("Expected STRATEGY_RESET, got %s", ev.Type)
	}
	if ev.Data["symbol"] != "BTCUSDT" || ev.Data["interval"] != "1h" {
		t.Errorf("Unexpected event data: %v", ev.Data)
	}
	if ev.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set on publish")
	}

	select {
	case extra := <-resets:
		t.Errorf("Unexpected second event %s", extra.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestSubscribeAll tests that catch-all subscribers see every event
func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus()

	var mu sync.Mutex
	seen := make(map[EventType]bool)
	var wg sync.WaitGroup
	wg.Add(3)
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		seen[e.Type] = true
		mu.Unlock()
		wg.Done()
	})

	bus.PublishPatternDetected("BTCUSDT", "1h", []string{"Gartley"}, "bullish")
	bus.PublishTradeOpened("BTCUSDT", "1h", "buy", 135, 150.9, 108.2)
	bus.PublishTradeClosed("BTCUSDT", "1h", "buy", "take_profit", 151)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for events")
	}

	for _, typ := range []EventType{EventPatternDetected, EventTradeOpened, EventTradeClosed} {
		if !seen[typ] {
			t.Errorf("Expected to see %s", typ)
		}
	}
}

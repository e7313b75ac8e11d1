package events

import "testing"

func TestBusFanOutAndUnsubscribe(t *testing.T) {
	b := NewBus()
	all, unsubAll := b.Subscribe(4, AllEvents...)
	trades, unsubTrades := b.Subscribe(4, EventTradeExecuted)

	b.Publish(EventTradeExecuted, TradeExecuted{Symbol: "BTCUSDT"})
	b.Publish(EventPassCompleted, "pass")

	if env := <-trades; env.Event != EventTradeExecuted {
		t.Fatalf("unexpected event on trade channel: %+v", env)
	}
	if len(trades) != 0 {
		t.Fatalf("trade channel received foreign topic")
	}
	if len(all) != 2 {
		t.Fatalf("catch-all channel got %d events, expected 2", len(all))
	}

	unsubTrades()
	unsubTrades()
	b.Publish(EventTradeExecuted, TradeExecuted{})
	if _, ok := <-trades; ok {
		t.Fatalf("channel should be closed after unsubscribe")
	}
	unsubAll()
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	b := NewBus()
	_, unsub := b.Subscribe(1, EventOrderFailed)
	defer unsub()

	b.Publish(EventOrderFailed, 1)
	b.Publish(EventOrderFailed, 2)
	if b.Dropped() != 1 {
		t.Fatalf("dropped=%d, expected 1", b.Dropped())
	}

	var nilBus *Bus
	nilBus.Publish(EventOrderFailed, 3)
}

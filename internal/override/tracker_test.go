package override

import (
	"testing"
	"time"
)

func TestTrackerMarkRemoveClear(t *testing.T) {
	tr := NewTracker(0)
	tr.Mark("btcusdt")
	tr.Mark("ETHUSDT")

	if !tr.IsMarked("BTCUSDT") {
		t.Fatalf("BTCUSDT should be marked")
	}
	if tr.IsMarked("SOLUSDT") {
		t.Fatalf("SOLUSDT should not be marked")
	}
	if !tr.Remove("ETHUSDT") || tr.Remove("ETHUSDT") {
		t.Fatalf("Remove should report presence once")
	}
	if recs := tr.Records(); len(recs) != 1 || recs[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected records: %+v", recs)
	}
	tr.Clear()
	if tr.IsMarked("BTCUSDT") || len(tr.Records()) != 0 {
		t.Fatalf("Clear should drop all marks")
	}
}

func TestTrackerExpiry(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	tr := NewTracker(time.Hour).WithClock(func() time.Time { return now })
	tr.Mark("BTCUSDT")

	now = now.Add(59 * time.Minute)
	if !tr.IsMarked("BTCUSDT") {
		t.Fatalf("mark should still be live")
	}
	now = now.Add(time.Minute)
	if len(tr.Records()) != 0 {
		t.Fatalf("expired mark listed")
	}
	if tr.IsMarked("BTCUSDT") {
		t.Fatalf("mark should have expired")
	}
}

func TestTrackerNoExpiryByDefault(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	tr := NewTracker(0).WithClock(func() time.Time { return now })
	tr.Mark("BTCUSDT")
	now = now.Add(24 * 365 * time.Hour)
	if !tr.IsMarked("BTCUSDT") {
		t.Fatalf("mark without ttl should never expire")
	}
}

func TestTrackerExpiryKeepsFreshMark(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	var tr *Tracker
	remark := false
	tr = NewTracker(time.Hour).WithClock(func() time.Time {
		if remark {
			// a manual close lands between the stale read and the delete
			remark = false
			tr.Mark("BTCUSDT")
		}
		return now
	})
	tr.Mark("BTCUSDT")

	now = now.Add(2 * time.Hour)
	remark = true
	if tr.IsMarked("BTCUSDT") {
		t.Fatalf("stale read should report expiry")
	}
	if !tr.IsMarked("BTCUSDT") {
		t.Fatalf("mark made during expiry was dropped")
	}
}

// Package override remembers symbols the user closed by hand so automation leaves them alone.
package override

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Record is one manually closed symbol.
type Record struct {
	Symbol   string    `json:"symbol"`
	ClosedAt time.Time `json:"closed_at"`
}

// Tracker is safe for concurrent use. A zero ttl keeps marks until Remove or Clear.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func NewTracker(ttl time.Duration) *Tracker {
	return &Tracker{
		records: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Mark records symbol as manually closed now.
func (t *Tracker) Mark(symbol string) {
	t.mu.Lock()
	t.records[strings.ToUpper(symbol)] = t.now()
	t.mu.Unlock()
}

// IsMarked reports whether symbol is excluded from automatic entry.
func (t *Tracker) IsMarked(symbol string) bool {
	t.mu.RLock()
	at, ok := t.records[strings.ToUpper(symbol)]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	if t.ttl == 0 || t.now().Sub(at) < t.ttl {
		return true
	}
	t.expire(strings.ToUpper(symbol))
	return false
}

// expire deletes key only if its mark is still stale; a Mark that landed
// after the read above survives.
func (t *Tracker) expire(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if at, ok := t.records[key]; ok && t.now().Sub(at) >= t.ttl {
		delete(t.records, key)
	}
}

// Remove lifts the mark for symbol.
func (t *Tracker) Remove(symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := strings.ToUpper(symbol)
	_, ok := t.records[key]
	delete(t.records, key)
	return ok
}

// Clear drops every mark.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.records = make(map[string]time.Time)
	t.mu.Unlock()
}

// Records returns live marks ordered by symbol.
func (t *Tracker) Records() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	now := t.now()
	res := make([]Record, 0, len(t.records))
	for sym, at := range t.records {
		if t.ttl > 0 && now.Sub(at) >= t.ttl {
			continue
		}
		res = append(res, Record{Symbol: sym, ClosedAt: at})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Symbol < res[j].Symbol })
	return res
}

package common

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Thresholds on the fraction of the weight window already spent.
const (
	weightWarn  = 0.80
	weightPause = 0.90
	weightCrit  = 0.95
)

// WeightBudget paces requests locally and follows the request weight the
// venue reports back in X-MBX-USED-WEIGHT-* headers. Once the reported
// weight crosses the pause threshold, callers sleep until the window rolls.
type WeightBudget struct {
	pacer  *rate.Limiter
	cap    int
	window time.Duration
	log    zerolog.Logger

	mu        sync.Mutex
	used      int
	windowEnd time.Time
}

func NewWeightBudget(capacity int, window time.Duration, rps float64, burst int, log zerolog.Logger) *WeightBudget {
	return &WeightBudget{
		pacer:     rate.NewLimiter(rate.Limit(rps), burst),
		cap:       capacity,
		window:    window,
		windowEnd: time.Now().Add(window),
		log:       log,
	}
}

// Acquire blocks until one request may be sent or ctx is done.
func (b *WeightBudget) Acquire(ctx context.Context) error {
	if wait := b.pauseFor(time.Now()); wait > 0 {
		b.log.Warn().Dur("wait", wait).Msg("request weight near limit, pausing")
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return b.pacer.Wait(ctx)
}

// Observe records the weight reported for the current window. Empty or
// malformed header values are ignored.
func (b *WeightBudget) Observe(header string) {
	n, err := strconv.Atoi(header)
	if err != nil || n < 0 {
		return
	}

	b.mu.Lock()
	b.roll(time.Now())
	b.used = n
	frac := b.fraction()
	b.mu.Unlock()

	switch {
	case frac >= weightCrit:
		b.log.Error().Int("used", n).Int("cap", b.cap).Msg("request weight critical")
	case frac >= weightWarn:
		b.log.Warn().Int("used", n).Int("cap", b.cap).Msg("request weight high")
	}
}

// Used returns the weight spent in the current window.
func (b *WeightBudget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roll(time.Now())
	return b.used
}

func (b *WeightBudget) pauseFor(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roll(now)
	if b.fraction() < weightPause {
		return 0
	}
	return b.windowEnd.Sub(now)
}

// caller holds mu
func (b *WeightBudget) roll(now time.Time) {
	if now.Before(b.windowEnd) {
		return
	}
	b.used = 0
	b.windowEnd = now.Add(b.window)
}

func (b *WeightBudget) fraction() float64 {
	if b.cap <= 0 {
		return 0
	}
	return float64(b.used) / float64(b.cap)
}

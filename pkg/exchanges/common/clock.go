package common

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ServerTimeFunc returns the venue clock in unix milliseconds.
type ServerTimeFunc func(ctx context.Context) (int64, error)

// ServerClock tracks how far the venue clock is ahead of ours. Signed
// requests are stamped with Now so they stay inside recvWindow.
type ServerClock struct {
	fetch    ServerTimeFunc
	every    time.Duration
	offsetMs atomic.Int64
	synced   atomic.Bool
	log      zerolog.Logger
}

func NewServerClock(fetch ServerTimeFunc, every time.Duration, log zerolog.Logger) *ServerClock {
	if every <= 0 {
		every = 30 * time.Minute
	}
	return &ServerClock{fetch: fetch, every: every, log: log}
}

// Run resyncs immediately and then every interval in the background.
func (c *ServerClock) Run(ctx context.Context) {
	c.resync(ctx)
	go func() {
		t := time.NewTicker(c.every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.resync(ctx)
			}
		}
	}()
}

func (c *ServerClock) resync(ctx context.Context) {
	if err := c.Sync(ctx); err != nil {
		c.log.Warn().Err(err).Msg("server clock sync failed")
	}
}

// Sync measures the offset once, splitting the round trip evenly.
func (c *ServerClock) Sync(ctx context.Context) error {
	sent := time.Now()
	server, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	rtt := time.Since(sent)
	mid := sent.Add(rtt / 2).UnixMilli()

	off := server - mid
	c.offsetMs.Store(off)
	c.synced.Store(true)
	c.log.Debug().Int64("offset_ms", off).Dur("rtt", rtt).Msg("server clock synced")
	return nil
}

// Now is local time shifted by the last measured offset. Before the first
// successful sync it is plain local time.
func (c *ServerClock) Now() int64 {
	return time.Now().UnixMilli() + c.offsetMs.Load()
}

func (c *ServerClock) Offset() time.Duration {
	return time.Duration(c.offsetMs.Load()) * time.Millisecond
}

func (c *ServerClock) Synced() bool { return c.synced.Load() }

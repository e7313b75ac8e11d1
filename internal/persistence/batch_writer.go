package persistence

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// WriteOp is one buffered statement.
type WriteOp struct {
	Query string
	Args  []any
}

// BatchWriter buffers append-only writes and commits them in one transaction,
// on size or on a timer, so hot paths never wait on SQLite.
type BatchWriter struct {
	db       *sql.DB
	log      zerolog.Logger
	buffer   []WriteOp
	mu       sync.Mutex
	flushMu  sync.Mutex
	maxSize  int
	interval time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool
	metrics  struct {
		writes, batches, errors atomic.Uint64
	}
}

// Stats is a snapshot of writer counters.
type Stats struct {
	TotalWrites  uint64 `json:"total_writes"`
	TotalBatches uint64 `json:"total_batches"`
	TotalErrors  uint64 `json:"total_errors"`
	Pending      int    `json:"pending"`
}

// NewBatchWriter starts a writer; maxSize and interval fall back to 50 and 500ms.
func NewBatchWriter(db *sql.DB, maxSize int, interval time.Duration, log zerolog.Logger) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	bw := &BatchWriter{
		db:       db,
		log:      log.With().Str("component", "batch-writer").Logger(),
		buffer:   make([]WriteOp, 0, maxSize),
		maxSize:  maxSize,
		interval: interval,
		done:     make(chan struct{}),
	}

	bw.wg.Add(1)
	go bw.backgroundFlush()
	return bw
}

// WriteQuery buffers a statement. Writes after Close are executed synchronously.
func (bw *BatchWriter) WriteQuery(query string, args ...any) {
	op := WriteOp{Query: query, Args: args}
	if bw.closed.Load() {
		_ = bw.executeBatch(context.Background(), []WriteOp{op})
		return
	}

	bw.mu.Lock()
	bw.buffer = append(bw.buffer, op)
	shouldFlush := len(bw.buffer) >= bw.maxSize
	bw.mu.Unlock()

	if shouldFlush {
		_ = bw.Flush(context.Background())
	}
}

// Flush writes everything buffered so far.
func (bw *BatchWriter) Flush(ctx context.Context) error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}
	ops := bw.buffer
	bw.buffer = make([]WriteOp, 0, bw.maxSize)
	bw.mu.Unlock()

	return bw.executeBatch(ctx, ops)
}

func (bw *BatchWriter) executeBatch(ctx context.Context, ops []WriteOp) error {
	bw.flushMu.Lock()
	defer bw.flushMu.Unlock()

	bw.metrics.writes.Add(uint64(len(ops)))
	bw.metrics.batches.Add(1)

	tx, err := bw.db.BeginTx(ctx, nil)
	if err != nil {
		bw.metrics.errors.Add(1)
		bw.log.Error().Err(err).Int("ops", len(ops)).Msg("begin transaction failed")
		return err
	}
	for _, op := range ops {
		if _, err := tx.ExecContext(ctx, op.Query, op.Args...); err != nil {
			_ = tx.Rollback()
			bw.metrics.errors.Add(1)
			bw.log.Error().Err(err).Int("ops", len(ops)).Msg("batch statement failed, rolled back")
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		bw.metrics.errors.Add(1)
		bw.log.Error().Err(err).Msg("batch commit failed")
		return err
	}
	bw.log.Debug().Int("ops", len(ops)).Msg("batch flushed")
	return nil
}

func (bw *BatchWriter) backgroundFlush() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = bw.Flush(context.Background())
		case <-bw.done:
			_ = bw.Flush(context.Background())
			return
		}
	}
}

// Stats returns the writer counters.
func (bw *BatchWriter) Stats() Stats {
	bw.mu.Lock()
	pending := len(bw.buffer)
	bw.mu.Unlock()
	return Stats{
		TotalWrites:  bw.metrics.writes.Load(),
		TotalBatches: bw.metrics.batches.Load(),
		TotalErrors:  bw.metrics.errors.Load(),
		Pending:      pending,
	}
}

// Close flushes and stops the background loop.
func (bw *BatchWriter) Close() error {
	if bw.closed.Swap(true) {
		return nil
	}
	close(bw.done)
	bw.wg.Wait()
	return nil
}

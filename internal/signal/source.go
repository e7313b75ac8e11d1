package signal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/seokjunHwang/Quant/pkg/db"
)

// Mode selects how a Source delivers signals.
type Mode int

const (
	// ModeDate re-delivers every signal targeting Query.Date.
	ModeDate Mode = iota
	// ModeSince delivers rows newer than Query.SinceID and marks them consumed.
	ModeSince
)

// Query selects signals from a Source. Empty Strategies means all strategies.
type Query struct {
	Strategies []string
	Mode       Mode
	SinceID    int64
	Date       time.Time
}

// ErrNoSignal is returned by Latest when nothing matches.
var ErrNoSignal = errors.New("no signal")

// Source is where signals come from.
type Source interface {
	PollNewSignals(ctx context.Context, q Query) ([]Signal, error)
	// LatestID is the cursor a ModeSince reader should start from to see only new rows.
	LatestID(ctx context.Context) (int64, error)
	// Latest returns the most recently created signal of the given strategies.
	Latest(ctx context.Context, strategies []string) (Signal, error)
}

// SQLiteSource reads the signals table written by the signal producers.
type SQLiteSource struct {
	db  *db.Database
	log zerolog.Logger
}

func NewSQLiteSource(database *db.Database, log zerolog.Logger) *SQLiteSource {
	return &SQLiteSource{db: database, log: log.With().Str("component", "signal-source").Logger()}
}

// PollNewSignals returns matching signals ordered by id.
func (s *SQLiteSource) PollNewSignals(ctx context.Context, q Query) ([]Signal, error) {
	var (
		rows []db.Signal
		err  error
	)
	if q.Mode == ModeSince {
		rows, err = s.db.SignalsSince(ctx, q.Strategies, q.SinceID)
	} else {
		rows, err = s.db.SignalsForDate(ctx, q.Strategies, q.Date.Format("2006-01-02"))
	}
	if err != nil {
		return nil, err
	}

	out := make([]Signal, 0, len(rows))
	var maxID int64
	for _, r := range rows {
		if r.ID > maxID {
			maxID = r.ID
		}
		sig, err := fromRow(r)
		if err != nil {
			s.log.Warn().Int64("id", r.ID).Str("symbol", r.Symbol).Err(err).Msg("skipping signal")
			continue
		}
		out = append(out, sig)
	}

	if q.Mode == ModeSince && maxID > 0 {
		if err := s.db.MarkSignalsConsumed(ctx, q.Strategies, q.SinceID, maxID); err != nil {
			s.log.Error().Err(err).Msg("mark signals consumed failed")
		}
	}
	return out, nil
}

// Latest returns the newest row by creation time.
func (s *SQLiteSource) Latest(ctx context.Context, strategies []string) (Signal, error) {
	row, err := s.db.LatestSignal(ctx, strategies)
	if errors.Is(err, db.ErrNotFound) {
		return Signal{}, ErrNoSignal
	}
	if err != nil {
		return Signal{}, err
	}
	sig, err := fromRow(*row)
	if err != nil {
		return Signal{}, fmt.Errorf("signal %d: %w", row.ID, err)
	}
	return sig, nil
}

func fromRow(r db.Signal) (Signal, error) {
	typ, err := ParseType(r.SignalType)
	if err != nil {
		return Signal{}, err
	}
	return Signal{
		ID:         r.ID,
		Strategy:   r.Strategy,
		Symbol:     r.Symbol,
		Type:       typ,
		Confidence: r.Confidence,
		CreatedAt:  r.CreatedAt,
	}, nil
}

// LatestID returns the highest stored signal id.
func (s *SQLiteSource) LatestID(ctx context.Context) (int64, error) {
	return s.db.MaxSignalID(ctx)
}

// Insert stores a signal for the given target date.
func (s *SQLiteSource) Insert(ctx context.Context, sig Signal, date time.Time) (int64, error) {
	return s.db.InsertSignal(ctx, db.Signal{
		Strategy:   sig.Strategy,
		Symbol:     sig.Symbol,
		SignalType: string(sig.Type),
		Confidence: sig.Confidence,
		TargetDate: date.Format("2006-01-02"),
		CreatedAt:  sig.CreatedAt,
	})
}

package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("record not found")

// Signal is a raw row of the signals table as written by the signal producers.
type Signal struct {
	ID         int64
	Strategy   string
	Symbol     string
	SignalType string
	Confidence float64
	TargetDate string // YYYY-MM-DD
	CreatedAt  time.Time
}

// InsertSignal stores a new signal row and returns its id.
func (d *Database) InsertSignal(ctx context.Context, s Signal) (int64, error) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.TargetDate == "" {
		s.TargetDate = s.CreatedAt.Format("2006-01-02")
	}
	res, err := d.DB.ExecContext(ctx, `
		INSERT INTO signals (strategy, symbol, signal_type, confidence, target_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.Strategy, s.Symbol, s.SignalType, s.Confidence, s.TargetDate, s.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert signal: %w", err)
	}
	return res.LastInsertId()
}

// SignalsSince returns rows with id > sinceID for the given strategies (all when empty), oldest first.
func (d *Database) SignalsSince(ctx context.Context, strategies []string, sinceID int64) ([]Signal, error) {
	where, args := strategyFilter(strategies)
	args = append([]any{sinceID}, args...)
	return d.querySignals(ctx, `WHERE id > ?`+where+` ORDER BY id`, args)
}

// SignalsForDate returns every row targeting date for the given strategies.
func (d *Database) SignalsForDate(ctx context.Context, strategies []string, date string) ([]Signal, error) {
	where, args := strategyFilter(strategies)
	args = append([]any{date}, args...)
	return d.querySignals(ctx, `WHERE target_date = ?`+where+` ORDER BY id`, args)
}

// LatestSignal returns the most recently created row for the given strategies (all when empty).
func (d *Database) LatestSignal(ctx context.Context, strategies []string) (*Signal, error) {
	where, args := strategyFilter(strategies)
	res, err := d.querySignals(ctx, `WHERE 1=1`+where+` ORDER BY created_at DESC, id DESC LIMIT 1`, args)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, ErrNotFound
	}
	return &res[0], nil
}

// MarkSignalsConsumed stamps unconsumed rows in (sinceID, maxID] belonging to
// the given strategies (all when empty).
func (d *Database) MarkSignalsConsumed(ctx context.Context, strategies []string, sinceID, maxID int64) error {
	where, filter := strategyFilter(strategies)
	args := append([]any{time.Now().UTC(), sinceID, maxID}, filter...)
	_, err := d.DB.ExecContext(ctx, `
		UPDATE signals SET consumed_at = ?
		WHERE id > ? AND id <= ? AND consumed_at IS NULL`+where, args...)
	return err
}

// MaxSignalID returns the highest signal id, or 0 for an empty table.
func (d *Database) MaxSignalID(ctx context.Context) (int64, error) {
	var id int64
	if err := d.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM signals`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// GetSignal returns a single signal row.
func (d *Database) GetSignal(ctx context.Context, id int64) (*Signal, error) {
	res, err := d.querySignals(ctx, `WHERE id = ?`, []any{id})
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, ErrNotFound
	}
	return &res[0], nil
}

// querySignals runs a select over signals; tail holds the WHERE and ORDER clauses.
func (d *Database) querySignals(ctx context.Context, tail string, args []any) ([]Signal, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, strategy, symbol, signal_type, confidence, target_date, created_at
		FROM signals `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var res []Signal
	for rows.Next() {
		var s Signal
		if err := rows.Scan(&s.ID, &s.Strategy, &s.Symbol, &s.SignalType, &s.Confidence, &s.TargetDate, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func strategyFilter(strategies []string) (string, []any) {
	if len(strategies) == 0 {
		return "", nil
	}
	marks := make([]string, len(strategies))
	args := make([]any, len(strategies))
	for i, s := range strategies {
		marks[i] = "?"
		args[i] = s
	}
	return ` AND strategy IN (` + strings.Join(marks, ",") + `)`, args
}

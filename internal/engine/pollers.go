package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/seokjunHwang/Quant/internal/reconciliation"
	"github.com/seokjunHwang/Quant/internal/signal"
)

const (
	OriginRescan = "rescan"
	OriginWatch  = "watch"
	OriginManual = "manual"
)

// Submitter accepts pass requests.
type Submitter interface {
	Submit(ctx context.Context, req reconciliation.Request) (*reconciliation.PassReport, bool)
}

// RescanPoller periodically re-reads every signal for the target date and
// submits them as one ranked batch.
type RescanPoller struct {
	src        signal.Source
	sub        Submitter
	interval   time.Duration
	strategies []string
	date       string // fixed YYYY-MM-DD, empty means today
	now        func() time.Time
	log        zerolog.Logger
}

func NewRescanPoller(src signal.Source, sub Submitter, interval time.Duration, strategies []string, date string, log zerolog.Logger) *RescanPoller {
	return &RescanPoller{
		src:        src,
		sub:        sub,
		interval:   interval,
		strategies: strategies,
		date:       date,
		now:        time.Now,
		log:        log.With().Str("component", "rescan").Logger(),
	}
}

// Run scans immediately and then on every tick until ctx is done.
func (p *RescanPoller) Run(ctx context.Context) {
	if _, err := p.Scan(ctx); err != nil {
		p.log.Error().Err(err).Msg("initial rescan failed")
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := p.Scan(ctx); err != nil {
				p.log.Error().Err(err).Msg("rescan failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Scan submits the target date's signals. The pass itself is not cancelled
// with ctx. A nil report means the request was merged into a running pass.
func (p *RescanPoller) Scan(ctx context.Context) (*reconciliation.PassReport, error) {
	date, err := p.targetDate()
	if err != nil {
		return nil, err
	}
	signals, err := p.src.PollNewSignals(ctx, signal.Query{
		Strategies: p.strategies,
		Mode:       signal.ModeDate,
		Date:       date,
	})
	if err != nil {
		return nil, err
	}
	p.log.Debug().Str("date", date.Format("2006-01-02")).Int("signals", len(signals)).Msg("rescan")

	rep, _ := p.sub.Submit(context.WithoutCancel(ctx), reconciliation.Request{
		Origin:  OriginRescan,
		Signals: signals,
		Rank:    true,
	})
	return rep, nil
}

func (p *RescanPoller) targetDate() (time.Time, error) {
	if p.date != "" {
		return time.Parse("2006-01-02", p.date)
	}
	return p.now().UTC(), nil
}

// SignalWatcher follows newly inserted signals and submits each one as it appears.
type SignalWatcher struct {
	src        signal.Source
	sub        Submitter
	interval   time.Duration
	strategies []string
	cursor     atomic.Int64
	log        zerolog.Logger
}

func NewSignalWatcher(src signal.Source, sub Submitter, interval time.Duration, strategies []string, log zerolog.Logger) *SignalWatcher {
	return &SignalWatcher{
		src:        src,
		sub:        sub,
		interval:   interval,
		strategies: strategies,
		log:        log.With().Str("component", "watcher").Logger(),
	}
}

// Init moves the cursor to the newest stored signal so only later rows are seen.
func (w *SignalWatcher) Init(ctx context.Context) error {
	id, err := w.src.LatestID(ctx)
	if err != nil {
		return err
	}
	w.cursor.Store(id)
	w.log.Info().Int64("cursor", id).Msg("watching for new signals")
	return nil
}

// Cursor is the highest signal id already seen.
func (w *SignalWatcher) Cursor() int64 {
	return w.cursor.Load()
}

func (w *SignalWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := w.Poll(ctx); err != nil {
				w.log.Error().Err(err).Msg("signal poll failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Poll submits every signal newer than the cursor, one request per row in id
// order, and returns how many were submitted.
func (w *SignalWatcher) Poll(ctx context.Context) (int, error) {
	// Rows that exist now are covered even if they are skipped as unparseable.
	latest, err := w.src.LatestID(ctx)
	if err != nil {
		return 0, err
	}
	since := w.cursor.Load()
	if latest <= since {
		return 0, nil
	}

	signals, err := w.src.PollNewSignals(ctx, signal.Query{
		Strategies: w.strategies,
		Mode:       signal.ModeSince,
		SinceID:    since,
	})
	if err != nil {
		return 0, err
	}

	next := latest
	for _, s := range signals {
		if s.ID > next {
			next = s.ID
		}
	}
	w.cursor.Store(next)

	passCtx := context.WithoutCancel(ctx)
	for _, s := range signals {
		w.log.Info().
			Int64("id", s.ID).
			Str("strategy", s.Strategy).
			Str("symbol", s.Symbol).
			Str("signal", string(s.Type)).
			Msg("new signal")
		w.sub.Submit(passCtx, reconciliation.Request{
			Origin:  OriginWatch,
			Signals: []signal.Signal{s},
		})
	}
	return len(signals), nil
}

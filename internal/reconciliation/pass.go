package reconciliation

import (
	"context"
	"time"

	"github.com/seokjunHwang/Quant/internal/events"
	"github.com/seokjunHwang/Quant/internal/signal"
)

// runPass executes Phase 1 and Phase 2 for req. Errors never escape; they are
// logged, counted, and recorded on the report.
func (e *Engine) runPass(ctx context.Context, req Request) *PassReport {
	e.passMu.Lock()
	defer e.passMu.Unlock()
	e.passes.Add(1)

	params := e.Params()
	rep := &PassReport{Origin: req.Origin, StartedAt: time.Now()}
	defer e.finish(rep)

	signals := e.normalizer.NormalizeBatch(req.Signals)
	rep.Signals = len(signals)
	bySymbol := make(map[string]signal.Signal, len(signals))
	for _, s := range signals {
		bySymbol[s.Symbol] = s
	}

	if _, err := e.mirror.Sync(ctx); err != nil {
		e.log.Error().Err(err).Str("origin", req.Origin).Msg("position sync failed, pass skipped")
		rep.Err = err.Error()
		return rep
	}

	// Phase 1: resolve held positions against their signals.
	var flips []signal.Signal
	noReentry := make(map[string]bool)
	for _, pos := range e.mirror.List() {
		sig, ok := bySymbol[pos.Symbol]
		if !ok || !conflicts(pos.Side, sig.Type) {
			continue
		}
		flip := params.Policy.flips(sig.Type)
		e.log.Info().
			Str("symbol", pos.Symbol).
			Str("held", string(pos.Side)).
			Str("signal", string(sig.Type)).
			Bool("flip", flip).
			Msg("signal conflicts with position")

		if err := e.closePosition(ctx, pos, params, string(sig.Type), false); err != nil {
			rep.Failures++
			if flip {
				rep.FlipFailures++
			}
			noReentry[pos.Symbol] = true
			continue
		}
		rep.Closed++
		if flip {
			flips = append(flips, sig)
		} else {
			noReentry[pos.Symbol] = true
		}
	}

	// Phase boundary: Phase 1 may have changed what is held.
	if _, err := e.mirror.Refresh(ctx); err != nil {
		e.log.Error().Err(err).Msg("position refresh after phase 1 failed, skipping entries")
		rep.Err = err.Error()
		return rep
	}

	// Phase 2: new entries, flip re-entries first.
	flipSet := make(map[string]bool, len(flips))
	candidates := make([]candidate, 0, len(signals))
	for _, s := range flips {
		flipSet[s.Symbol] = true
		candidates = append(candidates, candidate{sig: s, flip: true})
	}
	ordered := signals
	if req.Rank {
		ordered = signal.RankByConfidence(signals)
	}
	for _, s := range ordered {
		if flipSet[s.Symbol] || noReentry[s.Symbol] || !params.Policy.allowsEntry(s.Type) {
			continue
		}
		candidates = append(candidates, candidate{sig: s})
	}

	for _, c := range candidates {
		sym := c.sig.Symbol
		if _, held := e.mirror.Get(sym); held {
			continue
		}
		if e.overrides.IsMarked(sym) {
			e.log.Info().Str("symbol", sym).Msg("manually closed, entry suppressed")
			if c.flip {
				rep.FlipFailures++
			}
			continue
		}
		if e.mirror.Len() >= params.MaxPositions {
			e.log.Info().Int("held", e.mirror.Len()).Int("max", params.MaxPositions).Msg("slot budget exhausted")
			if c.flip {
				rep.FlipFailures++
			}
			continue
		}

		opened := e.openPosition(ctx, c.sig, params, rep)
		switch {
		case opened && c.flip:
			rep.Flipped++
		case !opened && c.flip:
			rep.FlipFailures++
			e.log.Warn().Str("symbol", sym).Msg("flip re-entry failed after close; position left flat")
		}
		if !opened {
			continue
		}
		rep.Opened++
		if _, err := e.mirror.Refresh(ctx); err != nil {
			e.log.Error().Err(err).Msg("position refresh after entry failed, stopping entries")
			rep.Err = err.Error()
			return rep
		}
	}
	return rep
}

type candidate struct {
	sig  signal.Signal
	flip bool
}

func (e *Engine) finish(rep *PassReport) {
	rep.Duration = time.Since(rep.StartedAt)
	rep.Held = e.mirror.Len()
	e.metrics.PassCompleted(rep.Origin, rep.Duration, rep.Held)
	e.bus.Publish(events.EventPassCompleted, *rep)
	if rep.Closed > 0 || rep.Opened > 0 {
		e.bus.Publish(events.EventPositionsChanged, e.mirror.List())
	}

	ev := e.log.Info()
	if rep.Err != "" {
		ev = e.log.Warn().Str("error", rep.Err)
	}
	ev.Str("origin", rep.Origin).
		Int("signals", rep.Signals).
		Int("held", rep.Held).
		Int("closed", rep.Closed).
		Int("opened", rep.Opened).
		Int("flipped", rep.Flipped).
		Int("rejected", rep.Rejected).
		Int("failures", rep.Failures).
		Dur("took", rep.Duration).
		Msg("pass complete")
}

package monitor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/seokjunHwang/Quant/internal/events"
)

// Monitor turns failure events into operator alerts.
type Monitor struct {
	Bus  *events.Bus
	Sink AlertSink
	Log  zerolog.Logger
}

// Start forwards alerts until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Sink == nil {
		m.Log.Info().Msg("monitor not fully configured; skipping")
		return
	}
	stream, unsub := m.Bus.Subscribe(50, events.EventOrderFailed, events.EventAutoTradeState)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-stream:
				if !ok {
					return
				}
				if msg := formatAlert(env); msg != "" {
					if err := m.Sink.Send(msg); err != nil {
						m.Log.Error().Err(err).Msg("alert delivery failed")
					}
				}
			}
		}
	}()
}

func formatAlert(env events.Envelope) string {
	switch p := env.Payload.(type) {
	case events.OrderFailed:
		return fmt.Sprintf("%s %s failed: %s", p.Action, p.Symbol, p.Reason)
	case events.AutoTradeState:
		if p.Active {
			return fmt.Sprintf("auto-trading started (%s)", p.Mode)
		}
		return "auto-trading stopped"
	default:
		return ""
	}
}

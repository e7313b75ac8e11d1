package reconciliation

import "time"

// PassReport summarizes one pass for status displays.
type PassReport struct {
	Origin       string        `json:"origin"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Signals      int           `json:"signals"`
	Held         int           `json:"held"`
	Closed       int           `json:"closed"`
	Opened       int           `json:"opened"`
	Flipped      int           `json:"flipped"`
	FlipFailures int           `json:"flip_failures"`
	Rejected     int           `json:"rejected"`
	Failures     int           `json:"failures"`
	Err          string        `json:"error,omitempty"`
}

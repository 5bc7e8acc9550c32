package service

import "time"

// BackoffSchedule maps the number of attempts already made to the delay
// before the next one. Indexes past the end clamp to the last entry.
type BackoffSchedule []time.Duration

// ProductionBackoff is the delivery retry schedule: first attempt is
// immediate, then 1m, 5m, 30m, 2h.
var ProductionBackoff = BackoffSchedule{
	0,
	1 * time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
}

// TestBackoff is the compressed schedule used when retry test mode is on.
var TestBackoff = BackoffSchedule{
	0,
	5 * time.Second,
	10 * time.Second,
	15 * time.Second,
	20 * time.Second,
}

// Delay returns the wait before the next attempt given how many attempts
// have already been made.
func (s BackoffSchedule) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= len(s) {
		attempts = len(s) - 1
	}
	return s[attempts]
}

package scheduler

import (
	"errors"
	"time"
)

// ErrInvalidInterval is returned for a zero or negative interval
var ErrInvalidInterval = errors.New("interval must be positive")

// NextRunTime computes when a job should fire next.
//
// The base is lastRun, or start for a job that never ran, or now when both
// are zero. A base later than now (clock moved backward) is treated as now.
// Missed ticks are collapsed: the result is the first base+k*interval that
// is strictly after now, so it is never more than one interval away when
// base <= now. The function is pure and deterministic.
func NextRunTime(lastRun, start time.Time, interval time.Duration, now time.Time) (time.Time, error) {
	if interval <= 0 {
		return time.Time{}, ErrInvalidInterval
	}

	base := lastRun
	if base.IsZero() {
		base = start
	}
	if base.IsZero() || base.After(now) {
		base = now
	}

	next := base.Add(interval)
	if !next.After(now) {
		missed := now.Sub(next) / interval
		next = next.Add((missed + 1) * interval)
	}
	return next, nil
}

// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package upgrader

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
)

// logEvery is the number of intervals between progress messages.
const logEvery = 4

// Tick describes one completed wait of the scheduler.
type Tick struct {
	// Number counts the ticks, starting at 1.
	Number int

	// Elapsed is the total time waited so far.
	Elapsed time.Duration

	// Log is true when progress should be reported on this tick.
	Log bool

	// Exhausted is true when Elapsed has reached the timeout.
	Exhausted bool
}

// Scheduler spaces status reads a fixed interval apart and keeps track of
// the time spent against a timeout. Elapsed time is counted in whole
// intervals rather than measured.
type Scheduler struct {
	clock    clock.Clock
	interval time.Duration
	timeout  time.Duration

	ticks   int
	elapsed time.Duration
}

// NewScheduler returns a Scheduler waiting interval between ticks until
// timeout is reached.
func NewScheduler(clock clock.Clock, interval, timeout time.Duration) *Scheduler {
	return &Scheduler{
		clock:    clock,
		interval: interval,
		timeout:  timeout,
	}
}

// Wait blocks for one interval. If ctx is done first the wait is abandoned
// and an error satisfying ErrAborted is returned.
func (s *Scheduler) Wait(ctx context.Context) (Tick, error) {
	select {
	case <-ctx.Done():
		return Tick{}, errors.WithType(errors.Annotate(ctx.Err(), "waiting for service status"), ErrAborted)
	case <-s.clock.After(s.interval):
	}

	s.ticks++
	s.elapsed += s.interval
	return Tick{
		Number:    s.ticks,
		Elapsed:   s.elapsed,
		Log:       IsLogTick(s.elapsed, s.interval),
		Exhausted: s.elapsed >= s.timeout,
	}, nil
}

// Elapsed returns the time waited so far.
func (s *Scheduler) Elapsed() time.Duration {
	return s.elapsed
}

// IsLogTick reports whether elapsed is a whole multiple of logEvery
// intervals.
func IsLogTick(elapsed, interval time.Duration) bool {
	if interval <= 0 || elapsed <= 0 {
		return false
	}
	return elapsed%(logEvery*interval) == 0
}

// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package upgrader

import (
	"time"
)

// Outcome is the terminal result of an upgrade session.
type Outcome string

const (
	Pending            Outcome = "pending"
	Succeeded          Outcome = "succeeded"
	TimedOutRolledBack Outcome = "timed-out-rolled-back"
	TimedOutNoRollback Outcome = "timed-out-no-rollback"
	Failed             Outcome = "failed"
	Aborted            Outcome = "aborted"
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	return string(o)
}

// TimedOut reports whether the session ran out of time.
func (o Outcome) TimedOut() bool {
	return o == TimedOutRolledBack || o == TimedOutNoRollback
}

// Session records the progress of one supervised upgrade.
type Session struct {
	ServiceID      string
	ServiceName    string
	Outcome        Outcome
	Ticks          int
	Elapsed        time.Duration
	Timeout        time.Duration
	PollInterval   time.Duration
	RollbackOnFail bool
	RolledBack     bool
}

// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"io"

	"github.com/juju/ansiterm"
	"github.com/juju/errors"

	"github.com/juju/service-upgrader/cmd/output"
	"github.com/juju/service-upgrader/internal/upgrader"
)

// sessionResult is the formatted result of an upgrade session.
type sessionResult struct {
	Service        string `yaml:"service" json:"service"`
	ServiceID      string `yaml:"service-id" json:"service-id"`
	Outcome        string `yaml:"outcome" json:"outcome"`
	Polls          int    `yaml:"polls" json:"polls"`
	Elapsed        string `yaml:"elapsed" json:"elapsed"`
	Timeout        string `yaml:"timeout" json:"timeout"`
	PollInterval   string `yaml:"poll-interval" json:"poll-interval"`
	RollbackOnFail bool   `yaml:"rollback-on-fail" json:"rollback-on-fail"`
	RolledBack     bool   `yaml:"rolled-back" json:"rolled-back"`
	Error          string `yaml:"error,omitempty" json:"error,omitempty"`
}

func newSessionResult(session upgrader.Session, err error) sessionResult {
	result := sessionResult{
		Service:        session.ServiceName,
		ServiceID:      session.ServiceID,
		Outcome:        session.Outcome.String(),
		Polls:          session.Ticks,
		Elapsed:        session.Elapsed.String(),
		Timeout:        session.Timeout.String(),
		PollInterval:   session.PollInterval.String(),
		RollbackOnFail: session.RollbackOnFail,
		RolledBack:     session.RolledBack,
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// formatSessionTabular writes a one row summary of the session.
func formatSessionTabular(writer io.Writer, value interface{}) error {
	result, ok := value.(sessionResult)
	if !ok {
		return errors.Errorf("expected value of type %T, got %T", result, value)
	}

	tw := output.TabWriter(writer)
	w := output.Wrapper{TabWriter: tw}
	w.Println("Service", "ID", "Outcome", "Polls", "Elapsed", "Timeout", "Rolled back")
	w.Print(result.Service, result.ServiceID)
	w.PrintColor(outcomeHighlight(upgrader.Outcome(result.Outcome)), result.Outcome)
	w.Println(result.Polls, result.Elapsed, result.Timeout, result.RolledBack)
	if result.Error != "" {
		w.Println()
		output.ErrorHighlight.Fprintf(tw, "%s", result.Error)
		w.Println()
	}
	return errors.Trace(tw.Flush())
}

func outcomeHighlight(outcome upgrader.Outcome) *ansiterm.Context {
	switch outcome {
	case upgrader.Succeeded:
		return output.GoodHighlight
	case upgrader.TimedOutRolledBack:
		return output.WarningHighlight
	case upgrader.Pending:
		return nil
	}
	return output.ErrorHighlight
}

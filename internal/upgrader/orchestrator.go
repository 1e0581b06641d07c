// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package upgrader supervises the in-service upgrade of a single service:
// it issues the upgrade, polls the service until it is upgraded and healthy
// or the timeout runs out, and then either finishes or rolls back the
// upgrade.
package upgrader

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"

	"github.com/juju/service-upgrader/core/service"
)

// maxReadRetryDelay caps the delay between retried status reads.
const maxReadRetryDelay = time.Second

// Config holds the collaborators and policy of an Orchestrator.
type Config struct {
	Client ClusterClient
	Locker Locker
	Clock  clock.Clock
	Logger Logger

	// Strategy is the template of the strategy submitted with the
	// upgrade. Its launch config is replaced by the service's own.
	Strategy service.Strategy

	// Timeout bounds the time spent polling.
	Timeout time.Duration

	// PollInterval is the wait before each status read.
	PollInterval time.Duration

	// RollbackOnFail rolls the upgrade back when Timeout is reached.
	RollbackOnFail bool

	// ReadAttempts is the number of tries for each status read.
	ReadAttempts int
}

// Validate ensures that the config values are valid.
func (c Config) Validate() error {
	if c.Client == nil {
		return errors.NotValidf("nil Client")
	}
	if c.Locker == nil {
		return errors.NotValidf("nil Locker")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if c.Timeout <= 0 {
		return errors.NotValidf("timeout %v", c.Timeout)
	}
	if c.PollInterval <= 0 {
		return errors.NotValidf("poll interval %v", c.PollInterval)
	}
	if c.ReadAttempts < 1 {
		return errors.NotValidf("read attempts %d", c.ReadAttempts)
	}
	return errors.Trace(c.Strategy.Validate())
}

// Orchestrator drives services through an upgrade.
type Orchestrator struct {
	cfg Config
}

// NewOrchestrator returns an Orchestrator using the given config.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Orchestrator{cfg: cfg}, nil
}

// Run upgrades svc and waits for the upgrade to complete. The returned
// session is always populated, and its outcome is never Pending.
//
// A service that is not active is never upgraded. Once issued, the
// upgrade is polled until the service is upgraded and healthy, at which
// point it is finished, or until the timeout is reached, at which point it
// is rolled back if so configured and an error satisfying
// ErrUpgradeTimeout is returned.
func (o *Orchestrator) Run(ctx context.Context, svc service.Service) (Session, error) {
	session := Session{
		ServiceID:      svc.ID,
		ServiceName:    svc.Name,
		Outcome:        Pending,
		Timeout:        o.cfg.Timeout,
		PollInterval:   o.cfg.PollInterval,
		RollbackOnFail: o.cfg.RollbackOnFail,
	}

	release, err := o.cfg.Locker.Acquire(ctx, svc.ID)
	if err != nil {
		session.Outcome = Failed
		if ctx.Err() != nil {
			session.Outcome = Aborted
			err = errors.WithType(err, ErrAborted)
		}
		return session, errors.Annotatef(err, "locking service %s", svc)
	}
	defer release()

	// The handle may predate the lock, so the state is checked again
	// under it.
	current, err := o.cfg.Client.Service(ctx, svc.ID)
	if err != nil {
		return o.remoteFailure(ctx, session, err, "reading service status")
	}
	if !current.IsActive() {
		session.Outcome = Failed
		return session, errors.WithType(
			errors.Errorf("service %s is %s, not %s", svc, current.State, service.Active),
			ErrServiceNotActive,
		)
	}

	if err := o.cfg.Client.Upgrade(ctx, svc.ID, o.cfg.Strategy.ForService(current)); err != nil {
		return o.remoteFailure(ctx, session, err, "upgrading service")
	}
	o.cfg.Logger.Infof("upgrade of service %s started", svc)

	scheduler := NewScheduler(o.cfg.Clock, o.cfg.PollInterval, o.cfg.Timeout)
	for {
		tick, err := scheduler.Wait(ctx)
		if err != nil {
			session.Outcome = Aborted
			return session, errors.Trace(err)
		}
		session.Ticks = tick.Number
		session.Elapsed = tick.Elapsed
		if tick.Log {
			o.cfg.Logger.Infof("service %s upgrading (%v of %v)", svc, tick.Elapsed, o.cfg.Timeout)
		}

		current, err := o.readService(ctx, svc.ID)
		if err != nil {
			return o.remoteFailure(ctx, session, err, "reading service status")
		}
		o.cfg.Logger.Debugf("service %s is %s and %s", svc, current.State, current.HealthState)

		if current.IsUpgradeComplete() {
			return o.finish(ctx, svc, session)
		}
		if tick.Exhausted {
			return o.timedOut(ctx, svc, session)
		}
	}
}

func (o *Orchestrator) finish(ctx context.Context, svc service.Service, session Session) (Session, error) {
	if err := o.cfg.Client.FinishUpgrade(ctx, svc.ID); err != nil {
		return o.remoteFailure(ctx, session, err, "finishing upgrade")
	}
	session.Outcome = Succeeded
	o.cfg.Logger.Infof("service %s upgraded after %v", svc, session.Elapsed)
	return session, nil
}

func (o *Orchestrator) timedOut(ctx context.Context, svc service.Service, session Session) (Session, error) {
	o.cfg.Logger.Errorf("service %s did not finish upgrading within %v", svc, o.cfg.Timeout)

	session.Outcome = TimedOutNoRollback
	if !o.cfg.RollbackOnFail {
		return session, timeoutError(errors.Errorf("service %s did not finish upgrading within %v", svc, o.cfg.Timeout))
	}

	if err := o.cfg.Client.Rollback(ctx, svc.ID); err != nil {
		o.cfg.Logger.Errorf("rolling back service %s: %v", svc, err)
		return session, timeoutError(errors.Errorf(
			"service %s did not finish upgrading within %v, and rollback failed: %v", svc, o.cfg.Timeout, err,
		))
	}
	session.Outcome = TimedOutRolledBack
	session.RolledBack = true
	o.cfg.Logger.Infof("service %s rolled back", svc)
	return session, timeoutError(errors.Errorf(
		"service %s did not finish upgrading within %v, rolled back", svc, o.cfg.Timeout,
	))
}

// readService reads the service status, retrying failed reads when more
// than one attempt is configured. Time spent retrying is not counted
// against the timeout.
func (o *Orchestrator) readService(ctx context.Context, id string) (service.Service, error) {
	if o.cfg.ReadAttempts <= 1 {
		svc, err := o.cfg.Client.Service(ctx, id)
		return svc, errors.Trace(err)
	}

	var svc service.Service
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			svc, err = o.cfg.Client.Service(ctx, id)
			return err
		},
		IsFatalError: func(err error) bool {
			return errors.Is(err, errors.NotFound) || errors.Is(err, errors.Unauthorized)
		},
		NotifyFunc: func(err error, attempt int) {
			o.cfg.Logger.Warningf("attempt %d reading service %s: %v", attempt, id, err)
		},
		Attempts: o.cfg.ReadAttempts,
		Delay:    readRetryDelay(o.cfg.PollInterval),
		Clock:    o.cfg.Clock,
		Stop:     ctx.Done(),
	})
	if retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err) {
		err = retry.LastError(err)
	}
	if err != nil {
		return service.Service{}, errors.Trace(err)
	}
	return svc, nil
}

// remoteFailure ends the session after a failed cluster call. A call cut
// short by cancellation aborts the session instead of failing it.
func (o *Orchestrator) remoteFailure(ctx context.Context, session Session, err error, what string) (Session, error) {
	if ctx.Err() != nil {
		session.Outcome = Aborted
		return session, errors.WithType(errors.Annotate(ctx.Err(), what), ErrAborted)
	}
	session.Outcome = Failed
	return session, remoteError(err)
}

func readRetryDelay(interval time.Duration) time.Duration {
	if interval < maxReadRetryDelay {
		return interval
	}
	return maxReadRetryDelay
}

func remoteError(err error) error {
	return errors.WithType(errors.Trace(err), ErrRemote)
}

func timeoutError(err error) error {
	return errors.WithType(errors.WithType(err, ErrUpgradeTimeout), errors.Timeout)
}

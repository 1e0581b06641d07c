// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package lock provides per-service exclusion so that a service is only
// upgraded by one session at a time, both within this process and across
// processes on the same host.
package lock

import (
	"context"
	"strings"
	"time"

	"github.com/im7mortal/kmutex"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/mutex/v2"
)

const (
	// namePrefix is prepended to the key to form the host mutex name.
	namePrefix = "svc-upgrade-"

	// maxNameLength is the longest name accepted by the host mutex.
	maxNameLength = 40

	// DefaultDelay is the default wait between attempts to take the host
	// mutex.
	DefaultDelay = 250 * time.Millisecond
)

// ErrLocked is returned when the lock could not be taken before the
// configured timeout.
const ErrLocked = errors.ConstError("upgrade already in progress")

// Logger represents the logging methods called.
type Logger interface {
	Debugf(message string, args ...interface{})
}

// Config holds the settings of a Locker.
type Config struct {
	Clock  clock.Clock
	Logger Logger

	// Delay is the wait between attempts to take the host mutex.
	Delay time.Duration

	// Timeout bounds the wait for the host mutex. Zero waits until the
	// context is done.
	Timeout time.Duration
}

// Validate ensures that the config values are valid.
func (c Config) Validate() error {
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if c.Delay <= 0 {
		return errors.NotValidf("delay %v", c.Delay)
	}
	if c.Timeout < 0 {
		return errors.NotValidf("timeout %v", c.Timeout)
	}
	return nil
}

// Locker hands out exclusive locks keyed by service id.
type Locker struct {
	cfg   Config
	local *kmutex.Kmutex
}

// New returns a Locker using the given config.
func New(cfg Config) (*Locker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Locker{
		cfg:   cfg,
		local: kmutex.New(),
	}, nil
}

// Acquire blocks until the lock for key is held by the caller, ctx is
// done, or the timeout passes. The returned function releases the lock
// and must be called exactly once.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	if err := l.lockLocal(ctx, key); err != nil {
		return nil, errors.Trace(err)
	}

	name := MutexName(key)
	l.cfg.Logger.Debugf("acquiring host mutex %q", name)
	releaser, err := mutex.Acquire(mutex.Spec{
		Name:    name,
		Clock:   l.cfg.Clock,
		Delay:   l.cfg.Delay,
		Timeout: l.cfg.Timeout,
		Cancel:  ctx.Done(),
	})
	if err != nil {
		l.local.Unlock(key)
		switch {
		case errors.Is(err, mutex.ErrCancelled):
			return nil, errors.Annotatef(ctx.Err(), "waiting for lock on %q", key)
		case errors.Is(err, mutex.ErrTimeout):
			return nil, errors.WithType(errors.Errorf("lock on %q held elsewhere", key), ErrLocked)
		}
		return nil, errors.Annotatef(err, "acquiring host mutex %q", name)
	}

	return func() {
		releaser.Release()
		l.local.Unlock(key)
		l.cfg.Logger.Debugf("released host mutex %q", name)
	}, nil
}

// lockLocal takes the in-process lock for key. If ctx is done first, the
// lock is released as soon as it is obtained.
func (l *Locker) lockLocal(ctx context.Context, key string) error {
	locked := make(chan struct{})
	go func() {
		l.local.Lock(key)
		close(locked)
	}()

	select {
	case <-locked:
		return nil
	case <-ctx.Done():
		go func() {
			<-locked
			l.local.Unlock(key)
		}()
		return errors.Annotatef(ctx.Err(), "waiting for lock on %q", key)
	}
}

// MutexName returns the host mutex name used for key. Characters the host
// mutex does not accept are replaced by hyphens.
func MutexName(key string) string {
	var b strings.Builder
	b.WriteString(namePrefix)
	for _, r := range strings.ToLower(key) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	name := b.String()
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return name
}

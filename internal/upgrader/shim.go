// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package upgrader

import (
	"context"

	"github.com/juju/service-upgrader/core/service"
)

// Logger represents the logging methods called.
type Logger interface {
	Debugf(message string, args ...interface{})
	Infof(message string, args ...interface{})
	Warningf(message string, args ...interface{})
	Errorf(message string, args ...interface{})
}

// ClusterClient is the remote surface used to drive an upgrade.
type ClusterClient interface {
	// Service returns a fresh snapshot of the service.
	Service(ctx context.Context, id string) (service.Service, error)

	// Upgrade starts an upgrade of the service using strategy.
	Upgrade(ctx context.Context, id string, strategy service.Strategy) error

	// FinishUpgrade commits a completed upgrade.
	FinishUpgrade(ctx context.Context, id string) error

	// Rollback reverts an upgrade in progress.
	Rollback(ctx context.Context, id string) error
}

// Locker grants exclusive access to a key. The returned function releases
// the lock.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

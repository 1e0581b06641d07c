// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"time"

	"github.com/juju/errors"
)

// State is the lifecycle state of a service as reported by the cluster.
type State string

// String returns a string representation of the State.
func (s State) String() string {
	return string(s)
}

const (
	// Active is set when the service is running and no upgrade is in
	// progress. It is the only state from which an upgrade may start.
	Active State = "active"

	// Upgrading is set while the cluster replaces the service's containers.
	Upgrading State = "upgrading"

	// Upgraded is set once every batch has been replaced. The upgrade
	// stays open until it is finished or rolled back.
	Upgraded State = "upgraded"

	// RollingBack is set while the cluster reverts to the previous
	// launch config.
	RollingBack State = "rolling-back"

	// Inactive is set when the service has been stopped.
	Inactive State = "inactive"
)

// HealthState is the aggregated health of a service's containers. It is
// independent of State.
type HealthState string

// String returns a string representation of the HealthState.
func (h HealthState) String() string {
	return string(h)
}

const (
	// Healthy means every container passes its health check.
	Healthy HealthState = "healthy"

	// Unhealthy means at least one container fails its health check.
	Unhealthy HealthState = "unhealthy"

	// Initializing means containers have started but health checks have
	// not settled yet.
	Initializing HealthState = "initializing"

	// Degraded means some, but not all, containers are healthy.
	Degraded HealthState = "degraded"
)

// LaunchConfig describes how the service's containers are run. It is passed
// through unmodified and never inspected.
type LaunchConfig map[string]interface{}

// Service is a snapshot of a remote service.
type Service struct {
	// ID is the cluster assigned identifier, stable for the lifetime of
	// the service.
	ID string

	// Name is unique within the service's stack.
	Name string

	// State is the lifecycle state of the service.
	State State

	// HealthState is the health of the service's containers.
	HealthState HealthState

	// LaunchConfig is the current launch configuration of the service.
	LaunchConfig LaunchConfig
}

// String returns the service in the "name(id)" form used in log messages.
func (s Service) String() string {
	return s.Name + "(" + s.ID + ")"
}

// IsActive reports whether an upgrade may be started on the service.
func (s Service) IsActive() bool {
	return s.State == Active
}

// IsUpgradeComplete reports whether the snapshot shows a finished and
// healthy upgrade. Both conditions must hold in the same snapshot.
func (s Service) IsUpgradeComplete() bool {
	return s.State == Upgraded && s.HealthState == Healthy
}

// Strategy is the rollout policy submitted with an upgrade.
type Strategy struct {
	// BatchSize is the number of containers replaced per step.
	BatchSize int

	// Interval is the delay between batches.
	Interval time.Duration

	// StartFirst starts new containers before stopping the old ones.
	StartFirst bool

	// LaunchConfig is the target configuration of the upgrade.
	LaunchConfig LaunchConfig
}

// Validate returns an error if the strategy cannot be submitted.
func (s Strategy) Validate() error {
	if s.BatchSize < 1 {
		return errors.NotValidf("batch size %d", s.BatchSize)
	}
	if s.Interval < 0 {
		return errors.NotValidf("negative batch interval %v", s.Interval)
	}
	return nil
}

// ForService returns a copy of the strategy targeting the service's current
// launch config.
func (s Strategy) ForService(svc Service) Strategy {
	s.LaunchConfig = svc.LaunchConfig
	return s
}

// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package upgrader

import (
	"github.com/juju/errors"
)

const (
	// ErrConfig is reported when the upgrader settings are missing or
	// invalid.
	ErrConfig = errors.ConstError("invalid configuration")

	// ErrServiceNotActive is reported when the service was not active
	// before the upgrade was issued.
	ErrServiceNotActive = errors.ConstError("service not active")

	// ErrRemote is reported when a call to the cluster failed.
	ErrRemote = errors.ConstError("remote call failed")

	// ErrUpgradeTimeout is reported when the service did not become
	// upgraded and healthy within the timeout. Errors of this type also
	// satisfy errors.Timeout.
	ErrUpgradeTimeout = errors.ConstError("upgrade timed out")

	// ErrAborted is reported when the session was cancelled while waiting.
	ErrAborted = errors.ConstError("upgrade aborted")
)

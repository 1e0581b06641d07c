// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"fmt"
	"os"

	"github.com/juju/cmd/v3"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("service-upgrader")

// exitErr is returned when the command could not be set up at all.
const exitErr = 2

func main() {
	os.Exit(Main(os.Args))
}

// Main runs the upgrade command with the given arguments and returns the
// process exit code.
func Main(args []string) int {
	ctx, err := cmd.DefaultContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitErr
	}
	return cmd.Main(NewUpgradeCommand(), ctx, args[1:])
}

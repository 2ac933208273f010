//go:build !windows

package main

import (
	"os"
	"syscall"
)

// terminationSignals stop the server gracefully. SIGTERM is what container
// runtimes and systemd send on stop.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

//go:build windows

package util

import "os"

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// GracefulSignal attempts graceful process termination.
// On Windows SIGINT cannot be delivered to a child process, so the
// capture process is cut off by its context instead.
func GracefulSignal(p *os.Process) error {
	return nil
}

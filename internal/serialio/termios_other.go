//go:build !linux

package serialio

import "go.bug.st/serial"

// applyLowLatency is a no-op outside Linux; ASYNC_LOW_LATENCY has no
// equivalent on the other platforms go.bug.st/serial supports.
func applyLowLatency(_ serial.Port, _ string) {}

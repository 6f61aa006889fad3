// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral entry point for the readiness multiplexer.

package reactor

import (
	"time"

	"github.com/momentics/hioload-relay/api"
)

// DefaultIdleTimeout bounds every readiness wait.
const DefaultIdleTimeout = 30 * time.Second

// NewPoller constructs the platform-specific api.Poller.
func NewPoller() (api.Poller, error) {
	return newPoller()
}

// timeoutMillis converts a wait bound to poll(2) milliseconds, rounding
// sub-millisecond positive bounds up so they never turn into busy polls.
// Negative durations block indefinitely.
func timeoutMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	ms := d / time.Millisecond
	if d%time.Millisecond != 0 {
		ms++
	}
	return int(ms)
}

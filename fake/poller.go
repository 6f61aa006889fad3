// Package fake
// Author: momentics <momentics@gmail.com>
//
// Poller wrapper that counts waits and injects a fatal failure.

package fake

import (
	"time"

	"github.com/momentics/hioload-relay/api"
)

// Poller delegates to Inner and records what it sees.
type Poller struct {
	Inner api.Poller

	// FailAt makes the FailAt-th and later calls return Err. Zero disables.
	FailAt int
	Err    error

	Calls    int
	Timeouts int
}

// Wait implements api.Poller.
func (p *Poller) Wait(fds []int, ready []bool, timeout time.Duration) (int, error) {
	p.Calls++
	if p.FailAt > 0 && p.Calls >= p.FailAt {
		return 0, p.Err
	}
	n, err := p.Inner.Wait(fds, ready, timeout)
	if err == nil && n == 0 {
		p.Timeouts++
	}
	return n, err
}

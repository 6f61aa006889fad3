// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract readiness multiplexer used by the relay event loop.

package api

import "time"

// Poller waits for read readiness on a set of descriptors.
//
// Wait blocks for at most timeout. It returns the number of descriptors
// reported ready and fills ready so that ready[i] corresponds to fds[i].
// A timeout is reported as n == 0 with a nil error. An interrupted wait is
// reported as ErrInterrupted.
type Poller interface {
	Wait(fds []int, ready []bool, timeout time.Duration) (n int, err error)
}

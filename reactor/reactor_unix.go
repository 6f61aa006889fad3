//go:build unix

// File: reactor/reactor_unix.go
// Author: momentics <momentics@gmail.com>
//
// poll(2)-based readiness reactor. The descriptor set is rebuilt on every
// call, which keeps registration free of kernel-side state.

package reactor

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-relay/api"
)

// readyMask treats hang-up and error conditions as readable so the owning
// handler observes EOF or the pending error on its next read.
const readyMask = unix.POLLIN | unix.POLLHUP | unix.POLLERR | unix.POLLNVAL

// pollReactor implements api.Poller on top of poll(2).
type pollReactor struct {
	pfds []unix.PollFd
}

func newPoller() (api.Poller, error) {
	return &pollReactor{}, nil
}

// Wait blocks until at least one fd is readable or timeout elapses.
func (r *pollReactor) Wait(fds []int, ready []bool, timeout time.Duration) (int, error) {
	if len(ready) < len(fds) {
		return 0, api.ErrNotSupported
	}
	r.pfds = r.pfds[:0]
	for _, fd := range fds {
		r.pfds = append(r.pfds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}

	n, err := unix.Poll(r.pfds, timeoutMillis(timeout))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, api.ErrInterrupted
		}
		return 0, err
	}

	for i := range fds {
		ready[i] = r.pfds[i].Revents&readyMask != 0
	}
	return n, nil
}

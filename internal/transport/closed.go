// File: internal/transport/closed.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"errors"
	"io"
	"syscall"

	"github.com/momentics/hioload-relay/api"
)

// IsExpectedClose reports whether err is a normal stream termination: EOF,
// a closed endpoint, broken pipe or connection reset. Relay teardown caused
// by a departing peer produces these and they are not worth a warning.
func IsExpectedClose(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, api.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}

//go:build !unix

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import (
	"errors"

	"github.com/momentics/hioload-relay/api"
)

// newPoller returns an error for unsupported platforms.
func newPoller() (api.Poller, error) {
	return nil, errors.New("reactor: this platform is not supported")
}

//go:build !linux

// File: internal/transport/socket_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub for platforms without the Linux socket families.

package transport

import (
	"fmt"
	"runtime"

	"github.com/momentics/hioload-relay/api"
)

func newSocketTransport(name string, _ Options) (api.Transport, error) {
	return nil, fmt.Errorf("transport %s on %s: %w", name, runtime.GOOS, api.ErrNotSupported)
}

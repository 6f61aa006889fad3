//go:build !linux

// File: internal/concurrency/affinity_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"strconv"

	"github.com/momentics/hioload-relay/api"
)

// PinCurrentThread is unsupported off Linux.
func PinCurrentThread(cpu int) (func(), error) {
	return nil, &api.SetupError{Op: "affinity", Addr: "cpu " + strconv.Itoa(cpu), Err: api.ErrNotSupported}
}

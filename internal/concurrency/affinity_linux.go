//go:build linux

// File: internal/concurrency/affinity_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pins the loop goroutine's OS thread to one CPU with sched_setaffinity.

package concurrency

import (
	"runtime"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-relay/api"
)

// PinCurrentThread locks the calling goroutine to its OS thread and binds
// that thread to cpu. The returned function restores the previous mask
// and unlocks the thread.
func PinCurrentThread(cpu int) (func(), error) {
	runtime.LockOSThread()

	var prev unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prev); err != nil {
		runtime.UnlockOSThread()
		return nil, &api.SetupError{Op: "affinity", Addr: "cpu " + strconv.Itoa(cpu), Err: err}
	}
	var set unix.CPUSet
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		runtime.UnlockOSThread()
		return nil, &api.SetupError{Op: "affinity", Addr: "cpu " + strconv.Itoa(cpu), Err: err}
	}
	return func() {
		_ = unix.SchedSetaffinity(0, &prev)
		runtime.UnlockOSThread()
	}, nil
}

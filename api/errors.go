// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy for the relay: setup, transient I/O, wait and argument
// failures, plus the mapping of errors onto process exit codes.

package api

import (
	"errors"
	"fmt"
	"syscall"
)

// Common errors used across the relay.
var (
	ErrShortWrite   = errors.New("short write")
	ErrClosed       = errors.New("endpoint is closed")
	ErrInterrupted  = errors.New("wait interrupted")
	ErrNotSupported = errors.New("operation not supported")
)

// SetupError reports a failed transport open, bind, listen or connect.
// It is fatal and aborts before the event loop starts.
type SetupError struct {
	Op   string
	Addr string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// TransientIOError reports a single failed read, write or accept. It only
// tears down the pipe pair it belongs to.
type TransientIOError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// WaitError reports a readiness wait failure other than timeout or
// interruption. It ends the event loop.
type WaitError struct {
	Err error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("wait: %v", e.Err)
}

func (e *WaitError) Unwrap() error { return e.Err }

// ArgumentError reports invalid command line or configuration input.
type ArgumentError struct {
	Arg string
	Msg string
}

func (e *ArgumentError) Error() string {
	if e.Arg == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Arg, e.Msg)
}

// Is lets errors.Is(err, syscall.EINVAL) match argument errors.
func (e *ArgumentError) Is(target error) bool {
	return target == syscall.EINVAL
}

// ExitCode maps err onto a process exit status. nil is 0; a wrapped
// errno yields its numeric value; argument errors yield EINVAL; anything
// else yields 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var argErr *ArgumentError
	if errors.As(err, &argErr) {
		return int(syscall.EINVAL)
	}
	var errno syscall.Errno
	if errors.As(err, &errno) && errno != 0 {
		return int(errno) & 0xff
	}
	return 1
}

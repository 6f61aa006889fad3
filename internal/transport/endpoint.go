//go:build unix

// File: internal/transport/endpoint.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Descriptor-backed api.Endpoint with single-syscall reads and writes.

package transport

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-relay/api"
)

// fdEndpoint implements api.Endpoint over a blocking descriptor.
type fdEndpoint struct {
	fd       int
	identity string
	local    bool
	closed   bool
	file     *os.File // keeps a wrapped *os.File from being finalized
}

// NewEndpoint wraps an owned descriptor. Local endpoints are never closed.
func NewEndpoint(fd int, identity string, local bool) api.Endpoint {
	return &fdEndpoint{fd: fd, identity: identity, local: local}
}

// Stdin returns the process's standard input as a local endpoint.
func Stdin() api.Endpoint {
	return NewEndpoint(unix.Stdin, "stdin", true)
}

// Stdout returns the process's standard output as a local endpoint.
func Stdout() api.Endpoint {
	return NewEndpoint(unix.Stdout, "stdout", true)
}

// LocalFile wraps f as a local endpoint. The caller keeps ownership of f.
func LocalFile(f *os.File) api.Endpoint {
	return &fdEndpoint{fd: int(f.Fd()), identity: f.Name(), local: true, file: f}
}

func (e *fdEndpoint) Fd() int          { return e.fd }
func (e *fdEndpoint) Identity() string { return e.identity }
func (e *fdEndpoint) Local() bool      { return e.local }

func (e *fdEndpoint) Read(p []byte) (int, error) {
	if e.closed {
		return 0, api.ErrClosed
	}
	for {
		n, err := unix.Read(e.fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

func (e *fdEndpoint) Write(p []byte) (int, error) {
	if e.closed {
		return 0, api.ErrClosed
	}
	for {
		n, err := unix.Write(e.fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

// Close closes the descriptor once. Local endpoints ignore Close.
func (e *fdEndpoint) Close() error {
	if e.local || e.closed {
		return nil
	}
	e.closed = true
	return unix.Close(e.fd)
}

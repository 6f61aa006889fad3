//go:build unix

// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing the relay.
// Endpoints are real socketpair descriptors so that the poll reactor can
// wait on them; faults are injected by wrapping.

package fake

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-relay/api"
	"github.com/momentics/hioload-relay/internal/transport"
)

// NewStreamPair returns two connected stream endpoints named a and b.
func NewStreamPair(a, b string) (api.Endpoint, api.Endpoint, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, err
	}
	return transport.NewEndpoint(fds[0], a, false), transport.NewEndpoint(fds[1], b, false), nil
}

// LocalEnd stands in for one of the process's standard streams. The relay
// sees it as local and cannot close it; tests call Discard when done.
type LocalEnd struct {
	api.Endpoint
}

func (l *LocalEnd) Local() bool  { return true }
func (l *LocalEnd) Close() error { return nil }

// Discard closes the underlying descriptor.
func (l *LocalEnd) Discard() error { return l.Endpoint.Close() }

// NewLocalPair returns a local endpoint for the relay and the test-side
// endpoint connected to it.
func NewLocalPair(name string) (*LocalEnd, api.Endpoint, error) {
	relaySide, testSide, err := NewStreamPair(name, name+"-test")
	if err != nil {
		return nil, nil, err
	}
	return &LocalEnd{Endpoint: relaySide}, testSide, nil
}

// Faulty wraps an endpoint and injects write failures.
type Faulty struct {
	api.Endpoint

	// WriteErr, when set, is returned by every Write without writing.
	WriteErr error
	// Short makes every Write of more than one byte deliver one byte less.
	Short bool
	// ReadErr, when set, is returned by the next Read without reading and
	// then cleared.
	ReadErr error

	Writes int
	Closed bool
}

func (f *Faulty) Write(p []byte) (int, error) {
	f.Writes++
	if f.WriteErr != nil {
		return 0, f.WriteErr
	}
	if f.Short && len(p) > 1 {
		return f.Endpoint.Write(p[:len(p)-1])
	}
	return f.Endpoint.Write(p)
}

func (f *Faulty) Read(p []byte) (int, error) {
	if err := f.ReadErr; err != nil {
		f.ReadErr = nil
		return 0, err
	}
	return f.Endpoint.Read(p)
}

// Close closes the wrapped endpoint once and records it.
func (f *Faulty) Close() error {
	if f.Closed {
		return nil
	}
	f.Closed = true
	return f.Endpoint.Close()
}

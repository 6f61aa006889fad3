//go:build !unix

// File: internal/transport/endpoint_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub endpoints for platforms without descriptor-based stdio.

package transport

import (
	"os"

	"github.com/momentics/hioload-relay/api"
)

// unsupportedEndpoint keeps the facade buildable; every operation fails.
type unsupportedEndpoint struct {
	identity string
	local    bool
}

// NewEndpoint returns an endpoint whose reads and writes fail with
// api.ErrNotSupported.
func NewEndpoint(fd int, identity string, local bool) api.Endpoint {
	return &unsupportedEndpoint{identity: identity, local: local}
}

// Stdin returns an unsupported local endpoint.
func Stdin() api.Endpoint { return NewEndpoint(-1, "stdin", true) }

// Stdout returns an unsupported local endpoint.
func Stdout() api.Endpoint { return NewEndpoint(-1, "stdout", true) }

// LocalFile returns an unsupported local endpoint named after f.
func LocalFile(f *os.File) api.Endpoint { return NewEndpoint(-1, f.Name(), true) }

func (e *unsupportedEndpoint) Fd() int                   { return -1 }
func (e *unsupportedEndpoint) Identity() string          { return e.identity }
func (e *unsupportedEndpoint) Local() bool               { return e.local }
func (e *unsupportedEndpoint) Read([]byte) (int, error)  { return 0, api.ErrNotSupported }
func (e *unsupportedEndpoint) Write([]byte) (int, error) { return 0, api.ErrNotSupported }
func (e *unsupportedEndpoint) Close() error              { return nil }

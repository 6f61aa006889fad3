// File: internal/session/pipe.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pipe is the splice unit: one directed forwarding relationship between two
// endpoints, optionally linked to its mirror.

package session

import (
	"container/list"
	"io"

	"go.uber.org/multierr"

	"github.com/momentics/hioload-relay/api"
	"github.com/momentics/hioload-relay/internal/concurrency"
)

// Pipe forwards bytes from Source to Destination.
type Pipe struct {
	Source      api.Endpoint
	Destination api.Endpoint

	// Reverse is the mirror pipe of a bidirectional relay, if any.
	Reverse *Pipe

	// Owner is the event whose release accompanies this pipe's teardown.
	// Zero means no owning event.
	Owner concurrency.EventID

	elem     *list.Element // position in the owning Registry
	released bool
}

// NewPipe creates an unlinked pipe.
func NewPipe(src, dst api.Endpoint) *Pipe {
	return &Pipe{Source: src, Destination: dst}
}

// Pair links p and r as each other's reverse.
func Pair(p, r *Pipe) {
	p.Reverse = r
	r.Reverse = p
}

// String describes the pipe direction.
func (p *Pipe) String() string {
	return p.Source.Identity() + " -> " + p.Destination.Identity()
}

// Registered reports whether p is currently in a registry.
func (p *Pipe) Registered() bool { return p.elem != nil }

// Released reports whether p's endpoints have been released.
func (p *Pipe) Released() bool { return p.released }

// Splice performs one bounded read from Source and one write to
// Destination using buf, truncated to api.ChunkSize. It returns io.EOF
// when nothing was read and a TransientIOError when either syscall fails
// or the write is short. Short writes are not retried.
func Splice(p *Pipe, buf []byte) (int, error) {
	if len(buf) > api.ChunkSize {
		buf = buf[:api.ChunkSize]
	}
	nr, err := p.Source.Read(buf)
	if err != nil {
		return 0, &api.TransientIOError{Op: "read", Addr: p.Source.Identity(), Err: err}
	}
	if nr == 0 {
		return 0, io.EOF
	}
	nw, err := p.Destination.Write(buf[:nr])
	if err != nil {
		return nw, &api.TransientIOError{Op: "write", Addr: p.Destination.Identity(), Err: err}
	}
	if nw != nr {
		return nw, &api.TransientIOError{Op: "write", Addr: p.Destination.Identity(), Err: api.ErrShortWrite}
	}
	return nw, nil
}

// Release closes both endpoints, skipping local ones. Releasing twice is
// a no-op.
func Release(p *Pipe) error {
	if p.released {
		return nil
	}
	p.released = true
	var err error
	if !p.Source.Local() {
		err = multierr.Append(err, p.Source.Close())
	}
	if !p.Destination.Local() {
		err = multierr.Append(err, p.Destination.Close())
	}
	return err
}

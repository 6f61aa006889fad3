// File: internal/session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Session ties a pipe registry to the event loop that owns the pipes'
// events, and implements paired teardown.

package session

import (
	"errors"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/hioload-relay/internal/concurrency"
	"github.com/momentics/hioload-relay/internal/transport"
)

// Session is the per-run pipe registry.
type Session struct {
	pipes  Registry
	events concurrency.Releaser
	log    *zap.Logger

	teardowns int
}

// New creates an empty session whose pipe owners are released via events.
func New(events concurrency.Releaser, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{events: events, log: log}
}

// Pipes exposes the registry.
func (s *Session) Pipes() *Registry { return &s.pipes }

// Len returns the number of registered pipes.
func (s *Session) Len() int { return s.pipes.Len() }

// Teardowns returns how many paired teardowns have run.
func (s *Session) Teardowns() int { return s.teardowns }

// Add registers pipes in order.
func (s *Session) Add(pipes ...*Pipe) {
	for _, p := range pipes {
		s.pipes.Add(p)
	}
}

// Forward splices once through p and tears the pair down on EOF or
// failure. It returns the splice result.
func (s *Session) Forward(p *Pipe, buf []byte) (int, error) {
	n, err := Splice(p, buf)
	if err == nil && n > 0 {
		return n, nil
	}
	s.logTeardown(p, err)
	s.Teardown(p)
	return n, err
}

// Teardown removes p and its reverse from the registry, flags their
// owning events for release, and releases both pipes. Pipes already torn
// down are skipped.
func (s *Session) Teardown(p *Pipe) {
	if p.released && !p.Registered() {
		return
	}
	s.teardowns++
	for _, q := range []*Pipe{p, p.Reverse} {
		if q == nil {
			continue
		}
		s.pipes.Remove(q)
		if q.Owner != 0 && s.events != nil {
			s.events.Release(q.Owner)
		}
		if err := Release(q); err != nil {
			s.log.Warn("pipe release failed", zap.Stringer("pipe", q), zap.Error(err))
		}
	}
}

// Flush releases every remaining pipe. Used once the loop has stopped.
func (s *Session) Flush() error {
	var err error
	for _, p := range s.pipes.Pipes() {
		s.pipes.Remove(p)
		err = multierr.Append(err, Release(p))
	}
	return err
}

func (s *Session) logTeardown(p *Pipe, err error) {
	switch {
	case err == nil, errors.Is(err, io.EOF):
		s.log.Debug("pipe reached end of stream", zap.Stringer("pipe", p))
	case transport.IsExpectedClose(err):
		s.log.Debug("pipe closed by peer", zap.Stringer("pipe", p), zap.Error(err))
	default:
		s.log.Warn("pipe failed", zap.Stringer("pipe", p), zap.Error(err))
	}
}

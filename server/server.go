// File: server/server.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server mode: listen on one port, accept any number of peers, forward
// every peer's output to local output and broadcast local input to every
// peer.

package server

import (
	"context"
	"errors"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/hioload-relay/api"
	"github.com/momentics/hioload-relay/control"
	"github.com/momentics/hioload-relay/internal/concurrency"
	"github.com/momentics/hioload-relay/internal/session"
	"github.com/momentics/hioload-relay/reactor"
)

// ErrAlreadyOpen is returned by Open on a server that is not idle.
var ErrAlreadyOpen = errors.New("server already open")

// Server is the accepting, broadcasting relay.
type Server struct {
	transport api.Transport
	stdin     api.Endpoint
	stdout    api.Endpoint

	poller  api.Poller
	idle    time.Duration
	cpu     int
	log     *zap.Logger
	metrics *control.Metrics

	state       api.State
	listener    api.Listener
	loop        *concurrency.EventLoop
	session     *session.Session
	broadcastID concurrency.EventID
	acceptID    concurrency.EventID

	buf [api.ChunkSize]byte
}

// New builds an idle server relaying between stdin, stdout and the peers
// accepted through t.
func New(t api.Transport, stdin, stdout api.Endpoint, opts ...Option) *Server {
	s := &Server{
		transport: t,
		stdin:     stdin,
		stdout:    stdout,
		idle:      reactor.DefaultIdleTimeout,
		cpu:       -1,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Serve listens on port and relays until ctx is done or a readiness wait
// fails. Listen failures are returned before any event is registered.
func (s *Server) Serve(ctx context.Context, port uint32) error {
	if err := s.Open(port); err != nil {
		return err
	}
	err := s.loop.Run(ctx, concurrency.RunForever)
	return multierr.Append(err, s.Close())
}

// Open listens on port and registers the broadcast and accept events.
func (s *Server) Open(port uint32) error {
	if s.state != api.StateIdle {
		return ErrAlreadyOpen
	}
	if s.poller == nil {
		p, err := reactor.NewPoller()
		if err != nil {
			return err
		}
		s.poller = p
	}
	s.setState(api.StateOpen)

	l, err := s.transport.Listen(port)
	if err != nil {
		s.log.Error("listen failed", zap.String("transport", s.transport.Name()), zap.Uint32("port", port), zap.Error(err))
		s.setState(api.StateClosed)
		return err
	}
	s.listener = l
	s.loop = concurrency.NewEventLoop(s.poller,
		concurrency.WithLogger(s.log),
		concurrency.WithIdleTimeout(s.idle),
		concurrency.WithCPU(s.cpu))
	s.session = session.New(s.loop, s.log)

	s.broadcastID = s.loop.Register(s.stdin, "broadcast", s.broadcast)
	s.acceptID = s.loop.Register(l, "accept", s.accept)
	s.log.Info("listening", zap.String("transport", s.transport.Name()), zap.Stringer("addr", l.Addr()))
	s.setState(api.StateRelaying)
	return nil
}

// Poll runs one dispatch pass.
func (s *Server) Poll() error {
	if s.state != api.StateRelaying {
		return api.ErrClosed
	}
	return s.loop.RunOnce()
}

// Close releases every peer and the listener. Local streams stay open.
func (s *Server) Close() error {
	if s.state != api.StateRelaying {
		return nil
	}
	s.setState(api.StateDraining)
	for i := s.Clients(); i > 0; i-- {
		s.metrics.Teardown(true)
	}
	err := s.session.Flush()
	s.loop.Flush()
	err = multierr.Append(err, s.listener.Close())
	s.setState(api.StateClosed)
	return err
}

// State returns the lifecycle state.
func (s *Server) State() api.State { return s.state }

// Addr returns the bound address once open.
func (s *Server) Addr() api.PeerAddr {
	if s.listener == nil {
		return api.PeerAddr{}
	}
	return s.listener.Addr()
}

// Clients returns the number of connected peers.
func (s *Server) Clients() int {
	if s.session == nil {
		return 0
	}
	return s.session.Len() / 2
}

// Session exposes the pipe registry.
func (s *Server) Session() *session.Session { return s.session }

// Loop exposes the event loop.
func (s *Server) Loop() *concurrency.EventLoop { return s.loop }

// Broadcasting reports whether local input is still being read.
func (s *Server) Broadcasting() bool {
	if s.loop == nil {
		return false
	}
	ev, ok := s.loop.Lookup(s.broadcastID)
	return ok && !ev.PendingRelease()
}

func (s *Server) setState(next api.State) {
	s.log.Info("state", zap.Stringer("from", s.state), zap.Stringer("to", next))
	s.state = next
}

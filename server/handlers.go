// File: server/handlers.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Event handlers of server mode.

package server

import (
	"errors"
	"io"
	"syscall"

	"go.uber.org/zap"

	"github.com/momentics/hioload-relay/api"
	"github.com/momentics/hioload-relay/control"
	"github.com/momentics/hioload-relay/internal/concurrency"
	"github.com/momentics/hioload-relay/internal/session"
)

// accept takes one pending connection and links it both ways: peer to
// local output, local input to peer. Both pipes are owned by the peer's
// splice event.
func (s *Server) accept(_ *concurrency.Event) error {
	peer, addr, err := s.listener.Accept()
	if err != nil {
		s.metrics.AcceptError()
		s.log.Warn("accept failed",
			zap.String("op", "accept"), zap.Stringer("addr", s.listener.Addr()), zap.Error(err))
		return err
	}

	in := session.NewPipe(peer, s.stdout)
	out := session.NewPipe(s.stdin, peer)
	session.Pair(in, out)
	id := s.loop.Register(peer, "peer "+addr.String(), func(*concurrency.Event) error {
		return s.forward(in)
	})
	in.Owner, out.Owner = id, id
	s.session.Add(in, out)

	s.metrics.Accepted()
	s.log.Info("peer connected", zap.Stringer("addr", addr), zap.Int("clients", s.Clients()))
	return nil
}

// forward moves one chunk of peer output to local output.
func (s *Server) forward(in *session.Pipe) error {
	n, err := s.session.Forward(in, s.buf[:])
	if err != nil {
		s.metrics.Teardown(true)
		s.log.Info("peer disconnected", zap.String("addr", in.Source.Identity()), zap.Int("clients", s.Clients()))
		return err
	}
	s.metrics.Spliced(control.DirectionInbound, n)
	return nil
}

// broadcast reads one chunk of local input and writes it to every peer.
// With no peers the chunk is dropped. A failed or short write tears that
// peer down; the rest still receive the chunk.
func (s *Server) broadcast(ev *concurrency.Event) error {
	n, err := s.stdin.Read(s.buf[:])
	if err == nil && n == 0 {
		err = io.EOF
	}
	if err != nil {
		if !inputGone(err) {
			s.log.Warn("local input read failed",
				zap.String("op", "read"), zap.String("addr", s.stdin.Identity()), zap.Error(err))
			return &api.TransientIOError{Op: "read", Addr: s.stdin.Identity(), Err: err}
		}
		// A closed input stays readable forever; stop watching it.
		s.loop.Release(ev.ID())
		s.log.Info("local input closed",
			zap.String("op", "read"), zap.String("addr", s.stdin.Identity()), zap.Error(err))
		return err
	}
	s.metrics.BroadcastChunk()

	chunk := s.buf[:n]
	if s.session.Len() == 0 {
		s.log.Debug("no peers, chunk dropped", zap.Int("bytes", n))
		return nil
	}
	s.session.Pipes().Walk(func(p *session.Pipe) bool {
		if p.Destination.Local() {
			return false
		}
		nw, err := p.Destination.Write(chunk)
		if err == nil && nw == n {
			s.metrics.Delivered(n)
			return false
		}
		if err == nil {
			err = api.ErrShortWrite
		}
		s.metrics.DeliveryFailed()
		s.log.Warn("broadcast delivery failed",
			zap.String("op", "write"), zap.String("addr", p.Destination.Identity()),
			zap.Int("written", nw), zap.Int("chunk", n), zap.Error(err))
		return true
	}, func(p *session.Pipe) {
		s.session.Teardown(p)
		s.metrics.Teardown(true)
	})
	return nil
}

// inputGone reports whether a local input read error will never clear.
func inputGone(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, api.ErrClosed) ||
		errors.Is(err, syscall.EBADF) || errors.Is(err, syscall.EIO)
}

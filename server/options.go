// File: server/options.go
// Package server defines functional options for the relay Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-relay/api"
	"github.com/momentics/hioload-relay/control"
)

// Option customizes server initialization.
type Option func(*Server)

// WithLogger sets the server logger. Child loggers are derived from it.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log.Named("server")
		}
	}
}

// WithIdleTimeout bounds each readiness wait.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.idle = d
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *control.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithPoller overrides the readiness multiplexer.
func WithPoller(p api.Poller) Option {
	return func(s *Server) {
		s.poller = p
	}
}

// WithCPU pins the event loop thread to cpu. Negative disables pinning.
func WithCPU(cpu int) Option {
	return func(s *Server) { s.cpu = cpu }
}

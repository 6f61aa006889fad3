// File: client/options.go
// Package client defines functional options for the relay Client.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-relay/api"
	"github.com/momentics/hioload-relay/control"
)

// Option customizes client initialization.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log.Named("client")
		}
	}
}

// WithIdleTimeout bounds each readiness wait.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Client) { c.idle = d }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *control.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithPoller overrides the readiness multiplexer.
func WithPoller(p api.Poller) Option {
	return func(c *Client) { c.poller = p }
}

// WithCPU pins the event loop thread to cpu. Negative disables pinning.
func WithCPU(cpu int) Option {
	return func(c *Client) { c.cpu = cpu }
}

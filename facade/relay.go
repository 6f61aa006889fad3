// File: facade/relay.go
// Unified facade layer for the relay.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Relay is the composition root: it turns a validated control.Config into
// a transport, optional metrics exposition, and a server or client run.

package facade

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/momentics/hioload-relay/api"
	"github.com/momentics/hioload-relay/client"
	"github.com/momentics/hioload-relay/control"
	"github.com/momentics/hioload-relay/internal/transport"
	"github.com/momentics/hioload-relay/server"
)

// Option customizes a Relay.
type Option func(*Relay)

// WithLogger sets the root logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Relay) {
		if log != nil {
			r.log = log
		}
	}
}

// WithStdio replaces the process's standard streams.
func WithStdio(stdin, stdout api.Endpoint) Option {
	return func(r *Relay) {
		r.stdin, r.stdout = stdin, stdout
	}
}

// WithTransport replaces the transport selected by the config.
func WithTransport(t api.Transport) Option {
	return func(r *Relay) {
		r.transport = t
	}
}

// WithRegistry sets the Prometheus registry metrics are recorded on.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(r *Relay) {
		r.registry = reg
	}
}

// Relay runs one configured relay session.
type Relay struct {
	cfg       *control.Config
	log       *zap.Logger
	transport api.Transport
	stdin     api.Endpoint
	stdout    api.Endpoint
	registry  *prometheus.Registry
	metrics   *control.Metrics
}

// New validates cfg and assembles its components.
func New(cfg *control.Config, opts ...Option) (*Relay, error) {
	if cfg == nil {
		cfg = control.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Relay{cfg: cfg, log: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	if r.transport == nil {
		topts := cfg.TransportOptions()
		topts.Logger = r.log
		t, err := transport.New(cfg.Transport, topts)
		if err != nil {
			return nil, err
		}
		r.transport = t
	}
	if r.stdin == nil {
		r.stdin = transport.Stdin()
	}
	if r.stdout == nil {
		r.stdout = transport.Stdout()
	}
	if r.registry == nil {
		r.registry = prometheus.NewRegistry()
		r.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	r.metrics = control.NewMetrics(r.registry)
	return r, nil
}

// Metrics returns the relay's collectors.
func (r *Relay) Metrics() *control.Metrics { return r.metrics }

// Run relays until the mode finishes or ctx is done. Cancellation is a
// clean stop and yields nil.
func (r *Relay) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if r.cfg.MetricsListen != "" {
		go func() {
			if err := control.ServeMetrics(ctx, r.cfg.MetricsListen, r.registry, r.log); err != nil {
				r.log.Warn("metrics endpoint failed", zap.String("addr", r.cfg.MetricsListen), zap.Error(err))
			}
		}()
	}

	r.log.Info("relay starting",
		zap.String("mode", string(r.cfg.Mode())),
		zap.String("transport", r.transport.Name()),
		zap.Duration("idle_timeout", r.cfg.IdleTimeout))

	var err error
	switch r.cfg.Mode() {
	case api.ModeServer:
		srv := server.New(r.transport, r.stdin, r.stdout,
			server.WithLogger(r.log),
			server.WithIdleTimeout(r.cfg.IdleTimeout),
			server.WithMetrics(r.metrics),
			server.WithCPU(r.cfg.CPU))
		err = srv.Serve(ctx, r.cfg.Port)
	default:
		cl := client.New(r.transport, r.stdin, r.stdout,
			client.WithLogger(r.log),
			client.WithIdleTimeout(r.cfg.IdleTimeout),
			client.WithMetrics(r.metrics),
			client.WithCPU(r.cfg.CPU))
		err = cl.Run(ctx, r.cfg.Peer())
	}
	if errors.Is(err, context.Canceled) {
		r.log.Info("relay stopped")
		return nil
	}
	return err
}

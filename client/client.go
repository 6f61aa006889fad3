// File: client/client.go
// Package client
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Client mode: connect to one peer and bridge it with the local streams
// until either direction ends. Local input goes to the peer, peer output
// goes to local output.

package client

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

// ErrAlreadyOpen is returned by Open on a client that is not idle.
var ErrAlreadyOpen = errors.New("client already open")

// Client is the single-peer bridge.
type Client struct {
	transport api.Transport
	stdin     api.Endpoint
	stdout    api.Endpoint

	poller  api.Poller
	idle    time.Duration
	cpu     int
	log     *zap.Logger
	metrics *control.Metrics

	state   api.State
	peer    api.PeerAddr
	loop    *concurrency.EventLoop
	session *session.Session

	buf [api.ChunkSize]byte
}

// New builds an idle client bridging stdin and stdout to a peer reached
// through t.
func New(t api.Transport, stdin, stdout api.Endpoint, opts ...Option) *Client {
	c := &Client{
		transport: t,
		stdin:     stdin,
		stdout:    stdout,
		idle:      reactor.DefaultIdleTimeout,
		cpu:       -1,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run connects to peer and relays until both directions are torn down,
// ctx is done, or a readiness wait fails. A connect failure is returned
// without entering the loop.
func (c *Client) Run(ctx context.Context, peer api.PeerAddr) error {
	if err := c.Open(peer); err != nil {
		return err
	}
	err := c.loop.Run(ctx, concurrency.RunUntilEmpty)
	return multierr.Append(err, c.Close())
}

// Open connects to peer and registers one splice event per direction.
func (c *Client) Open(peer api.PeerAddr) error {
	if c.state != api.StateIdle {
		return ErrAlreadyOpen
	}
	if c.poller == nil {
		p, err := reactor.NewPoller()
		if err != nil {
			return err
		}
		c.poller = p
	}
	c.peer = peer
	c.setState(api.StateOpen)

	remote, err := c.transport.Connect(peer)
	if err != nil {
		c.log.Error("connect failed", zap.String("transport", c.transport.Name()), zap.Stringer("addr", peer), zap.Error(err))
		c.setState(api.StateClosed)
		return err
	}
	c.loop = concurrency.NewEventLoop(c.poller,
		concurrency.WithLogger(c.log),
		concurrency.WithIdleTimeout(c.idle),
		concurrency.WithCPU(c.cpu))
	c.session = session.New(c.loop, c.log)

	in := session.NewPipe(remote, c.stdout)
	out := session.NewPipe(c.stdin, remote)
	session.Pair(in, out)
	in.Owner = c.loop.Register(remote, "remote "+peer.String(), func(*concurrency.Event) error {
		return c.forward(in, control.DirectionInbound)
	})
	out.Owner = c.loop.Register(c.stdin, "local "+c.stdin.Identity(), func(*concurrency.Event) error {
		return c.forward(out, control.DirectionOutbound)
	})
	c.session.Add(in, out)

	c.log.Info("connected", zap.String("transport", c.transport.Name()), zap.Stringer("addr", peer))
	c.setState(api.StateRelaying)
	return nil
}

// Poll runs one dispatch pass.
func (c *Client) Poll() error {
	if c.state != api.StateRelaying {
		return api.ErrClosed
	}
	return c.loop.RunOnce()
}

// Done reports whether the bridge has been torn down.
func (c *Client) Done() bool {
	return c.loop == nil || c.loop.Len() == 0
}

// Close releases whatever is left of the bridge.
func (c *Client) Close() error {
	if c.state != api.StateRelaying {
		return nil
	}
	c.setState(api.StateDraining)
	err := c.session.Flush()
	c.loop.Flush()
	c.setState(api.StateClosed)
	return err
}

// State returns the lifecycle state.
func (c *Client) State() api.State { return c.state }

// Session exposes the pipe registry.
func (c *Client) Session() *session.Session { return c.session }

func (c *Client) forward(p *session.Pipe, direction string) error {
	n, err := c.session.Forward(p, c.buf[:])
	if err != nil {
		c.metrics.Teardown(false)
		c.log.Info("bridge closed", zap.String("direction", direction), zap.Stringer("addr", c.peer), zap.Error(err))
		return err
	}
	c.metrics.Spliced(direction, n)
	return nil
}

func (c *Client) setState(next api.State) {
	c.log.Info("state", zap.Stringer("from", c.state), zap.Stringer("to", next))
	c.state = next
}

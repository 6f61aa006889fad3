//go:build unix

// File: client/client_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-relay/api"
	"github.com/momentics/hioload-relay/client"
	"github.com/momentics/hioload-relay/fake"
	"github.com/momentics/hioload-relay/reactor"
)

var peer = api.PeerAddr{Domain: "3", Port: 5000}

type harness struct {
	cl         *client.Client
	tr         *fake.Transport
	stdinTest  api.Endpoint
	stdoutTest api.Endpoint
}

func newHarness(t *testing.T, opts ...client.Option) *harness {
	t.Helper()
	stdin, stdinTest, err := fake.NewLocalPair("stdin")
	require.NoError(t, err)
	stdout, stdoutTest, err := fake.NewLocalPair("stdout")
	require.NoError(t, err)
	t.Cleanup(func() {
		stdin.Discard()
		stdinTest.Close()
		stdout.Discard()
		stdoutTest.Close()
	})
	tr := fake.NewTransport()
	opts = append([]client.Option{client.WithIdleTimeout(20 * time.Millisecond)}, opts...)
	return &harness{
		cl:         client.New(tr, stdin, stdout, opts...),
		tr:         tr,
		stdinTest:  stdinTest,
		stdoutTest: stdoutTest,
	}
}

func readN(t *testing.T, ep api.Endpoint, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	_, err := io.ReadFull(ep, buf)
	require.NoError(t, err)
	return buf
}

func TestBridgeBothDirections(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.cl.Open(peer))
	defer h.cl.Close()
	remote := h.tr.Remote(0)

	_, err := h.stdinTest.Write([]byte("up"))
	require.NoError(t, err)
	require.NoError(t, h.cl.Poll())
	assert.Equal(t, "up", string(readN(t, remote, 2)))

	_, err = remote.Write([]byte("down"))
	require.NoError(t, err)
	require.NoError(t, h.cl.Poll())
	assert.Equal(t, "down", string(readN(t, h.stdoutTest, 4)))
	assert.Equal(t, 2, h.cl.Session().Len())
}

func TestConnectFailureNeverEntersLoop(t *testing.T) {
	inner, err := reactor.NewPoller()
	require.NoError(t, err)
	p := &fake.Poller{Inner: inner}
	h := newHarness(t, client.WithPoller(p))
	h.tr.ConnectErr = unix.ECONNREFUSED

	err = h.cl.Run(context.Background(), peer)
	var setup *api.SetupError
	require.ErrorAs(t, err, &setup)
	assert.Equal(t, "connect", setup.Op)
	assert.Equal(t, int(unix.ECONNREFUSED), api.ExitCode(err))
	assert.Equal(t, 0, p.Calls)
	assert.Equal(t, api.StateClosed, h.cl.State())
}

func TestRemoteCloseEndsRun(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.cl.Open(peer))
	remote := h.tr.Remote(0)

	_, err := remote.Write([]byte("last words"))
	require.NoError(t, err)
	require.NoError(t, remote.Close())

	for i := 0; i < 4 && !h.cl.Done(); i++ {
		require.NoError(t, h.cl.Poll())
	}
	assert.True(t, h.cl.Done())
	assert.Equal(t, 0, h.cl.Session().Len())
	assert.Equal(t, "last words", string(readN(t, h.stdoutTest, 10)))
	require.NoError(t, h.cl.Close())
	assert.Equal(t, api.StateClosed, h.cl.State())
}

func TestLocalEOFEndsRun(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.stdinTest.Close())

	err := h.cl.Run(context.Background(), peer)
	require.NoError(t, err)
	assert.Equal(t, api.StateClosed, h.cl.State())

	// The peer sees the connection closed.
	n, err := h.tr.Remote(0).Read(make([]byte, 1))
	assert.Equal(t, 0, n)
	assert.NoError(t, err)
}

func TestInputChunkedLosslessly(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.cl.Open(peer))
	defer h.cl.Close()
	remote := h.tr.Remote(0)

	payload := make([]byte, 3*api.ChunkSize+17)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	_, err := h.stdinTest.Write(payload)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, h.cl.Poll())
	}
	assert.Equal(t, payload, readN(t, remote, len(payload)))
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.cl.Run(ctx, peer)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, api.StateClosed, h.cl.State())
	assert.True(t, h.cl.Done())
}

func TestWaitFailureEndsRun(t *testing.T) {
	inner, err := reactor.NewPoller()
	require.NoError(t, err)
	h := newHarness(t, client.WithPoller(&fake.Poller{Inner: inner, FailAt: 1, Err: unix.EINVAL}))

	err = h.cl.Run(context.Background(), peer)
	var waitErr *api.WaitError
	require.ErrorAs(t, err, &waitErr)
}

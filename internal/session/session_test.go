//go:build unix

// File: internal/session/session_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package session_test

import (
	"errors"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-relay/api"
	"github.com/momentics/hioload-relay/fake"
	"github.com/momentics/hioload-relay/internal/concurrency"
	"github.com/momentics/hioload-relay/internal/session"
)

type releaseLog struct {
	ids []concurrency.EventID
}

func (r *releaseLog) Release(id concurrency.EventID) { r.ids = append(r.ids, id) }

func streamPair(t *testing.T, a, b string) (api.Endpoint, api.Endpoint) {
	t.Helper()
	x, y, err := fake.NewStreamPair(a, b)
	require.NoError(t, err)
	t.Cleanup(func() {
		x.Close()
		y.Close()
	})
	return x, y
}

func TestSpliceForwardsOneChunk(t *testing.T) {
	srcRelay, srcTest := streamPair(t, "src", "src-test")
	dstRelay, dstTest := streamPair(t, "dst", "dst-test")

	payload := make([]byte, 3000)
	for i := range payload {
		payload[i] = byte(i)
	}
	_, err := srcTest.Write(payload)
	require.NoError(t, err)

	p := session.NewPipe(srcRelay, dstRelay)
	buf := make([]byte, 4096)
	n, err := session.Splice(p, buf)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, api.ChunkSize)

	got := make([]byte, n)
	_, err = io.ReadFull(dstTest, got)
	require.NoError(t, err)
	assert.Equal(t, payload[:n], got)
}

func TestSpliceEOF(t *testing.T) {
	srcRelay, srcTest := streamPair(t, "src", "src-test")
	dstRelay, _ := streamPair(t, "dst", "dst-test")
	require.NoError(t, srcTest.Close())

	_, err := session.Splice(session.NewPipe(srcRelay, dstRelay), make([]byte, api.ChunkSize))
	assert.ErrorIs(t, err, io.EOF)
}

func TestSpliceShortWriteIsFailure(t *testing.T) {
	srcRelay, srcTest := streamPair(t, "src", "src-test")
	dstRelay, _ := streamPair(t, "dst", "dst-test")
	_, err := srcTest.Write([]byte("hello"))
	require.NoError(t, err)

	dst := &fake.Faulty{Endpoint: dstRelay, Short: true}
	n, err := session.Splice(session.NewPipe(srcRelay, dst), make([]byte, api.ChunkSize))
	assert.Equal(t, 4, n)
	assert.ErrorIs(t, err, api.ErrShortWrite)

	var tio *api.TransientIOError
	require.True(t, errors.As(err, &tio))
	assert.Equal(t, "write", tio.Op)
}

func TestSpliceWriteError(t *testing.T) {
	srcRelay, srcTest := streamPair(t, "src", "src-test")
	dstRelay, _ := streamPair(t, "dst", "dst-test")
	_, err := srcTest.Write([]byte("x"))
	require.NoError(t, err)

	dst := &fake.Faulty{Endpoint: dstRelay, WriteErr: syscall.EPIPE}
	_, err = session.Splice(session.NewPipe(srcRelay, dst), make([]byte, api.ChunkSize))
	assert.ErrorIs(t, err, syscall.EPIPE)
}

func TestReleaseSkipsLocalEndpoints(t *testing.T) {
	local, localTest, err := fake.NewLocalPair("stdout")
	require.NoError(t, err)
	defer local.Discard()
	defer localTest.Close()

	peer, _ := streamPair(t, "peer", "peer-test")
	faultyPeer := &fake.Faulty{Endpoint: peer}

	p := session.NewPipe(faultyPeer, local)
	require.NoError(t, session.Release(p))
	require.NoError(t, session.Release(p))
	assert.True(t, p.Released())
	assert.True(t, faultyPeer.Closed)

	// The local stream must still be writable.
	_, err = local.Write([]byte("ok"))
	assert.NoError(t, err)
}

func TestRegistryWalkSkipsAdjacentReverse(t *testing.T) {
	ends := make([]api.Endpoint, 6)
	for i := 0; i < 6; i += 2 {
		ends[i], ends[i+1] = streamPair(t, "a", "b")
	}
	var reg session.Registry
	p1 := session.NewPipe(ends[0], ends[1])
	r1 := session.NewPipe(ends[1], ends[0])
	session.Pair(p1, r1)
	p2 := session.NewPipe(ends[2], ends[3])
	r2 := session.NewPipe(ends[3], ends[2])
	session.Pair(p2, r2)
	solo := session.NewPipe(ends[4], ends[5])
	for _, p := range []*session.Pipe{p1, r1, p2, r2, solo} {
		reg.Add(p)
	}

	var visited []*session.Pipe
	reg.Walk(func(p *session.Pipe) bool {
		visited = append(visited, p)
		return p == p1
	}, func(p *session.Pipe) {
		reg.Remove(p)
		reg.Remove(p.Reverse)
	})

	assert.Equal(t, []*session.Pipe{p1, p2, r2, solo}, visited)
	assert.Equal(t, []*session.Pipe{p2, r2, solo}, reg.Pipes())
	assert.False(t, p1.Registered())
	assert.False(t, r1.Registered())
}

func TestRegistryAddRemoveIdempotent(t *testing.T) {
	a, b := streamPair(t, "a", "b")
	var reg session.Registry
	p := session.NewPipe(a, b)
	reg.Add(p)
	reg.Add(p)
	assert.Equal(t, 1, reg.Len())
	assert.True(t, reg.Remove(p))
	assert.False(t, reg.Remove(p))
	assert.Equal(t, 0, reg.Len())
}

func TestTeardownReleasesBothOwners(t *testing.T) {
	peer, peerTest := streamPair(t, "peer", "peer-test")
	local, localTest, err := fake.NewLocalPair("stdio")
	require.NoError(t, err)
	defer local.Discard()
	defer localTest.Close()

	events := &releaseLog{}
	s := session.New(events, nil)
	out := session.NewPipe(local, peer)
	in := session.NewPipe(peer, local)
	session.Pair(out, in)
	out.Owner, in.Owner = 1, 2
	s.Add(out, in)
	require.Equal(t, 2, s.Len())

	require.NoError(t, peerTest.Close())
	_, err = s.Forward(in, make([]byte, api.ChunkSize))
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, 0, s.Len())
	assert.ElementsMatch(t, []concurrency.EventID{1, 2}, events.ids)
	assert.True(t, out.Released())
	assert.True(t, in.Released())
	assert.Equal(t, 1, s.Teardowns())

	// Already torn down: no second teardown.
	s.Teardown(out)
	assert.Equal(t, 1, s.Teardowns())

	_, err = local.Write([]byte("still open"))
	assert.NoError(t, err)
}

func TestForwardKeepsPipeOnSuccess(t *testing.T) {
	srcRelay, srcTest := streamPair(t, "src", "src-test")
	dstRelay, dstTest := streamPair(t, "dst", "dst-test")
	s := session.New(&releaseLog{}, nil)
	p := session.NewPipe(srcRelay, dstRelay)
	s.Add(p)

	_, err := srcTest.Write([]byte("ping"))
	require.NoError(t, err)
	n, err := s.Forward(p, make([]byte, api.ChunkSize))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 1, s.Len())

	got := make([]byte, 4)
	_, err = io.ReadFull(dstTest, got)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(got))
}

func TestFlushReleasesRemaining(t *testing.T) {
	a, _ := streamPair(t, "a", "a-test")
	b, _ := streamPair(t, "b", "b-test")
	fa := &fake.Faulty{Endpoint: a}
	fb := &fake.Faulty{Endpoint: b}
	s := session.New(nil, nil)
	s.Add(session.NewPipe(fa, fb))

	require.NoError(t, s.Flush())
	assert.Equal(t, 0, s.Len())
	assert.True(t, fa.Closed)
	assert.True(t, fb.Closed)
}

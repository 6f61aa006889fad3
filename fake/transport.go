//go:build unix

// Package fake
// Author: momentics <momentics@gmail.com>
//
// Scripted api.Transport whose listener is driven by the test: Dial queues
// a connection and makes the listener readable, FailNextAccept queues an
// accept failure.

package fake

import (
	"fmt"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-relay/api"
)

// Transport is a fake api.Transport for testing.
type Transport struct {
	ListenErr  error
	ConnectErr error

	listener *Listener
	remotes  []api.Endpoint
}

// NewTransport creates a fake transport with no failures scripted.
func NewTransport() *Transport {
	return &Transport{}
}

func (t *Transport) Name() string { return "fake" }

// Listen implements api.Transport.Listen.
func (t *Transport) Listen(port uint32) (api.Listener, error) {
	addr := api.PeerAddr{Domain: "fake", Port: port}
	if t.ListenErr != nil {
		return nil, &api.SetupError{Op: "listen", Addr: addr.String(), Err: t.ListenErr}
	}
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, &api.SetupError{Op: "listen", Addr: addr.String(), Err: err}
	}
	t.listener = &Listener{addr: addr, signalR: fds[0], signalW: fds[1], pending: queue.New()}
	return t.listener, nil
}

// Connect implements api.Transport.Connect. The far end of each
// connection is kept for the test, see Remote.
func (t *Transport) Connect(peer api.PeerAddr) (api.Endpoint, error) {
	if t.ConnectErr != nil {
		return nil, &api.SetupError{Op: "connect", Addr: peer.String(), Err: t.ConnectErr}
	}
	local, remote, err := NewStreamPair(peer.String(), "remote-"+peer.String())
	if err != nil {
		return nil, &api.SetupError{Op: "connect", Addr: peer.String(), Err: err}
	}
	t.remotes = append(t.remotes, remote)
	return local, nil
}

// Listener returns the listener created by the last Listen.
func (t *Transport) Listener() *Listener { return t.listener }

// Remote returns the far end of the i-th Connect.
func (t *Transport) Remote(i int) api.Endpoint { return t.remotes[i] }

type pendingAccept struct {
	ep   api.Endpoint
	peer api.PeerAddr
	err  error
}

// Listener is a fake api.Listener. Readiness is signalled through a pipe.
type Listener struct {
	addr    api.PeerAddr
	signalR int
	signalW int
	pending *queue.Queue // pendingAccept
	dialed  int
	closed  bool
}

func (l *Listener) Fd() int            { return l.signalR }
func (l *Listener) Addr() api.PeerAddr { return l.addr }

// Dial queues an inbound connection and returns the client side.
func (l *Listener) Dial() (api.Endpoint, error) {
	return l.DialWrapped(nil)
}

// DialWrapped is Dial with the accepted side passed through wrap, which
// lets tests inject faults into one peer.
func (l *Listener) DialWrapped(wrap func(api.Endpoint) api.Endpoint) (api.Endpoint, error) {
	l.dialed++
	peer := api.PeerAddr{Domain: fmt.Sprintf("client%d", l.dialed), Port: l.addr.Port}
	serverSide, clientSide, err := NewStreamPair(peer.String(), "dialer-"+peer.String())
	if err != nil {
		return nil, err
	}
	if wrap != nil {
		serverSide = wrap(serverSide)
	}
	l.enqueue(pendingAccept{ep: serverSide, peer: peer})
	return clientSide, nil
}

// FailNextAccept queues an accept attempt that fails with err.
func (l *Listener) FailNextAccept(err error) {
	l.enqueue(pendingAccept{err: err})
}

func (l *Listener) enqueue(p pendingAccept) {
	l.pending.Add(p)
	_, _ = unix.Write(l.signalW, []byte{1})
}

// Accept implements api.Listener.Accept.
func (l *Listener) Accept() (api.Endpoint, api.PeerAddr, error) {
	if l.closed || l.pending.Length() == 0 {
		return nil, api.PeerAddr{}, &api.TransientIOError{Op: "accept", Addr: l.addr.String(), Err: unix.EAGAIN}
	}
	var b [1]byte
	_, _ = unix.Read(l.signalR, b[:])
	p := l.pending.Remove().(pendingAccept)
	if p.err != nil {
		return nil, api.PeerAddr{}, &api.TransientIOError{Op: "accept", Addr: l.addr.String(), Err: p.err}
	}
	return p.ep, p.peer, nil
}

// Close implements api.Listener.Close.
func (l *Listener) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	unix.Close(l.signalW)
	return unix.Close(l.signalR)
}

var _ api.Transport = (*Transport)(nil)
var _ api.Listener = (*Listener)(nil)
var _ api.Endpoint = (*LocalEnd)(nil)

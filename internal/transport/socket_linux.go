//go:build linux

// File: internal/transport/socket_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux stream sockets on raw descriptors: AF_VSOCK, AF_INET and AF_UNIX.

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-relay/api"
)

// listenBacklog allows a single outstanding connection.
const listenBacklog = 1

type socketTransport struct {
	name      string
	af        int
	bindHost  string
	socketDir string
	log       *zap.Logger
}

func newSocketTransport(name string, opts Options) (api.Transport, error) {
	t := &socketTransport{
		name:      name,
		bindHost:  opts.BindHost,
		socketDir: opts.SocketDir,
		log:       opts.Logger,
	}
	if t.log == nil {
		t.log = zap.NewNop()
	}
	t.log = t.log.Named("transport")
	switch name {
	case "", Vsock:
		t.name, t.af = Vsock, unix.AF_VSOCK
	case TCP:
		t.af = unix.AF_INET
	case Unix:
		t.af = unix.AF_UNIX
		if t.socketDir == "" {
			t.socketDir = os.TempDir()
		}
	}
	return t, nil
}

func (t *socketTransport) Name() string { return t.name }

// Listen binds to port and listens with a backlog of one.
func (t *socketTransport) Listen(port uint32) (api.Listener, error) {
	want := t.localAddr(port)
	fail := func(op string, err error) error {
		t.log.Error("listen failed", zap.String("op", op), zap.String("addr", want.String()), zap.Error(err))
		return &api.SetupError{Op: op, Addr: want.String(), Err: err}
	}

	sa, err := t.localSockaddr(port)
	if err != nil {
		return nil, fail("bind", err)
	}
	fd, err := unix.Socket(t.af, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fail("socket", err)
	}
	if t.af == unix.AF_INET {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fail("bind", err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return nil, fail("listen", err)
	}

	l := &socketListener{fd: fd, t: t, addr: want}
	if bound, err := unix.Getsockname(fd); err == nil {
		l.addr = t.peerOf(bound, want)
	}
	if t.af == unix.AF_UNIX {
		l.path = UnixSocketPath(t.socketDir, port)
	}
	t.log.Info("listening", zap.String("transport", t.name), zap.String("addr", l.addr.String()))
	return l, nil
}

// Connect opens a stream to peer. Failures are SetupErrors; there is no retry.
func (t *socketTransport) Connect(peer api.PeerAddr) (api.Endpoint, error) {
	fail := func(op string, err error) error {
		t.log.Error("connect failed", zap.String("op", op), zap.String("addr", peer.String()), zap.Error(err))
		return &api.SetupError{Op: op, Addr: peer.String(), Err: err}
	}

	sa, err := t.remoteSockaddr(peer)
	if err != nil {
		return nil, fail("resolve", err)
	}
	fd, err := unix.Socket(t.af, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fail("socket", err)
	}
	if err := unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fail("connect", err)
	}
	t.log.Info("connected", zap.String("transport", t.name), zap.String("addr", peer.String()))
	return NewEndpoint(fd, peer.String(), false), nil
}

func (t *socketTransport) localAddr(port uint32) api.PeerAddr {
	switch t.af {
	case unix.AF_INET:
		return api.PeerAddr{Domain: t.bindHost, Port: port}
	case unix.AF_UNIX:
		return api.PeerAddr{Domain: t.socketDir, Port: port}
	default:
		return api.PeerAddr{Port: port}
	}
}

func (t *socketTransport) localSockaddr(port uint32) (unix.Sockaddr, error) {
	switch t.af {
	case unix.AF_VSOCK:
		return &unix.SockaddrVM{CID: unix.VMADDR_CID_ANY, Port: port}, nil
	case unix.AF_INET:
		sa := &unix.SockaddrInet4{Port: int(port)}
		if t.bindHost != "" {
			ip := net.ParseIP(t.bindHost).To4()
			if ip == nil {
				return nil, fmt.Errorf("bind host %q is not an IPv4 address", t.bindHost)
			}
			copy(sa.Addr[:], ip)
		}
		return sa, nil
	default:
		return &unix.SockaddrUnix{Name: UnixSocketPath(t.socketDir, port)}, nil
	}
}

func (t *socketTransport) remoteSockaddr(peer api.PeerAddr) (unix.Sockaddr, error) {
	switch t.af {
	case unix.AF_VSOCK:
		cid, err := ParseCID(peer.Domain)
		if err != nil {
			return nil, err
		}
		return &unix.SockaddrVM{CID: cid, Port: peer.Port}, nil
	case unix.AF_INET:
		ip, err := resolveIPv4(peer.Domain)
		if err != nil {
			return nil, err
		}
		sa := &unix.SockaddrInet4{Port: int(peer.Port)}
		copy(sa.Addr[:], ip)
		return sa, nil
	default:
		dir := peer.Domain
		if dir == "" {
			dir = t.socketDir
		}
		return &unix.SockaddrUnix{Name: UnixSocketPath(dir, peer.Port)}, nil
	}
}

// peerOf converts a kernel address into a PeerAddr, falling back to
// fallback for unnamed unix peers.
func (t *socketTransport) peerOf(sa unix.Sockaddr, fallback api.PeerAddr) api.PeerAddr {
	switch a := sa.(type) {
	case *unix.SockaddrVM:
		return api.PeerAddr{Domain: strconv.FormatUint(uint64(a.CID), 10), Port: a.Port}
	case *unix.SockaddrInet4:
		return api.PeerAddr{Domain: net.IP(a.Addr[:]).String(), Port: uint32(a.Port)}
	default:
		return fallback
	}
}

func resolveIPv4(host string) (net.IP, error) {
	if host == "" {
		return net.IPv4(127, 0, 0, 1).To4(), nil
	}
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return nil, fmt.Errorf("%s is not an IPv4 address", host)
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(context.Background(), host)
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, fmt.Errorf("no IPv4 address for %s", host)
}

// socketListener is a bound, listening descriptor.
type socketListener struct {
	fd     int
	t      *socketTransport
	addr   api.PeerAddr
	path   string
	closed bool
}

func (l *socketListener) Fd() int            { return l.fd }
func (l *socketListener) Addr() api.PeerAddr { return l.addr }

// Accept takes one connection. Failures are transient and scoped to the
// attempt; the listener stays usable.
func (l *socketListener) Accept() (api.Endpoint, api.PeerAddr, error) {
	if l.closed {
		return nil, api.PeerAddr{}, &api.TransientIOError{Op: "accept", Addr: l.addr.String(), Err: api.ErrClosed}
	}
	var (
		nfd int
		sa  unix.Sockaddr
		err error
	)
	for {
		nfd, sa, err = unix.Accept4(l.fd, unix.SOCK_CLOEXEC)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		return nil, api.PeerAddr{}, &api.TransientIOError{Op: "accept", Addr: l.addr.String(), Err: err}
	}
	peer := l.t.peerOf(sa, api.PeerAddr{Domain: "unix", Port: l.addr.Port})
	return NewEndpoint(nfd, peer.String(), false), peer, nil
}

// Close stops listening and removes a unix socket file.
func (l *socketListener) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	err := unix.Close(l.fd)
	if l.path != "" {
		if rmErr := os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = multierr.Append(err, rmErr)
		}
	}
	return err
}

// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines the stream endpoint and transport abstraction used by the relay.
// Endpoints are raw OS descriptors so they can be multiplexed by the
// readiness reactor without going through Go's netpoller.

package api

import (
	"fmt"
	"strconv"
)

// ChunkSize is the upper bound of a single read or write on any relay pipe.
const ChunkSize = 1024

// Watchable is anything the reactor can wait on.
type Watchable interface {
	// Fd returns the underlying OS-level file descriptor.
	Fd() int
}

// Endpoint abstracts one end of a reliable, bidirectional byte stream.
type Endpoint interface {
	Watchable

	// Read performs exactly one read syscall into p.
	Read(p []byte) (n int, err error)

	// Write performs exactly one write syscall from p. Short writes are
	// reported as-is, never retried.
	Write(p []byte) (n int, err error)

	// Close releases the descriptor. Calling Close more than once is a no-op.
	Close() error

	// Identity names the endpoint for diagnostics (peer or bound address).
	Identity() string

	// Local reports whether the endpoint is one of the process's own
	// standard streams. Local endpoints are never closed by the relay.
	Local() bool
}

// Listener is a bound, listening stream socket.
type Listener interface {
	Watchable

	// Accept takes one pending connection off the backlog.
	Accept() (Endpoint, PeerAddr, error)

	// Addr returns the bound local address.
	Addr() PeerAddr

	// Close stops listening.
	Close() error
}

// Transport opens listeners and outbound streams over an
// address-addressable inter-partition transport.
type Transport interface {
	// Listen binds locally on port with a backlog of one.
	Listen(port uint32) (Listener, error)

	// Connect opens a stream to peer.
	Connect(peer PeerAddr) (Endpoint, error)

	// Name identifies the transport family ("vsock", "tcp", "unix").
	Name() string
}

// PeerAddr identifies a peer partition and port on a transport.
type PeerAddr struct {
	Domain string // vsock CID, IP address, hostname or socket directory
	Port   uint32
}

// String formats the address as domain:port.
func (a PeerAddr) String() string {
	if a.Domain == "" {
		return fmt.Sprintf("<any>:%d", a.Port)
	}
	return a.Domain + ":" + strconv.FormatUint(uint64(a.Port), 10)
}

// MinPort and MaxPort bound valid relay ports (0 and 65535 are rejected).
const (
	MinPort = 1
	MaxPort = 65534
)

// ValidPort reports whether port is usable by the relay.
func ValidPort(port uint64) bool {
	return port >= MinPort && port <= MaxPort
}

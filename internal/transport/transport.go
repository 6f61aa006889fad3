// Package transport
// Author: momentics <momentics@gmail.com>
//
// Platform-independent factory and addressing helpers for the stream
// transports.

package transport

import (
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/momentics/hioload-relay/api"
)

// Transport family names accepted by New.
const (
	Vsock = "vsock"
	TCP   = "tcp"
	Unix  = "unix"
)

// Reserved vsock context IDs.
const (
	CIDHypervisor = 0
	CIDLocal      = 1
	CIDHost       = 2
	CIDAny        = 4294967295 // 2^32-1
)

// Options carries per-family settings. Zero values select defaults.
type Options struct {
	// BindHost is the IPv4 address tcp listeners bind to (default 0.0.0.0).
	BindHost string
	// SocketDir holds unix listener sockets (default os.TempDir()).
	SocketDir string
	// Logger receives transport diagnostics.
	Logger *zap.Logger
}

// New returns the transport registered under name.
func New(name string, opts Options) (api.Transport, error) {
	switch strings.ToLower(name) {
	case "", Vsock, TCP, Unix:
		return newSocketTransport(strings.ToLower(name), opts)
	default:
		return nil, &api.ArgumentError{Arg: "transport", Msg: "unknown transport " + strconv.Quote(name)}
	}
}

// ParseCID parses a vsock context ID. Numbers use Go base prefixes
// (0x, 0o, 0b, or a leading 0 for octal); the names hypervisor, local,
// host and any map to the reserved IDs.
func ParseCID(s string) (uint32, error) {
	switch strings.ToLower(s) {
	case "hypervisor":
		return CIDHypervisor, nil
	case "local":
		return CIDLocal, nil
	case "host":
		return CIDHost, nil
	case "any":
		return CIDAny, nil
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, &api.ArgumentError{Arg: "domain", Msg: "invalid context id " + strconv.Quote(s)}
	}
	return uint32(v), nil
}

// UnixSocketPath returns the socket file used for port under dir.
func UnixSocketPath(dir string, port uint32) string {
	return filepath.Join(dir, "relay-"+strconv.FormatUint(uint64(port), 10)+".sock")
}

// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Relay run configuration with YAML loading and validation.

package control

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/momentics/hioload-relay/api"
	"github.com/momentics/hioload-relay/internal/transport"
)

// DefaultIdleTimeout bounds each readiness wait.
const DefaultIdleTimeout = 30 * time.Second

// Config describes one relay run.
type Config struct {
	// Listen selects server mode.
	Listen bool `yaml:"listen"`
	// Port is the local port in server mode and the peer port in client mode.
	Port uint32 `yaml:"port"`
	// Domain is the peer partition in client mode.
	Domain string `yaml:"domain"`

	Transport   string        `yaml:"transport"`
	BindHost    string        `yaml:"bind_host"`
	SocketDir   string        `yaml:"socket_dir"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	// CPU pins the event loop thread; negative leaves it unpinned.
	CPU int `yaml:"cpu"`

	Verbose       bool   `yaml:"verbose"`
	MetricsListen string `yaml:"metrics_listen"`
}

// DefaultConfig returns a client-mode vsock configuration with no peer.
func DefaultConfig() *Config {
	return &Config{
		Transport:   transport.Vsock,
		IdleTimeout: DefaultIdleTimeout,
		CPU:         -1,
	}
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults. An empty document yields the
// defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &api.ArgumentError{Arg: "config", Msg: err.Error()}
	}
	return cfg, nil
}

// Mode returns the run mode selected by Listen.
func (c *Config) Mode() api.Mode {
	if c.Listen {
		return api.ModeServer
	}
	return api.ModeClient
}

// Peer returns the client-mode peer address.
func (c *Config) Peer() api.PeerAddr {
	return api.PeerAddr{Domain: c.Domain, Port: c.Port}
}

// TransportOptions returns the transport settings carried by c.
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{BindHost: c.BindHost, SocketDir: c.SocketDir}
}

// Validate checks c for a runnable combination.
func (c *Config) Validate() error {
	switch c.Transport {
	case transport.Vsock, transport.TCP, transport.Unix:
	default:
		return &api.ArgumentError{Arg: "transport", Msg: "unknown transport " + strconv.Quote(c.Transport)}
	}
	if !api.ValidPort(uint64(c.Port)) {
		return &api.ArgumentError{Arg: "port", Msg: fmt.Sprintf("port %d out of range %d-%d", c.Port, api.MinPort, api.MaxPort)}
	}
	if c.IdleTimeout <= 0 {
		return &api.ArgumentError{Arg: "idle-timeout", Msg: "must be positive"}
	}
	if c.Listen {
		return nil
	}
	if c.Domain == "" {
		return &api.ArgumentError{Arg: "domain", Msg: "client mode needs a peer domain"}
	}
	if c.Transport == transport.Vsock {
		if _, err := transport.ParseCID(c.Domain); err != nil {
			return err
		}
	}
	return nil
}

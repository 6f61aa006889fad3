// File: cmd/relay/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// relay connects the process's standard streams to stream sockets.
//
// Server mode (-l -p PORT) accepts any number of peers, writes everything
// they send to stdout and copies stdin to all of them. Client mode
// (DOMAIN PORT) bridges stdin and stdout with a single peer and exits when
// either side closes.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/momentics/hioload-relay/api"
	"github.com/momentics/hioload-relay/control"
	"github.com/momentics/hioload-relay/facade"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	inv, err := parseArgs(args)
	if errors.Is(err, pflag.ErrHelp) {
		printUsage(inv.flags)
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		if inv != nil && inv.flags != nil {
			printUsage(inv.flags)
		}
		return api.ExitCode(err)
	}

	log, err := control.NewLogger(inv.cfg.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay: logger: %v\n", err)
		return 1
	}
	defer log.Sync() //nolint:errcheck
	if len(inv.extra) > 0 {
		log.Warn("ignoring extra arguments", zap.Strings("args", inv.extra))
	}

	r, err := facade.New(inv.cfg, facade.WithLogger(log))
	if err == nil {
		err = r.Run(context.Background())
	}
	if err != nil {
		log.Error("relay failed", zap.Error(err))
		return api.ExitCode(err)
	}
	return 0
}

// invocation is the parsed command line.
type invocation struct {
	cfg   *control.Config
	extra []string
	flags *pflag.FlagSet
}

func parseArgs(args []string) (*invocation, error) {
	var (
		listen        bool
		port          uint32
		configPath    string
		transportName string
		bindHost      string
		socketDir     string
		idleTimeout   time.Duration
		cpu           int
		verbose       bool
		metricsListen string
	)
	flags := pflag.NewFlagSet("relay", pflag.ContinueOnError)
	flags.SetOutput(os.Stderr)
	flags.Usage = func() {}
	flags.BoolVarP(&listen, "listen", "l", false, "accept peers instead of connecting to one")
	flags.Uint32VarP(&port, "port", "p", 0, "port to listen on (server mode)")
	flags.StringVar(&configPath, "config", "", "YAML configuration file; flags override its values")
	flags.StringVar(&transportName, "transport", "vsock", "socket family: vsock, tcp or unix")
	flags.StringVar(&bindHost, "bind-host", "", "IPv4 address tcp listeners bind to")
	flags.StringVar(&socketDir, "socket-dir", "", "directory holding unix listener sockets")
	flags.DurationVar(&idleTimeout, "idle-timeout", control.DefaultIdleTimeout, "upper bound of each readiness wait")
	flags.IntVar(&cpu, "cpu", -1, "pin the event loop thread to this CPU")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	flags.StringVar(&metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")

	inv := &invocation{flags: flags}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return inv, err
		}
		return inv, &api.ArgumentError{Arg: "flags", Msg: err.Error()}
	}

	cfg := control.DefaultConfig()
	if configPath != "" {
		loaded, err := control.Load(configPath)
		if err != nil {
			return inv, err
		}
		cfg = loaded
	}
	overrides := map[string]func(){
		"listen":         func() { cfg.Listen = listen },
		"port":           func() { cfg.Port = port },
		"transport":      func() { cfg.Transport = transportName },
		"bind-host":      func() { cfg.BindHost = bindHost },
		"socket-dir":     func() { cfg.SocketDir = socketDir },
		"idle-timeout":   func() { cfg.IdleTimeout = idleTimeout },
		"cpu":            func() { cfg.CPU = cpu },
		"verbose":        func() { cfg.Verbose = verbose },
		"metrics-listen": func() { cfg.MetricsListen = metricsListen },
	}
	flags.Visit(func(f *pflag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})

	rest := flags.Args()
	if !cfg.Listen {
		switch {
		case len(rest) >= 2:
			p, err := strconv.ParseUint(rest[1], 10, 64)
			if err != nil || !api.ValidPort(p) {
				return inv, &api.ArgumentError{Arg: "port", Msg: "invalid port " + strconv.Quote(rest[1])}
			}
			cfg.Domain, cfg.Port = rest[0], uint32(p)
			rest = rest[2:]
		case len(rest) == 1 || cfg.Domain == "":
			return inv, &api.ArgumentError{Arg: "domain", Msg: "client mode needs DOMAIN and PORT"}
		}
	}
	inv.extra = rest

	if err := cfg.Validate(); err != nil {
		return inv, err
	}
	inv.cfg = cfg
	return inv, nil
}

func printUsage(flags *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Relay standard input and output over stream sockets.

Usage:
  relay -l -p PORT [flags]      accept peers, broadcast stdin, collect to stdout
  relay [flags] DOMAIN PORT     bridge stdin/stdout with one peer

DOMAIN is a vsock context id (decimal, 0x hex, leading-0 octal, or one of
hypervisor, local, host, any), an IPv4 host for --transport tcp, or a
socket directory for --transport unix. PORT is 1-65534.

Flags:
`)
	flags.PrintDefaults()
}

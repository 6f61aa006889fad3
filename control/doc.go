// Package control
// Author: momentics <momentics@gmail.com>
//
// Run configuration, logger construction and Prometheus metrics for the
// relay.
//
// Configuration is read from an optional YAML file and overlaid by
// command-line flags; Validate reports every problem as an
// api.ArgumentError so the CLI exits with EINVAL. Metrics only observe:
// no counter feeds back into relay behaviour.
package control

// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stream transports for the relay, built directly on raw socket descriptors
// through golang.org/x/sys/unix so that every endpoint can be multiplexed by
// the poll(2) reactor. Three families share one implementation:
//
//   - vsock: AF_VSOCK, the inter-partition transport; peers are addressed by
//     context ID and port.
//   - tcp: AF_INET, used where no hypervisor socket is available.
//   - unix: AF_UNIX, one socket file per port under a directory.
//
// Stdio endpoints wrap the process's own descriptors and are never closed.
package transport

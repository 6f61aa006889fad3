// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency model of the relay: one goroutine, cooperative multiplexing.
// The only suspension point is the reactor's readiness wait; registries are
// touched only from the loop itself, so nothing here takes a lock.
package concurrency

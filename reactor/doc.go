// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the level-triggered readiness multiplexer used by
// the relay event loop. The Unix implementation is built on poll(2) through
// golang.org/x/sys/unix; unsupported platforms get a stub that fails at
// construction time.
package reactor

// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

// State enumerates the lifecycle of a relay run, in either mode.
type State int

const (
	StateIdle State = iota
	StateOpen
	StateRelaying
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateRelaying:
		return "relaying"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Mode selects between the accepting server and the single-peer client.
type Mode string

const (
	ModeServer Mode = "server"
	ModeClient Mode = "client"
)

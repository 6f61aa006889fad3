// Package session
// Author: momentics <momentics@gmail.com>
//
// Relay session state: directed pipes, their insertion-ordered registry,
// and the paired teardown that keeps a bidirectional relay consistent.
// A pipe and its reverse are created together and destroyed together,
// never one side alone.

package session

// File: internal/concurrency/eventloop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// EventLoop is the single-threaded, readiness-driven core of the relay.
// Each pass waits on every registered descriptor, dispatches ready handlers
// in registration order (at most once per event per pass), then runs a
// cleanup phase that drops released events and appends events registered
// while the pass was dispatching. The registry is never mutated mid-scan.

package concurrency

import (
	"context"
	"errors"
	"time"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/momentics/hioload-relay/api"
)

// EventID is a stable handle to a registered event. Zero is never issued.
type EventID uint64

// Handler services one ready event. A non-nil error is logged; whether the
// event stays registered is decided only by Release.
type Handler func(ev *Event) error

// Event is one registration of a watched descriptor and its handler.
type Event struct {
	id             EventID
	name           string
	watched        api.Watchable
	handler        Handler
	pendingRelease bool
}

// ID returns the event's stable handle.
func (ev *Event) ID() EventID { return ev.id }

// Name returns the diagnostic name given at registration.
func (ev *Event) Name() string { return ev.name }

// Watched returns the descriptor the event waits on.
func (ev *Event) Watched() api.Watchable { return ev.watched }

// PendingRelease reports whether the event is queued for removal.
func (ev *Event) PendingRelease() bool { return ev.pendingRelease }

// Releaser marks events for deferred removal.
type Releaser interface {
	Release(id EventID)
}

// RunMode selects the loop's natural termination condition.
type RunMode int

const (
	// RunForever loops until a fatal wait error or context cancellation.
	RunForever RunMode = iota
	// RunUntilEmpty additionally stops once no events remain registered.
	RunUntilEmpty
)

// Option customizes an EventLoop.
type Option func(*EventLoop)

// WithLogger sets the loop's logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *EventLoop) {
		if log != nil {
			l.log = log.Named("loop")
		}
	}
}

// WithIdleTimeout bounds every readiness wait.
func WithIdleTimeout(d time.Duration) Option {
	return func(l *EventLoop) {
		if d > 0 {
			l.idle = d
		}
	}
}

// WithCPU pins the thread running Run to cpu. Negative disables pinning.
func WithCPU(cpu int) Option {
	return func(l *EventLoop) {
		l.cpu = cpu
	}
}

// EventLoop owns the event registry and drives dispatch passes.
type EventLoop struct {
	poller      api.Poller
	events      []*Event
	byID        map[EventID]*Event
	pendingAdd  *queue.Queue // *Event registered during dispatch
	nextID      EventID
	idle        time.Duration
	cpu         int
	log         *zap.Logger
	dispatching bool
	passes      uint64

	fds   []int
	ready []bool
}

// NewEventLoop creates an empty loop waiting through poller.
func NewEventLoop(poller api.Poller, opts ...Option) *EventLoop {
	l := &EventLoop{
		poller:     poller,
		byID:       make(map[EventID]*Event),
		pendingAdd: queue.New(),
		idle:       30 * time.Second,
		cpu:        -1,
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Register adds an event for w. Registrations made while a pass is
// dispatching become visible only after that pass's cleanup phase.
func (l *EventLoop) Register(w api.Watchable, name string, h Handler) EventID {
	l.nextID++
	ev := &Event{id: l.nextID, name: name, watched: w, handler: h}
	l.byID[ev.id] = ev
	if l.dispatching {
		l.pendingAdd.Add(ev)
	} else {
		l.events = append(l.events, ev)
	}
	l.log.Debug("event registered", zap.Uint64("event", uint64(ev.id)), zap.String("name", name), zap.Int("fd", w.Fd()))
	return ev.id
}

// Release flags id for removal in the next cleanup phase. Unknown or
// already released ids are ignored.
func (l *EventLoop) Release(id EventID) {
	if ev, ok := l.byID[id]; ok {
		ev.pendingRelease = true
	}
}

// Lookup resolves id to its live event.
func (l *EventLoop) Lookup(id EventID) (*Event, bool) {
	ev, ok := l.byID[id]
	return ev, ok
}

// Len returns the number of live registrations, including ones queued
// during the current pass.
func (l *EventLoop) Len() int {
	return len(l.byID)
}

// Events returns the dispatchable events in registration order.
func (l *EventLoop) Events() []*Event {
	out := make([]*Event, len(l.events))
	copy(out, l.events)
	return out
}

// Passes returns the number of completed waits.
func (l *EventLoop) Passes() uint64 {
	return l.passes
}

// RunOnce performs a single dispatch pass. Only a fatal wait failure is
// returned; timeouts and interrupted waits are no-op passes.
func (l *EventLoop) RunOnce() error {
	l.fds = l.fds[:0]
	for _, ev := range l.events {
		l.fds = append(l.fds, ev.watched.Fd())
	}
	if cap(l.ready) < len(l.fds) {
		l.ready = make([]bool, len(l.fds))
	}
	ready := l.ready[:len(l.fds)]
	clear(ready)

	remaining, err := l.poller.Wait(l.fds, ready, l.idle)
	l.passes++
	switch {
	case errors.Is(err, api.ErrInterrupted):
		remaining = 0
	case err != nil:
		l.log.Error("readiness wait failed", zap.Int("events", len(l.fds)), zap.Error(err))
		return &api.WaitError{Err: err}
	}
	if remaining == 0 {
		l.log.Debug("idle pass", zap.Duration("timeout", l.idle))
	}

	l.dispatching = true
	for i, ev := range l.events {
		if remaining == 0 {
			break
		}
		if !ready[i] {
			continue
		}
		remaining--
		// A handler earlier in this pass may have torn this event's pipe down.
		if ev.pendingRelease {
			continue
		}
		if err := ev.handler(ev); err != nil {
			l.log.Debug("handler finished with error",
				zap.Uint64("event", uint64(ev.id)), zap.String("name", ev.name), zap.Error(err))
		}
	}
	l.dispatching = false

	l.cleanup()
	return nil
}

// Run drives passes until ctx is done, a wait fails, or, in
// RunUntilEmpty mode, the registry empties. Cancellation is observed
// between passes, so it can lag by up to the idle timeout.
func (l *EventLoop) Run(ctx context.Context, mode RunMode) error {
	if l.cpu >= 0 {
		unpin, err := PinCurrentThread(l.cpu)
		if err != nil {
			return err
		}
		defer unpin()
		l.log.Debug("loop pinned", zap.Int("cpu", l.cpu))
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if mode == RunUntilEmpty && l.Len() == 0 {
			return nil
		}
		if err := l.RunOnce(); err != nil {
			return err
		}
	}
}

// Flush drops every registration without invoking handlers.
func (l *EventLoop) Flush() {
	clear(l.events)
	l.events = l.events[:0]
	for l.pendingAdd.Length() > 0 {
		l.pendingAdd.Remove()
	}
	clear(l.byID)
}

// cleanup removes released events and appends deferred registrations.
func (l *EventLoop) cleanup() {
	kept := l.events[:0]
	for _, ev := range l.events {
		if ev.pendingRelease {
			l.forget(ev)
			continue
		}
		kept = append(kept, ev)
	}
	clear(l.events[len(kept):])
	l.events = kept

	for l.pendingAdd.Length() > 0 {
		ev := l.pendingAdd.Remove().(*Event)
		if ev.pendingRelease {
			l.forget(ev)
			continue
		}
		l.events = append(l.events, ev)
	}
}

func (l *EventLoop) forget(ev *Event) {
	delete(l.byID, ev.id)
	l.log.Debug("event released", zap.Uint64("event", uint64(ev.id)), zap.String("name", ev.name))
}

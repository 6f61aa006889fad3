// File: internal/session/store.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Insertion-ordered pipe registry with stable element handles.

package session

import "container/list"

// Registry holds live pipes in insertion order. It is owned by the loop
// goroutine and is not safe for concurrent use.
type Registry struct {
	pipes list.List
}

// Add appends p. Adding a registered pipe is a no-op.
func (r *Registry) Add(p *Pipe) {
	if p.elem != nil {
		return
	}
	p.elem = r.pipes.PushBack(p)
}

// Remove unlinks p and reports whether it was registered.
func (r *Registry) Remove(p *Pipe) bool {
	if p.elem == nil {
		return false
	}
	r.pipes.Remove(p.elem)
	p.elem = nil
	return true
}

// Len returns the number of registered pipes.
func (r *Registry) Len() int { return r.pipes.Len() }

// Pipes returns a snapshot of the registered pipes in order.
func (r *Registry) Pipes() []*Pipe {
	out := make([]*Pipe, 0, r.pipes.Len())
	for e := r.pipes.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Pipe))
	}
	return out
}

// Walk visits every pipe in insertion order. When visit returns true the
// visited pipe is handed to teardown, which may remove it and its reverse.
// The cursor is advanced before teardown runs and moved one further when
// the next entry is the reverse being removed in the same step.
func (r *Registry) Walk(visit func(p *Pipe) bool, teardown func(p *Pipe)) {
	for e := r.pipes.Front(); e != nil; {
		next := e.Next()
		p := e.Value.(*Pipe)
		if visit(p) {
			if next != nil && p.Reverse != nil && next.Value.(*Pipe) == p.Reverse {
				next = next.Next()
			}
			teardown(p)
		}
		e = next
	}
}

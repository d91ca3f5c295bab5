package dispatch

import "sync"

// AdmissionGate bounds how many inline pipeline runs a dispatcher
// instance allows at once. The compare and increment happen under one
// lock; a read-then-increment would let concurrent submits overshoot
// the ceiling.
type AdmissionGate struct {
	mu        sync.Mutex
	active    int
	maxDirect int
}

// NewAdmissionGate creates a gate with the given ceiling.
func NewAdmissionGate(maxDirect int) *AdmissionGate {
	if maxDirect < 0 {
		maxDirect = 0
	}
	return &AdmissionGate{maxDirect: maxDirect}
}

// TryAcquire claims an inline slot. Returns false when the gate is at
// capacity.
func (g *AdmissionGate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active >= g.maxDirect {
		return false
	}
	g.active++
	return true
}

// Release returns a slot claimed by TryAcquire.
func (g *AdmissionGate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active > 0 {
		g.active--
	}
}

// Active reports the current number of inline runs.
func (g *AdmissionGate) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

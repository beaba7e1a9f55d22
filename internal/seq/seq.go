// Package seq issues the monotonic sequence numbers stamped onto every
// broadcast envelope: one global counter plus one counter per playlist scope.
package seq

import "sync"

// restartGap is added to the persisted watermark on startup so that sequence
// numbers emitted between watermark flushes can never be reissued after a crash.
const restartGap = 1024

// Allocator hands out strictly increasing sequence numbers. A single mutex
// guards all counters; allocation is a handful of memory writes, so contention
// is not a concern at music-box scale.
type Allocator struct {
	mu     sync.Mutex
	base   uint64
	global uint64
	scopes map[string]uint64
}

// NewAllocator seeds the allocator from the highest globally persisted
// sequence number. Scope counters are lazily seeded from the same watermark:
// a scope counter can never exceed the global counter (every scope issue rides
// a global issue), so starting scopes at the global seed guarantees no scope
// value emitted before a restart is ever reissued after it.
func NewAllocator(watermark uint64) *Allocator {
	start := uint64(0)
	if watermark > 0 {
		start = watermark + restartGap
	}
	return &Allocator{
		base:   start,
		global: start,
		scopes: make(map[string]uint64),
	}
}

// NextGlobal returns the next global sequence number.
func (a *Allocator) NextGlobal() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.global++
	return a.global
}

// Next returns the next sequence number for the given scope.
func (a *Allocator) Next(scope string) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.scopes[scope]
	if !ok {
		v = a.base
	}
	v++
	a.scopes[scope] = v
	return v
}

// CurrentGlobal returns the most recently issued global sequence number.
func (a *Allocator) CurrentGlobal() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.global
}

// Current returns the most recently issued sequence number for the scope. A
// scope that has issued nothing this lifetime reports the seed, never a value
// below what earlier lifetimes may have emitted.
func (a *Allocator) Current(scope string) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if v, ok := a.scopes[scope]; ok {
		return v
	}
	return a.base
}

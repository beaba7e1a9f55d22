// Package ops tracks client-supplied idempotency tokens so that retried
// mutations settle exactly once. Every mutating command registers its
// clientOpId here before doing work; a retry storm finds the original entry
// instead of triggering duplicate side effects.
package ops

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tonebox/backend/internal/apperr"
)

// Pending is one tracked operation. Resolved at most once; a second settlement
// attempt is a silent no-op.
type Pending struct {
	ClientOpID string
	Name       string
	CreatedAt  time.Time
	Resolved   bool
	Result     any
	Err        error
}

// Tracker maps clientOpId to in-flight and completed mutation outcomes.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*Pending
}

// NewTracker creates an empty tracker. Callers are expected to run Sweep on a
// ticker to bound memory.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]*Pending)}
}

// ValidateClientOpID checks the token format {operation}_{timestamp}_{suffix}:
// at least three underscore-separated segments with a numeric timestamp
// segment second from the end.
func ValidateClientOpID(id string) error {
	parts := strings.Split(id, "_")
	if len(parts) < 3 {
		return apperr.Validation("clientOpId %q must have at least 3 underscore-separated segments", id)
	}
	ts := parts[len(parts)-2]
	if ts == "" {
		return apperr.Validation("clientOpId %q has an empty timestamp segment", id)
	}
	for _, c := range ts {
		if c < '0' || c > '9' {
			return apperr.Validation("clientOpId %q has a non-numeric timestamp segment %q", id, ts)
		}
	}
	return nil
}

// Track registers a pending entry. If the id is already known, the existing
// entry is returned with existing=true so callers can respond from the stored
// outcome instead of re-executing the mutation.
func (t *Tracker) Track(clientOpID, name string) (*Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.entries[clientOpID]; ok {
		return existing, true
	}
	p := &Pending{
		ClientOpID: clientOpID,
		Name:       name,
		CreatedAt:  time.Now(),
	}
	t.entries[clientOpID] = p
	return p, false
}

// Resolve settles an operation successfully. Resolving an already-settled or
// unknown id is a no-op.
func (t *Tracker) Resolve(clientOpID string, result any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.entries[clientOpID]
	if !ok || p.Resolved {
		return
	}
	p.Resolved = true
	p.Result = result
}

// Reject settles an operation with a failure. Idempotent like Resolve.
func (t *Tracker) Reject(clientOpID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.entries[clientOpID]
	if !ok || p.Resolved {
		return
	}
	p.Resolved = true
	p.Err = err
}

// Outcome returns a copy of the entry for clientOpID, safe to read without
// holding the tracker lock.
func (t *Tracker) Outcome(clientOpID string) (Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.entries[clientOpID]
	if !ok {
		return Pending{}, false
	}
	return *p, true
}

// Sweep force-rejects unresolved entries older than maxAge and evicts settled
// entries older than twice maxAge so retries within the window still find
// their outcome. Returns the number of force-rejected entries.
func (t *Tracker) Sweep(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	rejected := 0
	for id, p := range t.entries {
		age := now.Sub(p.CreatedAt)
		switch {
		case !p.Resolved && age > maxAge:
			p.Resolved = true
			p.Err = apperr.Timeout("operation %q timed out", p.Name)
			rejected++
			slog.Warn("ops: force-rejected stale operation",
				slog.String("client_op_id", id), slog.String("name", p.Name))
		case p.Resolved && age > 2*maxAge:
			delete(t.entries, id)
		}
	}
	return rejected
}

// Len returns the number of tracked entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

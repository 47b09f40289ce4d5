// Package ledger tracks the system resources a lifecycle operation has
// acquired, in acquisition order, and drives ordered teardown. The ledger
// records reality, never intent: a handle is appended only after the
// underlying action has already succeeded.
package ledger

import (
	log "github.com/sirupsen/logrus"
)

// A single acquired system resource together with the knowledge needed to
// undo it. Concrete handles are created by the components that acquired
// the resource (interface binding, daemon process, NAT rule set).
type Handle interface {
	// Short resource kind for logs and error reports, e.g. "nat-rules".
	Kind() string
	// Undoes the acquisition. Called at most once per handle.
	Release() error
}

// Ordered record of acquired resources. Append-only during acquisition,
// consumed back-to-front during release. Not safe for concurrent use; the
// orchestrator owns it for the duration of a single lifecycle operation.
type Ledger struct {
	handles []Handle
}

// Returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Records an acquired resource. Must be called only after the action that
// created the resource has succeeded.
func (l *Ledger) Acquire(handle Handle) {
	log.WithField("resource", handle.Kind()).Debug("Acquired resource")
	l.handles = append(l.handles, handle)
}

// Number of resources currently recorded.
func (l *Ledger) Len() int {
	return len(l.handles)
}

// Releases every recorded resource in reverse acquisition order. A failed
// release never stops the walk; earlier-acquired resources must not leak
// because a later release step failed. The ledger is cleared once every
// entry has been attempted. Returns the collected release errors, which
// are for reporting only, not for failing the overall teardown.
func (l *Ledger) ReleaseAll() []error {
	var failures []error
	for i := len(l.handles) - 1; i >= 0; i-- {
		handle := l.handles[i]
		if err := handle.Release(); err != nil {
			log.WithField("resource", handle.Kind()).
				WithError(err).
				Warn("Teardown step failed, continuing with remaining resources")
			failures = append(failures, err)
		} else {
			log.WithField("resource", handle.Kind()).Debug("Released resource")
		}
	}
	l.handles = nil
	return failures
}

// Convenience adapter turning a named function into a Handle.
type funcHandle struct {
	kind    string
	release func() error
}

func (h *funcHandle) Kind() string {
	return h.kind
}

func (h *funcHandle) Release() error {
	return h.release()
}

// Wraps a release function in a Handle with the given kind.
func NewHandle(kind string, release func() error) Handle {
	return &funcHandle{kind: kind, release: release}
}

// Package lockmap implements the resource lock table shared by all sessions.
//
// Each canonical resource path maps to an exclusive, non-blocking lock.
// Acquisition never waits: a caller that finds the resource held gets false
// immediately and must report the resource as busy.
package lockmap

import "sync"

// entry is the lock state of one resource path.
type entry struct {
	held bool
}

// Table maps resource paths to exclusive try-locks.
//
// A single mutex guards the map, so looking up (or lazily inserting) an entry
// and taking it happen in one critical section. Two sessions racing on the
// same new path can never each create and hold a distinct lock.
//
// The zero value is not usable; create tables with New. Tables are owned by
// whoever constructs them and passed down explicitly.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty lock table.
func New() *Table {
	return &Table{entries: make(map[string]*entry)}
}

// TryAcquire takes the lock for path if nobody holds it.
//
// Returns false without blocking when the lock is already held.
func (t *Table) TryAcquire(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[path]
	if !ok {
		e = &entry{}
		t.entries[path] = e
	}
	if e.held {
		return false
	}
	e.held = true
	return true
}

// Release frees the lock for path. Releasing a lock that is not held is a no-op.
//
// The entry stays in the table for later acquisitions.
func (t *Table) Release(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[path]; ok {
		e.held = false
	}
}

// Forget releases the lock for path and drops its entry entirely.
//
// Only the current holder may call Forget (typically after deleting the
// resource). Release and removal happen atomically, so no other session can
// slip in between them and end up holding an orphaned entry.
func (t *Table) Forget(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, path)
}

// Held reports whether path is currently locked.
func (t *Table) Held(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[path]
	return ok && e.held
}

// Len returns the number of entries in the table, held or not.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

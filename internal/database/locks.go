package database

import "sync"

// recordLocks is a registry of application-level mutexes keyed by record.
// Entries are reference-counted and removed once the last holder releases,
// so the registry does not grow with the table.
type recordLocks struct {
	mu      sync.Mutex
	entries map[string]*recordLock
}

type recordLock struct {
	mu   sync.Mutex
	refs int
}

func newRecordLocks() *recordLocks {
	return &recordLocks{entries: make(map[string]*recordLock)}
}

func (r *recordLocks) lock(key string) func() {
	r.mu.Lock()
	entry, ok := r.entries[key]
	if !ok {
		entry = &recordLock{}
		r.entries[key] = entry
	}
	entry.refs++
	r.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		r.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(r.entries, key)
		}
		r.mu.Unlock()
	}
}

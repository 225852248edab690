// Package fileregistry maps an (item_id, version) key to a single
// reference-counted SharedFile, so every writer and reader attached to the
// same key observes the same handle. The map itself is guarded by one
// mutex; the teacher's tryAcquire/release bookkeeping in
// internal/syncsvc/sync.go is the model for keeping that critical section
// free of blocking I/O — file open and OS lock acquisition always happen
// outside it, with the entry inserted afterward (or discarded on a losing
// race against a concurrent opener).
package fileregistry

import (
	"sync"

	"github.com/brynmoore/streamstore/internal/sharedfile"
	"github.com/brynmoore/streamstore/internal/storeerr"
)

// Key identifies one item's version.
type Key struct {
	ItemID  string
	Version int64
}

// Handle is a caller's reference to an entry's SharedFile. Release must be
// called exactly once when the caller is done with it.
type Handle struct {
	reg    *Registry
	key    Key
	isWrite bool
	*sharedfile.SharedFile
}

type entry struct {
	sf       *sharedfile.SharedFile
	refs     int
	hasWriter bool
}

// Registry is the process-wide map from Key to SharedFile.
type Registry struct {
	mu      sync.Mutex
	entries map[Key]*entry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[Key]*entry)}
}

// AcquireWriter returns the SharedFile for key, opening path for append if
// no entry exists yet. Fails with storeerr.Busy if another in-process writer
// already holds this key (distinct from, and checked before, the OS-level
// advisory lock that OpenForAppend itself acquires). fsync is only consulted
// when this call is the one that opens the file; a handle folded into an
// already-open entry inherits whatever that entry was opened with.
func (r *Registry) AcquireWriter(key Key, path string, fsync bool) (*Handle, error) {
	r.mu.Lock()
	if e, ok := r.entries[key]; ok {
		if e.hasWriter {
			r.mu.Unlock()
			return nil, storeerr.New(storeerr.Busy, "another writer in this process already holds this item/version")
		}
		e.hasWriter = true
		e.refs++
		r.mu.Unlock()
		return &Handle{reg: r, key: key, isWrite: true, SharedFile: e.sf}, nil
	}
	r.mu.Unlock()

	sf, err := sharedfile.OpenForAppend(path, fsync)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if e, ok := r.entries[key]; ok {
		// A concurrent reader created the entry first while our OS-level
		// open was in flight. The OS exclusive lock guarantees at most one
		// OpenForAppend ever succeeds for this path, so e.hasWriter cannot
		// already be true here; fold our freshly opened handle into the
		// winner's entry and discard the surplus one.
		e.hasWriter = true
		e.refs++
		r.mu.Unlock()
		_ = sf.Release()
		return &Handle{reg: r, key: key, isWrite: true, SharedFile: e.sf}, nil
	}
	r.entries[key] = &entry{sf: sf, refs: 1, hasWriter: true}
	r.mu.Unlock()
	return &Handle{reg: r, key: key, isWrite: true, SharedFile: sf}, nil
}

// AcquireReader returns the SharedFile for key, opening path read-shared if
// no entry exists yet. Succeeds whenever the underlying file exists (or a
// writer entry is already present for it).
func (r *Registry) AcquireReader(key Key, path string) (*Handle, error) {
	r.mu.Lock()
	if e, ok := r.entries[key]; ok {
		e.refs++
		r.mu.Unlock()
		return &Handle{reg: r, key: key, SharedFile: e.sf}, nil
	}
	r.mu.Unlock()

	sf, err := sharedfile.OpenForRead(path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if e, ok := r.entries[key]; ok {
		e.refs++
		r.mu.Unlock()
		_ = sf.Release()
		return &Handle{reg: r, key: key, SharedFile: e.sf}, nil
	}
	sf.WatchExternalGrowth()
	r.entries[key] = &entry{sf: sf, refs: 1}
	r.mu.Unlock()
	return &Handle{reg: r, key: key, SharedFile: sf}, nil
}

// HasWriter reports whether an in-process writer currently holds key. A
// ReadPipeline uses this before resolving a data file path so a reader can
// attach to a key that has no file on disk yet but does have an active
// concurrent writer.
func (r *Registry) HasWriter(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	return ok && e.hasWriter
}

// Release decrements the handle's entry refcount. The entry (and its
// underlying file) is evicted and closed only once the count reaches zero;
// a handle must not be used again after Release.
func (h *Handle) Release() {
	h.reg.release(h.key, h.isWrite)
}

func (r *Registry) release(key Key, wasWriter bool) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	if wasWriter {
		e.hasWriter = false
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.entries, key)
	r.mu.Unlock()
	e.sf.Close(nil)
	_ = e.sf.Release()
}

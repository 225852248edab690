// Package sharedfile implements the single point of truth for one item's
// open data file: an append-only handle with a byte-length watermark and a
// change broadcaster that wakes waiting readers. Watermark and closed state
// are guarded by one mutex, independent of any other SharedFile's; the
// broadcaster uses the standard Go "replace the channel on broadcast" idiom
// (a send-free alternative to sync.Cond that composes with select/ctx.Done),
// grounded on the teacher's debounce/cancel bookkeeping in
// internal/syncsvc/sync.go.
package sharedfile

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/brynmoore/streamstore/internal/storeerr"
)

// Mode selects how the underlying file was opened.
type Mode int

const (
	ModeAppend Mode = iota
	ModeRead
)

// SharedFile coordinates one writer and many readers over a single
// append-only data file.
type SharedFile struct {
	path  string
	mode  Mode
	f     *os.File
	fsync bool // fsync on Close rather than on every Append, per spec.md §9

	mu        sync.Mutex
	watermark int64
	closed    bool
	closeErr  error
	changed   chan struct{} // replaced (closed) on every broadcast

	watcher *fsnotify.Watcher // non-nil only for a cross-process read fallback
}

// OpenForAppend opens path in append mode and acquires an OS-level exclusive
// advisory lock, failing with storeerr.Busy if another process already holds
// it. The initial watermark is the file's current size. fsync controls
// whether Close fsyncs the file before releasing it (durability beyond the
// OS page cache); Append itself only ever writes, never syncs, since every
// reader observes new bytes as soon as the kernel's page cache does.
func OpenForAppend(path string, fsync bool) (*SharedFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.Io, "opening data file for append", err)
	}
	if err := lockExclusive(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	size, err := fileSize(f)
	if err != nil {
		_ = unlock(f)
		_ = f.Close()
		return nil, storeerr.Wrap(storeerr.Io, "stat data file", err)
	}
	return &SharedFile{path: path, mode: ModeAppend, f: f, fsync: fsync, watermark: size, changed: make(chan struct{})}, nil
}

// OpenForRead opens path read-only with a shared advisory lock. The initial
// watermark is the file's current size.
func OpenForRead(path string) (*SharedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storeerr.Wrap(storeerr.NotFound, "data file does not exist", err)
		}
		return nil, storeerr.Wrap(storeerr.Io, "opening data file for read", err)
	}
	if err := lockShared(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	size, err := fileSize(f)
	if err != nil {
		_ = unlock(f)
		_ = f.Close()
		return nil, storeerr.Wrap(storeerr.Io, "stat data file", err)
	}
	return &SharedFile{path: path, mode: ModeRead, f: f, watermark: size, changed: make(chan struct{})}, nil
}

func fileSize(f *os.File) (int64, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// Append writes buf, advances the watermark, and wakes every waiter. The
// write is visible to any reader sharing the same file as soon as the call
// returns; it is not fsynced to stable storage unless the SharedFile was
// opened with fsync=true, in which case Close does that once rather than on
// every Append. It is an error to call Append on a SharedFile opened with
// OpenForRead.
func (sf *SharedFile) Append(buf []byte) error {
	if sf.mode != ModeAppend {
		return storeerr.New(storeerr.Io, "append called on a read-mode SharedFile")
	}
	if _, err := sf.f.Write(buf); err != nil {
		return storeerr.Wrap(storeerr.Io, "writing data file", err)
	}
	sf.mu.Lock()
	sf.watermark += int64(len(buf))
	sf.broadcastLocked()
	sf.mu.Unlock()
	return nil
}

// Snapshot returns a non-blocking view of the current watermark and closed
// state.
func (sf *SharedFile) Snapshot() (watermark int64, closed bool) {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.watermark, sf.closed
}

// WaitForChange suspends the caller until the watermark exceeds since, the
// file is closed, or ctx is done, whichever happens first.
func (sf *SharedFile) WaitForChange(ctx context.Context, since int64) (watermark int64, closed bool, err error) {
	for {
		sf.mu.Lock()
		if sf.watermark > since || sf.closed {
			w, c := sf.watermark, sf.closed
			sf.mu.Unlock()
			return w, c, nil
		}
		ch := sf.changed
		sf.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return 0, false, ctx.Err()
		}
	}
}

// Close marks the SharedFile closed with the given status (nil for success),
// wakes every waiter once, and releases the exclusive lock. Already-appended
// bytes remain on disk; if the SharedFile was opened with fsync=true they are
// flushed to stable storage first.
func (sf *SharedFile) Close(status error) {
	if sf.mode == ModeAppend && sf.fsync {
		_ = sf.f.Sync()
	}
	sf.mu.Lock()
	if sf.closed {
		sf.mu.Unlock()
		return
	}
	sf.closed = true
	sf.closeErr = status
	sf.broadcastLocked()
	sf.mu.Unlock()
	if sf.mode == ModeAppend {
		_ = unlock(sf.f)
	}
}

// CloseErr returns the error a writer closed with, if any.
func (sf *SharedFile) CloseErr() error {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.closeErr
}

func (sf *SharedFile) broadcastLocked() {
	close(sf.changed)
	sf.changed = make(chan struct{})
}

// ReadAt reads [off, off+len(buf)) from the underlying data file. Callers
// must only request ranges already covered by a prior Snapshot/WaitForChange
// watermark.
func (sf *SharedFile) ReadAt(buf []byte, off int64) (int, error) {
	return sf.f.ReadAt(buf, off)
}

// Path returns the filesystem path backing this SharedFile.
func (sf *SharedFile) Path() string { return sf.path }

// WatchExternalGrowth starts an fsnotify watch on the data file so that
// growth from another OS process (one this process never wrote through) is
// still observed. This is purely additive: it only ever injects extra
// broadcasts alongside Append's own, never replaces it. Safe to call more
// than once; only the first call installs a watcher.
func (sf *SharedFile) WatchExternalGrowth() {
	sf.mu.Lock()
	if sf.watcher != nil {
		sf.mu.Unlock()
		return
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		sf.mu.Unlock()
		slog.Warn("sharedfile: fsnotify watcher unavailable, external writers will not wake readers promptly", "path", sf.path, "err", err)
		return
	}
	if err := w.Add(sf.path); err != nil {
		sf.mu.Unlock()
		_ = w.Close()
		slog.Warn("sharedfile: failed to watch data file", "path", sf.path, "err", err)
		return
	}
	sf.watcher = w
	sf.mu.Unlock()

	go sf.runWatch(w)
}

func (sf *SharedFile) runWatch(w *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Write) {
				sf.refreshWatermarkFromDisk()
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				return
			}
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
		}
	}
}

func (sf *SharedFile) refreshWatermarkFromDisk() {
	st, err := os.Stat(sf.path)
	if err != nil {
		return
	}
	sf.mu.Lock()
	if st.Size() > sf.watermark {
		sf.watermark = st.Size()
		sf.broadcastLocked()
	}
	sf.mu.Unlock()
}

// Release closes the watcher (if any) and the underlying file handle. It is
// called by the registry once the last reference drops, or to discard a
// handle that lost an open race before anyone else observed it.
func (sf *SharedFile) Release() error {
	sf.mu.Lock()
	w := sf.watcher
	sf.watcher = nil
	sf.mu.Unlock()
	if w != nil {
		_ = w.Close()
	}
	_ = unlock(sf.f)
	return sf.f.Close()
}

var _ io.ReaderAt = (*SharedFile)(nil)

package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/brynmoore/streamstore/internal/blockpool"
	"github.com/brynmoore/streamstore/internal/fileregistry"
	"github.com/brynmoore/streamstore/internal/itemstore"
	"github.com/brynmoore/streamstore/internal/server/bandwidth"
)

// ReadPipeline attaches to a SharedFile and produces a lazy, monotone byte
// stream from offset 0 up to the writer's watermark, blocking on the
// SharedFile's notifier while caught up and terminating cleanly once the
// writer closes and the reader has drained to the final watermark.
type ReadPipeline struct {
	Store    *itemstore.ItemStore
	Registry *fileregistry.Registry
	Pool     *blockpool.Pool

	// Throttle, if non-nil, paces egress bytes per reader. Ambient addition
	// (spec.md §4.7 leaves delivery rate unconstrained); nil means
	// unlimited, matching the teacher's bandwidth.Limiter's "0 means
	// unlimited" convention.
	Throttle *bandwidth.Limiter
}

const readChunkSize = 64 * 1024

// Open resolves key to a SharedFile handle, failing with storeerr.NotFound
// if neither the data file nor an active writer exists.
func (rp *ReadPipeline) Open(ctx context.Context, key fileregistry.Key) (*fileregistry.Handle, error) {
	hasWriter, err := blockpool.Run(ctx, rp.Pool, func() (bool, error) {
		return rp.Registry.HasWriter(key), nil
	})
	if err != nil {
		return nil, err
	}

	path, err := blockpool.Run(ctx, rp.Pool, func() (string, error) {
		return rp.Store.PrepareRead(key.ItemID, key.Version, hasWriter)
	})
	if err != nil {
		return nil, err
	}

	return blockpool.Run(ctx, rp.Pool, func() (*fileregistry.Handle, error) {
		return rp.Registry.AcquireReader(key, path)
	})
}

// Stream writes bytes from handle's data file to w, starting at offset 0,
// until the writer closes and the reader has drained to the final
// watermark, or ctx is cancelled (client disconnect). It never returns a
// gap: every write to w is the next contiguous slice of the file.
func (rp *ReadPipeline) Stream(ctx context.Context, handle *fileregistry.Handle, w io.Writer) error {
	var offset int64
	buf := make([]byte, readChunkSize)
	for {
		watermark, closed := handle.Snapshot()
		if watermark > offset {
			n, err := rp.copyRange(ctx, handle, w, buf, offset, watermark)
			if err != nil {
				return err
			}
			offset += int64(n)
			continue
		}
		if closed {
			return nil
		}
		if _, _, err := handle.WaitForChange(ctx, offset); err != nil {
			return err
		}
	}
}

func (rp *ReadPipeline) copyRange(ctx context.Context, handle *fileregistry.Handle, w io.Writer, buf []byte, from, to int64) (int, error) {
	want := to - from
	if want > int64(len(buf)) {
		want = int64(len(buf))
	}
	n, err := blockpool.Run(ctx, rp.Pool, func() (int, error) {
		return handle.ReadAt(buf[:want], from)
	})
	if err != nil && err != io.EOF {
		return 0, err
	}
	if rp.Throttle != nil {
		if wait := rp.Throttle.Allow(int64(n)); wait > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	if _, werr := w.Write(buf[:n]); werr != nil {
		return 0, werr
	}
	if fl, ok := w.(flusher); ok {
		fl.Flush()
	}
	return n, nil
}

type flusher interface{ Flush() }

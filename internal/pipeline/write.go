// Package pipeline implements the write and read sequencing that drives a
// request's bytes through the parser/encoder and the shared file, exactly
// as spec.md §4.6-4.7 describe it.
package pipeline

import (
	"context"
	"io"

	"github.com/brynmoore/streamstore/internal/blockpool"
	"github.com/brynmoore/streamstore/internal/fileregistry"
	"github.com/brynmoore/streamstore/internal/itemstore"
	"github.com/brynmoore/streamstore/internal/propertymodel"
	"github.com/brynmoore/streamstore/internal/propertystream"
	"github.com/brynmoore/streamstore/internal/storeerr"
)

const writeChunkSize = 32 * 1024

// WriteResult summarises a completed write request.
type WriteResult struct {
	PropertiesWritten int
	Errors            []error // non-fatal per-property errors accumulated along the way
}

// WritePipeline consumes a request byte stream for one (item_id, version),
// drives it through a PropertyStreamParser, and appends the canonical
// re-serialisation of every valid property to the item's SharedFile.
type WritePipeline struct {
	Store            *itemstore.ItemStore
	Registry         *fileregistry.Registry
	Pool             *blockpool.Pool
	MaxPropertyBytes int
	FsyncOnClose     bool
}

// Run executes the write, returning the accumulated result and a terminal
// error (nil on success) classified per spec.md §7: VersionConflict, Busy,
// Io, UnterminatedProperty when the body ends inside an element (whether or
// not earlier properties were written), or, when nothing valid was written,
// the first per-property error (InvalidProperty if there was none).
func (wp *WritePipeline) Run(ctx context.Context, key fileregistry.Key, body io.Reader) (WriteResult, error) {
	path, err := blockpool.Run(ctx, wp.Pool, func() (string, error) {
		return wp.Store.PrepareWrite(key.ItemID, key.Version)
	})
	if err != nil {
		return WriteResult{}, err
	}

	handle, err := blockpool.Run(ctx, wp.Pool, func() (*fileregistry.Handle, error) {
		return wp.Registry.AcquireWriter(key, path, wp.FsyncOnClose)
	})
	if err != nil {
		return WriteResult{}, err
	}
	defer handle.Release()

	parser := propertystream.New(wp.MaxPropertyBytes)
	result := WriteResult{}

	buf := make([]byte, writeChunkSize)
	var transportErr error
readLoop:
	for {
		select {
		case <-ctx.Done():
			transportErr = ctx.Err()
			break readLoop
		default:
		}

		n, rerr := body.Read(buf)
		if n > 0 {
			props, errs := parser.Feed(buf[:n])
			result.Errors = append(result.Errors, errs...)
			for _, p := range props {
				appended, werr := wp.appendProperty(ctx, handle, p)
				if werr != nil {
					transportErr = werr
					break readLoop
				}
				if appended {
					result.PropertiesWritten++
				} else {
					result.Errors = append(result.Errors, storeerr.New(storeerr.InvalidProperty, "property failed canonical re-encoding"))
				}
			}
		}
		if rerr != nil {
			if rerr != io.EOF {
				transportErr = storeerr.Wrap(storeerr.Io, "reading request body", rerr)
			}
			break readLoop
		}
	}

	if transportErr != nil {
		handle.Close(transportErr)
		return result, transportErr
	}

	if ferr := parser.Finish(); ferr != nil {
		// Already-appended bytes stay on disk (append-only invariant); the
		// request as a whole is still reported as a bad request, and the
		// SharedFile records the same error as its close status (CloseErr).
		handle.Close(ferr)
		return result, ferr
	}

	if result.PropertiesWritten == 0 {
		handle.Close(nil)
		if len(result.Errors) > 0 {
			return result, result.Errors[0]
		}
		return result, storeerr.New(storeerr.InvalidProperty, "request contained no valid properties")
	}

	handle.Close(nil)
	return result, nil
}

// appendProperty re-serialises p and appends it through handle. It reports
// appended=false (no error) when Encode itself rejects p, which the parser
// should not produce but which is still handled as a non-fatal per-property
// failure rather than aborting the request.
func (wp *WritePipeline) appendProperty(ctx context.Context, handle *fileregistry.Handle, p propertymodel.Property) (appended bool, err error) {
	b, err := propertymodel.Encode(p)
	if err != nil {
		return false, nil
	}
	if _, err := blockpool.Run(ctx, wp.Pool, func() (struct{}, error) {
		return struct{}{}, handle.Append(b)
	}); err != nil {
		return false, err
	}
	return true, nil
}

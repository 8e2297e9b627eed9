package port

import (
	"context"

	"github.com/quarryos/pkgfetch/internal/domain"
)

// WriteSink is a write handle for one blob in the content store.
type WriteSink interface {
	// Truncate pre-sizes the blob to its final length. It must be called
	// before the first Write.
	Truncate(size uint64) error

	// Write appends bytes to the blob and returns the number of bytes the
	// store reports as written. A write against a blob that the store has
	// already completed fails with domain.ErrAlreadyExists.
	Write(p []byte) (uint64, error)

	// Close releases the handle. It is idempotent and must be called on
	// every path, including failed attempts: a handle left open blocks
	// subsequent opens of the same blob for writing.
	Close() error
}

// BlobStore is the local content-addressed store the fetch engine writes
// into.
type BlobStore interface {
	// ProbeReadable reports whether a fully-readable package exists at the
	// given id, matching the given selectors.
	ProbeReadable(ctx context.Context, id domain.ContentID, selectors []string) (bool, error)

	// CreateForWrite creates the blob for writing under the subpath for
	// kind. It returns a nil sink when the blob already exists and is
	// readable.
	CreateForWrite(ctx context.Context, id domain.ContentID, kind domain.ContentKind) (WriteSink, error)

	// MaxWriteSize returns the largest number of bytes a single Write may
	// carry.
	MaxWriteSize() int

	// ListNeeds returns the content blobs currently required by the
	// package and not yet present, reflecting on-disk state at the time of
	// the call. An empty batch means the package is fully satisfied.
	ListNeeds(ctx context.Context, pkg domain.ContentID) ([]domain.ContentID, error)
}

package blobstore

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/quarryos/pkgfetch/internal/domain"
	"github.com/quarryos/pkgfetch/internal/port"
	"go.uber.org/zap"
)

// defaultMaxWriteSize is the largest single write the store accepts.
const defaultMaxWriteSize = 8192

// Store is a filesystem-backed content-addressed blob store. Blobs live
// under blob/ and package meta objects under pkg/, both keyed by the hex
// form of their content id. In-progress writes go to staging/ and are
// renamed into place once complete, so a blob file is either absent or
// whole.
//
// A meta object lists the content ids of the package's blobs, one hex id
// per line.
type Store struct {
	root   string
	logger *zap.Logger
}

// Ensure Store implements port.BlobStore
var _ port.BlobStore = (*Store)(nil)

// New creates the store layout under root.
func New(root string, logger *zap.Logger) (*Store, error) {
	for _, dir := range []string{"pkg", "blob", "staging"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	return &Store{root: root, logger: logger}, nil
}

func (s *Store) installPath(id domain.ContentID, kind domain.ContentKind) string {
	return filepath.Join(s.root, kind.String(), id.String())
}

func (s *Store) stagingPath(id domain.ContentID, kind domain.ContentKind) string {
	return filepath.Join(s.root, "staging", kind.String()+"-"+id.String())
}

// MaxWriteSize returns the largest number of bytes a single sink write may
// carry.
func (s *Store) MaxWriteSize() int {
	return defaultMaxWriteSize
}

// ProbeReadable reports whether the package meta object and every blob it
// lists are present. Selectors are accepted for interface compatibility
// but not supported.
func (s *Store) ProbeReadable(ctx context.Context, id domain.ContentID, selectors []string) (bool, error) {
	if len(selectors) > 0 {
		return false, fmt.Errorf("selectors are not supported")
	}
	blobs, err := s.readMeta(id)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	for _, blob := range blobs {
		if _, err := os.Stat(s.installPath(blob, domain.KindData)); err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, fmt.Errorf("stat blob %s: %w", blob, err)
		}
	}
	return true, nil
}

// CreateForWrite opens the blob for writing under the subpath for kind.
// It returns a nil sink when the blob is already installed.
func (s *Store) CreateForWrite(ctx context.Context, id domain.ContentID, kind domain.ContentKind) (port.WriteSink, error) {
	final := s.installPath(id, kind)
	if _, err := os.Stat(final); err == nil {
		return nil, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat %s: %w", final, err)
	}

	staging := s.stagingPath(id, kind)
	f, err := os.OpenFile(staging, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	return &writeSink{f: f, staging: staging, final: final}, nil
}

// ListNeeds returns the blobs the package's meta object lists that are not
// yet installed. Every call re-reads on-disk state.
func (s *Store) ListNeeds(ctx context.Context, pkg domain.ContentID) ([]domain.ContentID, error) {
	blobs, err := s.readMeta(pkg)
	if err != nil {
		return nil, err
	}
	var needs []domain.ContentID
	for _, blob := range blobs {
		if _, err := os.Stat(s.installPath(blob, domain.KindData)); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("stat blob %s: %w", blob, err)
			}
			needs = append(needs, blob)
		}
	}
	return needs, nil
}

// readMeta parses the package's meta object: one content id hex string per
// line, blank lines ignored.
func (s *Store) readMeta(pkg domain.ContentID) ([]domain.ContentID, error) {
	f, err := os.Open(s.installPath(pkg, domain.KindPackage))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var blobs []domain.ContentID
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, err := domain.ParseContentID(line)
		if err != nil {
			return nil, fmt.Errorf("parse meta object entry for %s: %w", pkg, err)
		}
		blobs = append(blobs, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read meta object for %s: %w", pkg, err)
	}
	return blobs, nil
}

// writeSink writes a blob to a staging file and renames it into place once
// the expected number of bytes has arrived.
type writeSink struct {
	f       *os.File
	staging string
	final   string

	mu      sync.Mutex
	sized   bool
	size    uint64
	written uint64
	closed  bool
}

// Truncate pre-sizes the blob and records its final length.
func (w *writeSink) Truncate(size uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("truncate: %w", os.ErrClosed)
	}
	if err := w.f.Truncate(int64(size)); err != nil {
		return fmt.Errorf("truncate staging file: %w", err)
	}
	w.sized = true
	w.size = size
	return nil
}

// Write appends bytes to the staging file.
func (w *writeSink) Write(p []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, fmt.Errorf("write: %w", os.ErrClosed)
	}
	if len(p) > defaultMaxWriteSize {
		return 0, fmt.Errorf("write of %d bytes exceeds max write size %d", len(p), defaultMaxWriteSize)
	}
	n, err := w.f.WriteAt(p, int64(w.written))
	w.written += uint64(n)
	if err != nil {
		return uint64(n), fmt.Errorf("write staging file: %w", err)
	}
	return uint64(n), nil
}

// Close is idempotent. A complete blob is synced and renamed into place;
// an incomplete one is discarded so a later attempt starts clean.
func (w *writeSink) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	complete := w.sized && w.written == w.size
	if !complete {
		w.f.Close()
		os.Remove(w.staging)
		return nil
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		os.Remove(w.staging)
		return fmt.Errorf("sync blob: %w", err)
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.staging)
		return fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(w.staging, w.final); err != nil {
		os.Remove(w.staging)
		return fmt.Errorf("install blob: %w", err)
	}
	return nil
}

package installer

import (
	"context"
	"fmt"

	"github.com/quarryos/pkgfetch/internal/domain"
	"github.com/quarryos/pkgfetch/internal/port"
	"github.com/quarryos/pkgfetch/internal/service/fetcher"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Request describes one package-install request.
type Request struct {
	Name    string
	Variant string

	// Pin, when set, overrides the resolved content id. The name and
	// variant are still resolved first to validate they exist in the
	// repository; the pin only decides what is actually fetched.
	Pin *domain.ContentID
}

// Installer drives a package install: resolve the package to its meta
// object, fetch it, then drain the package's needs until the store reports
// it fully satisfied.
type Installer struct {
	resolver port.MetadataResolver
	store    port.BlobStore
	queue    *fetcher.Queue
	mirrors  []domain.MirrorDescriptor
	logger   *zap.Logger
}

// New creates an Installer that fetches from the given mirrors.
func New(resolver port.MetadataResolver, store port.BlobStore, queue *fetcher.Queue, mirrors []domain.MirrorDescriptor, logger *zap.Logger) *Installer {
	return &Installer{
		resolver: resolver,
		store:    store,
		queue:    queue,
		mirrors:  mirrors,
		logger:   logger,
	}
}

// Install fetches the package and all its content blobs into the local
// store, returning the content id the package was installed under. It
// returns on the first unrecoverable error.
func (s *Installer) Install(ctx context.Context, req Request) (domain.ContentID, error) {
	id, size, err := s.resolver.Resolve(ctx, req.Name, req.Variant)
	if err != nil {
		return domain.ContentID{}, fmt.Errorf("resolve %s/%s: %w", req.Name, req.Variant, err)
	}

	if req.Pin != nil {
		// The resolve above only validated that the name and variant
		// exist; it doesn't guarantee the pinned id ever belonged to them.
		id = *req.Pin
	}

	exists, err := s.store.ProbeReadable(ctx, id, nil)
	if err != nil {
		// Fail open toward re-fetching, never toward a false success.
		s.logger.Error("unable to check whether package is already cached, assuming it isn't",
			zap.String("package", req.Name),
			zap.String("content_id", id.String()),
			zap.Error(err))
		exists = false
	}
	if exists {
		s.logger.Debug("package already cached",
			zap.String("package", req.Name),
			zap.String("content_id", id.String()))
		return id, nil
	}

	// Fetch the meta object.
	expectedLen := size
	res := s.queue.Push(id, domain.FetchContext{
		Kind:        domain.KindPackage,
		Mirrors:     s.mirrors,
		ExpectedLen: &expectedLen,
	})
	if err := res.Wait(ctx); err != nil {
		return domain.ContentID{}, fmt.Errorf("fetch meta object %s: %w", id, err)
	}

	// Drain needs. Each listing reflects current on-disk state; an empty
	// batch means the package is fully satisfied.
	for {
		needs, err := s.store.ListNeeds(ctx, id)
		if err != nil {
			return domain.ContentID{}, fmt.Errorf("list needs for %s: %w", id, err)
		}
		if len(needs) == 0 {
			break
		}

		s.logger.Info("fetching content blobs",
			zap.String("package", req.Name),
			zap.String("content_id", id.String()),
			zap.Int("count", len(needs)))

		reqs := make([]fetcher.FetchRequest, 0, len(needs))
		for _, need := range needs {
			reqs = append(reqs, fetcher.FetchRequest{
				ID: need,
				Context: domain.FetchContext{
					Kind:    domain.KindData,
					Mirrors: s.mirrors,
				},
			})
		}

		results := s.queue.PushAll(reqs)
		g, gctx := errgroup.WithContext(ctx)
		for _, r := range results {
			r := r
			g.Go(func() error {
				return r.Wait(gctx)
			})
		}
		if err := g.Wait(); err != nil {
			return domain.ContentID{}, fmt.Errorf("fetch content blobs for %s: %w", id, err)
		}
	}

	s.logger.Info("package installed",
		zap.String("package", req.Name),
		zap.String("variant", req.Variant),
		zap.String("content_id", id.String()))
	return id, nil
}

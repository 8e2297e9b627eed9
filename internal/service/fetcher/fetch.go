package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/quarryos/pkgfetch/internal/domain"
	"github.com/quarryos/pkgfetch/internal/port"
	"go.uber.org/zap"
)

// Config contains fetcher configuration.
type Config struct {
	MaxConcurrency int
	MaxAttempts    int
	RetryDelay     time.Duration
}

// DefaultConfig returns default fetcher configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrency: 5,
		MaxAttempts:    4,
		RetryDelay:     500 * time.Millisecond,
	}
}

// Fetcher downloads blobs into the content store, wrapping each transfer
// in a bounded retry policy and recording per-mirror health telemetry.
type Fetcher struct {
	config *Config
	client *http.Client
	store  port.BlobStore
	stats  *domain.StatsTable
	clock  clock.Clock
	logger *zap.Logger
}

// New creates a Fetcher.
func New(cfg *Config, client *http.Client, store port.BlobStore, stats *domain.StatsTable, clk clock.Clock, logger *zap.Logger) *Fetcher {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		// Normalize a private copy; the caller may share cfg.
		c := *cfg
		cfg = &c
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if client == nil {
		client = http.DefaultClient
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Fetcher{
		config: cfg,
		client: client,
		store:  store,
		stats:  stats,
		clock:  clk,
		logger: logger,
	}
}

// NewQueue returns a fetch queue that executes units with this fetcher.
func (f *Fetcher) NewQueue() *Queue {
	return NewQueue(f.FetchBlob, f.config.MaxConcurrency, f.logger)
}

// FetchBlob downloads one blob, retrying transient failures with a
// doubling backoff. When all attempts fail it returns the first error of
// the sequence: an early definitive failure is usually more diagnostic
// than a later timeout.
func (f *Fetcher) FetchBlob(ctx context.Context, id domain.ContentID, fctx domain.FetchContext) error {
	if len(fctx.Mirrors) == 0 {
		return domain.ErrNoMirrors
	}

	// Only the primary mirror is used. Fallback ordering across mirrors is
	// unspecified upstream, so the rest of the list is ignored for now.
	mirror := fctx.Mirrors[0]
	mirrorStats := f.stats.ForMirror(mirror.BlobBaseURL)

	blobURL, err := makeBlobURL(mirror.BlobBaseURL, id)
	if err != nil {
		return err
	}

	var firstErr error
	flaked := false

	attempt := func() error {
		err := f.attemptOnce(ctx, id, fctx, blobURL)

		// Classification feeds telemetry only; the retry policy itself
		// retries on any error until attempts are exhausted.
		if err == nil {
			if flaked {
				mirrorStats.NetworkBlips().Increment()
			}
			return nil
		}
		switch classify(err) {
		case errorKindRateLimit:
			mirrorStats.NetworkRateLimits().Increment()
		case errorKindNetwork:
			flaked = true
		}
		if firstErr == nil {
			firstErr = err
		}
		return err
	}

	err = retry.Call(retry.CallArgs{
		Func:        attempt,
		Attempts:    f.config.MaxAttempts,
		Delay:       f.config.RetryDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       f.clock,
		Stop:        ctx.Done(),
		NotifyFunc: func(lastError error, attempt int) {
			f.logger.Debug("blob fetch attempt failed",
				zap.String("content_id", id.String()),
				zap.String("mirror", mirror.BlobBaseURL),
				zap.Int("attempt", attempt),
				zap.Error(lastError))
		},
	})
	if err != nil {
		if firstErr != nil {
			return firstErr
		}
		return err
	}
	return nil
}

// attemptOnce is one unit of work under the retry policy: create or detect
// the blob in the store, then run the download protocol against it.
func (f *Fetcher) attemptOnce(ctx context.Context, id domain.ContentID, fctx domain.FetchContext, blobURL string) error {
	sink, err := f.store.CreateForWrite(ctx, id, fctx.Kind)
	if err != nil {
		return fmt.Errorf("create blob: %w", err)
	}
	return downloadBlob(ctx, f.client, blobURL, fctx.Kind, fctx.ExpectedLen, f.store.MaxWriteSize(), sink)
}

// errorKind is the flat classification consumed by the telemetry path. It
// is deliberately separate from the propagated error types.
type errorKind int

const (
	errorKindOther errorKind = iota
	errorKindNetwork
	errorKindRateLimit
)

func classify(err error) errorKind {
	var statusErr *domain.BadHTTPStatusError
	if errors.As(err, &statusErr) {
		if statusErr.Status == http.StatusTooManyRequests {
			return errorKindRateLimit
		}
		return errorKindNetwork
	}
	var netErr *domain.NetworkError
	if errors.As(err, &netErr) {
		return errorKindNetwork
	}
	return errorKindOther
}

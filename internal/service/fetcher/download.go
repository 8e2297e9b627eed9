package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/quarryos/pkgfetch/internal/domain"
	"github.com/quarryos/pkgfetch/internal/port"
)

// readBufferSize is the size of the network read buffer. Each read is
// split further into store-sized writes.
const readBufferSize = 32 * 1024

// makeBlobURL joins a mirror's base URL with a content id's hex form,
// normalizing a single trailing slash on the base path and preserving any
// query string.
func makeBlobURL(blobBaseURL string, id domain.ContentID) (string, error) {
	u, err := url.Parse(blobBaseURL)
	if err != nil {
		return "", &domain.BlobURLError{URL: blobBaseURL, Reason: err.Error()}
	}
	if u.Scheme == "" || u.Host == "" {
		return "", &domain.BlobURLError{URL: blobBaseURL, Reason: "url has no path"}
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + id.String()
	u.RawPath = ""
	return u.String(), nil
}

// downloadBlob performs a single download attempt for one blob against one
// mirror, streaming the response into sink. A nil sink means the store
// already has the blob and the attempt is a no-op success.
//
// The sink is closed on every exit path. A handle left open after a failed
// attempt makes the store reject subsequent opens of the same blob for
// writing, which corrupts later retries.
func downloadBlob(ctx context.Context, client *http.Client, blobURL string, kind domain.ContentKind, expectedLen *uint64, maxWrite int, sink port.WriteSink) error {
	if sink == nil {
		return nil
	}
	defer sink.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, blobURL, nil)
	if err != nil {
		return fmt.Errorf("build blob request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return &domain.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &domain.BadHTTPStatusError{Status: resp.StatusCode}
	}

	resolvedLen, err := resolveLength(expectedLen, resp.ContentLength)
	if err != nil {
		return err
	}

	if err := sink.Truncate(resolvedLen); err != nil {
		return fmt.Errorf("truncate blob: %w", err)
	}

	var written uint64
	buf := make([]byte, readBufferSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if written+uint64(len(chunk)) > resolvedLen {
				return domain.ErrBlobTooLarge
			}
			// Split into writes the store can accept in one call.
			for len(chunk) > 0 {
				sub := chunk
				if len(sub) > maxWrite {
					sub = sub[:maxWrite]
				}
				actual, werr := sink.Write(sub)
				if werr != nil {
					if errors.Is(werr, domain.ErrAlreadyExists) &&
						kind == domain.KindPackage && written+actual == resolvedLen {
						// The store reports already-exists on the final
						// write of a meta object iff no other needs
						// remain. Accept it, but the caller still checks
						// needs afterwards.
					} else {
						return fmt.Errorf("write blob: %w", werr)
					}
				}
				if actual > uint64(len(sub)) {
					return domain.ErrOverwrite
				}
				written += actual
				chunk = chunk[actual:]
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return &domain.NetworkError{Err: rerr}
		}
	}

	if written != resolvedLen {
		return domain.ErrBlobTooSmall
	}
	return nil
}

// resolveLength reconciles the caller's expected length with the length
// declared by the mirror. respLen is negative when the response did not
// declare one.
func resolveLength(expectedLen *uint64, respLen int64) (uint64, error) {
	switch {
	case expectedLen != nil && respLen >= 0:
		if *expectedLen != uint64(respLen) {
			return 0, &domain.ContentLengthMismatchError{Expected: *expectedLen, Actual: uint64(respLen)}
		}
		return *expectedLen, nil
	case expectedLen != nil:
		return *expectedLen, nil
	case respLen >= 0:
		return uint64(respLen), nil
	default:
		return 0, domain.ErrUnknownLength
	}
}

package repoclient

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/quarryos/pkgfetch/internal/domain"
	"github.com/quarryos/pkgfetch/internal/port"
	"go.uber.org/zap"
)

// Client resolves package names against the repository's metadata
// endpoint.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *zap.Logger
}

// Ensure Client implements port.MetadataResolver
var _ port.MetadataResolver = (*Client)(nil)

// New creates a repository client for the given base URL.
func New(baseURL string, httpc *http.Client, logger *zap.Logger) *Client {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpc:   httpc,
		logger:  logger,
	}
}

type resolveResponse struct {
	Merkle string `json:"merkle"`
	Size   uint64 `json:"size"`
}

// Resolve returns the content id and size of the meta object for the
// given package name and variant.
func (c *Client) Resolve(ctx context.Context, name, variant string) (domain.ContentID, uint64, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("variant", variant)
	reqURL := c.baseURL + "/resolve?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.ContentID{}, 0, fmt.Errorf("build resolve request: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return domain.ContentID{}, 0, fmt.Errorf("query repository: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return domain.ContentID{}, 0, domain.ErrPackageNotFound
	default:
		c.logger.Error("failed to look up package in repository",
			zap.String("name", name),
			zap.String("variant", variant),
			zap.Int("status", resp.StatusCode))
		return domain.ContentID{}, 0, &domain.UnexpectedStatusError{Status: resp.StatusCode}
	}

	var body resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.ContentID{}, 0, fmt.Errorf("decode resolve response: %w", err)
	}

	id, err := domain.ParseContentID(body.Merkle)
	if err != nil {
		return domain.ContentID{}, 0, fmt.Errorf("repository returned an invalid content id: %w", err)
	}
	// Sizes beyond the signed 64-bit range cannot be represented by the
	// local store.
	if body.Size > math.MaxInt64 {
		return domain.ContentID{}, 0, domain.ErrSizeTooLarge
	}

	return id, body.Size, nil
}

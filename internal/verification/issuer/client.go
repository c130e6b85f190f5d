// Package issuer reads the issuance service's credential listing.
package issuer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Hodazia/kubecredentials/internal/verification/models"
	"github.com/Hodazia/kubecredentials/pkg/platform/sentinel"
)

// Client fetches the issuer's full credential listing. Implementations
// return sentinel.ErrUnavailable-wrapped errors when the issuer cannot be
// consulted; the verification protocol turns those into an upstream-error
// outcome rather than a transport failure.
type Client interface {
	Fetch(ctx context.Context) (*models.Snapshot, error)
}

// listingResponse mirrors the issuance GET /credentials body.
type listingResponse struct {
	Success     bool                      `json:"success"`
	Credentials []models.IssuedCredential `json:"credentials"`
	Count       int                       `json:"count"`
}

// HTTPClient is the remote read over the issuance wire contract. Concurrent
// fetches coalesce into a single upstream request.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	group   singleflight.Group
}

// NewHTTPClient creates a client against the given issuance base URL. The
// timeout bounds the whole fetch; there is no retry, a slow issuer surfaces
// as unavailable.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *HTTPClient) Fetch(ctx context.Context) (*models.Snapshot, error) {
	v, err, shared := c.group.Do("snapshot", func() (any, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.DebugContext(ctx, "issuer fetch coalesced with in-flight request")
	}
	return v.(*models.Snapshot), nil
}

func (c *HTTPClient) fetch(ctx context.Context) (*models.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/credentials", nil)
	if err != nil {
		return nil, fmt.Errorf("build issuer request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("issuer unreachable: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("issuer returned status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var listing listingResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode issuer listing: %w: %w", sentinel.ErrUnavailable, err)
	}

	return &models.Snapshot{
		Credentials: listing.Credentials,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

var _ Client = (*HTTPClient)(nil)

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/voxnote-app/voxnote/internal/config"
)

// Sentinel errors for the two retrieval failures the caller can act on.
var (
	ErrNotFound     = errors.New("object not found")
	ErrAccessDenied = errors.New("object access denied")
)

// Fetcher retrieves raw audio bytes for an object reference.
type Fetcher interface {
	Download(ctx context.Context, ref string) ([]byte, error)
}

// Client downloads objects from a Supabase-style storage API using a
// service-role key. The caller is trusted to have authorized the
// request already; this client only moves bytes.
type Client struct {
	baseURL    string
	bucket     string
	serviceKey string
	httpClient *http.Client
}

func NewClient(cfg config.StorageConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		bucket:     cfg.Bucket,
		serviceKey: cfg.ServiceKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Download returns the object's bytes unchanged. No assumptions are
// made about the audio encoding.
func (c *Client) Download(ctx context.Context, ref string) ([]byte, error) {
	// References may contain path separators (e.g. "user-id/ts.m4a"),
	// so they are used verbatim, not escaped as a single segment.
	u := fmt.Sprintf("%s/object/%s/%s", c.baseURL, c.bucket, strings.TrimPrefix(ref, "/"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading object %q: %w", ref, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("object %q: %w", ref, ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("object %q: %w", ref, ErrAccessDenied)
	default:
		return nil, fmt.Errorf("downloading object %q: unexpected status %d", ref, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %q: %w", ref, err)
	}
	return data, nil
}

var _ Fetcher = (*Client)(nil)

// Package bookinfo fetches catalog metadata (page count, blurb, cover, publish
// date) from an upstream book information service.
package bookinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned when upstream cannot find the requested book.
var ErrNotFound = errors.New("bookinfo: not found")

// Result contains the data used to fill gaps in a new catalog entry.
type Result struct {
	Pages         *int
	Description   *string
	CoverURL      *string
	Category      *string
	PublishedDate *time.Time
}

// Client defines the contract for querying the upstream metadata API.
type Client interface {
	Fetch(ctx context.Context, title string) (*Result, error)
}

// NoopClient is used when no upstream is configured. It never finds anything.
type NoopClient struct{}

// Fetch always reports ErrNotFound.
func (NoopClient) Fetch(context.Context, string) (*Result, error) {
	return nil, ErrNotFound
}

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	baseURL *url.URL
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient constructs a new HTTP-backed metadata client.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) (*HTTPClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse bookinfo url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("parse bookinfo url: unsupported scheme %q", parsed.Scheme)
	}
	return &HTTPClient{
		baseURL: parsed,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logger.Named("bookinfo"),
	}, nil
}

// Fetch retrieves metadata by title.
func (c *HTTPClient) Fetch(ctx context.Context, title string) (*Result, error) {
	rel := &url.URL{Path: "books"}
	q := rel.Query()
	q.Set("title", title)
	rel.RawQuery = q.Encode()
	base := *c.baseURL
	base.Path = strings.TrimRight(base.Path, "/") + "/"
	endpoint := base.ResolveReference(rel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var payload apiResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode bookinfo response: %w", err)
		}
		return convertToResult(payload), nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		c.logger.Warn("unexpected upstream status",
			zap.Int("status", resp.StatusCode), zap.String("title", title))
		return nil, fmt.Errorf("bookinfo: upstream returned %d", resp.StatusCode)
	}
}

type apiResponse struct {
	Title         string  `json:"title"`
	Pages         *int    `json:"pages"`
	Description   *string `json:"description"`
	CoverURL      *string `json:"coverUrl"`
	Category      *string `json:"category"`
	PublishedDate *string `json:"publishedDate"`
}

// convertToResult drops values that could not be stored as-is.
func convertToResult(payload apiResponse) *Result {
	result := &Result{
		Description: trimmed(payload.Description),
		Category:    trimmed(payload.Category),
	}
	if payload.Pages != nil && *payload.Pages > 0 {
		pages := *payload.Pages
		result.Pages = &pages
	}
	if cover := trimmed(payload.CoverURL); cover != nil {
		if u, err := url.Parse(*cover); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
			result.CoverURL = cover
		}
	}
	if raw := trimmed(payload.PublishedDate); raw != nil {
		if d, ok := parseDate(*raw); ok {
			result.PublishedDate = &d
		}
	}
	return result
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// Package musicbrainz resolves disc metadata from the MusicBrainz web service.
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/mfutil/mfutil-go/internal/errors"
	"github.com/mfutil/mfutil-go/internal/monitoring"
)

const (
	// DefaultBaseURL is the ws/2 API root
	DefaultBaseURL = "https://musicbrainz.org/ws/2"
	// DefaultUserAgent identifies the application as MusicBrainz requires
	DefaultUserAgent = "mfutil/0.1.1 ( https://github.com/anoraktrend/music-folder-utils )"
)

// Client handles MusicBrainz API interactions
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	rateLimiter *rate.Limiter
	retry       apperrors.RetryConfig
	logger      *zap.Logger
}

// ClientOptions configures a Client
type ClientOptions struct {
	BaseURL        string
	UserAgent      string
	RequestsPerSec float64
	MaxRetries     int
	Logger         *zap.Logger
}

// NewClient creates a MusicBrainz client over httpClient
func NewClient(httpClient *http.Client, opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 1
	}

	retry := apperrors.DefaultRetryConfig()
	retry.MaxRetries = opts.MaxRetries
	retry.InitialBackoff = time.Second
	retry.MaxBackoff = 5 * time.Second
	retry.Jitter = 0.2

	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		userAgent:   opts.UserAgent,
		rateLimiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1),
		retry:       retry,
		logger:      monitoring.OrNop(opts.Logger),
	}
}

// LookupDiscID returns the first release containing the disc. A disc id
// unknown to MusicBrainz yields a not found error.
func (c *Client) LookupDiscID(ctx context.Context, discID string) (*Release, error) {
	if discID == "" {
		return nil, apperrors.NewValidationError("disc id cannot be empty")
	}

	// inc values are joined with a literal '+', which url.Values would escape.
	var resp discIDResponse
	if err := c.getJSON(ctx, "discid", "/discid/"+url.PathEscape(discID), "fmt=json&inc=artist-credits+recordings", &resp); err != nil {
		return nil, err
	}
	if len(resp.Releases) == 0 {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no releases for disc id %s", discID))
	}
	return resp.Releases[0].toRelease(discID), nil
}

// SearchRelease returns the best match for an artist and album title.
// Search results carry no track listing.
func (c *Client) SearchRelease(ctx context.Context, artist, title string) (*Release, error) {
	if artist == "" && title == "" {
		return nil, apperrors.NewValidationError("artist or title is required")
	}

	params := url.Values{}
	params.Set("query", fmt.Sprintf("release:%s AND artist:%s", quote(title), quote(artist)))
	params.Set("fmt", "json")
	params.Set("limit", "1")

	var resp searchResponse
	if err := c.getJSON(ctx, "search", "/release/", params.Encode(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Releases) == 0 {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no release matches %s - %s", artist, title))
	}
	rel := resp.Releases[0].toRelease("")
	rel.Tracks = nil
	return rel, nil
}

// quote wraps a Lucene phrase, escaping embedded quotes.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func (c *Client) getJSON(ctx context.Context, endpoint, path, rawQuery string, out interface{}) error {
	rawURL := c.baseURL + path + "?" + rawQuery

	return apperrors.RetryWithBackoff(ctx, c.retry, func() error {
		return c.doRequest(ctx, endpoint, rawURL, out)
	})
}

// doRequest performs one rate limited request
func (c *Client) doRequest(ctx context.Context, endpoint, rawURL string, out interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		monitoring.RecordAPIRequest(endpoint, "error", time.Since(start))
		return apperrors.NewNetworkError("MusicBrainz request failed", err)
	}
	defer resp.Body.Close()
	monitoring.RecordAPIRequest(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))

	c.logger.Debug("musicbrainz request",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NewNotFoundError("MusicBrainz: not found")
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests:
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return apperrors.NewRateLimitError("MusicBrainz rate limit", retryAfter)
	case resp.StatusCode != http.StatusOK:
		err := apperrors.NewNetworkError(fmt.Sprintf("MusicBrainz returned status %d", resp.StatusCode), nil)
		err.Retryable = resp.StatusCode >= 500
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

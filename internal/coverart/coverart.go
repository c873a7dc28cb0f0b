// Package coverart finds front cover images for a release.
package coverart

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/mfutil/mfutil-go/internal/errors"
	"github.com/mfutil/mfutil-go/internal/monitoring"
)

// Default service endpoints
const (
	DefaultArchiveURL = "https://coverartarchive.org"
	DefaultAudioDBURL = "https://www.theaudiodb.com/api/v1/json/2"
)

// maxImageBytes bounds a single download.
const maxImageBytes = 20 << 20

// ErrSkipped is returned by a Source that cannot serve the query.
var ErrSkipped = stderrors.New("source not applicable")

// Query identifies the release whose cover is wanted
type Query struct {
	ReleaseID string
	Artist    string
	Album     string
}

func (q Query) cacheKey() string {
	if q.ReleaseID != "" {
		return "release:" + q.ReleaseID
	}
	return "search:" + strings.ToLower(q.Artist) + "\x00" + strings.ToLower(q.Album)
}

// Source is one place cover art can come from
type Source interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]byte, error)
}

// ArchiveSource fetches the front image from the Cover Art Archive
type ArchiveSource struct {
	baseURL string
	client  *http.Client
}

// NewArchiveSource creates an ArchiveSource
func NewArchiveSource(baseURL string, client *http.Client) *ArchiveSource {
	if baseURL == "" {
		baseURL = DefaultArchiveURL
	}
	return &ArchiveSource{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Name implements Source
func (s *ArchiveSource) Name() string { return "coverartarchive" }

// Fetch implements Source
func (s *ArchiveSource) Fetch(ctx context.Context, q Query) ([]byte, error) {
	if q.ReleaseID == "" {
		return nil, ErrSkipped
	}
	return get(ctx, s.client, s.Name(), fmt.Sprintf("%s/release/%s/front", s.baseURL, url.PathEscape(q.ReleaseID)))
}

// AudioDBSource looks up album thumbnails on TheAudioDB
type AudioDBSource struct {
	baseURL string
	client  *http.Client
}

// NewAudioDBSource creates an AudioDBSource
func NewAudioDBSource(baseURL string, client *http.Client) *AudioDBSource {
	if baseURL == "" {
		baseURL = DefaultAudioDBURL
	}
	return &AudioDBSource{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Name implements Source
func (s *AudioDBSource) Name() string { return "audiodb" }

type audioDBResponse struct {
	Album []struct {
		StrAlbumThumb string `json:"strAlbumThumb"`
	} `json:"album"`
}

// Fetch implements Source
func (s *AudioDBSource) Fetch(ctx context.Context, q Query) ([]byte, error) {
	if q.Artist == "" || q.Album == "" {
		return nil, ErrSkipped
	}

	params := url.Values{}
	params.Set("s", q.Artist)
	params.Set("a", q.Album)
	body, err := get(ctx, s.client, s.Name()+"_search", s.baseURL+"/searchalbum.php?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var result audioDBResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Album) == 0 {
		return nil, apperrors.NewNotFoundError("album not found on TheAudioDB")
	}
	thumb := result.Album[0].StrAlbumThumb
	if thumb == "" || thumb == "null" {
		return nil, apperrors.NewNotFoundError("album has no thumbnail on TheAudioDB")
	}

	return get(ctx, s.client, s.Name(), thumb)
}

// get performs a GET and returns the body. Status codes are mapped onto the
// error taxonomy so callers can tell a miss from an outage.
func get(ctx context.Context, client *http.Client, endpoint, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		monitoring.RecordAPIRequest(endpoint, "error", time.Since(start))
		return nil, apperrors.NewNetworkError(fmt.Sprintf("request to %s failed", endpoint), err)
	}
	defer resp.Body.Close()
	monitoring.RecordAPIRequest(endpoint, fmt.Sprintf("%d", resp.StatusCode), time.Since(start))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("%s: not found", endpoint))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.NewRateLimitError(endpoint, 1)
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.NewNetworkError(fmt.Sprintf("%s returned status %d", endpoint, resp.StatusCode), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, apperrors.NewNetworkError(fmt.Sprintf("failed to read %s response", endpoint), err)
	}
	return data, nil
}

// Resolver tries each source in turn
type Resolver struct {
	sources []Source
	cache   *Cache
	maxSize int
	logger  *zap.Logger
}

// NewResolver creates a Resolver. cache may be nil; maxSize <= 0 keeps
// images at their original size.
func NewResolver(sources []Source, cache *Cache, maxSize int, logger *zap.Logger) *Resolver {
	return &Resolver{
		sources: sources,
		cache:   cache,
		maxSize: maxSize,
		logger:  monitoring.OrNop(logger),
	}
}

// Resolve returns the first image any source yields, or nil. Failures are
// logged and never returned; a missing cover does not stop an import.
func (r *Resolver) Resolve(ctx context.Context, q Query) []byte {
	key := q.cacheKey()
	if r.cache != nil {
		if data, ok := r.cache.Get(key); ok {
			monitoring.RecordCoverArt("cache", "hit")
			return data
		}
	}

	for _, src := range r.sources {
		if ctx.Err() != nil {
			return nil
		}

		data, err := src.Fetch(ctx, q)
		if stderrors.Is(err, ErrSkipped) {
			continue
		}
		if err != nil {
			r.logger.Debug("cover art source failed",
				zap.String("source", src.Name()),
				zap.Error(err),
			)
			result := "error"
			if apperrors.IsNotFoundError(err) {
				result = "miss"
			}
			monitoring.RecordCoverArt(src.Name(), result)
			continue
		}
		if len(data) == 0 {
			monitoring.RecordCoverArt(src.Name(), "miss")
			continue
		}

		if resized, err := Shrink(data, r.maxSize); err != nil {
			r.logger.Warn("failed to resize cover art", zap.String("source", src.Name()), zap.Error(err))
		} else {
			data = resized
		}

		if r.cache != nil {
			if err := r.cache.Put(key, data); err != nil {
				r.logger.Warn("failed to cache cover art", zap.Error(err))
			}
		}

		monitoring.RecordCoverArt(src.Name(), "found")
		r.logger.Info("cover art found",
			zap.String("source", src.Name()),
			zap.Int("bytes", len(data)),
		)
		return data
	}

	r.logger.Info("no cover art found",
		zap.String("release_id", q.ReleaseID),
		zap.String("artist", q.Artist),
		zap.String("album", q.Album),
	)
	return nil
}

package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/mfutil/mfutil-go/internal/disc"
	"github.com/mfutil/mfutil-go/internal/monitoring"
)

// Strategy is one way of finding the release for a disc. A nil release with
// a nil error means the strategy found nothing.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, info *disc.Info) (*Release, error)
}

// DiscIDStrategy looks the disc up by its MusicBrainz disc id
type DiscIDStrategy struct {
	client *Client
}

// NewDiscIDStrategy creates a DiscIDStrategy
func NewDiscIDStrategy(client *Client) *DiscIDStrategy {
	return &DiscIDStrategy{client: client}
}

// Name implements Strategy
func (s *DiscIDStrategy) Name() string { return "discid" }

// Resolve implements Strategy
func (s *DiscIDStrategy) Resolve(ctx context.Context, info *disc.Info) (*Release, error) {
	return s.client.LookupDiscID(ctx, info.DiscID)
}

// SearchStrategy searches by the artist and title already on the disc info,
// placeholders included, and takes the first hit.
type SearchStrategy struct {
	client *Client
}

// NewSearchStrategy creates a SearchStrategy
func NewSearchStrategy(client *Client) *SearchStrategy {
	return &SearchStrategy{client: client}
}

// Name implements Strategy
func (s *SearchStrategy) Name() string { return "search" }

// Resolve implements Strategy
func (s *SearchStrategy) Resolve(ctx context.Context, info *disc.Info) (*Release, error) {
	return s.client.SearchRelease(ctx, info.Artist, info.Title)
}

// ReleaseStore persists releases as JSON keyed by disc id
type ReleaseStore interface {
	GetRelease(discID string) ([]byte, bool, error)
	PutRelease(discID string, data []byte) error
}

// CacheStrategy serves releases resolved by earlier imports
type CacheStrategy struct {
	store ReleaseStore
}

// NewCacheStrategy creates a CacheStrategy over store
func NewCacheStrategy(store ReleaseStore) *CacheStrategy {
	return &CacheStrategy{store: store}
}

// Name implements Strategy
func (s *CacheStrategy) Name() string { return "cache" }

// Resolve implements Strategy
func (s *CacheStrategy) Resolve(ctx context.Context, info *disc.Info) (*Release, error) {
	data, ok, err := s.store.GetRelease(info.DiscID)
	if err != nil || !ok {
		return nil, err
	}
	var rel Release
	if err := json.Unmarshal(data, &rel); err != nil {
		return nil, fmt.Errorf("corrupt cached release for %s: %w", info.DiscID, err)
	}
	return &rel, nil
}

// Save records rel for discID
func (s *CacheStrategy) Save(discID string, rel *Release) error {
	data, err := json.Marshal(rel)
	if err != nil {
		return err
	}
	return s.store.PutRelease(discID, data)
}

// Resolver runs strategies in order until one returns a release
type Resolver struct {
	strategies []Strategy
	cache      *CacheStrategy
	logger     *zap.Logger
}

// NewResolver creates a Resolver. A CacheStrategy in the chain also receives
// releases found by the strategies after it.
func NewResolver(logger *zap.Logger, strategies ...Strategy) *Resolver {
	r := &Resolver{
		strategies: strategies,
		logger:     monitoring.OrNop(logger),
	}
	for _, s := range strategies {
		if c, ok := s.(*CacheStrategy); ok {
			r.cache = c
		}
	}
	return r
}

// Resolve returns info merged with the first release found. Strategy errors
// are logged and the next strategy is tried; when nothing matches, info is
// returned as is.
func (r *Resolver) Resolve(ctx context.Context, info *disc.Info) *disc.Info {
	for _, s := range r.strategies {
		if ctx.Err() != nil {
			break
		}

		rel, err := s.Resolve(ctx, info)
		if err != nil {
			r.logger.Warn("release lookup failed",
				zap.String("strategy", s.Name()),
				zap.String("disc_id", info.DiscID),
				zap.Error(err),
			)
			continue
		}
		if rel == nil {
			continue
		}

		r.logger.Info("release found",
			zap.String("strategy", s.Name()),
			zap.String("release_id", rel.ID),
			zap.String("artist", rel.Artist),
			zap.String("title", rel.Title),
		)

		if r.cache != nil && s != Strategy(r.cache) && len(rel.Tracks) > 0 {
			if err := r.cache.Save(info.DiscID, rel); err != nil {
				r.logger.Warn("failed to cache release", zap.Error(err))
			}
		}
		return Merge(info, rel)
	}
	return info
}

// Merge overlays rel onto info by track number. Tracks without a
// counterpart keep their placeholder title; durations are only replaced by
// positive values. Sector ranges always come from info.
func Merge(info *disc.Info, rel *Release) *disc.Info {
	if rel == nil {
		return info
	}

	byNumber := make(map[int]ReleaseTrack, len(rel.Tracks))
	for _, t := range rel.Tracks {
		byNumber[t.Number] = t
	}

	artist := info.Artist
	if rel.Artist != "" {
		artist = rel.Artist
	}
	title := info.Title
	if rel.Title != "" {
		title = rel.Title
	}

	tracks := make([]disc.CdTrack, len(info.Tracks))
	for i, t := range info.Tracks {
		merged := t
		if rt, ok := byNumber[t.Number]; ok {
			if rt.Title != "" {
				merged.Title = rt.Title
			}
			if rt.Artist != "" {
				merged.Artist = rt.Artist
			} else {
				merged.Artist = artist
			}
			if rt.DurationSeconds > 0 {
				merged.DurationSeconds = rt.DurationSeconds
			}
		} else if merged.Artist == "" || merged.Artist == info.Artist {
			merged.Artist = artist
		}
		tracks[i] = merged
	}

	return disc.NewInfo(info.DiscID, title, artist, rel.ID, tracks)
}

package musicbrainz_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfutil/mfutil-go/internal/disc"
	apperrors "github.com/mfutil/mfutil-go/internal/errors"
	"github.com/mfutil/mfutil-go/internal/musicbrainz"
)

const discID = "Wn8eRBtfLDfM0qjYPdxrz.Zjs_U-"

const discIDBody = `{
  "id": "Wn8eRBtfLDfM0qjYPdxrz.Zjs_U-",
  "releases": [{
    "id": "rel-1",
    "title": "Unplugged",
    "artist-credit": [
      {"name": "Simon", "joinphrase": " & ", "artist": {"name": "Paul Simon"}},
      {"name": "Garfunkel", "joinphrase": ""}
    ],
    "media": [
      {"position": 1, "discs": [{"id": "other"}], "tracks": [
        {"number": "1", "position": 1, "title": "Wrong Medium", "length": 1000}
      ]},
      {"position": 2, "discs": [{"id": "Wn8eRBtfLDfM0qjYPdxrz.Zjs_U-"}], "tracks": [
        {"number": "1", "position": 1, "title": "Intro", "length": 125000},
        {"number": "2", "position": 2, "title": "", "length": null,
         "recording": {"title": "Second Song", "length": 200500}},
        {"number": "A3", "position": 3, "title": "Guest Spot", "length": 90000,
         "artist-credit": [{"name": "Guest", "joinphrase": ""}]}
      ]}
    ]
  }]
}`

func newClient(srv *httptest.Server) *musicbrainz.Client {
	return musicbrainz.NewClient(srv.Client(), musicbrainz.ClientOptions{
		BaseURL:        srv.URL,
		RequestsPerSec: 1000,
	})
}

func TestLookupDiscID(t *testing.T) {
	var gotUA, gotQuery, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotQuery = r.URL.RawQuery
		gotPath = r.URL.Path
		fmt.Fprint(w, discIDBody)
	}))
	defer srv.Close()

	rel, err := newClient(srv).LookupDiscID(context.Background(), discID)
	require.NoError(t, err)

	assert.Equal(t, musicbrainz.DefaultUserAgent, gotUA)
	assert.Equal(t, "/discid/"+discID, gotPath)
	assert.Equal(t, "fmt=json&inc=artist-credits+recordings", gotQuery)

	assert.Equal(t, "rel-1", rel.ID)
	assert.Equal(t, "Unplugged", rel.Title)
	assert.Equal(t, "Simon & Garfunkel", rel.Artist)
	require.Len(t, rel.Tracks, 3)
	assert.Equal(t, musicbrainz.ReleaseTrack{Number: 1, Title: "Intro", DurationSeconds: 125}, rel.Tracks[0])
	assert.Equal(t, musicbrainz.ReleaseTrack{Number: 2, Title: "Second Song", DurationSeconds: 200.5}, rel.Tracks[1])
	assert.Equal(t, musicbrainz.ReleaseTrack{Number: 3, Title: "Guest Spot", Artist: "Guest", DurationSeconds: 90}, rel.Tracks[2])
}

func TestLookupDiscIDErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType apperrors.ErrorType
	}{
		{"not found", http.StatusNotFound, `{"error":"Not Found"}`, apperrors.ErrTypeNotFound},
		{"no releases", http.StatusOK, `{"id":"x","releases":[]}`, apperrors.ErrTypeNotFound},
		{"rate limited", http.StatusServiceUnavailable, ``, apperrors.ErrTypeRateLimit},
		{"bad request", http.StatusBadRequest, ``, apperrors.ErrTypeNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := newClient(srv).LookupDiscID(context.Background(), discID)
			require.Error(t, err)
			assert.Equal(t, tt.wantType, apperrors.GetErrorType(err))
		})
	}
}

func TestLookupDiscIDRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, discIDBody)
	}))
	defer srv.Close()

	c := musicbrainz.NewClient(srv.Client(), musicbrainz.ClientOptions{
		BaseURL:        srv.URL,
		RequestsPerSec: 1000,
		MaxRetries:     1,
	})
	rel, err := c.LookupDiscID(context.Background(), discID)
	require.NoError(t, err)
	assert.Equal(t, "rel-1", rel.ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSearchRelease(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/release/", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		query = r.URL.Query().Get("query")
		fmt.Fprint(w, `{"count":1,"releases":[{"id":"rel-9","title":"Dummy",
			"artist-credit":[{"name":"Portishead"}],
			"media":[{"track-count":11}]}]}`)
	}))
	defer srv.Close()

	rel, err := newClient(srv).SearchRelease(context.Background(), "Portishead", "Dummy")
	require.NoError(t, err)
	assert.Equal(t, `release:"Dummy" AND artist:"Portishead"`, query)
	assert.Equal(t, &musicbrainz.Release{ID: "rel-9", Title: "Dummy", Artist: "Portishead"}, rel)
}

func placeholderInfo() *disc.Info {
	toc := []disc.Track{
		{Number: 1, FirstSector: 0, LastSector: 149, IsAudio: true},
		{Number: 2, FirstSector: 150, LastSector: 299, IsAudio: true},
		{Number: 3, FirstSector: 300, LastSector: 374, IsAudio: true},
		{Number: 4, FirstSector: 375, LastSector: 449, IsAudio: true},
	}
	info, err := disc.BuildInfo(discID, toc, nil)
	if err != nil {
		panic(err)
	}
	return info
}

func TestMerge(t *testing.T) {
	info := placeholderInfo()
	rel := &musicbrainz.Release{
		ID:     "rel-1",
		Title:  "Unplugged",
		Artist: "Simon & Garfunkel",
		Tracks: []musicbrainz.ReleaseTrack{
			{Number: 1, Title: "Intro", DurationSeconds: 125},
			{Number: 2, Title: "Second Song"},
			{Number: 3, Title: "Guest Spot", Artist: "Guest", DurationSeconds: 90},
		},
	}

	merged := musicbrainz.Merge(info, rel)

	assert.Equal(t, "rel-1", merged.ReleaseID)
	assert.Equal(t, "Unplugged", merged.Title)
	assert.Equal(t, "Simon & Garfunkel", merged.Artist)
	require.Len(t, merged.Tracks, 4)

	assert.Equal(t, "Intro", merged.Tracks[0].Title)
	assert.Equal(t, 125.0, merged.Tracks[0].DurationSeconds)
	assert.Equal(t, "Simon & Garfunkel", merged.Tracks[0].Artist)

	assert.Equal(t, "Second Song", merged.Tracks[1].Title)
	assert.Equal(t, 2.0, merged.Tracks[1].DurationSeconds)

	assert.Equal(t, "Guest", merged.Tracks[2].Artist)

	assert.Equal(t, "Track 04", merged.Tracks[3].Title)
	assert.Equal(t, "Simon & Garfunkel", merged.Tracks[3].Artist)

	for i := range merged.Tracks {
		assert.Equal(t, info.Tracks[i].FirstSector, merged.Tracks[i].FirstSector)
		assert.Equal(t, info.Tracks[i].LastSector, merged.Tracks[i].LastSector)
	}
	assert.InDelta(t, 125+2+90+1, merged.TotalDurationSeconds, 1e-9)

	// The input is never modified.
	assert.Equal(t, "Track 01", info.Tracks[0].Title)
	assert.Equal(t, disc.UnknownAlbum, info.Title)
}

type fakeStrategy struct {
	name  string
	rel   *musicbrainz.Release
	err   error
	calls int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Resolve(ctx context.Context, info *disc.Info) (*musicbrainz.Release, error) {
	f.calls++
	return f.rel, f.err
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memStore) GetRelease(discID string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[discID]
	return d, ok, nil
}

func (m *memStore) PutRelease(discID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[discID] = data
	return nil
}

func TestResolverChain(t *testing.T) {
	failing := &fakeStrategy{name: "discid", err: apperrors.NewNetworkError("down", nil)}
	empty := &fakeStrategy{name: "empty"}
	found := &fakeStrategy{name: "search", rel: &musicbrainz.Release{ID: "rel-2", Title: "T", Artist: "A"}}
	never := &fakeStrategy{name: "never", rel: &musicbrainz.Release{ID: "rel-3"}}

	r := musicbrainz.NewResolver(nil, failing, empty, found, never)
	merged := r.Resolve(context.Background(), placeholderInfo())

	assert.Equal(t, "rel-2", merged.ReleaseID)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, empty.calls)
	assert.Equal(t, 0, never.calls)
	assert.Equal(t, "Track 01", merged.Tracks[0].Title)
}

func TestResolverNoMatchReturnsInput(t *testing.T) {
	info := placeholderInfo()
	r := musicbrainz.NewResolver(nil, &fakeStrategy{name: "a"}, &fakeStrategy{name: "b", err: fmt.Errorf("boom")})
	assert.Same(t, info, r.Resolve(context.Background(), info))
}

func TestResolverCachesReleases(t *testing.T) {
	store := &memStore{}
	cache := musicbrainz.NewCacheStrategy(store)
	lookup := &fakeStrategy{name: "discid", rel: &musicbrainz.Release{
		ID: "rel-1", Title: "Unplugged", Artist: "S&G",
		Tracks: []musicbrainz.ReleaseTrack{{Number: 1, Title: "Intro"}},
	}}

	r := musicbrainz.NewResolver(nil, cache, lookup)
	first := r.Resolve(context.Background(), placeholderInfo())
	second := r.Resolve(context.Background(), placeholderInfo())

	assert.Equal(t, 1, lookup.calls)
	assert.Equal(t, first, second)

	var cached musicbrainz.Release
	require.NoError(t, json.Unmarshal(store.data[discID], &cached))
	assert.Equal(t, "rel-1", cached.ID)
}

func TestResolverSearchesPlaceholdersWhenDiscIDUnknown(t *testing.T) {
	var searches int32
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/discid/" + discID:
			w.WriteHeader(http.StatusNotFound)
		case "/release/":
			atomic.AddInt32(&searches, 1)
			query = r.URL.Query().Get("query")
			fmt.Fprint(w, `{"count":2,"releases":[
				{"id":"rel-7","title":"Unknown Album","artist-credit":[{"name":"Unknown Artist"}]},
				{"id":"rel-8","title":"Other","artist-credit":[{"name":"Someone"}]}]}`)
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := newClient(srv)
	r := musicbrainz.NewResolver(nil, musicbrainz.NewDiscIDStrategy(client), musicbrainz.NewSearchStrategy(client))
	got := r.Resolve(context.Background(), placeholderInfo())

	assert.Equal(t, int32(1), atomic.LoadInt32(&searches))
	assert.Equal(t, `release:"Unknown Album" AND artist:"Unknown Artist"`, query)
	assert.Equal(t, "rel-7", got.ReleaseID)
	assert.Equal(t, "Track 01", got.Tracks[0].Title)
}

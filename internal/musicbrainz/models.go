package musicbrainz

import (
	"strconv"
	"strings"
)

// Release is the subset of a MusicBrainz release an import needs
type Release struct {
	ID     string         `json:"id"`
	Title  string         `json:"title"`
	Artist string         `json:"artist"`
	Tracks []ReleaseTrack `json:"tracks,omitempty"`
}

// ReleaseTrack is one track on the matched medium
type ReleaseTrack struct {
	Number          int     `json:"number"`
	Title           string  `json:"title"`
	Artist          string  `json:"artist,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// Wire types for the ws/2 JSON API.

type artistCredit struct {
	Name       string `json:"name"`
	JoinPhrase string `json:"joinphrase"`
	Artist     struct {
		Name string `json:"name"`
	} `json:"artist"`
}

type wsTrack struct {
	Number       string         `json:"number"`
	Position     int            `json:"position"`
	Title        string         `json:"title"`
	Length       *int64         `json:"length"`
	ArtistCredit []artistCredit `json:"artist-credit"`
	Recording    struct {
		Title  string `json:"title"`
		Length *int64 `json:"length"`
	} `json:"recording"`
}

type wsMedium struct {
	Position int `json:"position"`
	Discs    []struct {
		ID string `json:"id"`
	} `json:"discs"`
	Tracks []wsTrack `json:"tracks"`
}

type wsRelease struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	ArtistCredit []artistCredit `json:"artist-credit"`
	Media        []wsMedium     `json:"media"`
}

type discIDResponse struct {
	ID       string      `json:"id"`
	Releases []wsRelease `json:"releases"`
}

type searchResponse struct {
	Count    int         `json:"count"`
	Releases []wsRelease `json:"releases"`
}

// joinCredits renders an artist credit list. Join phrases are used when
// present, otherwise names are joined with " & ".
func joinCredits(credits []artistCredit) string {
	var b strings.Builder
	for i, c := range credits {
		name := c.Name
		if name == "" {
			name = c.Artist.Name
		}
		b.WriteString(name)
		if c.JoinPhrase != "" {
			b.WriteString(c.JoinPhrase)
		} else if i < len(credits)-1 {
			b.WriteString(" & ")
		}
	}
	return strings.TrimSpace(b.String())
}

// medium picks the medium containing discID, or the first one.
func (r *wsRelease) medium(discID string) *wsMedium {
	if len(r.Media) == 0 {
		return nil
	}
	if discID != "" {
		for i := range r.Media {
			for _, d := range r.Media[i].Discs {
				if d.ID == discID {
					return &r.Media[i]
				}
			}
		}
	}
	return &r.Media[0]
}

func (r *wsRelease) toRelease(discID string) *Release {
	rel := &Release{
		ID:     r.ID,
		Title:  r.Title,
		Artist: joinCredits(r.ArtistCredit),
	}

	m := r.medium(discID)
	if m == nil {
		return rel
	}
	for i, t := range m.Tracks {
		number, err := strconv.Atoi(t.Number)
		if err != nil || number <= 0 {
			number = t.Position
		}
		if number <= 0 {
			number = i + 1
		}

		title := t.Title
		if title == "" {
			title = t.Recording.Title
		}

		length := t.Length
		if length == nil {
			length = t.Recording.Length
		}
		var duration float64
		if length != nil && *length > 0 {
			duration = float64(*length) / 1000
		}

		rel.Tracks = append(rel.Tracks, ReleaseTrack{
			Number:          number,
			Title:           title,
			Artist:          joinCredits(t.ArtistCredit),
			DurationSeconds: duration,
		})
	}
	return rel
}

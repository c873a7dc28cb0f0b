// Package disc reads the table of contents of an audio CD and turns it into
// the track list an import works from.
package disc

import (
	"fmt"
)

// Red Book audio constants.
const (
	SectorsPerSecond = 75
	BytesPerSector   = 2352
	SampleRate       = 44100
	Channels         = 2
	BitsPerSample    = 16
)

// Placeholder metadata used until a release is resolved.
const (
	UnknownAlbum  = "Unknown Album"
	UnknownArtist = "Unknown Artist"
)

// Track is one entry of the drive's table of contents. Sectors are logical
// block addresses without the 150 sector lead-in.
type Track struct {
	Number      int
	FirstSector int32
	LastSector  int32
	IsAudio     bool
}

// Valid reports whether the sector range is well formed.
func (t Track) Valid() bool {
	return t.LastSector >= t.FirstSector
}

// Sectors is the inclusive length of the track.
func (t Track) Sectors() int32 {
	return t.LastSector - t.FirstSector + 1
}

// CdTrack is a track after identification, ready to be imported.
type CdTrack struct {
	Number          int
	Title           string
	Artist          string
	DurationSeconds float64
	FirstSector     int32
	LastSector      int32
}

// PlaceholderTitle is the title used when no release metadata is known.
func PlaceholderTitle(number int) string {
	return fmt.Sprintf("Track %02d", number)
}

// OutputFilename is the file name inside the album directory.
func (t CdTrack) OutputFilename(ext string) string {
	return fmt.Sprintf("%02d %s.%s", t.Number, SanitizeFilename(t.Title), ext)
}

// Sectors is the inclusive length of the track.
func (t CdTrack) Sectors() int {
	return int(t.LastSector-t.FirstSector) + 1
}

// Info describes a disc. It is never modified after construction; resolvers
// build a new Info instead.
type Info struct {
	DiscID               string
	Title                string
	Artist               string
	Tracks               []CdTrack
	TotalDurationSeconds float64
	ReleaseID            string
}

// NewInfo builds an Info and derives the total duration from the tracks.
func NewInfo(discID, title, artist, releaseID string, tracks []CdTrack) *Info {
	var total float64
	for _, t := range tracks {
		total += t.DurationSeconds
	}
	return &Info{
		DiscID:               discID,
		Title:                title,
		Artist:               artist,
		Tracks:               tracks,
		TotalDurationSeconds: total,
		ReleaseID:            releaseID,
	}
}

// HasRelease reports whether a metadata match was found.
func (i *Info) HasRelease() bool {
	return i.ReleaseID != ""
}

// Track returns the track with the given number.
func (i *Info) Track(number int) (CdTrack, bool) {
	for _, t := range i.Tracks {
		if t.Number == number {
			return t, true
		}
	}
	return CdTrack{}, false
}

func durationOf(sectors int32) float64 {
	return float64(sectors) / SectorsPerSecond
}

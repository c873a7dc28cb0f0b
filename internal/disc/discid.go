package disc

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
)

const (
	leadInSectors = 150
	// Gap between the audio session and a trailing data session on
	// enhanced CDs.
	dataSessionGap = 11400
	maxTracks      = 99
)

var discIDEncoding = strings.NewReplacer("+", ".", "/", "_", "=", "-")

// ComputeDiscID returns the MusicBrainz disc id for a table of contents. It
// depends only on the track numbers and sector boundaries.
func ComputeDiscID(toc []Track) (string, error) {
	first, last, offsets, err := discLayout(toc)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%02X%02X", first, last)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%08X", off)
	}

	sum := sha1.Sum([]byte(b.String()))
	return discIDEncoding.Replace(base64.StdEncoding.EncodeToString(sum[:])), nil
}

// discLayout returns the first and last track numbers and the 100 offsets
// (lead-out first) in the form the disc id is computed from.
func discLayout(toc []Track) (int, int, [maxTracks + 1]int32, error) {
	var offsets [maxTracks + 1]int32
	if len(toc) == 0 {
		return 0, 0, offsets, fmt.Errorf("empty table of contents")
	}

	tracks := make([]Track, len(toc))
	copy(tracks, toc)
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].Number < tracks[j].Number })

	for _, t := range tracks {
		if t.Number < 1 || t.Number > maxTracks {
			return 0, 0, offsets, fmt.Errorf("track number %d out of range", t.Number)
		}
	}

	lastIdx := len(tracks) - 1
	leadOut := tracks[lastIdx].LastSector + 1

	// Enhanced CD: the trailing data track is not part of the audio session.
	if !tracks[lastIdx].IsAudio && lastIdx > 0 {
		leadOut = tracks[lastIdx].FirstSector - dataSessionGap
		lastIdx--
	}

	first := tracks[0].Number
	last := tracks[lastIdx].Number

	offsets[0] = leadOut + leadInSectors
	for _, t := range tracks[:lastIdx+1] {
		offsets[t.Number] = t.FirstSector + leadInSectors
	}

	return first, last, offsets, nil
}

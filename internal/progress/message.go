// Package progress carries import progress from the worker to a single
// presentation consumer.
package progress

import (
	"encoding/json"
	"fmt"
)

// Message is one progress event. The set of implementations is closed.
type Message interface {
	// Kind is the stable wire name of the variant.
	Kind() string
	// Line renders the message in the prefixed text protocol.
	Line() string

	isMessage()
}

// Info is an untagged informational line.
type Info struct {
	Text string `json:"text"`
}

// TotalTracks announces how many audio tracks will be imported.
type TotalTracks struct {
	Count int `json:"count"`
}

// TrackStarted marks the beginning of a track's rip.
type TrackStarted struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// SectorProgress reports rip progress within a track.
type SectorProgress struct {
	Track       int `json:"track"`
	Percent     int `json:"percent"`
	SectorsRead int `json:"sectors_read"`
}

// TrackCompleted marks a track that was ripped, encoded and tagged.
type TrackCompleted struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Total  int    `json:"total"`
}

// TrackError marks a track that was skipped.
type TrackError struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// ImportFinished is always the last message of an import.
type ImportFinished struct {
	Artist   string `json:"artist"`
	Title    string `json:"title"`
	Imported int    `json:"imported"`
	Total    int    `json:"total"`
}

func (Info) isMessage()           {}
func (TotalTracks) isMessage()    {}
func (TrackStarted) isMessage()   {}
func (SectorProgress) isMessage() {}
func (TrackCompleted) isMessage() {}
func (TrackError) isMessage()     {}
func (ImportFinished) isMessage() {}

func (Info) Kind() string           { return "info" }
func (TotalTracks) Kind() string    { return "total_tracks" }
func (TrackStarted) Kind() string   { return "track_started" }
func (SectorProgress) Kind() string { return "sector_progress" }
func (TrackCompleted) Kind() string { return "track_completed" }
func (TrackError) Kind() string     { return "track_error" }
func (ImportFinished) Kind() string { return "import_finished" }

func (m Info) Line() string { return m.Text }

func (m TotalTracks) Line() string { return fmt.Sprintf("TOTAL_FILES:%d", m.Count) }

func (m TrackStarted) Line() string {
	return fmt.Sprintf("Importing track %d: %s", m.Number, m.Title)
}

func (m SectorProgress) Line() string {
	return fmt.Sprintf("PROGRESS: Reading track %d: %d%% complete (%d sectors)", m.Track, m.Percent, m.SectorsRead)
}

func (m TrackCompleted) Line() string {
	return fmt.Sprintf("COMPLETED: Imported track %d/%d: %s", m.Number, m.Total, m.Title)
}

func (m TrackError) Line() string {
	return fmt.Sprintf("ERROR: Failed to import track %d (%s): %s", m.Number, m.Title, m.Reason)
}

func (m ImportFinished) Line() string {
	return fmt.Sprintf("Successfully imported CD: %s - %s (imported %d of %d tracks)", m.Artist, m.Title, m.Imported, m.Total)
}

// envelope is the JSON framing used by --json output.
type envelope struct {
	Type    string  `json:"type"`
	Payload Message `json:"payload"`
}

// MarshalJSON frames a message as {"type": ..., "payload": ...}.
func MarshalJSON(m Message) ([]byte, error) {
	return json.Marshal(envelope{Type: m.Kind(), Payload: m})
}

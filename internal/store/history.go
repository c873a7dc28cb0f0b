package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Import status values
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Track status values
const (
	TrackImported = "imported"
	TrackFailed   = "failed"
)

// ErrNotFound is returned when an import does not exist
var ErrNotFound = errors.New("not found")

// ImportRecord is one import-cd run
type ImportRecord struct {
	ID             string     `json:"id"`
	DiscID         string     `json:"disc_id"`
	ReleaseID      string     `json:"release_id,omitempty"`
	Device         string     `json:"device"`
	Artist         string     `json:"artist"`
	Album          string     `json:"album"`
	OutputDir      string     `json:"output_dir"`
	TotalTracks    int        `json:"total_tracks"`
	ImportedTracks int        `json:"imported_tracks"`
	Status         string     `json:"status"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// TrackRecord is the outcome of one track
type TrackRecord struct {
	Number       int       `json:"number"`
	Title        string    `json:"title"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	FilePath     string    `json:"file_path,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// HistoryStore records imports in the database
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore creates a new HistoryStore
func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// BeginImport inserts rec with status running
func (hs *HistoryStore) BeginImport(rec *ImportRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("import id cannot be empty")
	}
	rec.Status = StatusRunning
	rec.StartedAt = time.Now().UTC()

	_, err := hs.db.Exec(`
		INSERT INTO imports (
			id, disc_id, release_id, device, artist, album, output_dir,
			total_tracks, imported_tracks, status, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`,
		rec.ID,
		rec.DiscID,
		rec.ReleaseID,
		rec.Device,
		rec.Artist,
		rec.Album,
		rec.OutputDir,
		rec.TotalTracks,
		rec.Status,
		rec.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record import: %w", err)
	}
	return nil
}

// RecordTrack stores a track outcome and keeps the import's imported count
// in step.
func (hs *HistoryStore) RecordTrack(importID string, tr *TrackRecord) error {
	tx, err := hs.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	tr.RecordedAt = time.Now().UTC()
	if _, err := tx.Exec(`
		INSERT INTO import_tracks (import_id, number, title, status, error_message, file_path, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, importID, tr.Number, tr.Title, tr.Status, tr.ErrorMessage, tr.FilePath, tr.RecordedAt); err != nil {
		return fmt.Errorf("failed to record track %d: %w", tr.Number, err)
	}

	if tr.Status == TrackImported {
		if _, err := tx.Exec(
			"UPDATE imports SET imported_tracks = imported_tracks + 1 WHERE id = ?",
			importID,
		); err != nil {
			return fmt.Errorf("failed to update import %s: %w", importID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit track %d: %w", tr.Number, err)
	}
	return nil
}

// FinishImport sets the final status of an import
func (hs *HistoryStore) FinishImport(importID, status, errMsg string) error {
	res, err := hs.db.Exec(
		"UPDATE imports SET status = ?, error_message = ?, finished_at = ? WHERE id = ?",
		status, errMsg, time.Now().UTC(), importID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish import: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("import %s: %w", importID, ErrNotFound)
	}
	return nil
}

const importColumns = `
	id, disc_id, COALESCE(release_id, ''), device, COALESCE(artist, ''), COALESCE(album, ''),
	COALESCE(output_dir, ''), total_tracks, imported_tracks, status,
	COALESCE(error_message, ''), started_at, finished_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanImport(row rowScanner) (*ImportRecord, error) {
	var rec ImportRecord
	var finished sql.NullTime
	if err := row.Scan(
		&rec.ID,
		&rec.DiscID,
		&rec.ReleaseID,
		&rec.Device,
		&rec.Artist,
		&rec.Album,
		&rec.OutputDir,
		&rec.TotalTracks,
		&rec.ImportedTracks,
		&rec.Status,
		&rec.ErrorMessage,
		&rec.StartedAt,
		&finished,
	); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		rec.FinishedAt = &t
	}
	return &rec, nil
}

// GetImport returns one import and its tracks in track order
func (hs *HistoryStore) GetImport(importID string) (*ImportRecord, []*TrackRecord, error) {
	rec, err := scanImport(hs.db.QueryRow("SELECT "+importColumns+" FROM imports WHERE id = ?", importID))
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("import %s: %w", importID, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get import: %w", err)
	}

	rows, err := hs.db.Query(`
		SELECT number, title, status, COALESCE(error_message, ''), COALESCE(file_path, ''), recorded_at
		FROM import_tracks WHERE import_id = ? ORDER BY number, id
	`, importID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*TrackRecord
	for rows.Next() {
		var tr TrackRecord
		if err := rows.Scan(&tr.Number, &tr.Title, &tr.Status, &tr.ErrorMessage, &tr.FilePath, &tr.RecordedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, &tr)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return rec, tracks, nil
}

// ListImports returns the most recent imports first
func (hs *HistoryStore) ListImports(limit int) ([]*ImportRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := hs.db.Query("SELECT "+importColumns+" FROM imports ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}
	defer rows.Close()

	var out []*ImportRecord
	for rows.Next() {
		rec, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ReleaseCache stores MusicBrainz releases as JSON keyed by disc id
type ReleaseCache struct {
	db *sql.DB
}

// NewReleaseCache creates a new ReleaseCache
func NewReleaseCache(db *sql.DB) *ReleaseCache {
	return &ReleaseCache{db: db}
}

// GetRelease returns the cached release JSON for discID
func (rc *ReleaseCache) GetRelease(discID string) ([]byte, bool, error) {
	var data string
	err := rc.db.QueryRow("SELECT release_json FROM release_cache WHERE disc_id = ?", discID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read release cache: %w", err)
	}
	return []byte(data), true, nil
}

// PutRelease stores or replaces the release JSON for discID
func (rc *ReleaseCache) PutRelease(discID string, data []byte) error {
	_, err := rc.db.Exec(`
		INSERT INTO release_cache (disc_id, release_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(disc_id) DO UPDATE SET release_json = excluded.release_json, updated_at = excluded.updated_at
	`, discID, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write release cache: %w", err)
	}
	return nil
}

package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultBusyTimeout covers a history or verify command that runs while an
// import holds the write lock between two tracks.
const DefaultBusyTimeout = 30 * time.Second

// Options tune the history database connection
type Options struct {
	// BusyTimeout is how long a statement waits on another process's lock.
	// Zero selects DefaultBusyTimeout.
	BusyTimeout time.Duration
}

// InitDB opens the history database at dbPath with default options
func InitDB(dbPath string) (*sql.DB, error) {
	return OpenDB(dbPath, Options{})
}

// OpenDB opens the history database at dbPath, creating its directory, and
// brings the schema up to date.
func OpenDB(dbPath string, opts Options) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn(dbPath, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One process writes per import; the CLI never needs more.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// dsn builds the go-sqlite3 connection string. Writers take the lock up
// front so an overlapping reader waits on busy_timeout instead of failing
// a deferred upgrade.
func dsn(dbPath string, opts Options) string {
	timeout := opts.BusyTimeout
	if timeout <= 0 {
		timeout = DefaultBusyTimeout
	}

	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_synchronous", "NORMAL")
	params.Set("_busy_timeout", strconv.FormatInt(timeout.Milliseconds(), 10))
	params.Set("_foreign_keys", "on")
	params.Set("_txlock", "immediate")
	return dbPath + "?" + params.Encode()
}

package sqlite

import (
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

const DefaultPath = "comic_downloader.db"

// InitDB opens the run journal at path and creates its tables if they don't exist.
func InitDB(path string) (*sql.DB, error) {
	if path == "" {
		path = DefaultPath
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run journal: %w", err)
	}

	// Parallel chapters report from several goroutines; one connection keeps
	// sqlite from returning SQLITE_BUSY on concurrent writes.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		gallery_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		chapters INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL DEFAULT 0,
		failure INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		error TEXT
	)`)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create runs table: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS chapter_results (
		id INTEGER PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id),
		title TEXT NOT NULL,
		images INTEGER NOT NULL,
		success INTEGER NOT NULL,
		failure INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		error TEXT
	)`)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create chapter_results table: %w", err)
	}

	return db, nil
}

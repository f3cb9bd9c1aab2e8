// Package dbtest provides a throwaway SQLite database carrying the portal
// schema, for tests that want real SQL behaviour instead of sqlmock.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"memberportal/internal/database"
)

// Schema is the SQLite rendition of the tables the portal touches.
const Schema = `
CREATE TABLE members (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	membership_number VARCHAR(9) NOT NULL UNIQUE,
	first_name VARCHAR(100) NOT NULL,
	last_name VARCHAR(100) NOT NULL,
	email VARCHAR(255) NOT NULL UNIQUE,
	role VARCHAR(100) NOT NULL DEFAULT 'Mitglied',
	is_admin BOOLEAN NOT NULL DEFAULT 0,
	is_confidential BOOLEAN NOT NULL DEFAULT 0,
	password_hash VARCHAR(255) NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE berechtigte (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	mnr VARCHAR(9) NOT NULL,
	vorname VARCHAR(100) NOT NULL,
	name VARCHAR(100) NOT NULL,
	email VARCHAR(255),
	funktion VARCHAR(100),
	aktiv INTEGER NOT NULL DEFAULT 1,
	erstellt_am DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE berechtigte_credentials (
	berechtigte_id INTEGER PRIMARY KEY,
	password_hash VARCHAR(255) NOT NULL
);

CREATE TABLE member_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	member_id INTEGER NOT NULL,
	event_type VARCHAR(64) NOT NULL,
	event_data TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE Refname (
	mnr VARCHAR(9) PRIMARY KEY,
	vorname VARCHAR(100) NOT NULL,
	name VARCHAR(100) NOT NULL,
	email VARCHAR(255),
	telefon VARCHAR(50),
	plz VARCHAR(5),
	ort VARCHAR(100),
	aktiv INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE Refpool (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	mnr VARCHAR(9) NOT NULL,
	thema VARCHAR(255) NOT NULL,
	beschreibung TEXT,
	aktiv INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE PLZ (
	plz VARCHAR(5) PRIMARY KEY,
	lat DOUBLE NOT NULL,
	lon DOUBLE NOT NULL
);
`

// TalkColumns adds the columns the add-columns migration normally creates.
const TalkColumns = `
ALTER TABLE Refpool ADD COLUMN location VARCHAR(255);
ALTER TABLE Refpool ADD COLUMN video_link VARCHAR(500);
ALTER TABLE Refpool ADD COLUMN duration INT;
`

// Open returns a fresh SQLite database with Schema and TalkColumns applied.
// The database lives in t.TempDir and is closed by t.Cleanup.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()
	db := OpenBare(t)
	Exec(t, db, TalkColumns)
	return db
}

// OpenBare is Open without TalkColumns, for migration tests.
func OpenBare(t testing.TB) *sqlx.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "portal.db")
	db, err := database.Open(context.Background(), database.Config{
		Driver:       "sqlite",
		DSN:          dsn,
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	Exec(t, db, Schema)
	return db
}

// Exec runs a multi-statement script and fails the test on error.
func Exec(t testing.TB, db *sqlx.DB, script string) {
	t.Helper()
	if _, err := db.Exec(script); err != nil {
		t.Fatalf("exec script: %v", err)
	}
}

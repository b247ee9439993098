// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

// Package localstore implements the durable on-device store backed by SQLite.
// It is the single source of truth for all user-facing reads and writes; the
// sync engine drains its pending rows and tombstones to the remote store in
// the background.
package localstore

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("localstore: not found")

// CheckpointKey is the settings key holding the last successful pull
// boundary as an RFC 3339 timestamp.
const CheckpointKey = "lastSyncedAt"

// Store wraps a SQLite database holding the games catalog, the user's
// collection, play history, settings and the deletion tombstone queue.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// onMutation is invoked after every user-visible write to a
	// pending-eligible table (collection, plays, tombstones). Writes applied
	// from the remote store during a pull do NOT fire it, so a pull cannot
	// re-trigger the scheduler's debounce.
	onMutation func()
}

// Open opens (creating if needed) the SQLite database at path and prepares
// the schema. Use ":memory:" for tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// The sqlite3 driver is not safe for concurrent writers over multiple
	// connections to the same in-memory database; a single connection also
	// keeps the scheduler and foreground writes serialized.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SetMutationHook registers fn to run after every pending-eligible local
// mutation. Passing nil clears the hook.
func (s *Store) SetMutationHook(fn func()) {
	s.onMutation = fn
}

func (s *Store) notifyMutation() {
	if s.onMutation != nil {
		s.onMutation()
	}
}

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS games (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			bgg_id         INTEGER NOT NULL UNIQUE,
			name           TEXT NOT NULL,
			year_published INTEGER,
			min_players    INTEGER,
			max_players    INTEGER,
			playing_time   INTEGER,
			min_playtime   INTEGER,
			max_playtime   INTEGER,
			min_age        INTEGER,
			description    TEXT,
			thumbnail_url  TEXT,
			image_url      TEXT,
			categories     TEXT NOT NULL DEFAULT '[]',
			mechanics      TEXT NOT NULL DEFAULT '[]',
			bgg_rating     REAL,
			bgg_weight     REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_games_name ON games(name)`,
		`CREATE INDEX IF NOT EXISTS idx_games_year ON games(year_published)`,
		`CREATE INDEX IF NOT EXISTS idx_games_players ON games(min_players, max_players)`,
		`CREATE INDEX IF NOT EXISTS idx_games_playing_time ON games(playing_time)`,
		`CREATE INDEX IF NOT EXISTS idx_games_rating ON games(bgg_rating)`,

		`CREATE TABLE IF NOT EXISTS collection_entries (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			bgg_id          INTEGER NOT NULL UNIQUE,
			status          TEXT NOT NULL CHECK (status IN ('owned','wishlist','for_trade','want_to_buy')),
			personal_rating INTEGER,
			notes           TEXT,
			added_at        TEXT NOT NULL,
			updated_at      TEXT NOT NULL,
			sync_status     TEXT NOT NULL DEFAULT 'pending' CHECK (sync_status IN ('synced','pending','conflict')),
			remote_id       INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_collection_status ON collection_entries(status)`,
		`CREATE INDEX IF NOT EXISTS idx_collection_rating ON collection_entries(personal_rating)`,
		`CREATE INDEX IF NOT EXISTS idx_collection_added_at ON collection_entries(added_at)`,
		`CREATE INDEX IF NOT EXISTS idx_collection_sync ON collection_entries(sync_status)`,

		`CREATE TABLE IF NOT EXISTS play_sessions (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			bgg_id           INTEGER NOT NULL,
			played_at        TEXT NOT NULL,
			duration_minutes INTEGER,
			players          TEXT NOT NULL DEFAULT '[]',
			notes            TEXT,
			photo_url        TEXT,
			location         TEXT,
			created_at       TEXT NOT NULL,
			sync_status      TEXT NOT NULL DEFAULT 'pending' CHECK (sync_status IN ('synced','pending','conflict')),
			remote_id        INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_plays_bgg_id ON play_sessions(bgg_id)`,
		`CREATE INDEX IF NOT EXISTS idx_plays_played_at ON play_sessions(played_at)`,
		`CREATE INDEX IF NOT EXISTS idx_plays_sync ON play_sessions(sync_status)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS deletion_tombstones (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			table_name TEXT NOT NULL CHECK (table_name IN ('collection','plays')),
			bgg_id     INTEGER NOT NULL,
			remote_id  INTEGER,
			deleted_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Setting returns the value stored under key, or ErrNotFound.
func (s *Store) Setting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting stores value under key, replacing any previous value.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %q: %w", key, err)
	}
	return nil
}

// Checkpoint returns the last successful pull boundary. ok is false when no
// cycle has completed yet (first run).
func (s *Store) Checkpoint() (t time.Time, ok bool, err error) {
	raw, err := s.Setting(CheckpointKey)
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err = parseTime(raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	return t, true, nil
}

// SetCheckpoint persists t as the pull boundary for the next cycle.
func (s *Store) SetCheckpoint(t time.Time) error {
	return s.SetSetting(CheckpointKey, fmtTime(t))
}

// PendingCount is the number of items waiting to sync: pending collection
// entries plus pending play sessions plus queued tombstones.
func (s *Store) PendingCount() (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM collection_entries WHERE sync_status = 'pending') +
			(SELECT COUNT(*) FROM play_sessions WHERE sync_status = 'pending') +
			(SELECT COUNT(*) FROM deletion_tombstones)
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending items: %w", err)
	}
	return n, nil
}

// Stats summarizes the collection for the dashboard.
type Stats struct {
	OwnedGames        int
	TotalPlays        int
	UniqueGamesPlayed int
}

// Stats returns dashboard counters.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM collection_entries WHERE status = 'owned'),
			(SELECT COUNT(*) FROM play_sessions),
			(SELECT COUNT(DISTINCT bgg_id) FROM play_sessions)
	`).Scan(&st.OwnedGames, &st.TotalPlays, &st.UniqueGamesPlayed)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to compute stats: %w", err)
	}
	return st, nil
}

// ClearAll wipes every table. Used on logout.
func (s *Store) ClearAll() error {
	for _, table := range []string{"games", "collection_entries", "play_sessions", "settings", "deletion_tombstones"} {
		if _, err := s.db.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// Timestamps are stored as RFC 3339 text in UTC so that lexical order in
// SQLite matches chronological order.

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

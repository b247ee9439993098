// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/raiderj77/shelflife/catalog"
)

// LogPlay records a play session as pending and returns its local id.
// CreatedAt and SyncState are assigned here; callers fill in the rest.
func (s *Store) LogPlay(p *catalog.PlaySession) (int64, error) {
	players, err := encodePlayers(p.Players)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(`
		INSERT INTO play_sessions
			(bgg_id, played_at, duration_minutes, players, notes, photo_url, location, created_at, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending')
	`, p.BGGID, fmtTime(p.PlayedAt), p.DurationMinutes, players,
		p.Notes, p.PhotoURL, p.Location, fmtTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to log play for game %d: %w", p.BGGID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read play id: %w", err)
	}
	s.notifyMutation()
	return id, nil
}

// DeletePlay removes a play session and queues a tombstone for it.
func (s *Store) DeletePlay(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var bggID int64
	var remoteID *int64
	err = tx.QueryRow(`SELECT bgg_id, remote_id FROM play_sessions WHERE id = ?`, id).Scan(&bggID, &remoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read play %d: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM play_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete play %d: %w", id, err)
	}
	if _, err := tx.Exec(`
		INSERT INTO deletion_tombstones (table_name, bgg_id, remote_id, deleted_at)
		VALUES ('plays', ?, ?, ?)
	`, bggID, remoteID, fmtTime(time.Now())); err != nil {
		return fmt.Errorf("failed to queue tombstone for play %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit play deletion: %w", err)
	}
	s.notifyMutation()
	return nil
}

// GetPlay returns the play session with the given local id.
func (s *Store) GetPlay(id int64) (*catalog.PlaySession, error) {
	row := s.db.QueryRow(playSelect+` WHERE id = ?`, id)
	return scanPlay(row)
}

// GetPlayByRemoteID locates the local counterpart of a remote play row.
func (s *Store) GetPlayByRemoteID(remoteID int64) (*catalog.PlaySession, error) {
	row := s.db.QueryRow(playSelect+` WHERE remote_id = ?`, remoteID)
	return scanPlay(row)
}

// PlaysForGame returns the play history of one game, most recent first.
func (s *Store) PlaysForGame(bggID int64) ([]catalog.PlaySession, error) {
	return s.queryPlays(playSelect+` WHERE bgg_id = ? ORDER BY played_at DESC`, bggID)
}

// RecentPlays returns the latest play sessions across all games.
func (s *Store) RecentPlays(limit int) ([]catalog.PlaySession, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryPlays(playSelect+` ORDER BY played_at DESC LIMIT ?`, limit)
}

// PendingPlaySessions returns all plays waiting to be pushed, oldest first.
func (s *Store) PendingPlaySessions() ([]catalog.PlaySession, error) {
	return s.queryPlays(playSelect + ` WHERE sync_status = 'pending' ORDER BY created_at`)
}

// MarkPlaySynced transitions a play to synced with its remote id.
func (s *Store) MarkPlaySynced(id, remoteID int64) error {
	_, err := s.db.Exec(`
		UPDATE play_sessions SET sync_status = 'synced', remote_id = ? WHERE id = ?
	`, remoteID, id)
	if err != nil {
		return fmt.Errorf("failed to mark play %d synced: %w", id, err)
	}
	return nil
}

// ApplyRemotePlay materializes a pulled play row. Plays are matched by
// remote id: an unknown id inserts, a known one overwrites in place. Lands
// as synced without firing the mutation hook.
func (s *Store) ApplyRemotePlay(p *catalog.PlaySession) error {
	if p.RemoteID == nil {
		return errors.New("localstore: remote play without remote id")
	}
	players, err := encodePlayers(p.Players)
	if err != nil {
		return err
	}
	existing, err := s.GetPlayByRemoteID(*p.RemoteID)
	if errors.Is(err, ErrNotFound) {
		_, err = s.db.Exec(`
			INSERT INTO play_sessions
				(bgg_id, played_at, duration_minutes, players, notes, photo_url, location, created_at, sync_status, remote_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'synced', ?)
		`, p.BGGID, fmtTime(p.PlayedAt), p.DurationMinutes, players,
			p.Notes, p.PhotoURL, p.Location, fmtTime(p.CreatedAt), *p.RemoteID)
		if err != nil {
			return fmt.Errorf("failed to insert remote play %d: %w", *p.RemoteID, err)
		}
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		UPDATE play_sessions
		SET played_at = ?, duration_minutes = ?, players = ?, notes = ?,
			photo_url = ?, location = ?, sync_status = 'synced'
		WHERE id = ?
	`, fmtTime(p.PlayedAt), p.DurationMinutes, players, p.Notes,
		p.PhotoURL, p.Location, existing.ID)
	if err != nil {
		return fmt.Errorf("failed to overwrite play %d from remote: %w", existing.ID, err)
	}
	return nil
}

// DeletePlayByRemoteID removes the local counterpart of a remotely
// soft-deleted play. Missing rows are fine; no tombstone is queued.
func (s *Store) DeletePlayByRemoteID(remoteID int64) error {
	if _, err := s.db.Exec(`DELETE FROM play_sessions WHERE remote_id = ?`, remoteID); err != nil {
		return fmt.Errorf("failed to apply remote deletion of play %d: %w", remoteID, err)
	}
	return nil
}

const playSelect = `
	SELECT id, bgg_id, played_at, duration_minutes, players, notes, photo_url, location, created_at, sync_status, remote_id
	FROM play_sessions`

func (s *Store) queryPlays(query string, args ...any) ([]catalog.PlaySession, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plays: %w", err)
	}
	defer rows.Close()

	var out []catalog.PlaySession
	for rows.Next() {
		p, err := scanPlay(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPlay(row rowScanner) (*catalog.PlaySession, error) {
	var p catalog.PlaySession
	var playedAt, createdAt, syncStatus, players string
	err := row.Scan(&p.ID, &p.BGGID, &playedAt, &p.DurationMinutes, &players,
		&p.Notes, &p.PhotoURL, &p.Location, &createdAt, &syncStatus, &p.RemoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan play: %w", err)
	}
	p.SyncState = catalog.SyncState(syncStatus)
	if p.PlayedAt, err = parseTime(playedAt); err != nil {
		return nil, fmt.Errorf("failed to parse played_at: %w", err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(players), &p.Players); err != nil {
		return nil, fmt.Errorf("failed to decode players: %w", err)
	}
	return &p, nil
}

func encodePlayers(players []catalog.PlayerResult) (string, error) {
	if players == nil {
		players = []catalog.PlayerResult{}
	}
	b, err := json.Marshal(players)
	if err != nil {
		return "", fmt.Errorf("failed to encode players: %w", err)
	}
	return string(b), nil
}

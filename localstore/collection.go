// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/raiderj77/shelflife/catalog"
)

// CollectionItem pairs a collection entry with its catalog game for listing.
type CollectionItem struct {
	Entry catalog.CollectionEntry
	Game  catalog.Game
}

// CollectionFilter narrows ListCollection results. Zero values mean
// "no constraint".
type CollectionFilter struct {
	PlayerCount int                      // keep games whose player bounds include this count
	MaxPlaytime int                      // keep games with playing_time <= this (minutes)
	Search      string                   // case-insensitive name substring
	Status      catalog.CollectionStatus // keep entries with this status
}

// AddToCollection caches the game metadata and creates a pending collection
// entry for it. Adding a game already in the collection is a no-op (the
// existing entry, including its sync state, is left untouched).
func (s *Store) AddToCollection(g *catalog.Game, status catalog.CollectionStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid collection status %q", status)
	}
	if err := s.UpsertGame(g); err != nil {
		return err
	}
	now := fmtTime(time.Now())
	res, err := s.db.Exec(`
		INSERT INTO collection_entries (bgg_id, status, added_at, updated_at, sync_status)
		VALUES (?, ?, ?, ?, 'pending')
		ON CONFLICT(bgg_id) DO NOTHING
	`, g.BGGID, string(status), now, now)
	if err != nil {
		return fmt.Errorf("failed to add game %d to collection: %w", g.BGGID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.notifyMutation()
	}
	return nil
}

// UpdateCollectionEntry applies fn to the entry for bggID, stamps a new
// updatedAt and marks it pending. fn may change status, rating and notes;
// identity and sync bookkeeping fields are reasserted after it runs.
func (s *Store) UpdateCollectionEntry(bggID int64, fn func(e *catalog.CollectionEntry)) error {
	e, err := s.GetCollectionEntry(bggID)
	if err != nil {
		return err
	}
	fn(e)
	if !e.Status.Valid() {
		return fmt.Errorf("invalid collection status %q", e.Status)
	}
	_, err = s.db.Exec(`
		UPDATE collection_entries
		SET status = ?, personal_rating = ?, notes = ?, updated_at = ?, sync_status = 'pending'
		WHERE bgg_id = ?
	`, string(e.Status), e.PersonalRating, e.Notes, fmtTime(time.Now()), bggID)
	if err != nil {
		return fmt.Errorf("failed to update collection entry %d: %w", bggID, err)
	}
	s.notifyMutation()
	return nil
}

// RemoveFromCollection deletes the entry and queues a deletion tombstone so
// the removal propagates to the remote store on the next cycle.
func (s *Store) RemoveFromCollection(bggID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var remoteID *int64
	err = tx.QueryRow(`SELECT remote_id FROM collection_entries WHERE bgg_id = ?`, bggID).Scan(&remoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read collection entry %d: %w", bggID, err)
	}
	if _, err := tx.Exec(`DELETE FROM collection_entries WHERE bgg_id = ?`, bggID); err != nil {
		return fmt.Errorf("failed to delete collection entry %d: %w", bggID, err)
	}
	if _, err := tx.Exec(`
		INSERT INTO deletion_tombstones (table_name, bgg_id, remote_id, deleted_at)
		VALUES ('collection', ?, ?, ?)
	`, bggID, remoteID, fmtTime(time.Now())); err != nil {
		return fmt.Errorf("failed to queue tombstone for entry %d: %w", bggID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit removal: %w", err)
	}
	s.notifyMutation()
	return nil
}

// GetCollectionEntry returns the entry for bggID, or ErrNotFound.
func (s *Store) GetCollectionEntry(bggID int64) (*catalog.CollectionEntry, error) {
	row := s.db.QueryRow(`
		SELECT bgg_id, status, personal_rating, notes, added_at, updated_at, sync_status, remote_id
		FROM collection_entries WHERE bgg_id = ?
	`, bggID)
	return scanCollectionEntry(row)
}

// PendingCollectionEntries returns all entries waiting to be pushed, oldest
// update first.
func (s *Store) PendingCollectionEntries() ([]catalog.CollectionEntry, error) {
	rows, err := s.db.Query(`
		SELECT bgg_id, status, personal_rating, notes, added_at, updated_at, sync_status, remote_id
		FROM collection_entries WHERE sync_status = 'pending'
		ORDER BY updated_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending collection entries: %w", err)
	}
	defer rows.Close()

	var out []catalog.CollectionEntry
	for rows.Next() {
		e, err := scanCollectionEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// MarkCollectionSynced transitions an entry to synced and records the remote
// surrogate id returned by the push.
func (s *Store) MarkCollectionSynced(bggID, remoteID int64) error {
	_, err := s.db.Exec(`
		UPDATE collection_entries SET sync_status = 'synced', remote_id = ? WHERE bgg_id = ?
	`, remoteID, bggID)
	if err != nil {
		return fmt.Errorf("failed to mark entry %d synced: %w", bggID, err)
	}
	return nil
}

// ApplyRemoteEntry materializes a pulled remote row locally, inserting or
// overwriting by natural key. The row lands as synced and the mutation hook
// is deliberately not fired.
func (s *Store) ApplyRemoteEntry(e *catalog.CollectionEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO collection_entries
			(bgg_id, status, personal_rating, notes, added_at, updated_at, sync_status, remote_id)
		VALUES (?, ?, ?, ?, ?, ?, 'synced', ?)
		ON CONFLICT(bgg_id) DO UPDATE SET
			status = excluded.status,
			personal_rating = excluded.personal_rating,
			notes = excluded.notes,
			updated_at = excluded.updated_at,
			sync_status = 'synced',
			remote_id = excluded.remote_id
	`, e.BGGID, string(e.Status), e.PersonalRating, e.Notes,
		fmtTime(e.AddedAt), fmtTime(e.UpdatedAt), e.RemoteID)
	if err != nil {
		return fmt.Errorf("failed to apply remote entry %d: %w", e.BGGID, err)
	}
	return nil
}

// DeleteCollectionFromRemote removes the local counterpart of a remotely
// soft-deleted entry. No tombstone is queued and the mutation hook does not
// fire; the deletion originated remotely.
func (s *Store) DeleteCollectionFromRemote(bggID int64) error {
	if _, err := s.db.Exec(`DELETE FROM collection_entries WHERE bgg_id = ?`, bggID); err != nil {
		return fmt.Errorf("failed to apply remote deletion of entry %d: %w", bggID, err)
	}
	return nil
}

// ListCollection returns entries joined with their games, filtered and
// ordered by game name.
func (s *Store) ListCollection(f CollectionFilter) ([]CollectionItem, error) {
	rows, err := s.db.Query(`
		SELECT
			c.bgg_id, c.status, c.personal_rating, c.notes, c.added_at, c.updated_at, c.sync_status, c.remote_id,
			g.bgg_id, g.name, g.year_published, g.min_players, g.max_players,
			g.playing_time, g.min_playtime, g.max_playtime, g.min_age, g.description,
			g.thumbnail_url, g.image_url, g.categories, g.mechanics, g.bgg_rating, g.bgg_weight
		FROM collection_entries c
		JOIN games g ON g.bgg_id = c.bgg_id
		ORDER BY g.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}
	defer rows.Close()

	var out []CollectionItem
	for rows.Next() {
		item, err := scanCollectionItem(rows)
		if err != nil {
			return nil, err
		}
		if matchesFilter(item, f) {
			out = append(out, *item)
		}
	}
	return out, rows.Err()
}

// RandomOwnedGame picks a random owned game matching the filter, for the
// "what should we play" feature. Returns ErrNotFound when nothing matches.
func (s *Store) RandomOwnedGame(f CollectionFilter) (*CollectionItem, error) {
	f.Status = catalog.StatusOwned
	items, err := s.ListCollection(f)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return &items[rand.Intn(len(items))], nil
}

func matchesFilter(item *CollectionItem, f CollectionFilter) bool {
	g := &item.Game
	if f.PlayerCount > 0 && g.MinPlayers != nil && g.MaxPlayers != nil {
		if f.PlayerCount < *g.MinPlayers || f.PlayerCount > *g.MaxPlayers {
			return false
		}
	}
	if f.MaxPlaytime > 0 && g.PlayingTime != nil && *g.PlayingTime > f.MaxPlaytime {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(g.Name), strings.ToLower(f.Search)) {
		return false
	}
	if f.Status != "" && item.Entry.Status != f.Status {
		return false
	}
	return true
}

func scanCollectionEntry(row rowScanner) (*catalog.CollectionEntry, error) {
	var e catalog.CollectionEntry
	var status, addedAt, updatedAt, syncStatus string
	err := row.Scan(&e.BGGID, &status, &e.PersonalRating, &e.Notes,
		&addedAt, &updatedAt, &syncStatus, &e.RemoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan collection entry: %w", err)
	}
	e.Status = catalog.CollectionStatus(status)
	e.SyncState = catalog.SyncState(syncStatus)
	if e.AddedAt, err = parseTime(addedAt); err != nil {
		return nil, fmt.Errorf("failed to parse added_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &e, nil
}

func scanCollectionItem(rows *sql.Rows) (*CollectionItem, error) {
	var item CollectionItem
	var e = &item.Entry
	var g = &item.Game
	var status, addedAt, updatedAt, syncStatus string
	var categories, mechanics string
	err := rows.Scan(&e.BGGID, &status, &e.PersonalRating, &e.Notes,
		&addedAt, &updatedAt, &syncStatus, &e.RemoteID,
		&g.BGGID, &g.Name, &g.YearPublished, &g.MinPlayers, &g.MaxPlayers,
		&g.PlayingTime, &g.MinPlaytime, &g.MaxPlaytime, &g.MinAge, &g.Description,
		&g.ThumbnailURL, &g.ImageURL, &categories, &mechanics, &g.BGGRating, &g.BGGWeight)
	if err != nil {
		return nil, fmt.Errorf("failed to scan collection item: %w", err)
	}
	e.Status = catalog.CollectionStatus(status)
	e.SyncState = catalog.SyncState(syncStatus)
	if e.AddedAt, err = parseTime(addedAt); err != nil {
		return nil, fmt.Errorf("failed to parse added_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if err := decodeInto(categories, &g.Categories); err != nil {
		return nil, err
	}
	if err := decodeInto(mechanics, &g.Mechanics); err != nil {
		return nil, err
	}
	return &item, nil
}

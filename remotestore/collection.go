// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

package remotestore

import (
	"context"
	"fmt"
	"time"

	"github.com/raiderj77/shelflife/catalog"
)

// CollectionRow is a remote collection_games row joined to its game. Game is
// nil when the parent row is missing (malformed data; callers skip it).
type CollectionRow struct {
	ID             int64
	GameID         int64
	Game           *catalog.Game
	Status         catalog.CollectionStatus
	PersonalRating *int
	Notes          *string
	AddedAt        time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// UpsertCollectionRow inserts or updates the user's row for a game on the
// (user_id, game_id) unique constraint and returns the surrogate id. The
// entry's own updatedAt travels with it so last-write-wins comparisons see
// the device's edit time, not the push time. Re-adding a previously removed
// game clears the soft-delete marker.
func (c *Client) UpsertCollectionRow(ctx context.Context, userID string, gameID int64, e *catalog.CollectionEntry) (int64, error) {
	var id int64
	err := c.pool.QueryRow(ctx, `
		INSERT INTO collection_games
			(user_id, game_id, status, personal_rating, notes, added_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, game_id) DO UPDATE SET
			status = excluded.status,
			personal_rating = excluded.personal_rating,
			notes = excluded.notes,
			added_at = excluded.added_at,
			updated_at = excluded.updated_at,
			deleted_at = NULL
		RETURNING id
	`, userID, gameID, string(e.Status), e.PersonalRating, e.Notes,
		e.AddedAt.UTC(), e.UpdatedAt.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert collection row for game %d: %w", gameID, err)
	}
	return id, nil
}

// SoftDeleteCollectionByID marks one of the user's collection rows deleted.
func (c *Client) SoftDeleteCollectionByID(ctx context.Context, userID string, remoteID int64) error {
	_, err := c.pool.Exec(ctx, `
		UPDATE collection_games SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND user_id = $2
	`, remoteID, userID)
	if err != nil {
		return fmt.Errorf("failed to soft-delete collection row %d: %w", remoteID, err)
	}
	return nil
}

// SoftDeleteCollectionByGame marks the user's row for a game deleted; used
// when the local item never learned its remote id.
func (c *Client) SoftDeleteCollectionByGame(ctx context.Context, userID string, gameID int64) error {
	_, err := c.pool.Exec(ctx, `
		UPDATE collection_games SET deleted_at = now(), updated_at = now()
		WHERE user_id = $1 AND game_id = $2
	`, userID, gameID)
	if err != nil {
		return fmt.Errorf("failed to soft-delete collection row for game %d: %w", gameID, err)
	}
	return nil
}

// CollectionChangedSince returns the user's collection rows with
// updated_at >= since, joined to their games. The boundary is inclusive so
// the checkpoint row is always re-examined. A nil since means full pull.
func (c *Client) CollectionChangedSince(ctx context.Context, userID string, since *time.Time) ([]CollectionRow, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT c.id, c.game_id, c.status, c.personal_rating, c.notes,
			c.added_at, c.updated_at, c.deleted_at, `+gameColumns+`
		FROM collection_games c
		LEFT JOIN games g ON g.id = c.game_id
		WHERE c.user_id = $1 AND ($2::timestamptz IS NULL OR c.updated_at >= $2)
		ORDER BY c.updated_at
	`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query changed collection rows: %w", err)
	}
	defer rows.Close()

	var out []CollectionRow
	for rows.Next() {
		var r CollectionRow
		var status string
		var jg joinedGame
		dests := append([]any{&r.ID, &r.GameID, &status, &r.PersonalRating, &r.Notes,
			&r.AddedAt, &r.UpdatedAt, &r.DeletedAt}, jg.dests()...)
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("failed to scan collection row: %w", err)
		}
		r.Status = catalog.CollectionStatus(status)
		r.Game = jg.resolve()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read changed collection rows: %w", err)
	}
	return out, nil
}

// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

package remotestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/raiderj77/shelflife/catalog"
)

// PlayRow is a remote plays row joined to its game. Game is nil when the
// parent row is missing.
type PlayRow struct {
	ID              int64
	GameID          int64
	Game            *catalog.Game
	PlayedAt        time.Time
	DurationMinutes *int
	Players         []catalog.PlayerResult
	Notes           *string
	PhotoURL        *string
	Location        *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

// InsertPlay adds a play row for the user and returns its surrogate id.
func (c *Client) InsertPlay(ctx context.Context, userID string, gameID int64, p *catalog.PlaySession) (int64, error) {
	players, err := playersJSON(p.Players)
	if err != nil {
		return 0, err
	}
	var id int64
	err = c.pool.QueryRow(ctx, `
		INSERT INTO plays
			(user_id, game_id, played_at, duration_minutes, players, notes, photo_url, location, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, userID, gameID, p.PlayedAt.UTC(), p.DurationMinutes, players,
		p.Notes, p.PhotoURL, p.Location, p.CreatedAt.UTC(), time.Now().UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert play for game %d: %w", gameID, err)
	}
	return id, nil
}

// UpdatePlay overwrites an existing remote play row by id.
func (c *Client) UpdatePlay(ctx context.Context, userID string, remoteID, gameID int64, p *catalog.PlaySession) error {
	players, err := playersJSON(p.Players)
	if err != nil {
		return err
	}
	_, err = c.pool.Exec(ctx, `
		UPDATE plays
		SET game_id = $1, played_at = $2, duration_minutes = $3, players = $4,
			notes = $5, photo_url = $6, location = $7, updated_at = $8
		WHERE id = $9 AND user_id = $10
	`, gameID, p.PlayedAt.UTC(), p.DurationMinutes, players,
		p.Notes, p.PhotoURL, p.Location, time.Now().UTC(), remoteID, userID)
	if err != nil {
		return fmt.Errorf("failed to update play %d: %w", remoteID, err)
	}
	return nil
}

// SoftDeletePlay marks one of the user's play rows deleted.
func (c *Client) SoftDeletePlay(ctx context.Context, userID string, remoteID int64) error {
	_, err := c.pool.Exec(ctx, `
		UPDATE plays SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND user_id = $2
	`, remoteID, userID)
	if err != nil {
		return fmt.Errorf("failed to soft-delete play %d: %w", remoteID, err)
	}
	return nil
}

// PlaysChangedSince returns the user's play rows with updated_at >= since,
// joined to their games. A nil since means full pull.
func (c *Client) PlaysChangedSince(ctx context.Context, userID string, since *time.Time) ([]PlayRow, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT p.id, p.game_id, p.played_at, p.duration_minutes, p.players,
			p.notes, p.photo_url, p.location, p.created_at, p.updated_at, p.deleted_at, `+gameColumns+`
		FROM plays p
		LEFT JOIN games g ON g.id = p.game_id
		WHERE p.user_id = $1 AND ($2::timestamptz IS NULL OR p.updated_at >= $2)
		ORDER BY p.updated_at
	`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query changed plays: %w", err)
	}
	defer rows.Close()

	var out []PlayRow
	for rows.Next() {
		var r PlayRow
		var players []byte
		var jg joinedGame
		dests := append([]any{&r.ID, &r.GameID, &r.PlayedAt, &r.DurationMinutes, &players,
			&r.Notes, &r.PhotoURL, &r.Location, &r.CreatedAt, &r.UpdatedAt, &r.DeletedAt}, jg.dests()...)
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("failed to scan play row: %w", err)
		}
		if err := json.Unmarshal(players, &r.Players); err != nil {
			return nil, fmt.Errorf("failed to decode players for play %d: %w", r.ID, err)
		}
		r.Game = jg.resolve()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read changed plays: %w", err)
	}
	return out, nil
}

func playersJSON(players []catalog.PlayerResult) ([]byte, error) {
	if players == nil {
		players = []catalog.PlayerResult{}
	}
	b, err := json.Marshal(players)
	if err != nil {
		return nil, fmt.Errorf("failed to encode players: %w", err)
	}
	return b, nil
}

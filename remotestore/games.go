// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

package remotestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/raiderj77/shelflife/catalog"
)

// GameIDByBGGID returns the surrogate id for a game's natural key, or
// ErrNotFound.
func (c *Client) GameIDByBGGID(ctx context.Context, bggID int64) (int64, error) {
	var id int64
	err := c.pool.QueryRow(ctx, `SELECT id FROM games WHERE bgg_id = $1`, bggID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up game %d: %w", bggID, err)
	}
	return id, nil
}

// InsertGame adds a game row and returns its surrogate id. A concurrent
// insert of the same natural key from another device surfaces as
// ErrDuplicateKey; callers recover by re-querying.
func (c *Client) InsertGame(ctx context.Context, g *catalog.Game) (int64, error) {
	categories := g.Categories
	if categories == nil {
		categories = []string{}
	}
	mechanics := g.Mechanics
	if mechanics == nil {
		mechanics = []string{}
	}
	var id int64
	err := c.pool.QueryRow(ctx, `
		INSERT INTO games (
			bgg_id, name, year_published, min_players, max_players,
			playing_time, min_playtime, max_playtime, min_age, description,
			thumbnail_url, image_url, categories, mechanics, bgg_rating, bgg_weight
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`, g.BGGID, g.Name, g.YearPublished, g.MinPlayers, g.MaxPlayers,
		g.PlayingTime, g.MinPlaytime, g.MaxPlaytime, g.MinAge, g.Description,
		g.ThumbnailURL, g.ImageURL, categories, mechanics, g.BGGRating, g.BGGWeight).Scan(&id)
	if uniqueViolation(err) {
		return 0, fmt.Errorf("game %d already inserted concurrently: %w", g.BGGID, ErrDuplicateKey)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert game %d: %w", g.BGGID, err)
	}
	return id, nil
}

// gameColumns is the joined game projection used by the changed-since
// queries. All columns scan through pointers so a missing parent row (LEFT
// JOIN miss) yields a nil Game rather than a scan error.
const gameColumns = `
	g.bgg_id, g.name, g.year_published, g.min_players, g.max_players,
	g.playing_time, g.min_playtime, g.max_playtime, g.min_age, g.description,
	g.thumbnail_url, g.image_url, g.categories, g.mechanics, g.bgg_rating, g.bgg_weight`

type joinedGame struct {
	bggID      *int64
	name       *string
	categories []string
	mechanics  []string
	game       catalog.Game
}

func (j *joinedGame) dests() []any {
	return []any{
		&j.bggID, &j.name, &j.game.YearPublished, &j.game.MinPlayers, &j.game.MaxPlayers,
		&j.game.PlayingTime, &j.game.MinPlaytime, &j.game.MaxPlaytime, &j.game.MinAge, &j.game.Description,
		&j.game.ThumbnailURL, &j.game.ImageURL, &j.categories, &j.mechanics, &j.game.BGGRating, &j.game.BGGWeight,
	}
}

// resolve returns the joined game, or nil when the parent row was missing.
func (j *joinedGame) resolve() *catalog.Game {
	if j.bggID == nil || j.name == nil {
		return nil
	}
	j.game.BGGID = *j.bggID
	j.game.Name = *j.name
	j.game.Categories = j.categories
	j.game.Mechanics = j.mechanics
	return &j.game
}

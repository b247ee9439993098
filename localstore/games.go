// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/raiderj77/shelflife/catalog"
)

// UpsertGame inserts or refreshes a catalog game row. Metadata coming from an
// import is allowed to overwrite what is already cached locally.
func (s *Store) UpsertGame(g *catalog.Game) error {
	categories, mechanics, err := encodeTags(g)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO games (
			bgg_id, name, year_published, min_players, max_players,
			playing_time, min_playtime, max_playtime, min_age, description,
			thumbnail_url, image_url, categories, mechanics, bgg_rating, bgg_weight
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bgg_id) DO UPDATE SET
			name = excluded.name,
			year_published = excluded.year_published,
			min_players = excluded.min_players,
			max_players = excluded.max_players,
			playing_time = excluded.playing_time,
			min_playtime = excluded.min_playtime,
			max_playtime = excluded.max_playtime,
			min_age = excluded.min_age,
			description = excluded.description,
			thumbnail_url = excluded.thumbnail_url,
			image_url = excluded.image_url,
			categories = excluded.categories,
			mechanics = excluded.mechanics,
			bgg_rating = excluded.bgg_rating,
			bgg_weight = excluded.bgg_weight
	`, g.BGGID, g.Name, g.YearPublished, g.MinPlayers, g.MaxPlayers,
		g.PlayingTime, g.MinPlaytime, g.MaxPlaytime, g.MinAge, g.Description,
		g.ThumbnailURL, g.ImageURL, categories, mechanics, g.BGGRating, g.BGGWeight)
	if err != nil {
		return fmt.Errorf("failed to upsert game %d: %w", g.BGGID, err)
	}
	return nil
}

// InsertGameIfAbsent adds a game only when its natural key is unknown
// locally. Games arriving from a pull never overwrite what is already
// cached; they are append-only reference data.
func (s *Store) InsertGameIfAbsent(g *catalog.Game) error {
	categories, mechanics, err := encodeTags(g)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO games (
			bgg_id, name, year_published, min_players, max_players,
			playing_time, min_playtime, max_playtime, min_age, description,
			thumbnail_url, image_url, categories, mechanics, bgg_rating, bgg_weight
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bgg_id) DO NOTHING
	`, g.BGGID, g.Name, g.YearPublished, g.MinPlayers, g.MaxPlayers,
		g.PlayingTime, g.MinPlaytime, g.MaxPlaytime, g.MinAge, g.Description,
		g.ThumbnailURL, g.ImageURL, categories, mechanics, g.BGGRating, g.BGGWeight)
	if err != nil {
		return fmt.Errorf("failed to insert game %d: %w", g.BGGID, err)
	}
	return nil
}

// GetGame returns the game with the given natural key, or ErrNotFound.
func (s *Store) GetGame(bggID int64) (*catalog.Game, error) {
	row := s.db.QueryRow(`
		SELECT bgg_id, name, year_published, min_players, max_players,
			playing_time, min_playtime, max_playtime, min_age, description,
			thumbnail_url, image_url, categories, mechanics, bgg_rating, bgg_weight
		FROM games WHERE bgg_id = ?
	`, bggID)
	return scanGame(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*catalog.Game, error) {
	var g catalog.Game
	var categories, mechanics string
	err := row.Scan(&g.BGGID, &g.Name, &g.YearPublished, &g.MinPlayers,
		&g.MaxPlayers, &g.PlayingTime, &g.MinPlaytime, &g.MaxPlaytime,
		&g.MinAge, &g.Description, &g.ThumbnailURL, &g.ImageURL,
		&categories, &mechanics, &g.BGGRating, &g.BGGWeight)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan game: %w", err)
	}
	if err := decodeInto(categories, &g.Categories); err != nil {
		return nil, err
	}
	if err := decodeInto(mechanics, &g.Mechanics); err != nil {
		return nil, err
	}
	return &g, nil
}

func decodeInto(raw string, dst *[]string) error {
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("failed to decode tag list: %w", err)
	}
	return nil
}

// Tag sets are stored as JSON arrays in a TEXT column.
func encodeTags(g *catalog.Game) (categories, mechanics string, err error) {
	c := g.Categories
	if c == nil {
		c = []string{}
	}
	m := g.Mechanics
	if m == nil {
		m = []string{}
	}
	cb, err := json.Marshal(c)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode categories: %w", err)
	}
	mb, err := json.Marshal(m)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode mechanics: %w", err)
	}
	return string(cb), string(mb), nil
}

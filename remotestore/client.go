// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

// Package remotestore is the client for the shared authoritative Postgres
// store. Rows carry updated_at and a soft-delete marker (deleted_at); the
// sync engine never hard-deletes remote rows.
package remotestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned by point lookups when no row matches.
	ErrNotFound = errors.New("remotestore: not found")
	// ErrDuplicateKey is returned when an insert loses a race against a
	// concurrent insert of the same natural key from another device.
	ErrDuplicateKey = errors.New("remotestore: duplicate key")
)

// Client runs queries against the remote store through a pgx pool. Timeouts
// are per-call, inherited from the pool configuration and request contexts.
type Client struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a remote store client from an existing pool. The caller keeps
// ownership of the pool's lifecycle.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{pool: pool, logger: logger}
}

// Pool returns the underlying connection pool for advanced queries.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// Ping reports whether the remote store is reachable. The scheduler's
// connectivity probe uses it to detect transitions.
func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// uniqueViolation reports whether err is a Postgres 23505 unique_violation.
func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}

// InitSchema creates the remote tables if they do not exist. Safe to run on
// every startup.
func (c *Client) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS games (
			id             BIGSERIAL PRIMARY KEY,
			bgg_id         BIGINT NOT NULL UNIQUE,
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
			categories     TEXT[] NOT NULL DEFAULT '{}',
			mechanics      TEXT[] NOT NULL DEFAULT '{}',
			bgg_rating     DOUBLE PRECISION,
			bgg_weight     DOUBLE PRECISION
		)`,
		`CREATE TABLE IF NOT EXISTS collection_games (
			id              BIGSERIAL PRIMARY KEY,
			user_id         TEXT NOT NULL,
			game_id         BIGINT NOT NULL REFERENCES games(id),
			status          TEXT NOT NULL,
			personal_rating INTEGER,
			notes           TEXT,
			added_at        TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL,
			deleted_at      TIMESTAMPTZ,
			UNIQUE (user_id, game_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_collection_games_user_updated
			ON collection_games (user_id, updated_at)`,
		`CREATE TABLE IF NOT EXISTS plays (
			id               BIGSERIAL PRIMARY KEY,
			user_id          TEXT NOT NULL,
			game_id          BIGINT NOT NULL REFERENCES games(id),
			played_at        TIMESTAMPTZ NOT NULL,
			duration_minutes INTEGER,
			players          JSONB NOT NULL DEFAULT '[]',
			notes            TEXT,
			photo_url        TEXT,
			location         TEXT,
			created_at       TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL,
			deleted_at       TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_plays_user_updated
			ON plays (user_id, updated_at)`,
	}
	for _, stmt := range stmts {
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize remote schema: %w", err)
		}
	}
	return nil
}

// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

// Package syncer reconciles the local store with the remote authoritative
// store. A reconciliation cycle pushes pending local mutations (including
// queued deletion tombstones), then pulls remote rows changed since the last
// checkpoint and merges them under a last-write-wins policy with
// local-favored ties. Convergence is eventual: no locks or transactions span
// the two stores, and every operation is safe to repeat.
package syncer

import (
	"context"
	"time"

	"github.com/raiderj77/shelflife/catalog"
	"github.com/raiderj77/shelflife/remotestore"
)

// Remote is the surface of the remote store the sync engine depends on.
// *remotestore.Client implements it; tests substitute an in-memory fake.
// All calls must honor ctx deadlines; timeouts surface as per-item or
// cycle-level errors depending on the phase.
type Remote interface {
	// GameIDByBGGID resolves a game's natural key to its remote surrogate
	// id, returning remotestore.ErrNotFound when absent.
	GameIDByBGGID(ctx context.Context, bggID int64) (int64, error)
	// InsertGame creates a game row, returning remotestore.ErrDuplicateKey
	// if a concurrent insert of the same natural key won the race.
	InsertGame(ctx context.Context, g *catalog.Game) (int64, error)

	UpsertCollectionRow(ctx context.Context, userID string, gameID int64, e *catalog.CollectionEntry) (int64, error)
	InsertPlay(ctx context.Context, userID string, gameID int64, p *catalog.PlaySession) (int64, error)
	UpdatePlay(ctx context.Context, userID string, remoteID, gameID int64, p *catalog.PlaySession) error

	SoftDeleteCollectionByID(ctx context.Context, userID string, remoteID int64) error
	SoftDeleteCollectionByGame(ctx context.Context, userID string, gameID int64) error
	SoftDeletePlay(ctx context.Context, userID string, remoteID int64) error

	CollectionChangedSince(ctx context.Context, userID string, since *time.Time) ([]remotestore.CollectionRow, error)
	PlaysChangedSince(ctx context.Context, userID string, since *time.Time) ([]remotestore.PlayRow, error)
}

var _ Remote = (*remotestore.Client)(nil)

// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog defines the domain model shared by the local and remote
// stores: games, collection entries, play sessions and deletion tombstones.
//
// A Game is keyed by its BoardGameGeek id (the natural key), which is stable
// across stores. The remote store additionally assigns a surrogate numeric id
// to each game row; that id never appears in these types, it is tracked by
// the sync layer's identifier cache.
package catalog

import "time"

// CollectionStatus describes the user's relationship to a game.
type CollectionStatus string

const (
	StatusOwned     CollectionStatus = "owned"
	StatusWishlist  CollectionStatus = "wishlist"
	StatusForTrade  CollectionStatus = "for_trade"
	StatusWantToBuy CollectionStatus = "want_to_buy"
)

// Valid reports whether s is one of the known collection statuses.
func (s CollectionStatus) Valid() bool {
	switch s {
	case StatusOwned, StatusWishlist, StatusForTrade, StatusWantToBuy:
		return true
	}
	return false
}

// SyncState tracks how a local row relates to the last-known remote state.
type SyncState string

const (
	// SyncSynced means the row matches the last successful push or an
	// accepted pull.
	SyncSynced SyncState = "synced"
	// SyncPending means the local row has diverged and must be pushed.
	SyncPending SyncState = "pending"
	// SyncConflict is reserved for rows a resolver refused to merge.
	SyncConflict SyncState = "conflict"
)

// Game is a catalog record. Games are reference data from the sync engine's
// perspective: created on first reference and never deleted locally.
type Game struct {
	BGGID         int64
	Name          string
	YearPublished *int
	MinPlayers    *int
	MaxPlayers    *int
	PlayingTime   *int
	MinPlaytime   *int
	MaxPlaytime   *int
	MinAge        *int
	Description   *string
	ThumbnailURL  *string
	ImageURL      *string
	Categories    []string
	Mechanics     []string
	BGGRating     *float64
	BGGWeight     *float64
}

// CollectionEntry is the user's relationship to a single game. There is at
// most one entry per game locally, enforced by the bgg_id unique index.
type CollectionEntry struct {
	BGGID          int64
	Status         CollectionStatus
	PersonalRating *int
	Notes          *string
	AddedAt        time.Time
	UpdatedAt      time.Time
	SyncState      SyncState
	RemoteID       *int64
}

// PlayerResult is one participant in a play session. The slice order on
// PlaySession is meaningful and preserved through serialization.
type PlayerResult struct {
	Name   string `json:"name"`
	Score  *int   `json:"score,omitempty"`
	Winner bool   `json:"winner,omitempty"`
}

// PlaySession is a logged play event. Multiple sessions per game are allowed.
type PlaySession struct {
	ID              int64 // local auto-assigned id
	BGGID           int64
	PlayedAt        time.Time
	DurationMinutes *int
	Players         []PlayerResult
	Notes           *string
	PhotoURL        *string
	Location        *string
	CreatedAt       time.Time
	SyncState       SyncState
	RemoteID        *int64
}

// TombstoneTable identifies which logical table a tombstone refers to.
type TombstoneTable string

const (
	TombstoneCollection TombstoneTable = "collection"
	TombstonePlays      TombstoneTable = "plays"
)

// Tombstone records a local deletion that has not yet been confirmed
// propagated to the remote store. RemoteID is nil when the deleted item was
// never pushed.
type Tombstone struct {
	ID        int64
	Table     TombstoneTable
	BGGID     int64
	RemoteID  *int64
	DeletedAt time.Time
}

// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/raiderj77/shelflife/catalog"
	"github.com/raiderj77/shelflife/remotestore"
)

// fakeRemote is an in-memory Remote used by the engine tests. It mimics the
// Postgres-backed client closely enough to exercise the sync paths: surrogate
// ids, the (user, game) upsert key, soft deletes with bumped update times,
// and the duplicate-key error on racing game inserts.
type fakeRemote struct {
	mu     sync.Mutex
	nextID int64

	gameIDs  map[int64]int64         // bgg id -> surrogate id
	games    map[int64]catalog.Game  // surrogate id -> metadata
	entries  map[int64]*remotestore.CollectionRow // surrogate id -> row
	playRows map[int64]*remotestore.PlayRow

	calls map[string]int

	// Error injection. failUpsertGames makes UpsertCollectionRow fail for
	// those bgg ids; raceOnInsertGame makes the next InsertGame register the
	// game but report a duplicate-key loss, as if another device won.
	failUpsertGames  map[int64]bool
	insertGameErr    error
	raceOnInsertGame bool
	pullCollErr      error
	pullPlaysErr     error

	// Optional handshake to hold a cycle open mid-pull. Set both before any
	// sync runs: the fake announces on pullEntered and then waits on
	// pullRelease.
	pullEntered chan struct{}
	pullRelease chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		gameIDs:         make(map[int64]int64),
		games:           make(map[int64]catalog.Game),
		entries:         make(map[int64]*remotestore.CollectionRow),
		playRows:        make(map[int64]*remotestore.PlayRow),
		calls:           make(map[string]int),
		failUpsertGames: make(map[int64]bool),
	}
}

func (f *fakeRemote) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeRemote) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeRemote) GameIDByBGGID(_ context.Context, bggID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GameIDByBGGID"]++
	id, ok := f.gameIDs[bggID]
	if !ok {
		return 0, remotestore.ErrNotFound
	}
	return id, nil
}

func (f *fakeRemote) InsertGame(_ context.Context, g *catalog.Game) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["InsertGame"]++
	if f.insertGameErr != nil {
		return 0, f.insertGameErr
	}
	if _, exists := f.gameIDs[g.BGGID]; exists {
		return 0, fmt.Errorf("insert game %d: %w", g.BGGID, remotestore.ErrDuplicateKey)
	}
	id := f.id()
	f.gameIDs[g.BGGID] = id
	f.games[id] = *g
	if f.raceOnInsertGame {
		// The row exists now (the other device created it) but our insert
		// reports the unique violation.
		f.raceOnInsertGame = false
		return 0, fmt.Errorf("insert game %d: %w", g.BGGID, remotestore.ErrDuplicateKey)
	}
	return id, nil
}

// addGame seeds a game without going through the sync path.
func (f *fakeRemote) addGame(g catalog.Game) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	f.gameIDs[g.BGGID] = id
	f.games[id] = g
	return id
}

// seedCollectionRow plants a remote row as if another device pushed it.
func (f *fakeRemote) seedCollectionRow(gameID int64, status catalog.CollectionStatus, updatedAt time.Time) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	game := f.games[gameID]
	f.entries[id] = &remotestore.CollectionRow{
		ID:        id,
		GameID:    gameID,
		Game:      &game,
		Status:    status,
		AddedAt:   updatedAt,
		UpdatedAt: updatedAt,
	}
	return id
}

// seedPlayRow plants a remote play as if another device pushed it.
func (f *fakeRemote) seedPlayRow(gameID int64, playedAt, updatedAt time.Time) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	game := f.games[gameID]
	f.playRows[id] = &remotestore.PlayRow{
		ID:        id,
		GameID:    gameID,
		Game:      &game,
		PlayedAt:  playedAt,
		CreatedAt: playedAt,
		UpdatedAt: updatedAt,
	}
	return id
}

// collectionRow returns a copy of the remote row, or nil.
func (f *fakeRemote) collectionRow(id int64) *remotestore.CollectionRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.entries[id]
	if !ok {
		return nil
	}
	cp := *row
	return &cp
}

// playRow returns a copy of the remote play row, or nil.
func (f *fakeRemote) playRow(id int64) *remotestore.PlayRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.playRows[id]
	if !ok {
		return nil
	}
	cp := *row
	return &cp
}

func (f *fakeRemote) UpsertCollectionRow(_ context.Context, userID string, gameID int64, e *catalog.CollectionEntry) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["UpsertCollectionRow"]++
	if f.failUpsertGames[e.BGGID] {
		return 0, fmt.Errorf("simulated upsert failure for game %d", e.BGGID)
	}
	for _, row := range f.entries {
		if row.GameID == gameID {
			row.Status = e.Status
			row.PersonalRating = e.PersonalRating
			row.Notes = e.Notes
			row.AddedAt = e.AddedAt
			row.UpdatedAt = e.UpdatedAt
			row.DeletedAt = nil
			return row.ID, nil
		}
	}
	id := f.id()
	game := f.games[gameID]
	f.entries[id] = &remotestore.CollectionRow{
		ID:             id,
		GameID:         gameID,
		Game:           &game,
		Status:         e.Status,
		PersonalRating: e.PersonalRating,
		Notes:          e.Notes,
		AddedAt:        e.AddedAt,
		UpdatedAt:      e.UpdatedAt,
	}
	return id, nil
}

func (f *fakeRemote) InsertPlay(_ context.Context, userID string, gameID int64, p *catalog.PlaySession) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["InsertPlay"]++
	id := f.id()
	game := f.games[gameID]
	f.playRows[id] = &remotestore.PlayRow{
		ID:              id,
		GameID:          gameID,
		Game:            &game,
		PlayedAt:        p.PlayedAt,
		DurationMinutes: p.DurationMinutes,
		Players:         p.Players,
		Notes:           p.Notes,
		PhotoURL:        p.PhotoURL,
		Location:        p.Location,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       time.Now().UTC(),
	}
	return id, nil
}

func (f *fakeRemote) UpdatePlay(_ context.Context, userID string, remoteID, gameID int64, p *catalog.PlaySession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["UpdatePlay"]++
	row, ok := f.playRows[remoteID]
	if !ok {
		return remotestore.ErrNotFound
	}
	row.PlayedAt = p.PlayedAt
	row.DurationMinutes = p.DurationMinutes
	row.Players = p.Players
	row.Notes = p.Notes
	row.PhotoURL = p.PhotoURL
	row.Location = p.Location
	row.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeRemote) SoftDeleteCollectionByID(_ context.Context, userID string, remoteID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["SoftDeleteCollectionByID"]++
	if row, ok := f.entries[remoteID]; ok {
		now := time.Now().UTC()
		row.DeletedAt = &now
		row.UpdatedAt = now
	}
	return nil
}

func (f *fakeRemote) SoftDeleteCollectionByGame(_ context.Context, userID string, gameID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["SoftDeleteCollectionByGame"]++
	for _, row := range f.entries {
		if row.GameID == gameID {
			now := time.Now().UTC()
			row.DeletedAt = &now
			row.UpdatedAt = now
		}
	}
	return nil
}

func (f *fakeRemote) SoftDeletePlay(_ context.Context, userID string, remoteID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["SoftDeletePlay"]++
	if row, ok := f.playRows[remoteID]; ok {
		now := time.Now().UTC()
		row.DeletedAt = &now
		row.UpdatedAt = now
	}
	return nil
}

func (f *fakeRemote) CollectionChangedSince(_ context.Context, userID string, since *time.Time) ([]remotestore.CollectionRow, error) {
	if f.pullEntered != nil {
		f.pullEntered <- struct{}{}
		<-f.pullRelease
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CollectionChangedSince"]++
	if f.pullCollErr != nil {
		return nil, f.pullCollErr
	}
	var out []remotestore.CollectionRow
	for _, row := range f.entries {
		if since == nil || !row.UpdatedAt.Before(*since) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (f *fakeRemote) PlaysChangedSince(_ context.Context, userID string, since *time.Time) ([]remotestore.PlayRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["PlaysChangedSince"]++
	if f.pullPlaysErr != nil {
		return nil, f.pullPlaysErr
	}
	var out []remotestore.PlayRow
	for _, row := range f.playRows {
		if since == nil || !row.UpdatedAt.Before(*since) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

var _ Remote = (*fakeRemote)(nil)

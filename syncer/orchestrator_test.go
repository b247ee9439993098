// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raiderj77/shelflife/catalog"
	"github.com/raiderj77/shelflife/localstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEngine struct {
	local  *localstore.Store
	remote *fakeRemote
	orch   *Orchestrator
	status *StatusPublisher
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	logger := discardLogger()
	local, err := localstore.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	remote := newFakeRemote()
	status := NewStatusPublisher()
	orch := NewOrchestrator(local, remote, NewGameIDCache(remote), status, "user-1", logger)
	return &testEngine{local: local, remote: remote, orch: orch, status: status}
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func testGame(bggID int64, name string) *catalog.Game {
	return &catalog.Game{BGGID: bggID, Name: name}
}

func TestSyncOncePushesNewCollectionEntry(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	game := &catalog.Game{BGGID: 174430, Name: "Gloomhaven", MinPlayers: intPtr(1), MaxPlayers: intPtr(4)}
	require.NoError(t, e.local.AddToCollection(game, catalog.StatusOwned))

	before := time.Now().UTC()
	require.NoError(t, e.orch.SyncOnce(ctx))

	// Local entry ends up synced and knows its remote surrogate id.
	entry, err := e.local.GetCollectionEntry(174430)
	require.NoError(t, err)
	require.Equal(t, catalog.SyncSynced, entry.SyncState)
	require.NotNil(t, entry.RemoteID)

	// The remote store has both the game and the collection row.
	row := e.remote.collectionRow(*entry.RemoteID)
	require.NotNil(t, row)
	require.Equal(t, catalog.StatusOwned, row.Status)
	require.Nil(t, row.DeletedAt)
	require.True(t, entry.UpdatedAt.Equal(row.UpdatedAt), "the device's edit time travels with the push")

	// Checkpoint lands at the cycle start, not at push time.
	cp, ok, err := e.local.Checkpoint()
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, cp.Before(before))
	require.False(t, cp.After(time.Now().UTC()))

	snap := e.status.Current()
	require.Equal(t, StateIdle, snap.State)
	require.Zero(t, snap.PendingCount)
	require.True(t, cp.Equal(snap.LastSyncedAt))
}

func TestSyncOncePushesPlaySession(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.local.AddToCollection(testGame(13, "Catan"), catalog.StatusOwned))
	id, err := e.local.LogPlay(&catalog.PlaySession{
		BGGID:    13,
		PlayedAt: time.Date(2025, 7, 4, 19, 0, 0, 0, time.UTC),
		Players:  []catalog.PlayerResult{{Name: "Alice", Winner: true}},
	})
	require.NoError(t, err)

	require.NoError(t, e.orch.SyncOnce(ctx))

	play, err := e.local.GetPlay(id)
	require.NoError(t, err)
	require.Equal(t, catalog.SyncSynced, play.SyncState)
	require.NotNil(t, play.RemoteID)

	row := e.remote.playRow(*play.RemoteID)
	require.NotNil(t, row)
	require.Equal(t, "Alice", row.Players[0].Name)

	// One game insert serves both the entry and the play push.
	require.Equal(t, 1, e.remote.count("InsertGame"))
}

func TestPushFailureLeavesItemPendingForNextCycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.local.AddToCollection(testGame(1, "Catan"), catalog.StatusOwned))
	require.NoError(t, e.local.AddToCollection(testGame(2, "Azul"), catalog.StatusOwned))
	e.remote.failUpsertGames[1] = true

	// A single failing item does not fail the cycle; it just stays pending.
	require.NoError(t, e.orch.SyncOnce(ctx))

	catan, err := e.local.GetCollectionEntry(1)
	require.NoError(t, err)
	require.Equal(t, catalog.SyncPending, catan.SyncState)
	azul, err := e.local.GetCollectionEntry(2)
	require.NoError(t, err)
	require.Equal(t, catalog.SyncSynced, azul.SyncState)
	require.Equal(t, 1, e.status.Current().PendingCount)

	// Next cycle retries and drains it.
	e.remote.failUpsertGames[1] = false
	require.NoError(t, e.orch.SyncOnce(ctx))
	catan, err = e.local.GetCollectionEntry(1)
	require.NoError(t, err)
	require.Equal(t, catalog.SyncSynced, catan.SyncState)
	require.Zero(t, e.status.Current().PendingCount)
}

func TestPullMaterializesRemoteData(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	now := time.Now().UTC()
	gameID := e.remote.addGame(catalog.Game{BGGID: 13, Name: "Catan", MaxPlayers: intPtr(4)})
	rowID := e.remote.seedCollectionRow(gameID, catalog.StatusOwned, now)
	playID := e.remote.seedPlayRow(gameID, now.Add(-time.Hour), now)

	require.NoError(t, e.orch.SyncOnce(ctx))

	game, err := e.local.GetGame(13)
	require.NoError(t, err)
	require.Equal(t, "Catan", game.Name)

	entry, err := e.local.GetCollectionEntry(13)
	require.NoError(t, err)
	require.Equal(t, catalog.SyncSynced, entry.SyncState)
	require.Equal(t, rowID, *entry.RemoteID)

	play, err := e.local.GetPlayByRemoteID(playID)
	require.NoError(t, err)
	require.Equal(t, int64(13), play.BGGID)
	require.Equal(t, catalog.SyncSynced, play.SyncState)
}

func TestPullConflictRemoteStrictlyNewerWins(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.local.AddToCollection(testGame(13, "Catan"), catalog.StatusOwned))
	require.NoError(t, e.local.UpdateCollectionEntry(13, func(en *catalog.CollectionEntry) {
		en.PersonalRating = intPtr(8)
	}))
	local, err := e.local.GetCollectionEntry(13)
	require.NoError(t, err)

	gameID := e.remote.addGame(catalog.Game{BGGID: 13, Name: "Catan"})
	e.remote.seedCollectionRow(gameID, catalog.StatusForTrade, local.UpdatedAt.Add(time.Hour))

	require.NoError(t, e.orch.pullCollection(ctx, discardLogger(), nil))

	merged, err := e.local.GetCollectionEntry(13)
	require.NoError(t, err)
	require.Equal(t, catalog.StatusForTrade, merged.Status, "strictly newer remote edit wins")
	require.Equal(t, catalog.SyncSynced, merged.SyncState)
}

func TestPullConflictTieKeepsLocalEdit(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.local.AddToCollection(testGame(13, "Catan"), catalog.StatusOwned))
	require.NoError(t, e.local.UpdateCollectionEntry(13, func(en *catalog.CollectionEntry) {
		en.PersonalRating = intPtr(8)
	}))
	local, err := e.local.GetCollectionEntry(13)
	require.NoError(t, err)

	gameID := e.remote.addGame(catalog.Game{BGGID: 13, Name: "Catan"})
	e.remote.seedCollectionRow(gameID, catalog.StatusForTrade, local.UpdatedAt)

	require.NoError(t, e.orch.pullCollection(ctx, discardLogger(), nil))

	kept, err := e.local.GetCollectionEntry(13)
	require.NoError(t, err)
	require.Equal(t, catalog.StatusOwned, kept.Status, "equal timestamps keep the local edit")
	require.Equal(t, 8, *kept.PersonalRating)
	require.Equal(t, catalog.SyncPending, kept.SyncState, "the local edit still pushes next cycle")
}

func TestPullOverwritesLocallySyncedEntry(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// A synced local row is the last push's state; the remote is
	// authoritative for it even with an older timestamp.
	require.NoError(t, e.local.InsertGameIfAbsent(testGame(13, "Catan")))
	old := time.Now().UTC().Add(-time.Hour)
	remoteID := int64(99)
	require.NoError(t, e.local.ApplyRemoteEntry(&catalog.CollectionEntry{
		BGGID: 13, Status: catalog.StatusOwned,
		AddedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
		RemoteID: &remoteID,
	}))

	gameID := e.remote.addGame(catalog.Game{BGGID: 13, Name: "Catan"})
	e.remote.seedCollectionRow(gameID, catalog.StatusWishlist, old)

	require.NoError(t, e.orch.pullCollection(ctx, discardLogger(), nil))

	entry, err := e.local.GetCollectionEntry(13)
	require.NoError(t, err)
	require.Equal(t, catalog.StatusWishlist, entry.Status)
}

func TestPullNeverOverwritesPendingPlay(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Sync a play, then force it back to pending as if it were edited
	// between cycles.
	require.NoError(t, e.local.AddToCollection(testGame(13, "Catan"), catalog.StatusOwned))
	id, err := e.local.LogPlay(&catalog.PlaySession{BGGID: 13, PlayedAt: time.Now().UTC(), Notes: strPtr("local notes")})
	require.NoError(t, err)
	require.NoError(t, e.orch.SyncOnce(ctx))

	_, err = e.local.DB().Exec(`UPDATE play_sessions SET sync_status = 'pending' WHERE id = ?`, id)
	require.NoError(t, err)

	require.NoError(t, e.orch.pullPlays(ctx, discardLogger(), nil))

	kept, err := e.local.GetPlay(id)
	require.NoError(t, err)
	require.Equal(t, catalog.SyncPending, kept.SyncState)
	require.Equal(t, "local notes", *kept.Notes)
}

func TestPullAppliesRemoteSoftDeletes(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.local.AddToCollection(testGame(13, "Catan"), catalog.StatusOwned))
	playID, err := e.local.LogPlay(&catalog.PlaySession{BGGID: 13, PlayedAt: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, e.orch.SyncOnce(ctx))

	entry, err := e.local.GetCollectionEntry(13)
	require.NoError(t, err)
	play, err := e.local.GetPlay(playID)
	require.NoError(t, err)

	// Another device deletes both remotely.
	require.NoError(t, e.remote.SoftDeleteCollectionByID(ctx, "user-1", *entry.RemoteID))
	require.NoError(t, e.remote.SoftDeletePlay(ctx, "user-1", *play.RemoteID))

	require.NoError(t, e.orch.SyncOnce(ctx))

	_, err = e.local.GetCollectionEntry(13)
	require.ErrorIs(t, err, localstore.ErrNotFound)
	_, err = e.local.GetPlay(playID)
	require.ErrorIs(t, err, localstore.ErrNotFound)

	// Remotely-originated deletions must not boomerang as tombstones.
	tombstones, err := e.local.Tombstones()
	require.NoError(t, err)
	require.Empty(t, tombstones)
}

func TestTombstonePropagatesSyncedDeletionExactlyOnce(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.local.AddToCollection(testGame(13, "Catan"), catalog.StatusOwned))
	require.NoError(t, e.orch.SyncOnce(ctx))
	entry, err := e.local.GetCollectionEntry(13)
	require.NoError(t, err)
	remoteID := *entry.RemoteID

	require.NoError(t, e.local.RemoveFromCollection(13))
	require.NoError(t, e.orch.SyncOnce(ctx))

	row := e.remote.collectionRow(remoteID)
	require.NotNil(t, row)
	require.NotNil(t, row.DeletedAt)
	require.Equal(t, 1, e.remote.count("SoftDeleteCollectionByID"))

	tombstones, err := e.local.Tombstones()
	require.NoError(t, err)
	require.Empty(t, tombstones, "consumed after one successful propagation")

	// Later cycles make no further delete calls.
	require.NoError(t, e.orch.SyncOnce(ctx))
	require.Equal(t, 1, e.remote.count("SoftDeleteCollectionByID"))
}

func TestTombstoneForNeverSyncedPlaySkipsRemoteCall(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id, err := e.local.LogPlay(&catalog.PlaySession{BGGID: 13, PlayedAt: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, e.local.DeletePlay(id))

	require.NoError(t, e.orch.pushTombstones(ctx, discardLogger()))

	require.Zero(t, e.remote.count("SoftDeletePlay"))
	tombstones, err := e.local.Tombstones()
	require.NoError(t, err)
	require.Empty(t, tombstones)
}

func TestTombstoneWithoutRemoteIDResolvesGame(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// The entry never learned its remote id locally, but another device
	// pushed a row for the same game: deletion goes through (user, game).
	gameID := e.remote.addGame(catalog.Game{BGGID: 13, Name: "Catan"})
	rowID := e.remote.seedCollectionRow(gameID, catalog.StatusOwned, time.Now().UTC())

	require.NoError(t, e.local.AddToCollection(testGame(13, "Catan"), catalog.StatusOwned))
	require.NoError(t, e.local.RemoveFromCollection(13))
	require.NoError(t, e.orch.pushTombstones(ctx, discardLogger()))

	require.Equal(t, 1, e.remote.count("SoftDeleteCollectionByGame"))
	require.NotNil(t, e.remote.collectionRow(rowID).DeletedAt)
}

func TestTombstoneForGameUnknownRemotelyIsDropped(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.local.AddToCollection(testGame(13, "Catan"), catalog.StatusOwned))
	require.NoError(t, e.local.RemoveFromCollection(13))
	require.NoError(t, e.orch.pushTombstones(ctx, discardLogger()))

	// The game never existed remotely: nothing to delete, queue drained.
	require.Zero(t, e.remote.count("SoftDeleteCollectionByGame"))
	require.Zero(t, e.remote.count("SoftDeleteCollectionByID"))
	tombstones, err := e.local.Tombstones()
	require.NoError(t, err)
	require.Empty(t, tombstones)
}

func TestPullFailureDoesNotAdvanceCheckpoint(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.orch.SyncOnce(ctx))
	first, ok, err := e.local.Checkpoint()
	require.NoError(t, err)
	require.True(t, ok)

	e.remote.pullCollErr = errors.New("network down")
	require.Error(t, e.orch.SyncOnce(ctx))

	cp, ok, err := e.local.Checkpoint()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, first.Equal(cp), "failed cycle re-reads the same window next time")

	snap := e.status.Current()
	require.Equal(t, StateError, snap.State)
	require.Contains(t, snap.LastError, "network down")
	require.True(t, first.Equal(snap.LastSyncedAt))

	// Recovery: the next clean cycle advances past the failure.
	e.remote.pullCollErr = nil
	require.NoError(t, e.orch.SyncOnce(ctx))
	cp, _, err = e.local.Checkpoint()
	require.NoError(t, err)
	require.True(t, cp.After(first))
	require.Equal(t, StateIdle, e.status.Current().State)
}

func TestPullSkipsRowsOlderThanCheckpoint(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.orch.SyncOnce(ctx))
	cp, _, err := e.local.Checkpoint()
	require.NoError(t, err)

	gameID := e.remote.addGame(catalog.Game{BGGID: 13, Name: "Catan"})
	e.remote.seedCollectionRow(gameID, catalog.StatusOwned, cp.Add(-time.Minute))

	require.NoError(t, e.orch.SyncOnce(ctx))

	// The stale row predates the watermark and is not pulled.
	_, err = e.local.GetCollectionEntry(13)
	require.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestTwoDeviceRatingConvergence(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Device A (this engine) owns the game and has synced it.
	require.NoError(t, e.local.AddToCollection(testGame(13, "Catan"), catalog.StatusOwned))
	require.NoError(t, e.orch.SyncOnce(ctx))
	entry, err := e.local.GetCollectionEntry(13)
	require.NoError(t, err)

	// Device B rates it later; simulate by editing the remote row directly.
	e.remote.mu.Lock()
	row := e.remote.entries[*entry.RemoteID]
	row.PersonalRating = intPtr(7)
	row.UpdatedAt = time.Now().UTC().Add(time.Hour)
	e.remote.mu.Unlock()

	require.NoError(t, e.orch.SyncOnce(ctx))

	merged, err := e.local.GetCollectionEntry(13)
	require.NoError(t, err)
	require.Equal(t, 7, *merged.PersonalRating)
	require.Equal(t, catalog.SyncSynced, merged.SyncState)
}

func TestRefreshPendingUpdatesStatus(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.local.AddToCollection(testGame(13, "Catan"), catalog.StatusOwned))
	e.orch.RefreshPending()
	require.Equal(t, 1, e.status.Current().PendingCount)
}

// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/raiderj77/shelflife/catalog"
	"github.com/raiderj77/shelflife/localstore"
	"github.com/raiderj77/shelflife/remotestore"
)

// Orchestrator runs full reconciliation cycles: a push phase that drains
// pending local mutations and tombstones to the remote store, followed by a
// pull phase that merges remote changes since the last checkpoint. All
// dependencies are explicit so tests can build isolated instances.
type Orchestrator struct {
	local  *localstore.Store
	remote Remote
	ids    *GameIDCache
	status *StatusPublisher
	userID string
	logger *slog.Logger
}

// NewOrchestrator wires an orchestrator for one authenticated user. userID
// is the opaque identifier scoping all remote rows.
func NewOrchestrator(local *localstore.Store, remote Remote, ids *GameIDCache, status *StatusPublisher, userID string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		local:  local,
		remote: remote,
		ids:    ids,
		status: status,
		userID: userID,
		logger: logger,
	}
}

// SyncOnce performs one full reconciliation cycle and reports its outcome
// through the status publisher. Push-phase item failures are logged and
// retried next cycle; a pull-phase failure aborts the cycle and leaves the
// checkpoint untouched so the next cycle re-reads the same window.
func (o *Orchestrator) SyncOnce(ctx context.Context) error {
	start := time.Now().UTC()
	logger := o.logger.With("cycle_id", uuid.NewString())

	o.status.beginSync()
	err := o.runCycle(ctx, logger, start)
	if err != nil {
		logger.Warn("sync cycle failed", "error", err)
	}

	pending, perr := o.local.PendingCount()
	if perr != nil {
		logger.Error("failed to count pending items", "error", perr)
		pending = -1
	}
	var checkpoint time.Time
	if err == nil {
		checkpoint = start
	}
	o.status.finishSync(err, pending, checkpoint)
	return err
}

// RefreshPending recomputes the pending counter outside a cycle, so the
// published status stays honest when mutations land while offline.
func (o *Orchestrator) RefreshPending() {
	n, err := o.local.PendingCount()
	if err != nil {
		o.logger.Error("failed to count pending items", "error", err)
		return
	}
	o.status.setPending(n)
}

func (o *Orchestrator) runCycle(ctx context.Context, logger *slog.Logger, start time.Time) error {
	// Push fully finishes before pull begins so this device's own edits are
	// reflected back to it by the pull instead of being overwritten by
	// stale remote data.
	if err := o.pushCollectionEntries(ctx, logger); err != nil {
		return err
	}
	if err := o.pushPlaySessions(ctx, logger); err != nil {
		return err
	}
	if err := o.pushTombstones(ctx, logger); err != nil {
		return err
	}

	since, err := o.checkpoint()
	if err != nil {
		return err
	}
	if err := o.pullCollection(ctx, logger, since); err != nil {
		return err
	}
	if err := o.pullPlays(ctx, logger, since); err != nil {
		return err
	}

	// Advanced exactly once per fully successful cycle, to the cycle's
	// start time, never per item. The >= pull boundary re-examines the
	// boundary row next cycle, which is harmless; skipping rows would not be.
	if err := o.local.SetCheckpoint(start); err != nil {
		return fmt.Errorf("failed to advance checkpoint: %w", err)
	}
	return nil
}

func (o *Orchestrator) checkpoint() (*time.Time, error) {
	t, ok, err := o.local.Checkpoint()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if !ok {
		return nil, nil // first run: full pull
	}
	return &t, nil
}

// pushCollectionEntries upserts every pending entry. A failing item stays
// pending and never aborts the batch.
func (o *Orchestrator) pushCollectionEntries(ctx context.Context, logger *slog.Logger) error {
	pending, err := o.local.PendingCollectionEntries()
	if err != nil {
		return fmt.Errorf("failed to load pending collection entries: %w", err)
	}
	for i := range pending {
		e := &pending[i]
		game, err := o.local.GetGame(e.BGGID)
		if err != nil {
			logger.Error("skipping collection entry without local game", "bgg_id", e.BGGID, "error", err)
			continue
		}
		gameID, err := o.ids.EnsureRemoteID(ctx, game)
		if err != nil {
			logger.Warn("failed to resolve remote game id", "bgg_id", e.BGGID, "error", err)
			continue
		}
		remoteID, err := o.remote.UpsertCollectionRow(ctx, o.userID, gameID, e)
		if err != nil {
			logger.Warn("failed to push collection entry", "bgg_id", e.BGGID, "error", err)
			continue
		}
		if err := o.local.MarkCollectionSynced(e.BGGID, remoteID); err != nil {
			return err
		}
	}
	return nil
}

// pushPlaySessions inserts plays without a remote id and updates those that
// already have one.
func (o *Orchestrator) pushPlaySessions(ctx context.Context, logger *slog.Logger) error {
	pending, err := o.local.PendingPlaySessions()
	if err != nil {
		return fmt.Errorf("failed to load pending plays: %w", err)
	}
	for i := range pending {
		p := &pending[i]
		game, err := o.local.GetGame(p.BGGID)
		if err != nil {
			logger.Error("skipping play without local game", "play_id", p.ID, "bgg_id", p.BGGID, "error", err)
			continue
		}
		gameID, err := o.ids.EnsureRemoteID(ctx, game)
		if err != nil {
			logger.Warn("failed to resolve remote game id", "bgg_id", p.BGGID, "error", err)
			continue
		}
		remoteID := int64(0)
		if p.RemoteID != nil {
			remoteID = *p.RemoteID
			err = o.remote.UpdatePlay(ctx, o.userID, remoteID, gameID, p)
		} else {
			remoteID, err = o.remote.InsertPlay(ctx, o.userID, gameID, p)
		}
		if err != nil {
			logger.Warn("failed to push play", "play_id", p.ID, "error", err)
			continue
		}
		if err := o.local.MarkPlaySynced(p.ID, remoteID); err != nil {
			return err
		}
	}
	return nil
}

// pushTombstones propagates queued deletions as remote soft-deletes. Each
// tombstone is removed after exactly one successful remote call, or with no
// call at all when the item never reached the remote store.
func (o *Orchestrator) pushTombstones(ctx context.Context, logger *slog.Logger) error {
	tombstones, err := o.local.Tombstones()
	if err != nil {
		return fmt.Errorf("failed to load tombstones: %w", err)
	}
	for _, ts := range tombstones {
		if err := o.propagateTombstone(ctx, ts); err != nil {
			logger.Warn("failed to propagate deletion", "table", ts.Table, "bgg_id", ts.BGGID, "error", err)
			continue
		}
		if err := o.local.DeleteTombstone(ts.ID); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) propagateTombstone(ctx context.Context, ts catalog.Tombstone) error {
	switch ts.Table {
	case catalog.TombstoneCollection:
		if ts.RemoteID != nil {
			return o.remote.SoftDeleteCollectionByID(ctx, o.userID, *ts.RemoteID)
		}
		// The entry was deleted before it learned its remote id. Another
		// device may still have pushed a row for the same game, so resolve
		// the game and delete on (user, game).
		gameID, err := o.remote.GameIDByBGGID(ctx, ts.BGGID)
		if errors.Is(err, remotestore.ErrNotFound) {
			return nil // never remote, nothing to delete
		}
		if err != nil {
			return err
		}
		return o.remote.SoftDeleteCollectionByGame(ctx, o.userID, gameID)
	case catalog.TombstonePlays:
		if ts.RemoteID == nil {
			return nil // never synced, no remote call needed
		}
		return o.remote.SoftDeletePlay(ctx, o.userID, *ts.RemoteID)
	default:
		return fmt.Errorf("unknown tombstone table %q", ts.Table)
	}
}

// pullCollection merges remote collection rows changed since the checkpoint.
// Conflict policy: a locally synced row is overwritten (remote is
// authoritative post-push); a locally pending row loses only when the remote
// edit is strictly newer, so equal timestamps keep the local edit.
func (o *Orchestrator) pullCollection(ctx context.Context, logger *slog.Logger, since *time.Time) error {
	rows, err := o.remote.CollectionChangedSince(ctx, o.userID, since)
	if err != nil {
		return fmt.Errorf("collection pull failed: %w", err)
	}
	for i := range rows {
		r := &rows[i]
		if r.Game == nil {
			logger.Warn("skipping collection row without joined game", "remote_id", r.ID)
			continue
		}
		if err := o.local.InsertGameIfAbsent(r.Game); err != nil {
			logger.Error("failed to create local game", "bgg_id", r.Game.BGGID, "error", err)
			continue
		}
		if r.DeletedAt != nil {
			if err := o.local.DeleteCollectionFromRemote(r.Game.BGGID); err != nil {
				logger.Error("failed to apply remote deletion", "bgg_id", r.Game.BGGID, "error", err)
			}
			continue
		}

		local, err := o.local.GetCollectionEntry(r.Game.BGGID)
		switch {
		case errors.Is(err, localstore.ErrNotFound):
			err = o.applyCollectionRow(r)
		case err != nil:
		case local.SyncState != catalog.SyncPending:
			err = o.applyCollectionRow(r)
		case r.UpdatedAt.After(local.UpdatedAt):
			err = o.applyCollectionRow(r)
		default:
			// Local pending edit is at least as new; it re-pushes next cycle.
		}
		if err != nil {
			logger.Error("failed to merge collection row", "bgg_id", r.Game.BGGID, "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) applyCollectionRow(r *remotestore.CollectionRow) error {
	remoteID := r.ID
	return o.local.ApplyRemoteEntry(&catalog.CollectionEntry{
		BGGID:          r.Game.BGGID,
		Status:         r.Status,
		PersonalRating: r.PersonalRating,
		Notes:          r.Notes,
		AddedAt:        r.AddedAt,
		UpdatedAt:      r.UpdatedAt,
		SyncState:      catalog.SyncSynced,
		RemoteID:       &remoteID,
	})
}

// pullPlays merges remote play rows. Plays are linked by remote id; a
// locally pending play is never overwritten by a pull.
func (o *Orchestrator) pullPlays(ctx context.Context, logger *slog.Logger, since *time.Time) error {
	rows, err := o.remote.PlaysChangedSince(ctx, o.userID, since)
	if err != nil {
		return fmt.Errorf("plays pull failed: %w", err)
	}
	for i := range rows {
		r := &rows[i]
		if r.Game == nil {
			logger.Warn("skipping play row without joined game", "remote_id", r.ID)
			continue
		}
		if err := o.local.InsertGameIfAbsent(r.Game); err != nil {
			logger.Error("failed to create local game", "bgg_id", r.Game.BGGID, "error", err)
			continue
		}
		if r.DeletedAt != nil {
			if err := o.local.DeletePlayByRemoteID(r.ID); err != nil {
				logger.Error("failed to apply remote play deletion", "remote_id", r.ID, "error", err)
			}
			continue
		}

		local, err := o.local.GetPlayByRemoteID(r.ID)
		switch {
		case errors.Is(err, localstore.ErrNotFound):
			err = o.applyPlayRow(r)
		case err != nil:
		case local.SyncState != catalog.SyncPending:
			err = o.applyPlayRow(r)
		default:
			// Pending local edit wins until it is pushed.
			err = nil
		}
		if err != nil {
			logger.Error("failed to merge play row", "remote_id", r.ID, "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) applyPlayRow(r *remotestore.PlayRow) error {
	remoteID := r.ID
	return o.local.ApplyRemotePlay(&catalog.PlaySession{
		BGGID:           r.Game.BGGID,
		PlayedAt:        r.PlayedAt,
		DurationMinutes: r.DurationMinutes,
		Players:         r.Players,
		Notes:           r.Notes,
		PhotoURL:        r.PhotoURL,
		Location:        r.Location,
		CreatedAt:       r.CreatedAt,
		SyncState:       catalog.SyncSynced,
		RemoteID:        &remoteID,
	})
}

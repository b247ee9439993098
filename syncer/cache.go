// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/raiderj77/shelflife/catalog"
	"github.com/raiderj77/shelflife/remotestore"
)

// GameIDCache lazily maps game natural keys (BGG ids) to remote surrogate
// ids so repeated pushes avoid redundant remote lookups and inserts. It is
// append-only for the process lifetime: entries are never invalidated, so
// concurrent reads during a cycle are safe. Cross-process staleness is
// acceptable and self-heals on restart.
type GameIDCache struct {
	remote Remote

	mu  sync.RWMutex
	ids map[int64]int64 // bgg id -> remote surrogate id
}

// NewGameIDCache creates an empty cache bound to a remote store.
func NewGameIDCache(remote Remote) *GameIDCache {
	return &GameIDCache{remote: remote, ids: make(map[int64]int64)}
}

// EnsureRemoteID returns the remote surrogate id for a game, inserting the
// game remotely if it does not exist yet. A lost insert race against another
// device (unique violation on the natural key) is recovered by re-querying,
// which makes the operation idempotent under concurrent inserts.
func (c *GameIDCache) EnsureRemoteID(ctx context.Context, g *catalog.Game) (int64, error) {
	c.mu.RLock()
	id, ok := c.ids[g.BGGID]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	id, err := c.remote.GameIDByBGGID(ctx, g.BGGID)
	switch {
	case err == nil:
		return c.remember(g.BGGID, id), nil
	case !errors.Is(err, remotestore.ErrNotFound):
		return 0, err
	}

	id, err = c.remote.InsertGame(ctx, g)
	if errors.Is(err, remotestore.ErrDuplicateKey) {
		// Another device inserted it between our lookup and insert.
		id, err = c.remote.GameIDByBGGID(ctx, g.BGGID)
		if err != nil {
			return 0, fmt.Errorf("failed to re-resolve game %d after insert race: %w", g.BGGID, err)
		}
		return c.remember(g.BGGID, id), nil
	}
	if err != nil {
		return 0, err
	}
	return c.remember(g.BGGID, id), nil
}

// Len reports how many natural keys are cached.
func (c *GameIDCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}

func (c *GameIDCache) remember(bggID, id int64) int64 {
	c.mu.Lock()
	c.ids[bggID] = id
	c.mu.Unlock()
	return id
}

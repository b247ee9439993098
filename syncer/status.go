// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"sync"
	"time"
)

// State is the coarse sync engine state exposed to observers.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateError   State = "error"
	StateOffline State = "offline"
)

// Snapshot is one observable view of the sync engine: state, how many items
// are waiting to sync, the last error, and the last successful checkpoint.
// LastSyncedAt is zero until the first fully successful cycle.
type Snapshot struct {
	State        State
	PendingCount int
	LastError    string
	LastSyncedAt time.Time
}

// StatusPublisher is the observable state object for the sync engine. The
// orchestrator and scheduler emit transitions; any observer (UI, tests)
// subscribes explicitly and must release its subscription when done.
type StatusPublisher struct {
	mu     sync.Mutex
	cur    Snapshot
	nextID int
	subs   map[int]chan Snapshot
}

// NewStatusPublisher starts in the idle state.
func NewStatusPublisher() *StatusPublisher {
	return &StatusPublisher{
		cur:  Snapshot{State: StateIdle},
		subs: make(map[int]chan Snapshot),
	}
}

// Current returns the latest snapshot.
func (p *StatusPublisher) Current() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur
}

// Subscribe registers an observer. The returned channel carries
// latest-value snapshots: a slow reader only ever misses intermediate
// states, never the newest one. The cancel func is idempotent and must be
// called to release the subscription.
func (p *StatusPublisher) Subscribe() (<-chan Snapshot, func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	ch := make(chan Snapshot, 1)
	ch <- p.cur
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
	return ch, cancel
}

// publish must be called with p.mu held.
func (p *StatusPublisher) publish() {
	for _, ch := range p.subs {
		select {
		case ch <- p.cur:
		default:
			// Replace the stale unread snapshot with the newest one.
			select {
			case <-ch:
			default:
			}
			ch <- p.cur
		}
	}
}

func (p *StatusPublisher) beginSync() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cur.State = StateSyncing
	p.cur.LastError = ""
	p.publish()
}

// finishSync records the outcome of a cycle attempt. checkpoint is the cycle
// start time on success and the zero value on failure (keeps the previous
// checkpoint). pending < 0 keeps the previous pending count.
func (p *StatusPublisher) finishSync(err error, pending int, checkpoint time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.cur.State = StateError
		p.cur.LastError = err.Error()
	} else {
		p.cur.State = StateIdle
		p.cur.LastError = ""
	}
	if pending >= 0 {
		p.cur.PendingCount = pending
	}
	if !checkpoint.IsZero() {
		p.cur.LastSyncedAt = checkpoint
	}
	p.publish()
}

func (p *StatusPublisher) setOffline() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cur.State = StateOffline
	p.publish()
}

func (p *StatusPublisher) setOnline() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur.State == StateOffline {
		p.cur.State = StateIdle
	}
	p.publish()
}

// setPending refreshes the pending counter outside a cycle (e.g. after a
// local mutation while offline).
func (p *StatusPublisher) setPending(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur.PendingCount == n {
		return
	}
	p.cur.PendingCount = n
	p.publish()
}

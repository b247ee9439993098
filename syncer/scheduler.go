// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSyncInFlight is returned by SyncNow when a cycle is already running.
// Overlapping triggers are dropped, not queued; callers observe the next
// status transition instead.
var ErrSyncInFlight = errors.New("syncer: sync cycle already in flight")

const (
	// DefaultInterval is the fixed timer period between cycles.
	DefaultInterval = 30 * time.Second
	// DefaultDebounce coalesces a burst of local mutations into one cycle.
	DefaultDebounce = 2 * time.Second
)

// Scheduler decides when reconciliation cycles run: on a fixed interval
// while online and idle, immediately when connectivity returns, debounced
// after local mutation bursts, and on demand. A single-flight guard ensures
// at most one cycle executes at a time.
type Scheduler struct {
	orch     *Orchestrator
	status   *StatusPublisher
	logger   *slog.Logger
	interval time.Duration
	debounce time.Duration

	syncing atomic.Bool // single-flight guard

	mu            sync.Mutex
	online        bool
	started       bool
	stopped       bool
	debounceTimer *time.Timer
	kick          chan struct{}
	done          chan struct{}
	cancel        context.CancelFunc
}

// NewScheduler builds a scheduler around an orchestrator. Zero durations
// select the defaults.
func NewScheduler(orch *Orchestrator, status *StatusPublisher, interval, debounce time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Scheduler{
		orch:     orch,
		status:   status,
		logger:   logger,
		interval: interval,
		debounce: debounce,
		online:   true,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start launches the scheduling loop and triggers an initial cycle. Calling
// Start twice is an error only in the sense that the second call is ignored.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.requestCycle() // initial sync
	go s.run(ctx)
}

// Stop tears the scheduler down: cancels the loop, stops the interval timer
// and clears debounce state. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
	cancel := s.cancel
	started := s.started
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-s.done
	}
}

// SetOnline feeds connectivity transitions to the scheduler. Going offline
// flips the published state and suppresses scheduled triggers; coming back
// online triggers an immediate cycle.
func (s *Scheduler) SetOnline(online bool) {
	s.mu.Lock()
	was := s.online
	s.online = online
	if !online && s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
	s.mu.Unlock()

	if online == was {
		return
	}
	if online {
		s.status.setOnline()
		s.requestCycle()
	} else {
		s.status.setOffline()
	}
}

// NotifyMutation schedules a debounced cycle after a local mutation. Bursts
// within the debounce window coalesce into a single cycle. Register it as
// the local store's mutation hook.
func (s *Scheduler) NotifyMutation() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	online := s.online
	if online {
		if s.debounceTimer != nil {
			s.debounceTimer.Stop()
		}
		s.debounceTimer = time.AfterFunc(s.debounce, s.requestCycle)
	}
	s.mu.Unlock()

	if !online {
		// No cycle while offline, but keep the pending counter honest.
		s.orch.RefreshPending()
	}
}

// SyncNow forces a cycle immediately, bypassing the debounce but still
// respecting single-flight: if a cycle is running it returns
// ErrSyncInFlight. Manual triggers run even while marked offline, since the
// caller may know better than the last probe.
func (s *Scheduler) SyncNow(ctx context.Context) error {
	if !s.syncing.CompareAndSwap(false, true) {
		return ErrSyncInFlight
	}
	defer s.syncing.Store(false)
	return s.orch.SyncOnce(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.maybeSync(ctx, "interval")
		case <-s.kick:
			s.maybeSync(ctx, "event")
		}
	}
}

// requestCycle nudges the run loop without blocking; a nudge already queued
// is enough.
func (s *Scheduler) requestCycle() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Scheduler) maybeSync(ctx context.Context, reason string) {
	s.mu.Lock()
	online := s.online
	s.mu.Unlock()
	if !online {
		return
	}
	if !s.syncing.CompareAndSwap(false, true) {
		s.logger.Debug("sync already in flight, dropping trigger", "reason", reason)
		return
	}
	defer s.syncing.Store(false)
	// Outcome is reported via the status publisher; the error itself has
	// already been logged by the orchestrator.
	_ = s.orch.SyncOnce(ctx)
}

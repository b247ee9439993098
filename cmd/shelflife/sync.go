// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/raiderj77/shelflife/internal/config"
	"github.com/raiderj77/shelflife/localstore"
	"github.com/raiderj77/shelflife/remotestore"
	"github.com/raiderj77/shelflife/syncer"
)

// engine bundles everything a sync-capable command needs.
type engine struct {
	local  *localstore.Store
	pool   *pgxpool.Pool
	client *remotestore.Client
	orch   *syncer.Orchestrator
	status *syncer.StatusPublisher
}

func newEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*engine, error) {
	local, err := openLocal(cfg, logger)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, cfg.RemoteDSN)
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("connecting to remote store: %w", err)
	}
	client := remotestore.New(pool, logger)
	status := syncer.NewStatusPublisher()
	orch := syncer.NewOrchestrator(local, client, syncer.NewGameIDCache(client), status, cfg.UserID, logger)
	return &engine{local: local, pool: pool, client: client, orch: orch, status: status}, nil
}

func (e *engine) close() {
	e.pool.Close()
	e.local.Close()
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := cliLogger()
		ctx := cmd.Context()

		eng, err := newEngine(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer eng.close()

		if err := eng.client.InitSchema(ctx); err != nil {
			return err
		}
		if err := eng.orch.SyncOnce(ctx); err != nil {
			return err
		}
		snap := eng.status.Current()
		fmt.Printf("Synced. %d item(s) still pending.\n", snap.PendingCount)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openLocal(cfg, cliLogger())
		if err != nil {
			return err
		}
		defer store.Close()

		pending, err := store.PendingCount()
		if err != nil {
			return err
		}
		fmt.Printf("Pending items: %d\n", pending)

		cp, ok, err := store.Checkpoint()
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("Last synced:   %s\n", cp.Local().Format(time.RFC1123))
		} else {
			fmt.Println("Last synced:   never")
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync daemon",
	Long: `Runs the background sync engine: cycles on a fixed interval, after
local edits settle, and whenever connectivity returns. Stops cleanly on
SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := daemonLogger(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, err := newEngine(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer eng.close()

		// Schema setup is best-effort at start; the daemon may well be
		// starting offline.
		if err := eng.client.InitSchema(ctx); err != nil {
			logger.Warn("remote schema init failed, starting offline", "error", err)
		}

		sched := syncer.NewScheduler(eng.orch, eng.status, cfg.Interval(), cfg.Debounce(), logger)
		eng.local.SetMutationHook(sched.NotifyMutation)
		sched.Start(ctx)
		defer sched.Stop()

		go probeConnectivity(ctx, eng.client, sched, cfg.ProbeInterval(), logger)
		go logTransitions(ctx, eng.status, logger)

		logger.Info("sync daemon started",
			"interval", cfg.Interval().String(),
			"debounce", cfg.Debounce().String(),
			"local_db", cfg.LocalDB)
		<-ctx.Done()
		logger.Info("sync daemon stopping")
		return nil
	},
}

// probeConnectivity pings the remote store on a fixed period and feeds the
// resulting online/offline transitions to the scheduler.
func probeConnectivity(ctx context.Context, client *remotestore.Client, sched *syncer.Scheduler, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := client.Ping(probeCtx)
			cancel()
			if err != nil {
				logger.Debug("connectivity probe failed", "error", err)
			}
			sched.SetOnline(err == nil)
		}
	}
}

// logTransitions mirrors status snapshots into the daemon log.
func logTransitions(ctx context.Context, status *syncer.StatusPublisher, logger *slog.Logger) {
	ch, cancel := status.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			logger.Info("sync status",
				"state", string(snap.State),
				"pending", snap.PendingCount,
				"last_error", snap.LastError)
		}
	}
}

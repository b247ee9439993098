// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

// Command shelflife tracks a personal board game collection in a local
// SQLite database and keeps it reconciled with the shared remote store.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/raiderj77/shelflife/internal/config"
	"github.com/raiderj77/shelflife/localstore"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shelflife",
	Short: "Offline-first board game collection tracker",
	Long: `shelflife keeps your board game collection and play history in a local
database that works fully offline, and syncs it with the shared remote
store whenever connectivity allows.`,
	SilenceUsage: true,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(rateCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pickCmd)
	rootCmd.AddCommand(statsCmd)

	playCmd.AddCommand(playLogCmd)
	playCmd.AddCommand(playListCmd)
	playCmd.AddCommand(playRecentCmd)
	playCmd.AddCommand(playDeleteCmd)
	rootCmd.AddCommand(playCmd)

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
}

// loadConfig reads the config from its default location.
func loadConfig() (*config.Config, error) {
	path, _, err := config.DefaultPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.ReadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config (run 'shelflife config init' first): %w", err)
	}
	return cfg, nil
}

// cliLogger keeps interactive commands quiet: warnings and errors only.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// daemonLogger writes structured JSON to a rotating file and to stderr.
func daemonLogger(cfg *config.Config) *slog.Logger {
	rotator := &lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}
	handler := slog.NewJSONHandler(io.MultiWriter(rotator, os.Stderr), &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	})
	return slog.New(handler)
}

func openLocal(cfg *config.Config, logger *slog.Logger) (*localstore.Store, error) {
	store, err := localstore.Open(cfg.LocalDB, logger)
	if err != nil {
		return nil, fmt.Errorf("opening local database: %w", err)
	}
	return store, nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, baseDir, err := config.DefaultPath()
		if err != nil {
			return err
		}
		userID := uuid.New().String()
		cfg := config.New(userID, baseDir)
		if err := config.Init(path, cfg); err != nil {
			return err
		}
		fmt.Printf("Configuration initialized at %s\n", path)
		fmt.Printf("User ID: %s\n", userID)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _, err := config.DefaultPath()
		if err != nil {
			return err
		}
		cfg, err := config.ReadFromFile(path)
		if err != nil {
			return err
		}
		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("User ID:    %s\n", cfg.UserID)
		fmt.Printf("Local DB:   %s\n", cfg.LocalDB)
		fmt.Printf("Remote DSN: %s\n", cfg.RemoteDSN)
		fmt.Printf("Interval:   %s\n", cfg.Interval())
		fmt.Printf("Debounce:   %s\n", cfg.Debounce())
		return nil
	},
}

// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/raiderj77/shelflife/catalog"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Log and browse play sessions",
}

var playLogFlags struct {
	duration int
	location string
	notes    string
	date     string
	players  []string
}

var playLogCmd = &cobra.Command{
	Use:   "log <bgg-id>",
	Short: "Log a play session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bggID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid bgg id %q", args[0])
		}

		playedAt := time.Now()
		if playLogFlags.date != "" {
			playedAt, err = time.Parse("2006-01-02", playLogFlags.date)
			if err != nil {
				return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", playLogFlags.date)
			}
		}
		players := make([]catalog.PlayerResult, 0, len(playLogFlags.players))
		for _, spec := range playLogFlags.players {
			p, err := parsePlayer(spec)
			if err != nil {
				return err
			}
			players = append(players, p)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openLocal(cfg, cliLogger())
		if err != nil {
			return err
		}
		defer store.Close()

		session := &catalog.PlaySession{
			BGGID:    bggID,
			PlayedAt: playedAt,
			Players:  players,
		}
		if playLogFlags.duration > 0 {
			session.DurationMinutes = &playLogFlags.duration
		}
		if playLogFlags.location != "" {
			session.Location = &playLogFlags.location
		}
		if playLogFlags.notes != "" {
			session.Notes = &playLogFlags.notes
		}

		id, err := store.LogPlay(session)
		if err != nil {
			return err
		}
		fmt.Printf("Logged play #%d\n", id)
		return nil
	},
}

// parsePlayer parses "name", "name:score" or "name:score:win".
func parsePlayer(spec string) (catalog.PlayerResult, error) {
	parts := strings.Split(spec, ":")
	p := catalog.PlayerResult{Name: parts[0]}
	if p.Name == "" {
		return p, fmt.Errorf("invalid player spec %q", spec)
	}
	if len(parts) > 1 && parts[1] != "" {
		score, err := strconv.Atoi(parts[1])
		if err != nil {
			return p, fmt.Errorf("invalid score in player spec %q", spec)
		}
		p.Score = &score
	}
	if len(parts) > 2 {
		p.Winner = parts[2] == "win"
	}
	return p, nil
}

var playListCmd = &cobra.Command{
	Use:   "list <bgg-id>",
	Short: "List plays of one game",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bggID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid bgg id %q", args[0])
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openLocal(cfg, cliLogger())
		if err != nil {
			return err
		}
		defer store.Close()

		plays, err := store.PlaysForGame(bggID)
		if err != nil {
			return err
		}
		for _, p := range plays {
			printPlay(p)
		}
		fmt.Printf("\n%d play(s)\n", len(plays))
		return nil
	},
}

var playRecentCmd = &cobra.Command{
	Use:   "recent [n]",
	Short: "Show the most recent plays",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit := 10
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid count %q", args[0])
			}
			limit = n
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openLocal(cfg, cliLogger())
		if err != nil {
			return err
		}
		defer store.Close()

		plays, err := store.RecentPlays(limit)
		if err != nil {
			return err
		}
		for _, p := range plays {
			printPlay(p)
		}
		return nil
	},
}

var playDeleteCmd = &cobra.Command{
	Use:   "delete <play-id>",
	Short: "Delete a play session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid play id %q", args[0])
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openLocal(cfg, cliLogger())
		if err != nil {
			return err
		}
		defer store.Close()

		return store.DeletePlay(id)
	},
}

func printPlay(p catalog.PlaySession) {
	marker := " "
	if p.SyncState == catalog.SyncPending {
		marker = "*"
	}
	var who []string
	for _, pl := range p.Players {
		name := pl.Name
		if pl.Winner {
			name += " (won)"
		}
		who = append(who, name)
	}
	duration := ""
	if p.DurationMinutes != nil {
		duration = fmt.Sprintf(" %dm", *p.DurationMinutes)
	}
	fmt.Printf("%s #%-5d game %-8d %s%s  %s\n",
		marker, p.ID, p.BGGID, p.PlayedAt.Local().Format("2006-01-02"), duration, strings.Join(who, ", "))
}

func init() {
	playLogCmd.Flags().IntVar(&playLogFlags.duration, "duration", 0, "duration in minutes")
	playLogCmd.Flags().StringVar(&playLogFlags.location, "location", "", "where it was played")
	playLogCmd.Flags().StringVar(&playLogFlags.notes, "notes", "", "session notes")
	playLogCmd.Flags().StringVar(&playLogFlags.date, "date", "", "play date (YYYY-MM-DD, default today)")
	playLogCmd.Flags().StringArrayVar(&playLogFlags.players, "player", nil, "player as name[:score[:win]] (repeatable)")
}

// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/raiderj77/shelflife/catalog"
	"github.com/raiderj77/shelflife/localstore"
)

var addFlags struct {
	status      string
	year        int
	minPlayers  int
	maxPlayers  int
	playingTime int
}

var addCmd = &cobra.Command{
	Use:   "add <bgg-id> <name>",
	Short: "Add a game to your collection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bggID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid bgg id %q", args[0])
		}
		status := catalog.CollectionStatus(addFlags.status)
		if !status.Valid() {
			return fmt.Errorf("invalid status %q (owned, wishlist, for_trade, want_to_buy)", addFlags.status)
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

		game := &catalog.Game{BGGID: bggID, Name: args[1]}
		if addFlags.year > 0 {
			game.YearPublished = &addFlags.year
		}
		if addFlags.minPlayers > 0 {
			game.MinPlayers = &addFlags.minPlayers
		}
		if addFlags.maxPlayers > 0 {
			game.MaxPlayers = &addFlags.maxPlayers
		}
		if addFlags.playingTime > 0 {
			game.PlayingTime = &addFlags.playingTime
		}
		if err := store.AddToCollection(game, status); err != nil {
			return err
		}
		fmt.Printf("Added %s (%s)\n", game.Name, status)
		return nil
	},
}

var rateNotes string

var rateCmd = &cobra.Command{
	Use:   "rate <bgg-id> <rating>",
	Short: "Rate a game in your collection (1-10)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bggID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid bgg id %q", args[0])
		}
		rating, err := strconv.Atoi(args[1])
		if err != nil || rating < 1 || rating > 10 {
			return fmt.Errorf("rating must be an integer from 1 to 10")
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

		return store.UpdateCollectionEntry(bggID, func(e *catalog.CollectionEntry) {
			e.PersonalRating = &rating
			if cmd.Flags().Changed("notes") {
				e.Notes = &rateNotes
			}
		})
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <bgg-id>",
	Short: "Remove a game from your collection",
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

		if err := store.RemoveFromCollection(bggID); err != nil {
			return err
		}
		fmt.Println("Removed. The deletion syncs on the next cycle.")
		return nil
	},
}

var listFlags struct {
	players int
	maxTime int
	search  string
	status  string
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your collection",
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

		items, err := store.ListCollection(localstore.CollectionFilter{
			PlayerCount: listFlags.players,
			MaxPlaytime: listFlags.maxTime,
			Search:      listFlags.search,
			Status:      catalog.CollectionStatus(listFlags.status),
		})
		if err != nil {
			return err
		}
		for _, item := range items {
			printCollectionItem(item)
		}
		fmt.Printf("\n%d game(s)\n", len(items))
		return nil
	},
}

var pickFlags struct {
	players int
	maxTime int
}

var pickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Pick a random owned game to play",
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

		item, err := store.RandomOwnedGame(localstore.CollectionFilter{
			PlayerCount: pickFlags.players,
			MaxPlaytime: pickFlags.maxTime,
		})
		if errors.Is(err, localstore.ErrNotFound) {
			fmt.Println("No owned game matches those constraints.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println("Tonight you should play:")
		printCollectionItem(*item)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection statistics",
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

		st, err := store.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("Owned games:         %d\n", st.OwnedGames)
		fmt.Printf("Plays logged:        %d\n", st.TotalPlays)
		fmt.Printf("Unique games played: %d\n", st.UniqueGamesPlayed)
		return nil
	},
}

func printCollectionItem(item localstore.CollectionItem) {
	marker := " "
	if item.Entry.SyncState == catalog.SyncPending {
		marker = "*" // not yet synced
	}
	rating := "-"
	if item.Entry.PersonalRating != nil {
		rating = strconv.Itoa(*item.Entry.PersonalRating)
	}
	players := "?"
	if item.Game.MinPlayers != nil && item.Game.MaxPlayers != nil {
		players = fmt.Sprintf("%d-%d", *item.Game.MinPlayers, *item.Game.MaxPlayers)
	}
	fmt.Printf("%s %-40s %-12s players %-5s rating %s\n",
		marker, item.Game.Name, item.Entry.Status, players, rating)
}

func init() {
	addCmd.Flags().StringVar(&addFlags.status, "status", "owned", "collection status")
	addCmd.Flags().IntVar(&addFlags.year, "year", 0, "year published")
	addCmd.Flags().IntVar(&addFlags.minPlayers, "min-players", 0, "minimum player count")
	addCmd.Flags().IntVar(&addFlags.maxPlayers, "max-players", 0, "maximum player count")
	addCmd.Flags().IntVar(&addFlags.playingTime, "playing-time", 0, "playing time in minutes")

	rateCmd.Flags().StringVar(&rateNotes, "notes", "", "personal notes")

	listCmd.Flags().IntVar(&listFlags.players, "players", 0, "filter by player count")
	listCmd.Flags().IntVar(&listFlags.maxTime, "max-time", 0, "filter by max playing time (minutes)")
	listCmd.Flags().StringVar(&listFlags.search, "search", "", "filter by name substring")
	listCmd.Flags().StringVar(&listFlags.status, "status", "", "filter by collection status")

	pickCmd.Flags().IntVar(&pickFlags.players, "players", 0, "player count for tonight")
	pickCmd.Flags().IntVar(&pickFlags.maxTime, "max-time", 0, "max playing time (minutes)")
}

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-liveboard/internal/archive"
	"github.com/park285/cheese-liveboard/internal/config"
	"github.com/spf13/cobra"
)

var (
	flagGamesDB    string
	flagGamesLimit int
	flagGamesPGN   bool
)

var gamesCmd = &cobra.Command{
	Use:   "games",
	Short: "List finished games from the archive",
	RunE:  runGames,
}

func init() {
	gamesCmd.Flags().StringVar(&flagGamesDB, "db", "", "archive database (overrides DATABASE_URL)")
	gamesCmd.Flags().IntVar(&flagGamesLimit, "limit", 10, "number of games to show")
	gamesCmd.Flags().BoolVar(&flagGamesPGN, "pgn", false, "print full PGN for each game")
}

func runGames(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if cmd.Flags().Changed("db") {
		cfg.DatabaseURL = flagGamesDB
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := archive.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer repo.Close()

	games, err := repo.Recent(ctx, flagGamesLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(games) == 0 {
		fmt.Fprintln(out, "no finished games")
		return nil
	}
	for _, g := range games {
		fmt.Fprintf(out, "%s  %-6s %-20s %3d moves  %s\n",
			g.GameID, g.Result, g.Method, len(g.MovesUCI), time.Duration(g.DurationMS)*time.Millisecond)
		if g.ECO != "" {
			fmt.Fprintf(out, "    %s %s\n", g.ECO, g.Opening)
		}
		if flagGamesPGN {
			fmt.Fprintln(out, strings.TrimSpace(g.PGN))
			fmt.Fprintln(out)
		}
	}
	return nil
}

// liveboard hosts a two-player live chess board that any number of spectators can watch.
//
// Usage:
//
//	liveboard serve          - Run the board server (WebSocket /ws, /healthz, /state)
//	liveboard watch          - Join a running board from the terminal
//	liveboard games          - List finished games from the archive
//
// Configuration comes from the environment (LISTEN_ADDR, REDIS_URL, DATABASE_URL, ...);
// flags override it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "liveboard",
	Short:         "Live two-player chess with spectators",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `liveboard seats the first two connections as players and everyone after
them as spectators. Moves are checked by the server and every party is kept
on the same position.

Examples:
  liveboard serve --listen :3000
  liveboard watch --url http://localhost:3000
  liveboard games --db ./games.db`,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(gamesCmd)
}

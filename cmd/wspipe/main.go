package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "wspipe",
	Short: "wspipe - WebSocket message pipes for synchronous application loops",
	Long: `wspipe - WebSocket message pipes for synchronous application loops.

Clients connect over WebSocket and send JSON messages. The application loop
polls every client without blocking, once per tick.

Available commands:
  listen - Accept clients and print the messages they send

Examples:
  wspipe listen                            # listen on 127.0.0.1:3000
  wspipe listen --addr :8080 --capacity 16 # larger per-client queues
  WSPIPE_LOG_LEVEL=debug wspipe listen     # verbose logging`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (toml, yaml or json)")
	rootCmd.AddCommand(listenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

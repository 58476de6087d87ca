package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rag-chat/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ragchat",
	Short: "Chat with an assistant grounded in documents you add as context",
	Long: `ragchat runs the RAG chat backend locally and a terminal client for it.

  ragchat serve   start the HTTP API (Pebble or DynamoDB state, SQLite vectors)
  ragchat tui     open the three-panel chat screen against backend.url`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file (default ./ragchat.toml if present)")
	rootCmd.AddCommand(serveCmd, tuiCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rag-chat/internal/chat"
	"rag-chat/internal/client"
	"rag-chat/internal/logging"
	"rag-chat/internal/tui"
)

// routeBase is the optional path prefix accepted for thread routes.
const routeBase = "rag-basic"

var tuiUser string

var tuiCmd = &cobra.Command{
	Use:   "tui [thread]",
	Short: "Open the terminal chat client",
	Long: `Open the chat screen against backend.url.

The optional argument is a thread id or route (/<id> or /rag-basic/<id>).
Without it the first active thread is opened, or a new one is created.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := logging.NewFile(cfg.Log.Level, cfg.UI.LogPath)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		var threadID string
		if len(args) == 1 {
			id, ok := chat.ParseRoute(args[0], routeBase)
			if !ok {
				return fmt.Errorf("not a thread route: %q", args[0])
			}
			threadID = id
		}

		api, err := client.New(cfg.Backend.URL, client.WithUserID(tuiUser))
		if err != nil {
			return err
		}

		m := tui.New(api, tui.Options{
			ThreadID:       threadID,
			RouteBase:      routeBase,
			Breakpoint:     cfg.UI.Breakpoint,
			PageSize:       cfg.UI.PageSize,
			Theme:          cfg.UI.Theme,
			DarkBackground: lipgloss.HasDarkBackground(),
			PollInterval:   cfg.UI.PollInterval,
		}, log)
		defer m.Close()

		log.Info("tui started", zap.String("backend", cfg.Backend.URL), zap.String("thread_id", threadID))
		if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
			return fmt.Errorf("run tui: %w", err)
		}
		return nil
	},
}

func init() {
	tuiCmd.Flags().StringVarP(&tuiUser, "user", "u", "", "user id sent as X-User-Id (default: the backend's anonymous user)")
}

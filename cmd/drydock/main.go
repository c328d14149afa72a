// drydock is a coding agent that edits a virtual view of your project:
// every change it makes lands in an isolated, durable layer instead of the
// real disk, and is applied back only after you review it.
//
// Usage:
//
//	export GEMINI_API_KEY="your-api-key"
//	drydock chat               # start or continue a session
//	drydock sessions           # list sessions
//	drydock log <session-id>   # show the conversation tree
//	drydock apply <session-id> # review and apply recorded changes
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nstogner/drydock/pkg/config"
)

var cfg config.Config

func main() {
	root := &cobra.Command{
		Use:           "drydock",
		Short:         "A coding agent with an auditable, reversible filesystem",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(config.Path())
			if err != nil {
				return err
			}
			setupLogging(cfg.LogLevel)
			return nil
		},
	}

	root.AddCommand(newChatCmd())
	root.AddCommand(newSessionsCmd())
	root.AddCommand(newLogCmd())
	root.AddCommand(newApplyCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	// Log to a file: the terminal belongs to the UI.
	logPath := os.Getenv("DRYDOCK_LOG_FILE")
	if logPath == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
		return
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		slog.Warn("Failed to open log file, logging to stderr", "path", logPath, "error", err)
		return
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: lvl})))
}

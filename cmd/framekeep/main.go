// framekeep keeps one screenshot per visually distinct screen state and
// records session audio alongside.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "framekeep",
		Short:         "Capture and deduplicate screen states",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "framekeep.toml", "path to the TOML config file")

	root.AddCommand(newRunCommand())
	root.AddCommand(newPruneCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

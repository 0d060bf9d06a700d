package main

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"framekeep/internal/archive"
	"framekeep/internal/config"
	"framekeep/internal/fingerprint"
)

func newPruneCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "prune <dir>",
		Short: "Deduplicate an existing archive directory offline",
		Long: "Prune scans a session directory, deletes byte-identical copies, " +
			"then removes near-duplicates under the configured similarity threshold.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(debug)

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			policy := fingerprint.NewPolicy(cfg.Capture.HashSize, cfg.Capture.ChangeThreshold)
			arch := archive.New(args[0], policy)

			stats, err := arch.Reconcile(cmd.Context())
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			if isatty.IsTerminal(os.Stdout.Fd()) {
				t.SetStyle(table.StyleRounded)
			}
			t.AppendHeader(table.Row{"Scanned", "Kept", "Exact removed", "Similar removed", "Skipped"})
			t.AppendRow(table.Row{stats.Scanned, stats.Kept, stats.ExactRemoved, stats.SimilarRemoved, stats.Skipped})
			t.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}

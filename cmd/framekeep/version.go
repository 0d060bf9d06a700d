package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the framekeep version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("framekeep", version)
		},
	}
}

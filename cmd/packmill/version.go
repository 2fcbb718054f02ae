package main

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/packmill/packmill/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("packmill %s %s/%s\n", version.Version, runtime.GOOS, runtime.GOARCH)
	},
}

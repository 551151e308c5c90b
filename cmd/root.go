package cmd

import (
	"github.com/spf13/cobra"

	"i2webp/internal"
)

// Version is set at build time.
var Version = "dev"

var verboseFlag bool

var rootCmd = &cobra.Command{
	Use:     "i2webp",
	Short:   "Batch image to WebP converter that preserves metadata",
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verboseFlag {
			internal.SetVerboseLogging()
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

// ApplyVersion pushes the current Version onto the root command. Called after
// the embedded version is loaded at startup.
func ApplyVersion() {
	rootCmd.Version = Version
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "Enable debug logging")
}

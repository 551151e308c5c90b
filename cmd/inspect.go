package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"i2webp/internal"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>...",
	Short: "Show the metadata of one or more image files",
	Long: `Print the metadata a conversion would carry over: EXIF fields, capture
date, camera info, ICC profile and XMP presence. No files are modified.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, path := range args {
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("cannot access %s: %w", path, err)
			}
			fmt.Fprintf(out, "%s\n", path)
			fmt.Fprint(out, internal.DescribeMetadata(path))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"i2webp/internal"
)

var (
	qualityFlag      int
	overwriteFlag    bool
	showMetadataFlag bool
	dryRunFlag       bool
	useExifToolFlag  bool
)

var convertCmd = &cobra.Command{
	Use:   "convert [folder]",
	Short: "Convert all images in a folder to WebP",
	Long: `Convert every supported image directly inside the folder to WebP,
preserving EXIF, ICC profile and XMP metadata, backdating each output file to
its capture time and writing a JSON metadata backup alongside it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder := "."
		if len(args) == 1 {
			folder = args[0]
		}

		info, err := os.Stat(folder)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("folder does not exist or is not a directory: %s", folder)
		}

		conf, err := internal.LoadConfig()
		if err != nil {
			return err
		}

		quality := conf.Quality
		if cmd.Flags().Changed("quality") {
			quality = qualityFlag
		}
		if quality < 0 || quality > 100 {
			return fmt.Errorf("quality must be between 0 and 100, got %d", quality)
		}

		return runConvert(cmd, folder, conf, quality)
	},
}

func runConvert(cmd *cobra.Command, folder string, conf *internal.Config, quality int) error {
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	files, err := internal.ScanImageFiles(folder, conf)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(out, "No image files found in the folder.")
		fmt.Fprintln(out, "Supported formats: JPG, JPEG, PNG, BMP, TIFF, GIF, ICO, WEBP")
		return nil
	}

	fmt.Fprintf(out, "Found %d image file(s) to convert in %s\n", len(files), folder)

	if dryRunFlag {
		fmt.Fprintln(out, "Dry run mode: no files will be converted")
		for _, f := range files {
			line := fmt.Sprintf("  %s -> %s", filepath.Base(f), filepath.Base(internal.OutputPath(f)))
			if taken, err := internal.QuickCaptureTime(f); err == nil {
				line += fmt.Sprintf("  (taken %s)", taken.Format("2006-01-02 15:04:05"))
			}
			fmt.Fprintln(out, line)
		}
		return nil
	}

	showMetadata := showMetadataFlag
	if !cmd.Flags().Changed("show-metadata") {
		showMetadata = promptYesNo(in, out, "Show metadata details during conversion?")
	}

	// An interrupt stops the run; files already converted stay converted.
	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt)
	defer signal.Stop(interrupted)

	var session *internal.ConversionSession
	if conf.Manifest {
		session, err = internal.NewConversionSession(folder)
		if err != nil {
			internal.Log.Warn("cannot create conversion session, continuing without manifest")
			session = nil
		} else {
			defer session.Close()
			session.LogSessionStart(len(files), quality)
			defer session.LogSessionEnd()
		}
	}

	opts := internal.ConvertOptions{
		Quality:     quality,
		Method:      conf.Method,
		UseExifTool: useExifToolFlag || conf.UseExifTool,
	}
	stats := internal.NewErrorStats()
	var converted, skipped, failed int

	for _, src := range files {
		select {
		case <-interrupted:
			fmt.Fprintln(out, "\nConversion interrupted.")
			return nil
		default:
		}

		dst := internal.OutputPath(src)

		if internal.IsAlreadyWebP(src) {
			fmt.Fprintf(out, "Skipping: %s (already WebP)\n", filepath.Base(src))
			skipped++
			if session != nil {
				session.LogSkipped(src, "already webp")
			}
			continue
		}

		fmt.Fprintf(out, "Converting: %s -> %s\n", filepath.Base(src), filepath.Base(dst))

		if showMetadata {
			fmt.Fprint(out, internal.DescribeMetadata(src))
		}

		if _, err := os.Stat(dst); err == nil && !overwriteFlag {
			question := fmt.Sprintf("%s already exists. Overwrite?", filepath.Base(dst))
			if !promptYesNo(in, out, question) {
				fmt.Fprintln(out, "Skipping file...")
				skipped++
				if session != nil {
					session.LogSkipped(src, "declined overwrite")
				}
				continue
			}
		}

		res := internal.ConvertImage(src, dst, opts)
		if res.Err != nil {
			procErr := internal.CategorizeError(src, res.Err)
			stats.Add(procErr)
			stats.Consecutive++
			failed++
			color.New(color.FgRed).Fprintf(out, "  failed: %v\n", res.Err)
			if session != nil {
				session.LogError(src, procErr)
			}
			if abort, reason := stats.ShouldAbort(); abort {
				fmt.Fprintln(out, reason)
				break
			}
			continue
		}

		stats.ResetConsecutive()
		converted++
		if session != nil {
			session.LogConverted(res)
		}

		color.New(color.FgGreen).Fprintln(out, "  converted successfully")
		fmt.Fprintf(out, "  original: %s, webp: %s, reduction: %.1f%%\n",
			humanize.Bytes(uint64(res.OriginalSize)),
			humanize.Bytes(uint64(res.OutputSize)),
			res.Reduction())
		if res.Timestamp != "" {
			fmt.Fprintf(out, "  timestamps set to %s\n", res.Timestamp)
		}
	}

	fmt.Fprintln(out, "\nConversion summary:")
	fmt.Fprintf(out, "  total files: %d\n", len(files))
	fmt.Fprintf(out, "  converted:   %d\n", converted)
	fmt.Fprintf(out, "  skipped:     %d\n", skipped)
	fmt.Fprintf(out, "  failed:      %d\n", failed)

	if stats.Total > 0 {
		fmt.Fprintln(out, stats.GenerateReport())
	}

	return nil
}

// promptYesNo asks a yes/no question and reads one line of input. Anything
// but an explicit yes counts as no.
func promptYesNo(in *bufio.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s (y/n): ", question)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func init() {
	convertCmd.Flags().IntVar(&qualityFlag, "quality", 80, "WebP quality (0-100)")
	convertCmd.Flags().BoolVar(&overwriteFlag, "overwrite", false, "Overwrite existing outputs without asking")
	convertCmd.Flags().BoolVar(&showMetadataFlag, "show-metadata", false, "Print metadata details per file (skips the startup prompt)")
	convertCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Show files without converting")
	convertCmd.Flags().BoolVar(&useExifToolFlag, "exiftool", false, "Force to use exiftool binary as metadata fallback")

	rootCmd.AddCommand(convertCmd)
}

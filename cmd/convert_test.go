package cmd

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func writeTestPNG(t *testing.T, path string) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 32), G: uint8(y * 32), B: 200, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode failed: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write test png: %v", err)
	}
}

// resetConvertFlags restores flag defaults; values persist across Execute
// calls within one test binary.
func resetConvertFlags() {
	convertCmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

func runCLI(t *testing.T, input string, args ...string) string {
	t.Helper()
	resetConvertFlags()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(input))
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Command failed: %v\nOutput:\n%s", err, out.String())
	}
	return out.String()
}

func TestConvert_EmptyFolder(t *testing.T) {
	tempDir := t.TempDir()

	out := runCLI(t, "", "convert", tempDir)
	if !strings.Contains(out, "No image files found") {
		t.Errorf("Expected empty-folder message, got:\n%s", out)
	}
}

func TestConvert_DryRun(t *testing.T) {
	tempDir := t.TempDir()
	writeTestPNG(t, filepath.Join(tempDir, "photo.png"))

	out := runCLI(t, "", "convert", tempDir, "--dry-run")

	if !strings.Contains(out, "Dry run mode") {
		t.Errorf("Expected dry run notice, got:\n%s", out)
	}
	if !strings.Contains(out, "photo.png -> photo.webp") {
		t.Errorf("Expected file listing, got:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "photo.webp")); !os.IsNotExist(err) {
		t.Error("Expected no output in dry run mode")
	}
}

func TestConvert_FullRun(t *testing.T) {
	tempDir := t.TempDir()
	writeTestPNG(t, filepath.Join(tempDir, "a.png"))
	writeTestPNG(t, filepath.Join(tempDir, "b.png"))

	out := runCLI(t, "", "convert", tempDir, "--overwrite", "--show-metadata=false")

	if !strings.Contains(out, "converted successfully") {
		t.Errorf("Expected success message, got:\n%s", out)
	}
	if !strings.Contains(out, "converted:   2") {
		t.Errorf("Expected 2 conversions in summary, got:\n%s", out)
	}

	for _, base := range []string{"a", "b"} {
		webpPath := filepath.Join(tempDir, base+".webp")
		if _, err := os.Stat(webpPath); err != nil {
			t.Errorf("Output missing: %s", webpPath)
		}
		backupPath := filepath.Join(tempDir, base+"_metadata.json")
		if _, err := os.Stat(backupPath); err != nil {
			t.Errorf("Backup sidecar missing: %s", backupPath)
		}
	}

	// Session manifest written under the converted folder
	sessions, err := os.ReadDir(filepath.Join(tempDir, ".i2webp"))
	if err != nil || len(sessions) == 0 {
		t.Errorf("Expected a session directory, got %v (err %v)", sessions, err)
	}
}

func TestConvert_SkipsExistingWebP(t *testing.T) {
	tempDir := t.TempDir()
	writeTestPNG(t, filepath.Join(tempDir, "photo.png"))

	// First conversion creates photo.webp; the second run must skip it and
	// only re-convert the png after the overwrite flag allows it.
	runCLI(t, "", "convert", tempDir, "--overwrite", "--show-metadata=false")
	out := runCLI(t, "", "convert", tempDir, "--overwrite", "--show-metadata=false")

	if !strings.Contains(out, "already WebP") {
		t.Errorf("Expected webp skip notice, got:\n%s", out)
	}
	if !strings.Contains(out, "skipped:     1") {
		t.Errorf("Expected 1 skip in summary, got:\n%s", out)
	}
}

func TestConvert_DeclinedOverwritePrompt(t *testing.T) {
	tempDir := t.TempDir()
	writeTestPNG(t, filepath.Join(tempDir, "photo.png"))
	if err := os.WriteFile(filepath.Join(tempDir, "photo.webp"), []byte("existing"), 0644); err != nil {
		t.Fatalf("Failed to create existing output: %v", err)
	}

	// "n" answers the overwrite prompt
	out := runCLI(t, "n\n", "convert", tempDir, "--show-metadata=false")

	if !strings.Contains(out, "Skipping file...") {
		t.Errorf("Expected skip after declined prompt, got:\n%s", out)
	}

	data, _ := os.ReadFile(filepath.Join(tempDir, "photo.webp"))
	if string(data) != "existing" {
		t.Error("Expected existing output to be left untouched")
	}
}

func TestConvert_InvalidQuality(t *testing.T) {
	tempDir := t.TempDir()
	resetConvertFlags()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"convert", tempDir, "--quality", "150"})

	if err := rootCmd.Execute(); err == nil {
		t.Error("Expected error for out-of-range quality")
	}
}

func TestConvert_MissingFolder(t *testing.T) {
	resetConvertFlags()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"convert", "/nonexistent/folder"})

	if err := rootCmd.Execute(); err == nil {
		t.Error("Expected error for missing folder")
	}
}

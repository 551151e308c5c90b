package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScanImageFiles lists image files directly inside dir (not recursive),
// matched case-insensitively against the configured extensions.
func ScanImageFiles(dir string, cfg *Config) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error scanning files: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, e := range cfg.ImageExt {
			if ext == e {
				files = append(files, filepath.Join(dir, entry.Name()))
				break
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

// OutputPath returns the destination .webp path for a source image.
func OutputPath(src string) string {
	ext := filepath.Ext(src)
	return src[:len(src)-len(ext)] + ".webp"
}

// IsAlreadyWebP reports whether src is a WebP file whose output path would be
// the file itself, i.e. converting it would be a no-op.
func IsAlreadyWebP(src string) bool {
	return strings.EqualFold(filepath.Ext(src), ".webp") && OutputPath(src) == src
}

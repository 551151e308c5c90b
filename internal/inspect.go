package internal

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// QuickCaptureTime probes just the EXIF capture date without running the full
// extractor, for fast listings.
func QuickCaptureTime(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}, err
	}

	tag, err := x.Get(exif.DateTimeOriginal)
	if err != nil {
		return time.Time{}, err
	}

	dateStr, err := tag.StringVal()
	if err != nil {
		return time.Time{}, err
	}

	return time.Parse(exifTimeLayout, dateStr)
}

// DescribeMetadata renders the human-readable metadata summary shown by the
// inspect command and by convert --show-metadata.
func DescribeMetadata(path string) string {
	bundle := ExtractMetadata(path)
	bundle.Exif = SanitizeExif(bundle.Exif)

	var sb strings.Builder

	if bundle.HasExif() {
		fmt.Fprintf(&sb, "  EXIF: %d field(s)\n", bundle.ExifFieldCount())

		if ts := ResolveTimestamp(bundle.Exif); ts != "" {
			fmt.Fprintf(&sb, "    photo date: %s\n", ts)
		}

		if root, ok := bundle.Exif.Ifds[GroupRoot]; ok {
			for _, f := range cameraFields {
				if f.key == "datetime_modified" {
					continue
				}
				if val, ok := root[f.tag]; ok {
					fmt.Fprintf(&sb, "    %s: %v\n", f.key, renderCuratedValue(val))
				}
			}
		}
	} else {
		sb.WriteString("  EXIF: none\n")
	}

	if len(bundle.OtherInfo) > 0 {
		fmt.Fprintf(&sb, "  other metadata: %d field(s)\n", len(bundle.OtherInfo))
		shown := 0
		for key, value := range bundle.OtherInfo {
			if shown == 3 {
				break
			}
			fmt.Fprintf(&sb, "    %s: %.60v\n", key, jsonSafe(value))
			shown++
		}
	}

	if bundle.ICCProfile != nil {
		fmt.Fprintf(&sb, "  ICC color profile: present (%d bytes)\n", len(bundle.ICCProfile))
	}
	if bundle.XMP != nil {
		fmt.Fprintf(&sb, "  XMP: present (%d bytes)\n", len(bundle.XMP))
	}

	return sb.String()
}

package internal

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// exifTimeLayout is the EXIF textual timestamp format.
const exifTimeLayout = "2006:01:02 15:04:05"

// zeroTimestamp is the all-zero placeholder some cameras write instead of
// leaving a field absent.
const zeroTimestamp = "0000:00:00 00:00:00"

const (
	tagDateTime          = 0x0132 // 0th
	tagDateTimeOriginal  = 0x9003 // Exif
	tagDateTimeDigitized = 0x9004 // Exif
)

// datetimeProbes is the fixed field order for capture-time resolution:
// original capture time first, then digitization time, then file modified time.
var datetimeProbes = []struct {
	group string
	tag   uint16
}{
	{GroupExif, tagDateTimeOriginal},
	{GroupExif, tagDateTimeDigitized},
	{GroupRoot, tagDateTime},
}

// ResolveTimestamp returns the first usable timestamp string found in the
// sanitized EXIF tree, or "" when the tree is nil or no field yields one.
// The all-zero placeholder counts as absent.
func ResolveTimestamp(tree *ExifTree) string {
	if tree == nil {
		return ""
	}

	for _, probe := range datetimeProbes {
		ifd, ok := tree.Ifds[probe.group]
		if !ok {
			continue
		}
		val, ok := ifd[probe.tag]
		if !ok {
			continue
		}

		var s string
		switch val.Kind {
		case KindBinary:
			s = strings.TrimSpace(strings.TrimRight(string(val.Bytes), "\x00"))
		case KindText:
			s = strings.TrimSpace(val.Text)
		default:
			// Numeric garbage in a datetime field; skip it.
			continue
		}

		if s != "" && s != zeroTimestamp {
			return s
		}
	}

	return ""
}

// ApplyTimestamp sets both modification and access times of path to the given
// EXIF timestamp string. Parse and OS errors are logged, never returned: the
// file simply keeps its natural timestamps.
func ApplyTimestamp(path, timestamp string) {
	if timestamp == "" {
		return
	}

	t, err := time.ParseInLocation(exifTimeLayout, timestamp, time.Local)
	if err != nil {
		Log.Warn("cannot parse exif timestamp",
			zap.String("file", path), zap.String("timestamp", timestamp), zap.Error(err))
		return
	}

	if err := os.Chtimes(path, t, t); err != nil {
		Log.Warn("cannot set file timestamps",
			zap.String("file", path), zap.Error(err))
		return
	}

	Log.Debug("file timestamps set from exif",
		zap.String("file", path), zap.String("timestamp", timestamp))
}

package internal

import (
	"math"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Tag ids known to break WebP re-encoding. Color-space variants and pixel
// dimensions conflict with the values the encoder writes itself, and the two
// sub-IFD pointer tags would corrupt the rebuilt structure if carried over
// as plain values.
var problematicTags = map[uint16]string{
	41729: "ColorSpace variant",
	40961: "ColorSpace",
	40962: "PixelXDimension",
	40963: "PixelYDimension",
	34665: "ExifIFD pointer",
	34853: "GPSIFD pointer",
}

// SanitizeExif filters and normalizes a raw EXIF tree into one that is safe
// to re-serialize into a WebP EXIF chunk. It returns nil when the input is
// nil/empty or nothing survives filtering. It never fails: an unusable tree
// is reported as "no EXIF".
func SanitizeExif(tree *ExifTree) *ExifTree {
	if tree == nil || tree.Empty() {
		return nil
	}

	cleaned := NewExifTree()

	for group, tags := range tree.Ifds {
		cleanedIfd := make(IfdTags)
		for id, val := range tags {
			if reason, bad := problematicTags[id]; bad {
				Log.Debug("dropping problematic exif tag",
					zap.String("group", group), zap.Uint16("tag", id), zap.String("reason", reason))
				continue
			}

			out, ok := sanitizeValue(val)
			if !ok {
				Log.Debug("dropping exif tag with out-of-range or unusable value",
					zap.String("group", group), zap.Uint16("tag", id))
				continue
			}
			cleanedIfd[id] = out
		}

		// A group whose filtered contents end up empty is omitted entirely.
		if len(cleanedIfd) > 0 {
			cleaned.Ifds[group] = cleanedIfd
		}
	}

	// Non-IFD top-level entries pass through only as binary, text or integer.
	for key, val := range tree.Extra {
		switch val.Kind {
		case KindBinary, KindText, KindInteger:
			cleaned.Extra[key] = val
		default:
			Log.Debug("dropping non-ifd exif entry", zap.String("key", key))
		}
	}

	if cleaned.Empty() {
		return nil
	}
	return &cleaned
}

// sanitizeValue validates a single tag value by kind. Text is re-encoded to
// its binary form since the WebP container stores text as bytes. Integers and
// rational components must fit in a signed 32-bit value.
func sanitizeValue(val TagValue) (TagValue, bool) {
	switch val.Kind {
	case KindBinary:
		// Permissive decode as a validity probe only; the original bytes are
		// kept unchanged.
		if !utf8ProbeOK(val.Bytes) {
			return TagValue{}, false
		}
		return val, true

	case KindText:
		return BinaryValue([]byte(val.Text)), true

	case KindInteger:
		if !inInt32Range(val.Int) {
			return TagValue{}, false
		}
		return val, true

	case KindRational:
		if !inInt32Range(val.Num) || !inInt32Range(val.Den) {
			return TagValue{}, false
		}
		return val, true

	default:
		return TagValue{}, false
	}
}

func inInt32Range(n int64) bool {
	return n >= math.MinInt32 && n <= math.MaxInt32
}

// utf8ProbeOK is the validity probe for binary values: a permissive decode
// that ignores invalid bytes. Only a nil value fails the probe; maker notes
// and other opaque blobs pass and are kept verbatim.
func utf8ProbeOK(b []byte) bool {
	if b == nil {
		return false
	}
	_ = utf8.Valid(b)
	return true
}

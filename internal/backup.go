package internal

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Curated EXIF fields copied into the backup document by name.
var cameraFields = []struct {
	tag uint16
	key string
}{
	{0x010F, "camera_make"},
	{0x0110, "camera_model"},
	{0x0131, "software"},
	{0x0132, "datetime_modified"},
}

var technicalFields = []struct {
	tag uint16
	key string
}{
	{0x9003, "datetime_original"},
	{0x9004, "datetime_digitized"},
	{0x829A, "exposure_time"},
	{0x829D, "aperture"},
	{0x8827, "iso"},
	{0x920A, "focal_length"},
}

// MetadataBackupRecord is the JSON document written alongside each converted
// file. Field names match the sidecar format the converter has always
// produced, so existing tooling keeps parsing it.
type MetadataBackupRecord struct {
	OriginalFile   string         `json:"original_file"`
	WebPFile       string         `json:"webp_file"`
	ConversionDate string         `json:"conversion_date"`
	PhotoDatetime  *string        `json:"photo_datetime"`
	CameraInfo     map[string]any `json:"camera_info"`
	TechnicalInfo  map[string]any `json:"technical_info"`
	HasExif        bool           `json:"has_exif"`
	HasICCProfile  bool           `json:"has_icc_profile"`
	HasXMP         bool           `json:"has_xmp"`
	OtherInfo      any            `json:"other_info"`
	ICCProfileInfo map[string]any `json:"icc_profile_info,omitempty"`
	XMPInfo        map[string]any `json:"xmp_info,omitempty"`
}

type simpleBackupRecord struct {
	OriginalFile   string   `json:"original_file"`
	WebPFile       string   `json:"webp_file"`
	ConversionDate string   `json:"conversion_date"`
	PhotoDatetime  *string  `json:"photo_datetime"`
	Error          string   `json:"error"`
	HasExif        bool     `json:"has_exif"`
	HasICCProfile  bool     `json:"has_icc_profile"`
	MetadataKeys   []string `json:"metadata_keys"`
}

// BackupPath returns the sidecar path for a given output file.
func BackupPath(webpPath string) string {
	base := strings.TrimSuffix(webpPath, filepath.Ext(webpPath))
	return base + "_metadata.json"
}

func simpleBackupPath(webpPath string) string {
	base := strings.TrimSuffix(webpPath, filepath.Ext(webpPath))
	return base + "_metadata_simple.json"
}

// WriteMetadataBackup persists the extracted metadata as a JSON sidecar next
// to the converted file. On failure it degrades to a minimal document; only
// the failure of both tiers is reported, and even that never fails the
// conversion itself.
func WriteMetadataBackup(originalPath, webpPath string, bundle *RawMetadataBundle, timestamp string) error {
	record := buildBackupRecord(originalPath, webpPath, bundle, timestamp)

	err := writeJSONAtomic(BackupPath(webpPath), record)
	if err == nil {
		Log.Debug("metadata backup written", zap.String("file", BackupPath(webpPath)))
		return nil
	}
	Log.Warn("cannot write full metadata backup, degrading",
		zap.String("file", webpPath), zap.Error(err))

	simple := simpleBackupRecord{
		OriginalFile:   filepath.Base(originalPath),
		WebPFile:       filepath.Base(webpPath),
		ConversionDate: time.Now().Format(time.RFC3339),
		PhotoDatetime:  record.PhotoDatetime,
		Error:          fmt.Sprintf("failed to save full metadata: %v", err),
		HasExif:        bundle.HasExif(),
		HasICCProfile:  bundle.ICCProfile != nil,
		MetadataKeys:   otherInfoKeys(bundle),
	}

	if err2 := writeJSONAtomic(simpleBackupPath(webpPath), simple); err2 != nil {
		return fmt.Errorf("metadata backup failed entirely: %w (full backup: %v)", err2, err)
	}
	return nil
}

func buildBackupRecord(originalPath, webpPath string, bundle *RawMetadataBundle, timestamp string) *MetadataBackupRecord {
	record := &MetadataBackupRecord{
		OriginalFile:   filepath.Base(originalPath),
		WebPFile:       filepath.Base(webpPath),
		ConversionDate: time.Now().Format(time.RFC3339),
		CameraInfo:     map[string]any{},
		TechnicalInfo:  map[string]any{},
		HasExif:        bundle.HasExif(),
		HasICCProfile:  bundle.ICCProfile != nil,
		HasXMP:         bundle.XMP != nil,
		OtherInfo:      jsonSafe(bundle.OtherInfo),
	}
	if timestamp != "" {
		record.PhotoDatetime = &timestamp
	}

	if bundle.Exif != nil {
		if root, ok := bundle.Exif.Ifds[GroupRoot]; ok {
			for _, f := range cameraFields {
				if val, ok := root[f.tag]; ok {
					record.CameraInfo[f.key] = renderCuratedValue(val)
				}
			}
		}
		if tech, ok := bundle.Exif.Ifds[GroupExif]; ok {
			for _, f := range technicalFields {
				if val, ok := tech[f.tag]; ok {
					record.TechnicalInfo[f.key] = renderCuratedValue(val)
				}
			}
		}
	}

	if bundle.ICCProfile != nil {
		preview := bundle.ICCProfile
		if len(preview) > 50 {
			preview = preview[:50]
		}
		record.ICCProfileInfo = map[string]any{
			"size_bytes": len(bundle.ICCProfile),
			"preview":    hex.EncodeToString(preview),
		}
	}

	if bundle.XMP != nil {
		preview := bundle.XMP
		if len(preview) > 200 {
			preview = preview[:200]
		}
		record.XMPInfo = map[string]any{
			"type":    "bytes",
			"size":    len(bundle.XMP),
			"preview": jsonSafe(preview),
		}
	}

	return record
}

// renderCuratedValue renders a curated EXIF value for the backup document:
// binary decoded to trimmed text, rationals as "numerator/denominator" (just
// the numerator when the denominator is zero), everything else as-is.
func renderCuratedValue(val TagValue) any {
	switch val.Kind {
	case KindBinary:
		return strings.TrimSpace(decodeLossy(val.Bytes))
	case KindText:
		return strings.TrimSpace(val.Text)
	case KindInteger:
		return val.Int
	case KindRational:
		if val.Den == 0 {
			return fmt.Sprintf("%d", val.Num)
		}
		return fmt.Sprintf("%d/%d", val.Num, val.Den)
	default:
		return jsonSafe(val)
	}
}

// jsonSafe recursively converts a value into something the JSON encoder is
// guaranteed to accept. Binary data becomes text when it is valid UTF-8 and a
// length-plus-hex-preview placeholder otherwise.
func jsonSafe(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		if utf8.Valid(t) {
			return string(t)
		}
		h := hex.EncodeToString(t)
		suffix := ""
		if len(h) > 50 {
			h = h[:50]
			suffix = "..."
		}
		return fmt.Sprintf("<bytes:%d:%s%s>", len(t), h, suffix)
	case string:
		return t
	case bool:
		return t
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return t
	case TagValue:
		return tagValueJSONSafe(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = jsonSafe(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = jsonSafe(val)
		}
		return out
	default:
		return fmt.Sprintf("%v", t)
	}
}

func tagValueJSONSafe(val TagValue) any {
	switch val.Kind {
	case KindBinary:
		return jsonSafe(val.Bytes)
	case KindText:
		return val.Text
	case KindInteger:
		return val.Int
	case KindRational:
		return []any{val.Num, val.Den}
	case KindSequence:
		out := make([]any, len(val.Seq))
		for i, sub := range val.Seq {
			out[i] = tagValueJSONSafe(sub)
		}
		return out
	default:
		return fmt.Sprintf("%v", val)
	}
}

// decodeLossy decodes bytes to a string with invalid sequences dropped.
func decodeLossy(b []byte) string {
	b = bytes.TrimRight(b, "\x00")
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r != utf8.RuneError || size > 1 {
			sb.WriteRune(r)
		}
		b = b[size:]
	}
	return sb.String()
}

func otherInfoKeys(bundle *RawMetadataBundle) []string {
	keys := make([]string, 0, len(bundle.OtherInfo))
	for k := range bundle.OtherInfo {
		keys = append(keys, k)
	}
	return keys
}

// writeJSONAtomic marshals v with 2-space indentation, leaving non-ASCII
// characters alone, and writes it via a temp file so a failed write never
// leaves a half-finished document behind.
func writeJSONAtomic(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

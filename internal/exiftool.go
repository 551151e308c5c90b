package internal

import (
	"github.com/barasher/go-exiftool"
	"go.uber.org/zap"
)

// EnrichWithExifTool shells out to the exiftool binary and merges whatever it
// reports into the bundle's other-info, so the metadata backup still captures
// something for files the native extractors cannot read. Best effort only:
// a missing binary or a failed run just logs.
func EnrichWithExifTool(bundle *RawMetadataBundle, path string) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		Log.Warn("exiftool unavailable", zap.Error(err))
		return
	}
	defer et.Close()

	metas := et.ExtractMetadata(path)
	if len(metas) == 0 {
		return
	}
	meta := metas[0]
	if meta.Err != nil {
		Log.Warn("exiftool extraction failed", zap.String("file", path), zap.Error(meta.Err))
		return
	}

	fields := make(map[string]any, len(meta.Fields))
	for k, v := range meta.Fields {
		fields[k] = v
	}
	if len(fields) > 0 {
		bundle.OtherInfo["exiftool"] = fields
		Log.Debug("exiftool fallback extracted fields",
			zap.String("file", path), zap.Int("count", len(fields)))
	}
}

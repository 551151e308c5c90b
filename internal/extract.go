package internal

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dsoprea/go-exif/v3"
	"go.uber.org/zap"
)

// ExtractMetadata reads every metadata block it can find in the source image:
// EXIF, ICC color profile, XMP packet and any other informational entries the
// container carries. It never fails the conversion: each block that cannot be
// read is logged and left absent.
func ExtractMetadata(path string) *RawMetadataBundle {
	bundle := &RawMetadataBundle{OtherInfo: make(map[string]any)}

	data, err := os.ReadFile(path)
	if err != nil {
		Log.Warn("cannot read file for metadata extraction",
			zap.String("file", path), zap.Error(err))
		return bundle
	}

	var rawExif []byte
	switch sniffFormat(data) {
	case "jpeg":
		rawExif = extractJPEG(data, bundle)
	case "png":
		rawExif = extractPNG(data, bundle)
	case "webp":
		icc, exifData, xmp, err := ReadWebPMetadata(data)
		if err != nil {
			Log.Warn("cannot walk webp chunks", zap.String("file", path), zap.Error(err))
		} else {
			bundle.ICCProfile = icc
			bundle.XMP = xmp
			rawExif = exifData
		}
	default:
		// TIFF is itself an EXIF structure; for the remaining formats this
		// scan simply finds nothing.
		if raw, err := exif.SearchAndExtractExif(data); err == nil {
			rawExif = raw
		}
	}

	if len(rawExif) > 0 {
		tree, err := ParseExif(rawExif)
		if err != nil {
			Log.Warn("cannot parse exif, treating as absent",
				zap.String("file", path), zap.Error(err))
		} else {
			bundle.Exif = tree
		}
	}

	return bundle
}

func sniffFormat(data []byte) string {
	switch {
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8:
		return "jpeg"
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "png"
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "webp"
	case bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")):
		return "tiff"
	default:
		return ""
	}
}

const (
	jpegMarkerSOS  = 0xDA
	jpegMarkerEOI  = 0xD9
	jpegMarkerAPP0 = 0xE0
	jpegMarkerAPP1 = 0xE1
	jpegMarkerAPP2 = 0xE2
	jpegMarkerCOM  = 0xFE
)

var (
	jpegExifPrefix = []byte("Exif\x00\x00")
	jpegXMPPrefix  = []byte("http://ns.adobe.com/xap/1.0/\x00")
	jpegICCPrefix  = []byte("ICC_PROFILE\x00")
)

// extractJPEG walks the JPEG segment list up to start-of-scan and returns the
// raw EXIF payload, filling ICC (reassembled from its numbered APP2 parts),
// XMP and comment entries on the bundle as it goes.
func extractJPEG(data []byte, bundle *RawMetadataBundle) []byte {
	var rawExif []byte
	var iccParts [][]byte
	var comments []string

	off := 2 // past SOI
	for off+4 <= len(data) {
		if data[off] != 0xFF {
			break
		}
		marker := data[off+1]
		if marker == jpegMarkerSOS || marker == jpegMarkerEOI {
			break
		}
		segLen := int(binary.BigEndian.Uint16(data[off+2 : off+4]))
		if segLen < 2 || off+2+segLen > len(data) {
			break
		}
		payload := data[off+4 : off+2+segLen]

		switch marker {
		case jpegMarkerAPP1:
			switch {
			case bytes.HasPrefix(payload, jpegExifPrefix):
				rawExif = payload[len(jpegExifPrefix):]
			case bytes.HasPrefix(payload, jpegXMPPrefix):
				bundle.XMP = bytes.Clone(payload[len(jpegXMPPrefix):])
			}
		case jpegMarkerAPP2:
			if bytes.HasPrefix(payload, jpegICCPrefix) && len(payload) > len(jpegICCPrefix)+2 {
				// Two bytes of sequence numbering precede the profile part.
				iccParts = append(iccParts, payload[len(jpegICCPrefix)+2:])
			}
		case jpegMarkerAPP0:
			if bytes.HasPrefix(payload, []byte("JFIF\x00")) && len(payload) >= 7 {
				bundle.OtherInfo["jfif_version"] = fmt.Sprintf("%d.%02d", payload[5], payload[6])
			}
		case jpegMarkerCOM:
			comments = append(comments, string(payload))
		}

		off += 2 + segLen
	}

	if len(iccParts) > 0 {
		bundle.ICCProfile = bytes.Join(iccParts, nil)
	}
	if len(comments) == 1 {
		bundle.OtherInfo["comment"] = []byte(comments[0])
	} else if len(comments) > 1 {
		bundle.OtherInfo["comment"] = strings.Join(comments, "\n")
	}
	return rawExif
}

// extractPNG walks the PNG chunk list and returns the raw eXIf payload,
// filling ICC, XMP and textual entries on the bundle as it goes.
func extractPNG(data []byte, bundle *RawMetadataBundle) []byte {
	var rawExif []byte

	off := 8 // past signature
	for off+12 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[off : off+4]))
		ctype := string(data[off+4 : off+8])
		if off+12+length > len(data) {
			break
		}
		payload := data[off+8 : off+8+length]

		switch ctype {
		case "eXIf":
			rawExif = payload
		case "iCCP":
			if icc, err := decodePNGProfile(payload); err != nil {
				Log.Debug("cannot inflate iCCP chunk", zap.Error(err))
			} else {
				bundle.ICCProfile = icc
			}
		case "iTXt":
			key, text, ok := decodePNGInternationalText(payload)
			if !ok {
				break
			}
			if key == "XML:com.adobe.xmp" {
				bundle.XMP = []byte(text)
			} else {
				bundle.OtherInfo[key] = text
			}
		case "tEXt":
			if i := bytes.IndexByte(payload, 0); i > 0 {
				bundle.OtherInfo[string(payload[:i])] = string(payload[i+1:])
			}
		case "gAMA":
			if length == 4 {
				bundle.OtherInfo["gamma"] = float64(binary.BigEndian.Uint32(payload)) / 100000
			}
		case "pHYs":
			if length == 9 && payload[8] == 1 {
				// pixels per meter -> rough dpi
				x := binary.BigEndian.Uint32(payload[0:4])
				y := binary.BigEndian.Uint32(payload[4:8])
				bundle.OtherInfo["dpi"] = []any{pxPerMeterToDPI(x), pxPerMeterToDPI(y)}
			}
		case "IEND":
			return rawExif
		}

		off += 12 + length
	}
	return rawExif
}

func pxPerMeterToDPI(ppm uint32) float64 {
	return float64(ppm) * 0.0254
}

// decodePNGProfile unpacks an iCCP chunk: profile name, compression method,
// then a zlib stream holding the profile itself.
func decodePNGProfile(payload []byte) ([]byte, error) {
	i := bytes.IndexByte(payload, 0)
	if i < 0 || i+2 > len(payload) {
		return nil, fmt.Errorf("malformed iCCP chunk")
	}
	zr, err := zlib.NewReader(bytes.NewReader(payload[i+2:]))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// decodePNGInternationalText unpacks an iTXt chunk down to keyword and text,
// ignoring the language fields. Compressed text is inflated.
func decodePNGInternationalText(payload []byte) (key, text string, ok bool) {
	i := bytes.IndexByte(payload, 0)
	if i < 0 || i+2 >= len(payload) {
		return "", "", false
	}
	key = string(payload[:i])
	compressed := payload[i+1] == 1
	rest := payload[i+3:]

	// skip language tag and translated keyword
	for range 2 {
		j := bytes.IndexByte(rest, 0)
		if j < 0 {
			return "", "", false
		}
		rest = rest[j+1:]
	}

	if !compressed {
		return key, string(rest), true
	}
	zr, err := zlib.NewReader(bytes.NewReader(rest))
	if err != nil {
		return "", "", false
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return "", "", false
	}
	return key, string(out), true
}

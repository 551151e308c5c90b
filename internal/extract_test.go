package internal

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// buildTestExif serializes a small EXIF structure for use as segment payload.
func buildTestExif(t *testing.T) []byte {
	t.Helper()

	tree := NewExifTree()
	tree.Group(GroupRoot)[0x010F] = BinaryValue([]byte("Canon"))
	tree.Group(GroupExif)[0x9003] = BinaryValue([]byte("2019:03:04 12:00:00"))

	blob, err := BuildExif(&tree)
	if err != nil {
		t.Fatalf("BuildExif failed: %v", err)
	}
	return blob
}

func jpegSegment(marker byte, payload []byte) []byte {
	seg := []byte{0xFF, marker, 0, 0}
	binary.BigEndian.PutUint16(seg[2:4], uint16(len(payload)+2))
	return append(seg, payload...)
}

func writeTestJPEG(t *testing.T, dir string, exifBlob []byte) string {
	t.Helper()

	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8}) // SOI
	buf.Write(jpegSegment(jpegMarkerAPP0, append([]byte("JFIF\x00"), 1, 2, 0, 0, 0, 0, 0, 0, 0)))
	if exifBlob != nil {
		buf.Write(jpegSegment(jpegMarkerAPP1, append(bytes.Clone(jpegExifPrefix), exifBlob...)))
	}
	buf.Write(jpegSegment(jpegMarkerAPP1, append(bytes.Clone(jpegXMPPrefix), []byte("<x:xmpmeta/>")...)))
	icc := append(bytes.Clone(jpegICCPrefix), 1, 1)
	icc = append(icc, []byte("fake-icc-payload")...)
	buf.Write(jpegSegment(jpegMarkerAPP2, icc))
	buf.Write(jpegSegment(jpegMarkerCOM, []byte("a comment")))
	buf.Write([]byte{0xFF, 0xD9}) // EOI

	path := filepath.Join(dir, "test.jpg")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write test jpeg: %v", err)
	}
	return path
}

func pngChunk(ctype string, payload []byte) []byte {
	out := make([]byte, 0, 12+len(payload))
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(payload)))
	out = append(out, length[:]...)
	out = append(out, ctype...)
	out = append(out, payload...)
	return append(out, 0, 0, 0, 0) // crc, unchecked by the walker
}

func writeTestPNG(t *testing.T, dir string, exifBlob []byte) string {
	t.Helper()

	var buf bytes.Buffer
	buf.Write([]byte("\x89PNG\r\n\x1a\n"))
	buf.Write(pngChunk("IHDR", make([]byte, 13)))
	if exifBlob != nil {
		buf.Write(pngChunk("eXIf", exifBlob))
	}
	buf.Write(pngChunk("tEXt", []byte("Author\x00Jane")))

	var gamma [4]byte
	binary.BigEndian.PutUint32(gamma[:], 45455)
	buf.Write(pngChunk("gAMA", gamma[:]))

	xmp := []byte("XML:com.adobe.xmp\x00\x00\x00\x00\x00<x:xmpmeta/>")
	buf.Write(pngChunk("iTXt", xmp))
	buf.Write(pngChunk("IEND", nil))

	path := filepath.Join(dir, "test.png")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write test png: %v", err)
	}
	return path
}

func TestExtractMetadata_JPEG(t *testing.T) {
	tempDir := t.TempDir()
	path := writeTestJPEG(t, tempDir, buildTestExif(t))

	bundle := ExtractMetadata(path)

	if !bundle.HasExif() {
		t.Fatal("Expected EXIF to be extracted")
	}
	cameraMake, ok := bundle.Exif.Ifds[GroupRoot][0x010F]
	if !ok {
		t.Fatal("Expected camera make tag")
	}
	if cameraMake.Kind != KindText || cameraMake.Text != "Canon" {
		t.Errorf("Expected text 'Canon', got %+v", cameraMake)
	}

	if !bytes.Equal(bundle.ICCProfile, []byte("fake-icc-payload")) {
		t.Errorf("Expected ICC payload, got %q", bundle.ICCProfile)
	}
	if !bytes.Equal(bundle.XMP, []byte("<x:xmpmeta/>")) {
		t.Errorf("Expected XMP packet, got %q", bundle.XMP)
	}
	if bundle.OtherInfo["jfif_version"] != "1.02" {
		t.Errorf("Expected jfif_version '1.02', got %v", bundle.OtherInfo["jfif_version"])
	}
	comment, ok := bundle.OtherInfo["comment"].([]byte)
	if !ok || !bytes.Equal(comment, []byte("a comment")) {
		t.Errorf("Expected comment bytes, got %v", bundle.OtherInfo["comment"])
	}
}

func TestExtractMetadata_JPEGWithoutExif(t *testing.T) {
	tempDir := t.TempDir()
	path := writeTestJPEG(t, tempDir, nil)

	bundle := ExtractMetadata(path)
	if bundle.HasExif() {
		t.Error("Expected no EXIF")
	}
	if bundle.XMP == nil {
		t.Error("Expected XMP to still be extracted")
	}
}

func TestExtractMetadata_PNG(t *testing.T) {
	tempDir := t.TempDir()
	path := writeTestPNG(t, tempDir, buildTestExif(t))

	bundle := ExtractMetadata(path)

	if !bundle.HasExif() {
		t.Fatal("Expected EXIF from eXIf chunk")
	}
	if !bytes.Equal(bundle.XMP, []byte("<x:xmpmeta/>")) {
		t.Errorf("Expected XMP from iTXt chunk, got %q", bundle.XMP)
	}
	if bundle.OtherInfo["Author"] != "Jane" {
		t.Errorf("Expected tEXt entry, got %v", bundle.OtherInfo["Author"])
	}
	gamma, ok := bundle.OtherInfo["gamma"].(float64)
	if !ok || gamma < 0.4545 || gamma > 0.4546 {
		t.Errorf("Expected gamma ~0.45455, got %v", bundle.OtherInfo["gamma"])
	}
}

func TestExtractMetadata_WebP(t *testing.T) {
	tempDir := t.TempDir()

	exifBlob := buildTestExif(t)
	data, err := EmbedWebPMetadata(
		minimalWebP("VP8 ", []byte{1, 2, 3, 4}),
		[]byte("icc"), exifBlob, []byte("<x:xmpmeta/>"), 10, 10)
	if err != nil {
		t.Fatalf("EmbedWebPMetadata failed: %v", err)
	}

	path := filepath.Join(tempDir, "test.webp")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write test webp: %v", err)
	}

	bundle := ExtractMetadata(path)
	if !bundle.HasExif() {
		t.Error("Expected EXIF from webp EXIF chunk")
	}
	if !bytes.Equal(bundle.ICCProfile, []byte("icc")) {
		t.Errorf("Expected ICC, got %q", bundle.ICCProfile)
	}
}

func TestExtractMetadata_MissingFile(t *testing.T) {
	bundle := ExtractMetadata("/nonexistent/file.jpg")
	if bundle == nil {
		t.Fatal("Expected empty bundle, got nil")
	}
	if bundle.HasExif() {
		t.Error("Expected no EXIF for missing file")
	}
}

func TestSniffFormat(t *testing.T) {
	cases := []struct {
		data []byte
		want string
	}{
		{[]byte{0xFF, 0xD8, 0xFF}, "jpeg"},
		{[]byte("\x89PNG\r\n\x1a\nxxxx"), "png"},
		{[]byte("RIFF\x00\x00\x00\x00WEBP"), "webp"},
		{[]byte("II*\x00xxxx"), "tiff"},
		{[]byte("MM\x00*xxxx"), "tiff"},
		{[]byte("GIF89a"), ""},
	}
	for _, c := range cases {
		if got := sniffFormat(c.data); got != c.want {
			t.Errorf("sniffFormat(%q): expected %q, got %q", c.data[:4], c.want, got)
		}
	}
}

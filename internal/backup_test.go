package internal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestJsonSafe_ValidUTF8Bytes(t *testing.T) {
	if got := jsonSafe([]byte("hello")); got != "hello" {
		t.Errorf("Expected 'hello', got %v", got)
	}
}

func TestJsonSafe_BinaryBytesPlaceholder(t *testing.T) {
	blob := make([]byte, 100)
	for i := range blob {
		blob[i] = 0xFF
	}

	got, ok := jsonSafe(blob).(string)
	if !ok {
		t.Fatalf("Expected string placeholder, got %T", jsonSafe(blob))
	}
	if !strings.HasPrefix(got, "<bytes:100:") {
		t.Errorf("Expected length prefix, got %q", got)
	}
	if !strings.HasSuffix(got, "...>") {
		t.Errorf("Expected truncation marker, got %q", got)
	}
	hexPart := strings.TrimSuffix(strings.TrimPrefix(got, "<bytes:100:"), "...>")
	if len(hexPart) != 50 {
		t.Errorf("Expected 50 hex chars of preview, got %d", len(hexPart))
	}
}

func TestJsonSafe_ShortBinaryNotTruncated(t *testing.T) {
	got, ok := jsonSafe([]byte{0xFF, 0xFE}).(string)
	if !ok {
		t.Fatal("Expected string placeholder")
	}
	if got != "<bytes:2:fffe>" {
		t.Errorf("Expected '<bytes:2:fffe>', got %q", got)
	}
}

func TestJsonSafe_Recursion(t *testing.T) {
	in := map[string]any{
		"text":  "plain",
		"blob":  []byte{0xFF},
		"items": []any{[]byte("ok"), 42},
	}
	out, ok := jsonSafe(in).(map[string]any)
	if !ok {
		t.Fatalf("Expected map, got %T", jsonSafe(in))
	}
	if out["text"] != "plain" {
		t.Errorf("Expected 'plain', got %v", out["text"])
	}
	if out["blob"] != "<bytes:1:ff>" {
		t.Errorf("Expected placeholder, got %v", out["blob"])
	}
	items := out["items"].([]any)
	if items[0] != "ok" {
		t.Errorf("Expected 'ok', got %v", items[0])
	}
}

func TestRenderCuratedValue(t *testing.T) {
	if got := renderCuratedValue(BinaryValue([]byte("Canon\x00"))); got != "Canon" {
		t.Errorf("Expected 'Canon', got %v", got)
	}
	if got := renderCuratedValue(RationalValue(1, 250)); got != "1/250" {
		t.Errorf("Expected '1/250', got %v", got)
	}
	if got := renderCuratedValue(RationalValue(5, 0)); got != "5" {
		t.Errorf("Expected '5' for zero denominator, got %v", got)
	}
	if got := renderCuratedValue(IntegerValue(200)); got != int64(200) {
		t.Errorf("Expected 200, got %v", got)
	}
}

func TestWriteMetadataBackup_FullRecord(t *testing.T) {
	tempDir := t.TempDir()
	webpPath := filepath.Join(tempDir, "photo.webp")

	tree := NewExifTree()
	tree.Group(GroupRoot)[0x010F] = BinaryValue([]byte("Canon"))
	tree.Group(GroupRoot)[0x0110] = BinaryValue([]byte("EOS R5"))
	tree.Group(GroupExif)[0x9003] = BinaryValue([]byte("2019:03:04 12:00:00"))
	tree.Group(GroupExif)[0x8827] = IntegerValue(200)
	tree.Group(GroupExif)[0x829A] = RationalValue(1, 250)

	bundle := &RawMetadataBundle{
		Exif:       &tree,
		ICCProfile: []byte{0x01, 0x02, 0x03},
		OtherInfo:  map[string]any{"jfif_version": "1.01"},
	}

	err := WriteMetadataBackup(filepath.Join(tempDir, "photo.jpg"), webpPath, bundle, "2019:03:04 12:00:00")
	if err != nil {
		t.Fatalf("WriteMetadataBackup failed: %v", err)
	}

	raw, err := os.ReadFile(BackupPath(webpPath))
	if err != nil {
		t.Fatalf("Backup file missing: %v", err)
	}

	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		t.Fatalf("Backup is not valid JSON: %v", err)
	}

	if record["original_file"] != "photo.jpg" {
		t.Errorf("Expected original_file 'photo.jpg', got %v", record["original_file"])
	}
	if record["webp_file"] != "photo.webp" {
		t.Errorf("Expected webp_file 'photo.webp', got %v", record["webp_file"])
	}
	if record["photo_datetime"] != "2019:03:04 12:00:00" {
		t.Errorf("Expected photo_datetime, got %v", record["photo_datetime"])
	}
	if record["has_exif"] != true {
		t.Error("Expected has_exif true")
	}
	if record["has_icc_profile"] != true {
		t.Error("Expected has_icc_profile true")
	}
	if record["has_xmp"] != false {
		t.Error("Expected has_xmp false")
	}

	camera := record["camera_info"].(map[string]any)
	if camera["camera_make"] != "Canon" {
		t.Errorf("Expected camera_make 'Canon', got %v", camera["camera_make"])
	}
	tech := record["technical_info"].(map[string]any)
	if tech["exposure_time"] != "1/250" {
		t.Errorf("Expected exposure_time '1/250', got %v", tech["exposure_time"])
	}
	if tech["iso"] != float64(200) {
		t.Errorf("Expected iso 200, got %v", tech["iso"])
	}

	icc := record["icc_profile_info"].(map[string]any)
	if icc["size_bytes"] != float64(3) {
		t.Errorf("Expected icc size 3, got %v", icc["size_bytes"])
	}
}

func TestWriteMetadataBackup_NoMetadata(t *testing.T) {
	tempDir := t.TempDir()
	webpPath := filepath.Join(tempDir, "plain.webp")

	bundle := &RawMetadataBundle{OtherInfo: map[string]any{}}
	err := WriteMetadataBackup(filepath.Join(tempDir, "plain.png"), webpPath, bundle, "")
	if err != nil {
		t.Fatalf("WriteMetadataBackup failed: %v", err)
	}

	raw, err := os.ReadFile(BackupPath(webpPath))
	if err != nil {
		t.Fatalf("Backup file missing: %v", err)
	}

	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		t.Fatalf("Backup is not valid JSON: %v", err)
	}
	if record["has_exif"] != false {
		t.Error("Expected has_exif false")
	}
	if record["photo_datetime"] != nil {
		t.Errorf("Expected null photo_datetime, got %v", record["photo_datetime"])
	}
}

func TestWriteMetadataBackup_DegradesToSimple(t *testing.T) {
	tempDir := t.TempDir()
	webpPath := filepath.Join(tempDir, "photo.webp")

	// The full record path collides with a directory so its write must fail.
	if err := os.Mkdir(BackupPath(webpPath), 0755); err != nil {
		t.Fatalf("Failed to block full backup path: %v", err)
	}

	bundle := &RawMetadataBundle{OtherInfo: map[string]any{"comment": "hi"}}
	err := WriteMetadataBackup(filepath.Join(tempDir, "photo.jpg"), webpPath, bundle, "")
	if err != nil {
		t.Fatalf("Expected degrade to simple backup, got error: %v", err)
	}

	raw, err := os.ReadFile(simpleBackupPath(webpPath))
	if err != nil {
		t.Fatalf("Simple backup missing: %v", err)
	}

	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		t.Fatalf("Simple backup is not valid JSON: %v", err)
	}
	if _, ok := record["error"]; !ok {
		t.Error("Expected error field in simple backup")
	}
	keys := record["metadata_keys"].([]any)
	if len(keys) != 1 || keys[0] != "comment" {
		t.Errorf("Expected metadata_keys ['comment'], got %v", keys)
	}
}

func TestBackupOutputKeepsUnicode(t *testing.T) {
	tempDir := t.TempDir()
	webpPath := filepath.Join(tempDir, "photo.webp")

	bundle := &RawMetadataBundle{OtherInfo: map[string]any{"comment": "caffè & <tags>"}}
	if err := WriteMetadataBackup("photo.jpg", webpPath, bundle, ""); err != nil {
		t.Fatalf("WriteMetadataBackup failed: %v", err)
	}

	raw, _ := os.ReadFile(BackupPath(webpPath))
	if !strings.Contains(string(raw), "caffè & <tags>") {
		t.Error("Expected unicode and html characters to survive unescaped")
	}
}

package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ConversionSession appends a JSONL manifest of everything a run did, so a
// conversion can be audited later alongside the per-file metadata backups.
type ConversionSession struct {
	ID           string   // Session ID (timestamp: 2025-01-15-103045)
	SessionDir   string   // Full path to session directory
	ManifestFile *os.File // Open file handle for manifest.jsonl
	InputDir     string   // Folder being converted
	stats        ConversionStats
}

// ConversionStats tracks counts for one run.
type ConversionStats struct {
	TotalScanned int
	Converted    int
	Skipped      int
	Failed       int
}

// ManifestEvent represents a single event in the manifest log
type ManifestEvent struct {
	Event     string `json:"event"`
	Ts        string `json:"ts"`
	Src       string `json:"src,omitempty"`
	Dest      string `json:"dest,omitempty"`
	Size      int64  `json:"size,omitempty"`
	OutSize   int64  `json:"out_size,omitempty"`
	PhotoTime string `json:"photo_time,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`

	// Error details (for categorized errors)
	ErrorCategory   string `json:"error_category,omitempty"`
	ErrorSeverity   string `json:"error_severity,omitempty"`
	ErrorSuggestion string `json:"error_suggestion,omitempty"`

	// Session start/end fields
	InputDir     string `json:"input_dir,omitempty"`
	TotalFiles   int    `json:"total_files,omitempty"`
	TotalScanned int    `json:"total_scanned,omitempty"`
	Converted    int    `json:"converted,omitempty"`
	Skipped      int    `json:"skipped,omitempty"`
	Failed       int    `json:"failed,omitempty"`
	Quality      int    `json:"quality,omitempty"`
}

// NewConversionSession creates the session directory under the converted
// folder and opens its manifest for append-only writes.
func NewConversionSession(inputDir string) (*ConversionSession, error) {
	sessionID := time.Now().Format("2006-01-02-150405")
	sessionDir := filepath.Join(inputDir, ".i2webp", sessionID)

	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	manifestPath := filepath.Join(sessionDir, "manifest.jsonl")
	manifestFile, err := os.OpenFile(manifestPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest file: %w", err)
	}

	return &ConversionSession{
		ID:           sessionID,
		SessionDir:   sessionDir,
		ManifestFile: manifestFile,
		InputDir:     inputDir,
	}, nil
}

// LogSessionStart writes the session start event to the manifest.
func (s *ConversionSession) LogSessionStart(totalFiles, quality int) error {
	s.stats.TotalScanned = totalFiles
	return s.writeEvent(ManifestEvent{
		Event:      "session_start",
		Ts:         time.Now().UTC().Format(time.RFC3339),
		InputDir:   s.InputDir,
		TotalFiles: totalFiles,
		Quality:    quality,
	})
}

// LogConverted logs one successful conversion.
func (s *ConversionSession) LogConverted(res ConversionResult) error {
	s.stats.Converted++
	return s.writeEvent(ManifestEvent{
		Event:     "converted",
		Ts:        time.Now().UTC().Format(time.RFC3339),
		Src:       res.Source,
		Dest:      res.Output,
		Size:      res.OriginalSize,
		OutSize:   res.OutputSize,
		PhotoTime: res.Timestamp,
	})
}

// LogSkipped logs a file that was not converted, with the reason.
func (s *ConversionSession) LogSkipped(src, reason string) error {
	s.stats.Skipped++
	return s.writeEvent(ManifestEvent{
		Event:  "skipped",
		Ts:     time.Now().UTC().Format(time.RFC3339),
		Src:    src,
		Reason: reason,
	})
}

// LogError logs a categorized per-file failure.
func (s *ConversionSession) LogError(src string, procErr *ProcessError) error {
	s.stats.Failed++
	return s.writeEvent(ManifestEvent{
		Event:           "error",
		Ts:              time.Now().UTC().Format(time.RFC3339),
		Src:             src,
		Error:           procErr.OriginalErr.Error(),
		ErrorCategory:   string(procErr.Category),
		ErrorSeverity:   string(procErr.Severity),
		ErrorSuggestion: procErr.Suggestion,
	})
}

// LogSessionEnd writes the session end event with final counts.
func (s *ConversionSession) LogSessionEnd() error {
	return s.writeEvent(ManifestEvent{
		Event:        "session_end",
		Ts:           time.Now().UTC().Format(time.RFC3339),
		TotalScanned: s.stats.TotalScanned,
		Converted:    s.stats.Converted,
		Skipped:      s.stats.Skipped,
		Failed:       s.stats.Failed,
	})
}

// GetStats returns the current session statistics.
func (s *ConversionSession) GetStats() ConversionStats {
	return s.stats
}

// Close closes the manifest file.
func (s *ConversionSession) Close() error {
	if s.ManifestFile != nil {
		return s.ManifestFile.Close()
	}
	return nil
}

// writeEvent writes a manifest event as a JSON line
func (s *ConversionSession) writeEvent(event ManifestEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := s.ManifestFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write to manifest: %w", err)
	}

	return s.ManifestFile.Sync()
}

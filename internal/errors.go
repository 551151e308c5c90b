package internal

import (
	"fmt"
	"strings"
)

// ErrorCategory represents the type of error encountered
type ErrorCategory string

const (
	ErrorCategoryIO        ErrorCategory = "io_error"        // File system, permissions, disk space
	ErrorCategoryDecode    ErrorCategory = "decode_error"    // Source image unreadable or unsupported
	ErrorCategoryEncode    ErrorCategory = "encode_error"    // WebP encoding or output write failed
	ErrorCategoryMetadata  ErrorCategory = "metadata_error"  // EXIF/ICC/XMP extraction or embedding failed
	ErrorCategoryTimestamp ErrorCategory = "timestamp_error" // Capture time could not be applied
	ErrorCategoryBackup    ErrorCategory = "backup_error"    // Metadata sidecar could not be written
	ErrorCategoryUnknown   ErrorCategory = "unknown_error"   // Unexpected errors
)

// ErrorSeverity indicates how critical the error is
type ErrorSeverity string

const (
	ErrorSeverityCritical ErrorSeverity = "critical" // System-level issues (disk full, permissions)
	ErrorSeverityError    ErrorSeverity = "error"    // File-level issues (corruption, unreadable)
	ErrorSeverityWarning  ErrorSeverity = "warning"  // Recoverable issues (metadata degraded)
)

// ProcessError represents a categorized error during file processing
type ProcessError struct {
	FilePath    string
	Category    ErrorCategory
	Severity    ErrorSeverity
	OriginalErr error
	Suggestion  string // User-friendly suggestion to fix
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("[%s/%s] %s: %v", e.Severity, e.Category, e.FilePath, e.OriginalErr)
}

func (e *ProcessError) Unwrap() error {
	return e.OriginalErr
}

// CategorizeError analyzes an error and returns a ProcessError with category and severity
func CategorizeError(filePath string, err error) *ProcessError {
	if err == nil {
		return nil
	}

	errStr := strings.ToLower(err.Error())
	procErr := &ProcessError{
		FilePath:    filePath,
		OriginalErr: err,
	}

	switch {
	// Disk/Filesystem errors (CRITICAL)
	case strings.Contains(errStr, "no space left"):
		procErr.Category = ErrorCategoryIO
		procErr.Severity = ErrorSeverityCritical
		procErr.Suggestion = "Free up disk space in the target folder and re-run the conversion"

	case strings.Contains(errStr, "permission denied"):
		procErr.Category = ErrorCategoryIO
		procErr.Severity = ErrorSeverityCritical
		procErr.Suggestion = "Check write permissions on the folder being converted"

	case strings.Contains(errStr, "read-only file system"):
		procErr.Category = ErrorCategoryIO
		procErr.Severity = ErrorSeverityCritical
		procErr.Suggestion = "Target filesystem is read-only - check mount options"

	// Source decode errors (ERROR - fatal for this file only)
	case strings.Contains(errStr, "unknown format") ||
		strings.Contains(errStr, "unsupported") ||
		strings.Contains(errStr, "decode"):
		procErr.Category = ErrorCategoryDecode
		procErr.Severity = ErrorSeverityError
		procErr.Suggestion = "Source file may be corrupted or in an unrecognized format"

	// Encode/write errors (ERROR)
	case strings.Contains(errStr, "encode") || strings.Contains(errStr, "webp"):
		procErr.Category = ErrorCategoryEncode
		procErr.Severity = ErrorSeverityError
		procErr.Suggestion = "WebP encoding failed - the file will keep its original format"

	// Metadata problems (WARNING - the image itself converted fine)
	case strings.Contains(errStr, "exif") || strings.Contains(errStr, "metadata"):
		procErr.Category = ErrorCategoryMetadata
		procErr.Severity = ErrorSeverityWarning
		procErr.Suggestion = "Image converted without some of its metadata"

	case strings.Contains(errStr, "timestamp"):
		procErr.Category = ErrorCategoryTimestamp
		procErr.Severity = ErrorSeverityWarning
		procErr.Suggestion = "Output file keeps its natural modification time"

	case strings.Contains(errStr, "backup"):
		procErr.Category = ErrorCategoryBackup
		procErr.Severity = ErrorSeverityWarning
		procErr.Suggestion = "Converted image is fine but the metadata sidecar is missing"

	// Default: unknown error
	default:
		procErr.Category = ErrorCategoryUnknown
		procErr.Severity = ErrorSeverityError
		procErr.Suggestion = "Unexpected error - re-run with --verbose for details"
	}

	return procErr
}

// ErrorStats tracks error statistics during a conversion run
type ErrorStats struct {
	Total       int
	Critical    int
	Errors      int
	Warnings    int
	ByCategory  map[ErrorCategory]int
	LastErrors  []*ProcessError // Last 5 errors for quick diagnosis
	Consecutive int             // Consecutive errors (for circuit breaker)
}

func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		ByCategory: make(map[ErrorCategory]int),
		LastErrors: make([]*ProcessError, 0, 5),
	}
}

func (s *ErrorStats) Add(err *ProcessError) {
	s.Total++
	s.ByCategory[err.Category]++

	switch err.Severity {
	case ErrorSeverityCritical:
		s.Critical++
	case ErrorSeverityError:
		s.Errors++
	case ErrorSeverityWarning:
		s.Warnings++
	}

	// Keep last 5 errors
	if len(s.LastErrors) >= 5 {
		s.LastErrors = s.LastErrors[1:]
	}
	s.LastErrors = append(s.LastErrors, err)
}

func (s *ErrorStats) ResetConsecutive() {
	s.Consecutive = 0
}

// ShouldAbort returns true if the run should stop based on error patterns.
// Per-file failures never abort; systemic ones do.
func (s *ErrorStats) ShouldAbort() (bool, string) {
	if s.Critical > 0 {
		return true, "Critical system error detected - aborting to prevent data loss"
	}

	if s.Consecutive >= 10 {
		return true, "10 consecutive errors detected - likely systemic issue (disk full, permissions, etc.)"
	}

	return false, ""
}

// GenerateReport creates a human-readable error report
func (s *ErrorStats) GenerateReport() string {
	var report strings.Builder

	report.WriteString(fmt.Sprintf("\nConversion encountered %d problem(s):\n\n", s.Total))

	if s.Critical > 0 {
		report.WriteString(fmt.Sprintf("  Critical: %d (system-level issues)\n", s.Critical))
	}
	if s.Errors > 0 {
		report.WriteString(fmt.Sprintf("  Errors:   %d (file-level issues)\n", s.Errors))
	}
	if s.Warnings > 0 {
		report.WriteString(fmt.Sprintf("  Warnings: %d (metadata degraded)\n", s.Warnings))
	}

	report.WriteString("\nError categories:\n")
	for cat, count := range s.ByCategory {
		report.WriteString(fmt.Sprintf("  - %s: %d\n", cat, count))
	}

	report.WriteString("\nRecent errors:\n")
	for i, err := range s.LastErrors {
		report.WriteString(fmt.Sprintf("\n%d. %s\n", i+1, err.FilePath))
		report.WriteString(fmt.Sprintf("   Category: %s | Severity: %s\n", err.Category, err.Severity))
		report.WriteString(fmt.Sprintf("   Error: %v\n", err.OriginalErr))
		if err.Suggestion != "" {
			report.WriteString(fmt.Sprintf("   Suggestion: %s\n", err.Suggestion))
		}
	}

	return report.String()
}

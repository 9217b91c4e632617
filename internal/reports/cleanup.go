package reports

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultDaysToKeep is the retention window applied when none is given.
	DefaultDaysToKeep = 7
	// MaxDaysToKeep caps the retention window accepted from callers.
	MaxDaysToKeep = 30
)

// CleanupResult summarises a retention sweep over the reports directory.
type CleanupResult struct {
	FilesDeleted int      `json:"files_deleted"`
	DaysKept     int      `json:"days_kept"`
	Errors       []string `json:"errors,omitempty"`
}

// ClampDaysToKeep normalises a retention window into the accepted 1..30
// range, applying the default when the value is unset.
func ClampDaysToKeep(days int) int {
	if days <= 0 {
		return DefaultDaysToKeep
	}
	if days > MaxDaysToKeep {
		return MaxDaysToKeep
	}
	return days
}

// Clean deletes generated PDF files older than the retention window,
// comparing file modification times against the cutoff. Per-file errors are
// collected, not fatal.
func Clean(dir string, daysToKeep int, logger *slog.Logger) CleanupResult {
	if logger == nil {
		logger = slog.Default()
	}
	daysToKeep = ClampDaysToKeep(daysToKeep)
	result := CleanupResult{DaysKept: daysToKeep}

	if _, err := os.Stat(dir); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("reports dir %s: %v", dir, err))
		return result
	}

	cutoff := time.Now().AddDate(0, 0, -daysToKeep)
	matches, err := filepath.Glob(filepath.Join(dir, "*.pdf"))
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("stat %s: %v", path, err))
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("remove %s: %v", path, err))
			continue
		}
		result.FilesDeleted++
		logger.Info("report file removed", slog.String("file", filepath.Base(path)))
	}
	return result
}

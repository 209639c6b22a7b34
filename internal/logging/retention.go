package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	logFilePrefix  = "tally-"
	logFileSuffix  = ".log"
	logFileDateFmt = "2006-01-02"
)

// LogFileName returns the daily log file name for day.
func LogFileName(day time.Time) string {
	return logFilePrefix + day.Format(logFileDateFmt) + logFileSuffix
}

// logFileDay parses the day out of a daily log file name.
func logFileDay(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, logFilePrefix) || !strings.HasSuffix(name, logFileSuffix) {
		return time.Time{}, false
	}
	day, err := time.ParseInLocation(logFileDateFmt, strings.TrimSuffix(strings.TrimPrefix(name, logFilePrefix), logFileSuffix), time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// PruneLogs deletes daily log files in dir whose day is more than
// retentionDays before now. Other files are left alone. Zero disables pruning.
func PruneLogs(logger *slog.Logger, dir string, retentionDays int, now time.Time) int {
	dir = strings.TrimSpace(dir)
	if retentionDays <= 0 || dir == "" {
		return 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	cutoff := today.AddDate(0, 0, -retentionDays)

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		day, ok := logFileDay(entry.Name())
		if !ok || !day.Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check file permissions and paths.log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed++
		if logger != nil {
			logger.Debug("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
		}
	}
	return removed
}

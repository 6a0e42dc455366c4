package retention

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DefaultSweepPatterns match every file kind gridwatch writes into the
// artifact directory.
var DefaultSweepPatterns = []string{
	"empty_cells_*.json",
	"findings_*.json",
	"all_cells_*.json",
	"screenshot_*.png",
	"page_loaded_*.png",
}

// SweepArtifacts deletes files in dir matching patterns whose modification
// time is more than maxAge before now. It catches files no ArtifactStore
// registered, such as those left by a previous process. Failures are logged
// and returned as RetentionErrors; the sweep continues.
func SweepArtifacts(dir string, patterns []string, now time.Time, maxAge time.Duration, logger *slog.Logger) (int, []error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		deleted int
		errs    []error
	)
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid sweep pattern %q: %w", pattern, err))
			continue
		}
		for _, path := range matches {
			info, err := os.Stat(path)
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					errs = append(errs, &RetentionError{Path: path, Cause: err})
				}
				continue
			}
			if info.IsDir() || now.Sub(info.ModTime()) <= maxAge {
				continue
			}
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Warn("sweep could not delete file", "path", path, "error", err)
				errs = append(errs, &RetentionError{Path: path, Cause: err})
				continue
			}
			deleted++
			logger.Debug("swept expired file", "path", path)
		}
	}
	return deleted, errs
}

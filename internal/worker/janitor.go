package worker

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Janitor prunes expired on-disk artifacts: bot log files after 24
// hours and downloaded quotation PDFs after one hour (both windows
// configurable).
type Janitor struct {
	botLogsDir      string
	pdfDir          string
	botLogRetention time.Duration
	pdfRetention    time.Duration
	interval        time.Duration
	log             *slog.Logger
}

// NewJanitor builds a janitor over the two artifact directories.
func NewJanitor(botLogsDir, pdfDir string, botLogRetention, pdfRetention, interval time.Duration, log *slog.Logger) *Janitor {
	return &Janitor{
		botLogsDir:      botLogsDir,
		pdfDir:          pdfDir,
		botLogRetention: botLogRetention,
		pdfRetention:    pdfRetention,
		interval:        interval,
		log:             log.With(slog.String("component", "janitor")),
	}
}

// Run prunes immediately, then on every interval tick until ctx is
// cancelled.
func (j *Janitor) Run(ctx context.Context) {
	j.CleanupOnce()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.CleanupOnce()
		}
	}
}

// CleanupOnce performs a single pruning pass over both directories and
// returns how many files were removed.
func (j *Janitor) CleanupOnce() int {
	removed := j.pruneDir(j.botLogsDir, j.botLogRetention)
	removed += j.pruneDir(j.pdfDir, j.pdfRetention)
	if removed > 0 {
		j.log.Info("expired artifacts removed", slog.Int("count", removed))
	}
	return removed
}

// pruneDir removes regular files under dir whose mtime is older than
// the retention window. A missing directory is not an error.
func (j *Janitor) pruneDir(dir string, retention time.Duration) int {
	if dir == "" {
		return 0
	}
	cutoff := time.Now().Add(-retention)
	removed := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			j.log.Warn("prune walk error", slog.String("path", path), slog.Any("error", err))
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				j.log.Warn("prune remove failed", slog.String("path", path), slog.Any("error", err))
				return nil
			}
			removed++
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		j.log.Warn("prune failed", slog.String("dir", dir), slog.Any("error", err))
	}
	return removed
}

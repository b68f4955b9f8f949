package worker

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAged(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestJanitor_PrunesExpired(t *testing.T) {
	logsDir := t.TempDir()
	pdfDir := t.TempDir()

	oldLog := writeAged(t, logsDir, "hdi/bot.log", 25*time.Hour)
	freshLog := writeAged(t, logsDir, "sura/bot.log", time.Hour)
	oldPDF := writeAged(t, pdfDir, "quote-1.pdf", 2*time.Hour)
	freshPDF := writeAged(t, pdfDir, "quote-2.pdf", 10*time.Minute)

	j := NewJanitor(logsDir, pdfDir, 24*time.Hour, time.Hour, time.Minute, slog.Default())
	removed := j.CleanupOnce()
	assert.Equal(t, 2, removed)

	_, err := os.Stat(oldLog)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(oldPDF)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(freshLog)
	assert.NoError(t, err)
	_, err = os.Stat(freshPDF)
	assert.NoError(t, err)
}

func TestJanitor_MissingDirsAreFine(t *testing.T) {
	j := NewJanitor(filepath.Join(t.TempDir(), "nope"), "", 24*time.Hour, time.Hour, time.Minute, slog.Default())
	assert.Equal(t, 0, j.CleanupOnce())
}

func TestJanitor_SecondPassIdempotent(t *testing.T) {
	logsDir := t.TempDir()
	writeAged(t, logsDir, "bot.log", 48*time.Hour)
	j := NewJanitor(logsDir, "", 24*time.Hour, time.Hour, time.Minute, slog.Default())
	assert.Equal(t, 1, j.CleanupOnce())
	assert.Equal(t, 0, j.CleanupOnce())
}

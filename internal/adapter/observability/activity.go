package observability

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/brokerwiz/orchestrator/internal/domain"
)

// ActivityLog appends the canonical worker activity lines to the
// worker log file. The metrics collector parses exactly this format,
// so the line shapes are a compatibility contract:
//
//	2026-01-30 10:15:23 | INFO     | worker | [SBS] Recibido job: SOL-001
//	2026-01-30 10:16:01 | INFO     | worker | [SBS] Job SOL-001 completado exitosamente
//	2026-01-30 10:16:01 | ERROR    | worker | [SBS] Job SOL-001 completado con errores: CAPTCHA_001
type ActivityLog struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewActivityLog opens (creating if needed) the worker activity log.
func NewActivityLog(path string) (*ActivityLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open activity log: %w", err)
	}
	return &ActivityLog{path: path, f: f}, nil
}

// Close releases the underlying file.
func (a *ActivityLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.f.Close()
}

// Received records a job picked up from the queue.
func (a *ActivityLog) Received(vendor domain.Vendor, jobID string) {
	a.write("INFO", fmt.Sprintf("[%s] Recibido job: %s", vendor.Upper(), jobID))
}

// Completed records a successful job.
func (a *ActivityLog) Completed(vendor domain.Vendor, jobID string) {
	a.write("INFO", fmt.Sprintf("[%s] Job %s completado exitosamente", vendor.Upper(), jobID))
}

// Failed records a job that finished with errors; the error code ends
// up in the per-window error counters.
func (a *ActivityLog) Failed(vendor domain.Vendor, jobID, errorCode string) {
	a.write("ERROR", fmt.Sprintf("[%s] Job %s completado con errores: %s", vendor.Upper(), jobID, errorCode))
}

// DeadLettered records a job diverted to the DLQ.
func (a *ActivityLog) DeadLettered(vendor domain.Vendor, jobID string) {
	a.write("WARNING", fmt.Sprintf("[%s] Job %s enviado a DLQ", vendor.Upper(), jobID))
}

func (a *ActivityLog) write(level, message string) {
	line := fmt.Sprintf("%s | %-8s | worker | %s\n",
		time.Now().Format("2006-01-02 15:04:05"), level, message)
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.f.WriteString(line); err != nil {
		slog.Warn("activity log write failed", slog.Any("error", err))
	}
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/brokerwiz/orchestrator/internal/domain"
)

const (
	cookieFile = "cookies.json"
	// lockFile marks a write in progress so bots that inspect the
	// profile directory directly know to back off.
	lockFile = "cookies.lock"
)

type cookieWrite struct {
	data []byte
	done chan error
}

// CookieStore persists browser session cookies per vendor under the
// profiles directory. Writes for one vendor are funneled through a
// single goroutine, so two jobs for the same vendor can never
// interleave a cookie file.
type CookieStore struct {
	dir string
	log *slog.Logger

	mu      sync.Mutex
	writers map[domain.Vendor]chan cookieWrite
	wg      sync.WaitGroup
	closed  bool
}

// NewCookieStore builds a store rooted at dir.
func NewCookieStore(dir string, log *slog.Logger) *CookieStore {
	return &CookieStore{
		dir:     dir,
		log:     log.With(slog.String("component", "cookie_store")),
		writers: make(map[domain.Vendor]chan cookieWrite),
	}
}

func (s *CookieStore) vendorDir(v domain.Vendor) string {
	return filepath.Join(s.dir, string(v))
}

// Save persists the cookie blob for a vendor, replacing any previous
// one. It blocks until the vendor's writer has flushed the file.
func (s *CookieStore) Save(ctx context.Context, v domain.Vendor, data []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("cookie store closed")
	}
	ch, ok := s.writers[v]
	if !ok {
		ch = make(chan cookieWrite)
		s.writers[v] = ch
		s.wg.Add(1)
		go s.writeLoop(v, ch)
	}
	s.mu.Unlock()

	req := cookieWrite{data: data, done: make(chan error, 1)}
	select {
	case ch <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *CookieStore) writeLoop(v domain.Vendor, ch chan cookieWrite) {
	defer s.wg.Done()
	for req := range ch {
		req.done <- s.write(v, req.data)
	}
}

// write replaces the cookie file atomically: lock sentinel up, write
// to a temp file, rename over the target, sentinel down.
func (s *CookieStore) write(v domain.Vendor, data []byte) error {
	dir := s.vendorDir(v)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	lock := filepath.Join(dir, lockFile)
	if err := os.WriteFile(lock, nil, 0o644); err != nil {
		return fmt.Errorf("create lock sentinel: %w", err)
	}
	defer func() {
		if err := os.Remove(lock); err != nil {
			s.log.Warn("lock sentinel removal failed",
				slog.String("vendor", string(v)), slog.Any("error", err))
		}
	}()

	tmp, err := os.CreateTemp(dir, cookieFile+".*")
	if err != nil {
		return fmt.Errorf("create temp cookie file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cookies: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp cookie file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, cookieFile)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace cookie file: %w", err)
	}
	return nil
}

// Load returns the saved cookie blob for a vendor, or
// domain.ErrNotFound when none has been saved yet.
func (s *CookieStore) Load(v domain.Vendor) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.vendorDir(v), cookieFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("cookies for %s: %w", v, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read cookies for %s: %w", v, err)
	}
	return data, nil
}

// Close stops all vendor writers and waits for in-flight writes.
func (s *CookieStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, ch := range s.writers {
		close(ch)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

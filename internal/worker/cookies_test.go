package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokerwiz/orchestrator/internal/domain"
)

func TestCookieStore_SaveLoad(t *testing.T) {
	s := NewCookieStore(t.TempDir(), slog.Default())
	defer s.Close()

	blob := []byte(`[{"name":"session","value":"abc"}]`)
	require.NoError(t, s.Save(context.Background(), domain.VendorHDI, blob))

	got, err := s.Load(domain.VendorHDI)
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	// Lock sentinel is gone after the write settles.
	_, err = os.Stat(filepath.Join(s.dir, "hdi", lockFile))
	assert.True(t, os.IsNotExist(err))
}

func TestCookieStore_LoadMissing(t *testing.T) {
	s := NewCookieStore(t.TempDir(), slog.Default())
	defer s.Close()
	_, err := s.Load(domain.VendorSura)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCookieStore_OverwriteKeepsLatest(t *testing.T) {
	s := NewCookieStore(t.TempDir(), slog.Default())
	defer s.Close()

	require.NoError(t, s.Save(context.Background(), domain.VendorHDI, []byte("old")))
	require.NoError(t, s.Save(context.Background(), domain.VendorHDI, []byte("new")))

	got, err := s.Load(domain.VendorHDI)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestCookieStore_ConcurrentSavesOneVendor(t *testing.T) {
	s := NewCookieStore(t.TempDir(), slog.Default())
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			blob := []byte(fmt.Sprintf(`{"n":%d}`, i))
			assert.NoError(t, s.Save(context.Background(), domain.VendorAXA, blob))
		}(i)
	}
	wg.Wait()

	// Whatever won, the file is one intact write, never interleaved.
	got, err := s.Load(domain.VendorAXA)
	require.NoError(t, err)
	assert.Regexp(t, `^\{"n":\d+\}$`, string(got))
}

func TestCookieStore_VendorsIsolated(t *testing.T) {
	s := NewCookieStore(t.TempDir(), slog.Default())
	defer s.Close()

	require.NoError(t, s.Save(context.Background(), domain.VendorHDI, []byte("hdi-cookies")))
	require.NoError(t, s.Save(context.Background(), domain.VendorSura, []byte("sura-cookies")))

	hdi, err := s.Load(domain.VendorHDI)
	require.NoError(t, err)
	sura, err := s.Load(domain.VendorSura)
	require.NoError(t, err)
	assert.NotEqual(t, hdi, sura)
}

func TestCookieStore_SaveAfterClose(t *testing.T) {
	s := NewCookieStore(t.TempDir(), slog.Default())
	s.Close()
	err := s.Save(context.Background(), domain.VendorHDI, []byte("x"))
	require.Error(t, err)
	// Close twice is safe.
	s.Close()
}

package cache

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chengcli/qkun/internal/observability"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, maxBytes int64, clock clockwork.Clock) *Manager {
	t.Helper()
	m, err := newWithClock(t.TempDir(), maxBytes, testLogger(), observability.NewMetricsForTesting(), clock)
	require.NoError(t, err)
	return m
}

func writeCacheFile(t *testing.T, m *Manager, rel string, size int) {
	t.Helper()
	path := filepath.Join(m.Root(), rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestNewCreatesSubdirs(t *testing.T) {
	m := newTestManager(t, 1<<20, clockwork.NewFakeClock())
	for _, sub := range []string{ImagesDir, DigestsDir, DataDir} {
		info, err := os.Stat(filepath.Join(m.Root(), sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	_, err := New(t.TempDir(), 0, testLogger(), observability.NewMetricsForTesting())
	assert.Error(t, err)
}

func TestLookupHitAndMiss(t *testing.T) {
	m := newTestManager(t, 1<<20, clockwork.NewFakeClock())
	writeCacheFile(t, m, "data/granule.nc", 100)

	path, ok := m.Lookup("data/granule.nc")
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(m.Root(), "data", "granule.nc"), path)

	_, ok = m.Lookup("data/other.nc")
	assert.False(t, ok)

	// Directories are not cache entries.
	_, ok = m.Lookup("data")
	assert.False(t, ok)
}

func TestEnforceEvictsOldestFirst(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 26, 12, 0, 0, 0, time.UTC))
	m := newTestManager(t, 250, clock)

	writeCacheFile(t, m, "data/a.nc", 100)
	require.NoError(t, m.Admit("data/a.nc"))

	clock.Advance(time.Minute)
	writeCacheFile(t, m, "data/b.nc", 100)
	require.NoError(t, m.Admit("data/b.nc"))

	clock.Advance(time.Minute)
	writeCacheFile(t, m, "data/c.nc", 100)
	require.NoError(t, m.Admit("data/c.nc"))

	// 300 bytes > 250 cap: oldest (a) should be gone, b and c kept.
	_, ok := m.Lookup("data/a.nc")
	assert.False(t, ok, "oldest file should be evicted")
	_, ok = m.Lookup("data/b.nc")
	assert.True(t, ok)
	_, ok = m.Lookup("data/c.nc")
	assert.True(t, ok)

	size, err := m.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(200), size)
}

func TestLookupRefreshesRecency(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 26, 12, 0, 0, 0, time.UTC))
	m := newTestManager(t, 250, clock)

	writeCacheFile(t, m, "data/a.nc", 100)
	require.NoError(t, m.Admit("data/a.nc"))

	clock.Advance(time.Minute)
	writeCacheFile(t, m, "data/b.nc", 100)
	require.NoError(t, m.Admit("data/b.nc"))

	// Touch a so b becomes the LRU entry.
	clock.Advance(time.Minute)
	_, ok := m.Lookup("data/a.nc")
	require.True(t, ok)

	clock.Advance(time.Minute)
	writeCacheFile(t, m, "data/c.nc", 100)
	require.NoError(t, m.Admit("data/c.nc"))

	_, ok = m.Lookup("data/b.nc")
	assert.False(t, ok, "least-recently-used file should be evicted")
	_, ok = m.Lookup("data/a.nc")
	assert.True(t, ok, "recently touched file should survive")
}

func TestEnforceUnderCapKeepsEverything(t *testing.T) {
	m := newTestManager(t, 1<<20, clockwork.NewFakeClock())
	writeCacheFile(t, m, "data/a.nc", 100)
	writeCacheFile(t, m, "images/t.png", 50)
	require.NoError(t, m.Enforce())

	size, err := m.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(150), size)
}

func TestClear(t *testing.T) {
	m := newTestManager(t, 1<<20, clockwork.NewFakeClock())
	writeCacheFile(t, m, "data/a.nc", 100)

	require.NoError(t, m.Clear())

	size, err := m.Size()
	require.NoError(t, err)
	assert.Zero(t, size)

	// Subdirs come back after a clear.
	_, err = os.Stat(filepath.Join(m.Root(), DataDir))
	assert.NoError(t, err)
}

func TestSubDirNested(t *testing.T) {
	m := newTestManager(t, 1<<20, clockwork.NewFakeClock())
	dir, err := m.SubDir(filepath.Join(DigestsDir, "2025-03-26,2025-03-28"))
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

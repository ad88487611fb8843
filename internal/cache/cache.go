// Package cache manages the on-disk granule cache (~/.cache/qkun by
// default). Downloaded files, thumbnails, and digests live here; a byte-size
// cap is enforced by evicting the least-recently-used files.
package cache

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/jonboulle/clockwork"

	"github.com/chengcli/qkun/internal/observability"
)

// Standard subdirectories inside the cache root.
const (
	ImagesDir  = "images"
	DigestsDir = "digests"
	DataDir    = "data"
)

// Manager is an LRU file cache rooted at a single directory. Recency is
// tracked through file modification times: every access touches the file.
type Manager struct {
	root     string
	maxBytes int64
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a Manager rooted at dir, creating the directory tree if needed.
func New(dir string, maxBytes int64, logger *slog.Logger, metrics *observability.Metrics) (*Manager, error) {
	return newWithClock(dir, maxBytes, logger, metrics, clockwork.NewRealClock())
}

func newWithClock(dir string, maxBytes int64, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) (*Manager, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxBytes)
	}
	for _, sub := range []string{"", ImagesDir, DigestsDir, DataDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return &Manager{
		root:     dir,
		maxBytes: maxBytes,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Root returns the cache root directory.
func (m *Manager) Root() string { return m.root }

// SubDir returns an existing-or-created subdirectory of the cache root.
// Nested names like "digests/2025-03-26,2025-03-28" are allowed.
func (m *Manager) SubDir(name string) (string, error) {
	dir := filepath.Join(m.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache subdir %s: %w", name, err)
	}
	return dir, nil
}

// Lookup returns the absolute path of a cached file if present, touching it
// to mark recent use. The path is relative to the cache root.
func (m *Manager) Lookup(rel string) (string, bool) {
	path := filepath.Join(m.root, rel)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		m.metrics.CacheLookups.WithLabelValues("miss").Inc()
		return "", false
	}
	m.touch(path)
	m.metrics.CacheLookups.WithLabelValues("hit").Inc()
	return path, true
}

// Admit marks a freshly written cache file as most-recently-used and
// enforces the size cap.
func (m *Manager) Admit(rel string) error {
	m.touch(filepath.Join(m.root, rel))
	return m.Enforce()
}

func (m *Manager) touch(path string) {
	now := m.clock.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		m.logger.Warn("cache touch failed", "path", path, "error", err)
	}
}

type cacheFile struct {
	path    string
	modTime int64
	size    int64
}

// Enforce evicts least-recently-used files until the cache is under the
// size cap. Directories themselves are never removed.
func (m *Manager) Enforce() error {
	files, total, err := m.scan()
	if err != nil {
		return err
	}
	m.metrics.CacheBytes.Set(float64(total))
	if total <= m.maxBytes {
		return nil
	}

	// Oldest first.
	sort.Slice(files, func(i, j int) bool { return files[i].modTime < files[j].modTime })

	for _, f := range files {
		if total <= m.maxBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			m.logger.Warn("cache eviction failed", "path", f.path, "error", err)
			continue
		}
		total -= f.size
		m.metrics.CacheEvictions.Inc()
		m.logger.Debug("evicted cache file", "path", f.path, "size", f.size)
	}
	m.metrics.CacheBytes.Set(float64(total))
	return nil
}

// Size returns the total size of all cached files in bytes.
func (m *Manager) Size() (int64, error) {
	_, total, err := m.scan()
	return total, err
}

func (m *Manager) scan() ([]cacheFile, int64, error) {
	var files []cacheFile
	var total int64
	err := filepath.WalkDir(m.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, cacheFile{path: path, modTime: info.ModTime().UnixNano(), size: info.Size()})
		total += info.Size()
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scan cache: %w", err)
	}
	return files, total, nil
}

// Clear removes all cached files and recreates the directory tree.
func (m *Manager) Clear() error {
	if err := os.RemoveAll(m.root); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	for _, sub := range []string{"", ImagesDir, DigestsDir, DataDir} {
		if err := os.MkdirAll(filepath.Join(m.root, sub), 0o755); err != nil {
			return fmt.Errorf("recreate cache dir: %w", err)
		}
	}
	m.metrics.CacheBytes.Set(0)
	return nil
}

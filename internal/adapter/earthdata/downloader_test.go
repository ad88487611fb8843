package earthdata

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chengcli/qkun/internal/observability"
)

func newTestDownloader(t *testing.T, username, password string, concurrency int) *Downloader {
	t.Helper()
	d, err := New(username, password, t.TempDir(), concurrency, 10*time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
	require.NoError(t, err)
	return d
}

func TestDownload_WritesFile(t *testing.T) {
	payload := []byte("not really a netCDF file")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok, "expected basic auth")
		assert.Equal(t, "user", user)
		assert.Equal(t, "pass", pass)
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	d := newTestDownloader(t, "user", "pass", 1)
	path, err := d.Download(context.Background(), srv.URL+"/PACE_OCI.20250326T103301.L1B.V3.nc")
	require.NoError(t, err)

	assert.Equal(t, "PACE_OCI.20250326T103301.L1B.V3.nc", filepath.Base(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, int64(1), d.Completed())
}

func TestDownload_AnonymousWhenNoCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _, ok := r.BasicAuth()
		assert.False(t, ok, "no auth header expected")
		_, _ = w.Write([]byte("thumb"))
	}))
	defer srv.Close()

	d := newTestDownloader(t, "", "", 1)
	_, err := d.Download(context.Background(), srv.URL+"/thumb.png")
	require.NoError(t, err)
}

func TestDownload_AuthSurvivesRedirect(t *testing.T) {
	data := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		assert.True(t, ok, "auth should be re-attached after redirect")
		assert.Equal(t, "user", user)
		_, _ = w.Write([]byte("payload"))
	}))
	defer data.Close()

	// Separate server so the redirect crosses hosts, which is where Go
	// normally drops the Authorization header.
	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, data.URL+"/granule.nc", http.StatusFound)
	}))
	defer front.Close()

	d := newTestDownloader(t, "user", "pass", 1)
	path, err := d.Download(context.Background(), front.URL+"/granule.nc")
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), content)
}

func TestDownload_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d := newTestDownloader(t, "", "", 1)
	_, err := d.Download(context.Background(), srv.URL+"/granule.nc")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownload_FailsAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := newTestDownloader(t, "bad", "creds", 1)
	_, err := d.Download(context.Background(), srv.URL+"/granule.nc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
	assert.Equal(t, int32(maxAttempts), calls.Load())
}

func TestDownload_RemovesPartialFileOnShortBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.(http.Flusher).Flush()
		// Write fewer bytes than promised, then hang up.
		_, _ = w.Write([]byte("short"))
	}))
	defer srv.Close()

	d := newTestDownloader(t, "", "", 1)
	_, err := d.Download(context.Background(), srv.URL+"/granule.nc")
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(d.saveDir, "granule.nc"))
	assert.True(t, os.IsNotExist(statErr), "partial file should be removed")
}

func TestDownload_BadURL(t *testing.T) {
	d := newTestDownloader(t, "", "", 1)
	_, err := d.Download(context.Background(), "http://example.com/")
	assert.Error(t, err)
}

func TestDownloadAll_Parallel(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte("data"))
	}))
	defer srv.Close()

	d := newTestDownloader(t, "", "", 2)
	urls := make([]string, 6)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/granule-%d.nc", srv.URL, i)
	}

	paths, err := d.DownloadAll(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, paths, 6)
	for i, p := range paths {
		assert.Equal(t, fmt.Sprintf("granule-%d.nc", i), filepath.Base(p))
	}
	assert.LessOrEqual(t, peak.Load(), int32(2), "concurrency limit should hold")
	assert.Equal(t, int64(6), d.Completed())
	assert.NoError(t, d.CheckReadiness(context.Background()))
}

func TestDownloadAll_FirstErrorCancels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if filepath.Base(r.URL.Path) == "bad.nc" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("data"))
	}))
	defer srv.Close()

	d := newTestDownloader(t, "", "", 2)
	_, err := d.DownloadAll(context.Background(), []string{srv.URL + "/good.nc", srv.URL + "/bad.nc"})
	assert.Error(t, err)
}

func TestFileNameFromURL(t *testing.T) {
	name, err := FileNameFromURL("https://obdaac.example.com/ob/getfile/PACE_OCI.20250326T103301.L1B.V3.nc")
	require.NoError(t, err)
	assert.Equal(t, "PACE_OCI.20250326T103301.L1B.V3.nc", name)

	// Query strings are not part of the saved file name.
	name, err = FileNameFromURL("https://obdaac.example.com/granule.nc?appkey=abc&redirect=1")
	require.NoError(t, err)
	assert.Equal(t, "granule.nc", name)

	_, err = FileNameFromURL("https://obdaac.example.com/")
	assert.Error(t, err)
	_, err = FileNameFromURL("://granule.nc")
	assert.Error(t, err)
}

func TestCheckReadiness(t *testing.T) {
	d := newTestDownloader(t, "", "", 1)
	assert.Error(t, d.CheckReadiness(context.Background()))
}

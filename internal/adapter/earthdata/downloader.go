// Package earthdata downloads granule files from NASA DAACs using Earthdata
// login credentials. Data URLs redirect through urs.earthdata.nasa.gov, so
// basic auth must survive the redirect hop.
package earthdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chengcli/qkun/internal/observability"
)

const (
	chunkSize   = 8192
	maxAttempts = 3

	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Downloader fetches granule files into a destination directory with a
// bounded number of parallel transfers.
type Downloader struct {
	httpClient  *http.Client
	username    string
	password    string
	saveDir     string
	concurrency int
	logger      *slog.Logger
	metrics     *observability.Metrics

	completed atomic.Int64
}

// New creates a Downloader writing into saveDir. Empty credentials are
// allowed for archives with anonymous access (e.g. thumbnails).
func New(username, password, saveDir string, concurrency int, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) (*Downloader, error) {
	if err := os.MkdirAll(saveDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	d := &Downloader{
		username:    username,
		password:    password,
		saveDir:     saveDir,
		concurrency: concurrency,
		logger:      logger,
		metrics:     metrics,
	}
	d.httpClient = &http.Client{
		Timeout: timeout,
		Jar:     jar,
		// Go drops the Authorization header on cross-host redirects, but the
		// URS login host needs it. Re-attach credentials on every hop.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			d.setAuth(req)
			return nil
		},
	}
	return d, nil
}

func (d *Downloader) setAuth(req *http.Request) {
	if d.username != "" {
		req.SetBasicAuth(d.username, d.password)
	}
}

// CheckReadiness reports readiness once at least one download finished,
// for the health endpoint exposed during long-running transfers.
func (d *Downloader) CheckReadiness(_ context.Context) error {
	if d.completed.Load() == 0 {
		return errors.New("no downloads completed yet")
	}
	return nil
}

// Completed returns the number of finished downloads.
func (d *Downloader) Completed() int64 {
	return d.completed.Load()
}

// Download fetches one URL into the save directory, retrying transient
// failures with exponential backoff. Returns the path of the written file.
func (d *Downloader) Download(ctx context.Context, rawURL string) (string, error) {
	name, err := FileNameFromURL(rawURL)
	if err != nil {
		return "", err
	}
	savePath := filepath.Join(d.saveDir, name)

	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			d.logger.Warn("retrying download", "url", rawURL, "attempt", attempt, "error", lastErr)
			if !sleepWithContext(ctx, backoff) {
				return "", ctx.Err()
			}
			backoff = nextBackoff(backoff)
		}

		written, err := d.fetch(ctx, rawURL, savePath)
		if err == nil {
			d.completed.Add(1)
			d.metrics.Downloads.WithLabelValues("success").Inc()
			d.logger.Info("downloaded granule", "file", name, "bytes", written)
			return savePath, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	d.metrics.Downloads.WithLabelValues("error").Inc()
	return "", fmt.Errorf("download %s: %w", rawURL, lastErr)
}

func (d *Downloader) fetch(ctx context.Context, rawURL, savePath string) (int64, error) {
	start := time.Now()
	d.metrics.ActiveDownloads.Inc()
	defer d.metrics.ActiveDownloads.Dec()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	d.setAuth(req)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}

	f, err := os.Create(savePath)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}

	counter := &countingWriter{w: f, metrics: d.metrics}
	buf := make([]byte, chunkSize)
	_, copyErr := io.CopyBuffer(counter, resp.Body, buf)
	closeErr := f.Close()

	if copyErr != nil || closeErr != nil {
		// Do not leave partial files behind.
		os.Remove(savePath)
		if copyErr != nil {
			return 0, fmt.Errorf("write body: %w", copyErr)
		}
		return 0, fmt.Errorf("close file: %w", closeErr)
	}

	if total := resp.ContentLength; total > 0 && counter.n != total {
		os.Remove(savePath)
		return 0, fmt.Errorf("short body: got %d of %d bytes", counter.n, total)
	}

	d.metrics.DownloadDuration.Observe(time.Since(start).Seconds())
	return counter.n, nil
}

// DownloadAll fetches every URL with at most the configured number of
// parallel transfers. The first failure cancels the remaining downloads.
func (d *Downloader) DownloadAll(ctx context.Context, urls []string) ([]string, error) {
	paths := make([]string, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			p, err := d.Download(gctx, u)
			if err != nil {
				return err
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

type countingWriter struct {
	w       io.Writer
	metrics *observability.Metrics
	n       int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.metrics.DownloadBytes.Add(float64(n))
	return n, err
}

// FileNameFromURL derives the local file name a download will be saved
// under: the basename of the URL path, ignoring any query string.
func FileNameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("url %q has no file name", rawURL)
	}
	return name, nil
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

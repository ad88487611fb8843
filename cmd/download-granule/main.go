// Command download-granule fetches granule data files into the local cache
// using Earthdata login credentials. URLs come from positional arguments, a
// manifest file, or a CMR search over a catalog product, date range, and
// optional bounding box. While transfers run, health and metrics endpoints
// are served when HTTP_ADDR is set.
//
// Usage:
//
//	EARTHDATA_USERNAME=... EARTHDATA_PASSWORD=... download-granule \
//	  -mission pace -instrument oci -level L1B \
//	  -start 2025-03-26 -end 2025-03-28 -box -10,30,10,50
//
//	download-granule https://obdaac.../PACE_OCI.20250326T103301.L1B.V3.nc
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/chengcli/qkun/internal/adapter/cmr"
	"github.com/chengcli/qkun/internal/adapter/earthdata"
	httpadapter "github.com/chengcli/qkun/internal/adapter/http"
	"github.com/chengcli/qkun/internal/cache"
	"github.com/chengcli/qkun/internal/catalog"
	"github.com/chengcli/qkun/internal/config"
	"github.com/chengcli/qkun/internal/geo"
	"github.com/chengcli/qkun/internal/observability"
)

type options struct {
	mission    string
	instrument string
	level      string
	start      string
	end        string
	box        string
	manifest   string
	thumbnails bool
	dryRun     bool
	urls       []string
}

func main() {
	var opts options
	flag.StringVar(&opts.mission, "mission", "pace", "mission name")
	flag.StringVar(&opts.instrument, "instrument", "oci", "instrument name")
	flag.StringVar(&opts.level, "level", "L1B", "product processing level")
	flag.StringVar(&opts.start, "start", "", "start date (YYYY-MM-DD, default: catalog validity start)")
	flag.StringVar(&opts.end, "end", "", "end date (YYYY-MM-DD, default: catalog validity end or today)")
	flag.StringVar(&opts.box, "box", "", "bounding box west,south,east,north (default global)")
	flag.StringVar(&opts.manifest, "manifest", "", "file with one URL per line")
	flag.BoolVar(&opts.thumbnails, "thumbnails", false, "fetch browse thumbnails instead of data files")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "list the URLs without downloading")
	flag.Parse()
	opts.urls = flag.Args()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics, opts); err != nil {
		logger.Error("download failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	urls, err := collectURLs(ctx, cfg, logger, metrics, opts)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		logger.Info("nothing to download")
		return nil
	}
	if opts.dryRun {
		for _, u := range urls {
			fmt.Println(u)
		}
		return nil
	}
	if !opts.thumbnails && !cfg.HasCredentials() {
		return errors.New("data downloads require EARTHDATA_USERNAME and EARTHDATA_PASSWORD")
	}

	store, err := cache.New(cfg.CacheDir, cfg.CacheMaxSize, logger, metrics)
	if err != nil {
		return err
	}
	subdir := cache.DataDir
	if opts.thumbnails {
		subdir = cache.ImagesDir
	}
	saveDir, err := store.SubDir(subdir)
	if err != nil {
		return err
	}

	downloader, err := earthdata.New(cfg.EarthdataUser, cfg.EarthdataPassword, saveDir,
		cfg.DownloadConcurrency, cfg.DownloadTimeout, logger, metrics)
	if err != nil {
		return err
	}

	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, downloader, downloader, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	// Skip files already in the cache, refreshing their recency. The name
	// must match what the downloader will save under, so query strings and
	// the like do not defeat the check.
	var pending []string
	for _, u := range urls {
		name, nameErr := earthdata.FileNameFromURL(u)
		if nameErr != nil {
			// Let the downloader report the malformed URL.
			pending = append(pending, u)
			continue
		}
		if _, ok := store.Lookup(filepath.Join(subdir, name)); ok {
			logger.Info("already cached", "file", name)
			continue
		}
		pending = append(pending, u)
	}

	paths, err := downloader.DownloadAll(ctx, pending)
	if err == nil {
		for _, p := range paths {
			rel, relErr := filepath.Rel(store.Root(), p)
			if relErr != nil {
				continue
			}
			if admitErr := store.Admit(rel); admitErr != nil {
				logger.Warn("cache admission failed", "file", rel, "error", admitErr)
			}
		}
		logger.Info("downloads complete", "files", len(paths), "skipped", len(urls)-len(pending))
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if shutErr := srv.Shutdown(shutdownCtx); shutErr != nil {
			logger.Error("http server shutdown error", "error", shutErr)
		}
	}
	return err
}

// collectURLs gathers download URLs from the command line, a manifest file,
// and a CMR search, in that order.
func collectURLs(ctx context.Context, cfg *config.Config, logger *slog.Logger,
	metrics *observability.Metrics, opts options) ([]string, error) {

	urls := append([]string(nil), opts.urls...)

	if opts.manifest != "" {
		fromFile, err := readManifest(opts.manifest)
		if err != nil {
			return nil, err
		}
		urls = append(urls, fromFile...)
	}

	// Explicit URLs with no dates skip the search entirely.
	if len(urls) > 0 && opts.start == "" && opts.end == "" {
		return urls, nil
	}

	cat, err := catalog.Load()
	if err != nil {
		return nil, err
	}
	opts.start, opts.end, err = cat.ResolveRange(opts.mission, opts.instrument, opts.start, opts.end, time.Now())
	if err != nil {
		return nil, err
	}
	startT, err := time.Parse("2006-01-02", opts.start)
	if err != nil {
		return nil, fmt.Errorf("parse start date %q: want YYYY-MM-DD", opts.start)
	}
	endT, err := time.Parse("2006-01-02", opts.end)
	if err != nil {
		return nil, fmt.Errorf("parse end date %q: want YYYY-MM-DD", opts.end)
	}

	conceptID, err := cat.ConceptID(opts.mission, opts.instrument, opts.level, startT, endT)
	if err != nil {
		return nil, err
	}
	product, err := cat.Lookup(opts.mission, opts.instrument, opts.level)
	if err != nil {
		return nil, err
	}

	bounds := geo.Global()
	if opts.box != "" {
		if bounds, err = geo.ParseBoundingBox(opts.box); err != nil {
			return nil, err
		}
	}

	client := cmr.NewClient(cfg.CMRBaseURL, cfg.SearchTimeout, logger, metrics)
	granules, err := client.Search(ctx, cmr.Query{
		ConceptID: conceptID,
		Temporal:  cmr.MidnightUTC(opts.start) + "," + cmr.MidnightUTC(opts.end),
		Bounds:    bounds,
		PageSize:  cfg.PageSize,
		MaxPages:  cfg.MaxPages,
	})
	if err != nil {
		return nil, err
	}

	for _, g := range granules {
		if opts.thumbnails {
			urls = append(urls, g.ThumbnailURLs()...)
		} else {
			urls = append(urls, g.DataURLs(product.Formats)...)
		}
	}
	return urls, nil
}

func readManifest(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return urls, nil
}

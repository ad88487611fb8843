// Command search-granule queries NASA's CMR for granules of a catalog
// product over a date range and optional bounding box, prints the matches,
// and writes a YAML digest per granule into the local cache.
//
// Usage:
//
//	search-granule -mission pace -instrument oci -level L1B \
//	  -start 2025-03-26 -end 2025-03-28 -box -10,30,10,50
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/chengcli/qkun/internal/adapter/cmr"
	"github.com/chengcli/qkun/internal/cache"
	"github.com/chengcli/qkun/internal/catalog"
	"github.com/chengcli/qkun/internal/config"
	"github.com/chengcli/qkun/internal/geo"
	"github.com/chengcli/qkun/internal/granule"
	"github.com/chengcli/qkun/internal/observability"
)

func main() {
	mission := flag.String("mission", "pace", "mission name")
	instrument := flag.String("instrument", "oci", "instrument name")
	level := flag.String("level", "L1B", "product processing level")
	start := flag.String("start", "", "start date (YYYY-MM-DD, default: catalog validity start)")
	end := flag.String("end", "", "end date (YYYY-MM-DD, default: catalog validity end or today)")
	box := flag.String("box", "", "bounding box west,south,east,north (default global)")
	catalogPath := flag.String("catalog", "", "override the built-in product catalog with a YAML file")
	noDigests := flag.Bool("no-digests", false, "print matches without writing digests")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics, *mission, *instrument, *level, *start, *end, *box, *catalogPath, !*noDigests); err != nil {
		logger.Error("search failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics,
	mission, instrument, level, start, end, box, catalogPath string, writeDigests bool) error {

	cat, err := loadCatalog(catalogPath)
	if err != nil {
		return err
	}

	start, end, err = cat.ResolveRange(mission, instrument, start, end, time.Now())
	if err != nil {
		return err
	}

	startT, err := parseDate(start)
	if err != nil {
		return err
	}
	endT, err := parseDate(end)
	if err != nil {
		return err
	}
	if endT.Before(startT) {
		return fmt.Errorf("end date %s precedes start date %s", end, start)
	}

	conceptID, err := cat.ConceptID(mission, instrument, level, startT, endT)
	if err != nil {
		return err
	}
	product, err := cat.Lookup(mission, instrument, level)
	if err != nil {
		return err
	}

	bounds := geo.Global()
	if box != "" {
		if bounds, err = geo.ParseBoundingBox(box); err != nil {
			return err
		}
	}

	client := cmr.NewClient(cfg.CMRBaseURL, cfg.SearchTimeout, logger, metrics)
	query := cmr.Query{
		ConceptID: conceptID,
		Temporal:  cmr.MidnightUTC(start) + "," + cmr.MidnightUTC(end),
		Bounds:    bounds,
		PageSize:  cfg.PageSize,
		MaxPages:  cfg.MaxPages,
	}
	logger.Info("searching granules", "product", product.ID, "query", query.String())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.SearchTimeout*time.Duration(cfg.MaxPages))
	defer cancel()

	granules, err := client.Search(ctx, query)
	if err != nil {
		return err
	}
	if len(granules) == 0 {
		logger.Info("no granules found")
		return nil
	}

	var digestDir string
	if writeDigests {
		store, err := cache.New(cfg.CacheDir, cfg.CacheMaxSize, logger, metrics)
		if err != nil {
			return err
		}
		digestDir, err = store.SubDir(cache.DigestsDir + "/" + start + "," + end)
		if err != nil {
			return err
		}
	}

	for _, g := range granules {
		name := g.FileName(product.Formats)
		if urls := g.DataURLs(product.Formats); len(urls) > 0 {
			name = urls[0]
		}
		fmt.Printf("%s  %8.1f MB  %s\n", g.TimeStart, float64(g.SizeBytes())/(1<<20), name)
		if !writeDigests {
			continue
		}
		d := granule.FromCMR(g, product.ShortName, product.Formats)
		if _, err := d.Write(digestDir); err != nil {
			return err
		}
		metrics.DigestsWritten.Inc()
	}
	if writeDigests {
		logger.Info("wrote digests", "count", len(granules), "dir", digestDir)
	}
	return nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path != "" {
		return catalog.LoadFile(path)
	}
	return catalog.Load()
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

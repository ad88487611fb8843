// Command digest-granule reads a local OCI L1B granule file, derives its
// spatial footprint from the geolocation arrays, and writes a YAML digest
// next to the granule or into the cache digest directory.
//
// Usage:
//
//	digest-granule -file ~/.cache/qkun/data/PACE_OCI.20250326T103301.L1B.V3.nc
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/chengcli/qkun/internal/cache"
	"github.com/chengcli/qkun/internal/config"
	"github.com/chengcli/qkun/internal/granule"
	"github.com/chengcli/qkun/internal/observability"
	"github.com/chengcli/qkun/internal/oci"
)

func main() {
	file := flag.String("file", "", "path to a granule file, required")
	outDir := flag.String("out", "", "digest output directory (default: cache digests dir)")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics, *file, *outDir); err != nil {
		logger.Error("digest failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, file, outDir string) error {
	info, err := os.Stat(file)
	if err != nil {
		return fmt.Errorf("stat granule: %w", err)
	}

	reader, err := oci.Open(file)
	if err != nil {
		return err
	}
	defer reader.Close()

	if err := reader.Validate(); err != nil {
		return err
	}
	lat, lon, err := reader.Geolocation()
	if err != nil {
		return err
	}
	bounds, err := oci.SwathBounds(lat, lon)
	if err != nil {
		return err
	}

	if outDir == "" {
		store, err := cache.New(cfg.CacheDir, cfg.CacheMaxSize, logger, metrics)
		if err != nil {
			return err
		}
		if outDir, err = store.SubDir(cache.DigestsDir); err != nil {
			return err
		}
	}

	d := granule.FromLocal(file, info.Size(), bounds, oci.BoundsWKT(bounds))
	path, err := d.Write(outDir)
	if err != nil {
		return err
	}
	metrics.DigestsWritten.Inc()

	logger.Info("wrote digest", "path", path, "bounds", bounds.String())
	fmt.Println(path)
	return nil
}

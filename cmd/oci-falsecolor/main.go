// Command oci-falsecolor renders a false-color PNG from a PACE OCI L1B
// granule. The blue and red focal planes are collapsed with photopic
// perception weights, green is synthesized from their mean, and the result
// is contrast-stretched. Output is swath geometry by default, or a
// plate-carree projection with -project.
//
// Usage:
//
//	oci-falsecolor -file PACE_OCI.20250326T103301.L1B.V3.nc -enhance -project
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/chengcli/qkun/internal/cache"
	"github.com/chengcli/qkun/internal/config"
	"github.com/chengcli/qkun/internal/observability"
	"github.com/chengcli/qkun/internal/oci"
)

func main() {
	file := flag.String("file", "", "path to an OCI L1B granule, required")
	out := flag.String("out", "", "output PNG path (default: cache images dir)")
	subsample := flag.Int("subsample", 5, "keep every n-th scan and pixel (1 = full resolution)")
	enhance := flag.Bool("enhance", false, "harder percentile clip with gamma lift for dark scenes")
	project := flag.Bool("project", false, "project onto a regular lat/lon grid")
	width := flag.Int("width", 1024, "projected image width in pixels")
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

	if err := run(cfg, logger, metrics, *file, *out, *subsample, *enhance, *project, *width); err != nil {
		logger.Error("false-color rendering failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics,
	file, out string, subsample int, enhance, project bool, width int) error {

	reader, err := oci.Open(file)
	if err != nil {
		return err
	}
	defer reader.Close()

	if err := reader.Validate(); err != nil {
		return err
	}

	img, lat, lon, err := oci.FalseColor(reader, oci.Options{Subsample: subsample, Enhance: enhance})
	if err != nil {
		return err
	}
	logger.Info("composed false color", "rows", img.Rows, "cols", img.Cols, "enhance", enhance)

	var store *cache.Manager
	if out == "" {
		if store, err = cache.New(cfg.CacheDir, cfg.CacheMaxSize, logger, metrics); err != nil {
			return err
		}
		imagesDir, err := store.SubDir(cache.ImagesDir)
		if err != nil {
			return err
		}
		out = filepath.Join(imagesDir, pngName(file, project))
	}

	if project {
		projected, bounds, err := img.ProjectPlateCarree(lat, lon, width)
		if err != nil {
			return err
		}
		if err := oci.WritePNG(out, projected); err != nil {
			return err
		}
		logger.Info("wrote projected image", "path", out, "bounds", bounds.String())
	} else {
		if err := oci.WritePNG(out, img.ToRGBA()); err != nil {
			return err
		}
		logger.Info("wrote swath image", "path", out)
	}

	if store != nil {
		rel, relErr := filepath.Rel(store.Root(), out)
		if relErr == nil {
			if err := store.Admit(rel); err != nil {
				logger.Warn("cache admission failed", "file", rel, "error", err)
			}
		}
	}

	fmt.Println(out)
	return nil
}

func pngName(granulePath string, projected bool) string {
	base := filepath.Base(granulePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if projected {
		return base + ".map.png"
	}
	return base + ".png"
}

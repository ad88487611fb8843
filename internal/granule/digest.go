// Package granule models granule metadata digests: small YAML records
// describing one granule's identity, time coverage, and spatial footprint.
// Digests are written by search-granule from CMR entries and by
// digest-granule from local files, and are cheap to read back without
// touching the (large) granule itself.
package granule

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"gopkg.in/yaml.v3"

	"github.com/chengcli/qkun/internal/adapter/cmr"
	"github.com/chengcli/qkun/internal/geo"
)

// clock is a package-level time source so tests can freeze time via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source for digest timestamps. Pass nil to reset.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Digest summarizes one granule.
type Digest struct {
	ID               string     `yaml:"id"`
	ShortName        string     `yaml:"shortname,omitempty"`
	FileName         string     `yaml:"file_name"`
	Format           string     `yaml:"format,omitempty"`
	TimeStart        string     `yaml:"time_start,omitempty"`
	TimeEnd          string     `yaml:"time_end,omitempty"`
	GeospatialBounds string     `yaml:"geospatial_bounds,omitempty"` // WKT POLYGON
	Bounds           geo.GeoBox `yaml:"bounds"`
	SizeBytes        int64      `yaml:"size_bytes,omitempty"`
	SourceURL        string     `yaml:"source_url,omitempty"`
	RetrievedAt      time.Time  `yaml:"retrieved_at"`
}

// FromCMR builds a digest from a CMR search entry. shortName is the catalog
// product's CMR short name; the formats filter picks which data link names
// the file.
func FromCMR(g cmr.Granule, shortName string, formats []string) Digest {
	d := Digest{
		ID:          g.ID,
		ShortName:   shortName,
		FileName:    g.FileName(formats),
		TimeStart:   g.TimeStart,
		TimeEnd:     g.TimeEnd,
		SizeBytes:   g.SizeBytes(),
		RetrievedAt: clock.Now().UTC(),
	}
	if urls := g.DataURLs(formats); len(urls) > 0 {
		d.SourceURL = urls[0]
		d.Format = strings.ToLower(path.Ext(urls[0]))
	}
	if points, err := g.Footprint(); err == nil {
		d.Bounds = geo.BoundingBox(points)
	}
	return d
}

// FromLocal builds a digest for a granule file already on disk, with bounds
// derived from its geolocation arrays.
func FromLocal(filePath string, sizeBytes int64, bounds geo.GeoBox, wkt string) Digest {
	base := path.Base(filePath)
	return Digest{
		ID:               strings.TrimSuffix(base, path.Ext(base)),
		FileName:         base,
		Format:           strings.ToLower(path.Ext(base)),
		GeospatialBounds: wkt,
		Bounds:           bounds,
		SizeBytes:        sizeBytes,
		RetrievedAt:      clock.Now().UTC(),
	}
}

// BoundingBox returns the digest's spatial bounds, preferring the WKT
// polygon when present.
func (d Digest) BoundingBox() (geo.GeoBox, error) {
	if d.GeospatialBounds != "" {
		points, err := geo.ParsePolygonWKT(d.GeospatialBounds)
		if err != nil {
			return geo.GeoBox{}, err
		}
		return geo.BoundingBox(points), nil
	}
	if d.Bounds == (geo.GeoBox{}) {
		return geo.GeoBox{}, fmt.Errorf("digest %s has no spatial bounds", d.ID)
	}
	return d.Bounds, nil
}

// DigestFileName derives the digest file name from a granule file name:
// the version/extension tail is replaced with .yaml
// (PACE_OCI.20250326T103301.L1B.V3.nc → PACE_OCI.20250326T103301.L1B.V3.yaml).
func DigestFileName(granuleFile string) string {
	base := path.Base(granuleFile)
	ext := path.Ext(base)
	if ext == "" {
		return base + ".yaml"
	}
	return strings.TrimSuffix(base, ext) + ".yaml"
}

// Write serializes the digest as YAML into dir, named after the granule file.
// Returns the path written.
func (d Digest) Write(dir string) (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal digest: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create digest dir: %w", err)
	}
	out := filepath.Join(dir, DigestFileName(d.FileName))
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", fmt.Errorf("write digest: %w", err)
	}
	return out, nil
}

// Load reads a digest back from a YAML file.
func Load(path string) (Digest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Digest{}, fmt.Errorf("read digest: %w", err)
	}
	var d Digest
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Digest{}, fmt.Errorf("parse digest: %w", err)
	}
	if d.ID == "" && d.FileName == "" {
		return Digest{}, fmt.Errorf("digest %s has neither id nor file name", path)
	}
	return d, nil
}

package granule

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chengcli/qkun/internal/adapter/cmr"
	"github.com/chengcli/qkun/internal/geo"
)

const (
	dataRel   = "http://esipfed.org/ns/fedsearch/1.1/data#"
	sourceURL = "https://obdaac.example.com/PACE_OCI.20250326T103301.L1B.V3.nc"
)

func testEntry() cmr.Granule {
	return cmr.Granule{
		ID:                "G3405807105-OB_CLOUD",
		ProducerGranuleID: "PACE_OCI.20250326T103301.L1B.V3.nc",
		TimeStart:         "2025-03-26T10:33:01Z",
		TimeEnd:           "2025-03-26T10:38:01Z",
		GranuleSize:       "2.0",
		Polygons:          [][]string{{"8.91 26.57 3.86 2.74 -19.31 7.04 -14.14 31.87 8.91 26.57"}},
		Links:             []cmr.Link{{Rel: dataRel, Href: sourceURL}},
	}
}

func TestFromCMR(t *testing.T) {
	now := time.Date(2025, 3, 28, 6, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(now))
	defer SetClock(nil)

	d := FromCMR(testEntry(), "PACE_OCI_L1B_SCI", []string{".nc"})

	assert.Equal(t, "G3405807105-OB_CLOUD", d.ID)
	assert.Equal(t, "PACE_OCI_L1B_SCI", d.ShortName)
	assert.Equal(t, "PACE_OCI.20250326T103301.L1B.V3.nc", d.FileName)
	assert.Equal(t, ".nc", d.Format)
	assert.Equal(t, sourceURL, d.SourceURL)
	assert.Equal(t, "2025-03-26T10:33:01Z", d.TimeStart)
	assert.Equal(t, int64(2)<<20, d.SizeBytes)
	assert.Equal(t, now, d.RetrievedAt)

	assert.InDelta(t, -19.31, d.Bounds.LatMin, 1e-9)
	assert.InDelta(t, 8.91, d.Bounds.LatMax, 1e-9)
	assert.InDelta(t, 2.74, d.Bounds.LonMin, 1e-9)
	assert.InDelta(t, 31.87, d.Bounds.LonMax, 1e-9)
}

func TestFromLocal(t *testing.T) {
	now := time.Date(2025, 3, 28, 6, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(now))
	defer SetClock(nil)

	box := geo.GeoBox{LatMin: -19.31, LatMax: 8.91, LonMin: 2.74, LonMax: 31.87}
	d := FromLocal("/data/PACE_OCI.20250326T103301.L1B.V3.nc", 1024, box,
		"POLYGON((2.74 -19.31, 31.87 -19.31, 31.87 8.91, 2.74 8.91, 2.74 -19.31))")

	assert.Equal(t, "PACE_OCI.20250326T103301.L1B.V3", d.ID)
	assert.Equal(t, "PACE_OCI.20250326T103301.L1B.V3.nc", d.FileName)
	assert.Equal(t, ".nc", d.Format)
	assert.Equal(t, int64(1024), d.SizeBytes)
	assert.Equal(t, box, d.Bounds)
	assert.Equal(t, now, d.RetrievedAt)

	got, err := d.BoundingBox()
	require.NoError(t, err)
	assert.InDelta(t, box.LatMin, got.LatMin, 1e-9)
}

func TestDigestFileName(t *testing.T) {
	assert.Equal(t, "PACE_OCI.20250326T103301.L1B.V3.yaml",
		DigestFileName("PACE_OCI.20250326T103301.L1B.V3.nc"))
	assert.Equal(t, "granule.yaml", DigestFileName("/data/granule.hdf"))
	assert.Equal(t, "noext.yaml", DigestFileName("noext"))
}

func TestWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	d := FromCMR(testEntry(), "PACE_OCI_L1B_SCI", []string{".nc"})

	path, err := d.Write(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "PACE_OCI.20250326T103301.L1B.V3.yaml"), path)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, d.ID, loaded.ID)
	assert.Equal(t, d.ShortName, loaded.ShortName)
	assert.Equal(t, d.Bounds, loaded.Bounds)
	assert.Equal(t, d.SourceURL, loaded.SourceURL)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("{}\n"), 0o644))
	_, err = Load(empty)
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("{invalid: [}"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestBoundingBoxPrefersWKT(t *testing.T) {
	d := Digest{
		ID:               "g",
		GeospatialBounds: "POLYGON((26.56697 8.91377, 2.74375 3.85615, 7.03795 -19.31054, 31.87486 -14.13918, 26.56697 8.91377))",
		Bounds:           geo.GeoBox{LatMin: -1, LatMax: 1, LonMin: -1, LonMax: 1},
	}
	box, err := d.BoundingBox()
	require.NoError(t, err)
	assert.InDelta(t, -19.31054, box.LatMin, 1e-9)
	assert.InDelta(t, 31.87486, box.LonMax, 1e-9)
}

func TestBoundingBoxFallsBackToStoredBounds(t *testing.T) {
	d := Digest{ID: "g", Bounds: geo.GeoBox{LatMin: -1, LatMax: 1, LonMin: -2, LonMax: 2}}
	box, err := d.BoundingBox()
	require.NoError(t, err)
	assert.Equal(t, d.Bounds, box)

	_, err = Digest{ID: "g"}.BoundingBox()
	assert.Error(t, err)

	_, err = Digest{ID: "g", GeospatialBounds: "POLYGON(broken"}.BoundingBox()
	assert.Error(t, err)
}

package cmr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGranule() Granule {
	return Granule{
		ID:                "G3405807105-OB_CLOUD",
		ProducerGranuleID: "PACE_OCI.20250326T103301.L1B.V3.nc",
		TimeStart:         "2025-03-26T10:33:01Z",
		TimeEnd:           "2025-03-26T10:38:01Z",
		GranuleSize:       "1740.5",
		Polygons:          [][]string{{"8.91 26.57 3.86 2.74 -19.31 7.04 -14.14 31.87 8.91 26.57"}},
		Links: []Link{
			{Rel: dataRel, Href: "https://obdaac.example.com/PACE_OCI.20250326T103301.L1B.V3.nc"},
			{Rel: dataRel, Href: "https://obdaac.example.com/PACE_OCI.20250326T103301.L1B.V3.json"},
			{Rel: browseRel, Href: "https://obdaac.example.com/thumb/20250326T103301.png"},
		},
	}
}

func TestDataURLsFiltersByFormat(t *testing.T) {
	g := testGranule()

	urls := g.DataURLs([]string{".nc"})
	require.Len(t, urls, 1)
	assert.Equal(t, "https://obdaac.example.com/PACE_OCI.20250326T103301.L1B.V3.nc", urls[0])

	// Case-insensitive extension match.
	urls = g.DataURLs([]string{".NC"})
	assert.Len(t, urls, 1)

	// Empty format list accepts everything with the data rel.
	urls = g.DataURLs(nil)
	assert.Len(t, urls, 2)

	urls = g.DataURLs([]string{".hdf"})
	assert.Empty(t, urls)
}

func TestThumbnailURLs(t *testing.T) {
	urls := testGranule().ThumbnailURLs()
	require.Len(t, urls, 1)
	assert.Equal(t, "https://obdaac.example.com/thumb/20250326T103301.png", urls[0])
}

func TestFileName(t *testing.T) {
	g := testGranule()
	assert.Equal(t, "PACE_OCI.20250326T103301.L1B.V3.nc", g.FileName([]string{".nc"}))

	// Without a matching data link the producer granule ID is used.
	assert.Equal(t, "PACE_OCI.20250326T103301.L1B.V3.nc", g.FileName([]string{".hdf"}))
}

func TestFootprint(t *testing.T) {
	points, err := testGranule().Footprint()
	require.NoError(t, err)
	require.Len(t, points, 5)
	assert.InDelta(t, 26.57, points[0].Lon, 1e-9)
	assert.InDelta(t, 8.91, points[0].Lat, 1e-9)

	_, err = Granule{ID: "empty"}.Footprint()
	assert.Error(t, err)
}

func TestSizeBytes(t *testing.T) {
	assert.Equal(t, int64(1740.5*(1<<20)), testGranule().SizeBytes())
	assert.Zero(t, Granule{}.SizeBytes())
	assert.Zero(t, Granule{GranuleSize: "huge"}.SizeBytes())
}

func TestTimeRange(t *testing.T) {
	start, end := testGranule().TimeRange()
	assert.Equal(t, time.Date(2025, 3, 26, 10, 33, 1, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 3, 26, 10, 38, 1, 0, time.UTC), end)
}

func TestMidnightUTC(t *testing.T) {
	assert.Equal(t, "2025-03-26T00:00:00Z", MidnightUTC("2025-03-26"))
	assert.Equal(t, "2025-03-26T10:33:01Z", MidnightUTC("2025-03-26T10:33:01Z"))
}

func TestTemporalRange(t *testing.T) {
	start := time.Date(2025, 3, 26, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 28, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-26T00:00:00Z,2025-03-28T00:00:00Z", TemporalRange(start, end))
}

package cmr

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/chengcli/qkun/internal/geo"
)

// Granule is one entry from the CMR granule feed.
type Granule struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	ProducerGranuleID string     `json:"producer_granule_id"`
	DatasetID         string     `json:"dataset_id"`
	TimeStart         string     `json:"time_start"`
	TimeEnd           string     `json:"time_end"`
	DayNightFlag      string     `json:"day_night_flag"`
	GranuleSize       string     `json:"granule_size"` // megabytes, as a string
	Links             []Link     `json:"links"`
	Polygons          [][]string `json:"polygons"`
	Boxes             []string   `json:"boxes"`
}

// Link is a related resource attached to a granule entry.
type Link struct {
	Rel   string `json:"rel"`
	Href  string `json:"href"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

// FileName returns the basename of the first data URL, falling back to the
// producer granule ID.
func (g Granule) FileName(formats []string) string {
	if urls := g.DataURLs(formats); len(urls) > 0 {
		return path.Base(urls[0])
	}
	return g.ProducerGranuleID
}

// DataURLs returns the granule's download URLs, filtered to the given file
// extensions (e.g. ".nc"). Extension comparison is case-insensitive; an empty
// format list accepts everything.
func (g Granule) DataURLs(formats []string) []string {
	var urls []string
	for _, link := range g.Links {
		if link.Rel != dataRel {
			continue
		}
		if matchesFormat(link.Href, formats) {
			urls = append(urls, link.Href)
		}
	}
	return urls
}

// ThumbnailURLs returns the granule's browse image URLs.
func (g Granule) ThumbnailURLs() []string {
	var urls []string
	for _, link := range g.Links {
		if link.Rel == browseRel {
			urls = append(urls, link.Href)
		}
	}
	return urls
}

func matchesFormat(href string, formats []string) bool {
	if len(formats) == 0 {
		return true
	}
	ext := path.Ext(href)
	for _, f := range formats {
		if strings.EqualFold(ext, f) {
			return true
		}
	}
	return false
}

// Footprint parses the granule's first polygon ring. CMR encodes polygons as
// whitespace-separated lat lon pairs.
func (g Granule) Footprint() ([]geo.Point, error) {
	if len(g.Polygons) == 0 || len(g.Polygons[0]) == 0 {
		return nil, fmt.Errorf("granule %s has no polygon", g.ID)
	}
	return geo.ParseCMRPolygon(g.Polygons[0][0])
}

// SizeBytes converts the granule_size field (megabytes) to bytes.
// Returns 0 when the field is absent or malformed.
func (g Granule) SizeBytes() int64 {
	s := strings.TrimSpace(g.GranuleSize)
	if s == "" {
		return 0
	}
	mb, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(mb * (1 << 20))
}

// TimeRange parses the granule's start and end times. Zero times are
// returned for absent fields.
func (g Granule) TimeRange() (start, end time.Time) {
	start, _ = time.Parse(time.RFC3339, g.TimeStart)
	end, _ = time.Parse(time.RFC3339, g.TimeEnd)
	return start, end
}

// MidnightUTC expands a bare date to an ISO timestamp at midnight UTC, the
// form the CMR temporal parameter expects. Full timestamps pass through.
func MidnightUTC(date string) string {
	if strings.Contains(date, "T") {
		return date
	}
	return date + "T00:00:00Z"
}

// TemporalRange formats a start/end date pair as a CMR temporal parameter.
func TemporalRange(start, end time.Time) string {
	return start.UTC().Format("2006-01-02T15:04:05Z") + "," + end.UTC().Format("2006-01-02T15:04:05Z")
}

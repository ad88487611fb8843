package geo

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePolygonWKT parses a WKT polygon of the form produced by granule
// global attributes:
//
//	POLYGON((lon1 lat1, lon2 lat2, ..., lon1 lat1))
//
// Only the outer ring is supported; holes do not occur in granule bounds.
func ParsePolygonWKT(s string) ([]Point, error) {
	trimmed := strings.TrimSpace(s)
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "POLYGON") {
		return nil, fmt.Errorf("not a POLYGON: %q", s)
	}
	open := strings.Index(trimmed, "((")
	end := strings.LastIndex(trimmed, "))")
	if open == -1 || end == -1 || end < open {
		return nil, fmt.Errorf("malformed POLYGON: %q", s)
	}

	inner := trimmed[open+2 : end]
	pairs := strings.Split(inner, ",")
	points := make([]Point, 0, len(pairs))
	for _, pair := range pairs {
		fields := strings.Fields(pair)
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed coordinate pair %q in POLYGON", pair)
		}
		lon, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parse longitude %q: %w", fields[0], err)
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse latitude %q: %w", fields[1], err)
		}
		points = append(points, Point{Lon: lon, Lat: lat})
	}
	if len(points) < 4 {
		return nil, fmt.Errorf("POLYGON ring has %d points, need at least 4", len(points))
	}
	return points, nil
}

// ParseCMRPolygon parses a CMR granule polygon string: whitespace-separated
// lat lon pairs ("lat1 lon1 lat2 lon2 ..."). Note the lat-first order, the
// reverse of WKT.
func ParseCMRPolygon(s string) ([]Point, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty polygon string")
	}
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("odd coordinate count %d in polygon string", len(fields))
	}
	points := make([]Point, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		lat, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, fmt.Errorf("parse latitude %q: %w", fields[i], err)
		}
		lon, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse longitude %q: %w", fields[i+1], err)
		}
		points = append(points, Point{Lon: lon, Lat: lat})
	}
	return points, nil
}

package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// GeoBox is a latitude/longitude bounding box in degrees.
// Longitudes follow the granule convention of -180..180 (values up to 360
// are accepted for missions that publish 0..360 bounds).
type GeoBox struct {
	LatMin float64 `yaml:"lat_min"`
	LatMax float64 `yaml:"lat_max"`
	LonMin float64 `yaml:"lon_min"`
	LonMax float64 `yaml:"lon_max"`
}

// Global covers the whole Earth.
func Global() GeoBox {
	return GeoBox{LatMin: -90, LatMax: 90, LonMin: -180, LonMax: 180}
}

// Validate checks that the box is well-formed and within range.
func (b GeoBox) Validate() error {
	if b.LatMin < -90 || b.LatMax > 90 {
		return fmt.Errorf("latitude out of range: [%g, %g]", b.LatMin, b.LatMax)
	}
	if b.LatMin > b.LatMax {
		return fmt.Errorf("lat_min %g exceeds lat_max %g", b.LatMin, b.LatMax)
	}
	if b.LonMin < -180 || b.LonMax > 360 {
		return fmt.Errorf("longitude out of range: [%g, %g]", b.LonMin, b.LonMax)
	}
	if b.LonMin > b.LonMax {
		return fmt.Errorf("lon_min %g exceeds lon_max %g", b.LonMin, b.LonMax)
	}
	return nil
}

// BoundingBoxParam encodes the box as the CMR "bounding_box" query value,
// ordered west,south,east,north.
func (b GeoBox) BoundingBoxParam() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.LonMin, b.LatMin, b.LonMax, b.LatMax)
}

// ParseBoundingBox parses a west,south,east,north string back into a GeoBox.
func ParseBoundingBox(s string) (GeoBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return GeoBox{}, fmt.Errorf("bounding box %q: want west,south,east,north", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return GeoBox{}, fmt.Errorf("bounding box %q: %w", s, err)
		}
		vals[i] = v
	}
	box := GeoBox{LonMin: vals[0], LatMin: vals[1], LonMax: vals[2], LatMax: vals[3]}
	if err := box.Validate(); err != nil {
		return GeoBox{}, err
	}
	return box, nil
}

// Contains reports whether the point lies inside the box (inclusive).
func (b GeoBox) Contains(lat, lon float64) bool {
	return lat >= b.LatMin && lat <= b.LatMax && lon >= b.LonMin && lon <= b.LonMax
}

// IsGlobal reports whether the box covers the full globe.
func (b GeoBox) IsGlobal() bool {
	return b.LatMin <= -90 && b.LatMax >= 90 && b.LonMax-b.LonMin >= 360
}

func (b GeoBox) String() string {
	return fmt.Sprintf("GeoBox(lat [%g, %g], lon [%g, %g])", b.LatMin, b.LatMax, b.LonMin, b.LonMax)
}

// Point is a single lon/lat vertex in degrees.
type Point struct {
	Lon float64
	Lat float64
}

// BoundingBox returns the smallest GeoBox enclosing the points.
// Returns the zero box for an empty slice.
func BoundingBox(points []Point) GeoBox {
	if len(points) == 0 {
		return GeoBox{}
	}
	box := GeoBox{
		LatMin: math.Inf(1), LatMax: math.Inf(-1),
		LonMin: math.Inf(1), LonMax: math.Inf(-1),
	}
	for _, p := range points {
		box.LatMin = math.Min(box.LatMin, p.Lat)
		box.LatMax = math.Max(box.LatMax, p.Lat)
		box.LonMin = math.Min(box.LonMin, p.Lon)
		box.LonMax = math.Max(box.LonMax, p.Lon)
	}
	return box
}

// Package oci reads PACE Ocean Color Instrument L1B granules and composes
// perceptually weighted false-color images from them.
package oci

import (
	"fmt"
	"math"

	"github.com/chengcli/qkun/internal/geo"
)

// Required netCDF groups in an OCI L1B granule.
const (
	GroupBandParams  = "sensor_band_parameters"
	GroupObservation = "observation_data"
	GroupGeolocation = "geolocation_data"
)

// Band names of the OCI hyperspectral focal planes used for false color.
const (
	BandBlue = "blue"
	BandRed  = "red"
)

// Spectrum holds a focal plane's band centers and solar irradiance values.
type Spectrum struct {
	Wavelengths []float64 // nm
	Irradiance  []float64 // W m^-2 um^-1
}

// Validate checks the two arrays line up.
func (s Spectrum) Validate() error {
	if len(s.Wavelengths) == 0 {
		return fmt.Errorf("spectrum has no bands")
	}
	if len(s.Wavelengths) != len(s.Irradiance) {
		return fmt.Errorf("spectrum has %d wavelengths but %d irradiance values",
			len(s.Wavelengths), len(s.Irradiance))
	}
	return nil
}

// Cube is a bands × scans × pixels reflectance array. Fill values are NaN.
type Cube struct {
	Bands int
	Rows  int
	Cols  int
	Data  []float64 // band-major: [band][row][col]
}

// NewCube allocates a zeroed cube.
func NewCube(bands, rows, cols int) *Cube {
	return &Cube{Bands: bands, Rows: rows, Cols: cols, Data: make([]float64, bands*rows*cols)}
}

// At returns the value at (band, row, col).
func (c *Cube) At(band, row, col int) float64 {
	return c.Data[(band*c.Rows+row)*c.Cols+col]
}

// Set stores a value at (band, row, col).
func (c *Cube) Set(band, row, col int, v float64) {
	c.Data[(band*c.Rows+row)*c.Cols+col] = v
}

// Subsample keeps every step-th row and column. Step 1 returns the cube
// unchanged.
func (c *Cube) Subsample(step int) *Cube {
	if step <= 1 {
		return c
	}
	rows := (c.Rows + step - 1) / step
	cols := (c.Cols + step - 1) / step
	out := NewCube(c.Bands, rows, cols)
	for b := 0; b < c.Bands; b++ {
		for r := 0; r < rows; r++ {
			for cl := 0; cl < cols; cl++ {
				out.Set(b, r, cl, c.At(b, r*step, cl*step))
			}
		}
	}
	return out
}

// Grid is a scans × pixels array of geolocation values. Fill values are NaN.
type Grid struct {
	Rows int
	Cols int
	Data []float64
}

// NewGrid allocates a zeroed grid.
func NewGrid(rows, cols int) *Grid {
	return &Grid{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// At returns the value at (row, col).
func (g *Grid) At(row, col int) float64 {
	return g.Data[row*g.Cols+col]
}

// Set stores a value at (row, col).
func (g *Grid) Set(row, col int, v float64) {
	g.Data[row*g.Cols+col] = v
}

// Subsample keeps every step-th row and column.
func (g *Grid) Subsample(step int) *Grid {
	if step <= 1 {
		return g
	}
	rows := (g.Rows + step - 1) / step
	cols := (g.Cols + step - 1) / step
	out := NewGrid(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out.Set(r, c, g.At(r*step, c*step))
		}
	}
	return out
}

// Range returns the min and max of the grid's valid values.
func (g *Grid) Range() (min, max float64, err error) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range g.Data {
		if math.IsNaN(v) {
			continue
		}
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	if min > max {
		return 0, 0, fmt.Errorf("grid has no valid values")
	}
	return min, max, nil
}

// SwathBounds derives the GeoBox covered by a latitude and longitude grid pair.
func SwathBounds(lat, lon *Grid) (geo.GeoBox, error) {
	latMin, latMax, err := lat.Range()
	if err != nil {
		return geo.GeoBox{}, fmt.Errorf("latitude: %w", err)
	}
	lonMin, lonMax, err := lon.Range()
	if err != nil {
		return geo.GeoBox{}, fmt.Errorf("longitude: %w", err)
	}
	return geo.GeoBox{LatMin: latMin, LatMax: latMax, LonMin: lonMin, LonMax: lonMax}, nil
}

// BoundsWKT renders a GeoBox as the POLYGON form used in granule global
// attributes, counter-clockwise from the south-west corner.
func BoundsWKT(b geo.GeoBox) string {
	return fmt.Sprintf("POLYGON((%g %g, %g %g, %g %g, %g %g, %g %g))",
		b.LonMin, b.LatMin,
		b.LonMax, b.LatMin,
		b.LonMax, b.LatMax,
		b.LonMin, b.LatMax,
		b.LonMin, b.LatMin)
}

// Reader provides access to the parts of an OCI granule the false-color
// pipeline needs. Implemented by FileReader for real granules and by test
// fakes.
type Reader interface {
	// Spectrum returns band centers and solar irradiance for a focal plane.
	Spectrum(band string) (Spectrum, error)

	// Reflectance returns the top-of-atmosphere reflectance cube for a
	// focal plane.
	Reflectance(band string) (*Cube, error)

	// Geolocation returns the latitude and longitude grids.
	Geolocation() (lat, lon *Grid, err error)

	Close() error
}

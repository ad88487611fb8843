package oci

import (
	"fmt"
	"math"
	"sort"
)

// Percentile clips for the contrast stretch. The enhanced stretch clips
// harder and applies a gamma lift for dark ocean scenes.
const (
	enhancedLowPct  = 1.0
	enhancedHighPct = 99.0
	enhancedGamma   = 0.6

	plainLowPct  = 2.0
	plainHighPct = 98.0
)

// Options controls false-color composition.
type Options struct {
	// Subsample keeps every n-th scan and pixel. 0 or 1 reads full
	// resolution.
	Subsample int

	// Enhance selects the harder percentile clip with gamma correction.
	Enhance bool
}

// Image is a false-color composite with channel values in [0,1].
// Pixels without valid data are NaN in all three channels.
type Image struct {
	Rows int
	Cols int
	R    []float64
	G    []float64
	B    []float64
}

// NewImage allocates an image of the given shape.
func NewImage(rows, cols int) *Image {
	n := rows * cols
	return &Image{Rows: rows, Cols: cols, R: make([]float64, n), G: make([]float64, n), B: make([]float64, n)}
}

// FalseColor reads the blue and red focal planes from r and composes a
// false-color image: each plane is collapsed to one channel with
// perception-and-irradiance weights, green is synthesized as the mean of
// the two, and all channels are percentile-stretched into [0,1]. Returns
// the image together with the (equally subsampled) geolocation grids.
func FalseColor(r Reader, opts Options) (*Image, *Grid, *Grid, error) {
	red, err := channel(r, BandRed, opts.Subsample)
	if err != nil {
		return nil, nil, nil, err
	}
	blue, err := channel(r, BandBlue, opts.Subsample)
	if err != nil {
		return nil, nil, nil, err
	}
	if red.Rows != blue.Rows || red.Cols != blue.Cols {
		return nil, nil, nil, fmt.Errorf("focal plane shapes differ: red %dx%d, blue %dx%d",
			red.Rows, red.Cols, blue.Rows, blue.Cols)
	}

	lat, lon, err := r.Geolocation()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read geolocation: %w", err)
	}
	lat = lat.Subsample(opts.Subsample)
	lon = lon.Subsample(opts.Subsample)
	if lat.Rows != red.Rows || lat.Cols != red.Cols {
		return nil, nil, nil, fmt.Errorf("geolocation shape %dx%d does not match swath %dx%d",
			lat.Rows, lat.Cols, red.Rows, red.Cols)
	}

	img := NewImage(red.Rows, red.Cols)
	copy(img.R, red.Data)
	copy(img.B, blue.Data)
	for i := range img.G {
		img.G[i] = (img.R[i] + img.B[i]) / 2
	}

	low, high, gamma := plainLowPct, plainHighPct, 1.0
	if opts.Enhance {
		low, high, gamma = enhancedLowPct, enhancedHighPct, enhancedGamma
	}
	for _, ch := range [][]float64{img.R, img.G, img.B} {
		if err := stretch(ch, low, high, gamma); err != nil {
			return nil, nil, nil, err
		}
	}
	return img, lat, lon, nil
}

// channel collapses one focal plane's reflectance cube to a single grid
// using the plane's combined weights.
func channel(r Reader, band string, subsample int) (*Grid, error) {
	spec, err := r.Spectrum(band)
	if err != nil {
		return nil, fmt.Errorf("read %s spectrum: %w", band, err)
	}
	weights, err := CombineWeights(spec)
	if err != nil {
		return nil, fmt.Errorf("%s weights: %w", band, err)
	}

	cube, err := r.Reflectance(band)
	if err != nil {
		return nil, fmt.Errorf("read %s reflectance: %w", band, err)
	}
	if cube.Bands != len(weights) {
		return nil, fmt.Errorf("%s has %d bands but %d weights", band, cube.Bands, len(weights))
	}
	cube = cube.Subsample(subsample)

	return collapse(cube, weights), nil
}

// collapse computes the weighted sum over the band axis. A pixel becomes
// NaN when any contributing band is fill.
func collapse(c *Cube, weights []float64) *Grid {
	out := NewGrid(c.Rows, c.Cols)
	for r := 0; r < c.Rows; r++ {
		for cl := 0; cl < c.Cols; cl++ {
			var sum float64
			for b := 0; b < c.Bands; b++ {
				sum += weights[b] * c.At(b, r, cl)
			}
			out.Set(r, cl, sum)
		}
	}
	return out
}

// stretch rescales a channel in place so the low and high percentiles of
// its valid values map to 0 and 1, clipping outside and applying the gamma
// exponent. NaN pixels stay NaN.
func stretch(ch []float64, lowPct, highPct, gamma float64) error {
	valid := make([]float64, 0, len(ch))
	for _, v := range ch {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return fmt.Errorf("channel has no valid pixels")
	}
	sort.Float64s(valid)

	lo := percentile(valid, lowPct)
	hi := percentile(valid, highPct)
	span := hi - lo
	for i, v := range ch {
		if math.IsNaN(v) {
			continue
		}
		var scaled float64
		if span > 0 {
			scaled = (v - lo) / span
		}
		scaled = math.Max(0, math.Min(1, scaled))
		if gamma != 1.0 {
			scaled = math.Pow(scaled, gamma)
		}
		ch[i] = scaled
	}
	return nil
}

// percentile interpolates linearly between the two nearest ranks of a
// sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

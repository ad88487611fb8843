package oci

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/chengcli/qkun/internal/geo"
)

// ToRGBA renders the composite in swath geometry, one pixel per sample.
// Invalid pixels are fully transparent.
func (im *Image) ToRGBA() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, im.Cols, im.Rows))
	for r := 0; r < im.Rows; r++ {
		for c := 0; c < im.Cols; c++ {
			i := r*im.Cols + c
			out.SetRGBA(c, r, toRGBA(im.R[i], im.G[i], im.B[i]))
		}
	}
	return out
}

// ProjectPlateCarree bins the swath onto a regular lat/lon grid of the
// given pixel width using nearest-neighbor placement. Height follows from
// the swath's aspect ratio. Grid cells no sample lands in stay transparent.
func (im *Image) ProjectPlateCarree(lat, lon *Grid, width int) (*image.RGBA, geo.GeoBox, error) {
	if width <= 0 {
		return nil, geo.GeoBox{}, fmt.Errorf("projection width must be positive, got %d", width)
	}
	if lat.Rows != im.Rows || lat.Cols != im.Cols {
		return nil, geo.GeoBox{}, fmt.Errorf("geolocation shape %dx%d does not match image %dx%d",
			lat.Rows, lat.Cols, im.Rows, im.Cols)
	}

	bounds, err := SwathBounds(lat, lon)
	if err != nil {
		return nil, geo.GeoBox{}, err
	}
	lonSpan := bounds.LonMax - bounds.LonMin
	latSpan := bounds.LatMax - bounds.LatMin
	if lonSpan <= 0 || latSpan <= 0 {
		return nil, geo.GeoBox{}, fmt.Errorf("degenerate swath bounds %s", bounds)
	}

	height := int(math.Round(float64(width) * latSpan / lonSpan))
	if height < 1 {
		height = 1
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for r := 0; r < im.Rows; r++ {
		for c := 0; c < im.Cols; c++ {
			i := r*im.Cols + c
			la, lo := lat.Data[i], lon.Data[i]
			if math.IsNaN(la) || math.IsNaN(lo) || math.IsNaN(im.R[i]) {
				continue
			}
			x := int((lo - bounds.LonMin) / lonSpan * float64(width-1))
			// Latitude increases upward, image rows increase downward.
			y := int((bounds.LatMax - la) / latSpan * float64(height-1))
			out.SetRGBA(x, y, toRGBA(im.R[i], im.G[i], im.B[i]))
		}
	}
	return out, bounds, nil
}

// WritePNG encodes img into path.
func WritePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close image file: %w", err)
	}
	return nil
}

func toRGBA(r, g, b float64) color.RGBA {
	if math.IsNaN(r) || math.IsNaN(g) || math.IsNaN(b) {
		return color.RGBA{}
	}
	return color.RGBA{R: to8(r), G: to8(g), B: to8(b), A: 0xff}
}

func to8(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

package oci

import (
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRGBA(t *testing.T) {
	img := NewImage(1, 3)
	img.R[0], img.G[0], img.B[0] = 1, 0.5, 0
	img.R[1], img.G[1], img.B[1] = math.NaN(), math.NaN(), math.NaN()
	img.R[2], img.G[2], img.B[2] = 0, 0, 0

	out := img.ToRGBA()
	assert.Equal(t, 3, out.Bounds().Dx())
	assert.Equal(t, 1, out.Bounds().Dy())

	c := out.RGBAAt(0, 0)
	assert.Equal(t, uint8(255), c.R)
	assert.Equal(t, uint8(128), c.G)
	assert.Equal(t, uint8(0), c.B)
	assert.Equal(t, uint8(255), c.A)

	assert.Equal(t, uint8(0), out.RGBAAt(1, 0).A, "invalid pixel should be transparent")
	assert.Equal(t, uint8(255), out.RGBAAt(2, 0).A)
}

func TestProjectPlateCarree(t *testing.T) {
	r := newFakeGranule(3, 4)
	img, lat, lon, err := FalseColor(r, Options{})
	require.NoError(t, err)

	out, bounds, err := img.ProjectPlateCarree(lat, lon, 30)
	require.NoError(t, err)

	// 2 degrees of latitude over 3 of longitude.
	assert.Equal(t, 30, out.Bounds().Dx())
	assert.Equal(t, 20, out.Bounds().Dy())
	assert.Equal(t, 40.0, bounds.LatMin)
	assert.Equal(t, -7.0, bounds.LonMax)

	// North-west swath corner lands in the top-left projected pixel.
	assert.Equal(t, uint8(255), out.RGBAAt(0, 19).A, "south-west corner should be populated")
	assert.Equal(t, uint8(255), out.RGBAAt(29, 0).A, "north-east corner should be populated")
}

func TestProjectPlateCarree_Errors(t *testing.T) {
	r := newFakeGranule(2, 2)
	img, lat, lon, err := FalseColor(r, Options{})
	require.NoError(t, err)

	_, _, err = img.ProjectPlateCarree(lat, lon, 0)
	assert.Error(t, err)

	_, _, err = img.ProjectPlateCarree(NewGrid(5, 5), NewGrid(5, 5), 10)
	assert.Error(t, err)
}

func TestWritePNG(t *testing.T) {
	img := NewImage(2, 2)
	for i := range img.R {
		img.R[i], img.G[i], img.B[i] = 0.2, 0.4, 0.8
	}

	path := filepath.Join(t.TempDir(), "falsecolor.png")
	require.NoError(t, WritePNG(path, img.ToRGBA()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 2, decoded.Bounds().Dx())
}

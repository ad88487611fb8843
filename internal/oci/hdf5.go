package oci

import (
	"fmt"
	"math"

	"gonum.org/v1/hdf5"
)

// OCI L1B stores fill as -32767; anything at or below this threshold is
// treated as invalid.
const fillThreshold = -32000.0

// FileReader reads OCI L1B granules. netCDF4 files are HDF5 files, so the
// groups and datasets are addressed directly through the HDF5 library.
type FileReader struct {
	f *hdf5.File
}

var _ Reader = (*FileReader)(nil)

// Open opens a granule file read-only.
func Open(path string) (*FileReader, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("open granule %s: %w", path, err)
	}
	return &FileReader{f: f}, nil
}

// Close releases the underlying file.
func (r *FileReader) Close() error {
	return r.f.Close()
}

// Validate checks the granule carries the groups the false-color pipeline
// needs.
func (r *FileReader) Validate() error {
	for _, name := range []string{GroupBandParams, GroupObservation, GroupGeolocation} {
		g, err := r.f.OpenGroup(name)
		if err != nil {
			return fmt.Errorf("granule is missing group %s: %w", name, err)
		}
		g.Close()
	}
	return nil
}

// Spectrum reads a focal plane's band centers and solar irradiance from
// sensor_band_parameters.
func (r *FileReader) Spectrum(band string) (Spectrum, error) {
	wl, _, err := r.read1D(GroupBandParams, band+"_wavelength")
	if err != nil {
		return Spectrum{}, err
	}
	irr, _, err := r.read1D(GroupBandParams, band+"_solar_irradiance")
	if err != nil {
		return Spectrum{}, err
	}
	s := Spectrum{Wavelengths: wl, Irradiance: irr}
	if err := s.Validate(); err != nil {
		return Spectrum{}, fmt.Errorf("%s spectrum: %w", band, err)
	}
	return s, nil
}

// Reflectance reads a focal plane's rhot cube from observation_data.
// Fill values become NaN.
func (r *FileReader) Reflectance(band string) (*Cube, error) {
	data, dims, err := r.readDataset(GroupObservation, "rhot_"+band)
	if err != nil {
		return nil, err
	}
	if len(dims) != 3 {
		return nil, fmt.Errorf("rhot_%s has %d dimensions, want 3", band, len(dims))
	}
	maskFill(data)
	return &Cube{
		Bands: int(dims[0]),
		Rows:  int(dims[1]),
		Cols:  int(dims[2]),
		Data:  data,
	}, nil
}

// Geolocation reads the latitude and longitude grids from geolocation_data.
func (r *FileReader) Geolocation() (*Grid, *Grid, error) {
	lat, err := r.read2D(GroupGeolocation, "latitude")
	if err != nil {
		return nil, nil, err
	}
	lon, err := r.read2D(GroupGeolocation, "longitude")
	if err != nil {
		return nil, nil, err
	}
	if lat.Rows != lon.Rows || lat.Cols != lon.Cols {
		return nil, nil, fmt.Errorf("latitude %dx%d and longitude %dx%d shapes differ",
			lat.Rows, lat.Cols, lon.Rows, lon.Cols)
	}
	return lat, lon, nil
}

func (r *FileReader) read1D(group, name string) ([]float64, []uint, error) {
	data, dims, err := r.readDataset(group, name)
	if err != nil {
		return nil, nil, err
	}
	if len(dims) != 1 {
		return nil, nil, fmt.Errorf("%s/%s has %d dimensions, want 1", group, name, len(dims))
	}
	return data, dims, nil
}

func (r *FileReader) read2D(group, name string) (*Grid, error) {
	data, dims, err := r.readDataset(group, name)
	if err != nil {
		return nil, err
	}
	if len(dims) != 2 {
		return nil, fmt.Errorf("%s/%s has %d dimensions, want 2", group, name, len(dims))
	}
	maskFill(data)
	return &Grid{Rows: int(dims[0]), Cols: int(dims[1]), Data: data}, nil
}

// readDataset loads an entire dataset as float64, letting the HDF5 library
// convert from the on-disk type.
func (r *FileReader) readDataset(group, name string) ([]float64, []uint, error) {
	g, err := r.f.OpenGroup(group)
	if err != nil {
		return nil, nil, fmt.Errorf("open group %s: %w", group, err)
	}
	defer g.Close()

	ds, err := g.OpenDataset(name)
	if err != nil {
		return nil, nil, fmt.Errorf("open dataset %s/%s: %w", group, name, err)
	}
	defer ds.Close()

	space := ds.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, nil, fmt.Errorf("dataset %s/%s extent: %w", group, name, err)
	}

	n := uint(1)
	for _, d := range dims {
		n *= d
	}
	data := make([]float64, n)
	if err := ds.Read(&data); err != nil {
		return nil, nil, fmt.Errorf("read dataset %s/%s: %w", group, name, err)
	}
	return data, dims, nil
}

func maskFill(data []float64) {
	for i, v := range data {
		if v <= fillThreshold {
			data[i] = math.NaN()
		}
	}
}

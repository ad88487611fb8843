package oci

import (
	"fmt"
	"math"
)

// Photopic sensitivity model: a Gaussian centered on the eye's peak
// daylight response.
const (
	perceptionPeakNM  = 555.0
	perceptionSigmaNM = 50.0
)

// PerceptionWeights returns per-band weights approximating human photopic
// sensitivity at the given band centers, normalized to sum to 1. When every
// wavelength is so far from the peak that the weights underflow, the bands
// are weighted uniformly instead.
func PerceptionWeights(wavelengths []float64) []float64 {
	w := make([]float64, len(wavelengths))
	var sum float64
	for i, nm := range wavelengths {
		d := (nm - perceptionPeakNM) / perceptionSigmaNM
		w[i] = math.Exp(-0.5 * d * d)
		sum += w[i]
	}
	if sum <= 0 || math.IsNaN(sum) {
		uniform := 1.0 / float64(len(w))
		for i := range w {
			w[i] = uniform
		}
		return w
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// CombineWeights folds solar irradiance into the perception weights and
// renormalizes, so bright solar bands contribute proportionally more.
func CombineWeights(s Spectrum) ([]float64, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	w := PerceptionWeights(s.Wavelengths)
	var sum float64
	for i := range w {
		w[i] *= s.Irradiance[i]
		sum += w[i]
	}
	if sum <= 0 || math.IsNaN(sum) {
		return nil, fmt.Errorf("combined weights sum to %g", sum)
	}
	for i := range w {
		w[i] /= sum
	}
	return w, nil
}

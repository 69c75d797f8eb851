package dsp

import (
	"fmt"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// SpectralEstimator keeps an exponentially blended FFT magnitude per
// channel over the most recent Size samples of the window.
type SpectralEstimator struct {
	size   int
	fs     float64
	beta   float64
	freqs  []float64
	blends [][]float64
}

// NewSpectralEstimator creates an estimator of size points with blend
// factor beta (the weight of the previous estimate).
func NewSpectralEstimator(channels, size int, fs, beta float64) (*SpectralEstimator, error) {
	if size < 4 {
		return nil, fmt.Errorf("spectrum size %d too small", size)
	}
	if beta < 0 || beta > 1 {
		return nil, &ConfigRejected{Field: "spectrum_smoothing", Value: beta, Reason: "must be within [0, 1]"}
	}
	s := &SpectralEstimator{
		size:   size,
		fs:     fs,
		beta:   beta,
		freqs:  make([]float64, size),
		blends: make([][]float64, channels),
	}
	for i := range s.freqs {
		s.freqs[i] = float64(i) * fs / float64(size-1)
	}
	for ch := range s.blends {
		s.blends[ch] = make([]float64, size)
	}
	return s, nil
}

// Size returns the FFT length
func (s *SpectralEstimator) Size() int { return s.size }

// Reset zeroes every channel's blended estimate
func (s *SpectralEstimator) Reset() {
	for ch := range s.blends {
		for i := range s.blends[ch] {
			s.blends[ch][i] = 0
		}
	}
}

// Update blends a new transform of window into a channel's estimate. The
// segment ends one sample before the newest sample of window.
func (s *SpectralEstimator) Update(ch int, window []float64) error {
	if len(window) < s.size+1 {
		return fmt.Errorf("window of %d samples shorter than spectrum size %d", len(window), s.size+1)
	}
	end := len(window) - 1
	segment := window[end-s.size : end]

	bins := fft.FFTReal(segment)
	prev := s.blends[ch]
	n := float64(s.size)
	for i, c := range bins {
		y := cmplx.Abs(c) / n
		prev[i] = (1-s.beta)*y + s.beta*prev[i]
	}
	return nil
}

// Full returns a copy of a channel's whole estimate and its frequency axis
func (s *SpectralEstimator) Full(ch int) (freqs, mags []float64) {
	return append([]float64(nil), s.freqs...), append([]float64(nil), s.blends[ch]...)
}

// Spectrum returns the displayed part of a channel's estimate, bins
// [2, Size/2), skipping DC and the first bin.
func (s *SpectralEstimator) Spectrum(ch int) (freqs, mags []float64) {
	lo, hi := 2, s.size/2
	return append([]float64(nil), s.freqs[lo:hi]...), append([]float64(nil), s.blends[ch][lo:hi]...)
}

package session

import (
	"fmt"
	"math"

	"myostack-collector/internal/dsp"
)

// visibleStart is the first displayed sample of the window. Before the
// window has filled once it is where real data begins.
func (s *Session) visibleStart() int {
	filled := s.buf.Filled()
	if filled >= s.dataWidth {
		return 0
	}
	return s.dataWidth - filled
}

// suppressed returns a copy of series with the filter start-up region
// flattened while the window has not yet filled once
func (s *Session) suppressed(series []float64) []float64 {
	out := append([]float64(nil), series...)
	dsp.SuppressTransient(out, s.buf.Filled(), s.tailSamples, s.filters.TransientActive())
	return out
}

func (s *Session) checkChannel(ch int) error {
	if ch < 0 || ch >= s.opts.Channels {
		return fmt.Errorf("channel %d outside 0..%d", ch, s.opts.Channels-1)
	}
	return nil
}

// VisibleStart returns the first displayed index of the window
func (s *Session) VisibleStart() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleStart()
}

// GetRawSeries returns a channel's filtered window in time order
func (s *Session) GetRawSeries(ch int) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkChannel(ch); err != nil {
		return nil, err
	}
	return s.suppressed(s.filtered[ch]), nil
}

// GetEnvelopeSeries returns a channel's envelope window, index-aligned
// with GetRawSeries
func (s *Session) GetEnvelopeSeries(ch int) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkChannel(ch); err != nil {
		return nil, err
	}
	return s.suppressed(s.envelope.Series(ch)), nil
}

// GetSpectrum returns the displayed frequency axis and smoothed magnitude
// of a channel
func (s *Session) GetSpectrum(ch int) (freqs, mags []float64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkChannel(ch); err != nil {
		return nil, nil, err
	}
	freqs, mags = s.spectral.Spectrum(ch)
	return freqs, mags, nil
}

// GetFullSpectrum returns all N bins of a channel's estimate
func (s *Session) GetFullSpectrum(ch int) (freqs, mags []float64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkChannel(ch); err != nil {
		return nil, nil, err
	}
	freqs, mags = s.spectral.Full(ch)
	return freqs, mags, nil
}

// GetActivationLevels returns twice the newest envelope value per channel
func (s *Session) GetActivationLevels() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	levels := make([]float64, s.opts.Channels)
	for ch := range levels {
		levels[ch] = 2 * s.envelope.Latest(ch)
	}
	return levels
}

// GetTimeSeries returns the window timestamps in time order
func (s *Session) GetTimeSeries() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.UnrolledTimes(0)
}

// GetViewRange returns the plot range of width seconds that contains the
// newest timestamp
func (s *Session) GetViewRange(width float64) (lo, hi float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if width <= 0 {
		width = s.params.WindowSeconds
	}
	page := math.Floor(s.buf.LastTimestamp() / width)
	return width * page, width * (page + 1)
}

// Total returns the rows appended since the last reset
func (s *Session) Total() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Total()
}

// EnvelopeState exposes a channel's detector memory
func (s *Session) EnvelopeState(ch int) dsp.EnvelopeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.envelope.State(ch)
}

// Cursor returns the ring buffer write position
func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Cursor()
}

// LastTimestamp returns the timestamp of the newest row
func (s *Session) LastTimestamp() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.LastTimestamp()
}

// UnscaledRow returns the raw codes of the k-th newest row
func (s *Session) UnscaledRow(k int) []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Row(k)
}

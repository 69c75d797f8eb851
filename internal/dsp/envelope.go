package dsp

import "math"

// DefaultSmoothing is the default EMA factor of the envelope detector
const DefaultSmoothing = 0.95

// EnvelopeState is the per-channel memory of the envelope detector
type EnvelopeState struct {
	X0 float64    // last high-pass input
	Y0 float64    // last high-pass output
	MA [3]float64 // cascaded EMA accumulators
}

// EnvelopeDetector tracks muscle activation: a first-order 1 Hz high-pass,
// full-wave rectification, and three cascaded exponential moving averages.
type EnvelopeDetector struct {
	fs     float64
	wa     float64
	alpha  float64
	states []EnvelopeState
	series [][]float64
}

// NewEnvelopeDetector creates a detector for channels with a window of
// width samples at sample rate fs.
func NewEnvelopeDetector(channels, width int, fs float64) *EnvelopeDetector {
	e := &EnvelopeDetector{
		fs:     fs,
		wa:     2 * fs * math.Tan(math.Pi/fs),
		alpha:  DefaultSmoothing,
		states: make([]EnvelopeState, channels),
		series: make([][]float64, channels),
	}
	for ch := range e.series {
		e.series[ch] = make([]float64, width)
	}
	return e
}

// Smoothing returns the current EMA factor
func (e *EnvelopeDetector) Smoothing() float64 {
	return e.alpha
}

// SetSmoothing changes the EMA factor. Values outside [0, 1] are rejected
// and the previous factor is kept.
func (e *EnvelopeDetector) SetSmoothing(alpha float64) error {
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return &ConfigRejected{Field: "envelope_smoothing", Value: alpha, Reason: "must be within [0, 1]"}
	}
	e.alpha = alpha
	return nil
}

// State returns a copy of a channel's detector memory
func (e *EnvelopeDetector) State(ch int) EnvelopeState {
	return e.states[ch]
}

// Step feeds one sample of a channel and returns the envelope value
func (e *EnvelopeDetector) Step(ch int, x float64) float64 {
	s := &e.states[ch]
	fs2 := 2 * e.fs
	y := (fs2*(x-s.X0) - (e.wa-fs2)*s.Y0) / (fs2 + e.wa)
	s.X0 = x
	s.Y0 = y

	y = math.Abs(y)
	a := e.alpha
	s.MA[0] = (1-a)*y + a*s.MA[0]
	s.MA[1] = (1-a)*s.MA[0] + a*s.MA[1]
	s.MA[2] = (1-a)*s.MA[1] + a*s.MA[2]
	return 2 * s.MA[2]
}

// Update shifts a channel's envelope series left by newCount and computes
// the newest newCount positions from the matching tail of window, keeping
// the series index-aligned with the ring buffer.
func (e *EnvelopeDetector) Update(ch int, window []float64, newCount int) {
	series := e.series[ch]
	width := len(series)
	if newCount <= 0 {
		return
	}
	if newCount > width {
		newCount = width
	}
	copy(series, series[newCount:])

	offset := len(window) - width
	for j := width - newCount; j < width; j++ {
		series[j] = e.Step(ch, window[offset+j])
	}
}

// Series returns a copy of a channel's envelope window
func (e *EnvelopeDetector) Series(ch int) []float64 {
	return append([]float64(nil), e.series[ch]...)
}

// Latest returns the newest envelope value of a channel
func (e *EnvelopeDetector) Latest(ch int) float64 {
	s := e.series[ch]
	return s[len(s)-1]
}

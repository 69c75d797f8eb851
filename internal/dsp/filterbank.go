package dsp

import (
	"math"

	"go.uber.org/multierr"
)

const (
	bandpassOrder = 4
	notchOrder    = 4

	// notchMargin is added to twice a notch's upper edge when deciding
	// whether the sample rate can carry that harmonic.
	notchMargin = 6.0
)

// FilterConfig is the operator-facing filter selection
type FilterConfig struct {
	BandpassEnabled bool    `mapstructure:"bandpass_enabled" yaml:"bandpass_enabled"`
	LowCut          float64 `mapstructure:"low_cut" yaml:"low_cut"`   // band-pass lower edge (Hz)
	HighCut         float64 `mapstructure:"high_cut" yaml:"high_cut"` // band-pass upper edge (Hz)
	Notch50         bool    `mapstructure:"notch_50" yaml:"notch_50"`
	Notch60         bool    `mapstructure:"notch_60" yaml:"notch_60"`
	ShowSignal      bool    `mapstructure:"show_signal" yaml:"show_signal"`
	ShowEnvelope    bool    `mapstructure:"show_envelope" yaml:"show_envelope"`
	Smoothing       float64 `mapstructure:"envelope_smoothing" yaml:"envelope_smoothing"`
}

// DefaultFilterConfig mirrors the acquisition GUI start-up state
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		LowCut:     10,
		HighCut:    200,
		ShowSignal: true,
		Smoothing:  DefaultSmoothing,
	}
}

// Band is one notch stage
type Band struct {
	Low, High float64
}

// NotchBands lists the harmonic stop bands of a mains fundamental that the
// sample rate can carry.
func NotchBands(fundamental, sampleRate float64) []Band {
	var bands []Band
	for h := 1; ; h++ {
		center := fundamental * float64(h)
		half := 2.0
		if h >= 4 {
			half = 5.0
		}
		if sampleRate <= 2*(center+half)+notchMargin {
			break
		}
		bands = append(bands, Band{Low: center - half, High: center + half})
	}
	return bands
}

// FilterBank applies band-pass and notch stages to a whole window
type FilterBank struct {
	fs       float64
	cfg      FilterConfig
	bandpass Cascade
	notches  []Cascade
	families int
}

// NewFilterBank creates a bank at sample rate fs with the default config
func NewFilterBank(fs float64) *FilterBank {
	fb := &FilterBank{fs: fs}
	fb.Configure(DefaultFilterConfig())
	return fb
}

// Config returns the active configuration
func (fb *FilterBank) Config() FilterConfig {
	return fb.cfg
}

// Configure validates and installs a configuration. Non-finite or negative
// cutoffs and smoothing outside [0, 1] are rejected field by field; the
// previous value of each rejected field is kept. The returned error lists
// every rejection (see multierr.Errors).
func (fb *FilterBank) Configure(cfg FilterConfig) error {
	var errs error
	next := cfg
	if !validCutoff(cfg.LowCut) {
		errs = multierr.Append(errs, &ConfigRejected{Field: "low_cut", Value: cfg.LowCut, Reason: "must be a non-negative number"})
		next.LowCut = fb.cfg.LowCut
	}
	if !validCutoff(cfg.HighCut) {
		errs = multierr.Append(errs, &ConfigRejected{Field: "high_cut", Value: cfg.HighCut, Reason: "must be a non-negative number"})
		next.HighCut = fb.cfg.HighCut
	}
	if math.IsNaN(cfg.Smoothing) || cfg.Smoothing < 0 || cfg.Smoothing > 1 {
		errs = multierr.Append(errs, &ConfigRejected{Field: "envelope_smoothing", Value: cfg.Smoothing, Reason: "must be within [0, 1]"})
		next.Smoothing = fb.cfg.Smoothing
	}
	fb.cfg = next
	fb.rebuild()
	return errs
}

func validCutoff(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func (fb *FilterBank) rebuild() {
	fb.bandpass = nil
	if fb.BandpassActive() {
		// Guarded above, so the design cannot fail.
		fb.bandpass, _ = ButterworthBandpass(bandpassOrder, fb.cfg.LowCut, fb.cfg.HighCut, fb.fs)
	}

	fb.notches = nil
	fb.families = 0
	for _, f := range fb.mainsFundamentals() {
		fb.families++
		for _, b := range NotchBands(f, fb.fs) {
			c, err := ButterworthBandstop(notchOrder, b.Low, b.High, fb.fs)
			if err != nil {
				continue
			}
			fb.notches = append(fb.notches, c)
		}
	}
}

func (fb *FilterBank) mainsFundamentals() []float64 {
	var out []float64
	if fb.cfg.Notch50 {
		out = append(out, 50)
	}
	if fb.cfg.Notch60 {
		out = append(out, 60)
	}
	return out
}

// BandpassRequested reports whether the operator wants band-pass filtering;
// it is also implied when both signal and envelope are plotted.
func (fb *FilterBank) BandpassRequested() bool {
	return fb.cfg.BandpassEnabled || (fb.cfg.ShowSignal && fb.cfg.ShowEnvelope)
}

// BandpassActive reports whether the band-pass stage will run: it must be
// requested, 0 < low < high, and the sample rate above 2*high.
func (fb *FilterBank) BandpassActive() bool {
	return fb.BandpassRequested() &&
		fb.cfg.LowCut > 0 && fb.cfg.LowCut < fb.cfg.HighCut &&
		fb.fs > 2*fb.cfg.HighCut
}

// NotchStages returns the number of band-stop stages in use
func (fb *FilterBank) NotchStages() int {
	return len(fb.notches)
}

// TransientActive reports whether any stage that produces a start-up
// transient is enabled (filters or the envelope view).
func (fb *FilterBank) TransientActive() bool {
	return fb.cfg.BandpassEnabled || fb.cfg.Notch50 || fb.cfg.Notch60 || fb.cfg.ShowEnvelope
}

// Apply runs the notch cascade then the band-pass over the window and
// returns the filtered copy. With nothing active the copy equals the input.
func (fb *FilterBank) Apply(window []float64) []float64 {
	out := append([]float64(nil), window...)
	for _, c := range fb.notches {
		out = c.Apply(out)
	}
	if fb.bandpass != nil {
		out = fb.bandpass.Apply(out)
	}
	return out
}

// SuggestedDelay is the listener pacing the acquisition GUI used for the
// current filter load.
func (fb *FilterBank) SuggestedDelay(base float64) float64 {
	d := base + 0.03*float64(fb.families)
	if fb.bandpass != nil {
		d += 0.04
	}
	if fb.cfg.ShowSignal && fb.cfg.ShowEnvelope {
		d += 0.02
	}
	return d
}

// SuppressTransient hides filter start-up transients while the window has
// not been filled once. filled is the number of real samples at the end of
// series and tail the transient length in samples. The leading transient
// region is flattened in place; the returned index is the first visible
// sample.
func SuppressTransient(series []float64, filled, tail int, active bool) int {
	width := len(series)
	if filled >= width {
		return 0
	}
	start := width - filled
	if !active || filled == 0 {
		return start
	}

	if filled > tail {
		v := series[start+tail]
		for i := 0; i < start+tail; i++ {
			series[i] = v
		}
		return start
	}
	v := series[start]
	for i := range series {
		series[i] = v
	}
	return start
}

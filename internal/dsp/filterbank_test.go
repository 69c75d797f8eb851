package dsp

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"go.uber.org/multierr"
)

func sine(freq, fs float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / fs)
	}
	return out
}

func maxAbs(x []float64) float64 {
	m := 0.0
	for _, v := range x {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

func TestNotchBands(t *testing.T) {
	bands := NotchBands(60, 500)
	if len(bands) != 4 {
		t.Fatalf("60 Hz at 500 Hz: %d bands, want 4 (%v)", len(bands), bands)
	}
	if bands[2] != (Band{Low: 178, High: 182}) {
		t.Errorf("third harmonic = %+v, want 178-182", bands[2])
	}
	if bands[3] != (Band{Low: 235, High: 245}) {
		t.Errorf("fourth harmonic = %+v, want 235-245", bands[3])
	}

	if got := len(NotchBands(50, 1000)); got != 9 {
		t.Errorf("50 Hz at 1000 Hz: %d bands, want 9", got)
	}
}

func TestFilterBankDefaultIsPassthrough(t *testing.T) {
	fb := NewFilterBank(500)
	x := sine(30, 500, 200)
	if got := fb.Apply(x); !reflect.DeepEqual(got, x) {
		t.Error("default filter bank changed the signal")
	}
	if fb.BandpassActive() {
		t.Error("band-pass active by default")
	}
}

func TestBandpassNoOpCases(t *testing.T) {
	tests := []struct {
		name string
		low  float64
		high float64
	}{
		{"zero low", 0, 100},
		{"inverted", 150, 100},
		{"above nyquist", 10, 600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := NewFilterBank(1000)
			cfg := fb.Config()
			cfg.BandpassEnabled = true
			cfg.LowCut, cfg.HighCut = tt.low, tt.high
			if err := fb.Configure(cfg); err != nil {
				t.Fatalf("Configure failed: %v", err)
			}
			if fb.BandpassActive() {
				t.Fatal("band-pass should be inactive")
			}
			x := sine(5, 1000, 100)
			if got := fb.Apply(x); !reflect.DeepEqual(got, x) {
				t.Error("inactive band-pass changed the signal")
			}
		})
	}
}

func TestBandpassImpliedByBothViews(t *testing.T) {
	fb := NewFilterBank(1000)
	cfg := fb.Config()
	cfg.ShowSignal, cfg.ShowEnvelope = true, true
	fb.Configure(cfg)
	if !fb.BandpassActive() {
		t.Error("band-pass should run when signal and envelope are both shown")
	}
}

func TestConfigureRejectsInvalid(t *testing.T) {
	fb := NewFilterBank(1000)
	cfg := fb.Config()
	cfg.LowCut = math.NaN()
	cfg.HighCut = -5
	cfg.Smoothing = 1.5
	err := fb.Configure(cfg)
	if n := len(multierr.Errors(err)); n != 3 {
		t.Fatalf("got %d errors, want 3: %v", n, err)
	}
	var rejected *ConfigRejected
	if !errors.As(err, &rejected) {
		t.Errorf("error %v is not ConfigRejected", err)
	}
	def := DefaultFilterConfig()
	got := fb.Config()
	if got.LowCut != def.LowCut || got.HighCut != def.HighCut || got.Smoothing != def.Smoothing {
		t.Errorf("rejected fields changed: %+v", got)
	}
}

func TestNotchAttenuatesMains(t *testing.T) {
	fs := 1000.0
	fb := NewFilterBank(fs)
	cfg := fb.Config()
	cfg.Notch50 = true
	if err := fb.Configure(cfg); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	if got, want := fb.NotchStages(), len(NotchBands(50, fs)); got != want {
		t.Errorf("notch stages = %d, want %d", got, want)
	}

	mains := fb.Apply(sine(50, fs, 2000))
	if got := maxAbs(mains[1500:]); got > 0.05 {
		t.Errorf("50 Hz residual = %f, want < 0.05", got)
	}
	pass := fb.Apply(sine(10, fs, 2000))
	if got := maxAbs(pass[1500:]); got < 0.9 {
		t.Errorf("10 Hz amplitude = %f, want > 0.9", got)
	}
}

func TestSuggestedDelay(t *testing.T) {
	fb := NewFilterBank(1000)
	cfg := fb.Config()
	cfg.BandpassEnabled = true
	cfg.Notch50, cfg.Notch60 = true, true
	cfg.ShowSignal, cfg.ShowEnvelope = true, true
	fb.Configure(cfg)

	want := 0.1 + 0.06 + 0.04 + 0.02
	if got := fb.SuggestedDelay(0.1); math.Abs(got-want) > 1e-12 {
		t.Errorf("SuggestedDelay = %f, want %f", got, want)
	}
}

func TestSuppressTransient(t *testing.T) {
	series := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	start := SuppressTransient(series, 6, 2, true)
	if start != 4 {
		t.Errorf("start = %d, want 4", start)
	}
	want := []float64{6, 6, 6, 6, 6, 6, 6, 7, 8, 9}
	if !reflect.DeepEqual(series, want) {
		t.Errorf("series = %v, want %v", series, want)
	}

	short := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	if start := SuppressTransient(short, 2, 3, true); start != 8 {
		t.Errorf("start = %d, want 8", start)
	}
	for i, v := range short {
		if v != 8 {
			t.Fatalf("short[%d] = %f, want 8", i, v)
		}
	}

	full := []float64{1, 2, 3}
	if start := SuppressTransient(full, 3, 1, true); start != 0 || full[0] != 1 {
		t.Errorf("full window touched: start %d, %v", start, full)
	}

	idle := []float64{1, 2, 3, 4}
	if start := SuppressTransient(idle, 2, 1, false); start != 2 || idle[0] != 1 {
		t.Errorf("inactive suppression touched series: start %d, %v", start, idle)
	}
}

package dsp

import (
	"math"
	"testing"
)

func TestBandpassResponse(t *testing.T) {
	c, err := ButterworthBandpass(4, 20, 200, 1000)
	if err != nil {
		t.Fatalf("design failed: %v", err)
	}
	if len(c) != 4 {
		t.Fatalf("sections = %d, want 4", len(c))
	}

	tests := []struct {
		freq float64
		min  float64
		max  float64
	}{
		{1, 0, 0.01},
		{100, 0.9, 1.01},
		{450, 0, 0.1},
	}
	for _, tt := range tests {
		got := c.Response(tt.freq, 1000)
		if got < tt.min || got > tt.max {
			t.Errorf("|H(%.0f Hz)| = %f, want within [%f, %f]", tt.freq, got, tt.min, tt.max)
		}
	}
}

func TestBandstopResponse(t *testing.T) {
	c, err := ButterworthBandstop(4, 48, 52, 1000)
	if err != nil {
		t.Fatalf("design failed: %v", err)
	}
	if got := c.Response(50, 1000); got > 1e-3 {
		t.Errorf("|H(50 Hz)| = %g, want deep rejection", got)
	}
	if got := c.Response(0, 1000); math.Abs(got-1) > 1e-9 {
		t.Errorf("|H(0)| = %f, want 1", got)
	}
	if got := c.Response(10, 1000); got < 0.99 {
		t.Errorf("|H(10 Hz)| = %f, want passband", got)
	}
}

func TestBandDesignRejectsBadEdges(t *testing.T) {
	cases := [][2]float64{{0, 100}, {100, 50}, {10, 600}}
	for _, c := range cases {
		if _, err := ButterworthBandpass(4, c[0], c[1], 1000); err == nil {
			t.Errorf("band %v accepted", c)
		}
	}
}

func TestCascadeApplyIsStateless(t *testing.T) {
	c, _ := ButterworthBandpass(4, 20, 200, 1000)
	x := make([]float64, 64)
	x[0] = 1
	first := c.Apply(x)
	second := c.Apply(x)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("Apply differs at %d: %f vs %f", i, first[i], second[i])
		}
	}
	if x[0] != 1 {
		t.Error("Apply modified its input")
	}
}

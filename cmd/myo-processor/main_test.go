package main

import (
	"path/filepath"
	"testing"
)

func TestGenerateOutputFilename(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"csv", "myo_20240101_120000_ab12cd34_analysis.csv"},
		{"json", "myo_20240101_120000_ab12cd34_analysis.json"},
		{"spectrum", "myo_20240101_120000_ab12cd34_spectrum.csv"},
	}
	for _, tt := range tests {
		got := generateOutputFilename("rec/myo_20240101_120000_ab12cd34.bin", tt.format, "out")
		if got != filepath.Join("out", tt.want) {
			t.Errorf("%s: got %s", tt.format, got)
		}
	}
}

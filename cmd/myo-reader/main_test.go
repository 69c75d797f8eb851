package main

import (
	"strings"
	"testing"
)

func TestRenderGraph(t *testing.T) {
	out := renderGraph([]float64{0, 1, 0, 1}, 2, 10, 5)
	lines := strings.Split(out, "\n")
	if !strings.Contains(lines[1], "*") {
		t.Errorf("top row should hold the maxima, got %q", lines[1])
	}
	if !strings.Contains(lines[5], "*") {
		t.Errorf("bottom row should hold the minima, got %q", lines[5])
	}
	if !strings.Contains(out, "2.000s") {
		t.Errorf("missing end time label:\n%s", out)
	}
}

func TestRenderGraphEmpty(t *testing.T) {
	if out := renderGraph(nil, 0, 80, 20); !strings.Contains(out, "No samples") {
		t.Errorf("unexpected output %q", out)
	}
}

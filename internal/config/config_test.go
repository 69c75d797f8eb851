package config

import (
	"strings"
	"testing"

	"go.uber.org/multierr"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	p, err := cfg.Params()
	if err != nil {
		t.Fatalf("Params failed: %v", err)
	}
	if p.DataWidth() != 5250 {
		t.Errorf("default data width = %d, want 5250", p.DataWidth())
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device.Protocol = "v9"
	cfg.Device.Channels = 12
	cfg.Session.TickInterval = 0
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if n := len(multierr.Errors(err)); n != 4 {
		t.Errorf("got %d errors, want 4: %v", n, err)
	}
}

func TestWindowOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device.Protocol = "2.0"
	cfg.Session.WindowSeconds = 4
	p, err := cfg.Params()
	if err != nil {
		t.Fatalf("Params failed: %v", err)
	}
	if p.DataWidth() != 4000 {
		t.Errorf("data width = %d, want 4000", p.DataWidth())
	}
}

func TestDump(t *testing.T) {
	out, err := DefaultConfig().Dump()
	if err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	for _, want := range []string{"protocol: v1.1", "envelope_smoothing: 0.95", "output_dir: ./recordings"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("dump missing %q:\n%s", want, out)
		}
	}
}

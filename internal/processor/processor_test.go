package processor

import (
	"encoding/json"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"myostack-collector/internal/dsp"
	"myostack-collector/internal/frame"
	"myostack-collector/internal/protocol"
)

func sineRecording(t *testing.T, fs afero.Fs, path string, n int, freq float64) {
	t.Helper()
	var blob []byte
	for i := 0; i < n; i++ {
		v := 2048 + 500*math.Sin(2*math.Pi*freq*float64(i)/500)
		var r frame.Row
		for ch := range r.Raw {
			r.Raw[ch] = uint16(math.Round(v))
		}
		blob = frame.AppendRecord(blob, r)
	}
	if err := afero.WriteFile(fs, path, blob, 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestProcessor(t *testing.T, fs afero.Fs) *Processor {
	t.Helper()
	return newTickProcessor(t, fs, 100*time.Millisecond)
}

func newTickProcessor(t *testing.T, fs afero.Fs, tick time.Duration) *Processor {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	p, err := NewProcessor(&Config{
		Protocol:     protocol.MustLookup(protocol.V11),
		Channels:     2,
		Filters:      dsp.DefaultFilterConfig(),
		TickInterval: tick,
	}, fs, logrus.NewEntry(log))
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}
	return p
}

func TestProcessFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	sineRecording(t, fs, "sine.bin", 2000, 50)
	p := newTestProcessor(t, fs)

	res, err := p.ProcessFile("sine.bin")
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if res.Records != 2000 || res.Duration != 4 {
		t.Errorf("records %d duration %f", res.Records, res.Duration)
	}
	if len(res.Timeline) != 40 {
		t.Errorf("timeline frames = %d, want 40", len(res.Timeline))
	}
	if len(res.Channels) != 2 || len(res.Spectra) != 2 {
		t.Fatalf("channels %d spectra %d", len(res.Channels), len(res.Spectra))
	}

	c := res.Channels[0]
	if math.Abs(c.DominantFreq-50) > 1 {
		t.Errorf("dominant frequency = %f, want about 50", c.DominantFreq)
	}
	if c.PeakLevel <= 0 {
		t.Errorf("peak activation = %f, want positive", c.PeakLevel)
	}
	if math.Abs(c.Mean) > 5 {
		t.Errorf("mean = %f, want near zero", c.Mean)
	}
}

func TestProcessFileSubSampleTick(t *testing.T) {
	fs := afero.NewMemMapFs()
	sineRecording(t, fs, "short.bin", 500, 20)
	p := newTickProcessor(t, fs, time.Millisecond)

	res, err := p.ProcessFile("short.bin")
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if res.Ticks < 900 {
		t.Errorf("ticks = %d, want about 1000 at half a record per tick", res.Ticks)
	}
	last := res.Timeline[len(res.Timeline)-1].Time
	if math.Abs(last-499.0/500) > 1e-9 {
		t.Errorf("last processed time = %f, want %f", last, 499.0/500)
	}
}

func TestExports(t *testing.T) {
	fs := afero.NewMemMapFs()
	sineRecording(t, fs, "sine.bin", 1000, 20)
	p := newTestProcessor(t, fs)
	res, err := p.ProcessFile("sine.bin")
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}

	if err := res.ExportCSV(fs, "out.csv"); err != nil {
		t.Fatalf("ExportCSV failed: %v", err)
	}
	csvData, _ := afero.ReadFile(fs, "out.csv")
	if !strings.Contains(string(csvData), "Time_s,Ch1,Ch2") {
		t.Errorf("CSV missing timeline header:\n%s", csvData)
	}

	if err := res.ExportSpectrumCSV(fs, "spec.csv"); err != nil {
		t.Fatalf("ExportSpectrumCSV failed: %v", err)
	}
	specData, _ := afero.ReadFile(fs, "spec.csv")
	if lines := strings.Count(string(specData), "\n"); lines != len(res.Spectra[0].Freqs)+1 {
		t.Errorf("spectrum CSV has %d lines, want %d", lines, len(res.Spectra[0].Freqs)+1)
	}

	if err := res.ExportJSON(fs, "out.json"); err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}
	raw, _ := afero.ReadFile(fs, "out.json")
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("JSON output invalid: %v", err)
	}
	if decoded["records"].(float64) != 1000 {
		t.Errorf("records = %v", decoded["records"])
	}
}

func TestProcessFileRejectsTruncated(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "bad.bin", make([]byte, 35), 0644)
	if _, err := newTestProcessor(t, fs).ProcessFile("bad.bin"); err == nil {
		t.Error("expected error for truncated recording")
	}
}

// Package processor runs the acquisition pipeline offline over a recording
// and summarizes envelope activity and spectra per channel
package processor

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"myostack-collector/internal/dsp"
	"myostack-collector/internal/protocol"
	"myostack-collector/internal/recorder"
	"myostack-collector/internal/session"
)

// Config holds the configuration for offline processing
type Config struct {
	Protocol     protocol.Params  // Protocol the recording was made with
	Channels     int              // Channels to analyze
	Filters      dsp.FilterConfig // Filter stages applied as in live mode
	Gains        []float64        // Per-channel gain
	TickInterval time.Duration    // Simulated tick period
	Verbose      bool             // Per-tick debug logging
}

// ChannelSummary holds per-channel statistics of a processed recording
type ChannelSummary struct {
	Channel      int     `json:"channel"`
	Mean         float64 `json:"mean"`
	RMS          float64 `json:"rms"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	PeakLevel    float64 `json:"peak_activation"`
	MeanLevel    float64 `json:"mean_activation"`
	DominantFreq float64 `json:"dominant_frequency_hz"`
}

// Frame is the activation state after one simulated tick
type Frame struct {
	Time   float64   `json:"time_s"`
	Levels []float64 `json:"levels"`
}

// Spectrum is a channel's final smoothed magnitude estimate
type Spectrum struct {
	Channel int       `json:"channel"`
	Freqs   []float64 `json:"freqs_hz"`
	Mags    []float64 `json:"magnitudes"`
}

// Result holds the complete offline processing results
type Result struct {
	File           string           `json:"file"`
	Protocol       protocol.Version `json:"protocol"`
	SampleRate     float64          `json:"sample_rate_hz"`
	Records        int              `json:"records"`
	Duration       float64          `json:"duration_s"`
	Ticks          int              `json:"ticks"`
	ProcessingTime time.Time        `json:"processing_time"`
	Channels       []ChannelSummary `json:"channels"`
	Timeline       []Frame          `json:"timeline"`
	Spectra        []Spectrum       `json:"spectra"`
}

// Processor replays recordings through a session
type Processor struct {
	config *Config
	fs     afero.Fs
	log    *logrus.Entry
}

// stepClock advances only when told to
type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

// NewProcessor creates a processor with the given configuration
func NewProcessor(config *Config, fs afero.Fs, log *logrus.Entry) (*Processor, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.Protocol.SampleRate <= 0 {
		return nil, fmt.Errorf("protocol not set")
	}
	if config.Channels < 1 || config.Channels > protocol.MaxChannels {
		return nil, fmt.Errorf("channel count %d outside 1..%d", config.Channels, protocol.MaxChannels)
	}
	if config.TickInterval <= 0 {
		config.TickInterval = 100 * time.Millisecond
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Processor{config: config, fs: fs, log: log.WithField("component", "processor")}, nil
}

// ProcessFile replays a recording tick by tick until it ends
func (p *Processor) ProcessFile(filename string) (*Result, error) {
	playback, err := recorder.LoadPlayback(p.fs, filename)
	if err != nil {
		return nil, err
	}

	clock := &stepClock{now: time.Unix(0, 0)}
	s, err := session.New(session.Options{
		Protocol: p.config.Protocol,
		Channels: p.config.Channels,
		Fs:       p.fs,
		Clock:    clock,
		Logger:   p.log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer s.Close()

	if err := s.SetFilterConfig(p.config.Filters); err != nil {
		p.log.WithError(err).Warn("some filter settings were rejected")
	}
	for ch, g := range p.config.Gains {
		if err := s.SetGain(ch, g); err != nil {
			return nil, err
		}
	}
	if err := s.LoadPlayback(filename); err != nil {
		return nil, err
	}

	result := &Result{
		File:           filename,
		Protocol:       p.config.Protocol.Version,
		SampleRate:     p.config.Protocol.SampleRate,
		Records:        playback.Len(),
		Duration:       float64(playback.Len()) / p.config.Protocol.SampleRate,
		ProcessingTime: time.Now(),
	}

	// A tick shorter than one sample period reads a record only every few
	// ticks, so the bound follows the records read per tick.
	perTick := p.config.TickInterval.Seconds() * p.config.Protocol.SampleRate
	maxTicks := int(math.Ceil(float64(playback.Len())/perTick)) + 2
	for s.Mode() == session.Playback && result.Ticks < maxTicks {
		clock.now = clock.now.Add(p.config.TickInterval)
		res, err := s.Tick()
		if err != nil {
			return nil, fmt.Errorf("tick %d failed: %w", result.Ticks, err)
		}
		result.Ticks++
		if res.NewSamples == 0 {
			continue
		}
		result.Timeline = append(result.Timeline, Frame{
			Time:   s.LastTimestamp(),
			Levels: s.GetActivationLevels(),
		})
		if p.config.Verbose {
			p.log.WithFields(logrus.Fields{"tick": result.Ticks, "index": res.PlaybackIndex}).Debug("tick processed")
		}
	}

	if pos := s.PlaybackPosition(); s.Mode() == session.Playback || pos < playback.Len() {
		return nil, fmt.Errorf("playback stalled at record %d of %d after %d ticks", pos, playback.Len(), result.Ticks)
	}

	for ch := 0; ch < p.config.Channels; ch++ {
		freqs, mags, err := s.GetSpectrum(ch)
		if err != nil {
			return nil, err
		}
		result.Spectra = append(result.Spectra, Spectrum{Channel: ch + 1, Freqs: freqs, Mags: mags})
	}
	result.Channels = p.summarize(playback, result)
	return result, nil
}

// summarize computes sample statistics from the recording and activation
// statistics from the timeline
func (p *Processor) summarize(playback *recorder.Playback, result *Result) []ChannelSummary {
	n := p.config.Channels
	out := make([]ChannelSummary, n)
	sum := make([]float64, n)
	sumSq := make([]float64, n)
	for ch := range out {
		out[ch] = ChannelSummary{Channel: ch + 1, Min: math.Inf(1), Max: math.Inf(-1)}
	}

	for i := 0; i < playback.Len(); i++ {
		row := playback.Row(i)
		for ch := 0; ch < n; ch++ {
			v := p.config.Protocol.Scale(row.Raw[ch], p.gain(ch))
			sum[ch] += v
			sumSq[ch] += v * v
			out[ch].Min = math.Min(out[ch].Min, v)
			out[ch].Max = math.Max(out[ch].Max, v)
		}
	}

	count := float64(playback.Len())
	for ch := range out {
		out[ch].Mean = sum[ch] / count
		out[ch].RMS = math.Sqrt(sumSq[ch] / count)
		for _, f := range result.Timeline {
			out[ch].PeakLevel = math.Max(out[ch].PeakLevel, f.Levels[ch])
			out[ch].MeanLevel += f.Levels[ch]
		}
		if len(result.Timeline) > 0 {
			out[ch].MeanLevel /= float64(len(result.Timeline))
		}
		out[ch].DominantFreq = dominant(result.Spectra[ch])
	}
	return out
}

func (p *Processor) gain(ch int) float64 {
	if ch < len(p.config.Gains) && p.config.Gains[ch] > 0 {
		return p.config.Gains[ch]
	}
	return 1
}

func dominant(s Spectrum) float64 {
	best, freq := -1.0, 0.0
	for i, m := range s.Mags {
		if m > best {
			best, freq = m, s.Freqs[i]
		}
	}
	return freq
}

// Package session owns the acquisition pipeline: it pulls rows from the
// serial link or a loaded recording on every tick, keeps the ring buffer,
// filters, envelope and spectrum coherent, and manages mode transitions
// and recording.
package session

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"myostack-collector/internal/dsp"
	"myostack-collector/internal/frame"
	"myostack-collector/internal/protocol"
	"myostack-collector/internal/recorder"
	"myostack-collector/internal/ringbuffer"
	"myostack-collector/internal/serialport"
)

// ErrInvalidTransition is returned for mode changes the state machine
// does not allow
var ErrInvalidTransition = errors.New("invalid mode transition")

// Mode is the acquisition state
type Mode int

const (
	Idle Mode = iota
	Live
	Playback
	Paused
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Live:
		return "live"
	case Playback:
		return "playback"
	case Paused:
		return "paused"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Clock supplies wall time for playback pacing
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// DefaultScrubThreshold is the playback distance, in samples, below which
// a scrub request is ignored
const DefaultScrubThreshold = 10

// Options configures a session
type Options struct {
	Protocol protocol.Params
	Channels int    // active channels, 1..9
	PortID   string // empty selects the last listed port

	Opener serialport.Opener
	Fs     afero.Fs
	Clock  Clock
	Logger *logrus.Entry

	ScrubThreshold int
	PlaybackSpeed  float64
	ListenerDelay  time.Duration // base pause between serial reads
	MailboxLimit   int

	RecordDir    string
	RecordPrefix string
}

func (o *Options) applyDefaults() error {
	if o.Protocol.SampleRate <= 0 {
		return fmt.Errorf("protocol parameters not set")
	}
	if o.Channels == 0 {
		o.Channels = protocol.MaxChannels
	}
	if o.Channels < 1 || o.Channels > protocol.MaxChannels {
		return fmt.Errorf("channel count %d outside 1..%d", o.Channels, protocol.MaxChannels)
	}
	if o.Opener == nil {
		o.Opener = serialport.NewSystemOpener()
	}
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Clock == nil {
		o.Clock = systemClock{}
	}
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if o.ScrubThreshold <= 0 {
		o.ScrubThreshold = DefaultScrubThreshold
	}
	if o.PlaybackSpeed <= 0 {
		o.PlaybackSpeed = 1
	}
	if o.RecordDir == "" {
		o.RecordDir = "./recordings"
	}
	if o.RecordPrefix == "" {
		o.RecordPrefix = "myo"
	}
	return nil
}

// Session is the acquisition pipeline. All exported methods are safe to
// call from several goroutines; each runs between ticks.
type Session struct {
	mu sync.Mutex

	opts   Options
	params protocol.Params
	log    *logrus.Entry

	mode    Mode
	resume  Mode // mode restored when leaving Paused
	stopReq *atomic.Bool

	filters     *dsp.FilterBank
	gains       []float64
	spectrumCh  int
	dataWidth   int
	tailSamples int

	// rebuilt by reset
	buf      *ringbuffer.Buffer
	decoder  *frame.Decoder
	envelope *dsp.EnvelopeDetector
	spectral *dsp.SpectralEstimator
	filtered [][]float64

	// live source
	port     serialport.Port
	listener *serialport.Listener
	mailbox  *serialport.Mailbox
	dropped  uint64 // mailbox overflow already reported

	// playback source
	playback    *recorder.Playback
	playPos     int // absolute index of the next record to load
	playCarry   float64
	scrubTarget int // -1 when no scrub is pending
	lastTick    time.Time

	sink *recorder.Sink
}

// New creates an idle session
func New(opts Options) (*Session, error) {
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}
	p := opts.Protocol
	s := &Session{
		opts:        opts,
		params:      p,
		log:         opts.Logger.WithField("component", "session"),
		stopReq:     atomic.NewBool(false),
		filters:     dsp.NewFilterBank(p.SampleRate),
		gains:       make([]float64, protocol.MaxChannels),
		dataWidth:   p.DataWidth(),
		tailSamples: int(p.SampleRate),
		scrubTarget: -1,
	}
	for i := range s.gains {
		s.gains[i] = 1
	}
	if s.dataWidth < p.SpectrumSize+1 {
		return nil, fmt.Errorf("window of %d samples cannot hold a %d point spectrum", s.dataWidth, p.SpectrumSize)
	}
	if err := s.reset(); err != nil {
		return nil, err
	}
	return s, nil
}

// reset builds fresh buffers and detector state. Filter configuration,
// gains and the selected source are kept.
func (s *Session) reset() error {
	buf, err := ringbuffer.New(s.opts.Channels, s.dataWidth)
	if err != nil {
		return err
	}
	if s.spectral == nil {
		s.spectral, err = dsp.NewSpectralEstimator(s.opts.Channels, s.params.SpectrumSize, s.params.SampleRate, s.params.SpectrumSmoothing)
		if err != nil {
			return err
		}
	} else {
		s.spectral.Reset()
	}
	envelope := dsp.NewEnvelopeDetector(s.opts.Channels, s.dataWidth, s.params.SampleRate)
	if err := envelope.SetSmoothing(s.filters.Config().Smoothing); err != nil {
		return err
	}

	s.buf = buf
	s.decoder = frame.NewDecoder()
	s.envelope = envelope
	s.filtered = make([][]float64, s.opts.Channels)
	for ch := range s.filtered {
		s.filtered[ch] = make([]float64, s.dataWidth)
	}
	s.playCarry = 0
	s.scrubTarget = -1
	return nil
}

// Mode returns the current state
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Params returns the protocol parameters of the session
func (s *Session) Params() protocol.Params {
	return s.params
}

// DataWidth returns the window length in samples
func (s *Session) DataWidth() int {
	return s.dataWidth
}

// Stop requests an immediate stop. It does not wait for the session lock;
// the next tick closes the source and returns to Idle.
func (s *Session) Stop() {
	s.stopReq.Store(true)
}

// Refresh closes the data source and any recording, rebuilds all buffers
// and detector state, and returns to Idle.
func (s *Session) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked()
}

func (s *Session) refreshLocked() error {
	err := multierr.Combine(s.stopRecordingLocked(), s.closeLive())
	s.playPos = 0
	err = multierr.Append(err, s.reset())
	if s.mode != Idle {
		s.log.WithField("from", s.mode).Info("session refreshed")
	}
	s.mode = Idle
	s.resume = Idle
	return err
}

// SetMode switches acquisition state. Entering Live or Playback closes
// the other source first. Playback requires a loaded recording.
func (s *Session) SetMode(m Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setModeLocked(m)
}

func (s *Session) setModeLocked(m Mode) error {
	from := s.mode
	if m == from {
		return nil
	}

	switch m {
	case Idle:
		return s.refreshLocked()

	case Paused:
		if from != Live && from != Playback {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, m)
		}
		s.resume = from
		s.mode = Paused

	case Live:
		if from == Paused && s.resume == Live {
			s.mode = Live
			break
		}
		if err := multierr.Combine(s.stopRecordingLocked(), s.closeLive()); err != nil {
			s.log.WithError(err).Warn("closing previous source failed")
		}
		if err := s.reset(); err != nil {
			return err
		}
		s.mode = Live
		if err := s.openLive(); err != nil {
			s.log.WithError(err).Warn("serial port unavailable, polling")
		}

	case Playback:
		if s.playback == nil {
			return fmt.Errorf("%w: no recording loaded", ErrInvalidTransition)
		}
		if from == Paused && s.resume == Playback {
			s.mode = Playback
			s.lastTick = s.opts.Clock.Now()
			break
		}
		if err := multierr.Combine(s.stopRecordingLocked(), s.closeLive()); err != nil {
			s.log.WithError(err).Warn("closing previous source failed")
		}
		if err := s.reset(); err != nil {
			return err
		}
		s.playPos = 0
		s.mode = Playback
		s.lastTick = s.opts.Clock.Now()

	default:
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidTransition, int(m))
	}

	s.log.WithFields(logrus.Fields{"from": from, "to": s.mode}).Info("mode changed")
	return nil
}

// LoadPlayback reads a recording and enters Playback at its start. A file
// that is not a whole number of records is rejected before any state
// changes.
func (s *Session) LoadPlayback(path string) error {
	p, err := recorder.LoadPlayback(s.opts.Fs, path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(); err != nil {
		s.log.WithError(err).Warn("refresh before playback failed")
	}
	s.playback = p
	s.log.WithFields(logrus.Fields{"file": path, "records": p.Len()}).Info("recording loaded")
	return s.setModeLocked(Playback)
}

// PlaybackLength returns the number of records in the loaded recording
func (s *Session) PlaybackLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playback == nil {
		return 0
	}
	return s.playback.Len()
}

// PlaybackPosition returns the absolute index of the next record to play
func (s *Session) PlaybackPosition() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playPos
}

// Seek requests a scrub to an absolute record index. It takes effect on
// the next playback tick when it differs from the current position by
// more than the scrub threshold.
func (s *Session) Seek(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playback == nil {
		return fmt.Errorf("%w: seek without a loaded recording", ErrInvalidTransition)
	}
	if index < 0 {
		index = 0
	}
	if index > s.playback.Len() {
		index = s.playback.Len()
	}
	s.scrubTarget = index
	return nil
}

func (s *Session) applyScrub() {
	target := s.scrubTarget
	s.scrubTarget = -1
	if target < 0 || abs(target-s.playPos) <= s.opts.ScrubThreshold {
		return
	}
	if err := s.reset(); err != nil {
		s.log.WithError(err).Error("reset for scrub failed")
		return
	}
	s.buf.Seek(target)
	s.playPos = target
	s.log.WithField("index", target).Debug("playback scrubbed")
}

// openLive resolves and opens the serial port and starts the listener
func (s *Session) openLive() error {
	id, err := serialport.Resolve(s.opts.Opener, s.opts.PortID)
	if err != nil {
		return err
	}
	port, err := s.opts.Opener.Open(id, s.params.BaudRate)
	if err != nil {
		var unavailable *serialport.PortUnavailableError
		if !errors.As(err, &unavailable) {
			err = &serialport.PortUnavailableError{Port: id, Err: err}
		}
		return err
	}

	s.port = port
	s.mailbox = serialport.NewMailbox(s.opts.MailboxLimit)
	s.dropped = 0
	s.listener = serialport.NewListener(port, s.mailbox, s.opts.Logger.WithField("component", "listener"))
	s.listener.SetPace(s.suggestedDelay())
	s.listener.Start()
	s.decoder.Reset()
	s.log.WithFields(logrus.Fields{"port": id, "baud": s.params.BaudRate}).Info("serial port opened")
	return nil
}

// closeLive stops the listener and closes the port
func (s *Session) closeLive() error {
	if s.listener == nil {
		return nil
	}
	err := s.listener.Stop()
	s.listener = nil
	s.port = nil
	s.mailbox = nil
	s.log.Debug("serial port closed")
	return err
}

// SetFilterConfig installs a filter configuration. Rejected fields keep
// their previous value and are reported as dsp.ConfigRejected errors.
func (s *Session) SetFilterConfig(cfg dsp.FilterConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.filters.Configure(cfg)
	if serr := s.envelope.SetSmoothing(s.filters.Config().Smoothing); serr != nil {
		err = multierr.Append(err, serr)
	}
	if s.listener != nil {
		s.listener.SetPace(s.suggestedDelay())
	}
	s.log.WithFields(logrus.Fields{
		"notch_stages": s.filters.NotchStages(),
		"bandpass":     s.filters.BandpassActive(),
	}).Debug("filter configuration applied")
	return err
}

// FilterConfig returns the active filter configuration
func (s *Session) FilterConfig() dsp.FilterConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters.Config()
}

// SetGain sets a channel's amplifier gain (0-based channel). It applies to
// samples decoded after the call.
func (s *Session) SetGain(ch int, gain float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch < 0 || ch >= protocol.MaxChannels {
		return fmt.Errorf("channel %d outside 0..%d", ch, protocol.MaxChannels-1)
	}
	if math.IsNaN(gain) || math.IsInf(gain, 0) || gain <= 0 {
		return &dsp.ConfigRejected{Field: fmt.Sprintf("gain[%d]", ch), Value: gain, Reason: "must be a positive number"}
	}
	s.gains[ch] = gain
	return nil
}

// SetSpectrumChannel selects the channel whose spectrum is displayed
// (0-based). In live mode the device is sent the 1-based channel number.
func (s *Session) SetSpectrumChannel(ch int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch < 0 || ch >= s.opts.Channels {
		return fmt.Errorf("spectrum channel %d outside 0..%d", ch, s.opts.Channels-1)
	}
	s.spectrumCh = ch
	if s.port != nil {
		if _, err := s.port.Write([]byte{byte(ch + 1)}); err != nil {
			return fmt.Errorf("failed to send channel selection: %w", err)
		}
	}
	return nil
}

// SpectrumChannel returns the displayed spectrum channel
func (s *Session) SpectrumChannel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spectrumCh
}

// Close stops recording, closes every source and leaves the session Idle
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := multierr.Combine(s.stopRecordingLocked(), s.closeLive())
	s.mode = Idle
	s.playback = nil
	return err
}

func (s *Session) suggestedDelay() time.Duration {
	base := s.opts.ListenerDelay.Seconds()
	return time.Duration(s.filters.SuggestedDelay(base) * float64(time.Second))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

package session

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"myostack-collector/internal/frame"
	"myostack-collector/internal/serialport"
)

var errListenerStopped = errors.New("serial listener stopped")

// TickResult summarizes one pipeline invocation
type TickResult struct {
	Mode           Mode
	NewSamples     int    // rows appended this tick
	Total          uint64 // rows appended since the last reset
	VisibleStart   int    // first displayed index of the window
	PlaybackIndex  int    // next record to play
	SuggestedDelay time.Duration
}

// Tick runs the pipeline once: it pulls rows from the active source,
// appends them to the window, refilters the window and updates the
// envelope and spectrum. A DecodeError aborts only this tick; a
// PortUnavailableError leaves the session polling in Live mode.
func (s *Session) Tick() (TickResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopReq.Swap(false) {
		if err := s.refreshLocked(); err != nil {
			s.log.WithError(err).Warn("stop: closing source failed")
		}
	}

	now := s.opts.Clock.Now()
	elapsed := now.Sub(s.lastTick)
	s.lastTick = now

	var (
		rows  []frame.Row
		times []float64
		err   error
	)
	switch s.mode {
	case Live:
		rows, err = s.pullLive()
	case Playback:
		rows, times = s.pullPlayback(elapsed)
	case Paused:
		if s.resume == Live && s.mailbox != nil {
			s.mailbox.Take()
			s.decoder.Reset()
		}
	}
	if err != nil {
		return s.result(0), err
	}

	if len(rows) > 0 {
		s.absorb(rows, times)
	}
	return s.result(len(rows)), nil
}

func (s *Session) result(n int) TickResult {
	return TickResult{
		Mode:           s.mode,
		NewSamples:     n,
		Total:          s.buf.Total(),
		VisibleStart:   s.visibleStart(),
		PlaybackIndex:  s.playPos,
		SuggestedDelay: s.suggestedDelay(),
	}
}

// pullLive decodes the bytes the listener delivered since the last tick
func (s *Session) pullLive() ([]frame.Row, error) {
	if s.listener == nil {
		if err := s.openLive(); err != nil {
			return nil, err
		}
	}
	if !s.listener.Running() {
		readErr := s.listener.Err()
		if readErr == nil {
			readErr = errListenerStopped
		}
		if err := s.closeLive(); err != nil {
			s.log.WithError(err).Debug("closing failed port")
		}
		return nil, &serialport.PortUnavailableError{Port: s.opts.PortID, Err: readErr}
	}

	chunk := s.mailbox.Take()
	if len(chunk) == 0 {
		return nil, nil
	}
	if dropped := s.mailbox.Dropped(); dropped > s.dropped {
		// The chunk now starts mid-row; stitching it to the old leftover
		// would splice two rows together.
		s.log.WithField("bytes", dropped-s.dropped).Warn("serial mailbox overflowed, oldest bytes dropped")
		s.dropped = dropped
		s.decoder.Reset()
	}
	rows, err := s.decoder.Decode(chunk)
	if err != nil {
		var de *frame.DecodeError
		if errors.As(err, &de) {
			s.log.WithError(err).Warn("serial stream not decodable")
		}
		return nil, err
	}
	return rows, nil
}

// pullPlayback advances the playback cursor by the elapsed time at the
// configured speed. Timestamps are record index over sample rate.
func (s *Session) pullPlayback(elapsed time.Duration) ([]frame.Row, []float64) {
	s.applyScrub()

	want := elapsed.Seconds()*s.params.SampleRate*s.opts.PlaybackSpeed + s.playCarry
	if want < 0 {
		want = 0
	}
	n := int(want)
	s.playCarry = want - float64(n)
	if n > s.dataWidth {
		n = s.dataWidth
		s.playCarry = 0
	}

	rows := s.playback.Rows(s.playPos, s.playPos+n)
	times := make([]float64, len(rows))
	for i := range rows {
		times[i] = float64(s.playPos+i) / s.params.SampleRate
	}
	s.playPos += len(rows)

	if s.playPos >= s.playback.Len() {
		s.resume = Playback
		s.mode = Paused
		s.log.WithFields(logrus.Fields{"file": s.playback.Path, "records": s.playback.Len()}).Info("playback reached end of recording")
	}
	return rows, times
}

// absorb appends rows, records them when recording, and reruns the
// filter, envelope and spectrum stages. times is nil for live rows, which
// are stamped one sample period after the previous row.
func (s *Session) absorb(rows []frame.Row, times []float64) {
	channels := s.opts.Channels
	scaled := make([]float64, channels)
	dt := s.params.Dt()

	live := times == nil
	if live {
		times = make([]float64, len(rows))
	}
	for i := range rows {
		r := &rows[i]
		for ch := 0; ch < channels; ch++ {
			if r.Valid {
				scaled[ch] = s.params.Scale(r.Raw[ch], s.gains[ch])
			} else {
				scaled[ch] = 0
			}
		}
		if live {
			s.buf.AppendNext(dt, r.Raw[:], scaled)
			times[i] = s.buf.LastTimestamp()
		} else {
			s.buf.Append(times[i], r.Raw[:], scaled)
		}
	}

	if s.sink != nil {
		if err := s.sink.WriteRows(rows, times, s.gains); err != nil {
			s.log.WithError(err).Error("recording write failed, stopping recording")
			if cerr := s.stopRecordingLocked(); cerr != nil {
				s.log.WithError(cerr).Warn("closing recording failed")
			}
		}
	}

	newCount := s.buf.TakeNew()
	for ch := 0; ch < channels; ch++ {
		window := s.filters.Apply(s.buf.Unrolled(ch, 0))
		s.filtered[ch] = window
		s.envelope.Update(ch, window, newCount)
		if err := s.spectral.Update(ch, window); err != nil {
			s.log.WithError(err).Debug("spectrum update skipped")
		}
	}
}

package session

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"myostack-collector/internal/recorder"
)

// StartRecording opens a binary log and text mirror for live rows. It
// holds the session lock, so the files open between two ticks.
func (s *Session) StartRecording() (recorder.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sink != nil {
		return s.sink.Metadata(), nil
	}
	if s.mode != Live && !(s.mode == Paused && s.resume == Live) {
		return recorder.Metadata{}, fmt.Errorf("%w: recording requires live mode, session is %s", ErrInvalidTransition, s.mode)
	}

	sink, err := recorder.Create(s.opts.Fs, s.opts.RecordDir, s.opts.RecordPrefix, s.params, s.opts.Clock.Now())
	if err != nil {
		return recorder.Metadata{}, err
	}
	s.sink = sink
	s.log.WithFields(logrus.Fields{
		"file":    sink.BinaryPath(),
		"session": sink.Metadata().SessionID,
	}).Info("recording started")
	return sink.Metadata(), nil
}

// StopRecording closes the recording files, if any
func (s *Session) StopRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopRecordingLocked()
}

// Recording reports whether a recording is open
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink != nil
}

func (s *Session) stopRecordingLocked() error {
	if s.sink == nil {
		return nil
	}
	sink := s.sink
	s.sink = nil
	err := sink.Close()
	s.log.WithFields(logrus.Fields{"file": sink.BinaryPath(), "rows": sink.Rows()}).Info("recording stopped")
	return err
}

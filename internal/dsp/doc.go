// Package dsp implements the signal stages applied to the sample window:
// Butterworth band-pass and notch filtering, the activation envelope
// detector, and the smoothed FFT magnitude estimate.
package dsp

import "fmt"

// ConfigRejected reports a configuration value that was refused; the
// previous valid value stays in effect.
type ConfigRejected struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ConfigRejected) Error() string {
	return fmt.Sprintf("config rejected: %s=%v %s", e.Field, e.Value, e.Reason)
}

// Package protocol describes the MYOstack sensor protocol versions and the
// constants each of them fixes for a session.
package protocol

import (
	"fmt"
	"strings"
)

// MaxChannels is the number of sensor fields carried by every frame
const MaxChannels = 9

// RecordSize is the byte length of one binary record (9 x uint16)
const RecordSize = MaxChannels * 2

// Version identifies a sensor firmware protocol revision
type Version string

const (
	V10 Version = "v1.0"
	V11 Version = "v1.1"
	V20 Version = "v2.0"
)

// Params holds everything a protocol version decides about acquisition
type Params struct {
	Version           Version
	ReferenceOffset   float64 // ADC code subtracted before scaling
	VoltageCoeff      float64 // multiplier applied after offset removal
	SampleRate        float64 // samples per second per channel
	BaudRate          int     // serial link speed
	WindowSeconds     float64 // ring buffer span
	SpectrumSize      int     // FFT length N
	SpectrumSmoothing float64 // beta used when blending spectra across ticks
}

var versions = map[Version]Params{
	V10: {
		Version:           V10,
		ReferenceOffset:   0,
		VoltageCoeff:      3.3 / 4.094,
		SampleRate:        500,
		BaudRate:          1000000,
		WindowSeconds:     6.2,
		SpectrumSize:      500,
		SpectrumSmoothing: 0.85,
	},
	V11: {
		Version:           V11,
		ReferenceOffset:   2048,
		VoltageCoeff:      3.25 / 4.094,
		SampleRate:        500,
		BaudRate:          1000000,
		WindowSeconds:     10.5,
		SpectrumSize:      500,
		SpectrumSmoothing: 0.85,
	},
	V20: {
		Version:           V20,
		ReferenceOffset:   2048,
		VoltageCoeff:      3.3 / 4.096,
		SampleRate:        1000,
		BaudRate:          115200,
		WindowSeconds:     10.5,
		SpectrumSize:      2000,
		SpectrumSmoothing: 0.5,
	},
}

// Lookup returns the parameters for a version name such as "v1.1" or "1.1"
func Lookup(name string) (Params, error) {
	v := Version(strings.ToLower(strings.TrimSpace(name)))
	if !strings.HasPrefix(string(v), "v") {
		v = "v" + v
	}
	p, ok := versions[v]
	if !ok {
		return Params{}, fmt.Errorf("unknown protocol version %q (must be v1.0, v1.1 or v2.0)", name)
	}
	return p, nil
}

// MustLookup is Lookup for compile-time known versions
func MustLookup(v Version) Params {
	p, err := Lookup(string(v))
	if err != nil {
		panic(err)
	}
	return p
}

// Dt is the time between two samples in seconds
func (p Params) Dt() float64 {
	return 1 / p.SampleRate
}

// DataWidth is the ring buffer capacity in samples
func (p Params) DataWidth() int {
	return int(p.WindowSeconds * p.SampleRate)
}

// Scale converts a raw ADC code into a voltage-like value for a channel gain
func (p Params) Scale(raw uint16, gain float64) float64 {
	if gain == 0 {
		gain = 1
	}
	return (float64(raw) - p.ReferenceOffset) * p.VoltageCoeff / gain
}

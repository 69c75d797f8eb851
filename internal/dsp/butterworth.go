package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"
)

// Biquad is one second-order IIR section (transposed direct form II)
type Biquad struct {
	B0, B1, B2 float64
	A1, A2     float64

	z1, z2 float64
}

// Process filters one sample through the section
func (f *Biquad) Process(in float64) float64 {
	out := in*f.B0 + f.z1
	f.z1 = in*f.B1 - out*f.A1 + f.z2
	f.z2 = in*f.B2 - out*f.A2
	return out
}

// Reset clears the delay line
func (f *Biquad) Reset() {
	f.z1, f.z2 = 0, 0
}

// response evaluates the section at normalized angular frequency w
func (f *Biquad) response(w float64) complex128 {
	z1 := cmplx.Exp(complex(0, -w))
	z2 := z1 * z1
	num := complex(f.B0, 0) + complex(f.B1, 0)*z1 + complex(f.B2, 0)*z2
	den := 1 + complex(f.A1, 0)*z1 + complex(f.A2, 0)*z2
	return num / den
}

// Cascade is a series of biquad sections
type Cascade []Biquad

// Apply filters a whole block starting from a zero delay line and returns
// a new slice; the cascade itself keeps no state between calls.
func (c Cascade) Apply(x []float64) []float64 {
	sections := make([]Biquad, len(c))
	copy(sections, c)
	for i := range sections {
		sections[i].Reset()
	}

	out := make([]float64, len(x))
	for n, v := range x {
		for i := range sections {
			v = sections[i].Process(v)
		}
		out[n] = v
	}
	return out
}

// Response returns |H(e^jw)| of the cascade at frequency freq (Hz)
func (c Cascade) Response(freq, sampleRate float64) float64 {
	w := 2 * math.Pi * freq / sampleRate
	h := complex(1, 0)
	for i := range c {
		h *= c[i].response(w)
	}
	return cmplx.Abs(h)
}

// ButterworthBandpass designs an order-N Butterworth band-pass (2N poles)
// between low and high Hz.
func ButterworthBandpass(order int, low, high, sampleRate float64) (Cascade, error) {
	return butterworthBand(order, low, high, sampleRate, false)
}

// ButterworthBandstop designs an order-N Butterworth band-stop (2N poles)
// rejecting low..high Hz.
func ButterworthBandstop(order int, low, high, sampleRate float64) (Cascade, error) {
	return butterworthBand(order, low, high, sampleRate, true)
}

func butterworthBand(order int, low, high, fs float64, stop bool) (Cascade, error) {
	if order < 1 {
		return nil, fmt.Errorf("filter order must be positive, got %d", order)
	}
	if !(low > 0 && low < high && high < fs/2) {
		return nil, fmt.Errorf("band %.2f-%.2f Hz invalid for sample rate %.1f Hz", low, high, fs)
	}

	// Pre-warp band edges for the bilinear transform.
	w1 := 2 * fs * math.Tan(math.Pi*low/fs)
	w2 := 2 * fs * math.Tan(math.Pi*high/fs)
	bw := w2 - w1
	w0sq := w1 * w2

	poles := make([]complex128, 0, 2*order)
	for k := 0; k < order; k++ {
		theta := math.Pi * float64(2*k+order+1) / float64(2*order)
		p := cmplx.Exp(complex(0, theta))

		var h complex128
		if stop {
			h = complex(bw/2, 0) / p
		} else {
			h = p * complex(bw/2, 0)
		}
		d := cmplx.Sqrt(h*h - complex(w0sq, 0))
		poles = append(poles, bilinear(h+d, fs), bilinear(h-d, fs))
	}

	// Poles come in conjugate pairs; one section per upper-half pole.
	sort.Slice(poles, func(i, j int) bool { return imag(poles[i]) > imag(poles[j]) })
	poles = poles[:order]

	// Digital image of the band center.
	wc := 2 * math.Atan(math.Sqrt(w0sq)/(2*fs))

	sections := make(Cascade, order)
	for i, p := range poles {
		s := Biquad{A1: -2 * real(p), A2: real(p)*real(p) + imag(p)*imag(p)}
		if stop {
			s.B0, s.B1, s.B2 = 1, -2*math.Cos(wc), 1
		} else {
			s.B0, s.B1, s.B2 = 1, 0, -1
		}
		sections[i] = s
	}

	// Unity gain in the pass region: DC for band-stop, center for band-pass.
	ref := wc
	if stop {
		ref = 0
	}
	h := complex(1, 0)
	for i := range sections {
		h *= sections[i].response(ref)
	}
	g := math.Pow(1/cmplx.Abs(h), 1/float64(order))
	for i := range sections {
		sections[i].B0 *= g
		sections[i].B1 *= g
		sections[i].B2 *= g
	}
	return sections, nil
}

func bilinear(s complex128, fs float64) complex128 {
	k := complex(2*fs, 0)
	return (k + s) / (k - s)
}

// Package design computes RBJ cookbook coefficients for the drum filters.
//
// Invalid frequencies or sample rates yield biquad.Identity so a bad catalog
// value never silences a voice.
package design

import (
	"math"

	"github.com/cwbudde/drumengine/audio/dsp/biquad"
)

// DefaultQ is the Butterworth quality factor.
const DefaultQ = 1 / math.Sqrt2

// Lowpass designs a lowpass biquad at freq Hz.
func Lowpass(freq, q, sampleRate float64) biquad.Coefficients {
	w0, ok := normalizedW0(freq, sampleRate)
	if !ok {
		return biquad.Identity
	}
	cw, alpha := math.Cos(w0), math.Sin(w0)/(2*normalizedQ(q))

	b1 := 1 - cw
	return normalize(b1/2, b1, b1/2, 1+alpha, -2*cw, 1-alpha)
}

// Highpass designs a highpass biquad at freq Hz.
func Highpass(freq, q, sampleRate float64) biquad.Coefficients {
	w0, ok := normalizedW0(freq, sampleRate)
	if !ok {
		return biquad.Identity
	}
	cw, alpha := math.Cos(w0), math.Sin(w0)/(2*normalizedQ(q))

	b1 := -(1 + cw)
	return normalize(-b1/2, b1, -b1/2, 1+alpha, -2*cw, 1-alpha)
}

// Bandpass designs a bandpass biquad with 0 dB gain at the center freq.
func Bandpass(freq, q, sampleRate float64) biquad.Coefficients {
	w0, ok := normalizedW0(freq, sampleRate)
	if !ok {
		return biquad.Identity
	}
	cw, alpha := math.Cos(w0), math.Sin(w0)/(2*normalizedQ(q))

	return normalize(alpha, 0, -alpha, 1+alpha, -2*cw, 1-alpha)
}

func normalizedW0(freq, sampleRate float64) (float64, bool) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return 0, false
	}
	if freq <= 0 || freq >= sampleRate/2 || math.IsNaN(freq) || math.IsInf(freq, 0) {
		return 0, false
	}
	return 2 * math.Pi * freq / sampleRate, true
}

func normalizedQ(q float64) float64 {
	if q <= 0 || math.IsNaN(q) || math.IsInf(q, 0) {
		return DefaultQ
	}
	return q
}

func normalize(b0, b1, b2, a0, a1, a2 float64) biquad.Coefficients {
	if a0 == 0 || math.IsNaN(a0) || math.IsInf(a0, 0) {
		return biquad.Identity
	}
	return biquad.Coefficients{
		B0: b0 / a0,
		B1: b1 / a0,
		B2: b2 / a0,
		A1: a1 / a0,
		A2: a2 / a0,
	}
}

// Package delay provides a circular delay line with fractional reads.
package delay

import (
	"fmt"
	"math"
)

// Line is a circular delay line. Read(1) returns the most recently written
// sample.
type Line struct {
	buffer   []float64
	writePos int
}

// New returns a delay line of fixed size.
func New(size int) (*Line, error) {
	if size <= 0 {
		return nil, fmt.Errorf("delay size must be > 0: %d", size)
	}
	return &Line{buffer: make([]float64, size)}, nil
}

// ForDuration returns a line long enough for a fractional read of seconds at
// sampleRate.
func ForDuration(seconds, sampleRate float64) (*Line, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("delay sample rate must be > 0: %f", sampleRate)
	}
	return New(int(math.Ceil(seconds*sampleRate)) + 4)
}

// Len returns the buffer size.
func (d *Line) Len() int { return len(d.buffer) }

// MaxDelay returns the longest delay ReadFractional can serve.
func (d *Line) MaxDelay() float64 { return float64(len(d.buffer) - 3) }

// Write stores one sample.
func (d *Line) Write(sample float64) {
	d.buffer[d.writePos] = sample
	d.writePos++
	if d.writePos >= len(d.buffer) {
		d.writePos = 0
	}
}

// Read returns the sample written delay writes ago.
func (d *Line) Read(delay int) float64 {
	size := len(d.buffer)
	return d.buffer[((d.writePos-delay)%size+size)%size]
}

// ReadFractional reads a delay in samples with cubic Hermite interpolation.
// The delay is clamped to [1, MaxDelay].
func (d *Line) ReadFractional(delay float64) float64 {
	delay = min(max(delay, 1), d.MaxDelay())

	p := int(math.Floor(delay))
	t := delay - float64(p)

	xm1 := d.Read(max(1, p-1))
	x0 := d.Read(p)
	x1 := d.Read(p + 1)
	x2 := d.Read(p + 2)
	return hermite4(t, xm1, x0, x1, x2)
}

// Reset clears the line.
func (d *Line) Reset() {
	clear(d.buffer)
	d.writePos = 0
}

// hermite4 interpolates between x0 and x1 at t in [0, 1).
func hermite4(t, xm1, x0, x1, x2 float64) float64 {
	c0 := x0
	c1 := 0.5 * (x1 - xm1)
	c2 := xm1 - 2.5*x0 + 2*x1 - 0.5*x2
	c3 := 0.5*(x2-xm1) + 1.5*(x0-x1)
	return ((c3*t+c2)*t+c1)*t + c0
}

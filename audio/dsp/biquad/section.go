package biquad

import (
	"sync"

	"github.com/cwbudde/algo-vecmath/cpu"
)

// Coefficients holds one second-order section. a0 is normalized to 1 and not
// stored.
//
//	y  = B0*x + d0
//	d0 = B1*x - A1*y + d1
//	d1 = B2*x - A2*y
type Coefficients struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// Identity passes the signal unchanged.
var Identity = Coefficients{B0: 1}

// Section is one biquad with its delay state.
type Section struct {
	Coefficients

	d0, d1 float64
}

type blockKernel func(s *Section, buf []float64)

var (
	kernel     blockKernel
	kernelOnce sync.Once
)

// kernelFor picks the block loop for the detected CPU. Generic builds and
// forced-generic runs use the plain loop; everything else gets the unrolled
// one.
func kernelFor(f cpu.Features) blockKernel {
	if f.ForceGeneric || (!f.HasSSE2 && !f.HasNEON) {
		return (*Section).processBlockScalar
	}
	return (*Section).processBlockUnrolled2
}

// NewSection returns a section with zero state.
func NewSection(c Coefficients) *Section {
	return &Section{Coefficients: c}
}

// ProcessSample filters one sample.
func (s *Section) ProcessSample(x float64) float64 {
	y := s.B0*x + s.d0
	s.d0 = s.B1*x - s.A1*y + s.d1
	s.d1 = s.B2*x - s.A2*y
	return y
}

// ProcessBlock filters buf in place. Zero-alloc.
func (s *Section) ProcessBlock(buf []float64) {
	kernelOnce.Do(func() { kernel = kernelFor(cpu.DetectFeatures()) })
	kernel(s, buf)
}

func (s *Section) processBlockScalar(buf []float64) {
	for i, x := range buf {
		y := s.B0*x + s.d0
		s.d0 = s.B1*x - s.A1*y + s.d1
		s.d1 = s.B2*x - s.A2*y
		buf[i] = y
	}
}

// processBlockUnrolled2 handles two samples per iteration.
func (s *Section) processBlockUnrolled2(buf []float64) {
	b0, b1, b2 := s.B0, s.B1, s.B2
	a1, a2 := s.A1, s.A2
	d0, d1 := s.d0, s.d1

	i := 0
	n := len(buf)
	for ; i+1 < n; i += 2 {
		x0 := buf[i]
		y0 := b0*x0 + d0
		d0n := b1*x0 - a1*y0 + d1
		d1n := b2*x0 - a2*y0

		x1 := buf[i+1]
		y1 := b0*x1 + d0n
		d0 = b1*x1 - a1*y1 + d1n
		d1 = b2*x1 - a2*y1

		buf[i] = y0
		buf[i+1] = y1
	}
	if i < n {
		x := buf[i]
		y := b0*x + d0
		d0 = b1*x - a1*y + d1
		d1 = b2*x - a2*y
		buf[i] = y
	}

	s.d0, s.d1 = d0, d1
}

// Reset clears the delay state.
func (s *Section) Reset() {
	s.d0, s.d1 = 0, 0
}

// State returns the delay state [d0, d1].
func (s *Section) State() [2]float64 {
	return [2]float64{s.d0, s.d1}
}

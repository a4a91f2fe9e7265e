package biquad

import "math"

// MagnitudeSquared returns |H(f)|^2 in closed form.
func (c Coefficients) MagnitudeSquared(freqHz, sampleRate float64) float64 {
	cw := 2 * math.Cos(2*math.Pi*freqHz/sampleRate)
	b0, b1, b2 := c.B0, c.B1, c.B2
	a1, a2 := c.A1, c.A2

	num := (b0-b2)*(b0-b2) + b1*b1 + (b1*(b0+b2)+b0*b2*cw)*cw
	den := (1-a2)*(1-a2) + a1*a1 + (a1*(a2+1)+cw*a2)*cw
	return num / den
}

// Magnitude returns |H(f)| of the full cascade.
func (c *Chain) Magnitude(freqHz, sampleRate float64) float64 {
	mag := 1.0
	for i := range c.sections {
		mag *= math.Sqrt(c.sections[i].MagnitudeSquared(freqHz, sampleRate))
	}
	return mag
}

// ImpulseResponse feeds a unit impulse through a fresh copy of the section
// and returns n output samples. s is not modified.
func (s *Section) ImpulseResponse(n int) []float64 {
	if n <= 0 {
		return nil
	}
	tmp := Section{Coefficients: s.Coefficients}
	ir := make([]float64, n)
	ir[0] = tmp.ProcessSample(1)
	for i := 1; i < n; i++ {
		ir[i] = tmp.ProcessSample(0)
	}
	return ir
}

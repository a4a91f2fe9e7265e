package biquad

// Chain is a cascade of sections processed in series. The drum filters use
// it to stack identical sections for steeper slopes.
type Chain struct {
	sections []Section
}

// NewChain creates one section per coefficient set.
func NewChain(coeffs []Coefficients) *Chain {
	c := &Chain{sections: make([]Section, len(coeffs))}
	for i := range coeffs {
		c.sections[i].Coefficients = coeffs[i]
	}
	return c
}

// Repeat returns n copies of c, the usual input to NewChain for a cascade
// of identical sections.
func Repeat(c Coefficients, n int) []Coefficients {
	out := make([]Coefficients, max(n, 0))
	for i := range out {
		out[i] = c
	}
	return out
}

// ProcessSample runs x through every section in order.
func (c *Chain) ProcessSample(x float64) float64 {
	for i := range c.sections {
		x = c.sections[i].ProcessSample(x)
	}
	return x
}

// ProcessBlock filters buf in place through the full cascade.
func (c *Chain) ProcessBlock(buf []float64) {
	for i := range c.sections {
		c.sections[i].ProcessBlock(buf)
	}
}

// SetCoefficients replaces the coefficients of every section. Delay state
// is kept when the section count is unchanged so a sweep does not click.
func (c *Chain) SetCoefficients(coeffs []Coefficients) {
	if len(coeffs) != len(c.sections) {
		c.sections = make([]Section, len(coeffs))
	}
	for i := range coeffs {
		c.sections[i].Coefficients = coeffs[i]
	}
}

// Reset clears every section.
func (c *Chain) Reset() {
	for i := range c.sections {
		c.sections[i].Reset()
	}
}

// NumSections returns the cascade length.
func (c *Chain) NumSections() int { return len(c.sections) }

// Order returns the filter order, two per section.
func (c *Chain) Order() int { return 2 * len(c.sections) }

// Section returns the i-th section.
func (c *Chain) Section(i int) *Section { return &c.sections[i] }

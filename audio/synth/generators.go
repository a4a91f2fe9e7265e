package synth

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/cwbudde/drumengine/audio/graph"
)

const (
	minFrequency = 1.0
	maxOctaves   = 8.0
)

// MembraneParams configures a pitched membrane: an oscillator that starts
// Octaves above Frequency and falls to it exponentially over PitchDecay.
type MembraneParams struct {
	Waveform   Waveform
	Frequency  float64
	PitchDecay float64
	Octaves    float64
	Envelope   Envelope
	Duration   float64
}

// NewMembrane creates a membrane source.
func NewMembrane(ctx *graph.Context, p MembraneParams) (*Source, error) {
	if p.Frequency < minFrequency || !isFinite(p.Frequency) {
		return nil, fmt.Errorf("membrane frequency must be >= %g Hz: %f", minFrequency, p.Frequency)
	}
	gen := &membrane{
		waveform:   p.Waveform,
		sampleRate: ctx.SampleRate(),
		freq:       p.Frequency,
		octaves:    math.Min(nonNegative(p.Octaves), maxOctaves),
		decay:      nonNegative(p.PitchDecay) * ctx.SampleRate(),
	}
	return newSource(ctx, "membrane", gen, p.Envelope, p.Duration), nil
}

type membrane struct {
	waveform   Waveform
	sampleRate float64
	freq       float64
	octaves    float64
	decay      float64 // frames

	base  float64
	phase float64
	age   float64
}

func (m *membrane) start(ratio float64) {
	m.base = m.freq * ratio
	m.phase = 0
	m.age = 0
}

func (m *membrane) next() float64 {
	f := m.base
	if m.age < m.decay {
		f *= math.Exp2(m.octaves * (1 - m.age/m.decay))
	}
	y := m.waveform.sample(m.phase)
	m.phase = wrapPhase(m.phase + 2*math.Pi*math.Min(f, m.sampleRate/2)/m.sampleRate)
	m.age++
	return y
}

// NoiseColor selects the noise spectrum.
type NoiseColor int

const (
	White NoiseColor = iota
	Pink
	Brown
)

// ParseNoiseColor maps a catalog noise name to a NoiseColor. Unknown names
// fall back to White and report false.
func ParseNoiseColor(name string) (NoiseColor, bool) {
	switch name {
	case "white":
		return White, true
	case "pink":
		return Pink, true
	case "brown":
		return Brown, true
	default:
		return White, false
	}
}

func (c NoiseColor) String() string {
	switch c {
	case White:
		return "white"
	case Pink:
		return "pink"
	case Brown:
		return "brown"
	default:
		return fmt.Sprintf("NoiseColor(%d)", int(c))
	}
}

// NoiseParams configures a noise burst.
type NoiseParams struct {
	Color    NoiseColor
	Envelope Envelope
	Duration float64
	Seed     uint64
}

// NewNoise creates a noise source. Equal seeds render equal noise.
func NewNoise(ctx *graph.Context, p NoiseParams) *Source {
	gen := &noise{
		color: p.Color,
		rng:   rand.New(rand.NewPCG(p.Seed, p.Seed+1)),
	}
	return newSource(ctx, "noise:"+p.Color.String(), gen, p.Envelope, p.Duration)
}

type noise struct {
	color NoiseColor
	rng   *rand.Rand

	b0, b1, b2 float64 // pink filter state
	last       float64 // brown integrator
}

// start keeps the generator state; noise has no pitch.
func (n *noise) start(float64) {}

func (n *noise) next() float64 {
	w := n.rng.Float64()*2 - 1
	switch n.color {
	case Pink:
		// Paul Kellet's economy pink filter.
		n.b0 = 0.99765*n.b0 + w*0.0990460
		n.b1 = 0.96300*n.b1 + w*0.2965164
		n.b2 = 0.57000*n.b2 + w*1.0526913
		return (n.b0 + n.b1 + n.b2 + w*0.1848) * 0.2
	case Brown:
		n.last = (n.last + 0.02*w) / 1.02
		return n.last * 3.5
	default:
		return w
	}
}

// OscillatorParams configures a fixed-pitch oscillator.
type OscillatorParams struct {
	Waveform  Waveform
	Frequency float64
	Envelope  Envelope
	Duration  float64
}

// NewOscillator creates an oscillator source.
func NewOscillator(ctx *graph.Context, p OscillatorParams) (*Source, error) {
	if p.Frequency < minFrequency || !isFinite(p.Frequency) {
		return nil, fmt.Errorf("oscillator frequency must be >= %g Hz: %f", minFrequency, p.Frequency)
	}
	gen := &oscillator{
		waveform:   p.Waveform,
		sampleRate: ctx.SampleRate(),
		freq:       p.Frequency,
	}
	return newSource(ctx, "oscillator:"+p.Waveform.String(), gen, p.Envelope, p.Duration), nil
}

type oscillator struct {
	waveform   Waveform
	sampleRate float64
	freq       float64

	step  float64
	phase float64
}

func (o *oscillator) start(ratio float64) {
	f := math.Min(o.freq*ratio, o.sampleRate/2)
	o.step = 2 * math.Pi * f / o.sampleRate
	o.phase = 0
}

func (o *oscillator) next() float64 {
	y := o.waveform.sample(o.phase)
	o.phase = wrapPhase(o.phase + o.step)
	return y
}

package fx

import (
	"fmt"
	"math"

	"github.com/cwbudde/drumengine/audio/graph"
)

const (
	defaultBitcrusherBits = 16.0
	minBitcrusherBits     = 1.0
	maxBitcrusherBits     = 32.0
	minBitcrusherRate     = 100.0
)

// BitcrusherOption mutates bitcrusher construction parameters.
type BitcrusherOption func(*bitcrusherConfig) error

type bitcrusherConfig struct {
	bits       float64
	targetRate float64
}

// WithBitDepth sets the quantization bit depth. Fractional values are
// supported. Range: [1, 32].
func WithBitDepth(bits float64) BitcrusherOption {
	return func(cfg *bitcrusherConfig) error {
		if bits < minBitcrusherBits || bits > maxBitcrusherBits || !finite(bits) {
			return fmt.Errorf("bitcrusher bit depth must be in [%g, %g]: %f",
				minBitcrusherBits, maxBitcrusherBits, bits)
		}
		cfg.bits = bits
		return nil
	}
}

// WithTargetRate sets the emulated sample rate in Hz. Rates at or above the
// context rate disable sample-and-hold.
func WithTargetRate(hz float64) BitcrusherOption {
	return func(cfg *bitcrusherConfig) error {
		if hz < minBitcrusherRate || !finite(hz) {
			return fmt.Errorf("bitcrusher target rate must be >= %g Hz: %f", minBitcrusherRate, hz)
		}
		cfg.targetRate = hz
		return nil
	}
}

// Bitcrusher reduces amplitude resolution and effective sample rate.
//
// Quantization snaps samples to a grid of 2^(bits-1) levels per polarity.
// Rate reduction uses a fractional sample-and-hold: a phase accumulator
// advancing by targetRate/sampleRate per frame decides when the held value
// is refreshed, so non-integer ratios (44100 -> 8000) hold for 5 or 6 frames
// in the right proportion.
type Bitcrusher struct {
	ctx  *graph.Context
	node *graph.Node
	proc *crusherProcessor
}

type crusherProcessor struct {
	bits        float64
	targetRate  float64
	quantLevels float64
	step        float64

	phase float64
	hold  float64
}

// NewBitcrusher creates a bitcrusher node.
func NewBitcrusher(ctx *graph.Context, opts ...BitcrusherOption) (*Bitcrusher, error) {
	cfg := bitcrusherConfig{bits: defaultBitcrusherBits, targetRate: ctx.SampleRate()}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	p := &crusherProcessor{}
	p.configure(cfg.bits, cfg.targetRate, ctx.SampleRate())
	// The first frame always samples.
	p.phase = 1 - p.step

	return &Bitcrusher{
		ctx:  ctx,
		node: ctx.NewNode("bitcrusher", p),
		proc: p,
	}, nil
}

// BitDepth returns the quantization bit depth.
func (b *Bitcrusher) BitDepth() float64 {
	var v float64
	b.ctx.Update(func() { v = b.proc.bits })
	return v
}

// TargetRate returns the emulated sample rate in Hz.
func (b *Bitcrusher) TargetRate() float64 {
	var v float64
	b.ctx.Update(func() { v = b.proc.targetRate })
	return v
}

// Input returns the crusher node.
func (b *Bitcrusher) Input() *graph.Node { return b.node }

// Output returns the crusher node.
func (b *Bitcrusher) Output() *graph.Node { return b.node }

// Connect routes the crusher output to dst.
func (b *Bitcrusher) Connect(dst *graph.Node) error { return b.node.Connect(dst) }

// Dispose releases the node.
func (b *Bitcrusher) Dispose() { b.node.Dispose() }

func (p *crusherProcessor) configure(bits, targetRate, sampleRate float64) {
	p.bits = bits
	p.targetRate = targetRate
	p.quantLevels = math.Exp2(bits - 1)
	p.step = math.Min(targetRate/sampleRate, 1)
}

func (p *crusherProcessor) Process(_ int64, in, out []float64) {
	for i, x := range in {
		p.phase += p.step
		if p.phase >= 1 {
			p.phase -= math.Floor(p.phase)
			p.hold = p.quantize(x)
		}
		out[i] = p.hold
	}
}

// quantize snaps a sample to the nearest quantization level.
// Input is assumed in [-1, 1] but values outside are quantized without clipping.
func (p *crusherProcessor) quantize(sample float64) float64 {
	return math.Round(sample*p.quantLevels) / p.quantLevels
}

package fx

import (
	"fmt"

	"github.com/cwbudde/algo-vecmath"
	"github.com/cwbudde/drumengine/audio/graph"
)

// gainSmoothingSeconds is the ramp length used when the gain changes, to
// avoid zipper noise.
const gainSmoothingSeconds = 0.005

// Gain is a linear gain stage with a short linear ramp on changes.
type Gain struct {
	ctx  *graph.Context
	node *graph.Node
	proc *gainProcessor
}

type gainProcessor struct {
	current    float64
	target     float64
	step       float64
	rampFrames int
	ramp       []float64
}

// NewGain creates a gain stage at the given linear gain (>= 0).
func NewGain(ctx *graph.Context, name string, gain float64) (*Gain, error) {
	if gain < 0 || !finite(gain) {
		return nil, fmt.Errorf("gain must be >= 0 and finite: %f", gain)
	}
	frames := int(gainSmoothingSeconds * ctx.SampleRate())
	if frames < 1 {
		frames = 1
	}
	p := &gainProcessor{
		current:    gain,
		target:     gain,
		rampFrames: frames,
		ramp:       make([]float64, ctx.BlockSize()),
	}
	return &Gain{ctx: ctx, node: ctx.NewNode(name, p), proc: p}, nil
}

// SetGain ramps to a new linear gain. Negative or non-finite values are
// treated as 0.
func (g *Gain) SetGain(gain float64) {
	if gain < 0 || !finite(gain) {
		gain = 0
	}
	g.ctx.Update(func() {
		p := g.proc
		p.target = gain
		p.step = (p.target - p.current) / float64(p.rampFrames)
	})
}

// Gain returns the target gain.
func (g *Gain) Gain() float64 {
	var v float64
	g.ctx.Update(func() { v = g.proc.target })
	return v
}

// Input returns the gain node.
func (g *Gain) Input() *graph.Node { return g.node }

// Output returns the gain node.
func (g *Gain) Output() *graph.Node { return g.node }

// Connect routes the gain output to dst.
func (g *Gain) Connect(dst *graph.Node) error { return g.node.Connect(dst) }

// Dispose releases the node.
func (g *Gain) Dispose() { g.node.Dispose() }

func (p *gainProcessor) Process(_ int64, in, out []float64) {
	if p.current == p.target {
		if p.current == 1 {
			copy(out, in)
			return
		}
		for i, v := range in {
			out[i] = v * p.current
		}
		return
	}

	ramp := p.ramp[:len(in)]
	for i := range ramp {
		if p.current != p.target {
			p.current += p.step
			if (p.step > 0 && p.current > p.target) || (p.step < 0 && p.current < p.target) || p.step == 0 {
				p.current = p.target
			}
		}
		ramp[i] = p.current
	}
	vecmath.MulBlock(out, in, ramp)
}

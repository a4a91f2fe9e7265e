package fx

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/cwbudde/algo-vecmath"
	"github.com/cwbudde/drumengine/audio/dsp/conv"
	"github.com/cwbudde/drumengine/audio/graph"
)

const (
	defaultReverbDecay    = 1.5
	defaultReverbPreDelay = 0.01
	defaultReverbReturn   = 0.35
	defaultReverbDry      = 1.0
	defaultReverbSeed     = 0x5eed

	minReverbDecay    = 0.05
	maxReverbDecay    = 6.0
	maxReverbPreDelay = 0.25

	// decayFloorDB is the attenuation reached at the end of the tail.
	decayFloorDB = -60.0
)

// ReverbOption mutates reverb bus construction parameters.
type ReverbOption func(*reverbConfig) error

type reverbConfig struct {
	decay    float64
	preDelay float64
	ret      float64
	dry      float64
	seed     uint64
}

// WithDecay sets the tail length in seconds (time to -60 dB).
// Range: [0.05, 6].
func WithDecay(seconds float64) ReverbOption {
	return func(cfg *reverbConfig) error {
		if seconds < minReverbDecay || seconds > maxReverbDecay || !finite(seconds) {
			return fmt.Errorf("reverb decay must be in [%g, %g]: %f", minReverbDecay, maxReverbDecay, seconds)
		}
		cfg.decay = seconds
		return nil
	}
}

// WithPreDelay sets the silence before the tail in seconds. Range: [0, 0.25].
func WithPreDelay(seconds float64) ReverbOption {
	return func(cfg *reverbConfig) error {
		if seconds < 0 || seconds > maxReverbPreDelay || !finite(seconds) {
			return fmt.Errorf("reverb pre-delay must be in [0, %g]: %f", maxReverbPreDelay, seconds)
		}
		cfg.preDelay = seconds
		return nil
	}
}

// WithReturnGain sets the wet return level. Range: [0, 1].
func WithReturnGain(gain float64) ReverbOption {
	return func(cfg *reverbConfig) error {
		if gain < 0 || gain > 1 || !finite(gain) {
			return fmt.Errorf("reverb return gain must be in [0, 1]: %f", gain)
		}
		cfg.ret = gain
		return nil
	}
}

// WithDryGain sets the level of the dry path through the bus. Range: [0, 1].
func WithDryGain(gain float64) ReverbOption {
	return func(cfg *reverbConfig) error {
		if gain < 0 || gain > 1 || !finite(gain) {
			return fmt.Errorf("reverb dry gain must be in [0, 1]: %f", gain)
		}
		cfg.dry = gain
		return nil
	}
}

// WithSeed sets the seed of the noise the impulse response is built from.
func WithSeed(seed uint64) ReverbOption {
	return func(cfg *reverbConfig) error {
		cfg.seed = seed
		return nil
	}
}

// ReverbBus is the shared send reverb.
//
// Sources feed either the dry input, which passes to the output at the dry
// gain, or the send, which is convolved with a synthetic impulse response
// and returned at the return gain. Responses longer than one render quantum
// are convolved in quantum-sized partitions, which adds one quantum of
// latency to the wet path.
type ReverbBus struct {
	dryIn *graph.Node
	send  *graph.Node
	conv  *graph.Node
	ret   *Gain
	out   *graph.Node

	dry     float64
	ir      []float64
	latency int
	dst     *graph.Node
}

// NewReverbBus builds the bus. The output is left unconnected.
func NewReverbBus(ctx *graph.Context, opts ...ReverbOption) (*ReverbBus, error) {
	cfg := reverbConfig{
		decay:    defaultReverbDecay,
		preDelay: defaultReverbPreDelay,
		ret:      defaultReverbReturn,
		dry:      defaultReverbDry,
		seed:     defaultReverbSeed,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	ir := ImpulseResponse(ctx.SampleRate(), cfg.decay, cfg.preDelay, cfg.seed)
	cv, err := conv.New(ir, ctx.BlockSize())
	if err != nil {
		return nil, fmt.Errorf("reverb: %w", err)
	}

	ret, err := NewGain(ctx, "reverb:return", cfg.ret)
	if err != nil {
		return nil, err
	}

	r := &ReverbBus{
		dryIn:   ctx.NewNode("reverb:dry", graph.Passthrough{}),
		send:    ctx.NewNode("reverb:send", graph.Passthrough{}),
		conv:    ctx.NewNode("reverb:convolver", convProcessor{cv}),
		ret:     ret,
		out:     ctx.NewNode("reverb:out", graph.Passthrough{}),
		dry:     cfg.dry,
		ir:      ir,
		latency: cv.Latency(),
	}

	if err := r.send.Connect(r.conv); err != nil {
		return nil, err
	}
	if err := r.conv.Connect(r.ret.Input()); err != nil {
		return nil, err
	}
	if err := r.ret.Connect(r.out); err != nil {
		return nil, err
	}
	if err := r.dryIn.ConnectGain(r.out, r.dry); err != nil {
		return nil, err
	}
	return r, nil
}

// ImpulseResponse synthesizes an exponentially decaying noise tail.
// The response is normalized to unit energy.
func ImpulseResponse(sampleRate, decay, preDelay float64, seed uint64) []float64 {
	pre := int(math.Round(preDelay * sampleRate))
	tail := max(int(math.Round(decay*sampleRate)), 1)

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	noise := make([]float64, tail)
	env := make([]float64, tail)
	k := math.Log(math.Pow(10, decayFloorDB/20)) / float64(tail)
	for i := range noise {
		noise[i] = rng.Float64()*2 - 1
		env[i] = math.Exp(k * float64(i))
	}
	vecmath.MulBlockInPlace(noise, env)

	var energy float64
	for _, v := range noise {
		energy += v * v
	}
	if energy > 0 {
		vecmath.ScaleBlock(noise, noise, 1/math.Sqrt(energy))
	}

	ir := make([]float64, pre+tail)
	copy(ir[pre:], noise)
	return ir
}

// Input returns the dry input.
func (r *ReverbBus) Input() *graph.Node { return r.dryIn }

// Send returns the wet send input.
func (r *ReverbBus) Send() *graph.Node { return r.send }

// Output returns the bus output, carrying dry and wet signal.
func (r *ReverbBus) Output() *graph.Node { return r.out }

// Connect routes the bus output to dst, replacing the previous destination.
func (r *ReverbBus) Connect(dst *graph.Node) error {
	if r.dst != nil && r.dst != dst {
		r.out.DisconnectFrom(r.dst)
	}
	if err := r.out.Connect(dst); err != nil {
		return err
	}
	r.dst = dst
	return nil
}

// Destination returns the node the bus output feeds, or nil.
func (r *ReverbBus) Destination() *graph.Node { return r.dst }

// SetReturnGain ramps the wet return level to gain, clamped to [0, 1].
func (r *ReverbBus) SetReturnGain(gain float64) {
	if !finite(gain) {
		gain = 0
	}
	r.ret.SetGain(clamp(gain, 0, 1))
}

// ReturnGain returns the wet return level.
func (r *ReverbBus) ReturnGain() float64 { return r.ret.Gain() }

// DryGain returns the dry path level.
func (r *ReverbBus) DryGain() float64 { return r.dry }

// IR returns a copy of the impulse response.
func (r *ReverbBus) IR() []float64 {
	out := make([]float64, len(r.ir))
	copy(out, r.ir)
	return out
}

// Latency returns the wet path latency in frames.
func (r *ReverbBus) Latency() int { return r.latency }

// Dispose releases every node of the bus.
func (r *ReverbBus) Dispose() {
	r.dryIn.Dispose()
	r.send.Dispose()
	r.conv.Dispose()
	r.ret.Dispose()
	r.out.Dispose()
}

type convProcessor struct {
	cv conv.Convolver
}

// Process mutes the block if the FFT fails.
func (p convProcessor) Process(_ int64, in, out []float64) {
	if err := p.cv.ProcessBlockTo(out, in); err != nil {
		clear(out)
	}
}

package fx

import (
	"errors"
	"fmt"

	"github.com/cwbudde/drumengine/audio/dsp/biquad"
	"github.com/cwbudde/drumengine/audio/dsp/design"
	"github.com/cwbudde/drumengine/audio/graph"
)

// FilterType selects the biquad response.
type FilterType int

const (
	Lowpass FilterType = iota
	Highpass
	Bandpass
)

// String returns the catalog name of the response.
func (t FilterType) String() string {
	switch t {
	case Lowpass:
		return "lowpass"
	case Highpass:
		return "highpass"
	case Bandpass:
		return "bandpass"
	default:
		return fmt.Sprintf("FilterType(%d)", int(t))
	}
}

// ParseFilterType maps a catalog filter name to a FilterType.
func ParseFilterType(name string) (FilterType, bool) {
	switch name {
	case "lowpass":
		return Lowpass, true
	case "highpass":
		return Highpass, true
	case "bandpass":
		return Bandpass, true
	default:
		return Lowpass, false
	}
}

// ErrRolloff is returned for slopes other than -12, -24, -48 or -96 dB/oct.
var ErrRolloff = errors.New("fx: unsupported filter rolloff")

const (
	// DefaultFilterQ is the Butterworth quality factor.
	DefaultFilterQ = design.DefaultQ
	// DefaultRolloff is the slope of a single biquad section in dB/oct.
	DefaultRolloff = -12

	minFilterFreq = 10.0
	maxFilterNorm = 0.49
)

// SectionsForRolloff returns the cascade length that realises a slope.
func SectionsForRolloff(rolloff int) (int, error) {
	switch rolloff {
	case -12:
		return 1, nil
	case -24:
		return 2, nil
	case -48:
		return 4, nil
	case -96:
		return 8, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrRolloff, rolloff)
	}
}

// FilterOption mutates filter construction parameters.
type FilterOption func(*filterConfig) error

type filterConfig struct {
	kind    FilterType
	freq    float64
	q       float64
	rolloff int
}

// WithFilterType sets the response.
func WithFilterType(kind FilterType) FilterOption {
	return func(cfg *filterConfig) error {
		if kind < Lowpass || kind > Bandpass {
			return fmt.Errorf("filter type invalid: %d", kind)
		}
		cfg.kind = kind
		return nil
	}
}

// WithCutoff sets the corner (or center) frequency in Hz.
func WithCutoff(hz float64) FilterOption {
	return func(cfg *filterConfig) error {
		if hz <= 0 || !finite(hz) {
			return fmt.Errorf("filter cutoff must be > 0: %f", hz)
		}
		cfg.freq = hz
		return nil
	}
}

// WithQ sets the quality factor.
func WithQ(q float64) FilterOption {
	return func(cfg *filterConfig) error {
		if q <= 0 || !finite(q) {
			return fmt.Errorf("filter Q must be > 0: %f", q)
		}
		cfg.q = q
		return nil
	}
}

// WithRolloff sets the slope in dB/oct.
func WithRolloff(rolloff int) FilterOption {
	return func(cfg *filterConfig) error {
		if _, err := SectionsForRolloff(rolloff); err != nil {
			return err
		}
		cfg.rolloff = rolloff
		return nil
	}
}

// Filter is a cascade of identical RBJ biquad sections.
type Filter struct {
	ctx  *graph.Context
	node *graph.Node
	proc *filterProcessor
}

type filterProcessor struct {
	sampleRate float64
	kind       FilterType
	freq       float64
	q          float64
	rolloff    int
	chain      *biquad.Chain
}

// NewFilter creates a filter node. Defaults: lowpass, 1 kHz, Q 1/sqrt(2),
// -12 dB/oct.
func NewFilter(ctx *graph.Context, opts ...FilterOption) (*Filter, error) {
	cfg := filterConfig{kind: Lowpass, freq: 1000, q: DefaultFilterQ, rolloff: DefaultRolloff}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	n, _ := SectionsForRolloff(cfg.rolloff)
	p := &filterProcessor{
		sampleRate: ctx.SampleRate(),
		kind:       cfg.kind,
		freq:       cfg.freq,
		q:          cfg.q,
		rolloff:    cfg.rolloff,
		chain:      biquad.NewChain(biquad.Repeat(biquad.Identity, n)),
	}
	p.design()

	return &Filter{ctx: ctx, node: ctx.NewNode("filter:"+cfg.kind.String(), p), proc: p}, nil
}

// SetCutoff changes the corner frequency. Filter state is kept.
func (f *Filter) SetCutoff(hz float64) error {
	if hz <= 0 || !finite(hz) {
		return fmt.Errorf("filter cutoff must be > 0: %f", hz)
	}
	f.ctx.Update(func() {
		f.proc.freq = hz
		f.proc.design()
	})
	return nil
}

// SetQ changes the quality factor. Filter state is kept.
func (f *Filter) SetQ(q float64) error {
	if q <= 0 || !finite(q) {
		return fmt.Errorf("filter Q must be > 0: %f", q)
	}
	f.ctx.Update(func() {
		f.proc.q = q
		f.proc.design()
	})
	return nil
}

// Type returns the response.
func (f *Filter) Type() FilterType { return f.proc.kind }

// Rolloff returns the slope in dB/oct.
func (f *Filter) Rolloff() int { return f.proc.rolloff }

// Cutoff returns the configured corner frequency.
func (f *Filter) Cutoff() float64 {
	var v float64
	f.ctx.Update(func() { v = f.proc.freq })
	return v
}

// Input returns the filter node.
func (f *Filter) Input() *graph.Node { return f.node }

// Output returns the filter node.
func (f *Filter) Output() *graph.Node { return f.node }

// Connect routes the filter output to dst.
func (f *Filter) Connect(dst *graph.Node) error { return f.node.Connect(dst) }

// Dispose releases the node.
func (f *Filter) Dispose() { f.node.Dispose() }

// MagnitudeAt returns the cascade magnitude response at freq Hz.
func (f *Filter) MagnitudeAt(freq float64) float64 {
	var mag float64
	f.ctx.Update(func() { mag = f.proc.chain.Magnitude(freq, f.proc.sampleRate) })
	return mag
}

func (p *filterProcessor) design() {
	freq := clamp(p.freq, minFilterFreq, maxFilterNorm*p.sampleRate)
	var c biquad.Coefficients
	switch p.kind {
	case Highpass:
		c = design.Highpass(freq, p.q, p.sampleRate)
	case Bandpass:
		c = design.Bandpass(freq, p.q, p.sampleRate)
	default:
		c = design.Lowpass(freq, p.q, p.sampleRate)
	}
	p.chain.SetCoefficients(biquad.Repeat(c, p.chain.NumSections()))
}

func (p *filterProcessor) Process(_ int64, in, out []float64) {
	copy(out, in)
	p.chain.ProcessBlock(out)
}

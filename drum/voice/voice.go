// Package voice builds and owns the persistent voices of the drum engine.
//
// A Voice is bound to one sound definition for its whole life. Synthesis
// voices wrap one or two generators with their fixed filters; sample voices
// wrap an overlapping-retrigger player. At rest every voice output feeds the
// Destination directly; the router re-routes outputs per trigger.
package voice

import (
	"errors"
	"fmt"

	"github.com/cwbudde/drumengine/audio/fx"
	"github.com/cwbudde/drumengine/audio/graph"
	"github.com/cwbudde/drumengine/audio/synth"
	"github.com/cwbudde/drumengine/drum/sound"
)

var (
	// ErrNoRecipe is returned when a synthesis voice is requested for a
	// definition without a recipe.
	ErrNoRecipe = errors.New("voice: definition has no synthesis recipe")
	// ErrNotReady is returned by a sample voice whose sample is not loaded
	// and which has no synthesis fallback.
	ErrNotReady = errors.New("voice: sample not loaded")
	// ErrDisposed is returned when triggering a disposed voice.
	ErrDisposed = errors.New("voice: disposed")
)

// Cancel removes the not-yet-started parts of a hit. It reports whether
// anything was removed.
type Cancel func() bool

// Voice is a persistent sound unit bound to one definition.
type Voice interface {
	// ID returns the definition id.
	ID() int64
	// Outputs returns the nodes the router re-routes per trigger.
	Outputs() []*graph.Node
	// Trigger schedules one hit at audio clock time at. ratio scales the
	// pitch (or playback rate); velocity scales the amplitude.
	Trigger(at, ratio, velocity float64) (Cancel, error)
	// HitOffsets returns the hit times of one trigger relative to its base
	// time.
	HitOffsets() []float64
	// Duration returns the seconds from a hit at unity pitch until the voice
	// is silent.
	Duration() float64
	// Dispose releases every node owned by the voice.
	Dispose()
}

// chain is one generator with its optional fixed filter.
type chain struct {
	src    *synth.Source
	filter *fx.Filter
}

func (c chain) output() *graph.Node {
	if c.filter != nil {
		return c.filter.Output()
	}
	return c.src.Node()
}

func (c chain) dispose() {
	c.src.Dispose()
	if c.filter != nil {
		c.filter.Dispose()
	}
}

// SynthVoice renders a synthesis recipe.
type SynthVoice struct {
	id       int64
	kind     sound.RecipeKind
	chains   []chain
	offsets  []float64
	duration float64
}

var _ Voice = (*SynthVoice)(nil)

// NewSynthVoice builds the generators and filters of def's recipe and
// connects them to the Destination.
func NewSynthVoice(ctx *graph.Context, def sound.Definition) (*SynthVoice, error) {
	if def.Recipe == nil {
		return nil, fmt.Errorf("%w: sound %d", ErrNoRecipe, def.ID)
	}

	v := &SynthVoice{
		id:       def.ID,
		kind:     def.Recipe.Kind(),
		offsets:  sound.HitOffsets(def.Recipe),
		duration: def.Recipe.Length(),
	}

	var err error
	switch r := def.Recipe.(type) {
	case *sound.MembraneRecipe:
		var src *synth.Source
		if src, err = synth.NewMembrane(ctx, r.Params()); err == nil {
			err = v.addChain(ctx, src, nil)
		}

	case *sound.NoiseRecipe:
		src := synth.NewNoise(ctx, synth.NoiseParams{
			Color:    r.Color,
			Envelope: r.Envelope,
			Duration: r.Duration,
			Seed:     uint64(def.ID),
		})
		err = v.addChain(ctx, src, r.Filter)

	case *sound.DualRecipe:
		for _, osc := range r.Oscillators {
			var src *synth.Source
			src, err = synth.NewOscillator(ctx, synth.OscillatorParams{
				Waveform:  osc.Waveform,
				Frequency: osc.Frequency,
				Envelope:  r.Envelope,
				Duration:  r.Duration,
			})
			if err != nil {
				break
			}
			if err = v.addChain(ctx, src, osc.Filter); err != nil {
				break
			}
		}

	default:
		err = fmt.Errorf("voice: unsupported recipe %T", r)
	}

	if err != nil {
		v.Dispose()
		return nil, fmt.Errorf("voice: build sound %d: %w", def.ID, err)
	}
	return v, nil
}

func (v *SynthVoice) addChain(ctx *graph.Context, src *synth.Source, fr *sound.FilterRecipe) error {
	c := chain{src: src}
	// Take ownership first so a failure below still disposes src.
	v.chains = append(v.chains, c)

	if fr != nil {
		norm, _ := fr.Normalize()
		f, err := fx.NewFilter(ctx, norm.Options()...)
		if err != nil {
			return err
		}
		c.filter = f
		v.chains[len(v.chains)-1] = c
		if err := src.Node().Connect(f.Input()); err != nil {
			return err
		}
	}
	return c.output().Connect(ctx.Destination())
}

// ID returns the definition id.
func (v *SynthVoice) ID() int64 { return v.id }

// Kind returns the recipe variant the voice was built from.
func (v *SynthVoice) Kind() sound.RecipeKind { return v.kind }

// Outputs returns one node per chain.
func (v *SynthVoice) Outputs() []*graph.Node {
	out := make([]*graph.Node, len(v.chains))
	for i, c := range v.chains {
		out[i] = c.output()
	}
	return out
}

// Trigger starts every chain at the same time.
func (v *SynthVoice) Trigger(at, ratio, velocity float64) (Cancel, error) {
	if len(v.chains) == 0 || v.chains[0].src.Node().Disposed() {
		return nil, ErrDisposed
	}

	type pending struct {
		src *synth.Source
		id  uint64
	}
	hits := make([]pending, len(v.chains))
	for i, c := range v.chains {
		hits[i] = pending{src: c.src, id: c.src.Trigger(at, ratio, velocity)}
	}
	return func() bool {
		removed := false
		for _, h := range hits {
			if h.src.Cancel(h.id) {
				removed = true
			}
		}
		return removed
	}, nil
}

// HitOffsets returns the recipe hit offsets.
func (v *SynthVoice) HitOffsets() []float64 { return v.offsets }

// Duration returns the envelope length.
func (v *SynthVoice) Duration() float64 { return v.duration }

// Dispose releases every generator and filter.
func (v *SynthVoice) Dispose() {
	for _, c := range v.chains {
		c.dispose()
	}
}

package sound

import (
	"github.com/cwbudde/drumengine/audio/fx"
	"github.com/cwbudde/drumengine/audio/synth"
)

// RecipeKind names a synthesis variant.
type RecipeKind string

const (
	KindMembrane RecipeKind = "membrane"
	KindNoise    RecipeKind = "noise"
	KindDual     RecipeKind = "dual"
)

// Recipe is the synthesis recipe of a definition. The variant set is
// closed: *MembraneRecipe, *NoiseRecipe and *DualRecipe.
type Recipe interface {
	Kind() RecipeKind
	// Length returns the seconds from a hit until the voice is silent.
	Length() float64
	isRecipe()
}

// FilterRecipe is a fixed filter inside a synthesis voice.
type FilterRecipe struct {
	Type      fx.FilterType
	Frequency float64
	Q         float64
	Rolloff   int
}

// Normalize replaces unusable values: Q <= 0 becomes 1, an unsupported
// rolloff becomes -12 and a non-positive frequency becomes 1 kHz. It
// reports whether anything changed.
func (f FilterRecipe) Normalize() (FilterRecipe, bool) {
	changed := false
	if !(f.Q > 0) || !finite(f.Q) {
		f.Q = 1
		changed = true
	}
	if _, err := fx.SectionsForRolloff(f.Rolloff); err != nil {
		f.Rolloff = fx.DefaultRolloff
		changed = true
	}
	if !(f.Frequency > 0) || !finite(f.Frequency) {
		f.Frequency = 1000
		changed = true
	}
	return f, changed
}

// Options returns the filter construction options.
func (f FilterRecipe) Options() []fx.FilterOption {
	return []fx.FilterOption{
		fx.WithFilterType(f.Type),
		fx.WithCutoff(f.Frequency),
		fx.WithQ(f.Q),
		fx.WithRolloff(f.Rolloff),
	}
}

// MembraneRecipe is a single pitched envelope generator (kick, tom).
type MembraneRecipe struct {
	Waveform   synth.Waveform
	Frequency  float64
	PitchDecay float64
	Octaves    float64
	Envelope   synth.Envelope
	Duration   float64
}

func (*MembraneRecipe) Kind() RecipeKind { return KindMembrane }
func (*MembraneRecipe) isRecipe()        {}

func (r *MembraneRecipe) Length() float64 { return r.Envelope.Length(r.Duration) }

// Params returns the generator parameters at the given pitch.
func (r *MembraneRecipe) Params() synth.MembraneParams {
	return synth.MembraneParams{
		Waveform:   r.Waveform,
		Frequency:  r.Frequency,
		PitchDecay: r.PitchDecay,
		Octaves:    r.Octaves,
		Envelope:   r.Envelope,
		Duration:   r.Duration,
	}
}

// NoiseRecipe is a noise burst through an optional fixed filter (snare,
// hats, clap, cymbals). HitOffsets retrigger the burst relative to the
// trigger time; an empty list means a single hit at 0.
type NoiseRecipe struct {
	Color      synth.NoiseColor
	Envelope   synth.Envelope
	Filter     *FilterRecipe
	Duration   float64
	HitOffsets []float64
}

func (*NoiseRecipe) Kind() RecipeKind { return KindNoise }
func (*NoiseRecipe) isRecipe()        {}

func (r *NoiseRecipe) Length() float64 { return r.Envelope.Length(r.Duration) }

// OscillatorRecipe is one chain of a dual recipe.
type OscillatorRecipe struct {
	Waveform  synth.Waveform
	Frequency float64
	Filter    *FilterRecipe
}

// DualRecipe is two oscillator chains triggered together (cowbell).
type DualRecipe struct {
	Oscillators [2]OscillatorRecipe
	Envelope    synth.Envelope
	Duration    float64
}

func (*DualRecipe) Kind() RecipeKind { return KindDual }
func (*DualRecipe) isRecipe()        {}

func (r *DualRecipe) Length() float64 { return r.Envelope.Length(r.Duration) }

// HitOffsets returns the offsets of every hit of a recipe relative to the
// trigger time. Recipes without multiple hits return [0].
func HitOffsets(r Recipe) []float64 {
	if n, ok := r.(*NoiseRecipe); ok && len(n.HitOffsets) > 0 {
		return n.HitOffsets
	}
	return []float64{0}
}

// DefaultRecipe returns the recipe used for a drum type when the catalog
// does not provide a usable one.
func DefaultRecipe(drumType string) Recipe {
	switch drumType {
	case "kick":
		return &MembraneRecipe{
			Waveform:   synth.Sine,
			Frequency:  50,
			PitchDecay: 0.05,
			Octaves:    5,
			Envelope:   synth.Envelope{Attack: 0.001, Decay: 0.4, Sustain: 0.01, Release: 0.2},
			Duration:   0.4,
		}
	case "tom":
		return &MembraneRecipe{
			Waveform:   synth.Sine,
			Frequency:  120,
			PitchDecay: 0.08,
			Octaves:    2,
			Envelope:   synth.Envelope{Attack: 0.001, Decay: 0.3, Sustain: 0, Release: 0.1},
			Duration:   0.3,
		}
	case "cowbell":
		bp := func(hz float64) *FilterRecipe {
			return &FilterRecipe{Type: fx.Bandpass, Frequency: hz, Q: 3, Rolloff: -12}
		}
		return &DualRecipe{
			Oscillators: [2]OscillatorRecipe{
				{Waveform: synth.Square, Frequency: 540, Filter: bp(540)},
				{Waveform: synth.Square, Frequency: 800, Filter: bp(800)},
			},
			Envelope: synth.Envelope{Attack: 0.001, Decay: 0.3, Sustain: 0, Release: 0.05},
			Duration: 0.3,
		}
	case "clap":
		return &NoiseRecipe{
			Color:      synth.Pink,
			Envelope:   synth.Envelope{Attack: 0.001, Decay: 0.1, Sustain: 0, Release: 0.05},
			Filter:     &FilterRecipe{Type: fx.Bandpass, Frequency: 1500, Q: 1, Rolloff: -12},
			Duration:   0.1,
			HitOffsets: []float64{0, 0.01, 0.02, 0.03},
		}
	case "hihat", "hat", "openhat":
		return &NoiseRecipe{
			Color:    synth.White,
			Envelope: synth.Envelope{Attack: 0.001, Decay: 0.05, Sustain: 0, Release: 0.02},
			Filter:   &FilterRecipe{Type: fx.Highpass, Frequency: 7000, Q: 1, Rolloff: -24},
			Duration: 0.05,
		}
	case "crash", "ride", "cymbal":
		return &NoiseRecipe{
			Color:    synth.White,
			Envelope: synth.Envelope{Attack: 0.001, Decay: 1.2, Sustain: 0, Release: 0.3},
			Filter:   &FilterRecipe{Type: fx.Highpass, Frequency: 5000, Q: 1, Rolloff: -12},
			Duration: 1.2,
		}
	default:
		return &NoiseRecipe{
			Color:    synth.White,
			Envelope: synth.Envelope{Attack: 0.001, Decay: 0.2, Sustain: 0, Release: 0.05},
			Filter:   &FilterRecipe{Type: fx.Highpass, Frequency: 1000, Q: 1, Rolloff: -12},
			Duration: 0.2,
		}
	}
}

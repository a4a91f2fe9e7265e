package sound

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/cwbudde/drumengine/audio/fx"
	"github.com/cwbudde/drumengine/audio/synth"
)

// Mode is how a definition produces sound.
type Mode string

const (
	ModeSynthesis Mode = "synthesis"
	ModeSample    Mode = "sample"
)

// Definition describes one playable sound. It is owned by the catalog and
// read-only for the engine.
type Definition struct {
	ID        int64
	Name      string
	DrumType  string
	Mode      Mode
	Recipe    Recipe // nil for sample sounds without a synthesis fallback
	SampleURI string
	PackID    int64

	warnings []string
}

// Key returns the stable sound key used for sample caching and playback.
func (d Definition) Key() string {
	return strconv.FormatInt(d.ID, 10)
}

// Warnings returns the normalizations applied while decoding.
func (d Definition) Warnings() []string {
	return d.warnings
}

// HasSample reports whether the definition plays a sample.
func (d Definition) HasSample() bool {
	return d.Mode == ModeSample && d.SampleURI != ""
}

type rawFilter struct {
	Type      string   `json:"type"`
	Frequency float64  `json:"frequency"`
	Q         *float64 `json:"Q"`
	Rolloff   int      `json:"rolloff"`
}

type rawOscillator struct {
	Type      string     `json:"type"`
	Frequency float64    `json:"frequency"`
	Filter    *rawFilter `json:"filter"`
}

type rawNoise struct {
	Type string `json:"type"`
}

type rawRecipe struct {
	SynthType   string          `json:"synthType"`
	Oscillator  *rawOscillator  `json:"oscillator"`
	Noise       *rawNoise       `json:"noise"`
	Frequency   float64         `json:"frequency"`
	PitchDecay  float64         `json:"pitchDecay"`
	Octaves     float64         `json:"octaves"`
	Envelope    *synth.Envelope `json:"envelope"`
	Filter      *rawFilter      `json:"filter"`
	Duration    float64         `json:"duration"`
	HitOffsets  []float64       `json:"hitOffsets"`
	Oscillators []rawOscillator `json:"oscillators"`
}

type rawDefinition struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	DrumType        string          `json:"drum_type"`
	Type            Mode            `json:"type"`
	SynthesisParams json.RawMessage `json:"synthesis_params"`
	SamplePath      string          `json:"sample_path"`
	PackID          int64           `json:"pack_id"`
}

// UnmarshalJSON decodes a catalog definition. Only structurally invalid
// JSON is an error; unusable synthesis data is normalized.
func (d *Definition) UnmarshalJSON(data []byte) error {
	var raw rawDefinition
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("sound: decode definition: %w", err)
	}

	*d = Definition{
		ID:        raw.ID,
		Name:      raw.Name,
		DrumType:  raw.DrumType,
		Mode:      raw.Type,
		SampleURI: raw.SamplePath,
		PackID:    raw.PackID,
	}

	switch d.Mode {
	case ModeSynthesis, ModeSample:
	default:
		if d.SampleURI != "" {
			d.Mode = ModeSample
		} else {
			d.Mode = ModeSynthesis
		}
		d.warn("unknown mode %q, using %s", raw.Type, d.Mode)
	}

	hasParams := len(raw.SynthesisParams) > 0 && string(raw.SynthesisParams) != "null"
	if !hasParams {
		if d.Mode == ModeSynthesis {
			d.Recipe = DefaultRecipe(d.DrumType)
			d.warn("missing synthesis params, using %s default", d.DrumType)
		}
		return nil
	}

	var rr rawRecipe
	if err := json.Unmarshal(raw.SynthesisParams, &rr); err != nil {
		d.Recipe = DefaultRecipe(d.DrumType)
		d.warn("malformed synthesis params (%v), using %s default", err, d.DrumType)
		return nil
	}
	d.Recipe = d.buildRecipe(rr)
	return nil
}

// MarshalJSON encodes the catalog fields. Recipes are not re-encoded.
func (d Definition) MarshalJSON() ([]byte, error) {
	return json.Marshal(rawDefinition{
		ID:         d.ID,
		Name:       d.Name,
		DrumType:   d.DrumType,
		Type:       d.Mode,
		SamplePath: d.SampleURI,
		PackID:     d.PackID,
	})
}

func (d *Definition) buildRecipe(rr rawRecipe) Recipe {
	kind := RecipeKind(rr.SynthType)
	switch kind {
	case KindMembrane, KindNoise, KindDual:
	default:
		kind = DefaultRecipe(d.DrumType).Kind()
		d.warn("unsupported synthType %q, using %s", rr.SynthType, kind)
	}

	env := synth.DefaultEnvelope()
	if rr.Envelope != nil {
		env = rr.Envelope.Normalize()
	}
	duration := rr.Duration
	if !(duration > 0) || !finite(duration) {
		duration = env.Attack + env.Decay
	}

	switch kind {
	case KindMembrane:
		r := &MembraneRecipe{
			Waveform:   synth.Sine,
			Frequency:  rr.Frequency,
			PitchDecay: math.Max(rr.PitchDecay, 0),
			Octaves:    math.Max(rr.Octaves, 0),
			Envelope:   env,
			Duration:   duration,
		}
		if rr.Oscillator != nil {
			r.Waveform = d.waveform(rr.Oscillator.Type)
		}
		if !(r.Frequency >= 1) || !finite(r.Frequency) {
			def := DefaultRecipe("kick").(*MembraneRecipe)
			if mr, ok := DefaultRecipe(d.DrumType).(*MembraneRecipe); ok {
				def = mr
			}
			r.Frequency = def.Frequency
			d.warn("membrane frequency %g invalid, using %g", rr.Frequency, def.Frequency)
		}
		return r

	case KindDual:
		def := DefaultRecipe("cowbell").(*DualRecipe)
		r := &DualRecipe{Oscillators: def.Oscillators, Envelope: env, Duration: duration}
		if len(rr.Oscillators) != 2 {
			d.warn("dual recipe needs 2 oscillators, got %d", len(rr.Oscillators))
			return r
		}
		for i, o := range rr.Oscillators {
			osc := OscillatorRecipe{
				Waveform:  d.waveform(o.Type),
				Frequency: o.Frequency,
				Filter:    d.filter(o.Filter),
			}
			if !(osc.Frequency >= 1) || !finite(osc.Frequency) {
				osc.Frequency = def.Oscillators[i].Frequency
				d.warn("oscillator %d frequency %g invalid", i, o.Frequency)
			}
			r.Oscillators[i] = osc
		}
		return r

	default:
		r := &NoiseRecipe{
			Color:    synth.White,
			Envelope: env,
			Filter:   d.filter(rr.Filter),
			Duration: duration,
		}
		if rr.Noise != nil {
			c, ok := synth.ParseNoiseColor(rr.Noise.Type)
			if !ok {
				d.warn("unknown noise type %q, using white", rr.Noise.Type)
			}
			r.Color = c
		}
		for _, off := range rr.HitOffsets {
			if off < 0 || !finite(off) {
				d.warn("hit offset %g dropped", off)
				continue
			}
			r.HitOffsets = append(r.HitOffsets, off)
		}
		return r
	}
}

func (d *Definition) waveform(name string) synth.Waveform {
	w, ok := synth.ParseWaveform(name)
	if !ok {
		d.warn("unknown waveform %q, using sine", name)
	}
	return w
}

func (d *Definition) filter(rf *rawFilter) *FilterRecipe {
	if rf == nil {
		return nil
	}
	kind, ok := fx.ParseFilterType(rf.Type)
	if !ok {
		d.warn("unknown filter type %q, using lowpass", rf.Type)
	}
	f := FilterRecipe{Type: kind, Frequency: rf.Frequency, Rolloff: rf.Rolloff}
	if rf.Q != nil {
		f.Q = *rf.Q
	} else {
		f.Q = fx.DefaultFilterQ
	}
	if rf.Rolloff == 0 {
		f.Rolloff = fx.DefaultRolloff
	}
	norm, changed := f.Normalize()
	if changed {
		d.warn("filter normalized: Q %g -> %g, rolloff %d -> %d", f.Q, norm.Q, f.Rolloff, norm.Rolloff)
	}
	return &norm
}

func (d *Definition) warn(format string, args ...any) {
	d.warnings = append(d.warnings, fmt.Sprintf(format, args...))
}

// DecodeList decodes a JSON array of definitions.
func DecodeList(data []byte) ([]Definition, error) {
	var defs []Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("sound: decode catalog: %w", err)
	}
	return defs, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

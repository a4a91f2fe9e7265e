package synth

import "math"

// Envelope is a linear ADSR amplitude envelope. Times are in seconds.
type Envelope struct {
	Attack  float64 `json:"attack"`
	Decay   float64 `json:"decay"`
	Sustain float64 `json:"sustain"`
	Release float64 `json:"release"`
}

// DefaultEnvelope is a short percussive envelope.
func DefaultEnvelope() Envelope {
	return Envelope{Attack: 0.001, Decay: 0.2, Sustain: 0, Release: 0.05}
}

// Normalize clamps negative or non-finite times to 0 and sustain to [0, 1].
func (e Envelope) Normalize() Envelope {
	e.Attack = nonNegative(e.Attack)
	e.Decay = nonNegative(e.Decay)
	e.Release = nonNegative(e.Release)
	switch {
	case math.IsNaN(e.Sustain) || e.Sustain < 0:
		e.Sustain = 0
	case e.Sustain > 1:
		e.Sustain = 1
	}
	return e
}

// Length returns the time from trigger until the envelope reaches zero when
// the release starts hold seconds after the trigger.
func (e Envelope) Length(hold float64) float64 {
	return nonNegative(hold) + e.Release
}

// frames is an envelope resolved to frame counts.
type frames struct {
	attack  int64
	decay   int64
	sustain float64
	release int64
	hold    int64
}

func (e Envelope) frames(hold, sampleRate float64) frames {
	e = e.Normalize()
	return frames{
		attack:  int64(math.Round(e.Attack * sampleRate)),
		decay:   int64(math.Round(e.Decay * sampleRate)),
		sustain: e.Sustain,
		release: int64(math.Round(e.Release * sampleRate)),
		hold:    int64(math.Round(nonNegative(hold) * sampleRate)),
	}
}

// end returns the first frame at which the envelope is silent.
func (f frames) end() int64 {
	return f.hold + f.release
}

// level returns the envelope value age frames after the trigger.
func (f frames) level(age int64) float64 {
	if age < f.hold {
		return f.gate(age)
	}
	if age >= f.hold+f.release {
		return 0
	}
	start := f.gate(f.hold)
	return start * (1 - float64(age-f.hold)/float64(f.release))
}

// gate returns the attack/decay/sustain value while the note is held.
func (f frames) gate(age int64) float64 {
	if age < f.attack {
		return float64(age) / float64(f.attack)
	}
	age -= f.attack
	if age < f.decay {
		return 1 - (1-f.sustain)*float64(age)/float64(f.decay)
	}
	return f.sustain
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

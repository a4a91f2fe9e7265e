package sound

import (
	"math"

	"github.com/cwbudde/drumengine/audio/fx"
)

// Identity thresholds and parameter ranges.
const (
	MaxCutoff        = 20000.0
	MinCutoff        = 20.0
	DefaultQ         = 0.7
	FullRate         = 44100.0
	FullBits         = 16.0
	MinBitcrushRate  = 100.0
	MinBitcrushBits  = 1.0
	MinGainDB        = -60.0
	MaxGainDB        = 12.0
	MaxPitchSemitone = 24.0
	minQ             = 0.1
	maxQ             = 30.0
)

// TrackSettings is the per-track processing parameter bag. The zero value
// is not neutral; use DefaultTrackSettings.
type TrackSettings struct {
	GainDB         float64 `json:"gain_db"`
	PitchSemitones float64 `json:"pitch"`
	FilterCutoff   float64 `json:"filter_cutoff"`
	FilterQ        float64 `json:"filter_q"`
	ReverbSend     float64 `json:"reverb_send"`
	DelayTime      float64 `json:"delay_time"`
	DelayFeedback  float64 `json:"delay_feedback"`
	DelayWet       float64 `json:"delay_wet"`
	BitcrushRate   float64 `json:"bitcrush_rate"`
	BitcrushBits   float64 `json:"bitcrush_bits"`
}

// DefaultTrackSettings returns the neutral settings: every stage is a
// passthrough.
func DefaultTrackSettings() TrackSettings {
	return TrackSettings{
		GainDB:         0,
		PitchSemitones: 0,
		FilterCutoff:   MaxCutoff,
		FilterQ:        DefaultQ,
		ReverbSend:     0,
		DelayTime:      fx.DefaultDelayTime,
		DelayFeedback:  fx.DefaultDelayFeedback,
		DelayWet:       0,
		BitcrushRate:   FullRate,
		BitcrushBits:   FullBits,
	}
}

// Resolve returns a normalized copy of ts, or the defaults when ts is nil.
// The result never aliases ts.
func Resolve(ts *TrackSettings) TrackSettings {
	if ts == nil {
		return DefaultTrackSettings()
	}
	return ts.Normalize()
}

// Normalize clamps every field into its valid range. Non-finite values are
// replaced by the neutral value of the field.
func (s TrackSettings) Normalize() TrackSettings {
	d := DefaultTrackSettings()
	s.GainDB = clampOr(s.GainDB, MinGainDB, MaxGainDB, d.GainDB)
	s.PitchSemitones = clampOr(s.PitchSemitones, -MaxPitchSemitone, MaxPitchSemitone, d.PitchSemitones)
	s.FilterCutoff = clampOr(s.FilterCutoff, MinCutoff, MaxCutoff, d.FilterCutoff)
	s.FilterQ = clampOr(s.FilterQ, minQ, maxQ, d.FilterQ)
	s.ReverbSend = clampOr(s.ReverbSend, 0, 1, d.ReverbSend)
	s.DelayTime = clampOr(s.DelayTime, fx.MinDelayTime, fx.MaxDelayTime, d.DelayTime)
	s.DelayFeedback = clampOr(s.DelayFeedback, 0, fx.MaxDelayFeedback, d.DelayFeedback)
	s.DelayWet = clampOr(s.DelayWet, 0, 1, d.DelayWet)
	s.BitcrushRate = clampOr(s.BitcrushRate, MinBitcrushRate, FullRate, d.BitcrushRate)
	s.BitcrushBits = clampOr(s.BitcrushBits, MinBitcrushBits, FullBits, d.BitcrushBits)
	return s
}

// FilterIsIdentity reports whether the filter stage is a passthrough. Q is
// irrelevant once the cutoff is at the top of the range.
func (s TrackSettings) FilterIsIdentity() bool {
	return s.FilterCutoff >= MaxCutoff
}

// BitcrushIsIdentity reports whether the bitcrush stage is a passthrough.
func (s TrackSettings) BitcrushIsIdentity() bool {
	return s.BitcrushRate >= FullRate && s.BitcrushBits >= FullBits
}

// IsIdentity reports whether the settings leave the signal path and level
// untouched.
func (s TrackSettings) IsIdentity() bool {
	return s.GainDB == 0 &&
		s.PitchSemitones == 0 &&
		s.ReverbSend == 0 &&
		s.DelayWet == 0 &&
		s.FilterIsIdentity() &&
		s.BitcrushIsIdentity()
}

// GainLinear returns the gain as a linear multiplier.
func (s TrackSettings) GainLinear() float64 {
	return fx.DBToLinear(s.GainDB)
}

// PitchRatio returns the frequency / playback-rate ratio 2^(st/12).
func (s TrackSettings) PitchRatio() float64 {
	return fx.SemitonesToRatio(s.PitchSemitones)
}

// DelayParams returns the delay bus parameters carried by the settings.
func (s TrackSettings) DelayParams() fx.DelayParams {
	return fx.DelayParams{Time: s.DelayTime, Feedback: s.DelayFeedback, Wet: s.DelayWet}
}

func clampOr(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return min(max(v, lo), hi)
}

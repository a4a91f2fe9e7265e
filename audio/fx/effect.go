package fx

import (
	"math"

	"github.com/cwbudde/drumengine/audio/graph"
)

// Effect is the contract shared by every node in this package.
type Effect interface {
	Input() *graph.Node
	Output() *graph.Node
	Connect(dst *graph.Node) error
	Dispose()
}

var (
	_ Effect = (*Gain)(nil)
	_ Effect = (*Bitcrusher)(nil)
	_ Effect = (*Filter)(nil)
	_ Effect = (*ReverbBus)(nil)
	_ Effect = (*DelayBus)(nil)
)

// DBToLinear converts dB to linear amplitude (20*log10 convention).
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// SemitonesToRatio converts a pitch offset in semitones to a frequency or
// playback-rate ratio.
func SemitonesToRatio(semitones float64) float64 {
	return math.Exp2(semitones / 12)
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

package synth

import (
	"fmt"
	"math"
)

// Waveform defines oscillator shape.
type Waveform int

const (
	Sine Waveform = iota
	Triangle
	Sawtooth
	Square
)

// ParseWaveform maps a catalog waveform name to a Waveform. Unknown names
// fall back to Sine and report false.
func ParseWaveform(name string) (Waveform, bool) {
	switch name {
	case "sine":
		return Sine, true
	case "triangle":
		return Triangle, true
	case "sawtooth", "saw":
		return Sawtooth, true
	case "square":
		return Square, true
	default:
		return Sine, false
	}
}

func (w Waveform) String() string {
	switch w {
	case Sine:
		return "sine"
	case Triangle:
		return "triangle"
	case Sawtooth:
		return "sawtooth"
	case Square:
		return "square"
	default:
		return fmt.Sprintf("Waveform(%d)", int(w))
	}
}

// sample evaluates the waveform at phase in [-pi, pi).
func (w Waveform) sample(phase float64) float64 {
	switch w {
	case Triangle:
		return (2 / math.Pi) * math.Asin(math.Sin(phase))
	case Sawtooth:
		return phase / math.Pi
	case Square:
		if phase >= 0 {
			return 1
		}
		return -1
	default:
		return math.Sin(phase)
	}
}

func wrapPhase(phase float64) float64 {
	if phase >= math.Pi {
		phase -= 2 * math.Pi
	}
	return phase
}

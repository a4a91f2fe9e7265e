package sequencer

import "github.com/cwbudde/drumengine/drum/sound"

// Steps is the fixed length of a pattern row.
const Steps = 16

// Pattern holds one row of steps per track, in track order.
type Pattern [][Steps]bool

// NewPattern returns an empty pattern for the given number of tracks.
func NewPattern(tracks int) Pattern {
	return make(Pattern, max(tracks, 0))
}

// Toggle flips one step and returns its new state. Out-of-range positions
// are ignored and report false.
func (p Pattern) Toggle(track, step int) bool {
	if track < 0 || track >= len(p) || step < 0 || step >= Steps {
		return false
	}
	p[track][step] = !p[track][step]
	return p[track][step]
}

// Active reports whether a step is set.
func (p Pattern) Active(track, step int) bool {
	if track < 0 || track >= len(p) || step < 0 || step >= Steps {
		return false
	}
	return p[track][step]
}

// Clear unsets every step.
func (p Pattern) Clear() {
	for i := range p {
		p[i] = [Steps]bool{}
	}
}

// Clone returns an independent copy.
func (p Pattern) Clone() Pattern {
	return append(Pattern(nil), p...)
}

// Track is one sequencer lane.
type Track struct {
	Key      string // sound key passed to the engine
	Volume   float64
	Muted    bool
	Settings sound.TrackSettings
}

// NewTrack returns an unmuted track at full volume with neutral settings.
func NewTrack(key string) Track {
	return Track{Key: key, Volume: 1, Settings: sound.DefaultTrackSettings()}
}

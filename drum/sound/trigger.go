package sound

import "math"

// Trigger is a single request to sound a voice. It is produced by the
// scheduler and consumed once. Settings is a copy taken when the trigger was
// created, so later edits of the track never reach it.
type Trigger struct {
	Key      string
	Time     float64 // audio clock seconds
	Volume   float64
	Settings TrackSettings
}

// NewTrigger builds a trigger from a settings snapshot. A nil settings
// pointer means defaults.
func NewTrigger(key string, time, volume float64, settings *TrackSettings) Trigger {
	if volume < 0 || math.IsNaN(volume) || math.IsInf(volume, 0) {
		volume = 0
	}
	return Trigger{
		Key:      key,
		Time:     time,
		Volume:   volume,
		Settings: Resolve(settings),
	}
}

// Level returns the linear amplitude the voice is triggered with: the
// trigger volume scaled by the track gain.
func (t Trigger) Level() float64 {
	return t.Volume * t.Settings.GainLinear()
}

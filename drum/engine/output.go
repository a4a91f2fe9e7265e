package engine

import (
	"fmt"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

// Output pulls rendered audio from the engine.
type Output interface {
	Start(s beep.Streamer, format beep.Format) error
	Close() error
}

// SpeakerOutput plays through the default audio device.
type SpeakerOutput struct {
	Buffer time.Duration
}

// Start initializes the speaker and begins streaming s.
func (o SpeakerOutput) Start(s beep.Streamer, format beep.Format) error {
	buffer := o.Buffer
	if buffer <= 0 {
		buffer = 100 * time.Millisecond
	}
	if err := speaker.Init(format.SampleRate, format.SampleRate.N(buffer)); err != nil {
		return fmt.Errorf("speaker init: %w", err)
	}
	speaker.Play(s)
	return nil
}

// Close stops streaming and releases the device.
func (SpeakerOutput) Close() error {
	speaker.Clear()
	speaker.Close()
	return nil
}

// NullOutput discards audio. The audio clock only advances when the caller
// renders the context itself.
type NullOutput struct{}

func (NullOutput) Start(beep.Streamer, beep.Format) error { return nil }
func (NullOutput) Close() error                          { return nil }

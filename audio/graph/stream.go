package graph

import "github.com/gopxl/beep"

var _ beep.Streamer = (*Context)(nil)

// Stream implements beep.Streamer so a context can be handed straight to
// speaker.Play. The mono mix is soft-limited and duplicated to both channels.
// It never drains.
func (c *Context) Stream(samples [][2]float64) (n int, ok bool) {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()

	if cap(c.streamBuf) < len(samples) {
		c.streamBuf = make([]float64, len(samples))
	}
	buf := c.streamBuf[:len(samples)]
	c.Render(buf)

	for i, v := range buf {
		v = softLimit(v)
		samples[i][0] = v
		samples[i][1] = v
	}
	return len(samples), true
}

// Err implements beep.Streamer.
func (c *Context) Err() error { return nil }

// Format returns the beep format matching the render rate (mono mix duplicated
// to stereo).
func (c *Context) Format() beep.Format {
	return beep.Format{
		SampleRate:  beep.SampleRate(int(c.sampleRate)),
		NumChannels: 2,
		Precision:   2,
	}
}

// softLimit compresses peaks above 0.8 and hard clips at ±1.
func softLimit(v float64) float64 {
	if v > 0.8 {
		v = 0.8 + 0.2*(1.0-1.0/(1.0+(v-0.8)*5.0))
	} else if v < -0.8 {
		v = -0.8 - 0.2*(1.0-1.0/(1.0+(-v-0.8)*5.0))
	}

	if v > 1.0 {
		v = 1.0
	} else if v < -1.0 {
		v = -1.0
	}
	return v
}

package voice

import (
	"sync"

	"github.com/cwbudde/drumengine/audio/graph"
	"github.com/cwbudde/drumengine/audio/synth"
	"github.com/cwbudde/drumengine/drum/samples"
)

// SampleVoice plays a decoded sample with overlapping retriggers. Until the
// sample is bound, triggers go to the synthesis fallback when there is one.
type SampleVoice struct {
	ctx      *graph.Context
	id       int64
	key      string
	fallback *SynthVoice

	mu       sync.Mutex
	player   *synth.Player
	disposed bool
}

var _ Voice = (*SampleVoice)(nil)

// NewSampleVoice creates an unbound sample voice. fallback may be nil.
func NewSampleVoice(ctx *graph.Context, id int64, key string, fallback *SynthVoice) *SampleVoice {
	return &SampleVoice{ctx: ctx, id: id, key: key, fallback: fallback}
}

// Bind attaches the decoded sample and connects the player to the
// Destination. It reports false when the voice is already bound or
// disposed.
func (v *SampleVoice) Bind(buf *samples.Buffer) bool {
	if buf == nil || len(buf.Data) == 0 {
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.player != nil || v.disposed {
		return false
	}
	p := synth.NewPlayer(v.ctx, buf.Data)
	if err := p.Node().Connect(v.ctx.Destination()); err != nil {
		p.Dispose()
		return false
	}
	v.player = p
	return true
}

// Bound reports whether the sample is attached.
func (v *SampleVoice) Bound() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.player != nil
}

// Key returns the sample store key.
func (v *SampleVoice) Key() string { return v.key }

// Fallback returns the synthesis fallback, or nil.
func (v *SampleVoice) Fallback() *SynthVoice { return v.fallback }

// ID returns the definition id.
func (v *SampleVoice) ID() int64 { return v.id }

// Outputs returns the player output once bound, otherwise the fallback
// outputs.
func (v *SampleVoice) Outputs() []*graph.Node {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch {
	case v.player != nil:
		return []*graph.Node{v.player.Node()}
	case v.fallback != nil:
		return v.fallback.Outputs()
	default:
		return nil
	}
}

// Trigger plays the sample at rate ratio. Without a bound sample it
// triggers the fallback, or fails with ErrNotReady.
func (v *SampleVoice) Trigger(at, ratio, velocity float64) (Cancel, error) {
	v.mu.Lock()
	p, disposed := v.player, v.disposed
	v.mu.Unlock()

	switch {
	case disposed:
		return nil, ErrDisposed
	case p != nil:
		id := p.Trigger(at, ratio, velocity)
		return func() bool { return p.Cancel(id) }, nil
	case v.fallback != nil:
		return v.fallback.Trigger(at, ratio, velocity)
	default:
		return nil, ErrNotReady
	}
}

// HitOffsets returns a single hit for samples, or the fallback offsets.
func (v *SampleVoice) HitOffsets() []float64 {
	if !v.Bound() && v.fallback != nil {
		return v.fallback.HitOffsets()
	}
	return []float64{0}
}

// Duration returns the sample length at unity rate, or the fallback
// envelope length.
func (v *SampleVoice) Duration() float64 {
	v.mu.Lock()
	p := v.player
	v.mu.Unlock()

	switch {
	case p != nil:
		return p.Duration(1)
	case v.fallback != nil:
		return v.fallback.Duration()
	default:
		return 0
	}
}

// Dispose releases the player and the fallback.
func (v *SampleVoice) Dispose() {
	v.mu.Lock()
	p := v.player
	v.disposed = true
	v.mu.Unlock()

	if p != nil {
		p.Dispose()
	}
	if v.fallback != nil {
		v.fallback.Dispose()
	}
}

package router

import (
	"sync"

	"github.com/cwbudde/drumengine/audio/fx"
	"github.com/cwbudde/drumengine/audio/graph"
	"github.com/cwbudde/drumengine/drum/sound"
	"github.com/cwbudde/drumengine/drum/voice"
)

type disposer interface {
	Dispose()
}

// Playback is one routed trigger: its scheduled hits, its transient effect
// nodes and its cleanup timer.
type Playback struct {
	router  *Router
	v       voice.Voice
	voiceID int64
	gen     uint64
	time    float64

	cancels []voice.Cancel
	nodes   []disposer
	timer   *graph.Timer

	once sync.Once
}

// Time returns the audio clock time of the trigger.
func (p *Playback) Time() float64 { return p.time }

// CleanupTime returns when the effect chain is torn down.
func (p *Playback) CleanupTime() float64 {
	if p.timer == nil {
		return p.time
	}
	return p.timer.Time()
}

// Hits returns the number of hits that were scheduled.
func (p *Playback) Hits() int { return len(p.cancels) }

// Cancel removes the hits that have not started. When none of them had
// started, the effect chain is torn down at once; otherwise the cleanup
// timer keeps running so the sounding hits are not cut. It reports whether
// any hit was removed.
func (p *Playback) Cancel() bool {
	removed, sounded := false, len(p.cancels) == 0
	for _, cancel := range p.cancels {
		if cancel() {
			removed = true
		} else {
			sounded = true
		}
	}
	if !sounded && p.timer.Stop() {
		p.cleanup()
	}
	return removed
}

// cleanup disposes the transient nodes and, when this playback still owns
// the voice route, reconnects the voice to the Destination.
func (p *Playback) cleanup() {
	p.once.Do(func() {
		r := p.router
		r.mu.Lock()
		defer r.mu.Unlock()

		r.open--
		p.disposeNodes()

		if r.routes[p.voiceID] != p.gen {
			return
		}
		delete(r.routes, p.voiceID)
		for _, out := range p.v.Outputs() {
			out.Disconnect()
			_ = out.Connect(r.ctx.Destination())
		}
	})
}

func (p *Playback) disposeNodes() {
	for _, n := range p.nodes {
		n.Dispose()
	}
	p.nodes = nil
}

func (p *Playback) insertFilter(ctx *graph.Context, dst *graph.Node, s sound.TrackSettings) (*graph.Node, error) {
	f, err := fx.NewFilter(ctx,
		fx.WithFilterType(fx.Lowpass),
		fx.WithCutoff(s.FilterCutoff),
		fx.WithQ(s.FilterQ),
	)
	if err != nil {
		return nil, err
	}
	p.nodes = append(p.nodes, f)
	if err := f.Connect(dst); err != nil {
		return nil, err
	}
	return f.Input(), nil
}

func (p *Playback) insertCrusher(ctx *graph.Context, dst *graph.Node, s sound.TrackSettings) (*graph.Node, error) {
	b, err := fx.NewBitcrusher(ctx,
		fx.WithBitDepth(s.BitcrushBits),
		fx.WithTargetRate(s.BitcrushRate),
	)
	if err != nil {
		return nil, err
	}
	p.nodes = append(p.nodes, b)
	if err := b.Connect(dst); err != nil {
		return nil, err
	}
	return b.Input(), nil
}

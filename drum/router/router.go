// Package router wires each trigger of a voice through its track effects.
//
// Every trigger gets its own transient bitcrusher and filter nodes, one set
// for the dry path and one for the reverb send. The shared reverb and delay
// buses are created on the first trigger that asks for them. After the
// voice has rung out, an audio-clock timer disposes the transient nodes and
// returns the voice to the Destination, unless a newer trigger has
// re-routed it in the meantime.
package router

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/cwbudde/drumengine/audio/fx"
	"github.com/cwbudde/drumengine/audio/graph"
	"github.com/cwbudde/drumengine/drum/sound"
	"github.com/cwbudde/drumengine/drum/voice"
)

const (
	// MinCleanup and MaxCleanup bound the delay between a trigger and the
	// teardown of its effect chain, in seconds.
	MinCleanup = 0.5
	MaxCleanup = 5.0
	// DefaultCleanupMargin is added to the voice length before clamping.
	DefaultCleanupMargin = 0.1
)

// Option mutates router construction parameters.
type Option func(*Router)

// WithLogger sets the logger for routing failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// WithReverbOptions configures the shared reverb bus created on demand.
func WithReverbOptions(opts ...fx.ReverbOption) Option {
	return func(r *Router) { r.reverbOpts = append(r.reverbOpts, opts...) }
}

// WithCleanupMargin sets the seconds added to the voice length before the
// chain is torn down.
func WithCleanupMargin(seconds float64) Option {
	return func(r *Router) {
		if seconds >= 0 && !math.IsInf(seconds, 0) {
			r.margin = seconds
		}
	}
}

// Router routes triggers through per-trigger effect chains.
type Router struct {
	ctx        *graph.Context
	logger     *slog.Logger
	reverbOpts []fx.ReverbOption
	margin     float64

	mu     sync.Mutex
	reverb *fx.ReverbBus
	delay  *fx.DelayBus
	routes map[int64]uint64 // voice id -> generation of its current route
	gen    uint64
	open   int
}

// New creates a router on ctx with both buses dormant.
func New(ctx *graph.Context, opts ...Option) *Router {
	r := &Router{
		ctx:    ctx,
		margin: DefaultCleanupMargin,
		routes: make(map[int64]uint64),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logger == nil {
		r.logger = ctx.Logger()
	}
	return r
}

// Play routes v through the effects of trig and schedules every hit of the
// voice relative to trig.Time. It never fails: a routing error falls back
// to a direct connection to the Destination and the hits still fire.
func (r *Router) Play(v voice.Voice, trig sound.Trigger) *Playback {
	settings := trig.Settings.Normalize()
	ratio := settings.PitchRatio()
	level := trig.Level()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.gen++
	pb := &Playback{router: r, v: v, voiceID: v.ID(), gen: r.gen, time: trig.Time}

	if settings.ReverbSend > 0 {
		r.ensureReverbLocked()
	}
	if settings.DelayWet > 0 {
		r.ensureDelayLocked(settings.DelayParams())
	}

	outs := v.Outputs()
	if err := r.routeLocked(pb, outs, settings); err != nil {
		r.logger.Warn("effect routing failed, playing dry", "sound", v.ID(), "err", err)
		pb.disposeNodes()
		for _, out := range outs {
			out.Disconnect()
			_ = out.Connect(r.ctx.Destination())
		}
	}
	r.routes[v.ID()] = pb.gen

	if r.delay != nil {
		if err := r.delay.SetParams(settings.DelayParams()); err != nil {
			r.logger.Warn("delay parameters not applied", "sound", v.ID(), "err", err)
		}
	}

	offsets := v.HitOffsets()
	for _, off := range offsets {
		cancel, err := v.Trigger(trig.Time+off, ratio, level)
		if err != nil {
			r.logger.Warn("trigger dropped", "sound", v.ID(), "key", trig.Key, "err", err)
			continue
		}
		pb.cancels = append(pb.cancels, cancel)
	}

	delay := offsets[len(offsets)-1] + v.Duration()/math.Min(ratio, 1) + r.margin
	delay = min(max(delay, MinCleanup), MaxCleanup)
	r.open++
	pb.timer = r.ctx.At(trig.Time+delay, pb.cleanup)
	return pb
}

// routeLocked builds the dry and wet chains and connects outs to them.
func (r *Router) routeLocked(pb *Playback, outs []*graph.Node, s sound.TrackSettings) error {
	dry := r.ctx.Destination()
	switch {
	case r.reverb != nil:
		dry = r.reverb.Input()
	case r.delay != nil:
		dry = r.delay.Input()
	}
	var wet *graph.Node
	if r.reverb != nil {
		wet = r.reverb.Send()
	}

	// Chains are built back to front, so the signal runs
	// voice -> filter -> bitcrusher -> bus.
	if !s.BitcrushIsIdentity() {
		var err error
		if dry, err = pb.insertCrusher(r.ctx, dry, s); err != nil {
			return err
		}
		if wet != nil {
			if wet, err = pb.insertCrusher(r.ctx, wet, s); err != nil {
				return err
			}
		}
	}
	if !s.FilterIsIdentity() {
		var err error
		if dry, err = pb.insertFilter(r.ctx, dry, s); err != nil {
			return err
		}
		if wet != nil {
			if wet, err = pb.insertFilter(r.ctx, wet, s); err != nil {
				return err
			}
		}
	}

	for _, out := range outs {
		out.Disconnect()
	}

	if s.ReverbSend > 0 && wet != nil {
		split := graph.NewSendSplit(r.ctx, s.ReverbSend)
		pb.nodes = append(pb.nodes, split)
		if err := split.ConnectDry(dry); err != nil {
			return err
		}
		if err := split.ConnectWet(wet); err != nil {
			return err
		}
		dry = split.Input()
	}

	for _, out := range outs {
		if err := out.Connect(dry); err != nil {
			return fmt.Errorf("router: connect %s: %w", out.Name(), err)
		}
	}
	return nil
}

func (r *Router) ensureReverbLocked() {
	if r.reverb != nil {
		return
	}
	rb, err := fx.NewReverbBus(r.ctx, r.reverbOpts...)
	if err != nil {
		r.logger.Error("reverb bus unavailable", "err", err)
		return
	}
	dst := r.ctx.Destination()
	if r.delay != nil {
		dst = r.delay.Input()
	}
	if err := rb.Connect(dst); err != nil {
		r.logger.Error("reverb bus unavailable", "err", err)
		rb.Dispose()
		return
	}
	r.reverb = rb
	r.logger.Debug("reverb bus initialized")
}

func (r *Router) ensureDelayLocked(params fx.DelayParams) {
	if r.delay != nil {
		return
	}
	db, err := fx.NewDelayBus(r.ctx, params)
	if err != nil {
		r.logger.Error("delay bus unavailable", "err", err)
		return
	}
	if err := db.Connect(r.ctx.Destination()); err != nil {
		r.logger.Error("delay bus unavailable", "err", err)
		db.Dispose()
		return
	}
	r.delay = db
	if r.reverb != nil {
		if err := r.reverb.Connect(db.Input()); err != nil {
			r.logger.Warn("reverb return stays on the destination", "err", err)
		}
	}
	r.logger.Debug("delay bus initialized")
}

// Reverb returns the shared reverb bus, or nil while dormant.
func (r *Router) Reverb() *fx.ReverbBus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reverb
}

// Delay returns the shared delay bus, or nil while dormant.
func (r *Router) Delay() *fx.DelayBus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delay
}

// Open returns the number of effect chains awaiting cleanup.
func (r *Router) Open() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// Close disposes both buses. Chains still open keep their timers.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.reverb != nil {
		r.reverb.Dispose()
		r.reverb = nil
	}
	if r.delay != nil {
		r.delay.Dispose()
		r.delay = nil
	}
}

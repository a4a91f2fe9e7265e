// Package engine is the surface the UI talks to. It owns the audio context,
// the voices and effect buses, the sample store and the step scheduler, and
// wires them so a scheduled trigger flows from the pattern to the output.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cwbudde/drumengine/audio/fx"
	"github.com/cwbudde/drumengine/audio/graph"
	"github.com/cwbudde/drumengine/drum/catalog"
	"github.com/cwbudde/drumengine/drum/router"
	"github.com/cwbudde/drumengine/drum/samples"
	"github.com/cwbudde/drumengine/drum/sequencer"
	"github.com/cwbudde/drumengine/drum/sound"
	"github.com/cwbudde/drumengine/drum/voice"
)

// ErrClosed is returned by Initialize after Close.
var ErrClosed = errors.New("engine: closed")

type options struct {
	cfg     *Config
	logger  *slog.Logger
	output  Output
	opener  samples.Opener
	decoder samples.DecodeFunc
	reverb  []fx.ReverbOption
}

// Option mutates engine construction parameters.
type Option func(*options)

// WithConfig replaces DefaultConfig.
func WithConfig(cfg *Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithOutput sets the audio output. Without it the speaker is used, or
// NullOutput when the config disables output.
func WithOutput(out Output) Option {
	return func(o *options) { o.output = out }
}

// WithOpener sets how sample URIs are opened.
func WithOpener(op samples.Opener) Option {
	return func(o *options) { o.opener = op }
}

// WithDecoder sets how sample bytes are decoded.
func WithDecoder(d samples.DecodeFunc) Option {
	return func(o *options) { o.decoder = d }
}

// WithReverbOptions configures the shared reverb bus.
func WithReverbOptions(opts ...fx.ReverbOption) Option {
	return func(o *options) { o.reverb = append(o.reverb, opts...) }
}

// Engine is the drum machine core.
type Engine struct {
	cfg    Config
	logger *slog.Logger
	output Output

	ctx       *graph.Context
	store     *samples.Store
	registry  *voice.Registry
	router    *router.Router
	catalog   *catalog.Adapter
	scheduler *sequencer.Scheduler

	mu          sync.Mutex
	initialized bool
	initErr     error
	closed      bool
	stopRun     context.CancelFunc
	runDone     chan struct{}
}

// New builds an engine. Nothing is audible until Initialize.
func New(opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	cfg := o.cfg
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	output := o.output
	if output == nil {
		if cfg.OutputEnabled {
			output = SpeakerOutput{Buffer: cfg.OutputBuffer}
		} else {
			output = NullOutput{}
		}
	}

	ctx, err := graph.NewContext(
		graph.WithSampleRate(float64(cfg.SampleRate)),
		graph.WithBlockSize(cfg.BlockSize),
		graph.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	ctx.SetMasterGain(cfg.MasterVolume)

	opener := o.opener
	if opener == nil {
		opener = samples.NewResolver(cfg.SampleDir)
	}
	storeOpts := []samples.Option{
		samples.WithOpener(opener),
		samples.WithLogger(logger),
		samples.WithConcurrency(cfg.LoadConcurrency),
	}
	if o.decoder != nil {
		storeOpts = append(storeOpts, samples.WithDecoder(o.decoder))
	}
	store := samples.NewStore(float64(cfg.SampleRate), storeOpts...)
	registry := voice.NewRegistry(ctx, voice.WithStore(store), voice.WithLogger(logger))

	e := &Engine{
		cfg:      *cfg,
		logger:   logger,
		output:   output,
		ctx:      ctx,
		store:    store,
		registry: registry,
		router: router.New(ctx,
			router.WithLogger(logger),
			router.WithCleanupMargin(cfg.CleanupMargin),
			router.WithReverbOptions(fx.WithReturnGain(cfg.ReverbReturn)),
			router.WithReverbOptions(o.reverb...),
		),
		catalog: catalog.NewAdapter(registry, store,
			catalog.WithLogger(logger),
			catalog.WithLoadTimeout(cfg.LoadTimeout),
		),
	}
	e.scheduler = sequencer.New(ctx, e.Schedule,
		sequencer.WithLookahead(cfg.Lookahead),
		sequencer.WithPollInterval(cfg.PollInterval),
		sequencer.WithLogger(logger),
	)
	return e, nil
}

// Initialize starts the output and the scheduler loop. Only the first call
// does any work; later calls return its result.
func (e *Engine) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.initialized {
		return e.initErr
	}
	e.initialized = true

	if err := e.output.Start(e.ctx, e.ctx.Format()); err != nil {
		e.initErr = fmt.Errorf("engine: start output: %w", err)
		e.logger.Error("audio output failed to start", "err", err)
		return e.initErr
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.stopRun = cancel
	e.runDone = make(chan struct{})
	go func() {
		defer close(e.runDone)
		_ = e.scheduler.Run(runCtx)
	}()

	e.logger.Info("engine initialized",
		"sampleRate", e.cfg.SampleRate,
		"blockSize", e.cfg.BlockSize,
		"lookahead", e.cfg.Lookahead,
	)
	return nil
}

// AddSound registers def and creates its voice. It returns false when the id
// is already active.
func (e *Engine) AddSound(def sound.Definition) bool {
	return e.catalog.AddSound(def)
}

// RemoveSound disposes the voice of def. It returns false when def is not
// active.
func (e *Engine) RemoveSound(def sound.Definition) bool {
	return e.catalog.RemoveSound(def)
}

// LoadCatalog adds every definition src returns.
func (e *Engine) LoadCatalog(ctx context.Context, src catalog.Source) (int, error) {
	return e.catalog.Sync(ctx, src)
}

// GetAllSounds returns a snapshot of the active definitions.
func (e *Engine) GetAllSounds() []sound.Definition {
	return e.catalog.Sounds()
}

// PlayScheduled sounds key at the audio clock time at. settings may be nil.
// An unknown key is logged and dropped; the result is nil then.
func (e *Engine) PlayScheduled(key string, volume, at float64, settings *sound.TrackSettings) *router.Playback {
	return e.play(sound.NewTrigger(key, at, volume, settings))
}

// Schedule is the scheduler's trigger sink.
func (e *Engine) Schedule(trig sound.Trigger) sequencer.Cancelable {
	pb := e.play(trig)
	if pb == nil {
		return nil
	}
	return pb
}

func (e *Engine) play(trig sound.Trigger) (pb *router.Playback) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("trigger panicked", "key", trig.Key, "panic", r)
			pb = nil
		}
	}()

	def, ok := e.catalog.Lookup(trig.Key)
	if !ok {
		e.logger.Warn("trigger for unknown sound dropped", "key", trig.Key)
		return nil
	}
	v, ok := e.registry.Get(def.ID)
	if !ok {
		e.logger.Warn("sound has no voice, trigger dropped", "key", trig.Key, "sound", def.ID)
		return nil
	}
	return e.router.Play(v, trig)
}

// Close stops the scheduler, the output and every voice.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	started := e.initialized && e.initErr == nil
	stop, done := e.stopRun, e.runDone
	e.mu.Unlock()

	e.scheduler.Stop()
	if stop != nil {
		stop()
		<-done
	}
	e.catalog.Close()

	var err error
	if started {
		if cerr := e.output.Close(); cerr != nil {
			err = fmt.Errorf("engine: close output: %w", cerr)
		}
	}
	e.router.Close()
	e.registry.DisposeAll()
	return err
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// Context returns the audio context.
func (e *Engine) Context() *graph.Context { return e.ctx }

// Scheduler returns the step scheduler.
func (e *Engine) Scheduler() *sequencer.Scheduler { return e.scheduler }

// Catalog returns the sound catalog.
func (e *Engine) Catalog() *catalog.Adapter { return e.catalog }

// Registry returns the voice registry.
func (e *Engine) Registry() *voice.Registry { return e.registry }

// Router returns the effects router.
func (e *Engine) Router() *router.Router { return e.router }

// Store returns the sample store.
func (e *Engine) Store() *samples.Store { return e.store }

package voice

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/cwbudde/drumengine/audio/graph"
	"github.com/cwbudde/drumengine/drum/samples"
	"github.com/cwbudde/drumengine/drum/sound"
)

// RegistryOption mutates registry construction parameters.
type RegistryOption func(*Registry)

// WithStore lets sample voices bind buffers that are already loaded when
// the voice is created.
func WithStore(store *samples.Store) RegistryOption {
	return func(r *Registry) { r.store = store }
}

// WithLogger sets the logger for construction failures.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// Registry owns exactly one Voice per sound id.
type Registry struct {
	ctx    *graph.Context
	store  *samples.Store
	logger *slog.Logger

	mu     sync.RWMutex
	voices map[int64]Voice
}

// NewRegistry creates an empty registry on ctx.
func NewRegistry(ctx *graph.Context, opts ...RegistryOption) *Registry {
	r := &Registry{
		ctx:    ctx,
		voices: make(map[int64]Voice),
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

// Create builds the voice for def. It returns false when a voice for def.ID
// already exists or when construction fails; failures are logged and never
// affect other voices.
func (r *Registry) Create(def sound.Definition) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.voices[def.ID]; ok {
		return false
	}

	v, err := r.build(def)
	if err != nil {
		r.logger.Error("voice construction failed", "sound", def.ID, "name", def.Name, "err", err)
		return false
	}
	r.voices[def.ID] = v
	return true
}

func (r *Registry) build(def sound.Definition) (v Voice, err error) {
	defer func() {
		if p := recover(); p != nil {
			v, err = nil, fmt.Errorf("voice: build sound %d panicked: %v", def.ID, p)
		}
	}()

	if !def.HasSample() {
		return NewSynthVoice(r.ctx, def)
	}

	var fallback *SynthVoice
	if def.Recipe != nil {
		fallback, err = NewSynthVoice(r.ctx, def)
		if err != nil {
			r.logger.Warn("sample fallback unavailable", "sound", def.ID, "err", err)
			fallback = nil
		}
	}
	sv := NewSampleVoice(r.ctx, def.ID, def.Key(), fallback)
	if r.store != nil {
		sv.Bind(r.store.Get(def.Key()))
	}
	return sv, nil
}

// Bind attaches a loaded sample to the sample voice of id. It reports false
// when there is no such sample voice or it is already bound.
func (r *Registry) Bind(id int64, buf *samples.Buffer) bool {
	r.mu.RLock()
	v, ok := r.voices[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	sv, ok := v.(*SampleVoice)
	if !ok {
		return false
	}
	return sv.Bind(buf)
}

// Destroy disposes the voice of id and removes it. It reports false when
// there is none.
func (r *Registry) Destroy(id int64) bool {
	r.mu.Lock()
	v, ok := r.voices[id]
	delete(r.voices, id)
	r.mu.Unlock()

	if !ok {
		return false
	}
	v.Dispose()
	return true
}

// Get returns the voice of id.
func (r *Registry) Get(id int64) (Voice, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.voices[id]
	return v, ok
}

// Has reports whether a voice exists for id.
func (r *Registry) Has(id int64) bool {
	_, ok := r.Get(id)
	return ok
}

// Len returns the number of voices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.voices)
}

// IDs returns the sorted voice ids.
func (r *Registry) IDs() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.voices))
	for id := range r.voices {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// DisposeAll disposes and removes every voice.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	voices := r.voices
	r.voices = make(map[int64]Voice)
	r.mu.Unlock()

	for _, v := range voices {
		v.Dispose()
	}
}

// Package catalog keeps the active set of sound definitions in step with
// the voice registry.
//
// Adding a definition creates its voice. Sample definitions also start an
// asynchronous load; the load holds a cancellation token that RemoveSound
// revokes, so a load finishing after its sound was removed changes nothing.
package catalog

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cwbudde/drumengine/drum/samples"
	"github.com/cwbudde/drumengine/drum/sound"
	"github.com/cwbudde/drumengine/drum/voice"
)

// DefaultLoadTimeout bounds one sample load.
const DefaultLoadTimeout = 30 * time.Second

var (
	// ErrDuplicate is returned when a definition id is already active.
	ErrDuplicate = errors.New("catalog: duplicate sound id")
	// ErrUnknown is returned when a sound is not active.
	ErrUnknown = errors.New("catalog: unknown sound")
)

// Option mutates adapter construction parameters.
type Option func(*Adapter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithLoadTimeout bounds every sample load.
func WithLoadTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.loadTimeout = d
		}
	}
}

type load struct {
	cancel context.CancelFunc
}

// Adapter maps catalog definitions to voices.
type Adapter struct {
	registry    *voice.Registry
	store       *samples.Store
	logger      *slog.Logger
	loadTimeout time.Duration

	mu    sync.Mutex
	defs  map[int64]sound.Definition
	loads map[int64]*load
	wg    sync.WaitGroup
}

// NewAdapter creates an adapter over registry. store may be nil when no
// sample sounds are used.
func NewAdapter(registry *voice.Registry, store *samples.Store, opts ...Option) *Adapter {
	a := &Adapter{
		registry:    registry,
		store:       store,
		loadTimeout: DefaultLoadTimeout,
		defs:        make(map[int64]sound.Definition),
		loads:       make(map[int64]*load),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// AddSound registers def. It returns false when def.ID is already active.
func (a *Adapter) AddSound(def sound.Definition) bool {
	return a.Add(def) == nil
}

// Add registers def and creates its voice. A voice or sample failure is
// logged and keeps the definition registered; only a duplicate id is an
// error.
func (a *Adapter) Add(def sound.Definition) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.defs[def.ID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicate, def.ID)
	}
	a.defs[def.ID] = def

	for _, w := range def.Warnings() {
		a.logger.Warn("sound definition normalized", "sound", def.ID, "name", def.Name, "warning", w)
	}

	if !a.registry.Create(def) {
		a.logger.Warn("sound registered without a voice", "sound", def.ID, "name", def.Name)
		return nil
	}
	if def.HasSample() {
		a.startLoadLocked(def)
	}
	return nil
}

func (a *Adapter) startLoadLocked(def sound.Definition) {
	if a.store == nil {
		a.logger.Warn("no sample store, sample sound stays silent", "sound", def.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.loadTimeout)
	l := &load{cancel: cancel}
	a.loads[def.ID] = l

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()

		buf, err := a.store.Load(ctx, def.Key(), def.SampleURI)

		a.mu.Lock()
		defer a.mu.Unlock()
		if a.loads[def.ID] != l {
			// Removed (and possibly re-added) while loading.
			return
		}
		delete(a.loads, def.ID)

		if err != nil {
			a.logger.Warn("sample load failed", "sound", def.ID, "uri", def.SampleURI, "err", err)
			return
		}
		if !a.registry.Bind(def.ID, buf) {
			a.logger.Warn("sample loaded but voice not bound", "sound", def.ID)
			return
		}
		a.logger.Debug("sample bound", "sound", def.ID, "frames", len(buf.Data))
	}()
}

// RemoveSound disposes the voice of def, revokes its pending sample load and
// forgets the definition. It returns false when def is not active.
func (a *Adapter) RemoveSound(def sound.Definition) bool {
	return a.Remove(def.ID) == nil
}

// Remove is RemoveSound by id.
func (a *Adapter) Remove(id int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	def, ok := a.defs[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknown, id)
	}
	delete(a.defs, id)
	if l, ok := a.loads[id]; ok {
		l.cancel()
		delete(a.loads, id)
	}
	if a.store != nil && def.HasSample() {
		a.store.Forget(def.Key())
	}
	a.registry.Destroy(id)
	return nil
}

// Sounds returns the active definitions ordered by id.
func (a *Adapter) Sounds() []sound.Definition {
	a.mu.Lock()
	defs := make([]sound.Definition, 0, len(a.defs))
	for _, d := range a.defs {
		defs = append(defs, d)
	}
	a.mu.Unlock()

	slices.SortFunc(defs, func(x, y sound.Definition) int { return cmp.Compare(x.ID, y.ID) })
	return defs
}

// Lookup resolves a sound key. Keys are definition ids in decimal; a
// case-insensitive name that matches exactly one definition also resolves.
func (a *Adapter) Lookup(key string) (sound.Definition, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var (
		match sound.Definition
		n     int
	)
	for _, d := range a.defs {
		if d.Key() == key {
			return d, true
		}
		if strings.EqualFold(d.Name, key) {
			match = d
			n++
		}
	}
	return match, n == 1
}

// Pending returns the number of sample loads in flight.
func (a *Adapter) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.loads)
}

// Wait blocks until every sample load started so far has finished.
func (a *Adapter) Wait() {
	a.wg.Wait()
}

// Sync fetches the catalog once and adds every definition. It returns the
// number of definitions added; per-definition problems are logged.
func (a *Adapter) Sync(ctx context.Context, src Source) (int, error) {
	defs, err := src.Fetch(ctx)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, def := range defs {
		if err := a.Add(def); err != nil {
			a.logger.Info("catalog sound skipped", "sound", def.ID, "err", err)
			continue
		}
		added++
	}
	a.logger.Info("catalog synced", "fetched", len(defs), "added", added)
	return added, nil
}

// Close revokes every pending load and waits for the loaders to exit.
func (a *Adapter) Close() {
	a.mu.Lock()
	for id, l := range a.loads {
		l.cancel()
		delete(a.loads, id)
	}
	a.mu.Unlock()
	a.wg.Wait()
}

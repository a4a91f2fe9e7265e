package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gopxl/beep"

	"github.com/cwbudde/drumengine/drum/samples"
	"github.com/cwbudde/drumengine/drum/sequencer"
	"github.com/cwbudde/drumengine/drum/sound"
	"github.com/cwbudde/drumengine/internal/testutil"
)

const testRate = 8000

// warnCounter counts records at Warn and above.
type warnCounter struct {
	n atomic.Int32
}

func (h *warnCounter) Enabled(_ context.Context, l slog.Level) bool { return l >= slog.LevelWarn }

func (h *warnCounter) Handle(context.Context, slog.Record) error {
	h.n.Add(1)
	return nil
}

func (h *warnCounter) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *warnCounter) WithGroup(string) slog.Handler      { return h }

type fakeOutput struct {
	mu     sync.Mutex
	err    error
	starts int
	closes int
}

func (o *fakeOutput) Start(beep.Streamer, beep.Format) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts++
	return o.err
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closes++
	return nil
}

var okOpener = samples.OpenerFunc(func(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
})

var failingOpener = samples.OpenerFunc(func(context.Context, string) (io.ReadCloser, error) {
	return nil, samples.ErrNotFound
})

func constDecoder(string, io.ReadCloser, float64) ([]float64, error) {
	return []float64{1, 1, 1, 1}, nil
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.SampleRate = testRate
	cfg.BlockSize = 40
	cfg.OutputEnabled = false
	cfg.MasterVolume = 1
	return cfg
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *warnCounter) {
	t.Helper()

	warns := &warnCounter{}
	base := []Option{
		WithConfig(testConfig()),
		WithLogger(slog.New(warns)),
		WithOutput(NullOutput{}),
		WithOpener(okOpener),
		WithDecoder(constDecoder),
	}
	e, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e, warns
}

func synthDef(id int64, name, drumType string) sound.Definition {
	return sound.Definition{
		ID:       id,
		Name:     name,
		DrumType: drumType,
		Mode:     sound.ModeSynthesis,
		Recipe:   sound.DefaultRecipe(drumType),
	}
}

// renderUntil renders from the current audio time up to t.
func renderUntil(e *Engine, t float64) []float64 {
	c := e.Context()
	frames := c.Frame(t) - c.CurrentFrame()
	if frames <= 0 {
		return nil
	}
	out := make([]float64, frames)
	c.Render(out)
	return out
}

func TestKickPatternAt120BPM(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Lookahead = 0.2
	e, warns := newTestEngine(t, WithConfig(cfg))
	if !e.AddSound(synthDef(1, "kick", "kick")) {
		t.Fatal("AddSound failed")
	}

	s := e.Scheduler()
	kick := sequencer.NewTrack("kick")
	kick.Volume = 0.8
	s.SetTracks([]sequencer.Track{kick})
	p := sequencer.NewPattern(1)
	p.Toggle(0, 0)

	var (
		mu    sync.Mutex
		ticks []float64
	)
	s.OnStep(func(_ int, at float64) {
		mu.Lock()
		ticks = append(ticks, at)
		mu.Unlock()
	})

	if err := s.Start(120, p); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if n := s.Pump(); n != 2 {
		t.Fatalf("Pump() issued %d ticks, want 2", n)
	}
	if e.Router().Open() != 1 {
		t.Fatalf("Open() = %d, want one routed kick", e.Router().Open())
	}

	out := renderUntil(e, 0.25)

	mu.Lock()
	if len(ticks) != 2 {
		mu.Unlock()
		t.Fatalf("observed %d ticks, want 2", len(ticks))
	}
	at, interval := ticks[0], ticks[1]-ticks[0]
	mu.Unlock()
	testutil.RequireNearlyEqual(t, interval, 0.125, 1e-9)

	frame := int(e.Context().Frame(at))
	testutil.RequireSilent(t, out[:frame], 0)
	if start := testutil.FirstAbove(out, 1e-6); start < frame || start > frame+16 {
		t.Fatalf("kick attack at frame %d, want %d", start, frame)
	}
	testutil.RequireFinite(t, out)

	renderUntil(e, 6)
	if e.Router().Open() != 0 {
		t.Fatal("effect chain must be cleaned up")
	}
	if n := warns.n.Load(); n != 0 {
		t.Fatalf("logged %d warnings, want none", n)
	}
}

func TestPlayScheduledFiresAtTime(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t)
	e.AddSound(synthDef(1, "kick", "kick"))

	pb := e.PlayScheduled("kick", 0.8, 0.125, nil)
	if pb == nil || pb.Time() != 0.125 || pb.Hits() != 1 {
		t.Fatalf("PlayScheduled() = %+v", pb)
	}
	out := renderUntil(e, 0.25)
	testutil.RequireSilent(t, out[:1000], 0)
	if testutil.Peak(out[1000:]) == 0 {
		t.Fatal("kick is silent")
	}
}

func TestUnknownKeyIsDropped(t *testing.T) {
	t.Parallel()

	e, warns := newTestEngine(t)

	if pb := e.PlayScheduled("nope", 1, 0, nil); pb != nil {
		t.Fatal("unknown key must not play")
	}
	if c := e.Schedule(sound.NewTrigger("nope", 0, 1, nil)); c != nil {
		t.Fatal("Schedule must return a nil Cancelable for a dropped trigger")
	}
	if warns.n.Load() != 2 {
		t.Fatalf("logged %d warnings, want 2", warns.n.Load())
	}
}

func TestDefaultSettingsMatchNil(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t)
	e.AddSound(synthDef(1, "kick", "kick"))
	c := e.Context()
	base := c.NodeCount()

	e.PlayScheduled("kick", 1, 0.05, nil)
	withNil := c.NodeCount()
	defaults := sound.DefaultTrackSettings()
	e.PlayScheduled("kick", 1, 0.06, &defaults)

	if withNil != base || c.NodeCount() != base {
		t.Fatalf("node count %d -> %d -> %d, want unchanged", base, withNil, c.NodeCount())
	}
	if e.Router().Reverb() != nil || e.Router().Delay() != nil {
		t.Fatal("default settings must not wake the buses")
	}
	v, _ := e.Registry().Get(1)
	for _, out := range v.Outputs() {
		if outs := out.Outputs(); len(outs) != 1 || outs[0] != c.Destination() {
			t.Fatal("voice must stay on the destination")
		}
	}
}

func TestAddRemoveCycle(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t)
	cowbell := synthDef(5, "Cowbell", "cowbell")

	if !e.AddSound(cowbell) || e.AddSound(cowbell) {
		t.Fatal("AddSound must succeed exactly once")
	}
	if e.Registry().Len() != 1 {
		t.Fatalf("Len() = %d, want 1", e.Registry().Len())
	}
	first, _ := e.Registry().Get(5)

	if !e.RemoveSound(cowbell) || e.RemoveSound(cowbell) {
		t.Fatal("RemoveSound must succeed exactly once")
	}
	if pb := e.PlayScheduled("cowbell", 1, 0, nil); pb != nil {
		t.Fatal("removed sound must not play")
	}
	if !e.AddSound(cowbell) {
		t.Fatal("re-add failed")
	}
	second, ok := e.Registry().Get(5)
	if !ok || second == first {
		t.Fatal("re-add must build a fresh voice")
	}
	if pb := e.PlayScheduled("5", 1, 0, nil); pb == nil || pb.Hits() != 1 {
		t.Fatal("re-added cowbell must play")
	}
	if testutil.Peak(renderUntil(e, 0.1)) == 0 {
		t.Fatal("re-added cowbell is silent")
	}
}

func TestFailedSampleFallsBack(t *testing.T) {
	t.Parallel()

	e, warns := newTestEngine(t, WithOpener(failingOpener))
	withRecipe := sound.Definition{
		ID: 10, Name: "snare", DrumType: "snare", Mode: sound.ModeSample,
		SampleURI: "snare.wav", Recipe: sound.DefaultRecipe("snare"),
	}
	bare := sound.Definition{
		ID: 11, Name: "vox", DrumType: "perc", Mode: sound.ModeSample,
		SampleURI: "vox.wav",
	}
	if !e.AddSound(withRecipe) || !e.AddSound(bare) {
		t.Fatal("AddSound must keep sample sounds whose load fails")
	}
	e.Catalog().Wait()

	if pb := e.PlayScheduled("snare", 1, 0.01, nil); pb == nil || pb.Hits() == 0 {
		t.Fatal("sample sound with a recipe must fall back to synthesis")
	}
	if testutil.Peak(renderUntil(e, 0.2)) == 0 {
		t.Fatal("fallback is silent")
	}

	before := warns.n.Load()
	pb := e.PlayScheduled("vox", 1, 0.3, nil)
	if pb == nil || pb.Hits() != 0 {
		t.Fatalf("sample sound without a recipe must be dropped quietly, got %+v", pb)
	}
	if warns.n.Load() <= before {
		t.Fatal("dropped hit must be logged")
	}
	renderUntil(e, 0.5)
}

func TestGetAllSoundsIsSnapshot(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t)
	e.AddSound(synthDef(2, "snare", "snare"))
	e.AddSound(synthDef(1, "kick", "kick"))

	got := e.GetAllSounds()
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("GetAllSounds() = %+v", got)
	}
	got[0].Name = "changed"
	if e.GetAllSounds()[0].Name != "kick" {
		t.Fatal("snapshot must not alias engine state")
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	t.Parallel()

	out := &fakeOutput{}
	e, _ := newTestEngine(t, WithOutput(out))

	for range 3 {
		if err := e.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
	}
	if out.starts != 1 {
		t.Fatalf("output started %d times, want 1", out.starts)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if out.closes != 1 {
		t.Fatalf("output closed %d times, want 1", out.closes)
	}
	if err := e.Initialize(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Initialize() after Close = %v, want ErrClosed", err)
	}
}

func TestInitializeReportsOutputFailureOnce(t *testing.T) {
	t.Parallel()

	boom := errors.New("no device")
	out := &fakeOutput{err: boom}
	e, _ := newTestEngine(t, WithOutput(out))

	err1 := e.Initialize(context.Background())
	err2 := e.Initialize(context.Background())
	if !errors.Is(err1, boom) || err1 != err2 {
		t.Fatalf("Initialize() = %v then %v, want the same wrapped error", err1, err2)
	}
	if out.starts != 1 {
		t.Fatalf("output started %d times, want 1", out.starts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Initialize(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Initialize(cancelled) = %v", err)
	}
}

func TestCloseReleasesNodes(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t)
	e.AddSound(synthDef(1, "kick", "kick"))
	e.AddSound(synthDef(3, "hat", "hihat"))

	wet := sound.DefaultTrackSettings()
	wet.ReverbSend = 0.5
	wet.DelayWet = 0.3
	e.PlayScheduled("kick", 1, 0.01, &wet)
	e.PlayScheduled("hat", 1, 0.02, nil)
	if e.Router().Reverb() == nil || e.Router().Delay() == nil {
		t.Fatal("send levels must wake both buses")
	}

	renderUntil(e, 6)
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if n := e.Context().NodeCount(); n != 1 {
		t.Fatalf("NodeCount() = %d after Close, want only the destination", n)
	}
	if err := e.Close(); err != nil {
		t.Fatal("second Close must be a no-op")
	}
}

package router

import (
	"math"
	"testing"

	"github.com/cwbudde/drumengine/audio/graph"
	"github.com/cwbudde/drumengine/audio/synth"
	"github.com/cwbudde/drumengine/drum/sound"
	"github.com/cwbudde/drumengine/drum/voice"
	"github.com/cwbudde/drumengine/internal/testutil"
)

const testRate = 8000

func newTestContext(t *testing.T) *graph.Context {
	t.Helper()

	c, err := graph.NewContext(graph.WithSampleRate(testRate), graph.WithBlockSize(64))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return c
}

// shortVoice rings for 0.1 s, so its cleanup lands on MinCleanup.
func shortVoice(t *testing.T, c *graph.Context) *voice.SynthVoice {
	t.Helper()

	v, err := voice.NewSynthVoice(c, sound.Definition{
		ID:   1,
		Mode: sound.ModeSynthesis,
		Recipe: &sound.MembraneRecipe{
			Waveform:  synth.Sine,
			Frequency: 200,
			Envelope:  synth.Envelope{Attack: 0.001, Decay: 0.05, Release: 0.05},
			Duration:  0.05,
		},
	})
	if err != nil {
		t.Fatalf("NewSynthVoice: %v", err)
	}
	return v
}

func renderSeconds(c *graph.Context, seconds float64) []float64 {
	out := make([]float64, int(seconds*testRate))
	c.Render(out)
	return out
}

func reachableNamed(c *graph.Context, v voice.Voice, name string) bool {
	for _, out := range v.Outputs() {
		for _, n := range c.Reachable(out) {
			if n.Name() == name {
				return true
			}
		}
	}
	return false
}

func onDestination(c *graph.Context, v voice.Voice) bool {
	for _, out := range v.Outputs() {
		outs := out.Outputs()
		if len(outs) != 1 || outs[0] != c.Destination() {
			return false
		}
	}
	return true
}

func TestIdentityTriggerStaysDirect(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	v := shortVoice(t, c)
	r := New(c)
	base := c.NodeCount()

	pb := r.Play(v, sound.NewTrigger("1", 0, 1, nil))
	if pb.Hits() != 1 {
		t.Fatalf("Hits() = %d, want 1", pb.Hits())
	}
	if c.NodeCount() != base || !onDestination(c, v) {
		t.Fatal("identity settings must not insert nodes")
	}
	if r.Reverb() != nil || r.Delay() != nil {
		t.Fatal("buses must stay dormant")
	}
	if pb.CleanupTime() < MinCleanup-1e-3 {
		t.Fatalf("CleanupTime() = %g, want >= %g", pb.CleanupTime(), MinCleanup)
	}
	if testutil.Peak(renderSeconds(c, 0.1)) == 0 {
		t.Fatal("voice is silent")
	}
}

func TestBitcrushChainIsRestored(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	v := shortVoice(t, c)
	r := New(c, WithCleanupMargin(0))
	base := c.NodeCount()

	s := sound.DefaultTrackSettings()
	s.BitcrushRate = 8000
	s.BitcrushBits = 4
	r.Play(v, sound.NewTrigger("1", 0, 1, &s))

	if !reachableNamed(c, v, "bitcrusher") {
		t.Fatal("bitcrusher not in the signal path")
	}
	if r.Open() != 1 {
		t.Fatalf("Open() = %d, want 1", r.Open())
	}

	renderSeconds(c, MinCleanup+0.05)

	if reachableNamed(c, v, "bitcrusher") {
		t.Fatal("bitcrusher still reachable after cleanup")
	}
	if !onDestination(c, v) {
		t.Fatal("voice not reconnected to the destination")
	}
	if c.NodeCount() != base || r.Open() != 0 {
		t.Fatalf("leaked %d nodes, %d open chains", c.NodeCount()-base, r.Open())
	}
}

func TestNewerTriggerKeepsRoute(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	v := shortVoice(t, c)
	r := New(c, WithCleanupMargin(0))
	base := c.NodeCount()

	crushed := sound.DefaultTrackSettings()
	crushed.BitcrushBits = 4
	filtered := sound.DefaultTrackSettings()
	filtered.FilterCutoff = 500

	r.Play(v, sound.NewTrigger("1", 0, 1, &crushed))
	r.Play(v, sound.NewTrigger("1", 0.3, 1, &filtered))

	renderSeconds(c, 0.6)
	if onDestination(c, v) {
		t.Fatal("older cleanup must not undo the newer route")
	}
	if !reachableNamed(c, v, "filter:lowpass") || reachableNamed(c, v, "bitcrusher") {
		t.Fatal("voice must be routed through the newer chain only")
	}

	renderSeconds(c, 0.3)
	if !onDestination(c, v) || c.NodeCount() != base {
		t.Fatal("newest cleanup must restore the voice")
	}
}

func TestReverbSendSplitsSignal(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	v := shortVoice(t, c)
	r := New(c)

	s := sound.DefaultTrackSettings()
	s.ReverbSend = 0.25
	s.FilterCutoff = 2000
	r.Play(v, sound.NewTrigger("1", 0, 1, &s))

	rb := r.Reverb()
	if rb == nil {
		t.Fatal("reverb bus must be created on the first send")
	}
	outs := v.Outputs()[0].Outputs()
	if len(outs) != 1 || outs[0].Name() != "split" {
		t.Fatalf("voice feeds %v, want one split", outs)
	}
	split := outs[0]
	if len(split.Outputs()) != 2 {
		t.Fatalf("split has %d outputs, want 2", len(split.Outputs()))
	}
	for _, n := range split.Outputs() {
		if n.Name() != "filter:lowpass" {
			t.Fatalf("split feeds %s, want a filter on each path", n.Name())
		}
	}

	reach := map[*graph.Node]bool{}
	for _, n := range c.Reachable(split) {
		reach[n] = true
	}
	if !reach[rb.Input()] || !reach[rb.Send()] {
		t.Fatal("dry and wet paths must reach the reverb bus")
	}
}

func TestDelayIsLastWriteWins(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	v := shortVoice(t, c)
	r := New(c)

	r.Play(v, sound.NewTrigger("1", 0, 1, nil))
	if r.Delay() != nil {
		t.Fatal("delay must stay dormant without a wet level")
	}

	s := sound.DefaultTrackSettings()
	s.DelayWet = 0.5
	s.DelayTime = 0.125
	r.Play(v, sound.NewTrigger("1", 0.1, 1, &s))
	d := r.Delay()
	if d == nil {
		t.Fatal("delay must be created on the first wet trigger")
	}
	if p := d.Params(); p.Wet != 0.5 || p.Time != 0.125 {
		t.Fatalf("delay params = %+v", p)
	}
	if !reachableNamed(c, v, "delay:in") {
		t.Fatal("dry path must run through the delay bus")
	}

	r.Play(v, sound.NewTrigger("1", 0.2, 1, nil))
	if p := d.Params(); p.Wet != 0 {
		t.Fatalf("later trigger must overwrite the wet level, got %+v", p)
	}
}

func TestCancelBeforeFire(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	v := shortVoice(t, c)
	r := New(c)
	base := c.NodeCount()

	s := sound.DefaultTrackSettings()
	s.BitcrushBits = 8
	pb := r.Play(v, sound.NewTrigger("1", 1, 1, &s))

	if !pb.Cancel() {
		t.Fatal("Cancel of a pending trigger must report true")
	}
	if c.NodeCount() != base || !onDestination(c, v) || r.Open() != 0 {
		t.Fatal("cancelled trigger must tear down its chain at once")
	}
	testutil.RequireSilent(t, renderSeconds(c, 1.2), 0)
}

func TestCancelAfterSoundKeepsCleanup(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	v := shortVoice(t, c)
	r := New(c)

	s := sound.DefaultTrackSettings()
	s.BitcrushBits = 8
	pb := r.Play(v, sound.NewTrigger("1", 0, 1, &s))
	renderSeconds(c, 0.05)

	if pb.Cancel() {
		t.Fatal("a sounding trigger has nothing to cancel")
	}
	if !reachableNamed(c, v, "bitcrusher") || r.Open() != 1 {
		t.Fatal("a sounding trigger keeps its chain until its own cleanup")
	}
	renderSeconds(c, 1)
	if r.Open() != 0 || !onDestination(c, v) {
		t.Fatal("cleanup timer must still fire")
	}
}

func TestRoutingFailureStillSafe(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	v := shortVoice(t, c)
	r := New(c)
	v.Dispose()
	base := c.NodeCount()

	s := sound.DefaultTrackSettings()
	s.BitcrushBits = 4
	pb := r.Play(v, sound.NewTrigger("1", 0, 1, &s))

	if pb.Hits() != 0 {
		t.Fatal("a disposed voice has no hits")
	}
	if c.NodeCount() != base {
		t.Fatal("failed routing must release its transient nodes")
	}
	renderSeconds(c, 1)
	if r.Open() != 0 {
		t.Fatal("cleanup must still run")
	}
}

// recordingVoice wraps one live source and may expose extra outputs that
// fail to connect.
type recordingVoice struct {
	outs   []*graph.Node
	src    *synth.Source
	ratios []float64
}

func newRecordingVoice(t *testing.T, c *graph.Context, extra ...*graph.Node) *recordingVoice {
	t.Helper()

	src, err := synth.NewOscillator(c, synth.OscillatorParams{
		Waveform:  synth.Sine,
		Frequency: 220,
		Envelope:  synth.Envelope{Attack: 0.001, Decay: 0.05, Release: 0.05},
		Duration:  0.05,
	})
	if err != nil {
		t.Fatalf("NewOscillator: %v", err)
	}
	if err := src.Node().Connect(c.Destination()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return &recordingVoice{outs: append(extra, src.Node()), src: src}
}

func (v *recordingVoice) ID() int64              { return 9 }
func (v *recordingVoice) Outputs() []*graph.Node { return v.outs }
func (v *recordingVoice) HitOffsets() []float64  { return []float64{0} }
func (v *recordingVoice) Duration() float64      { return v.src.Duration() }
func (v *recordingVoice) Dispose()               { v.src.Dispose() }

func (v *recordingVoice) Trigger(at, ratio, velocity float64) (voice.Cancel, error) {
	v.ratios = append(v.ratios, ratio)
	id := v.src.Trigger(at, ratio, velocity)
	return func() bool { return v.src.Cancel(id) }, nil
}

func TestFilterPrecedesBitcrusher(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	v := shortVoice(t, c)
	r := New(c)

	s := sound.DefaultTrackSettings()
	s.BitcrushRate = 8000
	s.BitcrushBits = 4
	s.FilterCutoff = 500
	r.Play(v, sound.NewTrigger("1", 0, 1, &s))

	first := v.Outputs()[0].Outputs()
	if len(first) != 1 || first[0].Name() != "filter:lowpass" {
		t.Fatal("voice must feed the filter first")
	}
	second := first[0].Outputs()
	if len(second) != 1 || second[0].Name() != "bitcrusher" {
		t.Fatal("filter must feed the bitcrusher")
	}
	if outs := second[0].Outputs(); len(outs) != 1 || outs[0] != c.Destination() {
		t.Fatal("bitcrusher must feed the destination")
	}
}

func TestRoutingFailureKeepsLiveOutput(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	dead := c.NewNode("dead", graph.Passthrough{})
	dead.Dispose()
	v := newRecordingVoice(t, c, dead)
	r := New(c)

	s := sound.DefaultTrackSettings()
	s.FilterCutoff = 2000
	pb := r.Play(v, sound.NewTrigger("1", 0, 1, &s))

	live := v.src.Node()
	if outs := live.Outputs(); len(outs) != 1 || outs[0] != c.Destination() {
		t.Fatal("live output must fall back to the destination")
	}
	if pb.Hits() != 1 {
		t.Fatalf("Hits() = %d, want 1", pb.Hits())
	}
	if testutil.Peak(renderSeconds(c, 0.1)) == 0 {
		t.Fatal("the hit must still sound")
	}
}

func TestPitchReachesVoice(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	v := newRecordingVoice(t, c)
	r := New(c)

	s := sound.DefaultTrackSettings()
	s.PitchSemitones = 7
	r.Play(v, sound.NewTrigger("1", 0, 1, &s))
	s.PitchSemitones = -12
	r.Play(v, sound.NewTrigger("1", 0.1, 1, &s))

	if len(v.ratios) != 2 {
		t.Fatalf("got %d triggers, want 2", len(v.ratios))
	}
	testutil.RequireNearlyEqual(t, v.ratios[0], math.Pow(2, 7.0/12), 1e-12)
	testutil.RequireNearlyEqual(t, v.ratios[1], 0.5, 1e-12)
}

package synth

import (
	"testing"

	"github.com/cwbudde/drumengine/audio/graph"
	"github.com/cwbudde/drumengine/internal/testutil"
)

func newTestContext(t *testing.T) *graph.Context {
	t.Helper()

	ctx, err := graph.NewContext(graph.WithSampleRate(8000), graph.WithBlockSize(64))
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}
	return ctx
}

func render(ctx *graph.Context, n int) []float64 {
	out := make([]float64, n)
	ctx.Render(out)
	return out
}

func zeroCrossings(data []float64) int {
	n := 0
	for i := 1; i < len(data); i++ {
		if (data[i-1] < 0) != (data[i] < 0) {
			n++
		}
	}
	return n
}

func TestEnvelopeNormalize(t *testing.T) {
	t.Parallel()

	got := Envelope{Attack: -1, Decay: 0.1, Sustain: 3, Release: -0.5}.Normalize()
	want := Envelope{Attack: 0, Decay: 0.1, Sustain: 1, Release: 0}
	if got != want {
		t.Fatalf("Normalize() = %+v, want %+v", got, want)
	}
}

func TestEnvelopeLevels(t *testing.T) {
	t.Parallel()

	env := Envelope{Attack: 0.01, Decay: 0.01, Sustain: 0.5, Release: 0.02}
	f := env.frames(0.05, 1000)

	tests := []struct {
		age  int64
		want float64
	}{
		{0, 0},
		{5, 0.5},
		{10, 1},
		{15, 0.75},
		{20, 0.5},
		{40, 0.5},
		{50, 0.5},
		{60, 0.25},
		{70, 0},
		{100, 0},
	}
	for _, tt := range tests {
		testutil.RequireNearlyEqual(t, f.level(tt.age), tt.want, 1e-12)
	}
	if f.end() != 70 {
		t.Fatalf("end() = %d, want 70", f.end())
	}
	testutil.RequireNearlyEqual(t, env.Length(0.05), 0.07, 1e-12)
}

func TestSourceStartsOnScheduledFrame(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)
	src, err := NewOscillator(ctx, OscillatorParams{
		Waveform:  Square,
		Frequency: 100,
		Envelope:  Envelope{Decay: 0.05},
		Duration:  0.05,
	})
	if err != nil {
		t.Fatalf("NewOscillator() error = %v", err)
	}
	_ = src.Node().Connect(ctx.Destination())

	src.Trigger(100.0/8000, 1, 0.5)
	out := render(ctx, 1000)

	if got := testutil.FirstAbove(out, 0.1); got != 100 {
		t.Fatalf("first sound at frame %d, want 100", got)
	}
	testutil.RequireNearlyEqual(t, out[100], 0.5, 1e-12)
	testutil.RequireSilent(t, out[500:], 0)
	testutil.RequireNearlyEqual(t, src.Duration(), 0.05, 1e-12)
}

func TestSourceCancel(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)
	src := NewNoise(ctx, NoiseParams{Envelope: DefaultEnvelope(), Duration: 0.01})
	_ = src.Node().Connect(ctx.Destination())

	first := src.Trigger(0.01, 1, 1)
	second := src.Trigger(0.5, 1, 1)
	if !src.Cancel(second) {
		t.Fatal("pending hit should be cancelable")
	}
	if src.Cancel(second) {
		t.Fatal("hit canceled twice")
	}
	if src.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", src.Pending())
	}

	out := render(ctx, 8000)
	if src.Cancel(first) {
		t.Fatal("started hit must not be cancelable")
	}
	testutil.RequireSilent(t, out[4000:], 0)
	if testutil.Peak(out[:1000]) == 0 {
		t.Fatal("first hit did not sound")
	}
}

func TestMembranePitchFalls(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)
	src, err := NewMembrane(ctx, MembraneParams{
		Frequency:  100,
		PitchDecay: 0.05,
		Octaves:    2,
		Envelope:   Envelope{Sustain: 1},
		Duration:   1,
	})
	if err != nil {
		t.Fatalf("NewMembrane() error = %v", err)
	}
	_ = src.Node().Connect(ctx.Destination())
	src.Trigger(0, 1, 1)

	out := render(ctx, 1600)
	early := zeroCrossings(out[:400])
	late := zeroCrossings(out[1200:1600])
	if early <= late {
		t.Fatalf("pitch did not fall: %d crossings early, %d late", early, late)
	}
	if late < 8 || late > 12 {
		t.Fatalf("settled pitch has %d crossings in 50 ms, want about 10", late)
	}

	if _, err := NewMembrane(ctx, MembraneParams{Frequency: 0}); err == nil {
		t.Fatal("expected error for zero frequency")
	}
}

func TestMembranePitchRatio(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)
	src, err := NewMembrane(ctx, MembraneParams{Frequency: 100, Envelope: Envelope{Sustain: 1}, Duration: 1})
	if err != nil {
		t.Fatal(err)
	}
	_ = src.Node().Connect(ctx.Destination())
	src.Trigger(0, 2, 1)

	out := render(ctx, 800)
	if n := zeroCrossings(out); n < 38 || n > 42 {
		t.Fatalf("ratio 2 should double 100 Hz: %d crossings in 100 ms", n)
	}
}

func TestNoiseColors(t *testing.T) {
	t.Parallel()

	for _, color := range []NoiseColor{White, Pink, Brown} {
		ctx := newTestContext(t)
		a := NewNoise(ctx, NoiseParams{Color: color, Envelope: Envelope{Sustain: 1}, Duration: 1, Seed: 3})
		b := NewNoise(ctx, NoiseParams{Color: color, Envelope: Envelope{Sustain: 1}, Duration: 1, Seed: 3})
		_ = a.Node().Connect(ctx.Destination())
		_ = b.Node().ConnectGain(ctx.Destination(), -1)
		a.Trigger(0, 1, 1)
		b.Trigger(0, 1, 1)

		// Equal seeds cancel out exactly.
		out := render(ctx, 512)
		testutil.RequireSilent(t, out, 1e-12)

		b.Node().Disconnect()
		out = render(ctx, 4096)
		testutil.RequireFinite(t, out)
		if p := testutil.Peak(out); p == 0 || p > 2 {
			t.Fatalf("%v noise peak %g", color, p)
		}
	}
}

func TestParseNames(t *testing.T) {
	t.Parallel()

	for _, w := range []Waveform{Sine, Triangle, Sawtooth, Square} {
		if got, ok := ParseWaveform(w.String()); !ok || got != w {
			t.Errorf("ParseWaveform(%q) = %v, %v", w.String(), got, ok)
		}
	}
	if got, ok := ParseWaveform("fmsine"); ok || got != Sine {
		t.Errorf("unknown waveform should fall back to sine")
	}
	for _, c := range []NoiseColor{White, Pink, Brown} {
		if got, ok := ParseNoiseColor(c.String()); !ok || got != c {
			t.Errorf("ParseNoiseColor(%q) = %v, %v", c.String(), got, ok)
		}
	}
}

func TestPlayerOverlapsRetriggers(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)
	data := make([]float64, 100)
	for i := range data {
		data[i] = 1
	}
	p := NewPlayer(ctx, data)
	_ = p.Node().Connect(ctx.Destination())

	p.Trigger(0, 1, 1)
	p.Trigger(50.0/8000, 1, 1)
	out := render(ctx, 256)

	testutil.RequireNearlyEqual(t, out[10], 1, 0)
	testutil.RequireNearlyEqual(t, out[75], 2, 0)
	testutil.RequireNearlyEqual(t, out[125], 1, 0)
	testutil.RequireSilent(t, out[150:], 0)
	if p.Active() != 0 {
		t.Fatalf("Active() = %d after both plays ended", p.Active())
	}
}

func TestPlayerRate(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)
	data := make([]float64, 100)
	for i := range data {
		data[i] = float64(i) / 100
	}
	p := NewPlayer(ctx, data)
	_ = p.Node().Connect(ctx.Destination())

	p.Trigger(0, 2, 1)
	id := p.Trigger(1, 1, 1)
	if !p.Cancel(id) {
		t.Fatal("pending play should be cancelable")
	}

	out := render(ctx, 128)
	for k := range 50 {
		testutil.RequireNearlyEqual(t, out[k], float64(2*k)/100, 1e-12)
	}
	testutil.RequireSilent(t, out[50:], 0)
	testutil.RequireNearlyEqual(t, p.Duration(2), 100.0/8000/2, 1e-15)
	testutil.RequireNearlyEqual(t, p.Duration(0), 100.0/8000, 1e-15)
}

func TestPlayerBoundsPlays(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)
	p := NewPlayer(ctx, make([]float64, 8000))
	for range MaxPlays + 5 {
		p.Trigger(0, 1, 1)
	}
	render(ctx, 64)
	if got := p.Active(); got != MaxPlays {
		t.Fatalf("Active() = %d, want %d", got, MaxPlays)
	}
}

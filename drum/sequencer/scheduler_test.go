package sequencer

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/cwbudde/drumengine/audio/graph"
	"github.com/cwbudde/drumengine/drum/sound"
)

const testRate = 8000

type fakePlayback struct {
	mu        sync.Mutex
	cancelled bool
}

func (p *fakePlayback) Cancel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = true
	return true
}

func (p *fakePlayback) Cancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

type recorder struct {
	mu    sync.Mutex
	trigs []sound.Trigger
	plays []*fakePlayback
}

func (r *recorder) schedule(trig sound.Trigger) Cancelable {
	r.mu.Lock()
	defer r.mu.Unlock()
	pb := &fakePlayback{}
	r.trigs = append(r.trigs, trig)
	r.plays = append(r.plays, pb)
	return pb
}

func (r *recorder) triggers() []sound.Trigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sound.Trigger(nil), r.trigs...)
}

func newFixture(t *testing.T, opts ...Option) (*graph.Context, *recorder, *Scheduler) {
	t.Helper()

	c, err := graph.NewContext(graph.WithSampleRate(testRate), graph.WithBlockSize(40))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	rec := &recorder{}
	return c, rec, New(c, rec.schedule, opts...)
}

// advanceTo renders until the audio clock reaches t.
func advanceTo(c *graph.Context, t float64) {
	frames := c.Frame(t) - c.CurrentFrame()
	if frames > 0 {
		c.Render(make([]float64, frames))
	}
}

func nearly(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestTickTimingAt120BPM(t *testing.T) {
	t.Parallel()

	c, rec, s := newFixture(t)
	s.SetTracks([]Track{NewTrack("kick"), NewTrack("hat")})
	p := NewPattern(2)
	p.Toggle(0, 0)
	p.Toggle(1, 0)
	p.Toggle(1, 1)

	if err := s.Start(120, p); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if Interval(120) != 0.125 {
		t.Fatalf("Interval(120) = %g, want 0.125", Interval(120))
	}

	if n := s.Pump(); n != 1 {
		t.Fatalf("first Pump issued %d ticks, want 1", n)
	}
	trigs := rec.triggers()
	if len(trigs) != 2 || trigs[0].Key != "kick" || trigs[1].Key != "hat" {
		t.Fatalf("step 0 triggers = %+v, want kick then hat", trigs)
	}
	if trigs[0].Time != trigs[1].Time || !nearly(trigs[0].Time, startOffset) {
		t.Fatalf("same-step triggers at %g and %g, want both %g", trigs[0].Time, trigs[1].Time, startOffset)
	}
	if trigs[0].Volume != 1 || !trigs[0].Settings.IsIdentity() {
		t.Fatalf("trigger = %+v", trigs[0])
	}

	advanceTo(c, 0.1)
	s.Pump()
	trigs = rec.triggers()
	if len(trigs) != 3 || trigs[2].Key != "hat" || !nearly(trigs[2].Time, startOffset+0.125) {
		t.Fatalf("step 1 trigger = %+v", trigs[len(trigs)-1])
	}
}

func TestStepListenerFiresOnAudioClock(t *testing.T) {
	t.Parallel()

	c, _, s := newFixture(t)
	s.SetTracks([]Track{NewTrack("kick")})

	var (
		mu    sync.Mutex
		steps []int
		times []float64
	)
	s.OnStep(func(step int, at float64) {
		mu.Lock()
		steps = append(steps, step)
		times = append(times, at)
		mu.Unlock()
	})

	if err := s.Start(120, NewPattern(1)); err != nil {
		t.Fatal(err)
	}
	s.Pump()
	if s.CurrentStep() != -1 {
		t.Fatal("no step has sounded yet")
	}

	advanceTo(c, 0.04)
	if s.CurrentStep() != -1 {
		t.Fatal("step notified before its time")
	}
	advanceTo(c, 0.06)
	if s.CurrentStep() != 0 {
		t.Fatalf("CurrentStep() = %d, want 0", s.CurrentStep())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(steps) != 1 || steps[0] != 0 || !nearly(times[0], startOffset) {
		t.Fatalf("listener got steps %v at %v", steps, times)
	}
}

func TestStopCancelsPendingTicks(t *testing.T) {
	t.Parallel()

	c, rec, s := newFixture(t, WithLookahead(1))
	s.SetTracks([]Track{NewTrack("kick")})
	p := NewPattern(1)
	for i := range Steps {
		p.Toggle(0, i)
	}

	notified := 0
	s.OnStep(func(int, float64) { notified++ })

	if err := s.Start(120, p); err != nil {
		t.Fatal(err)
	}
	s.Pump()
	if got := len(rec.triggers()); got != 8 {
		t.Fatalf("issued %d triggers in a 1 s window, want 8", got)
	}

	advanceTo(c, 0.2)
	s.Stop()
	if s.State() != Stopped || s.CurrentStep() != -1 {
		t.Fatalf("state %s step %d after Stop", s.State(), s.CurrentStep())
	}

	rec.mu.Lock()
	for i, pb := range rec.plays {
		sounded := rec.trigs[i].Time < 0.2
		if pb.Cancelled() == sounded {
			t.Errorf("trigger at %g cancelled=%v", rec.trigs[i].Time, pb.Cancelled())
		}
	}
	rec.mu.Unlock()

	before := notified
	advanceTo(c, 1.5)
	if notified != before {
		t.Fatal("step notifications must stop with the transport")
	}
	if s.Pump() != 0 {
		t.Fatal("stopped scheduler must not issue ticks")
	}
}

func TestTempoChangeKeepsPosition(t *testing.T) {
	t.Parallel()

	c, rec, s := newFixture(t)
	s.SetTracks([]Track{NewTrack("kick")})
	p := NewPattern(1)
	for i := range Steps {
		p.Toggle(0, i)
	}
	if err := s.Start(120, p); err != nil {
		t.Fatal(err)
	}

	s.Pump()
	if err := s.SetBPM(60); err != nil {
		t.Fatal(err)
	}
	for _, at := range []float64{0.1, 0.2, 0.35} {
		advanceTo(c, at)
		s.Pump()
	}

	want := []float64{0.05, 0.175, 0.425}
	trigs := rec.triggers()
	if len(trigs) != len(want) {
		t.Fatalf("issued %d triggers, want %d", len(trigs), len(want))
	}
	for i, w := range want {
		if !nearly(trigs[i].Time, w) {
			t.Errorf("tick %d at %g, want %g", i, trigs[i].Time, w)
		}
	}
}

func TestStartValidation(t *testing.T) {
	t.Parallel()

	_, _, s := newFixture(t)

	for _, bpm := range []float64{0, -10, math.NaN(), math.Inf(1)} {
		if err := s.Start(bpm, nil); !errors.Is(err, ErrInvalidTempo) {
			t.Errorf("Start(%g) error = %v, want ErrInvalidTempo", bpm, err)
		}
	}
	if err := s.Start(1000, nil); err != nil {
		t.Fatal(err)
	}
	if s.BPM() != MaxBPM {
		t.Fatalf("BPM() = %g, want %g", s.BPM(), MaxBPM)
	}
	if err := s.Start(120, nil); !errors.Is(err, ErrRunning) {
		t.Fatalf("second Start error = %v, want ErrRunning", err)
	}
	if err := s.SetBPM(5); err != nil || s.BPM() != MinBPM {
		t.Fatalf("SetBPM(5) = %v, BPM %g", err, s.BPM())
	}
}

func TestMutedTrackIsSkipped(t *testing.T) {
	t.Parallel()

	_, rec, s := newFixture(t)
	muted := NewTrack("snare")
	muted.Muted = true
	s.SetTracks([]Track{muted, NewTrack("kick")})
	p := NewPattern(2)
	p.Toggle(0, 0)
	p.Toggle(1, 0)

	if err := s.Start(120, p); err != nil {
		t.Fatal(err)
	}
	s.Pump()
	trigs := rec.triggers()
	if len(trigs) != 1 || trigs[0].Key != "kick" {
		t.Fatalf("triggers = %+v, want kick only", trigs)
	}
}

func TestSwingKeepsPairLength(t *testing.T) {
	t.Parallel()

	_, _, s := newFixture(t)
	s.SetSwing(0.5)

	s.mu.Lock()
	even, odd := s.stepDurationLocked(0), s.stepDurationLocked(1)
	s.mu.Unlock()

	if even <= odd {
		t.Fatalf("even step %g must be longer than odd step %g", even, odd)
	}
	if !nearly(even+odd, 2*Interval(120)) {
		t.Fatalf("pair length %g, want %g", even+odd, 2*Interval(120))
	}
}

func TestRunStopsWithContext(t *testing.T) {
	t.Parallel()

	_, _, s := newFixture(t, WithPollInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestPatternEditing(t *testing.T) {
	t.Parallel()

	p := NewPattern(2)
	if !p.Toggle(1, 15) || !p.Active(1, 15) {
		t.Fatal("Toggle must set the step")
	}
	if p.Toggle(2, 0) || p.Toggle(0, Steps) || p.Active(-1, 0) {
		t.Fatal("out-of-range steps must be ignored")
	}
	c := p.Clone()
	p.Clear()
	if p.Active(1, 15) || !c.Active(1, 15) {
		t.Fatal("Clear must not affect clones")
	}
}

func TestSameStepTriggersShareTime(t *testing.T) {
	t.Parallel()

	c, rec, s := newFixture(t)
	s.SetTracks([]Track{NewTrack("kick"), NewTrack("snare"), NewTrack("hat")})
	p := NewPattern(3)
	for track := range 3 {
		p.Toggle(track, 4)
	}
	if err := s.Start(120, p); err != nil {
		t.Fatal(err)
	}
	for at := 0.0; at < 0.6; at += 0.05 {
		advanceTo(c, at)
		s.Pump()
	}

	trigs := rec.triggers()
	if len(trigs) != 3 {
		t.Fatalf("issued %d triggers, want 3", len(trigs))
	}
	want := startOffset + 4*Interval(120)
	for i, trig := range trigs {
		if trig.Time != trigs[0].Time || !nearly(trig.Time, want) {
			t.Fatalf("trigger %d (%s) at %g, want %g", i, trig.Key, trig.Time, want)
		}
	}
}

func TestTempoChangeDoesNotSkipSteps(t *testing.T) {
	t.Parallel()

	c, _, s := newFixture(t)
	s.SetTracks([]Track{NewTrack("kick")})

	var steps []int
	s.OnStep(func(step int, _ float64) { steps = append(steps, step) })

	if err := s.Start(120, NewPattern(1)); err != nil {
		t.Fatal(err)
	}
	at := 0.0
	pump := func(until float64) {
		for ; at < until; at += 0.025 {
			advanceTo(c, at)
			s.Pump()
		}
	}
	pump(0.5)
	if err := s.SetBPM(200); err != nil {
		t.Fatal(err)
	}
	pump(1.0)
	if err := s.SetBPM(90); err != nil {
		t.Fatal(err)
	}
	pump(2.0)

	if len(steps) < 10 {
		t.Fatalf("only %d steps sounded", len(steps))
	}
	for i, step := range steps {
		if step != i%Steps {
			t.Fatalf("step sequence %v breaks at %d", steps, i)
		}
	}
}

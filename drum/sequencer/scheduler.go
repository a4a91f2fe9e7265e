// Package sequencer turns a 16-step pattern into triggers scheduled ahead
// of the audio clock.
//
// The scheduler keeps a small lookahead window: each pass issues every tick
// whose time falls inside [now, now+lookahead), so the audio work for a
// tick is already queued on the audio clock before the tick is due. Ticks
// are spaced by a sixteenth note at the current tempo, with optional swing.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/cwbudde/drumengine/audio/graph"
	"github.com/cwbudde/drumengine/drum/sound"
)

const (
	MinBPM = 20.0
	MaxBPM = 300.0

	// DefaultLookahead is the scheduling window in seconds.
	DefaultLookahead = 0.1
	// DefaultPollInterval is how often Run refills the window.
	DefaultPollInterval = 25 * time.Millisecond

	startOffset = 0.05
)

var (
	// ErrInvalidTempo is returned for a tempo that is not a positive number.
	ErrInvalidTempo = errors.New("sequencer: invalid tempo")
	// ErrRunning is returned by Start while already running.
	ErrRunning = errors.New("sequencer: already running")
)

// State is the transport state.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Clock is the audio clock the scheduler runs against.
type Clock interface {
	CurrentTime() float64
	At(t float64, fn func()) *graph.Timer
}

// Cancelable is a scheduled trigger that can still be withdrawn.
type Cancelable interface {
	Cancel() bool
}

// ScheduleFunc issues one trigger. It may return nil when the trigger was
// dropped.
type ScheduleFunc func(trig sound.Trigger) Cancelable

// StepFunc is notified on the audio clock when a step sounds.
type StepFunc func(step int, at float64)

// Option mutates scheduler construction parameters.
type Option func(*Scheduler)

// WithLookahead sets the scheduling window in seconds.
func WithLookahead(seconds float64) Option {
	return func(s *Scheduler) {
		if seconds > 0 && !math.IsInf(seconds, 0) {
			s.lookahead = seconds
		}
	}
}

// WithPollInterval sets how often Run refills the window.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.poll = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

type tick struct {
	at     float64
	issued []Cancelable
	timer  *graph.Timer
}

// Scheduler is the lookahead step clock.
type Scheduler struct {
	clock     Clock
	schedule  ScheduleFunc
	logger    *slog.Logger
	lookahead float64
	poll      time.Duration

	mu        sync.Mutex
	state     State
	bpm       float64
	swing     float64
	pattern   Pattern
	tracks    []Track
	step      int
	nextTime  float64
	current   int
	ticks     []tick
	listeners []StepFunc
}

// New creates a stopped scheduler at 120 BPM.
func New(clock Clock, schedule ScheduleFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:     clock,
		schedule:  schedule,
		lookahead: DefaultLookahead,
		poll:      DefaultPollInterval,
		bpm:       120,
		current:   -1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func clampBPM(bpm float64) (float64, error) {
	if !(bpm > 0) || math.IsInf(bpm, 0) {
		return 0, fmt.Errorf("%w: %f", ErrInvalidTempo, bpm)
	}
	return min(max(bpm, MinBPM), MaxBPM), nil
}

// Interval returns the seconds between unswung steps at bpm.
func Interval(bpm float64) float64 {
	return 60 / bpm / 4
}

// Start begins playback from step 0. A nil pattern keeps the current one.
func (s *Scheduler) Start(bpm float64, pattern Pattern) error {
	bpm, err := clampBPM(bpm)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Running {
		return ErrRunning
	}
	s.bpm = bpm
	if pattern != nil {
		s.pattern = pattern.Clone()
	}
	s.state = Running
	s.step = 0
	s.current = -1
	s.nextTime = s.clock.CurrentTime() + startOffset
	s.logger.Info("sequencer started", "bpm", bpm)
	return nil
}

// Stop halts playback and withdraws every trigger and step notification
// that has not sounded yet. Triggers already sounding finish on their own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return
	}
	s.state = Stopped
	s.current = -1
	s.pruneLocked(s.clock.CurrentTime())
	ticks := s.ticks
	s.ticks = nil
	s.mu.Unlock()

	for _, t := range ticks {
		t.timer.Stop()
		for _, c := range t.issued {
			c.Cancel()
		}
	}
	s.logger.Info("sequencer stopped")
}

// SetBPM changes the tempo. The step position is kept; the new interval
// applies from the next tick not yet scheduled.
func (s *Scheduler) SetBPM(bpm float64) error {
	bpm, err := clampBPM(bpm)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.bpm = bpm
	s.mu.Unlock()
	return nil
}

// BPM returns the current tempo.
func (s *Scheduler) BPM() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bpm
}

// SetSwing sets the shuffle amount in [0, 1]. Even steps lengthen and odd
// steps shorten by the same ratio, so two steps keep their combined length.
func (s *Scheduler) SetSwing(amount float64) {
	if math.IsNaN(amount) {
		amount = 0
	}
	s.mu.Lock()
	s.swing = min(max(amount, 0), 1)
	s.mu.Unlock()
}

// SetTracks replaces the track list. Tracks line up with pattern rows.
func (s *Scheduler) SetTracks(tracks []Track) {
	s.mu.Lock()
	s.tracks = append([]Track(nil), tracks...)
	s.mu.Unlock()
}

// Tracks returns a copy of the track list.
func (s *Scheduler) Tracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Track(nil), s.tracks...)
}

// SetPattern replaces the pattern. Ticks already scheduled are unaffected.
func (s *Scheduler) SetPattern(p Pattern) {
	s.mu.Lock()
	s.pattern = p.Clone()
	s.mu.Unlock()
}

// Pattern returns a copy of the pattern.
func (s *Scheduler) Pattern() Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pattern.Clone()
}

// OnStep registers a listener for sounding steps.
func (s *Scheduler) OnStep(fn StepFunc) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// CurrentStep returns the last step that sounded, or -1.
func (s *Scheduler) CurrentStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// State returns the transport state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pump issues every tick inside the lookahead window and returns how many
// it issued.
func (s *Scheduler) Pump() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Running {
		return 0
	}
	now := s.clock.CurrentTime()
	s.pruneLocked(now)

	skipped := 0
	for s.nextTime < now {
		s.nextTime += s.stepDurationLocked(s.step)
		s.step = (s.step + 1) % Steps
		skipped++
	}
	if skipped > 0 {
		s.logger.Warn("sequencer fell behind the audio clock", "skipped", skipped)
	}

	n := 0
	for s.nextTime < now+s.lookahead {
		s.tickLocked(s.step, s.nextTime)
		s.nextTime += s.stepDurationLocked(s.step)
		s.step = (s.step + 1) % Steps
		n++
	}
	return n
}

func (s *Scheduler) tickLocked(step int, at float64) {
	t := tick{at: at}
	for i, tr := range s.tracks {
		if tr.Muted || !s.pattern.Active(i, step) {
			continue
		}
		trig := sound.NewTrigger(tr.Key, at, tr.Volume, &tr.Settings)
		if c := s.schedule(trig); c != nil {
			t.issued = append(t.issued, c)
		}
	}
	t.timer = s.clock.At(at, func() { s.notify(step, at) })
	s.ticks = append(s.ticks, t)
}

func (s *Scheduler) notify(step int, at float64) {
	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return
	}
	s.current = step
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(step, at)
	}
}

// pruneLocked drops ticks that have already sounded.
func (s *Scheduler) pruneLocked(now float64) {
	keep := s.ticks[:0]
	for _, t := range s.ticks {
		if t.at >= now {
			keep = append(keep, t)
		}
	}
	clear(s.ticks[len(keep):])
	s.ticks = keep
}

func (s *Scheduler) stepDurationLocked(step int) float64 {
	base := Interval(s.bpm)
	ratio := shuffleRatio(s.swing)
	if ratio <= 0 {
		return base
	}
	if step%2 == 0 {
		return base * (1 + ratio)
	}
	return base * (1 - ratio)
}

// shuffleRatio maps the 0..1 swing control to a 0..1/3 timing ratio.
func shuffleRatio(swing float64) float64 {
	return (1.0 / 3.0) * math.Pow(swing, 1.6)
}

// Run pumps the scheduler every poll interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	s.Pump()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Pump()
		}
	}
}

package fx

import (
	"github.com/cwbudde/drumengine/audio/dsp/delay"
	"github.com/cwbudde/drumengine/audio/graph"
)

const (
	// DefaultDelayTime and DefaultDelayFeedback are the neutral delay
	// settings of a track and of a fresh bus. The wet level defaults to 0.
	DefaultDelayTime     = 0.25
	DefaultDelayFeedback = 0.3

	// MinDelayTime and MaxDelayTime bound the delay time in seconds.
	MinDelayTime = 0.001
	MaxDelayTime = 2.0
	// MaxDelayFeedback keeps the feedback loop stable.
	MaxDelayFeedback = 0.95
)

// DelayParams is the shared delay bus state. Every trigger with a delay
// setting overwrites it.
type DelayParams struct {
	Time     float64 // seconds
	Feedback float64 // [0, 0.95]
	Wet      float64 // [0, 1]
}

// Clamp returns p with every field forced into its valid range.
func (p DelayParams) Clamp() DelayParams {
	if !finite(p.Time) {
		p.Time = DefaultDelayTime
	}
	if !finite(p.Feedback) {
		p.Feedback = 0
	}
	if !finite(p.Wet) {
		p.Wet = 0
	}
	p.Time = clamp(p.Time, MinDelayTime, MaxDelayTime)
	p.Feedback = clamp(p.Feedback, 0, MaxDelayFeedback)
	p.Wet = clamp(p.Wet, 0, 1)
	return p
}

// DelayBus is the shared feedback delay. Its input passes to the output
// unchanged and also feeds a delay line whose echoes return at the wet level.
type DelayBus struct {
	ctx *graph.Context

	in   *graph.Node
	line *graph.Node
	out  *graph.Node
	proc *delayLine

	wet float64
	dst *graph.Node
}

type delayLine struct {
	sampleRate float64
	line       *delay.Line

	delay    float64 // frames
	feedback float64
}

// NewDelayBus builds the bus with the given initial parameters (clamped).
// The output is left unconnected.
func NewDelayBus(ctx *graph.Context, params DelayParams) (*DelayBus, error) {
	sr := ctx.SampleRate()
	line, err := delay.ForDuration(MaxDelayTime, sr)
	if err != nil {
		return nil, err
	}

	p := &delayLine{sampleRate: sr, line: line}
	d := &DelayBus{
		ctx:  ctx,
		in:   ctx.NewNode("delay:in", graph.Passthrough{}),
		line: ctx.NewNode("delay:line", p),
		out:  ctx.NewNode("delay:out", graph.Passthrough{}),
		proc: p,
	}
	if err := d.in.Connect(d.out); err != nil {
		return nil, err
	}
	if err := d.in.Connect(d.line); err != nil {
		return nil, err
	}
	if err := d.SetParams(params); err != nil {
		return nil, err
	}
	return d, nil
}

// DefaultDelayParams returns the parameters a freshly created bus uses when
// the caller has none.
func DefaultDelayParams() DelayParams {
	return DelayParams{Time: DefaultDelayTime, Feedback: DefaultDelayFeedback}
}

// SetParams overwrites time, feedback and wet level. Values are clamped.
// It fails once the bus is disposed.
func (d *DelayBus) SetParams(params DelayParams) error {
	params = params.Clamp()
	d.ctx.Update(func() {
		d.proc.delay = params.Time * d.proc.sampleRate
		d.proc.feedback = params.Feedback
		d.wet = params.Wet
	})
	return d.line.ConnectGain(d.out, params.Wet)
}

// Params returns the current parameters.
func (d *DelayBus) Params() DelayParams {
	var p DelayParams
	d.ctx.Update(func() {
		p = DelayParams{
			Time:     d.proc.delay / d.proc.sampleRate,
			Feedback: d.proc.feedback,
			Wet:      d.wet,
		}
	})
	return p
}

// Input returns the bus input.
func (d *DelayBus) Input() *graph.Node { return d.in }

// Output returns the bus output.
func (d *DelayBus) Output() *graph.Node { return d.out }

// Connect routes the bus output to dst, replacing the previous destination.
func (d *DelayBus) Connect(dst *graph.Node) error {
	if d.dst != nil && d.dst != dst {
		d.out.DisconnectFrom(d.dst)
	}
	if err := d.out.Connect(dst); err != nil {
		return err
	}
	d.dst = dst
	return nil
}

// Dispose releases every node of the bus.
func (d *DelayBus) Dispose() {
	d.in.Dispose()
	d.line.Dispose()
	d.out.Dispose()
}

func (l *delayLine) Process(_ int64, in, out []float64) {
	for i, x := range in {
		y := l.line.ReadFractional(l.delay)
		l.line.Write(x + y*l.feedback)
		out[i] = y
	}
}

package synth

import (
	"cmp"
	"slices"

	"github.com/cwbudde/algo-vecmath"
	"github.com/cwbudde/drumengine/audio/graph"
)

// generator produces the raw signal of a Source. start is called on every
// hit with the pitch ratio of that hit.
type generator interface {
	start(ratio float64)
	next() float64
}

// hit is a scheduled trigger.
type hit struct {
	id       uint64
	frame    int64
	ratio    float64
	velocity float64
}

// hitQueue keeps pending hits ordered by frame, then id.
type hitQueue struct {
	nextID  uint64
	pending []hit
}

func (q *hitQueue) push(frame int64, ratio, velocity float64) uint64 {
	q.nextID++
	h := hit{id: q.nextID, frame: frame, ratio: ratio, velocity: velocity}
	i, _ := slices.BinarySearchFunc(q.pending, h, func(a, b hit) int {
		return cmp.Or(cmp.Compare(a.frame, b.frame), cmp.Compare(a.id, b.id))
	})
	q.pending = slices.Insert(q.pending, i, h)
	return h.id
}

func (q *hitQueue) cancel(id uint64) bool {
	for i := range q.pending {
		if q.pending[i].id == id {
			q.pending = slices.Delete(q.pending, i, i+1)
			return true
		}
	}
	return false
}

// due pops the next hit at or before frame.
func (q *hitQueue) due(frame int64) (hit, bool) {
	if len(q.pending) == 0 || q.pending[0].frame > frame {
		return hit{}, false
	}
	h := q.pending[0]
	q.pending = q.pending[1:]
	return h, true
}

// Source is a monophonic enveloped generator. A new hit restarts the
// envelope and the generator.
type Source struct {
	ctx  *graph.Context
	node *graph.Node
	proc *sourceProcessor
	hold float64
	env  Envelope
}

type sourceProcessor struct {
	gen   generator
	env   frames
	queue hitQueue

	active   bool
	age      int64
	velocity float64

	raw   []float64
	gains []float64
}

func newSource(ctx *graph.Context, name string, gen generator, env Envelope, hold float64) *Source {
	env = env.Normalize()
	p := &sourceProcessor{
		gen:   gen,
		env:   env.frames(hold, ctx.SampleRate()),
		raw:   make([]float64, ctx.BlockSize()),
		gains: make([]float64, ctx.BlockSize()),
	}
	return &Source{
		ctx:  ctx,
		node: ctx.NewNode(name, p),
		proc: p,
		hold: nonNegative(hold),
		env:  env,
	}
}

// Node returns the graph node carrying the source output.
func (s *Source) Node() *graph.Node { return s.node }

// Envelope returns the normalized envelope.
func (s *Source) Envelope() Envelope { return s.env }

// Duration returns the time from a hit until the source is silent.
func (s *Source) Duration() float64 { return s.env.Length(s.hold) }

// Trigger schedules a hit at audio clock time at. ratio scales the
// generator pitch; velocity scales the amplitude. The returned id can be
// passed to Cancel while the hit is pending.
func (s *Source) Trigger(at, ratio, velocity float64) uint64 {
	if ratio <= 0 || !isFinite(ratio) {
		ratio = 1
	}
	if velocity < 0 || !isFinite(velocity) {
		velocity = 0
	}
	frame := s.ctx.Frame(at)
	var id uint64
	s.ctx.Update(func() { id = s.proc.queue.push(frame, ratio, velocity) })
	return id
}

// Cancel removes a pending hit and reports whether it had not started yet.
func (s *Source) Cancel(id uint64) bool {
	var ok bool
	s.ctx.Update(func() { ok = s.proc.queue.cancel(id) })
	return ok
}

// Pending returns the number of hits not started yet.
func (s *Source) Pending() int {
	var n int
	s.ctx.Update(func() { n = len(s.proc.queue.pending) })
	return n
}

// Dispose releases the node.
func (s *Source) Dispose() { s.node.Dispose() }

func (p *sourceProcessor) Process(frame int64, _, out []float64) {
	raw := p.raw[:len(out)]
	gains := p.gains[:len(out)]
	for i := range out {
		for {
			h, ok := p.queue.due(frame + int64(i))
			if !ok {
				break
			}
			p.gen.start(h.ratio)
			p.active = true
			p.age = 0
			p.velocity = h.velocity
		}

		if !p.active {
			raw[i] = 0
			gains[i] = 0
			continue
		}
		raw[i] = p.gen.next()
		gains[i] = p.env.level(p.age) * p.velocity
		p.age++
		if p.age >= p.env.end() {
			p.active = false
		}
	}
	vecmath.MulBlock(out, raw, gains)
}

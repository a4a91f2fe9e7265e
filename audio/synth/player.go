package synth

import (
	"github.com/cwbudde/drumengine/audio/graph"
)

// MaxPlays bounds the number of overlapping plays of one Player. The oldest
// play is dropped when a new one would exceed it.
const MaxPlays = 32

// Player renders a mono sample buffer. Every trigger starts an independent
// play, so a retrigger never cuts off a play that is still ringing.
type Player struct {
	ctx  *graph.Context
	node *graph.Node
	proc *playerProcessor
}

type play struct {
	pos  float64
	rate float64
	gain float64
}

type playerProcessor struct {
	data  []float64
	queue hitQueue
	plays []play
}

// NewPlayer creates a player over data, which must be at the context sample
// rate. data is not copied and must not be modified afterwards.
func NewPlayer(ctx *graph.Context, data []float64) *Player {
	p := &playerProcessor{data: data}
	return &Player{ctx: ctx, node: ctx.NewNode("player", p), proc: p}
}

// Node returns the graph node carrying the player output.
func (p *Player) Node() *graph.Node { return p.node }

// Len returns the buffer length in frames.
func (p *Player) Len() int { return len(p.proc.data) }

// Duration returns how long one play lasts at the given rate.
func (p *Player) Duration(rate float64) float64 {
	if rate <= 0 || !isFinite(rate) {
		rate = 1
	}
	return float64(len(p.proc.data)) / p.ctx.SampleRate() / rate
}

// Trigger schedules a play at audio clock time at. rate scales the playback
// speed (and pitch); gain scales the amplitude.
func (p *Player) Trigger(at, rate, gain float64) uint64 {
	if rate <= 0 || !isFinite(rate) {
		rate = 1
	}
	if gain < 0 || !isFinite(gain) {
		gain = 0
	}
	frame := p.ctx.Frame(at)
	var id uint64
	p.ctx.Update(func() { id = p.proc.queue.push(frame, rate, gain) })
	return id
}

// Cancel removes a pending play and reports whether it had not started yet.
func (p *Player) Cancel(id uint64) bool {
	var ok bool
	p.ctx.Update(func() { ok = p.proc.queue.cancel(id) })
	return ok
}

// Active returns the number of plays currently sounding.
func (p *Player) Active() int {
	var n int
	p.ctx.Update(func() { n = len(p.proc.plays) })
	return n
}

// Dispose releases the node.
func (p *Player) Dispose() { p.node.Dispose() }

func (p *playerProcessor) Process(frame int64, _, out []float64) {
	clear(out)
	n := len(p.data)
	for i := range out {
		for {
			h, ok := p.queue.due(frame + int64(i))
			if !ok {
				break
			}
			if len(p.plays) >= MaxPlays {
				p.plays = append(p.plays[:0], p.plays[1:]...)
			}
			p.plays = append(p.plays, play{rate: h.ratio, gain: h.velocity})
		}

		write := 0
		for _, pl := range p.plays {
			i0 := int(pl.pos)
			if i0 >= n {
				continue
			}
			frac := pl.pos - float64(i0)
			v := p.data[i0]
			if frac > 0 && i0+1 < n {
				v += (p.data[i0+1] - v) * frac
			}
			out[i] += v * pl.gain
			pl.pos += pl.rate
			p.plays[write] = pl
			write++
		}
		p.plays = p.plays[:write]
	}
}

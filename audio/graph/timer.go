package graph

import "container/heap"

// Timer is a callback bound to a point of the audio clock.
type Timer struct {
	ctx   *Context
	frame int64
	seq   uint64
	fn    func()
	index int
}

// At schedules fn to run once the audio clock has passed time t (seconds).
// Callbacks run on the render goroutine after the quantum containing t, in
// time order; a t in the past fires after the next quantum.
func (c *Context) At(t float64, fn func()) *Timer {
	return c.atFrame(c.Frame(t), fn)
}

// After schedules fn to run d seconds after the current audio clock.
func (c *Context) After(d float64, fn func()) *Timer {
	c.mu.Lock()
	frame := c.frame + c.Frame(d)
	c.mu.Unlock()
	return c.atFrame(frame, fn)
}

func (c *Context) atFrame(frame int64, fn func()) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.timerSeq++
	t := &Timer{ctx: c, frame: frame, seq: c.timerSeq, fn: fn, index: -1}
	heap.Push(&c.timers, t)
	return t
}

// Stop cancels the timer. It reports whether the call prevented the
// callback from running.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	c := t.ctx
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.index < 0 {
		return false
	}
	heap.Remove(&c.timers, t.index)
	return true
}

// Time returns the audio clock time the timer is bound to.
func (t *Timer) Time() float64 {
	return t.ctx.Time(t.frame)
}

// PendingTimers returns the number of timers that have not fired yet.
func (c *Context) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers.Len()
}

func (c *Context) popDueLocked() []*Timer {
	var due []*Timer
	for c.timers.Len() > 0 && c.timers[0].frame <= c.frame {
		due = append(due, heap.Pop(&c.timers).(*Timer))
	}
	return due
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].frame == h[j].frame {
		return h[i].seq < h[j].seq
	}
	return h[i].frame < h[j].frame
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
)

const (
	// DefaultSampleRate is the render rate used when no option overrides it.
	DefaultSampleRate = 44100.0
	// DefaultBlockSize is the render quantum in frames.
	DefaultBlockSize = 128

	minSampleRate = 8000.0
	maxSampleRate = 192000.0
	maxBlockSize  = 8192
)

var (
	// ErrDisposed is returned when connecting to or from a disposed node.
	ErrDisposed = errors.New("graph: node disposed")
	// ErrCycle is returned when a connection would close a feedback loop.
	ErrCycle = errors.New("graph: connection would create a cycle")
	// ErrForeignNode is returned when nodes of two contexts are connected.
	ErrForeignNode = errors.New("graph: node belongs to another context")
)

// Option mutates context construction parameters.
type Option func(*config) error

type config struct {
	sampleRate float64
	blockSize  int
	logger     *slog.Logger
}

func defaultConfig() config {
	return config{
		sampleRate: DefaultSampleRate,
		blockSize:  DefaultBlockSize,
	}
}

// WithSampleRate sets the render sample rate in Hz.
// Range: [8000, 192000].
func WithSampleRate(sampleRate float64) Option {
	return func(cfg *config) error {
		if sampleRate < minSampleRate || sampleRate > maxSampleRate ||
			math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
			return fmt.Errorf("graph sample rate must be in [%g, %g]: %f",
				minSampleRate, maxSampleRate, sampleRate)
		}
		cfg.sampleRate = sampleRate
		return nil
	}
}

// WithBlockSize sets the render quantum in frames.
// Range: [1, 8192].
func WithBlockSize(frames int) Option {
	return func(cfg *config) error {
		if frames < 1 || frames > maxBlockSize {
			return fmt.Errorf("graph block size must be in [1, %d]: %d", maxBlockSize, frames)
		}
		cfg.blockSize = frames
		return nil
	}
}

// WithLogger sets the logger used for timer callback failures.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) error {
		cfg.logger = logger
		return nil
	}
}

// Context owns the audio clock, the Destination and every live node.
type Context struct {
	mu sync.Mutex

	sampleRate float64
	blockSize  int
	logger     *slog.Logger

	frame  int64
	nextID uint64
	nodes  map[uint64]*Node
	order  []*Node
	dirty  bool

	dest   *Node
	master *gainProcessor

	timers   timerHeap
	timerSeq uint64

	streamMu  sync.Mutex
	streamBuf []float64
}

// NewContext creates a context with a Destination node and optional
// configuration overrides.
func NewContext(opts ...Option) (*Context, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	c := &Context{
		sampleRate: cfg.sampleRate,
		blockSize:  cfg.blockSize,
		logger:     cfg.logger,
		nodes:      make(map[uint64]*Node),
	}

	c.master = &gainProcessor{gain: 1}
	c.dest = c.NewNode("destination", c.master)
	c.dest.fixed = true
	return c, nil
}

// SampleRate returns the render sample rate in Hz.
func (c *Context) SampleRate() float64 { return c.sampleRate }

// BlockSize returns the render quantum in frames.
func (c *Context) BlockSize() int { return c.blockSize }

// Logger returns the context logger.
func (c *Context) Logger() *slog.Logger { return c.logger }

// Destination returns the master output node. It cannot be disposed.
func (c *Context) Destination() *Node { return c.dest }

// CurrentFrame returns the number of frames rendered so far.
func (c *Context) CurrentFrame() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// CurrentTime returns the audio clock in seconds.
func (c *Context) CurrentTime() float64 {
	return float64(c.CurrentFrame()) / c.sampleRate
}

// Frame converts an audio clock time in seconds to the nearest frame.
func (c *Context) Frame(t float64) int64 {
	return int64(math.Round(t * c.sampleRate))
}

// Time converts a frame index to seconds.
func (c *Context) Time(frame int64) float64 {
	return float64(frame) / c.sampleRate
}

// SetMasterGain sets the Destination gain as a linear factor (>= 0).
func (c *Context) SetMasterGain(gain float64) {
	if gain < 0 || math.IsNaN(gain) {
		gain = 0
	}
	c.mu.Lock()
	c.master.gain = gain
	c.mu.Unlock()
}

// MasterGain returns the Destination gain.
func (c *Context) MasterGain() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.master.gain
}

// Update runs fn with the graph lock held. Processor state shared with the
// render goroutine must only be mutated from inside Update.
func (c *Context) Update(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

// NodeCount returns the number of live nodes including the Destination.
func (c *Context) NodeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.nodes)
}

// Render renders len(block) frames into block, advancing the audio clock.
// Timers that become due are fired after each quantum.
func (c *Context) Render(block []float64) {
	for len(block) > 0 {
		n := min(len(block), c.blockSize)
		c.renderQuantum(block[:n])
		block = block[n:]
	}
}

func (c *Context) renderQuantum(dst []float64) {
	c.mu.Lock()

	n := len(dst)
	if c.dirty || c.order == nil {
		c.order = c.sortLocked()
		c.dirty = false
	}

	for _, node := range c.order {
		clear(node.in[:n])
	}

	for _, node := range c.order {
		in := node.in[:n]
		out := node.out[:n]
		node.proc.Process(c.frame, in, out)

		for _, e := range node.outs {
			acc := e.dst.in[:n]
			if e.gain == 1 {
				for i, v := range out {
					acc[i] += v
				}
				continue
			}
			for i, v := range out {
				acc[i] += v * e.gain
			}
		}
	}

	copy(dst, c.dest.out[:n])
	c.frame += int64(n)
	due := c.popDueLocked()

	c.mu.Unlock()

	for _, t := range due {
		c.fire(t)
	}
}

func (c *Context) fire(t *Timer) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("audio clock timer panicked", "frame", t.frame, "panic", r)
		}
	}()
	t.fn()
}

// Reachable returns every node reachable from n through output connections,
// excluding n itself, in breadth-first order.
func (c *Context) Reachable(n *Node) []*Node {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*Node
	seen := map[*Node]struct{}{n: {}}
	queue := []*Node{n}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range cur.outs {
			if _, ok := seen[e.dst]; ok {
				continue
			}
			seen[e.dst] = struct{}{}
			out = append(out, e.dst)
			queue = append(queue, e.dst)
		}
	}
	return out
}

package graph

// Processor renders one block for a node. in holds the summed input of every
// upstream connection (zero for sources); out must be fully written. frame is
// the audio clock position of in[0].
type Processor interface {
	Process(frame int64, in, out []float64)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(frame int64, in, out []float64)

// Process calls f.
func (f ProcessorFunc) Process(frame int64, in, out []float64) { f(frame, in, out) }

// Disposer is implemented by processors holding resources that must be
// released when their node is disposed. Dispose runs under the graph lock.
type Disposer interface {
	Dispose()
}

// Passthrough copies its input to its output.
type Passthrough struct{}

// Process copies in to out.
func (Passthrough) Process(_ int64, in, out []float64) { copy(out, in) }

type gainProcessor struct {
	gain float64
}

func (g *gainProcessor) Process(_ int64, in, out []float64) {
	for i, v := range in {
		out[i] = v * g.gain
	}
}

type edge struct {
	dst  *Node
	gain float64
}

// Node is a handle to one processing unit in the graph.
type Node struct {
	ctx  *Context
	id   uint64
	name string
	proc Processor

	outs []edge
	in   []float64
	out  []float64

	disposed bool
	fixed    bool
}

// NewNode registers a node backed by p. The node starts unconnected.
func (c *Context) NewNode(name string, p Processor) *Node {
	if p == nil {
		p = Passthrough{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	n := &Node{
		ctx:  c,
		id:   c.nextID,
		name: name,
		proc: p,
		in:   make([]float64, c.blockSize),
		out:  make([]float64, c.blockSize),
	}
	c.nodes[n.id] = n
	c.dirty = true
	return n
}

// Name returns the diagnostic name given at creation.
func (n *Node) Name() string { return n.name }

// Context returns the owning context.
func (n *Node) Context() *Context { return n.ctx }

// Processor returns the processor backing the node.
func (n *Node) Processor() Processor { return n.proc }

// Connect routes the node output into dst at unity gain.
func (n *Node) Connect(dst *Node) error {
	return n.ConnectGain(dst, 1)
}

// ConnectGain routes the node output into dst scaled by gain. Connecting an
// existing pair again only updates the gain.
func (n *Node) ConnectGain(dst *Node, gain float64) error {
	if dst == nil {
		return ErrDisposed
	}
	if dst.ctx != n.ctx {
		return ErrForeignNode
	}

	c := n.ctx
	c.mu.Lock()
	defer c.mu.Unlock()

	if n.disposed || dst.disposed {
		return ErrDisposed
	}

	for i := range n.outs {
		if n.outs[i].dst == dst {
			n.outs[i].gain = gain
			return nil
		}
	}

	if dst == n || reachesLocked(dst, n) {
		return ErrCycle
	}

	n.outs = append(n.outs, edge{dst: dst, gain: gain})
	c.dirty = true
	return nil
}

// Disconnect removes every output connection.
func (n *Node) Disconnect() {
	c := n.ctx
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(n.outs) == 0 {
		return
	}
	n.outs = nil
	c.dirty = true
}

// DisconnectFrom removes the connection to dst and reports whether one
// existed.
func (n *Node) DisconnectFrom(dst *Node) bool {
	c := n.ctx
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range n.outs {
		if n.outs[i].dst == dst {
			n.outs = append(n.outs[:i], n.outs[i+1:]...)
			c.dirty = true
			return true
		}
	}
	return false
}

// Outputs returns the nodes this node currently feeds.
func (n *Node) Outputs() []*Node {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()

	out := make([]*Node, len(n.outs))
	for i, e := range n.outs {
		out[i] = e.dst
	}
	return out
}

// ConnectedTo reports whether the node feeds dst directly and at which gain.
func (n *Node) ConnectedTo(dst *Node) (float64, bool) {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()

	for _, e := range n.outs {
		if e.dst == dst {
			return e.gain, true
		}
	}
	return 0, false
}

// Disposed reports whether Dispose has been called.
func (n *Node) Disposed() bool {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	return n.disposed
}

// Dispose disconnects the node from both sides, releases its processor and
// removes it from the render order. Disposing twice is a no-op; the
// Destination ignores Dispose.
func (n *Node) Dispose() {
	c := n.ctx
	c.mu.Lock()
	defer c.mu.Unlock()

	if n.disposed || n.fixed {
		return
	}
	n.disposed = true
	n.outs = nil

	for _, other := range c.nodes {
		for i := 0; i < len(other.outs); i++ {
			if other.outs[i].dst == n {
				other.outs = append(other.outs[:i], other.outs[i+1:]...)
				i--
			}
		}
	}

	delete(c.nodes, n.id)
	c.dirty = true

	if d, ok := n.proc.(Disposer); ok {
		d.Dispose()
	}
}

// reachesLocked reports whether to is reachable from from.
func reachesLocked(from, to *Node) bool {
	seen := map[*Node]struct{}{}
	stack := []*Node{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		if _, ok := seen[cur]; ok {
			continue
		}
		seen[cur] = struct{}{}
		for _, e := range cur.outs {
			stack = append(stack, e.dst)
		}
	}
	return false
}

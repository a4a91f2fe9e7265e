package graph

import (
	"cmp"
	"slices"
)

// sortLocked returns the live nodes in topological order (Kahn's algorithm).
// Ties are broken by creation order so rendering is deterministic.
func (c *Context) sortLocked() []*Node {
	indegree := make(map[*Node]int, len(c.nodes))
	for _, n := range c.nodes {
		if _, ok := indegree[n]; !ok {
			indegree[n] = 0
		}
		for _, e := range n.outs {
			indegree[e.dst]++
		}
	}

	queue := make([]*Node, 0, len(c.nodes))
	for n, d := range indegree {
		if d == 0 {
			queue = append(queue, n)
		}
	}
	slices.SortFunc(queue, byID)

	order := make([]*Node, 0, len(c.nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		order = append(order, n)

		var ready []*Node
		for _, e := range n.outs {
			indegree[e.dst]--
			if indegree[e.dst] == 0 {
				ready = append(ready, e.dst)
			}
		}
		slices.SortFunc(ready, byID)
		queue = append(queue, ready...)
	}

	if len(order) != len(c.nodes) {
		// Connect rejects cycles, so this only guards against misuse of
		// unexported state. Remaining nodes render last, in id order.
		c.logger.Error("render graph contains cycle", "nodes", len(c.nodes), "ordered", len(order))
		placed := make(map[*Node]struct{}, len(order))
		for _, n := range order {
			placed[n] = struct{}{}
		}
		var rest []*Node
		for _, n := range c.nodes {
			if _, ok := placed[n]; !ok {
				rest = append(rest, n)
			}
		}
		slices.SortFunc(rest, byID)
		order = append(order, rest...)
	}

	return order
}

func byID(a, b *Node) int {
	return cmp.Compare(a.id, b.id)
}

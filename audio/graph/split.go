package graph

import (
	"errors"
	"fmt"
	"math"
)

// ErrSplitWeights is returned for split weights outside [0, 1] or summing
// to more than 1.
var ErrSplitWeights = errors.New("graph: split weights must be in [0, 1] with dry+wet <= 1")

// Split is a one-input, two-output fan-out node. The dry and wet outputs
// carry the input scaled by their weights; dry+wet never exceeds 1, so a
// split never adds energy to the signal it divides.
type Split struct {
	node *Node
	dry  float64
	wet  float64
}

// NewSplit creates a split with explicit weights.
func NewSplit(c *Context, dry, wet float64) (*Split, error) {
	if err := validateSplit(dry, wet); err != nil {
		return nil, err
	}
	return &Split{
		node: c.NewNode("split", Passthrough{}),
		dry:  dry,
		wet:  wet,
	}, nil
}

// NewSendSplit creates a split sending the given fraction to the wet output
// and the remainder to the dry output. send is clamped to [0, 1].
func NewSendSplit(c *Context, send float64) *Split {
	if math.IsNaN(send) || send < 0 {
		send = 0
	} else if send > 1 {
		send = 1
	}
	s, _ := NewSplit(c, 1-send, send)
	return s
}

func validateSplit(dry, wet float64) error {
	if math.IsNaN(dry) || math.IsNaN(wet) || dry < 0 || wet < 0 || dry > 1 || wet > 1 {
		return fmt.Errorf("%w: dry=%f wet=%f", ErrSplitWeights, dry, wet)
	}
	// Allow rounding slop from 1-send arithmetic.
	if dry+wet > 1+1e-12 {
		return fmt.Errorf("%w: dry=%f wet=%f", ErrSplitWeights, dry, wet)
	}
	return nil
}

// Input returns the node upstream sources connect to.
func (s *Split) Input() *Node { return s.node }

// Weights returns the dry and wet weights.
func (s *Split) Weights() (dry, wet float64) { return s.dry, s.wet }

// ConnectDry routes the dry output to dst.
func (s *Split) ConnectDry(dst *Node) error {
	return s.node.ConnectGain(dst, s.dry)
}

// ConnectWet routes the wet output to dst.
func (s *Split) ConnectWet(dst *Node) error {
	return s.node.ConnectGain(dst, s.wet)
}

// Dispose releases the split node.
func (s *Split) Dispose() { s.node.Dispose() }

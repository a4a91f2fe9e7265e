package conv

import (
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// Partitioned is a uniformly partitioned overlap-save convolver. Input is
// collected into partitions of the block size; every full partition
// produces one block of output, delivered while the next partition fills.
type Partitioned struct {
	p         int
	kernelLen int
	plan      *algofft.Plan[complex128]

	kernel [][]complex128 // partition spectra
	fdl    [][]complex128 // input spectra, ring
	head   int

	prev   []float64
	inFIFO []float64
	outBuf []float64
	pos    int

	scratch []complex128
	acc     []complex128
}

// NewPartitioned splits kernel into partitions of blockSize samples.
func NewPartitioned(kernel []float64, blockSize int) (*Partitioned, error) {
	if len(kernel) == 0 {
		return nil, ErrEmptyKernel
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlockSize, blockSize)
	}

	n := 2 * blockSize
	plan, err := algofft.NewPlan64(n)
	if err != nil {
		return nil, fmt.Errorf("conv: failed to create FFT plan: %w", err)
	}

	parts := (len(kernel) + blockSize - 1) / blockSize
	c := &Partitioned{
		p:         blockSize,
		kernelLen: len(kernel),
		plan:      plan,
		kernel:    make([][]complex128, parts),
		fdl:       make([][]complex128, parts),
		prev:      make([]float64, blockSize),
		inFIFO:    make([]float64, blockSize),
		outBuf:    make([]float64, blockSize),
		scratch:   make([]complex128, n),
		acc:       make([]complex128, n),
	}

	for k := range parts {
		clear(c.scratch)
		seg := kernel[k*blockSize : min((k+1)*blockSize, len(kernel))]
		for i, v := range seg {
			c.scratch[i] = complex(v, 0)
		}
		c.kernel[k] = make([]complex128, n)
		if err := plan.Forward(c.kernel[k], c.scratch); err != nil {
			return nil, fmt.Errorf("conv: failed to compute kernel FFT: %w", err)
		}
		c.fdl[k] = make([]complex128, n)
	}
	clear(c.scratch)
	return c, nil
}

// ProcessBlockTo convolves src into dst, delayed by one partition. Blocks
// of any length are accepted.
func (c *Partitioned) ProcessBlockTo(dst, src []float64) error {
	if len(dst) != len(src) {
		return fmt.Errorf("%w: dst %d, src %d", ErrLengthMismatch, len(dst), len(src))
	}
	for i, x := range src {
		dst[i] = c.outBuf[c.pos]
		c.inFIFO[c.pos] = x
		c.pos++
		if c.pos == c.p {
			c.pos = 0
			if err := c.partition(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Partitioned) partition() error {
	p := c.p
	for i := range p {
		c.scratch[i] = complex(c.prev[i], 0)
		c.scratch[p+i] = complex(c.inFIFO[i], 0)
	}
	copy(c.prev, c.inFIFO)

	c.head--
	if c.head < 0 {
		c.head = len(c.fdl) - 1
	}
	if err := c.plan.Forward(c.fdl[c.head], c.scratch); err != nil {
		clear(c.outBuf)
		return fmt.Errorf("conv: forward FFT failed: %w", err)
	}

	clear(c.acc)
	for k, h := range c.kernel {
		x := c.fdl[(c.head+k)%len(c.fdl)]
		for i := range c.acc {
			c.acc[i] += x[i] * h[i]
		}
	}

	if err := c.plan.Inverse(c.scratch, c.acc); err != nil {
		clear(c.outBuf)
		return fmt.Errorf("conv: inverse FFT failed: %w", err)
	}
	for i := range p {
		c.outBuf[i] = real(c.scratch[p+i])
	}
	return nil
}

// Latency returns one partition.
func (c *Partitioned) Latency() int { return c.p }

// KernelLen returns the kernel length.
func (c *Partitioned) KernelLen() int { return c.kernelLen }

// Partitions returns the number of kernel partitions.
func (c *Partitioned) Partitions() int { return len(c.kernel) }

// Reset clears the input history and the pending output.
func (c *Partitioned) Reset() {
	for _, x := range c.fdl {
		clear(x)
	}
	clear(c.prev)
	clear(c.inFIFO)
	clear(c.outBuf)
	c.head = 0
	c.pos = 0
}

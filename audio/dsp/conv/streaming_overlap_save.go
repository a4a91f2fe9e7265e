package conv

import (
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// StreamingOverlapSave convolves a stream with a short kernel in one FFT
// pass per block. Blocks may be shorter than the configured size.
type StreamingOverlapSave struct {
	kernelFFT []complex128
	kernelLen int
	blockSize int

	plan    *algofft.Plan[complex128]
	buf     []complex128
	spec    []complex128
	history []float64 // last kernelLen-1 input samples
}

// NewStreamingOverlapSave creates a convolver for blocks of up to blockSize
// samples.
func NewStreamingOverlapSave(kernel []float64, blockSize int) (*StreamingOverlapSave, error) {
	if len(kernel) == 0 {
		return nil, ErrEmptyKernel
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlockSize, blockSize)
	}

	fftSize := nextPowerOf2(blockSize + len(kernel) - 1)
	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("conv: failed to create FFT plan: %w", err)
	}

	s := &StreamingOverlapSave{
		kernelFFT: make([]complex128, fftSize),
		kernelLen: len(kernel),
		blockSize: blockSize,
		plan:      plan,
		buf:       make([]complex128, fftSize),
		spec:      make([]complex128, fftSize),
		history:   make([]float64, len(kernel)-1),
	}
	for i, v := range kernel {
		s.buf[i] = complex(v, 0)
	}
	if err := plan.Forward(s.kernelFFT, s.buf); err != nil {
		return nil, fmt.Errorf("conv: failed to compute kernel FFT: %w", err)
	}
	return s, nil
}

// ProcessBlockTo convolves src into dst. Zero-alloc.
func (s *StreamingOverlapSave) ProcessBlockTo(dst, src []float64) error {
	n := len(src)
	if len(dst) != n || n > s.blockSize {
		return fmt.Errorf("%w: dst %d, src %d, block %d", ErrLengthMismatch, len(dst), n, s.blockSize)
	}
	h := s.kernelLen - 1

	clear(s.buf)
	for i, v := range s.history {
		s.buf[i] = complex(v, 0)
	}
	for i, v := range src {
		s.buf[h+i] = complex(v, 0)
	}
	if n >= h {
		copy(s.history, src[n-h:])
	} else {
		copy(s.history, s.history[n:])
		copy(s.history[h-n:], src)
	}

	if err := s.plan.Forward(s.spec, s.buf); err != nil {
		return fmt.Errorf("conv: forward FFT failed: %w", err)
	}
	for i := range s.spec {
		s.spec[i] *= s.kernelFFT[i]
	}
	if err := s.plan.Inverse(s.buf, s.spec); err != nil {
		return fmt.Errorf("conv: inverse FFT failed: %w", err)
	}

	// The first h results carry the circular wrap-around.
	for i := range n {
		dst[i] = real(s.buf[h+i])
	}
	return nil
}

// Latency is zero: each output block belongs to its input block.
func (s *StreamingOverlapSave) Latency() int { return 0 }

// KernelLen returns the kernel length.
func (s *StreamingOverlapSave) KernelLen() int { return s.kernelLen }

// Reset clears the input history.
func (s *StreamingOverlapSave) Reset() { clear(s.history) }

// Package conv provides streaming FFT convolution for impulse responses of
// any length.
//
// Kernels no longer than one block run through a single overlap-save pass
// without added latency. Longer kernels are split into block-sized
// partitions and convolved through a frequency-domain delay line, which
// costs one block of latency.
package conv

import "errors"

var (
	ErrEmptyKernel      = errors.New("conv: empty kernel")
	ErrInvalidBlockSize = errors.New("conv: invalid block size")
	ErrLengthMismatch   = errors.New("conv: buffer length mismatch")
)

// Convolver filters a stream block by block.
type Convolver interface {
	// ProcessBlockTo convolves src into dst. Both must have the same length.
	ProcessBlockTo(dst, src []float64) error
	// Latency returns the output delay in samples.
	Latency() int
	// KernelLen returns the impulse response length.
	KernelLen() int
	// Reset clears the stream history.
	Reset()
}

// New picks the convolver for kernel at blockSize.
func New(kernel []float64, blockSize int) (Convolver, error) {
	if len(kernel) <= blockSize {
		return NewStreamingOverlapSave(kernel, blockSize)
	}
	return NewPartitioned(kernel, blockSize)
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

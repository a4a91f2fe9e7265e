package samples

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotFound is returned when a sample URI does not resolve.
	ErrNotFound = errors.New("samples: not found")
	// ErrUnsupportedFormat is returned for containers other than WAV and MP3.
	ErrUnsupportedFormat = errors.New("samples: unsupported format")
	// ErrEmpty is returned when a sample decodes to zero frames.
	ErrEmpty = errors.New("samples: empty sample")
	// ErrForgotten is returned by a load whose key was forgotten while the
	// load was in flight.
	ErrForgotten = errors.New("samples: key forgotten during load")
)

const defaultConcurrency = 4

// Buffer is a decoded mono sample at the store sample rate.
type Buffer struct {
	Key        string
	URI        string
	Data       []float64
	SampleRate float64
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	return float64(len(b.Data)) / b.SampleRate
}

// Request names one sample to load.
type Request struct {
	Key string
	URI string
}

// DecodeFunc turns the bytes of a sample into mono frames at sampleRate.
type DecodeFunc func(uri string, rc io.ReadCloser, sampleRate float64) ([]float64, error)

// Option mutates store construction parameters.
type Option func(*Store)

// WithOpener sets the source of sample bytes. Default: NewResolver("").
func WithOpener(o Opener) Option {
	return func(s *Store) { s.opener = o }
}

// WithDecoder replaces the WAV/MP3 decoder.
func WithDecoder(d DecodeFunc) Option {
	return func(s *Store) { s.decode = d }
}

// WithLogger sets the logger for batch load failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithConcurrency bounds the parallel loads of LoadMany.
func WithConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// Store loads and caches decoded sample buffers by key. Concurrent loads of
// one key share a single request and resolve to the same buffer.
type Store struct {
	sampleRate  float64
	opener      Opener
	decode      DecodeFunc
	logger      *slog.Logger
	concurrency int

	group singleflight.Group

	mu      sync.RWMutex
	buffers map[string]*Buffer
	gens    map[string]uint64
}

// NewStore creates a store decoding to sampleRate.
func NewStore(sampleRate float64, opts ...Option) *Store {
	s := &Store{
		sampleRate:  sampleRate,
		decode:      Decode,
		concurrency: defaultConcurrency,
		buffers:     make(map[string]*Buffer),
		gens:        make(map[string]uint64),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.opener == nil {
		s.opener = NewResolver("")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Load returns the buffer for key, loading uri on the first call. Errors are
// not cached; a later Load retries. The wait honours ctx, but a load other
// callers share keeps running when one of them gives up.
func (s *Store) Load(ctx context.Context, key, uri string) (*Buffer, error) {
	if b := s.Get(key); b != nil {
		return b, nil
	}

	s.mu.RLock()
	gen := s.gens[key]
	s.mu.RUnlock()

	ch := s.group.DoChan(key, func() (any, error) {
		return s.load(context.WithoutCancel(ctx), key, uri, gen)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Buffer), nil
	}
}

func (s *Store) load(ctx context.Context, key, uri string, gen uint64) (*Buffer, error) {
	rc, err := s.opener.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	data, err := s.decode(uri, rc, s.sampleRate)
	if err != nil {
		return nil, err
	}

	b := &Buffer{Key: key, URI: uri, Data: data, SampleRate: s.sampleRate}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[key] != gen {
		return nil, fmt.Errorf("%w: %s", ErrForgotten, key)
	}
	if existing, ok := s.buffers[key]; ok {
		return existing, nil
	}
	s.buffers[key] = b
	return b, nil
}

// LoadMany loads every request with bounded concurrency. A failure of one
// key never affects the others; failures are logged and returned by key.
func (s *Store) LoadMany(ctx context.Context, reqs []Request) map[string]error {
	var (
		mu   sync.Mutex
		errs = make(map[string]error)
	)

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, req := range reqs {
		g.Go(func() error {
			if _, err := s.Load(ctx, req.Key, req.URI); err != nil {
				s.logger.Warn("sample load failed", "key", req.Key, "uri", req.URI, "err", err)
				mu.Lock()
				errs[req.Key] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// Has reports whether key is loaded.
func (s *Store) Has(key string) bool {
	return s.Get(key) != nil
}

// Get returns the loaded buffer for key, or nil.
func (s *Store) Get(key string) *Buffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buffers[key]
}

// Forget drops key. A load for key still in flight completes with
// ErrForgotten and does not populate the cache.
func (s *Store) Forget(key string) {
	s.mu.Lock()
	delete(s.buffers, key)
	s.gens[key]++
	s.mu.Unlock()
	s.group.Forget(key)
}

// Len returns the number of loaded buffers.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buffers)
}

// SampleRate returns the rate buffers are decoded to.
func (s *Store) SampleRate() float64 { return s.sampleRate }

package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/lv2jack/host/internal/errors"
	"github.com/lv2jack/host/internal/logging"
)

// Scratch is a reusable, refcounted byte buffer used by the worker thread to
// stage request/response payloads. It is never touched by the realtime
// thread: the worker is explicitly the non-realtime side of the Worker
// extension, so pool/GC pressure here is acceptable.
type Scratch struct {
	data     []byte
	length   int
	refCount int32
	pool     *ScratchPool
	mu       sync.Mutex
}

func (s *Scratch) Data() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[:s.length]
}

func (s *Scratch) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.length
}

func (s *Scratch) Cap() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cap(s.data)
}

func (s *Scratch) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.length = 0
}

// Resize grows or shrinks the valid length, reallocating only if needed.
func (s *Scratch) Resize(newSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if newSize < 0 {
		return errors.New(nil).
			Component("worker").
			Category(errors.CategoryValidation).
			Context("operation", "scratch_resize").
			Context("new_size", newSize).
			Build()
	}

	if newSize <= cap(s.data) {
		s.length = newSize
		return nil
	}

	newData := make([]byte, newSize)
	copy(newData, s.data[:s.length])
	s.data = newData
	s.length = newSize
	return nil
}

// Acquire increments the reference count, for handing the scratch buffer to
// a response callback while the worker keeps its own reference.
func (s *Scratch) Acquire() { atomic.AddInt32(&s.refCount, 1) }

// Release decrements the reference count and returns the buffer to its pool
// tier at zero.
func (s *Scratch) Release() {
	if atomic.AddInt32(&s.refCount, -1) == 0 && s.pool != nil {
		s.pool.Put(s)
	}
}

// ScratchPoolConfig sizes the three tiers of a ScratchPool.
type ScratchPoolConfig struct {
	SmallSize  int
	MediumSize int
	LargeSize  int
}

// ScratchPool is a tiered sync.Pool of Scratch buffers, sized for the three
// common worker-payload classes (small control blobs, medium state chunks,
// large file-backed state dumps).
type ScratchPool struct {
	small  sync.Pool
	medium sync.Pool
	large  sync.Pool

	config ScratchPoolConfig
	logger *slog.Logger
}

func NewScratchPool(config ScratchPoolConfig) *ScratchPool {
	logger := logging.ForService("worker")
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scratch_pool")

	pool := &ScratchPool{config: config, logger: logger}
	pool.small.New = func() any { return &Scratch{data: make([]byte, config.SmallSize), pool: pool} }
	pool.medium.New = func() any { return &Scratch{data: make([]byte, config.MediumSize), pool: pool} }
	pool.large.New = func() any { return &Scratch{data: make([]byte, config.LargeSize), pool: pool} }
	return pool
}

// Get returns a scratch buffer with capacity for at least size bytes.
func (p *ScratchPool) Get(size int) *Scratch {
	var buf *Scratch
	switch {
	case size <= p.config.SmallSize:
		buf = p.small.Get().(*Scratch)
	case size <= p.config.MediumSize:
		buf = p.medium.Get().(*Scratch)
	case size <= p.config.LargeSize:
		buf = p.large.Get().(*Scratch)
	default:
		buf = &Scratch{data: make([]byte, size)}
		p.logger.Debug("allocated oversized scratch buffer", "size", size)
	}
	buf.length = size
	buf.refCount = 1

	if p.logger.Enabled(context.TODO(), slog.LevelDebug) {
		p.logger.Debug("scratch buffer allocated", "requested_size", size, "capacity", cap(buf.data))
	}
	return buf
}

// Put returns buf to the tier matching its capacity, or discards it if it
// was allocated outside all configured tiers.
func (p *ScratchPool) Put(buf *Scratch) {
	buf.Reset()
	buf.refCount = 0

	switch capacity := cap(buf.data); {
	case capacity <= p.config.SmallSize:
		p.small.Put(buf)
	case capacity <= p.config.MediumSize:
		p.medium.Put(buf)
	case capacity <= p.config.LargeSize:
		p.large.Put(buf)
	default:
		p.logger.Debug("discarding oversized scratch buffer", "capacity", capacity)
	}
}

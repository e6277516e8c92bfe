// Package workqueue drains a self-feeding set of keys with bounded parallelism.
//
// A Processor hands keys to a chunk handler in batches. Handlers may call
// Add while they run, so the queue can keep growing until the transitive
// closure of the seed keys has been visited. Each key is handed out at most
// once per run.
package workqueue

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	defaultChunkSize   = 50
	defaultConcurrency = 4
)

// ErrAlreadyStarted is returned when Process is called more than once.
var ErrAlreadyStarted = errors.New("workqueue: processor already started")

// ChunkFunc processes one batch of keys.
type ChunkFunc[K comparable] func(ctx context.Context, keys []K) error

// Progress is a consistent snapshot of the processor counters.
type Progress struct {
	Enqueued  int // Distinct keys ever queued
	Processed int // Keys whose chunk has completed
}

type runState int

const (
	stateIdle runState = iota
	stateRunning
	stateDone
)

// Processor drains keys through a ChunkFunc.
type Processor[K comparable] struct {
	handle      ChunkFunc[K]
	onProgress  func(Progress)
	chunkSize   int
	concurrency int

	mu        sync.Mutex // Protects everything below
	state     runState
	pending   []K
	seen      map[K]struct{}
	inFlight  int
	enqueued  int
	processed int

	// Serializes progress callbacks so observers never see counters go backwards
	progressMu sync.Mutex

	// Buffered (1): wakes the dispatcher after Add or chunk completion
	wake chan struct{}
}

// Option configures a Processor.
type Option func(*options)

type options struct {
	chunkSize   int
	concurrency int
}

// WithChunkSize sets the maximum number of keys per handler call.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithConcurrency sets the maximum number of handler calls in flight.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// New creates a processor seeded with initial. Duplicate seed keys are
// queued once. onProgress may be nil.
func New[K comparable](initial []K, handle ChunkFunc[K], onProgress func(Progress), opts ...Option) *Processor[K] {
	if handle == nil {
		panic("workqueue.New: handle is required")
	}

	o := options{chunkSize: defaultChunkSize, concurrency: defaultConcurrency}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Processor[K]{
		handle:      handle,
		onProgress:  onProgress,
		chunkSize:   o.chunkSize,
		concurrency: o.concurrency,
		seen:        make(map[K]struct{}, len(initial)),
		wake:        make(chan struct{}, 1),
	}
	for _, k := range initial {
		p.enqueueLocked(k)
	}
	return p
}

// Add queues key. It returns false if the key was already queued in this
// run or if the run has completed. Safe to call from inside a ChunkFunc.
func (p *Processor[K]) Add(key K) bool {
	p.mu.Lock()
	if p.state == stateDone || !p.enqueueLocked(key) {
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()

	p.signal()
	return true
}

// IsProcessing reports whether Process is currently draining the queue.
func (p *Processor[K]) IsProcessing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateRunning
}

// Progress returns the current counters.
func (p *Processor[K]) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Progress{Enqueued: p.enqueued, Processed: p.processed}
}

// Pending returns the number of keys waiting to be dispatched.
func (p *Processor[K]) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Process dispatches chunks until no keys are pending and no chunk is in
// flight. Cancelling ctx stops further dispatch; chunks already running
// finish before Process returns ctx.Err() (nil if nothing was left
// pending). The first handler error cancels the drain and is returned.
func (p *Processor[K]) Process(ctx context.Context) error {
	p.mu.Lock()
	if p.state != stateIdle {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.state = stateRunning
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.state = stateDone
		p.mu.Unlock()
	}()

	// The drain context is cancelled before a failed chunk frees its slot,
	// so no further chunk is dispatched after a handler error.
	dctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var g errgroup.Group
	slots := semaphore.NewWeighted(int64(p.concurrency))

	for {
		if err := slots.Acquire(dctx, 1); err != nil {
			break
		}
		chunk, ok := p.next(dctx)
		if !ok {
			slots.Release(1)
			break
		}
		g.Go(func() error {
			defer slots.Release(1)
			err := p.handle(dctx, chunk)
			p.complete(len(chunk))
			if err != nil {
				cancel(err)
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		// Chunks interrupted by the drain cancel may return before the one that failed
		if cause := context.Cause(dctx); cause != nil && ctx.Err() == nil {
			return cause
		}
		return err
	}
	// A cancel that lands after the queue drained does not make the run partial
	if err := ctx.Err(); err != nil && p.Pending() > 0 {
		return err
	}
	return nil
}

// next blocks until a chunk is ready, returning false once the queue is
// drained or ctx is done. The drained check runs under the same lock Add
// takes, so a key added by the last in-flight chunk is always seen.
func (p *Processor[K]) next(ctx context.Context) ([]K, bool) {
	for {
		p.mu.Lock()
		if ctx.Err() != nil {
			p.mu.Unlock()
			return nil, false
		}
		if len(p.pending) > 0 {
			n := min(p.chunkSize, len(p.pending))
			chunk := make([]K, n)
			copy(chunk, p.pending[:n])
			p.pending = p.pending[n:]
			p.inFlight++
			p.mu.Unlock()
			return chunk, true
		}
		if p.inFlight == 0 {
			p.state = stateDone
			p.mu.Unlock()
			return nil, false
		}
		p.mu.Unlock()

		select {
		case <-p.wake:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (p *Processor[K]) complete(n int) {
	p.mu.Lock()
	p.inFlight--
	p.processed += n
	p.mu.Unlock()

	p.reportProgress()
	p.signal()
}

func (p *Processor[K]) reportProgress() {
	if p.onProgress == nil {
		return
	}
	p.progressMu.Lock()
	defer p.progressMu.Unlock()
	p.onProgress(p.Progress())
}

func (p *Processor[K]) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Processor[K]) enqueueLocked(key K) bool {
	if _, ok := p.seen[key]; ok {
		return false
	}
	p.seen[key] = struct{}{}
	p.pending = append(p.pending, key)
	p.enqueued++
	return true
}

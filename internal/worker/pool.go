package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"teamchat/internal/metrics"
)

// Pool runs a fixed number of goroutines over a bounded job queue. Submit
// never blocks: when the queue is full the job is refused.
type Pool[T any] struct {
	name    string
	workers int
	jobs    chan T
	handle  func(ctx context.Context, job T) error
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPool[T any](name string, workers, buffer int, handle func(context.Context, T) error, logger zerolog.Logger) *Pool[T] {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool[T]{
		name:    name,
		workers: workers,
		jobs:    make(chan T, buffer),
		handle:  handle,
		logger:  logger.With().Str("pool", name).Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (p *Pool[T]) Start() {
	p.logger.Info().Int("workers", p.workers).Msg("starting worker pool")
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

func (p *Pool[T]) run() {
	defer p.wg.Done()
	metrics.WorkerActive.WithLabelValues(p.name).Add(1)
	defer metrics.WorkerActive.WithLabelValues(p.name).Sub(1)

	for job := range p.jobs {
		if err := p.handle(p.ctx, job); err != nil {
			p.logger.Warn().Err(err).Msg("job failed")
		}
		metrics.WorkerProcessed.WithLabelValues(p.name).Inc()
	}
}

// Submit enqueues job and reports whether it was accepted.
func (p *Pool[T]) Submit(job T) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Stop refuses new jobs, lets the workers drain what is queued and waits for
// them. ctx bounds the wait; on expiry in-flight handlers see a cancelled
// context.
func (p *Pool[T]) Stop(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.cancel()
		<-done
	}
	p.cancel()
	p.logger.Info().Msg("worker pool stopped")
}

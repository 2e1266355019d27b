// Package worker publishes finished completions off the proxy's HTTP hot
// path. The proxy enqueues a Job when a normalized stream ends and a pool of
// workers turns it into an eventstream.CompletionEvent and publishes it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/chatwire/pkg/eventstream"
	"github.com/papercomputeco/chatwire/pkg/llm"
)

var (
	defaultNumWorkers     uint = 3
	defaultJobQueueSize   uint = 256
	defaultPublishTimeout      = 10 * time.Second
)

// ErrNoPublisher is returned by NewPool when no publisher is configured.
var ErrNoPublisher = errors.New("worker pool requires a publisher")

// Job is one finished stream waiting to be published.
type Job struct {
	Path       string
	HTTPStatus int
	Streaming  bool
	StartedAt  time.Time
	Completion llm.Completion
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Publisher receives a CompletionEvent per job.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// PublishTimeout bounds a single publish call (defaults to 10s).
	PublishTimeout time.Duration

	Logger *slog.Logger
}

// Pool publishes completion jobs asynchronously.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a Pool and starts its workers.
func NewPool(c *Config) (*Pool, error) {
	if c.Publisher == nil {
		return nil, ErrNoPublisher
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.PublishTimeout == 0 {
		c.PublishTimeout = defaultPublishTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job without blocking. It returns false, dropping the
// job, when the queue is full or the pool is closed.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed", "stream_id", job.Completion.ID)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"family", job.Completion.Family,
			"stream_id", job.Completion.ID,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"family", job.Completion.Family,
			"stream_id", job.Completion.ID,
		)
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to be published.
// Call it after the HTTP server has stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
	defer cancel()

	event := eventstream.NewCompletionEvent(job.Completion, eventstream.RequestMeta{
		Path:        job.Path,
		StartedAt:   job.StartedAt,
		CompletedAt: completedAt(job),
		Streaming:   job.Streaming,
		HTTPStatus:  job.HTTPStatus,
	})

	if err := p.config.Publisher.PublishCompletion(ctx, event); err != nil {
		p.logger.Error("publishing completion failed",
			"family", job.Completion.Family,
			"stream_id", job.Completion.ID,
			"error", err,
		)
		return
	}

	p.logger.Info("completion published",
		"event_id", event.EventID,
		"family", job.Completion.Family,
		"stream_id", job.Completion.ID,
		"duration_ms", event.RequestMeta.DurationMs,
	)
}

func completedAt(job Job) time.Time {
	if !job.Completion.CompletedAt.IsZero() {
		return job.Completion.CompletedAt
	}
	return time.Now()
}

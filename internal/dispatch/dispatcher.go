// Package dispatch runs webhook follow-up work off the request path.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"call-orchestrator/pkg/logger"

	"github.com/oklog/ulid/v2"
)

var ErrClosed = errors.New("dispatch: dispatcher closed")

// Job is one unit of deferred work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

type Options struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	out := o
	if out.Workers <= 0 {
		out.Workers = 8
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 256
	}
	if out.JobTimeout <= 0 {
		out.JobTimeout = 2 * time.Minute
	}
	return out
}

type queued struct {
	id  string
	job Job
	ctx context.Context
}

// Dispatcher is a fixed worker pool fed by a bounded queue. Jobs that do not fit
// in the queue run on their own goroutine so accepted work is never dropped.
// Jobs are not ordered and not cancelled by their submitter.
type Dispatcher struct {
	opts Options
	log  *slog.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan queued

	workers sync.WaitGroup
	running sync.WaitGroup
}

func New(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	return &Dispatcher{
		opts: opts,
		log:  logger.Module(opts.Logger, "dispatch"),
		jobs: make(chan queued, opts.QueueSize),
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.opts.Workers; i++ {
		d.workers.Add(1)
		go func() {
			defer d.workers.Done()
			for q := range d.jobs {
				d.execute(q)
			}
		}()
	}
	d.log.Info("dispatcher started", "workers", d.opts.Workers, "queue_size", d.opts.QueueSize)
}

// Submit enqueues job. ctx only contributes its logger; its deadline and
// cancellation do not reach the job.
func (d *Dispatcher) Submit(ctx context.Context, job Job) error {
	if job.Run == nil {
		return fmt.Errorf("dispatch: job %q has no run func", job.Name)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	q := queued{id: ulid.Make().String(), job: job, ctx: logger.Detach(ctx)}
	d.running.Add(1)
	select {
	case d.jobs <- q:
	default:
		d.log.Warn("dispatch queue full, running job on overflow goroutine", "job", job.Name, "job_id", q.id)
		go d.execute(q)
	}
	return nil
}

// Shutdown stops accepting jobs and waits for queued and running jobs to finish
// or for ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.workers.Wait()
		d.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info("dispatcher drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatch: shutdown: %w", ctx.Err())
	}
}

func (d *Dispatcher) execute(q queued) {
	defer d.running.Done()

	log := logger.From(q.ctx).With("job", q.job.Name, "job_id", q.id)
	ctx, cancel := context.WithTimeout(logger.With(q.ctx, log), d.opts.JobTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			log.Error("job panicked", "panic", p, "stack", string(debug.Stack()))
		}
	}()

	if err := q.job.Run(ctx); err != nil {
		log.Error("job failed", "err", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	log.Debug("job finished", "duration_ms", time.Since(start).Milliseconds())
}

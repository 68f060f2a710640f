// Package worker runs fire-and-forget background tasks whose completion can
// still be observed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"

	"github.com/utafrali/storefront/pkg/logger"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("worker: queue closed")

var (
	tasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_worker_tasks_in_flight",
		Help: "Background tasks submitted and not yet finished",
	})

	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_worker_tasks_total",
			Help: "Background tasks by name and outcome",
		},
		[]string{"task", "outcome"},
	)
)

// Task is a unit of background work.
type Task func(ctx context.Context) error

// Queue runs tasks on goroutines, at most Concurrency at a time. Submit never
// blocks the caller.
type Queue struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending int
	idle    chan struct{}
	closed  bool
}

// NewQueue creates a queue. timeout bounds each task; zero means no bound.
func NewQueue(concurrency int, timeout time.Duration, logger *slog.Logger) *Queue {
	if concurrency < 1 {
		concurrency = 1
	}
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		sem:     semaphore.NewWeighted(int64(concurrency)),
		timeout: timeout,
		logger:  logger,
		idle:    idle,
	}
}

// Submit schedules task. The task runs detached from ctx cancellation but
// keeps its values (logger fields, trace span).
func (q *Queue) Submit(ctx context.Context, name string, task Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.pending == 0 {
		q.idle = make(chan struct{})
	}
	q.pending++
	q.mu.Unlock()
	tasksInFlight.Inc()

	taskCtx := context.WithoutCancel(ctx)
	go q.run(taskCtx, name, task)
	return nil
}

func (q *Queue) run(ctx context.Context, name string, task Task) {
	defer q.finish()

	if err := q.sem.Acquire(ctx, 1); err != nil {
		tasksTotal.WithLabelValues(name, "failed").Inc()
		return
	}
	defer q.sem.Release(1)

	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	log := logger.WithContext(ctx, q.logger)
	err := q.safeRun(ctx, task)
	if err != nil {
		tasksTotal.WithLabelValues(name, "failed").Inc()
		log.WarnContext(ctx, "background task failed",
			slog.String("task", name),
			slog.String("error", err.Error()),
		)
		return
	}
	tasksTotal.WithLabelValues(name, "succeeded").Inc()
}

func (q *Queue) safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task(ctx)
}

func (q *Queue) finish() {
	tasksInFlight.Dec()
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending--
	if q.pending == 0 {
		close(q.idle)
	}
}

// Pending returns the number of unfinished tasks.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Wait blocks until every submitted task has finished or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for the running ones.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return q.Wait(ctx)
}

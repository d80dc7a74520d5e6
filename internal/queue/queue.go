// Package queue runs operations one at a time per key. Operations submitted
// under the same key execute in submission order and never overlap; keys are
// independent of each other.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/syntrixbase/kinsync/internal/logging"
	"github.com/syntrixbase/kinsync/internal/metrics"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("queue: closed")

// Op is a queued operation. It receives the context it was enqueued with.
type Op func(ctx context.Context) error

// Queue is a keyed FIFO. Each active key owns a lane goroutine that drains
// its jobs in order and exits once the lane is empty.
type Queue struct {
	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
	wg     sync.WaitGroup
	logger *slog.Logger
}

type lane struct {
	key     string
	jobs    []*job
	active  bool // a drain goroutine owns the lane
	running bool // a job has been dequeued and not finished
}

type job struct {
	ctx      context.Context
	op       Op
	done     chan error
	enqueued time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger used for lane diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logging.Component(logger, "queue")
	}
}

func New(opts ...Option) *Queue {
	q := &Queue{
		lanes:  make(map[string]*lane),
		logger: logging.Component(nil, "queue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue submits op under key and blocks until it has run. An op whose ctx
// is done before its turn comes is skipped and the ctx error is returned; an
// op that has started always runs to completion.
func (q *Queue) Enqueue(ctx context.Context, key string, op Op) error {
	j := &job{ctx: ctx, op: op, done: make(chan error, 1), enqueued: time.Now()}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	l, ok := q.lanes[key]
	if !ok {
		l = &lane{key: key}
		q.lanes[key] = l
	}
	l.jobs = append(l.jobs, j)
	q.reportDepth(l)
	if !l.active {
		l.active = true
		q.wg.Add(1)
		go q.drain(l)
	}
	q.mu.Unlock()

	return <-j.done
}

// Run enqueues fn under key and returns its result.
func Run[T any](ctx context.Context, q *Queue, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := q.Enqueue(ctx, key, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	})
	return out, err
}

func (q *Queue) drain(l *lane) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(l.jobs) == 0 {
			l.active = false
			delete(q.lanes, l.key)
			metrics.QueueDepth.DeleteLabelValues(l.key)
			q.mu.Unlock()
			return
		}
		j := l.jobs[0]
		l.jobs[0] = nil
		l.jobs = l.jobs[1:]
		l.running = true
		q.mu.Unlock()

		err := j.ctx.Err()
		if err != nil {
			q.logger.Debug("skipping cancelled operation", "key", l.key)
		} else {
			metrics.QueueWait.Observe(time.Since(j.enqueued).Seconds())
			err = q.run(l.key, j)
		}

		q.mu.Lock()
		l.running = false
		q.reportDepth(l)
		q.mu.Unlock()
		j.done <- err
	}
}

func (q *Queue) run(key string, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("operation panicked", "key", key, "panic", r)
			err = fmt.Errorf("queue: operation on %q panicked: %v", key, r)
		}
	}()
	return j.op(j.ctx)
}

// reportDepth must be called with q.mu held.
func (q *Queue) reportDepth(l *lane) {
	metrics.QueueDepth.WithLabelValues(l.key).Set(float64(q.depthLocked(l)))
}

func (q *Queue) depthLocked(l *lane) int {
	n := len(l.jobs)
	if l.running {
		n++
	}
	return n
}

// Depth returns the number of waiting operations under key, plus the one
// running, if any.
func (q *Queue) Depth(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.lanes[key]
	if !ok {
		return 0
	}
	return q.depthLocked(l)
}

// Keys returns the keys that currently have work, sorted.
func (q *Queue) Keys() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	keys := make([]string, 0, len(q.lanes))
	for k := range q.lanes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close rejects further operations and waits for the accepted ones.
func (q *Queue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
	return nil
}

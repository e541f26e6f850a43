// Package eventloop provides the per-screen sequencing domain: one goroutine
// that runs posted tasks one at a time in FIFO order. Everything that
// mutates a screen's selection or history runs as a task on its loop, so
// that state needs no further coordination between writers.
package eventloop

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	ErrClosed    = errors.New("event loop closed")
	ErrQueueFull = errors.New("event loop queue full")
)

const (
	// DefaultCapacity bounds the queue; Post fails beyond it.
	DefaultCapacity = 100
	// DefaultTaskTimeout bounds the context handed to each task.
	DefaultTaskTimeout = 10 * time.Second

	slowTaskThreshold = 5 * time.Second
)

// Task is a unit of work run on the loop goroutine.
type Task func(ctx context.Context) error

// Options tunes a Loop. Zero values pick defaults.
type Options struct {
	Capacity    int
	TaskTimeout time.Duration
}

// Stats is a snapshot of the loop counters.
type Stats struct {
	Name      string `json:"name"`
	Total     int64  `json:"total"`
	Processed int64  `json:"processed"`
	Failed    int64  `json:"failed"`
	Dropped   int64  `json:"dropped"`
	Pending   int    `json:"pending"`
	Capacity  int    `json:"capacity"`
}

type queuedTask struct {
	name      string
	fn        Task
	timestamp time.Time
	resultCh  chan error
}

// Loop runs tasks serially.
type Loop struct {
	name        string
	tasks       chan *queuedTask
	quit        chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	// PostWait callers between the closed check and their send
	senders     sync.WaitGroup
	closeOnce   sync.Once
	taskTimeout time.Duration
	logger      zerolog.Logger

	mu        sync.Mutex
	closed    bool
	total     int64
	processed int64
	failed    int64
	dropped   int64
}

// New starts a loop.
func New(name string, opts Options, logger zerolog.Logger) *Loop {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = DefaultTaskTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		name:        name,
		tasks:       make(chan *queuedTask, opts.Capacity),
		quit:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		taskTimeout: opts.TaskTimeout,
		logger:      logger.With().Str("component", "eventloop").Str("loop", name).Logger(),
	}

	l.wg.Add(1)
	go l.processLoop()

	l.logger.Debug().Int("capacity", opts.Capacity).Msg("loop started")
	return l
}

// Post enqueues fn without blocking.
func (l *Loop) Post(fn Task) error {
	return l.enqueue(&queuedTask{fn: fn, timestamp: time.Now()})
}

// PostNamed is Post with a label used in logs.
func (l *Loop) PostNamed(name string, fn Task) error {
	return l.enqueue(&queuedTask{name: name, fn: fn, timestamp: time.Now()})
}

// PostSync enqueues fn and waits for it to finish, returning its error.
func (l *Loop) PostSync(fn Task, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = l.taskTimeout
	}
	t := &queuedTask{fn: fn, timestamp: time.Now(), resultCh: make(chan error, 1)}
	if err := l.enqueue(t); err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-t.resultCh:
		return err
	case <-timer.C:
		return errors.New("timeout waiting for task")
	}
}

// PostWait enqueues fn, blocking while the queue is full. It returns nil
// once fn is queued, ErrClosed if the loop closes first, or the context
// error. A queued fn always runs, even if Close follows.
func (l *Loop) PostWait(ctx context.Context, fn Task) error {
	t := &queuedTask{fn: fn, timestamp: time.Now()}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.senders.Add(1)
	l.mu.Unlock()
	defer l.senders.Done()

	select {
	case l.tasks <- t:
		l.mu.Lock()
		l.total++
		l.mu.Unlock()
		return nil
	default:
	}

	l.logger.Debug().Msg("queue full, waiting")
	select {
	case l.tasks <- t:
		l.mu.Lock()
		l.total++
		l.mu.Unlock()
		return nil
	case <-l.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) enqueue(t *queuedTask) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	select {
	case l.tasks <- t:
		l.total++
		return nil
	default:
		l.dropped++
		l.logger.Warn().Str("task", t.name).Msg("queue full, dropping task")
		return ErrQueueFull
	}
}

func (l *Loop) processLoop() {
	defer l.wg.Done()

	for {
		select {
		case <-l.quit:
			// no sender can land a task after this returns
			l.senders.Wait()
			// drain what was accepted before Close
			for {
				select {
				case t := <-l.tasks:
					l.run(t)
				default:
					return
				}
			}
		case t := <-l.tasks:
			l.run(t)
		}
	}
}

func (l *Loop) run(t *queuedTask) {
	start := time.Now()
	queueLatency := start.Sub(t.timestamp)

	ctx, cancel := context.WithTimeout(l.ctx, l.taskTimeout)
	defer cancel()

	err := l.safeRun(ctx, t.fn)
	elapsed := time.Since(start)

	l.mu.Lock()
	l.processed++
	if err != nil {
		l.failed++
	}
	l.mu.Unlock()

	if err != nil {
		l.logger.Warn().Err(err).Str("task", t.name).Dur("elapsed", elapsed).Msg("task failed")
	} else {
		l.logger.Trace().Str("task", t.name).Dur("queue_latency", queueLatency).Dur("elapsed", elapsed).Msg("task done")
	}
	if elapsed > slowTaskThreshold {
		l.logger.Warn().Str("task", t.name).Dur("elapsed", elapsed).Msg("slow task")
	}

	if t.resultCh != nil {
		t.resultCh <- err
	}
}

func (l *Loop) safeRun(ctx context.Context, fn Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("task panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Close stops accepting tasks, runs the ones already queued, then stops.
func (l *Loop) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()

		close(l.quit)
		l.wg.Wait()
		l.cancel()

		s := l.Stats()
		l.logger.Debug().
			Int64("total", s.Total).
			Int64("processed", s.Processed).
			Int64("failed", s.Failed).
			Int64("dropped", s.Dropped).
			Msg("loop closed")
	})
	return nil
}

// Stats returns the current counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Name:      l.name,
		Total:     l.total,
		Processed: l.processed,
		Failed:    l.failed,
		Dropped:   l.dropped,
		Pending:   len(l.tasks),
		Capacity:  cap(l.tasks),
	}
}

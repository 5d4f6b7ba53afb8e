package eventloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrLoopFull indicates the task queue has no room
	ErrLoopFull = errors.New("event loop queue full")

	// ErrLoopStopped indicates the loop no longer accepts tasks
	ErrLoopStopped = errors.New("event loop stopped")
)

// Executor runs functions on the pipeline's event loop.
type Executor interface {
	// Post queues fn without blocking
	Post(fn func()) error
}

// Timer is a periodic timer handle. Stop is idempotent.
type Timer interface {
	Stop()
}

// Scheduler arms periodic timers whose callbacks run on the event loop.
type Scheduler interface {
	// Every calls fn once per period until the returned Timer is stopped
	Every(period time.Duration, fn func()) Timer
}

// Loop is a single-goroutine task queue.
type Loop struct {
	tasks   chan func()
	stopped atomic.Bool
}

// New creates a loop that can hold queueSize pending tasks.
func New(queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Loop{tasks: make(chan func(), queueSize)}
}

// Post queues fn. It never blocks; a full queue drops fn and reports it.
func (l *Loop) Post(fn func()) error {
	if l.stopped.Load() {
		return ErrLoopStopped
	}
	select {
	case l.tasks <- fn:
		return nil
	default:
		return ErrLoopFull
	}
}

// Run executes tasks until ctx is done. Tasks still queued when ctx ends are
// dropped and the loop refuses further posts.
func (l *Loop) Run(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"function": "Loop.Run",
		"queue":    cap(l.tasks),
	}).Info("Event loop started")

	defer func() {
		l.stopped.Store(true)
		logrus.WithFields(logrus.Fields{
			"function": "Loop.Run",
			"dropped":  len(l.tasks),
		}).Info("Event loop stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.tasks:
			fn()
		}
	}
}

// RunPending executes queued tasks, including ones they post, until the
// queue is empty. It returns the number of tasks run. It must not be used
// while Run is active.
func (l *Loop) RunPending() int {
	n := 0
	for {
		select {
		case fn := <-l.tasks:
			fn()
			n++
		default:
			return n
		}
	}
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	return len(l.tasks)
}

// Every arms a periodic timer whose callback is posted to the loop. A tick
// that finds the queue full is skipped; the timer keeps running.
func (l *Loop) Every(period time.Duration, fn func()) Timer {
	t := &loopTimer{stop: make(chan struct{})}
	ticker := time.NewTicker(period)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				err := l.Post(func() {
					if !t.stopped.Load() {
						fn()
					}
				})
				if errors.Is(err, ErrLoopStopped) {
					return
				}
				if err != nil {
					logrus.WithFields(logrus.Fields{
						"function": "Loop.Every",
						"period":   period.String(),
					}).Warn("Timer tick skipped, event loop queue full")
				}
			}
		}
	}()
	return t
}

type loopTimer struct {
	once    sync.Once
	stop    chan struct{}
	stopped atomic.Bool
}

// Stop disarms the timer. A tick already queued on the loop is discarded.
func (t *loopTimer) Stop() {
	t.once.Do(func() {
		t.stopped.Store(true)
		close(t.stop)
	})
}

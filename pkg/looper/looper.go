// Package looper runs posted work on a single goroutine, in order. Screens use
// a Looper as their "UI thread": platform callbacks arrive on arbitrary
// goroutines and are posted here before they touch any state.
package looper

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Timer is the subset of *time.Timer a Looper needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. It matches time.AfterFunc and can be replaced
// in tests.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Looper executes funcs posted to it on one goroutine.
type Looper struct {
	name      string
	afterFunc AfterFunc

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped bool
	done    chan struct{}
}

// Option configures a Looper.
type Option func(*Looper)

// WithAfterFunc replaces the timer source.
func WithAfterFunc(f AfterFunc) Option {
	return func(l *Looper) {
		l.afterFunc = f
	}
}

// New starts a Looper. Call Stop to release its goroutine.
func New(name string, opts ...Option) *Looper {
	l := &Looper{
		name:      name,
		afterFunc: realAfterFunc,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.run()
	return l
}

func (l *Looper) run() {
	defer close(l.done)
	for range l.wake {
		for {
			l.mu.Lock()
			if l.stopped {
				l.mu.Unlock()
				return
			}
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			f := l.queue[0]
			l.queue = l.queue[1:]
			l.mu.Unlock()

			l.exec(f)
		}
	}
}

func (l *Looper) exec(f func()) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("looper", l.name).Errorf("recovered from panic in posted func: %v", r)
		}
	}()
	f()
}

// Post queues f. It returns false if the looper is stopped.
func (l *Looper) Post(f func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	l.queue = append(l.queue, f)
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Task is a delayed post that can be cancelled.
type Task struct {
	mu        sync.Mutex
	timer     Timer
	cancelled bool
}

// Cancel prevents the task from running if it has not started yet. It is safe
// to call on a nil Task.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *Task) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// PostDelayed queues f after d has elapsed.
func (l *Looper) PostDelayed(d time.Duration, f func()) *Task {
	t := &Task{}
	timer := l.afterFunc(d, func() {
		l.Post(func() {
			if t.isCancelled() {
				return
			}
			f()
		})
	})
	t.mu.Lock()
	t.timer = timer
	t.mu.Unlock()
	return t
}

// Stop drops pending work and releases the looper goroutine. A func that is
// already running finishes; use Done to wait for it. Subsequent posts are
// rejected.
func (l *Looper) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	l.queue = nil
	close(l.wake)
}

// Done is closed once the looper goroutine has exited.
func (l *Looper) Done() <-chan struct{} {
	return l.done
}

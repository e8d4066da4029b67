// Package dispatch provides the serialized execution contexts that drive
// a connection. Every task submitted to a Queue runs to completion before
// the next one starts, so state confined to a Queue needs no locking.
package dispatch

import (
	"errors"
	"sync"
	"time"

	"github.com/yywing/go-amqp-engine/internal/queue"
)

// ErrClosed is returned by Execute once a Queue has been closed.
var ErrClosed = errors.New("dispatch: queue closed")

// Queue is a serialized task executor with a clock.
type Queue interface {
	// Execute schedules task to run after all previously scheduled tasks.
	// It never runs task on the calling goroutine. A nil error means task
	// will run, even if the queue is closed meanwhile.
	Execute(task func()) error

	// ExecuteAfter schedules task to run once d has elapsed. The returned
	// stop func cancels it and reports whether it was still pending.
	ExecuteAfter(d time.Duration, task func()) (stop func() bool)

	// Now returns the queue's notion of the current time.
	Now() time.Time

	// Close stops accepting tasks. Tasks already accepted still run;
	// timers that have not fired are dropped.
	Close()
}

// Serial runs tasks on a single goroutine in submission order.
type Serial struct {
	label string
	tasks *queue.Holder[func()]

	mu     sync.Mutex
	closed bool
	done   chan struct{} // closed by Close
	exited chan struct{} // closed once the accepted tasks have run
}

// NewSerial starts a Serial queue. label is used in diagnostics only.
func NewSerial(label string) *Serial {
	s := &Serial{
		label:  label,
		tasks:  queue.NewHolder(queue.New[func()](64)),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Serial) String() string {
	return "dispatch.Serial(" + s.label + ")"
}

func (s *Serial) loop() {
	defer close(s.exited)
	for {
		select {
		case q := <-s.tasks.Wait():
			task := q.Dequeue()
			s.tasks.Release(q)
			(*task)()
		case <-s.done:
			s.drain()
			return
		}
	}
}

// drain runs what was accepted before Close. Execute fails once closed is
// set, so the backlog can only shrink.
func (s *Serial) drain() {
	for {
		q := s.tasks.Acquire()
		task := q.Dequeue()
		s.tasks.Release(q)
		if task == nil {
			return
		}
		(*task)()
	}
}

// Execute implements Queue.
func (s *Serial) Execute(task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	q := s.tasks.Acquire()
	q.Enqueue(task)
	s.tasks.Release(q)
	return nil
}

// ExecuteAfter implements Queue.
func (s *Serial) ExecuteAfter(d time.Duration, task func()) func() bool {
	t := time.AfterFunc(d, func() {
		_ = s.Execute(task)
	})
	return t.Stop
}

// Now implements Queue.
func (s *Serial) Now() time.Time {
	return time.Now()
}

// Close implements Queue. It is safe to call from a running task; the
// loop runs the remaining accepted tasks once that task returns and then
// exits.
func (s *Serial) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// Done is closed when the queue has been closed.
func (s *Serial) Done() <-chan struct{} {
	return s.done
}

// Exited is closed once every accepted task has run after Close.
func (s *Serial) Exited() <-chan struct{} {
	return s.exited
}

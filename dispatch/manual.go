package dispatch

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Queue driven explicitly by its owner, with a virtual clock.
// Tasks accumulate until Run or Advance is called on the driving goroutine.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	pending []func()
	timers  []*manualTimer
	seq     uint64
	closed  bool
}

type manualTimer struct {
	at      time.Time
	seq     uint64
	task    func()
	stopped bool
}

// NewManual creates a Manual queue whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Execute implements Queue.
func (m *Manual) Execute(task func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.pending = append(m.pending, task)
	return nil
}

// ExecuteAfter implements Queue.
func (m *Manual) ExecuteAfter(d time.Duration, task func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{at: m.now.Add(d), seq: m.seq, task: task}
	m.timers = append(m.timers, t)
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if t.stopped {
			return false
		}
		t.stopped = true
		return true
	}
}

// Now implements Queue.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Close implements Queue. Pending tasks still run on the next Run.
func (m *Manual) Close() {
	m.mu.Lock()
	m.closed = true
	m.timers = nil
	m.mu.Unlock()
}

// Closed reports whether Close has been called.
func (m *Manual) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Run executes pending tasks, including ones they schedule, until none are
// left. It returns the number of tasks run.
func (m *Manual) Run() int {
	var n int
	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			return n
		}
		task := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		task()
		n++
	}
}

// Advance moves the clock forward by d, firing due timers in deadline
// order and running pending tasks after each one.
func (m *Manual) Advance(d time.Duration) {
	m.Run()

	m.mu.Lock()
	end := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		t := m.nextDue(end)
		if t == nil {
			m.now = end
			m.mu.Unlock()
			m.Run()
			return
		}
		t.stopped = true
		m.now = t.at
		m.mu.Unlock()

		t.task()
		m.Run()
	}
}

// Pending returns the number of tasks waiting to run.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// nextDue drops stopped timers and returns the earliest one due at or
// before end. m.mu must be held.
func (m *Manual) nextDue(end time.Time) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	m.timers = live
	if len(live) == 0 {
		return nil
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].at.Equal(live[j].at) {
			return live[i].seq < live[j].seq
		}
		return live[i].at.Before(live[j].at)
	})
	if live[0].at.After(end) {
		return nil
	}
	return live[0]
}

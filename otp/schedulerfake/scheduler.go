// Package schedulerfake provides a virtual clock for driving otp timers in
// tests.
package schedulerfake

import (
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/rental-auth-client/otp"
)

type task struct {
	id       int
	due      time.Duration
	interval time.Duration // zero for one-shot tasks
	fn       func()
}

// Scheduler runs tasks when Advance moves its clock past their due time.
// Callbacks run on the caller's goroutine, outside the scheduler's lock.
type Scheduler struct {
	mu     sync.Mutex
	now    time.Duration
	nextID int
	tasks  map[int]*task
}

var _ otp.Scheduler = (*Scheduler)(nil)

func New() *Scheduler {
	return &Scheduler{tasks: make(map[int]*task)}
}

func (s *Scheduler) Every(interval time.Duration, fn func()) otp.Cancel {
	return s.add(interval, interval, fn)
}

func (s *Scheduler) After(delay time.Duration, fn func()) otp.Cancel {
	return s.add(delay, 0, fn)
}

func (s *Scheduler) add(delay, interval time.Duration, fn func()) otp.Cancel {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.tasks[id] = &task{id: id, due: s.now + delay, interval: interval, fn: fn}
	return func() {
		s.mu.Lock()
		delete(s.tasks, id)
		s.mu.Unlock()
	}
}

// Advance moves the clock forward by d, firing every task that falls due in
// order. Periodic tasks fire once per elapsed interval.
func (s *Scheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		next := s.nextDueLocked(target)
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		s.now = next.due
		if next.interval > 0 {
			next.due += next.interval
		} else {
			delete(s.tasks, next.id)
		}
		fn := next.fn
		s.mu.Unlock()

		fn()
	}
}

func (s *Scheduler) nextDueLocked(target time.Duration) *task {
	var due []*task
	for _, t := range s.tasks {
		if t.due <= target {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due == due[j].due {
			return due[i].id < due[j].id
		}
		return due[i].due < due[j].due
	})
	return due[0]
}

// Active returns the number of scheduled tasks, periodic and one-shot.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// ActiveEvery returns the number of periodic tasks still scheduled.
func (s *Scheduler) ActiveEvery() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if t.interval > 0 {
			n++
		}
	}
	return n
}

package session

import (
	"sync"

	"github.com/jrsteele09/rental-auth-client/users"
)

// Snapshot is what observers see: the current user, if any, and whether the
// client considers itself signed in.
type Snapshot struct {
	User          *users.User
	Authenticated bool
}

// State is the shared "current user" stream. Manager is its only writer;
// screens subscribe to it instead of reading the backing stores.
type State struct {
	mu          sync.RWMutex
	current     Snapshot
	nextID      int
	subscribers map[int]func(Snapshot)
	order       []int
}

func newState() *State {
	return &State{
		subscribers: make(map[int]func(Snapshot)),
	}
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySnapshot(s.current)
}

// Subscribe registers fn and immediately calls it with the current state.
// Subscribers are called in subscription order on every change.
func (s *State) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.order = append(s.order, id)
	current := copySnapshot(s.current)
	s.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (s *State) publish(snapshot Snapshot) {
	s.mu.Lock()
	s.current = copySnapshot(snapshot)
	fns := make([]func(Snapshot), 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.subscribers[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(copySnapshot(snapshot))
	}
}

func copySnapshot(s Snapshot) Snapshot {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

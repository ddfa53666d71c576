package viewmodel

import "sync"

type Signal string

// FriendListUpdated is published after a friend request is accepted so any
// open friend list refetches.
const FriendListUpdated Signal = "friendListUpdated"

// Signals is a small in-process broadcast bus shared by view-models.
type Signals struct {
	mu     sync.Mutex
	subs   map[Signal]map[uint64]func()
	nextID uint64
}

func NewSignals() *Signals {
	return &Signals{subs: map[Signal]map[uint64]func(){}}
}

func (s *Signals) Subscribe(sig Signal, fn func()) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	if s.subs[sig] == nil {
		s.subs[sig] = map[uint64]func(){}
	}
	s.subs[sig][id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[sig], id)
	}
}

// Publish calls every subscriber synchronously.
func (s *Signals) Publish(sig Signal) {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.subs[sig]))
	for _, fn := range s.subs[sig] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

package delivery

import (
	"sync"
	"time"
)

// Transition describes a change of delivery mode.
type Transition struct {
	Degraded bool
	Reason   string
	At       time.Time
}

// Observer is notified after each actual transition, outside the state lock.
type Observer func(Transition)

// State is the process-wide degraded-mode flag. While degraded, workers skip
// live retries and persist captures straight to the overflow store.
type State struct {
	mu        sync.Mutex
	degraded  bool
	since     time.Time
	observers []Observer
}

// NewState returns a state starting in the given mode. The daemon starts
// degraded until the startup routine has seen the network.
func NewState(degraded bool) *State {
	return &State{degraded: degraded, since: time.Now()}
}

// Subscribe registers an observer.
func (s *State) Subscribe(o Observer) {
	if o == nil {
		return
	}
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// Degraded reports the current mode.
func (s *State) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Since returns when the current mode was entered.
func (s *State) Since() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.since
}

// Enter switches to degraded mode. It reports whether the mode changed.
func (s *State) Enter(reason string) bool {
	return s.set(true, reason)
}

// Recover switches back to normal mode. It reports whether the mode changed.
func (s *State) Recover(reason string) bool {
	return s.set(false, reason)
}

func (s *State) set(degraded bool, reason string) bool {
	s.mu.Lock()
	if s.degraded == degraded {
		s.mu.Unlock()
		return false
	}
	s.degraded = degraded
	s.since = time.Now()
	t := Transition{Degraded: degraded, Reason: reason, At: s.since}
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, o := range observers {
		o(t)
	}
	return true
}

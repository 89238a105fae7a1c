package ai

import "sync"

// State is the runtime AI switch. An override set by toggleai wins over the
// configured value until Reset.
type State struct {
	mu         sync.RWMutex
	configured bool
	override   *bool
}

func NewState(configured bool) *State {
	return &State{configured: configured}
}

func (s *State) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.override != nil {
		return *s.override
	}
	return s.configured
}

func (s *State) Set(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.override = &enabled
}

// Toggle flips the effective value and returns the new one.
func (s *State) Toggle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := !s.configured
	if s.override != nil {
		next = !*s.override
	}
	s.override = &next
	return next
}

// Reset drops the override.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.override = nil
}

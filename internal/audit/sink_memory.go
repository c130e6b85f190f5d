package audit

import (
	"context"
	"sync"
)

// MemorySink collects audit events in memory. Used in tests and when no
// Kafka brokers are configured.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append stores the event.
func (s *MemorySink) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of all collected events.
func (s *MemorySink) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Count returns the number of collected events.
func (s *MemorySink) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

var _ Sink = (*MemorySink)(nil)

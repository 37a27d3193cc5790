package audit

import (
	"context"
	"sync"
)

// Filter narrows audit queries. A zero Filter matches everything.
type Filter struct {
	Principal string
	Limit     int
}

// Sink is the external audit collaborator: append-only writes plus the
// queries the dashboard's audit views need. Record failures are absorbed by
// the emitter and never reach callers of the guard or the risk engine.
type Sink interface {
	Record(ctx context.Context, e Event) error
	Query(ctx context.Context, f Filter) ([]Event, error)
	Close() error
}

// MemorySink keeps events in memory, newest first. Used by tests and as the
// fallback when no sink is configured.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *MemorySink) Query(ctx context.Context, f Filter) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0, len(s.events))
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if f.Principal != "" && e.Principal != f.Principal {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemorySink) Close() error { return nil }

// Len reports the number of recorded events.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

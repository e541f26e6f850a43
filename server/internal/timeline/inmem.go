package timeline

import (
	"context"
	"sync"
	"time"

	"place-explorer/server/internal/model"
)

// InMemoryStore keeps timelines in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	events   map[string][]model.ScreenEvent
	seq      map[string]int64
	eventIDs map[string]map[string]int64
	now      func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		events:   make(map[string][]model.ScreenEvent),
		seq:      make(map[string]int64),
		eventIDs: make(map[string]map[string]int64),
		now:      time.Now,
	}
}

func (s *InMemoryStore) Append(_ context.Context, screenID string, evt *model.ScreenEvent) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.EventID != "" {
		if seq, ok := s.eventIDs[screenID][evt.EventID]; ok {
			return seq, false, nil
		}
	}

	s.seq[screenID]++
	seq := s.seq[screenID]

	stored := *evt
	stored.Seq = seq
	stored.ScreenID = screenID
	stored.ServerTS = s.now()
	s.events[screenID] = append(s.events[screenID], stored)

	if evt.EventID != "" {
		if s.eventIDs[screenID] == nil {
			s.eventIDs[screenID] = make(map[string]int64)
		}
		s.eventIDs[screenID][evt.EventID] = seq
	}

	return seq, true, nil
}

// List returns a copy; callers may modify it freely.
func (s *InMemoryStore) List(_ context.Context, screenID string) ([]model.ScreenEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[screenID]
	out := make([]model.ScreenEvent, len(events))
	copy(out, events)
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, screenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.events, screenID)
	delete(s.seq, screenID)
	delete(s.eventIDs, screenID)
	return nil
}

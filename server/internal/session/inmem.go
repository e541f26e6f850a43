package session

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("screen not found")

// InMemoryStore keeps screens in process memory. A restart loses them.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]*Screen
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]*Screen)}
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Screen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	screen, ok := s.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return screen, nil
}

func (s *InMemoryStore) Save(_ context.Context, screen *Screen) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[screen.ID] = screen
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[id]; !ok {
		return ErrNotFound
	}
	delete(s.data, id)
	return nil
}

// List returns screens oldest first.
func (s *InMemoryStore) List(_ context.Context) ([]*Screen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Screen, 0, len(s.data))
	for _, screen := range s.data {
		out = append(out, screen)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

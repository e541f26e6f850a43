// Package selection holds the single canonical selected place.
//
// The store has no business logic. The coordinator writes it, and
// presentational surfaces read it or subscribe to it.
package selection

import (
	"sync"
	"time"

	"place-explorer/server/internal/model"
)

// Status is the resolution status of the selection.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusFailed   Status = "failed"
)

// Selection is the currently shown place plus its status. Place stays at
// the last resolved value while a lookup is pending or after it failed.
type Selection struct {
	Place  *model.PlaceDetails `json:"place"`
	Status Status              `json:"status"`
	// Token is the request token that produced this value.
	Token uint64 `json:"token"`
	// Reason is set when Status is failed: not_found or provider_error.
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Idle is the initial selection.
func Idle() Selection {
	return Selection{Status: StatusIdle}
}

// Key returns the identity key of the place, zero when none.
func (s Selection) Key() model.IdentityKey {
	if s.Place == nil {
		return model.IdentityKey{}
	}
	return s.Place.Key()
}

// Equivalent is the change-notification equality: same place identity and
// same status.
func (s Selection) Equivalent(other Selection) bool {
	return (s.Place == nil) == (other.Place == nil) &&
		s.Key() == other.Key() &&
		s.Status == other.Status
}

func (s Selection) clone() Selection {
	if s.Place != nil {
		p := s.Place.Clone()
		s.Place = &p
	}
	return s
}

// Listener receives the new selection.
type Listener func(Selection)

// Store is an observable holder for the current Selection.
// Reads are safe from any goroutine. Set is called from one writer;
// listeners run synchronously on that writer's goroutine.
type Store struct {
	mu        sync.RWMutex
	current   Selection
	listeners map[int]Listener
	nextID    int
}

func NewStore() *Store {
	return &Store{current: Idle(), listeners: make(map[int]Listener)}
}

// Get returns a copy of the current selection.
func (s *Store) Get() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Set stores sel and notifies listeners when it is not Equivalent to the
// previous value. It reports whether listeners were notified.
func (s *Store) Set(sel Selection) bool {
	sel = sel.clone()

	s.mu.Lock()
	changed := !s.current.Equivalent(sel)
	s.current = sel
	var listeners []Listener
	if changed {
		listeners = make([]Listener, 0, len(s.listeners))
		for _, l := range s.listeners {
			listeners = append(listeners, l)
		}
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(sel.clone())
	}
	return changed
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

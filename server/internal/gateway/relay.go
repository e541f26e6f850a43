package gateway

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"place-explorer/server/internal/model"
)

// ViewportState is the last viewport the relay was told to show.
type ViewportState struct {
	Center model.Coordinates  `json:"center"`
	Zoom   int                `json:"zoom"`
	Marker *model.Coordinates `json:"marker,omitempty"`
}

// Relay forwards viewport commands and state pushes to whichever stream is
// attached to a screen. With nothing attached, sends are dropped.
type Relay struct {
	mu       sync.RWMutex
	stream   *Stream
	viewport ViewportState
}

func NewRelay(initial ViewportState) *Relay {
	return &Relay{viewport: initial}
}

// Attach makes s the current stream and returns the one it replaced.
func (r *Relay) Attach(s *Stream) (previous *Stream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous = r.stream
	r.stream = s
	return previous
}

// Detach clears s if it is still the current stream.
func (r *Relay) Detach(s *Stream) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream != s {
		return false
	}
	r.stream = nil
	return true
}

func (r *Relay) Current() *Stream {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stream
}

// Viewport returns the last commanded viewport.
func (r *Relay) Viewport() ViewportState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v := r.viewport
	if v.Marker != nil {
		m := *v.Marker
		v.Marker = &m
	}
	return v
}

// Publish sends msg to the current stream, if any.
func (r *Relay) Publish(msg *ServerMessage) error {
	s := r.Current()
	if s == nil {
		return nil
	}
	err := s.Send(msg)
	if errors.Is(err, ErrStreamClosed) {
		return nil
	}
	return err
}

func (r *Relay) Center(_ context.Context, c model.Coordinates) error {
	r.mu.Lock()
	r.viewport.Center = c
	r.mu.Unlock()
	return r.Publish(&ServerMessage{Type: EventTypeViewportCenter, At: &c})
}

func (r *Relay) SetZoom(_ context.Context, level int) error {
	r.mu.Lock()
	r.viewport.Zoom = level
	r.mu.Unlock()
	return r.Publish(&ServerMessage{Type: EventTypeViewportZoom, Zoom: &level})
}

func (r *Relay) PlaceMarker(_ context.Context, c model.Coordinates) error {
	r.mu.Lock()
	r.viewport.Marker = &c
	r.mu.Unlock()
	return r.Publish(&ServerMessage{Type: EventTypeViewportMarker, At: &c})
}

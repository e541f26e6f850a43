package gateway

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"place-explorer/server/internal/history"
	"place-explorer/server/internal/model"
	"place-explorer/server/internal/selection"
)

// EventType names a client or server message.
type EventType string

const (
	// client -> server
	EventTypeSuggestionChosen EventType = EventType(model.EventSuggestionChosen)
	EventTypeMapClicked       EventType = EventType(model.EventMapClicked)
	EventTypeHistorySelected  EventType = EventType(model.EventHistorySelected)
	EventTypePing             EventType = "ping"

	// server -> client
	EventTypeSelection      EventType = "selection"
	EventTypeHistory        EventType = "history"
	EventTypeViewportCenter EventType = "viewport.center"
	EventTypeViewportZoom   EventType = "viewport.zoom"
	EventTypeViewportMarker EventType = "viewport.marker"
	EventTypeError          EventType = "error"
	EventTypePong           EventType = "pong"
)

var ErrInvalidEvent = errors.New("invalid client event")

// ClientMessage is a text frame sent by the client. The same shape is
// accepted by POST /api/screens/:id/events.
type ClientMessage struct {
	Type    EventType `json:"type"`
	EventID string    `json:"event_id,omitempty"` // dedup

	// suggestion_chosen
	PlaceID string `json:"place_id,omitempty"`
	// map_clicked
	Location    *model.Coordinates `json:"location,omitempty"`
	ResultToken string             `json:"result_token,omitempty"`
	// history_selected
	HistoryKey *model.IdentityKey `json:"history_key,omitempty"`

	ClientTS time.Time `json:"client_ts,omitempty"`
}

// ScreenEvent converts m to the event recorded on the timeline.
func (m *ClientMessage) ScreenEvent() (model.ScreenEvent, error) {
	evt := model.ScreenEvent{
		EventID:  m.EventID,
		Type:     model.EventType(m.Type),
		ClientTS: m.ClientTS,
	}
	switch m.Type {
	case EventTypeSuggestionChosen:
		if strings.TrimSpace(m.PlaceID) == "" {
			return evt, errors.Wrap(ErrInvalidEvent, "suggestion_chosen needs place_id")
		}
		evt.Reference = &model.PlaceReference{PlaceID: m.PlaceID}
	case EventTypeMapClicked:
		if m.Location == nil {
			return evt, errors.Wrap(ErrInvalidEvent, "map_clicked needs location")
		}
		loc := *m.Location
		evt.Reference = &model.PlaceReference{Location: &loc, ResultToken: m.ResultToken}
	case EventTypeHistorySelected:
		if m.HistoryKey == nil {
			return evt, errors.Wrap(ErrInvalidEvent, "history_selected needs history_key")
		}
		key := *m.HistoryKey
		evt.HistoryKey = &key
	default:
		return evt, errors.Wrapf(ErrInvalidEvent, "unknown type %q", m.Type)
	}
	return evt, nil
}

// ServerMessage is a frame pushed to the client. Seq and ServerTS are
// filled by the Stream.
type ServerMessage struct {
	Type EventType `json:"type"`
	Seq  int64     `json:"seq"`

	Selection *selection.Selection `json:"selection,omitempty"`
	History   []history.Entry      `json:"history,omitempty"`
	Overflow  int                  `json:"overflow,omitempty"`
	At        *model.Coordinates   `json:"at,omitempty"`
	Zoom      *int                 `json:"zoom,omitempty"`
	EventID   string               `json:"event_id,omitempty"`
	Error     string               `json:"error,omitempty"`

	ServerTS time.Time `json:"server_ts"`
}

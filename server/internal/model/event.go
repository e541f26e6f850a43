package model

import "time"

// EventType names a user interaction recorded on a screen's timeline.
type EventType string

const (
	EventSuggestionChosen EventType = "suggestion_chosen"
	EventMapClicked       EventType = "map_clicked"
	EventHistorySelected  EventType = "history_selected"
)

// ScreenEvent is one user interaction as received from a client.
// Seq and ServerTS are assigned by the timeline on append.
type ScreenEvent struct {
	EventID  string    `json:"event_id"`
	ScreenID string    `json:"screen_id"`
	Seq      int64     `json:"seq"`
	Type     EventType `json:"type"`

	// suggestion_chosen and map_clicked
	Reference *PlaceReference `json:"reference,omitempty"`
	// history_selected
	HistoryKey *IdentityKey `json:"history_key,omitempty"`

	ClientTS time.Time `json:"client_ts,omitempty"`
	ServerTS time.Time `json:"server_ts"`
}

// Valid reports whether e carries the payload its type needs.
func (e ScreenEvent) Valid() bool {
	switch e.Type {
	case EventSuggestionChosen, EventMapClicked:
		return e.Reference != nil
	case EventHistorySelected:
		return e.HistoryKey != nil
	default:
		return false
	}
}

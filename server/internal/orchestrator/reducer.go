package orchestrator

import (
	"time"

	"place-explorer/server/internal/model"
	"place-explorer/server/internal/places"
	"place-explorer/server/internal/selection"
)

// OutcomeKind is what happened to the selection.
type OutcomeKind int

const (
	// OutcomeIssued: a lookup was started.
	OutcomeIssued OutcomeKind = iota
	// OutcomeResolved: the latest lookup succeeded.
	OutcomeResolved
	// OutcomeFailed: the latest lookup failed.
	OutcomeFailed
	// OutcomeHistory: an existing history entry was picked.
	OutcomeHistory
)

// Outcome is the input to Reduce.
type Outcome struct {
	Kind  OutcomeKind
	Token uint64
	Place *model.PlaceDetails
	Err   error
}

// IsStale reports whether a result for token must be discarded because a
// newer request has been issued since.
func IsStale(token, latestIssued uint64) bool {
	return token < latestIssued
}

// Reduce computes the next selection. It is pure: no gateway calls, no
// store writes. Pending and failed keep the previous place.
func Reduce(sel selection.Selection, o Outcome, now time.Time) selection.Selection {
	next := selection.Selection{Place: sel.Place, Token: o.Token, UpdatedAt: now}

	switch o.Kind {
	case OutcomeIssued:
		next.Status = selection.StatusPending
	case OutcomeResolved, OutcomeHistory:
		if o.Place == nil {
			// a resolution without a place is reported as not found
			next.Status = selection.StatusFailed
			next.Reason = places.FailureReason(places.ErrNotFound)
			return next
		}
		p := o.Place.Clone()
		next.Place = &p
		next.Status = selection.StatusResolved
	case OutcomeFailed:
		next.Status = selection.StatusFailed
		next.Reason = places.FailureReason(o.Err)
		if next.Reason == "" {
			next.Reason = "provider_error"
		}
	default:
		return sel
	}
	return next
}

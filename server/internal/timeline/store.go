// Package timeline records the interactions received on each screen.
package timeline

import (
	"context"

	"place-explorer/server/internal/model"
)

type Store interface {
	// Append writes evt and returns its seq. Seq is monotonic per screen.
	// An EventID seen before returns the original seq with fresh=false and
	// stores nothing.
	Append(ctx context.Context, screenID string, evt *model.ScreenEvent) (seq int64, fresh bool, err error)
	// List returns every event of the screen in seq order.
	List(ctx context.Context, screenID string) ([]model.ScreenEvent, error)
	// Delete drops the screen's events.
	Delete(ctx context.Context, screenID string) error
}

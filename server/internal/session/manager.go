package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"place-explorer/server/internal/metrics"
	"place-explorer/server/internal/places"
	"place-explorer/server/internal/timeline"
)

// Manager creates screens around a shared gateway and timeline and removes
// the idle ones.
type Manager struct {
	store    Store
	gateway  places.Gateway
	timeline timeline.Store
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

func NewManager(store Store, gw places.Gateway, tl timeline.Store, opts Options, logger zerolog.Logger) *Manager {
	return &Manager{
		store:    store,
		gateway:  gw,
		timeline: tl,
		opts:     opts,
		logger:   logger.With().Str("component", "screens").Logger(),
		now:      time.Now,
	}
}

func (m *Manager) Create(ctx context.Context) (*Screen, error) {
	screen := NewScreen(uuid.NewString(), m.gateway, m.timeline, m.opts, m.logger)
	if err := m.store.Save(ctx, screen); err != nil {
		_ = screen.Close(ctx)
		return nil, errors.Wrap(err, "save screen")
	}
	metrics.ActiveScreens.Inc()
	m.logger.Info().Str("screen_id", screen.ID).Msg("screen created")
	return screen, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*Screen, error) {
	return m.store.Get(ctx, id)
}

// Remove closes the screen and forgets it.
func (m *Manager) Remove(ctx context.Context, id string) error {
	screen, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	metrics.ActiveScreens.Dec()
	return screen.Close(ctx)
}

// Sweep closes screens with no stream attached that have been idle longer
// than maxIdle. It returns how many were removed.
func (m *Manager) Sweep(ctx context.Context, maxIdle time.Duration) (int, error) {
	screens, err := m.store.List(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list screens")
	}

	cutoff := m.now().Add(-maxIdle)
	removed := 0
	for _, s := range screens {
		if s.Streaming() || s.LastActive().After(cutoff) {
			continue
		}
		if err := m.Remove(ctx, s.ID); err != nil && !errors.Is(err, ErrNotFound) {
			m.logger.Warn().Err(err).Str("screen_id", s.ID).Msg("sweep remove failed")
			continue
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info().Int("removed", removed).Msg("idle screens swept")
	}
	return removed, nil
}

// RunSweeper sweeps every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.Sweep(ctx, maxIdle); err != nil {
				m.logger.Warn().Err(err).Msg("sweep failed")
			}
		}
	}
}

// CloseAll closes every screen, used on shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	screens, err := m.store.List(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("list screens on shutdown")
		return
	}
	for _, s := range screens {
		if err := m.Remove(ctx, s.ID); err != nil && !errors.Is(err, ErrNotFound) {
			m.logger.Warn().Err(err).Str("screen_id", s.ID).Msg("close screen")
		}
	}
}

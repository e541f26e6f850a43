// Package orchestrator owns the selection race guard.
//
// The Coordinator is the only writer of a screen's selection store and
// history cache. All of its Handle* methods, and the continuations it posts,
// run on one Scheduler, so the latest-issued token is read and written from a
// single goroutine. Gateway calls run off the scheduler; their results are
// posted back and checked for staleness before anything is mutated.
package orchestrator

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"place-explorer/server/internal/eventloop"
	"place-explorer/server/internal/history"
	"place-explorer/server/internal/metrics"
	"place-explorer/server/internal/model"
	"place-explorer/server/internal/places"
	"place-explorer/server/internal/selection"
)

const (
	DefaultDetailZoom    = 15
	DefaultLookupTimeout = 10 * time.Second
)

var (
	// ErrUnresolvable is returned for references the provider cannot look
	// up. No token is minted for them.
	ErrUnresolvable = errors.New("reference is not resolvable")
	// ErrStaleResult marks a lookup result superseded by a newer request.
	// It never leaves this package.
	ErrStaleResult = errors.New("stale lookup result")
)

// ViewportPort receives map commands. Implementations must accept repeated
// identical commands.
type ViewportPort interface {
	Center(ctx context.Context, c model.Coordinates) error
	SetZoom(ctx context.Context, level int) error
	PlaceMarker(ctx context.Context, c model.Coordinates) error
}

// Scheduler is the sequencing domain continuations are posted to. PostWait
// must not drop a task it accepts; it may fail only once the scheduler is
// closed or ctx is done.
type Scheduler interface {
	PostWait(ctx context.Context, task eventloop.Task) error
}

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Gateway   places.Gateway
	Selection *selection.Store
	History   *history.Cache
	Viewport  ViewportPort
	Scheduler Scheduler
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Config tunes a Coordinator. Zero values pick defaults.
type Config struct {
	DetailZoom    int
	LookupTimeout time.Duration
}

// Coordinator wires lookups into the selection and history of one screen.
type Coordinator struct {
	gateway   places.Gateway
	selection *selection.Store
	history   *history.Cache
	viewport  ViewportPort
	scheduler Scheduler
	logger    zerolog.Logger
	now       func() time.Time
	cfg       Config

	// scheduler-owned
	latestIssued uint64
}

func New(deps Deps, cfg Config) *Coordinator {
	if cfg.DetailZoom <= 0 {
		cfg.DetailZoom = DefaultDetailZoom
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Coordinator{
		gateway:   deps.Gateway,
		selection: deps.Selection,
		history:   deps.History,
		viewport:  deps.Viewport,
		scheduler: deps.Scheduler,
		logger:    deps.Logger.With().Str("component", "coordinator").Logger(),
		now:       deps.Now,
		cfg:       cfg,
	}
}

// LatestIssued returns the newest token minted. Scheduler goroutine only.
func (c *Coordinator) LatestIssued() uint64 {
	return c.latestIssued
}

func (c *Coordinator) mint() uint64 {
	c.latestIssued++
	return c.latestIssued
}

// HandleReference starts a full-detail lookup for ref and marks the
// selection pending. The result is applied later on the scheduler, and only
// if no newer request was issued in between.
func (c *Coordinator) HandleReference(ctx context.Context, ref model.PlaceReference) error {
	if !ref.Resolvable() {
		c.logger.Debug().Str("source", string(ref.Source())).Msg("ignoring unresolvable reference")
		return ErrUnresolvable
	}

	token := c.mint()
	c.selection.Set(Reduce(c.selection.Get(), Outcome{Kind: OutcomeIssued, Token: token}, c.now()))
	c.logger.Debug().
		Uint64("token", token).
		Str("place_id", ref.ProviderID()).
		Str("source", string(ref.Source())).
		Msg("lookup issued")

	// the lookup outlives the task that issued it
	detached := context.WithoutCancel(ctx)
	lookupCtx, cancel := context.WithTimeout(detached, c.cfg.LookupTimeout)
	go func() {
		defer cancel()
		details, lookupErr := c.gateway.Resolve(lookupCtx, ref, model.FullDetailFields())

		// a full queue must not lose the result, or the latest token stays pending
		perr := c.scheduler.PostWait(detached, func(ctx context.Context) error {
			err := c.apply(ctx, token, details, lookupErr)
			if errors.Is(err, ErrStaleResult) {
				return nil
			}
			return err
		})
		if perr != nil {
			c.logger.Warn().Err(perr).Uint64("token", token).Msg("could not schedule lookup result")
		}
	}()
	return nil
}

// HandleMapClick is HandleReference for a click on the rendered map.
// Clicks on bare tiles carry no token and are ignored.
func (c *Coordinator) HandleMapClick(ctx context.Context, location model.Coordinates, resultToken string) error {
	return c.HandleReference(ctx, model.PlaceReference{Location: &location, ResultToken: resultToken})
}

// HandleHistorySelect shows an existing history entry without a lookup.
// History is left untouched. The pick counts as a newer request, so lookups
// still in flight become stale.
func (c *Coordinator) HandleHistorySelect(ctx context.Context, entry history.Entry) error {
	token := c.mint()
	place := entry.Place.Clone()
	c.selection.Set(Reduce(c.selection.Get(), Outcome{Kind: OutcomeHistory, Token: token, Place: &place}, c.now()))
	metrics.SelectionsTotal.WithLabelValues("history").Inc()
	c.logger.Debug().Uint64("token", token).Str("place", place.Key().String()).Msg("history selected")

	c.moveViewport(ctx, place.Coordinates)
	return nil
}

// Preview is the light lookup run right after an autocomplete pick. It
// touches no state and mints no token.
func (c *Coordinator) Preview(ctx context.Context, ref model.PlaceReference) (model.PlaceDetails, error) {
	if !ref.Resolvable() {
		return model.PlaceDetails{}, ErrUnresolvable
	}
	return c.gateway.Resolve(ctx, ref, model.PreviewFields())
}

// apply is the single point where lookup results reach shared state.
func (c *Coordinator) apply(ctx context.Context, token uint64, details model.PlaceDetails, lookupErr error) error {
	if IsStale(token, c.latestIssued) {
		metrics.StaleResultsTotal.Inc()
		c.logger.Debug().Uint64("token", token).Uint64("latest", c.latestIssued).Msg("discarding stale result")
		return ErrStaleResult
	}

	now := c.now()
	if lookupErr != nil {
		c.selection.Set(Reduce(c.selection.Get(), Outcome{Kind: OutcomeFailed, Token: token, Err: lookupErr}, now))
		c.logger.Info().Err(lookupErr).Uint64("token", token).Msg("lookup failed")
		return nil
	}

	c.selection.Set(Reduce(c.selection.Get(), Outcome{Kind: OutcomeResolved, Token: token, Place: &details}, now))
	c.history.UpsertFront(details)
	metrics.SelectionsTotal.WithLabelValues("lookup").Inc()
	c.logger.Debug().Uint64("token", token).Str("place", details.Key().String()).Msg("lookup resolved")

	c.moveViewport(ctx, details.Coordinates)
	return nil
}

func (c *Coordinator) moveViewport(ctx context.Context, at model.Coordinates) {
	if c.viewport == nil {
		return
	}
	if err := c.viewport.Center(ctx, at); err != nil {
		c.logger.Warn().Err(err).Msg("viewport center")
	}
	if err := c.viewport.SetZoom(ctx, c.cfg.DetailZoom); err != nil {
		c.logger.Warn().Err(err).Msg("viewport zoom")
	}
	if err := c.viewport.PlaceMarker(ctx, at); err != nil {
		c.logger.Warn().Err(err).Msg("viewport marker")
	}
}

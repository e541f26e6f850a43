// Package session holds the per-screen state and its lifecycle.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"place-explorer/server/internal/config"
	"place-explorer/server/internal/eventloop"
	"place-explorer/server/internal/gateway"
	"place-explorer/server/internal/history"
	"place-explorer/server/internal/metrics"
	"place-explorer/server/internal/model"
	"place-explorer/server/internal/orchestrator"
	"place-explorer/server/internal/places"
	"place-explorer/server/internal/selection"
	"place-explorer/server/internal/timeline"
)

var ErrHistoryEntryNotFound = errors.New("history entry not found")

const attachTimeout = 5 * time.Second

// Options configure every screen a Manager creates. Zero values pick the
// package defaults of each component.
type Options struct {
	HistoryCapacity int
	DetailZoom      int
	LookupTimeout   time.Duration
	QueueCapacity   int
	TaskTimeout     time.Duration
	DefaultViewport gateway.ViewportState
}

// OptionsFromConfig maps the stream, session, history and map sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		HistoryCapacity: cfg.History.Capacity,
		DetailZoom:      cfg.Map.DetailZoom,
		LookupTimeout:   cfg.Session.LookupTimeout,
		QueueCapacity:   cfg.Stream.QueueCapacity,
		TaskTimeout:     cfg.Stream.TaskTimeout,
		DefaultViewport: gateway.ViewportState{
			Center: model.Coordinates{Lat: cfg.Map.DefaultCenter.Lat, Lng: cfg.Map.DefaultCenter.Lng},
			Zoom:   cfg.Map.DefaultZoom,
		},
	}
}

// Screen is one map screen: its selection, its history and the stream
// showing them. Every coordinator call runs on the screen's event loop.
type Screen struct {
	ID        string
	CreatedAt time.Time

	loop      *eventloop.Loop
	selection *selection.Store
	history   *history.Cache
	relay     *gateway.Relay
	coord     *orchestrator.Coordinator
	timeline  timeline.Store

	lastActive atomic.Int64
	closeOnce  sync.Once
	unsubs     []func()
	logger     zerolog.Logger
}

func NewScreen(id string, gw places.Gateway, tl timeline.Store, opts Options, logger zerolog.Logger) *Screen {
	now := time.Now()
	logger = logger.With().Str("screen_id", id).Logger()

	s := &Screen{
		ID:        id,
		CreatedAt: now,
		loop: eventloop.New("screen-"+id, eventloop.Options{
			Capacity:    opts.QueueCapacity,
			TaskTimeout: opts.TaskTimeout,
		}, logger),
		selection: selection.NewStore(),
		history:   history.New(opts.HistoryCapacity),
		relay:     gateway.NewRelay(opts.DefaultViewport),
		timeline:  tl,
		logger:    logger.With().Str("component", "screen").Logger(),
	}
	s.lastActive.Store(now.UnixNano())

	s.coord = orchestrator.New(orchestrator.Deps{
		Gateway:   gw,
		Selection: s.selection,
		History:   s.history,
		Viewport:  s.relay,
		Scheduler: s.loop,
		Logger:    logger,
	}, orchestrator.Config{
		DetailZoom:    opts.DetailZoom,
		LookupTimeout: opts.LookupTimeout,
	})

	s.unsubs = append(s.unsubs,
		s.selection.Subscribe(func(sel selection.Selection) {
			s.publish(&gateway.ServerMessage{Type: gateway.EventTypeSelection, Selection: &sel})
		}),
		s.history.Subscribe(func(entries []history.Entry) {
			s.publish(&gateway.ServerMessage{Type: gateway.EventTypeHistory, History: entries})
		}),
	)
	return s
}

func (s *Screen) publish(msg *gateway.ServerMessage) {
	if err := s.relay.Publish(msg); err != nil {
		s.logger.Warn().Err(err).Str("type", string(msg.Type)).Msg("push failed")
	}
}

// Dispatch records msg on the timeline and queues the matching coordinator
// call. Replayed event ids are accepted and not run again.
func (s *Screen) Dispatch(ctx context.Context, msg *gateway.ClientMessage) (int64, error) {
	s.touch()

	evt, err := msg.ScreenEvent()
	if err != nil {
		return 0, err
	}
	seq, fresh, err := s.timeline.Append(ctx, s.ID, &evt)
	if err != nil {
		return 0, errors.Wrap(err, "append timeline")
	}
	if !fresh {
		s.logger.Debug().Str("event_id", evt.EventID).Int64("seq", seq).Msg("duplicate event ignored")
		return seq, nil
	}

	if err := s.loop.PostNamed(string(evt.Type), s.taskFor(evt)); err != nil {
		if errors.Is(err, eventloop.ErrQueueFull) {
			metrics.DroppedEventsTotal.Inc()
		}
		return seq, errors.Wrapf(err, "queue %s", evt.Type)
	}
	return seq, nil
}

func (s *Screen) taskFor(evt model.ScreenEvent) eventloop.Task {
	switch evt.Type {
	case model.EventHistorySelected:
		key := *evt.HistoryKey
		return func(ctx context.Context) error {
			entry, ok := s.history.Find(key)
			if !ok {
				return errors.Wrap(ErrHistoryEntryNotFound, key.String())
			}
			return s.coord.HandleHistorySelect(ctx, entry)
		}
	case model.EventMapClicked:
		ref := *evt.Reference
		return func(ctx context.Context) error {
			return ignoreUnresolvable(s.coord.HandleMapClick(ctx, *ref.Location, ref.ResultToken))
		}
	default:
		ref := *evt.Reference
		return func(ctx context.Context) error {
			return ignoreUnresolvable(s.coord.HandleReference(ctx, ref))
		}
	}
}

func ignoreUnresolvable(err error) error {
	if errors.Is(err, orchestrator.ErrUnresolvable) {
		return nil
	}
	return err
}

// AttachStream makes st the screen's stream, closing any older one, and
// sends it the current state before it starts reading.
func (s *Screen) AttachStream(st *gateway.Stream) error {
	s.touch()
	st.SetEventHandler(func(ctx context.Context, msg *gateway.ClientMessage) error {
		_, err := s.Dispatch(ctx, msg)
		return err
	})

	err := s.loop.PostSync(func(context.Context) error {
		if prev := s.relay.Attach(st); prev != nil {
			s.logger.Info().Str("stream_id", prev.ID()).Msg("replacing stream")
			_ = prev.Close()
		}
		return s.sendSnapshot(st)
	}, attachTimeout)
	if err != nil {
		return errors.Wrap(err, "attach stream")
	}

	st.Start()
	go func() {
		<-st.Done()
		s.relay.Detach(st)
		s.touch()
	}()
	return nil
}

func (s *Screen) sendSnapshot(st *gateway.Stream) error {
	sel := s.selection.Get()
	v := s.relay.Viewport()
	zoom := v.Zoom
	msgs := []*gateway.ServerMessage{
		{Type: gateway.EventTypeSelection, Selection: &sel},
		{Type: gateway.EventTypeHistory, History: s.history.Entries()},
		{Type: gateway.EventTypeViewportCenter, At: &v.Center},
		{Type: gateway.EventTypeViewportZoom, Zoom: &zoom},
	}
	if v.Marker != nil {
		msgs = append(msgs, &gateway.ServerMessage{Type: gateway.EventTypeViewportMarker, At: v.Marker})
	}
	for _, m := range msgs {
		if err := st.Send(m); err != nil {
			return err
		}
	}
	return nil
}

// Preview runs the light lookup for an autocomplete pick without touching
// the screen's state.
func (s *Screen) Preview(ctx context.Context, ref model.PlaceReference) (model.PlaceDetails, error) {
	s.touch()
	return s.coord.Preview(ctx, ref)
}

func (s *Screen) Selection() selection.Selection { return s.selection.Get() }

func (s *Screen) History() []history.Entry { return s.history.Entries() }

// Overflow is the number of entries beyond the first visible ones.
func (s *Screen) Overflow(visible int) int { return s.history.Overflow(visible) }

func (s *Screen) HistoryCapacity() int { return s.history.Capacity() }

func (s *Screen) Viewport() gateway.ViewportState { return s.relay.Viewport() }

func (s *Screen) Timeline(ctx context.Context) ([]model.ScreenEvent, error) {
	return s.timeline.List(ctx, s.ID)
}

func (s *Screen) Stats() eventloop.Stats { return s.loop.Stats() }

func (s *Screen) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive is the time of the last event, attach or read through the
// screen's API.
func (s *Screen) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Streaming reports whether a stream is attached.
func (s *Screen) Streaming() bool {
	return s.relay.Current() != nil
}

// Close stops the loop, closes the stream and drops the timeline.
func (s *Screen) Close(ctx context.Context) error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.logger.Info().Msg("closing screen")
		if st := s.relay.Current(); st != nil {
			_ = st.Close()
		}
		for _, u := range s.unsubs {
			u()
		}
		closeErr = s.loop.Close()
		if err := s.timeline.Delete(ctx, s.ID); err != nil && closeErr == nil {
			closeErr = err
		}
	})
	return closeErr
}

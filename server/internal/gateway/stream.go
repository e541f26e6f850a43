// Package gateway carries a screen's websocket stream.
package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"place-explorer/server/internal/metrics"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 5 * time.Second
	maxMessageSize      = 16 << 10
)

var ErrStreamClosed = errors.New("stream is closed")

// EventHandler receives decoded client events in arrival order. It runs on
// the read loop and must not block.
type EventHandler func(ctx context.Context, msg *ClientMessage) error

type StreamConfig struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	// ReadTimeout bounds the wait for any frame or pong. Zero disables it.
	ReadTimeout time.Duration
}

// Stream is one client websocket attached to a screen.
type Stream struct {
	id       string
	screenID string

	conn     *websocket.Conn
	connLock sync.Mutex
	// guarded by connLock so frames leave in seq order
	seqCounter int64

	eventHandler EventHandler

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeChan chan struct{}

	config StreamConfig
	logger zerolog.Logger
}

func NewStream(id, screenID string, conn *websocket.Conn, config StreamConfig, logger zerolog.Logger) *Stream {
	if config.PingInterval <= 0 {
		config.PingInterval = defaultPingInterval
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaultWriteTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		id:        id,
		screenID:  screenID,
		conn:      conn,
		ctx:       ctx,
		cancel:    cancel,
		closeChan: make(chan struct{}),
		config:    config,
		logger: logger.With().
			Str("component", "stream").
			Str("stream_id", id).
			Str("screen_id", screenID).
			Logger(),
	}
}

func (s *Stream) ID() string { return s.id }

// SetEventHandler must be called before Start.
func (s *Stream) SetEventHandler(handler EventHandler) {
	s.eventHandler = handler
}

// Start launches the read and ping loops.
func (s *Stream) Start() {
	s.conn.SetReadLimit(maxMessageSize)
	if s.config.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		})
	}
	metrics.ActiveStreams.Inc()

	go s.readLoop()
	go s.pingLoop()

	s.logger.Info().Msg("stream started")
}

// Done is closed once the stream has shut down.
func (s *Stream) Done() <-chan struct{} {
	return s.closeChan
}

func (s *Stream) readLoop() {
	defer s.Close()

	for {
		select {
		case <-s.closeChan:
			return
		default:
		}

		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-s.closeChan:
				default:
					s.logger.Warn().Err(err).Msg("client read error")
				}
			}
			return
		}
		if s.config.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if err := s.handleClientEvent(data); err != nil {
			s.logger.Debug().Err(err).Msg("client event rejected")
			_ = s.SendError(err.Error(), "")
		}
	}
}

func (s *Stream) handleClientEvent(data []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return errors.Wrap(ErrInvalidEvent, "malformed json")
	}
	if msg.ClientTS.IsZero() {
		msg.ClientTS = time.Now()
	}

	s.logger.Debug().Str("type", string(msg.Type)).Str("event_id", msg.EventID).Msg("client event")

	if msg.Type == EventTypePing {
		return s.Send(&ServerMessage{Type: EventTypePong, EventID: msg.EventID})
	}
	if s.eventHandler == nil {
		s.logger.Warn().Str("type", string(msg.Type)).Msg("no event handler, dropping event")
		return nil
	}
	return s.eventHandler(s.ctx, &msg)
}

// Send writes msg, assigning the next seq.
func (s *Stream) Send(msg *ServerMessage) error {
	if msg.ServerTS.IsZero() {
		msg.ServerTS = time.Now()
	}

	s.connLock.Lock()
	defer s.connLock.Unlock()

	select {
	case <-s.closeChan:
		return ErrStreamClosed
	default:
	}

	s.seqCounter++
	msg.Seq = s.seqCounter
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal server message")
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "write to client")
	}
	return nil
}

func (s *Stream) SendError(errMsg, eventID string) error {
	return s.Send(&ServerMessage{Type: EventTypeError, Error: errMsg, EventID: eventID})
}

func (s *Stream) pingLoop() {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closeChan:
			return
		case <-ticker.C:
			s.connLock.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(s.config.WriteTimeout))
			s.connLock.Unlock()
			if err != nil {
				s.logger.Debug().Err(err).Msg("ping failed")
				s.Close()
				return
			}
		}
	}
}

// Close shuts the stream down. Safe to call more than once.
func (s *Stream) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		s.logger.Info().Msg("stream closing")
		s.cancel()

		s.connLock.Lock()
		close(s.closeChan)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		closeErr = s.conn.Close()
		s.connLock.Unlock()

		metrics.ActiveStreams.Dec()
	})

	return closeErr
}

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"place-explorer/server/internal/auth"
	"place-explorer/server/internal/config"
	"place-explorer/server/internal/eventloop"
	"place-explorer/server/internal/gateway"
	"place-explorer/server/internal/history"
	"place-explorer/server/internal/logger"
	"place-explorer/server/internal/metrics"
	"place-explorer/server/internal/model"
	"place-explorer/server/internal/orchestrator"
	"place-explorer/server/internal/places"
	"place-explorer/server/internal/session"
)

type Server struct {
	config  *config.Config
	screens *session.Manager
	// nil when auth is disabled
	auth *auth.Service

	origins  map[string]bool
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewServer(cfg *config.Config, screens *session.Manager, authSvc *auth.Service, logger zerolog.Logger) *Server {
	s := &Server{
		config:  cfg,
		screens: screens,
		auth:    authSvc,
		origins: make(map[string]bool, len(cfg.Server.AllowedOrigins)),
		logger:  logger.With().Str("component", "api").Logger(),
	}
	for _, o := range cfg.Server.AllowedOrigins {
		s.origins[o] = true
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.origins[origin]
		},
	}
	return s
}

func (s *Server) Routes() http.Handler {
	engine := gin.New()
	engine.Use(logger.AccessMiddleware(s.logger), gin.Recovery(), s.corsMiddleware())

	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	if s.auth != nil {
		engine.POST("/auth/register", s.handleRegister)
		engine.POST("/auth/login", s.handleLogin)
		engine.GET("/auth/verify", auth.Middleware(s.auth), s.handleVerify)
	}

	screens := engine.Group("/api/screens", auth.Middleware(s.auth))
	screens.POST("", s.handleCreateScreen)
	screens.GET("/:id/selection", s.handleSelection)
	screens.GET("/:id/history", s.handleHistory)
	screens.GET("/:id/preview", s.handlePreview)
	screens.GET("/:id/timeline", s.handleTimeline)
	screens.POST("/:id/events", s.handleEvents)
	screens.DELETE("/:id", s.handleDeleteScreen)
	screens.GET("/:id/stream", s.handleStream)
	return engine
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	LastName string `json:"last_name"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	user, err := s.auth.Register(req.Email, req.Password, req.Name, req.LastName)
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, auth.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("register failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "register failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	token, user, err := s.auth.Login(req.Email, req.Password)
	if err != nil {
		if auth.IsAuthError(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error().Err(err).Msg("login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func (s *Server) handleVerify(c *gin.Context) {
	user, _ := auth.UserFrom(c)
	c.JSON(http.StatusOK, gin.H{"user": user})
}

type createScreenResponse struct {
	ScreenID        string                `json:"screen_id"`
	Viewport        gateway.ViewportState `json:"viewport"`
	HistoryCapacity int                   `json:"history_capacity"`
}

func (s *Server) handleCreateScreen(c *gin.Context) {
	screen, err := s.screens.Create(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("create screen failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create screen failed"})
		return
	}
	c.JSON(http.StatusCreated, createScreenResponse{
		ScreenID:        screen.ID,
		Viewport:        screen.Viewport(),
		HistoryCapacity: screen.HistoryCapacity(),
	})
}

// loadScreen writes the error response itself and returns false on failure.
func (s *Server) loadScreen(c *gin.Context) (*session.Screen, bool) {
	screen, err := s.screens.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "screen not found"})
			return nil, false
		}
		s.logger.Error().Err(err).Str("screen_id", c.Param("id")).Msg("load screen failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load screen failed"})
		return nil, false
	}
	return screen, true
}

func (s *Server) handleSelection(c *gin.Context) {
	screen, ok := s.loadScreen(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, screen.Selection())
}

type historyResponse struct {
	Entries  []history.Entry `json:"entries"`
	Capacity int             `json:"capacity"`
	Overflow *int            `json:"overflow,omitempty"`
}

func (s *Server) handleHistory(c *gin.Context) {
	screen, ok := s.loadScreen(c)
	if !ok {
		return
	}
	resp := historyResponse{Entries: screen.History(), Capacity: screen.HistoryCapacity()}
	if v := c.Query("visible"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "visible must be a non-negative integer"})
			return
		}
		overflow := screen.Overflow(n)
		resp.Overflow = &overflow
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePreview(c *gin.Context) {
	screen, ok := s.loadScreen(c)
	if !ok {
		return
	}
	details, err := screen.Preview(c.Request.Context(), model.PlaceReference{PlaceID: c.Query("place_id")})
	switch {
	case errors.Is(err, orchestrator.ErrUnresolvable):
		c.JSON(http.StatusBadRequest, gin.H{"error": "place_id required"})
		return
	case places.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "place not found"})
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider error"})
		return
	}
	c.JSON(http.StatusOK, details)
}

func (s *Server) handleTimeline(c *gin.Context) {
	screen, ok := s.loadScreen(c)
	if !ok {
		return
	}
	events, err := screen.Timeline(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load timeline failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) handleEvents(c *gin.Context) {
	screen, ok := s.loadScreen(c)
	if !ok {
		return
	}
	var msg gateway.ClientMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	seq, err := screen.Dispatch(c.Request.Context(), &msg)
	switch {
	case errors.Is(err, gateway.ErrInvalidEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, eventloop.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "screen busy", "seq": seq})
		return
	case errors.Is(err, eventloop.ErrClosed):
		c.JSON(http.StatusGone, gin.H{"error": "screen closed"})
		return
	case err != nil:
		s.logger.Error().Err(err).Str("screen_id", screen.ID).Msg("dispatch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "dispatch failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"seq": seq})
}

func (s *Server) handleDeleteScreen(c *gin.Context) {
	err := s.screens.Remove(c.Request.Context(), c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "screen not found"})
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("screen_id", c.Param("id")).Msg("close screen")
	}
	c.Status(http.StatusNoContent)
}

// handleStream upgrades to a websocket and blocks until the stream ends.
func (s *Server) handleStream(c *gin.Context) {
	screen, ok := s.loadScreen(c)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("screen_id", screen.ID).Msg("websocket upgrade failed")
		return
	}

	st := gateway.NewStream(uuid.NewString(), screen.ID, conn, gateway.StreamConfig{
		PingInterval: s.config.Stream.PingInterval,
		WriteTimeout: s.config.Stream.WriteTimeout,
		ReadTimeout:  2 * s.config.Stream.PingInterval,
	}, s.logger)
	if err := screen.AttachStream(st); err != nil {
		s.logger.Warn().Err(err).Str("screen_id", screen.ID).Msg("attach stream failed")
		_ = st.Close()
		return
	}

	<-st.Done()
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if s.origins[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Max-Age", strconv.Itoa(int((12 * time.Hour).Seconds())))
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"codeduel/pkg/types"
)

// Dispatcher receives validated client events and transport closures.
type Dispatcher interface {
	Dispatch(ctx context.Context, connectionID string, event *types.ClientEvent) error
	Disconnect(ctx context.Context, connectionID string) error
}

// HandlerConfig holds socket timings. Zero values take the defaults used
// by DefaultHandlerConfig.
type HandlerConfig struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// DefaultHandlerConfig pings every 30s and drops a peer silent for 60s.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		BufferSize:   defaultBufferSize,
	}
}

var upgrader = websocket.Upgrader{
	// Browser clients are served from a different origin than the API.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades HTTP requests and pumps each socket's inbound events
// into the Dispatcher.
type Handler struct {
	registry   *Registry
	dispatcher Dispatcher
	limiter    *RateLimiter
	cfg        HandlerConfig
	logger     zerolog.Logger
}

// NewHandler creates a handler. A nil limiter disables rate limiting.
func NewHandler(registry *Registry, dispatcher Dispatcher, limiter *RateLimiter, cfg HandlerConfig, logger zerolog.Logger) *Handler {
	defaults := DefaultHandlerConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		limiter:    limiter,
		cfg:        cfg,
		logger:     logger.With().Str("component", "websocket").Logger(),
	}
}

// HandleWebSocket upgrades the request, registers the connection and tells
// the client its connection ID.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	conn := NewConnection(ws, h.cfg.BufferSize, h.cfg.WriteTimeout)
	if err := h.registry.Register(conn); err != nil {
		h.logger.Error().Err(err).Str("connection_id", conn.ID()).Msg("connection registration failed")
		_ = conn.Close()
		return
	}

	h.logger.Info().Str("connection_id", conn.ID()).Str("remote_addr", r.RemoteAddr).Msg("connection opened")

	if err := conn.WriteJSON(&types.ServerEvent{
		Type:         types.EventConnected,
		ConnectionID: conn.ID(),
		Timestamp:    time.Now(),
	}); err != nil {
		h.logger.Warn().Err(err).Str("connection_id", conn.ID()).Msg("failed to send connection greeting")
	}

	go h.handleConnection(conn)
}

// handleConnection runs the read pump until the peer goes away, then
// reports the disconnect.
func (h *Handler) handleConnection(conn *Connection) {
	log := h.logger.With().Str("connection_id", conn.ID()).Logger()

	defer func() {
		h.registry.Unregister(conn)
		_ = conn.Close()
		if h.limiter != nil {
			h.limiter.Forget(conn.ID())
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.dispatcher.Disconnect(ctx, conn.ID()); err != nil {
			log.Warn().Err(err).Msg("disconnect not delivered")
		}
		log.Info().Dur("connected_for", time.Since(conn.ConnectedAt())).Msg("connection closed")
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		log.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.handleFrame(conn, data, log)
	}
}

func (h *Handler) handleFrame(conn *Connection, data []byte, log zerolog.Logger) {
	var event types.ClientEvent
	if err := json.Unmarshal(data, &event); err != nil {
		h.reject(conn, "", types.CodeInvalidEvent, "malformed JSON event", log)
		return
	}

	if h.limiter != nil && !h.limiter.Allow(conn.ID()) {
		h.reject(conn, event.RoomID, types.CodeRateLimited, "too many events", log)
		return
	}

	if err := event.Validate(); err != nil {
		h.reject(conn, event.RoomID, types.CodeInvalidEvent, err.Error(), log)
		return
	}

	if err := h.dispatcher.Dispatch(conn.ctx, conn.ID(), &event); err != nil {
		log.Error().Err(err).Str("event", event.Type).Str("room_id", event.RoomID).Msg("event dispatch failed")
	}
}

func (h *Handler) reject(conn *Connection, roomID, code, message string, log zerolog.Logger) {
	notice := types.ErrorEvent(roomID, code, message)
	notice.Timestamp = time.Now()
	if err := conn.WriteJSON(notice); err != nil {
		log.Warn().Err(err).Str("code", code).Msg("failed to send error notice")
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"codeduel/pkg/interfaces"
	"codeduel/pkg/types"
)

const (
	defaultMatchLimit = 20
	maxMatchLimit     = 100
)

// RoomReader exposes read-only room state owned by the hub.
type RoomReader interface {
	Rooms(ctx context.Context) ([]*types.RoomSnapshot, error)
	Room(ctx context.Context, roomID string) (*types.RoomSnapshot, error)
	PendingGrace() int
}

// Registry reports live connection counts.
type Registry interface {
	GetStats() map[string]int
}

// Server is the HTTP surface: health, read-only room and match views, and
// the websocket upgrade endpoint. It holds no game logic.
type Server struct {
	rooms    RoomReader
	results  interfaces.ResultStore
	registry Registry
	router   chi.Router
	logger   zerolog.Logger
}

type RoomsResponse struct {
	Rooms []*types.RoomSnapshot `json:"rooms"`
}

type RoomResponse struct {
	Room *types.RoomSnapshot `json:"room"`
}

type MatchesResponse struct {
	Matches []*types.MatchResult `json:"matches"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
	Rooms       map[string]int `json:"rooms"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewServer builds the router. ws handles GET /ws.
func NewServer(rooms RoomReader, results interfaces.ResultStore, registry Registry, ws http.Handler, logger zerolog.Logger) *Server {
	s := &Server{
		rooms:    rooms,
		results:  results,
		registry: registry,
		router:   chi.NewRouter(),
		logger:   logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes(ws)
	return s
}

func (s *Server) setupRoutes(ws http.Handler) {
	r := s.router

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Msg("request")
	}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Group(func(api chi.Router) {
		api.Use(jsonMiddleware)
		api.Get("/health", s.healthCheck)
		api.Route("/api", func(api chi.Router) {
			api.Get("/rooms", s.listRooms)
			api.Get("/rooms/{roomID}", s.getRoom)
			api.Get("/matches", s.listMatches)
		})
	})

	if ws != nil {
		r.Get("/ws", ws.ServeHTTP)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.rooms.Rooms(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("failed to list rooms")
		s.sendError(w, "Failed to list rooms", http.StatusServiceUnavailable)
		return
	}
	if rooms == nil {
		rooms = []*types.RoomSnapshot{}
	}
	s.sendJSON(w, http.StatusOK, RoomsResponse{Rooms: rooms})
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if !types.IsValidRoomID(roomID) {
		s.sendError(w, "Invalid room ID", http.StatusBadRequest)
		return
	}

	room, err := s.rooms.Room(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, interfaces.ErrRoomNotFound) {
			s.sendError(w, "Room not found", http.StatusNotFound)
			return
		}
		hlog.FromRequest(r).Error().Err(err).Str("room_id", roomID).Msg("failed to get room")
		s.sendError(w, "Failed to get room", http.StatusServiceUnavailable)
		return
	}
	s.sendJSON(w, http.StatusOK, RoomResponse{Room: room})
}

func (s *Server) listMatches(w http.ResponseWriter, r *http.Request) {
	limit := defaultMatchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.sendError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxMatchLimit)
	}

	matches, err := s.results.RecentMatches(r.Context(), limit)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("failed to list matches")
		s.sendError(w, "Failed to list matches", http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []*types.MatchResult{}
	}
	s.sendJSON(w, http.StatusOK, MatchesResponse{Matches: matches})
}

// healthCheck returns 503 when the ledger is unreachable.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.results.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = "error: " + err.Error()
	}

	roomStats := map[string]int{"pending_grace": s.rooms.PendingGrace()}
	if rooms, err := s.rooms.Rooms(ctx); err == nil {
		roomStats["live"] = len(rooms)
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	s.sendJSON(w, code, HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.registry.GetStats(),
		Rooms:       roomStats,
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, body any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// corsMiddleware allows browser clients served from another origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/roach88/scoreclock/internal/engine"
	"github.com/roach88/scoreclock/internal/ingest"
	"github.com/roach88/scoreclock/internal/liveness"
	"github.com/roach88/scoreclock/internal/metrics"
	"github.com/roach88/scoreclock/internal/protocol"
)

// GameUpdate notifies cloud WebSocket clients that a game has new events.
type GameUpdate struct {
	Type     string `json:"type"`
	GameID   string `json:"game_id"`
	Inserted int    `json:"inserted"`
}

// GameUpdateObserver broadcasts a GameUpdate whenever ingestion stores
// new events.
func GameUpdateObserver(hub *Hub) ingest.Observer {
	return ingest.ObserverFunc(func(gameID string, inserted int) {
		hub.Broadcast(GameUpdate{Type: "update", GameID: gameID, Inserted: inserted})
	})
}

// CloudServer is the aggregator API.
type CloudServer struct {
	ingest    *ingest.Service
	liveness  *liveness.Registry
	hub       *Hub
	now       func() time.Time
	threshold time.Duration
}

// CloudOption configures a CloudServer.
type CloudOption func(*CloudServer)

// WithCloudClock sets the time source for server_time and staleness.
func WithCloudClock(now func() time.Time) CloudOption {
	return func(s *CloudServer) { s.now = now }
}

// WithMissingThreshold sets the default for /admin/devices/missing.
func WithMissingThreshold(d time.Duration) CloudOption {
	return func(s *CloudServer) { s.threshold = d }
}

// NewCloudServer wires the aggregator handlers. hub serves
// /ws/game-states and should be the hub passed to GameUpdateObserver.
func NewCloudServer(svc *ingest.Service, reg *liveness.Registry, hub *Hub, opts ...CloudOption) *CloudServer {
	s := &CloudServer{
		ingest:    svc,
		liveness:  reg,
		hub:       hub,
		now:       time.Now,
		threshold: liveness.DefaultThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the router.
func (s *CloudServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())
	r.Handle("/ws/game-states", s.hub)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Post("/v1/games/{game_id}/events", s.handleSubmit)
		r.Post("/v1/heartbeat", s.handleHeartbeat)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/heartbeats/latest", s.handleLatestHeartbeats)
			r.Get("/heartbeats/{device_id}", s.handleHeartbeatHistory)
			r.Get("/devices/missing", s.handleMissing)
			r.Get("/games", s.handleGames)
			r.Get("/events/{game_id}", s.handleEvents)
			r.Get("/games/{game_id}/state", s.handleGameState)
		})
	})
	return r
}

func (s *CloudServer) serverTime() string {
	return s.now().UTC().Format(time.RFC3339)
}

func validationFailed(w http.ResponseWriter, err error) bool {
	var verr *ingest.ValidationError
	if !errors.As(err, &verr) {
		return false
	}
	respondError(w, http.StatusUnprocessableEntity, protocol.ErrorResponse{
		Error: verr.Message,
		Code:  verr.Code,
		Field: verr.Field,
	}, nil)
	return true
}

func (s *CloudServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")

	var req protocol.SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		metrics.IngestRequestsTotal.WithLabelValues(strconv.Itoa(http.StatusBadRequest)).Inc()
		badRequest(w, err)
		return
	}

	res, err := s.ingest.Submit(r.Context(), gameID, req)
	switch {
	case err == nil:
	case validationFailed(w, err):
		metrics.IngestRequestsTotal.WithLabelValues(strconv.Itoa(http.StatusUnprocessableEntity)).Inc()
		return
	case res.AckedThrough > 0:
		// Part of the batch is stored; acknowledge that much.
		slog.Error("ingest: partial submission", "game_id", gameID, "acked_through", res.AckedThrough, "error", err)
	default:
		metrics.IngestRequestsTotal.WithLabelValues(strconv.Itoa(http.StatusInternalServerError)).Inc()
		respondError(w, http.StatusInternalServerError, protocol.ErrorResponse{Error: "failed to store events", Code: "INTERNAL"}, err)
		return
	}

	metrics.IngestRequestsTotal.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	respondJSON(w, http.StatusOK, res.Response())
}

func (s *CloudServer) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var hb protocol.Heartbeat
	if err := decodeJSON(r, &hb); err != nil {
		badRequest(w, err)
		return
	}
	if _, err := s.liveness.Heartbeat(r.Context(), hb); err != nil {
		if validationFailed(w, err) {
			return
		}
		respondError(w, http.StatusInternalServerError, protocol.ErrorResponse{Error: "failed to store heartbeat", Code: "INTERNAL"}, err)
		return
	}
	respondJSON(w, http.StatusOK, protocol.HeartbeatResponse{Status: "ok", ServerTime: s.serverTime()})
}

func (s *CloudServer) handleLatestHeartbeats(w http.ResponseWriter, r *http.Request) {
	latest, err := s.liveness.Latest(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, protocol.ErrorResponse{Error: "failed to read heartbeats"}, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"heartbeats": latest, "count": len(latest)})
}

func (s *CloudServer) handleHeartbeatHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	history, err := s.liveness.History(r.Context(), chi.URLParam(r, "device_id"), min(max(limit, 0), 1000))
	if err != nil {
		respondError(w, http.StatusInternalServerError, protocol.ErrorResponse{Error: "failed to read heartbeats"}, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"heartbeats": history, "count": len(history)})
}

func (s *CloudServer) handleMissing(w http.ResponseWriter, r *http.Request) {
	threshold, err := parseDuration(r.URL.Query().Get("threshold"), s.threshold)
	if err != nil {
		badRequest(w, err)
		return
	}
	missing, err := s.liveness.Missing(r.Context(), s.now(), threshold)
	if err != nil {
		respondError(w, http.StatusInternalServerError, protocol.ErrorResponse{Error: "failed to read heartbeats"}, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"threshold_seconds": int64(threshold / time.Second),
		"devices":           missing,
		"count":             len(missing),
	})
}

func (s *CloudServer) handleGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.ingest.Games(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, protocol.ErrorResponse{Error: "failed to read games"}, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"games": games})
}

func (s *CloudServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	records, err := s.ingest.Events(r.Context(), gameID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, protocol.ErrorResponse{Error: "failed to read events"}, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"game_id":     gameID,
		"event_count": len(records),
		"events":      records,
	})
}

// GameStateResponse is the body of GET /admin/games/{game_id}/state.
type GameStateResponse struct {
	GameID string           `json:"game_id"`
	Clock  string           `json:"clock"`
	State  engine.GameState `json:"state"`
	At     int64            `json:"at"`
}

func (s *CloudServer) handleGameState(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	now := s.now().Unix()
	state, err := s.ingest.GameState(r.Context(), gameID, now)
	if err != nil {
		respondError(w, http.StatusInternalServerError, protocol.ErrorResponse{Error: "failed to replay game"}, err)
		return
	}
	respondJSON(w, http.StatusOK, GameStateResponse{
		GameID: gameID,
		Clock:  engine.FormatClock(state.SecondsRemaining),
		State:  state,
		At:     now,
	})
}

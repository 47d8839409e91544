package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/roach88/scoreclock/internal/engine"
	"github.com/roach88/scoreclock/internal/metrics"
	"github.com/roach88/scoreclock/internal/payload"
	"github.com/roach88/scoreclock/internal/protocol"
)

// StateMessage is what device WebSocket clients receive.
type StateMessage struct {
	State engine.Snapshot `json:"state"`
}

// NewStateHub creates the device hub. New clients get the current
// snapshot from current.
func NewStateHub(current func() engine.Snapshot) *Hub {
	return NewHub(func() any { return StateMessage{State: current()} })
}

// StateObserver broadcasts every controller snapshot on hub.
func StateObserver(hub *Hub) engine.Observer {
	return engine.ObserverFunc(func(s engine.Snapshot) {
		hub.Broadcast(StateMessage{State: s})
	})
}

// DeviceServer is the operator-facing HTTP surface of a scoreboard.
type DeviceServer struct {
	ctl *engine.Controller
	hub *Hub
}

// NewDeviceServer wires handlers to ctl. hub serves /ws and should be the
// same hub passed to StateObserver.
func NewDeviceServer(ctl *engine.Controller, hub *Hub) *DeviceServer {
	return &DeviceServer{ctl: ctl, hub: hub}
}

// Routes returns the router.
func (s *DeviceServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/state", s.handleState)
	r.Handle("/ws", s.hub)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		r.Post("/start", s.handleStart)
		r.Post("/pause", s.handlePause)
		r.Post("/set_time", s.handleSetTime)
		r.Post("/add_goal", s.handleAddGoal)
		r.Post("/cancel_goal", s.handleCancelGoal)
		r.Post("/add_shot", s.handleAddShot)
		r.Post("/select_mode", s.handleSelectMode)
		r.Post("/roster/init", s.handleRosterInit)
		r.Post("/roster/scratch", s.handleRosterScratch)
		r.Post("/roster/activate", s.handleRosterActivate)
	})
	return r
}

func (s *DeviceServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snap := s.ctl.Current()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"mode":          snap.Mode,
		"pusher_status": snap.PusherStatus,
	})
}

func (s *DeviceServer) handleState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.ctl.Current())
}

// ok replies with the snapshot after a command, plus extra fields.
func (s *DeviceServer) ok(w http.ResponseWriter, extra map[string]any) {
	body := map[string]any{"status": "ok", "state": s.ctl.Current()}
	for k, v := range extra {
		body[k] = v
	}
	respondJSON(w, http.StatusOK, body)
}

// commandFailed maps a controller error to a response.
func commandFailed(w http.ResponseWriter, err error) {
	var ce *engine.CommandError
	if !errors.As(err, &ce) {
		respondError(w, http.StatusInternalServerError, protocol.ErrorResponse{Error: "command failed", Code: "INTERNAL"}, err)
		return
	}

	status := http.StatusBadRequest
	switch ce.Code {
	case engine.ErrCodeClockMode, engine.ErrCodeGoalCancelled:
		status = http.StatusConflict
	case engine.ErrCodeGoalNotFound:
		status = http.StatusNotFound
	case engine.ErrCodeStopped:
		status = http.StatusServiceUnavailable
	}
	respondError(w, status, protocol.ErrorResponse{Error: ce.Message, Code: string(ce.Code)}, nil)
}

func (s *DeviceServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.Start(r.Context()); err != nil {
		commandFailed(w, err)
		return
	}
	s.ok(w, nil)
}

func (s *DeviceServer) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.Pause(r.Context()); err != nil {
		commandFailed(w, err)
		return
	}
	s.ok(w, nil)
}

type setTimeRequest struct {
	TimeStr string `json:"time_str"`
	Seconds *int64 `json:"seconds"`
}

func (s *DeviceServer) handleSetTime(w http.ResponseWriter, r *http.Request) {
	var req setTimeRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	var seconds int64
	switch {
	case req.Seconds != nil:
		seconds = *req.Seconds
	case req.TimeStr != "":
		n, err := engine.ParseClock(req.TimeStr)
		if err != nil {
			badRequest(w, err)
			return
		}
		seconds = n
	default:
		badRequest(w, errors.New("time_str or seconds is required"))
		return
	}

	if err := s.ctl.SetClock(r.Context(), seconds); err != nil {
		commandFailed(w, err)
		return
	}
	s.ok(w, nil)
}

// playerRef accepts a player id as a JSON string, number or null.
type playerRef string

func (p *playerRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = playerRef(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("player id must be a string or integer")
	}
	*p = playerRef(strconv.FormatInt(n, 10))
	return nil
}

type goalRequest struct {
	Team      engine.Team `json:"team"`
	ScorerID  playerRef   `json:"scorer_id"`
	Assist1ID playerRef   `json:"assist1_id"`
	Assist2ID playerRef   `json:"assist2_id"`
}

func (s *DeviceServer) handleAddGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	goal, err := s.ctl.AddGoal(r.Context(), engine.GoalRequest{
		Team:      req.Team,
		ScorerID:  string(req.ScorerID),
		Assist1ID: string(req.Assist1ID),
		Assist2ID: string(req.Assist2ID),
	})
	if err != nil {
		commandFailed(w, err)
		return
	}
	s.ok(w, map[string]any{"goal": goal})
}

func (s *DeviceServer) handleCancelGoal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GoalID string `json:"goal_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	goal, err := s.ctl.CancelGoal(r.Context(), req.GoalID)
	if err != nil {
		commandFailed(w, err)
		return
	}
	s.ok(w, map[string]any{"goal": goal})
}

type teamRequest struct {
	Team engine.Team `json:"team"`
}

func (s *DeviceServer) handleAddShot(w http.ResponseWriter, r *http.Request) {
	var req teamRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if err := s.ctl.AddShot(r.Context(), req.Team); err != nil {
		commandFailed(w, err)
		return
	}
	snap := s.ctl.Current()
	shots := snap.HomeShots
	if req.Team == engine.Away {
		shots = snap.AwayShots
	}
	s.ok(w, map[string]any{"team": req.Team, "shots": shots})
}

func (s *DeviceServer) handleSelectMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if err := s.ctl.SelectMode(r.Context(), req.Mode); err != nil {
		commandFailed(w, err)
		return
	}
	s.ok(w, map[string]any{"mode": s.ctl.Current().Mode})
}

type rosterInitRequest struct {
	Team    engine.Team      `json:"team"`
	Players []payload.Object `json:"players"`
}

func (s *DeviceServer) handleRosterInit(w http.ResponseWriter, r *http.Request) {
	var req rosterInitRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if err := s.ctl.InitRoster(r.Context(), req.Team, req.Players); err != nil {
		commandFailed(w, err)
		return
	}
	s.ok(w, nil)
}

type rosterChangeRequest struct {
	Team     engine.Team `json:"team"`
	PlayerID playerRef   `json:"player_id"`
}

func (s *DeviceServer) handleRosterScratch(w http.ResponseWriter, r *http.Request) {
	var req rosterChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if err := s.ctl.ScratchPlayer(r.Context(), req.Team, string(req.PlayerID)); err != nil {
		commandFailed(w, err)
		return
	}
	s.ok(w, nil)
}

func (s *DeviceServer) handleRosterActivate(w http.ResponseWriter, r *http.Request) {
	var req rosterChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if err := s.ctl.ActivatePlayer(r.Context(), req.Team, string(req.PlayerID)); err != nil {
		commandFailed(w, err)
		return
	}
	s.ok(w, nil)
}

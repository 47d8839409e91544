package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/roach88/scoreclock/internal/health"
	"github.com/roach88/scoreclock/internal/payload"
	"github.com/roach88/scoreclock/internal/store"
)

// DefaultTickInterval is the live loop cadence.
const DefaultTickInterval = time.Second

// HealthChecker evaluates delivery-worker status once per tick.
// Implemented by health.Set.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// Observer receives a snapshot after every tick and every command.
// Observe is called on the Run goroutine and must not block.
type Observer interface {
	Observe(Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

// Observe calls f(s).
func (f ObserverFunc) Observe(s Snapshot) { f(s) }

// Controller is the single-writer live control loop.
//
// It owns the in-memory GameState for the selected mode. Every mutation
// happens on the Run goroutine: HTTP handlers call the command methods,
// which enqueue a closure and wait for its result.
//
// Thread-safety model:
//   - command methods and Current(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//
// The loop never performs delivery I/O. It appends to the local store and
// reads the delivery backlog for health, both against the local database.
type Controller struct {
	store         *store.Store
	clock         Clock
	ids           IDGenerator
	health        HealthChecker
	observers     []Observer
	tickInterval  time.Duration
	periodSeconds int64
	queue         *commandQueue

	// Owned by the Run goroutine.
	mode        string
	state       GameState
	lastEventID int64
	report      health.Report

	current atomic.Pointer[Snapshot]
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the wall clock. The store should share it.
func WithClock(c Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithIDGenerator sets the goal id source.
func WithIDGenerator(g IDGenerator) Option {
	return func(ctl *Controller) { ctl.ids = g }
}

// WithHealth attaches the delivery-worker health checker.
func WithHealth(h HealthChecker) Option {
	return func(ctl *Controller) { ctl.health = h }
}

// WithObserver adds an observer. Observers are called in the order added.
func WithObserver(o Observer) Option {
	return func(ctl *Controller) { ctl.observers = append(ctl.observers, o) }
}

// WithTickInterval overrides DefaultTickInterval.
func WithTickInterval(d time.Duration) Option {
	return func(ctl *Controller) {
		if d > 0 {
			ctl.tickInterval = d
		}
	}
}

// WithPeriodSeconds sets the clock value seeded into a mode with no events.
func WithPeriodSeconds(seconds int64) Option {
	return func(ctl *Controller) {
		if seconds > 0 {
			ctl.periodSeconds = seconds
		}
	}
}

// NewController creates a controller in clock mode. State is loaded when
// Run starts.
func NewController(s *store.Store, opts ...Option) *Controller {
	c := &Controller{
		store:         s,
		clock:         SystemClock{},
		ids:           RandomIDGenerator{},
		tickInterval:  DefaultTickInterval,
		periodSeconds: DefaultPeriodSeconds,
		queue:         newCommandQueue(),
		mode:          ModeClock,
		state:         NewGameState(),
		report:        health.Report{Overall: health.Unknown, Destinations: map[string]health.Status{}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run loads clock-mode state, then ticks and executes commands until ctx
// is cancelled or Stop is called.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.load(ctx, ModeClock); err != nil {
		c.queue.Close()
		c.drain()
		return fmt.Errorf("load state: %w", err)
	}
	c.tick(ctx)

	slog.Info("control loop started",
		"mode", c.mode,
		"seconds", c.Current().Seconds,
		"tick", c.tickInterval,
	)

	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for {
		if cmd, ok := c.queue.TryDequeue(); ok {
			c.execute(ctx, cmd)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("control loop stopping: context cancelled")
			c.queue.Close()
			c.drain()
			return ctx.Err()

		case <-ticker.C:
			c.tick(ctx)

		case <-c.queue.Wait():
			if c.queue.Closed() && c.queue.Len() == 0 {
				slog.Info("control loop stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the command queue. Queued commands still run; Run returns
// once they are done.
func (c *Controller) Stop() {
	c.queue.Close()
}

// drain rejects commands left in a closed queue so their callers return.
func (c *Controller) drain() {
	for {
		cmd, ok := c.queue.TryDequeue()
		if !ok {
			return
		}
		cmd.done <- errStopped
	}
}

func (c *Controller) execute(ctx context.Context, cmd command) {
	err := cmd.fn(ctx)
	if err != nil && !IsCommandError(err) {
		slog.Error("command failed", "command", cmd.name, "mode", c.mode, "error", err)
	}
	c.publish()
	cmd.done <- err
}

// submit enqueues fn and waits for it to run. The command still runs if
// ctx ends first; only the wait is abandoned.
func (c *Controller) submit(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	cmd := command{name: name, fn: fn, done: make(chan error, 1)}
	if !c.queue.Enqueue(cmd) {
		return errStopped
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tick re-evaluates health and publishes. The fold state is left alone;
// publish projects a running clock to now.
func (c *Controller) tick(ctx context.Context) {
	if c.health != nil {
		c.report = c.health.Check(ctx)
	}
	c.publish()
}

// Tick runs one tick on the loop and waits for it.
func (c *Controller) Tick(ctx context.Context) error {
	return c.submit(ctx, "tick", func(ctx context.Context) error {
		c.tick(ctx)
		return nil
	})
}

func (c *Controller) now() int64 {
	return c.clock.Now().Unix()
}

// gameID is the game id stamped on new events: empty in clock mode.
func (c *Controller) gameID() string {
	if c.mode == ModeClock {
		return ""
	}
	return c.mode
}

// load replays the log for mode and makes it current. A mode without any
// events is seeded with a CLOCK_SET of the period length.
func (c *Controller) load(ctx context.Context, mode string) error {
	gameID := mode
	if mode == ModeClock {
		gameID = ""
	}
	events, err := c.store.List(ctx, store.ForGame(gameID))
	if err != nil {
		return err
	}
	last, err := c.store.LastEventID(ctx)
	if err != nil {
		return err
	}

	c.mode = mode
	c.state = Replay(events)
	c.lastEventID = last

	if len(events) == 0 {
		if err := c.appendEvent(ctx, TypeClockSet, payload.New(payload.P("seconds", payload.Int(c.periodSeconds)))); err != nil {
			return err
		}
		slog.Info("mode seeded", "mode", mode, "seconds", c.periodSeconds)
	}

	slog.Info("mode loaded",
		"mode", mode,
		"events", len(events),
		"seconds", Project(c.state, c.now()).SecondsRemaining,
		"running", c.state.Running,
		"home_score", c.state.HomeScore,
		"away_score", c.state.AwayScore,
	)
	return nil
}

// appendEvent durably appends, then folds the stored event into state.
func (c *Controller) appendEvent(ctx context.Context, eventType string, p payload.Object) error {
	ev, err := c.store.Append(ctx, eventType, c.gameID(), p)
	if err != nil {
		return fmt.Errorf("append %s: %w", eventType, err)
	}
	next, err := Apply(c.state, ev)
	var w *Warning
	if errors.As(err, &w) {
		slog.Warn("live event ignored by fold", "event_id", w.EventID, "type", w.Type, "reason", w.Reason)
	}
	c.state = next
	c.lastEventID = ev.ID

	slog.Debug("event appended",
		"event_id", ev.ID,
		"type", ev.Type,
		"game_id", ev.GameID,
	)
	return nil
}

func (c *Controller) requireGame(action string) error {
	if c.mode == ModeClock {
		return newCommandError(ErrCodeClockMode, "cannot %s in clock mode", action)
	}
	return nil
}

func requireTeam(t Team) error {
	if !t.Valid() {
		return newCommandError(ErrCodeInvalidTeam, "invalid team %q", t)
	}
	return nil
}

// Start starts the clock. Starting a running clock is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	return c.submit(ctx, "start", func(ctx context.Context) error {
		if c.state.Running {
			return nil
		}
		return c.appendEvent(ctx, TypeGameStarted, payload.Empty())
	})
}

// Pause stops the clock. Pausing a stopped clock is a no-op.
func (c *Controller) Pause(ctx context.Context) error {
	return c.submit(ctx, "pause", func(ctx context.Context) error {
		if !c.state.Running {
			return nil
		}
		return c.appendEvent(ctx, TypeGamePaused, payload.Empty())
	})
}

// SetClock sets the remaining seconds.
func (c *Controller) SetClock(ctx context.Context, seconds int64) error {
	if seconds < 0 {
		return newCommandError(ErrCodeInvalidArgument, "seconds must be >= 0, got %d", seconds)
	}
	return c.submit(ctx, "set_time", func(ctx context.Context) error {
		return c.appendEvent(ctx, TypeClockSet, payload.New(payload.P("seconds", payload.Int(seconds))))
	})
}

// GoalRequest describes a goal to record. Player ids are optional.
type GoalRequest struct {
	Team      Team
	ScorerID  string
	Assist1ID string
	Assist2ID string
}

// AddGoal records a goal stamped with the current clock reading.
func (c *Controller) AddGoal(ctx context.Context, req GoalRequest) (Goal, error) {
	var goal Goal
	err := c.submit(ctx, "add_goal", func(ctx context.Context) error {
		if err := c.requireGame("add goal"); err != nil {
			return err
		}
		if err := requireTeam(req.Team); err != nil {
			return err
		}

		id := c.ids.Generate()
		clock := FormatClock(Project(c.state, c.now()).SecondsRemaining)
		p := payload.New(
			payload.P("value", payload.Int(1)),
			payload.P("goal_id", payload.String(id)),
			payload.P("time", payload.String(clock)),
			payload.P("scorer_id", payload.OptString(req.ScorerID)),
			payload.P("assist1_id", payload.OptString(req.Assist1ID)),
			payload.P("assist2_id", payload.OptString(req.Assist2ID)),
		)
		if err := c.appendEvent(ctx, req.Team.GoalType(), p); err != nil {
			return err
		}
		goal, _ = c.state.FindGoal(id)
		slog.Info("goal recorded", "goal_id", id, "team", req.Team, "time", clock)
		return nil
	})
	return goal, err
}

// CancelGoal cancels a previously recorded goal by id.
func (c *Controller) CancelGoal(ctx context.Context, goalID string) (Goal, error) {
	var goal Goal
	err := c.submit(ctx, "cancel_goal", func(ctx context.Context) error {
		if err := c.requireGame("cancel goal"); err != nil {
			return err
		}
		original, ok := c.state.FindGoal(goalID)
		if !ok {
			return newCommandError(ErrCodeGoalNotFound, "goal %q not found", goalID)
		}
		if original.Cancelled {
			return newCommandError(ErrCodeGoalCancelled, "goal %q already cancelled", goalID)
		}

		p := payload.New(
			payload.P("value", payload.Int(-1)),
			payload.P("goal_id", payload.String(goalID)),
			payload.P("time", payload.String(original.Time)),
			payload.P("scorer_id", payload.OptString(original.ScorerID)),
			payload.P("assist1_id", payload.OptString(original.Assist1ID)),
			payload.P("assist2_id", payload.OptString(original.Assist2ID)),
		)
		if err := c.appendEvent(ctx, original.Team.GoalType(), p); err != nil {
			return err
		}
		goal, _ = c.state.FindGoal(goalID)
		slog.Info("goal cancelled", "goal_id", goalID, "team", original.Team)
		return nil
	})
	return goal, err
}

// AddShot records a shot on goal for team.
func (c *Controller) AddShot(ctx context.Context, team Team) error {
	return c.submit(ctx, "add_shot", func(ctx context.Context) error {
		if err := c.requireGame("add shot"); err != nil {
			return err
		}
		if err := requireTeam(team); err != nil {
			return err
		}
		return c.appendEvent(ctx, team.ShotType(), payload.Empty())
	})
}

// InitRoster replaces a team's roster. Each player object needs a
// player_id and a status; players with status "active" are dressed.
func (c *Controller) InitRoster(ctx context.Context, team Team, players []payload.Object) error {
	arr := make(payload.Array, 0, len(players))
	for _, p := range players {
		if playerIDOf(p) == "" {
			return newCommandError(ErrCodeInvalidArgument, "roster entry without player_id")
		}
		arr = append(arr, p.Clone())
	}
	return c.submit(ctx, "roster_init", func(ctx context.Context) error {
		if err := c.requireGame("initialize roster"); err != nil {
			return err
		}
		if err := requireTeam(team); err != nil {
			return err
		}
		return c.appendEvent(ctx, TypeRosterInitialized, payload.New(
			payload.P("team", payload.String(team)),
			payload.P("players", arr),
		))
	})
}

// ScratchPlayer removes a player from the active roster.
func (c *Controller) ScratchPlayer(ctx context.Context, team Team, playerID string) error {
	return c.rosterChange(ctx, "roster_scratch", TypeRosterPlayerScratched, team, playerID)
}

// ActivatePlayer adds a player to the active roster.
func (c *Controller) ActivatePlayer(ctx context.Context, team Team, playerID string) error {
	return c.rosterChange(ctx, "roster_activate", TypeRosterPlayerActivated, team, playerID)
}

func (c *Controller) rosterChange(ctx context.Context, name, eventType string, team Team, playerID string) error {
	if strings.TrimSpace(playerID) == "" {
		return newCommandError(ErrCodeInvalidArgument, "player_id is required")
	}
	return c.submit(ctx, name, func(ctx context.Context) error {
		if err := c.requireGame("change roster"); err != nil {
			return err
		}
		if err := requireTeam(team); err != nil {
			return err
		}
		return c.appendEvent(ctx, eventType, payload.New(
			payload.P("team", payload.String(team)),
			payload.P("player_id", payload.String(playerID)),
		))
	})
}

// SelectMode switches between clock mode and a game. A running game is
// paused before switching away from it. The new mode's state is replayed
// from the log.
func (c *Controller) SelectMode(ctx context.Context, mode string) error {
	mode = strings.TrimSpace(mode)
	if mode == "" {
		mode = ModeClock
	}
	return c.submit(ctx, "select_mode", func(ctx context.Context) error {
		if mode == c.mode {
			return nil
		}
		if c.mode != ModeClock && c.state.Running {
			slog.Info("auto-pausing game before switching", "game_id", c.mode, "next", mode)
			if err := c.appendEvent(ctx, TypeGamePaused, payload.Empty()); err != nil {
				return err
			}
		}
		return c.load(ctx, mode)
	})
}

// Current returns the most recently published snapshot. Safe from any
// goroutine.
func (c *Controller) Current() Snapshot {
	if s := c.current.Load(); s != nil {
		return *s
	}
	return Snapshot{Mode: ModeClock, PusherStatus: health.Unknown}
}

func (c *Controller) publish() {
	now := c.now()
	snap := newSnapshot(c.mode, Project(c.state, now), c.report, c.lastEventID, now)
	c.current.Store(&snap)
	for _, o := range c.observers {
		o.Observe(snap)
	}
}

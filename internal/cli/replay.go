package cli

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/scoreclock/internal/engine"
	"github.com/roach88/scoreclock/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	GameID   string // empty selects clock mode
	At       int64  // unix seconds; 0 means now
	Verify   bool
}

// ReplayResult is the replayed state of one game.
type ReplayResult struct {
	GameID        string           `json:"game_id"`
	At            int64            `json:"at"`
	Events        int              `json:"events"`
	Clock         string           `json:"clock"`
	State         engine.GameState `json:"state"`
	Warnings      []engine.Warning `json:"warnings"`
	Verified      bool             `json:"verified,omitempty"`
	Deterministic bool             `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild game state from the event log",
		Long: `Rebuild a game's state from the device event log, as of now or any
earlier instant.

With --verify the log is folded three ways (two full replays and one
event-at-a-time fold) and the results must agree.

Exit codes:
  0 - State rebuilt (and verified, with --verify)
  1 - Verification found a divergence
  2 - Command error (database not found, etc.)

Examples:
  scoreclock replay --db ./rink.db --game g-2024-11-02
  scoreclock replay --db ./rink.db --game g-2024-11-02 --at 1730560000
  scoreclock replay --db ./rink.db --verify --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the device SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.GameID, "game", "", "game id (default: clock mode)")
	cmd.Flags().Int64Var(&opts.At, "at", 0, "unix time to replay to (default: now)")
	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "check that independent folds agree")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	events, err := st.List(ctx, store.ForGame(opts.GameID))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	f.VerboseLog("replay: %d events for %q in %s", len(events), opts.GameID, opts.Database)

	at := opts.At
	if at == 0 {
		at = time.Now().Unix()
	}

	result := replayEvents(events, at)
	result.GameID = opts.GameID
	if opts.Verify {
		result.Verified = true
		result.Deterministic = verifyFold(events, at)
	}

	if opts.Format == "json" {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		printReplay(cmd, result, opts.Verbose)
	}

	if result.Verified && !result.Deterministic {
		return NewExitError(ExitFailure, "replay diverged")
	}
	return nil
}

func replayEvents(events []store.Event, at int64) ReplayResult {
	visible := make([]store.Event, 0, len(events))
	for _, ev := range events {
		if ev.CreatedAt <= at {
			visible = append(visible, ev)
		}
	}
	state, warnings := engine.ReplayWithWarnings(visible)
	state = engine.Project(state, at)
	return ReplayResult{
		At:            at,
		Events:        len(visible),
		Clock:         engine.FormatClock(state.SecondsRemaining),
		State:         state,
		Warnings:      warnings,
		Deterministic: true,
	}
}

// verifyFold compares two full replays and an incremental fold in reverse
// input order. All three must produce the same state.
func verifyFold(events []store.Event, at int64) bool {
	first := engine.StateAt(events, at)
	second := engine.StateAt(events, at)

	reversed := make([]store.Event, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].CreatedAt <= at {
			reversed = append(reversed, events[i])
		}
	}
	engine.SortEvents(reversed)
	step := engine.NewGameState()
	for _, ev := range reversed {
		step, _ = engine.Apply(step, ev)
	}
	step = engine.Project(step, at)

	return reflect.DeepEqual(first, second) && reflect.DeepEqual(first, step)
}

func printReplay(cmd *cobra.Command, r ReplayResult, verbose bool) {
	w := cmd.OutOrStdout()
	game := r.GameID
	if game == "" {
		game = "(clock mode)"
	}
	s := r.State
	fmt.Fprintf(w, "Game:    %s\n", game)
	fmt.Fprintf(w, "At:      %s (%d events)\n", time.Unix(r.At, 0).UTC().Format(time.RFC3339), r.Events)
	fmt.Fprintf(w, "Clock:   %s running=%t\n", r.Clock, s.Running)
	fmt.Fprintf(w, "Score:   home %d - away %d\n", s.HomeScore, s.AwayScore)
	fmt.Fprintf(w, "Shots:   home %d - away %d\n", s.HomeShots, s.AwayShots)
	for _, g := range s.Goals {
		status := ""
		if g.Cancelled {
			status = " (cancelled)"
		}
		fmt.Fprintf(w, "Goal:    %s %s at %s%s\n", g.ID, g.Team, g.Time, status)
	}
	if verbose || len(r.Warnings) > 0 {
		fmt.Fprintf(w, "Warnings: %d\n", len(r.Warnings))
		for _, wn := range r.Warnings {
			fmt.Fprintf(w, "  event %d (%s): %s\n", wn.EventID, wn.Type, wn.Reason)
		}
	}
	if r.Verified {
		if r.Deterministic {
			fmt.Fprintln(w, "✓ Replay is deterministic")
		} else {
			fmt.Fprintln(w, "✗ Replay diverged")
		}
	}
}

package cli

import (
	"context"
	"fmt"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/scoreclock/internal/payload"
	"github.com/roach88/scoreclock/internal/store"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Database  string
	GameID    string
	ClockMode bool
	SinceID   int64
	Limit     int
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List stored events",
		Long: `List events from the device log in replay order.

Examples:
  scoreclock events --db ./rink.db
  scoreclock events --db ./rink.db --game g-2024-11-02 --since 120
  scoreclock events --db ./rink.db --clock-mode --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the device SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.GameID, "game", "", "only this game's events")
	cmd.Flags().BoolVar(&opts.ClockMode, "clock-mode", false, "only clock-mode events")
	cmd.Flags().Int64Var(&opts.SinceID, "since", 0, "only events with id greater than this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events")
	cmd.MarkFlagsMutuallyExclusive("game", "clock-mode")

	return cmd
}

func runEvents(ctx context.Context, opts *EventsOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	lo := store.ListOptions{SinceID: opts.SinceID, Limit: opts.Limit}
	switch {
	case opts.ClockMode:
		lo = store.ForGame("")
		lo.SinceID, lo.Limit = opts.SinceID, opts.Limit
	case opts.GameID != "":
		lo = store.ForGame(opts.GameID)
		lo.SinceID, lo.Limit = opts.SinceID, opts.Limit
	}

	events, err := st.List(ctx, lo)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list events", err)
	}

	if opts.Format == "json" {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return f.Success(events)
	}

	w := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tGAME\tTYPE\tPAYLOAD")
	for _, ev := range events {
		game := ev.GameID
		if game == "" {
			game = "-"
		}
		body, err := payload.MarshalCanonical(ev.Payload)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to render payload", err)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", ev.ID,
			time.Unix(ev.CreatedAt, 0).UTC().Format(time.RFC3339), game, ev.Type, body)
	}
	return tw.Flush()
}

// DeliveriesOptions holds flags for the deliveries command.
type DeliveriesOptions struct {
	*RootOptions
	Database     string
	Destinations []string
}

// NewDeliveriesCommand creates the deliveries command.
func NewDeliveriesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeliveriesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deliveries",
		Short: "Show delivery backlog per destination",
		Long: `Show delivered, failed and untried counts per destination.

Without --dest, every configured destination and every destination with
delivery records is listed.

Exit codes:
  0 - Nothing left to deliver
  1 - At least one destination has undelivered events
  2 - Command error

Examples:
  scoreclock deliveries --db ./rink.db
  scoreclock deliveries --db ./rink.db --dest cloud --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeliveries(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the device SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringSliceVar(&opts.Destinations, "dest", nil, "destination name (repeatable)")

	return cmd
}

func runDeliveries(ctx context.Context, opts *DeliveriesOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	names := opts.Destinations
	if len(names) == 0 {
		known, err := st.Destinations(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list destinations", err)
		}
		names = known
		if opts.Config != nil {
			for _, d := range opts.Config.Device.Destinations {
				names = append(names, d.Name)
			}
		}
		slices.Sort(names)
		names = slices.Compact(names)
	}

	stats := make([]store.DeliveryStats, 0, len(names))
	backlog := false
	for _, name := range names {
		s, err := st.DeliveryStats(ctx, name)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read delivery stats", err)
		}
		stats = append(stats, s)
		backlog = backlog || s.Undelivered() > 0
	}

	if opts.Format == "json" {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		if err := f.Success(stats); err != nil {
			return err
		}
	} else {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DESTINATION\tTOTAL\tDELIVERED\tFAILED\tUNTRIED")
		for _, s := range stats {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", s.Destination, s.Total, s.Delivered, s.Failed, s.Untried)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if backlog {
		return NewExitError(ExitFailure, "undelivered events remain")
	}
	return nil
}

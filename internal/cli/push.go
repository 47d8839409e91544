package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/scoreclock/internal/pusher"
	"github.com/roach88/scoreclock/internal/store"
)

// PushOptions holds flags for the push command.
type PushOptions struct {
	*RootOptions
	Destination string
	SessionID   string
	Once        bool
}

// NewPushCommand creates the push command.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PushOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Deliver stored events to one destination",
		Long: `Run the delivery loop for one configured destination until interrupted.

This is the child process "scoreclock device --isolate=process" starts, and
can also be run by hand to drain a backlog.

Examples:
  scoreclock push --db ./rink.db --dest cloud --cloud-url https://scores.example.com
  scoreclock push --db ./rink.db --dest backup --once`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPush(ctx, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Destination, "dest", "", "destination name from config (required)")
	_ = cmd.MarkFlagRequired("dest")
	cmd.Flags().StringVar(&opts.SessionID, "session-id", "", "session id stamped on cloud submissions")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "run one delivery pass and exit")
	cmd.Flags().String("db", "", "path to the device SQLite database")
	cmd.Flags().String("device-id", "", "device id")
	cmd.Flags().String("cloud-url", "", "aggregator base URL")
	bindConfig(cmd.Flags(), "db", "device.db_path")
	bindConfig(cmd.Flags(), "device-id", "device.device_id")
	bindConfig(cmd.Flags(), "cloud-url", "device.cloud_url")

	return cmd
}

func runPush(ctx context.Context, opts *PushOptions, cmd *cobra.Command) error {
	cfg := opts.Config.Device
	d, ok := cfg.Destination(opts.Destination)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown destination %q", opts.Destination))
	}

	deviceID, err := resolveDeviceID(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve device id", err)
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = "push-" + deviceID
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	dest, err := openDestination(cfg, d, identity{deviceID: deviceID, sessionID: sessionID})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open destination", err)
	}
	defer closeDestinations([]pusher.Destination{dest})

	p := pusher.New(st, dest,
		pusher.WithPollInterval(cfg.PollInterval),
		pusher.WithBatchSize(cfg.BatchSize),
	)

	if opts.Once {
		res, err := p.RunOnce(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "delivery pass failed", err)
		}
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return f.Success(res)
	}

	slog.Info("push: running", "destination", d.Name, "kind", d.Kind, "pid", os.Getpid())
	if err := p.Run(ctx); err != nil && ctx.Err() == nil {
		return WrapExitError(ExitFailure, "delivery loop failed", err)
	}
	slog.Info("push: stopped", "destination", d.Name)
	return nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/scoreclock/internal/config"
	"github.com/roach88/scoreclock/internal/device"
	"github.com/roach88/scoreclock/internal/engine"
	"github.com/roach88/scoreclock/internal/health"
	"github.com/roach88/scoreclock/internal/metrics"
	"github.com/roach88/scoreclock/internal/protocol"
	"github.com/roach88/scoreclock/internal/pusher"
	"github.com/roach88/scoreclock/internal/schema"
	"github.com/roach88/scoreclock/internal/server"
	"github.com/roach88/scoreclock/internal/store"
)

// shutdownTimeout bounds HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// NewDeviceCommand creates the device command.
func NewDeviceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Run the scoreboard controller",
		Long: `Run the scoreboard controller: the event store, the 1 Hz control loop,
one delivery worker per destination, the heartbeat sender and the local
HTTP/WebSocket API.

Delivery workers run as goroutines by default. With --isolate=process each
worker is a child "scoreclock push" process, so a crashing destination
cannot take the clock down with it.

Examples:
  scoreclock device --db ./rink.db --cloud-url https://scores.example.com
  scoreclock device --config /etc/scoreclock.yaml --isolate process`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDevice(ctx, rootOpts)
		},
	}

	cmd.Flags().String("db", "", "path to the device SQLite database")
	cmd.Flags().String("listen", "", "HTTP listen address")
	cmd.Flags().String("cloud-url", "", "aggregator base URL")
	cmd.Flags().String("device-id", "", "device id (default: generated and persisted)")
	cmd.Flags().String("isolate", "", "delivery worker isolation (goroutine|process)")
	bindConfig(cmd.Flags(), "db", "device.db_path")
	bindConfig(cmd.Flags(), "listen", "device.listen")
	bindConfig(cmd.Flags(), "cloud-url", "device.cloud_url")
	bindConfig(cmd.Flags(), "device-id", "device.device_id")
	bindConfig(cmd.Flags(), "isolate", "device.isolation")

	return cmd
}

func runDevice(ctx context.Context, rootOpts *RootOptions) error {
	cfg := rootOpts.Config.Device

	deviceID, err := resolveDeviceID(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve device id", err)
	}
	sessionID := engine.NewSessionID()
	slog.Info("device: starting", "device_id", deviceID, "session_id", sessionID, "db", cfg.DBPath)

	st, err := store.Open(cfg.DBPath, store.WithValidator(schema.MustNew()))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	id := identity{deviceID: deviceID, sessionID: sessionID}
	workers, dests, err := startWorkers(ctx, rootOpts, st, id)
	defer closeDestinations(dests)
	if err != nil {
		stopWorkers(workers, cfg.StopTimeout)
		return WrapExitError(ExitCommandError, "failed to start delivery workers", err)
	}

	monitors := make(health.Set, 0, len(workers))
	for _, w := range workers {
		monitors = append(monitors, health.NewMonitor(w.Name(), w, st))
	}

	var ctl *engine.Controller
	hub := server.NewStateHub(func() engine.Snapshot { return ctl.Current() })
	ctl = engine.NewController(st,
		engine.WithHealth(monitors),
		engine.WithTickInterval(cfg.TickInterval),
		engine.WithPeriodSeconds(cfg.PeriodSeconds),
		engine.WithObserver(metrics.SnapshotObserver{}),
		engine.WithObserver(server.StateObserver(hub)),
	)

	errc := make(chan error, 3)
	go func() { errc <- ctl.Run(ctx) }()

	if cfg.CloudURL != "" {
		hb := device.NewHeartbeater(protocol.NewClient(cfg.CloudURL, cfg.RequestTimeout), ctl, deviceID,
			device.WithInterval(cfg.HeartbeatInterval),
			device.WithAppVersion(cfg.AppVersion),
		)
		go hb.Run(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.NewDeviceServer(ctl, hub).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("device: listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("device: shutting down")
	case runErr = <-errc:
		if ctx.Err() == nil {
			slog.Error("device: stopped unexpectedly", "error", runErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("device: http shutdown", "error", err)
	}
	hub.Close()
	ctl.Stop()
	stopWorkers(workers, cfg.StopTimeout)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return WrapExitError(ExitFailure, "device stopped", runErr)
	}
	return nil
}

func resolveDeviceID(cfg config.Device) (string, error) {
	if cfg.DeviceID != "" {
		return cfg.DeviceID, nil
	}
	return device.LoadOrCreateID(cfg.DeviceIDPath)
}

// startWorkers starts one delivery worker per destination. Destinations
// opened in this process are returned for closing; with process isolation
// the children own their connections.
func startWorkers(ctx context.Context, rootOpts *RootOptions, st *store.Store, id identity) ([]pusher.Runner, []pusher.Destination, error) {
	cfg := rootOpts.Config.Device
	var workers []pusher.Runner
	var dests []pusher.Destination

	for _, d := range cfg.Destinations {
		var w pusher.Runner
		if cfg.Isolation == config.IsolateProcess {
			pw, err := processWorker(rootOpts, d.Name, id)
			if err != nil {
				return workers, dests, err
			}
			w = pw
		} else {
			dest, err := openDestination(cfg, d, id)
			if err != nil {
				return workers, dests, err
			}
			dests = append(dests, dest)
			w = pusher.NewPusherWorker(pusher.New(st, dest,
				pusher.WithPollInterval(cfg.PollInterval),
				pusher.WithBatchSize(cfg.BatchSize),
			))
		}

		if err := w.Start(ctx); err != nil {
			return workers, dests, fmt.Errorf("start worker %s: %w", d.Name, err)
		}
		slog.Info("device: delivery worker started", "destination", d.Name, "kind", d.Kind, "isolation", cfg.Isolation)
		workers = append(workers, w)
	}
	return workers, dests, nil
}

// processWorker builds a child "scoreclock push" for one destination.
// Child logs are JSON on stderr and forwarded through this process's sink.
func processWorker(rootOpts *RootOptions, name string, id identity) (*pusher.ProcessWorker, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	cfg := rootOpts.Config.Device
	args := []string{
		"push",
		"--dest", name,
		"--db", cfg.DBPath,
		"--device-id", id.deviceID,
		"--session-id", id.sessionID,
		"--log-format", rootOpts.Config.Logging.Format,
	}
	if rootOpts.ConfigPath != "" {
		args = append(args, "--config", rootOpts.ConfigPath)
	}
	if cfg.CloudURL != "" {
		args = append(args, "--cloud-url", cfg.CloudURL)
	}
	if rootOpts.Verbose {
		args = append(args, "--verbose")
	}
	return pusher.NewProcessWorker(name, exe, args, rootOpts.LogWriter()), nil
}

func stopWorkers(workers []pusher.Runner, timeout time.Duration) {
	for _, w := range workers {
		if err := w.Stop(timeout); err != nil {
			slog.Warn("device: worker stop", "destination", w.Name(), "error", err)
		}
	}
}

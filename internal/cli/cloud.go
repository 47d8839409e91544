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

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/roach88/scoreclock/internal/config"
	"github.com/roach88/scoreclock/internal/ingest"
	"github.com/roach88/scoreclock/internal/liveness"
	"github.com/roach88/scoreclock/internal/schema"
	"github.com/roach88/scoreclock/internal/server"
)

// NewCloudCommand creates the cloud command.
func NewCloudCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cloud",
		Short: "Run the aggregator",
		Long: `Run the aggregator: event ingestion, device heartbeats and the admin API.

Storage is SQLite by default; set --db-driver postgres and a DSN for a shared
database. When cloud.redis.addr is set, latest heartbeats are mirrored to
Redis with a TTL.

Examples:
  scoreclock cloud --listen :8080 --dsn ./cloud.db
  scoreclock cloud --db-driver postgres --dsn postgres://scores@db/scores`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCloud(ctx, rootOpts.Config.Cloud)
		},
	}

	cmd.Flags().String("listen", "", "HTTP listen address")
	cmd.Flags().String("db-driver", "", "storage driver (sqlite|postgres)")
	cmd.Flags().String("dsn", "", "SQLite path or Postgres connection string")
	cmd.Flags().Duration("missing-threshold", 0, "default silence before a device counts as missing")
	bindConfig(cmd.Flags(), "listen", "cloud.listen")
	bindConfig(cmd.Flags(), "db-driver", "cloud.db_driver")
	bindConfig(cmd.Flags(), "dsn", "cloud.dsn")
	bindConfig(cmd.Flags(), "missing-threshold", "cloud.missing_threshold")

	return cmd
}

// backend is the aggregator's storage pair.
type backend struct {
	repo      ingest.Repository
	heartbeat liveness.Store
}

func openBackend(ctx context.Context, cfg config.Cloud) (backend, error) {
	switch cfg.DBDriver {
	case "postgres":
		repo, err := ingest.NewPostgresRepository(ctx, cfg.DSN)
		if err != nil {
			return backend{}, err
		}
		hb, err := liveness.NewPostgresStore(ctx, repo.Pool())
		if err != nil {
			repo.Close()
			return backend{}, err
		}
		return backend{repo: repo, heartbeat: hb}, nil

	case "", "sqlite":
		repo, err := ingest.OpenSQLite(cfg.DSN)
		if err != nil {
			return backend{}, err
		}
		hb, err := liveness.NewSQLiteStore(repo.DB())
		if err != nil {
			repo.Close()
			return backend{}, err
		}
		return backend{repo: repo, heartbeat: hb}, nil
	}
	return backend{}, fmt.Errorf("unknown db driver %q", cfg.DBDriver)
}

func runCloud(ctx context.Context, cfg config.Cloud) error {
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open storage", err)
	}
	defer b.repo.Close()
	slog.Info("cloud: storage ready", "driver", cfg.DBDriver)

	var regOpts []liveness.Option
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		mirror := liveness.NewRedisMirror(client, cfg.Redis.Prefix, cfg.Redis.TTL)
		defer mirror.Close()
		regOpts = append(regOpts, liveness.WithMirror(mirror))
		slog.Info("cloud: mirroring heartbeats to redis", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
	}
	reg := liveness.NewRegistry(b.heartbeat, regOpts...)

	hub := server.NewHub(nil)
	defer hub.Close()
	svc := ingest.NewService(b.repo,
		ingest.WithValidator(schema.MustNew()),
		ingest.WithObserver(server.GameUpdateObserver(hub)),
	)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.NewCloudServer(svc, reg, hub, server.WithMissingThreshold(cfg.MissingThreshold)).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("cloud: listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("cloud: shutting down")
	case err := <-errc:
		return WrapExitError(ExitFailure, "http server failed", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("cloud: http shutdown", "error", err)
	}
	return nil
}

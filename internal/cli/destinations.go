package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/scoreclock/internal/config"
	"github.com/roach88/scoreclock/internal/protocol"
	"github.com/roach88/scoreclock/internal/pusher"
)

// identity is what every destination stamps on outgoing events.
type identity struct {
	deviceID  string
	sessionID string
}

// openDestination connects one configured destination.
func openDestination(cfg config.Device, d config.Destination, id identity) (pusher.Destination, error) {
	switch d.Kind {
	case config.KindCloud:
		if cfg.CloudURL == "" {
			return nil, fmt.Errorf("destination %s: device.cloud_url is not set", d.Name)
		}
		client := protocol.NewClient(cfg.CloudURL, cfg.RequestTimeout)
		return pusher.NewCloudDestination(d.Name, client, id.deviceID, id.sessionID), nil

	case config.KindFile:
		return pusher.NewFileDestination(d.Name, d.Path), nil

	case config.KindRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return pusher.NewRedisStreamDestination(d.Name, client, d.Stream, id.deviceID, d.MaxLen), nil

	case config.KindNATS:
		conn, err := pusher.DialNATS(cfg.NATS.URL, cfg.NATS.ClientName)
		if err != nil {
			return nil, fmt.Errorf("destination %s: %w", d.Name, err)
		}
		return pusher.NewNATSDestination(d.Name, conn, d.Subject, id.deviceID), nil
	}
	return nil, fmt.Errorf("destination %s: unknown kind %q", d.Name, d.Kind)
}

// closeDestinations releases connections held by destinations.
func closeDestinations(dests []pusher.Destination) error {
	var errs []error
	for _, d := range dests {
		c, ok := d.(pusher.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			slog.Warn("destination: close failed", "destination", d.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

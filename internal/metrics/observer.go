package metrics

import (
	"github.com/roach88/scoreclock/internal/engine"
	"github.com/roach88/scoreclock/internal/health"
)

var statuses = []health.Status{health.Unknown, health.Healthy, health.Pending, health.Dead}

// SnapshotObserver mirrors each published snapshot into gauges.
type SnapshotObserver struct{}

// Observe implements engine.Observer.
func (SnapshotObserver) Observe(s engine.Snapshot) {
	ClockSeconds.Set(float64(s.Seconds))
	if s.Running {
		ClockRunning.Set(1)
	} else {
		ClockRunning.Set(0)
	}
	for dest, current := range s.PusherStatuses {
		for _, st := range statuses {
			v := 0.0
			if st == current {
				v = 1
			}
			PusherStatus.WithLabelValues(dest, string(st)).Set(v)
		}
	}
}

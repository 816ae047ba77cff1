// ABOUTME: Replay location provider that plays a TOML route file on a timer
// ABOUTME: Used for development and for machines without a GPS daemon

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BurntSushi/toml"
)

// Route is a recorded sequence of points played back by the replay provider.
type Route struct {
	// Loop restarts the route from the top once exhausted. When false the
	// provider idles after the last point until cancelled.
	Loop   bool         `toml:"loop"`
	Points []RoutePoint `toml:"points"`
}

// RoutePoint is one position along a route.
type RoutePoint struct {
	Latitude         float64 `toml:"latitude"`
	Longitude        float64 `toml:"longitude"`
	Altitude         float64 `toml:"altitude"`
	Accuracy         float32 `toml:"accuracy"`
	AltitudeAccuracy float32 `toml:"altitude_accuracy"`
}

// LoadRoute parses a TOML route file.
func LoadRoute(path string) (*Route, error) {
	var route Route
	if _, err := toml.DecodeFile(path, &route); err != nil {
		return nil, fmt.Errorf("parsing route file: %w", err)
	}
	if len(route.Points) == 0 {
		return nil, fmt.Errorf("route file %s has no points", path)
	}
	return &route, nil
}

// Replay pushes the points of a route at a fixed interval, stamped with the
// current time as they are emitted.
type Replay struct {
	route    *Route
	interval time.Duration
	logger   *slog.Logger
}

// NewReplay creates a replay provider for the given route.
func NewReplay(route *Route, interval time.Duration) *Replay {
	return &Replay{
		route:    route,
		interval: interval,
		logger:   slog.Default().With("component", "replay"),
	}
}

// Run emits route points until ctx is cancelled.
func (r *Replay) Run(ctx context.Context, h Handler) error {
	r.logger.Info("replaying route", "points", len(r.route.Points), "interval", r.interval, "loop", r.route.Loop)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if i >= len(r.route.Points) {
			if !r.route.Loop {
				// Route exhausted; idle until cancelled.
				<-ctx.Done()
				return ctx.Err()
			}
			i = 0
		}

		p := r.route.Points[i]
		i++

		h(Report{
			Latitude:         p.Latitude,
			Longitude:        p.Longitude,
			Altitude:         p.Altitude,
			Accuracy:         p.Accuracy,
			AltitudeAccuracy: p.AltitudeAccuracy,
			Time:             time.Now(),
		})
	}
}

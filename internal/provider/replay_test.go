// ABOUTME: Tests for route loading and the replay provider
// ABOUTME: Covers TOML parsing, emission cadence, and cancellation

package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testRoute = `
loop = true

[[points]]
latitude = 45.5019
longitude = -73.5674
altitude = 36.0
accuracy = 5.0
altitude_accuracy = 2.0

[[points]]
latitude = 45.5021
longitude = -73.5668
altitude = 36.5
accuracy = 4.0
altitude_accuracy = 2.5
`

func writeRoute(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "route.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing route file: %v", err)
	}
	return path
}

func TestLoadRoute(t *testing.T) {
	route, err := LoadRoute(writeRoute(t, testRoute))
	if err != nil {
		t.Fatalf("LoadRoute() error = %v", err)
	}

	if !route.Loop {
		t.Error("Loop = false, want true")
	}
	if len(route.Points) != 2 {
		t.Fatalf("len(Points) = %d, want 2", len(route.Points))
	}
	if route.Points[0].Latitude != 45.5019 {
		t.Errorf("Points[0].Latitude = %v", route.Points[0].Latitude)
	}
	if route.Points[1].Accuracy != 4.0 {
		t.Errorf("Points[1].Accuracy = %v", route.Points[1].Accuracy)
	}
}

func TestLoadRouteRejectsEmpty(t *testing.T) {
	if _, err := LoadRoute(writeRoute(t, `loop = false`)); err == nil {
		t.Fatal("LoadRoute() succeeded on a route with no points")
	}
}

func TestReplayEmitsAndLoops(t *testing.T) {
	route, err := LoadRoute(writeRoute(t, testRoute))
	if err != nil {
		t.Fatalf("LoadRoute() error = %v", err)
	}

	reports := make(chan Report, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewReplay(route, time.Millisecond).Run(ctx, func(r Report) {
			select {
			case reports <- r:
			default:
			}
		})
	}()

	// Three reports from a two-point looping route proves the wrap-around.
	var got []Report
	deadline := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case r := <-reports:
			got = append(got, r)
		case <-deadline:
			t.Fatalf("timed out after %d reports", len(got))
		}
	}

	if got[0].Latitude != 45.5019 || got[1].Latitude != 45.5021 || got[2].Latitude != 45.5019 {
		t.Errorf("unexpected sequence: %v, %v, %v", got[0].Latitude, got[1].Latitude, got[2].Latitude)
	}
	if got[0].Time.IsZero() {
		t.Error("report time not stamped")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}

// ABOUTME: Tests for the SQLite settings store
// ABOUTME: Covers defaults, sentinel values, durability across reopen, and clears

package store

import (
	"context"
	"path/filepath"
	"testing"
)

func setupTestSettings(t *testing.T) (*Settings, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "settings.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestDeviceIDDefault(t *testing.T) {
	s, _ := setupTestSettings(t)
	ctx := context.Background()

	if got := s.DeviceID(ctx); got != NoDeviceSelected {
		t.Errorf("DeviceID on fresh store = %d, want %d", got, NoDeviceSelected)
	}
}

func TestDeviceIDRoundTrip(t *testing.T) {
	s, _ := setupTestSettings(t)
	ctx := context.Background()

	if err := s.SetDeviceID(ctx, 7); err != nil {
		t.Fatalf("SetDeviceID() error = %v", err)
	}
	if got := s.DeviceID(ctx); got != 7 {
		t.Errorf("DeviceID = %d, want 7", got)
	}

	// Overwrite
	if err := s.SetDeviceID(ctx, 12); err != nil {
		t.Fatalf("SetDeviceID() error = %v", err)
	}
	if got := s.DeviceID(ctx); got != 12 {
		t.Errorf("DeviceID after overwrite = %d, want 12", got)
	}

	if err := s.ClearDeviceID(ctx); err != nil {
		t.Fatalf("ClearDeviceID() error = %v", err)
	}
	if got := s.DeviceID(ctx); got != NoDeviceSelected {
		t.Errorf("DeviceID after clear = %d, want %d", got, NoDeviceSelected)
	}
}

func TestEndpointRoundTrip(t *testing.T) {
	s, _ := setupTestSettings(t)
	ctx := context.Background()

	if got := s.Endpoint(ctx); got != "" {
		t.Errorf("Endpoint on fresh store = %q, want empty", got)
	}

	if err := s.SetEndpoint(ctx, "http://192.168.1.10:3000"); err != nil {
		t.Fatalf("SetEndpoint() error = %v", err)
	}
	if got := s.Endpoint(ctx); got != "http://192.168.1.10:3000" {
		t.Errorf("Endpoint = %q", got)
	}
}

func TestTrackingEnabled(t *testing.T) {
	s, _ := setupTestSettings(t)
	ctx := context.Background()

	if s.TrackingEnabled(ctx) {
		t.Error("TrackingEnabled on fresh store = true, want false")
	}

	if err := s.SetTrackingEnabled(ctx, true); err != nil {
		t.Fatalf("SetTrackingEnabled() error = %v", err)
	}
	if !s.TrackingEnabled(ctx) {
		t.Error("TrackingEnabled = false, want true")
	}

	if err := s.ClearTrackingEnabled(ctx); err != nil {
		t.Fatalf("ClearTrackingEnabled() error = %v", err)
	}
	if s.TrackingEnabled(ctx) {
		t.Error("TrackingEnabled after clear = true, want false")
	}
}

func TestSurvivesReopen(t *testing.T) {
	s, path := setupTestSettings(t)
	ctx := context.Background()

	if err := s.SetDeviceID(ctx, 3); err != nil {
		t.Fatalf("SetDeviceID() error = %v", err)
	}
	if err := s.SetEndpoint(ctx, "http://onloc.local:3000"); err != nil {
		t.Fatalf("SetEndpoint() error = %v", err)
	}
	if err := s.SetTrackingEnabled(ctx, true); err != nil {
		t.Fatalf("SetTrackingEnabled() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	defer reopened.Close()

	if got := reopened.DeviceID(ctx); got != 3 {
		t.Errorf("DeviceID after reopen = %d, want 3", got)
	}
	if got := reopened.Endpoint(ctx); got != "http://onloc.local:3000" {
		t.Errorf("Endpoint after reopen = %q", got)
	}
	if !reopened.TrackingEnabled(ctx) {
		t.Error("TrackingEnabled after reopen = false, want true")
	}
}

func TestMalformedValuesFallBackToDefaults(t *testing.T) {
	s, _ := setupTestSettings(t)
	ctx := context.Background()

	// Corrupt the values underneath the typed accessors.
	if err := s.set(ctx, deviceIDKey, "not-a-number"); err != nil {
		t.Fatalf("set() error = %v", err)
	}
	if err := s.set(ctx, trackingKey, "maybe"); err != nil {
		t.Fatalf("set() error = %v", err)
	}

	if got := s.DeviceID(ctx); got != NoDeviceSelected {
		t.Errorf("DeviceID with malformed value = %d, want %d", got, NoDeviceSelected)
	}
	if s.TrackingEnabled(ctx) {
		t.Error("TrackingEnabled with malformed value = true, want false")
	}
}

// ABOUTME: SQLite-backed settings store for the non-secret session state
// ABOUTME: Holds the selected device id, server endpoint, and tracking flag

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"
)

// Setting keys. These are stable identifiers persisted on disk; renaming one
// orphans the value for every existing install, so they never change across
// releases.
const (
	endpointKey = "ip"
	deviceIDKey = "device_id"
	trackingKey = "location"
)

// NoDeviceSelected is the sentinel returned by DeviceID when no device has
// been bound to this agent.
const NoDeviceSelected = -1

// Settings persists the plain (non-secret) half of the session state. Values
// survive process death; every mutation is committed before the call returns.
// Secrets never go here — the encrypted vault holds those.
type Settings struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the settings database at the given path. Parent
// directories are created if needed and the schema is created on first use.
func Open(path string) (*Settings, error) {
	logger := slog.Default().With("component", "settings")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating settings directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening settings database: %w", err)
	}

	// WAL keeps readers (the callback path) from blocking writers (the
	// controller) and vice versa.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating settings schema: %w", err)
	}

	logger.Info("settings store opened", "path", path)
	return &Settings{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Settings) Close() error {
	return s.db.Close()
}

// DeviceID returns the selected device id, or NoDeviceSelected when none is
// set. Read failures are reported as "none selected" rather than raised; the
// caller treats a missing binding as "not ready", never as a fault.
func (s *Settings) DeviceID(ctx context.Context) int {
	raw, ok := s.get(ctx, deviceIDKey)
	if !ok {
		return NoDeviceSelected
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		s.logger.Warn("discarding malformed device id", "value", raw)
		return NoDeviceSelected
	}
	return id
}

// SetDeviceID binds the agent to the given device id.
func (s *Settings) SetDeviceID(ctx context.Context, id int) error {
	return s.set(ctx, deviceIDKey, strconv.Itoa(id))
}

// ClearDeviceID removes the device binding.
func (s *Settings) ClearDeviceID(ctx context.Context) error {
	return s.delete(ctx, deviceIDKey)
}

// Endpoint returns the configured server address, or "" when none is set.
func (s *Settings) Endpoint(ctx context.Context) string {
	raw, _ := s.get(ctx, endpointKey)
	return raw
}

// SetEndpoint stores the server address fixes are delivered to.
func (s *Settings) SetEndpoint(ctx context.Context, endpoint string) error {
	return s.set(ctx, endpointKey, endpoint)
}

// TrackingEnabled reports whether the user last asked for tracking to run.
// Defaults to false on a fresh install or unreadable value. Note this is the
// stored intent only; whether tracking can actually run is the session
// controller's call.
func (s *Settings) TrackingEnabled(ctx context.Context) bool {
	raw, ok := s.get(ctx, trackingKey)
	if !ok {
		return false
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		s.logger.Warn("discarding malformed tracking flag", "value", raw)
		return false
	}
	return enabled
}

// SetTrackingEnabled persists the tracking intent.
func (s *Settings) SetTrackingEnabled(ctx context.Context, enabled bool) error {
	return s.set(ctx, trackingKey, strconv.FormatBool(enabled))
}

// ClearTrackingEnabled removes the stored tracking intent, reverting to the
// default of false.
func (s *Settings) ClearTrackingEnabled(ctx context.Context) error {
	return s.delete(ctx, trackingKey)
}

func (s *Settings) get(ctx context.Context, key string) (string, bool) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		s.logger.Warn("settings read failed", "key", key, "error", err)
		return "", false
	}
	return value, true
}

func (s *Settings) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("writing setting %s: %w", key, err)
	}
	return nil
}

func (s *Settings) delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting setting %s: %w", key, err)
	}
	return nil
}

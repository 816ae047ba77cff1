// ABOUTME: Location permission checks gating the tracking session
// ABOUTME: Grants are re-read on every call because they change outside the agent

package permissions

import (
	"encoding/json"
	"log/slog"
	"os"
)

// Checker answers whether the agent is currently allowed to read locations.
// Implementations must answer from current truth on every call — grants are
// mutated outside the agent's control, and a cached answer drifts from it.
type Checker interface {
	FineLocation() bool
	BackgroundLocation() bool
}

// Grants is the on-disk layout of the grants file.
type Grants struct {
	FineLocation       bool `json:"fine_location"`
	BackgroundLocation bool `json:"background_location"`
}

// FileChecker reads grants from a JSON file on every call. The file is owned
// by the operator (or a provisioning tool), not by the agent; editing it
// while the agent runs is the supported way to grant or revoke access. A
// missing or unreadable file means nothing is granted.
type FileChecker struct {
	path   string
	logger *slog.Logger
}

// NewFileChecker creates a checker reading the grants file at path.
func NewFileChecker(path string) *FileChecker {
	return &FileChecker{
		path:   path,
		logger: slog.Default().With("component", "permissions"),
	}
}

// FineLocation reports whether precise location access is granted.
func (f *FileChecker) FineLocation() bool {
	return f.read().FineLocation
}

// BackgroundLocation reports whether tracking may run unattended.
func (f *FileChecker) BackgroundLocation() bool {
	return f.read().BackgroundLocation
}

func (f *FileChecker) read() Grants {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.logger.Warn("grants file unreadable, treating as ungranted", "error", err)
		}
		return Grants{}
	}

	var g Grants
	if err := json.Unmarshal(data, &g); err != nil {
		f.logger.Warn("grants file undecodable, treating as ungranted", "error", err)
		return Grants{}
	}
	return g
}

// Static is a fixed-answer checker for tests and for deployments where
// access is decided once at provisioning time.
type Static struct {
	Fine       bool
	Background bool
}

// FineLocation reports the configured fine-location grant.
func (s Static) FineLocation() bool { return s.Fine }

// BackgroundLocation reports the configured background grant.
func (s Static) BackgroundLocation() bool { return s.Background }

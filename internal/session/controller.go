// ABOUTME: Session state controller — the single authority for starting and stopping tracking
// ABOUTME: Preconditions are recomputed from live permission and store state on every call

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kebs/onloc-agent/internal/model"
	"github.com/kebs/onloc-agent/internal/permissions"
	"github.com/kebs/onloc-agent/internal/store"
	"github.com/kebs/onloc-agent/internal/vault"
)

// ErrPrecondition is returned by Start when tracking cannot begin: no device
// is selected or a required location permission is missing. It is a refusal,
// not a fault — the caller shows it to the user and nothing changes.
var ErrPrecondition = errors.New("tracking preconditions not met")

// Status is the derived display state of the session. It is never a raw
// boolean because the stored intent and the ability to run can diverge: a
// permission revoked while tracking leaves the flag set but the session
// unable to do its job.
type Status string

const (
	StatusStopped            Status = "stopped"
	StatusRunning            Status = "running"
	StatusNoDeviceSelected   Status = "no_device_selected"
	StatusPermissionsMissing Status = "permissions_missing"
)

// Runner is the long-lived background tracking process the controller
// starts and stops. Start is idempotent; Stop tears the process down and is
// a no-op when nothing runs.
type Runner interface {
	Start() error
	Stop()
}

// lastFixClearer is the slice of the bridge the controller needs on stop.
type lastFixClearer interface {
	ClearLastFix()
}

// logoutClient is the slice of the sync client used for server-side logout.
type logoutClient interface {
	Logout(ctx context.Context, endpoint, token string, userID int) error
}

// Controller owns all session state transitions. The state machine is just
// {Stopped, Running}: start (guarded), stop (unconditional), and logout
// (stop plus credential and device clearing). Nothing else mutates the
// tracking flag.
type Controller struct {
	mu       sync.Mutex
	settings *store.Settings
	vault    *vault.Vault
	perms    permissions.Checker
	runner   Runner
	lastFix  lastFixClearer
	client   logoutClient
	logger   *slog.Logger
}

// NewController wires the controller to its collaborators.
func NewController(settings *store.Settings, v *vault.Vault, perms permissions.Checker, runner Runner, lastFix lastFixClearer, client logoutClient) *Controller {
	return &Controller{
		settings: settings,
		vault:    v,
		perms:    perms,
		runner:   runner,
		lastFix:  lastFix,
		client:   client,
		logger:   slog.Default().With("component", "session"),
	}
}

// CanStart reports whether tracking could start right now: a device is
// selected and both location permissions are granted. It is a pure function
// of current store and permission state — nothing is cached, so a grant
// revoked in the outside world is reflected on the next call.
func (c *Controller) CanStart(ctx context.Context) bool {
	return c.startBlocker(ctx) == ""
}

// startBlocker returns a human-readable reason tracking cannot start, or ""
// when it can.
func (c *Controller) startBlocker(ctx context.Context) string {
	if c.settings.DeviceID(ctx) == store.NoDeviceSelected {
		return "no device selected"
	}
	if !c.perms.FineLocation() || !c.perms.BackgroundLocation() {
		return "required location permissions missing"
	}
	return ""
}

// Start persists the tracking intent and launches the background process.
// Calling Start on a running session is a no-op observable as success.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if reason := c.startBlocker(ctx); reason != "" {
		return fmt.Errorf("%w: %s", ErrPrecondition, reason)
	}

	// Persist the intent before touching the process, so a crash between
	// the two resumes tracking on the next boot rather than losing it.
	if err := c.settings.SetTrackingEnabled(ctx, true); err != nil {
		return fmt.Errorf("persisting tracking flag: %w", err)
	}
	if err := c.runner.Start(); err != nil {
		return fmt.Errorf("starting tracking process: %w", err)
	}

	c.logger.Info("tracking started", "device_id", c.settings.DeviceID(ctx))
	return nil
}

// Stop persists the stopped state, tears down the background process, and
// clears the displayed fix. Unconditional and idempotent: stopping a
// never-started session is success. A fix delivery already in flight may
// complete on the network, but it cannot resurrect any of this state.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked(ctx)
}

func (c *Controller) stopLocked(ctx context.Context) error {
	if err := c.settings.SetTrackingEnabled(ctx, false); err != nil {
		return fmt.Errorf("persisting tracking flag: %w", err)
	}
	c.runner.Stop()
	c.lastFix.ClearLastFix()

	c.logger.Info("tracking stopped")
	return nil
}

// Status derives the display state from the stored flag and the current
// preconditions. A missing permission overrides a missing device, and both
// override the stored flag — without mutating it: reading status never
// changes state.
func (c *Controller) Status(ctx context.Context) Status {
	status := StatusStopped
	if c.settings.TrackingEnabled(ctx) {
		status = StatusRunning
	}
	if c.settings.DeviceID(ctx) == store.NoDeviceSelected {
		status = StatusNoDeviceSelected
	}
	if !c.perms.FineLocation() || !c.perms.BackgroundLocation() {
		status = StatusPermissionsMissing
	}
	return status
}

// Logout ends the session entirely: tracking stops, the server is asked to
// invalidate the token, and the credential pair and device binding are
// cleared. The server call is best effort — local state is authoritative,
// and local clearing proceeds whether or not the server was reachable.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if err := c.stopLocked(ctx); err != nil {
		errs = append(errs, err)
	}

	if token, user, ok := c.vault.Get(); ok {
		if endpoint := c.settings.Endpoint(ctx); endpoint != "" {
			if err := c.client.Logout(ctx, endpoint, token, user.ID); err != nil {
				c.logger.Warn("server-side logout failed, clearing local session anyway", "error", err)
			}
		}
	}

	if err := c.vault.Clear(); err != nil {
		errs = append(errs, fmt.Errorf("clearing credentials: %w", err))
	}
	if err := c.settings.ClearDeviceID(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clearing device binding: %w", err))
	}

	c.logger.Info("logged out")
	return errors.Join(errs...)
}

// Resume re-derives the session after a process restart. A stored intent to
// track is honored when the preconditions still hold; an intent left behind
// with no device bound is stale (logout or a crashed device switch) and is
// cleared. Missing permissions do not clear the flag — status reports them
// until the user stops or the grants come back.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.settings.TrackingEnabled(ctx) {
		return nil
	}

	if c.settings.DeviceID(ctx) == store.NoDeviceSelected {
		c.logger.Warn("tracking was enabled with no device bound, disabling")
		return c.settings.SetTrackingEnabled(ctx, false)
	}

	if reason := c.startBlocker(ctx); reason != "" {
		c.logger.Warn("tracking enabled but cannot run", "reason", reason)
		return nil
	}

	c.logger.Info("resuming tracking session")
	if err := c.runner.Start(); err != nil {
		return fmt.Errorf("resuming tracking process: %w", err)
	}
	return nil
}

// User returns the authenticated user, if any, for display.
func (c *Controller) User() (*model.User, bool) {
	_, user, ok := c.vault.Get()
	return user, ok
}

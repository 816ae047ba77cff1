// ABOUTME: The background tracking process: provider pump plus delivery worker
// ABOUTME: Owns the goroutines a running session consists of

package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kebs/onloc-agent/internal/location"
	"github.com/kebs/onloc-agent/internal/provider"
)

// Tracker is the concrete Runner: while started, the location provider
// pushes reports into the bridge and the bridge's worker delivers them.
// Start and Stop are idempotent; double-starting does not duplicate the
// subscription.
type Tracker struct {
	mu       sync.Mutex
	provider provider.Provider
	bridge   *location.Bridge
	cancel   context.CancelFunc
	logger   *slog.Logger
}

// NewTracker creates a stopped tracker.
func NewTracker(p provider.Provider, b *location.Bridge) *Tracker {
	return &Tracker{
		provider: p,
		bridge:   b,
		logger:   slog.Default().With("component", "tracker"),
	}
}

// Start launches the provider subscription and the delivery worker. A
// no-op when already running.
func (t *Tracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	go t.bridge.Run(ctx)
	go func() {
		if err := t.provider.Run(ctx, t.bridge.OnReport); err != nil && ctx.Err() == nil {
			t.logger.Error("location provider stopped unexpectedly", "error", err)
		}
	}()

	t.logger.Info("tracking process started")
	return nil
}

// Stop cancels the provider subscription and the delivery worker. A no-op
// when not running.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel == nil {
		return
	}
	t.cancel()
	t.cancel = nil

	t.logger.Info("tracking process stopped")
}

// Running reports whether the tracking process is live.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

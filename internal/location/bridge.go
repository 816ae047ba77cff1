// ABOUTME: Bridges pushed location reports into authenticated network delivery
// ABOUTME: Session state is read per fix, never cached — it changes under our feet

package location

import (
	"context"
	"log/slog"

	"github.com/kebs/onloc-agent/internal/model"
	"github.com/kebs/onloc-agent/internal/provider"
	"github.com/kebs/onloc-agent/internal/store"
)

// settingsReader is the slice of the settings store the bridge needs.
type settingsReader interface {
	DeviceID(ctx context.Context) int
	Endpoint(ctx context.Context) string
}

// credentialSource is the slice of the vault the bridge needs.
type credentialSource interface {
	Get() (token string, user *model.User, ok bool)
}

// Poster delivers one fix to the server.
type Poster interface {
	PostLocation(ctx context.Context, endpoint, token string, fix model.Fix) error
}

// delivery carries everything a post needs, captured at the moment the fix
// was received. Credentials are deliberately NOT re-read at send time: the
// fix belongs to the session state that existed when it arrived.
type delivery struct {
	endpoint string
	token    string
	fix      model.Fix
}

// Bridge is the single registration point between a location provider and
// the sync path. Reports arrive on the provider's goroutine; delivery runs
// on the bridge's own worker so provider pushes never wait on the network.
// The hand-off channel holds one delivery and a newer fix displaces an
// undelivered older one — each received fix triggers at most one delivery
// attempt, and no fix is ever queued behind slow I/O.
type Bridge struct {
	settings   settingsReader
	creds      credentialSource
	poster     Poster
	latest     *Latest
	deliveries chan delivery
	logger     *slog.Logger
}

// NewBridge wires the bridge to its collaborators.
func NewBridge(settings settingsReader, creds credentialSource, poster Poster) *Bridge {
	return &Bridge{
		settings:   settings,
		creds:      creds,
		poster:     poster,
		latest:     NewLatest(),
		deliveries: make(chan delivery, 1),
		logger:     slog.Default().With("component", "bridge"),
	}
}

// OnReport receives one pushed report. Safe to call concurrently with
// session changes: the device id and credentials are read fresh here, and a
// fix received while either is absent is dropped without error — partial
// state means "not ready", not a fault.
func (b *Bridge) OnReport(r provider.Report) {
	ctx := context.Background()

	token, _, ok := b.creds.Get()
	if !ok {
		b.logger.Debug("dropping fix: no credentials")
		return
	}
	deviceID := b.settings.DeviceID(ctx)
	if deviceID == store.NoDeviceSelected {
		b.logger.Debug("dropping fix: no device selected")
		return
	}
	endpoint := b.settings.Endpoint(ctx)
	if endpoint == "" {
		b.logger.Debug("dropping fix: no endpoint configured")
		return
	}

	fix := model.Fix{
		DeviceID:         deviceID,
		Latitude:         r.Latitude,
		Longitude:        r.Longitude,
		Altitude:         r.Altitude,
		Accuracy:         r.Accuracy,
		AltitudeAccuracy: r.AltitudeAccuracy,
		CapturedAt:       r.Time,
	}

	b.latest.Publish(fix)
	b.enqueue(delivery{endpoint: endpoint, token: token, fix: fix})
}

// enqueue hands a delivery to the worker, displacing an undelivered older
// fix if one is still waiting.
func (b *Bridge) enqueue(d delivery) {
	for {
		select {
		case b.deliveries <- d:
			return
		default:
		}
		select {
		case stale := <-b.deliveries:
			b.logger.Debug("superseding undelivered fix", "device_id", stale.fix.DeviceID)
		default:
		}
	}
}

// Run is the delivery worker. Transport failures are logged and swallowed: a
// single missed point is an accepted loss, and there is no retry or replay
// buffer. Returns when ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-b.deliveries:
			if err := b.poster.PostLocation(ctx, d.endpoint, d.token, d.fix); err != nil {
				b.logger.Warn("fix delivery failed, dropping", "device_id", d.fix.DeviceID, "error", err)
				continue
			}
			b.logger.Debug("fix delivered", "device_id", d.fix.DeviceID)
		}
	}
}

// LastFix returns the most recent fix handled by the bridge, for display.
func (b *Bridge) LastFix() (model.Fix, bool) {
	return b.latest.Last()
}

// ClearLastFix forgets the displayed fix. The controller calls this on stop.
func (b *Bridge) ClearLastFix() {
	b.latest.Clear()
}

// Subscribe registers a display subscriber for fix updates.
func (b *Bridge) Subscribe(ctx context.Context) (<-chan model.Fix, string) {
	return b.latest.Subscribe(ctx)
}

// Unsubscribe removes a display subscriber.
func (b *Bridge) Unsubscribe(subID string) {
	b.latest.Unsubscribe(subID)
}

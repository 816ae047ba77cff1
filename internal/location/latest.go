// ABOUTME: In-memory last-known-fix holder with fan-out to display subscribers
// ABOUTME: Display only — the latest fix is never persisted and is cleared on stop

package location

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/kebs/onloc-agent/internal/model"
)

// Latest keeps the most recent fix in memory and pushes updates to
// subscribers (the control API's fix stream, a UI). Each subscriber
// channel holds one pending fix; a newer fix displaces an unread older one,
// because display only ever wants the newest value.
type Latest struct {
	mu          sync.RWMutex
	last        *model.Fix
	subscribers map[string]chan model.Fix
	logger      *slog.Logger
}

// NewLatest creates an empty last-fix holder.
func NewLatest() *Latest {
	return &Latest{
		subscribers: make(map[string]chan model.Fix),
		logger:      slog.Default().With("component", "lastfix"),
	}
}

// Publish records fix as the latest and fans it out to all subscribers.
// Sends happen under the lock: every channel holds one element and the
// sends never block, and Unsubscribe closes channels under the same lock,
// so a close can never race a send.
func (l *Latest) Publish(fix model.Fix) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.last = &fix
	for _, ch := range l.subscribers {
		// Displace any unread older fix rather than blocking.
		select {
		case ch <- fix:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- fix:
		default:
		}
	}
}

// Last returns the most recent fix, if any.
func (l *Latest) Last() (model.Fix, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.last == nil {
		return model.Fix{}, false
	}
	return *l.last, true
}

// Clear forgets the latest fix. Called when the session stops so a stale
// position is not shown as current.
func (l *Latest) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = nil
}

// Subscribe registers for fix updates. Returns the receiving channel and a
// subscription ID. The subscription is cleaned up when ctx is cancelled.
func (l *Latest) Subscribe(ctx context.Context) (<-chan model.Fix, string) {
	subID := uuid.New().String()
	ch := make(chan model.Fix, 1)

	l.mu.Lock()
	l.subscribers[subID] = ch
	l.mu.Unlock()

	l.logger.Debug("subscriber added", "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		l.Unsubscribe(subID)
	}()

	return ch, subID
}

// Unsubscribe removes a subscription and closes its channel.
func (l *Latest) Unsubscribe(subID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.subscribers[subID]
	if !ok {
		return
	}
	delete(l.subscribers, subID)
	close(ch)

	l.logger.Debug("subscriber removed", "sub_id", subID)
}

// ABOUTME: In-memory fan-out of registry refresh signals
// ABOUTME: Subscribers register per browser session and receive named refresh reasons

package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
// Refreshes are idempotent, so signals beyond it are dropped.
const subscriberBufferSize = 8

// Reason names why a refresh was requested.
type Reason string

const (
	ReasonSelection           Reason = "selection"
	ReasonIdentity            Reason = "identity"
	ReasonConversationCreated Reason = "conversation_created"
	ReasonManual              Reason = "manual"
)

// Signal asks subscribed registries to re-fetch.
type Signal struct {
	Reason         Reason
	ConversationID string
}

// Hub delivers refresh signals to the registries of one session key.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Signal // sessionKey -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewHub creates a hub. Pass nil logger for default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]map[string]chan Signal),
		logger:      logger.With("component", "registry_hub"),
	}
}

// Subscribe registers for signals on sessionKey. The subscription is removed
// and its channel closed when ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context, sessionKey string) (<-chan Signal, string) {
	subID := uuid.New().String()
	ch := make(chan Signal, subscriberBufferSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := h.subscribers[sessionKey]; !ok {
		h.subscribers[sessionKey] = make(map[string]chan Signal)
	}
	h.subscribers[sessionKey][subID] = ch
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		h.Unsubscribe(sessionKey, subID)
	}()

	return ch, subID
}

// Publish sends sig to every subscriber of sessionKey without blocking.
func (h *Hub) Publish(sessionKey string, sig Signal) {
	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send; they never block.
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers[sessionKey] {
		select {
		case ch <- sig:
		default:
			h.logger.Debug("dropped refresh for busy subscriber", "reason", sig.Reason)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(sessionKey, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[sessionKey]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(h.subscribers, sessionKey)
	}

	h.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close closes every subscriber channel. Later subscriptions get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for key, subs := range h.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(h.subscribers, key)
	}
	h.closed = true

	h.logger.Debug("hub closed")
}

// ABOUTME: In-memory fan-out of session updates to connected API clients
// ABOUTME: Publishes tail overwrites and side-channel payloads per user session

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Update is one observable change of a session: a tail overwrite from the
// stream consumer, or a side-channel payload surfaced by a load.
type Update struct {
	Kind      string // "tail", "brief", "generated_content"
	Content   string
	Agent     string
	Payload   json.RawMessage
	Confirmed bool
}

// Broadcaster provides in-memory pub/sub for session updates. Subscribers
// register for a user id and receive updates as the controller applies
// them, which lets an SSE response mirror the timeline in real time.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *Update // userID -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *Update),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for one user's session updates. The
// subscription is cleaned up automatically when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, userID string) (<-chan *Update, string) {
	subID := uuid.New().String()
	ch := make(chan *Update, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[userID]; !ok {
		b.subscribers[userID] = make(map[string]chan *Update)
	}
	b.subscribers[userID][subID] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.Unsubscribe(userID, subID)
	}()

	return ch, subID
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(userID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[userID]
	if !ok {
		return
	}
	ch, ok := subs[subID]
	if !ok {
		return
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(b.subscribers, userID)
	}
	close(ch)
}

// Publish sends an update to all subscribers of the user. Non-blocking:
// updates are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(userID string, update *Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subID, ch := range b.subscribers[userID] {
		select {
		case ch <- update:
		default:
			b.logger.Warn("subscriber channel full, dropping update",
				"user_id", userID,
				"sub_id", subID,
				"kind", update.Kind)
		}
	}
}

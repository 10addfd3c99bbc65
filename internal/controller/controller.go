// ABOUTME: Controller owns one chat session: timeline, identity, and in-flight work
// ABOUTME: Serializes all state mutation and tags async completions with a generation

package controller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/muse-gateway/internal/dispatch"
	"github.com/2389/muse-gateway/internal/session"
	"github.com/2389/muse-gateway/internal/store"
)

// ErrBusy is returned by Send while another send is still in flight.
var ErrBusy = errors.New("a send is already in flight")

// StatusBriefConfirmed is the conversation status recorded once the user
// has confirmed the creative brief.
const StatusBriefConfirmed = "brief_confirmed"

const (
	defaultSendTimeout    = 2 * time.Minute
	defaultPersistTimeout = 5 * time.Second
)

// ConversationStore defines what the controller needs from storage
type ConversationStore interface {
	GetConversation(ctx context.Context, id, userID string) (*store.Conversation, error)
	SaveConversation(ctx context.Context, conv *store.Conversation) error
	ClearConversations(ctx context.Context, userID string) error
}

// Hooks are optional callbacks fired as the session changes. They are
// invoked outside the controller's lock; callers must not call back into
// the controller synchronously from a hook.
type Hooks struct {
	// OnBriefLoaded fires at most once per successful load that carries a
	// pending creative brief.
	OnBriefLoaded func(brief json.RawMessage, confirmed bool)
	// OnGeneratedContentLoaded fires at most once per successful load that
	// carries previously generated content.
	OnGeneratedContentLoaded func(content json.RawMessage)
	// OnTailUpdated fires after each stream event lands in the timeline.
	OnTailUpdated func(content, agent string)
}

// Controller drives one user's chat session. It is the only owner of the
// session state: the loader and the stream consumer both run inside it and
// mutate state only through the session operations, under the controller's
// lock.
//
// Every async completion (a finished load, a stream event) carries the
// generation it was issued under. The generation moves forward on every
// identity change, so a completion from a superseded episode is recognized
// as stale and dropped instead of applied.
type Controller struct {
	mu     sync.Mutex
	state  *session.State
	gen    uint64
	guard  bool // identity being established by an in-flight send; loader must not fetch
	userID string

	// side-channel payloads from the last successful load
	brief     json.RawMessage
	generated json.RawMessage

	store      ConversationStore
	dispatcher dispatch.Dispatcher
	hooks      Hooks
	logger     *slog.Logger

	sendTimeout    time.Duration
	persistTimeout time.Duration
}

// New creates a controller for one user's session. Pass nil logger for the
// default.
func New(userID string, st ConversationStore, d dispatch.Dispatcher, hooks Hooks, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		state:          session.NewState(),
		userID:         userID,
		store:          st,
		dispatcher:     d,
		hooks:          hooks,
		logger:         logger.With("component", "controller", "user_id", userID),
		sendTimeout:    defaultSendTimeout,
		persistTimeout: defaultPersistTimeout,
	}
}

// SetSendTimeout bounds how long one send may stream before it is forced
// to settle with an error.
func (c *Controller) SetSendTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendTimeout = d
}

// UserID returns the owner of this session.
func (c *Controller) UserID() string { return c.userID }

// Identity returns the active conversation identity, or "" for a new chat.
func (c *Controller) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Identity()
}

// Messages returns a copy of the current timeline.
func (c *Controller) Messages() []session.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Messages()
}

// IsTyping reports whether a send is in flight.
func (c *Controller) IsTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.IsTyping()
}

// IsLoading reports whether a conversation load is in flight.
func (c *Controller) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.IsLoading()
}

// IsNewChat reports whether the session is on an unsaved conversation.
func (c *Controller) IsNewChat() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.IsNewChat()
}

// Brief returns the pending creative brief from the last load, if any.
func (c *Controller) Brief() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.brief
}

// GeneratedContent returns previously generated content from the last load,
// if any.
func (c *Controller) GeneratedContent() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generated
}

// Clear resets the session to an empty new chat and asks the store to drop
// the user's history. The store call is fire-and-forget; the session is
// usable again immediately. Clearing also releases the guard so a stale
// "creating new conversation" signal cannot suppress a later load.
func (c *Controller) Clear(ctx context.Context) {
	c.mu.Lock()
	c.gen++
	c.guard = false
	c.state.Clear()
	c.state.SetLoading(false)
	c.brief = nil
	c.generated = nil
	c.mu.Unlock()

	c.logger.Debug("session cleared")

	go func() {
		clearCtx, cancel := context.WithTimeout(context.Background(), c.persistTimeout)
		defer cancel()
		if err := c.store.ClearConversations(clearCtx, c.userID); err != nil {
			c.logger.Error("failed to clear history", "error", err)
		}
	}()
}

// ABOUTME: Session state for a single chat timeline: messages, identity, and flags
// ABOUTME: Defines the only mutation operations the controller is allowed to use

package session

import (
	"strings"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in the timeline. Append order is display order.
type Message struct {
	Role      Role
	Content   string
	Agent     string // label of the agent that produced an assistant message
	Timestamp time.Time
}

// State holds everything a session knows about its current conversation:
// the active identity, the ordered timeline, and the transient flags the
// loader and stream consumer toggle.
//
// State is not safe for concurrent use. The owning controller serializes
// all access; nothing else may hold a reference.
type State struct {
	id         string // "" means an unsaved/new conversation
	lastLoaded string // identity whose timeline is currently materialized
	messages   []Message
	newChat    bool
	loading    bool
	typing     bool
}

// NewState returns a fresh session positioned on a new, unsaved conversation.
func NewState() *State {
	return &State{newChat: true}
}

// Identity returns the active conversation identity, or "" for a new chat.
func (s *State) Identity() string { return s.id }

// IsNewChat reports whether the session is on an unsaved conversation.
func (s *State) IsNewChat() bool { return s.newChat }

// IsLoading reports whether a conversation load is in flight.
func (s *State) IsLoading() bool { return s.loading }

// IsTyping reports whether a send is in flight (input disabled).
func (s *State) IsTyping() bool { return s.typing }

func (s *State) SetLoading(v bool) { s.loading = v }
func (s *State) SetTyping(v bool)  { s.typing = v }

// Len returns the number of messages in the timeline.
func (s *State) Len() int { return len(s.messages) }

// Messages returns a copy of the timeline in display order.
func (s *State) Messages() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// SetIdentity switches the active identity. An empty id resets the session
// to a new chat and drops the timeline. A non-empty id names a saved
// conversation, which ends new-chat mode; whether the timeline still has to
// be fetched is answered by NeedsLoad.
func (s *State) SetIdentity(id string) {
	if id == "" {
		s.id = ""
		s.newChat = true
		s.messages = nil
		return
	}
	s.id = id
	s.newChat = false
}

// NeedsLoad reports whether the active identity's timeline has not been
// materialized yet. New chats never need a load.
func (s *State) NeedsLoad() bool {
	return s.id != "" && s.id != s.lastLoaded && !s.newChat
}

// MarkMaterialized records that the timeline now reflects the given identity.
func (s *State) MarkMaterialized(id string) {
	s.lastLoaded = id
}

// Clear resets the session to an empty new chat.
func (s *State) Clear() {
	s.id = ""
	s.lastLoaded = ""
	s.messages = nil
	s.newChat = true
}

// AppendUser appends a user message. Empty or whitespace-only text is a
// no-op; the return value reports whether a message was appended.
func (s *State) AppendUser(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	s.messages = append(s.messages, Message{
		Role:      RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	})
	return true
}

// OpenAssistantPlaceholder appends an empty assistant message and returns
// its index. The placeholder is the timeline's single mutable message until
// the stream that owns it settles.
func (s *State) OpenAssistantPlaceholder() int {
	s.messages = append(s.messages, Message{
		Role:      RoleAssistant,
		Timestamp: time.Now(),
	})
	return len(s.messages) - 1
}

// UpdateAt overwrites the content and agent label of the message at index.
// The write only lands if index is the current tail; anything else means
// the timeline moved on under the writer and the update is dropped.
func (s *State) UpdateAt(index int, content, agent string) bool {
	if index != len(s.messages)-1 || index < 0 {
		return false
	}
	s.messages[index].Content = content
	s.messages[index].Agent = agent
	return true
}

// ReplaceAll swaps the timeline wholesale. Used by conversation loads;
// timelines are never merged.
func (s *State) ReplaceAll(msgs []Message) {
	s.messages = make([]Message, len(msgs))
	copy(s.messages, msgs)
}

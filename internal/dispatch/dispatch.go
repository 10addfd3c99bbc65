// ABOUTME: Send-dispatch contract between the session controller and the agent backend
// ABOUTME: Defines the incremental event stream shape and the single-value reply shape

package dispatch

import (
	"context"

	"github.com/2389/muse-gateway/internal/session"
)

// Kind identifies the type of an incremental event.
type Kind int

const (
	// KindAgentResponse carries the complete content so far, not a delta.
	// Consumers overwrite with it; last value wins.
	KindAgentResponse Kind = iota
	// KindStatus carries progress chatter that never lands in the timeline.
	KindStatus
	// KindError terminates the stream with a failure.
	KindError
)

// Event is one element of an incremental response feed.
type Event struct {
	Kind    Kind
	Content string
	Agent   string // label of the agent producing the response
	Final   bool
}

// Reply is the result of dispatching a send. Exactly one of the two shapes
// is populated: Stream for incremental producers, Text for backends that
// resolve a single value. The stream is closed by the producer when
// exhausted.
type Reply struct {
	Stream <-chan *Event
	Text   string
	Agent  string
}

// Dispatcher sends one user message (with the prior timeline for context)
// to the agent backend.
type Dispatcher interface {
	Send(ctx context.Context, text string, history []session.Message) (*Reply, error)
}

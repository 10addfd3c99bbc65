// ABOUTME: Stream consumer: drives one send from user submit to settled timeline
// ABOUTME: Applies content-so-far events as idempotent tail overwrites, then persists

package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/muse-gateway/internal/dispatch"
	"github.com/2389/muse-gateway/internal/session"
	"github.com/2389/muse-gateway/internal/store"
)

// failureMessage is shown in place of the assistant reply when a send fails.
const failureMessage = "Sorry, something went wrong while generating a response. Please try again."

// Send submits one user message and consumes the response feed until it
// settles. Empty or whitespace-only text is a no-op. Only one send may be
// in flight per session; ErrBusy is returned otherwise.
//
// Each agent_response event carries the complete content so far, so events
// are applied as whole-value tail overwrites in arrival order. On any exit
// path, including errors and timeouts, the session returns to an
// interactive idle state.
func (c *Controller) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	c.mu.Lock()
	if c.state.IsTyping() {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state.SetTyping(true)
	history := c.state.Messages()
	c.state.AppendUser(text)
	idx := c.state.OpenAssistantPlaceholder()
	gen := c.gen
	sendTimeout := c.sendTimeout
	c.mu.Unlock()

	reply, err := c.dispatcher.Send(ctx, text, history)
	if err != nil {
		return c.settleError(gen, idx, fmt.Errorf("dispatch failed: %w", err))
	}

	// Single-value case: one overwrite, then settle.
	if reply.Stream == nil {
		c.applyTail(gen, idx, reply.Text, reply.Agent)
		return c.settle(ctx, gen, idx)
	}

	timeout := time.NewTimer(sendTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drain(reply.Stream)
			return c.settleError(gen, idx, ctx.Err())

		case <-timeout.C:
			c.drain(reply.Stream)
			return c.settleError(gen, idx, fmt.Errorf("send did not settle within %s", sendTimeout))

		case ev, ok := <-reply.Stream:
			if !ok {
				return c.settle(ctx, gen, idx)
			}

			switch ev.Kind {
			case dispatch.KindAgentResponse:
				c.applyTail(gen, idx, ev.Content, ev.Agent)
				if ev.Final {
					c.drain(reply.Stream)
					return c.settle(ctx, gen, idx)
				}

			case dispatch.KindError:
				c.drain(reply.Stream)
				return c.settleError(gen, idx, fmt.Errorf("stream error: %s", ev.Content))

			case dispatch.KindStatus:
				c.logger.Debug("status event", "content", ev.Content)
			}
		}
	}
}

// applyTail lands one content-so-far update on the placeholder. Updates
// from a superseded generation, or aimed at a message that is no longer the
// tail, are dropped.
func (c *Controller) applyTail(gen uint64, idx int, content, agent string) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.logger.Debug("stale stream update discarded")
		return
	}
	applied := c.state.UpdateAt(idx, content, agent)
	c.mu.Unlock()

	if applied && c.hooks.OnTailUpdated != nil {
		c.hooks.OnTailUpdated(content, agent)
	}
}

// settle finishes a successful send: adopt an identity for a brand-new
// conversation, persist the full timeline, and re-enable input.
func (c *Controller) settle(ctx context.Context, gen uint64, idx int) error {
	c.mu.Lock()
	if gen != c.gen {
		// Superseded mid-send. Nothing to persist, but input comes back.
		c.state.SetTyping(false)
		c.mu.Unlock()
		return nil
	}

	adopted := false
	if c.state.Identity() == "" {
		// First successful send of a new conversation: assign the identity
		// ourselves and hold the guard so the loader never refetches what
		// the stream just built.
		c.guard = true
		adopted = true
		id := uuid.New().String()
		c.gen++
		c.state.SetIdentity(id)
		c.state.MarkMaterialized(id)
		c.logger.Debug("new conversation adopted", "conversation_id", id)
	}
	convID := c.state.Identity()
	msgs := c.state.Messages()
	c.mu.Unlock()

	c.persistHistory(convID, msgs)

	return c.finishSettle(ctx, adopted)
}

// finishSettle releases the guard, re-enables input, and runs any load the
// guard suppressed while it was held: a switch landing in the adoption
// window changes the identity without fetching, so the fetch happens here.
func (c *Controller) finishSettle(ctx context.Context, adopted bool) error {
	c.mu.Lock()
	if adopted {
		c.guard = false
	}
	c.state.SetTyping(false)

	var loadID string
	var loadGen uint64
	if adopted && c.state.NeedsLoad() {
		loadID = c.state.Identity()
		loadGen = c.gen
		c.state.SetLoading(true)
	}
	c.mu.Unlock()

	if loadID == "" {
		return nil
	}
	c.logger.Debug("loading conversation deferred by guard", "conversation_id", loadID)
	conv, err := c.store.GetConversation(ctx, loadID, c.userID)
	// a failed deferred load is logged by applyLoad; the send itself succeeded
	_ = c.applyLoad(loadGen, loadID, conv, err)
	return nil
}

// settleError finishes a failed send: one generic failure message in place
// of the reply, and input comes back unconditionally.
func (c *Controller) settleError(gen uint64, idx int, err error) error {
	c.mu.Lock()
	if gen == c.gen {
		c.state.UpdateAt(idx, failureMessage, "")
	}
	c.state.SetTyping(false)
	c.mu.Unlock()

	c.logger.Error("send failed", "error", err)
	return err
}

// persistHistory saves the settled timeline with its own timeout context so
// persistence survives cancellation of the originating request.
func (c *Controller) persistHistory(convID string, msgs []session.Message) {
	conv := &store.Conversation{
		ID:       convID,
		UserID:   c.userID,
		Messages: toStoreMessages(msgs),
	}
	go func() {
		saveCtx, cancel := context.WithTimeout(context.Background(), c.persistTimeout)
		defer cancel()
		if err := c.store.SaveConversation(saveCtx, conv); err != nil {
			c.logger.Error("failed to persist history",
				"conversation_id", convID,
				"error", err)
		} else {
			c.logger.Debug("history persisted",
				"conversation_id", convID,
				"messages", len(msgs))
		}
	}()
}

// drain discards the rest of a stream so the producer never blocks.
func (c *Controller) drain(in <-chan *dispatch.Event) {
	go func() {
		for range in {
		}
	}()
}

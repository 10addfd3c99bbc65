// ABOUTME: Tests for the conversation loader
// ABOUTME: Covers wholesale replacement, failure modes, hooks, and stale-load discarding

package controller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/muse-gateway/internal/store"
)

func seedConversation(ms *store.MockStore, id string, contents ...string) {
	msgs := make([]store.Message, 0, len(contents))
	role := "user"
	for _, content := range contents {
		msgs = append(msgs, store.Message{Role: role, Content: content})
		if role == "user" {
			role = "assistant"
		} else {
			role = "user"
		}
	}
	ms.Put(&store.Conversation{ID: id, UserID: "user-1", Messages: msgs})
}

func TestSwitch_ReplacesTimelineWholesale(t *testing.T) {
	ms := store.NewMockStore()
	seedConversation(ms, "conv-a", "one", "two", "three")
	c := New("user-1", ms, &fakeDispatcher{}, Hooks{}, nil)

	require.NoError(t, c.Switch(context.Background(), "conv-a"))

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "three", msgs[2].Content)
	assert.Equal(t, "conv-a", c.Identity())
	assert.False(t, c.IsLoading())
	assert.False(t, c.IsNewChat())
}

func TestSwitch_SameIdentityDoesNotRefetch(t *testing.T) {
	ms := store.NewMockStore()
	seedConversation(ms, "conv-a", "one")
	c := New("user-1", ms, &fakeDispatcher{}, Hooks{}, nil)

	require.NoError(t, c.Switch(context.Background(), "conv-a"))
	require.NoError(t, c.Switch(context.Background(), "conv-a"))

	assert.Equal(t, 1, ms.GetCalls)
}

func TestSwitch_EmptyIdentityStartsNewChat(t *testing.T) {
	ms := store.NewMockStore()
	seedConversation(ms, "conv-a", "one", "two")
	c := New("user-1", ms, &fakeDispatcher{}, Hooks{}, nil)
	require.NoError(t, c.Switch(context.Background(), "conv-a"))

	require.NoError(t, c.Switch(context.Background(), ""))

	assert.Equal(t, "", c.Identity())
	assert.True(t, c.IsNewChat())
	assert.Empty(t, c.Messages())
}

func TestSwitch_NotFoundLeavesTimelineUntouched(t *testing.T) {
	ms := store.NewMockStore()
	seedConversation(ms, "conv-a", "one", "two")
	c := New("user-1", ms, &fakeDispatcher{}, Hooks{}, nil)
	require.NoError(t, c.Switch(context.Background(), "conv-a"))

	require.NoError(t, c.Switch(context.Background(), "conv-missing"))

	assert.Len(t, c.Messages(), 2)
	assert.False(t, c.IsLoading())
}

func TestSwitch_FailureResetsTimeline(t *testing.T) {
	ms := store.NewMockStore()
	seedConversation(ms, "conv-a", "one", "two")
	c := New("user-1", ms, &fakeDispatcher{}, Hooks{}, nil)
	require.NoError(t, c.Switch(context.Background(), "conv-a"))

	ms.GetErr = errors.New("connection reset")
	err := c.Switch(context.Background(), "conv-b")
	require.Error(t, err)

	// Better an empty timeline than one that belongs to another identity.
	assert.Empty(t, c.Messages())
	assert.Nil(t, c.Brief())
	assert.Nil(t, c.GeneratedContent())
	assert.False(t, c.IsLoading())
}

func TestSwitch_FiresSideChannelHooksOnce(t *testing.T) {
	ms := store.NewMockStore()
	ms.Put(&store.Conversation{
		ID: "conv-a", UserID: "user-1",
		Messages: []store.Message{{Role: "user", Content: "hi"}},
		Brief:    json.RawMessage(`{"tone":"bold"}`),
		Metadata: store.Metadata{
			GeneratedContent: json.RawMessage(`{"headline":"x"}`),
			Status:           StatusBriefConfirmed,
		},
	})

	var mu sync.Mutex
	briefCalls, contentCalls := 0, 0
	var gotConfirmed bool
	hooks := Hooks{
		OnBriefLoaded: func(brief json.RawMessage, confirmed bool) {
			mu.Lock()
			briefCalls++
			gotConfirmed = confirmed
			mu.Unlock()
		},
		OnGeneratedContentLoaded: func(content json.RawMessage) {
			mu.Lock()
			contentCalls++
			mu.Unlock()
		},
	}
	c := New("user-1", ms, &fakeDispatcher{}, hooks, nil)

	require.NoError(t, c.Switch(context.Background(), "conv-a"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, briefCalls)
	assert.Equal(t, 1, contentCalls)
	assert.True(t, gotConfirmed)
	assert.JSONEq(t, `{"tone":"bold"}`, string(c.Brief()))
}

func TestSwitch_HooksSilentWithoutPayloads(t *testing.T) {
	ms := store.NewMockStore()
	seedConversation(ms, "conv-a", "hi")

	called := false
	hooks := Hooks{
		OnBriefLoaded:            func(json.RawMessage, bool) { called = true },
		OnGeneratedContentLoaded: func(json.RawMessage) { called = true },
	}
	c := New("user-1", ms, &fakeDispatcher{}, hooks, nil)

	require.NoError(t, c.Switch(context.Background(), "conv-a"))
	assert.False(t, called)
}

func TestSwitch_NewChatDuringLoadResetsLoadingFlag(t *testing.T) {
	ms := store.NewMockStore()
	seedConversation(ms, "conv-a", "a1")
	ms.GetGate = make(chan struct{})
	c := New("user-1", ms, &fakeDispatcher{}, Hooks{}, nil)

	aDone := make(chan error, 1)
	go func() { aDone <- c.Switch(context.Background(), "conv-a") }()
	require.Eventually(t, c.IsLoading, time.Second, 5*time.Millisecond)

	// Starting a new chat issues no load, so it must clear the flag itself.
	require.NoError(t, c.Switch(context.Background(), ""))
	assert.False(t, c.IsLoading())
	assert.True(t, c.IsNewChat())

	// A's stale completion must not bring the flag back.
	close(ms.GetGate)
	require.NoError(t, <-aDone)
	assert.False(t, c.IsLoading())
	assert.Empty(t, c.Messages())
}

func TestSwitch_BackToMaterializedDuringLoadResetsLoadingFlag(t *testing.T) {
	ms := store.NewMockStore()
	seedConversation(ms, "conv-a", "a1")
	seedConversation(ms, "conv-b", "b1")
	c := New("user-1", ms, &fakeDispatcher{}, Hooks{}, nil)
	require.NoError(t, c.Switch(context.Background(), "conv-a"))

	ms.GetGate = make(chan struct{})
	ms.GateID = "conv-b"
	bDone := make(chan error, 1)
	go func() { bDone <- c.Switch(context.Background(), "conv-b") }()
	require.Eventually(t, c.IsLoading, time.Second, 5*time.Millisecond)

	// A is already materialized: no fetch, but the flag still resets.
	require.NoError(t, c.Switch(context.Background(), "conv-a"))
	assert.False(t, c.IsLoading())

	close(ms.GetGate)
	require.NoError(t, <-bDone)
	assert.False(t, c.IsLoading())
	require.Len(t, c.Messages(), 1)
	assert.Equal(t, "a1", c.Messages()[0].Content)
}

func TestSwitch_StaleLoadDiscarded(t *testing.T) {
	ms := store.NewMockStore()
	seedConversation(ms, "conv-a", "a1", "a2", "a3")
	seedConversation(ms, "conv-b", "b1")
	ms.GetGate = make(chan struct{})
	ms.GateID = "conv-a"
	c := New("user-1", ms, &fakeDispatcher{}, Hooks{}, nil)

	// Conversation A starts loading and hangs on the gate.
	aDone := make(chan error, 1)
	go func() { aDone <- c.Switch(context.Background(), "conv-a") }()
	require.Eventually(t, func() bool { return ms.GetCalls == 1 }, time.Second, 5*time.Millisecond)

	// The user switches to B before A resolves; B's load completes.
	require.NoError(t, c.Switch(context.Background(), "conv-b"))
	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "b1", msgs[0].Content)

	// A's late result must never overwrite B's timeline.
	close(ms.GetGate)
	require.NoError(t, <-aDone)

	msgs = c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "b1", msgs[0].Content)
	assert.Equal(t, "conv-b", c.Identity())
	assert.False(t, c.IsLoading())
}

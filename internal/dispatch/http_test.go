// ABOUTME: Tests for the HTTP/SSE dispatcher
// ABOUTME: Uses httptest servers to verify SSE decoding, single-value replies, and failures

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/muse-gateway/internal/session"
)

func collectEvents(t *testing.T, reply *Reply) []*Event {
	t.Helper()
	var events []*Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-reply.Stream:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out waiting for stream to close")
		}
	}
}

func TestHTTPDispatcher_DecodesSSEStream(t *testing.T) {
	var gotBody sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: agent_response\n")
		fmt.Fprint(w, "data: {\"content\":\"He\",\"agent\":\"writer\"}\n\n")
		fmt.Fprint(w, "event: status\n")
		fmt.Fprint(w, "data: {\"content\":\"thinking\"}\n\n")
		fmt.Fprint(w, "event: agent_response\n")
		fmt.Fprint(w, "data: {\"content\":\"Hello there\",\"agent\":\"writer\",\"is_final\":true}\n\n")
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, 5*time.Second, nil)
	reply, err := d.Send(context.Background(), "Hi", []session.Message{
		{Role: session.RoleUser, Content: "earlier"},
	})
	require.NoError(t, err)
	require.NotNil(t, reply.Stream)

	events := collectEvents(t, reply)
	require.Len(t, events, 3)
	assert.Equal(t, KindAgentResponse, events[0].Kind)
	assert.Equal(t, "He", events[0].Content)
	assert.Equal(t, KindStatus, events[1].Kind)
	assert.Equal(t, KindAgentResponse, events[2].Kind)
	assert.Equal(t, "Hello there", events[2].Content)
	assert.True(t, events[2].Final)

	// Prior history travels with the request.
	assert.Equal(t, "Hi", gotBody.Message)
	require.Len(t, gotBody.History, 1)
	assert.Equal(t, "user", gotBody.History[0].Role)
}

func TestHTTPDispatcher_SingleValueReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(wireEvent{Content: "full answer", Agent: "planner"})
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, 5*time.Second, nil)
	reply, err := d.Send(context.Background(), "Hi", nil)
	require.NoError(t, err)

	assert.Nil(t, reply.Stream)
	assert.Equal(t, "full answer", reply.Text)
	assert.Equal(t, "planner", reply.Agent)
}

func TestHTTPDispatcher_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, 5*time.Second, nil)
	_, err := d.Send(context.Background(), "Hi", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPDispatcher_ErrorEventTerminatesStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: agent_response\n")
		fmt.Fprint(w, "data: {\"content\":\"partial\"}\n\n")
		fmt.Fprint(w, "event: error\n")
		fmt.Fprint(w, "data: {\"error\":\"model unavailable\"}\n\n")
		fmt.Fprint(w, "event: agent_response\n")
		fmt.Fprint(w, "data: {\"content\":\"never seen\"}\n\n")
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, 5*time.Second, nil)
	reply, err := d.Send(context.Background(), "Hi", nil)
	require.NoError(t, err)

	events := collectEvents(t, reply)
	require.Len(t, events, 2)
	assert.Equal(t, KindError, events[1].Kind)
	assert.Equal(t, "model unavailable", events[1].Content)
}

func TestHTTPDispatcher_MalformedDataIsSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: not json\n\n")
		fmt.Fprint(w, "data: {\"content\":\"ok\",\"is_final\":true}\n\n")
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, 5*time.Second, nil)
	reply, err := d.Send(context.Background(), "Hi", nil)
	require.NoError(t, err)

	events := collectEvents(t, reply)
	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].Content)
}

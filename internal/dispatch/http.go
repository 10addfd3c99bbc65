// ABOUTME: HTTP/SSE implementation of the Dispatcher contract
// ABOUTME: Posts the message to an upstream agent service and decodes its SSE body into events

package dispatch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/muse-gateway/internal/session"
)

const eventBufferSize = 16

// HTTPDispatcher sends messages to an upstream agent service that answers
// with a Server-Sent Events body. Each SSE event becomes one Event on the
// reply stream.
type HTTPDispatcher struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPDispatcher creates a dispatcher for the given upstream base URL.
// Pass nil logger for the default. The timeout bounds the whole exchange
// including streaming; zero means no client-side bound.
func NewHTTPDispatcher(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPDispatcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("component", "dispatch"),
	}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type sendRequest struct {
	Message string        `json:"message"`
	History []wireMessage `json:"history"`
}

type wireEvent struct {
	Content string `json:"content"`
	Agent   string `json:"agent,omitempty"`
	Final   bool   `json:"is_final,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Send posts the message and prior history to the upstream chat endpoint
// and returns a streaming reply. The returned stream is closed when the
// upstream body ends or ctx is cancelled.
func (d *HTTPDispatcher) Send(ctx context.Context, text string, history []session.Message) (*Reply, error) {
	body := sendRequest{Message: text, History: make([]wireMessage, 0, len(history))}
	for _, m := range history {
		body.History = append(body.History, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	// A JSON content type means the backend resolved a single value
	// instead of streaming.
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "application/json") {
		defer resp.Body.Close()
		var single wireEvent
		if err := json.NewDecoder(resp.Body).Decode(&single); err != nil {
			return nil, fmt.Errorf("decoding upstream reply: %w", err)
		}
		if single.Error != "" {
			return nil, fmt.Errorf("upstream error: %s", single.Error)
		}
		return &Reply{Text: single.Content, Agent: single.Agent}, nil
	}

	out := make(chan *Event, eventBufferSize)
	go d.decodeStream(ctx, resp, out)
	return &Reply{Stream: out}, nil
}

// decodeStream reads SSE lines from the response body and pushes decoded
// events until the body ends or ctx is cancelled.
func (d *HTTPDispatcher) decodeStream(ctx context.Context, resp *http.Response, out chan<- *Event) {
	defer close(out)
	defer resp.Body.Close()

	var eventName string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))

		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}
			ev := d.decodeEvent(eventName, data)
			if ev == nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Final || ev.Kind == KindError {
				return
			}

		case line == "":
			eventName = ""
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		d.logger.Warn("upstream stream ended abnormally", "error", err)
		select {
		case out <- &Event{Kind: KindError, Content: err.Error()}:
		case <-ctx.Done():
		}
	}
}

// decodeEvent maps one SSE event to a stream Event. Unknown event names are
// treated as status chatter so new upstream event types don't break sends.
func (d *HTTPDispatcher) decodeEvent(name, data string) *Event {
	var w wireEvent
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		d.logger.Warn("dropping malformed upstream event", "event", name, "error", err)
		return nil
	}

	switch name {
	case "agent_response", "":
		return &Event{Kind: KindAgentResponse, Content: w.Content, Agent: w.Agent, Final: w.Final}
	case "error":
		content := w.Error
		if content == "" {
			content = w.Content
		}
		return &Event{Kind: KindError, Content: content}
	default:
		return &Event{Kind: KindStatus, Content: w.Content, Agent: w.Agent}
	}
}

// ABOUTME: HTTP API for chat sessions: send over SSE, conversation listing, products
// ABOUTME: Maintains one session controller per user and mirrors updates to clients

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/2389/muse-gateway/internal/controller"
	"github.com/2389/muse-gateway/internal/dedupe"
	"github.com/2389/muse-gateway/internal/dispatch"
	"github.com/2389/muse-gateway/internal/store"
)

const (
	dedupeTTL     = 10 * time.Minute
	dedupeMaxSize = 10000
)

// Gateway exposes chat sessions over HTTP. It keeps one controller per
// user id, created lazily on first use.
type Gateway struct {
	store       store.Store
	dispatcher  dispatch.Dispatcher
	dedupe      *dedupe.Cache
	broadcaster *Broadcaster
	logger      *slog.Logger

	mu          sync.Mutex
	sessions    map[string]*controller.Controller
	sendTimeout time.Duration
}

// NewGateway creates a Gateway. Pass nil logger for the default.
func NewGateway(st store.Store, d dispatch.Dispatcher, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		store:       st,
		dispatcher:  d,
		dedupe:      dedupe.New(dedupeTTL, dedupeMaxSize),
		broadcaster: NewBroadcaster(logger),
		logger:      logger.With("component", "api"),
		sessions:    make(map[string]*controller.Controller),
	}
}

// SetSendTimeout overrides the send timeout applied to controllers created
// after this call. Zero keeps the default.
func (g *Gateway) SetSendTimeout(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sendTimeout = d
}

// Handler returns the routed HTTP handler for the API.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/send", g.handleSend)
	mux.HandleFunc("GET /api/conversations", g.handleListConversations)
	mux.HandleFunc("GET /api/conversations/{id}", g.handleGetConversation)
	mux.HandleFunc("POST /api/conversations/clear", g.handleClear)
	mux.HandleFunc("GET /api/products", g.handleListProducts)
	mux.HandleFunc("GET /api/products/{sku}", g.handleGetProduct)
	return mux
}

// session returns the controller for a user, creating it on first use with
// hooks that mirror session changes to the broadcaster.
func (g *Gateway) session(userID string) *controller.Controller {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.sessions[userID]; ok {
		return c
	}
	hooks := controller.Hooks{
		OnTailUpdated: func(content, agent string) {
			g.broadcaster.Publish(userID, &Update{Kind: "tail", Content: content, Agent: agent})
		},
		OnBriefLoaded: func(brief json.RawMessage, confirmed bool) {
			g.broadcaster.Publish(userID, &Update{Kind: "brief", Payload: brief, Confirmed: confirmed})
		},
		OnGeneratedContentLoaded: func(content json.RawMessage) {
			g.broadcaster.Publish(userID, &Update{Kind: "generated_content", Payload: content})
		},
	}
	c := controller.New(userID, g.store, g.dispatcher, hooks, g.logger)
	if g.sendTimeout > 0 {
		c.SetSendTimeout(g.sendTimeout)
	}
	g.sessions[userID] = c
	return c
}

// SendRequest is the JSON body of POST /api/send.
type SendRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// UpdateResponse is the SSE body of a broadcast update. Tail events carry
// content and agent; brief and generated_content events carry the payload.
type UpdateResponse struct {
	Content   string          `json:"content,omitempty"`
	Agent     string          `json:"agent,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Confirmed bool            `json:"confirmed,omitempty"`
}

func updateBody(u *Update) UpdateResponse {
	return UpdateResponse{
		Content:   u.Content,
		Agent:     u.Agent,
		Payload:   u.Payload,
		Confirmed: u.Confirmed,
	}
}

// handleSend submits one user message and streams session updates back as
// SSE until the send settles.
func (g *Gateway) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "user_id required")
		return
	}
	if req.Content == "" {
		g.sendJSONError(w, http.StatusBadRequest, "content required")
		return
	}

	if req.IdempotencyKey != "" && g.dedupe.Check(req.IdempotencyKey) {
		g.logger.Debug("duplicate send ignored", "idempotency_key", req.IdempotencyKey)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "duplicate"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctrl := g.session(req.UserID)

	// Subscribe before any switch so side-channel events surfaced by the
	// load (brief, generated content) reach this response.
	updates, subID := g.broadcaster.Subscribe(r.Context(), req.UserID)
	defer g.broadcaster.Unsubscribe(req.UserID, subID)

	if req.ConversationID != "" && req.ConversationID != ctrl.Identity() {
		if err := ctrl.Switch(r.Context(), req.ConversationID); err != nil {
			g.logger.Warn("conversation switch failed before send",
				"conversation_id", req.ConversationID,
				"error", err)
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, "started", map[string]string{"conversation_id": ctrl.Identity()})
	flusher.Flush()

	errCh := make(chan error, 1)
	go func() { errCh <- ctrl.Send(r.Context(), req.Content) }()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				// Client gone, subscription closed. Stop reading and just
				// wait for the send to settle.
				updates = nil
				continue
			}
			g.writeSSEEvent(w, update.Kind, updateBody(update))
			flusher.Flush()

		case err := <-errCh:
			// Flush updates that landed before the send settled.
		drained:
			for {
				select {
				case update, ok := <-updates:
					if !ok {
						break drained
					}
					g.writeSSEEvent(w, update.Kind, updateBody(update))
				default:
					break drained
				}
			}
			if err != nil {
				if errors.Is(err, controller.ErrBusy) {
					g.writeSSEEvent(w, "error", map[string]string{"error": "a send is already in flight"})
				} else {
					g.logger.Error("send failed", "user_id", req.UserID, "error", err)
					g.writeSSEEvent(w, "error", map[string]string{"error": "send failed"})
				}
				flusher.Flush()
				return
			}
			if req.IdempotencyKey != "" {
				g.dedupe.Mark(req.IdempotencyKey)
			}
			var final string
			if msgs := ctrl.Messages(); len(msgs) > 0 {
				final = msgs[len(msgs)-1].Content
			}
			g.writeSSEEvent(w, "done", map[string]string{
				"conversation_id": ctrl.Identity(),
				"content":         final,
			})
			flusher.Flush()
			return
		}
	}
}

// ConversationSummaryResponse is one entry of GET /api/conversations.
type ConversationSummaryResponse struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	MessageCount int    `json:"message_count"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "user_id required")
		return
	}
	limit := queryLimit(r, 20)

	list, err := g.store.ListConversations(r.Context(), userID, limit)
	if err != nil {
		g.logger.Error("failed to list conversations", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]ConversationSummaryResponse, 0, len(list))
	for _, cs := range list {
		out = append(out, ConversationSummaryResponse{
			ID:           cs.ID,
			Title:        cs.Title,
			MessageCount: cs.MessageCount,
			CreatedAt:    cs.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt:    cs.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// MessageResponse is one timeline entry in conversation responses.
type MessageResponse struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Agent     string `json:"agent,omitempty"`
	CreatedAt string `json:"created_at"`
}

// ConversationResponse is the full record of GET /api/conversations/{id}.
type ConversationResponse struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Messages         []MessageResponse `json:"messages"`
	Brief            json.RawMessage   `json:"brief,omitempty"`
	GeneratedContent json.RawMessage   `json:"generated_content,omitempty"`
	Status           string            `json:"status,omitempty"`
	CreatedAt        string            `json:"created_at"`
	UpdatedAt        string            `json:"updated_at"`
}

func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "user_id required")
		return
	}

	conv, err := g.store.GetConversation(r.Context(), r.PathValue("id"), userID)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to get conversation", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := ConversationResponse{
		ID:               conv.ID,
		Title:            conv.Title,
		Messages:         make([]MessageResponse, 0, len(conv.Messages)),
		Brief:            conv.Brief,
		GeneratedContent: conv.Metadata.GeneratedContent,
		Status:           conv.Metadata.Status,
		CreatedAt:        conv.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        conv.UpdatedAt.UTC().Format(time.RFC3339),
	}
	for _, m := range conv.Messages {
		resp.Messages = append(resp.Messages, MessageResponse{
			Role:      m.Role,
			Content:   m.Content,
			Agent:     m.Agent,
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (g *Gateway) handleClear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "user_id required")
		return
	}

	g.session(req.UserID).Clear(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
}

// ProductResponse is one entry of the product endpoints.
type ProductResponse struct {
	SKU                  string          `json:"sku"`
	Name                 string          `json:"name"`
	Category             string          `json:"category,omitempty"`
	SubCategory          string          `json:"sub_category,omitempty"`
	MarketingDescription string          `json:"marketing_description,omitempty"`
	Data                 json.RawMessage `json:"data,omitempty"`
}

func (g *Gateway) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryLimit(r, 10)

	var (
		products []*store.Product
		err      error
	)
	switch {
	case q.Get("q") != "":
		products, err = g.store.SearchProducts(r.Context(), q.Get("q"), limit)
	case q.Get("category") != "":
		products, err = g.store.GetProductsByCategory(r.Context(), q.Get("category"), q.Get("sub_category"), limit)
	default:
		products, err = g.store.ListProducts(r.Context(), limit)
	}
	if err != nil {
		g.logger.Error("failed to query products", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (g *Gateway) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := g.store.GetProductBySKU(r.Context(), r.PathValue("sku"))
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to get product", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toProductResponse(p))
}

func toProductResponse(p *store.Product) ProductResponse {
	return ProductResponse{
		SKU:                  p.SKU,
		Name:                 p.Name,
		Category:             p.Category,
		SubCategory:          p.SubCategory,
		MarketingDescription: p.MarketingDescription,
		Data:                 p.Data,
	}
}

// writeSSEEvent writes one SSE event with a JSON payload.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE payload", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}

// sendJSONError writes a JSON error response with the given status.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const restSentMemory = 1000

// RESTAdapter implements GatewayAdapter for HTTP-based message ingestion.
// Each request opens a private channel that receives the reply.
type RESTAdapter struct {
	handler   MessageHandler
	reactions ReactionHandler
	channels  map[string]chan *restReply // channelID -> pending responses
	threads   map[string][]string        // threadID -> posts
	sent      map[string]bool            // message IDs authored by us
	sentOrder []string
	timeout   time.Duration
	mu        sync.RWMutex
	logger    *zap.Logger
}

type restReply struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

// NewRESTAdapter creates a REST gateway adapter.
func NewRESTAdapter(logger *zap.Logger) *RESTAdapter {
	return &RESTAdapter{
		channels: make(map[string]chan *restReply),
		threads:  make(map[string][]string),
		sent:     make(map[string]bool),
		timeout:  60 * time.Second,
		logger:   logger,
	}
}

func (a *RESTAdapter) Platform() string { return "rest" }

func (a *RESTAdapter) Connect(_ context.Context) error { return nil }

func (a *RESTAdapter) OnMessage(h MessageHandler) { a.handler = h }

func (a *RESTAdapter) OnReaction(h ReactionHandler) { a.reactions = h }

func (a *RESTAdapter) Close() error { return nil }

// Send delivers a message to a waiting REST channel.
func (a *RESTAdapter) Send(_ context.Context, msg *OutboundMessage) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.channels[msg.ChannelID]
	if !ok {
		return "", fmt.Errorf("no active channel: %s", msg.ChannelID)
	}
	id := uuid.NewString()
	select {
	case ch <- &restReply{MessageID: id, ChannelID: msg.ChannelID, Content: msg.Content}:
	default:
		return "", fmt.Errorf("channel %s buffer full", msg.ChannelID)
	}
	a.rememberSent(id)
	return id, nil
}

func (a *RESTAdapter) rememberSent(id string) {
	a.sent[id] = true
	a.sentOrder = append(a.sentOrder, id)
	if len(a.sentOrder) > restSentMemory {
		delete(a.sent, a.sentOrder[0])
		a.sentOrder = a.sentOrder[1:]
	}
}

// CreateThread records a new in-memory thread.
func (a *RESTAdapter) CreateThread(_ context.Context, _ MessageRef, title string) (string, error) {
	id := uuid.NewString()
	a.mu.Lock()
	a.threads[id] = []string{title}
	a.mu.Unlock()
	return id, nil
}

// PostToThread appends to an in-memory thread.
func (a *RESTAdapter) PostToThread(_ context.Context, thread ThreadRef, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	posts, ok := a.threads[thread.ThreadID]
	if !ok {
		return fmt.Errorf("unknown thread: %s", thread.ThreadID)
	}
	a.threads[thread.ThreadID] = append(posts, text)
	return nil
}

// Thread returns the posts of a thread.
func (a *RESTAdapter) Thread(id string) ([]string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	posts, ok := a.threads[id]
	return append([]string(nil), posts...), ok
}

// Routes returns a chi router with REST gateway endpoints.
func (a *RESTAdapter) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/message", a.handleMessage)
	r.Post("/reaction", a.handleReaction)
	r.Get("/threads/{id}", a.handleThread)
	return r
}

// handleMessage accepts an inbound message via HTTP and waits for the response.
func (a *RESTAdapter) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		UserName string `json:"user_name"`
		Content  string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Content == "" || req.UserID == "" {
		http.Error(w, `{"error":"user_id and content are required"}`, http.StatusBadRequest)
		return
	}

	channelID := uuid.NewString()
	ch := make(chan *restReply, 1)

	a.mu.Lock()
	a.channels[channelID] = ch
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.channels, channelID)
		a.mu.Unlock()
	}()

	if a.handler != nil {
		go a.handler(&InboundMessage{
			Platform:  "rest",
			ChannelID: channelID,
			MessageID: uuid.NewString(),
			UserID:    req.UserID,
			UserName:  req.UserName,
			Content:   req.Content,
			Timestamp: time.Now(),
		})
	}

	select {
	case msg := <-ch:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(msg)
	case <-time.After(a.timeout):
		http.Error(w, `{"error":"response timeout"}`, http.StatusGatewayTimeout)
	case <-r.Context().Done():
		return
	}
}

// handleReaction accepts a reaction on a previously returned message.
func (a *RESTAdapter) handleReaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"user_id"`
		MessageID string `json:"message_id"`
		Emoji     string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MessageID == "" || req.Emoji == "" {
		http.Error(w, `{"error":"user_id, message_id and emoji are required"}`, http.StatusBadRequest)
		return
	}
	a.mu.RLock()
	bot := a.sent[req.MessageID]
	a.mu.RUnlock()

	if a.reactions != nil {
		a.reactions(&ReactionEvent{
			Platform:    "rest",
			MessageID:   req.MessageID,
			UserID:      req.UserID,
			Emoji:       req.Emoji,
			BotAuthored: bot,
		})
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *RESTAdapter) handleThread(w http.ResponseWriter, r *http.Request) {
	posts, ok := a.Thread(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, `{"error":"thread not found"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(posts)
}

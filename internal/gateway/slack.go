package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"
)

// SlackAdapter implements GatewayAdapter for Slack using Socket Mode.
// Threads are replies under a parent timestamp.
type SlackAdapter struct {
	client      *slack.Client
	socket      *socketmode.Client
	handler     MessageHandler
	reactions   ReactionHandler
	botUserID   string
	connected   bool
	connectedAt time.Time
	lastError   string
	lanes       lanes
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewSlackAdapter creates a Slack gateway adapter.
// botToken is the Bot User OAuth Token (xoxb-...).
// appToken is the App-Level Token (xapp-...) for Socket Mode.
func NewSlackAdapter(botToken, appToken string, logger *zap.Logger) *SlackAdapter {
	client := slack.New(botToken,
		slack.OptionAppLevelToken(appToken),
	)
	socket := socketmode.New(client,
		socketmode.OptionLog(zap.NewStdLog(logger)),
	)
	return &SlackAdapter{
		client: client,
		socket: socket,
		logger: logger,
	}
}

func (a *SlackAdapter) Platform() string { return "slack" }

func (a *SlackAdapter) OnMessage(h MessageHandler) { a.handler = h }

func (a *SlackAdapter) OnReaction(h ReactionHandler) { a.reactions = h }

// Connect resolves the bot identity and starts the Socket Mode event loop.
func (a *SlackAdapter) Connect(ctx context.Context) error {
	auth, err := a.client.AuthTestContext(ctx)
	if err != nil {
		a.mu.Lock()
		a.lastError = fmt.Sprintf("auth test: %v", err)
		a.mu.Unlock()
		return fmt.Errorf("slack auth: %w", err)
	}

	a.mu.Lock()
	a.botUserID = auth.UserID
	a.connected = true
	a.connectedAt = time.Now()
	a.lastError = ""
	a.mu.Unlock()

	go a.handleEvents(ctx)
	go func() {
		if err := a.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("slack socket mode error", zap.Error(err))
			a.mu.Lock()
			a.connected = false
			a.lastError = err.Error()
			a.mu.Unlock()
		}
	}()
	a.logger.Info("slack adapter connected via socket mode", zap.String("bot", auth.UserID))
	return nil
}

// handleEvents processes incoming Socket Mode events.
func (a *SlackAdapter) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-a.socket.Events:
			if !ok {
				return
			}
			a.processEvent(evt)
		}
	}
}

func (a *SlackAdapter) processEvent(evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	eventsAPI, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	if evt.Request != nil {
		a.socket.Ack(*evt.Request)
	}
	if eventsAPI.Type != slackevents.CallbackEvent {
		return
	}

	switch inner := eventsAPI.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		// Bot messages and edits are not user requests.
		if inner.BotID != "" || inner.SubType != "" {
			return
		}
		a.handleSlackMessage(inner)
	case *slackevents.ReactionAddedEvent:
		a.handleSlackReaction(inner)
	}
}

// Handlers run on a per-channel lane so a slow turn only holds up its own
// channel.
func (a *SlackAdapter) handleSlackMessage(ev *slackevents.MessageEvent) {
	if a.handler == nil {
		return
	}
	msg := &InboundMessage{
		Platform:  "slack",
		ChannelID: ev.Channel,
		MessageID: ev.TimeStamp,
		UserID:    ev.User,
		UserName:  ev.User,
		Content:   ev.Text,
		Timestamp: time.Now(),
		ReplyTo:   ev.ThreadTimeStamp,
	}
	a.lanes.dispatch(ev.Channel, func() { a.handler(msg) })
}

func (a *SlackAdapter) handleSlackReaction(ev *slackevents.ReactionAddedEvent) {
	if a.reactions == nil || ev.Item.Type != "message" {
		return
	}
	a.mu.RLock()
	bot := a.botUserID
	a.mu.RUnlock()

	re := &ReactionEvent{
		Platform:    "slack",
		ChannelID:   ev.Item.Channel,
		MessageID:   ev.Item.Timestamp,
		UserID:      ev.User,
		Emoji:       ev.Reaction,
		BotAuthored: bot != "" && ev.ItemUser == bot,
	}
	a.lanes.dispatch(ev.Item.Channel, func() { a.reactions(re) })
}

// Send posts a message, threading it when ReplyTo is set, and returns its timestamp.
func (a *SlackAdapter) Send(ctx context.Context, msg *OutboundMessage) (string, error) {
	opts := []slack.MsgOption{
		slack.MsgOptionText(msg.Content, false),
	}
	if msg.ReplyTo != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ReplyTo))
	}
	_, ts, err := a.client.PostMessageContext(ctx, msg.ChannelID, opts...)
	if err != nil {
		a.logger.Warn("slack send failed",
			zap.String("channel", msg.ChannelID), zap.Error(err))
		return "", fmt.Errorf("slack send: %w", err)
	}
	return ts, nil
}

// CreateThread starts a thread under parent by posting the title as its
// first reply. The thread ID is the parent timestamp.
func (a *SlackAdapter) CreateThread(ctx context.Context, parent MessageRef, title string) (string, error) {
	_, _, err := a.client.PostMessageContext(ctx, parent.ChannelID,
		slack.MsgOptionText(title, false),
		slack.MsgOptionTS(parent.MessageID),
	)
	if err != nil {
		return "", fmt.Errorf("slack create thread: %w", err)
	}
	return parent.MessageID, nil
}

// PostToThread replies inside an existing thread.
func (a *SlackAdapter) PostToThread(ctx context.Context, thread ThreadRef, text string) error {
	_, _, err := a.client.PostMessageContext(ctx, thread.ChannelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(thread.ThreadID),
	)
	if err != nil {
		return fmt.Errorf("slack thread post: %w", err)
	}
	return nil
}

// Close is a no-op; the socket context cancellation handles shutdown.
func (a *SlackAdapter) Close() error {
	return nil
}

func (a *SlackAdapter) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := AdapterStatus{
		Platform:  "slack",
		Connected: a.connected,
		Error:     a.lastError,
	}
	if a.connected {
		t := a.connectedAt
		s.ConnectedAt = &t
		s.Details = "bot=" + a.botUserID
	}
	return s
}

package gateway

import (
	"context"
	"errors"
	"time"
)

// ErrTransport wraps every outbound delivery failure.
var ErrTransport = errors.New("transport failure")

// GatewayAdapter defines the interface for platform adapters.
type GatewayAdapter interface {
	Platform() string
	Connect(ctx context.Context) error
	Send(ctx context.Context, msg *OutboundMessage) (string, error)
	CreateThread(ctx context.Context, parent MessageRef, title string) (string, error)
	PostToThread(ctx context.Context, thread ThreadRef, text string) error
	OnMessage(handler MessageHandler)
	OnReaction(handler ReactionHandler)
	Close() error
}

// MessageHandler processes inbound messages from any platform.
type MessageHandler func(msg *InboundMessage)

// ReactionHandler processes reactions added to messages.
type ReactionHandler func(evt *ReactionEvent)

// InboundMessage is a normalized message from any platform.
type InboundMessage struct {
	Platform  string    `json:"platform"`
	ChannelID string    `json:"channel_id"`
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ReplyTo   string    `json:"reply_to,omitempty"`
}

// Ref returns a reference to this message.
func (m *InboundMessage) Ref() MessageRef {
	return MessageRef{Platform: m.Platform, ChannelID: m.ChannelID, MessageID: m.MessageID}
}

// OutboundMessage is a message sent to a specific platform channel.
type OutboundMessage struct {
	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	ReplyTo   string `json:"reply_to,omitempty"`
}

// ReactionEvent is a normalized reaction added to a message.
type ReactionEvent struct {
	Platform    string `json:"platform"`
	ChannelID   string `json:"channel_id"`
	MessageID   string `json:"message_id"`
	UserID      string `json:"user_id"`
	Emoji       string `json:"emoji"`
	BotAuthored bool   `json:"bot_authored"`
}

// MessageRef identifies a message on a platform.
type MessageRef struct {
	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// ThreadRef identifies a thread. On Slack ThreadID is the parent timestamp;
// on Discord it is the thread channel ID.
type ThreadRef struct {
	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id"`
	ThreadID  string `json:"thread_id"`
}

// IsZero reports whether the reference points nowhere.
func (t ThreadRef) IsZero() bool { return t.ThreadID == "" }

// AdapterStatus describes the connection state of an adapter.
type AdapterStatus struct {
	Platform    string     `json:"platform"`
	Connected   bool       `json:"connected"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	Details     string     `json:"details,omitempty"`
	Error       string     `json:"error,omitempty"`
}

package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// threadArchiveMinutes is how long an idle work item thread stays open.
const threadArchiveMinutes = 1440

// DiscordAdapter implements GatewayAdapter for Discord using the bot gateway.
// Threads are real Discord thread channels started from the request message.
type DiscordAdapter struct {
	token       string
	session     *discordgo.Session
	handler     MessageHandler
	reactions   ReactionHandler
	connected   bool
	connectedAt time.Time
	lastError   string
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewDiscordAdapter creates a Discord gateway adapter.
func NewDiscordAdapter(token string, logger *zap.Logger) *DiscordAdapter {
	return &DiscordAdapter{
		token:  token,
		logger: logger,
	}
}

func (a *DiscordAdapter) Platform() string { return "discord" }

func (a *DiscordAdapter) OnMessage(h MessageHandler) { a.handler = h }

func (a *DiscordAdapter) OnReaction(h ReactionHandler) { a.reactions = h }

// Connect opens the Discord gateway websocket.
func (a *DiscordAdapter) Connect(_ context.Context) error {
	session, err := discordgo.New("Bot " + a.token)
	if err != nil {
		a.mu.Lock()
		a.lastError = fmt.Sprintf("session create: %v", err)
		a.mu.Unlock()
		return fmt.Errorf("discord session: %w", err)
	}
	a.session = session

	a.session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessageReactions |
		discordgo.IntentsMessageContent
	a.session.AddHandler(a.onMessageCreate)
	a.session.AddHandler(a.onReactionAdd)

	if err := a.session.Open(); err != nil {
		a.mu.Lock()
		a.lastError = fmt.Sprintf("open failed: %v", err)
		a.connected = false
		a.mu.Unlock()
		return fmt.Errorf("discord open: %w", err)
	}

	a.mu.Lock()
	a.connected = true
	a.connectedAt = time.Now()
	a.lastError = ""
	a.mu.Unlock()

	guildCount := len(a.session.State.Guilds)
	if guildCount == 0 {
		a.logger.Warn("discord bot not added to any server")
	}
	a.logger.Info("discord adapter connected",
		zap.String("user", a.session.State.User.Username),
		zap.Int("guilds", guildCount))
	return nil
}

// onMessageCreate handles incoming Discord messages.
func (a *DiscordAdapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}
	if a.handler == nil {
		return
	}
	a.handler(&InboundMessage{
		Platform:  "discord",
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		UserID:    m.Author.ID,
		UserName:  m.Author.Username,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	})
}

// onReactionAdd normalizes reactions. Authorship is looked up in the state
// cache first, then over REST.
func (a *DiscordAdapter) onReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if a.reactions == nil || r.UserID == s.State.User.ID {
		return
	}
	a.reactions(&ReactionEvent{
		Platform:    "discord",
		ChannelID:   r.ChannelID,
		MessageID:   r.MessageID,
		UserID:      r.UserID,
		Emoji:       r.Emoji.Name,
		BotAuthored: a.authoredByBot(s, r.ChannelID, r.MessageID),
	})
}

func (a *DiscordAdapter) authoredByBot(s *discordgo.Session, channelID, messageID string) bool {
	msg, err := s.State.Message(channelID, messageID)
	if err != nil {
		msg, err = s.ChannelMessage(channelID, messageID)
		if err != nil {
			a.logger.Warn("discord reaction target lookup failed",
				zap.String("message", messageID), zap.Error(err))
			return false
		}
	}
	return msg.Author != nil && msg.Author.ID == s.State.User.ID
}

// Send posts a message to a Discord channel, as a reply when ReplyTo is set.
func (a *DiscordAdapter) Send(_ context.Context, msg *OutboundMessage) (string, error) {
	var (
		sent *discordgo.Message
		err  error
	)
	if msg.ReplyTo != "" {
		sent, err = a.session.ChannelMessageSendReply(msg.ChannelID, msg.Content,
			&discordgo.MessageReference{MessageID: msg.ReplyTo, ChannelID: msg.ChannelID})
	} else {
		sent, err = a.session.ChannelMessageSend(msg.ChannelID, msg.Content)
	}
	if err != nil {
		return "", fmt.Errorf("discord send: %w", err)
	}
	return sent.ID, nil
}

// CreateThread starts a thread from the parent message.
func (a *DiscordAdapter) CreateThread(_ context.Context, parent MessageRef, title string) (string, error) {
	if len(title) > 100 {
		title = title[:100]
	}
	ch, err := a.session.MessageThreadStart(parent.ChannelID, parent.MessageID, title, threadArchiveMinutes)
	if err != nil {
		return "", fmt.Errorf("discord thread start: %w", err)
	}
	return ch.ID, nil
}

// PostToThread posts into a thread channel.
func (a *DiscordAdapter) PostToThread(_ context.Context, thread ThreadRef, text string) error {
	if _, err := a.session.ChannelMessageSend(thread.ThreadID, text); err != nil {
		return fmt.Errorf("discord thread post: %w", err)
	}
	return nil
}

// Close shuts down the Discord session.
func (a *DiscordAdapter) Close() error {
	if a.session != nil {
		return a.session.Close()
	}
	return nil
}

func (a *DiscordAdapter) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := AdapterStatus{
		Platform:  "discord",
		Connected: a.connected,
		Error:     a.lastError,
	}
	if a.connected {
		t := a.connectedAt
		s.ConnectedAt = &t
		guildCount := 0
		if a.session != nil && a.session.State != nil {
			guildCount = len(a.session.State.Guilds)
		}
		s.Details = fmt.Sprintf("bot=%s, guilds=%d",
			a.session.State.User.Username, guildCount)
	}
	return s
}

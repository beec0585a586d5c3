// Package feedback binds reactions and follow-up remarks to earlier
// exchanges and records them for behavioral tuning.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lebron1212/aos-dev-team-sub000/internal/oracle"
	"go.uber.org/zap"
)

// Record sources.
const (
	SourceReaction = "reaction"
	SourcePassive  = "passive"
)

// SuggestionPrompt is sent when a user asks to correct a reply.
const SuggestionPrompt = "What should I have done differently? Your next message will be saved as a suggestion."

// Record is one piece of captured feedback.
type Record struct {
	MessageID    string    `json:"messageId"`
	UserID       string    `json:"userId"`
	Input        string    `json:"input"`
	Response     string    `json:"response"`
	FeedbackType Type      `json:"feedbackType"`
	Suggestion   string    `json:"suggestion,omitempty"`
	Source       string    `json:"source"`
	CreatedAt    time.Time `json:"createdAt"`
}

// LearningStore receives feedback records.
type LearningStore interface {
	Append(ctx context.Context, rec Record) error
}

// Reaction is a reaction on a transport message.
type Reaction struct {
	MessageID   string
	UserID      string
	Emoji       string
	BotAuthored bool
}

// Correlator captures feedback from reactions and passive detection.
type Correlator struct {
	cache    *Cache
	store    LearningStore
	oracle   oracle.Oracle
	mu       sync.Mutex
	awaiting map[string]Exchange // user -> exchange a suggestion is expected for
	wg       sync.WaitGroup
	now      func() time.Time
	logger   *zap.Logger
}

// NewCorrelator creates a correlator.
func NewCorrelator(cache *Cache, store LearningStore, o oracle.Oracle, logger *zap.Logger) *Correlator {
	return &Correlator{
		cache:    cache,
		store:    store,
		oracle:   o,
		awaiting: make(map[string]Exchange),
		now:      time.Now,
		logger:   logger,
	}
}

// Cache returns the correlation cache.
func (c *Correlator) Cache() *Cache { return c.cache }

// Track records an accepted utterance before any response exists.
func (c *Correlator) Track(messageID, userID, input string) {
	c.cache.Track(messageID, userID, input, c.now())
}

// Respond records the response for a tracked message.
func (c *Correlator) Respond(messageID, response string) {
	c.cache.Respond(messageID, response)
}

// Alias binds the bot's reply message to the request it answered.
func (c *Correlator) Alias(replyID, messageID string) {
	c.cache.Alias(replyID, messageID)
}

// HandleReaction processes a reaction. For a suggestion reaction it returns
// the prompt to send back; otherwise it returns "".
func (c *Correlator) HandleReaction(ctx context.Context, r Reaction) (string, error) {
	if !r.BotAuthored {
		return "", nil
	}
	t, ok := EmojiType(r.Emoji)
	if !ok {
		return "", nil
	}
	ex, ok := c.cache.Lookup(r.MessageID)
	if !ok {
		c.logger.Debug("reaction on an untracked message", zap.String("message", r.MessageID))
		return "", nil
	}

	if t == Suggestion {
		c.mu.Lock()
		c.awaiting[r.UserID] = ex
		c.mu.Unlock()
		return SuggestionPrompt, nil
	}
	return "", c.append(ctx, Record{
		MessageID:    ex.MessageID,
		UserID:       r.UserID,
		Input:        ex.Input,
		Response:     ex.Response,
		FeedbackType: t,
		Source:       SourceReaction,
	})
}

// ConsumeSuggestion treats text as the correction if the user is awaiting
// one. It reports whether the message was consumed. Blank text is not
// consumed and the user keeps awaiting.
func (c *Correlator) ConsumeSuggestion(ctx context.Context, userID, text string) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, nil
	}
	c.mu.Lock()
	ex, ok := c.awaiting[userID]
	delete(c.awaiting, userID)
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, c.append(ctx, Record{
		MessageID:    ex.MessageID,
		UserID:       userID,
		Input:        ex.Input,
		Response:     ex.Response,
		FeedbackType: Suggestion,
		Suggestion:   text,
		Source:       SourceReaction,
	})
}

// Awaiting reports whether a suggestion is expected from the user.
func (c *Correlator) Awaiting(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.awaiting[userID]
	return ok
}

const detectInstructions = `You decide whether a chat message is feedback on the assistant's previous reply.
Reply with one JSON object and nothing else:
{"isFeedback":true|false,"type":"positive|negative|suggestion","confidence":0.0}`

const extractInstructions = `Extract the concrete change the user is asking for, as one imperative sentence.
Reply with one JSON object and nothing else: {"suggestion":"..."}`

type detection struct {
	IsFeedback bool    `json:"isFeedback"`
	Type       Type    `json:"type"`
	Confidence float64 `json:"confidence"`
}

type extraction struct {
	Suggestion string `json:"suggestion"`
}

// DetectPassiveAsync runs DetectPassive in the background.
func (c *Correlator) DetectPassiveAsync(ctx context.Context, userID, messageID, text string) {
	ctx = context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.DetectPassive(ctx, userID, messageID, text); err != nil {
			c.logger.Warn("passive feedback not recorded", zap.String("user", userID), zap.Error(err))
		}
	}()
}

// Wait blocks until background detection finishes.
func (c *Correlator) Wait() { c.wg.Wait() }

// DetectPassive checks text against the user's most recent answered exchange.
// If the oracle fails the message is treated as not feedback.
func (c *Correlator) DetectPassive(ctx context.Context, userID, messageID, text string) error {
	prev, ok := c.cache.LatestAnswered(userID, messageID)
	if !ok {
		return nil
	}
	body := fmt.Sprintf("Previous request: %s\nAssistant reply: %s\nNew message: %s", prev.Input, prev.Response, text)

	det := oracle.AskJSON(ctx, c.oracle, oracle.Prompt{
		Purpose:      oracle.PurposeFeedback,
		Instructions: detectInstructions,
		Body:         body,
		MaxTokens:    150,
	}, func(d *detection) error {
		if d.IsFeedback {
			switch d.Type {
			case Positive, Negative, Suggestion:
			case "":
				d.Type = Suggestion
			default:
				return fmt.Errorf("unknown feedback type %q", d.Type)
			}
		}
		return nil
	})
	if !det.OK {
		c.logger.Debug("passive feedback check skipped", zap.Error(det.Err))
		return nil
	}
	if !det.Value.IsFeedback {
		return nil
	}

	rec := Record{
		MessageID:    prev.MessageID,
		UserID:       userID,
		Input:        prev.Input,
		Response:     prev.Response,
		FeedbackType: det.Value.Type,
		Source:       SourcePassive,
	}
	if rec.FeedbackType != Positive {
		ext := oracle.AskJSON(ctx, c.oracle, oracle.Prompt{
			Purpose:      oracle.PurposeFeedback,
			Instructions: extractInstructions,
			Body:         body,
			MaxTokens:    150,
		}, func(e *extraction) error {
			if strings.TrimSpace(e.Suggestion) == "" {
				return errors.New("empty suggestion")
			}
			return nil
		})
		rec.Suggestion = ext.Or(extraction{Suggestion: strings.TrimSpace(text)}).Suggestion
	}
	return c.append(ctx, rec)
}

func (c *Correlator) append(ctx context.Context, rec Record) error {
	rec.CreatedAt = c.now()
	if err := c.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("append feedback: %w", err)
	}
	c.logger.Info("feedback recorded",
		zap.String("message", rec.MessageID),
		zap.String("type", string(rec.FeedbackType)),
		zap.String("source", rec.Source))
	return nil
}

package orchestrator

import (
	"context"

	"github.com/lebron1212/aos-dev-team-sub000/internal/command"
	"github.com/lebron1212/aos-dev-team-sub000/internal/feedback"
	"github.com/lebron1212/aos-dev-team-sub000/internal/gateway"
	"go.uber.org/zap"
)

// Transport delivers replies.
type Transport interface {
	Send(ctx context.Context, msg *gateway.OutboundMessage) (string, error)
}

// Commands dispatches slash commands.
type Commands interface {
	Dispatch(ctx context.Context, input string, cc *command.CommandContext) (*command.CommandResult, error)
}

// Handle is the inbound message handler for every transport. Slash commands
// bypass the pipeline.
func (o *Orchestrator) Handle(ctx context.Context, msg *gateway.InboundMessage) {
	if o.commands != nil && command.IsCommand(msg.Content) {
		o.handleCommand(ctx, msg)
		return
	}

	resp := o.ProcessRequest(ctx, Request{
		Utterance: msg.Content,
		UserID:    msg.UserID,
		UserName:  msg.UserName,
		MessageID: msg.MessageID,
		Origin:    msg.Ref(),
	})

	replyID := o.reply(ctx, msg, resp.Text)
	if replyID != "" {
		o.feedback.Alias(replyID, msg.MessageID)
	}
}

func (o *Orchestrator) handleCommand(ctx context.Context, msg *gateway.InboundMessage) {
	res, err := o.commands.Dispatch(ctx, msg.Content, &command.CommandContext{
		Platform:  msg.Platform,
		ChannelID: msg.ChannelID,
		UserID:    msg.UserID,
		UserName:  msg.UserName,
		Admin:     o.admins[msg.UserID],
	})
	text := ReplyInternalError
	if err != nil {
		o.logger.Warn("command failed", zap.String("command", msg.Content), zap.Error(err))
	} else if res != nil {
		text = res.Content
	}
	o.reply(ctx, msg, text)
}

// reply sends text back to the message's channel and returns the new
// message id, or "" when delivery failed.
func (o *Orchestrator) reply(ctx context.Context, msg *gateway.InboundMessage, text string) string {
	if o.transport == nil || text == "" {
		return ""
	}
	id, err := o.transport.Send(ctx, &gateway.OutboundMessage{
		Platform:  msg.Platform,
		ChannelID: msg.ChannelID,
		Content:   text,
		ReplyTo:   msg.MessageID,
	})
	if err != nil {
		o.logger.Warn("reply not delivered",
			zap.String("platform", msg.Platform),
			zap.String("channel", msg.ChannelID),
			zap.Error(err))
		return ""
	}
	return id
}

// HandleReaction routes a reaction to the feedback correlator and posts the
// follow-up prompt when one is needed.
func (o *Orchestrator) HandleReaction(ctx context.Context, evt *gateway.ReactionEvent) {
	prompt, err := o.feedback.HandleReaction(ctx, feedback.Reaction{
		MessageID:   evt.MessageID,
		UserID:      evt.UserID,
		Emoji:       evt.Emoji,
		BotAuthored: evt.BotAuthored,
	})
	if err != nil {
		o.logger.Warn("reaction feedback not recorded",
			zap.String("message", evt.MessageID),
			zap.String("emoji", evt.Emoji),
			zap.Error(err))
	}
	if prompt == "" || o.transport == nil {
		return
	}
	if _, err := o.transport.Send(ctx, &gateway.OutboundMessage{
		Platform:  evt.Platform,
		ChannelID: evt.ChannelID,
		Content:   prompt,
		ReplyTo:   evt.MessageID,
	}); err != nil {
		o.logger.Warn("suggestion prompt not delivered", zap.Error(err))
	}
}

// Wait blocks until background work started by requests has finished.
func (o *Orchestrator) Wait() {
	o.feedback.Wait()
	o.delegation.Wait()
}

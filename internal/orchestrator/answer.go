package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/lebron1212/aos-dev-team-sub000/internal/conversation"
	"github.com/lebron1212/aos-dev-team-sub000/internal/intent"
	"github.com/lebron1212/aos-dev-team-sub000/internal/oracle"
	"github.com/lebron1212/aos-dev-team-sub000/internal/workitem"
	"go.uber.org/zap"
)

// Fallback replies when the oracle cannot answer.
const (
	ReplyNotUnderstood = "I'm not sure what you need. You can ask me to build something, change or manage existing work, or ask a question."
	ReplyQuestion      = "I can't look that up right now. Please try again in a moment."
	ReplyAnalyze       = "I can't analyze that right now. Please try again in a moment."
	ReplyGreeting      = "Hi! Tell me what you'd like built, or ask me about your work items."
)

const answerInstructions = `You are the front desk of a software delivery team.
Answer briefly and concretely in plain text. If you do not know, say so.`

// answer serves analyze, question and conversation intents.
func (o *Orchestrator) answer(ctx context.Context, cc *conversation.Context, in intent.Scored) Response {
	if in.Category == intent.Conversation && in.Subcategory == intent.SubClarify {
		return Response{Text: ReplyNotUnderstood, Kind: KindAnswered}
	}

	fallback := ReplyGreeting
	switch in.Category {
	case intent.Question:
		fallback = ReplyQuestion
	case intent.Analyze:
		fallback = ReplyAnalyze
	}

	var item *workitem.WorkItem
	if in.Category == intent.Analyze {
		target := in.Parameters.Target
		if target == "" {
			target = cc.LastWorkItem
		}
		if w, ok := o.items.Get(target); ok {
			item = w
			fallback = workitem.Describe(w, o.now())
		}
	}

	text, err := o.oracle.Ask(ctx, oracle.Prompt{
		Purpose:      oracle.PurposeAnswer,
		Instructions: answerInstructions,
		Body:         o.answerBody(cc, in, item),
		MaxTokens:    600,
	})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		o.logger.Warn("answer oracle failed, using fallback",
			zap.String("category", string(in.Category)), zap.Error(err))
		text = fallback
	}

	resp := Response{Text: text, Kind: KindAnswered}
	if item != nil {
		resp.WorkItemID = item.ID
	}
	return resp
}

func (o *Orchestrator) answerBody(cc *conversation.Context, in intent.Scored, item *workitem.WorkItem) string {
	var b strings.Builder
	if n := len(cc.History); n > 1 {
		b.WriteString("Recent conversation:\n")
		from := n - 7
		if from < 0 {
			from = 0
		}
		// the last turn is the current utterance
		for _, t := range cc.History[from : n-1] {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Text)
		}
	}
	if item != nil {
		fmt.Fprintf(&b, "Work item: %s\n%s\n", workitem.Describe(item, o.now()), item.Description)
	}
	fmt.Fprintf(&b, "Request type: %s\nUser: %s", in.Category, in.Parameters.Description)
	return b.String()
}

// Package orchestrator is the single entry point for user messages. It runs
// each utterance through feedback capture, clarification, delegation,
// classification and dispatch, and always produces a reply.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/lebron1212/aos-dev-team-sub000/internal/clarify"
	"github.com/lebron1212/aos-dev-team-sub000/internal/conversation"
	"github.com/lebron1212/aos-dev-team-sub000/internal/delegation"
	"github.com/lebron1212/aos-dev-team-sub000/internal/feedback"
	"github.com/lebron1212/aos-dev-team-sub000/internal/gateway"
	"github.com/lebron1212/aos-dev-team-sub000/internal/intent"
	"github.com/lebron1212/aos-dev-team-sub000/internal/oracle"
	"github.com/lebron1212/aos-dev-team-sub000/internal/workitem"
	"go.uber.org/zap"
)

// Replies used on failure paths.
const (
	ReplyInternalError   = "Something went wrong while handling that. Please try again."
	ReplyWhichWorkItem   = "Which work item? I couldn't find one to apply that to. Use /work to see yours."
	ReplyHandleMyself    = "I'll handle it myself."
	ReplyInvalidState    = "That isn't possible in the work item's current state."
	ReplySuggestionSaved = "Thanks, I've saved that suggestion."
)

// Outcome kinds.
const (
	KindDelegated  = "delegated"
	KindClarifying = "clarifying"
	KindCreated    = "created"
	KindManaged    = "managed"
	KindAnswered   = "answered"
	KindFeedback   = "feedback"
	KindError      = "error"
)

// Request is one inbound utterance.
type Request struct {
	Utterance string
	UserID    string
	UserName  string
	MessageID string
	Origin    gateway.MessageRef
}

// Response is the reply to a Request.
type Response struct {
	Text       string               `json:"text"`
	Kind       string               `json:"kind"`
	WorkItemID string               `json:"workItemId,omitempty"`
	Intent     *intent.Scored       `json:"intent,omitempty"`
	Delegation *delegation.Decision `json:"delegation,omitempty"`
}

// IntentClassifier never fails; see intent.Chain.
type IntentClassifier interface {
	Classify(ctx context.Context, utterance string, hints intent.Hints) intent.Scored
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Classifier IntentClassifier
	Clarifier  *clarify.Clarifier
	Contexts   *conversation.Store
	WorkItems  *workitem.Registry
	Delegation *delegation.Resolver
	Feedback   *feedback.Correlator
	Oracle     oracle.Oracle
	Transport  Transport
	Commands   Commands
	Admins     []string
	Logger     *zap.Logger
}

// Orchestrator composes the request pipeline.
type Orchestrator struct {
	classifier IntentClassifier
	clarifier  *clarify.Clarifier
	contexts   *conversation.Store
	items      *workitem.Registry
	delegation *delegation.Resolver
	feedback   *feedback.Correlator
	oracle     oracle.Oracle
	transport  Transport
	commands   Commands
	admins     map[string]bool
	now        func() time.Time
	logger     *zap.Logger
}

// New creates an Orchestrator.
func New(d Deps) *Orchestrator {
	admins := make(map[string]bool, len(d.Admins))
	for _, a := range d.Admins {
		admins[a] = true
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	o := d.Oracle
	if o == nil {
		o = oracle.Unavailable
	}
	return &Orchestrator{
		classifier: d.Classifier,
		clarifier:  d.Clarifier,
		contexts:   d.Contexts,
		items:      d.WorkItems,
		delegation: d.Delegation,
		feedback:   d.Feedback,
		oracle:     o,
		transport:  d.Transport,
		commands:   d.Commands,
		admins:     admins,
		now:        time.Now,
		logger:     logger,
	}
}

// ProcessRequest handles one utterance. It never fails: errors and panics
// are logged and turned into a fixed reply.
func (o *Orchestrator) ProcessRequest(ctx context.Context, req Request) (resp Response) {
	start := o.now()
	o.feedback.Track(req.MessageID, req.UserID, req.Utterance)

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("request panicked",
				zap.String("user", req.UserID),
				zap.String("message", req.MessageID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			resp = Response{Text: ReplyInternalError, Kind: KindError}
		}
		o.feedback.Respond(req.MessageID, resp.Text)
		o.logger.Info("request handled",
			zap.String("user", req.UserID),
			zap.String("message", req.MessageID),
			zap.String("kind", resp.Kind),
			zap.String("work_item", resp.WorkItemID),
			zap.Duration("duration", o.now().Sub(start)))
	}()

	consumed, err := o.feedback.ConsumeSuggestion(ctx, req.UserID, req.Utterance)
	if err != nil {
		o.logger.Warn("suggestion not saved", zap.String("user", req.UserID), zap.Error(err))
	}
	if consumed {
		return Response{Text: ReplySuggestionSaved, Kind: KindFeedback}
	}
	o.feedback.DetectPassiveAsync(ctx, req.UserID, req.MessageID, req.Utterance)

	cc, release := o.contexts.Acquire(req.UserID)
	defer release()
	cc.AddTurn("user", req.Utterance, o.now())

	resp, err = o.route(ctx, cc, req)
	if err != nil {
		resp = o.failure(req, err)
	}
	cc.AddTurn("assistant", resp.Text, o.now())
	return resp
}

func (o *Orchestrator) route(ctx context.Context, cc *conversation.Context, req Request) (Response, error) {
	if cc.Gathering {
		out, err := o.clarifier.Answer(ctx, cc, req.Utterance)
		if err != nil {
			return Response{}, err
		}
		return o.settleBuild(cc, req, out)
	}

	if d := o.delegation.Decide(ctx, req.Utterance); d.Delegate {
		err := o.delegation.Apply(ctx, d, delegation.Handoff{
			Utterance: req.Utterance,
			UserID:    req.UserID,
			UserName:  req.UserName,
			Platform:  req.Origin.Platform,
			ChannelID: req.Origin.ChannelID,
			MessageID: req.MessageID,
		})
		if err == nil {
			return Response{
				Text:       fmt.Sprintf("I've passed this to %s (%s).", d.Specialist, d.Reason),
				Kind:       KindDelegated,
				Delegation: &d,
			}, nil
		}
		o.logger.Info("delegation not applied, handling locally", zap.Error(err))
	}

	in := o.classifier.Classify(ctx, req.Utterance, cc.Hints())
	o.logger.Debug("classified",
		zap.String("user", req.UserID),
		zap.String("category", string(in.Category)),
		zap.String("subcategory", in.Subcategory),
		zap.Float64("confidence", in.Confidence),
		zap.String("source", in.Source))

	resp, err := o.dispatch(ctx, cc, req, in)
	if err == nil && resp.Intent == nil {
		resp.Intent = &in
	}
	return resp, err
}

func (o *Orchestrator) dispatch(ctx context.Context, cc *conversation.Context, req Request, in intent.Scored) (Response, error) {
	switch in.Category {
	case intent.Build:
		return o.settleBuild(cc, req, o.clarifier.Begin(ctx, cc, in))
	case intent.Modify:
		return o.modify(cc, req, in)
	case intent.Manage:
		text, err := o.items.HandleManagementCommand(ctx, in.Intent, req.UserID, cc.LastWorkItem)
		if err != nil {
			return Response{}, err
		}
		return Response{Text: text, Kind: KindManaged, WorkItemID: managedTarget(in, cc)}, nil
	default:
		return o.answer(ctx, cc, in), nil
	}
}

// settleBuild either relays the clarifier's question or opens the work item.
func (o *Orchestrator) settleBuild(cc *conversation.Context, req Request, out clarify.Outcome) (Response, error) {
	if !out.ShouldProceed {
		return Response{Text: out.NextQuestion, Kind: KindClarifying, Intent: &out.Intent}, nil
	}
	original := out.Intent.Parameters.Description
	if original == "" {
		original = req.Utterance
	}
	w, err := o.items.Create(workitem.CreateRequest{
		Description:     out.ClarifiedRequest,
		OriginalRequest: original,
		AssignedAgents:  out.Intent.RequiredAgents,
		Complexity:      out.Intent.EstimatedComplexity,
		UserID:          req.UserID,
		MessageID:       req.MessageID,
		Origin:          req.Origin,
	})
	if err != nil {
		return Response{}, err
	}
	cc.RememberWorkItem(w.ID)

	text := fmt.Sprintf("Created work item %s: %s. Status: %s, %d%%.", w.ID, w.Title, w.Status, w.Progress)
	if n := len(out.Requirements); n > 0 {
		text += fmt.Sprintf(" Captured %d requirement(s).", n)
	}
	return Response{Text: text, Kind: KindCreated, WorkItemID: w.ID, Intent: &out.Intent}, nil
}

func (o *Orchestrator) modify(cc *conversation.Context, req Request, in intent.Scored) (Response, error) {
	target := in.Parameters.Target
	if target == "" {
		target = cc.LastWorkItem
	}
	if target == "" {
		return Response{}, workitem.ErrTargetNotFound
	}
	parent, ok := o.items.Get(target)
	if !ok {
		return Response{}, fmt.Errorf("%w: %s", workitem.ErrTargetNotFound, target)
	}

	desc := in.Parameters.Description
	if desc == "" {
		desc = req.Utterance
	}
	w, err := o.items.Create(workitem.CreateRequest{
		Title:           "Change to " + parent.Title + ": " + workitem.Title(desc),
		Description:     desc,
		OriginalRequest: req.Utterance,
		AssignedAgents:  in.RequiredAgents,
		Complexity:      in.EstimatedComplexity,
		UserID:          req.UserID,
		MessageID:       req.MessageID,
		Origin:          req.Origin,
		Parent:          parent.ID,
	})
	if err != nil {
		return Response{}, err
	}
	cc.RememberWorkItem(w.ID)
	return Response{
		Text:       fmt.Sprintf("Created follow-up %s for %s. Status: %s, %d%%.", w.ID, parent.ID, w.Status, w.Progress),
		Kind:       KindCreated,
		WorkItemID: w.ID,
	}, nil
}

func managedTarget(in intent.Scored, cc *conversation.Context) string {
	if in.Subcategory == intent.SubList {
		return ""
	}
	if in.Parameters.Target != "" {
		return in.Parameters.Target
	}
	return cc.LastWorkItem
}

// failure maps a pipeline error to its reply.
func (o *Orchestrator) failure(req Request, err error) Response {
	text := ReplyInternalError
	switch {
	case errors.Is(err, workitem.ErrTargetNotFound):
		text = ReplyWhichWorkItem
	case errors.Is(err, delegation.ErrNoActiveSpecialist):
		text = ReplyHandleMyself
	case errors.Is(err, workitem.ErrInvalidTransition):
		text = ReplyInvalidState
	case errors.Is(err, workitem.ErrValidation):
		text = "I couldn't do that: " + strings.TrimPrefix(err.Error(), workitem.ErrValidation.Error()+": ") + "."
	}
	o.logger.Warn("request failed",
		zap.String("user", req.UserID),
		zap.String("message", req.MessageID),
		zap.Error(err))
	return Response{Text: text, Kind: KindError}
}

package bus

import (
	"context"

	"github.com/lebron1212/aos-dev-team-sub000/internal/delegation"
	"github.com/lebron1212/aos-dev-team-sub000/internal/feedback"
	"github.com/lebron1212/aos-dev-team-sub000/internal/workitem"
)

// Payload kinds.
const (
	KindHandoff  = "handoff"
	KindFeedback = "feedback"
)

// Publisher is the part of Bus the adapters need.
type Publisher interface {
	Publish(ctx context.Context, stream, kind string, payload any) error
}

// Forwarder delivers hand-offs onto the specialist's stream.
type Forwarder struct{ pub Publisher }

// NewForwarder returns a delegation.Forwarder over pub.
func NewForwarder(pub Publisher) *Forwarder { return &Forwarder{pub: pub} }

func (f *Forwarder) Name() string { return "redis" }

func (f *Forwarder) Forward(ctx context.Context, to delegation.Specialist, h delegation.Handoff) error {
	return f.pub.Publish(ctx, SpecialistStream(to.Name), KindHandoff, h)
}

// FeedbackStream fans learning records out to the feedback stream.
type FeedbackStream struct{ pub Publisher }

// NewFeedbackStream returns a feedback.LearningStore over pub.
func NewFeedbackStream(pub Publisher) *FeedbackStream { return &FeedbackStream{pub: pub} }

func (s *FeedbackStream) Append(ctx context.Context, rec feedback.Record) error {
	return s.pub.Publish(ctx, StreamFeedback, KindFeedback, rec)
}

// WorkItemEvents publishes registry events.
type WorkItemEvents struct{ pub Publisher }

// NewWorkItemEvents returns a workitem.Observer over pub.
func NewWorkItemEvents(pub Publisher) *WorkItemEvents { return &WorkItemEvents{pub: pub} }

func (w *WorkItemEvents) Name() string { return "redis-events" }

func (w *WorkItemEvents) Observe(ctx context.Context, evt workitem.Event) error {
	return w.pub.Publish(ctx, StreamWorkItems, string(evt.Kind), evt)
}

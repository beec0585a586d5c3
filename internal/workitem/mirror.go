package workitem

import (
	"context"
	"fmt"
	"sync"

	"github.com/lebron1212/aos-dev-team-sub000/internal/gateway"
	"go.uber.org/zap"
)

// Threads is the part of the transport the mirror needs.
type Threads interface {
	CreateThread(ctx context.Context, parent gateway.MessageRef, title string) (string, error)
	PostToThread(ctx context.Context, thread gateway.ThreadRef, text string) error
}

// ThreadMirror opens one thread per work item under the request message and
// posts every lifecycle change there.
type ThreadMirror struct {
	threads  Threads
	registry *Registry
	known    sync.Map // item ID -> gateway.ThreadRef
	logger   *zap.Logger
}

// NewThreadMirror creates the mirror. Call SetRegistry before events flow.
func NewThreadMirror(threads Threads, logger *zap.Logger) *ThreadMirror {
	return &ThreadMirror{threads: threads, logger: logger}
}

// SetRegistry lets the mirror record thread references on items.
func (m *ThreadMirror) SetRegistry(r *Registry) { m.registry = r }

func (m *ThreadMirror) Name() string { return "thread-mirror" }

func (m *ThreadMirror) Observe(ctx context.Context, evt Event) error {
	w := evt.Item
	if evt.Kind == EventCreated {
		return m.open(ctx, w)
	}

	ref, ok := m.thread(w)
	if !ok {
		return nil
	}
	var text string
	switch evt.Kind {
	case EventOutputs:
		text = fmt.Sprintf("%s has new outputs (%d).", w.ID, len(w.Outputs))
	default:
		text = progressLine(evt.From, w)
	}
	if err := m.threads.PostToThread(ctx, ref, text); err != nil {
		return fmt.Errorf("post to thread: %w", err)
	}
	return nil
}

func (m *ThreadMirror) open(ctx context.Context, w *WorkItem) error {
	if w.Origin.MessageID == "" {
		return nil
	}
	title := fmt.Sprintf("%s: %s", w.ID, w.Title)
	id, err := m.threads.CreateThread(ctx, w.Origin, title)
	if err != nil {
		return fmt.Errorf("create thread: %w", err)
	}
	ref := gateway.ThreadRef{Platform: w.Origin.Platform, ChannelID: w.Origin.ChannelID, ThreadID: id}
	m.known.Store(w.ID, ref)
	if m.registry != nil {
		m.registry.AttachThread(w.ID, ref)
	}

	opening := fmt.Sprintf("Tracking %s. Status: %s, %d%%.", w.ID, w.Status, w.Progress)
	if w.ParentWorkItem != "" {
		opening += fmt.Sprintf(" Follow-up to %s.", w.ParentWorkItem)
	}
	if err := m.threads.PostToThread(ctx, ref, opening); err != nil {
		return fmt.Errorf("post to thread: %w", err)
	}
	return nil
}

func (m *ThreadMirror) thread(w *WorkItem) (gateway.ThreadRef, bool) {
	if v, ok := m.known.Load(w.ID); ok {
		return v.(gateway.ThreadRef), true
	}
	if !w.Thread.IsZero() {
		return w.Thread, true
	}
	return gateway.ThreadRef{}, false
}

func progressLine(from Status, w *WorkItem) string {
	switch w.Status {
	case StatusPaused:
		return fmt.Sprintf("Paused at %d%%.", w.Progress)
	case StatusCancelled:
		return fmt.Sprintf("Cancelled at %d%%.", w.Progress)
	case StatusFailed:
		msg := fmt.Sprintf("Failed at %d%%.", w.Progress)
		if n := len(w.Errors); n > 0 {
			msg += " " + w.Errors[n-1]
		}
		return msg
	case StatusCompleted:
		return "Completed. 100%."
	}
	if from == StatusPaused {
		return fmt.Sprintf("Resumed: %s, %d%%.", w.Status, w.Progress)
	}
	return fmt.Sprintf("%s: %d%%.", w.Status, w.Progress)
}

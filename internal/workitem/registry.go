package workitem

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lebron1212/aos-dev-team-sub000/internal/gateway"
	"github.com/lebron1212/aos-dev-team-sub000/internal/intent"
	"go.uber.org/zap"
)

// CreateRequest holds everything needed to open a work item.
type CreateRequest struct {
	Title           string
	Description     string
	OriginalRequest string
	AssignedAgents  []string
	PrimaryAgent    string
	Complexity      intent.Complexity
	UserID          string
	MessageID       string
	Origin          gateway.MessageRef
	Parent          string
}

// Registry owns every work item. Items are never deleted; cancelled and
// failed items stay for audit.
type Registry struct {
	mu     sync.RWMutex
	items  map[string]*WorkItem
	events *Dispatcher
	now    func() time.Time
	logger *zap.Logger
}

// NewRegistry creates an empty registry. events may be nil.
func NewRegistry(events *Dispatcher, logger *zap.Logger) *Registry {
	return &Registry{
		items:  make(map[string]*WorkItem),
		events: events,
		now:    time.Now,
		logger: logger,
	}
}

// newIDLocked returns "wi-" plus eight hex characters, unique within the registry.
func (r *Registry) newIDLocked() string {
	for {
		id := "wi-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		if _, taken := r.items[id]; !taken {
			return id
		}
	}
}

// Create opens a work item in status pending with zero progress.
func (r *Registry) Create(req CreateRequest) (*WorkItem, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = Title(req.Description)
	}
	if title == "" || req.UserID == "" {
		return nil, fmt.Errorf("%w: title and user are required", ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if req.Parent != "" {
		if _, ok := r.items[req.Parent]; !ok {
			return nil, fmt.Errorf("%w: parent %s", ErrTargetNotFound, req.Parent)
		}
	}
	primary := req.PrimaryAgent
	if primary == "" && len(req.AssignedAgents) > 0 {
		primary = req.AssignedAgents[0]
	}

	now := r.now()
	w := &WorkItem{
		ID:              r.newIDLocked(),
		Title:           title,
		Description:     req.Description,
		OriginalRequest: req.OriginalRequest,
		Status:          StatusPending,
		AssignedAgents:  append([]string(nil), req.AssignedAgents...),
		PrimaryAgent:    primary,
		Complexity:      req.Complexity,
		UserID:          req.UserID,
		MessageID:       req.MessageID,
		Origin:          req.Origin,
		ParentWorkItem:  req.Parent,
		StartTime:       now,
		UpdatedAt:       now,
	}
	r.items[w.ID] = w
	r.emitLocked(EventCreated, "", w)

	r.logger.Info("work item created",
		zap.String("id", w.ID),
		zap.String("user", w.UserID),
		zap.String("parent", w.ParentWorkItem))
	return w.Clone(), nil
}

// Get returns a copy of the item.
func (r *Registry) Get(id string) (*WorkItem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.items[id]
	if !ok {
		return nil, false
	}
	return w.Clone(), true
}

// Active returns every non-terminal item, newest first.
func (r *Registry) Active() []*WorkItem {
	return r.filter(func(w *WorkItem) bool { return !w.Status.Terminal() })
}

// ForUser returns every item owned by userID, newest first.
func (r *Registry) ForUser(userID string) []*WorkItem {
	return r.filter(func(w *WorkItem) bool { return w.UserID == userID })
}

func (r *Registry) filter(keep func(*WorkItem) bool) []*WorkItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*WorkItem
	for _, w := range r.items {
		if keep(w) {
			out = append(out, w.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}

// Advance moves the item to the next phase. Progress becomes the larger of
// the current value, the phase floor and the requested value; it never
// decreases.
func (r *Registry) Advance(id string, to Status, progress int) (*WorkItem, error) {
	return r.mutate(id, func(w *WorkItem) error {
		if err := Transition(w.Status, to); err != nil {
			return err
		}
		if _, forward := phaseFloor[to]; !forward {
			return fmt.Errorf("%w: %s is not a phase", ErrInvalidTransition, to)
		}
		w.Progress = max(w.Progress, phaseFloor[to], min(progress, 100))
		if to == StatusCompleted {
			w.Progress = 100
		}
		w.Status = to
		return nil
	})
}

// Pause suspends a non-terminal item, remembering where to resume.
func (r *Registry) Pause(id string) (*WorkItem, error) {
	return r.mutate(id, func(w *WorkItem) error {
		if err := Transition(w.Status, StatusPaused); err != nil {
			return err
		}
		now := r.now()
		w.ResumeTo = w.Status
		w.PausedAt = &now
		w.Status = StatusPaused
		return nil
	})
}

// Resume returns a paused item to the state it was paused from and adds the
// pause to the accumulated paused time.
func (r *Registry) Resume(id string) (*WorkItem, error) {
	return r.mutate(id, func(w *WorkItem) error {
		if w.Status != StatusPaused {
			return fmt.Errorf("%w: %s is not paused", ErrInvalidTransition, w.Status)
		}
		r.endPause(w)
		w.Status = w.ResumeTo
		w.ResumeTo = ""
		return nil
	})
}

// Cancel ends the item. Progress is kept for audit.
func (r *Registry) Cancel(id, reason string) (*WorkItem, error) {
	return r.terminate(id, StatusCancelled, reason)
}

// Fail ends the item with an error.
func (r *Registry) Fail(id, reason string) (*WorkItem, error) {
	return r.terminate(id, StatusFailed, reason)
}

func (r *Registry) terminate(id string, to Status, reason string) (*WorkItem, error) {
	return r.mutate(id, func(w *WorkItem) error {
		if err := Transition(w.Status, to); err != nil {
			return err
		}
		if w.Status == StatusPaused {
			r.endPause(w)
			w.ResumeTo = ""
		}
		if reason != "" {
			w.Errors = append(w.Errors, reason)
		}
		w.Status = to
		return nil
	})
}

func (r *Registry) endPause(w *WorkItem) {
	if w.PausedAt != nil {
		w.PausedTime += r.now().Sub(*w.PausedAt)
		w.PausedAt = nil
	}
}

// SetOutputs merges outputs into a live item. Results that arrive after the
// item ended are rejected.
func (r *Registry) SetOutputs(id string, outputs map[string]string) (*WorkItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, id)
	}
	if w.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, w.Status)
	}
	if w.Outputs == nil {
		w.Outputs = make(map[string]string, len(outputs))
	}
	for k, v := range outputs {
		w.Outputs[k] = v
	}
	w.UpdatedAt = r.now()
	r.emitLocked(EventOutputs, w.Status, w)
	return w.Clone(), nil
}

// AttachThread records the transport thread mirroring an item.
func (r *Registry) AttachThread(id string, thread gateway.ThreadRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.items[id]; ok {
		w.Thread = thread
	}
}

// Restore loads a previously persisted item, for example at startup.
func (r *Registry) Restore(w *WorkItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[w.ID] = w.Clone()
}

func (r *Registry) mutate(id string, fn func(*WorkItem) error) (*WorkItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, id)
	}
	from := w.Status
	if err := fn(w); err != nil {
		return nil, err
	}
	w.UpdatedAt = r.now()
	r.emitLocked(EventTransitions, from, w)

	r.logger.Info("work item transition",
		zap.String("id", id),
		zap.String("from", string(from)),
		zap.String("to", string(w.Status)),
		zap.Int("progress", w.Progress))
	return w.Clone(), nil
}

// emitLocked publishes under the registry lock so per-item order matches
// transition order.
func (r *Registry) emitLocked(kind EventKind, from Status, w *WorkItem) {
	if r.events == nil {
		return
	}
	r.events.publish(Event{Kind: kind, From: from, Item: w.Clone()})
}

// Title derives a short title from a description.
func Title(desc string) string {
	desc = strings.TrimSpace(desc)
	if i := strings.IndexAny(desc, ".\n"); i > 0 {
		desc = desc[:i]
	}
	const maxLen = 60
	if r := []rune(desc); len(r) > maxLen {
		desc = strings.TrimSpace(string(r[:maxLen])) + "…"
	}
	if desc == "" {
		return ""
	}
	r := []rune(desc)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

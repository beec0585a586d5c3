package workitem

import (
	"time"

	"github.com/lebron1212/aos-dev-team-sub000/internal/gateway"
	"github.com/lebron1212/aos-dev-team-sub000/internal/intent"
)

// WorkItem is a tracked unit of requested work.
type WorkItem struct {
	ID              string             `json:"id"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	OriginalRequest string             `json:"originalRequest"`
	Status          Status             `json:"status"`
	AssignedAgents  []string           `json:"assignedAgents"`
	PrimaryAgent    string             `json:"primaryAgent"`
	Complexity      intent.Complexity  `json:"complexity"`
	Progress        int                `json:"progress"`
	UserID          string             `json:"userId"`
	MessageID       string             `json:"messageId"`
	Origin          gateway.MessageRef `json:"origin"`
	Thread          gateway.ThreadRef  `json:"thread"`
	ParentWorkItem  string             `json:"parentWorkItem,omitempty"`
	StartTime       time.Time          `json:"startTime"`
	UpdatedAt       time.Time          `json:"updatedAt"`
	PausedTime      time.Duration      `json:"pausedTime"`
	PausedAt        *time.Time         `json:"pausedAt,omitempty"`
	ResumeTo        Status             `json:"resumeTo,omitempty"`
	Outputs         map[string]string  `json:"outputs,omitempty"`
	Errors          []string           `json:"errors,omitempty"`
}

// PausedFor returns the accumulated paused duration, including the current
// pause if the item is paused.
func (w *WorkItem) PausedFor(now time.Time) time.Duration {
	d := w.PausedTime
	if w.PausedAt != nil {
		d += now.Sub(*w.PausedAt)
	}
	return d
}

// Clone returns a deep copy.
func (w *WorkItem) Clone() *WorkItem {
	c := *w
	c.AssignedAgents = append([]string(nil), w.AssignedAgents...)
	c.Errors = append([]string(nil), w.Errors...)
	if w.Outputs != nil {
		c.Outputs = make(map[string]string, len(w.Outputs))
		for k, v := range w.Outputs {
			c.Outputs[k] = v
		}
	}
	if w.PausedAt != nil {
		t := *w.PausedAt
		c.PausedAt = &t
	}
	return &c
}

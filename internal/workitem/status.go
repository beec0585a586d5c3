package workitem

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTransition is returned for any move the table does not allow.
	ErrInvalidTransition = errors.New("invalid work item transition")
	// ErrTargetNotFound means no work item could be resolved for a command.
	ErrTargetNotFound = errors.New("work item not found")
	// ErrValidation rejects malformed input.
	ErrValidation = errors.New("invalid work item")
)

// Status is the lifecycle state of a work item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAnalyzing Status = "analyzing"
	StatusBuilding  Status = "building"
	StatusDeploying Status = "deploying"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusPaused    Status = "paused"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// validTransitions lists the explicit moves. Resuming a paused item returns
// it to the state it was paused from and is handled by Resume.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusAnalyzing, StatusPaused, StatusFailed, StatusCancelled},
	StatusAnalyzing: {StatusBuilding, StatusPaused, StatusFailed, StatusCancelled},
	StatusBuilding:  {StatusDeploying, StatusPaused, StatusFailed, StatusCancelled},
	StatusDeploying: {StatusCompleted, StatusPaused, StatusFailed, StatusCancelled},
	StatusPaused:    {StatusFailed, StatusCancelled},
}

// Transition returns nil if from→to is a legal transition.
func Transition(from, to Status) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
}

// phaseFloor is the minimum progress reported once a phase is entered.
var phaseFloor = map[Status]int{
	StatusAnalyzing: 10,
	StatusBuilding:  40,
	StatusDeploying: 80,
	StatusCompleted: 100,
}

// ParseStatus converts an external status name. "in-progress", used by older
// task trackers, maps to building.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case "in-progress", "in_progress":
		return StatusBuilding, nil
	case StatusPending, StatusAnalyzing, StatusBuilding, StatusDeploying,
		StatusCompleted, StatusFailed, StatusCancelled, StatusPaused:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

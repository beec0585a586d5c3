package workitem

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lebron1212/aos-dev-team-sub000/internal/intent"
)

// HandleManagementCommand applies a manage intent for userID. The target is
// the intent's explicit id or, failing that, lastWorkItem; with neither, or
// when the item belongs to another user, it returns ErrTargetNotFound. The
// returned text is the user-facing reply.
func (r *Registry) HandleManagementCommand(_ context.Context, in intent.Intent, userID, lastWorkItem string) (string, error) {
	if in.Subcategory == intent.SubList {
		return r.describeList(userID), nil
	}

	target := in.Parameters.Target
	if target == "" {
		target = lastWorkItem
	}
	if target == "" {
		return "", ErrTargetNotFound
	}
	if cur, ok := r.Get(target); !ok || cur.UserID != userID {
		return "", fmt.Errorf("%w: %s", ErrTargetNotFound, target)
	}

	var (
		w   *WorkItem
		err error
	)
	switch in.Subcategory {
	case intent.SubPause:
		w, err = r.Pause(target)
	case intent.SubResume:
		w, err = r.Resume(target)
	case intent.SubCancel:
		w, err = r.Cancel(target, "cancelled by "+userID)
	default:
		w, _ = r.Get(target)
		return Describe(w, r.now()), nil
	}
	if err != nil {
		return "", err
	}

	switch w.Status {
	case StatusPaused:
		return fmt.Sprintf("Paused %s (%s) at %d%%.", w.ID, w.Title, w.Progress), nil
	case StatusCancelled:
		return fmt.Sprintf("Cancelled %s (%s).", w.ID, w.Title), nil
	}
	return fmt.Sprintf("Resumed %s (%s); back to %s at %d%%.", w.ID, w.Title, w.Status, w.Progress), nil
}

func (r *Registry) describeList(userID string) string {
	var active []*WorkItem
	for _, w := range r.ForUser(userID) {
		if !w.Status.Terminal() {
			active = append(active, w)
		}
	}
	if len(active) == 0 {
		return "You have no active work items."
	}
	var b strings.Builder
	b.WriteString("Your active work items:\n")
	for _, w := range active {
		fmt.Fprintf(&b, "• %s %s: %s, %d%%\n", w.ID, w.Title, w.Status, w.Progress)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Describe renders one item as a status line.
func Describe(w *WorkItem, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s, %d%%", w.ID, w.Title, w.Status, w.Progress)
	if d := w.PausedFor(now); d > 0 {
		fmt.Fprintf(&b, ", paused for %s", d.Round(time.Second))
	}
	if w.ParentWorkItem != "" {
		fmt.Fprintf(&b, ", follow-up to %s", w.ParentWorkItem)
	}
	if n := len(w.Errors); n > 0 {
		fmt.Fprintf(&b, ", last error: %s", w.Errors[n-1])
	}
	return b.String()
}

package workitem

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lebron1212/aos-dev-team-sub000/internal/gateway"
	"github.com/lebron1212/aos-dev-team-sub000/internal/intent"
	"go.uber.org/zap"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestRegistry(events *Dispatcher) (*Registry, *clock) {
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	r := NewRegistry(events, zap.NewNop())
	r.now = c.now
	return r, c
}

func mustCreate(t *testing.T, r *Registry, req CreateRequest) *WorkItem {
	t.Helper()
	if req.UserID == "" {
		req.UserID = "u1"
	}
	w, err := r.Create(req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return w
}

func TestCreate(t *testing.T) {
	r, _ := newTestRegistry(nil)
	w := mustCreate(t, r, CreateRequest{Description: "build a contact form", AssignedAgents: []string{"frontend", "reviewer"}})

	if w.Status != StatusPending || w.Progress != 0 {
		t.Errorf("new item: %s %d%%", w.Status, w.Progress)
	}
	if !strings.HasPrefix(w.ID, "wi-") || len(w.ID) != 11 {
		t.Errorf("id = %q", w.ID)
	}
	if w.Title != "Build a contact form" || w.PrimaryAgent != "frontend" {
		t.Errorf("title %q, primary %q", w.Title, w.PrimaryAgent)
	}
	got, ok := r.Get(w.ID)
	if !ok || got.ID != w.ID {
		t.Fatal("item not retrievable")
	}
}

func TestCreateValidation(t *testing.T) {
	r, _ := newTestRegistry(nil)
	if _, err := r.Create(CreateRequest{UserID: "u1"}); !errors.Is(err, ErrValidation) {
		t.Errorf("empty title: got %v", err)
	}
	if _, err := r.Create(CreateRequest{Title: "x", UserID: "u1", Parent: "wi-missing"}); !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("unknown parent: got %v", err)
	}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusAnalyzing, true},
		{StatusPending, StatusBuilding, false},
		{StatusAnalyzing, StatusBuilding, true},
		{StatusBuilding, StatusDeploying, true},
		{StatusDeploying, StatusCompleted, true},
		{StatusBuilding, StatusPaused, true},
		{StatusPaused, StatusBuilding, false},
		{StatusPaused, StatusCancelled, true},
		{StatusCompleted, StatusFailed, false},
		{StatusCancelled, StatusAnalyzing, false},
		{StatusFailed, StatusCancelled, false},
	}
	for _, tt := range tests {
		err := Transition(tt.from, tt.to)
		if (err == nil) != tt.ok {
			t.Errorf("%s → %s: err = %v, want ok=%v", tt.from, tt.to, err, tt.ok)
		}
		if err != nil && !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s → %s: error not ErrInvalidTransition", tt.from, tt.to)
		}
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	r, _ := newTestRegistry(nil)
	w := mustCreate(t, r, CreateRequest{Title: "portal"})

	steps := []struct {
		to       Status
		progress int
		want     int
	}{
		{StatusAnalyzing, 0, 10},
		{StatusBuilding, 55, 55},
		{StatusDeploying, 20, 80},
		{StatusCompleted, 90, 100},
	}
	last := 0
	for _, s := range steps {
		got, err := r.Advance(w.ID, s.to, s.progress)
		if err != nil {
			t.Fatalf("Advance to %s: %v", s.to, err)
		}
		if got.Progress != s.want || got.Progress < last {
			t.Errorf("%s: progress %d, want %d", s.to, got.Progress, s.want)
		}
		last = got.Progress
	}
	if _, err := r.Advance(w.ID, StatusDeploying, 0); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("advance after completion: %v", err)
	}
}

func TestPauseResumeAccumulates(t *testing.T) {
	r, c := newTestRegistry(nil)
	w := mustCreate(t, r, CreateRequest{Title: "portal"})
	r.Advance(w.ID, StatusAnalyzing, 0)
	r.Advance(w.ID, StatusBuilding, 50)

	p, err := r.Pause(w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != StatusPaused || p.Progress != 50 || p.PausedAt == nil {
		t.Fatalf("paused item: %+v", p)
	}
	c.t = c.t.Add(5 * time.Minute)
	if d := p.PausedFor(c.t); d != 5*time.Minute {
		t.Errorf("PausedFor = %s while paused", d)
	}

	if _, err := r.Advance(w.ID, StatusDeploying, 0); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("advance while paused: %v", err)
	}

	res, err := r.Resume(w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusBuilding || res.Progress != 50 || res.PausedTime != 5*time.Minute {
		t.Errorf("resumed: %s %d%% paused %s", res.Status, res.Progress, res.PausedTime)
	}

	r.Pause(w.ID)
	c.t = c.t.Add(time.Minute)
	res, _ = r.Resume(w.ID)
	if res.PausedTime != 6*time.Minute {
		t.Errorf("second pause not accumulated: %s", res.PausedTime)
	}
}

func TestCancelIsTerminalAndKeepsProgress(t *testing.T) {
	r, _ := newTestRegistry(nil)
	w := mustCreate(t, r, CreateRequest{Title: "portal"})
	r.Advance(w.ID, StatusAnalyzing, 30)

	got, err := r.Cancel(w.ID, "no longer needed")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCancelled || got.Progress != 30 || len(got.Errors) != 1 {
		t.Errorf("cancelled: %+v", got)
	}
	if _, err := r.SetOutputs(w.ID, map[string]string{"url": "x"}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("late outputs accepted: %v", err)
	}
	if _, err := r.Resume(w.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("resume after cancel: %v", err)
	}
	if len(r.Active()) != 0 {
		t.Error("cancelled item still active")
	}
	if _, ok := r.Get(w.ID); !ok {
		t.Error("cancelled item was deleted")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	r, _ := newTestRegistry(nil)
	w := mustCreate(t, r, CreateRequest{Title: "portal", AssignedAgents: []string{"a"}})
	w.AssignedAgents[0] = "tampered"
	w.Status = StatusCompleted

	got, _ := r.Get(w.ID)
	if got.AssignedAgents[0] != "a" || got.Status != StatusPending {
		t.Error("registry state leaked through returned item")
	}
}

func TestHandleManagementCommand(t *testing.T) {
	r, _ := newTestRegistry(nil)
	w1 := mustCreate(t, r, CreateRequest{Title: "portal"})
	r.Advance(w1.ID, StatusAnalyzing, 0)
	r.Advance(w1.ID, StatusBuilding, 0)

	pause := intent.Intent{Category: intent.Manage, Subcategory: intent.SubPause}
	reply, err := r.HandleManagementCommand(context.Background(), pause, "u1", w1.ID)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := r.Get(w1.ID)
	if got.Status != StatusPaused || got.PausedAt == nil {
		t.Fatalf("W1 = %s", got.Status)
	}
	if !strings.Contains(reply, w1.ID) {
		t.Errorf("reply %q does not name the item", reply)
	}

	if _, err := r.HandleManagementCommand(context.Background(), pause, "u1", ""); !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("no target: %v", err)
	}

	explicit := intent.Intent{Category: intent.Manage, Subcategory: intent.SubResume, Parameters: intent.Parameters{Target: w1.ID}}
	if _, err := r.HandleManagementCommand(context.Background(), explicit, "u1", "wi-other"); err != nil {
		t.Fatal(err)
	}
	got, _ = r.Get(w1.ID)
	if got.Status != StatusBuilding {
		t.Errorf("after resume: %s", got.Status)
	}

	list := intent.Intent{Category: intent.Manage, Subcategory: intent.SubList}
	reply, _ = r.HandleManagementCommand(context.Background(), list, "u1", "")
	if !strings.Contains(reply, w1.ID) {
		t.Errorf("list reply %q", reply)
	}
}

func TestManagementCommandIsScopedToOwner(t *testing.T) {
	r, _ := newTestRegistry(nil)
	w := mustCreate(t, r, CreateRequest{Title: "portal", UserID: "alice"})

	for _, sub := range []string{intent.SubCancel, intent.SubPause, intent.SubStatus} {
		in := intent.Intent{Category: intent.Manage, Subcategory: sub, Parameters: intent.Parameters{Target: w.ID}}
		if _, err := r.HandleManagementCommand(context.Background(), in, "mallory", ""); !errors.Is(err, ErrTargetNotFound) {
			t.Errorf("%s by another user: %v", sub, err)
		}
	}
	cancel := intent.Intent{Category: intent.Manage, Subcategory: intent.SubCancel}
	if _, err := r.HandleManagementCommand(context.Background(), cancel, "mallory", w.ID); !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("cancel via last item: %v", err)
	}

	got, _ := r.Get(w.ID)
	if got.Status != StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
}

type fakeThreads struct {
	mu      sync.Mutex
	failNew bool
	posts   map[string][]string
}

func (f *fakeThreads) CreateThread(_ context.Context, parent gateway.MessageRef, _ string) (string, error) {
	if f.failNew {
		return "", gateway.ErrTransport
	}
	return "thread-" + parent.MessageID, nil
}

func (f *fakeThreads) PostToThread(_ context.Context, ref gateway.ThreadRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.posts == nil {
		f.posts = make(map[string][]string)
	}
	f.posts[ref.ThreadID] = append(f.posts[ref.ThreadID], text)
	return nil
}

func (f *fakeThreads) get(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.posts[id]...)
}

func TestThreadMirror(t *testing.T) {
	threads := &fakeThreads{}
	mirror := NewThreadMirror(threads, zap.NewNop())
	d := NewDispatcher(2, zap.NewNop(), mirror)
	r, _ := newTestRegistry(d)
	mirror.SetRegistry(r)
	d.Start(context.Background())

	origin := gateway.MessageRef{Platform: "slack", ChannelID: "C1", MessageID: "171.1"}
	w := mustCreate(t, r, CreateRequest{Title: "portal", Origin: origin})
	r.Advance(w.ID, StatusAnalyzing, 0)
	r.Pause(w.ID)
	d.Close()

	posts := threads.get("thread-171.1")
	want := []string{"Tracking " + w.ID + ". Status: pending, 0%.", "analyzing: 10%.", "Paused at 10%."}
	if len(posts) != len(want) {
		t.Fatalf("posts = %q", posts)
	}
	for i := range want {
		if posts[i] != want[i] {
			t.Errorf("post %d = %q, want %q", i, posts[i], want[i])
		}
	}
	got, _ := r.Get(w.ID)
	if got.Thread.ThreadID != "thread-171.1" {
		t.Errorf("thread not attached: %+v", got.Thread)
	}
}

func TestMirrorFailureNeverBlocksTransitions(t *testing.T) {
	mirror := NewThreadMirror(&fakeThreads{failNew: true}, zap.NewNop())
	d := NewDispatcher(1, zap.NewNop(), mirror)
	r, _ := newTestRegistry(d)
	mirror.SetRegistry(r)
	d.Start(context.Background())
	defer d.Close()

	w := mustCreate(t, r, CreateRequest{Title: "portal", Origin: gateway.MessageRef{Platform: "slack", MessageID: "1"}})
	if _, err := r.Advance(w.ID, StatusAnalyzing, 0); err != nil {
		t.Fatalf("transition failed because of transport: %v", err)
	}
}

func TestChildItemGetsOwnThread(t *testing.T) {
	threads := &fakeThreads{}
	mirror := NewThreadMirror(threads, zap.NewNop())
	d := NewDispatcher(1, zap.NewNop(), mirror)
	r, _ := newTestRegistry(d)
	mirror.SetRegistry(r)
	d.Start(context.Background())

	parent := mustCreate(t, r, CreateRequest{Title: "portal", Origin: gateway.MessageRef{Platform: "slack", MessageID: "1"}})
	child := mustCreate(t, r, CreateRequest{Title: "portal tweaks", Parent: parent.ID, Origin: gateway.MessageRef{Platform: "slack", MessageID: "2"}})
	d.Close()

	if posts := threads.get("thread-2"); len(posts) != 1 || !strings.Contains(posts[0], "Follow-up to "+parent.ID) {
		t.Errorf("child thread = %q", posts)
	}
	got, _ := r.Get(child.ID)
	if got.ParentWorkItem != parent.ID || got.Thread.ThreadID != "thread-2" {
		t.Errorf("child = %+v", got)
	}
}

func TestParseStatus(t *testing.T) {
	tests := map[string]Status{
		"building":    StatusBuilding,
		" Paused ":    StatusPaused,
		"in-progress": StatusBuilding,
		"in_progress": StatusBuilding,
	}
	for in, want := range tests {
		got, err := ParseStatus(in)
		if err != nil || got != want {
			t.Errorf("ParseStatus(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseStatus("done"); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown status error = %v, want ErrValidation", err)
	}
}

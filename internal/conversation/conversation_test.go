package conversation

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestAcquireCreatesLazily(t *testing.T) {
	s := NewStore(Options{}, zap.NewNop())
	if _, ok := s.View("u1"); ok {
		t.Fatal("context exists before first use")
	}
	c, release := s.Acquire("u1")
	c.LastWorkItem = "wi-1"
	release()

	got, ok := s.View("u1")
	if !ok || got.LastWorkItem != "wi-1" {
		t.Errorf("View = %+v, %v", got, ok)
	}
}

func TestPerUserSerialization(t *testing.T) {
	s := NewStore(Options{}, zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, release := s.Acquire("u1")
			defer release()
			c.AddTurn("user", "x", time.Now())
		}()
	}
	wg.Wait()

	got, _ := s.View("u1")
	if len(got.History) != 50 {
		t.Errorf("history = %d turns, want 50", len(got.History))
	}
}

func TestBoundedHistoryAndRecentItems(t *testing.T) {
	s := NewStore(Options{HistoryTurns: 3, RecentItems: 2}, zap.NewNop())
	c, release := s.Acquire("u1")
	for _, text := range []string{"a", "b", "c", "d"} {
		c.AddTurn("user", text, time.Now())
	}
	c.RememberWorkItem("wi-1")
	c.RememberWorkItem("wi-2")
	c.RememberWorkItem("wi-1")
	c.RememberWorkItem("wi-3")
	release()

	got, _ := s.View("u1")
	if len(got.History) != 3 || got.History[0].Text != "b" {
		t.Errorf("history = %+v", got.History)
	}
	if got.LastWorkItem != "wi-3" || len(got.RecentWorkItems) != 2 || got.RecentWorkItems[1] != "wi-1" {
		t.Errorf("recent = %v, last = %s", got.RecentWorkItems, got.LastWorkItem)
	}
}

func TestSweepEvictsIdleButNotHeld(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(Options{TTL: time.Hour}, zap.NewNop())
	s.now = func() time.Time { return now }

	_, release := s.Acquire("idle")
	release()
	held, releaseHeld := s.Acquire("busy")
	_ = held

	now = now.Add(2 * time.Hour)
	if n := s.Sweep(); n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}
	if _, ok := s.View("idle"); ok {
		t.Error("idle context survived")
	}
	releaseHeld()
	if _, ok := s.View("busy"); !ok {
		t.Error("held context was evicted")
	}
}

func TestViewIsACopy(t *testing.T) {
	s := NewStore(Options{}, zap.NewNop())
	c, release := s.Acquire("u1")
	c.RememberWorkItem("wi-1")
	release()

	v, _ := s.View("u1")
	v.RecentWorkItems[0] = "tampered"

	again, _ := s.View("u1")
	if again.RecentWorkItems[0] != "wi-1" {
		t.Error("View leaked internal state")
	}
}

func TestHints(t *testing.T) {
	c := &Context{LastWorkItem: "wi-9"}
	c.AddTurn("user", "build it", time.Now())
	h := c.Hints()
	if h.LastWorkItem != "wi-9" || len(h.History) != 1 || h.History[0] != "user: build it" {
		t.Errorf("hints = %+v", h)
	}
}

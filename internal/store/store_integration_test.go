//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/lebron1212/aos-dev-team-sub000/internal/delegation"
	"github.com/lebron1212/aos-dev-team-sub000/internal/feedback"
	"github.com/lebron1212/aos-dev-team-sub000/internal/workitem"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
)

func startStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("aos_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	s, err := New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	if err := s.Migrate(ctx, "../../migrations"); err != nil {
		t.Fatal(err)
	}
	// second run must be a no-op
	if err := s.Migrate(ctx, "../../migrations"); err != nil {
		t.Fatalf("re-migrate: %v", err)
	}
	return s
}

func TestStoreIntegration(t *testing.T) {
	s := startStore(t)
	ctx := context.Background()

	t.Run("migrations recorded once", func(t *testing.T) {
		var n int
		if err := s.db.QueryRow(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("schema_migrations has %d rows, want 1", n)
		}
		if err := s.Ping(ctx); err != nil {
			t.Errorf("ping: %v", err)
		}
	})

	t.Run("specialists", func(t *testing.T) {
		st := s.Specialists()
		seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		in := []delegation.Specialist{
			{Name: "Infra", Purpose: "deployments", Capabilities: []string{"kubernetes"}, ChannelID: "C1", IsOnline: true, LastSeen: seen},
			{Name: "data", Purpose: "analytics", ChannelID: "C2"},
		}
		if err := st.Save(ctx, in); err != nil {
			t.Fatal(err)
		}
		out, err := st.Load(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(out) != 2 || out[0].Name != "data" || out[1].Name != "Infra" {
			t.Fatalf("unexpected load: %+v", out)
		}
		if !out[1].LastSeen.Equal(seen) || len(out[1].Capabilities) != 1 {
			t.Errorf("fields lost: %+v", out[1])
		}
		if err := st.Save(ctx, in[:1]); err != nil {
			t.Fatal(err)
		}
		out, _ = st.Load(ctx)
		if len(out) != 1 {
			t.Errorf("save should replace contents, got %d rows", len(out))
		}
	})

	t.Run("feedback", func(t *testing.T) {
		rec := feedback.Record{
			MessageID: "m1", UserID: "u1", Input: "build it", Response: "ok",
			FeedbackType: feedback.Suggestion, Suggestion: "be shorter",
			Source: feedback.SourceReaction, CreatedAt: time.Now().UTC(),
		}
		if err := s.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
		got, err := s.FeedbackFor(ctx, "m1")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].Suggestion != "be shorter" || got[0].FeedbackType != feedback.Suggestion {
			t.Errorf("unexpected records: %+v", got)
		}
	})

	t.Run("work items", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Millisecond)
		w := &workitem.WorkItem{ID: "wi-0000abcd", UserID: "u1", Status: workitem.StatusPending, StartTime: now, UpdatedAt: now}
		obs := s.AuditObserver()
		if err := obs.Observe(ctx, workitem.Event{Kind: workitem.EventCreated, Item: w}); err != nil {
			t.Fatal(err)
		}
		w2 := w.Clone()
		w2.Status = workitem.StatusAnalyzing
		w2.Progress = 10
		if err := obs.Observe(ctx, workitem.Event{Kind: workitem.EventTransitions, From: workitem.StatusPending, Item: w2}); err != nil {
			t.Fatal(err)
		}
		items, err := s.LoadWorkItems(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(items) != 1 || items[0].Status != workitem.StatusAnalyzing || items[0].Progress != 10 {
			t.Errorf("unexpected items: %+v", items)
		}
	})
}

//go:build integration

package lineage

import (
	"context"
	"testing"

	"github.com/lebron1212/aos-dev-team-sub000/internal/workitem"
	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	"go.uber.org/zap"
)

func TestLineageRecordsSpawnedChain(t *testing.T) {
	ctx := context.Background()
	container, err := tcneo4j.Run(ctx, "neo4j:5-community", tcneo4j.WithoutAuthentication())
	if err != nil {
		t.Fatalf("start neo4j: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })
	uri, err := container.BoltUrl(ctx)
	if err != nil {
		t.Fatal(err)
	}

	g, err := New(uri, "", "", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close(ctx)
	if err := g.Ping(ctx); err != nil {
		t.Fatal(err)
	}

	items := []*workitem.WorkItem{
		{ID: "wi-00000001", Title: "dashboard", Status: workitem.StatusPending},
		{ID: "wi-00000002", Title: "dark mode", Status: workitem.StatusPending, ParentWorkItem: "wi-00000001"},
		{ID: "wi-00000003", Title: "contrast", Status: workitem.StatusPending, ParentWorkItem: "wi-00000002"},
	}
	for _, w := range items {
		if err := g.Observe(ctx, workitem.Event{Kind: workitem.EventCreated, Item: w}); err != nil {
			t.Fatal(err)
		}
	}
	moved := items[0].Clone()
	moved.Status = workitem.StatusAnalyzing
	if err := g.Observe(ctx, workitem.Event{Kind: workitem.EventTransitions, From: workitem.StatusPending, Item: moved}); err != nil {
		t.Fatal(err)
	}

	tree, err := g.Lineage(ctx, "wi-00000002")
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Ancestors) != 1 || tree.Ancestors[0].ID != "wi-00000001" || tree.Ancestors[0].Status != "analyzing" {
		t.Errorf("ancestors = %+v", tree.Ancestors)
	}
	if len(tree.Descendants) != 1 || tree.Descendants[0].ID != "wi-00000003" {
		t.Errorf("descendants = %+v", tree.Descendants)
	}
}

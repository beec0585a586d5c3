// Package lineage records parent/child relations between work items in Neo4j.
package lineage

import (
	"context"
	"fmt"

	"github.com/lebron1212/aos-dev-team-sub000/internal/workitem"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Graph is a work item observer backed by Neo4j.
type Graph struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// New connects to Neo4j.
func New(uri, user, password string, logger *zap.Logger) (*Graph, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Graph{driver: driver, logger: logger}, nil
}

// Ping verifies the connection.
func (g *Graph) Ping(ctx context.Context) error {
	return g.driver.VerifyConnectivity(ctx)
}

// Close shuts down the driver.
func (g *Graph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

func (g *Graph) Name() string { return "neo4j-lineage" }

// Observe merges the item node and, for follow-ups, the SPAWNED edge from
// its parent.
func (g *Graph) Observe(ctx context.Context, evt workitem.Event) error {
	w := evt.Item
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (w:WorkItem {id: $id})
			SET w.title = $title, w.status = $status, w.progress = $progress,
			    w.user_id = $userId, w.updated_at = datetime()`,
			map[string]any{
				"id":       w.ID,
				"title":    w.Title,
				"status":   string(w.Status),
				"progress": w.Progress,
				"userId":   w.UserID,
			}); err != nil {
			return nil, err
		}
		if w.ParentWorkItem == "" || evt.Kind != workitem.EventCreated {
			return nil, nil
		}
		_, err := tx.Run(ctx, `
			MERGE (p:WorkItem {id: $parent})
			WITH p
			MATCH (c:WorkItem {id: $id})
			MERGE (p)-[:SPAWNED]->(c)`,
			map[string]any{"parent": w.ParentWorkItem, "id": w.ID})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("record lineage for %s: %w", w.ID, err)
	}
	return nil
}

// Node is one work item in a lineage chain.
type Node struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// Tree is the lineage around a work item.
type Tree struct {
	Ancestors   []Node `json:"ancestors"`
	Descendants []Node `json:"descendants"`
}

// Lineage returns the ancestors of id, root first, and all its descendants.
func (g *Graph) Lineage(ctx context.Context, id string) (*Tree, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	tree := &Tree{}
	up, err := session.Run(ctx, `
		MATCH path = (a:WorkItem)-[:SPAWNED*1..]->(:WorkItem {id: $id})
		WITH a, length(path) AS depth
		RETURN a.id AS id, coalesce(a.title, '') AS title, coalesce(a.status, '') AS status
		ORDER BY depth DESC`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("query ancestors: %w", err)
	}
	if tree.Ancestors, err = collect(ctx, up); err != nil {
		return nil, err
	}

	down, err := session.Run(ctx, `
		MATCH path = (:WorkItem {id: $id})-[:SPAWNED*1..]->(d:WorkItem)
		WITH d, length(path) AS depth
		RETURN d.id AS id, coalesce(d.title, '') AS title, coalesce(d.status, '') AS status
		ORDER BY depth, d.id`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("query descendants: %w", err)
	}
	if tree.Descendants, err = collect(ctx, down); err != nil {
		return nil, err
	}
	return tree, nil
}

func collect(ctx context.Context, result neo4j.ResultWithContext) ([]Node, error) {
	var nodes []Node
	for result.Next(ctx) {
		rec := result.Record()
		n := Node{}
		if v, ok := rec.Get("id"); ok {
			n.ID, _ = v.(string)
		}
		if v, ok := rec.Get("title"); ok {
			n.Title, _ = v.(string)
		}
		if v, ok := rec.Get("status"); ok {
			n.Status, _ = v.(string)
		}
		nodes = append(nodes, n)
	}
	return nodes, result.Err()
}

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lebron1212/aos-dev-team-sub000/internal/workitem"
)

// SaveWorkItem upserts the latest snapshot of a work item.
func (s *Store) SaveWorkItem(ctx context.Context, w *workitem.WorkItem) error {
	snapshot, err := json.Marshal(w)
	if err != nil {
		return err
	}
	var parent *string
	if w.ParentWorkItem != "" {
		parent = &w.ParentWorkItem
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO work_items (id, user_id, parent_id, status, progress, snapshot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			snapshot = EXCLUDED.snapshot,
			updated_at = EXCLUDED.updated_at`,
		w.ID, w.UserID, parent, string(w.Status), w.Progress, snapshot, w.StartTime, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save work item %s: %w", w.ID, err)
	}
	return nil
}

// LoadWorkItems returns every persisted work item, oldest first.
func (s *Store) LoadWorkItems(ctx context.Context) ([]*workitem.WorkItem, error) {
	rows, err := s.db.Query(ctx, `SELECT snapshot FROM work_items ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	defer rows.Close()

	var out []*workitem.WorkItem
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan work item: %w", err)
		}
		var w workitem.WorkItem
		if err := json.Unmarshal(data, &w); err != nil {
			s.logger.Warn("skipping unreadable work item snapshot")
			continue
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

// AuditObserver persists every work item event.
func (s *Store) AuditObserver() workitem.Observer { return auditObserver{s} }

type auditObserver struct{ s *Store }

func (auditObserver) Name() string { return "postgres-audit" }

func (a auditObserver) Observe(ctx context.Context, evt workitem.Event) error {
	return a.s.SaveWorkItem(ctx, evt.Item)
}

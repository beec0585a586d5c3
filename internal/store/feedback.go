package store

import (
	"context"
	"fmt"

	"github.com/lebron1212/aos-dev-team-sub000/internal/feedback"
)

// Append implements feedback.LearningStore.
func (s *Store) Append(ctx context.Context, rec feedback.Record) error {
	var suggestion *string
	if rec.Suggestion != "" {
		suggestion = &rec.Suggestion
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO feedback (message_id, user_id, input, response, feedback_type, suggestion, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.MessageID, rec.UserID, rec.Input, rec.Response,
		string(rec.FeedbackType), suggestion, rec.Source, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append feedback for %s: %w", rec.MessageID, err)
	}
	return nil
}

// FeedbackFor returns every record captured for a message, oldest first.
func (s *Store) FeedbackFor(ctx context.Context, messageID string) ([]feedback.Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT message_id, user_id, input, response, feedback_type, COALESCE(suggestion,''), source, created_at
		FROM feedback WHERE message_id = $1 ORDER BY id`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	var out []feedback.Record
	for rows.Next() {
		var r feedback.Record
		var t string
		if err := rows.Scan(&r.MessageID, &r.UserID, &r.Input, &r.Response, &t, &r.Suggestion, &r.Source, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		r.FeedbackType = feedback.Type(t)
		out = append(out, r)
	}
	return out, rows.Err()
}

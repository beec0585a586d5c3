package feedback

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// LogStore writes records to the log. Used when no database is configured.
type LogStore struct {
	logger *zap.Logger
}

// NewLogStore creates a log-backed learning store.
func NewLogStore(logger *zap.Logger) *LogStore {
	return &LogStore{logger: logger}
}

func (l *LogStore) Append(_ context.Context, rec Record) error {
	l.logger.Info("learning record",
		zap.String("message", rec.MessageID),
		zap.String("user", rec.UserID),
		zap.String("type", string(rec.FeedbackType)),
		zap.String("source", rec.Source),
		zap.String("input", rec.Input),
		zap.String("suggestion", rec.Suggestion))
	return nil
}

// MultiStore appends to every store and joins their errors.
type MultiStore []LearningStore

func (m MultiStore) Append(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemoryStore keeps records in memory.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
}

func (m *MemoryStore) Append(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of everything appended so far.
func (m *MemoryStore) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

// Package bus publishes hand-offs, feedback and work item events onto Redis
// Streams so other processes can consume them.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const streamPrefix = "aos:"

// Well-known streams.
const (
	StreamFeedback  = "feedback"
	StreamWorkItems = "workitems"
)

// SpecialistStream is the stream a specialist consumes hand-offs from.
func SpecialistStream(name string) string { return "specialist:" + name }

// Envelope wraps every payload on the bus.
type Envelope struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	From      string          `json:"from"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Decode unmarshals the payload into v.
func (e *Envelope) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Bus is a thin Redis Streams client.
type Bus struct {
	rdb    *redis.Client
	source string
	logger *zap.Logger
}

// New connects to Redis. source is stamped on every envelope.
func New(ctx context.Context, redisURL, source string, logger *zap.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Bus{rdb: rdb, source: source, logger: logger}, nil
}

func newEnvelope(source, kind string, payload any, now time.Time) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return &Envelope{
		ID:        uuid.New().String(),
		Kind:      kind,
		From:      source,
		Payload:   data,
		Timestamp: now.UTC(),
	}, nil
}

// Publish appends payload to stream under the given kind.
func (b *Bus) Publish(ctx context.Context, stream, kind string, payload any) error {
	env, err := newEnvelope(b.source, kind, payload, time.Now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	key := streamPrefix + stream
	if err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: map[string]interface{}{"data": string(data)},
	}).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", key, err)
	}

	b.logger.Debug("published",
		zap.String("stream", key),
		zap.String("kind", kind),
		zap.String("id", env.ID))
	return nil
}

// Subscribe reads new entries from stream until ctx is cancelled. When
// fromStart is set the whole stream is replayed first.
func (b *Bus) Subscribe(ctx context.Context, stream string, fromStart bool) <-chan *Envelope {
	ch := make(chan *Envelope, 16)
	key := streamPrefix + stream

	go func() {
		defer close(ch)
		lastID := "$"
		if fromStart {
			lastID = "0"
		}

		for {
			if ctx.Err() != nil {
				return
			}

			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{key, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if !errors.Is(err, redis.Nil) {
					b.logger.Warn("stream read failed", zap.String("stream", key), zap.Error(err))
					select {
					case <-time.After(time.Second):
					case <-ctx.Done():
						return
					}
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var env Envelope
					if json.Unmarshal([]byte(data), &env) != nil {
						continue
					}
					select {
					case ch <- &env:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (b *Bus) Close() error {
	return b.rdb.Close()
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lebron1212/aos-dev-team-sub000/internal/delegation"
)

// Specialists adapts the store to delegation.Store.
func (s *Store) Specialists() delegation.Store { return specialistStore{s} }

type specialistStore struct{ s *Store }

func (p specialistStore) Load(ctx context.Context) ([]delegation.Specialist, error) {
	rows, err := p.s.db.Query(ctx, `
		SELECT name, purpose, capabilities, platform, channel_id, is_online, last_seen
		FROM specialists ORDER BY lower(name)`)
	if err != nil {
		return nil, fmt.Errorf("list specialists: %w", err)
	}
	defer rows.Close()

	var out []delegation.Specialist
	for rows.Next() {
		var (
			sp       delegation.Specialist
			caps     []byte
			lastSeen *time.Time
		)
		if err := rows.Scan(&sp.Name, &sp.Purpose, &caps, &sp.Platform, &sp.ChannelID, &sp.IsOnline, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan specialist: %w", err)
		}
		_ = json.Unmarshal(caps, &sp.Capabilities)
		if lastSeen != nil {
			sp.LastSeen = *lastSeen
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// Save replaces the table contents in one transaction.
func (p specialistStore) Save(ctx context.Context, list []delegation.Specialist) error {
	return pgx.BeginFunc(ctx, p.s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM specialists`); err != nil {
			return fmt.Errorf("clear specialists: %w", err)
		}
		for _, sp := range list {
			caps, _ := json.Marshal(sp.Capabilities)
			var lastSeen *time.Time
			if !sp.LastSeen.IsZero() {
				t := sp.LastSeen
				lastSeen = &t
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO specialists (name, purpose, capabilities, platform, channel_id, is_online, last_seen)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				sp.Name, sp.Purpose, caps, sp.Platform, sp.ChannelID, sp.IsOnline, lastSeen,
			); err != nil {
				return fmt.Errorf("insert specialist %s: %w", sp.Name, err)
			}
		}
		return nil
	})
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. Every registry
// mutation appends a fact here; rows are never updated or removed.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append records a new fact for a market. The detail map is stored as JSONB.
func (s *EventStore) Append(ctx context.Context, marketID, event string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal event detail: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO registry_events (market_id, event, detail) VALUES ($1, $2, $3)`,
		marketID, event, detailJSON,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %s for %s: %w", event, marketID, err)
	}
	return nil
}

// ListByMarket returns a market's event log, oldest first.
func (s *EventStore) ListByMarket(ctx context.Context, marketID string) ([]domain.RegistryEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, event, detail, created_at
		 FROM registry_events WHERE market_id = $1 ORDER BY id ASC`,
		marketID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events for %s: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.RegistryEvent
	for rows.Next() {
		var e domain.RegistryEvent
		var detailJSON []byte
		if err := rows.Scan(&e.ID, &e.MarketID, &e.Event, &detailJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal event detail: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: event rows: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.EventStore = (*EventStore)(nil)

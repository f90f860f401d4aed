package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

// ReputationStore implements domain.ReputationStore using PostgreSQL. The
// table is a derived projection over commitment history; Reset supports a
// full rebuild.
type ReputationStore struct {
	pool *pgxpool.Pool
}

// NewReputationStore creates a new ReputationStore backed by the given pool.
func NewReputationStore(pool *pgxpool.Pool) *ReputationStore {
	return &ReputationStore{pool: pool}
}

// Apply folds one scored commitment into the agent's aggregate. A nil score
// (INVALID outcome) counts toward totals but not toward the score sum.
func (s *ReputationStore) Apply(ctx context.Context, agent, category string, score *float64, correct bool) error {
	if category == "" {
		category = "general"
	}
	scoreVal := 0.0
	scoredInc := 0
	if score != nil {
		scoreVal = *score
		scoredInc = 1
	}
	correctInc := 0
	if correct && score != nil {
		correctInc = 1
	}

	const query = `
		INSERT INTO agent_reputation (agent, score_sum, scored, total, correct, categories, updated_at)
		VALUES ($1, $2, $3, 1, $4, jsonb_build_object($5::text, 1), NOW())
		ON CONFLICT (agent) DO UPDATE SET
			score_sum  = agent_reputation.score_sum + EXCLUDED.score_sum,
			scored     = agent_reputation.scored + EXCLUDED.scored,
			total      = agent_reputation.total + 1,
			correct    = agent_reputation.correct + EXCLUDED.correct,
			categories = jsonb_set(
				agent_reputation.categories,
				ARRAY[$5::text],
				(COALESCE(agent_reputation.categories->>$5, '0')::int + 1)::text::jsonb
			),
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, agent, scoreVal, scoredInc, correctInc, category)
	if err != nil {
		return fmt.Errorf("postgres: apply reputation for %s: %w", agent, err)
	}
	return nil
}

const reputationCols = `agent, score_sum, scored, total, correct, categories, updated_at`

func scanReputation(row pgx.Row) (domain.AgentReputation, error) {
	var r domain.AgentReputation
	var categories []byte
	err := row.Scan(&r.Agent, &r.ScoreSum, &r.Scored, &r.Total, &r.Correct, &categories, &r.UpdatedAt)
	if err != nil {
		return domain.AgentReputation{}, err
	}
	if categories != nil {
		if err := json.Unmarshal(categories, &r.Categories); err != nil {
			return domain.AgentReputation{}, fmt.Errorf("unmarshal categories: %w", err)
		}
	}
	return r, nil
}

// Get returns one agent's aggregate.
func (s *ReputationStore) Get(ctx context.Context, agent string) (domain.AgentReputation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+reputationCols+` FROM agent_reputation WHERE agent = $1`, agent)
	r, err := scanReputation(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.AgentReputation{}, domain.ErrNotFound
		}
		return domain.AgentReputation{}, fmt.Errorf("postgres: get reputation %s: %w", agent, err)
	}
	return r, nil
}

// List returns all agent aggregates, best average score first.
func (s *ReputationStore) List(ctx context.Context) ([]domain.AgentReputation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+reputationCols+` FROM agent_reputation
		 ORDER BY CASE WHEN scored > 0 THEN score_sum / scored ELSE 0 END DESC, total DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list reputation: %w", err)
	}
	defer rows.Close()

	var out []domain.AgentReputation
	for rows.Next() {
		r, err := scanReputation(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan reputation: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: reputation rows: %w", err)
	}
	return out, nil
}

// Reset clears the projection ahead of a rebuild. This is the only
// truncating write in the registry and touches derived state only.
func (s *ReputationStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE agent_reputation`); err != nil {
		return fmt.Errorf("postgres: reset reputation: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ReputationStore = (*ReputationStore)(nil)

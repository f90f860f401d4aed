package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

// CommitmentStore implements domain.CommitmentStore using PostgreSQL. The
// (market_id, agent) primary key makes the one-live-commitment invariant
// structural: a later commitment by the same agent overwrites in place.
type CommitmentStore struct {
	pool *pgxpool.Pool
}

// NewCommitmentStore creates a new CommitmentStore backed by the given pool.
func NewCommitmentStore(pool *pgxpool.Pool) *CommitmentStore {
	return &CommitmentStore{pool: pool}
}

// Upsert inserts or replaces the agent's commitment on a market.
func (s *CommitmentStore) Upsert(ctx context.Context, c domain.Commitment) error {
	if c.Confidence < 0 || c.Confidence > 100 {
		return &domain.SchemaError{Field: "confidence", Reason: "must be 0-100"}
	}
	if c.Position != domain.PositionYes && c.Position != domain.PositionNo {
		return &domain.SchemaError{Field: "position", Reason: "must be YES or NO"}
	}

	const query = `
		INSERT INTO commitments (market_id, agent, position, confidence, comment_id, committed_at, score)
		VALUES ($1, $2, $3, $4, $5, $6, NULL)
		ON CONFLICT (market_id, agent) DO UPDATE SET
			position     = EXCLUDED.position,
			confidence   = EXCLUDED.confidence,
			comment_id   = EXCLUDED.comment_id,
			committed_at = EXCLUDED.committed_at,
			score        = NULL`

	_, err := s.pool.Exec(ctx, query,
		c.MarketID, c.Agent, string(c.Position), c.Confidence, c.CommentID, c.CommittedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert commitment %s/%s: %w", c.MarketID, c.Agent, err)
	}
	return nil
}

// SetScore writes a commitment's Brier score after resolution. A nil score
// is stored as NULL (INVALID outcome, excluded from aggregation).
func (s *CommitmentStore) SetScore(ctx context.Context, marketID, agent string, score *float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE commitments SET score = $3 WHERE market_id = $1 AND agent = $2`,
		marketID, agent, score,
	)
	if err != nil {
		return fmt.Errorf("postgres: set score %s/%s: %w", marketID, agent, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const commitmentCols = `market_id, agent, position, confidence, comment_id, committed_at, score`

func scanCommitments(rows pgx.Rows) ([]domain.Commitment, error) {
	defer rows.Close()
	var out []domain.Commitment
	for rows.Next() {
		var c domain.Commitment
		var position string
		if err := rows.Scan(&c.MarketID, &c.Agent, &position, &c.Confidence, &c.CommentID, &c.CommittedAt, &c.Score); err != nil {
			return nil, fmt.Errorf("postgres: scan commitment: %w", err)
		}
		c.Position = domain.Position(position)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: commitment rows: %w", err)
	}
	return out, nil
}

// ListByMarket returns all commitments on a market, oldest first.
func (s *CommitmentStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Commitment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+commitmentCols+` FROM commitments WHERE market_id = $1 ORDER BY committed_at ASC`,
		marketID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list commitments for %s: %w", marketID, err)
	}
	return scanCommitments(rows)
}

// ListByAgent returns all of an agent's commitments.
func (s *CommitmentStore) ListByAgent(ctx context.Context, agent string) ([]domain.Commitment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+commitmentCols+` FROM commitments WHERE agent = $1 ORDER BY committed_at ASC`,
		agent,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list commitments for agent %s: %w", agent, err)
	}
	return scanCommitments(rows)
}

// ListScored returns every commitment that has been scored.
func (s *CommitmentStore) ListScored(ctx context.Context) ([]domain.Commitment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+commitmentCols+` FROM commitments WHERE score IS NOT NULL ORDER BY committed_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list scored commitments: %w", err)
	}
	return scanCommitments(rows)
}

// Compile-time interface check.
var _ domain.CommitmentStore = (*CommitmentStore)(nil)

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

// ChainMappingStore implements domain.ChainMappingStore using PostgreSQL.
// A mapping is created exactly once per market (primary key on market_id)
// and only its sync fields mutate afterwards.
type ChainMappingStore struct {
	pool *pgxpool.Pool
}

// NewChainMappingStore creates a new ChainMappingStore backed by the given pool.
func NewChainMappingStore(pool *pgxpool.Pool) *ChainMappingStore {
	return &ChainMappingStore{pool: pool}
}

// Create inserts a new mapping. It fails with ErrAlreadyExists when the
// market already graduated; callers rely on this for single-submission.
func (s *ChainMappingStore) Create(ctx context.Context, m domain.ChainMapping) error {
	if m.MarketAddress == "" {
		return &domain.SchemaError{Field: "market_address", Reason: "must not be empty"}
	}

	const query = `
		INSERT INTO chain_mappings (market_id, chain, chain_id, market_address, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (market_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		m.MarketID, m.Chain, m.ChainID, m.MarketAddress, string(m.Status),
	)
	if err != nil {
		return fmt.Errorf("postgres: create chain mapping %s: %w", m.MarketID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: create chain mapping %s: %w", m.MarketID, domain.ErrAlreadyExists)
	}
	return nil
}

const mappingCols = `market_id, chain, chain_id, market_address, status,
	settle_tx_hash, finalize_tx_hash, created_at, updated_at`

func scanMapping(row pgx.Row) (domain.ChainMapping, error) {
	var m domain.ChainMapping
	var status string
	err := row.Scan(
		&m.MarketID, &m.Chain, &m.ChainID, &m.MarketAddress, &status,
		&m.SettleTxHash, &m.FinalizeTxHash, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.ChainMapping{}, err
	}
	m.Status = domain.ChainState(status)
	return m, nil
}

// GetByMarket retrieves the mapping for a market.
func (s *ChainMappingStore) GetByMarket(ctx context.Context, marketID string) (domain.ChainMapping, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+mappingCols+` FROM chain_mappings WHERE market_id = $1`, marketID)
	m, err := scanMapping(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ChainMapping{}, domain.ErrNotFound
		}
		return domain.ChainMapping{}, fmt.Errorf("postgres: get chain mapping %s: %w", marketID, err)
	}
	return m, nil
}

// Update writes the mutable sync fields of an existing mapping.
func (s *ChainMappingStore) Update(ctx context.Context, m domain.ChainMapping) error {
	const query = `
		UPDATE chain_mappings SET
			status           = $2,
			settle_tx_hash   = CASE WHEN $3 <> '' THEN $3 ELSE settle_tx_hash END,
			finalize_tx_hash = CASE WHEN $4 <> '' THEN $4 ELSE finalize_tx_hash END,
			updated_at       = NOW()
		WHERE market_id = $1`

	tag, err := s.pool.Exec(ctx, query,
		m.MarketID, string(m.Status), m.SettleTxHash, m.FinalizeTxHash,
	)
	if err != nil {
		return fmt.Errorf("postgres: update chain mapping %s: %w", m.MarketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListActive returns mappings whose on-chain lifecycle is not yet terminal.
func (s *ChainMappingStore) ListActive(ctx context.Context) ([]domain.ChainMapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+mappingCols+` FROM chain_mappings
		 WHERE status NOT IN ($1, $2)
		 ORDER BY created_at ASC`,
		string(domain.ChainStateFinalized), string(domain.ChainStateCancelled),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active chain mappings: %w", err)
	}
	defer rows.Close()

	var out []domain.ChainMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan chain mapping: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: chain mapping rows: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.ChainMappingStore = (*ChainMappingStore)(nil)

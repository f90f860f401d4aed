package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL. Status
// transitions are checked inside a row-locking transaction so a disallowed
// step can never be applied, and every transition appends a fact to the
// registry event log in the same transaction.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, raw_question, question,
	rule_source, rule_metric, rule_op, rule_target, rule_resolver,
	category, event, deadline, status,
	outcome, outcome_value, outcome_evidence, resolved_at,
	post_id, results_posted, created_at, updated_at`

// validateMarket enforces the required-fields contract before any write.
func validateMarket(m domain.Market) error {
	if m.ID == "" {
		return &domain.SchemaError{Field: "id", Reason: "must not be empty"}
	}
	if m.Question == "" {
		return &domain.SchemaError{Field: "question", Reason: "must not be empty"}
	}
	if m.Rule.Source == "" {
		return &domain.SchemaError{Field: "rule.source", Reason: "must not be empty"}
	}
	if m.Deadline.IsZero() {
		return &domain.SchemaError{Field: "deadline", Reason: "must be set"}
	}
	if !m.Rule.Manual() {
		if m.Rule.Op == "" {
			return &domain.SchemaError{Field: "rule.op", Reason: "required for automated sources"}
		}
		if m.Rule.Metric == "" {
			return &domain.SchemaError{Field: "rule.metric", Reason: "required for automated sources"}
		}
	}
	return nil
}

// Create inserts a new market in status open. It fails with a SchemaError
// before touching the database when required fields are missing, and with
// ErrAlreadyExists on id collision.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	if err := validateMarket(m); err != nil {
		return err
	}

	const query = `
		INSERT INTO markets (
			id, raw_question, question,
			rule_source, rule_metric, rule_op, rule_target, rule_resolver,
			category, event, deadline, status, post_id, created_at, updated_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, NOW(), NOW()
		)
		ON CONFLICT (id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		m.ID, m.RawQuestion, m.Question,
		m.Rule.Source, m.Rule.Metric, string(m.Rule.Op), m.Rule.Target, m.Rule.Resolver,
		m.Category, m.Event, m.Deadline, string(domain.MarketStatusOpen), m.PostID,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, domain.ErrAlreadyExists)
	}
	return nil
}

// scanMarket scans a single market row.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status, op string
	err := row.Scan(
		&m.ID, &m.RawQuestion, &m.Question,
		&m.Rule.Source, &m.Rule.Metric, &op, &m.Rule.Target, &m.Rule.Resolver,
		&m.Category, &m.Event, &m.Deadline, &status,
		(*string)(&m.Outcome), &m.OutcomeValue, &m.OutcomeEvidence, &m.ResolvedAt,
		&m.PostID, &m.ResultsPosted, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	m.Rule.Op = domain.RuleOp(op)
	return m, nil
}

// Get retrieves a market by id.
func (s *MarketStore) Get(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns markets matching the filter, ordered by deadline.
func (s *MarketStore) List(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(f.Status))
		argIdx++
	}
	if f.DeadlineLTE != nil {
		query += fmt.Sprintf(" AND deadline <= $%d", argIdx)
		args = append(args, *f.DeadlineLTE)
		argIdx++
	}

	query += " ORDER BY deadline ASC"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
		argIdx++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Transition moves a market to the immediate successor status. The current
// row is locked for the duration of the check-and-write so concurrent
// transitions on the same market cannot race past the state machine.
func (s *MarketStore) Transition(ctx context.Context, id string, to domain.MarketStatus, fields domain.TransitionFields) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM markets WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: lock market %s: %w", id, err)
	}

	from := domain.MarketStatus(current)
	if !domain.CanTransition(from, to) {
		return &domain.InvalidTransitionError{MarketID: id, From: from, To: to}
	}

	switch to {
	case domain.MarketStatusResolved, domain.MarketStatusInvalid:
		if fields.Outcome == domain.OutcomeUnset {
			return &domain.InvalidTransitionError{MarketID: id, From: from, To: to, Reason: "outcome required"}
		}
	case domain.MarketStatusSettled:
		var mapped bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM chain_mappings WHERE market_id = $1 AND market_address <> '')`,
			id,
		).Scan(&mapped)
		if err != nil {
			return fmt.Errorf("postgres: check chain mapping for %s: %w", id, err)
		}
		if !mapped {
			return &domain.InvalidTransitionError{MarketID: id, From: from, To: to, Reason: "no chain mapping with market address"}
		}
	}

	const update = `
		UPDATE markets SET
			status           = $2,
			outcome          = CASE WHEN $3 <> '' THEN $3 ELSE outcome END,
			outcome_value    = COALESCE($4, outcome_value),
			outcome_evidence = CASE WHEN $5 <> '' THEN $5 ELSE outcome_evidence END,
			resolved_at      = COALESCE($6, resolved_at),
			updated_at       = NOW()
		WHERE id = $1`
	_, err = tx.Exec(ctx, update,
		id, string(to),
		string(fields.Outcome), fields.OutcomeValue, fields.OutcomeEvidence, fields.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: transition market %s: %w", id, err)
	}

	detail, err := json.Marshal(map[string]any{
		"from":    string(from),
		"to":      string(to),
		"outcome": string(fields.Outcome),
	})
	if err != nil {
		return fmt.Errorf("postgres: marshal transition detail: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO registry_events (market_id, event, detail) VALUES ($1, 'transition', $2)`,
		id, detail,
	)
	if err != nil {
		return fmt.Errorf("postgres: log transition for %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit transition for %s: %w", id, err)
	}
	return nil
}

// MarkResultsPosted flags that the resolution results comment went out.
func (s *MarketStore) MarkResultsPosted(ctx context.Context, id, commentID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET results_posted = TRUE, results_comment_id = $2, updated_at = NOW() WHERE id = $1`,
		id, commentID,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark results posted %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AppendCorrection records a corrective outcome as a new fact. The original
// resolution stays in place and remains inspectable.
func (s *MarketStore) AppendCorrection(ctx context.Context, c domain.OutcomeCorrection) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO outcome_corrections (market_id, outcome, evidence) VALUES ($1, $2, $3)`,
		c.MarketID, string(c.Outcome), c.Evidence,
	)
	if err != nil {
		return fmt.Errorf("postgres: append correction for %s: %w", c.MarketID, err)
	}
	return nil
}

// ListCorrections returns the corrections appended to a market, oldest first.
func (s *MarketStore) ListCorrections(ctx context.Context, marketID string) ([]domain.OutcomeCorrection, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, outcome, evidence, created_at
		 FROM outcome_corrections WHERE market_id = $1 ORDER BY id ASC`,
		marketID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list corrections for %s: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.OutcomeCorrection
	for rows.Next() {
		var c domain.OutcomeCorrection
		var outcome string
		if err := rows.Scan(&c.ID, &c.MarketID, &outcome, &c.Evidence, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan correction: %w", err)
		}
		c.Outcome = domain.Outcome(outcome)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list corrections rows: %w", err)
	}
	return out, nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)

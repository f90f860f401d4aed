// Package domaintest provides in-memory store and boundary implementations
// for package tests. They honor the same contracts as the real
// implementations (create-once, status transitions, overwrite-in-place) but
// keep everything in maps guarded by one mutex.
package domaintest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

// MarketStore is an in-memory domain.MarketStore.
type MarketStore struct {
	mu          sync.Mutex
	markets     map[string]domain.Market
	corrections []domain.OutcomeCorrection
}

var _ domain.MarketStore = (*MarketStore)(nil)

func NewMarketStore() *MarketStore {
	return &MarketStore{markets: map[string]domain.Market{}}
}

// Seed inserts markets without create-once checks.
func (s *MarketStore) Seed(markets ...domain.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range markets {
		s.markets[m.ID] = m
	}
}

func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; ok {
		return fmt.Errorf("market %s: %w", m.ID, domain.ErrAlreadyExists)
	}
	s.markets[m.ID] = m
	return nil
}

func (s *MarketStore) Get(ctx context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, fmt.Errorf("market %s: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

func (s *MarketStore) List(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if f.DeadlineLTE != nil && m.Deadline.After(*f.DeadlineLTE) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MarketStore) Transition(ctx context.Context, id string, to domain.MarketStatus, fields domain.TransitionFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return fmt.Errorf("market %s: %w", id, domain.ErrNotFound)
	}
	if !domain.CanTransition(m.Status, to) {
		return &domain.InvalidTransitionError{MarketID: id, From: m.Status, To: to}
	}
	if (to == domain.MarketStatusResolved || to == domain.MarketStatusInvalid) && fields.Outcome == domain.OutcomeUnset {
		return &domain.InvalidTransitionError{MarketID: id, From: m.Status, To: to, Reason: "outcome required"}
	}
	m.Status = to
	if fields.Outcome != domain.OutcomeUnset {
		m.Outcome = fields.Outcome
	}
	if fields.OutcomeValue != nil {
		m.OutcomeValue = fields.OutcomeValue
	}
	if fields.OutcomeEvidence != "" {
		m.OutcomeEvidence = fields.OutcomeEvidence
	}
	if fields.ResolvedAt != nil {
		m.ResolvedAt = fields.ResolvedAt
	}
	s.markets[id] = m
	return nil
}

func (s *MarketStore) MarkResultsPosted(ctx context.Context, id, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return fmt.Errorf("market %s: %w", id, domain.ErrNotFound)
	}
	m.ResultsPosted = true
	s.markets[id] = m
	return nil
}

func (s *MarketStore) AppendCorrection(ctx context.Context, c domain.OutcomeCorrection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[c.MarketID]; !ok {
		return fmt.Errorf("market %s: %w", c.MarketID, domain.ErrNotFound)
	}
	c.ID = int64(len(s.corrections) + 1)
	s.corrections = append(s.corrections, c)
	return nil
}

func (s *MarketStore) ListCorrections(ctx context.Context, marketID string) ([]domain.OutcomeCorrection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.OutcomeCorrection
	for _, c := range s.corrections {
		if c.MarketID == marketID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}

// CommitmentStore is an in-memory domain.CommitmentStore.
type CommitmentStore struct {
	mu          sync.Mutex
	commitments map[string]domain.Commitment // keyed by marketID+"/"+agent
}

var _ domain.CommitmentStore = (*CommitmentStore)(nil)

func NewCommitmentStore() *CommitmentStore {
	return &CommitmentStore{commitments: map[string]domain.Commitment{}}
}

func commitmentKey(marketID, agent string) string {
	return marketID + "/" + agent
}

func (s *CommitmentStore) Upsert(ctx context.Context, c domain.Commitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Score = nil
	s.commitments[commitmentKey(c.MarketID, c.Agent)] = c
	return nil
}

func (s *CommitmentStore) SetScore(ctx context.Context, marketID, agent string, score *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := commitmentKey(marketID, agent)
	c, ok := s.commitments[key]
	if !ok {
		return fmt.Errorf("commitment %s: %w", key, domain.ErrNotFound)
	}
	c.Score = score
	s.commitments[key] = c
	return nil
}

func (s *CommitmentStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Commitment
	for _, c := range s.commitments {
		if c.MarketID == marketID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out, nil
}

func (s *CommitmentStore) ListByAgent(ctx context.Context, agent string) ([]domain.Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Commitment
	for _, c := range s.commitments {
		if c.Agent == agent {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}

func (s *CommitmentStore) ListScored(ctx context.Context) ([]domain.Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Commitment
	for _, c := range s.commitments {
		if c.Score != nil {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return commitmentKey(out[i].MarketID, out[i].Agent) < commitmentKey(out[j].MarketID, out[j].Agent)
	})
	return out, nil
}

// ChainMappingStore is an in-memory domain.ChainMappingStore.
type ChainMappingStore struct {
	mu       sync.Mutex
	mappings map[string]domain.ChainMapping
}

var _ domain.ChainMappingStore = (*ChainMappingStore)(nil)

func NewChainMappingStore() *ChainMappingStore {
	return &ChainMappingStore{mappings: map[string]domain.ChainMapping{}}
}

func (s *ChainMappingStore) Create(ctx context.Context, m domain.ChainMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mappings[m.MarketID]; ok {
		return fmt.Errorf("mapping %s: %w", m.MarketID, domain.ErrAlreadyExists)
	}
	s.mappings[m.MarketID] = m
	return nil
}

func (s *ChainMappingStore) GetByMarket(ctx context.Context, marketID string) (domain.ChainMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[marketID]
	if !ok {
		return domain.ChainMapping{}, fmt.Errorf("mapping %s: %w", marketID, domain.ErrNotFound)
	}
	return m, nil
}

func (s *ChainMappingStore) Update(ctx context.Context, m domain.ChainMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mappings[m.MarketID]; !ok {
		return fmt.Errorf("mapping %s: %w", m.MarketID, domain.ErrNotFound)
	}
	s.mappings[m.MarketID] = m
	return nil
}

func (s *ChainMappingStore) ListActive(ctx context.Context) ([]domain.ChainMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ChainMapping
	for _, m := range s.mappings {
		if m.Status == domain.ChainStateFinalized || m.Status == domain.ChainStateCancelled {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}

// ReputationStore is an in-memory domain.ReputationStore.
type ReputationStore struct {
	mu     sync.Mutex
	agents map[string]domain.AgentReputation
}

var _ domain.ReputationStore = (*ReputationStore)(nil)

func NewReputationStore() *ReputationStore {
	return &ReputationStore{agents: map[string]domain.AgentReputation{}}
}

func (s *ReputationStore) Apply(ctx context.Context, agent, category string, score *float64, correct bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.agents[agent]
	if !ok {
		r = domain.AgentReputation{Agent: agent, Categories: map[string]int{}}
	}
	r.Total++
	if score != nil {
		r.ScoreSum += *score
		r.Scored++
		if correct {
			r.Correct++
		}
	}
	if category != "" {
		r.Categories[category]++
	}
	s.agents[agent] = r
	return nil
}

func (s *ReputationStore) Get(ctx context.Context, agent string) (domain.AgentReputation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.agents[agent]
	if !ok {
		return domain.AgentReputation{}, fmt.Errorf("agent %s: %w", agent, domain.ErrNotFound)
	}
	return r, nil
}

func (s *ReputationStore) List(ctx context.Context) ([]domain.AgentReputation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AgentReputation, 0, len(s.agents))
	for _, r := range s.agents {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AvgScore() > out[j].AvgScore() })
	return out, nil
}

func (s *ReputationStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = map[string]domain.AgentReputation{}
	return nil
}

// EventStore is an in-memory domain.EventStore.
type EventStore struct {
	mu     sync.Mutex
	events []domain.RegistryEvent
}

var _ domain.EventStore = (*EventStore)(nil)

func NewEventStore() *EventStore {
	return &EventStore{}
}

func (s *EventStore) Append(ctx context.Context, marketID, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, domain.RegistryEvent{
		ID:        int64(len(s.events) + 1),
		MarketID:  marketID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *EventStore) ListByMarket(ctx context.Context, marketID string) ([]domain.RegistryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RegistryEvent
	for _, e := range s.events {
		if e.MarketID == marketID {
			out = append(out, e)
		}
	}
	return out, nil
}

// NopLockManager grants every lock immediately.
type NopLockManager struct{}

var _ domain.LockManager = NopLockManager{}

func (NopLockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return func() {}, nil
}

// StaticSource serves fixed metric values keyed by "sourceID|metric". A
// missing key is indeterminate, like a real source outage.
type StaticSource struct {
	mu     sync.Mutex
	Values map[string]float64
	Calls  int
}

var _ domain.MetricSource = (*StaticSource)(nil)

func (s *StaticSource) FetchMetric(ctx context.Context, sourceID, metric string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	v, ok := s.Values[sourceID+"|"+metric]
	if !ok {
		return 0, fmt.Errorf("metric %s/%s unavailable: %w", sourceID, metric, domain.ErrIndeterminate)
	}
	return v, nil
}

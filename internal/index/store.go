package index

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"sync"
)

// Store is the persistence interface for indexed entities.
//
// Insert* methods are replay-idempotent: inserting a row whose primary
// key already exists is a no-op and reports inserted=false. Upsert*
// methods overwrite unconditionally and belong to the aggregation
// engine alone.
type Store interface {
	// Agents
	InsertAgent(ctx context.Context, a *Agent) (bool, error)
	GetAgent(ctx context.Context, key string) (*Agent, error)
	UpdateAgentOwner(ctx context.Context, key, owner string, updatedAt int64) error
	ListAgents(ctx context.Context, q AgentQuery) ([]*Agent, int64, error)

	// Feedback
	InsertFeedback(ctx context.Context, f *Feedback) (bool, error)
	ListFeedback(ctx context.Context, agentKey string, limit int) ([]*Feedback, error)
	FeedbackByTag(ctx context.Context, agentKey string) ([]TagSummary, error)

	// Reputation aggregates (aggregation engine only)
	GetStats(ctx context.Context, agentKey string) (*AgentStats, error)
	UpsertStats(ctx context.Context, s *AgentStats) error

	// Activity feed
	InsertActivity(ctx context.Context, a *Activity) (bool, error)
	ListActivity(ctx context.Context, q ActivityQuery) ([]*Activity, error)

	// Payments
	InsertPayment(ctx context.Context, p *Payment) (bool, error)
	CountDistinctPayers(ctx context.Context, agentKey string) (int64, error)

	// Payee index
	InsertPayeeLookup(ctx context.Context, pl *PayeeLookup) (bool, error)
	GetPayeeLookup(ctx context.Context, payee string) (*PayeeLookup, error)

	// Volume aggregates (aggregation engine only)
	GetVolume(ctx context.Context, agentKey string) (*AgentVolume, error)
	UpsertVolume(ctx context.Context, v *AgentVolume) error

	// Global rollup; since bounds the "recent registrations" count.
	GlobalStats(ctx context.Context, since int64) (*GlobalStats, error)

	Close() error
}

// -----------------------------------------------------------------------------
// In-memory store
// -----------------------------------------------------------------------------

// MemoryStore is a map-backed Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	agents   map[string]*Agent
	feedback map[string]*Feedback
	stats    map[string]*AgentStats
	activity map[string]*Activity
	payments map[string]*Payment
	payees   map[string]*PayeeLookup
	volumes  map[string]*AgentVolume
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:   make(map[string]*Agent),
		feedback: make(map[string]*Feedback),
		stats:    make(map[string]*AgentStats),
		activity: make(map[string]*Activity),
		payments: make(map[string]*Payment),
		payees:   make(map[string]*PayeeLookup),
		volumes:  make(map[string]*AgentVolume),
	}
}

// ---- Agents ----

func (s *MemoryStore) InsertAgent(_ context.Context, a *Agent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.agents[a.ID]; exists {
		return false, nil
	}
	cp := *a
	s.agents[a.ID] = &cp
	return true, nil
}

func (s *MemoryStore) GetAgent(_ context.Context, key string) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[key]
	if !ok {
		return nil, ErrAgentNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) UpdateAgentOwner(_ context.Context, key, owner string, updatedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[key]
	if !ok {
		return ErrAgentNotFound
	}
	a.Owner = strings.ToLower(owner)
	a.UpdatedAt = updatedAt
	return nil
}

func (s *MemoryStore) ListAgents(_ context.Context, q AgentQuery) ([]*Agent, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Agent
	for _, a := range s.agents {
		if q.ChainID != nil && a.ChainID != *q.ChainID {
			continue
		}
		matched = append(matched, a)
	}
	// Newest first, id as a stable tiebreak.
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt != matched[j].CreatedAt {
			return matched[i].CreatedAt > matched[j].CreatedAt
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	limit, offset := normalizePage(q.Limit, q.Offset)
	if offset >= len(matched) {
		return []*Agent{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]*Agent, 0, end-offset)
	for _, a := range matched[offset:end] {
		cp := *a
		out = append(out, &cp)
	}
	return out, total, nil
}

// ---- Feedback ----

func (s *MemoryStore) InsertFeedback(_ context.Context, f *Feedback) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.feedback[f.ID]; exists {
		return false, nil
	}
	cp := *f
	s.feedback[f.ID] = &cp
	return true, nil
}

func (s *MemoryStore) ListFeedback(_ context.Context, agentKey string, limit int) ([]*Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Feedback
	for _, f := range s.feedback {
		if f.AgentKey != agentKey {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) FeedbackByTag(_ context.Context, agentKey string) ([]TagSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64)
	totals := make(map[string]int64)
	for _, f := range s.feedback {
		if f.AgentKey != agentKey || f.Tag == "" {
			continue
		}
		counts[f.Tag]++
		totals[f.Tag] += f.Value
	}

	out := make([]TagSummary, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagSummary{
			Tag:          tag,
			Count:        n,
			AverageScore: float64(totals[tag]) / float64(n),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out, nil
}

// ---- Stats ----

func (s *MemoryStore) GetStats(_ context.Context, agentKey string) (*AgentStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stats[agentKey]
	if !ok {
		return nil, ErrStatsNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *MemoryStore) UpsertStats(_ context.Context, st *AgentStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *st
	s.stats[st.AgentKey] = &cp
	return nil
}

// ---- Activity ----

func (s *MemoryStore) InsertActivity(_ context.Context, a *Activity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.activity[a.ID]; exists {
		return false, nil
	}
	cp := *a
	s.activity[a.ID] = &cp
	return true, nil
}

func (s *MemoryStore) ListActivity(_ context.Context, q ActivityQuery) ([]*Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Activity
	for _, a := range s.activity {
		if q.Type != "" && a.Type != q.Type {
			continue
		}
		if q.ChainID != nil && a.ChainID != *q.ChainID {
			continue
		}
		matched = append(matched, a)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Timestamp != matched[j].Timestamp {
			return matched[i].Timestamp > matched[j].Timestamp
		}
		return matched[i].ID > matched[j].ID
	})

	limit, offset := normalizePage(q.Limit, q.Offset)
	if offset >= len(matched) {
		return []*Activity{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]*Activity, 0, end-offset)
	for _, a := range matched[offset:end] {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

// ---- Payments ----

func (s *MemoryStore) InsertPayment(_ context.Context, p *Payment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[p.ID]; exists {
		return false, nil
	}
	cp := *p
	if p.Amount != nil {
		cp.Amount = new(big.Int).Set(p.Amount)
	}
	s.payments[p.ID] = &cp
	return true, nil
}

func (s *MemoryStore) CountDistinctPayers(_ context.Context, agentKey string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, p := range s.payments {
		if p.AgentKey == agentKey {
			seen[p.Payer] = struct{}{}
		}
	}
	return int64(len(seen)), nil
}

// ---- Payee index ----

func (s *MemoryStore) InsertPayeeLookup(_ context.Context, pl *PayeeLookup) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(pl.Payee)
	if _, exists := s.payees[key]; exists {
		return false, nil
	}
	cp := *pl
	cp.Payee = key
	s.payees[key] = &cp
	return true, nil
}

func (s *MemoryStore) GetPayeeLookup(_ context.Context, payee string) (*PayeeLookup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pl, ok := s.payees[strings.ToLower(payee)]
	if !ok {
		return nil, ErrPayeeNotFound
	}
	cp := *pl
	return &cp, nil
}

// ---- Volume ----

func (s *MemoryStore) GetVolume(_ context.Context, agentKey string) (*AgentVolume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.volumes[agentKey]
	if !ok {
		return nil, ErrVolumeNotFound
	}
	cp := *v
	if v.TotalVolume != nil {
		cp.TotalVolume = new(big.Int).Set(v.TotalVolume)
	}
	return &cp, nil
}

func (s *MemoryStore) UpsertVolume(_ context.Context, v *AgentVolume) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *v
	if v.TotalVolume != nil {
		cp.TotalVolume = new(big.Int).Set(v.TotalVolume)
	}
	s.volumes[v.AgentKey] = &cp
	return nil
}

// ---- Global ----

func (s *MemoryStore) GlobalStats(_ context.Context, since int64) (*GlobalStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	gs := &GlobalStats{
		TotalFeedback: int64(len(s.feedback)),
		TotalPayments: int64(len(s.payments)),
		TotalVolume:   new(big.Int),
	}

	perChain := make(map[int64]int64)
	for _, a := range s.agents {
		gs.TotalAgents++
		perChain[a.ChainID]++
		if a.HasX402 {
			gs.X402Agents++
		}
		if a.CreatedAt >= since {
			gs.AgentsSince++
		}
	}
	for _, p := range s.payments {
		if p.Amount != nil {
			gs.TotalVolume.Add(gs.TotalVolume, p.Amount)
		}
	}

	for chainID, n := range perChain {
		gs.Chains = append(gs.Chains, ChainCount{ChainID: chainID, AgentCount: n})
	}
	sort.Slice(gs.Chains, func(i, j int) bool { return gs.Chains[i].ChainID < gs.Chains[j].ChainID })

	return gs, nil
}

func (s *MemoryStore) Close() error { return nil }

// normalizePage clamps paging parameters to sane bounds.
func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

package ingest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/mbd888/agentscan/internal/index"
	"github.com/mbd888/agentscan/internal/metrics"
)

// Aggregator maintains the derived per-agent aggregates. It is the
// only writer of agent_stats and agent_volume rows.
//
// The two aggregates deliberately use different strategies.
// Reputation stats are recomputed in full from the feedback set on
// every refresh, so their correctness never depends on event order or
// replay count. Volume is incremented read-then-write per payment,
// trading strict distinct-payer accuracy under concurrent first
// payments for one cheap row update instead of a table scan.
type Aggregator struct {
	store index.Store
}

// NewAggregator creates an aggregator over the given store.
func NewAggregator(store index.Store) *Aggregator {
	return &Aggregator{store: store}
}

// RefreshReputation recomputes an agent's stats from its full
// feedback set and overwrites the stored row. Safe to call for agents
// with no feedback yet; that writes a zero row.
func (ag *Aggregator) RefreshReputation(ctx context.Context, agentKey string, now int64) error {
	start := time.Now()
	defer func() {
		metrics.StatsRecomputeDuration.Observe(time.Since(start).Seconds())
	}()

	feedback, err := ag.store.ListFeedback(ctx, agentKey, 0)
	if err != nil {
		return fmt.Errorf("list feedback for %s: %w", agentKey, err)
	}

	st := &index.AgentStats{AgentKey: agentKey, LastUpdated: now}
	givers := make(map[string]struct{})
	for _, f := range feedback {
		st.FeedbackCount++
		st.TotalScore += f.Value
		givers[f.Giver] = struct{}{}
	}
	st.UniqueGivers = int64(len(givers))
	if st.FeedbackCount > 0 {
		st.AverageScore = float64(st.TotalScore) / float64(st.FeedbackCount)
	}

	if err := ag.store.UpsertStats(ctx, st); err != nil {
		return fmt.Errorf("upsert stats for %s: %w", agentKey, err)
	}
	return nil
}

// InitVolume writes a zero volume row for a newly registered agent,
// leaving any existing row alone.
func (ag *Aggregator) InitVolume(ctx context.Context, agentKey string) error {
	_, err := ag.store.GetVolume(ctx, agentKey)
	if err == nil {
		return nil
	}
	if !errors.Is(err, index.ErrVolumeNotFound) {
		return fmt.Errorf("get volume for %s: %w", agentKey, err)
	}

	v := &index.AgentVolume{AgentKey: agentKey, TotalVolume: new(big.Int)}
	if err := ag.store.UpsertVolume(ctx, v); err != nil {
		return fmt.Errorf("init volume for %s: %w", agentKey, err)
	}
	return nil
}

// ApplyPayment folds one already-inserted payment into the volume
// aggregate for its agent key. The first payment seeds the row with
// one payer; later payments re-derive the distinct payer count from
// the payments table.
func (ag *Aggregator) ApplyPayment(ctx context.Context, p *index.Payment) error {
	amount := p.Amount
	if amount == nil {
		amount = new(big.Int)
	}

	v, err := ag.store.GetVolume(ctx, p.AgentKey)
	switch {
	case errors.Is(err, index.ErrVolumeNotFound):
		v = &index.AgentVolume{
			AgentKey:     p.AgentKey,
			TotalVolume:  new(big.Int).Set(amount),
			TxCount:      1,
			UniquePayers: 1,
			LastPayment:  p.Timestamp,
		}
	case err != nil:
		return fmt.Errorf("get volume for %s: %w", p.AgentKey, err)
	default:
		v.TotalVolume.Add(v.TotalVolume, amount)
		v.TxCount++
		if p.Timestamp > v.LastPayment {
			v.LastPayment = p.Timestamp
		}
		payers, err := ag.store.CountDistinctPayers(ctx, p.AgentKey)
		if err != nil {
			return fmt.Errorf("count payers for %s: %w", p.AgentKey, err)
		}
		v.UniquePayers = payers
	}

	if err := ag.store.UpsertVolume(ctx, v); err != nil {
		return fmt.Errorf("upsert volume for %s: %w", p.AgentKey, err)
	}
	return nil
}

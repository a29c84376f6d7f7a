package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mbd888/agentscan/internal/facilitators"
	"github.com/mbd888/agentscan/internal/index"
	"github.com/mbd888/agentscan/internal/metadata"
	"github.com/mbd888/agentscan/internal/metrics"
	"github.com/mbd888/agentscan/internal/tag"
	"github.com/mbd888/agentscan/internal/traces"
	"github.com/mbd888/agentscan/internal/usdcfmt"
)

// Broadcaster pushes new activity entries to live subscribers.
// The realtime hub implements it; a nil Broadcaster disables pushes.
type Broadcaster interface {
	Broadcast(a *index.Activity)
}

// Pipeline applies decoded events to the store. All handlers return
// nil for events that are skipped, duplicated, or orphaned; only
// store failures surface as errors so the delivery layer can retry.
type Pipeline struct {
	store    index.Store
	agg      *Aggregator
	resolver *metadata.Resolver
	facs     *facilitators.Registry
	hub      Broadcaster
	logger   *slog.Logger
}

// NewPipeline wires the ingestion pipeline. resolver and hub may be
// nil, which disables metadata resolution and live pushes.
func NewPipeline(store index.Store, resolver *metadata.Resolver, facs *facilitators.Registry, hub Broadcaster, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		agg:      NewAggregator(store),
		resolver: resolver,
		facs:     facs,
		hub:      hub,
		logger:   logger,
	}
}

// Aggregator exposes the pipeline's aggregation engine.
func (p *Pipeline) Aggregator() *Aggregator { return p.agg }

// HandleRegistered indexes a new agent: resolves its metadata,
// creates the agent row with zero aggregate rows, and, when the
// metadata advertises x402 payments, adds the payee to the reverse
// index.
func (p *Pipeline) HandleRegistered(ctx context.Context, ev *RegisteredEvent) error {
	key := index.AgentKey(ev.ChainID, ev.AgentID)
	ctx, span := traces.StartSpan(ctx, "ingest.registered",
		traces.ChainID(ev.ChainID), traces.AgentKey(key), traces.TxHash(ev.TxHash))
	defer span.End()

	// Metadata failures degrade to a bare registration, never an error.
	var md *metadata.Metadata
	if p.resolver != nil {
		md = p.resolver.Resolve(ctx, ev.AgentURI)
	}

	agent := &index.Agent{
		ID:        key,
		AgentID:   ev.AgentID,
		ChainID:   ev.ChainID,
		Owner:     strings.ToLower(ev.Owner),
		AgentURI:  ev.AgentURI,
		IsActive:  true,
		CreatedAt: ev.Timestamp,
		TxHash:    ev.TxHash,
	}
	if md != nil {
		agent.Name = md.Name
		agent.Description = md.Description
		agent.ImageURI = md.Image
		agent.Services = md.Services
		agent.HasX402 = md.AcceptsPayments
		agent.X402Payee = strings.ToLower(md.Payee)
		agent.X402Network = md.Network
	}

	inserted, err := p.store.InsertAgent(ctx, agent)
	if err != nil {
		return fmt.Errorf("insert agent %s: %w", key, err)
	}
	if !inserted {
		p.countEvent(ev.ChainID, "registered", "duplicate")
		return nil
	}

	if agent.HasX402 && agent.X402Payee != "" {
		if _, err := p.store.InsertPayeeLookup(ctx, &index.PayeeLookup{
			Payee:     agent.X402Payee,
			AgentKey:  key,
			AgentName: agent.Name,
		}); err != nil {
			return fmt.Errorf("insert payee lookup %s: %w", agent.X402Payee, err)
		}
	}

	// Feedback may have landed before registration; the recompute
	// picks it up (or writes a zero row for a fresh agent).
	if err := p.agg.RefreshReputation(ctx, key, ev.Timestamp); err != nil {
		return err
	}
	if err := p.agg.InitVolume(ctx, key); err != nil {
		return err
	}

	act := &index.Activity{
		ID:        index.EventID(ev.TxHash, ev.LogIndex),
		Type:      index.ActivityRegistered,
		AgentKey:  key,
		AgentName: agent.Name,
		Actor:     agent.Owner,
		Details:   map[string]any{"agentUri": ev.AgentURI, "hasX402": agent.HasX402},
		ChainID:   ev.ChainID,
	}
	if err := p.recordActivity(ctx, act, ev.EventMeta); err != nil {
		return err
	}

	p.countEvent(ev.ChainID, "registered", "processed")
	p.logger.Info("agent registered",
		"agent", key, "owner", agent.Owner, "name", agent.Name, "x402", agent.HasX402)
	return nil
}

// HandleOwnershipTransfer updates the agent's owner. Mints (from the
// zero address) are skipped, the registration event covers creation.
// A transfer for an agent the index has not seen is dropped as an
// orphan.
func (p *Pipeline) HandleOwnershipTransfer(ctx context.Context, ev *OwnershipTransferEvent) error {
	if isZeroAddress(ev.From) {
		p.countEvent(ev.ChainID, "transfer", "skipped")
		return nil
	}

	key := index.AgentKey(ev.ChainID, ev.AgentID)
	ctx, span := traces.StartSpan(ctx, "ingest.transfer",
		traces.ChainID(ev.ChainID), traces.AgentKey(key), traces.TxHash(ev.TxHash))
	defer span.End()

	err := p.store.UpdateAgentOwner(ctx, key, ev.To, ev.Timestamp)
	if errors.Is(err, index.ErrAgentNotFound) {
		metrics.OrphanEventsTotal.WithLabelValues("transfer").Inc()
		p.countEvent(ev.ChainID, "transfer", "orphan")
		p.logger.Warn("ownership transfer for unknown agent", "agent", key, "tx", ev.TxHash)
		return nil
	}
	if err != nil {
		return fmt.Errorf("update owner %s: %w", key, err)
	}

	act := &index.Activity{
		ID:        index.EventID(ev.TxHash, ev.LogIndex),
		Type:      index.ActivityTransfer,
		AgentKey:  key,
		AgentName: p.agentName(ctx, key),
		Actor:     strings.ToLower(ev.From), // the owner giving the agent away
		Details:   map[string]any{"from": strings.ToLower(ev.From), "to": strings.ToLower(ev.To)},
		ChainID:   ev.ChainID,
	}
	if err := p.recordActivity(ctx, act, ev.EventMeta); err != nil {
		return err
	}

	p.countEvent(ev.ChainID, "transfer", "processed")
	return nil
}

// HandleFeedback stores one feedback event and recomputes the
// agent's reputation stats from scratch. The agent does not need to
// be registered yet.
func (p *Pipeline) HandleFeedback(ctx context.Context, ev *FeedbackEvent) error {
	key := index.AgentKey(ev.ChainID, ev.AgentID)
	ctx, span := traces.StartSpan(ctx, "ingest.feedback",
		traces.ChainID(ev.ChainID), traces.AgentKey(key), traces.TxHash(ev.TxHash))
	defer span.End()

	decoded, _ := tag.Decode(ev.RawTag)

	fb := &index.Feedback{
		ID:        index.EventID(ev.TxHash, ev.LogIndex),
		AgentKey:  key,
		Giver:     strings.ToLower(ev.Giver),
		Value:     ev.Value,
		Tag:       decoded,
		CreatedAt: ev.Timestamp,
		TxHash:    ev.TxHash,
		ChainID:   ev.ChainID,
	}
	inserted, err := p.store.InsertFeedback(ctx, fb)
	if err != nil {
		return fmt.Errorf("insert feedback %s: %w", fb.ID, err)
	}
	if !inserted {
		p.countEvent(ev.ChainID, "feedback", "duplicate")
		return nil
	}

	if err := p.agg.RefreshReputation(ctx, key, ev.Timestamp); err != nil {
		return err
	}

	name := ""
	agent, err := p.store.GetAgent(ctx, key)
	switch {
	case errors.Is(err, index.ErrAgentNotFound):
		p.logger.Warn("feedback for unregistered agent", "agent", key, "tx", ev.TxHash)
	case err == nil:
		name = agent.Name
	}

	act := &index.Activity{
		ID:        index.EventID(ev.TxHash, ev.LogIndex),
		Type:      index.ActivityFeedback,
		AgentKey:  key,
		AgentName: name,
		Actor:     fb.Giver,
		Details:   map[string]any{"value": ev.Value, "tag": decoded},
		ChainID:   ev.ChainID,
	}
	if err := p.recordActivity(ctx, act, ev.EventMeta); err != nil {
		return err
	}

	p.countEvent(ev.ChainID, "feedback", "processed")
	return nil
}

// HandleTransfer indexes facilitator-settled USDC transfers as
// payments. Zero-value transfers are dropped. Upstream log filtering
// consults the facilitator registry but is not guaranteed exhaustive;
// a transaction sender outside the registry is still recorded, just
// with no facilitator id. Payments to addresses outside the payee
// index are kept under an "unknown:<payee>" agent key and never
// re-attributed; they touch no per-agent aggregates and emit no
// activity.
func (p *Pipeline) HandleTransfer(ctx context.Context, ev *TransferEvent) error {
	if ev.Amount == nil || ev.Amount.Sign() == 0 {
		p.countEvent(ev.ChainID, "payment", "skipped")
		return nil
	}

	facID, facName := "", ""
	if fac, ok := p.facs.Lookup(ev.TxFrom); ok {
		facID, facName = fac.ID, fac.Name
	}

	ctx, span := traces.StartSpan(ctx, "ingest.payment",
		traces.ChainID(ev.ChainID), traces.TxHash(ev.TxHash),
		traces.Payee(strings.ToLower(ev.To)), traces.Facilitator(facID))
	defer span.End()

	attribution := "agent"
	agentKey := ""
	agentName := ""
	pl, err := p.store.GetPayeeLookup(ctx, ev.To)
	switch {
	case errors.Is(err, index.ErrPayeeNotFound):
		attribution = "unknown"
		agentKey = index.UnknownAgentKey(ev.To)
	case err != nil:
		return fmt.Errorf("payee lookup %s: %w", ev.To, err)
	default:
		agentKey = pl.AgentKey
		agentName = pl.AgentName
	}

	pay := &index.Payment{
		ID:            index.EventID(ev.TxHash, ev.LogIndex),
		AgentKey:      agentKey,
		Payee:         strings.ToLower(ev.To),
		Payer:         strings.ToLower(ev.From),
		Facilitator:   strings.ToLower(ev.TxFrom),
		FacilitatorID: facID,
		Amount:        ev.Amount,
		ChainID:       ev.ChainID,
		BlockNumber:   ev.BlockNumber,
		Timestamp:     ev.Timestamp,
		TxHash:        ev.TxHash,
	}
	inserted, err := p.store.InsertPayment(ctx, pay)
	if err != nil {
		return fmt.Errorf("insert payment %s: %w", pay.ID, err)
	}
	if !inserted {
		p.countEvent(ev.ChainID, "payment", "duplicate")
		return nil
	}

	// Only attributed payments move an agent's aggregates or show up
	// in the live feed; unattributed rows stay ledger-only.
	if attribution == "agent" {
		if err := p.agg.ApplyPayment(ctx, pay); err != nil {
			return err
		}

		act := &index.Activity{
			ID:        index.EventID(ev.TxHash, ev.LogIndex),
			Type:      index.ActivityPayment,
			AgentKey:  agentKey,
			AgentName: agentName,
			Actor:     pay.Payer,
			Details: map[string]any{
				"amount":      usdcfmt.Units(ev.Amount),
				"usd":         usdcfmt.USD(ev.Amount),
				"payee":       pay.Payee,
				"facilitator": facName,
			},
			ChainID: ev.ChainID,
		}
		if err := p.recordActivity(ctx, act, ev.EventMeta); err != nil {
			return err
		}
	}

	facLabel := facID
	if facLabel == "" {
		facLabel = "none"
	}
	metrics.PaymentsIndexedTotal.WithLabelValues(facLabel, attribution).Inc()
	metrics.PaymentVolumeTotal.Add(usdcfmt.USD(ev.Amount))
	p.countEvent(ev.ChainID, "payment", "processed")
	p.logger.Info("payment indexed",
		"agent", agentKey, "payee", pay.Payee, "usd", usdcfmt.USD(ev.Amount), "facilitator", facID)
	return nil
}

// recordActivity fills positional fields, stores the entry, and
// pushes it to live subscribers when it is new.
func (p *Pipeline) recordActivity(ctx context.Context, act *index.Activity, meta EventMeta) error {
	act.BlockNumber = meta.BlockNumber
	act.Timestamp = meta.Timestamp
	act.TxHash = meta.TxHash

	inserted, err := p.store.InsertActivity(ctx, act)
	if err != nil {
		return fmt.Errorf("insert activity %s: %w", act.ID, err)
	}
	if inserted && p.hub != nil {
		p.hub.Broadcast(act)
	}
	return nil
}

// agentName fetches the display name for activity snapshots,
// tolerating unregistered agents.
func (p *Pipeline) agentName(ctx context.Context, key string) string {
	a, err := p.store.GetAgent(ctx, key)
	if err != nil {
		return ""
	}
	return a.Name
}

func (p *Pipeline) countEvent(chainID int64, event, result string) {
	metrics.EventsProcessedTotal.WithLabelValues(strconv.FormatInt(chainID, 10), event, result).Inc()
}

const zeroAddress = "0x0000000000000000000000000000000000000000"

func isZeroAddress(addr string) bool {
	return addr == "" || strings.EqualFold(addr, zeroAddress)
}

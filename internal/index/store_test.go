package index

import (
	"context"
	"math/big"
	"testing"
)

func testAgent(chainID int64, agentID uint64) *Agent {
	return &Agent{
		ID:        AgentKey(chainID, agentID),
		AgentID:   agentID,
		ChainID:   chainID,
		Owner:     "0xabc0000000000000000000000000000000000001",
		AgentURI:  "ipfs://QmTest",
		IsActive:  true,
		CreatedAt: 1700000000,
		TxHash:    "0xdead",
	}
}

func TestAgentKey(t *testing.T) {
	if got := AgentKey(84532, 42); got != "84532:42" {
		t.Errorf("AgentKey = %q, want 84532:42", got)
	}
}

func TestEventID(t *testing.T) {
	if got := EventID("0xabc", 7); got != "0xabc:7" {
		t.Errorf("EventID = %q, want 0xabc:7", got)
	}
}

func TestUnknownAgentKey(t *testing.T) {
	if got := UnknownAgentKey("0xABCdef"); got != "unknown:0xabcdef" {
		t.Errorf("UnknownAgentKey = %q", got)
	}
}

func TestInsertAgentIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	inserted, err := s.InsertAgent(ctx, testAgent(1, 1))
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	inserted, err = s.InsertAgent(ctx, testAgent(1, 1))
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Error("duplicate insert should report inserted=false")
	}
}

func TestGetAgentNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.GetAgent(context.Background(), "1:999"); err != ErrAgentNotFound {
		t.Errorf("err = %v, want ErrAgentNotFound", err)
	}
}

func TestUpdateAgentOwner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.InsertAgent(ctx, testAgent(1, 1))

	if err := s.UpdateAgentOwner(ctx, "1:1", "0xNEWOWNER", 1700000500); err != nil {
		t.Fatalf("update owner: %v", err)
	}
	a, _ := s.GetAgent(ctx, "1:1")
	if a.Owner != "0xnewowner" {
		t.Errorf("owner = %q, want lowercased new owner", a.Owner)
	}
	if a.UpdatedAt != 1700000500 {
		t.Errorf("updatedAt = %d", a.UpdatedAt)
	}

	if err := s.UpdateAgentOwner(ctx, "1:404", "0xf", 0); err != ErrAgentNotFound {
		t.Errorf("missing agent err = %v, want ErrAgentNotFound", err)
	}
}

func TestListAgentsFilterAndPage(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := uint64(1); i <= 5; i++ {
		a := testAgent(1, i)
		a.CreatedAt = 1700000000 + int64(i)
		s.InsertAgent(ctx, a)
	}
	other := testAgent(8453, 1)
	s.InsertAgent(ctx, other)

	chain := int64(1)
	agents, total, err := s.ListAgents(ctx, AgentQuery{ChainID: &chain, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(agents) != 2 {
		t.Fatalf("len = %d, want 2", len(agents))
	}
	if agents[0].AgentID != 5 || agents[1].AgentID != 4 {
		t.Errorf("ordering = %d,%d, want newest first", agents[0].AgentID, agents[1].AgentID)
	}

	agents, _, _ = s.ListAgents(ctx, AgentQuery{ChainID: &chain, Limit: 2, Offset: 4})
	if len(agents) != 1 || agents[0].AgentID != 1 {
		t.Errorf("offset page wrong: %+v", agents)
	}
}

func TestInsertFeedbackIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	f := &Feedback{ID: "0xa:0", AgentKey: "1:1", Giver: "0xg", Value: 80, CreatedAt: 1}

	if ins, _ := s.InsertFeedback(ctx, f); !ins {
		t.Fatal("first insert should succeed")
	}
	if ins, _ := s.InsertFeedback(ctx, f); ins {
		t.Error("duplicate feedback should be skipped")
	}
	got, _ := s.ListFeedback(ctx, "1:1", 0)
	if len(got) != 1 {
		t.Errorf("feedback count = %d, want 1", len(got))
	}
}

func TestListFeedbackOrderAndLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.InsertFeedback(ctx, &Feedback{
			ID:        EventID("0xa", uint(i)),
			AgentKey:  "1:1",
			Giver:     "0xg",
			Value:     int64(i * 10),
			CreatedAt: int64(100 + i),
		})
	}

	got, err := s.ListFeedback(ctx, "1:1", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].CreatedAt != 104 {
		t.Errorf("newest first expected, got createdAt=%d", got[0].CreatedAt)
	}
}

func TestFeedbackByTag(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.InsertFeedback(ctx, &Feedback{ID: "0xa:0", AgentKey: "1:1", Value: 80, Tag: "speed"})
	s.InsertFeedback(ctx, &Feedback{ID: "0xa:1", AgentKey: "1:1", Value: 100, Tag: "speed"})
	s.InsertFeedback(ctx, &Feedback{ID: "0xa:2", AgentKey: "1:1", Value: 40, Tag: "accuracy"})
	s.InsertFeedback(ctx, &Feedback{ID: "0xa:3", AgentKey: "1:1", Value: 40}) // untagged

	got, err := s.FeedbackByTag(ctx, "1:1")
	if err != nil {
		t.Fatalf("by tag: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Tag != "speed" || got[0].Count != 2 || got[0].AverageScore != 90 {
		t.Errorf("speed summary = %+v", got[0])
	}
	if got[1].Tag != "accuracy" || got[1].AverageScore != 40 {
		t.Errorf("accuracy summary = %+v", got[1])
	}
}

func TestStatsRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.GetStats(ctx, "1:1"); err != ErrStatsNotFound {
		t.Errorf("missing stats err = %v", err)
	}

	st := &AgentStats{AgentKey: "1:1", FeedbackCount: 2, TotalScore: 180, AverageScore: 90, UniqueGivers: 1}
	if err := s.UpsertStats(ctx, st); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.GetStats(ctx, "1:1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AverageScore != 90 || got.FeedbackCount != 2 {
		t.Errorf("stats = %+v", got)
	}
}

func TestActivityFilter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.InsertActivity(ctx, &Activity{ID: "0xa:0", Type: ActivityRegistered, ChainID: 1, Timestamp: 10})
	s.InsertActivity(ctx, &Activity{ID: "0xa:1", Type: ActivityPayment, ChainID: 1, Timestamp: 20})
	s.InsertActivity(ctx, &Activity{ID: "0xa:2", Type: ActivityPayment, ChainID: 8453, Timestamp: 30})

	got, _ := s.ListActivity(ctx, ActivityQuery{Type: ActivityPayment})
	if len(got) != 2 {
		t.Fatalf("payment entries = %d, want 2", len(got))
	}
	if got[0].Timestamp != 30 {
		t.Error("expected newest first")
	}

	chain := int64(1)
	got, _ = s.ListActivity(ctx, ActivityQuery{Type: ActivityPayment, ChainID: &chain})
	if len(got) != 1 || got[0].ID != "0xa:1" {
		t.Errorf("filtered entries = %+v", got)
	}
}

func TestPaymentsAndDistinctPayers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	p := &Payment{ID: "0xa:0", AgentKey: "1:1", Payer: "0xp1", Amount: big.NewInt(1000000)}
	if ins, _ := s.InsertPayment(ctx, p); !ins {
		t.Fatal("first payment insert should succeed")
	}
	if ins, _ := s.InsertPayment(ctx, p); ins {
		t.Error("duplicate payment should be skipped")
	}
	s.InsertPayment(ctx, &Payment{ID: "0xa:1", AgentKey: "1:1", Payer: "0xp1", Amount: big.NewInt(1)})
	s.InsertPayment(ctx, &Payment{ID: "0xa:2", AgentKey: "1:1", Payer: "0xp2", Amount: big.NewInt(1)})
	s.InsertPayment(ctx, &Payment{ID: "0xa:3", AgentKey: "1:2", Payer: "0xp3", Amount: big.NewInt(1)})

	n, err := s.CountDistinctPayers(ctx, "1:1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("distinct payers = %d, want 2", n)
	}
}

func TestPayeeLookupLowercases(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ins, err := s.InsertPayeeLookup(ctx, &PayeeLookup{Payee: "0xABCDEF", AgentKey: "1:1"})
	if err != nil || !ins {
		t.Fatalf("insert: ins=%v err=%v", ins, err)
	}
	if ins, _ := s.InsertPayeeLookup(ctx, &PayeeLookup{Payee: "0xabcdef", AgentKey: "1:2"}); ins {
		t.Error("same payee in different case should not insert again")
	}

	pl, err := s.GetPayeeLookup(ctx, "0xAbCdEf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if pl.AgentKey != "1:1" {
		t.Errorf("agent key = %q, want first writer to win", pl.AgentKey)
	}

	if _, err := s.GetPayeeLookup(ctx, "0xmissing"); err != ErrPayeeNotFound {
		t.Errorf("missing payee err = %v", err)
	}
}

func TestVolumeRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.GetVolume(ctx, "1:1"); err != ErrVolumeNotFound {
		t.Errorf("missing volume err = %v", err)
	}

	v := &AgentVolume{AgentKey: "1:1", TotalVolume: big.NewInt(5000000), TxCount: 3, UniquePayers: 2, LastPayment: 99}
	if err := s.UpsertVolume(ctx, v); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Mutating the caller's big.Int must not leak into the store.
	v.TotalVolume.SetInt64(0)

	got, err := s.GetVolume(ctx, "1:1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalVolume.Int64() != 5000000 || got.TxCount != 3 {
		t.Errorf("volume = %+v total=%s", got, got.TotalVolume)
	}
}

func TestGlobalStats(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a1 := testAgent(1, 1)
	a1.HasX402 = true
	a1.CreatedAt = 1000
	s.InsertAgent(ctx, a1)

	a2 := testAgent(8453, 1)
	a2.CreatedAt = 2000
	s.InsertAgent(ctx, a2)

	s.InsertFeedback(ctx, &Feedback{ID: "0xa:0", AgentKey: "1:1", Value: 50})
	s.InsertPayment(ctx, &Payment{ID: "0xa:1", AgentKey: "1:1", Payer: "0xp", Amount: big.NewInt(2500000)})

	gs, err := s.GlobalStats(ctx, 1500)
	if err != nil {
		t.Fatalf("global stats: %v", err)
	}
	if gs.TotalAgents != 2 || gs.X402Agents != 1 || gs.AgentsSince != 1 {
		t.Errorf("agent counts = %+v", gs)
	}
	if gs.TotalFeedback != 1 || gs.TotalPayments != 1 {
		t.Errorf("event counts = %+v", gs)
	}
	if gs.TotalVolume.Int64() != 2500000 {
		t.Errorf("volume = %s", gs.TotalVolume)
	}
	if len(gs.Chains) != 2 || gs.Chains[0].ChainID != 1 {
		t.Errorf("chains = %+v", gs.Chains)
	}
}

package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mbd888/agentscan/internal/index"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// Filter tests
// ---------------------------------------------------------------------------

func TestWants_EmptySubscription(t *testing.T) {
	client := &Client{}

	act := &index.Activity{Type: index.ActivityPayment, ChainID: 8453}
	if !client.wants(act) {
		t.Error("empty subscription should receive everything")
	}
}

func TestWants_TypeFilter(t *testing.T) {
	client := &Client{sub: Subscription{
		Types: []index.ActivityType{index.ActivityPayment, index.ActivityFeedback},
	}}

	if !client.wants(&index.Activity{Type: index.ActivityPayment}) {
		t.Error("should receive payment entries")
	}
	if !client.wants(&index.Activity{Type: index.ActivityFeedback}) {
		t.Error("should receive feedback entries")
	}
	if client.wants(&index.Activity{Type: index.ActivityRegistered}) {
		t.Error("should NOT receive registration entries")
	}
}

func TestWants_ChainFilter(t *testing.T) {
	client := &Client{sub: Subscription{ChainIDs: []int64{8453}}}

	if !client.wants(&index.Activity{Type: index.ActivityPayment, ChainID: 8453}) {
		t.Error("should match subscribed chain")
	}
	if client.wants(&index.Activity{Type: index.ActivityPayment, ChainID: 1}) {
		t.Error("should NOT match other chains")
	}
}

func TestWants_AgentFilter(t *testing.T) {
	client := &Client{sub: Subscription{AgentKeys: []string{"8453:42"}}}

	if !client.wants(&index.Activity{AgentKey: "8453:42"}) {
		t.Error("should match watched agent")
	}
	if client.wants(&index.Activity{AgentKey: "8453:7"}) {
		t.Error("should NOT match other agents")
	}
}

func TestWants_CombinedFilters(t *testing.T) {
	client := &Client{sub: Subscription{
		Types:    []index.ActivityType{index.ActivityPayment},
		ChainIDs: []int64{8453},
	}}

	if !client.wants(&index.Activity{Type: index.ActivityPayment, ChainID: 8453}) {
		t.Error("should match when all filters match")
	}
	if client.wants(&index.Activity{Type: index.ActivityPayment, ChainID: 1}) {
		t.Error("type match alone is not enough")
	}
	if client.wants(&index.Activity{Type: index.ActivityFeedback, ChainID: 8453}) {
		t.Error("chain match alone is not enough")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	h.Broadcast(&index.Activity{ID: "0xa:0", Type: index.ActivityPayment})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.Broadcast(&index.Activity{
		ID:       "0xa:0",
		Type:     index.ActivityPayment,
		AgentKey: "8453:1",
		Details:  map[string]any{"usd": 5.0},
	})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants payments
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{Types: []index.ActivityType{index.ActivityPayment}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// A registration should be filtered out
	h.Broadcast(&index.Activity{ID: "0xa:0", Type: index.ActivityRegistered})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive registration entry")
	default:
		// Good - filtered out
	}

	// A payment should be received
	h.Broadcast(&index.Activity{ID: "0xa:1", Type: index.ActivityPayment})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive payment entry")
	}
}

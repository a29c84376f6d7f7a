// Package ingest turns decoded contract events into indexed entities.
//
// Handlers are replay-idempotent and tolerate cross-stream ordering:
// feedback may land before its agent registers, payments may land
// before the payee index knows the payee. Every handler can be called
// concurrently for events of different agents; events for one agent
// are expected to arrive in per-chain log order.
package ingest

import "math/big"

// EventMeta carries the on-chain position shared by every event.
type EventMeta struct {
	ChainID     int64  `json:"chainId"`
	BlockNumber uint64 `json:"blockNumber"`
	Timestamp   int64  `json:"timestamp"` // block timestamp, unix seconds
	TxHash      string `json:"txHash"`
	LogIndex    uint   `json:"logIndex"`
}

// RegisteredEvent is an identity-registry agent registration.
type RegisteredEvent struct {
	EventMeta
	AgentID  uint64 `json:"agentId"`
	Owner    string `json:"owner"`
	AgentURI string `json:"agentUri"`
}

// OwnershipTransferEvent moves an agent to a new owner.
type OwnershipTransferEvent struct {
	EventMeta
	AgentID uint64 `json:"agentId"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// FeedbackEvent is a reputation-registry score submission. RawTag is
// the undecoded bytes32 hex from the log.
type FeedbackEvent struct {
	EventMeta
	AgentID uint64 `json:"agentId"`
	Giver   string `json:"giver"`
	Value   int64  `json:"value"`
	RawTag  string `json:"tag,omitempty"`
}

// TransferEvent is a USDC Transfer log. TxFrom is the transaction
// sender, which is what identifies facilitator-settled payments; From
// is the token-level payer.
type TransferEvent struct {
	EventMeta
	TxFrom string   `json:"txFrom"`
	From   string   `json:"from"`
	To     string   `json:"to"`
	Amount *big.Int `json:"amount"`
}

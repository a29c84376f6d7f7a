// Package index defines the indexed entity model and its persistence.
//
// Entities are keyed the way the chain keys them: agents by
// "<chainId>:<agentId>", event-derived rows (feedback, activity,
// payments) by "<txHash>:<logIndex>". Event handlers own writes to
// agents, feedback, activity, payments, and the payee index; the
// aggregation engine owns agent_stats and agent_volume.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	ErrAgentNotFound  = errors.New("index: agent not found")
	ErrStatsNotFound  = errors.New("index: agent stats not found")
	ErrVolumeNotFound = errors.New("index: agent volume not found")
	ErrPayeeNotFound  = errors.New("index: payee not indexed")
)

// -----------------------------------------------------------------------------
// Keys
// -----------------------------------------------------------------------------

// UnknownAgentPrefix marks payments whose payee has no registered agent.
const UnknownAgentPrefix = "unknown:"

// AgentKey builds the composite agent identifier "<chainId>:<agentId>".
// The key is immutable once an agent row is created.
func AgentKey(chainID int64, agentID uint64) string {
	return fmt.Sprintf("%d:%d", chainID, agentID)
}

// EventID builds the per-log identifier "<txHash>:<logIndex>" used for
// feedback, activity, and payment rows. Replaying the same log yields
// the same id, which is what makes inserts replay-idempotent.
func EventID(txHash string, logIndex uint) string {
	return fmt.Sprintf("%s:%d", txHash, logIndex)
}

// UnknownAgentKey builds the sentinel key for unattributed payments.
func UnknownAgentKey(payee string) string {
	return UnknownAgentPrefix + strings.ToLower(payee)
}

// -----------------------------------------------------------------------------
// Core entities
// -----------------------------------------------------------------------------

// Agent is the identity record created by a registration event.
// Metadata fields are set once at creation and never re-fetched;
// only Owner and UpdatedAt mutate afterwards (ownership transfers).
type Agent struct {
	ID       string `json:"id"` // chainId:agentId
	AgentID  uint64 `json:"agentId"`
	ChainID  int64  `json:"chainId"`
	Owner    string `json:"owner"`
	AgentURI string `json:"agentUri"`

	// Off-chain metadata (empty = absent)
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	ImageURI    string          `json:"imageUri,omitempty"`
	Services    json.RawMessage `json:"services,omitempty"`

	// x402 payment acceptance
	HasX402     bool   `json:"hasX402"`
	X402Payee   string `json:"x402Payee,omitempty"`
	X402Network string `json:"x402Network,omitempty"`

	IsActive  bool   `json:"isActive"`
	CreatedAt int64  `json:"createdAt"` // block timestamp, unix seconds
	UpdatedAt int64  `json:"updatedAt,omitempty"`
	TxHash    string `json:"txHash"`
}

// Feedback is one reputation event. Immutable once written; may
// reference an agent key that has not been indexed yet.
type Feedback struct {
	ID        string `json:"id"` // txHash:logIndex
	AgentKey  string `json:"agentId"`
	Giver     string `json:"giver"`
	Value     int64  `json:"value"`
	Tag       string `json:"tag,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	TxHash    string `json:"txHash"`
	ChainID   int64  `json:"chainId"`
}

// AgentStats is the derived reputation aggregate. Always recomputable
// as a pure function of the feedback set for the key.
type AgentStats struct {
	AgentKey      string  `json:"agentId"`
	FeedbackCount int64   `json:"feedbackCount"`
	TotalScore    int64   `json:"totalScore"`
	AverageScore  float64 `json:"averageScore"`
	UniqueGivers  int64   `json:"uniqueGivers"`
	LastUpdated   int64   `json:"lastUpdated"`
}

// ActivityType enumerates the feed entry kinds.
type ActivityType string

const (
	ActivityRegistered ActivityType = "registered"
	ActivityTransfer   ActivityType = "transfer"
	ActivityFeedback   ActivityType = "feedback"
	ActivityPayment    ActivityType = "payment"
)

// Activity is an append-only feed entry. AgentName is a display
// snapshot taken at event time and may go stale.
type Activity struct {
	ID          string         `json:"id"` // txHash:logIndex
	Type        ActivityType   `json:"type"`
	AgentKey    string         `json:"agentId"`
	AgentName   string         `json:"agentName,omitempty"`
	Actor       string         `json:"actor"`
	Details     map[string]any `json:"details,omitempty"`
	ChainID     int64          `json:"chainId"`
	BlockNumber uint64         `json:"blockNumber"`
	Timestamp   int64          `json:"timestamp"`
	TxHash      string         `json:"txHash"`
}

// Payment is one USDC transfer settled by a facilitator. AgentKey is
// either a real agent key or UnknownAgentKey(payee).
type Payment struct {
	ID            string   `json:"id"` // txHash:logIndex
	AgentKey      string   `json:"agentId"`
	Payee         string   `json:"payee"`
	Payer         string   `json:"payer"`
	Facilitator   string   `json:"facilitator"`
	FacilitatorID string   `json:"facilitatorId,omitempty"`
	Amount        *big.Int `json:"-"`
	ChainID       int64    `json:"chainId"`
	BlockNumber   uint64   `json:"blockNumber"`
	Timestamp     int64    `json:"timestamp"`
	TxHash        string   `json:"txHash"`
}

// PayeeLookup maps a lowercased payee address back to its agent.
// Written once at registration; registration metadata is immutable so
// the row is never updated.
type PayeeLookup struct {
	Payee     string `json:"payee"` // lowercased, primary key
	AgentKey  string `json:"agentId"`
	AgentName string `json:"agentName,omitempty"`
}

// AgentVolume is the derived payment aggregate, updated incrementally
// per attributed payment. UniquePayers is best-effort (see the
// aggregation engine) and may undercount under concurrent first
// payments.
type AgentVolume struct {
	AgentKey     string   `json:"agentId"`
	TotalVolume  *big.Int `json:"-"`
	TxCount      int64    `json:"txCount"`
	UniquePayers int64    `json:"uniquePayers"`
	LastPayment  int64    `json:"lastPayment,omitempty"`
}

// -----------------------------------------------------------------------------
// Query types
// -----------------------------------------------------------------------------

// AgentQuery filters and paginates agent listings.
type AgentQuery struct {
	ChainID *int64
	Limit   int // default 50, max 100
	Offset  int
}

// ActivityQuery filters and paginates the activity feed.
type ActivityQuery struct {
	Type    ActivityType // empty = all
	ChainID *int64
	Limit   int
	Offset  int
}

// TagSummary aggregates feedback per decoded tag.
type TagSummary struct {
	Tag          string  `json:"tag"`
	Count        int64   `json:"count"`
	AverageScore float64 `json:"averageScore"`
}

// ChainCount is a per-chain agent count for the global stats view.
type ChainCount struct {
	ChainID    int64  `json:"chainId"`
	Name       string `json:"name"` // filled by the API layer
	AgentCount int64  `json:"agentCount"`
}

// GlobalStats is the ecosystem-wide rollup served by GET /v1/stats.
type GlobalStats struct {
	TotalAgents   int64        `json:"totalAgents"`
	TotalFeedback int64        `json:"totalFeedback"`
	TotalPayments int64        `json:"totalPayments"`
	TotalVolume   *big.Int     `json:"-"`
	X402Agents    int64        `json:"x402Agents"`
	AgentsSince   int64        `json:"agentsToday"`
	Chains        []ChainCount `json:"chains"`
}

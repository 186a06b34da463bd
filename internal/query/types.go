package query

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Amounts are decimal strings: they are uint256 in the vault and do not fit
// JSON numbers.

// EpochResponse is one row of the epoch history.
type EpochResponse struct {
	EpochID       uint64     `json:"epoch_id"`
	Status        string     `json:"status"`
	TotalShares   string     `json:"total_shares"`
	TotalAssets   string     `json:"total_assets"`
	PricePerShare *string    `json:"price_per_share,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	AsOfSequence  int64      `json:"as_of_sequence"`
}

// RequestResponse is a user's withdrawal request in one epoch.
type RequestResponse struct {
	UserID       uuid.UUID `json:"user_id"`
	EpochID      uint64    `json:"epoch_id"`
	Shares       string    `json:"shares"`
	EpochStatus  string    `json:"epoch_status"`
	Claimed      bool      `json:"claimed"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// StrategyResponse is the projected bookkeeping of one strategy.
type StrategyResponse struct {
	StrategyID   uuid.UUID `json:"strategy_id"`
	Status       string    `json:"status"`
	Allocated    string    `json:"allocated"`
	TotalYield   string    `json:"total_yield"`
	TotalLoss    string    `json:"total_loss"`
	Removed      bool      `json:"removed"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// EventResponse is one entry of the event log.
type EventResponse struct {
	Sequence   int64           `json:"sequence"`
	EventType  string          `json:"event_type"`
	CommandKey string          `json:"command_key,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	StateHash  string          `json:"state_hash"`
	Timestamp  time.Time       `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	EventsChecked   int64   `json:"events_checked"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	HashMismatches  []int64 `json:"hash_mismatches,omitempty"`
	SequenceGaps    []int64 `json:"sequence_gaps,omitempty"`
	// Projection rows with negative share or allocation totals.
	NegativeProjections []string `json:"negative_projections,omitempty"`
}

package server

import (
	"encoding/json"
	"time"

	"StrategyVault/internal/core"
	"StrategyVault/internal/query"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// Request and response bodies of strategyvault.v1.Vault. Amounts are
// decimal strings.

type SubmitCommandRequest struct {
	Type string `json:"type"`
	// Command is the wire body: key, caller, optional source and
	// source_sequence, payload.
	Command json.RawMessage `json:"command"`
}

type SubmitCommandResponse struct {
	Index     int64 `json:"index"`
	Sequence  int64 `json:"sequence"`
	Duplicate bool  `json:"duplicate,omitempty"`
	Value     any   `json:"value,omitempty"`
}

type GetVaultRequest struct{}

type VaultResponse struct {
	VaultID           uuid.UUID      `json:"vault_id"`
	Denom             string         `json:"denom"`
	Decimals          uint8          `json:"decimals"`
	DecimalsOffset    uint8          `json:"decimals_offset"`
	TotalAssets       string         `json:"total_assets"`
	CachedTotalAssets string         `json:"cached_total_assets"`
	TotalSupply       string         `json:"total_supply"`
	IdleAssets        string         `json:"idle_assets"`
	LockedAssets      string         `json:"locked_assets"`
	Async             bool           `json:"async"`
	QueueActive       bool           `json:"queue_active"`
	LatestEpochID     uint64         `json:"latest_epoch_id,omitempty"`
	Fees              core.FeeConfig `json:"fees"`
	Limits            core.Limits    `json:"limits"`
	DeallocationOrder []uuid.UUID    `json:"deallocation_order"`
	Sequence          int64          `json:"sequence"`
	StateHash         string         `json:"state_hash"`
}

type GetAccountRequest struct {
	Account uuid.UUID `json:"account"`
}

type AccountResponse struct {
	Account      uuid.UUID        `json:"account"`
	Shares       string           `json:"shares"`
	Assets       string           `json:"assets"`
	AssetBalance string           `json:"asset_balance"`
	MaxDeposit   string           `json:"max_deposit"`
	MaxMint      string           `json:"max_mint"`
	MaxWithdraw  string           `json:"max_withdraw"`
	MaxRedeem    string           `json:"max_redeem"`
	Requests     []PendingRequest `json:"requests,omitempty"`
}

type PendingRequest struct {
	EpochID uint64 `json:"epoch_id"`
	Shares  string `json:"shares"`
	State   string `json:"state"`
}

// Preview kinds.
const (
	PreviewDeposit  = "deposit"
	PreviewMint     = "mint"
	PreviewWithdraw = "withdraw"
	PreviewRedeem   = "redeem"
	ConvertToShares = "to_shares"
	ConvertToAssets = "to_assets"
)

type PreviewRequest struct {
	Kind   string      `json:"kind"`
	Amount sdkmath.Int `json:"amount"`
}

type PreviewResponse struct {
	Kind   string `json:"kind"`
	Amount string `json:"amount"`
	Result string `json:"result"`
}

type GetEpochRequest struct {
	EpochID uint64 `json:"epoch_id"`
}

type EpochResponse struct {
	EpochID              uint64  `json:"epoch_id"`
	State                string  `json:"state"`
	PricePerShare        *string `json:"price_per_share,omitempty"`
	TotalRequestedShares string  `json:"total_requested_shares"`
}

type GetStrategiesRequest struct{}

type LiveStrategy struct {
	StrategyID uuid.UUID `json:"strategy_id"`
	Status     string    `json:"status"`
	Allocated  string    `json:"allocated"`
}

type StrategiesResponse struct {
	Strategies []LiveStrategy `json:"strategies"`
	Sequence   int64          `json:"sequence"`
}

// --- projection reads ---

type ListEpochsRequest struct {
	Limit  int     `json:"limit,omitempty"`
	Before *uint64 `json:"before,omitempty"`
}

type ListEpochsResponse struct {
	Epochs []query.EpochResponse `json:"epochs"`
}

type ListRequestsRequest struct {
	User           uuid.UUID `json:"user"`
	IncludeClaimed bool      `json:"include_claimed,omitempty"`
}

type ListRequestsResponse struct {
	Requests []query.RequestResponse `json:"requests"`
}

type ListStrategyHistoryRequest struct {
	IncludeRemoved bool `json:"include_removed,omitempty"`
}

type ListStrategyHistoryResponse struct {
	Strategies []query.StrategyResponse `json:"strategies"`
}

type ListEventsRequest struct {
	Limit  int    `json:"limit,omitempty"`
	Before *int64 `json:"before,omitempty"`
}

type ListEventsResponse struct {
	Events []query.EventResponse `json:"events"`
}

// --- admin ---

type VerifyIntegrityRequest struct{}

type SystemStatusRequest struct{}

type SystemStatusResponse struct {
	State        string        `json:"state"`
	Uptime       time.Duration `json:"uptime_ns"`
	CommandIndex int64         `json:"command_index"`
	Sequence     int64         `json:"sequence"`
	StateHash    string        `json:"state_hash"`
}

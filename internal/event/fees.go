package event

import (
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// Fee kinds
const (
	FeeKindManagement  = "management"
	FeeKindPerformance = "performance"
)

// YieldAccrued is the aggregate result of one accrual pass.
type YieldAccrued struct {
	PositiveYield sdkmath.Int `json:"positive_yield"`
	NegativeYield sdkmath.Int `json:"negative_yield"`
	TotalAssets   sdkmath.Int `json:"total_assets"`
}

func (y *YieldAccrued) EventType() EventType { return EventTypeYieldAccrued }

type FeesMinted struct {
	Kind      string      `json:"kind"`
	Recipient uuid.UUID   `json:"recipient"`
	Assets    sdkmath.Int `json:"assets"`
	Shares    sdkmath.Int `json:"shares"`
}

func (f *FeesMinted) EventType() EventType { return EventTypeFeesMinted }

type FeeConfigUpdated struct {
	Kind      string    `json:"kind"`
	RateBps   uint16    `json:"rate_bps"`
	Recipient uuid.UUID `json:"recipient"`
}

func (f *FeeConfigUpdated) EventType() EventType { return EventTypeFeeConfigUpdated }

// Limit kinds
const (
	LimitKindDeposit  = "deposit"
	LimitKindWithdraw = "withdraw"
)

type LimitsUpdated struct {
	Kind string      `json:"kind"`
	Min  sdkmath.Int `json:"min"`
	Max  sdkmath.Int `json:"max"`
}

func (l *LimitsUpdated) EventType() EventType { return EventTypeLimitsUpdated }

type HooksUpdated struct {
	BeforeDeposit  bool `json:"before_deposit"`
	AfterDeposit   bool `json:"after_deposit"`
	BeforeWithdraw bool `json:"before_withdraw"`
	AfterWithdraw  bool `json:"after_withdraw"`
}

func (h *HooksUpdated) EventType() EventType { return EventTypeHooksUpdated }

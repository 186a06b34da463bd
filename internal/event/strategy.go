package event

import (
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

type StrategyAdded struct {
	Strategy     uuid.UUID `json:"strategy"`
	StrategyType string    `json:"strategy_type"`
}

func (s *StrategyAdded) EventType() EventType { return EventTypeStrategyAdded }

// StrategyRemoved carries the allocation written off when a halted strategy
// is removed mid-allocation.
type StrategyRemoved struct {
	Strategy   uuid.UUID   `json:"strategy"`
	WrittenOff sdkmath.Int `json:"written_off"`
}

func (s *StrategyRemoved) EventType() EventType { return EventTypeStrategyRemoved }

type StrategyStatusToggled struct {
	Strategy uuid.UUID `json:"strategy"`
	Status   string    `json:"status"`
}

func (s *StrategyStatusToggled) EventType() EventType { return EventTypeStrategyStatusToggled }

// FundsAllocated is emitted per executed allocation instruction.
type FundsAllocated struct {
	Strategy  uuid.UUID   `json:"strategy"`
	IsDeposit bool        `json:"is_deposit"`
	Amount    sdkmath.Int `json:"amount"`
	ExtraData []byte      `json:"extra_data,omitempty"`
}

func (f *FundsAllocated) EventType() EventType { return EventTypeFundsAllocated }

type DeallocationOrderSet struct {
	Order []uuid.UUID `json:"order"`
}

func (d *DeallocationOrderSet) EventType() EventType { return EventTypeDeallocationOrderSet }

// StrategyYieldReported is emitted when a strategy's reported value differs
// from its recorded allocation.
type StrategyYieldReported struct {
	Strategy uuid.UUID   `json:"strategy"`
	Previous sdkmath.Int `json:"previous"`
	Current  sdkmath.Int `json:"current"`
}

func (s *StrategyYieldReported) EventType() EventType { return EventTypeStrategyYieldReported }

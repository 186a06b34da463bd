package event

import (
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

type QueueToggled struct {
	Active bool `json:"active"`
}

func (q *QueueToggled) EventType() EventType { return EventTypeQueueToggled }

// WithdrawalRequested records shares moved into vault custody for an epoch.
// Assets is the estimate at request time; the claim uses the epoch price.
type WithdrawalRequested struct {
	Caller   uuid.UUID   `json:"caller"`
	Owner    uuid.UUID   `json:"owner"`
	Receiver uuid.UUID   `json:"receiver"`
	EpochID  uint64      `json:"epoch_id"`
	Shares   sdkmath.Int `json:"shares"`
	Assets   sdkmath.Int `json:"assets"`
}

func (w *WithdrawalRequested) EventType() EventType { return EventTypeWithdrawalRequested }

type RequestCancelled struct {
	User    uuid.UUID   `json:"user"`
	EpochID uint64      `json:"epoch_id"`
	Shares  sdkmath.Int `json:"shares"`
}

func (r *RequestCancelled) EventType() EventType { return EventTypeRequestCancelled }

type RequestMoved struct {
	User      uuid.UUID   `json:"user"`
	FromEpoch uint64      `json:"from_epoch"`
	ToEpoch   uint64      `json:"to_epoch"`
	Shares    sdkmath.Int `json:"shares"`
}

func (r *RequestMoved) EventType() EventType { return EventTypeRequestMoved }

type EpochClosed struct {
	EpochID uint64 `json:"epoch_id"`
}

func (e *EpochClosed) EventType() EventType { return EventTypeEpochClosed }

// EpochProcessed locks SharePrice (assets per 10^decimals shares) for the
// epoch and reserves Assets for its claimants.
type EpochProcessed struct {
	EpochID    uint64      `json:"epoch_id"`
	SharePrice sdkmath.Int `json:"share_price"`
	Shares     sdkmath.Int `json:"shares"`
	Assets     sdkmath.Int `json:"assets"`
}

func (e *EpochProcessed) EventType() EventType { return EventTypeEpochProcessed }

type WithdrawalClaimed struct {
	User     uuid.UUID   `json:"user"`
	EpochIDs []uint64    `json:"epoch_ids"`
	Assets   sdkmath.Int `json:"assets"`
}

func (w *WithdrawalClaimed) EventType() EventType { return EventTypeWithdrawalClaimed }

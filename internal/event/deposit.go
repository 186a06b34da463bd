package event

import (
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// Deposit is emitted when assets enter the vault and shares are minted.
type Deposit struct {
	Caller   uuid.UUID   `json:"caller"`
	Receiver uuid.UUID   `json:"receiver"`
	Assets   sdkmath.Int `json:"assets"`
	Shares   sdkmath.Int `json:"shares"`
}

func (d *Deposit) EventType() EventType { return EventTypeDeposit }

// Withdraw is emitted when shares are burned and assets leave the vault
// synchronously.
type Withdraw struct {
	Caller   uuid.UUID   `json:"caller"`
	Receiver uuid.UUID   `json:"receiver"`
	Owner    uuid.UUID   `json:"owner"`
	Assets   sdkmath.Int `json:"assets"`
	Shares   sdkmath.Int `json:"shares"`
}

func (w *Withdraw) EventType() EventType { return EventTypeWithdraw }

// SharesTransferred is a share movement between holders.
type SharesTransferred struct {
	From   uuid.UUID   `json:"from"`
	To     uuid.UUID   `json:"to"`
	Shares sdkmath.Int `json:"shares"`
}

func (s *SharesTransferred) EventType() EventType { return EventTypeSharesTransferred }

// SharesApproved records a share allowance update.
type SharesApproved struct {
	Owner   uuid.UUID   `json:"owner"`
	Spender uuid.UUID   `json:"spender"`
	Shares  sdkmath.Int `json:"shares"`
}

func (s *SharesApproved) EventType() EventType { return EventTypeSharesApproved }

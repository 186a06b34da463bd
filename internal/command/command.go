// Package command is the vault's input surface: typed commands, their
// payloads, and the single-writer Runner that applies them.
package command

import (
	"encoding/json"
	"fmt"
	"time"

	"StrategyVault/internal/strategy"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// Type discriminates command payloads. The string form is the wire name and
// the NATS subject token.
type Type string

const (
	TypeDeposit      Type = "deposit"
	TypeMint         Type = "mint"
	TypeWithdraw     Type = "withdraw"
	TypeRedeem       Type = "redeem"
	TypeTransfer     Type = "transfer"
	TypeTransferFrom Type = "transfer_from"
	TypeApprove      Type = "approve"

	TypeAddStrategy          Type = "add_strategy"
	TypeRemoveStrategy       Type = "remove_strategy"
	TypeToggleStrategyStatus Type = "toggle_strategy_status"
	TypeSetDeallocationOrder Type = "set_deallocation_order"
	TypeAllocateFunds        Type = "allocate_funds"
	TypeAccrueYield          Type = "accrue_yield"

	TypeSetManagementFee  Type = "set_management_fee"
	TypeSetPerformanceFee Type = "set_performance_fee"
	TypeSetDepositLimits  Type = "set_deposit_limits"
	TypeSetWithdrawLimits Type = "set_withdraw_limits"

	TypeToggleQueue             Type = "toggle_queue"
	TypeCancelWithdrawalRequest Type = "cancel_withdrawal_request"
	TypeMoveRequestToNextEpoch  Type = "move_request_to_next_epoch"
	TypeCloseEpoch              Type = "close_epoch"
	TypeProcessEpoch            Type = "process_epoch"
	TypeClaimWithdrawal         Type = "claim_withdrawal"
	TypeClaimWithdrawalFor      Type = "claim_withdrawal_for"

	// Devnet: move the in-process asset and strategies.
	TypeCreditAsset      Type = "credit_asset"
	TypeApproveAsset     Type = "approve_asset"
	TypeSetStrategyValue Type = "set_strategy_value"
)

// AllTypes lists every command type in a stable order.
var AllTypes = []Type{
	TypeDeposit, TypeMint, TypeWithdraw, TypeRedeem,
	TypeTransfer, TypeTransferFrom, TypeApprove,
	TypeAddStrategy, TypeRemoveStrategy, TypeToggleStrategyStatus,
	TypeSetDeallocationOrder, TypeAllocateFunds, TypeAccrueYield,
	TypeSetManagementFee, TypeSetPerformanceFee,
	TypeSetDepositLimits, TypeSetWithdrawLimits,
	TypeToggleQueue, TypeCancelWithdrawalRequest, TypeMoveRequestToNextEpoch,
	TypeCloseEpoch, TypeProcessEpoch, TypeClaimWithdrawal, TypeClaimWithdrawalFor,
	TypeCreditAsset, TypeApproveAsset, TypeSetStrategyValue,
}

// ParseType validates a wire name.
func ParseType(s string) (Type, bool) {
	for _, t := range AllTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Command is one request to mutate the vault.
type Command struct {
	Type Type `json:"type"`

	// Key is the producer's idempotency key. A (Type, Key) pair is applied
	// at most once.
	Key string `json:"key"`

	// Source and SourceSequence order commands per producer. An empty
	// Source skips sequence validation (admin/manual submissions).
	Source         string `json:"source,omitempty"`
	SourceSequence int64  `json:"source_sequence,omitempty"`

	Caller  uuid.UUID `json:"caller"`
	Payload Payload   `json:"payload"`
}

// CompositeKey is the dedup key stamped on every event the command emits.
func (c *Command) CompositeKey() string {
	return CompositeKey(c.Type, c.Key)
}

func CompositeKey(t Type, key string) string {
	return fmt.Sprintf("%s:%s", t, key)
}

// Payload is implemented by every command body. Validate rejects malformed
// input before it reaches the vault; business rules stay in the vault.
type Payload interface {
	Validate() error
}

// UnmarshalJSON decodes the payload using the command's type.
func (c *Command) UnmarshalJSON(data []byte) error {
	type alias Command
	raw := struct {
		*alias
		Payload json.RawMessage `json:"payload"`
	}{alias: (*alias)(c)}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	payload, err := DecodePayload(c.Type, raw.Payload)
	if err != nil {
		return err
	}
	c.Payload = payload
	return nil
}

// Applied is a command as recorded in the input log: its position, the
// vault clock it ran at, and how it ended.
type Applied struct {
	Index     int64     `json:"index"`
	Command   Command   `json:"command"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// --- payloads ---

type DepositPayload struct {
	Assets   sdkmath.Int `json:"assets"`
	Receiver uuid.UUID   `json:"receiver"`
}

func (p *DepositPayload) Validate() error { return requireAmount("assets", p.Assets) }

type MintPayload struct {
	Shares   sdkmath.Int `json:"shares"`
	Receiver uuid.UUID   `json:"receiver"`
}

func (p *MintPayload) Validate() error { return requireAmount("shares", p.Shares) }

type WithdrawPayload struct {
	Assets   sdkmath.Int `json:"assets"`
	Receiver uuid.UUID   `json:"receiver"`
	Owner    uuid.UUID   `json:"owner"`
}

func (p *WithdrawPayload) Validate() error { return requireAmount("assets", p.Assets) }

type RedeemPayload struct {
	Shares   sdkmath.Int `json:"shares"`
	Receiver uuid.UUID   `json:"receiver"`
	Owner    uuid.UUID   `json:"owner"`
}

func (p *RedeemPayload) Validate() error { return requireAmount("shares", p.Shares) }

type TransferPayload struct {
	To     uuid.UUID   `json:"to"`
	Shares sdkmath.Int `json:"shares"`
}

func (p *TransferPayload) Validate() error { return requireAmount("shares", p.Shares) }

type TransferFromPayload struct {
	Owner  uuid.UUID   `json:"owner"`
	To     uuid.UUID   `json:"to"`
	Shares sdkmath.Int `json:"shares"`
}

func (p *TransferFromPayload) Validate() error { return requireAmount("shares", p.Shares) }

type ApprovePayload struct {
	Spender uuid.UUID   `json:"spender"`
	Shares  sdkmath.Int `json:"shares"`
}

func (p *ApprovePayload) Validate() error { return requireAmount("shares", p.Shares) }

// StrategyPayload names one strategy. Used by add, remove and toggle.
type StrategyPayload struct {
	Strategy uuid.UUID `json:"strategy"`
}

func (p *StrategyPayload) Validate() error { return requireID("strategy", p.Strategy) }

type DeallocationOrderPayload struct {
	Order []uuid.UUID `json:"order"`
}

func (p *DeallocationOrderPayload) Validate() error { return nil }

type AllocateFundsPayload struct {
	Instructions []strategy.Instruction `json:"instructions"`
}

func (p *AllocateFundsPayload) Validate() error {
	for i, in := range p.Instructions {
		if err := requireID(fmt.Sprintf("instructions[%d].strategy", i), in.Strategy); err != nil {
			return err
		}
	}
	return nil
}

// EmptyPayload is the body of commands that take no arguments.
type EmptyPayload struct{}

func (p *EmptyPayload) Validate() error { return nil }

type FeePayload struct {
	Rate      uint16    `json:"rate"`
	Recipient uuid.UUID `json:"recipient"`
}

func (p *FeePayload) Validate() error { return nil }

type LimitsPayload struct {
	Min sdkmath.Int `json:"min"`
	Max sdkmath.Int `json:"max"`
}

func (p *LimitsPayload) Validate() error {
	if err := requireAmount("min", p.Min); err != nil {
		return err
	}
	return requireAmount("max", p.Max)
}

type EpochPayload struct {
	EpochID uint64 `json:"epoch_id"`
}

func (p *EpochPayload) Validate() error { return nil }

type UserPayload struct {
	User uuid.UUID `json:"user"`
}

func (p *UserPayload) Validate() error { return requireID("user", p.User) }

type ClaimPayload struct {
	EpochIDs []uint64 `json:"epoch_ids"`
}

func (p *ClaimPayload) Validate() error { return nil }

type ClaimForPayload struct {
	Users    []uuid.UUID `json:"users"`
	EpochIDs []uint64    `json:"epoch_ids"`
}

func (p *ClaimForPayload) Validate() error { return nil }

type CreditAssetPayload struct {
	Account uuid.UUID   `json:"account"`
	Amount  sdkmath.Int `json:"amount"`
}

func (p *CreditAssetPayload) Validate() error {
	if err := requireID("account", p.Account); err != nil {
		return err
	}
	return requireAmount("amount", p.Amount)
}

type ApproveAssetPayload struct {
	Spender uuid.UUID   `json:"spender"`
	Amount  sdkmath.Int `json:"amount"`
}

func (p *ApproveAssetPayload) Validate() error { return requireAmount("amount", p.Amount) }

type StrategyValuePayload struct {
	Strategy uuid.UUID   `json:"strategy"`
	Value    sdkmath.Int `json:"value"`
}

func (p *StrategyValuePayload) Validate() error {
	if err := requireID("strategy", p.Strategy); err != nil {
		return err
	}
	return requireAmount("value", p.Value)
}

// NewPayload returns an empty payload for t, for decoding.
func NewPayload(t Type) (Payload, error) {
	switch t {
	case TypeDeposit:
		return &DepositPayload{}, nil
	case TypeMint:
		return &MintPayload{}, nil
	case TypeWithdraw:
		return &WithdrawPayload{}, nil
	case TypeRedeem:
		return &RedeemPayload{}, nil
	case TypeTransfer:
		return &TransferPayload{}, nil
	case TypeTransferFrom:
		return &TransferFromPayload{}, nil
	case TypeApprove:
		return &ApprovePayload{}, nil
	case TypeAddStrategy, TypeRemoveStrategy, TypeToggleStrategyStatus:
		return &StrategyPayload{}, nil
	case TypeSetDeallocationOrder:
		return &DeallocationOrderPayload{}, nil
	case TypeAllocateFunds:
		return &AllocateFundsPayload{}, nil
	case TypeAccrueYield, TypeToggleQueue, TypeCloseEpoch, TypeProcessEpoch:
		return &EmptyPayload{}, nil
	case TypeSetManagementFee, TypeSetPerformanceFee:
		return &FeePayload{}, nil
	case TypeSetDepositLimits, TypeSetWithdrawLimits:
		return &LimitsPayload{}, nil
	case TypeCancelWithdrawalRequest:
		return &EpochPayload{}, nil
	case TypeMoveRequestToNextEpoch:
		return &UserPayload{}, nil
	case TypeClaimWithdrawal:
		return &ClaimPayload{}, nil
	case TypeClaimWithdrawalFor:
		return &ClaimForPayload{}, nil
	case TypeCreditAsset:
		return &CreditAssetPayload{}, nil
	case TypeApproveAsset:
		return &ApproveAssetPayload{}, nil
	case TypeSetStrategyValue:
		return &StrategyValuePayload{}, nil
	default:
		return nil, fmt.Errorf("unknown command type %q", t)
	}
}

// DecodePayload parses and validates a JSON payload of type t. An empty
// body decodes to the zero payload.
func DecodePayload(t Type, data []byte) (Payload, error) {
	payload, err := NewPayload(t)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, payload); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
	}
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", t, err)
	}
	return payload, nil
}

func requireAmount(field string, v sdkmath.Int) error {
	if v.IsNil() {
		return fmt.Errorf("%s is required", field)
	}
	if v.IsNegative() {
		return fmt.Errorf("%s must not be negative, got %s", field, v)
	}
	return nil
}

func requireID(field string, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

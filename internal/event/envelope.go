package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeDeposit
	EventTypeWithdraw
	EventTypeSharesTransferred
	EventTypeSharesApproved
	EventTypeStrategyAdded
	EventTypeStrategyRemoved
	EventTypeStrategyStatusToggled
	EventTypeFundsAllocated
	EventTypeDeallocationOrderSet
	EventTypeStrategyYieldReported
	EventTypeYieldAccrued
	EventTypeFeesMinted
	EventTypeFeeConfigUpdated
	EventTypeLimitsUpdated
	EventTypeHooksUpdated
	EventTypeQueueToggled
	EventTypeWithdrawalRequested
	EventTypeRequestCancelled
	EventTypeRequestMoved
	EventTypeEpochClosed
	EventTypeEpochProcessed
	EventTypeWithdrawalClaimed
)

var eventTypeNames = map[EventType]string{
	EventTypeDeposit:               "Deposit",
	EventTypeWithdraw:              "Withdraw",
	EventTypeSharesTransferred:     "SharesTransferred",
	EventTypeSharesApproved:        "SharesApproved",
	EventTypeStrategyAdded:         "StrategyAdded",
	EventTypeStrategyRemoved:       "StrategyRemoved",
	EventTypeStrategyStatusToggled: "StrategyStatusToggled",
	EventTypeFundsAllocated:        "FundsAllocated",
	EventTypeDeallocationOrderSet:  "DeallocationOrderSet",
	EventTypeStrategyYieldReported: "StrategyYieldReported",
	EventTypeYieldAccrued:          "YieldAccrued",
	EventTypeFeesMinted:            "FeesMinted",
	EventTypeFeeConfigUpdated:      "FeeConfigUpdated",
	EventTypeLimitsUpdated:         "LimitsUpdated",
	EventTypeHooksUpdated:          "HooksUpdated",
	EventTypeQueueToggled:          "QueueToggled",
	EventTypeWithdrawalRequested:   "WithdrawalRequested",
	EventTypeRequestCancelled:      "RequestCancelled",
	EventTypeRequestMoved:          "RequestMoved",
	EventTypeEpochClosed:           "EpochClosed",
	EventTypeEpochProcessed:        "EpochProcessed",
	EventTypeWithdrawalClaimed:     "WithdrawalClaimed",
}

func (et EventType) String() string {
	if name, ok := eventTypeNames[et]; ok {
		return name
	}
	return "Unknown"
}

// ParseEventType is the inverse of String.
func ParseEventType(name string) (EventType, bool) {
	for et, n := range eventTypeNames {
		if n == name {
			return et, true
		}
	}
	return EventTypeUnknown, false
}

// Event is the interface all event payloads implement
type Event interface {
	EventType() EventType
}

// Envelope wraps every event the vault emits
type Envelope struct {
	// Global monotonic sequence assigned by the vault
	Sequence int64 `json:"sequence"`

	// Idempotency key of the command that produced the event (may be empty)
	CommandKey string `json:"command_key,omitempty"`

	EventType EventType `json:"event_type"`

	// Vault clock time of the call (NOT wall-clock of emission)
	Timestamp time.Time `json:"timestamp"`

	Payload Event `json:"payload"`

	// SHA-256 chain: hash of this event over PrevHash
	StateHash [32]byte `json:"state_hash"`
	PrevHash  [32]byte `json:"prev_hash"`
}

// New returns an empty payload of the given type, for decoding.
func New(et EventType) (Event, error) {
	switch et {
	case EventTypeDeposit:
		return &Deposit{}, nil
	case EventTypeWithdraw:
		return &Withdraw{}, nil
	case EventTypeSharesTransferred:
		return &SharesTransferred{}, nil
	case EventTypeSharesApproved:
		return &SharesApproved{}, nil
	case EventTypeStrategyAdded:
		return &StrategyAdded{}, nil
	case EventTypeStrategyRemoved:
		return &StrategyRemoved{}, nil
	case EventTypeStrategyStatusToggled:
		return &StrategyStatusToggled{}, nil
	case EventTypeFundsAllocated:
		return &FundsAllocated{}, nil
	case EventTypeDeallocationOrderSet:
		return &DeallocationOrderSet{}, nil
	case EventTypeStrategyYieldReported:
		return &StrategyYieldReported{}, nil
	case EventTypeYieldAccrued:
		return &YieldAccrued{}, nil
	case EventTypeFeesMinted:
		return &FeesMinted{}, nil
	case EventTypeFeeConfigUpdated:
		return &FeeConfigUpdated{}, nil
	case EventTypeLimitsUpdated:
		return &LimitsUpdated{}, nil
	case EventTypeHooksUpdated:
		return &HooksUpdated{}, nil
	case EventTypeQueueToggled:
		return &QueueToggled{}, nil
	case EventTypeWithdrawalRequested:
		return &WithdrawalRequested{}, nil
	case EventTypeRequestCancelled:
		return &RequestCancelled{}, nil
	case EventTypeRequestMoved:
		return &RequestMoved{}, nil
	case EventTypeEpochClosed:
		return &EpochClosed{}, nil
	case EventTypeEpochProcessed:
		return &EpochProcessed{}, nil
	case EventTypeWithdrawalClaimed:
		return &WithdrawalClaimed{}, nil
	default:
		return nil, fmt.Errorf("unknown event type %d", et)
	}
}

// Decode parses a JSON payload of the given type.
func Decode(et EventType, payload []byte) (Event, error) {
	evt, err := New(et)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", et, err)
	}
	return evt, nil
}

// UnmarshalJSON decodes the payload using the envelope's event type.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	type alias Envelope
	raw := struct {
		*alias
		Payload json.RawMessage `json:"payload"`
	}{alias: (*alias)(e)}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	payload, err := Decode(e.EventType, raw.Payload)
	if err != nil {
		return err
	}
	e.Payload = payload
	return nil
}

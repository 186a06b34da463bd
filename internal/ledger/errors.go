package ledger

import (
	errorsmod "cosmossdk.io/errors"
)

// LedgerCodespace namespaces ledger error codes.
const LedgerCodespace = "ledger"

var (
	ErrStrategyAlreadyAdded         = errorsmod.Register(LedgerCodespace, 2, "strategy already added")
	ErrStrategyDoesNotExist         = errorsmod.Register(LedgerCodespace, 3, "strategy does not exist")
	ErrStrategyHasAllocation        = errorsmod.Register(LedgerCodespace, 4, "strategy has allocation")
	ErrCannotToggleInactiveStrategy = errorsmod.Register(LedgerCodespace, 5, "cannot toggle inactive strategy")
	ErrStrategyIsHalted             = errorsmod.Register(LedgerCodespace, 6, "strategy is halted")
	ErrStrategyInDeallocationOrder  = errorsmod.Register(LedgerCodespace, 7, "strategy referenced by deallocation order")
	ErrInsufficientShares           = errorsmod.Register(LedgerCodespace, 8, "insufficient shares")
	ErrInsufficientAllowance        = errorsmod.Register(LedgerCodespace, 9, "insufficient allowance")
	ErrInvariantViolation           = errorsmod.Register(LedgerCodespace, 10, "ledger invariant violated")
)

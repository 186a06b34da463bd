package core

import (
	"errors"
	"fmt"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/google/uuid"
)

// VaultCodespace namespaces vault error codes.
const VaultCodespace = "vault"

var (
	ErrReentrantCall             = errorsmod.Register(VaultCodespace, 2, "reentrant call")
	ErrInvalidStrategyAsset      = errorsmod.Register(VaultCodespace, 3, "invalid strategy asset")
	ErrAssetAmountOutOfBounds    = errorsmod.Register(VaultCodespace, 4, "asset amount out of bounds")
	ErrExceededMaxWithdraw       = errorsmod.Register(VaultCodespace, 5, "exceeded max withdraw")
	ErrExceededMaxRedeem         = errorsmod.Register(VaultCodespace, 6, "exceeded max redeem")
	ErrInvalidReceiver           = errorsmod.Register(VaultCodespace, 7, "invalid receiver")
	ErrZeroShares                = errorsmod.Register(VaultCodespace, 8, "zero shares")
	ErrInvalidAmount             = errorsmod.Register(VaultCodespace, 9, "invalid amount")
	ErrInvalidFeeRate            = errorsmod.Register(VaultCodespace, 10, "invalid fee rate")
	ErrInvalidFeeRecipient       = errorsmod.Register(VaultCodespace, 11, "invalid fee recipient")
	ErrInvalidLimits             = errorsmod.Register(VaultCodespace, 12, "invalid limits")
	ErrEpochAlreadyClosed        = errorsmod.Register(VaultCodespace, 13, "epoch already closed")
	ErrPreviousEpochNotProcessed = errorsmod.Register(VaultCodespace, 14, "previous epoch not processed")
	ErrNoEpochToProcess          = errorsmod.Register(VaultCodespace, 15, "no closed epoch to process")
	ErrEpochAlreadyProcessed     = errorsmod.Register(VaultCodespace, 16, "epoch already processed")
	ErrInsufficientBalance       = errorsmod.Register(VaultCodespace, 17, "insufficient balance")
	ErrEmptyEpochIDs             = errorsmod.Register(VaultCodespace, 18, "empty epoch ids")
	ErrNoRequestingShares        = errorsmod.Register(VaultCodespace, 19, "no requesting shares")
	ErrQueueNotSupported         = errorsmod.Register(VaultCodespace, 20, "withdrawal queue not supported")
	ErrAdapterFailure            = errorsmod.Register(VaultCodespace, 21, "strategy adapter failure")
	ErrUnknownAdapter            = errorsmod.Register(VaultCodespace, 22, "unknown strategy adapter")
	ErrHookRejected              = errorsmod.Register(VaultCodespace, 23, "hook rejected call")
	ErrAssetTransfer             = errorsmod.Register(VaultCodespace, 24, "asset transfer failed")
	ErrInvalidConfig             = errorsmod.Register(VaultCodespace, 25, "invalid vault config")
	ErrCallPanicked              = errorsmod.Register(VaultCodespace, 26, "call panicked")
)

// adapterFailure keeps both ErrAdapterFailure and the adapter's own error in
// the chain.
func adapterFailure(strategyID uuid.UUID, op string, err error) error {
	return fmt.Errorf("%w: strategy %s %s: %w", ErrAdapterFailure, strategyID, op, err)
}

func transferFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrAssetTransfer, op, err)
}

// rejectReason turns an error into a bounded metric label.
func rejectReason(err error) string {
	var coded *errorsmod.Error
	if errors.As(err, &coded) {
		return coded.Codespace() + "_" + strings.ReplaceAll(coded.Error(), " ", "_")
	}
	return "error"
}

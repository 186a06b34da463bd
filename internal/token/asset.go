// Package token models the vault's underlying asset.
package token

import (
	"StrategyVault/internal/ledger"
	vmath "StrategyVault/internal/math"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

const TokenCodespace = "token"

var (
	ErrInsufficientBalance   = errorsmod.Register(TokenCodespace, 2, "insufficient asset balance")
	ErrInsufficientAllowance = errorsmod.Register(TokenCodespace, 3, "insufficient asset allowance")
	ErrInvalidRecipient      = errorsmod.Register(TokenCodespace, 4, "invalid recipient")
)

// Asset is the fungible token a vault holds. Accounts are identified by
// uuid; the vault's custody account is just another account.
type Asset interface {
	Denom() string
	Decimals() uint8
	BalanceOf(account uuid.UUID) sdkmath.Int
	Transfer(from, to uuid.UUID, amount sdkmath.Int) error
	TransferFrom(spender, from, to uuid.UUID, amount sdkmath.Int) error
	Approve(owner, spender uuid.UUID, amount sdkmath.Int) error
	Allowance(owner, spender uuid.UUID) sdkmath.Int
}

// TransferHook observes every successful transfer. It runs after balances
// move, so it can model a token that calls back into the receiver.
type TransferHook func(from, to uuid.UUID, amount sdkmath.Int)

// MemoryAsset is an in-process Asset backed by a BalanceBook. vaultd uses it
// as the custodial ledger of the underlying; tests use it directly.
// Not thread-safe.
type MemoryAsset struct {
	denom    string
	decimals uint8
	book     *ledger.BalanceBook
	hook     TransferHook
}

func NewMemoryAsset(denom string, decimals uint8) *MemoryAsset {
	return &MemoryAsset{
		denom:    denom,
		decimals: decimals,
		book:     ledger.NewBalanceBook(),
	}
}

func (a *MemoryAsset) Denom() string   { return a.denom }
func (a *MemoryAsset) Decimals() uint8 { return a.decimals }

func (a *MemoryAsset) BalanceOf(account uuid.UUID) sdkmath.Int {
	return a.book.BalanceOf(account)
}

// TotalSupply returns all minted units.
func (a *MemoryAsset) TotalSupply() sdkmath.Int {
	return a.book.TotalSupply()
}

// SetTransferHook installs (or clears with nil) the transfer observer.
func (a *MemoryAsset) SetTransferHook(hook TransferHook) {
	a.hook = hook
}

// Mint credits new units to account.
func (a *MemoryAsset) Mint(account uuid.UUID, amount sdkmath.Int) error {
	return a.book.Mint(account, amount)
}

// Burn destroys units held by account.
func (a *MemoryAsset) Burn(account uuid.UUID, amount sdkmath.Int) error {
	bal := a.book.BalanceOf(account)
	if bal.LT(amount) {
		return errorsmod.Wrapf(ErrInsufficientBalance, "account %s balance %s burn %s", account, bal, amount)
	}
	return a.book.Burn(account, amount)
}

func (a *MemoryAsset) Transfer(from, to uuid.UUID, amount sdkmath.Int) error {
	if ledger.IsNull(to) {
		return errorsmod.Wrapf(ErrInvalidRecipient, "transfer %s from %s", amount, from)
	}
	bal := a.book.BalanceOf(from)
	if bal.LT(amount) {
		return errorsmod.Wrapf(ErrInsufficientBalance, "account %s balance %s transfer %s", from, bal, amount)
	}
	if err := a.book.Move(from, to, amount); err != nil {
		return err
	}
	if a.hook != nil {
		a.hook(from, to, amount)
	}
	return nil
}

func (a *MemoryAsset) TransferFrom(spender, from, to uuid.UUID, amount sdkmath.Int) error {
	if spender != from {
		allowance := a.book.Allowance(from, spender)
		if allowance.LT(amount) {
			return errorsmod.Wrapf(ErrInsufficientAllowance, "owner %s spender %s allowance %s need %s", from, spender, allowance, amount)
		}
		if err := a.book.SpendAllowance(from, spender, amount, vmath.MaxUint256); err != nil {
			return err
		}
	}
	return a.Transfer(from, to, amount)
}

func (a *MemoryAsset) Approve(owner, spender uuid.UUID, amount sdkmath.Int) error {
	if ledger.IsNull(spender) {
		return errorsmod.Wrapf(ErrInvalidRecipient, "approve from %s", owner)
	}
	a.book.SetAllowance(owner, spender, amount)
	return nil
}

func (a *MemoryAsset) Allowance(owner, spender uuid.UUID) sdkmath.Int {
	return a.book.Allowance(owner, spender)
}

// Snapshot returns the asset's balances and allowances.
func (a *MemoryAsset) Snapshot() ledger.BookSnapshot {
	return a.book.Snapshot()
}

// Restore replaces balances and allowances.
func (a *MemoryAsset) Restore(snap ledger.BookSnapshot) {
	a.book.Restore(snap)
}

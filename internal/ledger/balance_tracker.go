package ledger

import (
	vmath "StrategyVault/internal/math"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// BalanceBook maintains fungible balances, allowances and total supply for
// one token. It backs both the vault's share ledger and the in-memory asset.
// Not thread-safe.
type BalanceBook struct {
	balances   map[uuid.UUID]sdkmath.Int
	allowances map[uuid.UUID]map[uuid.UUID]sdkmath.Int
	supply     sdkmath.Int
}

func NewBalanceBook() *BalanceBook {
	return &BalanceBook{
		balances:   make(map[uuid.UUID]sdkmath.Int),
		allowances: make(map[uuid.UUID]map[uuid.UUID]sdkmath.Int),
		supply:     sdkmath.ZeroInt(),
	}
}

// BalanceOf returns the balance of account (zero if unknown).
func (b *BalanceBook) BalanceOf(account uuid.UUID) sdkmath.Int {
	bal, ok := b.balances[account]
	if !ok {
		return sdkmath.ZeroInt()
	}
	return bal
}

// TotalSupply returns the sum of all balances.
func (b *BalanceBook) TotalSupply() sdkmath.Int {
	return b.supply
}

// Mint credits amount to account and grows supply. It fails with
// ErrAmountOverflow when supply would pass 256 bits; every balance is bounded
// by supply, so no balance can overflow after that check.
func (b *BalanceBook) Mint(account uuid.UUID, amount sdkmath.Int) error {
	if amount.IsZero() {
		return nil
	}
	supply, err := vmath.CheckedAdd(b.supply, amount)
	if err != nil {
		return err
	}
	b.setBalance(account, b.BalanceOf(account).Add(amount))
	b.supply = supply
	return nil
}

// Burn debits amount from account and shrinks supply.
func (b *BalanceBook) Burn(account uuid.UUID, amount sdkmath.Int) error {
	bal := b.BalanceOf(account)
	if bal.LT(amount) {
		return errorsmod.Wrapf(ErrInsufficientShares, "account %s balance %s burn %s", account, bal, amount)
	}
	b.setBalance(account, bal.Sub(amount))
	b.supply = b.supply.Sub(amount)
	return nil
}

// Move transfers amount between two accounts. Supply is unchanged.
func (b *BalanceBook) Move(from, to uuid.UUID, amount sdkmath.Int) error {
	bal := b.BalanceOf(from)
	if bal.LT(amount) {
		return errorsmod.Wrapf(ErrInsufficientShares, "account %s balance %s transfer %s", from, bal, amount)
	}
	if from == to || amount.IsZero() {
		return nil
	}
	b.setBalance(from, bal.Sub(amount))
	b.setBalance(to, b.BalanceOf(to).Add(amount))
	return nil
}

// Allowance returns how much spender may move on behalf of owner.
func (b *BalanceBook) Allowance(owner, spender uuid.UUID) sdkmath.Int {
	if byOwner, ok := b.allowances[owner]; ok {
		if amt, ok := byOwner[spender]; ok {
			return amt
		}
	}
	return sdkmath.ZeroInt()
}

// SetAllowance overwrites the allowance of spender over owner's balance.
func (b *BalanceBook) SetAllowance(owner, spender uuid.UUID, amount sdkmath.Int) {
	byOwner, ok := b.allowances[owner]
	if !ok {
		if amount.IsZero() {
			return
		}
		byOwner = make(map[uuid.UUID]sdkmath.Int)
		b.allowances[owner] = byOwner
	}
	if amount.IsZero() {
		delete(byOwner, spender)
		if len(byOwner) == 0 {
			delete(b.allowances, owner)
		}
		return
	}
	byOwner[spender] = amount
}

// SpendAllowance decrements the allowance by amount. An allowance equal to
// unlimited is left untouched.
func (b *BalanceBook) SpendAllowance(owner, spender uuid.UUID, amount, unlimited sdkmath.Int) error {
	current := b.Allowance(owner, spender)
	if current.Equal(unlimited) {
		return nil
	}
	if current.LT(amount) {
		return errorsmod.Wrapf(ErrInsufficientAllowance, "owner %s spender %s allowance %s need %s", owner, spender, current, amount)
	}
	b.SetAllowance(owner, spender, current.Sub(amount))
	return nil
}

// Holders returns all accounts with a non-zero balance, sorted.
func (b *BalanceBook) Holders() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(b.balances))
	for id := range b.balances {
		ids = append(ids, id)
	}
	SortAccounts(ids)
	return ids
}

// BookSnapshot is the serialisable form of a BalanceBook.
type BookSnapshot struct {
	Balances   map[uuid.UUID]sdkmath.Int               `json:"balances"`
	Allowances map[uuid.UUID]map[uuid.UUID]sdkmath.Int `json:"allowances,omitempty"`
}

// Snapshot copies the book for persistence.
func (b *BalanceBook) Snapshot() BookSnapshot {
	snap := BookSnapshot{
		Balances:   make(map[uuid.UUID]sdkmath.Int, len(b.balances)),
		Allowances: make(map[uuid.UUID]map[uuid.UUID]sdkmath.Int, len(b.allowances)),
	}
	for id, bal := range b.balances {
		snap.Balances[id] = bal
	}
	for owner, byOwner := range b.allowances {
		inner := make(map[uuid.UUID]sdkmath.Int, len(byOwner))
		for spender, amt := range byOwner {
			inner[spender] = amt
		}
		snap.Allowances[owner] = inner
	}
	return snap
}

// Restore replaces the book's content with snap. Supply is recomputed.
func (b *BalanceBook) Restore(snap BookSnapshot) {
	b.balances = make(map[uuid.UUID]sdkmath.Int, len(snap.Balances))
	b.allowances = make(map[uuid.UUID]map[uuid.UUID]sdkmath.Int)
	b.supply = sdkmath.ZeroInt()
	for id, bal := range snap.Balances {
		b.setBalance(id, bal)
		b.supply = b.supply.Add(bal)
	}
	for owner, byOwner := range snap.Allowances {
		for spender, amt := range byOwner {
			b.SetAllowance(owner, spender, amt)
		}
	}
}

func (b *BalanceBook) setBalance(account uuid.UUID, amount sdkmath.Int) {
	if amount.IsZero() {
		delete(b.balances, account)
		return
	}
	b.balances[account] = amount
}

package core

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"StrategyVault/internal/access"
	"StrategyVault/internal/event"
	"StrategyVault/internal/ledger"
	vmath "StrategyVault/internal/math"
	"StrategyVault/internal/observability"
	"StrategyVault/internal/strategy"
	"StrategyVault/internal/token"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// supplyCheckInterval is how often (in sequences) the O(holders) share
// supply invariant is verified.
const supplyCheckInterval = 1000

// Clock supplies the vault's notion of time. The vault never reads the wall
// clock for state; tests drive it explicitly.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Config wires a Vault.
type Config struct {
	// ID is the vault's custody account on the underlying asset.
	ID    uuid.UUID
	Asset token.Asset

	// DecimalsOffset adds virtual share precision: share decimals are
	// asset decimals + offset.
	DecimalsOffset uint8

	// Async enables the epoch withdrawal queue.
	Async bool

	// LockedAssets adds to the policy deciding how much idle balance is
	// unavailable to ordinary operations. The base policy is none (sync) or
	// the queue's reserved assets (async).
	LockedAssets LockedAssetsPolicy

	Clock         Clock
	Authorizer    access.Authorizer
	Sink          EventSink
	Metrics       *observability.Metrics
	Logger        *zerolog.Logger
	StartSequence int64
}

// FeeConfig holds fee rates (bps) and recipients.
type FeeConfig struct {
	ManagementFeeRate            uint16    `json:"management_fee_rate"`
	ManagementFeeRecipient       uuid.UUID `json:"management_fee_recipient"`
	LastManagementFeeAccrualTime time.Time `json:"last_management_fee_accrual_time"`
	PerformanceFeeRate           uint16    `json:"performance_fee_rate"`
	PerformanceFeeRecipient      uuid.UUID `json:"performance_fee_recipient"`
}

// Limits bounds deposit and withdraw asset amounts (inclusive).
type Limits struct {
	MinDeposit  sdkmath.Int `json:"min_deposit"`
	MaxDeposit  sdkmath.Int `json:"max_deposit"`
	MinWithdraw sdkmath.Int `json:"min_withdraw"`
	MaxWithdraw sdkmath.Int `json:"max_withdraw"`
}

func defaultLimits() Limits {
	return Limits{
		MinDeposit:  sdkmath.ZeroInt(),
		MaxDeposit:  vmath.MaxUint256,
		MinWithdraw: sdkmath.ZeroInt(),
		MaxWithdraw: vmath.MaxUint256,
	}
}

// Vault is the single-writer state object for one vault instance: share
// accounting, the strategy allocation ledger, fee accrual and (optionally)
// the epoch withdrawal queue. Every mutating entry point is guarded against
// re-entry from adapter or token callbacks and is all-or-nothing.
type Vault struct {
	guard sync.Mutex

	id      uuid.UUID
	asset   token.Asset
	offset  uint8
	clock   Clock
	auth    access.Authorizer
	sink    EventSink
	metrics *observability.Metrics
	logger  zerolog.Logger

	cachedTotalAssets sdkmath.Int
	shares            *ledger.BalanceBook
	allocations       *ledger.AllocationLedger
	adapters          map[uuid.UUID]strategy.Adapter
	validator         *ledger.InvariantValidator

	fees       FeeConfig
	limits     Limits
	hooks      Hooks
	hookConfig HookConfig
	locked     LockedAssetsPolicy
	queue      *epochQueue

	sequence int64
	chain    *hashChain

	// Per-call scratch, valid only while guard is held.
	now     time.Time
	undo    undoLog
	pending []pendingEvent
}

type pendingEvent struct {
	evt    event.Event
	sticky bool
}

// NewVault builds an empty vault.
func NewVault(cfg Config) (*Vault, error) {
	if cfg.Asset == nil {
		return nil, errorsmod.Wrap(ErrInvalidConfig, "asset is required")
	}
	if ledger.IsNull(cfg.ID) {
		return nil, errorsmod.Wrap(ErrInvalidConfig, "vault id is required")
	}
	if int(cfg.Asset.Decimals())+int(cfg.DecimalsOffset) > vmath.MaxDecimals {
		return nil, errorsmod.Wrapf(ErrInvalidConfig, "asset decimals %d plus offset %d exceed %d",
			cfg.Asset.Decimals(), cfg.DecimalsOffset, vmath.MaxDecimals)
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Sink == nil {
		cfg.Sink = DiscardSink{}
	}

	logger := observability.NopLogger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	v := &Vault{
		id:                cfg.ID,
		asset:             cfg.Asset,
		offset:            cfg.DecimalsOffset,
		clock:             cfg.Clock,
		auth:              cfg.Authorizer,
		sink:              cfg.Sink,
		metrics:           cfg.Metrics,
		logger:            logger.With().Str("vault", cfg.ID.String()).Logger(),
		cachedTotalAssets: sdkmath.ZeroInt(),
		shares:            ledger.NewBalanceBook(),
		allocations:       ledger.NewAllocationLedger(),
		adapters:          make(map[uuid.UUID]strategy.Adapter),
		limits:            defaultLimits(),
		locked:            NoLockedAssets{},
		sequence:          cfg.StartSequence,
		chain:             newHashChain(),
	}
	v.validator = ledger.NewInvariantValidator(v.allocations, v.shares)
	v.fees.LastManagementFeeAccrualTime = v.readClock()

	if cfg.Async {
		v.queue = newEpochQueue()
		v.locked = v.queue
	}
	if cfg.LockedAssets != nil {
		if v.queue != nil {
			v.locked = CombinedLockedAssets{v.queue, cfg.LockedAssets}
		} else {
			v.locked = cfg.LockedAssets
		}
	}

	return v, nil
}

// call runs fn as one atomic, non-reentrant vault operation. On error every
// journaled mutation is rolled back and buffered events are dropped; on
// success the events are sequenced, hashed and emitted.
// runRecovered turns a panic inside fn into ErrCallPanicked so the undo log
// still runs. Invariant checks after fn stay fatal.
func (v *Vault) runRecovered(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error().
				Str("op", op).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("call panicked, rolling back")
			err = errorsmod.Wrapf(ErrCallPanicked, "%s: %v", op, r)
		}
	}()
	return fn()
}

func (v *Vault) call(op string, fn func() error) error {
	if !v.guard.TryLock() {
		return errorsmod.Wrapf(ErrReentrantCall, "%s", op)
	}
	defer v.guard.Unlock()

	start := time.Now()
	v.now = v.readClock()
	v.undo.reset()
	v.pending = v.pending[:0]

	if err := v.runRecovered(op, fn); err != nil {
		v.undo.rollback()
		v.flush(true)
		if v.metrics != nil {
			v.metrics.CommandsRejected.WithLabelValues(op, rejectReason(err)).Inc()
		}
		v.logger.Debug().Err(err).Str("op", op).Msg("call rejected")
		return err
	}
	v.undo.reset()

	if err := v.validator.ValidateAllocations(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated after %s: %v", op, err))
	}

	v.flush(false)

	if v.sequence%supplyCheckInterval == 0 {
		if err := v.validator.ValidateSupply(); err != nil {
			panic(fmt.Sprintf("FATAL: invariant violated at seq %d: %v", v.sequence, err))
		}
	}

	if v.metrics != nil {
		v.metrics.CommandsApplied.WithLabelValues(op).Inc()
		v.metrics.CommandDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		v.recordStateMetrics()
	}
	return nil
}

// read runs a view under the guard so callbacks cannot observe a call in
// progress. Views that query adapters use it.
func (v *Vault) read(fn func() error) error {
	if !v.guard.TryLock() {
		return errorsmod.Wrap(ErrReentrantCall, "view during call")
	}
	defer v.guard.Unlock()
	v.now = v.readClock()
	return fn()
}

func (v *Vault) readClock() time.Time {
	return v.clock.Now().UTC().Truncate(time.Second)
}

func (v *Vault) emit(evt event.Event) {
	v.pending = append(v.pending, pendingEvent{evt: evt})
}

// emitSticky buffers an event that survives a rollback.
func (v *Vault) emitSticky(evt event.Event) {
	v.pending = append(v.pending, pendingEvent{evt: evt, sticky: true})
}

func (v *Vault) flush(stickyOnly bool) {
	for _, p := range v.pending {
		if stickyOnly && !p.sticky {
			continue
		}

		v.sequence++
		prevHash, stateHash := v.chain.link(v.sequence, p.evt)

		env := event.Envelope{
			Sequence:  v.sequence,
			EventType: p.evt.EventType(),
			Timestamp: v.now,
			Payload:   p.evt,
			StateHash: stateHash,
			PrevHash:  prevHash,
		}

		v.sink.Emit(env)

		if v.metrics != nil {
			v.metrics.EventsEmitted.WithLabelValues(env.EventType.String()).Inc()
			v.metrics.Sequence.Set(float64(v.sequence))
			if minted, ok := p.evt.(*event.FeesMinted); ok {
				v.metrics.FeeSharesMinted.WithLabelValues(minted.Kind).Add(observability.AmountFloat(minted.Shares))
			}
		}
	}
	v.pending = v.pending[:0]
}

func (v *Vault) recordStateMetrics() {
	v.metrics.CachedTotalAssets.Set(observability.AmountFloat(v.cachedTotalAssets))
	v.metrics.TotalSupply.Set(observability.AmountFloat(v.shares.TotalSupply()))
	for id, data := range v.allocations.Snapshot() {
		v.metrics.StrategyAllocated.WithLabelValues(id.String()).Set(observability.AmountFloat(data.Allocated))
	}
	if v.queue != nil {
		v.metrics.LatestEpochID.Set(float64(v.queue.latestEpochID))
		v.metrics.ReservedAssets.Set(observability.AmountFloat(v.queue.unclaimed))
	}
}

func (v *Vault) authorize(role access.Role, caller uuid.UUID) error {
	return access.Require(v.auth, role, caller)
}

// --- plain getters (no adapter calls) ---

// ID returns the vault's custody account.
func (v *Vault) ID() uuid.UUID { return v.id }

// Asset returns the underlying asset.
func (v *Vault) Asset() token.Asset { return v.asset }

// Decimals returns the share decimals.
func (v *Vault) Decimals() uint8 { return v.asset.Decimals() + v.offset }

// DecimalsOffset returns the virtual share precision offset.
func (v *Vault) DecimalsOffset() uint8 { return v.offset }

// CachedTotalAssets returns the last reconciled asset total.
func (v *Vault) CachedTotalAssets() sdkmath.Int { return v.cachedTotalAssets }

// TotalSupply returns the shares outstanding.
func (v *Vault) TotalSupply() sdkmath.Int { return v.shares.TotalSupply() }

// BalanceOf returns an account's share balance.
func (v *Vault) BalanceOf(account uuid.UUID) sdkmath.Int { return v.shares.BalanceOf(account) }

// Allowance returns the share allowance of spender over owner.
func (v *Vault) Allowance(owner, spender uuid.UUID) sdkmath.Int {
	return v.shares.Allowance(owner, spender)
}

// Sequence returns the last assigned event sequence.
func (v *Vault) Sequence() int64 { return v.sequence }

// StateHash returns the hash chain tip.
func (v *Vault) StateHash() [32]byte { return v.chain.tip }

// IsAsync reports whether the vault carries an epoch queue.
func (v *Vault) IsAsync() bool { return v.queue != nil }

// IdleAssets returns the vault's raw balance of the underlying.
func (v *Vault) IdleAssets() sdkmath.Int { return v.asset.BalanceOf(v.id) }

// LockedAssets returns the idle amount unavailable to ordinary operations.
func (v *Vault) LockedAssets() sdkmath.Int { return v.locked.LockedAssets() }

// availableIdle is idle balance minus locked assets.
func (v *Vault) availableIdle() sdkmath.Int {
	return vmath.SaturatingSub(v.IdleAssets(), v.locked.LockedAssets())
}

package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StrategyVault/internal/access"
	"StrategyVault/internal/core"
	"StrategyVault/internal/event"
	"StrategyVault/internal/ledger"
	"StrategyVault/internal/observability"
	"StrategyVault/internal/strategy"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrMissingKey      = errors.New("command key is required")
	ErrInvalidPayload  = errors.New("invalid command payload")
	ErrSequence        = errors.New("command sequence rejected")
	ErrNotSupported    = errors.New("command not supported by this deployment")
	ErrRunnerStopped   = errors.New("runner stopped")
	ErrUnknownStrategy = errors.New("strategy not registered")
)

// Output is everything one command produced, handed to the shell for
// persistence, projection and publishing.
type Output struct {
	Applied Applied
	Events  []event.Envelope

	// Replayed outputs come from the input log on restart and must not be
	// published again.
	Replayed bool
}

// OutputSink receives one Output per command that reached the vault.
type OutputSink interface {
	Emit(out Output)
}

// OutputFunc adapts a function to OutputSink.
type OutputFunc func(out Output)

func (f OutputFunc) Emit(out Output) { f(out) }

// Result is what a submitter gets back.
type Result struct {
	Index     int64 `json:"index"`
	Sequence  int64 `json:"sequence"`
	Duplicate bool  `json:"duplicate,omitempty"`
	Value     any   `json:"value,omitempty"`
	Err       error `json:"-"`
}

// State is the runner's warm-restart checkpoint.
type State struct {
	Vault           *core.Snapshot       `json:"vault"`
	Asset           *ledger.BookSnapshot `json:"asset,omitempty"`
	CommandIndex    int64                `json:"command_index"`
	LastTimestamp   time.Time            `json:"last_timestamp"`
	SequenceState   map[string]int64     `json:"sequence_state"`
	IdempotencyKeys []string             `json:"idempotency_keys"`
}

// Minter is implemented by assets that can be credited out of thin air
// (devnet only).
type Minter interface {
	Mint(account uuid.UUID, amount sdkmath.Int) error
}

// valueSetter is implemented by simulated strategies.
type valueSetter interface {
	SetValue(value sdkmath.Int) error
}

type bookSnapshotter interface {
	Snapshot() ledger.BookSnapshot
	Restore(snap ledger.BookSnapshot)
}

// Config wires a Runner. Vault.Clock and Vault.Sink are owned by the runner
// and overwritten.
type Config struct {
	Vault      core.Config
	Strategies *strategy.Registry
	Dedup      *IdempotencyChecker
	Sequences  *SequenceValidator
	Output     OutputSink
	Metrics    *observability.Metrics
	Logger     zerolog.Logger
	QueueSize  int
}

// Runner is the vault's single writer. Every command, view and snapshot runs
// on its goroutine, so the vault never sees concurrent access.
type Runner struct {
	vault      *core.Vault
	strategies *strategy.Registry
	auth       access.Authorizer
	dedup      *IdempotencyChecker
	sequences  *SequenceValidator
	output     OutputSink
	metrics    *observability.Metrics
	logger     zerolog.Logger

	clock     *commandClock
	collector *collector
	requests  chan request

	index  int64
	lastTS time.Time
}

type request struct {
	fn    func() Result
	reply chan Result
}

func NewRunner(cfg Config) (*Runner, error) {
	clock := &commandClock{}
	coll := &collector{}

	vcfg := cfg.Vault
	vcfg.Clock = clock
	vcfg.Sink = coll
	if vcfg.Metrics == nil {
		vcfg.Metrics = cfg.Metrics
	}
	if vcfg.Logger == nil {
		vcfg.Logger = &cfg.Logger
	}

	vault, err := core.NewVault(vcfg)
	if err != nil {
		return nil, err
	}

	if cfg.Strategies == nil {
		cfg.Strategies = strategy.NewRegistry()
	}
	if cfg.Sequences == nil {
		cfg.Sequences = NewSequenceValidator()
	}
	if cfg.Dedup == nil {
		cfg.Dedup = NewIdempotencyChecker(10_000, nil, cfg.Metrics, cfg.Logger)
	}
	if cfg.Output == nil {
		cfg.Output = OutputFunc(func(Output) {})
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}

	return &Runner{
		vault:      vault,
		strategies: cfg.Strategies,
		auth:       vcfg.Authorizer,
		dedup:      cfg.Dedup,
		sequences:  cfg.Sequences,
		output:     cfg.Output,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		clock:      clock,
		collector:  coll,
		requests:   make(chan request, cfg.QueueSize),
	}, nil
}

// Vault exposes the vault for wiring and tests. Callers must not touch it
// while Run is active; use View.
func (r *Runner) Vault() *core.Vault { return r.vault }

// CommandIndex returns the index of the last command applied.
func (r *Runner) CommandIndex() int64 { return r.index }

// Run serves requests until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info().Int64("command_index", r.index).Int64("sequence", r.vault.Sequence()).Msg("runner started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Int64("command_index", r.index).Msg("runner stopped")
			return ctx.Err()
		case req := <-r.requests:
			req.reply <- req.fn()
			if r.metrics != nil {
				r.metrics.SetChannelMetrics("commands", len(r.requests), cap(r.requests))
			}
		}
	}
}

func (r *Runner) do(ctx context.Context, fn func() Result) (Result, error) {
	req := request{fn: fn, reply: make(chan Result, 1)}
	select {
	case r.requests <- req:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Submit applies cmd on the runner goroutine and waits for the result. The
// returned error is transport-level; vault rejections are in Result.Err.
func (r *Runner) Submit(ctx context.Context, cmd *Command) (Result, error) {
	return r.do(ctx, func() Result {
		return r.apply(ctx, cmd, r.nextTimestamp(), false)
	})
}

// View runs fn against the vault on the runner goroutine.
func (r *Runner) View(ctx context.Context, fn func(v *core.Vault) error) error {
	res, err := r.do(ctx, func() Result {
		now := time.Now().UTC()
		if now.Before(r.lastTS) {
			now = r.lastTS
		}
		r.clock.set(now)
		return Result{Err: fn(r.vault)}
	})
	if err != nil {
		return err
	}
	return res.Err
}

// Checkpoint captures the runner and vault state on the runner goroutine.
func (r *Runner) Checkpoint(ctx context.Context) (*State, error) {
	var state *State
	res, err := r.do(ctx, func() Result {
		s, err := r.checkpoint()
		state = s
		return Result{Err: err}
	})
	if err != nil {
		return nil, err
	}
	return state, res.Err
}

// CheckpointNow is Checkpoint for callers that own the runner goroutine
// (startup, final shutdown after Run returned, tests).
func (r *Runner) CheckpointNow() (*State, error) { return r.checkpoint() }

func (r *Runner) checkpoint() (*State, error) {
	snap, err := r.vault.CreateSnapshot()
	if err != nil {
		return nil, err
	}
	state := &State{
		Vault:           snap,
		CommandIndex:    r.index,
		LastTimestamp:   r.lastTS,
		SequenceState:   r.sequences.State(),
		IdempotencyKeys: r.dedup.RecentKeys(),
	}
	if book, ok := r.vault.Asset().(bookSnapshotter); ok {
		assetSnap := book.Snapshot()
		state.Asset = &assetSnap
	}
	return state, nil
}

// Restore loads a checkpoint. Call before Run.
func (r *Runner) Restore(state *State, resolve core.AdapterResolver) error {
	if state.Vault == nil {
		return errorsmod.Wrap(core.ErrInvalidConfig, "checkpoint has no vault snapshot")
	}
	if resolve == nil {
		resolve = r.resolveAdapter
	}
	if err := r.vault.RestoreFromSnapshot(state.Vault, resolve); err != nil {
		return fmt.Errorf("restore vault: %w", err)
	}
	if state.Asset != nil {
		book, ok := r.vault.Asset().(bookSnapshotter)
		if !ok {
			return fmt.Errorf("checkpoint carries asset balances but asset %s cannot restore them", r.vault.Asset().Denom())
		}
		book.Restore(*state.Asset)
	}
	for source, seq := range state.SequenceState {
		r.sequences.SetExpectedSequence(source, seq)
	}
	r.dedup.Warm(state.IdempotencyKeys)
	r.index = state.CommandIndex
	r.lastTS = state.LastTimestamp

	r.logger.Info().
		Int64("command_index", r.index).
		Int64("sequence", r.vault.Sequence()).
		Msg("restored from checkpoint")
	return nil
}

// Replay re-applies a command from the input log at its recorded time. Call
// before Run. Dedup and ordering checks are skipped; the command was
// accepted when it was first applied.
func (r *Runner) Replay(ctx context.Context, applied Applied) Result {
	if applied.Index <= r.index {
		return Result{Index: applied.Index, Sequence: r.vault.Sequence(), Duplicate: true}
	}
	r.index = applied.Index - 1
	r.lastTS = applied.Timestamp
	return r.apply(ctx, &applied.Command, applied.Timestamp, true)
}

func (r *Runner) resolveAdapter(id uuid.UUID) (strategy.Adapter, error) {
	adapter, ok := r.strategies.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, id)
	}
	return adapter, nil
}

// nextTimestamp is the wall clock, second resolution, never behind the
// previous command.
func (r *Runner) nextTimestamp() time.Time {
	ts := time.Now().UTC().Truncate(time.Second)
	if ts.Before(r.lastTS) {
		ts = r.lastTS
	}
	r.lastTS = ts
	return ts
}

func (r *Runner) apply(ctx context.Context, cmd *Command, ts time.Time, replay bool) Result {
	if cmd.Key == "" {
		r.reject(cmd.Type, "missing_key")
		return Result{Err: ErrMissingKey}
	}
	if cmd.Payload == nil {
		r.reject(cmd.Type, "missing_payload")
		return Result{Err: fmt.Errorf("%w: %s: payload is required", ErrInvalidPayload, cmd.Type)}
	}
	if err := cmd.Payload.Validate(); err != nil {
		r.reject(cmd.Type, "invalid_payload")
		return Result{Err: fmt.Errorf("%w: %s: %w", ErrInvalidPayload, cmd.Type, err)}
	}

	if !replay {
		isDup := r.dedup.IsDuplicate(cmd.Type, cmd.Key)
		if cmd.Source != "" {
			if err := r.sequences.ValidateSequence(cmd.Source, cmd.SourceSequence, isDup); err != nil {
				r.reject(cmd.Type, "sequence")
				return Result{Err: fmt.Errorf("%w: %w", ErrSequence, err)}
			}
		}
		if isDup {
			r.reject(cmd.Type, "duplicate")
			return Result{Index: r.index, Sequence: r.vault.Sequence(), Duplicate: true}
		}
	}

	r.index++
	r.clock.set(ts)
	r.collector.begin(cmd.CompositeKey())

	value, err := r.dispatch(ctx, cmd)

	events := r.collector.drain()
	if cmd.Source != "" {
		r.sequences.Advance(cmd.Source, cmd.SourceSequence)
	}
	if err == nil {
		r.dedup.MarkProcessed(cmd.Type, cmd.Key)
	}

	applied := Applied{Index: r.index, Command: *cmd, Timestamp: ts}
	if err != nil {
		applied.Error = err.Error()
		r.logger.Debug().Err(err).Str("command", string(cmd.Type)).Str("key", cmd.Key).Msg("command rejected by vault")
	}
	r.output.Emit(Output{Applied: applied, Events: events, Replayed: replay})

	return Result{Index: r.index, Sequence: r.vault.Sequence(), Value: value, Err: err}
}

func (r *Runner) reject(t Type, reason string) {
	if r.metrics != nil {
		r.metrics.CommandsRejected.WithLabelValues(string(t), reason).Inc()
	}
}

func (r *Runner) dispatch(ctx context.Context, cmd *Command) (any, error) {
	v := r.vault
	caller := cmd.Caller

	switch p := cmd.Payload.(type) {
	case *DepositPayload:
		return v.Deposit(ctx, caller, p.Assets, p.Receiver)
	case *MintPayload:
		return v.Mint(ctx, caller, p.Shares, p.Receiver)
	case *WithdrawPayload:
		return v.Withdraw(ctx, caller, p.Assets, p.Receiver, p.Owner)
	case *RedeemPayload:
		return v.Redeem(ctx, caller, p.Shares, p.Receiver, p.Owner)
	case *TransferPayload:
		return nil, v.Transfer(ctx, caller, p.To, p.Shares)
	case *TransferFromPayload:
		return nil, v.TransferFrom(ctx, caller, p.Owner, p.To, p.Shares)
	case *ApprovePayload:
		return nil, v.Approve(ctx, caller, p.Spender, p.Shares)

	case *StrategyPayload:
		switch cmd.Type {
		case TypeAddStrategy:
			adapter, err := r.resolveAdapter(p.Strategy)
			if err != nil {
				return nil, errorsmod.Wrap(core.ErrUnknownAdapter, err.Error())
			}
			return nil, v.AddStrategy(ctx, caller, adapter)
		case TypeRemoveStrategy:
			return nil, v.RemoveStrategy(ctx, caller, p.Strategy)
		case TypeToggleStrategyStatus:
			status, err := v.ToggleStrategyStatus(ctx, caller, p.Strategy)
			return status.String(), err
		}
	case *DeallocationOrderPayload:
		return nil, v.SetDeallocationOrder(ctx, caller, p.Order)
	case *AllocateFundsPayload:
		return nil, v.AllocateFunds(ctx, caller, p.Instructions)

	case *FeePayload:
		if cmd.Type == TypeSetManagementFee {
			return nil, v.SetManagementFee(ctx, caller, p.Rate, p.Recipient)
		}
		return nil, v.SetPerformanceFee(ctx, caller, p.Rate, p.Recipient)
	case *LimitsPayload:
		if cmd.Type == TypeSetDepositLimits {
			return nil, v.SetDepositLimits(ctx, caller, p.Min, p.Max)
		}
		return nil, v.SetWithdrawLimits(ctx, caller, p.Min, p.Max)

	case *EmptyPayload:
		switch cmd.Type {
		case TypeAccrueYield:
			return v.AccrueYield(ctx)
		case TypeToggleQueue:
			return v.ToggleQueue(ctx, caller)
		case TypeCloseEpoch:
			return v.CloseEpoch(ctx, caller)
		case TypeProcessEpoch:
			return v.ProcessEpoch(ctx, caller)
		}
	case *EpochPayload:
		return v.CancelWithdrawalRequest(ctx, caller, p.EpochID)
	case *UserPayload:
		return nil, v.MoveRequestToNextEpoch(ctx, caller, p.User)
	case *ClaimPayload:
		return v.ClaimWithdrawal(ctx, caller, p.EpochIDs)
	case *ClaimForPayload:
		return v.ClaimWithdrawalFor(ctx, caller, p.Users, p.EpochIDs)

	case *CreditAssetPayload:
		if err := access.Require(r.auth, access.RoleAdmin, caller); err != nil {
			return nil, err
		}
		minter, ok := v.Asset().(Minter)
		if !ok {
			return nil, fmt.Errorf("%w: asset %s cannot be credited", ErrNotSupported, v.Asset().Denom())
		}
		if err := minter.Mint(p.Account, p.Amount); err != nil {
			return nil, err
		}
		return v.Asset().BalanceOf(p.Account), nil
	case *ApproveAssetPayload:
		return nil, v.Asset().Approve(caller, p.Spender, p.Amount)
	case *StrategyValuePayload:
		if err := access.Require(r.auth, access.RoleAdmin, caller); err != nil {
			return nil, err
		}
		adapter, err := r.resolveAdapter(p.Strategy)
		if err != nil {
			return nil, err
		}
		setter, ok := adapter.(valueSetter)
		if !ok {
			return nil, fmt.Errorf("%w: strategy %s value is not settable", ErrNotSupported, p.Strategy)
		}
		return nil, setter.SetValue(p.Value)
	}

	return nil, fmt.Errorf("%w: %s with %T", ErrNotSupported, cmd.Type, cmd.Payload)
}

// commandClock is the vault's clock: the time stamped on the command being
// applied, so replays see the same time as the original run.
type commandClock struct {
	now time.Time
}

func (c *commandClock) set(t time.Time) { c.now = t.UTC() }

func (c *commandClock) Now() time.Time { return c.now }

// collector buffers the envelopes of one command, stamped with its key.
type collector struct {
	key    string
	events []event.Envelope
}

func (c *collector) begin(key string) {
	c.key = key
	c.events = nil
}

func (c *collector) Emit(env event.Envelope) {
	env.CommandKey = c.key
	c.events = append(c.events, env)
}

func (c *collector) drain() []event.Envelope {
	events := c.events
	c.events = nil
	c.key = ""
	return events
}

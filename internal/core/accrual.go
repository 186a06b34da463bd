package core

import (
	"context"
	"time"

	"StrategyVault/internal/event"
	"StrategyVault/internal/ledger"
	vmath "StrategyVault/internal/math"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// StrategyReport is one strategy whose reported value moved.
type StrategyReport struct {
	Strategy uuid.UUID   `json:"strategy"`
	Previous sdkmath.Int `json:"previous"`
	Current  sdkmath.Int `json:"current"`
}

// AccrualResult is the outcome of one yield/fee accrual pass. The same
// computation backs both the mutating accrual and every preview, so the two
// agree exactly.
type AccrualResult struct {
	// TotalAssets is cachedTotalAssets after yield and loss.
	TotalAssets sdkmath.Int `json:"total_assets"`

	// TotalSupply is share supply after fee shares.
	TotalSupply sdkmath.Int `json:"total_supply"`

	PositiveYield sdkmath.Int `json:"positive_yield"`
	NegativeYield sdkmath.Int `json:"negative_yield"`

	ManagementFeeAssets  sdkmath.Int `json:"management_fee_assets"`
	ManagementFeeShares  sdkmath.Int `json:"management_fee_shares"`
	PerformanceFeeAssets sdkmath.Int `json:"performance_fee_assets"`
	PerformanceFeeShares sdkmath.Int `json:"performance_fee_shares"`

	Reports []StrategyReport `json:"reports,omitempty"`
}

// computeAccrual reconciles every Active strategy against the ledger and
// derives fee shares. It queries adapters but mutates nothing.
func (v *Vault) computeAccrual(ctx context.Context, now time.Time) (AccrualResult, error) {
	res := AccrualResult{
		PositiveYield:        sdkmath.ZeroInt(),
		NegativeYield:        sdkmath.ZeroInt(),
		ManagementFeeAssets:  sdkmath.ZeroInt(),
		ManagementFeeShares:  sdkmath.ZeroInt(),
		PerformanceFeeAssets: sdkmath.ZeroInt(),
		PerformanceFeeShares: sdkmath.ZeroInt(),
	}

	// Step 1: per-strategy yield/loss against recorded allocation
	for _, id := range v.allocations.ActiveStrategies() {
		adapter, ok := v.adapters[id]
		if !ok {
			return AccrualResult{}, errorsmod.Wrapf(ErrUnknownAdapter, "strategy %s", id)
		}
		reported, err := adapter.TotalAllocatedValue(ctx)
		if err != nil {
			return AccrualResult{}, adapterFailure(id, "total allocated value", err)
		}
		if !vmath.IsValidAmount(reported) {
			return AccrualResult{}, errorsmod.Wrapf(ErrAdapterFailure, "strategy %s reported invalid value", id)
		}

		current := vmath.SaturateUint120(reported)
		previous := v.allocations.Get(id).Allocated

		switch {
		case current.GT(previous):
			res.PositiveYield = res.PositiveYield.Add(current.Sub(previous))
		case current.LT(previous):
			res.NegativeYield = res.NegativeYield.Add(previous.Sub(current))
		default:
			continue
		}
		res.Reports = append(res.Reports, StrategyReport{Strategy: id, Previous: previous, Current: current})
	}

	// Step 2: one aggregate update
	grown, err := vmath.CheckedAdd(v.cachedTotalAssets, res.PositiveYield)
	if err != nil {
		return AccrualResult{}, err
	}
	totalAssets := vmath.SaturatingSub(grown, res.NegativeYield)
	totalSupply := v.shares.TotalSupply()

	// Step 3: management fee
	if v.fees.ManagementFeeRate > 0 && !ledger.IsNull(v.fees.ManagementFeeRecipient) {
		elapsed := int64(now.Sub(v.fees.LastManagementFeeAccrualTime) / time.Second)
		feeAssets := vmath.ManagementFeeAmount(totalAssets, v.fees.ManagementFeeRate, elapsed)
		feeShares, err := vmath.FeeShares(feeAssets, totalAssets, totalSupply, v.offset)
		if err != nil {
			return AccrualResult{}, err
		}
		if feeShares.IsPositive() {
			res.ManagementFeeAssets = feeAssets
			res.ManagementFeeShares = feeShares
			if totalSupply, err = vmath.CheckedAdd(totalSupply, feeShares); err != nil {
				return AccrualResult{}, err
			}
		}
	}

	// Step 4: performance fee, priced on supply after management shares
	if v.fees.PerformanceFeeRate > 0 && !ledger.IsNull(v.fees.PerformanceFeeRecipient) {
		feeAssets, err := vmath.PerformanceFeeAmount(res.PositiveYield, res.NegativeYield, v.fees.PerformanceFeeRate)
		if err != nil {
			return AccrualResult{}, err
		}
		feeShares, err := vmath.FeeShares(feeAssets, totalAssets, totalSupply, v.offset)
		if err != nil {
			return AccrualResult{}, err
		}
		if feeShares.IsPositive() {
			res.PerformanceFeeAssets = feeAssets
			res.PerformanceFeeShares = feeShares
			if totalSupply, err = vmath.CheckedAdd(totalSupply, feeShares); err != nil {
				return AccrualResult{}, err
			}
		}
	}

	res.TotalAssets = totalAssets
	res.TotalSupply = totalSupply
	return res, nil
}

// accrue computes and applies one accrual pass inside a call.
func (v *Vault) accrue(ctx context.Context) (AccrualResult, error) {
	res, err := v.computeAccrual(ctx, v.now)
	if err != nil {
		return AccrualResult{}, err
	}

	for _, r := range res.Reports {
		v.saveStrategy(r.Strategy)
		v.allocations.SetAllocated(r.Strategy, r.Current)
		v.emit(&event.StrategyYieldReported{
			Strategy: r.Strategy,
			Previous: r.Previous,
			Current:  r.Current,
		})
	}

	v.setCachedTotalAssets(res.TotalAssets)

	if res.ManagementFeeShares.IsPositive() {
		if err := v.mintShares(v.fees.ManagementFeeRecipient, res.ManagementFeeShares); err != nil {
			return AccrualResult{}, err
		}
		v.emit(&event.FeesMinted{
			Kind:      event.FeeKindManagement,
			Recipient: v.fees.ManagementFeeRecipient,
			Assets:    res.ManagementFeeAssets,
			Shares:    res.ManagementFeeShares,
		})
	}
	if res.PerformanceFeeShares.IsPositive() {
		if err := v.mintShares(v.fees.PerformanceFeeRecipient, res.PerformanceFeeShares); err != nil {
			return AccrualResult{}, err
		}
		v.emit(&event.FeesMinted{
			Kind:      event.FeeKindPerformance,
			Recipient: v.fees.PerformanceFeeRecipient,
			Assets:    res.PerformanceFeeAssets,
			Shares:    res.PerformanceFeeShares,
		})
	}

	// Always advance, even when no fee was charged
	if v.now.After(v.fees.LastManagementFeeAccrualTime) {
		v.saveFees()
		v.fees.LastManagementFeeAccrualTime = v.now
	}

	v.emit(&event.YieldAccrued{
		PositiveYield: res.PositiveYield,
		NegativeYield: res.NegativeYield,
		TotalAssets:   res.TotalAssets,
	})
	return res, nil
}

// AccrueYield reconciles strategy values and mints fee shares.
func (v *Vault) AccrueYield(ctx context.Context) (AccrualResult, error) {
	var res AccrualResult
	err := v.call("accrue_yield", func() error {
		var err error
		res, err = v.accrue(ctx)
		return err
	})
	return res, err
}

// PreviewAccrueYieldAndFees returns what AccrueYield would produce right
// now, without mutating state.
func (v *Vault) PreviewAccrueYieldAndFees(ctx context.Context) (AccrualResult, error) {
	var res AccrualResult
	err := v.read(func() error {
		var err error
		res, err = v.computeAccrual(ctx, v.now)
		return err
	})
	return res, err
}

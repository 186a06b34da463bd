package math

import (
	"math/big"
	"sync"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
)

// MathCodespace namespaces fixed-point error codes.
const MathCodespace = "vault_math"

// ErrAmountOverflow is returned when a result does not fit in 256 bits.
var ErrAmountOverflow = errorsmod.Register(MathCodespace, 2, "amount overflows 256 bits")

type RoundingMode int

const (
	RoundDown RoundingMode = iota // Floor (favours the vault)
	RoundUp                       // Ceil
)

const (
	// BasisPoints is the denominator for all rates expressed in bps.
	BasisPoints = 10_000

	// SecondsPerYear is the management fee accrual year (365 days).
	SecondsPerYear = 365 * 24 * 60 * 60

	// MaxDecimals is the largest share precision whose unit 10^d fits in
	// 256 bits.
	MaxDecimals = 76

	// AllocatedBits is the width of the per-strategy allocated field.
	AllocatedBits = 120
)

var (
	// MaxUint120 is the ceiling for per-strategy allocated amounts.
	MaxUint120 = sdkmath.NewIntFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), AllocatedBits), big.NewInt(1)))

	// MaxUint256 is the largest amount representable by sdkmath.Int.
	MaxUint256 = sdkmath.NewIntFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)))
)

// wideIntPool holds big.Ints for 512-bit intermediates. x*y of two 256-bit
// amounts does not fit sdkmath.Int, so products are formed here first.
var wideIntPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getWide() *big.Int {
	return wideIntPool.Get().(*big.Int)
}

func putWide(v *big.Int) {
	v.SetInt64(0)
	wideIntPool.Put(v)
}

// MulDiv computes x * y / denominator with the given rounding. The product is
// held at full width so only the final quotient must fit in 256 bits; a
// larger quotient returns ErrAmountOverflow. Panics on a zero denominator,
// like integer division.
func MulDiv(x, y, denominator sdkmath.Int, rounding RoundingMode) (sdkmath.Int, error) {
	return mulDiv(x.BigInt(), y.BigInt(), denominator.BigInt(), rounding)
}

func mulDiv(x, y, denominator *big.Int, rounding RoundingMode) (sdkmath.Int, error) {
	if denominator.Sign() == 0 {
		panic("math: MulDiv division by zero")
	}

	product := getWide()
	quotient := getWide()
	remainder := getWide()
	defer func() {
		putWide(product)
		putWide(quotient)
		putWide(remainder)
	}()

	product.Mul(x, y)
	quotient.QuoRem(product, denominator, remainder)

	if rounding == RoundUp && remainder.Sign() != 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	if quotient.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.Int{}, errorsmod.Wrapf(ErrAmountOverflow, "%s * %s / %s", x, y, denominator)
	}

	// NewIntFromBigInt keeps the pointer; copy out of the pooled value.
	return sdkmath.NewIntFromBigInt(new(big.Int).Set(quotient)), nil
}

// CheckedAdd returns a + b, or ErrAmountOverflow when the sum needs more
// than 256 bits.
func CheckedAdd(a, b sdkmath.Int) (sdkmath.Int, error) {
	sum, err := a.SafeAdd(b)
	if err != nil {
		return sdkmath.Int{}, errorsmod.Wrapf(ErrAmountOverflow, "%s + %s", a, b)
	}
	return sum, nil
}

// Pow10 returns 10^exp as an Int.
func Pow10(exp uint8) sdkmath.Int {
	return sdkmath.NewIntFromBigInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil))
}

// SaturateUint120 clamps v into [0, MaxUint120].
func SaturateUint120(v sdkmath.Int) sdkmath.Int {
	if v.IsNegative() {
		return sdkmath.ZeroInt()
	}
	if v.GT(MaxUint120) {
		return MaxUint120
	}
	return v
}

// SaturatingSub returns a - b, floored at zero.
func SaturatingSub(a, b sdkmath.Int) sdkmath.Int {
	if b.GTE(a) {
		return sdkmath.ZeroInt()
	}
	return a.Sub(b)
}

// BpsOf returns floor(amount * bps / 10000). It only overflows for bps above
// BasisPoints.
func BpsOf(amount sdkmath.Int, bps uint16) (sdkmath.Int, error) {
	return MulDiv(amount, sdkmath.NewInt(int64(bps)), sdkmath.NewInt(BasisPoints), RoundDown)
}

// IsValidAmount reports whether v is a non-nil, non-negative Int.
func IsValidAmount(v sdkmath.Int) bool {
	return !v.IsNil() && !v.IsNegative()
}

package clmm

import (
	"fmt"
	"math/big"

	cosmath "cosmossdk.io/math"
)

// PriceToSqrtPrice converts a human price (token B per token A) into a Q64.64 sqrt price.
// The square root is taken on integers, so the result is the exact floor of sqrt(price) * 2^64.
func PriceToSqrtPrice(price cosmath.LegacyDec, decimalsA, decimalsB uint8) (cosmath.Int, error) {
	if price.IsNil() || !price.IsPositive() {
		return cosmath.Int{}, fmt.Errorf("price %s: %w", price, ErrOutOfRangeFixedPoint)
	}

	// price.BigInt() carries 18 fractional digits
	radicand := new(big.Int).Mul(price.BigInt(), q128Big)
	exp := int(decimalsB) - int(decimalsA) - int(cosmath.LegacyPrecision)
	if exp >= 0 {
		radicand.Mul(radicand, pow10(exp))
	} else {
		radicand.Quo(radicand, pow10(-exp))
	}

	sqrtPrice := new(big.Int).Sqrt(radicand)
	if sqrtPrice.Cmp(MinSqrtPrice.BigInt()) < 0 || sqrtPrice.Cmp(MaxSqrtPrice.BigInt()) > 0 {
		return cosmath.Int{}, fmt.Errorf("price %s resolves to sqrt price %s: %w", price, sqrtPrice, ErrOutOfRangeFixedPoint)
	}
	return cosmath.NewIntFromBigInt(sqrtPrice), nil
}

// SqrtPriceToPrice converts a Q64.64 sqrt price back into a human price, truncated to 18 decimals.
func SqrtPriceToPrice(sqrtPrice cosmath.Int, decimalsA, decimalsB uint8) (cosmath.LegacyDec, error) {
	if err := checkSqrtPrice(sqrtPrice); err != nil {
		return cosmath.LegacyDec{}, err
	}

	sp := sqrtPrice.BigInt()
	num := new(big.Int).Mul(sp, sp)
	exp := int(decimalsA) - int(decimalsB) + int(cosmath.LegacyPrecision)
	den := new(big.Int).Set(q128Big)
	if exp >= 0 {
		num.Mul(num, pow10(exp))
	} else {
		den.Mul(den, pow10(-exp))
	}
	num.Quo(num, den)
	return cosmath.LegacyNewDecFromBigIntWithPrec(num, cosmath.LegacyPrecision), nil
}

// MulDivFloor returns floor(a * b / denominator), failing when the product leaves 256 bits.
func MulDivFloor(a, b, denominator cosmath.Int) (cosmath.Int, error) {
	return mulDiv(a.BigInt(), b.BigInt(), denominator.BigInt(), false)
}

// MulDivCeil returns ceil(a * b / denominator), failing when the product leaves 256 bits.
func MulDivCeil(a, b, denominator cosmath.Int) (cosmath.Int, error) {
	return mulDiv(a.BigInt(), b.BigInt(), denominator.BigInt(), true)
}

func mulDiv(a, b, denominator *big.Int, roundUp bool) (cosmath.Int, error) {
	if denominator.Sign() == 0 {
		return cosmath.Int{}, fmt.Errorf("mul div by zero: %w", ErrMathOverflow)
	}
	product := new(big.Int).Mul(a, b)
	if product.BitLen() > maxIntBits {
		return cosmath.Int{}, fmt.Errorf("mul div product: %w", ErrMathOverflow)
	}
	return toInt(divRound(product, denominator, roundUp))
}

// divRound divides non-negative operands, rounding the quotient up when asked
func divRound(num, den *big.Int, roundUp bool) *big.Int {
	quo, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if roundUp && rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}

func toInt(v *big.Int) (cosmath.Int, error) {
	if v.BitLen() > maxIntBits {
		return cosmath.Int{}, ErrMathOverflow
	}
	return cosmath.NewIntFromBigInt(v), nil
}

func toU64Amount(v *big.Int) (cosmath.Int, error) {
	if v.Cmp(maxU64Big) > 0 {
		return cosmath.Int{}, fmt.Errorf("token amount %s exceeds u64: %w", v, ErrMathOverflow)
	}
	return cosmath.NewIntFromBigInt(v), nil
}

func checkSqrtPrice(sqrtPrice cosmath.Int) error {
	if sqrtPrice.IsNil() || sqrtPrice.LT(MinSqrtPrice) || sqrtPrice.GT(MaxSqrtPrice) {
		return fmt.Errorf("sqrt price %s: %w", sqrtPrice, ErrOutOfRangeFixedPoint)
	}
	return nil
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

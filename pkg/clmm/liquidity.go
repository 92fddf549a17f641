package clmm

import (
	"fmt"
	"math/big"

	cosmath "cosmossdk.io/math"
)

// Rounding selects the direction integer divisions round in.
type Rounding int

const (
	RoundDown Rounding = iota
	RoundUp
)

// Side names one token of a pool.
type Side int

const (
	SideA Side = iota
	SideB
)

func (s Side) String() string {
	if s == SideA {
		return "A"
	}
	return "B"
}

// DepositQuote is the liquidity and the token amounts required to mint it.
type DepositQuote struct {
	Liquidity cosmath.Int
	TokenA    cosmath.Int
	TokenB    cosmath.Int
}

// GetAmountDeltaA returns L * (1/sqrtLower - 1/sqrtUpper) for the two sqrt prices in either order.
func GetAmountDeltaA(liquidity, sqrtPrice0, sqrtPrice1 cosmath.Int, rounding Rounding) (cosmath.Int, error) {
	v, err := amountDeltaA(liquidity.BigInt(), sqrtPrice0.BigInt(), sqrtPrice1.BigInt(), rounding == RoundUp)
	if err != nil {
		return cosmath.Int{}, err
	}
	return toU64Amount(v)
}

// GetAmountDeltaB returns L * (sqrtUpper - sqrtLower) for the two sqrt prices in either order.
func GetAmountDeltaB(liquidity, sqrtPrice0, sqrtPrice1 cosmath.Int, rounding Rounding) (cosmath.Int, error) {
	v, err := amountDeltaB(liquidity.BigInt(), sqrtPrice0.BigInt(), sqrtPrice1.BigInt(), rounding == RoundUp)
	if err != nil {
		return cosmath.Int{}, err
	}
	return toU64Amount(v)
}

func sortPrices(p0, p1 *big.Int) (*big.Int, *big.Int) {
	if p0.Cmp(p1) > 0 {
		return p1, p0
	}
	return p0, p1
}

func amountDeltaA(liquidity, p0, p1 *big.Int, roundUp bool) (*big.Int, error) {
	lower, upper := sortPrices(p0, p1)
	if lower.Sign() <= 0 {
		return nil, fmt.Errorf("sqrt price %s: %w", lower, ErrOutOfRangeFixedPoint)
	}
	num := new(big.Int).Mul(liquidity, new(big.Int).Sub(upper, lower))
	num.Lsh(num, u64Resolution)
	if num.BitLen() > maxIntBits {
		return nil, fmt.Errorf("amount delta a: %w", ErrMathOverflow)
	}
	den := new(big.Int).Mul(upper, lower)
	return divRound(num, den, roundUp), nil
}

func amountDeltaB(liquidity, p0, p1 *big.Int, roundUp bool) (*big.Int, error) {
	lower, upper := sortPrices(p0, p1)
	product := new(big.Int).Mul(liquidity, new(big.Int).Sub(upper, lower))
	if product.BitLen() > maxIntBits {
		return nil, fmt.Errorf("amount delta b: %w", ErrMathOverflow)
	}
	return divRound(product, q64Big, roundUp), nil
}

// LiquidityFromTokenA returns floor(amount * sqrtLower * sqrtUpper / (sqrtUpper - sqrtLower)).
func LiquidityFromTokenA(amount, sqrtLower, sqrtUpper cosmath.Int) (cosmath.Int, error) {
	lower, upper := sortPrices(sqrtLower.BigInt(), sqrtUpper.BigInt())
	diff := new(big.Int).Sub(upper, lower)
	if diff.Sign() == 0 {
		return cosmath.Int{}, fmt.Errorf("empty price range: %w", ErrInvalidRange)
	}
	num := new(big.Int).Mul(amount.BigInt(), upper)
	num.Mul(num, lower)
	if num.BitLen() > maxIntBits {
		return cosmath.Int{}, fmt.Errorf("liquidity from token a: %w", ErrMathOverflow)
	}
	return toLiquidity(num.Quo(num, diff.Lsh(diff, u64Resolution)))
}

// LiquidityFromTokenB returns floor(amount / (sqrtUpper - sqrtLower)).
func LiquidityFromTokenB(amount, sqrtLower, sqrtUpper cosmath.Int) (cosmath.Int, error) {
	lower, upper := sortPrices(sqrtLower.BigInt(), sqrtUpper.BigInt())
	diff := new(big.Int).Sub(upper, lower)
	if diff.Sign() == 0 {
		return cosmath.Int{}, fmt.Errorf("empty price range: %w", ErrInvalidRange)
	}
	num := new(big.Int).Lsh(amount.BigInt(), u64Resolution)
	return toLiquidity(num.Quo(num, diff))
}

func toLiquidity(v *big.Int) (cosmath.Int, error) {
	if v.Cmp(maxU128Big) > 0 {
		return cosmath.Int{}, fmt.Errorf("liquidity %s exceeds u128: %w", v, ErrMathOverflow)
	}
	return cosmath.NewIntFromBigInt(v), nil
}

func checkRangePrices(lower, upper cosmath.Int) error {
	if err := checkSqrtPrice(lower); err != nil {
		return err
	}
	if err := checkSqrtPrice(upper); err != nil {
		return err
	}
	if lower.GTE(upper) {
		return fmt.Errorf("lower sqrt price %s >= upper %s: %w", lower, upper, ErrInvalidRange)
	}
	return nil
}

// EstimateDeposit derives the liquidity minted by depositing amount of one token into
// [lower, upper) at current, and the complementary token amount. Deposit amounts round up.
func EstimateDeposit(side Side, amount, current, lower, upper cosmath.Int) (DepositQuote, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return DepositQuote{}, ErrZeroAmount
	}
	if err := checkRangePrices(lower, upper); err != nil {
		return DepositQuote{}, err
	}
	if err := checkSqrtPrice(current); err != nil {
		return DepositQuote{}, err
	}

	var (
		liquidity cosmath.Int
		err       error
	)
	switch {
	case current.LTE(lower):
		if side == SideB {
			return DepositQuote{}, fmt.Errorf("range is entirely token A at the current price: %w", ErrCannotDeriveFromZeroSide)
		}
		liquidity, err = LiquidityFromTokenA(amount, lower, upper)
	case current.LT(upper):
		if side == SideA {
			liquidity, err = LiquidityFromTokenA(amount, current, upper)
		} else {
			liquidity, err = LiquidityFromTokenB(amount, lower, current)
		}
	default:
		if side == SideA {
			return DepositQuote{}, fmt.Errorf("range is entirely token B at the current price: %w", ErrCannotDeriveFromZeroSide)
		}
		liquidity, err = LiquidityFromTokenB(amount, lower, upper)
	}
	if err != nil {
		return DepositQuote{}, err
	}

	tokenA, tokenB, err := AmountsForLiquidity(liquidity, current, lower, upper, RoundUp)
	if err != nil {
		return DepositQuote{}, err
	}
	return DepositQuote{Liquidity: liquidity, TokenA: tokenA, TokenB: tokenB}, nil
}

// EstimateDepositForRange is EstimateDeposit for a tick range of the given pool.
func EstimateDepositForRange(state PoolState, side Side, amount cosmath.Int, rng PositionRange) (DepositQuote, error) {
	lower, upper, err := rng.sqrtPrices(state.TickSpacing)
	if err != nil {
		return DepositQuote{}, err
	}
	return EstimateDeposit(side, amount, state.SqrtPriceInt(), lower, upper)
}

// AmountsForLiquidity returns the token amounts backing liquidity in [lower, upper) at current.
func AmountsForLiquidity(liquidity, current, lower, upper cosmath.Int, rounding Rounding) (cosmath.Int, cosmath.Int, error) {
	if err := checkRangePrices(lower, upper); err != nil {
		return cosmath.Int{}, cosmath.Int{}, err
	}
	if err := checkSqrtPrice(current); err != nil {
		return cosmath.Int{}, cosmath.Int{}, err
	}

	zero := cosmath.ZeroInt()
	switch {
	case current.LTE(lower):
		a, err := GetAmountDeltaA(liquidity, lower, upper, rounding)
		return a, zero, err
	case current.LT(upper):
		a, err := GetAmountDeltaA(liquidity, current, upper, rounding)
		if err != nil {
			return cosmath.Int{}, cosmath.Int{}, err
		}
		b, err := GetAmountDeltaB(liquidity, lower, current, rounding)
		return a, b, err
	default:
		b, err := GetAmountDeltaB(liquidity, lower, upper, rounding)
		return zero, b, err
	}
}

// PositionBalance returns what liquidity in [lower, upper) is worth at current. Balances round down.
func PositionBalance(liquidity, current, lower, upper cosmath.Int) (cosmath.Int, cosmath.Int, error) {
	return AmountsForLiquidity(liquidity, current, lower, upper, RoundDown)
}

// EstimateWithdrawal returns the token amounts a position would withdraw at the pool's current price.
func EstimateWithdrawal(state PoolState, rng PositionRange) (cosmath.Int, cosmath.Int, error) {
	lower, upper, err := rng.sqrtPrices(state.TickSpacing)
	if err != nil {
		return cosmath.Int{}, cosmath.Int{}, err
	}
	return PositionBalance(rng.Liquidity, state.SqrtPriceInt(), lower, upper)
}

// DepositValueRatio returns the share of a deposit's value held in token A and token B,
// valued in token B at the clamped current price. The two percentages sum to 100.
func DepositValueRatio(current, lower, upper cosmath.Int, decimalsA, decimalsB uint8) (cosmath.LegacyDec, cosmath.LegacyDec, error) {
	hundred := cosmath.LegacyNewDec(100)
	zero := cosmath.LegacyZeroDec()

	if err := checkRangePrices(lower, upper); err != nil {
		return zero, zero, err
	}
	if decimalsA > cosmath.LegacyPrecision || decimalsB > cosmath.LegacyPrecision {
		return zero, zero, fmt.Errorf("decimals %d/%d: %w", decimalsA, decimalsB, ErrOutOfRangeFixedPoint)
	}
	switch {
	case current.LTE(lower):
		return hundred, zero, nil
	case current.GTE(upper):
		return zero, hundred, nil
	}

	// Unit-liquidity amounts and the price stay exact rationals. Rounding them to token
	// units or 18 decimals zeroes a side near the tick bounds.
	sc, sl, su := current.BigInt(), lower.BigInt(), upper.BigInt()
	amountA := new(big.Rat).SetFrac(new(big.Int).Lsh(new(big.Int).Sub(su, sc), u64Resolution), new(big.Int).Mul(su, sc))
	amountB := new(big.Rat).SetFrac(new(big.Int).Sub(sc, sl), new(big.Int).Lsh(big.NewInt(1), u64Resolution))
	price := new(big.Rat).SetFrac(new(big.Int).Mul(sc, sc), new(big.Int).Lsh(big.NewInt(1), 2*u64Resolution))
	price.Mul(price, ratPow10(int(decimalsA)-int(decimalsB)))

	valueA := amountA.Mul(amountA, price)
	valueA.Mul(valueA, ratPow10(-int(decimalsA)))
	valueB := amountB.Mul(amountB, ratPow10(-int(decimalsB)))
	total := new(big.Rat).Add(valueA, valueB)

	share := valueA.Quo(valueA, total)
	scaled := new(big.Int).Mul(share.Num(), pow10(2+cosmath.LegacyPrecision))
	pctA := cosmath.LegacyNewDecFromBigIntWithPrec(scaled.Quo(scaled, share.Denom()), cosmath.LegacyPrecision)
	return pctA, hundred.Sub(pctA), nil
}

func ratPow10(exp int) *big.Rat {
	if exp >= 0 {
		return new(big.Rat).SetInt(pow10(exp))
	}
	return new(big.Rat).SetFrac(big.NewInt(1), pow10(-exp))
}

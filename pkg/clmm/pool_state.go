package clmm

import (
	"bytes"
	"fmt"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

// PoolState is a snapshot of a CLMM pool. It is a value: a newer read replaces it,
// nothing mutates it.
type PoolState struct {
	TickCurrentIndex int32
	SqrtPrice        uint128.Uint128
	Liquidity        uint128.Uint128
	TickSpacing      uint16
	FeeRatePpm       uint32
	DecimalsA        uint8
	DecimalsB        uint8

	// Optional. When both are set they must be in canonical order.
	MintA solana.PublicKey
	MintB solana.PublicKey
}

// NewPoolState validates a snapshot read from chain.
func NewPoolState(s PoolState) (PoolState, error) {
	if err := ValidateTickSpacing(s.TickSpacing); err != nil {
		return PoolState{}, err
	}
	if err := checkTick(s.TickCurrentIndex); err != nil {
		return PoolState{}, err
	}
	if err := checkSqrtPrice(s.SqrtPriceInt()); err != nil {
		return PoolState{}, err
	}
	if s.FeeRatePpm >= FeeRateDenominator {
		return PoolState{}, fmt.Errorf("fee rate %d ppm: %w", s.FeeRatePpm, ErrOutOfRangeFixedPoint)
	}
	if !s.MintA.IsZero() || !s.MintB.IsZero() {
		a, b := CanonicalMints(s.MintA, s.MintB)
		if !a.Equals(s.MintA) || a.Equals(b) {
			return PoolState{}, fmt.Errorf("mint a %s, mint b %s: %w", s.MintA, s.MintB, ErrMintOrder)
		}
	}
	return s, nil
}

// CanonicalMints orders two mints the way the pool program does: token A has the smaller key.
func CanonicalMints(x, y solana.PublicKey) (solana.PublicKey, solana.PublicKey) {
	if bytes.Compare(x[:], y[:]) <= 0 {
		return x, y
	}
	return y, x
}

// Direction reports whether swapping inputMint into the pool moves from token A to token B.
func (s PoolState) Direction(inputMint solana.PublicKey) (bool, error) {
	switch {
	case inputMint.Equals(s.MintA):
		return true, nil
	case inputMint.Equals(s.MintB):
		return false, nil
	}
	return false, fmt.Errorf("input mint %s not found in pool", inputMint)
}

// SqrtPriceInt returns the sqrt price as a 256-bit integer.
func (s PoolState) SqrtPriceInt() cosmath.Int {
	return cosmath.NewIntFromBigInt(s.SqrtPrice.Big())
}

// LiquidityInt returns the active liquidity as a 256-bit integer.
func (s PoolState) LiquidityInt() cosmath.Int {
	return cosmath.NewIntFromBigInt(s.Liquidity.Big())
}

// Price is the human price of token A in token B.
func (s PoolState) Price() (cosmath.LegacyDec, error) {
	return SqrtPriceToPrice(s.SqrtPriceInt(), s.DecimalsA, s.DecimalsB)
}

// Uint128FromInt narrows a non-negative Int to an on-chain u128.
func Uint128FromInt(v cosmath.Int) (uint128.Uint128, error) {
	if v.IsNegative() || v.BigInt().Cmp(maxU128Big) > 0 {
		return uint128.Zero, fmt.Errorf("value %s does not fit u128: %w", v, ErrMathOverflow)
	}
	return uint128.FromBig(v.BigInt()), nil
}

// PositionRange is a liquidity position between two initializable ticks.
type PositionRange struct {
	LowerTick int32
	UpperTick int32
	Liquidity cosmath.Int
}

// Validate checks lowerTick < upperTick and that both sit on the spacing grid.
func (r PositionRange) Validate(tickSpacing uint16) error {
	if err := ValidateTickSpacing(tickSpacing); err != nil {
		return err
	}
	if err := checkTick(r.LowerTick); err != nil {
		return err
	}
	if err := checkTick(r.UpperTick); err != nil {
		return err
	}
	if r.LowerTick >= r.UpperTick {
		return fmt.Errorf("lower tick %d >= upper tick %d: %w", r.LowerTick, r.UpperTick, ErrInvalidRange)
	}
	if !IsInitializableTick(r.LowerTick, tickSpacing) || !IsInitializableTick(r.UpperTick, tickSpacing) {
		return fmt.Errorf("ticks %d/%d not multiples of spacing %d: %w", r.LowerTick, r.UpperTick, tickSpacing, ErrInvalidRange)
	}
	return nil
}

func (r PositionRange) sqrtPrices(tickSpacing uint16) (cosmath.Int, cosmath.Int, error) {
	if err := r.Validate(tickSpacing); err != nil {
		return cosmath.Int{}, cosmath.Int{}, err
	}
	return cosmath.NewIntFromBigInt(tickToSqrtPriceBig(r.LowerTick)),
		cosmath.NewIntFromBigInt(tickToSqrtPriceBig(r.UpperTick)), nil
}

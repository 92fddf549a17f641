package clmm

import (
	"math/big"

	cosmath "cosmossdk.io/math"
)

// Tick grid bounds shared by the Solana CLMM programs
const (
	MinTick int32 = -443636
	MaxTick int32 = 443636

	// TickArraySize is the number of ticks held by one on-chain tick array account
	TickArraySize = 88
)

// Valid tick spacings (fee tiers)
const (
	TickSpacingStable = 1
	TickSpacing8      = 8
	TickSpacing16     = 16
	TickSpacing32     = 32
	TickSpacingLow    = 64
	TickSpacingMed    = 128
)

var validTickSpacings = map[uint16]struct{}{
	TickSpacingStable: {},
	TickSpacing8:      {},
	TickSpacing16:     {},
	TickSpacing32:     {},
	TickSpacingLow:    {},
	TickSpacingMed:    {},
}

// Fee rate is expressed in hundredths of a basis point (parts per million)
const (
	FeeRateDenominator = 1_000_000
	BpsDenominator     = 10_000
)

const (
	u64Resolution = 64
	q96Resolution = 96
	maxIntBits    = 256
)

// Shared read-only values. Callers must not hand them to anything that mutates its argument
// (uint128.FromBig shifts it); copy first.
var (
	q64Big     = new(big.Int).Lsh(big.NewInt(1), 64)
	q128Big    = new(big.Int).Lsh(big.NewInt(1), 128)
	maxU64Big  = new(big.Int).Sub(q64Big, big.NewInt(1))
	maxU128Big = new(big.Int).Sub(q128Big, big.NewInt(1))

	// MinSqrtPrice and MaxSqrtPrice are TickToSqrtPrice(MinTick) and TickToSqrtPrice(MaxTick)
	MinSqrtPrice = cosmath.NewIntFromUint64(4295048016)
	MaxSqrtPrice = mustInt("79226673515401279992447579055")

	// Q64 is 1.0 in Q64.64
	Q64 = cosmath.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), 64))
)

func mustInt(s string) cosmath.Int {
	v, ok := cosmath.NewIntFromString(s)
	if !ok {
		panic("invalid integer constant " + s)
	}
	return v
}

package clmm

import (
	"fmt"
	"math/big"

	cosmath "cosmossdk.io/math"
)

// negSqrtRatios[k] is floor(2^64 / sqrt(1.0001)^(2^k)), the Q64.64 factor for bit k of a negative tick
var negSqrtRatios = [19]*big.Int{
	mustBig("18445821805675392311"),
	mustBig("18444899583751176498"),
	mustBig("18443055278223354162"),
	mustBig("18439367220385604838"),
	mustBig("18431993317065449817"),
	mustBig("18417254355718160513"),
	mustBig("18387811781193591352"),
	mustBig("18329067761203520168"),
	mustBig("18212142134806087854"),
	mustBig("17980523815641551639"),
	mustBig("17526086738831147013"),
	mustBig("16651378430235024244"),
	mustBig("15030750278693429944"),
	mustBig("12247334978882834399"),
	mustBig("8131365268884726200"),
	mustBig("3584323654723342297"),
	mustBig("696457651847595233"),
	mustBig("26294789957452057"),
	mustBig("37481735321082"),
}

// posSqrtRatios[k] is floor(2^96 * sqrt(1.0001)^(2^k)). Positive ticks multiply in Q32.96
// and drop 32 bits at the end, which keeps the result exact at MaxTick.
var posSqrtRatios = [19]*big.Int{
	mustBig("79232123823359799118286999567"),
	mustBig("79236085330515764027303304731"),
	mustBig("79244008939048815603706035061"),
	mustBig("79259858533276714757314932305"),
	mustBig("79291567232598584799939703904"),
	mustBig("79355022692464371645785046466"),
	mustBig("79482085999252804386437311141"),
	mustBig("79736823300114093921829183326"),
	mustBig("80248749790819932309965073892"),
	mustBig("81282483887344747381513967011"),
	mustBig("83390072131320151908154831281"),
	mustBig("87770609709833776024991924138"),
	mustBig("97234110755111693312479820773"),
	mustBig("119332217159966728226237229890"),
	mustBig("179736315981702064433883588727"),
	mustBig("407748233172238350107850275304"),
	mustBig("2098478828474011932436660412517"),
	mustBig("55581415166113811149459800483533"),
	mustBig("38992368544603139932233054999993551"),
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("invalid integer constant " + s)
	}
	return v
}

// ValidateTickSpacing rejects spacings outside the supported fee tiers.
func ValidateTickSpacing(tickSpacing uint16) error {
	if _, ok := validTickSpacings[tickSpacing]; !ok {
		return fmt.Errorf("tick spacing %d: %w", tickSpacing, ErrInvalidTickSpacing)
	}
	return nil
}

func checkTick(tick int32) error {
	if tick < MinTick || tick > MaxTick {
		return fmt.Errorf("tick %d not in [%d, %d]: %w", tick, MinTick, MaxTick, ErrTickOutOfBounds)
	}
	return nil
}

// TickToSqrtPrice returns sqrt(1.0001^tick) in Q64.64 by binary exponentiation.
func TickToSqrtPrice(tick int32) (cosmath.Int, error) {
	if err := checkTick(tick); err != nil {
		return cosmath.Int{}, err
	}
	return cosmath.NewIntFromBigInt(tickToSqrtPriceBig(tick)), nil
}

func tickToSqrtPriceBig(tick int32) *big.Int {
	if tick >= 0 {
		return positiveTickSqrtPrice(uint32(tick))
	}
	return negativeTickSqrtPrice(uint32(-tick))
}

func positiveTickSqrtPrice(tick uint32) *big.Int {
	ratio := new(big.Int).Lsh(big.NewInt(1), q96Resolution)
	if tick&1 != 0 {
		ratio.Set(posSqrtRatios[0])
	}
	for k := 1; k < len(posSqrtRatios); k++ {
		if tick&(1<<k) != 0 {
			ratio.Mul(ratio, posSqrtRatios[k])
			ratio.Rsh(ratio, q96Resolution)
		}
	}
	return ratio.Rsh(ratio, q96Resolution-u64Resolution)
}

func negativeTickSqrtPrice(tick uint32) *big.Int {
	ratio := new(big.Int).Lsh(big.NewInt(1), u64Resolution)
	if tick&1 != 0 {
		ratio.Set(negSqrtRatios[0])
	}
	for k := 1; k < len(negSqrtRatios); k++ {
		if tick&(1<<k) != 0 {
			ratio.Mul(ratio, negSqrtRatios[k])
			ratio.Rsh(ratio, u64Resolution)
		}
	}
	return ratio
}

// SqrtPriceToTick returns the greatest tick whose sqrt price is <= sqrtPrice.
func SqrtPriceToTick(sqrtPrice cosmath.Int) (int32, error) {
	if err := checkSqrtPrice(sqrtPrice); err != nil {
		return 0, err
	}
	return sqrtPriceToTickBig(sqrtPrice.BigInt()), nil
}

func sqrtPriceToTickBig(sp *big.Int) int32 {
	lo, hi := MinTick, MaxTick
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if tickToSqrtPriceBig(mid).Cmp(sp) <= 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// PriceToFloorTick returns the tick whose price is the greatest one not above price.
func PriceToFloorTick(price cosmath.LegacyDec, decimalsA, decimalsB uint8) (int32, error) {
	sqrtPrice, err := PriceToSqrtPrice(price, decimalsA, decimalsB)
	if err != nil {
		return 0, err
	}
	return SqrtPriceToTick(sqrtPrice)
}

// PriceToTick returns the tick nearest to price on the log grid, ties rounding up.
func PriceToTick(price cosmath.LegacyDec, decimalsA, decimalsB uint8) (int32, error) {
	sqrtPrice, err := PriceToSqrtPrice(price, decimalsA, decimalsB)
	if err != nil {
		return 0, err
	}
	return nearestTick(sqrtPrice.BigInt()), nil
}

// nearestTick compares sqrtPrice^2 with the geometric midpoint sqrt(t) * sqrt(t+1)
func nearestTick(sp *big.Int) int32 {
	tick := sqrtPriceToTickBig(sp)
	if tick == MaxTick {
		return tick
	}
	lower := tickToSqrtPriceBig(tick)
	upper := tickToSqrtPriceBig(tick + 1)
	squared := new(big.Int).Mul(sp, sp)
	midpoint := new(big.Int).Mul(lower, upper)
	if squared.Cmp(midpoint) >= 0 {
		return tick + 1
	}
	return tick
}

// PriceToInitializableTick rounds price to the nearest tick usable by a pool with tickSpacing.
func PriceToInitializableTick(price cosmath.LegacyDec, decimalsA, decimalsB uint8, tickSpacing uint16) (int32, error) {
	if err := ValidateTickSpacing(tickSpacing); err != nil {
		return 0, err
	}
	tick, err := PriceToTick(price, decimalsA, decimalsB)
	if err != nil {
		return 0, err
	}
	return InitializableTick(tick, tickSpacing)
}

// TickToPrice converts a tick to a human price. Meant for display.
func TickToPrice(tick int32, decimalsA, decimalsB uint8) (cosmath.LegacyDec, error) {
	sqrtPrice, err := TickToSqrtPrice(tick)
	if err != nil {
		return cosmath.LegacyDec{}, err
	}
	return SqrtPriceToPrice(sqrtPrice, decimalsA, decimalsB)
}

// InitializableTick rounds tick to the nearest multiple of tickSpacing (ties toward +inf),
// staying inside [MinTick, MaxTick].
func InitializableTick(tick int32, tickSpacing uint16) (int32, error) {
	if err := ValidateTickSpacing(tickSpacing); err != nil {
		return 0, err
	}
	if err := checkTick(tick); err != nil {
		return 0, err
	}
	spacing := int32(tickSpacing)
	rounded := floorDiv(2*tick+spacing, 2*spacing) * spacing
	if rounded > MaxTick {
		rounded -= spacing
	}
	if rounded < MinTick {
		rounded += spacing
	}
	return rounded, nil
}

// IsInitializableTick reports whether tick is a multiple of tickSpacing inside bounds.
func IsInitializableTick(tick int32, tickSpacing uint16) bool {
	if tickSpacing == 0 || checkTick(tick) != nil {
		return false
	}
	return tick%int32(tickSpacing) == 0
}

// MinInitializableTick is the lowest tick a pool with tickSpacing can initialize.
func MinInitializableTick(tickSpacing uint16) int32 {
	spacing := int32(tickSpacing)
	return -(-MinTick / spacing * spacing)
}

// MaxInitializableTick is the highest tick a pool with tickSpacing can initialize.
func MaxInitializableTick(tickSpacing uint16) int32 {
	spacing := int32(tickSpacing)
	return MaxTick / spacing * spacing
}

// TickArrayStartIndex returns the first tick of the tick array holding tick.
func TickArrayStartIndex(tick int32, tickSpacing uint16) int32 {
	width := int32(tickSpacing) * TickArraySize
	return floorDiv(tick, width) * width
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

package clmm

import (
	"math/big"
	"testing"

	cosmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

func TestTickToSqrtPriceKnownValues(t *testing.T) {
	cases := []struct {
		tick int32
		want string
	}{
		{0, "18446744073709551616"},
		{1, "18447666387855959850"},
		{-1, "18445821805675392311"},
		{-5632, "13919656265139497014"},
		{5632, "24446176000275556722"},
		{-64, "18387811781193591352"},
		{MinTick, "4295048016"},
		{MaxTick, "79226673515401279992447579055"},
	}
	for _, tc := range cases {
		got, err := TickToSqrtPrice(tc.tick)
		require.NoError(t, err)
		require.Equal(t, tc.want, got.String(), "tick %d", tc.tick)
	}
	require.Equal(t, MinSqrtPrice.String(), "4295048016")
}

func TestTickToSqrtPriceBounds(t *testing.T) {
	lo, err := TickToSqrtPrice(MinTick)
	require.NoError(t, err)
	require.Equal(t, MinSqrtPrice.String(), lo.String())
	hi, err := TickToSqrtPrice(MaxTick)
	require.NoError(t, err)
	require.Equal(t, MaxSqrtPrice.String(), hi.String())

	_, err = TickToSqrtPrice(MaxTick + 1)
	require.ErrorIs(t, err, ErrTickOutOfBounds)
	_, err = TickToSqrtPrice(MinTick - 1)
	require.ErrorIs(t, err, ErrTickOutOfBounds)
}

func TestTickToSqrtPriceMonotonic(t *testing.T) {
	prev := cosmath.ZeroInt()
	for tick := MinTick; tick <= MaxTick; tick += 997 {
		sp, err := TickToSqrtPrice(tick)
		require.NoError(t, err)
		require.True(t, sp.GT(prev), "tick %d", tick)
		prev = sp
	}
	for tick := int32(-300); tick < 300; tick++ {
		lo, err := TickToSqrtPrice(tick)
		require.NoError(t, err)
		hi, err := TickToSqrtPrice(tick + 1)
		require.NoError(t, err)
		require.True(t, lo.LT(hi), "tick %d", tick)
	}
}

func TestSqrtPriceToTickRoundTrip(t *testing.T) {
	for _, spacing := range []uint16{TickSpacing8, TickSpacing16, TickSpacing32, TickSpacingLow, TickSpacingMed} {
		requireRoundTrip(t, spacing)
	}
	for _, tick := range []int32{MinTick, MinTick + 1, -1, 0, 1, MaxTick - 1, MaxTick} {
		sp, err := TickToSqrtPrice(tick)
		require.NoError(t, err)
		got, err := SqrtPriceToTick(sp)
		require.NoError(t, err)
		require.Equal(t, tick, got)
	}
}

func TestSqrtPriceToTickRoundTripFullGrid(t *testing.T) {
	if testing.Short() {
		t.Skip("walks all 887273 ticks")
	}
	requireRoundTrip(t, TickSpacingStable)
}

func requireRoundTrip(t *testing.T, spacing uint16) {
	t.Helper()
	for tick := MinInitializableTick(spacing); tick <= MaxInitializableTick(spacing); tick += int32(spacing) {
		sp, err := TickToSqrtPrice(tick)
		require.NoError(t, err)
		got, err := SqrtPriceToTick(sp)
		require.NoError(t, err)
		if got != tick {
			t.Fatalf("spacing %d: tick %d came back as %d", spacing, tick, got)
		}
	}
}

// sqrt(1.0001)^tick * 2^64 evaluated in 256-bit floats
func referenceSqrtPrice(tick int32) *big.Float {
	const prec = 256
	base, _, err := big.ParseFloat("1.0001", 10, prec, big.ToNearestEven)
	if err != nil {
		panic(err)
	}
	base.Sqrt(base)

	result := new(big.Float).SetPrec(prec).SetInt64(1)
	n := tick
	if n < 0 {
		n = -n
	}
	for ; n > 0; n >>= 1 {
		if n&1 != 0 {
			result.Mul(result, base)
		}
		base.Mul(base, base)
	}
	if tick < 0 {
		result.Quo(new(big.Float).SetPrec(prec).SetInt64(1), result)
	}
	return result.SetMantExp(result, u64Resolution)
}

func TestTickToSqrtPriceMatchesReference(t *testing.T) {
	ticks := []int32{MinTick, MinTick + 1, -2, -1, 1, 2, MaxTick - 1, MaxTick}
	for tick := MinTick; tick <= MaxTick; tick += 1777 {
		ticks = append(ticks, tick)
	}
	for _, tick := range ticks {
		got, err := TickToSqrtPrice(tick)
		require.NoError(t, err)
		exact := referenceSqrtPrice(tick)

		// truncation only ever drops value, and never more than a few Q64 units
		diff := new(big.Float).SetPrec(256).SetInt(got.BigInt())
		diff.Sub(exact, diff)
		require.True(t, diff.Sign() >= 0, "tick %d: %s above %s", tick, got, exact.Text('f', 4))
		require.True(t, diff.Cmp(big.NewFloat(16)) < 0, "tick %d: %s is %s below %s", tick, got, diff.Text('f', 4), exact.Text('f', 4))
	}
}

func TestSqrtPriceToTickFloors(t *testing.T) {
	for _, tick := range []int32{-35716, -1, 0, 100, 200000} {
		sp, err := TickToSqrtPrice(tick)
		require.NoError(t, err)
		next, err := TickToSqrtPrice(tick + 1)
		require.NoError(t, err)

		got, err := SqrtPriceToTick(sp.AddRaw(1))
		require.NoError(t, err)
		require.Equal(t, tick, got)

		got, err = SqrtPriceToTick(next.SubRaw(1))
		require.NoError(t, err)
		require.Equal(t, tick, got)
	}

	_, err := SqrtPriceToTick(MinSqrtPrice.SubRaw(1))
	require.ErrorIs(t, err, ErrOutOfRangeFixedPoint)
}

func TestPriceToTickNearestVersusFloor(t *testing.T) {
	// 1.0001^100.7 and 1.0001^100.3
	upper := cosmath.LegacyMustNewDecFromStr("1.010120364508716879")
	lower := cosmath.LegacyMustNewDecFromStr("1.010079962522247303")

	floor, err := PriceToFloorTick(upper, 6, 6)
	require.NoError(t, err)
	nearest, err := PriceToTick(upper, 6, 6)
	require.NoError(t, err)
	require.Equal(t, int32(100), floor)
	require.Equal(t, int32(101), nearest)

	floor, err = PriceToFloorTick(lower, 6, 6)
	require.NoError(t, err)
	nearest, err = PriceToTick(lower, 6, 6)
	require.NoError(t, err)
	require.Equal(t, int32(100), floor)
	require.Equal(t, int32(100), nearest)
}

func TestPriceToInitializableTick(t *testing.T) {
	price := cosmath.LegacyMustNewDecFromStr("28.118486722821")

	tick, err := PriceToTick(price, 9, 6)
	require.NoError(t, err)
	require.Equal(t, int32(-35715), tick)

	tick, err = PriceToInitializableTick(price, 9, 6, TickSpacingLow)
	require.NoError(t, err)
	require.Equal(t, int32(-35712), tick)

	_, err = PriceToInitializableTick(price, 9, 6, 3)
	require.ErrorIs(t, err, ErrInvalidTickSpacing)
}

func TestInitializableTick(t *testing.T) {
	cases := []struct {
		tick    int32
		spacing uint16
		want    int32
	}{
		{32, 64, 64},
		{31, 64, 0},
		{-32, 64, 0},
		{-33, 64, -64},
		{100, 1, 100},
		{MaxTick, 64, 443584},
		{MinTick, 64, -443584},
		{MaxTick, 128, 443520},
	}
	for _, tc := range cases {
		got, err := InitializableTick(tc.tick, tc.spacing)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "tick %d spacing %d", tc.tick, tc.spacing)
		require.True(t, IsInitializableTick(got, tc.spacing))
	}

	_, err := InitializableTick(0, 10)
	require.ErrorIs(t, err, ErrInvalidTickSpacing)
	_, err = InitializableTick(MaxTick+1, 64)
	require.ErrorIs(t, err, ErrTickOutOfBounds)
}

func TestValidateTickSpacing(t *testing.T) {
	for _, s := range []uint16{1, 8, 16, 32, 64, 128} {
		require.NoError(t, ValidateTickSpacing(s))
	}
	for _, s := range []uint16{0, 2, 10, 100, 256} {
		require.ErrorIs(t, ValidateTickSpacing(s), ErrInvalidTickSpacing)
	}
}

func TestTickArrayStartIndex(t *testing.T) {
	require.Equal(t, int32(0), TickArrayStartIndex(0, 64))
	require.Equal(t, int32(0), TickArrayStartIndex(5631, 64))
	require.Equal(t, int32(5632), TickArrayStartIndex(5632, 64))
	require.Equal(t, int32(-5632), TickArrayStartIndex(-1, 64))
	require.Equal(t, int32(-39424), TickArrayStartIndex(-35712, 64))
}

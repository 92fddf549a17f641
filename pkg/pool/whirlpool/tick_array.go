package whirlpool

import (
	"context"
	"fmt"
	"strconv"

	"clmmcore/pkg/clmm"
	"clmmcore/pkg/sol"

	cosmath "cosmossdk.io/math"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

// Tick is one slot of a tick array account
type Tick struct {
	Initialized          bool
	LiquidityNet         cosmath.Int
	LiquidityGross       uint128.Uint128
	FeeGrowthOutsideA    uint128.Uint128
	FeeGrowthOutsideB    uint128.Uint128
	RewardGrowthsOutside [REWARD_INFO_LEN]uint128.Uint128
}

// TickArray is a fixed window of TICK_ARRAY_LEN ticks of a whirlpool
type TickArray struct {
	Address        solana.PublicKey
	StartTickIndex int32
	Ticks          [TICK_ARRAY_LEN]Tick
	Whirlpool      solana.PublicKey
}

// Decode parses a tick array account.
func (ta *TickArray) Decode(data []byte) error {
	if len(data) < TICK_ARRAY_SIZE {
		return fmt.Errorf("insufficient data: expected %d bytes, got %d", TICK_ARRAY_SIZE, len(data))
	}
	r := &fieldReader{dec: bin.NewBinDecoder(data)}

	var disc [8]byte
	r.bytes(disc[:])
	if disc != TickArrayDiscriminator {
		return fmt.Errorf("not a tick array account: discriminator %v", disc)
	}
	ta.StartTickIndex = r.i32()
	for i := range ta.Ticks {
		t := &ta.Ticks[i]
		t.Initialized = r.bool()
		t.LiquidityNet = r.i128()
		t.LiquidityGross = r.u128()
		t.FeeGrowthOutsideA = r.u128()
		t.FeeGrowthOutsideB = r.u128()
		for j := range t.RewardGrowthsOutside {
			t.RewardGrowthsOutside[j] = r.u128()
		}
	}
	ta.Whirlpool = r.pubkey()
	if r.err != nil {
		return fmt.Errorf("failed to decode tick array: %w", r.err)
	}
	return nil
}

// Segment returns the initialized ticks of the array as a quote segment.
func (ta *TickArray) Segment(tickSpacing uint16) clmm.TickSegment {
	var ticks []clmm.InitializedTick
	for i, t := range ta.Ticks {
		if !t.Initialized {
			continue
		}
		ticks = append(ticks, clmm.InitializedTick{
			Index:        ta.StartTickIndex + int32(i)*int32(tickSpacing),
			LiquidityNet: t.LiquidityNet,
		})
	}
	return clmm.NewTickSegment(ta.StartTickIndex, tickSpacing, ticks)
}

// TickArrayAddress derives the tick array PDA of a whirlpool for a start index.
func TickArrayAddress(whirlpool solana.PublicKey, startTickIndex int32) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{
		[]byte(TICK_ARRAY_SEED),
		whirlpool.Bytes(),
		[]byte(strconv.FormatInt(int64(startTickIndex), 10)),
	}, WhirlpoolProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive tick array address: %w", err)
	}
	return addr, nil
}

// TickArrayStarts returns the start indexes of the tick arrays a swap from tickCurrent
// walks through, nearest first. Starts past the tick bounds are left out.
func TickArrayStarts(tickCurrent int32, tickSpacing uint16, aToB bool) []int32 {
	width := int32(tickSpacing) * clmm.TickArraySize
	minStart := clmm.TickArrayStartIndex(clmm.MinTick, tickSpacing)
	maxStart := clmm.TickArrayStartIndex(clmm.MaxTick, tickSpacing)

	step := width
	shift := int32(tickSpacing)
	if aToB {
		step = -width
		shift = 0
	}
	start := clmm.TickArrayStartIndex(tickCurrent+shift, tickSpacing)

	starts := make([]int32, 0, TICK_ARRAYS_PER_SWAP)
	for i := 0; i < TICK_ARRAYS_PER_SWAP; i++ {
		if start < minStart || start > maxStart {
			break
		}
		starts = append(starts, start)
		start += step
	}
	return starts
}

// FetchTickArraySegments loads the tick arrays in the swap direction. Arrays that were
// never initialized on chain are skipped.
func FetchTickArraySegments(ctx context.Context, solClient *sol.Client, whirlpool solana.PublicKey, state clmm.PoolState, aToB bool) ([]clmm.TickSegment, error) {
	starts := TickArrayStarts(state.TickCurrentIndex, state.TickSpacing, aToB)
	addrs := make([]solana.PublicKey, len(starts))
	for i, start := range starts {
		addr, err := TickArrayAddress(whirlpool, start)
		if err != nil {
			return nil, err
		}
		addrs[i] = addr
	}

	res, err := solClient.GetMultipleAccountsWithOpts(ctx, addrs)
	if err != nil {
		return nil, fmt.Errorf("failed to get tick arrays: %w", err)
	}
	segments := make([]clmm.TickSegment, 0, len(addrs))
	for i, acc := range res.Value {
		if acc == nil || acc.Data == nil {
			continue
		}
		ta := TickArray{Address: addrs[i]}
		if err := ta.Decode(acc.Data.GetBinary()); err != nil {
			return nil, fmt.Errorf("tick array %s: %w", addrs[i], err)
		}
		if ta.StartTickIndex != starts[i] {
			return nil, fmt.Errorf("tick array %s starts at %d, expected %d", addrs[i], ta.StartTickIndex, starts[i])
		}
		segments = append(segments, ta.Segment(state.TickSpacing))
	}
	return segments, nil
}

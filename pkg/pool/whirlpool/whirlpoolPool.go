package whirlpool

import (
	"context"
	"encoding/binary"
	"fmt"

	"clmmcore/pkg/clmm"
	"clmmcore/pkg/sol"

	cosmath "cosmossdk.io/math"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

// WhirlpoolPool represents an Orca Whirlpool CLMM pool account
type WhirlpoolPool struct {
	Discriminator [8]uint8

	WhirlpoolsConfig solana.PublicKey
	WhirlpoolBump    [1]uint8

	TickSpacing     uint16
	TickSpacingSeed [2]uint8

	// FeeRate is in hundredths of a basis point
	FeeRate          uint16
	ProtocolFeeRate  uint16
	Liquidity        uint128.Uint128
	SqrtPrice        uint128.Uint128
	TickCurrentIndex int32
	ProtocolFeeOwedA uint64
	ProtocolFeeOwedB uint64

	TokenMintA       solana.PublicKey
	TokenVaultA      solana.PublicKey
	FeeGrowthGlobalA uint128.Uint128
	TokenMintB       solana.PublicKey
	TokenVaultB      solana.PublicKey
	FeeGrowthGlobalB uint128.Uint128

	RewardLastUpdatedTimestamp uint64
	RewardInfos                [REWARD_INFO_LEN]RewardInfo

	PoolId solana.PublicKey
	// Slot the account was read at
	Slot uint64
}

type RewardInfo struct {
	Mint                  solana.PublicKey
	Vault                 solana.PublicKey
	Authority             solana.PublicKey
	EmissionsPerSecondX64 uint128.Uint128
	GrowthGlobalX64       uint128.Uint128
}

func (pool *WhirlpoolPool) GetID() string {
	return pool.PoolId.String()
}

// fieldReader walks a little-endian account buffer and keeps the first error
type fieldReader struct {
	dec *bin.Decoder
	err error
}

func (r *fieldReader) bytes(out []byte) {
	if r.err != nil {
		return
	}
	b, err := r.dec.ReadNBytes(len(out))
	if err != nil {
		r.err = err
		return
	}
	copy(out, b)
}

func (r *fieldReader) pubkey() (pk solana.PublicKey) {
	r.bytes(pk[:])
	return pk
}

func (r *fieldReader) u16() uint16 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint16(binary.LittleEndian)
	r.err = err
	return v
}

func (r *fieldReader) i32() int32 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadInt32(binary.LittleEndian)
	r.err = err
	return v
}

func (r *fieldReader) u64() uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint64(binary.LittleEndian)
	r.err = err
	return v
}

func (r *fieldReader) u128() uint128.Uint128 {
	if r.err != nil {
		return uint128.Zero
	}
	v, err := r.dec.ReadUint128(binary.LittleEndian)
	r.err = err
	return uint128.New(v.Lo, v.Hi)
}

func (r *fieldReader) i128() cosmath.Int {
	if r.err != nil {
		return cosmath.ZeroInt()
	}
	v, err := r.dec.ReadInt128(binary.LittleEndian)
	r.err = err
	return cosmath.NewIntFromBigInt(v.BigInt())
}

func (r *fieldReader) bool() bool {
	if r.err != nil {
		return false
	}
	v, err := r.dec.ReadBool()
	r.err = err
	return v
}

// Decode parses the account layout of
// https://github.com/orca-so/whirlpools/blob/main/programs/whirlpool/src/state/whirlpool.rs
func (pool *WhirlpoolPool) Decode(data []byte) error {
	if len(data) < WHIRLPOOL_SIZE {
		return fmt.Errorf("insufficient data: expected %d bytes, got %d", WHIRLPOOL_SIZE, len(data))
	}
	r := &fieldReader{dec: bin.NewBinDecoder(data)}

	r.bytes(pool.Discriminator[:])
	if pool.Discriminator != WhirlpoolDiscriminator {
		return fmt.Errorf("not a whirlpool account: discriminator %v", pool.Discriminator)
	}
	pool.WhirlpoolsConfig = r.pubkey()
	r.bytes(pool.WhirlpoolBump[:])
	pool.TickSpacing = r.u16()
	r.bytes(pool.TickSpacingSeed[:])
	pool.FeeRate = r.u16()
	pool.ProtocolFeeRate = r.u16()
	pool.Liquidity = r.u128()
	pool.SqrtPrice = r.u128()
	pool.TickCurrentIndex = r.i32()
	pool.ProtocolFeeOwedA = r.u64()
	pool.ProtocolFeeOwedB = r.u64()
	pool.TokenMintA = r.pubkey()
	pool.TokenVaultA = r.pubkey()
	pool.FeeGrowthGlobalA = r.u128()
	pool.TokenMintB = r.pubkey()
	pool.TokenVaultB = r.pubkey()
	pool.FeeGrowthGlobalB = r.u128()
	pool.RewardLastUpdatedTimestamp = r.u64()
	for i := range pool.RewardInfos {
		info := &pool.RewardInfos[i]
		info.Mint = r.pubkey()
		info.Vault = r.pubkey()
		info.Authority = r.pubkey()
		info.EmissionsPerSecondX64 = r.u128()
		info.GrowthGlobalX64 = r.u128()
	}
	if r.err != nil {
		return fmt.Errorf("failed to decode whirlpool: %w", r.err)
	}
	return nil
}

// State converts the account into a validated pool snapshot.
func (pool *WhirlpoolPool) State(decimalsA, decimalsB uint8) (clmm.PoolState, error) {
	return clmm.NewPoolState(clmm.PoolState{
		TickCurrentIndex: pool.TickCurrentIndex,
		SqrtPrice:        pool.SqrtPrice,
		Liquidity:        pool.Liquidity,
		TickSpacing:      pool.TickSpacing,
		FeeRatePpm:       uint32(pool.FeeRate),
		DecimalsA:        decimalsA,
		DecimalsB:        decimalsB,
		MintA:            pool.TokenMintA,
		MintB:            pool.TokenMintB,
	})
}

// FetchPool reads and decodes a whirlpool account.
func FetchPool(ctx context.Context, solClient *sol.Client, poolID solana.PublicKey) (*WhirlpoolPool, error) {
	res, err := solClient.GetAccountInfoWithOpts(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool account %s: %w", poolID, err)
	}
	pool := &WhirlpoolPool{PoolId: poolID, Slot: res.Context.Slot}
	if err := pool.Decode(res.Value.Data.GetBinary()); err != nil {
		return nil, fmt.Errorf("pool %s: %w", poolID, err)
	}
	return pool, nil
}

// FetchState reads the pool's mints for their decimals and returns the pool snapshot.
func (pool *WhirlpoolPool) FetchState(ctx context.Context, solClient *sol.Client) (clmm.PoolState, error) {
	decimals, err := solClient.GetMintDecimals(ctx, pool.TokenMintA, pool.TokenMintB)
	if err != nil {
		return clmm.PoolState{}, err
	}
	return pool.State(decimals[0], decimals[1])
}

// QuoteSwap fetches the tick arrays in the swap direction and quotes the swap on them.
func (pool *WhirlpoolPool) QuoteSwap(ctx context.Context, solClient *sol.Client, params clmm.SwapParams) (clmm.SwapQuote, error) {
	// decimals only matter for display prices
	state, err := pool.State(0, 0)
	if err != nil {
		return clmm.SwapQuote{}, err
	}
	segments, err := FetchTickArraySegments(ctx, solClient, pool.PoolId, state, params.AToB)
	if err != nil {
		return clmm.SwapQuote{}, err
	}
	return clmm.Quote(state, params, segments)
}

// StateDecoder returns a decoder from raw whirlpool account data to a pool snapshot.
func StateDecoder(decimalsA, decimalsB uint8) func(data []byte) (clmm.PoolState, error) {
	return func(data []byte) (clmm.PoolState, error) {
		var pool WhirlpoolPool
		if err := pool.Decode(data); err != nil {
			return clmm.PoolState{}, err
		}
		return pool.State(decimalsA, decimalsB)
	}
}

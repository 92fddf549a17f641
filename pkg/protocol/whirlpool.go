package protocol

import (
	"context"
	"fmt"

	"clmmcore/pkg/pool/whirlpool"
	"clmmcore/pkg/sol"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

type WhirlpoolProtocol struct {
	SolClient *sol.Client
}

func NewWhirlpool(solClient *sol.Client) *WhirlpoolProtocol {
	return &WhirlpoolProtocol{
		SolClient: solClient,
	}
}

func (p *WhirlpoolProtocol) ProtocolName() string {
	return "whirlpool"
}

// FetchPoolsByPair lists the whirlpools trading baseMint against quoteMint in either token order.
func (p *WhirlpoolProtocol) FetchPoolsByPair(ctx context.Context, baseMint string, quoteMint string) ([]*whirlpool.WhirlpoolPool, error) {
	baseMintPubkey, err := solana.PublicKeyFromBase58(baseMint)
	if err != nil {
		return nil, fmt.Errorf("invalid base mint address: %w", err)
	}
	quoteMintPubkey, err := solana.PublicKeyFromBase58(quoteMint)
	if err != nil {
		return nil, fmt.Errorf("invalid quote mint address: %w", err)
	}

	programAccounts, err := p.fetchByMints(ctx, baseMintPubkey, quoteMintPubkey)
	if err != nil {
		return nil, err
	}
	// Also try reverse pair
	reverseAccounts, err := p.fetchByMints(ctx, quoteMintPubkey, baseMintPubkey)
	if err != nil {
		return nil, err
	}
	programAccounts = append(programAccounts, reverseAccounts...)

	res := make([]*whirlpool.WhirlpoolPool, 0, len(programAccounts))
	for _, v := range programAccounts {
		pool := &whirlpool.WhirlpoolPool{}
		if err := pool.Decode(v.Account.Data.GetBinary()); err != nil {
			continue
		}
		pool.PoolId = v.Pubkey
		res = append(res, pool)
	}
	return res, nil
}

func (p *WhirlpoolProtocol) fetchByMints(ctx context.Context, mintA, mintB solana.PublicKey) (rpc.GetProgramAccountsResult, error) {
	accounts, err := p.SolClient.GetProgramAccountsWithOpts(ctx, whirlpool.WhirlpoolProgramID,
		rpc.RPCFilter{DataSize: whirlpool.WHIRLPOOL_SIZE},
		rpc.RPCFilter{
			Memcmp: &rpc.RPCFilterMemcmp{
				Offset: whirlpool.TOKEN_MINT_A_OFFSET,
				Bytes:  mintA.Bytes(),
			},
		},
		rpc.RPCFilter{
			Memcmp: &rpc.RPCFilterMemcmp{
				Offset: whirlpool.TOKEN_MINT_B_OFFSET,
				Bytes:  mintB.Bytes(),
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch whirlpools: %w", err)
	}
	return accounts, nil
}

func (p *WhirlpoolProtocol) FetchPoolByID(ctx context.Context, poolId string) (*whirlpool.WhirlpoolPool, error) {
	poolPubkey, err := solana.PublicKeyFromBase58(poolId)
	if err != nil {
		return nil, fmt.Errorf("invalid pool ID: %w", err)
	}
	return whirlpool.FetchPool(ctx, p.SolClient, poolPubkey)
}

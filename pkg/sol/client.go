package sol

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"
)

// maxAccountsPerRequest is the getMultipleAccounts limit of Solana RPC nodes
const maxAccountsPerRequest = 100

// Client is a rate limited Solana RPC client
type Client struct {
	RpcClient *rpc.Client
	endpoint  string
	limiter   *rate.Limiter
}

// NewClient creates a client for endpoint allowing reqLimitPerSecond requests per second.
// A non-positive limit disables rate limiting.
func NewClient(ctx context.Context, endpoint string, reqLimitPerSecond int) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("empty RPC endpoint")
	}
	limit := rate.Inf
	burst := 1
	if reqLimitPerSecond > 0 {
		limit = rate.Limit(reqLimitPerSecond)
		burst = reqLimitPerSecond
	}
	return &Client{
		RpcClient: rpc.New(endpoint),
		endpoint:  endpoint,
		limiter:   rate.NewLimiter(limit, burst),
	}, nil
}

// Endpoint returns the RPC URL the client talks to
func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// GetAccountInfoWithOpts fetches one account with base64 data at confirmed commitment
func (c *Client) GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.RpcClient.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
}

// GetMultipleAccountsWithOpts fetches accounts in batches of 100. Missing accounts are nil
// in the result, in request order.
func (c *Client) GetMultipleAccountsWithOpts(ctx context.Context, accounts []solana.PublicKey) (*rpc.GetMultipleAccountsResult, error) {
	out := &rpc.GetMultipleAccountsResult{Value: make([]*rpc.Account, 0, len(accounts))}
	for start := 0; start < len(accounts); start += maxAccountsPerRequest {
		end := min(start+maxAccountsPerRequest, len(accounts))
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		res, err := c.RpcClient.GetMultipleAccountsWithOpts(ctx, accounts[start:end], &rpc.GetMultipleAccountsOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: rpc.CommitmentConfirmed,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get accounts %d-%d: %w", start, end, err)
		}
		if res.Context.Slot > out.Context.Slot {
			out.Context = res.Context
		}
		out.Value = append(out.Value, res.Value...)
	}
	return out, nil
}

// GetProgramAccountsWithOpts lists the accounts owned by program that match every filter.
func (c *Client) GetProgramAccountsWithOpts(ctx context.Context, program solana.PublicKey, filters ...rpc.RPCFilter) (rpc.GetProgramAccountsResult, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.RpcClient.GetProgramAccountsWithOpts(ctx, program, &rpc.GetProgramAccountsOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
		Filters:    filters,
	})
}

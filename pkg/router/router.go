package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"clmmcore/pkg/clmm"
	"clmmcore/pkg/sol"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

var ErrNoRoute = errors.New("no route found")

// Pool is a concentrated liquidity pool that can quote swaps against live tick data.
type Pool interface {
	GetID() string
	State(decimalsA, decimalsB uint8) (clmm.PoolState, error)
	QuoteSwap(ctx context.Context, solClient *sol.Client, params clmm.SwapParams) (clmm.SwapQuote, error)
}

// Request describes a swap independently of any pool's token ordering.
type Request struct {
	InputMint      solana.PublicKey
	Amount         cosmath.Int
	ExactOut       bool
	SqrtPriceLimit cosmath.Int
	SlippageBps    uint16
}

// Route is the pool chosen for a request and its quote.
type Route struct {
	Pool  Pool
	State clmm.PoolState
	Quote clmm.SwapQuote
}

type SimpleRouter struct {
	Pools  []Pool
	logger *zap.Logger
}

func NewSimpleRouter(logger *zap.Logger, pools ...Pool) *SimpleRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimpleRouter{
		Pools:  pools,
		logger: logger,
	}
}

// GetBestRoute quotes every pool concurrently. Exact input picks the largest output among
// full fills, exact output the smallest input. Ties go to the pool listed first.
func (r *SimpleRouter) GetBestRoute(ctx context.Context, solClient *sol.Client, req Request) (Route, error) {
	if len(r.Pools) == 0 {
		return Route{}, fmt.Errorf("no pools to route through: %w", ErrNoRoute)
	}

	type quoteResult struct {
		route Route
		err   error
	}
	results := make([]quoteResult, len(r.Pools))
	var wg sync.WaitGroup
	for i, pool := range r.Pools {
		wg.Add(1)
		go func(i int, p Pool) {
			defer wg.Done()
			route, err := quotePool(ctx, solClient, p, req)
			results[i] = quoteResult{route: route, err: err}
		}(i, pool)
	}
	wg.Wait()

	var (
		best  Route
		found bool
		errs  []error
	)
	for i, result := range results {
		if result.err != nil {
			r.logger.Warn("error quoting pool",
				zap.String("pool", r.Pools[i].GetID()),
				zap.Error(result.err),
			)
			errs = append(errs, result.err)
			continue
		}
		if !found || better(result.route.Quote, best.Quote, req) {
			best = result.route
			found = true
		}
	}
	if !found {
		return Route{}, fmt.Errorf("%w: %w", ErrNoRoute, errors.Join(errs...))
	}
	return best, nil
}

func quotePool(ctx context.Context, solClient *sol.Client, p Pool, req Request) (Route, error) {
	state, err := p.State(0, 0)
	if err != nil {
		return Route{}, err
	}
	aToB, err := state.Direction(req.InputMint)
	if err != nil {
		return Route{}, err
	}
	limit := req.SqrtPriceLimit
	if limit.IsNil() {
		limit = cosmath.ZeroInt()
	}
	quote, err := p.QuoteSwap(ctx, solClient, clmm.SwapParams{
		Amount:                 req.Amount,
		AToB:                   aToB,
		AmountSpecifiedIsInput: !req.ExactOut,
		SlippageToleranceBps:   req.SlippageBps,
		SqrtPriceLimit:         limit,
	})
	if err != nil {
		return Route{}, fmt.Errorf("pool %s: %w", p.GetID(), err)
	}
	return Route{Pool: p, State: state, Quote: quote}, nil
}

// better ranks exact input quotes that spend the whole amount above ones a price limit cut
// short, then by output. Two partial fills compare their out/in rates.
func better(candidate, current clmm.SwapQuote, req Request) bool {
	if req.ExactOut {
		return candidate.AmountIn.LT(current.AmountIn)
	}
	candidateFull := candidate.AmountIn.GTE(req.Amount)
	currentFull := current.AmountIn.GTE(req.Amount)
	switch {
	case candidateFull != currentFull:
		return candidateFull
	case candidateFull:
		return candidate.AmountOut.GT(current.AmountOut)
	}
	return candidate.AmountOut.Mul(current.AmountIn).GT(current.AmountOut.Mul(candidate.AmountIn))
}

package main

import (
	"context"
	"fmt"

	"clmmcore/pkg/clmm"
	"clmmcore/pkg/pool/whirlpool"
	"clmmcore/pkg/protocol"
	"clmmcore/pkg/router"
	"clmmcore/pkg/sol"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type QuoteResponse struct {
	InputMint            string      `json:"inputMint"`
	OutputMint           string      `json:"outputMint"`
	InAmount             string      `json:"inAmount"`
	OutAmount            string      `json:"outAmount"`
	SwapMode             string      `json:"swapMode"`
	PriceImpact          string      `json:"priceImpact,omitempty"`
	FeeAmount            string      `json:"feeAmount"`
	EndTickIndex         int32       `json:"endTickIndex"`
	EndSqrtPriceX64      string      `json:"endSqrtPriceX64"`
	RoutePlan            []RoutePlan `json:"routePlan"`
	SlippageBps          int         `json:"slippageBps"`
	OtherAmountThreshold string      `json:"otherAmountThreshold"`
}

type RoutePlan struct {
	Protocol   string `json:"protocol"`
	PoolID     string `json:"poolId"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
}

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap on the best of one or more live Whirlpools",
		Args:  cobra.NoArgs,
		RunE:  runQuote,
	}

	cmd.Flags().StringSlice("pool", nil, "whirlpool address, repeat or comma-separate to route across pools")
	cmd.Flags().String("input", "", "input token mint address (required)")
	cmd.Flags().String("output", "", "output token mint address, routes across every whirlpool of the pair when --pool is not set")
	cmd.Flags().String("amount", "", "amount in smallest units (required)")
	cmd.Flags().Bool("exact-out", false, "treat amount as the exact output instead of the exact input")
	cmd.Flags().String("sqrt-price-limit", "", "Q64.64 sqrt price the swap must not cross")
	cmd.Flags().Int("slippage-bps", 50, "slippage tolerance in basis points")
	cmd.MarkFlagsOneRequired("pool", "output")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	poolArgs, _ := cmd.Flags().GetStringSlice("pool")
	poolIDs := make([]solana.PublicKey, 0, len(poolArgs))
	for _, arg := range poolArgs {
		id, err := solana.PublicKeyFromBase58(arg)
		if err != nil {
			return fmt.Errorf("invalid pool address %q: %w", arg, err)
		}
		poolIDs = append(poolIDs, id)
	}
	inputArg, _ := cmd.Flags().GetString("input")
	inputMint, err := solana.PublicKeyFromBase58(inputArg)
	if err != nil {
		return fmt.Errorf("invalid input mint address %q: %w", inputArg, err)
	}
	amountArg, _ := cmd.Flags().GetString("amount")
	amount, err := parseAmount(amountArg)
	if err != nil {
		return err
	}
	outputArg, _ := cmd.Flags().GetString("output")
	exactOut, _ := cmd.Flags().GetBool("exact-out")
	limit := cosmath.ZeroInt()
	if limitArg, _ := cmd.Flags().GetString("sqrt-price-limit"); limitArg != "" {
		var ok bool
		if limit, ok = cosmath.NewIntFromString(limitArg); !ok {
			return fmt.Errorf("invalid sqrt price limit %q", limitArg)
		}
	}

	ctx := cmd.Context()
	solClient, err := newSolClient(ctx, cfg)
	if err != nil {
		return err
	}
	pools, err := fetchQuotePools(ctx, solClient, poolIDs, inputMint, outputArg)
	if err != nil {
		return err
	}

	logger.Debug("quoting",
		zap.Int("pools", len(pools)),
		zap.Stringer("input", inputMint),
		zap.Bool("exactOut", exactOut),
	)
	route, err := router.NewSimpleRouter(logger, pools...).GetBestRoute(ctx, solClient, router.Request{
		InputMint:      inputMint,
		Amount:         amount,
		ExactOut:       exactOut,
		SqrtPriceLimit: limit,
		SlippageBps:    cfg.SlippageBps,
	})
	if err != nil {
		return err
	}
	poolID, err := solana.PublicKeyFromBase58(route.Pool.GetID())
	if err != nil {
		return err
	}

	return writeJSON(cmd.OutOrStdout(), newQuoteResponse(poolID, route.State, route.Quote, int(cfg.SlippageBps)))
}

// fetchQuotePools loads the listed pools, or discovers every whirlpool of the pair when none are listed.
func fetchQuotePools(ctx context.Context, solClient *sol.Client, poolIDs []solana.PublicKey, inputMint solana.PublicKey, outputMint string) ([]router.Pool, error) {
	var pools []router.Pool
	if len(poolIDs) == 0 {
		found, err := protocol.NewWhirlpool(solClient).FetchPoolsByPair(ctx, inputMint.String(), outputMint)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("no whirlpool trades %s against %s: %w", inputMint, outputMint, router.ErrNoRoute)
		}
		for _, pool := range found {
			pools = append(pools, pool)
		}
		return pools, nil
	}
	for _, id := range poolIDs {
		pool, err := whirlpool.FetchPool(ctx, solClient, id)
		if err != nil {
			return nil, err
		}
		pools = append(pools, pool)
	}
	return pools, nil
}

func newQuoteResponse(poolID solana.PublicKey, state clmm.PoolState, quote clmm.SwapQuote, slippageBps int) QuoteResponse {
	inMint, outMint := state.MintA, state.MintB
	if !quote.AToB {
		inMint, outMint = outMint, inMint
	}
	mode := "ExactIn"
	if !quote.AmountSpecifiedIsInput {
		mode = "ExactOut"
	}

	return QuoteResponse{
		InputMint:            inMint.String(),
		OutputMint:           outMint.String(),
		InAmount:             quote.AmountIn.String(),
		OutAmount:            quote.AmountOut.String(),
		SwapMode:             mode,
		PriceImpact:          quote.PriceImpact.String(),
		FeeAmount:            quote.EstimatedFeeAmount.String(),
		EndTickIndex:         quote.EstimatedEndTickIndex,
		EndSqrtPriceX64:      quote.EstimatedEndSqrtPrice.String(),
		SlippageBps:          slippageBps,
		OtherAmountThreshold: quote.OtherAmountThreshold.String(),
		RoutePlan: []RoutePlan{
			{
				Protocol:   "whirlpool",
				PoolID:     poolID.String(),
				InputMint:  inMint.String(),
				OutputMint: outMint.String(),
				InAmount:   quote.AmountIn.String(),
				OutAmount:  quote.AmountOut.String(),
			},
		},
	}
}

package main

import (
	"fmt"
	"strings"

	"clmmcore/pkg/clmm"
	"clmmcore/pkg/pool/whirlpool"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
)

type DepositResponse struct {
	PoolID       string `json:"poolId,omitempty"`
	CurrentPrice string `json:"currentPrice"`
	CurrentTick  int32  `json:"currentTick"`
	LowerTick    int32  `json:"lowerTick"`
	UpperTick    int32  `json:"upperTick"`
	Liquidity    string `json:"liquidity"`
	TokenA       string `json:"tokenA"`
	TokenB       string `json:"tokenB"`
	RatioA       string `json:"ratioA"`
	RatioB       string `json:"ratioB"`
}

type depositRequest struct {
	amount     cosmath.Int
	side       clmm.Side
	byPrice    bool
	lowerTick  int32
	upperTick  int32
	lowerPrice string
	upperPrice string
}

func newDepositCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Estimate the liquidity and token amounts of a Whirlpool position deposit",
		Args:  cobra.NoArgs,
		RunE:  runDeposit,
	}

	cmd.Flags().String("pool", "", "whirlpool address (required)")
	cmd.Flags().String("amount", "", "deposit amount of the chosen token in smallest units (required)")
	cmd.Flags().String("side", "b", "token the amount is given in (a or b)")
	cmd.Flags().Int32("lower-tick", 0, "lower tick of the range")
	cmd.Flags().Int32("upper-tick", 0, "upper tick of the range")
	cmd.Flags().String("lower-price", "", "lower price of the range, snapped to the tick grid")
	cmd.Flags().String("upper-price", "", "upper price of the range, snapped to the tick grid")
	_ = cmd.MarkFlagRequired("pool")
	_ = cmd.MarkFlagRequired("amount")
	cmd.MarkFlagsRequiredTogether("lower-tick", "upper-tick")
	cmd.MarkFlagsRequiredTogether("lower-price", "upper-price")
	cmd.MarkFlagsMutuallyExclusive("lower-tick", "lower-price")
	cmd.MarkFlagsOneRequired("lower-tick", "lower-price")
	return cmd
}

func runDeposit(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	poolArg, _ := cmd.Flags().GetString("pool")
	poolID, err := solana.PublicKeyFromBase58(poolArg)
	if err != nil {
		return fmt.Errorf("invalid pool address %q: %w", poolArg, err)
	}
	req, err := parseDepositRequest(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	solClient, err := newSolClient(ctx, cfg)
	if err != nil {
		return err
	}
	pool, err := whirlpool.FetchPool(ctx, solClient, poolID)
	if err != nil {
		return err
	}
	state, err := pool.FetchState(ctx, solClient)
	if err != nil {
		return err
	}

	resp, err := estimateDeposit(state, req)
	if err != nil {
		return err
	}
	resp.PoolID = poolID.String()
	return writeJSON(cmd.OutOrStdout(), resp)
}

func parseAmount(s string) (cosmath.Int, error) {
	amount, ok := cosmath.NewIntFromString(s)
	if !ok || !amount.IsPositive() {
		return cosmath.Int{}, fmt.Errorf("invalid amount %q: must be a positive integer", s)
	}
	return amount, nil
}

func parseSide(s string) (clmm.Side, error) {
	switch strings.ToLower(s) {
	case "a":
		return clmm.SideA, nil
	case "b":
		return clmm.SideB, nil
	default:
		return 0, fmt.Errorf("invalid side %q: want a or b", s)
	}
}

func parseDepositRequest(cmd *cobra.Command) (depositRequest, error) {
	var req depositRequest
	amountArg, _ := cmd.Flags().GetString("amount")
	amount, err := parseAmount(amountArg)
	if err != nil {
		return req, err
	}
	sideArg, _ := cmd.Flags().GetString("side")
	side, err := parseSide(sideArg)
	if err != nil {
		return req, err
	}

	req.amount = amount
	req.side = side
	req.byPrice = cmd.Flags().Changed("lower-price")
	req.lowerTick, _ = cmd.Flags().GetInt32("lower-tick")
	req.upperTick, _ = cmd.Flags().GetInt32("upper-tick")
	req.lowerPrice, _ = cmd.Flags().GetString("lower-price")
	req.upperPrice, _ = cmd.Flags().GetString("upper-price")
	return req, nil
}

func snapPrice(s string, state clmm.PoolState) (int32, error) {
	price, err := cosmath.LegacyNewDecFromStr(s)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}
	return clmm.PriceToInitializableTick(price, state.DecimalsA, state.DecimalsB, state.TickSpacing)
}

func estimateDeposit(state clmm.PoolState, req depositRequest) (DepositResponse, error) {
	rng := clmm.PositionRange{LowerTick: req.lowerTick, UpperTick: req.upperTick}
	if req.byPrice {
		var err error
		if rng.LowerTick, err = snapPrice(req.lowerPrice, state); err != nil {
			return DepositResponse{}, err
		}
		if rng.UpperTick, err = snapPrice(req.upperPrice, state); err != nil {
			return DepositResponse{}, err
		}
	}

	quote, err := clmm.EstimateDepositForRange(state, req.side, req.amount, rng)
	if err != nil {
		return DepositResponse{}, err
	}

	lower, err := clmm.TickToSqrtPrice(rng.LowerTick)
	if err != nil {
		return DepositResponse{}, err
	}
	upper, err := clmm.TickToSqrtPrice(rng.UpperTick)
	if err != nil {
		return DepositResponse{}, err
	}
	ratioA, ratioB, err := clmm.DepositValueRatio(state.SqrtPriceInt(), lower, upper, state.DecimalsA, state.DecimalsB)
	if err != nil {
		return DepositResponse{}, err
	}
	price, err := state.Price()
	if err != nil {
		return DepositResponse{}, err
	}

	return DepositResponse{
		CurrentPrice: price.String(),
		CurrentTick:  state.TickCurrentIndex,
		LowerTick:    rng.LowerTick,
		UpperTick:    rng.UpperTick,
		Liquidity:    quote.Liquidity.String(),
		TokenA:       quote.TokenA.String(),
		TokenB:       quote.TokenB.String(),
		RatioA:       ratioA.String(),
		RatioB:       ratioB.String(),
	}, nil
}

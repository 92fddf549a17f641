package main

import (
	"fmt"

	"clmmcore/pkg/clmm"

	cosmath "cosmossdk.io/math"
	"github.com/spf13/cobra"
)

type PriceResponse struct {
	Price               string `json:"price"`
	SqrtPriceX64        string `json:"sqrtPriceX64"`
	Tick                int32  `json:"tick"`
	FloorTick           int32  `json:"floorTick"`
	InitializableTick   int32  `json:"initializableTick"`
	InitializablePrice  string `json:"initializablePrice"`
	TickArrayStartIndex int32  `json:"tickArrayStartIndex"`
}

type priceRequest struct {
	price       string
	tick        int32
	fromTick    bool
	decimalsA   uint8
	decimalsB   uint8
	tickSpacing uint16
}

func newPriceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Convert between a human price, its Q64.64 sqrt price and ticks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := priceRequest{fromTick: cmd.Flags().Changed("tick")}
			req.price, _ = cmd.Flags().GetString("price")
			req.tick, _ = cmd.Flags().GetInt32("tick")
			req.decimalsA, _ = cmd.Flags().GetUint8("decimals-a")
			req.decimalsB, _ = cmd.Flags().GetUint8("decimals-b")
			req.tickSpacing, _ = cmd.Flags().GetUint16("tick-spacing")

			resp, err := computePrice(req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().String("price", "", "price of token A in token B")
	cmd.Flags().Int32("tick", 0, "tick index")
	cmd.Flags().Uint8("decimals-a", 9, "token A decimals")
	cmd.Flags().Uint8("decimals-b", 6, "token B decimals")
	cmd.Flags().Uint16("tick-spacing", clmm.TickSpacingLow, "pool tick spacing")
	cmd.MarkFlagsMutuallyExclusive("price", "tick")
	cmd.MarkFlagsOneRequired("price", "tick")
	return cmd
}

func computePrice(req priceRequest) (PriceResponse, error) {
	if err := clmm.ValidateTickSpacing(req.tickSpacing); err != nil {
		return PriceResponse{}, err
	}

	var resp PriceResponse
	if req.fromTick {
		sp, err := clmm.TickToSqrtPrice(req.tick)
		if err != nil {
			return PriceResponse{}, err
		}
		price, err := clmm.TickToPrice(req.tick, req.decimalsA, req.decimalsB)
		if err != nil {
			return PriceResponse{}, err
		}
		resp = PriceResponse{
			Price:        price.String(),
			SqrtPriceX64: sp.String(),
			Tick:         req.tick,
			FloorTick:    req.tick,
		}
	} else {
		price, err := cosmath.LegacyNewDecFromStr(req.price)
		if err != nil {
			return PriceResponse{}, fmt.Errorf("invalid price %q: %w", req.price, err)
		}
		sp, err := clmm.PriceToSqrtPrice(price, req.decimalsA, req.decimalsB)
		if err != nil {
			return PriceResponse{}, err
		}
		tick, err := clmm.PriceToTick(price, req.decimalsA, req.decimalsB)
		if err != nil {
			return PriceResponse{}, err
		}
		floor, err := clmm.PriceToFloorTick(price, req.decimalsA, req.decimalsB)
		if err != nil {
			return PriceResponse{}, err
		}
		resp = PriceResponse{
			Price:        price.String(),
			SqrtPriceX64: sp.String(),
			Tick:         tick,
			FloorTick:    floor,
		}
	}

	initTick, err := clmm.InitializableTick(resp.Tick, req.tickSpacing)
	if err != nil {
		return PriceResponse{}, err
	}
	initPrice, err := clmm.TickToPrice(initTick, req.decimalsA, req.decimalsB)
	if err != nil {
		return PriceResponse{}, err
	}
	resp.InitializableTick = initTick
	resp.InitializablePrice = initPrice.String()
	resp.TickArrayStartIndex = clmm.TickArrayStartIndex(initTick, req.tickSpacing)
	return resp, nil
}

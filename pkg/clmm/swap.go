package clmm

import (
	"errors"
	"fmt"
	"math/big"

	cosmath "cosmossdk.io/math"
)

// SwapParams describes a single-pool swap request.
type SwapParams struct {
	Amount                 cosmath.Int
	AToB                   bool
	AmountSpecifiedIsInput bool
	SlippageToleranceBps   uint16
	// Zero means no limit beyond the pool's price bounds.
	SqrtPriceLimit cosmath.Int
}

// SwapQuote is the estimated result of a swap.
type SwapQuote struct {
	AmountIn               cosmath.Int
	AmountOut              cosmath.Int
	AToB                   bool
	AmountSpecifiedIsInput bool
	SqrtPriceLimit         cosmath.Int
	// Minimum out for exact input, maximum in for exact output.
	OtherAmountThreshold  cosmath.Int
	EstimatedFeeAmount    cosmath.Int
	EstimatedEndSqrtPrice cosmath.Int
	EstimatedEndTickIndex int32
	// Relative price move, 0.01 = 1%.
	PriceImpact cosmath.LegacyDec
}

type swapStep struct {
	amountIn  *big.Int
	amountOut *big.Int
	nextPrice *big.Int
	feeAmount *big.Int
}

// Quote walks the pool's tick segments in the swap direction and estimates the swap.
// It fails with ErrTickArraySequenceExhausted when the segments run out before the
// requested amount is filled.
func Quote(state PoolState, params SwapParams, segments []TickSegment) (SwapQuote, error) {
	if err := ValidateTickSpacing(state.TickSpacing); err != nil {
		return SwapQuote{}, err
	}
	if params.Amount.IsNil() || !params.Amount.IsPositive() {
		return SwapQuote{}, ErrZeroAmount
	}
	if params.SlippageToleranceBps > BpsDenominator {
		return SwapQuote{}, fmt.Errorf("slippage %d bps exceeds %d", params.SlippageToleranceBps, BpsDenominator)
	}
	if state.FeeRatePpm >= FeeRateDenominator {
		return SwapQuote{}, fmt.Errorf("fee rate %d ppm: %w", state.FeeRatePpm, ErrOutOfRangeFixedPoint)
	}

	startPrice := state.SqrtPrice.Big()
	if err := checkSqrtPrice(cosmath.NewIntFromBigInt(startPrice)); err != nil {
		return SwapQuote{}, err
	}
	limit, userLimit, err := resolveSqrtPriceLimit(params.SqrtPriceLimit, startPrice, params.AToB)
	if err != nil {
		return SwapQuote{}, err
	}
	seq, err := newTickSequence(segments, state.TickCurrentIndex, params.AToB)
	if err != nil {
		return SwapQuote{}, err
	}

	aToB, isInput := params.AToB, params.AmountSpecifiedIsInput
	remaining := params.Amount.BigInt()
	calculated := new(big.Int)
	fees := new(big.Int)
	currPrice := new(big.Int).Set(startPrice)
	currTick := state.TickCurrentIndex
	liquidity := state.Liquidity.Big()

	for remaining.Sign() > 0 && currPrice.Cmp(limit) != 0 {
		next, err := seq.next(currTick, aToB)
		if err != nil {
			return SwapQuote{}, err
		}
		tickPrice := tickToSqrtPriceBig(next.index)
		target := tickPrice
		if (aToB && limit.Cmp(tickPrice) > 0) || (!aToB && limit.Cmp(tickPrice) < 0) {
			target = limit
		}

		step, err := computeSwapStep(remaining, state.FeeRatePpm, liquidity, currPrice, target, isInput, aToB)
		if err != nil {
			return SwapQuote{}, err
		}
		if isInput {
			remaining.Sub(remaining, step.amountIn)
			remaining.Sub(remaining, step.feeAmount)
			calculated.Add(calculated, step.amountOut)
		} else {
			remaining.Sub(remaining, step.amountOut)
			calculated.Add(calculated, step.amountIn)
			calculated.Add(calculated, step.feeAmount)
		}
		fees.Add(fees, step.feeAmount)

		switch {
		case step.nextPrice.Cmp(tickPrice) == 0:
			if next.initialized {
				liquidity, err = crossTick(liquidity, next.net, aToB)
				if err != nil {
					return SwapQuote{}, err
				}
			}
			if aToB {
				currTick = next.index - 1
			} else {
				currTick = next.index
			}
		case step.nextPrice.Cmp(currPrice) != 0:
			currTick = sqrtPriceToTickBig(step.nextPrice)
		}
		currPrice = step.nextPrice
	}

	if remaining.Sign() > 0 {
		switch {
		case !userLimit:
			return SwapQuote{}, fmt.Errorf("%s left unfilled at the price bound: %w", remaining, ErrTickArraySequenceExhausted)
		case !isInput:
			return SwapQuote{}, fmt.Errorf("%s left unfilled: %w", remaining, ErrPartialFill)
		}
	}

	specified := new(big.Int).Sub(params.Amount.BigInt(), remaining)
	amountIn, amountOut := specified, calculated
	if !isInput {
		amountIn, amountOut = calculated, specified
	}
	inInt, err := toU64Amount(amountIn)
	if err != nil {
		return SwapQuote{}, err
	}
	outInt, err := toU64Amount(amountOut)
	if err != nil {
		return SwapQuote{}, err
	}

	quote := SwapQuote{
		AmountIn:               inInt,
		AmountOut:              outInt,
		AToB:                   aToB,
		AmountSpecifiedIsInput: isInput,
		SqrtPriceLimit:         cosmath.NewIntFromBigInt(limit),
		EstimatedFeeAmount:     cosmath.NewIntFromBigInt(fees),
		EstimatedEndSqrtPrice:  cosmath.NewIntFromBigInt(currPrice),
		EstimatedEndTickIndex:  currTick,
		PriceImpact:            priceImpact(startPrice, currPrice),
	}
	if isInput {
		quote.OtherAmountThreshold, err = MinAmountOut(outInt, params.SlippageToleranceBps)
	} else {
		quote.OtherAmountThreshold, err = MaxAmountIn(inInt, params.SlippageToleranceBps)
	}
	if err != nil {
		return SwapQuote{}, err
	}
	return quote, nil
}

// MinAmountOut applies slippage to an estimated output, rounding down.
func MinAmountOut(amountOut cosmath.Int, slippageBps uint16) (cosmath.Int, error) {
	if slippageBps > BpsDenominator {
		return cosmath.Int{}, fmt.Errorf("slippage %d bps exceeds %d", slippageBps, BpsDenominator)
	}
	return MulDivFloor(amountOut, cosmath.NewInt(int64(BpsDenominator-slippageBps)), cosmath.NewInt(BpsDenominator))
}

// MaxAmountIn applies slippage to an estimated input, rounding up.
func MaxAmountIn(amountIn cosmath.Int, slippageBps uint16) (cosmath.Int, error) {
	return MulDivCeil(amountIn, cosmath.NewInt(int64(BpsDenominator)+int64(slippageBps)), cosmath.NewInt(BpsDenominator))
}

func resolveSqrtPriceLimit(limit cosmath.Int, current *big.Int, aToB bool) (*big.Int, bool, error) {
	if limit.IsNil() || limit.IsZero() {
		if aToB {
			return MinSqrtPrice.BigInt(), false, nil
		}
		return MaxSqrtPrice.BigInt(), false, nil
	}
	if err := checkSqrtPrice(limit); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrInvalidSqrtPriceLimit, err)
	}
	l := limit.BigInt()
	if (aToB && l.Cmp(current) >= 0) || (!aToB && l.Cmp(current) <= 0) {
		return nil, false, fmt.Errorf("limit %s on the wrong side of current %s: %w", l, current, ErrInvalidSqrtPriceLimit)
	}
	return l, true, nil
}

func crossTick(liquidity *big.Int, net cosmath.Int, aToB bool) (*big.Int, error) {
	if net.IsNil() {
		return liquidity, nil
	}
	next := new(big.Int)
	if aToB {
		next.Sub(liquidity, net.BigInt())
	} else {
		next.Add(liquidity, net.BigInt())
	}
	if next.Sign() < 0 {
		return nil, fmt.Errorf("liquidity %s net %s: %w", liquidity, net, ErrLiquidityUnderflow)
	}
	if next.Cmp(maxU128Big) > 0 {
		return nil, fmt.Errorf("liquidity %s exceeds u128: %w", next, ErrMathOverflow)
	}
	return next, nil
}

func priceImpact(start, end *big.Int) cosmath.LegacyDec {
	startSq := new(big.Int).Mul(start, start)
	diff := new(big.Int).Mul(end, end)
	diff.Sub(diff, startSq).Abs(diff)
	diff.Mul(diff, pow10(cosmath.LegacyPrecision))
	return cosmath.LegacyNewDecFromBigIntWithPrec(diff.Quo(diff, startSq), cosmath.LegacyPrecision)
}

func computeSwapStep(remaining *big.Int, feeRate uint32, liquidity, current, target *big.Int, isInput, aToB bool) (swapStep, error) {
	fixed, fixedErr := amountFixedDelta(current, target, liquidity, isInput, aToB)
	exceeds := false
	if fixedErr != nil {
		if !errors.Is(fixedErr, ErrMathOverflow) {
			return swapStep{}, fixedErr
		}
		exceeds = true
	}

	amountCalc := remaining
	if isInput {
		amountCalc = new(big.Int).Mul(remaining, big.NewInt(int64(FeeRateDenominator-feeRate)))
		amountCalc.Quo(amountCalc, big.NewInt(FeeRateDenominator))
	}

	var (
		next *big.Int
		err  error
	)
	if !exceeds && amountCalc.Cmp(fixed) >= 0 {
		next = target
	} else {
		next, err = nextSqrtPrice(current, liquidity, amountCalc, isInput, aToB)
		if err != nil {
			return swapStep{}, err
		}
	}
	isMaxSwap := next.Cmp(target) == 0

	unfixed, err := amountUnfixedDelta(current, next, liquidity, isInput, aToB)
	if err != nil {
		return swapStep{}, err
	}
	if !isMaxSwap {
		fixed, err = amountFixedDelta(current, next, liquidity, isInput, aToB)
		if err != nil {
			return swapStep{}, err
		}
	}

	step := swapStep{nextPrice: next}
	if isInput {
		step.amountIn, step.amountOut = fixed, unfixed
	} else {
		step.amountIn, step.amountOut = unfixed, fixed
		if step.amountOut.Cmp(remaining) > 0 {
			step.amountOut = new(big.Int).Set(remaining)
		}
	}

	if isInput && !isMaxSwap {
		step.feeAmount = new(big.Int).Sub(remaining, step.amountIn)
	} else {
		num := new(big.Int).Mul(step.amountIn, big.NewInt(int64(feeRate)))
		step.feeAmount = divRound(num, big.NewInt(int64(FeeRateDenominator-feeRate)), true)
	}
	return step, nil
}

// the fixed side is the token whose amount the caller specified
func amountFixedDelta(current, target, liquidity *big.Int, isInput, aToB bool) (*big.Int, error) {
	if aToB == isInput {
		return checkedU64(amountDeltaA(liquidity, current, target, isInput))
	}
	return checkedU64(amountDeltaB(liquidity, current, target, isInput))
}

func amountUnfixedDelta(current, target, liquidity *big.Int, isInput, aToB bool) (*big.Int, error) {
	if aToB == isInput {
		return checkedU64(amountDeltaB(liquidity, current, target, !isInput))
	}
	return checkedU64(amountDeltaA(liquidity, current, target, !isInput))
}

func checkedU64(v *big.Int, err error) (*big.Int, error) {
	if err != nil {
		return nil, err
	}
	if v.Cmp(maxU64Big) > 0 {
		return nil, fmt.Errorf("token amount %s exceeds u64: %w", v, ErrMathOverflow)
	}
	return v, nil
}

func nextSqrtPrice(current, liquidity, amount *big.Int, isInput, aToB bool) (*big.Int, error) {
	var (
		next *big.Int
		err  error
	)
	if isInput == aToB {
		next, err = nextSqrtPriceFromA(current, liquidity, amount, isInput)
	} else {
		next, err = nextSqrtPriceFromB(current, liquidity, amount, isInput)
	}
	if err != nil {
		return nil, err
	}
	if next.Cmp(MinSqrtPrice.BigInt()) < 0 || next.Cmp(MaxSqrtPrice.BigInt()) > 0 {
		return nil, fmt.Errorf("next sqrt price %s: %w", next, ErrOutOfRangeFixedPoint)
	}
	return next, nil
}

// adding token A pushes the price down; price = L*p / (L + amount*p), rounded up
func nextSqrtPriceFromA(price, liquidity, amount *big.Int, add bool) (*big.Int, error) {
	if amount.Sign() == 0 {
		return new(big.Int).Set(price), nil
	}
	product := new(big.Int).Mul(price, amount)
	num := new(big.Int).Mul(liquidity, price)
	num.Lsh(num, u64Resolution)
	if num.BitLen() > maxIntBits || product.BitLen() > maxIntBits {
		return nil, fmt.Errorf("next sqrt price from a: %w", ErrMathOverflow)
	}
	shifted := new(big.Int).Lsh(liquidity, u64Resolution)
	den := new(big.Int)
	if add {
		den.Add(shifted, product)
	} else {
		if product.Cmp(shifted) >= 0 {
			return nil, fmt.Errorf("output exceeds liquidity: %w", ErrMathOverflow)
		}
		den.Sub(shifted, product)
	}
	return divRound(num, den, true), nil
}

// adding token B pushes the price up; price = p + amount/L, rounded down
func nextSqrtPriceFromB(price, liquidity, amount *big.Int, add bool) (*big.Int, error) {
	if liquidity.Sign() == 0 {
		return nil, fmt.Errorf("next sqrt price from b with zero liquidity: %w", ErrMathOverflow)
	}
	delta := divRound(new(big.Int).Lsh(amount, u64Resolution), liquidity, !add)
	if add {
		return delta.Add(price, delta), nil
	}
	if delta.Cmp(price) > 0 {
		return nil, fmt.Errorf("output exceeds liquidity: %w", ErrMathOverflow)
	}
	return delta.Sub(price, delta), nil
}

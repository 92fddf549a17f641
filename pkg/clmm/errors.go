package clmm

import "errors"

var (
	ErrTickOutOfBounds            = errors.New("tick out of bounds")
	ErrInvalidTickSpacing         = errors.New("invalid tick spacing")
	ErrOutOfRangeFixedPoint       = errors.New("value out of fixed-point range")
	ErrCannotDeriveFromZeroSide   = errors.New("cannot derive amounts from a token that contributes nothing to the range")
	ErrTickArraySequenceExhausted = errors.New("tick array sequence exhausted")
	ErrInvalidRange               = errors.New("invalid position range")

	ErrMathOverflow          = errors.New("fixed-point arithmetic overflow")
	ErrMintOrder             = errors.New("token mints are not in canonical order")
	ErrInvalidSqrtPriceLimit = errors.New("invalid sqrt price limit")
	ErrPartialFill           = errors.New("swap stopped at price limit before the requested output was filled")
	ErrZeroAmount            = errors.New("amount must be positive")
	ErrLiquidityUnderflow    = errors.New("liquidity underflow while crossing tick")
)

package sol

import (
	"context"
	"errors"
	"fmt"

	cosmath "cosmossdk.io/math"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// SPL token account layouts
const (
	MintAccountSize  = 82
	TokenAccountSize = 165

	mintDecimalsOffset  = 44
	tokenAccountMint    = 0
	tokenAccountAmount  = 64
	tokenAccountMinSize = tokenAccountAmount + 8
)

var ErrAccountNotFound = errors.New("account not found")

// MintDecimals reads the decimals byte of an SPL mint (Token or Token-2022 base layout).
func MintDecimals(data []byte) (uint8, error) {
	if len(data) < MintAccountSize {
		return 0, fmt.Errorf("mint account too short: %d bytes", len(data))
	}
	return data[mintDecimalsOffset], nil
}

// TokenAccountAmount reads the raw amount held by an SPL token account.
func TokenAccountAmount(data []byte) (cosmath.Int, error) {
	if len(data) < tokenAccountMinSize {
		return cosmath.Int{}, fmt.Errorf("token account too short: %d bytes", len(data))
	}
	var amount uint64
	if err := bin.NewBinDecoder(data[tokenAccountAmount:tokenAccountMinSize]).Decode(&amount); err != nil {
		return cosmath.Int{}, fmt.Errorf("failed to decode token amount: %w", err)
	}
	return cosmath.NewIntFromUint64(amount), nil
}

// TokenAccountMint returns the mint a token account holds.
func TokenAccountMint(data []byte) (solana.PublicKey, error) {
	if len(data) < tokenAccountMinSize {
		return solana.PublicKey{}, fmt.Errorf("token account too short: %d bytes", len(data))
	}
	return solana.PublicKeyFromBytes(data[tokenAccountMint : tokenAccountMint+32]), nil
}

// GetMintDecimals fetches the decimals of several mints in one round trip.
func (c *Client) GetMintDecimals(ctx context.Context, mints ...solana.PublicKey) ([]uint8, error) {
	res, err := c.GetMultipleAccountsWithOpts(ctx, mints)
	if err != nil {
		return nil, fmt.Errorf("failed to get mint accounts: %w", err)
	}
	decimals := make([]uint8, len(mints))
	for i, acc := range res.Value {
		if acc == nil || acc.Data == nil {
			return nil, fmt.Errorf("mint %s: %w", mints[i], ErrAccountNotFound)
		}
		d, err := MintDecimals(acc.Data.GetBinary())
		if err != nil {
			return nil, fmt.Errorf("mint %s: %w", mints[i], err)
		}
		decimals[i] = d
	}
	return decimals, nil
}

// GetTokenBalance returns the raw amount in a token account and the slot it was read at.
func (c *Client) GetTokenBalance(ctx context.Context, account solana.PublicKey) (cosmath.Int, uint64, error) {
	res, err := c.GetAccountInfoWithOpts(ctx, account)
	if err != nil {
		return cosmath.Int{}, 0, fmt.Errorf("failed to get token account %s: %w", account, err)
	}
	amount, err := TokenAccountAmount(res.Value.Data.GetBinary())
	if err != nil {
		return cosmath.Int{}, 0, fmt.Errorf("token account %s: %w", account, err)
	}
	return amount, res.Context.Slot, nil
}

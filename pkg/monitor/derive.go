package monitor

import (
	"errors"
	"fmt"

	cosmath "cosmossdk.io/math"
)

var errEmptyVault = errors.New("base vault is empty")

// VaultPrice derives the price of token A in token B from the raw balances of
// the two pool vaults, left holding A and right holding B.
func VaultPrice(decimalsA, decimalsB uint8) DeriveFunc {
	return func(left, right Sample) (cosmath.LegacyDec, error) {
		if decimalsA > cosmath.LegacyPrecision || decimalsB > cosmath.LegacyPrecision {
			return cosmath.LegacyDec{}, fmt.Errorf("decimals %d/%d exceed %d", decimalsA, decimalsB, cosmath.LegacyPrecision)
		}
		if !left.Value.IsPositive() {
			return cosmath.LegacyDec{}, errEmptyVault
		}
		a := cosmath.LegacyNewDecFromIntWithPrec(left.Value, int64(decimalsA))
		b := cosmath.LegacyNewDecFromIntWithPrec(right.Value, int64(decimalsB))
		return b.Quo(a), nil
	}
}

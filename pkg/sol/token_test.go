package sol

import (
	"context"
	"encoding/binary"
	"testing"

	"clmmcore/pkg/sol/soltest"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testMint  = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	testVault = solana.MustPublicKeyFromBase58("EUuUbDcafPrmVTD5M6qoJAoyyNbihBhugADAxRMn5he9")
)

func mintData(decimals uint8) []byte {
	data := make([]byte, MintAccountSize)
	data[mintDecimalsOffset] = decimals
	return data
}

func tokenAccountData(mint solana.PublicKey, amount uint64) []byte {
	data := make([]byte, TokenAccountSize)
	copy(data[0:32], mint[:])
	binary.LittleEndian.PutUint64(data[tokenAccountAmount:], amount)
	return data
}

func TestTokenLayouts(t *testing.T) {
	d, err := MintDecimals(mintData(6))
	require.NoError(t, err)
	assert.Equal(t, uint8(6), d)

	_, err = MintDecimals(make([]byte, 40))
	require.Error(t, err)

	data := tokenAccountData(testMint, 123_456_789)
	amount, err := TokenAccountAmount(data)
	require.NoError(t, err)
	assert.Equal(t, "123456789", amount.String())

	mint, err := TokenAccountMint(data)
	require.NoError(t, err)
	assert.Equal(t, testMint, mint)

	_, err = TokenAccountAmount(data[:70])
	require.Error(t, err)
}

func TestClientReadsTokenAccounts(t *testing.T) {
	srv := soltest.NewRPCServer(t, 42, map[solana.PublicKey][]byte{
		testMint:  mintData(9),
		testVault: tokenAccountData(testMint, 5_000_000_000),
	})
	client, err := NewClient(context.Background(), srv.URL, 0)
	require.NoError(t, err)

	decimals, err := client.GetMintDecimals(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, []uint8{9}, decimals)

	_, err = client.GetMintDecimals(context.Background(), testMint, solana.SystemProgramID)
	require.ErrorIs(t, err, ErrAccountNotFound)

	amount, slot, err := client.GetTokenBalance(context.Background(), testVault)
	require.NoError(t, err)
	assert.Equal(t, "5000000000", amount.String())
	assert.Equal(t, uint64(42), slot)
}

func TestGetMultipleAccountsBatches(t *testing.T) {
	accounts := make(map[solana.PublicKey][]byte)
	keys := make([]solana.PublicKey, 0, 150)
	for i := 0; i < 150; i++ {
		var key solana.PublicKey
		key[0], key[1] = byte(i), 1
		keys = append(keys, key)
		if i%2 == 0 {
			accounts[key] = mintData(uint8(i % 10))
		}
	}
	srv := soltest.NewRPCServer(t, 7, accounts)
	client, err := NewClient(context.Background(), srv.URL, 1000)
	require.NoError(t, err)

	res, err := client.GetMultipleAccountsWithOpts(context.Background(), keys)
	require.NoError(t, err)
	require.Len(t, res.Value, 150)
	assert.Equal(t, uint64(7), res.Context.Slot)
	assert.Equal(t, 2, srv.Calls("getMultipleAccounts"))
	for i, acc := range res.Value {
		if i%2 == 0 {
			require.NotNil(t, acc, "account %d", i)
		} else {
			assert.Nil(t, acc, "account %d", i)
		}
	}
}

func TestRPCPoolRoundRobin(t *testing.T) {
	pool, err := NewRPCPool(context.Background(), []string{"http://a", "http://b", "http://c"}, 10)
	require.NoError(t, err)
	require.Equal(t, 3, pool.Size())

	seen := []string{pool.GetClient().Endpoint(), pool.GetClient().Endpoint(), pool.GetClient().Endpoint(), pool.GetClient().Endpoint()}
	assert.Equal(t, []string{"http://a", "http://b", "http://c", "http://a"}, seen)

	_, err = NewRPCPool(context.Background(), nil, 10)
	require.Error(t, err)
}

package subscription

import (
	"testing"
	"time"

	"clmmcore/pkg/clmm"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotCacheSlotOrdering(t *testing.T) {
	cache := NewSnapshotCache()
	pool := solana.NewWallet().PublicKey()

	assert.True(t, cache.Update(pool, clmm.PoolState{TickCurrentIndex: 1}, 10))
	assert.False(t, cache.Update(pool, clmm.PoolState{TickCurrentIndex: 2}, 9))
	snap, ok := cache.Get(pool)
	require.True(t, ok)
	assert.Equal(t, int32(1), snap.State.TickCurrentIndex)

	// same slot replaces
	assert.True(t, cache.Update(pool, clmm.PoolState{TickCurrentIndex: 3}, 10))
	assert.True(t, cache.Update(pool, clmm.PoolState{TickCurrentIndex: 4}, 11))
	snap, _ = cache.Get(pool)
	assert.Equal(t, int32(4), snap.State.TickCurrentIndex)
	assert.Equal(t, uint64(11), snap.Slot)

	other := solana.NewWallet().PublicKey()
	cache.Update(other, clmm.PoolState{}, 1)
	assert.Equal(t, 2, cache.Size())

	cache.Remove(other)
	_, ok = cache.Get(other)
	assert.False(t, ok)

	cache.Clear()
	assert.Equal(t, 0, cache.Size())
}

func TestSnapshotCacheRecordsUpdateTime(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewSnapshotCache()
	cache.now = func() time.Time { return now }

	pool := solana.NewWallet().PublicKey()
	cache.Update(pool, clmm.PoolState{}, 2)
	now = now.Add(time.Minute)
	// an older slot leaves the snapshot and its time alone
	cache.Update(pool, clmm.PoolState{}, 1)

	snap, ok := cache.Get(pool)
	require.True(t, ok)
	assert.Equal(t, uint64(2), snap.Slot)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), snap.UpdatedAt)
}

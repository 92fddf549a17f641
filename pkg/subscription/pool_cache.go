package subscription

import (
	"sync"
	"time"

	"clmmcore/pkg/clmm"

	"github.com/gagliardetto/solana-go"
)

// PoolSnapshot is the latest decoded state of a pool and the slot it was read at
type PoolSnapshot struct {
	State     clmm.PoolState
	Slot      uint64
	UpdatedAt time.Time
}

// SnapshotCache keeps one snapshot per pool. A snapshot from an older slot never
// replaces a newer one.
type SnapshotCache struct {
	pools map[solana.PublicKey]PoolSnapshot
	mu    sync.RWMutex
	now   func() time.Time
}

// NewSnapshotCache creates an empty cache
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{
		pools: make(map[solana.PublicKey]PoolSnapshot),
		now:   time.Now,
	}
}

// Update stores state for pool unless the cache already holds a newer slot.
// It reports whether the snapshot was stored.
func (pc *SnapshotCache) Update(pool solana.PublicKey, state clmm.PoolState, slot uint64) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if cur, exists := pc.pools[pool]; exists && slot < cur.Slot {
		return false
	}
	pc.pools[pool] = PoolSnapshot{State: state, Slot: slot, UpdatedAt: pc.now()}
	return true
}

// Get retrieves a pool snapshot
func (pc *SnapshotCache) Get(pool solana.PublicKey) (PoolSnapshot, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	snap, exists := pc.pools[pool]
	return snap, exists
}

// Remove drops a pool from the cache
func (pc *SnapshotCache) Remove(pool solana.PublicKey) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	delete(pc.pools, pool)
}

// Size returns the number of cached pools
func (pc *SnapshotCache) Size() int {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	return len(pc.pools)
}

// Clear removes all pools from the cache
func (pc *SnapshotCache) Clear() {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.pools = make(map[solana.PublicKey]PoolSnapshot)
}

package subscription

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"clmmcore/pkg/clmm"
	"clmmcore/pkg/monitor"
	"clmmcore/pkg/sol"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

var testPool = solana.MustPublicKeyFromBase58("HJPjoWUrhoZzkNfRpHuieeFk9WcZWjwy6PBjZ81ngndJ")

func tokenAccount(amount uint64) []byte {
	data := make([]byte, sol.TokenAccountSize)
	binary.LittleEndian.PutUint64(data[64:], amount)
	return data
}

// tickDecoder reads the current tick from the first byte of the account.
func tickDecoder(data []byte) (clmm.PoolState, error) {
	if len(data) == 0 {
		return clmm.PoolState{}, errors.New("empty pool account")
	}
	return clmm.NewPoolState(clmm.PoolState{
		TickCurrentIndex: int32(data[0]),
		SqrtPrice:        uint128.New(0, 1),
		TickSpacing:      clmm.TickSpacingLow,
	})
}

func suppressed(t *testing.T, reg *prometheus.Registry, reason string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "clmm_monitor_suppressed_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "reason" && l.GetValue() == reason {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func confirmedAll(s *Session) func() bool {
	return func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for id := range s.handles {
			if !s.wsClient.Confirmed(id) {
				return false
			}
		}
		return len(s.handles) > 0
	}
}

func TestSessionFeedsSynchronizer(t *testing.T) {
	node := newFakeNode(t)
	session, err := NewSession(context.Background(), node.wsURL())
	require.NoError(t, err)
	defer session.Close()

	reg := prometheus.NewRegistry()
	metrics, err := monitor.NewMetrics(reg, "sol-usdc")
	require.NoError(t, err)

	events := make(chan monitor.Event, 4)
	syn := monitor.NewSynchronizer(
		session.AccountSource(vaultA, sol.TokenAccountAmount),
		session.AccountSource(vaultB, sol.TokenAccountAmount),
		monitor.VaultPrice(9, 6),
		func(ev monitor.Event) { events <- ev },
		monitor.WithMetrics(metrics),
	)
	require.NoError(t, syn.Start())
	node.expect("accountSubscribe")
	node.expect("accountSubscribe")
	require.Eventually(t, confirmedAll(session), waitFor, 5*time.Millisecond)
	assert.Equal(t, 2, session.Stats()["subscriptions"])

	node.notifyBase64(vaultA, 10, tokenAccount(1_000_000_000))
	node.notifyBase64(vaultB, 9, tokenAccount(150_000_000))
	node.notifyBase64(vaultB, 10, tokenAccount(150_000_000))

	select {
	case ev := <-events:
		assert.Equal(t, uint64(10), ev.Slot)
		assert.Equal(t, "150.000000000000000000", ev.Value.String())
	case <-time.After(waitFor):
		t.Fatal("no event")
	}

	// undecodable data reaches the synchronizer as a sample without a value
	node.notifyBase64(vaultA, 11, []byte{1, 2, 3})
	require.Eventually(t, func() bool {
		return suppressed(t, reg, "malformed") == 1
	}, waitFor, 5*time.Millisecond)
	st := syn.State()
	require.NotNil(t, st.Left)
	assert.Equal(t, uint64(10), st.Left.Slot)
	assert.Equal(t, monitor.Ready, st.Phase)

	require.NoError(t, syn.Stop())
	node.expect("accountUnsubscribe")
	node.expect("accountUnsubscribe")
	assert.Equal(t, 0, session.Stats()["subscriptions"])
}

func TestSessionWatchPool(t *testing.T) {
	node := newFakeNode(t)
	session, err := NewSession(context.Background(), node.wsURL())
	require.NoError(t, err)
	defer session.Close()

	snaps := make(chan PoolSnapshot, 8)
	session.RegisterHandler(testPool, func(pool solana.PublicKey, snap PoolSnapshot) {
		assert.Equal(t, testPool, pool)
		snaps <- snap
	})

	unsub, err := session.WatchPool(testPool, tickDecoder)
	require.NoError(t, err)
	node.expect("accountSubscribe")
	require.Eventually(t, confirmedAll(session), waitFor, 5*time.Millisecond)

	waitSnap := func() PoolSnapshot {
		t.Helper()
		select {
		case s := <-snaps:
			return s
		case <-time.After(waitFor):
			t.Fatal("no snapshot")
			return PoolSnapshot{}
		}
	}

	node.notifyBase64(testPool, 10, []byte{5})
	snap := waitSnap()
	assert.Equal(t, uint64(10), snap.Slot)
	assert.Equal(t, int32(5), snap.State.TickCurrentIndex)

	node.notifyBase64(testPool, 8, []byte{7}) // older, ignored
	node.notifyBase64(testPool, 12, nil)      // undecodable, ignored
	node.notifyBase64(testPool, 11, []byte{9})
	snap = waitSnap()
	assert.Equal(t, uint64(11), snap.Slot)
	assert.Equal(t, int32(9), snap.State.TickCurrentIndex)

	cached, ok := session.Cache().Get(testPool)
	require.True(t, ok)
	assert.Equal(t, uint64(11), cached.Slot)
	assert.Equal(t, 1, session.Stats()["cachedPools"])

	require.NoError(t, unsub())
	node.expect("accountUnsubscribe")
	_, ok = session.Cache().Get(testPool)
	assert.False(t, ok)
}

func TestSessionClose(t *testing.T) {
	node := newFakeNode(t)
	session, err := NewSession(context.Background(), node.wsURL())
	require.NoError(t, err)

	_, err = session.WatchPool(testPool, tickDecoder)
	require.NoError(t, err)
	node.expect("accountSubscribe")
	require.Eventually(t, confirmedAll(session), waitFor, 5*time.Millisecond)

	require.NoError(t, session.Close())
	node.expect("accountUnsubscribe")
	assert.False(t, session.IsConnected())
	require.NoError(t, session.Close())

	_, err = session.WatchPool(testPool, tickDecoder)
	require.ErrorIs(t, err, ErrSessionClosed)
	_, err = session.AccountSource(vaultA, sol.TokenAccountAmount).Subscribe(func(monitor.Sample) {})
	require.ErrorIs(t, err, ErrSessionClosed)
}

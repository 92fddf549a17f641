package monitor

import (
	"errors"
	"sync"
	"testing"

	cosmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualSource hands the subscribed callback to the test.
type manualSource struct {
	mu           sync.Mutex
	cb           func(Sample)
	unsubscribed int
	err          error
}

func (m *manualSource) Subscribe(cb func(Sample)) (Unsubscribe, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	m.cb = cb
	m.mu.Unlock()
	return func() error {
		m.mu.Lock()
		m.unsubscribed++
		m.mu.Unlock()
		return nil
	}, nil
}

func (m *manualSource) push(value int64, slot uint64) {
	m.mu.Lock()
	cb := m.cb
	m.mu.Unlock()
	cb(Sample{Value: cosmath.NewInt(value), Slot: slot})
}

type recorder struct {
	events []Event
}

func (r *recorder) emit(ev Event) { r.events = append(r.events, ev) }

func sum(left, right Sample) (cosmath.LegacyDec, error) {
	return cosmath.LegacyNewDecFromInt(left.Value.Add(right.Value)), nil
}

func newTestSynchronizer(t *testing.T, derive DeriveFunc) (*Synchronizer, *manualSource, *manualSource, *recorder, *Metrics) {
	t.Helper()
	left, right := &manualSource{}, &manualSource{}
	rec := &recorder{}
	metrics, err := NewMetrics(prometheus.NewRegistry(), t.Name())
	require.NoError(t, err)
	s := NewSynchronizer(left, right, derive, rec.emit, WithMetrics(metrics))
	require.NoError(t, s.Start())
	return s, left, right, rec, metrics
}

func TestSynchronizerEmitsOnlyOnConsistentSlot(t *testing.T) {
	s, left, right, rec, metrics := newTestSynchronizer(t, sum)

	left.push(100, 10)
	assert.Empty(t, rec.events)
	right.push(5, 9)
	assert.Empty(t, rec.events)
	assert.Equal(t, AwaitingConsistentPair, s.State().Phase)

	right.push(7, 10)
	require.Len(t, rec.events, 1)
	assert.Equal(t, uint64(10), rec.events[0].Slot)
	assert.True(t, rec.events[0].Value.Equal(cosmath.LegacyNewDec(107)))

	st := s.State()
	assert.Equal(t, Ready, st.Phase)
	require.NotNil(t, st.LastEmitted)
	assert.Equal(t, uint64(10), st.LastEmitted.Slot)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.emissions))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.suppressions.WithLabelValues("slot_mismatch")))
}

func TestSynchronizerDeduplicates(t *testing.T) {
	_, left, right, rec, metrics := newTestSynchronizer(t, sum)

	left.push(100, 10)
	right.push(7, 10)
	right.push(7, 10)
	require.Len(t, rec.events, 1)

	// slots advance but the derived value does not change
	left.push(100, 11)
	right.push(7, 11)
	require.Len(t, rec.events, 1)

	left.push(101, 12)
	right.push(7, 12)
	require.Len(t, rec.events, 2)
	assert.True(t, rec.events[1].Value.Equal(cosmath.LegacyNewDec(108)))

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.suppressions.WithLabelValues("unchanged")))
}

func TestSynchronizerIgnoresStaleAndMalformedSamples(t *testing.T) {
	s, left, right, rec, metrics := newTestSynchronizer(t, sum)

	left.push(100, 10)
	left.push(1, 9)
	right.cb(Sample{Slot: 10})
	assert.Empty(t, rec.events)

	st := s.State()
	require.NotNil(t, st.Left)
	assert.Equal(t, uint64(10), st.Left.Slot)
	assert.Nil(t, st.Right)

	right.push(7, 10)
	require.Len(t, rec.events, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.suppressions.WithLabelValues("stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.suppressions.WithLabelValues("malformed")))
}

func TestSynchronizerAbsorbsDeriveErrors(t *testing.T) {
	fail := true
	derive := func(left, right Sample) (cosmath.LegacyDec, error) {
		if fail {
			return cosmath.LegacyDec{}, errors.New("boom")
		}
		return sum(left, right)
	}
	_, left, right, rec, _ := newTestSynchronizer(t, derive)

	left.push(1, 1)
	right.push(1, 1)
	assert.Empty(t, rec.events)

	fail = false
	right.push(2, 1)
	require.Len(t, rec.events, 1)
}

func TestSynchronizerStop(t *testing.T) {
	s, left, right, rec, _ := newTestSynchronizer(t, sum)

	left.push(1, 5)
	require.NoError(t, s.Stop())
	right.push(1, 5)
	assert.Empty(t, rec.events)

	assert.Equal(t, 1, left.unsubscribed)
	assert.Equal(t, 1, right.unsubscribed)
	assert.Nil(t, s.State().Left)

	require.NoError(t, s.Stop())
	assert.Equal(t, 1, left.unsubscribed)
	require.ErrorIs(t, s.Start(), ErrStopped)
}

func TestSynchronizerStartErrors(t *testing.T) {
	left := &manualSource{}
	right := &manualSource{err: errors.New("dial failed")}
	s := NewSynchronizer(left, right, sum, func(Event) {})

	require.Error(t, s.Start())
	assert.Equal(t, 1, left.unsubscribed)

	right.err = nil
	require.NoError(t, s.Start())
	require.ErrorIs(t, s.Start(), ErrAlreadyStarted)
}

func TestSynchronizerConcurrentFeeds(t *testing.T) {
	_, left, right, rec, _ := newTestSynchronizer(t, sum)

	var wg sync.WaitGroup
	for slot := uint64(1); slot <= 50; slot++ {
		wg.Add(2)
		go func(slot uint64) {
			defer wg.Done()
			left.push(int64(slot), slot)
		}(slot)
		go func(slot uint64) {
			defer wg.Done()
			right.push(int64(slot), slot)
		}(slot)
	}
	wg.Wait()

	for _, ev := range rec.events {
		assert.True(t, ev.Value.Equal(cosmath.LegacyNewDec(int64(2*ev.Slot))), "slot %d value %s", ev.Slot, ev.Value)
	}
}

func TestVaultPrice(t *testing.T) {
	derive := VaultPrice(9, 6)

	price, err := derive(Sample{Value: cosmath.NewInt(2_000_000_000)}, Sample{Value: cosmath.NewInt(300_000_000)})
	require.NoError(t, err)
	assert.Equal(t, "150.000000000000000000", price.String())

	_, err = derive(Sample{Value: cosmath.ZeroInt()}, Sample{Value: cosmath.NewInt(1)})
	require.Error(t, err)
}

func TestMetricsRegistrationConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg, "sol-usdc")
	require.NoError(t, err)
	_, err = NewMetrics(reg, "sol-usdc")
	require.Error(t, err)
}

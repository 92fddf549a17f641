// Package monitor merges two asynchronously updated account feeds into one
// slot-consistent, de-duplicated stream of derived values.
package monitor

import (
	"errors"
	"fmt"
	"sync"

	cosmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Sample is one reading of a feed.
type Sample struct {
	Value cosmath.Int
	Slot  uint64
}

// Unsubscribe detaches a callback from its source.
type Unsubscribe func() error

// Source pushes samples to a callback at arbitrary times until unsubscribed.
type Source interface {
	Subscribe(func(Sample)) (Unsubscribe, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(func(Sample)) (Unsubscribe, error)

func (f SourceFunc) Subscribe(cb func(Sample)) (Unsubscribe, error) { return f(cb) }

// DeriveFunc turns a slot-consistent pair into the value being monitored.
type DeriveFunc func(left, right Sample) (cosmath.LegacyDec, error)

// Event is an emitted value and the slot both feeds agreed on.
type Event struct {
	Value cosmath.LegacyDec
	Slot  uint64
}

// EmitFunc receives events. It runs with the synchronizer lock held and must
// not call back into the synchronizer.
type EmitFunc func(Event)

// Phase is the gate position of a synchronizer.
type Phase int

const (
	// AwaitingConsistentPair means the feeds are at different slots or one is missing.
	AwaitingConsistentPair Phase = iota
	// Ready means both feeds last reported the same slot.
	Ready
)

func (p Phase) String() string {
	if p == Ready {
		return "ready"
	}
	return "awaiting"
}

// State is a copy of the synchronizer's bookkeeping.
type State struct {
	Phase       Phase
	Left        *Sample
	Right       *Sample
	LastEmitted *Event
}

var (
	ErrAlreadyStarted = errors.New("synchronizer already started")
	ErrStopped        = errors.New("synchronizer stopped")
)

type feed int

const (
	leftFeed feed = iota
	rightFeed
)

func (f feed) String() string {
	if f == leftFeed {
		return "left"
	}
	return "right"
}

// Synchronizer owns both subscriptions and the state they update. One mutex
// covers every update-check-emit sequence.
type Synchronizer struct {
	left, right Source
	derive      DeriveFunc
	emit        EmitFunc
	logger      *zap.Logger
	metrics     *Metrics

	mu      sync.Mutex
	started bool
	stopped bool
	unsubs  []Unsubscribe

	latest      [2]*Sample
	lastEmitted *Event
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Synchronizer) { s.logger = logger }
}

// WithMetrics records sample, emission and suppression counts.
func WithMetrics(m *Metrics) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

// NewSynchronizer wires two sources to derive and emit. Nothing is subscribed until Start.
func NewSynchronizer(left, right Source, derive DeriveFunc, emit EmitFunc, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		left:   left,
		right:  right,
		derive: derive,
		emit:   emit,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes to both sources. If the second subscription fails the first is undone.
func (s *Synchronizer) Start() error {
	s.mu.Lock()
	switch {
	case s.stopped:
		s.mu.Unlock()
		return ErrStopped
	case s.started:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	unsubLeft, err := s.left.Subscribe(func(sample Sample) { s.handle(leftFeed, sample) })
	if err != nil {
		s.reset()
		return fmt.Errorf("failed to subscribe left feed: %w", err)
	}
	unsubRight, err := s.right.Subscribe(func(sample Sample) { s.handle(rightFeed, sample) })
	if err != nil {
		if uerr := unsubLeft(); uerr != nil {
			s.logger.Warn("failed to unsubscribe left feed", zap.Error(uerr))
		}
		s.reset()
		return fmt.Errorf("failed to subscribe right feed: %w", err)
	}

	unsubs := []Unsubscribe{unsubLeft, unsubRight}
	s.mu.Lock()
	if s.stopped {
		// Stop ran while subscribing and found no handles to release
		s.mu.Unlock()
		_ = releaseAll(s.logger, unsubs)
		return ErrStopped
	}
	s.unsubs = unsubs
	s.mu.Unlock()
	return nil
}

func (s *Synchronizer) reset() {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
}

// Stop unsubscribes both feeds and discards the state. Callbacks arriving afterwards are ignored.
// It is safe to call more than once.
func (s *Synchronizer) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	unsubs := s.unsubs
	s.unsubs = nil
	s.latest = [2]*Sample{}
	s.lastEmitted = nil
	s.mu.Unlock()

	return releaseAll(s.logger, unsubs)
}

func releaseAll(logger *zap.Logger, unsubs []Unsubscribe) error {
	var errs []error
	for _, unsub := range unsubs {
		if err := unsub(); err != nil {
			logger.Warn("failed to unsubscribe feed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// State returns a copy of the current bookkeeping.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{Phase: s.phase()}
	if l := s.latest[leftFeed]; l != nil {
		c := *l
		st.Left = &c
	}
	if r := s.latest[rightFeed]; r != nil {
		c := *r
		st.Right = &c
	}
	if s.lastEmitted != nil {
		c := *s.lastEmitted
		st.LastEmitted = &c
	}
	return st
}

func (s *Synchronizer) phase() Phase {
	l, r := s.latest[leftFeed], s.latest[rightFeed]
	if l != nil && r != nil && l.Slot == r.Slot {
		return Ready
	}
	return AwaitingConsistentPair
}

func (s *Synchronizer) handle(f feed, sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if sample.Value.IsNil() {
		s.logger.Debug("dropping sample without value", zap.Stringer("feed", f), zap.Uint64("slot", sample.Slot))
		s.metrics.suppressed("malformed")
		return
	}
	if prev := s.latest[f]; prev != nil && sample.Slot < prev.Slot {
		s.logger.Debug("dropping out-of-order sample",
			zap.Stringer("feed", f), zap.Uint64("slot", sample.Slot), zap.Uint64("latest", prev.Slot))
		s.metrics.suppressed("stale")
		return
	}
	s.metrics.sample(f)
	stored := sample
	s.latest[f] = &stored

	if s.phase() != Ready {
		s.metrics.suppressed("slot_mismatch")
		return
	}

	left, right := *s.latest[leftFeed], *s.latest[rightFeed]
	value, err := s.derive(left, right)
	if err != nil {
		s.logger.Warn("failed to derive value", zap.Uint64("slot", sample.Slot), zap.Error(err))
		s.metrics.suppressed("derive_error")
		return
	}
	if s.lastEmitted != nil && s.lastEmitted.Value.Equal(value) {
		s.metrics.suppressed("unchanged")
		return
	}

	ev := Event{Value: value, Slot: sample.Slot}
	s.lastEmitted = &ev
	s.metrics.emitted()
	s.emit(ev)
}

// Metrics counts what a synchronizer does with incoming samples.
type Metrics struct {
	samples      *prometheus.CounterVec
	emissions    prometheus.Counter
	suppressions *prometheus.CounterVec
}

// NewMetrics builds the counters for one monitoring session and registers them on reg
// when it is not nil. The name label tells sessions sharing a registry apart.
func NewMetrics(reg prometheus.Registerer, name string) (*Metrics, error) {
	labels := prometheus.Labels{"monitor": name}
	m := &Metrics{
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "clmm_monitor_samples_total",
			Help:        "Samples accepted per feed.",
			ConstLabels: labels,
		}, []string{"feed"}),
		emissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "clmm_monitor_emitted_total",
			Help:        "Values emitted after both feeds agreed on a slot.",
			ConstLabels: labels,
		}),
		suppressions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "clmm_monitor_suppressed_total",
			Help:        "Samples that did not lead to an emission, by reason.",
			ConstLabels: labels,
		}, []string{"reason"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.samples, m.emissions, m.suppressions} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("failed to register monitor metrics: %w", err)
			}
		}
	}
	return m, nil
}

func (m *Metrics) sample(f feed) {
	if m == nil {
		return
	}
	m.samples.WithLabelValues(f.String()).Inc()
}

func (m *Metrics) emitted() {
	if m == nil {
		return
	}
	m.emissions.Inc()
}

func (m *Metrics) suppressed(reason string) {
	if m == nil {
		return
	}
	m.suppressions.WithLabelValues(reason).Inc()
}

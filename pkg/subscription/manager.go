package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"clmmcore/pkg/clmm"
	"clmmcore/pkg/monitor"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// ValueDecoder turns raw account data into a feed value
type ValueDecoder func(data []byte) (cosmath.Int, error)

// PoolDecoder turns raw pool account data into a pool snapshot
type PoolDecoder func(data []byte) (clmm.PoolState, error)

// PoolUpdateHandler is called after a newer pool snapshot is cached
type PoolUpdateHandler func(pool solana.PublicKey, snap PoolSnapshot)

// ErrSessionClosed is returned by a Session after Close
var ErrSessionClosed = errors.New("subscription session closed")

// Session owns a WebSocket connection and every subscription made through it.
// Nothing outlives Close.
type Session struct {
	wsClient *WebSocketClient
	cache    *SnapshotCache
	logger   *zap.Logger

	mu       sync.RWMutex
	handles  map[uint64]solana.PublicKey // subscription id -> account
	handlers map[solana.PublicKey]PoolUpdateHandler
	closed   bool
}

// NewSession connects to wsURL
func NewSession(ctx context.Context, wsURL string, opts ...Option) (*Session, error) {
	wsClient, err := NewWebSocketClient(ctx, wsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebSocket client: %w", err)
	}

	return &Session{
		wsClient: wsClient,
		cache:    NewSnapshotCache(),
		logger:   wsClient.logger,
		handles:  make(map[uint64]solana.PublicKey),
		handlers: make(map[solana.PublicKey]PoolUpdateHandler),
	}, nil
}

func (s *Session) subscribe(account solana.PublicKey, handler AccountUpdateHandler) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrSessionClosed
	}

	id, err := s.wsClient.SubscribeAccount(account, handler)
	if err != nil {
		return 0, fmt.Errorf("failed to subscribe to account %s: %w", account, err)
	}
	s.handles[id] = account
	s.logger.Debug("subscribed", zap.Stringer("account", account), zap.Uint64("id", id))
	return id, nil
}

func (s *Session) release(id uint64) error {
	s.mu.Lock()
	if _, ok := s.handles[id]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.handles, id)
	s.mu.Unlock()

	return s.wsClient.Unsubscribe(id)
}

// AccountSource exposes one account as a monitor feed. Data that fails to decode is
// forwarded as a sample without a value so the consumer can count it.
func (s *Session) AccountSource(account solana.PublicKey, decode ValueDecoder) monitor.Source {
	return monitor.SourceFunc(func(cb func(monitor.Sample)) (monitor.Unsubscribe, error) {
		id, err := s.subscribe(account, func(acc solana.PublicKey, data []byte, slot uint64) {
			value, err := decode(data)
			if err != nil {
				s.logger.Debug("undecodable account data", zap.Stringer("account", acc), zap.Uint64("slot", slot), zap.Error(err))
				cb(monitor.Sample{Slot: slot})
				return
			}
			cb(monitor.Sample{Value: value, Slot: slot})
		})
		if err != nil {
			return nil, err
		}
		return func() error { return s.release(id) }, nil
	})
}

// WatchPool keeps the pool's latest snapshot in the session cache
func (s *Session) WatchPool(pool solana.PublicKey, decode PoolDecoder) (monitor.Unsubscribe, error) {
	id, err := s.subscribe(pool, func(acc solana.PublicKey, data []byte, slot uint64) {
		s.handlePoolUpdate(acc, decode, data, slot)
	})
	if err != nil {
		return nil, err
	}
	return func() error {
		err := s.release(id)
		s.cache.Remove(pool)
		return err
	}, nil
}

func (s *Session) handlePoolUpdate(pool solana.PublicKey, decode PoolDecoder, data []byte, slot uint64) {
	state, err := decode(data)
	if err != nil {
		s.logger.Warn("failed to decode pool", zap.Stringer("pool", pool), zap.Uint64("slot", slot), zap.Error(err))
		return
	}
	if !s.cache.Update(pool, state, slot) {
		s.logger.Debug("ignored older pool snapshot", zap.Stringer("pool", pool), zap.Uint64("slot", slot))
		return
	}

	s.mu.RLock()
	handler := s.handlers[pool]
	s.mu.RUnlock()
	if handler != nil {
		snap, _ := s.cache.Get(pool)
		handler(pool, snap)
	}
}

// RegisterHandler registers a callback for cached updates of pool
func (s *Session) RegisterHandler(pool solana.PublicKey, handler PoolUpdateHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[pool] = handler
}

// Cache returns the session's pool snapshot cache
func (s *Session) Cache() *SnapshotCache {
	return s.cache
}

// IsConnected returns whether the WebSocket is connected
func (s *Session) IsConnected() bool {
	return s.wsClient.IsConnected()
}

// Close releases every subscription and the connection. It is safe to call twice.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ids := make([]uint64, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	s.handles = make(map[uint64]solana.PublicKey)
	s.handlers = make(map[solana.PublicKey]PoolUpdateHandler)
	s.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := s.wsClient.Unsubscribe(id); err != nil && !errors.Is(err, errNotConnected) {
			errs = append(errs, err)
		}
	}
	s.cache.Clear()
	errs = append(errs, s.wsClient.Close())
	return errors.Join(errs...)
}

// Stats returns subscription statistics
func (s *Session) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"subscriptions": len(s.handles),
		"cachedPools":   s.cache.Size(),
		"connected":     s.wsClient.IsConnected(),
		"timestamp":     time.Now().Format(time.RFC3339),
	}
}

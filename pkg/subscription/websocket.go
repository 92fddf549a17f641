package subscription

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"
)

// Supported accountSubscribe data encodings
const (
	EncodingBase64 = "base64"
	EncodingBase58 = "base58"
)

var errNotConnected = errors.New("websocket not connected")

// WebSocketClient manages the WebSocket connection to a Solana node
type WebSocketClient struct {
	url            string
	conn           *websocket.Conn
	mu             sync.RWMutex
	writeMu        sync.Mutex
	subscriptions  map[uint64]*Subscription
	nextID         uint64
	handlers       map[uint64]AccountUpdateHandler
	reconnectDelay time.Duration
	encoding       string
	commitment     string
	logger         *zap.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	connected      bool
}

// Subscription represents an account subscription
type Subscription struct {
	ID      uint64
	Account solana.PublicKey
	SubID   uint64 // Solana subscription ID, zero until confirmed
}

// AccountUpdateHandler is called with the decoded account data of each notification
type AccountUpdateHandler func(account solana.PublicKey, data []byte, slot uint64)

// RPCRequest represents a JSON-RPC request
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// RPCResponse represents a JSON-RPC response
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NotificationMessage represents a subscription notification
type NotificationMessage struct {
	JSONRPC string             `json:"jsonrpc"`
	Method  string             `json:"method"`
	Params  NotificationParams `json:"params"`
}

// NotificationParams contains subscription notification data
type NotificationParams struct {
	Result       AccountNotification `json:"result"`
	Subscription uint64              `json:"subscription"`
}

// AccountNotification contains account update data
type AccountNotification struct {
	Context Context      `json:"context"`
	Value   AccountValue `json:"value"`
}

// Context contains slot information
type Context struct {
	Slot uint64 `json:"slot"`
}

// AccountValue contains account data
type AccountValue struct {
	Data       []interface{} `json:"data"` // [encoded_data, encoding]
	Executable bool          `json:"executable"`
	Lamports   uint64        `json:"lamports"`
	Owner      string        `json:"owner"`
	RentEpoch  uint64        `json:"rentEpoch"`
}

// Option configures a WebSocketClient
type Option func(*WebSocketClient)

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *WebSocketClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithReconnectDelay sets how often a dropped connection is retried.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *WebSocketClient) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// WithEncoding sets the account data encoding requested from the node.
func WithEncoding(encoding string) Option {
	return func(c *WebSocketClient) {
		c.encoding = encoding
	}
}

// NewWebSocketClient connects to wsURL and starts the reader and reconnect loops
func NewWebSocketClient(ctx context.Context, wsURL string, opts ...Option) (*WebSocketClient, error) {
	clientCtx, cancel := context.WithCancel(ctx)

	client := &WebSocketClient{
		url:            wsURL,
		subscriptions:  make(map[uint64]*Subscription),
		handlers:       make(map[uint64]AccountUpdateHandler),
		reconnectDelay: 5 * time.Second,
		encoding:       EncodingBase64,
		commitment:     "confirmed",
		logger:         zap.NewNop(),
		ctx:            clientCtx,
		cancel:         cancel,
		nextID:         1,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.encoding != EncodingBase64 && client.encoding != EncodingBase58 {
		cancel()
		return nil, fmt.Errorf("unsupported account encoding %q", client.encoding)
	}

	if err := client.connect(); err != nil {
		cancel()
		return nil, err
	}

	go client.readMessages()
	go client.handleReconnection()

	return client, nil
}

// connect establishes the WebSocket connection
func (c *WebSocketClient) connect() error {
	conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.logger.Info("websocket connected", zap.String("url", c.url))

	return nil
}

func (c *WebSocketClient) subscribeRequest(sub *Subscription) RPCRequest {
	return RPCRequest{
		JSONRPC: "2.0",
		ID:      sub.ID,
		Method:  "accountSubscribe",
		Params: []interface{}{
			sub.Account.String(),
			map[string]interface{}{
				"encoding":   c.encoding,
				"commitment": c.commitment,
			},
		},
	}
}

// SubscribeAccount subscribes to account updates and returns the local subscription id
func (c *WebSocketClient) SubscribeAccount(account solana.PublicKey, handler AccountUpdateHandler) (uint64, error) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	sub := &Subscription{ID: id, Account: account}
	// registered before sending so the confirmation cannot race the handler
	c.subscriptions[id] = sub
	c.handlers[id] = handler
	c.mu.Unlock()

	if err := c.sendRequest(c.subscribeRequest(sub)); err != nil {
		c.mu.Lock()
		delete(c.subscriptions, id)
		delete(c.handlers, id)
		c.mu.Unlock()
		return 0, err
	}

	return id, nil
}

// Unsubscribe removes an account subscription
func (c *WebSocketClient) Unsubscribe(id uint64) error {
	c.mu.Lock()
	sub, exists := c.subscriptions[id]
	if !exists {
		c.mu.Unlock()
		return fmt.Errorf("subscription not found: %d", id)
	}
	delete(c.subscriptions, id)
	delete(c.handlers, id)

	if sub.SubID == 0 {
		// not confirmed yet, nothing to release on the node
		c.mu.Unlock()
		return nil
	}
	reqID := c.nextID
	c.nextID++
	c.mu.Unlock()

	return c.sendRequest(RPCRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "accountUnsubscribe",
		Params:  []interface{}{sub.SubID},
	})
}

// sendRequest sends a JSON-RPC request
func (c *WebSocketClient) sendRequest(req RPCRequest) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return errNotConnected
	}

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readMessages reads incoming messages until the client is closed
func (c *WebSocketClient) readMessages() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Warn("websocket read error", zap.Error(err))
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
				c.connected = false
			}
			c.mu.Unlock()
			_ = conn.Close()
			continue
		}

		c.handleMessage(message)
	}
}

// handleMessage processes incoming messages
func (c *WebSocketClient) handleMessage(data []byte) {
	var notification NotificationMessage
	if err := json.Unmarshal(data, &notification); err == nil && notification.Method == "accountNotification" {
		c.handleAccountNotification(notification)
		return
	}

	var response RPCResponse
	if err := json.Unmarshal(data, &response); err != nil {
		c.logger.Warn("failed to parse websocket message", zap.Error(err))
		return
	}

	c.handleResponse(response)
}

// handleResponse records the node's subscription id for a subscribe request
func (c *WebSocketClient) handleResponse(response RPCResponse) {
	if response.Error != nil {
		c.logger.Warn("rpc error",
			zap.Uint64("id", response.ID),
			zap.Int("code", response.Error.Code),
			zap.String("message", response.Error.Message))
		return
	}

	// unsubscribe acks carry a bool
	var subID uint64
	if err := json.Unmarshal(response.Result, &subID); err != nil {
		return
	}

	c.mu.Lock()
	if sub, exists := c.subscriptions[response.ID]; exists {
		sub.SubID = subID
	}
	c.mu.Unlock()
}

// handleAccountNotification dispatches a notification to its subscription handler
func (c *WebSocketClient) handleAccountNotification(notification NotificationMessage) {
	c.mu.RLock()
	var handler AccountUpdateHandler
	var account solana.PublicKey

	for _, sub := range c.subscriptions {
		if sub.SubID != 0 && sub.SubID == notification.Params.Subscription {
			if h, exists := c.handlers[sub.ID]; exists {
				handler = h
				account = sub.Account
			}
			break
		}
	}
	c.mu.RUnlock()

	if handler == nil {
		return
	}

	data, err := decodeAccountData(notification.Params.Result.Value.Data)
	if err != nil {
		c.logger.Warn("failed to decode account data", zap.Stringer("account", account), zap.Error(err))
		return
	}

	handler(account, data, notification.Params.Result.Context.Slot)
}

// decodeAccountData decodes the [data, encoding] pair of an account value
func decodeAccountData(value []interface{}) ([]byte, error) {
	if len(value) < 2 {
		return nil, fmt.Errorf("unexpected account data shape: %d elements", len(value))
	}
	encoded, ok := value[0].(string)
	if !ok {
		return nil, fmt.Errorf("account data is %T, not a string", value[0])
	}
	encoding, _ := value[1].(string)

	switch encoding {
	case EncodingBase64:
		return base64.StdEncoding.DecodeString(encoded)
	case EncodingBase58:
		return base58.Decode(encoded)
	default:
		return nil, fmt.Errorf("unsupported account encoding %q", encoding)
	}
}

// handleReconnection manages reconnection logic
func (c *WebSocketClient) handleReconnection() {
	ticker := time.NewTicker(c.reconnectDelay)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.IsConnected() {
				continue
			}
			c.logger.Info("attempting to reconnect websocket")
			if err := c.reconnect(); err != nil {
				c.logger.Warn("reconnection failed", zap.Error(err))
			} else {
				c.logger.Info("websocket reconnected")
			}
		}
	}
}

// reconnect dials again and resubscribes every live subscription
func (c *WebSocketClient) reconnect() error {
	if err := c.connect(); err != nil {
		return err
	}

	c.mu.Lock()
	subs := make([]*Subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		// ids from the old connection are meaningless now
		sub.SubID = 0
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		if err := c.sendRequest(c.subscribeRequest(sub)); err != nil {
			c.logger.Warn("failed to resubscribe", zap.Stringer("account", sub.Account), zap.Error(err))
		}
	}

	return nil
}

// Close closes the WebSocket connection
func (c *WebSocketClient) Close() error {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}

	return nil
}

// IsConnected returns whether the client is connected
func (c *WebSocketClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Confirmed reports whether the node acknowledged subscription id.
func (c *WebSocketClient) Confirmed(id uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sub, ok := c.subscriptions[id]
	return ok && sub.SubID != 0
}

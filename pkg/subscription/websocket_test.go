package subscription

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

var (
	vaultA = solana.MustPublicKeyFromBase58("EUuUbDcafPrmVTD5M6qoJAoyyNbihBhugADAxRMn5he9")
	vaultB = solana.MustPublicKeyFromBase58("2WLWEuKDgkDUccTpbwYp1GToYktiSB1cXvreHUwiSUVP")
)

type wsRequest struct {
	ID     uint64            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode is a minimal accountSubscribe server.
type fakeNode struct {
	*httptest.Server
	t *testing.T

	mu       sync.Mutex
	conn     *websocket.Conn
	writeMu  sync.Mutex
	nextSub  uint64
	subs     map[string]uint64 // account -> node subscription id
	requests chan wsRequest
}

func newFakeNode(t *testing.T) *fakeNode {
	t.Helper()
	n := &fakeNode{t: t, nextSub: 100, subs: make(map[string]uint64), requests: make(chan wsRequest, 64)}
	upgrader := websocket.Upgrader{}
	n.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n.mu.Lock()
		n.conn = conn
		n.mu.Unlock()
		n.serve(conn)
	}))
	t.Cleanup(n.Close)
	return n
}

func (n *fakeNode) wsURL() string {
	return "ws" + strings.TrimPrefix(n.URL, "http")
}

func (n *fakeNode) serve(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			continue
		}
		var result any
		switch req.Method {
		case "accountSubscribe":
			var account string
			_ = json.Unmarshal(req.Params[0], &account)
			n.mu.Lock()
			n.nextSub++
			n.subs[account] = n.nextSub
			result = n.nextSub
			n.mu.Unlock()
		case "accountUnsubscribe":
			result = true
		}
		n.write(conn, map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
		n.requests <- req
	}
}

func (n *fakeNode) write(conn *websocket.Conn, v any) {
	n.writeMu.Lock()
	defer n.writeMu.Unlock()
	_ = conn.WriteJSON(v)
}

// expect waits for the next request and checks its method.
func (n *fakeNode) expect(method string) wsRequest {
	n.t.Helper()
	select {
	case req := <-n.requests:
		require.Equal(n.t, method, req.Method)
		return req
	case <-time.After(waitFor):
		n.t.Fatalf("no %s request", method)
		return wsRequest{}
	}
}

func (n *fakeNode) notify(account solana.PublicKey, slot uint64, encoded, encoding string) {
	n.mu.Lock()
	conn := n.conn
	sub := n.subs[account.String()]
	n.mu.Unlock()
	n.write(conn, map[string]any{
		"jsonrpc": "2.0",
		"method":  "accountNotification",
		"params": map[string]any{
			"subscription": sub,
			"result": map[string]any{
				"context": map[string]any{"slot": slot},
				"value": map[string]any{
					"data":       []string{encoded, encoding},
					"executable": false,
					"lamports":   1,
					"owner":      "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
					"rentEpoch":  0,
				},
			},
		},
	})
}

func (n *fakeNode) notifyBase64(account solana.PublicKey, slot uint64, data []byte) {
	n.notify(account, slot, base64.StdEncoding.EncodeToString(data), EncodingBase64)
}

// drop closes the current connection from the server side.
func (n *fakeNode) drop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		_ = n.conn.Close()
	}
}

type update struct {
	account solana.PublicKey
	data    []byte
	slot    uint64
}

func collect() (AccountUpdateHandler, chan update) {
	ch := make(chan update, 16)
	return func(account solana.PublicKey, data []byte, slot uint64) {
		ch <- update{account, data, slot}
	}, ch
}

func next(t *testing.T, ch chan update) update {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(waitFor):
		t.Fatal("no update")
		return update{}
	}
}

func TestWebSocketSubscribeAndNotify(t *testing.T) {
	node := newFakeNode(t)
	client, err := NewWebSocketClient(context.Background(), node.wsURL())
	require.NoError(t, err)
	defer client.Close()
	assert.True(t, client.IsConnected())

	handler, updates := collect()
	id, err := client.SubscribeAccount(vaultA, handler)
	require.NoError(t, err)

	req := node.expect("accountSubscribe")
	assert.Equal(t, id, req.ID)
	var opts map[string]string
	require.NoError(t, json.Unmarshal(req.Params[1], &opts))
	assert.Equal(t, map[string]string{"encoding": "base64", "commitment": "confirmed"}, opts)
	require.Eventually(t, func() bool { return client.Confirmed(id) }, waitFor, 5*time.Millisecond)

	node.notifyBase64(vaultA, 77, []byte{1, 2, 3})
	u := next(t, updates)
	assert.Equal(t, vaultA, u.account)
	assert.Equal(t, []byte{1, 2, 3}, u.data)
	assert.Equal(t, uint64(77), u.slot)

	require.NoError(t, client.Unsubscribe(id))
	node.expect("accountUnsubscribe")
	require.Error(t, client.Unsubscribe(id))

	// no handler left for the old subscription
	node.notifyBase64(vaultA, 78, []byte{4})
	select {
	case u := <-updates:
		t.Fatalf("unexpected update at slot %d", u.slot)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebSocketBase58Encoding(t *testing.T) {
	node := newFakeNode(t)
	client, err := NewWebSocketClient(context.Background(), node.wsURL(), WithEncoding(EncodingBase58))
	require.NoError(t, err)
	defer client.Close()

	handler, updates := collect()
	id, err := client.SubscribeAccount(vaultB, handler)
	require.NoError(t, err)
	req := node.expect("accountSubscribe")
	assert.Contains(t, string(req.Params[1]), `"base58"`)
	require.Eventually(t, func() bool { return client.Confirmed(id) }, waitFor, 5*time.Millisecond)

	node.notify(vaultB, 5, base58.Encode([]byte("vault")), EncodingBase58)
	assert.Equal(t, []byte("vault"), next(t, updates).data)

	_, err = NewWebSocketClient(context.Background(), node.wsURL(), WithEncoding("jsonParsed"))
	require.Error(t, err)
}

func TestWebSocketReconnectResubscribes(t *testing.T) {
	node := newFakeNode(t)
	client, err := NewWebSocketClient(context.Background(), node.wsURL(), WithReconnectDelay(20*time.Millisecond))
	require.NoError(t, err)
	defer client.Close()

	handler, updates := collect()
	id, err := client.SubscribeAccount(vaultA, handler)
	require.NoError(t, err)
	node.expect("accountSubscribe")
	require.Eventually(t, func() bool { return client.Confirmed(id) }, waitFor, 5*time.Millisecond)

	node.drop()
	req := node.expect("accountSubscribe")
	assert.Equal(t, id, req.ID)
	require.Eventually(t, func() bool { return client.Confirmed(id) && client.IsConnected() }, waitFor, 5*time.Millisecond)

	node.notifyBase64(vaultA, 90, []byte{9})
	assert.Equal(t, uint64(90), next(t, updates).slot)
}

func TestDecodeAccountData(t *testing.T) {
	data, err := decodeAccountData([]interface{}{base64.StdEncoding.EncodeToString([]byte{7}), "base64"})
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, data)

	_, err = decodeAccountData([]interface{}{"x"})
	require.Error(t, err)
	_, err = decodeAccountData([]interface{}{1.0, "base64"})
	require.Error(t, err)
	_, err = decodeAccountData([]interface{}{"abc", "base64+zstd"})
	require.Error(t, err)
	_, err = decodeAccountData([]interface{}{"0OIl", "base58"})
	require.Error(t, err)
}

func TestWebSocketConnectFailure(t *testing.T) {
	_, err := NewWebSocketClient(context.Background(), "ws://127.0.0.1:1")
	require.Error(t, err)
}

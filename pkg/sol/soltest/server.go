// Package soltest serves canned Solana JSON-RPC responses for tests.
package soltest

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
)

const ownerProgram = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

// Server answers getAccountInfo, getMultipleAccounts and getProgramAccounts from an
// in-memory account set. Account owners are not tracked.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	slot     uint64
	accounts map[solana.PublicKey][]byte
	calls    map[string]int
}

// NewRPCServer starts a server that is closed when the test ends.
func NewRPCServer(t testing.TB, slot uint64, accounts map[solana.PublicKey][]byte) *Server {
	t.Helper()
	s := &Server{slot: slot, accounts: make(map[solana.PublicKey][]byte), calls: make(map[string]int)}
	for k, v := range accounts {
		s.accounts[k] = v
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// SetAccount replaces one account's data.
func (s *Server) SetAccount(key solana.PublicKey, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[key] = data
}

// SetSlot changes the slot reported in response contexts.
func (s *Server) SetSlot(slot uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slot = slot
}

// Calls returns how many requests of method were served.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Account renders data as a base64 JSON-RPC account value.
func Account(data []byte) map[string]any {
	return map[string]any{
		"data":       []string{base64.StdEncoding.EncodeToString(data), "base64"},
		"executable": false,
		"lamports":   1_000_000,
		"owner":      ownerProgram,
		"rentEpoch":  0,
	}
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     any               `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Params) == 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[req.Method]++

	var value any
	switch req.Method {
	case "getAccountInfo":
		var key solana.PublicKey
		if err := json.Unmarshal(req.Params[0], &key); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if data, ok := s.accounts[key]; ok {
			value = Account(data)
		}
	case "getMultipleAccounts":
		var keys []solana.PublicKey
		if err := json.Unmarshal(req.Params[0], &keys); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		values := make([]any, len(keys))
		for i, key := range keys {
			if data, ok := s.accounts[key]; ok {
				values[i] = Account(data)
			}
		}
		value = values
	case "getProgramAccounts":
		var opts struct {
			Filters []filter `json:"filters"`
		}
		if len(req.Params) > 1 {
			if err := json.Unmarshal(req.Params[1], &opts); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		keyed := make([]any, 0)
		for _, key := range s.sortedKeys() {
			if data := s.accounts[key]; matchAll(opts.Filters, data) {
				keyed = append(keyed, map[string]any{"pubkey": key.String(), "account": Account(data)})
			}
		}
		s.reply(w, req.ID, keyed)
		return
	default:
		http.Error(w, "unexpected method "+req.Method, http.StatusBadRequest)
		return
	}

	s.reply(w, req.ID, map[string]any{
		"context": map[string]any{"slot": s.slot},
		"value":   value,
	})
}

func (s *Server) reply(w http.ResponseWriter, id any, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	})
}

func (s *Server) sortedKeys() []solana.PublicKey {
	keys := make([]solana.PublicKey, 0, len(s.accounts))
	for k := range s.accounts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	return keys
}

type filter struct {
	DataSize uint64 `json:"dataSize"`
	Memcmp   *struct {
		Offset uint64        `json:"offset"`
		Bytes  solana.Base58 `json:"bytes"`
	} `json:"memcmp"`
}

func matchAll(filters []filter, data []byte) bool {
	for _, f := range filters {
		if f.DataSize != 0 && uint64(len(data)) != f.DataSize {
			return false
		}
		if m := f.Memcmp; m != nil {
			end := m.Offset + uint64(len(m.Bytes))
			if end > uint64(len(data)) || !bytes.Equal(data[m.Offset:end], m.Bytes) {
				return false
			}
		}
	}
	return true
}

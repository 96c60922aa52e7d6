package solana

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MockServer provides a configurable Solana RPC mock for testing. It serves
// JSON-RPC over POST and logsSubscribe sessions over websocket upgrades on
// the same URL.
type MockServer struct {
	*httptest.Server
	mu         sync.Mutex
	healthy    bool
	behindBy   int
	slot       uint64
	version    VersionInfo
	accounts   []KeyedAccount
	infos      map[string]AccountInfo   // per-address getMultipleAccounts results
	failures   map[string]int           // HTTP 500 responses before success per method
	rateLimits map[string]int           // HTTP 429 responses before success per method
	delay      map[string]time.Duration // artificial delay per method
	calls      map[string]int
	nextSubID  uint64
	sessions   map[*wsSession]struct{}
}

type wsSession struct {
	conn *websocket.Conn
	out  chan any
	quit chan struct{}
	once sync.Once
}

// NewMockServer creates a mock RPC node with healthy defaults.
func NewMockServer() *MockServer {
	m := &MockServer{}
	m.resetLocked()
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

func (m *MockServer) resetLocked() {
	m.healthy = true
	m.behindBy = 0
	m.slot = 250_000_000
	m.version = VersionInfo{SolanaCore: "1.18.26", FeatureSet: 3241752014}
	m.accounts = nil
	m.infos = make(map[string]AccountInfo)
	m.failures = make(map[string]int)
	m.rateLimits = make(map[string]int)
	m.delay = make(map[string]time.Duration)
	m.calls = make(map[string]int)
	m.sessions = make(map[*wsSession]struct{})
}

// Reset restores healthy defaults and forgets all injected faults.
func (m *MockServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

// SetHealthy controls the getHealth answer.
func (m *MockServer) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

// SetBehindBy makes getHealth report a node lagging the cluster.
func (m *MockServer) SetBehindBy(slots int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = slots == 0
	m.behindBy = slots
}

// SetSlot sets the slot returned by getSlot.
func (m *MockServer) SetSlot(slot uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slot = slot
}

// SetAccounts sets the getProgramAccounts result.
func (m *MockServer) SetAccounts(accounts []KeyedAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = accounts
}

// SetAccountInfo registers the answer getMultipleAccounts gives for address.
// Unregistered addresses come back null, like the real RPC.
func (m *MockServer) SetAccountInfo(address string, info AccountInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos[address] = info
}

// SetFailures makes the next count calls of method fail with HTTP 500.
func (m *MockServer) SetFailures(method string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = count
}

// SetRateLimits makes the next count calls of method fail with HTTP 429.
func (m *MockServer) SetRateLimits(method string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimits[method] = count
}

// SetDelay delays responses of method by d.
func (m *MockServer) SetDelay(method string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay[method] = d
}

// Calls returns how many times method has been served, fault injections
// included.
func (m *MockServer) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

var mockUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func (m *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		m.handleWS(w, r)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.calls[req.Method]++
	if d := m.delay[req.Method]; d > 0 {
		m.mu.Unlock()
		time.Sleep(d)
		m.mu.Lock()
	}
	if m.rateLimits[req.Method] > 0 {
		m.rateLimits[req.Method]--
		m.mu.Unlock()
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}
	if m.failures[req.Method] > 0 {
		m.failures[req.Method]--
		m.mu.Unlock()
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var (
		result any
		rpcErr *rpcErrorBody
	)
	switch req.Method {
	case "getHealth":
		if m.healthy {
			result = "ok"
		} else {
			rpcErr = &rpcErrorBody{Code: rpcNodeBehind, Message: "Node is behind"}
			if m.behindBy > 0 {
				rpcErr.Message = "Node is behind by " + strconv.Itoa(m.behindBy) + " slots"
			}
		}
	case "getSlot":
		result = m.slot
	case "getVersion":
		result = m.version
	case "getProgramAccounts":
		accounts := m.accounts
		if accounts == nil {
			accounts = []KeyedAccount{}
		}
		result = accounts
	case "getMultipleAccounts":
		values := make([]any, 0)
		for _, key := range requestedKeys(req.Params) {
			if info, ok := m.infos[key]; ok {
				values = append(values, info)
			} else {
				values = append(values, nil)
			}
		}
		result = map[string]any{
			"context": map[string]any{"slot": m.slot},
			"value":   values,
		}
	default:
		rpcErr = &rpcErrorBody{Code: -32601, Message: "Method not found"}
	}
	m.mu.Unlock()

	writeRPCResponse(w, req.ID, result, rpcErr)
}

// requestedKeys pulls the address list out of decoded getMultipleAccounts
// params: [[key, ...], {config}].
func requestedKeys(params any) []string {
	list, ok := params.([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	raw, ok := list[0].([]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if s, ok := k.(string); ok {
			keys = append(keys, s)
		}
	}
	return keys
}

func writeRPCResponse(w http.ResponseWriter, id uint64, result any, rpcErr *rpcErrorBody) {
	resp := map[string]any{"jsonrpc": "2.0", "id": id}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (m *MockServer) handleWS(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	if m.failures["logsSubscribe"] > 0 {
		m.failures["logsSubscribe"]--
		m.mu.Unlock()
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	m.mu.Unlock()

	conn, err := mockUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sess := &wsSession{
		conn: conn,
		out:  make(chan any, 64),
		quit: make(chan struct{}),
	}
	m.mu.Lock()
	m.sessions[sess] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.sessions, sess)
		m.mu.Unlock()
		sess.close()
	}()

	go sess.writePump()

	for {
		var req rpcRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		switch req.Method {
		case "logsSubscribe":
			m.mu.Lock()
			m.calls[req.Method]++
			m.nextSubID++
			subID := m.nextSubID
			m.mu.Unlock()
			sess.send(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": subID})
		case "logsUnsubscribe":
			m.mu.Lock()
			m.calls[req.Method]++
			m.mu.Unlock()
			sess.send(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": true})
		}
	}
}

// PushLogs delivers a logsNotification to every connected subscriber.
func (m *MockServer) PushLogs(batch LogBatch) {
	var txErr any
	if batch.Failed {
		txErr = map[string]any{"InstructionError": []any{0, "Custom"}}
	}
	notification := map[string]any{
		"jsonrpc": "2.0",
		"method":  "logsNotification",
		"params": map[string]any{
			"result": map[string]any{
				"context": map[string]any{"slot": batch.Slot},
				"value": map[string]any{
					"signature": batch.Signature,
					"err":       txErr,
					"logs":      batch.Logs,
				},
			},
			"subscription": 1,
		},
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for sess := range m.sessions {
		sess.send(notification)
	}
}

// CloseSubscribers drops every active websocket session, simulating an
// upstream disconnect.
func (m *MockServer) CloseSubscribers() {
	m.mu.Lock()
	sessions := make([]*wsSession, 0, len(m.sessions))
	for sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}

func (s *wsSession) send(v any) {
	select {
	case s.out <- v:
	case <-s.quit:
	default:
	}
}

func (s *wsSession) writePump() {
	for {
		select {
		case v := <-s.out:
			if err := s.conn.WriteJSON(v); err != nil {
				return
			}
		case <-s.quit:
			return
		}
	}
}

func (s *wsSession) close() {
	s.once.Do(func() {
		close(s.quit)
		_ = s.conn.Close()
	})
}

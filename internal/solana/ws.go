// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	subscribeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
)

// WSEndpoint derives the websocket URL for an HTTP RPC endpoint.
func WSEndpoint(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	default:
		return endpoint
	}
}

// LogStream is an active logsSubscribe session. Batches arrive on Batches
// until the stream ends; the channel is closed afterwards and Err reports
// why. The stream does not reconnect on its own.
type LogStream struct {
	conn    *websocket.Conn
	subID   uint64
	batches chan LogBatch
	quit    chan struct{}
	done    chan struct{}
	err     error
	closing sync.Once

	writeMu sync.Mutex
}

// DialLogs opens a websocket connection to the endpoint (HTTP URLs are
// rewritten to their websocket form) and subscribes to log output of
// transactions mentioning program.
func DialLogs(ctx context.Context, endpoint string, program Address, commitment Commitment) (*LogStream, error) {
	wsURL := WSEndpoint(endpoint)

	conn, res, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		status := 0
		if res != nil {
			status = res.StatusCode
		}
		return nil, &RPCError{Sentinel: ErrUnavailable, Method: "logsSubscribe", Endpoint: wsURL, Status: status, Err: err}
	}

	s := &LogStream{
		conn:    conn,
		batches: make(chan LogBatch, 16),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	pending, err := s.subscribe(ctx, program, commitment)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	go s.readLoop(pending)
	return s, nil
}

// subscribe performs the logsSubscribe handshake and returns notifications
// that raced ahead of the acknowledgement.
func (s *LogStream) subscribe(ctx context.Context, program Address, commitment Commitment) ([]LogBatch, error) {
	const reqID = 1
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params: []any{
			logsFilter{Mentions: []string{program.String()}},
			commitmentConfig{Commitment: commitment},
		},
	}
	if err := s.writeJSON(req); err != nil {
		return nil, &RPCError{Sentinel: ErrUnavailable, Method: "logsSubscribe", Err: err}
	}

	deadline := time.Now().Add(subscribeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("solana: set read deadline: %w", err)
	}
	defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()

	var pending []LogBatch
	for {
		var msg logsNotification
		if err := s.conn.ReadJSON(&msg); err != nil {
			sentinel := ErrUnavailable
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				sentinel = ErrTimeout
			}
			return nil, &RPCError{Sentinel: sentinel, Method: "logsSubscribe", Err: err}
		}
		switch {
		case msg.Method == "logsNotification" && msg.Params != nil:
			pending = append(pending, batchFrom(msg))
		case msg.ID == reqID:
			if msg.Error != nil {
				return nil, &RPCError{Sentinel: ErrRPC, Method: "logsSubscribe", Code: msg.Error.Code, Message: msg.Error.Message}
			}
			if err := json.Unmarshal(msg.Result, &s.subID); err != nil {
				return nil, &RPCError{Sentinel: ErrBadResponse, Method: "logsSubscribe", Err: err}
			}
			return pending, nil
		}
	}
}

func batchFrom(msg logsNotification) LogBatch {
	value := msg.Params.Result.Value
	return LogBatch{
		Slot:      msg.Params.Result.Context.Slot,
		Signature: value.Signature,
		Failed:    len(value.Err) > 0 && string(value.Err) != "null",
		Logs:      value.Logs,
	}
}

func (s *LogStream) readLoop(pending []LogBatch) {
	defer close(s.batches)
	defer close(s.done)

	for _, b := range pending {
		if !s.deliver(b) {
			return
		}
	}
	for {
		var msg logsNotification
		if err := s.conn.ReadJSON(&msg); err != nil {
			if !isExpectedClose(err) {
				s.err = err
			}
			return
		}
		if msg.Method != "logsNotification" || msg.Params == nil {
			continue
		}
		if !s.deliver(batchFrom(msg)) {
			return
		}
	}
}

// deliver hands a batch to the consumer, giving up when the stream is
// being torn down so the read loop can never wedge on a full channel.
func (s *LogStream) deliver(b LogBatch) bool {
	select {
	case s.batches <- b:
		return true
	case <-s.quit:
		return false
	}
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, net.ErrClosed)
}

// Batches returns the notification channel. It is closed when the stream
// ends; call Err to learn whether the ending was clean.
func (s *LogStream) Batches() <-chan LogBatch {
	return s.batches
}

// Err reports why the stream ended, or nil while it is still running or
// after a clean shutdown.
func (s *LogStream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// SubscriptionID returns the server-assigned subscription identifier.
func (s *LogStream) SubscriptionID() uint64 {
	return s.subID
}

// Close unsubscribes best-effort and tears down the connection. Safe to call
// more than once.
func (s *LogStream) Close() error {
	s.closing.Do(func() {
		close(s.quit)
		unsub := rpcRequest{
			JSONRPC: "2.0",
			ID:      2,
			Method:  "logsUnsubscribe",
			Params:  []any{s.subID},
		}
		_ = s.writeJSON(unsub)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	return nil
}

func (s *LogStream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

package executor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultExpectTimeout    = 5 * time.Second
)

var (
	// ErrInvalidWebSocketURL is returned for URLs that are not ws:// or wss://
	ErrInvalidWebSocketURL = errors.New("invalid websocket url")

	// ErrExpectTimeout is returned when no received message matched in time
	ErrExpectTimeout = errors.New("no matching websocket message before timeout")
)

// WebSocketRequest is one scripted exchange: connect, send, optionally wait
// for a message containing Expect, then close.
type WebSocketRequest struct {
	URL          string
	Headers      http.Header
	Subprotocols []string
	Send         []string
	Expect       string
	Timeout      time.Duration // bounds the wait for Expect
}

// WebSocketResult describes a finished exchange
type WebSocketResult struct {
	Status        int // handshake status, 0 when none was received
	SentCount     int
	ReceivedCount int
	SentBytes     int64
	ReceivedBytes int64
	Matched       bool
	Duration      time.Duration
}

// ExecuteWebSocket runs req. The result is returned even on error so
// partial progress can be recorded. Cancelling ctx closes the connection.
func ExecuteWebSocket(ctx context.Context, req *WebSocketRequest, tlsConfig *tls.Config) (*WebSocketResult, error) {
	startTime := time.Now()
	result := &WebSocketResult{}
	finish := func(err error) (*WebSocketResult, error) {
		result.Duration = time.Since(startTime)
		return result, err
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return finish(fmt.Errorf("%w: %v", ErrInvalidWebSocketURL, err))
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return finish(fmt.Errorf("%w: unsupported scheme %q", ErrInvalidWebSocketURL, u.Scheme))
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: DefaultHandshakeTimeout,
		TLSClientConfig:  tlsConfig,
		Subprotocols:     req.Subprotocols,
	}

	conn, resp, err := dialer.DialContext(ctx, req.URL, req.Headers)
	if resp != nil {
		result.Status = resp.StatusCode
	}
	if err != nil {
		if resp != nil {
			return finish(fmt.Errorf("connection failed (HTTP %d): %w", resp.StatusCode, err))
		}
		return finish(fmt.Errorf("connection failed: %w", err))
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for _, msg := range req.Send {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			if ctx.Err() != nil {
				return finish(ctx.Err())
			}
			return finish(fmt.Errorf("failed to send message: %w", err))
		}
		result.SentCount++
		result.SentBytes += int64(len(msg))
	}

	if req.Expect != "" {
		if err := waitFor(ctx, conn, req, result); err != nil {
			return finish(err)
		}
	}

	// Graceful close; the peer may already be gone
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	return finish(nil)
}

// waitFor reads until a message contains req.Expect or the timeout elapses
func waitFor(ctx context.Context, conn *websocket.Conn, req *WebSocketRequest, result *WebSocketResult) error {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultExpectTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set read deadline: %w", err)
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				return fmt.Errorf("%w (%s)", ErrExpectTimeout, timeout)
			}
			return fmt.Errorf("receive error: %w", err)
		}
		result.ReceivedCount++
		result.ReceivedBytes += int64(len(message))
		if strings.Contains(string(message), req.Expect) {
			result.Matched = true
			return nil
		}
	}
}

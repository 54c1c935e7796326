// Package rpc provides the JSON-RPC transport shared by the chain adapters
// (pkg/chainadapter/bitcoin, pkg/chainadapter/ethereum) and the Contract RPC
// Adapters (pkg/chainrpc). Adapted from the teacher's
// src/chainadapter/rpc/http.go: same Client/HealthTracker split and
// round-robin-plus-circuit-breaker failover, condensed to the one transport
// XRouter actually needs (HTTP; the teacher's WebSocket subscription path is
// dropped, see DESIGN.md).
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Client abstracts JSON-RPC communication with a blockchain node.
type Client interface {
	Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error)
	Close() error
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// HealthTracker records endpoint outcomes for the failover loop in Call.
type HealthTracker interface {
	RecordSuccess(endpoint string)
	RecordFailure(endpoint string)
	IsHealthy(endpoint string) bool
}

// CircuitTracker is a fixed-threshold HealthTracker: an endpoint opens its
// circuit after consecutiveFailureLimit failures in a row and half-opens
// again after cooldown.
type CircuitTracker struct {
	consecutiveFailureLimit int
	cooldown                time.Duration

	mu       sync.Mutex
	failures map[string]int
	openedAt map[string]time.Time
}

func NewCircuitTracker(failureLimit int, cooldown time.Duration) *CircuitTracker {
	return &CircuitTracker{
		consecutiveFailureLimit: failureLimit,
		cooldown:                cooldown,
		failures:                make(map[string]int),
		openedAt:                make(map[string]time.Time),
	}
}

func (t *CircuitTracker) RecordSuccess(endpoint string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[endpoint] = 0
	delete(t.openedAt, endpoint)
}

func (t *CircuitTracker) RecordFailure(endpoint string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[endpoint]++
	if t.failures[endpoint] >= t.consecutiveFailureLimit {
		t.openedAt[endpoint] = time.Now()
	}
}

func (t *CircuitTracker) IsHealthy(endpoint string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	opened, tripped := t.openedAt[endpoint]
	if !tripped {
		return true
	}
	if time.Since(opened) > t.cooldown {
		return true // half-open: let the next attempt reset or re-trip it
	}
	return false
}

// HTTPClient implements Client over HTTP JSON-RPC 2.0 with round-robin
// endpoint selection and health-based failover.
type HTTPClient struct {
	endpoints []string
	health    HealthTracker
	http      *http.Client
	nextID    atomic.Int64

	mu   sync.Mutex
	next int
}

func NewHTTPClient(endpoints []string, timeout time.Duration, health HealthTracker) (*HTTPClient, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("rpc: at least one endpoint required")
	}
	if health == nil {
		health = NewCircuitTracker(3, 30*time.Second)
	}
	return &HTTPClient{
		endpoints: endpoints,
		health:    health,
		http:      &http.Client{Timeout: timeout},
	}, nil
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) orderedEndpoints() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.endpoints))
	for i := range c.endpoints {
		out = append(out, c.endpoints[(c.next+i)%len(c.endpoints)])
	}
	c.next = (c.next + 1) % len(c.endpoints)
	return out
}

// Call tries every configured endpoint in round-robin order, skipping ones
// the health tracker currently considers open-circuit, and returns the
// first success.
func (c *HTTPClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	var lastErr error
	tried := 0
	for _, endpoint := range c.orderedEndpoints() {
		if !c.health.IsHealthy(endpoint) {
			continue
		}
		tried++
		result, err := c.callOne(ctx, endpoint, method, params)
		if err == nil {
			c.health.RecordSuccess(endpoint)
			return result, nil
		}
		c.health.RecordFailure(endpoint)
		lastErr = err
	}
	if tried == 0 {
		return nil, fmt.Errorf("rpc: all endpoints circuit-open")
	}
	return nil, fmt.Errorf("rpc: all endpoints failed: %w", lastErr)
}

func (c *HTTPClient) callOne(ctx context.Context, endpoint, method string, params interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, raw)
	}

	var parsed rpcResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("malformed json-rpc response: %w", err)
	}
	if parsed.Error != nil {
		return nil, parsed.Error
	}
	return parsed.Result, nil
}

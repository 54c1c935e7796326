// Package metrics records counts and latencies for the node's RPC calls,
// query dispatches, fee-generation attempts and swap transitions, and
// exports them in Prometheus text format. Generalized from the teacher's
// src/chainadapter/metrics package (ChainMetrics/PrometheusMetrics), which
// hand-rolled the same counter/histogram bookkeeping without an external
// client library; this package keeps that same stdlib-only shape rather
// than adopting a dependency the teacher itself didn't reach for.
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Recorder is the interface the node's collaborators (chainadapter.Registry,
// query.Manager, engine.Engine, swap.Machine callers) record observations
// against. A nil *Recorder is never passed around; callers use NoOp when
// metrics are disabled.
type Recorder interface {
	RecordRPCCall(method string, duration time.Duration, success bool)
	RecordQueryDispatch(service string, nodeCount int, duration time.Duration, success bool)
	RecordFeeGeneration(chainID string, duration time.Duration, success bool)
	RecordSwapTransition(from, to string)
	Export() string
	Reset()
}

type methodStats struct {
	total, success, failed int64
	totalDuration          time.Duration
	lastSuccess            time.Time
	lastFailure            time.Time
}

type swapTransitionKey struct{ from, to string }

// Registry is the default Recorder: in-memory counters guarded by a mutex,
// rendered as Prometheus text on Export.
type Registry struct {
	mu sync.RWMutex

	rpc   map[string]*methodStats
	query map[string]*methodStats
	fee   map[string]*methodStats

	swapTransitions map[swapTransitionKey]int64
}

func New() *Registry {
	return &Registry{
		rpc:             make(map[string]*methodStats),
		query:           make(map[string]*methodStats),
		fee:             make(map[string]*methodStats),
		swapTransitions: make(map[swapTransitionKey]int64),
	}
}

func record(m map[string]*methodStats, key string, duration time.Duration, success bool) {
	s, ok := m[key]
	if !ok {
		s = &methodStats{}
		m[key] = s
	}
	s.total++
	s.totalDuration += duration
	if success {
		s.success++
		s.lastSuccess = time.Now()
	} else {
		s.failed++
		s.lastFailure = time.Now()
	}
}

func (r *Registry) RecordRPCCall(method string, duration time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record(r.rpc, method, duration, success)
}

// RecordQueryDispatch records one Engine.Execute fan-out to nodeCount peers
// for the named service.
func (r *Registry) RecordQueryDispatch(service string, nodeCount int, duration time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record(r.query, service, duration, success)
}

func (r *Registry) RecordFeeGeneration(chainID string, duration time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record(r.fee, chainID, duration, success)
}

// RecordSwapTransition counts one swap.Machine state transition, e.g.
// "initiated"->"responded". Callers pass State.String() values.
func (r *Registry) RecordSwapTransition(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.swapTransitions[swapTransitionKey{from, to}]++
}

func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rpc = make(map[string]*methodStats)
	r.query = make(map[string]*methodStats)
	r.fee = make(map[string]*methodStats)
	r.swapTransitions = make(map[swapTransitionKey]int64)
}

// Export renders all recorded metrics in Prometheus text exposition format.
func (r *Registry) Export() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	writeFamily(&b, "xrouter_rpc_calls_total", "counter", "method", r.rpc)
	writeFamily(&b, "xrouter_query_dispatches_total", "counter", "service", r.query)
	writeFamily(&b, "xrouter_fee_generations_total", "counter", "chain", r.fee)

	if len(r.swapTransitions) > 0 {
		fmt.Fprintln(&b, "# HELP xrouter_swap_transitions_total Atomic swap state machine transitions")
		fmt.Fprintln(&b, "# TYPE xrouter_swap_transitions_total counter")
		for k, v := range r.swapTransitions {
			fmt.Fprintf(&b, "xrouter_swap_transitions_total{from=%q,to=%q} %d\n", k.from, k.to, v)
		}
	}
	return b.String()
}

func writeFamily(b *strings.Builder, name, typ, label string, m map[string]*methodStats) {
	if len(m) == 0 {
		return
	}
	fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
	for key, s := range m {
		fmt.Fprintf(b, "%s{%s=%q,status=\"success\"} %d\n", name, label, key, s.success)
		fmt.Fprintf(b, "%s{%s=%q,status=\"failure\"} %d\n", name, label, key, s.failed)
	}
	fmt.Fprintf(b, "# TYPE %s_seconds_avg gauge\n", name)
	for key, s := range m {
		avg := time.Duration(0)
		if s.total > 0 {
			avg = s.totalDuration / time.Duration(s.total)
		}
		fmt.Fprintf(b, "%s_seconds_avg{%s=%q} %f\n", name, label, key, avg.Seconds())
	}
}

// NoOp is a Recorder that discards every observation.
type NoOp struct{}

func (NoOp) RecordRPCCall(string, time.Duration, bool)            {}
func (NoOp) RecordQueryDispatch(string, int, time.Duration, bool) {}
func (NoOp) RecordFeeGeneration(string, time.Duration, bool)      {}
func (NoOp) RecordSwapTransition(string, string)                  {}
func (NoOp) Export() string                                       { return "" }
func (NoOp) Reset()                                                {}

var _ Recorder = (*Registry)(nil)
var _ Recorder = NoOp{}

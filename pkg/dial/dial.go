// Package dial deduplicates concurrent dial attempts to a given node
// (spec.md §4.D), grounded on the double-checked-locking pattern in the
// teacher's provider.ProviderRegistry.GetProvider
// (src/chainadapter/provider/registry.go: RLock check, Lock, re-check,
// create), extended with a broadcast sync.Cond so every waiter observes the
// one terminal outcome (spec.md §5).
package dial

import (
	"sync"

	"github.com/yourusername/xrouter/pkg/registry"
)

// Outcome is the terminal result of a dial attempt.
type Outcome struct {
	Connected bool
	Err       error
	TimedOut  bool
}

type inflight struct {
	cond    *sync.Cond
	done    bool
	outcome Outcome
}

// Coordinator ensures at most one dial is in flight per node at any time.
type Coordinator struct {
	mu      sync.Mutex
	pending map[registry.NodeID]*inflight
}

func New() *Coordinator {
	return &Coordinator{pending: make(map[registry.NodeID]*inflight)}
}

// Dial runs dialFn at most once concurrently per node ID. Concurrent callers
// for the same node block until the first dialer's outcome is known, then
// all observe that same outcome — none of them re-run dialFn.
func (c *Coordinator) Dial(id registry.NodeID, dialFn func() Outcome) Outcome {
	c.mu.Lock()
	if f, ok := c.pending[id]; ok {
		// Someone else is already dialing; wait for their terminal outcome.
		for !f.done {
			f.cond.Wait()
		}
		c.mu.Unlock()
		return f.outcome
	}

	f := &inflight{cond: sync.NewCond(&c.mu)}
	c.pending[id] = f
	c.mu.Unlock()

	outcome := dialFn()

	c.mu.Lock()
	f.outcome = outcome
	f.done = true
	delete(c.pending, id)
	c.mu.Unlock()
	f.cond.Broadcast()

	return outcome
}

// InFlight reports whether a dial to id is currently in progress (diagnostics/tests).
func (c *Coordinator) InFlight(id registry.NodeID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

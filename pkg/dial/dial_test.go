package dial

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yourusername/xrouter/pkg/registry"
)

func TestConcurrentDialsToSameNodeShareOneOutcome(t *testing.T) {
	c := New()
	id := registry.NodeID("n1")

	var dialCount int32
	dialFn := func() Outcome {
		atomic.AddInt32(&dialCount, 1)
		time.Sleep(20 * time.Millisecond)
		return Outcome{Connected: true}
	}

	const waiters = 10
	results := make([]Outcome, waiters)
	var wg sync.WaitGroup
	wg.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = c.Dial(id, dialFn)
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&dialCount); got != 1 {
		t.Fatalf("expected dialFn to run exactly once, ran %d times", got)
	}
	for i, r := range results {
		if !r.Connected {
			t.Fatalf("waiter %d did not observe terminal outcome: %+v", i, r)
		}
	}
	if c.InFlight(id) {
		t.Fatalf("expected no dial in flight after completion")
	}
}

func TestDialToDifferentNodesRunsIndependently(t *testing.T) {
	c := New()
	var count int32
	dialFn := func() Outcome {
		atomic.AddInt32(&count, 1)
		return Outcome{Connected: true}
	}

	var wg sync.WaitGroup
	for _, id := range []registry.NodeID{"a", "b", "c"} {
		wg.Add(1)
		go func(id registry.NodeID) {
			defer wg.Done()
			c.Dial(id, dialFn)
		}(id)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&count); got != 3 {
		t.Fatalf("expected 3 independent dials, got %d", got)
	}
}

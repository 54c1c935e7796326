package query

import (
	"testing"

	"github.com/google/uuid"
	"github.com/yourusername/xrouter/pkg/registry"
)

func TestReplyIsOneShot(t *testing.T) {
	m := NewManager()
	id := uuid.NewString()
	m.AddQuery(id, "n1")

	if !m.AddReply(id, "n1", "100") {
		t.Fatalf("expected first reply to be accepted")
	}
	if m.AddReply(id, "n1", "999") {
		t.Fatalf("expected second reply for same slot to be rejected (malleability guard)")
	}

	replies := m.Replies(id)
	if len(replies) != 1 || replies[0].Payload != "100" {
		t.Fatalf("expected payload to remain the first reply, got %+v", replies)
	}
}

func TestMostCommonReplyMajority(t *testing.T) {
	m := NewManager()
	id := uuid.NewString()
	for _, n := range []registry.NodeID{"a", "b", "c"} {
		m.AddQuery(id, n)
	}
	m.AddReply(id, "a", "100")
	m.AddReply(id, "b", "100")
	m.AddReply(id, "c", "101")

	c := m.MostCommonReply(id, nil)
	if c.Count != 2 || c.Payload != "100" {
		t.Fatalf("expected consensus 100 with count 2, got %+v", c)
	}
	if len(c.Dissenting) != 1 || c.Dissenting[0] != "c" {
		t.Fatalf("expected c to dissent, got %+v", c.Dissenting)
	}
}

func TestMostCommonReplyTieBrokenByCost(t *testing.T) {
	m := NewManager()
	id := uuid.NewString()
	for _, n := range []registry.NodeID{"a", "b"} {
		m.AddQuery(id, n)
	}
	m.AddReply(id, "a", "100")
	m.AddReply(id, "b", "200")

	cost := map[registry.NodeID]float64{"a": 0.05, "b": 0.01}
	c := m.MostCommonReply(id, func(n registry.NodeID) float64 { return cost[n] })
	if c.Payload != "200" {
		t.Fatalf("expected lower-cost group (200, cost 0.01) to win tie, got %+v", c)
	}
}

func TestMostCommonReplyIsStableAcrossCalls(t *testing.T) {
	m := NewManager()
	id := uuid.NewString()
	for _, n := range []registry.NodeID{"a", "b", "c"} {
		m.AddQuery(id, n)
	}
	m.AddReply(id, "a", "100")
	m.AddReply(id, "b", "100")
	m.AddReply(id, "c", "101")

	first := m.MostCommonReply(id, nil)
	second := m.MostCommonReply(id, nil)
	if first.Payload != second.Payload || first.Count != second.Count {
		t.Fatalf("expected stable consensus across repeated calls: %+v vs %+v", first, second)
	}
}

func TestMostCommonReplyEmptyAggregate(t *testing.T) {
	m := NewManager()
	if c := m.MostCommonReply("unknown-uuid", nil); c.Count != 0 {
		t.Fatalf("expected count 0 for empty aggregate, got %+v", c)
	}
}

func TestPurgeIsIdempotent(t *testing.T) {
	m := NewManager()
	id := uuid.NewString()
	m.AddQuery(id, "a")
	m.Purge(id)
	m.Purge(id) // must not panic
	if replies := m.Replies(id); replies != nil {
		t.Fatalf("expected no replies after purge, got %+v", replies)
	}
}

func TestAllSettled(t *testing.T) {
	m := NewManager()
	id := uuid.NewString()
	m.AddQuery(id, "a")
	m.AddQuery(id, "b")
	if m.AllSettled(id) {
		t.Fatalf("expected not all settled yet")
	}
	m.AddReply(id, "a", "x")
	m.AddError(id, "b", "timeout")
	if !m.AllSettled(id) {
		t.Fatalf("expected all settled")
	}
}

// Package scoring implements the per-node score and ban table from
// spec.md §4.C, grounded on the teacher's single-mutex-guarded-map style
// for per-key bookkeeping, generalized from "count attempts in a sliding
// window" to "accumulate a saturating integer score".
package scoring

import (
	"sync"

	"github.com/yourusername/xrouter/pkg/registry"
)

// Adjustment deltas from spec.md §4.C / §4.G / §4.H.
const (
	DeltaMinorInfraction   = -5
	DeltaUnparseableOrDial = -10
	DeltaNonResponse       = -25
	DeltaDissent           = -5
	DeltaInternalError     = -2
	DeltaPartialVerified   = 1

	DefaultBanThreshold = -200
	BanResetScore       = -30
)

// ConsensusBonus returns the +2*k bonus for membership in a consensus group
// of size k.
func ConsensusBonus(groupSize int) int { return 2 * groupSize }

// Transport is the out-of-scope P2P transport collaborator (spec.md §1):
// banning disconnects and blocks at the transport layer, a capability this
// package does not implement itself.
type Transport interface {
	Disconnect(id registry.NodeID)
	Ban(id registry.NodeID)
}

type noopTransport struct{}

func (noopTransport) Disconnect(registry.NodeID) {}
func (noopTransport) Ban(registry.NodeID)        {}

// Table is the concurrency-safe score/ban table.
type Table struct {
	mu           sync.Mutex
	scores       map[registry.NodeID]int
	banned       map[registry.NodeID]struct{}
	banThreshold int
	transport    Transport
}

// Option configures a Table at construction.
type Option func(*Table)

// WithBanThreshold overrides the default -200 ban threshold.
func WithBanThreshold(threshold int) Option {
	return func(t *Table) { t.banThreshold = threshold }
}

// WithTransport wires the transport collaborator that enforces bans.
func WithTransport(tr Transport) Option {
	return func(t *Table) { t.transport = tr }
}

func New(opts ...Option) *Table {
	t := &Table{
		scores:       make(map[registry.NodeID]int),
		banned:       make(map[registry.NodeID]struct{}),
		banThreshold: DefaultBanThreshold,
		transport:    noopTransport{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Score returns the current score for a node (0 if never observed).
func (t *Table) Score(id registry.NodeID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scores[id]
}

// Banned reports whether a node is currently banned.
func (t *Table) Banned(id registry.NodeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.banned[id]
	return ok
}

// Adjust applies delta to a node's score, checks the ban threshold, and on
// crossing it disconnects/bans at the transport layer and resets the score
// to BanResetScore (spec.md §4.C, §8 invariant: "score <= ban_threshold =>
// next observation finds the node disconnected and score reset to -30").
// Returns the resulting score and whether this call triggered a new ban.
func (t *Table) Adjust(id registry.NodeID, delta int) (score int, banned bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	newScore := t.scores[id] + delta
	if _, alreadyBanned := t.banned[id]; alreadyBanned {
		// Banned nodes stay at the reset score until explicitly rehabilitated.
		t.scores[id] = BanResetScore
		return BanResetScore, false
	}

	t.scores[id] = newScore
	if newScore <= t.banThreshold {
		t.banned[id] = struct{}{}
		t.scores[id] = BanResetScore
		t.transport.Disconnect(id)
		t.transport.Ban(id)
		return BanResetScore, true
	}
	return newScore, false
}

// Rehabilitate clears a node's ban, e.g. once the transport's ban duration
// has expired. Score remains at BanResetScore until further Adjust calls
// change it.
func (t *Table) Rehabilitate(id registry.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.banned, id)
}

// Reset clears all state for a node (used in tests and on node revocation).
func (t *Table) Reset(id registry.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.scores, id)
	delete(t.banned, id)
}

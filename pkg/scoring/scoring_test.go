package scoring

import (
	"testing"

	"github.com/yourusername/xrouter/pkg/registry"
)

type recordingTransport struct {
	disconnected []registry.NodeID
	banned       []registry.NodeID
}

func (r *recordingTransport) Disconnect(id registry.NodeID) { r.disconnected = append(r.disconnected, id) }
func (r *recordingTransport) Ban(id registry.NodeID)        { r.banned = append(r.banned, id) }

func TestAdjustCrossesBanThreshold(t *testing.T) {
	tr := &recordingTransport{}
	tbl := New(WithTransport(tr), WithBanThreshold(-200))

	id := registry.NodeID("n1")
	var lastScore int
	var lastBanned bool
	for i := 0; i < 8; i++ {
		lastScore, lastBanned = tbl.Adjust(id, DeltaNonResponse)
	}

	if !lastBanned {
		t.Fatalf("expected node to be banned after 8x -25 deltas")
	}
	if lastScore != BanResetScore {
		t.Fatalf("expected score reset to %d, got %d", BanResetScore, lastScore)
	}
	if !tbl.Banned(id) {
		t.Fatalf("expected Banned() to report true")
	}
	if len(tr.disconnected) != 1 || len(tr.banned) != 1 {
		t.Fatalf("expected exactly one disconnect+ban call, got %+v", tr)
	}
}

func TestAdjustStaysAtResetScoreWhileBanned(t *testing.T) {
	tbl := New(WithBanThreshold(-200))
	id := registry.NodeID("n1")
	tbl.Adjust(id, -250)
	if !tbl.Banned(id) {
		t.Fatalf("expected ban")
	}
	score, banned := tbl.Adjust(id, ConsensusBonus(3))
	if banned {
		t.Fatalf("should not re-trigger ban notification")
	}
	if score != BanResetScore {
		t.Fatalf("expected score pinned at %d while banned, got %d", BanResetScore, score)
	}
}

func TestRehabilitateAllowsScoreToMoveAgain(t *testing.T) {
	tbl := New(WithBanThreshold(-200))
	id := registry.NodeID("n1")
	tbl.Adjust(id, -250)
	tbl.Rehabilitate(id)
	score, banned := tbl.Adjust(id, 10)
	if banned {
		t.Fatalf("did not expect a ban")
	}
	if score != BanResetScore+10 {
		t.Fatalf("expected score to move from reset baseline, got %d", score)
	}
}

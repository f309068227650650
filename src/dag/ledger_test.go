package dag

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/intercoop/icnnode/src/common"
	"github.com/intercoop/icnnode/src/state"
)

func newTestLedger(t *testing.T) *Ledger {
	dir := t.TempDir()
	logger := common.NewTestEntry(t, "test")

	mgr := state.NewManager(filepath.Join(dir, "state.json"), filepath.Join(dir, "backups"), logger)
	if err := mgr.Load(); err != nil {
		t.Fatal(err)
	}

	return NewLedger(mgr, NewInmemIndex(), filepath.Join(dir, "logs", "dag.log"), logger)
}

func TestAppendOnly(t *testing.T) {
	ledger := newTestLedger(t)

	var before []state.VertexEntry
	for i := 0; i < 5; i++ {
		_, err := ledger.Append(state.VertexEntry{
			ProposalID: fmt.Sprintf("%d", i),
			Hash:       fmt.Sprintf("hash%d", i),
		})
		if err != nil {
			t.Fatal(err)
		}

		after, err := ledger.All()
		if err != nil {
			t.Fatal(err)
		}
		if len(after) != len(before)+1 {
			t.Fatalf("length should grow by one: %d -> %d", len(before), len(after))
		}
		if len(before) > 0 && !reflect.DeepEqual(after[:len(before)], before) {
			t.Fatalf("prior entries should be unchanged")
		}
		before = after
	}
}

func TestAppendLinksParents(t *testing.T) {
	ledger := newTestLedger(t)

	first, err := ledger.Append(state.VertexEntry{ID: "a", ProposalID: "1", Hash: "h"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := ledger.Append(state.VertexEntry{ID: "b", ProposalID: "2", Hash: "h"})
	if err != nil {
		t.Fatal(err)
	}

	if len(first.Parents) != 0 {
		t.Fatalf("first vertex should have no parents, got %v", first.Parents)
	}
	if !reflect.DeepEqual(second.Parents, []string{"a"}) {
		t.Fatalf("second vertex should point to a, got %v", second.Parents)
	}

	children, err := ledger.Children("a")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(children, []string{"b"}) {
		t.Fatalf("a should have child b, got %v", children)
	}
}

func TestAppendDuplicateID(t *testing.T) {
	ledger := newTestLedger(t)

	if _, err := ledger.Append(state.VertexEntry{ID: "a", ProposalID: "1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.Append(state.VertexEntry{ID: "a", ProposalID: "2"}); !common.IsKind(err, common.Dag) {
		t.Fatalf("expected a Dag error, got %v", err)
	}

	n, _ := ledger.Len()
	if n != 1 {
		t.Fatalf("duplicate should not be appended, got %d entries", n)
	}
}

func TestRecord(t *testing.T) {
	ledger := newTestLedger(t)

	entry, err := ledger.Record("42", state.VertexEntry{Hash: "h"})
	if err != nil {
		t.Fatal(err)
	}
	if entry.ID == "" || entry.ProposalID != "42" || entry.Timestamp.IsZero() {
		t.Fatalf("entry should be completed, got %#v", entry)
	}

	executed, _ := ledger.state.IsExecuted("42")
	if !executed {
		t.Fatalf("proposal should be in the executed set")
	}

	if _, err := ledger.Record("42", state.VertexEntry{Hash: "h"}); !common.IsKind(err, common.Dag) {
		t.Fatalf("recording twice should fail, got %v", err)
	}
	n, _ := ledger.Len()
	if n != 1 {
		t.Fatalf("expected 1 entry, got %d", n)
	}
}

func TestFind(t *testing.T) {
	ledger := newTestLedger(t)

	if _, err := ledger.Append(state.VertexEntry{ID: "a", ProposalID: "1"}); err != nil {
		t.Fatal(err)
	}

	e, err := ledger.Find("a")
	if err != nil {
		t.Fatal(err)
	}
	if e.ProposalID != "1" {
		t.Fatalf("unexpected entry %#v", e)
	}

	if _, err := ledger.Find("zzz"); !common.IsKind(err, common.Dag) {
		t.Fatalf("expected a Dag error, got %v", err)
	}
}

func TestSince(t *testing.T) {
	ledger := newTestLedger(t)

	for _, id := range []string{"a", "b", "c"} {
		if _, err := ledger.Append(state.VertexEntry{ID: id, ProposalID: id}); err != nil {
			t.Fatal(err)
		}
	}

	cases := map[int][]string{
		0:  {"a", "b", "c"},
		2:  {"c"},
		3:  {},
		10: {},
		-1: {"a", "b", "c"},
	}
	for n, expected := range cases {
		entries, err := ledger.Since(n)
		if err != nil {
			t.Fatal(err)
		}
		ids := []string{}
		for _, e := range entries {
			ids = append(ids, e.ID)
		}
		if !reflect.DeepEqual(ids, expected) {
			t.Fatalf("Since(%d): expected %v, got %v", n, expected, ids)
		}
	}
}

func TestSummary(t *testing.T) {
	ledger := newTestLedger(t)

	info, err := ledger.Summary()
	if err != nil {
		t.Fatal(err)
	}
	if info.VertexCount != 0 || info.TipCount != 0 || info.RootCount != 1 {
		t.Fatalf("unexpected empty summary %#v", info)
	}

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b"} {
		_, err := ledger.Append(state.VertexEntry{
			ID:         id,
			ProposalID: id,
			Timestamp:  t0.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	info, err = ledger.Summary()
	if err != nil {
		t.Fatal(err)
	}
	if info.VertexCount != 2 || info.TipCount != 1 || info.Tips[0].ID != "b" {
		t.Fatalf("unexpected summary %#v", info)
	}
	if !info.GenesisTime.Equal(t0) || !info.LatestUpdate.Equal(t0.Add(time.Minute)) {
		t.Fatalf("unexpected timestamps %v %v", info.GenesisTime, info.LatestUpdate)
	}
}

func TestDetail(t *testing.T) {
	ledger := newTestLedger(t)

	for _, id := range []string{"a", "b"} {
		if _, err := ledger.Append(state.VertexEntry{ID: id, ProposalID: id, Hash: "h"}); err != nil {
			t.Fatal(err)
		}
	}

	d, err := ledger.Detail("a")
	if err != nil {
		t.Fatal(err)
	}
	if d.Height != 0 || !reflect.DeepEqual(d.Children, []string{"b"}) || len(d.Parents) != 0 {
		t.Fatalf("unexpected detail %#v", d)
	}

	nodeID, _ := ledger.state.NodeID()
	if d.Proposer != nodeID {
		t.Fatalf("proposer should be the node id, got %s", d.Proposer)
	}

	remote := &Vertex{ID: "r", ProposalID: "9", Hash: "h", Timestamp: time.Now(), Submitter: "peer"}
	if _, err := ledger.Index().PutRemote(remote); err != nil {
		t.Fatal(err)
	}
	d, err = ledger.Detail("r")
	if err != nil {
		t.Fatal(err)
	}
	if d.Scope != "remote" || d.Proposer != "peer" {
		t.Fatalf("unexpected remote detail %#v", d)
	}

	if _, err := ledger.Detail("zzz"); !common.IsKind(err, common.Dag) {
		t.Fatalf("expected a Dag error, got %v", err)
	}
}

func TestReadLog(t *testing.T) {
	ledger := newTestLedger(t)

	content, err := ledger.ReadLog()
	if err != nil {
		t.Fatal(err)
	}
	if content != NoLogMessage {
		t.Fatalf("expected %q, got %q", NoLogMessage, content)
	}

	if _, err := ledger.Append(state.VertexEntry{ID: "a", ProposalID: "42", Hash: "cafe"}); err != nil {
		t.Fatal(err)
	}

	content, err = ledger.ReadLog()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(content, "Vertex ID: a, Proposal: 42, Hash: cafe") {
		t.Fatalf("unexpected log %q", content)
	}
}

func TestSync(t *testing.T) {
	ledger := newTestLedger(t)

	if _, err := ledger.Append(state.VertexEntry{ID: "a", ProposalID: "1"}); err != nil {
		t.Fatal(err)
	}

	fresh := NewLedger(ledger.state, NewInmemIndex(), ledger.logPath, common.NewTestEntry(t, "test"))
	if err := fresh.Sync(); err != nil {
		t.Fatal(err)
	}
	if n, _ := fresh.Index().Len(); n != 1 {
		t.Fatalf("index should hold 1 vertex, got %d", n)
	}
}

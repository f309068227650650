package executor

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/intercoop/icnnode/src/common"
	"github.com/intercoop/icnnode/src/config"
	"github.com/intercoop/icnnode/src/dag"
	"github.com/intercoop/icnnode/src/engine"
	"github.com/intercoop/icnnode/src/federation"
	"github.com/intercoop/icnnode/src/queue"
	"github.com/intercoop/icnnode/src/state"
)

const validProposal = `proposal {
  title: "Buy a tractor"
  description: "The farm needs a tractor"
}
`

type recordingBroadcaster struct {
	l       sync.Mutex
	entries []state.VertexEntry
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, entry state.VertexEntry) federation.Report {
	b.l.Lock()
	defer b.l.Unlock()
	b.entries = append(b.entries, entry)
	return federation.Report{}
}

func (b *recordingBroadcaster) Entries() []state.VertexEntry {
	b.l.Lock()
	defer b.l.Unlock()
	return append([]state.VertexEntry{}, b.entries...)
}

type testNode struct {
	conf        *config.Config
	store       *queue.Store
	state       *state.Manager
	ledger      *dag.Ledger
	engine      *engine.InmemEngine
	broadcaster *recordingBroadcaster
	coord       *Coordinator
	dispatcher  *Dispatcher
}

func newTestNode(t *testing.T, handler engine.Handler) *testNode {
	conf := config.NewTestConfig(t)
	if err := conf.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	logger := conf.Logger()

	mgr := state.NewManager(conf.StateFile(), conf.BackupDir(), logger)
	if err := mgr.Load(); err != nil {
		t.Fatal(err)
	}

	store := queue.NewStore(conf.QueueDir(), conf.ExecutedDir(), conf.RejectedLog(), logger)
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}

	ledger := dag.NewLedger(mgr, dag.NewInmemIndex(), conf.DagLog(), logger)
	eng := engine.NewInmemEngine(handler, logger)
	bc := &recordingBroadcaster{}

	coord := NewCoordinator(conf, store, ledger, mgr, eng, bc, logger)

	return &testNode{
		conf:        conf,
		store:       store,
		state:       mgr,
		ledger:      ledger,
		engine:      eng,
		broadcaster: bc,
		coord:       coord,
		dispatcher:  NewDispatcher(coord, logger),
	}
}

func (n *testNode) writeQueued(t *testing.T, name, content string) string {
	path := filepath.Join(n.conf.QueueDir(), name)
	if err := ioutil.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (n *testNode) queueFiles(t *testing.T) []string {
	files, err := ioutil.ReadDir(n.conf.QueueDir())
	if err != nil {
		t.Fatal(err)
	}
	names := []string{}
	for _, f := range files {
		names = append(names, f.Name())
	}
	return names
}

func (n *testNode) vertexCount(t *testing.T) int {
	c, err := n.ledger.Len()
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func succeed(vertexID string) engine.Handler {
	return engine.FuncHandler{
		Execute: func(ctx context.Context, content []byte, opts engine.Options) (*engine.Result, error) {
			return &engine.Result{StatusCode: 0, VertexID: vertexID, Output: "done"}, nil
		},
	}
}

func TestSweepExecutesPendingProposal(t *testing.T) {
	n := newTestNode(t, succeed(""))
	n.writeQueued(t, "proposal_42_pending.dsl", validProposal)

	processed, err := n.dispatcher.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if processed != 1 {
		t.Fatalf("expected 1 processed proposal, got %d", processed)
	}

	if _, err := os.Stat(filepath.Join(n.conf.ExecutedDir(), "proposal_42_completed.dsl")); err != nil {
		t.Fatalf("proposal should be archived: %v", err)
	}
	if names := n.queueFiles(t); !reflect.DeepEqual(names, []string{"proposal_42_completed.dsl"}) {
		t.Fatalf("queue file should be marked completed, got %v", names)
	}

	executed, _ := n.state.IsExecuted("42")
	if !executed {
		t.Fatalf("42 should be in the executed set")
	}

	vertices, _ := n.ledger.All()
	if len(vertices) != 1 || vertices[0].ProposalID != "42" {
		t.Fatalf("expected one vertex for 42, got %#v", vertices)
	}
	if vertices[0].Hash == "" {
		t.Fatalf("vertex should carry the file fingerprint")
	}

	if len(n.broadcaster.Entries()) != 1 {
		t.Fatalf("vertex should be broadcast once")
	}

	path, content, err := LatestOutput(n.conf.OutputDir(), "42")
	if err != nil || path == "" {
		t.Fatalf("execution output should be stored (%v)", err)
	}
	res, err := ReadOutput(content)
	if err != nil {
		t.Fatal(err)
	}
	if res.ProposalID != "42" || res.Output != "done" || res.Vertex() != vertices[0].ID {
		t.Fatalf("unexpected stored result %#v", res)
	}
}

func TestRejectsMissingField(t *testing.T) {
	n := newTestNode(t, succeed(""))
	n.writeQueued(t, "proposal_7_pending.dsl", "proposal {\n  title: \"No description\"\n}\n")

	if _, err := n.dispatcher.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}

	if names := n.queueFiles(t); !reflect.DeepEqual(names, []string{"proposal_7_rejected.dsl"}) {
		t.Fatalf("proposal should be marked rejected, got %v", names)
	}

	log, err := ioutil.ReadFile(n.conf.RejectedLog())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(log), "Rejected proposal: 7, Reason: "+ReasonMissingDescription) {
		t.Fatalf("unexpected rejection log %q", log)
	}

	if n.vertexCount(t) != 0 {
		t.Fatalf("no vertex should be appended")
	}
	if n.engine.Executions() != 0 || n.engine.Validations() != 0 {
		t.Fatalf("engine should never be invoked")
	}
}

func TestRejectsOnEngineDryRun(t *testing.T) {
	n := newTestNode(t, engine.FuncHandler{
		Validate: func(ctx context.Context, content []byte, opts engine.Options) error {
			if !opts.Simulate {
				t.Errorf("dry run should be in simulate mode")
			}
			return common.NewErr(common.Validation, "unknown opcode")
		},
	})
	path := n.writeQueued(t, "proposal_8.dsl", validProposal)

	_, err := n.dispatcher.Dispatch(context.Background(), path, false)
	if !common.IsKind(err, common.Validation) {
		t.Fatalf("expected a Validation error, got %v", err)
	}

	if names := n.queueFiles(t); !reflect.DeepEqual(names, []string{"proposal_8_rejected.dsl"}) {
		t.Fatalf("proposal should be marked rejected, got %v", names)
	}
	if n.engine.Executions() != 0 {
		t.Fatalf("engine should not execute a rejected proposal")
	}
}

func TestForceSkipsValidation(t *testing.T) {
	n := newTestNode(t, succeed(""))
	path := n.writeQueued(t, "proposal_9_pending.dsl", "not a structured payload")

	res, err := n.dispatcher.Dispatch(context.Background(), path, true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success() {
		t.Fatalf("expected success, got %#v", res)
	}
	if n.engine.Validations() != 0 {
		t.Fatalf("validation should be bypassed")
	}
}

func TestEngineFailureMarksFailed(t *testing.T) {
	n := newTestNode(t, engine.FuncHandler{
		Execute: func(ctx context.Context, content []byte, opts engine.Options) (*engine.Result, error) {
			return &engine.Result{StatusCode: 2, Output: "boom"}, nil
		},
	})
	path := n.writeQueued(t, "proposal_5_pending.dsl", validProposal)

	res, err := n.dispatcher.Dispatch(context.Background(), path, false)
	if err != nil {
		t.Fatalf("a non-zero status code is a result, not an error: %v", err)
	}
	if res.StatusCode != 2 || res.VertexID != nil {
		t.Fatalf("unexpected result %#v", res)
	}

	if names := n.queueFiles(t); !reflect.DeepEqual(names, []string{"proposal_5_failed.dsl"}) {
		t.Fatalf("proposal should be marked failed, got %v", names)
	}
	if _, err := os.Stat(filepath.Join(n.conf.ExecutedDir(), "proposal_5_completed.dsl")); !os.IsNotExist(err) {
		t.Fatalf("failed proposal should not be archived")
	}
	if n.vertexCount(t) != 0 {
		t.Fatalf("no vertex should be appended")
	}
	if executed, _ := n.state.IsExecuted("5"); executed {
		t.Fatalf("failed proposal should not be in the executed set")
	}
}

func TestEngineErrorMarksFailed(t *testing.T) {
	n := newTestNode(t, engine.FuncHandler{
		Execute: func(ctx context.Context, content []byte, opts engine.Options) (*engine.Result, error) {
			return nil, common.NewErr(common.Execution, "interpreter crashed")
		},
	})
	path := n.writeQueued(t, "proposal_6_pending.dsl", validProposal)

	if _, err := n.dispatcher.Dispatch(context.Background(), path, false); !common.IsKind(err, common.Execution) {
		t.Fatalf("expected an Execution error, got %v", err)
	}
	if names := n.queueFiles(t); !reflect.DeepEqual(names, []string{"proposal_6_failed.dsl"}) {
		t.Fatalf("proposal should be marked failed, got %v", names)
	}
}

func TestIdempotence(t *testing.T) {
	n := newTestNode(t, succeed(""))
	path := n.writeQueued(t, "proposal_42_pending.dsl", validProposal)

	if _, err := n.dispatcher.Dispatch(context.Background(), path, false); err != nil {
		t.Fatal(err)
	}

	// A stale copy of the pending file shows up again.
	again := n.writeQueued(t, "proposal_42_pending.dsl", validProposal)

	_, err := n.dispatcher.Dispatch(context.Background(), again, true)
	if !IsAlreadyProcessed(err) {
		t.Fatalf("expected the proposal to be skipped, got %v", err)
	}

	if n.engine.Executions() != 1 {
		t.Fatalf("engine should run once, ran %d times", n.engine.Executions())
	}
	if n.vertexCount(t) != 1 {
		t.Fatalf("expected 1 vertex, got %d", n.vertexCount(t))
	}

	processed, err := n.dispatcher.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if processed != 0 {
		t.Fatalf("sweep should skip the executed proposal, processed %d", processed)
	}
}

func TestConcurrentDispatch(t *testing.T) {
	release := make(chan struct{})
	n := newTestNode(t, engine.FuncHandler{
		Execute: func(ctx context.Context, content []byte, opts engine.Options) (*engine.Result, error) {
			<-release
			return &engine.Result{}, nil
		},
	})
	path := n.writeQueued(t, "proposal_42_pending.dsl", validProposal)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.dispatcher.Dispatch(context.Background(), path, false)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		n.dispatcher.Sweep(context.Background())
	}()

	close(release)
	wg.Wait()

	if n.engine.Executions() != 1 {
		t.Fatalf("engine should run once, ran %d times", n.engine.Executions())
	}
	if n.vertexCount(t) != 1 {
		t.Fatalf("expected 1 vertex, got %d", n.vertexCount(t))
	}

	archived, _ := ioutil.ReadDir(n.conf.ExecutedDir())
	if len(archived) != 1 {
		t.Fatalf("expected 1 archived file, got %d", len(archived))
	}
}

func TestLedgerFailureLeavesNoPartialOutcome(t *testing.T) {
	n := newTestNode(t, succeed("taken"))

	if _, err := n.ledger.Append(state.VertexEntry{ID: "taken", ProposalID: "other"}); err != nil {
		t.Fatal(err)
	}

	path := n.writeQueued(t, "proposal_11_pending.dsl", validProposal)

	_, err := n.dispatcher.Dispatch(context.Background(), path, false)
	if !common.IsKind(err, common.Dag) {
		t.Fatalf("expected a Dag error, got %v", err)
	}

	if _, err := os.Stat(filepath.Join(n.conf.ExecutedDir(), "proposal_11_completed.dsl")); !os.IsNotExist(err) {
		t.Fatalf("archive copy should be removed")
	}
	if names := n.queueFiles(t); !reflect.DeepEqual(names, []string{"proposal_11_failed.dsl"}) {
		t.Fatalf("proposal should be marked failed, got %v", names)
	}
	if executed, _ := n.state.IsExecuted("11"); executed {
		t.Fatalf("proposal should not be in the executed set")
	}
	if len(n.broadcaster.Entries()) != 0 {
		t.Fatalf("nothing should be broadcast")
	}
}

func TestExecuteOutsideQueue(t *testing.T) {
	n := newTestNode(t, succeed(""))

	path := filepath.Join(t.TempDir(), "budget.dsl")
	if err := ioutil.WriteFile(path, []byte(validProposal), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := n.coord.Execute(context.Background(), path, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.ProposalID != "budget" {
		t.Fatalf("id should fall back to the file stem, got %s", res.ProposalID)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file outside the queue should stay in place: %v", err)
	}
	if executed, _ := n.state.IsExecuted("budget"); !executed {
		t.Fatalf("budget should be in the executed set")
	}
}

func TestExecuteMissingFile(t *testing.T) {
	n := newTestNode(t, succeed(""))

	_, err := n.coord.Execute(context.Background(), filepath.Join(n.conf.QueueDir(), "proposal_1.dsl"), false)
	if !common.IsKind(err, common.Execution) {
		t.Fatalf("expected an Execution error, got %v", err)
	}
}

func TestProductionOptions(t *testing.T) {
	var seen engine.Options
	n := newTestNode(t, engine.FuncHandler{
		Execute: func(ctx context.Context, content []byte, opts engine.Options) (*engine.Result, error) {
			seen = opts
			return &engine.Result{}, nil
		},
	})
	if err := ioutil.WriteFile(n.conf.Keyfile(), []byte("key"), 0600); err != nil {
		t.Fatal(err)
	}

	path := n.writeQueued(t, "proposal_1.dsl", validProposal)
	if _, err := n.dispatcher.Dispatch(context.Background(), path, false); err != nil {
		t.Fatal(err)
	}

	if seen.Simulate || !seen.UseStdlib || seen.StorageBackend != engine.StorageFile {
		t.Fatalf("unexpected options %#v", seen)
	}
	if seen.StoragePath != n.conf.StorageDir() || seen.IdentityPath != n.conf.Keyfile() {
		t.Fatalf("unexpected paths %#v", seen)
	}
}

// interruptedRun leaves a proposal as a crash inside commit would: the queue
// file Executing, optionally the archive copy and optionally the vertex.
func (n *testNode) interruptedRun(t *testing.T, id string, archived, recorded bool) {
	path := n.writeQueued(t, "proposal_"+id+"_executing.dsl", validProposal)
	if archived {
		if _, err := n.store.Archive(id, path); err != nil {
			t.Fatal(err)
		}
	}
	if recorded {
		if _, err := n.ledger.Record(id, state.VertexEntry{Hash: "h" + id}); err != nil {
			t.Fatal(err)
		}
	}
}

func (n *testNode) archivedFiles(t *testing.T) []string {
	files, err := ioutil.ReadDir(n.conf.ExecutedDir())
	if err != nil {
		t.Fatal(err)
	}
	names := []string{}
	for _, f := range files {
		names = append(names, f.Name())
	}
	return names
}

func TestRecoverAfterRecord(t *testing.T) {
	n := newTestNode(t, succeed(""))
	n.interruptedRun(t, "5", true, true)

	if err := n.coord.Recover(); err != nil {
		t.Fatal(err)
	}

	if names := n.queueFiles(t); !reflect.DeepEqual(names, []string{"proposal_5_completed.dsl"}) {
		t.Fatalf("recorded proposal should be marked completed, got %v", names)
	}
	if names := n.archivedFiles(t); !reflect.DeepEqual(names, []string{"proposal_5_completed.dsl"}) {
		t.Fatalf("archive copy should be kept, got %v", names)
	}
	if executed, _ := n.state.IsExecuted("5"); !executed {
		t.Fatalf("5 should be in the executed set")
	}
	if n.vertexCount(t) != 1 {
		t.Fatalf("recovery must not append vertices")
	}
	if status, _ := n.store.Index().Get("5"); status != queue.Completed {
		t.Fatalf("index should say Completed, got %s", status)
	}
}

func TestRecoverAfterRecordWithoutArchive(t *testing.T) {
	n := newTestNode(t, succeed(""))
	n.interruptedRun(t, "7", false, true)

	if err := n.coord.Recover(); err != nil {
		t.Fatal(err)
	}

	if names := n.queueFiles(t); !reflect.DeepEqual(names, []string{"proposal_7_completed.dsl"}) {
		t.Fatalf("recorded proposal should be marked completed, got %v", names)
	}
	if _, err := n.store.FindArchived("7"); err != nil {
		t.Fatalf("recorded proposal should be archived: %v", err)
	}
}

func TestRecoverBeforeRecord(t *testing.T) {
	n := newTestNode(t, succeed(""))
	n.interruptedRun(t, "6", true, false)

	if err := n.coord.Recover(); err != nil {
		t.Fatal(err)
	}

	if names := n.queueFiles(t); !reflect.DeepEqual(names, []string{"proposal_6_failed.dsl"}) {
		t.Fatalf("unrecorded proposal should be marked failed, got %v", names)
	}
	if names := n.archivedFiles(t); len(names) != 0 {
		t.Fatalf("archive copy should be removed, got %v", names)
	}
	if executed, _ := n.state.IsExecuted("6"); executed {
		t.Fatalf("6 must not join the executed set without a vertex")
	}
	if n.vertexCount(t) != 0 {
		t.Fatalf("no vertex should exist")
	}
	if status, _ := n.store.Index().Get("6"); status != queue.Failed {
		t.Fatalf("index should say Failed, got %s", status)
	}
}

func TestRecoverBeforeArchive(t *testing.T) {
	n := newTestNode(t, succeed(""))
	n.interruptedRun(t, "8", false, false)

	if err := n.coord.Recover(); err != nil {
		t.Fatal(err)
	}

	if names := n.queueFiles(t); !reflect.DeepEqual(names, []string{"proposal_8_failed.dsl"}) {
		t.Fatalf("interrupted proposal should be marked failed, got %v", names)
	}
}

func TestRecoverStrayArchiveCopy(t *testing.T) {
	n := newTestNode(t, succeed(""))

	// An archive copy with neither a queue file nor a vertex.
	if err := ioutil.WriteFile(filepath.Join(n.conf.ExecutedDir(), "proposal_3_completed.dsl"), []byte(validProposal), 0644); err != nil {
		t.Fatal(err)
	}

	if err := n.coord.Recover(); err != nil {
		t.Fatal(err)
	}

	if names := n.archivedFiles(t); len(names) != 0 {
		t.Fatalf("stray archive copy should leave the archive, got %v", names)
	}
	if names := n.queueFiles(t); !reflect.DeepEqual(names, []string{"proposal_3_failed.dsl"}) {
		t.Fatalf("stray archive copy should return to the queue as failed, got %v", names)
	}
	if executed, _ := n.state.IsExecuted("3"); executed {
		t.Fatalf("3 must not join the executed set without a vertex")
	}
}

// renameBreakingIndex removes the queue file of a proposal while its vertex
// is indexed, so that the final Completed rename of a commit fails.
type renameBreakingIndex struct {
	*dag.InmemIndex
	queueDir string
}

func (i *renameBreakingIndex) Put(v *dag.Vertex) error {
	os.Remove(filepath.Join(i.queueDir, queue.FileName(v.ProposalID, queue.Executing)))
	return i.InmemIndex.Put(v)
}

func TestCompletedRenameFailureStillReports(t *testing.T) {
	n := newTestNode(t, succeed(""))
	n.coord.ledger = dag.NewLedger(n.state, &renameBreakingIndex{
		InmemIndex: dag.NewInmemIndex(),
		queueDir:   n.conf.QueueDir(),
	}, n.conf.DagLog(), n.conf.Logger())

	path := n.writeQueued(t, "proposal_4_pending.dsl", validProposal)

	res, err := n.coord.Execute(context.Background(), path, false)
	if !common.IsKind(err, common.Queue) {
		t.Fatalf("expected a Queue error, got %v", err)
	}
	if res == nil || res.Vertex() == "" {
		t.Fatalf("recorded proposal should return its result, got %#v", res)
	}
	if executed, _ := n.state.IsExecuted("4"); !executed {
		t.Fatalf("4 should be in the executed set")
	}
	if len(n.broadcaster.Entries()) != 1 {
		t.Fatalf("recorded vertex should be broadcast")
	}
	out, _, err := LatestOutput(n.conf.OutputDir(), "4")
	if err != nil || out == "" {
		t.Fatalf("output should be stored (%v)", err)
	}
}

func TestTrace(t *testing.T) {
	n := newTestNode(t, engine.FuncHandler{
		Execute: func(ctx context.Context, content []byte, opts engine.Options) (*engine.Result, error) {
			if opts.Trace {
				return &engine.Result{Output: "step 1\nstep 2"}, nil
			}
			return &engine.Result{Output: "done"}, nil
		},
	})
	path := n.writeQueued(t, "proposal_42_pending.dsl", validProposal)
	if _, err := n.dispatcher.Dispatch(context.Background(), path, false); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := n.coord.Trace(context.Background(), "42", &buf); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if !strings.Contains(out, "Execution Output for Proposal 42:") || !strings.Contains(out, `"done"`) {
		t.Fatalf("stored output should be printed, got %q", out)
	}
	if !strings.Contains(out, "Trace Output:") || !strings.Contains(out, "step 2") {
		t.Fatalf("trace output should be printed, got %q", out)
	}

	if n.vertexCount(t) != 1 {
		t.Fatalf("tracing must not append vertices")
	}

	if err := n.coord.Trace(context.Background(), "404", &buf); !common.IsKind(err, common.Execution) {
		t.Fatalf("expected an Execution error, got %v", err)
	}
}

func TestCheckStructure(t *testing.T) {
	cases := map[string]string{
		validProposal:                       "",
		"{ transfer 10 }":                   "",
		"no braces":                         ReasonMissingStructure,
		"proposal { description: \"x\" }":   ReasonMissingTitle,
		"proposal { title: \"x\" }":         ReasonMissingDescription,
	}
	for content, expected := range cases {
		if got := CheckStructure([]byte(content)); got != expected {
			t.Fatalf("%q: expected %q, got %q", content, expected, got)
		}
	}
}

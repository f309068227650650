package watch

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/intercoop/icnnode/src/config"
	"github.com/intercoop/icnnode/src/dag"
	"github.com/intercoop/icnnode/src/engine"
	"github.com/intercoop/icnnode/src/executor"
	"github.com/intercoop/icnnode/src/queue"
	"github.com/intercoop/icnnode/src/state"
)

const validProposal = `proposal {
  title: "Buy a tractor"
  description: "The farm needs a tractor"
}
`

type testNode struct {
	conf       *config.Config
	state      *state.Manager
	ledger     *dag.Ledger
	engine     *engine.InmemEngine
	dispatcher *executor.Dispatcher
}

func newTestNode(t *testing.T) *testNode {
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
	ledger := dag.NewLedger(mgr, nil, conf.DagLog(), logger)
	eng := engine.NewInmemEngine(engine.FuncHandler{}, logger)
	coord := executor.NewCoordinator(conf, store, ledger, mgr, eng, nil, logger)

	return &testNode{
		conf:       conf,
		state:      mgr,
		ledger:     ledger,
		engine:     eng,
		dispatcher: executor.NewDispatcher(coord, logger),
	}
}

func (n *testNode) newLoop() *Loop {
	logger := n.conf.Logger()
	watcher := NewQueueWatcher(n.conf.QueueDir(), logger)
	watcher.Settle = 20 * time.Millisecond
	poller := NewDagPoller(n.ledger, n.conf.PollInterval, logger)
	return NewLoop(watcher, poller, n.dispatcher, n.conf.MaxExec, logger)
}

// eventually polls cond until it holds or the timeout expires.
func eventually(t *testing.T, timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestQueueWatcherReportsSettledFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewQueueWatcher(dir, config.NewTestConfig(t).Logger())
	w.Settle = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Event, 10)
	done := make(chan error)
	go func() { done <- w.Run(ctx, out) }()

	// Give the watch time to be set up.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "proposal_1.dsl")
	for i := 0; i < 3; i++ {
		if err := ioutil.WriteFile(path, []byte(validProposal), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := ioutil.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-out:
		if ev.Kind != FileChanged || ev.Path != path {
			t.Errorf("unexpected event %v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Errorf("no event received")
	}

	// Writes in one burst are coalesced, other extensions are ignored.
	select {
	case ev := <-out:
		t.Errorf("unexpected second event %v", ev)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestQueueWatcherMissingDir(t *testing.T) {
	w := NewQueueWatcher(filepath.Join(t.TempDir(), "nope"), config.NewTestConfig(t).Logger())

	if err := w.Run(context.Background(), make(chan Event)); err == nil {
		t.Fatalf("watching a missing directory should fail")
	}
}

func TestSettlerReportsFiredTimerOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := newSettler(10 * time.Millisecond)
	defer st.stop()

	st.touch(ctx, "proposal_1.dsl")
	// Let the first timer fire; its callback blocks on ready.
	time.Sleep(50 * time.Millisecond)
	// A change after the timer fired starts a fresh quiet period.
	st.touch(ctx, "proposal_1.dsl")

	reported := 0
	for i := 0; i < 2; i++ {
		select {
		case p := <-st.ready:
			if st.settled(p) {
				reported++
			}
		case <-time.After(time.Second):
			t.Fatalf("expected two timer deliveries, got %d", i)
		}
	}

	if reported != 1 {
		t.Fatalf("file should be reported once, got %d", reported)
	}
	if len(st.pending) != 0 {
		t.Fatalf("no timer should remain pending, got %d", len(st.pending))
	}
}

func TestSettlerCoalescesBursts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := newSettler(50 * time.Millisecond)
	defer st.stop()

	for i := 0; i < 5; i++ {
		st.touch(ctx, "proposal_2.dsl")
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case p := <-st.ready:
		if !st.settled(p) {
			t.Fatalf("the only timer should be current")
		}
	case <-time.After(time.Second):
		t.Fatalf("burst should settle")
	}

	select {
	case p := <-st.ready:
		t.Fatalf("unexpected second delivery for %s", p.path)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestDagPollerReportsNewVertices(t *testing.T) {
	n := newTestNode(t)

	if _, err := n.ledger.Append(state.VertexEntry{ProposalID: "old"}); err != nil {
		t.Fatal(err)
	}

	p := NewDagPoller(n.ledger, 10*time.Millisecond, n.conf.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Event, 10)
	done := make(chan error)
	go func() { done <- p.Run(ctx, out) }()

	time.Sleep(30 * time.Millisecond)
	for _, id := range []string{"1", "2"} {
		if _, err := n.ledger.Append(state.VertexEntry{ProposalID: id}); err != nil {
			t.Fatal(err)
		}
	}

	got := []string{}
	timeout := time.After(3 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-out:
			got = append(got, ev.Vertex.ProposalID)
		case <-timeout:
			t.Fatalf("expected 2 events, got %v", got)
		}
	}

	cancel()
	<-done

	if got[0] != "1" || got[1] != "2" {
		t.Fatalf("vertices should be reported in order, got %v", got)
	}
}

func TestLoopDispatchesNewFiles(t *testing.T) {
	n := newTestNode(t)
	l := n.newLoop()

	var (
		mu     sync.Mutex
		events []Event
	)
	l.OnEvent = func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	if err := ioutil.WriteFile(filepath.Join(n.conf.QueueDir(), "proposal_42_pending.dsl"), []byte(validProposal), 0644); err != nil {
		t.Fatal(err)
	}

	archived := filepath.Join(n.conf.ExecutedDir(), "proposal_42_completed.dsl")
	ok := eventually(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		sawVertex := false
		for _, ev := range events {
			if ev.Kind == NewVertex && ev.Vertex.ProposalID == "42" {
				sawVertex = true
			}
		}
		_, err := os.Stat(archived)
		return sawVertex && err == nil
	})

	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if !ok {
		t.Fatalf("proposal should be executed and its vertex reported")
	}
	if c := n.engine.Executions(); c != 1 {
		t.Fatalf("engine should run once, ran %d times", c)
	}
}

func TestDaemonSweeps(t *testing.T) {
	n := newTestNode(t)
	d := NewDaemon(n.dispatcher, time.Hour, n.conf.Logger())

	ticks := make(chan time.Time)
	d.timerFactory = func(dur time.Duration) <-chan time.Time {
		if dur == 0 {
			c := make(chan time.Time, 1)
			c <- time.Now()
			return c
		}
		return ticks
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- d.Run(ctx) }()

	// The first sweep runs on start, on an empty queue.
	time.Sleep(50 * time.Millisecond)

	if err := ioutil.WriteFile(filepath.Join(n.conf.QueueDir(), "proposal_1.dsl"), []byte(validProposal), 0644); err != nil {
		t.Fatal(err)
	}
	d.Trigger()

	ok := eventually(t, 3*time.Second, func() bool {
		executed, _ := n.state.IsExecuted("1")
		return executed
	})

	if err := ioutil.WriteFile(filepath.Join(n.conf.QueueDir(), "proposal_2.dsl"), []byte(validProposal), 0644); err != nil {
		t.Fatal(err)
	}
	ticks <- time.Now()

	ok2 := eventually(t, 3*time.Second, func() bool {
		executed, _ := n.state.IsExecuted("2")
		return executed
	})

	cancel()
	<-done

	if !ok || !ok2 {
		t.Fatalf("both proposals should be executed (triggered: %v, ticked: %v)", ok, ok2)
	}
}

func TestDispatchable(t *testing.T) {
	cases := map[string]bool{
		"/q/proposal_1.dsl":           true,
		"/q/proposal_1_pending.dsl":   true,
		"/q/budget.dsl":               true,
		"/q/proposal_1_executing.dsl": false,
		"/q/proposal_1_rejected.dsl":  false,
	}
	for path, expected := range cases {
		if got := dispatchable(path); got != expected {
			t.Fatalf("%s: expected %v, got %v", path, expected, got)
		}
	}
}

package watch

import (
	"context"

	"github.com/intercoop/icnnode/src/executor"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Handler is called by the Loop for every event, in arrival order.
type Handler func(Event)

// Loop multiplexes the QueueWatcher and the DagPoller. Every settled pending
// file is handed to the Dispatcher in a detached task; at most maxExec tasks
// run at once, and files that find the pool full are left to the next sweep.
type Loop struct {
	watcher    *QueueWatcher
	poller     *DagPoller
	dispatcher *executor.Dispatcher
	maxExec    int

	// OnEvent, if set, observes every event.
	OnEvent Handler
	// OnSaturated, if set, is called when a file could not be dispatched
	// because the pool was full.
	OnSaturated func()

	logger *logrus.Entry
}

// NewLoop creates a Loop. dispatcher may be nil, in which case events are
// only reported.
func NewLoop(watcher *QueueWatcher,
	poller *DagPoller,
	dispatcher *executor.Dispatcher,
	maxExec int,
	logger *logrus.Entry) *Loop {

	if maxExec <= 0 {
		maxExec = 1
	}

	return &Loop{
		watcher:    watcher,
		poller:     poller,
		dispatcher: dispatcher,
		maxExec:    maxExec,
		logger:     logger.WithField("prefix", "watch"),
	}
}

// Run starts both producers and consumes their events until ctx is
// cancelled. It waits for detached executions before returning.
func (l *Loop) Run(ctx context.Context) error {
	files := make(chan Event)
	vertices := make(chan Event)

	producers, pctx := errgroup.WithContext(ctx)
	producers.Go(func() error { return l.watcher.Run(pctx, files) })
	producers.Go(func() error { return l.poller.Run(pctx, vertices) })

	workers := new(errgroup.Group)
	workers.SetLimit(l.maxExec)

	l.logger.Info("Watch loop started")

	// Each channel preserves its own order; the two are merged in arrival
	// order.
	for done := false; !done; {
		select {
		case ev := <-files:
			l.handle(ev)
			if l.dispatcher != nil && dispatchable(ev.Path) {
				path := ev.Path
				ok := workers.TryGo(func() error {
					l.dispatcher.DispatchAndLog(ctx, path)
					return nil
				})
				if !ok {
					l.logger.WithField("file", path).Warn("Execution pool full, leaving file to the sweep")
					if l.OnSaturated != nil {
						l.OnSaturated()
					}
				}
			}
		case ev := <-vertices:
			l.handle(ev)
		case <-pctx.Done():
			done = true
		}
	}

	workers.Wait()
	err := producers.Wait()

	l.logger.Info("Watch loop stopped")

	return err
}

func (l *Loop) handle(ev Event) {
	l.logger.WithFields(logrus.Fields{
		"kind":   ev.Kind,
		"path":   ev.Path,
		"vertex": ev.Vertex.ID,
	}).Debug("Event")

	if l.OnEvent != nil {
		l.OnEvent(ev)
	}
}

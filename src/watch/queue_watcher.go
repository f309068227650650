package watch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/intercoop/icnnode/src/common"
	"github.com/intercoop/icnnode/src/queue"
	"github.com/sirupsen/logrus"
)

// DefaultSettle is the quiet period a file must observe before it is
// reported.
const DefaultSettle = 250 * time.Millisecond

// QueueWatcher reports proposal files created or modified in a directory.
// Bursts of writes to the same file are coalesced: a file is reported once
// each time it stops changing for Settle.
type QueueWatcher struct {
	dir    string
	Settle time.Duration
	logger *logrus.Entry
}

// NewQueueWatcher creates a QueueWatcher over dir.
func NewQueueWatcher(dir string, logger *logrus.Entry) *QueueWatcher {
	return &QueueWatcher{
		dir:    dir,
		Settle: DefaultSettle,
		logger: logger.WithField("prefix", "watch"),
	}
}

// Run watches the directory until ctx is cancelled, sending one event per
// settled file on out. It fails with a Queue error if the watch cannot be
// set up.
func (w *QueueWatcher) Run(ctx context.Context, out chan<- Event) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return common.WrapErr(common.Queue, err, "Failed to create watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return common.WrapErr(common.Queue, err, "Failed to watch %s", w.dir)
	}

	w.logger.WithField("dir", w.dir).Debug("Watching proposal queue")

	st := newSettler(w.Settle)
	defer st.stop()

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !queue.IsProposalFile(ev.Name) {
				continue
			}
			st.touch(ctx, ev.Name)
		case p := <-st.ready:
			if !st.settled(p) {
				continue
			}
			select {
			case out <- Event{Kind: FileChanged, Time: time.Now().UTC(), Path: p.path}:
			case <-ctx.Done():
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Watcher error")
		case <-ctx.Done():
			return nil
		}
	}
}

// pendingFile is a file waiting for its quiet period to elapse.
type pendingFile struct {
	path  string
	timer *time.Timer
}

// settler coalesces bursts of changes per path. Every pending path has one
// current timer; a timer that fired before being superseded delivers a stale
// pendingFile, which settled rejects.
type settler struct {
	delay   time.Duration
	pending map[string]*pendingFile
	ready   chan *pendingFile
}

func newSettler(delay time.Duration) *settler {
	return &settler{
		delay:   delay,
		pending: make(map[string]*pendingFile),
		ready:   make(chan *pendingFile),
	}
}

// touch restarts the quiet period of path.
func (s *settler) touch(ctx context.Context, path string) {
	if cur, ok := s.pending[path]; ok && cur.timer.Stop() {
		cur.timer.Reset(s.delay)
		return
	}

	p := &pendingFile{path: path}
	p.timer = time.AfterFunc(s.delay, func() {
		select {
		case s.ready <- p:
		case <-ctx.Done():
		}
	})
	s.pending[path] = p
}

// settled reports whether p is the current timer of its path and forgets it.
func (s *settler) settled(p *pendingFile) bool {
	if s.pending[p.path] != p {
		return false
	}
	delete(s.pending, p.path)
	return true
}

func (s *settler) stop() {
	for _, p := range s.pending {
		p.timer.Stop()
	}
}

// dispatchable reports whether a reported file may hold a proposal waiting
// for execution: a pending file, or a file that does not follow the naming
// convention yet.
func dispatchable(path string) bool {
	_, status, err := queue.ParseFileName(filepath.Base(path))
	if err != nil {
		return true
	}
	return status == queue.Pending
}

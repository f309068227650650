package watch

import (
	"context"
	"time"

	"github.com/intercoop/icnnode/src/dag"
	"github.com/sirupsen/logrus"
)

// DagPoller compares the ledger length at a fixed interval and reports every
// vertex appended since the previous tick.
type DagPoller struct {
	ledger   *dag.Ledger
	interval time.Duration
	logger   *logrus.Entry
}

// NewDagPoller creates a DagPoller.
func NewDagPoller(ledger *dag.Ledger, interval time.Duration, logger *logrus.Entry) *DagPoller {
	return &DagPoller{
		ledger:   ledger,
		interval: interval,
		logger:   logger.WithField("prefix", "watch"),
	}
}

// Run polls until ctx is cancelled. Vertices already present when Run starts
// are not reported.
func (p *DagPoller) Run(ctx context.Context, out chan<- Event) error {
	last, err := p.ledger.Len()
	if err != nil {
		return err
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := p.ledger.Len()
			if err != nil {
				p.logger.WithError(err).Warn("Reading ledger length")
				continue
			}
			if n <= last {
				continue
			}
			entries, err := p.ledger.Since(last)
			if err != nil {
				p.logger.WithError(err).Warn("Reading new vertices")
				continue
			}
			for _, e := range entries {
				select {
				case out <- Event{Kind: NewVertex, Time: time.Now().UTC(), Vertex: e}:
				case <-ctx.Done():
					return nil
				}
			}
			last = n
		case <-ctx.Done():
			return nil
		}
	}
}

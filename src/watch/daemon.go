package watch

import (
	"context"
	"time"

	"github.com/intercoop/icnnode/src/executor"
	"github.com/sirupsen/logrus"
)

type timerFactory func(time.Duration) <-chan time.Time

// Daemon sweeps the proposal queue at a fixed interval. A sweep can also be
// requested early with Trigger.
type Daemon struct {
	dispatcher   *executor.Dispatcher
	interval     time.Duration
	timerFactory timerFactory
	triggerCh    chan struct{}
	logger       *logrus.Entry
}

// NewDaemon creates a Daemon.
func NewDaemon(dispatcher *executor.Dispatcher, interval time.Duration, logger *logrus.Entry) *Daemon {
	return &Daemon{
		dispatcher:   dispatcher,
		interval:     interval,
		timerFactory: time.After,
		triggerCh:    make(chan struct{}, 1),
		logger:       logger.WithField("prefix", "daemon"),
	}
}

// Trigger requests a sweep without waiting for the interval. Requests made
// while one is already queued are merged.
func (d *Daemon) Trigger() {
	select {
	case d.triggerCh <- struct{}{}:
	default:
	}
}

// Run sweeps once immediately, then at every interval, until ctx is
// cancelled. Sweep errors are logged and retried on the next interval.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.WithField("interval", d.interval).Info("Daemon started")

	timer := d.timerFactory(0)
	for {
		select {
		case <-timer:
		case <-d.triggerCh:
		case <-ctx.Done():
			d.logger.Info("Daemon stopped")
			return nil
		}

		d.sweep(ctx)
		timer = d.timerFactory(d.interval)
	}
}

func (d *Daemon) sweep(ctx context.Context) {
	start := time.Now()
	n, err := d.dispatcher.Sweep(ctx)
	if err != nil && ctx.Err() == nil {
		d.logger.WithError(err).Error("Queue sweep failed")
		return
	}
	d.logger.WithFields(logrus.Fields{
		"processed": n,
		"took":      time.Since(start),
	}).Debug("Queue sweep")
}

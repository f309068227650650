package executor

import (
	"context"

	"github.com/intercoop/icnnode/src/queue"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Dispatcher serializes executions per proposal id. Concurrent dispatches of
// the same id share a single run of the Coordinator; later ones find the
// proposal already processed.
type Dispatcher struct {
	coord  *Coordinator
	flight singleflight.Group
	logger *logrus.Entry
}

// NewDispatcher creates a Dispatcher around a Coordinator.
func NewDispatcher(coord *Coordinator, logger *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		coord:  coord,
		logger: logger.WithField("prefix", "executor"),
	}
}

// Coordinator returns the underlying Coordinator.
func (d *Dispatcher) Coordinator() *Coordinator {
	return d.coord
}

// Dispatch executes the proposal file at path unless another dispatch of the
// same id is in flight, in which case it waits for and returns that result.
func (d *Dispatcher) Dispatch(ctx context.Context, path string, force bool) (*ExecutionResult, error) {
	id := queue.IDFromPath(path)

	v, err, shared := d.flight.Do(id, func() (interface{}, error) {
		return d.coord.Execute(ctx, path, force)
	})

	if shared {
		d.logger.WithField("proposal", id).Debug("Joined in-flight dispatch")
	}

	res, _ := v.(*ExecutionResult)
	return res, err
}

// Sweep dispatches every pending proposal of the queue in id order. Errors
// are logged and do not stop the sweep. It returns the number of proposals
// that went through the engine.
func (d *Dispatcher) Sweep(ctx context.Context) (int, error) {
	entries, err := d.coord.store.ListPending()
	if err != nil {
		return 0, err
	}

	n := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}

		res, err := d.Dispatch(ctx, e.Path, false)
		d.log(e.ID, res, err)
		if res != nil {
			n++
		}
	}

	return n, nil
}

// log reports the outcome of a dispatch.
func (d *Dispatcher) log(id string, res *ExecutionResult, err error) {
	logger := d.logger.WithField("proposal", id)
	switch {
	case IsAlreadyProcessed(err):
		logger.Debug("Proposal already processed")
	case err != nil:
		logger.WithError(err).Warn("Dispatch failed")
	case res.Success():
		logger.WithField("vertex", res.Vertex()).Info("Dispatch completed")
	default:
		logger.WithField("status_code", res.StatusCode).Warn("Dispatch failed")
	}
}

// DispatchAndLog is Dispatch for detached callers that only log the outcome.
func (d *Dispatcher) DispatchAndLog(ctx context.Context, path string) {
	res, err := d.Dispatch(ctx, path, false)
	d.log(queue.IDFromPath(path), res, err)
}

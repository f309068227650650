package engine

import (
	"context"
	"io/ioutil"
	"sync/atomic"

	"github.com/intercoop/icnnode/src/common"
	"github.com/sirupsen/logrus"
)

// InmemEngine implements the Engine interface natively through a Handler. It
// counts its invocations.
type InmemEngine struct {
	handler Handler

	validations uint64
	executions  uint64

	logger *logrus.Entry
}

// NewInmemEngine creates an InmemEngine from a Handler. If no logger is
// given, a new one is created.
func NewInmemEngine(handler Handler, logger *logrus.Entry) *InmemEngine {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &InmemEngine{
		handler: handler,
		logger:  logger.WithField("prefix", "engine"),
	}
}

// Validate calls the ValidateHandler.
func (e *InmemEngine) Validate(ctx context.Context, path string, opts Options) error {
	atomic.AddUint64(&e.validations, 1)

	content, err := ioutil.ReadFile(path)
	if err != nil {
		return common.WrapErr(common.Execution, err, "Failed to read proposal file")
	}

	err = e.handler.ValidateHandler(ctx, content, opts)

	e.logger.WithFields(logrus.Fields{
		"path": path,
		"err":  err,
	}).Debug("InmemEngine.Validate")

	return err
}

// Execute calls the ExecuteHandler.
func (e *InmemEngine) Execute(ctx context.Context, path string, opts Options) (*Result, error) {
	atomic.AddUint64(&e.executions, 1)

	content, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, common.WrapErr(common.Execution, err, "Failed to read proposal file")
	}

	res, err := e.handler.ExecuteHandler(ctx, content, opts)

	e.logger.WithFields(logrus.Fields{
		"path":    path,
		"trace":   opts.Trace,
		"storage": opts.StorageBackend,
		"err":     err,
	}).Debug("InmemEngine.Execute")

	return res, err
}

// Validations returns the number of Validate calls.
func (e *InmemEngine) Validations() int {
	return int(atomic.LoadUint64(&e.validations))
}

// Executions returns the number of Execute calls.
func (e *InmemEngine) Executions() int {
	return int(atomic.LoadUint64(&e.executions))
}

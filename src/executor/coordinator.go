package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/intercoop/icnnode/src/common"
	"github.com/intercoop/icnnode/src/config"
	"github.com/intercoop/icnnode/src/crypto"
	"github.com/intercoop/icnnode/src/dag"
	"github.com/intercoop/icnnode/src/engine"
	"github.com/intercoop/icnnode/src/federation"
	"github.com/intercoop/icnnode/src/queue"
	"github.com/intercoop/icnnode/src/state"
	"github.com/sirupsen/logrus"
)

// ErrAlreadyProcessed is wrapped by the error returned when a proposal is
// already in the executed set or has reached a terminal status.
var ErrAlreadyProcessed = errors.New("proposal already processed")

// Broadcaster distributes committed vertices. Broadcasting never fails.
type Broadcaster interface {
	Broadcast(ctx context.Context, entry state.VertexEntry) federation.Report
}

// Coordinator orchestrates the execution of a single proposal.
type Coordinator struct {
	conf        *config.Config
	store       *queue.Store
	ledger      *dag.Ledger
	state       *state.Manager
	engine      engine.Engine
	broadcaster Broadcaster

	now    func() time.Time
	logger *logrus.Entry
}

// NewCoordinator creates a Coordinator. broadcaster may be nil, in which case
// vertices are not distributed.
func NewCoordinator(conf *config.Config,
	store *queue.Store,
	ledger *dag.Ledger,
	mgr *state.Manager,
	eng engine.Engine,
	broadcaster Broadcaster,
	logger *logrus.Entry) *Coordinator {

	return &Coordinator{
		conf:        conf,
		store:       store,
		ledger:      ledger,
		state:       mgr,
		engine:      eng,
		broadcaster: broadcaster,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger.WithField("prefix", "executor"),
	}
}

// productionOptions returns the engine options of a committing run.
func (c *Coordinator) productionOptions() engine.Options {
	opts := engine.Options{
		UseStdlib:      true,
		StorageBackend: engine.StorageFile,
		StoragePath:    c.conf.StorageDir(),
	}
	if _, err := os.Stat(c.conf.Keyfile()); err == nil {
		opts.IdentityPath = c.conf.Keyfile()
	}
	return opts
}

// Execute runs the proposal file at path. Unless force is set the proposal is
// validated first; a proposal that fails validation is marked Rejected, the
// reason is appended to the rejection log and a Validation error is
// returned. Otherwise a result is returned whatever the engine status code,
// along with an error if the proposal was recorded but its queue file could
// not be marked Completed.
//
// Files outside the queue directory are executed in place: their name never
// changes and they are not archived.
func (c *Coordinator) Execute(ctx context.Context, path string, force bool) (*ExecutionResult, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, common.WrapErr(common.Execution, err, "Proposal file not found: %s", path)
	}

	inQueue := c.store.Contains(path)
	if _, err := queue.ExtractID(path); err != nil && inQueue {
		adopted, err := c.store.Adopt(path)
		if err != nil {
			return nil, err
		}
		path = adopted.Path
	}
	id := queue.IDFromPath(path)

	logger := c.logger.WithFields(logrus.Fields{
		"proposal": id,
		"file":     filepath.Base(path),
	})

	if err := c.checkProcessed(id); err != nil {
		return nil, err
	}

	if !force {
		if err := c.validate(ctx, path); err != nil {
			c.reject(id, inQueue, err, logger)
			return nil, err
		}
	}

	if inQueue {
		entry, err := c.store.Transition(id, queue.Executing)
		if err != nil {
			return nil, err
		}
		path = entry.Path
	}

	logger.Info("Executing proposal")

	// Fingerprint before the engine runs so that the vertex hash covers the
	// bytes that were executed.
	hash, err := crypto.FileFingerprint(path)
	if err != nil {
		c.fail(id, inQueue, logger)
		return nil, err
	}

	res, err := c.engine.Execute(ctx, path, c.productionOptions())
	if err != nil {
		c.fail(id, inQueue, logger)
		return nil, common.WrapErr(common.Execution, err, "Failed to execute proposal %s", id)
	}

	result := &ExecutionResult{
		ProposalID: id,
		Timestamp:  c.now(),
		StatusCode: res.StatusCode,
		Output:     res.Output,
	}

	if !res.Success() {
		c.fail(id, inQueue, logger)
		logger.WithField("status_code", res.StatusCode).Error("Proposal execution failed")
		return result, nil
	}

	// A commit that recorded its vertex is reported even if the final rename
	// failed: the output is stored and the vertex broadcast before the error
	// is returned.
	entry, recorded, commitErr := c.commit(id, path, hash, inQueue, res)
	if !recorded {
		return nil, commitErr
	}
	vertexID := entry.ID
	result.VertexID = &vertexID

	if out, err := writeOutput(c.conf.OutputDir(), result); err != nil {
		logger.WithError(err).Error("Storing execution output")
	} else {
		logger.WithField("output", out).Debug("Stored execution output")
	}

	logger.WithField("vertex", vertexID).Info("Proposal executed successfully")

	if c.broadcaster != nil {
		c.broadcaster.Broadcast(ctx, entry)
	}

	return result, commitErr
}

// commit records a successful run: archive copy, executed set and vertex,
// then the Completed status. If the ledger cannot be updated the archive copy
// is removed and the proposal is marked Failed, so that no partial outcome
// remains. recorded reports whether the vertex was appended; an error with
// recorded set comes from the final rename, which Recover completes on the
// next start.
func (c *Coordinator) commit(id, path, hash string, inQueue bool, res *engine.Result) (entry state.VertexEntry, recorded bool, err error) {
	logger := c.logger.WithField("proposal", id)

	var archived string
	if inQueue {
		dest, err := c.store.Archive(id, path)
		if err != nil {
			c.fail(id, inQueue, logger)
			return state.VertexEntry{}, false, err
		}
		archived = dest
	}

	entry, err = c.ledger.Record(id, state.VertexEntry{
		ID:   res.VertexID,
		Hash: hash,
	})
	if err != nil {
		if archived != "" {
			if rerr := os.Remove(archived); rerr != nil {
				logger.WithError(rerr).Error("Removing archive copy")
			}
		}
		c.fail(id, inQueue, logger)
		return state.VertexEntry{}, false, common.WrapErr(common.Dag, err, "Failed to record proposal %s", id)
	}

	if inQueue {
		if _, err := c.store.Transition(id, queue.Completed); err != nil {
			logger.WithError(err).Error("Marking recorded proposal completed")
			return entry, true, err
		}
	}

	return entry, true, nil
}

// checkProcessed fails with ErrAlreadyProcessed if the proposal is in the
// executed set or its status is terminal.
func (c *Coordinator) checkProcessed(id string) error {
	executed, err := c.state.IsExecuted(id)
	if err != nil {
		return err
	}
	if executed {
		return common.WrapErr(common.Execution, ErrAlreadyProcessed, "Proposal %s is in the executed set", id)
	}
	if s, ok := c.store.Index().Get(id); ok && s.IsTerminal() {
		return common.WrapErr(common.Execution, ErrAlreadyProcessed, "Proposal %s is %s", id, s)
	}
	return nil
}

func (c *Coordinator) reject(id string, inQueue bool, verr error, logger *logrus.Entry) {
	reason := rejectionReason(verr)
	logger.WithField("reason", reason).Warn("Proposal rejected")

	if inQueue {
		if _, err := c.store.Transition(id, queue.Rejected); err != nil {
			logger.WithError(err).Error("Marking proposal rejected")
		}
	}
	if err := c.store.LogRejection(id, reason); err != nil {
		logger.WithError(err).Error("Writing rejection log")
	}
}

func (c *Coordinator) fail(id string, inQueue bool, logger *logrus.Entry) {
	if !inQueue {
		return
	}
	if _, err := c.store.Transition(id, queue.Failed); err != nil {
		logger.WithError(err).Error("Marking proposal failed")
	}
}

// IsAlreadyProcessed reports whether err means the proposal was skipped
// because it had already been processed.
func IsAlreadyProcessed(err error) bool {
	return errors.Is(err, ErrAlreadyProcessed)
}

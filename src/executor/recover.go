package executor

import (
	"github.com/intercoop/icnnode/src/queue"
	"github.com/sirupsen/logrus"
)

// Recover reconciles the queue with the ledger on start. A commit archives
// the proposal, then records it, then renames the queue file Completed; a
// crash can stop it between any two steps. Proposals left Executing are
// completed if the ledger holds their vertex, and otherwise lose their
// archive copy and are marked Failed. Archived proposals without a vertex
// are unarchived; archived proposals with one join the executed set.
//
// Recover mutates the queue and must only run in the process holding the
// data directory.
func (c *Coordinator) Recover() error {
	if err := c.store.Rescan(); err != nil {
		return err
	}

	recorded, err := c.ledger.RecordedProposals()
	if err != nil {
		return err
	}

	// Read the queue files themselves: the index ranks an archived proposal
	// Completed even while its queue file still says Executing.
	interrupted, err := c.store.Queued(queue.Executing)
	if err != nil {
		return err
	}

	for _, e := range interrupted {
		logger := c.logger.WithField("proposal", e.ID)

		if !recorded[e.ID] {
			if err := c.store.Unarchive(e.ID); err != nil {
				logger.WithError(err).Error("Removing archive copy of interrupted proposal")
				continue
			}
			if _, err := c.store.Resolve(e, queue.Failed); err != nil {
				logger.WithError(err).Error("Marking interrupted proposal failed")
				continue
			}
			logger.Warn("Interrupted proposal marked failed")
			continue
		}

		if _, err := c.store.FindArchived(e.ID); err != nil {
			if _, aerr := c.store.Archive(e.ID, e.Path); aerr != nil {
				logger.WithError(aerr).Error("Archiving recorded proposal")
				continue
			}
		}
		if _, err := c.store.Resolve(e, queue.Completed); err != nil {
			logger.WithError(err).Error("Completing recorded proposal")
			continue
		}
		logger.Info("Recorded proposal marked completed")
	}

	executed, err := c.state.ExecutedProposals()
	if err != nil {
		return err
	}

	added, removed := 0, 0
	for _, id := range c.store.Reconcile(executed) {
		if !recorded[id] {
			if err := c.store.Unarchive(id); err != nil {
				return err
			}
			removed++
			continue
		}
		if err := c.state.AddExecutedProposal(id); err != nil {
			return err
		}
		added++
	}

	c.logger.WithFields(logrus.Fields{
		"interrupted": len(interrupted),
		"executed":    len(executed) + added,
		"added":       added,
		"unarchived":  removed,
		"known":       c.store.Index().Len(),
	}).Info("Reconciled proposal queue")

	return nil
}

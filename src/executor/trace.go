package executor

import (
	"context"
	"fmt"
	"io"

	"github.com/intercoop/icnnode/src/common"
	"github.com/intercoop/icnnode/src/engine"
)

const rule = "----------------------------------------"

// Trace prints the stored output of a proposal, then replays it through the
// engine in trace mode. The replay never mutates storage.
func (c *Coordinator) Trace(ctx context.Context, id string, w io.Writer) error {
	path, err := c.store.FindArchived(id)
	if err != nil {
		e, lerr := c.store.Locate(id)
		if lerr != nil {
			return common.NewErr(common.Execution, "Proposal not found: %s", id)
		}
		path = e.Path
	}

	c.logger.WithField("file", path).Debug("Tracing proposal")

	outPath, content, err := LatestOutput(c.conf.OutputDir(), id)
	if err != nil {
		return err
	}
	if outPath == "" {
		fmt.Fprintf(w, "No execution output found for proposal: %s\n", id)
	} else {
		fmt.Fprintf(w, "Execution Output for Proposal %s:\n%s\n%s\n%s\n", id, rule, content, rule)
	}

	res, err := c.engine.Execute(ctx, path, engine.TraceOptions())
	if err != nil {
		return common.WrapErr(common.Execution, err, "Failed to trace execution")
	}

	fmt.Fprintf(w, "Trace Output:\n%s\n%s\n%s\n", rule, res.Output, rule)

	return nil
}

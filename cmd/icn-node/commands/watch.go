package commands

import (
	"fmt"

	"github.com/intercoop/icnnode/src/watch"
	"github.com/spf13/cobra"
)

// NewWatchCmd returns the command that runs the watch loop alone.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the proposal queue and the ledger, printing events",
		RunE:  watchNode,
	}

	cmd.Flags().Duration("poll", _config.PollInterval, "Time between ledger length checks")

	return cmd
}

func watchNode(cmd *cobra.Command, args []string) error {
	_config.NoService = true

	node, err := initNode()
	if err != nil {
		return err
	}
	defer node.Close()

	ctx, stop := signalContext()
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching %s\n", _config.QueueDir())

	return node.Watch(ctx, func(ev watch.Event) {
		fmt.Fprintln(out, ev.String())
	})
}

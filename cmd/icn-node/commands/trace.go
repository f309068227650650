package commands

import (
	"github.com/spf13/cobra"
)

var traceID string

// NewTraceCmd returns the command that replays an executed proposal.
func NewTraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the stored output of a proposal and replay it in trace mode",
		RunE:  trace,
	}

	cmd.Flags().StringVarP(&traceID, "proposal", "p", "", "Proposal id")
	cmd.MarkFlagRequired("proposal")

	return cmd
}

func trace(cmd *cobra.Command, args []string) error {
	node, err := initReadOnlyNode()
	if err != nil {
		return err
	}
	defer node.Close()

	ctx, stop := signalContext()
	defer stop()

	return node.Coordinator.Trace(ctx, traceID, cmd.OutOrStdout())
}

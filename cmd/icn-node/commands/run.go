package commands

import (
	"github.com/spf13/cobra"
)

// NewRunCmd returns the command that starts the node daemon.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run node",
		RunE:  runNode,
	}
	AddRunFlags(cmd)
	return cmd
}

func runNode(cmd *cobra.Command, args []string) error {
	node, err := initNode()
	if err != nil {
		return err
	}
	defer node.Close()

	ctx, stop := signalContext()
	defer stop()

	return node.Run(ctx)
}

// AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("interval", _config.Interval, "Time between full queue sweeps")
	cmd.Flags().Duration("poll", _config.PollInterval, "Time between ledger length checks")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.NoService, "Disable the HTTP service")
}

package commands

import (
	"fmt"

	"github.com/intercoop/icnnode/src/common"
	"github.com/spf13/cobra"
)

var (
	proposalFile string
	force        bool
)

// NewExecuteCmd returns the command that executes a single proposal file.
func NewExecuteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute a proposal file",
		RunE:  execute,
	}

	cmd.Flags().StringVarP(&proposalFile, "file", "f", "", "Proposal file to execute")
	cmd.Flags().BoolVar(&force, "force", false, "Skip validation")
	cmd.MarkFlagRequired("file")

	return cmd
}

func execute(cmd *cobra.Command, args []string) error {
	_config.NoService = true

	node, err := initNode()
	if err != nil {
		return err
	}
	defer node.Close()

	ctx, stop := signalContext()
	defer stop()

	res, err := node.Dispatcher.Dispatch(ctx, proposalFile, force)
	if res == nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Proposal: %s\n", res.ProposalID)
	fmt.Fprintf(out, "Status code: %d\n", res.StatusCode)
	if v := res.Vertex(); v != "" {
		fmt.Fprintf(out, "Vertex: %s\n", v)
	}
	if res.Output != "" {
		fmt.Fprintf(out, "Output:\n%s\n", res.Output)
	}

	if err != nil {
		return err
	}
	if !res.Success() {
		return common.NewProcessErr(res.StatusCode, "Proposal execution failed")
	}

	return nil
}

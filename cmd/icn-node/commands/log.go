package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewLogCmd returns the command that prints the ledger audit log.
func NewLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log",
		Short: "Show the DAG audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := initReadOnlyNode()
			if err != nil {
				return err
			}
			defer node.Close()

			content, err := node.Ledger.ReadLog()
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), content)

			return nil
		},
	}
}

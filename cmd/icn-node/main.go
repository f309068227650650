package main

import (
	"fmt"
	"os"

	"github.com/intercoop/icnnode/cmd/icn-node/commands"
)

func main() {
	rootCmd := commands.RootCmd

	rootCmd.AddCommand(
		commands.NewRunCmd(),
		commands.NewExecuteCmd(),
		commands.NewTraceCmd(),
		commands.NewWatchCmd(),
		commands.NewLogCmd(),
		commands.NewKeygenCmd(),
		commands.NewPeersCmd(),
		commands.VersionCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

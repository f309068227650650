package commands

import (
	"fmt"

	"github.com/intercoop/icnnode/src/icn"
	"github.com/spf13/cobra"
)

// NewKeygenCmd produces a KeygenCmd which create a key pair
func NewKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Create new key pair",
		RunE:  keygen,
	}
}

func keygen(cmd *cobra.Command, args []string) error {
	if err := _config.EnsureDirs(); err != nil {
		return err
	}

	key, err := icn.Keygen(_config)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Your private key has been saved to: %s\n", _config.Keyfile())
	fmt.Fprintf(out, "Your public key has been saved to: %s\n", _config.PubKeyfile())
	fmt.Fprintf(out, "Public key: %s\n", key.PublicHex())

	return nil
}
